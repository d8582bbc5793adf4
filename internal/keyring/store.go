// Package keyring holds the keys the software provider has loaded.
package keyring

import (
	"crypto/ed25519"
	"errors"
	"slices"
	"time"
)

var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrAmbiguousKey   = errors.New("fingerprint matches more than one key")
	ErrNoPrivateKey   = errors.New("no private key")
	ErrKeyLocked      = errors.New("key is locked")
	ErrKeyMismatch    = errors.New("private key does not match fingerprint")
	ErrNoFingerprint  = errors.New("entry has no fingerprint")
	ErrPublicNotKnown = errors.New("public key not available")
)

// KeyStatus is what a loaded key can be used for.
type KeyStatus int

const (
	StatusPublic KeyStatus = iota + 1
	StatusLocked
	StatusUnlocked
)

func (s KeyStatus) String() string {
	switch s {
	case StatusPublic:
		return "PUBLIC"
	case StatusLocked:
		return "LOCKED"
	case StatusUnlocked:
		return "UNLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one key in the keyring. Sealed is nil for public-only keys.
// Unlocked holds the decrypted private key after a successful unlock and is
// never persisted.
type Entry struct {
	Fingerprint string
	Identifier  string
	Bits        int
	Public      ed25519.PublicKey
	Sealed      []byte
	Unlocked    ed25519.PrivateKey
	LoadedAt    time.Time
}

func (e *Entry) Status() KeyStatus {
	switch {
	case e.Unlocked != nil:
		return StatusUnlocked
	case e.Sealed != nil:
		return StatusLocked
	default:
		return StatusPublic
	}
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Public = slices.Clone(e.Public)
	c.Sealed = slices.Clone(e.Sealed)
	c.Unlocked = slices.Clone(e.Unlocked)
	return &c
}

// merge folds a newly loaded entry into an existing one. Fields the new
// entry lacks are kept, so loading a public key never drops a private one.
func (e *Entry) merge(n *Entry) {
	if n.Identifier != "" {
		e.Identifier = n.Identifier
	}
	if n.Bits != 0 {
		e.Bits = n.Bits
	}
	if n.Public != nil {
		e.Public = slices.Clone(n.Public)
	}
	if n.Sealed != nil && !slices.Equal(e.Sealed, n.Sealed) {
		e.Sealed = slices.Clone(n.Sealed)
		e.Unlocked = nil
	}
	if n.Unlocked != nil {
		e.Unlocked = slices.Clone(n.Unlocked)
	}
	e.LoadedAt = n.LoadedAt
}

// Store is the keyring storage interface. Lookups accept a full fingerprint
// or an unambiguous suffix of at least 8 characters. Returned entries are
// copies.
type Store interface {
	Put(entry *Entry) error
	Get(fingerprint string) (*Entry, error)
	List(filter KeyStatus) ([]*Entry, error)
	Unlock(fingerprint string, key ed25519.PrivateKey) error
	Delete(fingerprint string) error
}
