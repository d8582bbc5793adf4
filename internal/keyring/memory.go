package keyring

import (
	"crypto/ed25519"
	"sort"
	"sync"

	"github.com/glinharesb/chevron-bridge/internal/crypto"
)

// MemoryStore is a thread-safe in-memory keyring backed by sync.RWMutex.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*Entry),
	}
}

// Put adds entry, or merges it into the entry already stored under the
// same fingerprint.
func (m *MemoryStore) Put(entry *Entry) error {
	fp := crypto.NormalizeFingerprint(entry.Fingerprint)
	if fp == "" {
		return ErrNoFingerprint
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.keys[fp]; ok {
		existing.merge(entry)
		return nil
	}
	c := entry.clone()
	c.Fingerprint = fp
	m.keys[fp] = c
	return nil
}

func (m *MemoryStore) Get(fingerprint string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, err := m.lookup(fingerprint)
	if err != nil {
		return nil, err
	}
	return e.clone(), nil
}

// List returns matching entries ordered by fingerprint. A zero filter
// returns every entry.
func (m *MemoryStore) List(filter KeyStatus) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.keys {
		if filter == 0 || e.Status() == filter {
			result = append(result, e.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Fingerprint < result[j].Fingerprint })
	return result, nil
}

// Unlock attaches a decrypted private key to a stored private key entry.
func (m *MemoryStore) Unlock(fingerprint string, key ed25519.PrivateKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookup(fingerprint)
	if err != nil {
		return err
	}
	if e.Sealed == nil {
		return ErrNoPrivateKey
	}
	pub := key.Public().(ed25519.PublicKey)
	if crypto.Fingerprint(pub) != e.Fingerprint {
		return ErrKeyMismatch
	}
	e.Unlocked = key
	if e.Public == nil {
		e.Public = pub
	}
	return nil
}

func (m *MemoryStore) Delete(fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookup(fingerprint)
	if err != nil {
		return err
	}
	delete(m.keys, e.Fingerprint)
	return nil
}

// lookup must be called with mu held.
func (m *MemoryStore) lookup(fingerprint string) (*Entry, error) {
	fp := crypto.NormalizeFingerprint(fingerprint)
	if e, ok := m.keys[fp]; ok {
		return e, nil
	}

	var found *Entry
	for full, e := range m.keys {
		if !crypto.MatchFingerprint(full, fp) {
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousKey
		}
		found = e
	}
	if found == nil {
		return nil, ErrKeyNotFound
	}
	return found, nil
}
