// Package software is a pure-Go provider. It implements every function of
// the provider table over an in-process keyring and is used when no native
// library is configured, in tests, and by the c-shared build.
package software

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glinharesb/chevron-bridge/internal/crypto"
	"github.com/glinharesb/chevron-bridge/internal/keyring"
)

var (
	ErrNoPassword   = errors.New("no password supplied")
	ErrNoPrivateKey = errors.New("no private key")
)

// Provider implements the provider operations on a keyring.
type Provider struct {
	store  keyring.Store
	cost   int
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithSealCost sets the scrypt cost used when sealing private keys.
func WithSealCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

// New returns a provider backed by store. A nil store means a fresh
// in-memory keyring.
func New(store keyring.Store, opts ...Option) *Provider {
	if store == nil {
		store = keyring.NewMemoryStore()
	}
	p := &Provider{
		store:  store,
		cost:   crypto.DefaultCost,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Keyring returns the store the provider loads keys into.
func (p *Provider) Keyring() keyring.Store {
	return p.store
}

// GenerateKey creates a key pair and returns it armored, with the private
// key sealed under password. The new key is not loaded.
func (p *Provider) GenerateKey(password, identifier string, bits int) (string, error) {
	if password == "" {
		return "", ErrNoPassword
	}
	if err := crypto.CheckIdentifier(identifier); err != nil {
		return "", err
	}

	p.logger.Info("generating key", zap.String("identifier", identifier), zap.Int("bits", bits))

	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	sealed, err := crypto.SealPrivateKey(priv, []byte(password), p.cost)
	if err != nil {
		return "", err
	}
	sealed.Identifier = identifier
	sealed.Bits = bits
	sealed.Created = p.now().UTC().Format(time.RFC3339)

	return crypto.ArmorPrivateKey(sealed) + crypto.ArmorPublicKey(pub, identifier), nil
}

// LoadKey loads every key block in keyData and returns how many of them
// were private keys.
func (p *Provider) LoadKey(keyData string) (int, error) {
	kr, err := crypto.ParseKeyring(keyData)
	if err != nil {
		return 0, err
	}

	now := p.now()
	for _, k := range kr.Private {
		err := p.store.Put(&keyring.Entry{
			Fingerprint: k.Fingerprint,
			Identifier:  k.Identifier,
			Bits:        k.Bits,
			Sealed:      k.Sealed,
			LoadedAt:    now,
		})
		if err != nil {
			return 0, fmt.Errorf("load private key %s: %w", k.Fingerprint, err)
		}
	}
	for _, k := range kr.Public {
		err := p.store.Put(&keyring.Entry{
			Fingerprint: k.Fingerprint,
			Identifier:  k.Identifier,
			Public:      k.Key,
			LoadedAt:    now,
		})
		if err != nil {
			return 0, fmt.Errorf("load public key %s: %w", k.Fingerprint, err)
		}
	}

	p.logger.Debug("keys loaded",
		zap.Int("private", len(kr.Private)),
		zap.Int("public", len(kr.Public)),
	)
	return len(kr.Private), nil
}

// UnlockKey decrypts a loaded private key so it can sign.
func (p *Provider) UnlockKey(fingerprint, password string) error {
	e, err := p.store.Get(fingerprint)
	if err != nil {
		return fmt.Errorf("key %s: %w", fingerprint, err)
	}
	if e.Sealed == nil {
		return fmt.Errorf("key %s: %w", e.Fingerprint, ErrNoPrivateKey)
	}

	priv, err := crypto.OpenPrivateKey(crypto.PrivateKey{Fingerprint: e.Fingerprint, Sealed: e.Sealed}, []byte(password))
	if err != nil {
		return fmt.Errorf("unlock key %s: %w", e.Fingerprint, err)
	}
	return p.store.Unlock(e.Fingerprint, priv)
}

// VerifySignature checks an armored signature over data with the loaded
// public key named in the signature.
func (p *Provider) VerifySignature(data []byte, signature string) (bool, error) {
	sig, err := crypto.ParseSignature(signature)
	if err != nil {
		return false, err
	}
	e, err := p.store.Get(sig.Fingerprint)
	if err != nil {
		return false, fmt.Errorf("key %s: %w", sig.Fingerprint, err)
	}
	if e.Public == nil {
		return false, fmt.Errorf("key %s: %w", e.Fingerprint, keyring.ErrPublicNotKnown)
	}
	return crypto.Verify(e.Public, data, sig.Data), nil
}

// VerifyBase64DataSignature is VerifySignature over base64 encoded data.
func (p *Provider) VerifyBase64DataSignature(b64data, signature string) (bool, error) {
	data, err := base64.StdEncoding.DecodeString(b64data)
	if err != nil {
		return false, err
	}
	return p.VerifySignature(data, signature)
}

// SignData signs data with an unlocked private key and returns the armored
// signature.
func (p *Provider) SignData(data []byte, fingerprint string) (string, error) {
	e, err := p.store.Get(fingerprint)
	if err != nil {
		return "", fmt.Errorf("key %s: %w", fingerprint, err)
	}
	switch e.Status() {
	case keyring.StatusPublic:
		return "", fmt.Errorf("key %s: %w", e.Fingerprint, ErrNoPrivateKey)
	case keyring.StatusLocked:
		return "", fmt.Errorf("key %s: %w", e.Fingerprint, keyring.ErrKeyLocked)
	}
	return crypto.ArmorSignature(e.Fingerprint, crypto.Sign(e.Unlocked, data)), nil
}

// SignBase64Data is SignData over base64 encoded data.
func (p *Provider) SignBase64Data(b64data, fingerprint string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64data)
	if err != nil {
		return "", err
	}
	return p.SignData(data, fingerprint)
}

// GetKeyFingerprints lists the fingerprints of the keys in keyData without
// loading them.
func (p *Provider) GetKeyFingerprints(keyData string) ([]string, error) {
	kr, err := crypto.ParseKeyring(keyData)
	if err != nil {
		return nil, err
	}
	return kr.Fingerprints(), nil
}

// ChangeKeyPassword re-seals the first private key in keyData under
// newPassword and returns the re-armored key. The keyring is left as it was.
func (p *Provider) ChangeKeyPassword(keyData, currentPassword, newPassword string) (string, error) {
	kr, err := crypto.ParseKeyring(keyData)
	if err != nil {
		return "", err
	}
	if len(kr.Private) == 0 {
		return "", ErrNoPrivateKey
	}
	if newPassword == "" {
		return "", ErrNoPassword
	}

	k := kr.Private[0]
	priv, err := crypto.OpenPrivateKey(k, []byte(currentPassword))
	if err != nil {
		return "", fmt.Errorf("unlock key %s: %w", k.Fingerprint, err)
	}

	resealed, err := crypto.SealPrivateKey(priv, []byte(newPassword), p.cost)
	if err != nil {
		return "", err
	}
	resealed.Identifier = k.Identifier
	resealed.Bits = k.Bits
	resealed.Created = k.Created

	p.logger.Info("key password changed", zap.String("fingerprint", k.Fingerprint))
	return crypto.ArmorPrivateKey(resealed) + crypto.ArmorPublicKey(priv.Public().(ed25519.PublicKey), k.Identifier), nil
}

// GetPublicKey returns the armored public key of a loaded key.
func (p *Provider) GetPublicKey(fingerprint string) (string, error) {
	e, err := p.store.Get(fingerprint)
	if err != nil {
		return "", fmt.Errorf("key %s: %w", fingerprint, err)
	}
	if e.Public == nil {
		return "", fmt.Errorf("key %s: %w", e.Fingerprint, keyring.ErrPublicNotKnown)
	}
	return crypto.ArmorPublicKey(e.Public, e.Identifier), nil
}
