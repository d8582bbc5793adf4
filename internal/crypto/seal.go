package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Sealed blob layout: [version | logN | salt | nonce | ciphertext | tag].
const (
	sealVersion = 1
	saltSize    = 16
	sealKeySize = 32

	MinCost = 10
	MaxCost = 20
)

var sealInfo = []byte("chevron sealed private key v1")

var (
	ErrWrongPassword = errors.New("wrong password")
	ErrMalformedSeal = errors.New("malformed sealed data")
)

// DefaultCost is the scrypt cost (log2 N) used by Seal.
var DefaultCost = 15

// Seal encrypts plaintext under a key derived from password with scrypt and
// HKDF, using AES-256-GCM. aad is bound to the ciphertext and must be given
// again to Open.
func Seal(password, plaintext, aad []byte) ([]byte, error) {
	return SealWithCost(password, plaintext, aad, DefaultCost)
}

// SealWithCost is Seal with an explicit scrypt cost.
func SealWithCost(password, plaintext, aad []byte, cost int) ([]byte, error) {
	if cost < MinCost || cost > MaxCost {
		return nil, fmt.Errorf("scrypt cost %d out of range [%d, %d]", cost, MinCost, MaxCost)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := passwordCipher(password, salt, cost)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, 2+saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, sealVersion, byte(cost))
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, aad), nil
}

// Open reverses Seal. A wrong password or mismatched aad yields
// ErrWrongPassword.
func Open(password, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < 2+saltSize || sealed[0] != sealVersion {
		return nil, ErrMalformedSeal
	}
	cost := int(sealed[1])
	if cost < MinCost || cost > MaxCost {
		return nil, ErrMalformedSeal
	}
	salt := sealed[2 : 2+saltSize]

	gcm, err := passwordCipher(password, salt, cost)
	if err != nil {
		return nil, err
	}

	rest := sealed[2+saltSize:]
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrMalformedSeal
	}
	nonce, ct := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

// SealCost returns the scrypt cost recorded in a sealed blob.
func SealCost(sealed []byte) (int, error) {
	if len(sealed) < 2 || sealed[0] != sealVersion {
		return 0, ErrMalformedSeal
	}
	return int(sealed[1]), nil
}

func passwordCipher(password, salt []byte, cost int) (cipher.AEAD, error) {
	stretched, err := scrypt.Key(password, salt, 1<<cost, 8, 1, sealKeySize)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	key, err := DeriveKey(stretched, salt, sealInfo, sealKeySize)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes gcm: %w", err)
	}
	return gcm, nil
}

// SealPrivateKey seals the seed of priv under password. The fingerprint is
// bound as additional data so a sealed seed cannot be moved to another key
// block.
func SealPrivateKey(priv ed25519.PrivateKey, password []byte, cost int) (PrivateKey, error) {
	fp := Fingerprint(priv.Public().(ed25519.PublicKey))
	sealed, err := SealWithCost(password, priv.Seed(), []byte(fp), cost)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("seal private key %s: %w", fp, err)
	}
	return PrivateKey{Fingerprint: fp, Sealed: sealed}, nil
}

// OpenPrivateKey unseals k with password and checks that the recovered key
// matches k's fingerprint.
func OpenPrivateKey(k PrivateKey, password []byte) (ed25519.PrivateKey, error) {
	seed, err := Open(password, k.Sealed, []byte(k.Fingerprint))
	if err != nil {
		return nil, err
	}
	priv, err := PrivateKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if fp := Fingerprint(priv.Public().(ed25519.PublicKey)); fp != k.Fingerprint {
		return nil, fmt.Errorf("private key fingerprint mismatch: %s != %s", fp, k.Fingerprint)
	}
	return priv, nil
}
