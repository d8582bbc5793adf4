package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// FingerprintSize is the number of hash bytes kept in a fingerprint.
const FingerprintSize = 20

// GenerateKey creates a new Ed25519 key pair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return pub, priv, nil
}

// PrivateKeyFromSeed rebuilds a private key from its 32 byte seed.
func PrivateKeyFromSeed(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Sign signs data with key.
func Sign(key ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(key, data)
}

// Verify reports whether signature is a valid signature of data by pub.
// Keys or signatures of the wrong size never verify.
func Verify(pub ed25519.PublicKey, data, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, signature)
}

// Fingerprint is the upper-case hex of the first FingerprintSize bytes of the
// SHA-256 of the public key.
func Fingerprint(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return strings.ToUpper(hex.EncodeToString(sum[:FingerprintSize]))
}

// NormalizeFingerprint upper-cases fp and strips spaces, so fingerprints can
// be compared as typed by users.
func NormalizeFingerprint(fp string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(fp), " ", ""))
}

// MatchFingerprint reports whether short, a full fingerprint or a suffix of
// at least 8 characters, names full.
func MatchFingerprint(full, short string) bool {
	short = NormalizeFingerprint(short)
	if len(short) < 8 {
		return false
	}
	return strings.HasSuffix(NormalizeFingerprint(full), short)
}
