package crypto

import (
	"crypto/ed25519"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PEM block types of armored keys and signatures.
const (
	BlockPrivateKey = "CHEVRON PRIVATE KEY"
	BlockPublicKey  = "CHEVRON PUBLIC KEY"
	BlockSignature  = "CHEVRON SIGNATURE"
)

// PEM headers.
const (
	HeaderFingerprint = "Fingerprint"
	HeaderIdentifier  = "Identifier"
	HeaderBits        = "Bits"
	HeaderCreated     = "Created"
)

var (
	ErrNoArmor           = errors.New("no armored data found")
	ErrInvalidIdentifier = errors.New("identifier must not contain line breaks")
)

// CheckIdentifier reports whether id can be stored in a block header. A line
// break would end the header early and leave a block that does not parse.
func CheckIdentifier(id string) error {
	if strings.ContainsAny(id, "\r\n") {
		return ErrInvalidIdentifier
	}
	return nil
}

// PublicKey is a decoded public key block.
type PublicKey struct {
	Key         ed25519.PublicKey
	Fingerprint string
	Identifier  string
}

// PrivateKey is a decoded private key block. The seed stays sealed until
// it is opened with the key's password.
type PrivateKey struct {
	Fingerprint string
	Identifier  string
	Bits        int
	Created     string
	Sealed      []byte
}

// Signature is a decoded signature block.
type Signature struct {
	Fingerprint string
	Data        []byte
}

// Keyring is everything found in a piece of armored key data. Private keys
// also contribute their public key when it is present in the same data.
type Keyring struct {
	Public  []PublicKey
	Private []PrivateKey
}

// Fingerprints returns the fingerprint of every key, private keys first,
// without duplicates.
func (k *Keyring) Fingerprints() []string {
	seen := make(map[string]bool)
	var fps []string
	add := func(fp string) {
		if !seen[fp] {
			seen[fp] = true
			fps = append(fps, fp)
		}
	}
	for _, p := range k.Private {
		add(p.Fingerprint)
	}
	for _, p := range k.Public {
		add(p.Fingerprint)
	}
	return fps
}

// ArmorPublicKey encodes pub as a CHEVRON PUBLIC KEY block.
func ArmorPublicKey(pub ed25519.PublicKey, identifier string) string {
	headers := map[string]string{HeaderFingerprint: Fingerprint(pub)}
	if identifier != "" {
		headers[HeaderIdentifier] = identifier
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: BlockPublicKey, Headers: headers, Bytes: pub}))
}

// ArmorPrivateKey encodes a sealed seed as a CHEVRON PRIVATE KEY block.
func ArmorPrivateKey(k PrivateKey) string {
	headers := map[string]string{HeaderFingerprint: k.Fingerprint}
	if k.Identifier != "" {
		headers[HeaderIdentifier] = k.Identifier
	}
	if k.Bits > 0 {
		headers[HeaderBits] = strconv.Itoa(k.Bits)
	}
	if k.Created != "" {
		headers[HeaderCreated] = k.Created
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: BlockPrivateKey, Headers: headers, Bytes: k.Sealed}))
}

// ArmorSignature encodes an Ed25519 signature made by the key fp.
func ArmorSignature(fp string, sig []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:    BlockSignature,
		Headers: map[string]string{HeaderFingerprint: fp},
		Bytes:   sig,
	}))
}

// ParseKeyring decodes every key block in data. Blocks of other types are
// ignored; a data with no key blocks at all is an error.
func ParseKeyring(data string) (*Keyring, error) {
	kr := &Keyring{}
	rest := []byte(data)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case BlockPublicKey:
			if len(block.Bytes) != ed25519.PublicKeySize {
				return nil, fmt.Errorf("public key: invalid length %d", len(block.Bytes))
			}
			pub := ed25519.PublicKey(block.Bytes)
			fp := Fingerprint(pub)
			if h := block.Headers[HeaderFingerprint]; h != "" && NormalizeFingerprint(h) != fp {
				return nil, fmt.Errorf("public key: fingerprint header %s does not match key %s", h, fp)
			}
			kr.Public = append(kr.Public, PublicKey{Key: pub, Fingerprint: fp, Identifier: block.Headers[HeaderIdentifier]})
		case BlockPrivateKey:
			fp := NormalizeFingerprint(block.Headers[HeaderFingerprint])
			if fp == "" {
				return nil, errors.New("private key: missing fingerprint header")
			}
			if _, err := SealCost(block.Bytes); err != nil {
				return nil, fmt.Errorf("private key %s: %w", fp, err)
			}
			bits := 0
			if b := block.Headers[HeaderBits]; b != "" {
				n, err := strconv.Atoi(b)
				if err != nil {
					return nil, fmt.Errorf("private key %s: invalid bits header %q", fp, b)
				}
				bits = n
			}
			kr.Private = append(kr.Private, PrivateKey{
				Fingerprint: fp,
				Identifier:  block.Headers[HeaderIdentifier],
				Bits:        bits,
				Created:     block.Headers[HeaderCreated],
				Sealed:      block.Bytes,
			})
		}
	}

	if len(kr.Public) == 0 && len(kr.Private) == 0 {
		return nil, ErrNoArmor
	}
	return kr, nil
}

// ParseSignature decodes the first signature block in data.
func ParseSignature(data string) (*Signature, error) {
	rest := []byte(strings.TrimSpace(data))
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, ErrNoArmor
		}
		if block.Type != BlockSignature {
			continue
		}
		fp := NormalizeFingerprint(block.Headers[HeaderFingerprint])
		if fp == "" {
			return nil, errors.New("signature: missing fingerprint header")
		}
		if len(block.Bytes) != ed25519.SignatureSize {
			return nil, fmt.Errorf("signature: invalid length %d", len(block.Bytes))
		}
		return &Signature{Fingerprint: fp, Data: block.Bytes}, nil
	}
}
