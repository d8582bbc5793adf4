package keyring

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// persistedKey is the JSON form of an Entry. Unlocked private keys are
// never written.
type persistedKey struct {
	Fingerprint string    `json:"fingerprint"`
	Identifier  string    `json:"identifier,omitempty"`
	Bits        int       `json:"bits,omitempty"`
	Public      []byte    `json:"public,omitempty"`
	Sealed      []byte    `json:"sealed,omitempty"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// PersistentStore wraps MemoryStore and persists to a JSON file using atomic
// rename. Unlock state lives in memory only, so every key comes back locked
// after a restart.
type PersistentStore struct {
	*MemoryStore
	path   string
	logger *zap.Logger
	saveMu sync.Mutex
}

// NewPersistentStore creates a keyring that persists to path, loading the
// keys already saved there.
func NewPersistentStore(path string, logger *zap.Logger) (*PersistentStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ps := &PersistentStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
		logger:      logger,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create keyring dir: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := ps.load(); err != nil {
			return nil, fmt.Errorf("load keyring: %w", err)
		}
		logger.Info("keyring loaded", zap.String("path", path), zap.Int("keys", len(ps.keys)))
	}

	return ps, nil
}

func (ps *PersistentStore) Put(entry *Entry) error {
	if err := ps.MemoryStore.Put(entry); err != nil {
		return err
	}
	return ps.save()
}

func (ps *PersistentStore) Delete(fingerprint string) error {
	if err := ps.MemoryStore.Delete(fingerprint); err != nil {
		return err
	}
	return ps.save()
}

// save writes all keys to a temp file then atomically renames it.
func (ps *PersistentStore) save() error {
	ps.saveMu.Lock()
	defer ps.saveMu.Unlock()

	ps.mu.RLock()
	keys := make([]persistedKey, 0, len(ps.keys))
	for _, e := range ps.keys {
		keys = append(keys, persistedKey{
			Fingerprint: e.Fingerprint,
			Identifier:  e.Identifier,
			Bits:        e.Bits,
			Public:      e.Public,
			Sealed:      e.Sealed,
			LoadedAt:    e.LoadedAt,
		})
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	ps.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	tmpPath := ps.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, ps.path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}

	ps.logger.Debug("keyring saved", zap.String("path", ps.path), zap.Int("keys", len(keys)))
	return nil
}

func (ps *PersistentStore) load() error {
	data, err := os.ReadFile(ps.path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var keys []persistedKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	for _, pk := range keys {
		if pk.Public != nil && len(pk.Public) != ed25519.PublicKeySize {
			return fmt.Errorf("key %s: invalid public key length %d", pk.Fingerprint, len(pk.Public))
		}
		ps.keys[pk.Fingerprint] = &Entry{
			Fingerprint: pk.Fingerprint,
			Identifier:  pk.Identifier,
			Bits:        pk.Bits,
			Public:      pk.Public,
			Sealed:      pk.Sealed,
			LoadedAt:    pk.LoadedAt,
		}
	}
	return nil
}
