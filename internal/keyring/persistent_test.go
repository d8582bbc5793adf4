package keyring

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/glinharesb/chevron-bridge/internal/crypto"
)

func TestPersistentStorePutAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")

	store, err := NewPersistentStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	k := makeEntry(t, true)
	if err := store.Put(k.entry); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Unlock(k.entry.Fingerprint, k.priv); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("data file should exist: %v", err)
	}

	// Simulate a restart from the same file
	store2, err := NewPersistentStore(path, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}

	got, err := store2.Get(k.entry.Fingerprint)
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if got.Status() != StatusLocked {
		t.Fatalf("reloaded key should be locked, got %v", got.Status())
	}
	if got.Bits != 2048 || got.Identifier != "test" {
		t.Fatalf("metadata not preserved: %+v", got)
	}

	// The reloaded sealed seed still opens with the original password
	priv, err := crypto.OpenPrivateKey(crypto.PrivateKey{Fingerprint: got.Fingerprint, Sealed: got.Sealed}, []byte("pw"))
	if err != nil {
		t.Fatalf("open after reload: %v", err)
	}
	sig := crypto.Sign(priv, []byte("data"))
	if !crypto.Verify(got.Public, []byte("data"), sig) {
		t.Fatal("signature from reloaded key should verify")
	}
}

func TestPersistentStoreDeletePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")

	k1 := makeEntry(t, false)
	k2 := makeEntry(t, false)

	store, _ := NewPersistentStore(path, nil)
	store.Put(k1.entry)
	store.Put(k2.entry)
	store.Delete(k1.entry.Fingerprint)

	store2, _ := NewPersistentStore(path, nil)
	if _, err := store2.Get(k1.entry.Fingerprint); !errors.Is(err, ErrKeyNotFound) {
		t.Fatal("deleted key should not survive reload")
	}
	if _, err := store2.Get(k2.entry.Fingerprint); err != nil {
		t.Fatal("second key should survive reload")
	}
}

func TestPersistentStoreAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")

	store, _ := NewPersistentStore(path, nil)
	store.Put(makeEntry(t, false).entry)

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file should not exist after atomic rename")
	}
}

func TestPersistentStoreEmptyReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keyring.json")

	store, err := NewPersistentStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	keys, _ := store.List(0)
	if len(keys) != 0 {
		t.Fatal("new store should be empty")
	}
}

func TestPersistentStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewPersistentStore(path, nil); err == nil {
		t.Fatal("corrupt keyring file should fail to load")
	}
}
