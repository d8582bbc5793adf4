package keyring

import (
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glinharesb/chevron-bridge/internal/crypto"
)

type testKey struct {
	entry *Entry
	priv  ed25519.PrivateKey
}

func makeEntry(t *testing.T, withPrivate bool) testKey {
	t.Helper()
	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	e := &Entry{
		Fingerprint: crypto.Fingerprint(pub),
		Identifier:  "test",
		Bits:        2048,
		Public:      pub,
		LoadedAt:    time.Now(),
	}
	if withPrivate {
		sealed, err := crypto.SealPrivateKey(priv, []byte("pw"), crypto.MinCost)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		e.Sealed = sealed.Sealed
	}
	return testKey{entry: e, priv: priv}
}

func TestPutAndGet(t *testing.T) {
	store := NewMemoryStore()
	k := makeEntry(t, true)

	if err := store.Put(k.entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(k.entry.Fingerprint)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fingerprint != k.entry.Fingerprint {
		t.Fatalf("fingerprint mismatch: got %s", got.Fingerprint)
	}
	if got.Status() != StatusLocked {
		t.Fatalf("expected LOCKED, got %v", got.Status())
	}
}

func TestGetBySuffix(t *testing.T) {
	store := NewMemoryStore()
	k := makeEntry(t, false)
	store.Put(k.entry)

	fp := k.entry.Fingerprint
	got, err := store.Get(fp[len(fp)-16:])
	if err != nil {
		t.Fatalf("get by suffix: %v", err)
	}
	if got.Fingerprint != fp {
		t.Fatalf("fingerprint mismatch: got %s", got.Fingerprint)
	}
}

func TestGetAmbiguousSuffix(t *testing.T) {
	store := NewMemoryStore()
	store.Put(&Entry{Fingerprint: "AAAAAAAAAAAAAAAA12345678"})
	store.Put(&Entry{Fingerprint: "BBBBBBBBBBBBBBBB12345678"})

	if _, err := store.Get("12345678"); !errors.Is(err, ErrAmbiguousKey) {
		t.Fatalf("expected ErrAmbiguousKey, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get("nonexistent"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestPutRequiresFingerprint(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Put(&Entry{}); !errors.Is(err, ErrNoFingerprint) {
		t.Fatalf("expected ErrNoFingerprint, got %v", err)
	}
}

func TestPutMergesPublicIntoPrivate(t *testing.T) {
	store := NewMemoryStore()
	k := makeEntry(t, true)
	store.Put(k.entry)

	public := *k.entry
	public.Sealed = nil
	public.Identifier = "renamed"
	store.Put(&public)

	got, _ := store.Get(k.entry.Fingerprint)
	if got.Sealed == nil {
		t.Fatal("loading a public key must not drop the private key")
	}
	if got.Identifier != "renamed" {
		t.Fatalf("identifier not updated: %s", got.Identifier)
	}
}

func TestUnlock(t *testing.T) {
	store := NewMemoryStore()
	k := makeEntry(t, true)
	store.Put(k.entry)

	if err := store.Unlock(k.entry.Fingerprint, k.priv); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	got, _ := store.Get(k.entry.Fingerprint)
	if got.Status() != StatusUnlocked {
		t.Fatalf("expected UNLOCKED, got %v", got.Status())
	}

	other := makeEntry(t, true)
	if err := store.Unlock(k.entry.Fingerprint, other.priv); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
}

func TestUnlockPublicOnly(t *testing.T) {
	store := NewMemoryStore()
	k := makeEntry(t, false)
	store.Put(k.entry)

	if err := store.Unlock(k.entry.Fingerprint, k.priv); !errors.Is(err, ErrNoPrivateKey) {
		t.Fatalf("expected ErrNoPrivateKey, got %v", err)
	}
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	store := NewMemoryStore()
	k := makeEntry(t, false)
	store.Put(k.entry)

	got, _ := store.Get(k.entry.Fingerprint)
	got.Public[0] ^= 0xff
	got.Identifier = "mutated"

	again, _ := store.Get(k.entry.Fingerprint)
	if again.Identifier != "test" || !again.Public.Equal(k.entry.Public) {
		t.Fatal("mutating a returned entry changed the store")
	}
}

func TestListFiltered(t *testing.T) {
	store := NewMemoryStore()
	locked := makeEntry(t, true)
	public := makeEntry(t, false)
	unlocked := makeEntry(t, true)
	store.Put(locked.entry)
	store.Put(public.entry)
	store.Put(unlocked.entry)
	store.Unlock(unlocked.entry.Fingerprint, unlocked.priv)

	all, _ := store.List(0)
	if len(all) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Fingerprint > all[i].Fingerprint {
			t.Fatal("list should be ordered by fingerprint")
		}
	}

	for status, want := range map[KeyStatus]string{
		StatusLocked:   locked.entry.Fingerprint,
		StatusPublic:   public.entry.Fingerprint,
		StatusUnlocked: unlocked.entry.Fingerprint,
	} {
		keys, _ := store.List(status)
		if len(keys) != 1 || keys[0].Fingerprint != want {
			t.Fatalf("list %v: got %d keys", status, len(keys))
		}
	}
}

func TestDelete(t *testing.T) {
	store := NewMemoryStore()
	k := makeEntry(t, false)
	store.Put(k.entry)

	if err := store.Delete(k.entry.Fingerprint); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(k.entry.Fingerprint); !errors.Is(err, ErrKeyNotFound) {
		t.Fatal("deleted key should not be found")
	}
	if err := store.Delete(k.entry.Fingerprint); !errors.Is(err, ErrKeyNotFound) {
		t.Fatal("double delete should return ErrKeyNotFound")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k := makeEntry(t, false)
			store.Put(k.entry)
			store.Get(k.entry.Fingerprint)
			store.List(0)
		}()
	}
	wg.Wait()

	keys, _ := store.List(0)
	if len(keys) != 50 {
		t.Fatalf("expected 50 keys, got %d", len(keys))
	}
}

func TestKeyStatusString(t *testing.T) {
	tests := []struct {
		s    KeyStatus
		want string
	}{
		{StatusPublic, "PUBLIC"},
		{StatusLocked, "LOCKED"},
		{StatusUnlocked, "UNLOCKED"},
		{KeyStatus(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("KeyStatus(%d).String() = %s, want %s", tt.s, got, tt.want)
		}
	}
}
