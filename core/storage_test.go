package core

import (
	"testing"
)

//-------------------------------------------------------------
// Backend behaviour shared by volatile and durable flavours
//-------------------------------------------------------------

func backends(t *testing.T) map[string]Backend {
	durable, err := NewDurableBackend(t.TempDir())
	if err != nil {
		t.Fatalf("durable backend: %v", err)
	}
	return map[string]Backend{
		"volatile": NewVolatileBackend(),
		"durable":  durable,
	}
}

func TestBackendPutGetDelete(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Put([]byte("k"), []byte("v")); err != nil {
				t.Fatalf("put: %v", err)
			}
			v, err := b.Get([]byte("k"))
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(v) != "v" {
				t.Fatalf("got %q want v", v)
			}
			if err := b.Delete([]byte("k")); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := b.Get([]byte("k")); err != ErrNotFound {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestDurableBackendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	b1, err := NewDurableBackend(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := b1.Put([]byte("persisted"), []byte("value")); err != nil {
		t.Fatalf("put: %v", err)
	}

	b2, err := NewDurableBackend(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, err := b2.Get([]byte("persisted"))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(v) != "value" {
		t.Fatalf("got %q want value", v)
	}
}

//-------------------------------------------------------------
// StorageContext scoping and enumeration
//-------------------------------------------------------------

func TestStorageContextScopesKeysByChainAndNamespace(t *testing.T) {
	backend := NewVolatileBackend()
	chainA := NewStorageContext(AddressFromName("a"), "data", backend)
	chainB := NewStorageContext(AddressFromName("b"), "data", backend)

	if err := chainA.Put([]byte("x"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ok, _ := chainB.Contains([]byte("x")); ok {
		t.Fatalf("chain B should not see chain A's key")
	}
}

func TestStorageContextEnumerateSortedAndScoped(t *testing.T) {
	backend := NewVolatileBackend()
	ctx := NewStorageContext(AddressFromName("chain"), "ns", backend)
	for _, k := range []string{"b", "a", "c"} {
		if err := ctx.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	kv, err := ctx.Enumerate(nil)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(kv) != 3 {
		t.Fatalf("got %d entries want 3", len(kv))
	}
	want := []string{"a", "b", "c"}
	for i, e := range kv {
		if string(e[0]) != want[i] {
			t.Fatalf("entry %d = %q want %q", i, e[0], want[i])
		}
	}
}

//-------------------------------------------------------------
// TypedStore round-trips values through a codec
//-------------------------------------------------------------

func TestTypedStoreRoundTrip(t *testing.T) {
	backend := NewVolatileBackend()
	ctx := NewStorageContext(AddressFromName("chain"), "typed", backend)
	codec := Codec[uint64]{
		Marshal:   func(v uint64) ([]byte, error) { return encodeUint64(v), nil },
		Unmarshal: func(b []byte) (uint64, error) { return decodeUint64(b), nil },
	}
	store := NewTypedStore[uint64](ctx, codec)

	if ok, _ := store.Contains([]byte("n")); ok {
		t.Fatalf("should not contain key before Put")
	}
	if err := store.Put([]byte("n"), 42); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := store.Get([]byte("n"))
	if err != nil || !ok {
		t.Fatalf("get: v=%d ok=%v err=%v", v, ok, err)
	}
	if v != 42 {
		t.Fatalf("got %d want 42", v)
	}
	if err := store.Remove([]byte("n")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := store.Get([]byte("n")); ok {
		t.Fatalf("should not contain key after Remove")
	}
}
