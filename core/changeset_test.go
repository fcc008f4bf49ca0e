package core

import "testing"

//-------------------------------------------------------------
// Overlay semantics: reads prefer the journal, parent untouched
// until Execute
//-------------------------------------------------------------

func TestChangeSetReadsOverlayBeforeParent(t *testing.T) {
	backend := NewVolatileBackend()
	parent := NewStorageContext(AddressFromName("chain"), "ns", backend)
	if err := parent.Put([]byte("k"), []byte("parent-value")); err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	cs := NewStorageChangeSet(parent)
	if err := cs.Put([]byte("k"), []byte("overlay-value")); err != nil {
		t.Fatalf("put: %v", err)
	}

	v, ok, err := cs.Get([]byte("k"))
	if err != nil || !ok || string(v) != "overlay-value" {
		t.Fatalf("got v=%q ok=%v err=%v, want overlay-value", v, ok, err)
	}

	pv, _, _ := parent.Get([]byte("k"))
	if string(pv) != "parent-value" {
		t.Fatalf("parent mutated before Execute: %q", pv)
	}
}

func TestChangeSetExecuteThenUndoRestoresParent(t *testing.T) {
	backend := NewVolatileBackend()
	parent := NewStorageContext(AddressFromName("chain"), "ns", backend)
	if err := parent.Put([]byte("k"), []byte("before")); err != nil {
		t.Fatalf("seed parent: %v", err)
	}

	cs := NewStorageChangeSet(parent)
	if err := cs.Put([]byte("k"), []byte("after")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cs.Put([]byte("new-key"), []byte("new-value")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cs.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	v, _, _ := parent.Get([]byte("k"))
	if string(v) != "after" {
		t.Fatalf("parent k = %q want after", v)
	}

	if err := cs.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}

	v, ok, _ := parent.Get([]byte("k"))
	if !ok || string(v) != "before" {
		t.Fatalf("parent k after undo = %q, ok=%v, want before", v, ok)
	}
	if ok, _ := parent.Contains([]byte("new-key")); ok {
		t.Fatalf("new-key should not exist in parent after undo")
	}
}

func TestChangeSetExecuteTwiceFails(t *testing.T) {
	backend := NewVolatileBackend()
	parent := NewStorageContext(AddressFromName("chain"), "ns", backend)
	cs := NewStorageChangeSet(parent)
	_ = cs.Put([]byte("k"), []byte("v"))
	if err := cs.Execute(); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if err := cs.Execute(); err == nil {
		t.Fatalf("second execute on the same instance should fail")
	}
}

func TestChangeSetDeleteRemovesExistingParentKey(t *testing.T) {
	backend := NewVolatileBackend()
	parent := NewStorageContext(AddressFromName("chain"), "ns", backend)
	_ = parent.Put([]byte("k"), []byte("v"))

	cs := NewStorageChangeSet(parent)
	if err := cs.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := cs.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if ok, _ := parent.Contains([]byte("k")); ok {
		t.Fatalf("key should be gone from parent after executing a delete")
	}
}

func TestChangeSetEnumerateMergesOverlayAndParent(t *testing.T) {
	backend := NewVolatileBackend()
	parent := NewStorageContext(AddressFromName("chain"), "ns", backend)
	_ = parent.Put([]byte("a"), []byte("1"))
	_ = parent.Put([]byte("b"), []byte("2"))

	cs := NewStorageChangeSet(parent)
	_ = cs.Put([]byte("c"), []byte("3"))
	_ = cs.Delete([]byte("b"))

	kv, err := cs.Enumerate(nil)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(kv) != 2 {
		t.Fatalf("got %d entries want 2 (a, c)", len(kv))
	}
	if string(kv[0][0]) != "a" || string(kv[1][0]) != "c" {
		t.Fatalf("unexpected enumerate result: %v", kv)
	}
}
