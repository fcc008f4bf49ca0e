package core

// StorageChangeSet is the buffered overlay that makes block application
// atomic: every write a transaction makes during block execution lands here
// first, and is only applied to the parent StorageContext by Execute once
// the whole block has validated. Undo reverses a committed change-set,
// which is how DeleteBlocks rolls the ledger back block by block.

import "bytes"

// journalEntry records one key's before/after values. before is captured
// only the first time the key is touched; subsequent writes to the same key
// update after in place, keeping the journal one entry per touched key.
type journalEntry struct {
	key          []byte
	before       []byte
	beforeExists bool
	after        []byte
	afterExists bool
}

// StorageChangeSet overlays a parent KVStore with an in-memory journal.
// It must not be reused after Execute or Undo.
type StorageChangeSet struct {
	parent KVStore
	order  []string // keys in first-touch order
	byKey  map[string]*journalEntry
	done   bool
}

// NewStorageChangeSet opens a change-set over parent. parent is typically a
// Chain's StorageContext, so all touched keys are scoped to that chain.
func NewStorageChangeSet(parent KVStore) *StorageChangeSet {
	return &StorageChangeSet{parent: parent, byKey: make(map[string]*journalEntry)}
}

func (cs *StorageChangeSet) entryFor(key []byte) *journalEntry {
	k := string(key)
	if e, ok := cs.byKey[k]; ok {
		return e
	}
	before, existed, _ := cs.parent.Get(key)
	e := &journalEntry{key: append([]byte(nil), key...), before: before, beforeExists: existed}
	cs.byKey[k] = e
	cs.order = append(cs.order, k)
	return e
}

// Get reads through the overlay first, falling back to the parent.
func (cs *StorageChangeSet) Get(key []byte) ([]byte, bool, error) {
	if e, ok := cs.byKey[string(key)]; ok {
		if !e.afterExists {
			return nil, false, nil
		}
		return e.after, true, nil
	}
	return cs.parent.Get(key)
}

// Put buffers a write; the parent is untouched until Execute.
func (cs *StorageChangeSet) Put(key, value []byte) error {
	e := cs.entryFor(key)
	e.after = append([]byte(nil), value...)
	e.afterExists = true
	return nil
}

// Delete buffers a deletion; the parent is untouched until Execute.
func (cs *StorageChangeSet) Delete(key []byte) error {
	e := cs.entryFor(key)
	e.after = nil
	e.afterExists = false
	return nil
}

// Contains consults the overlay first, falling back to the parent.
func (cs *StorageChangeSet) Contains(key []byte) (bool, error) {
	if e, ok := cs.byKey[string(key)]; ok {
		return e.afterExists, nil
	}
	return cs.parent.Contains(key)
}

// Enumerate merges overlay entries with the parent's, overlay taking
// precedence, and returns results sorted by key.
func (cs *StorageChangeSet) Enumerate(prefix []byte) ([][2][]byte, error) {
	base, err := cs.parent.Enumerate(prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string][]byte, len(base))
	for _, kv := range base {
		merged[string(kv[0])] = kv[1]
	}
	for k, e := range cs.byKey {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if e.afterExists {
			merged[k] = e.after
		} else {
			delete(merged, k)
		}
	}
	out := make([][2][]byte, 0, len(merged))
	for k, v := range merged {
		out = append(out, [2][]byte{[]byte(k), v})
	}
	sortKV(out)
	return out, nil
}

func sortKV(kv [][2][]byte) {
	for i := 1; i < len(kv); i++ {
		for j := i; j > 0 && bytes.Compare(kv[j-1][0], kv[j][0]) > 0; j-- {
			kv[j-1], kv[j] = kv[j], kv[j-1]
		}
	}
}

// Execute applies the journal to the parent in journal (first-touch) order.
// The change-set must not be used again afterwards.
func (cs *StorageChangeSet) Execute() error {
	if cs.done {
		return newChainException("change-set already executed or undone")
	}
	for _, k := range cs.order {
		e := cs.byKey[k]
		var err error
		if e.afterExists {
			err = cs.parent.Put(e.key, e.after)
		} else if e.beforeExists {
			err = cs.parent.Delete(e.key)
		}
		if err != nil {
			return err
		}
	}
	cs.done = true
	return nil
}

// Undo restores the parent's before-values in reverse journal order,
// inverting a previously Execute'd change-set. The change-set must not be
// used again afterwards.
func (cs *StorageChangeSet) Undo() error {
	for i := len(cs.order) - 1; i >= 0; i-- {
		e := cs.byKey[cs.order[i]]
		var err error
		if e.beforeExists {
			err = cs.parent.Put(e.key, e.before)
		} else {
			err = cs.parent.Delete(e.key)
		}
		if err != nil {
			return err
		}
	}
	cs.done = true
	return nil
}

// IsEmpty reports whether the change-set has no buffered writes.
func (cs *StorageChangeSet) IsEmpty() bool { return len(cs.order) == 0 }
