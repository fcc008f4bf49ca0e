package core

// ScriptStore pins large contract scripts by content hash so a transaction
// can reference one by CID instead of carrying it inline, mirroring
// Storage.Pin/Retrieve (storage.go) which fronts an IPFS gateway with a
// disk-backed cache. Here the store is local-only: chain-core scope stops
// at computing and resolving the CID, not at gateway replication.

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"go.uber.org/zap"
)

// ScriptStore pins scripts under a directory, keyed by their CID.
type ScriptStore struct {
	mu  sync.RWMutex
	dir string
}

// NewScriptStore opens (creating if necessary) a script store rooted at dir.
func NewScriptStore(dir string) (*ScriptStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create script store dir: %w", err)
	}
	return &ScriptStore{dir: dir}, nil
}

// Pin computes script's CID, persists it, and returns the CID string a
// Transaction can carry as ScriptCID.
func (s *ScriptStore) Pin(script []byte) (string, error) {
	handle := newScriptHandle()
	sum, err := mh.Sum(script, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash script: %w", err)
	}
	id := cid.NewCidV1(cid.Raw, sum)

	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, id.String())
	if _, err := os.Stat(path); err == nil {
		return id.String(), nil
	}
	if err := os.WriteFile(path, script, 0o644); err != nil {
		return "", fmt.Errorf("write pinned script: %w", err)
	}
	zap.L().Sugar().Infof("pinned script %s (%d bytes, op=%s)", id.String(), len(script), handle)
	return id.String(), nil
}

// Retrieve returns the script previously pinned under id.
func (s *ScriptStore) Retrieve(id string) ([]byte, error) {
	parsed, err := cid.Decode(id)
	if err != nil {
		return nil, fmt.Errorf("decode script cid: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := os.ReadFile(filepath.Join(s.dir, parsed.String()))
	if err != nil {
		return nil, fmt.Errorf("read pinned script: %w", err)
	}
	zap.L().Sugar().Infof("retrieved script %s (%d bytes)", parsed.String(), len(raw))
	return raw, nil
}

// newScriptHandle mints an opaque handle id for an in-flight pin operation;
// Pin includes it in the log line it writes for a newly pinned script.
func newScriptHandle() string {
	return uuid.New().String()
}
