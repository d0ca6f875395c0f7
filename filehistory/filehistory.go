// Package filehistory implements File History: per-session snapshots of every filesystem mutation a worker tool
// makes, and rollback by change/file/agent/session/time.
package filehistory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fenwick-ai/agentrt/ids"
)

// Operation classifies the filesystem mutation a Change records.
type Operation string

const (
	OpWrite  Operation = "write"
	OpPatch  Operation = "patch"
	OpDelete Operation = "delete"
)

// FileState captures one side (before/after) of a file mutation.
type FileState struct {
	Content string
	Hash    string
	Size    int64
}

// NewFileState hashes content and returns the FileState for it.
func NewFileState(content []byte) *FileState {
	sum := sha256.Sum256(content)
	return &FileState{Content: string(content), Hash: hex.EncodeToString(sum[:]), Size: int64(len(content))}
}

// Change is one recorded filesystem mutation. Before is nil iff the file was newly created; After is nil
// iff the operation deleted the file.
type Change struct {
	ChangeID  string
	SessionID string
	AgentID   string
	FilePath  string
	Operation Operation
	Timestamp time.Time
	Before    *FileState
	After     *FileState
	Metadata  map[string]any
}

// Store records Changes to an append-only in-memory index and mirrors each
// one to "<baseDir>/sessions/<sessionId>/snapshots/<changeId>.json"
//.
type Store struct {
	mu      sync.Mutex
	baseDir string
	changes []*Change
}

// NewStore returns a Store rooted at baseDir. baseDir is created lazily on
// the first Record call.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// LoadStore rehydrates a Store's in-memory index from the persisted
// "<baseDir>/sessions/*/snapshots/*.json" snapshots on disk, for a process
// (such as the `agent history`/`agent rollback` CLI) that did not itself
// record the Changes it needs to query.
func LoadStore(baseDir string) (*Store, error) {
	s := NewStore(baseDir)
	root := filepath.Join(baseDir, "sessions")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	for _, sessionEntry := range entries {
		if !sessionEntry.IsDir() {
			continue
		}
		snapDir := filepath.Join(root, sessionEntry.Name(), "snapshots")
		files, err := os.ReadDir(snapDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(snapDir, f.Name()))
			if err != nil {
				continue
			}
			var ch Change
			if err := json.Unmarshal(data, &ch); err != nil {
				continue
			}
			s.changes = append(s.changes, &ch)
		}
	}
	sort.SliceStable(s.changes, func(i, j int) bool { return s.changes[i].Timestamp.Before(s.changes[j].Timestamp) })
	return s, nil
}

// Record persists a new Change and returns it.
func (s *Store) Record(_ context.Context, sessionID, agentID, filePath string, op Operation, before, after *FileState, metadata map[string]any) (*Change, error) {
	ch := &Change{
		ChangeID:  ids.NewChangeID(),
		SessionID: sessionID,
		AgentID:   agentID,
		FilePath:  filePath,
		Operation: op,
		Timestamp: time.Now(),
		Before:    before,
		After:     after,
		Metadata:  metadata,
	}
	if err := s.persist(ch); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.changes = append(s.changes, ch)
	s.mu.Unlock()
	return ch, nil
}

func (s *Store) persist(ch *Change) error {
	dir := filepath.Join(s.baseDir, "sessions", ch.SessionID, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ch, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, ch.ChangeID+".json"), data)
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it into place, so a crash mid-write never leaves a half-written snapshot.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ByChangeID looks up a single Change.
func (s *Store) ByChangeID(changeID string) (*Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.changes {
		if c.ChangeID == changeID {
			return c, true
		}
	}
	return nil, false
}

// BySession returns every Change recorded for sessionID, oldest first.
func (s *Store) BySession(sessionID string) []*Change {
	return s.filter(func(c *Change) bool { return c.SessionID == sessionID })
}

// ByFilePath returns every Change recorded against filePath, across all
// sessions, oldest first.
func (s *Store) ByFilePath(filePath string) []*Change {
	return s.filter(func(c *Change) bool { return c.FilePath == filePath })
}

// ByAgent returns every Change recorded by agentID, across all sessions.
func (s *Store) ByAgent(agentID string) []*Change {
	return s.filter(func(c *Change) bool { return c.AgentID == agentID })
}

// After returns every Change recorded strictly after t.
func (s *Store) After(t time.Time) []*Change {
	return s.filter(func(c *Change) bool { return c.Timestamp.After(t) })
}

func (s *Store) filter(pred func(*Change) bool) []*Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Change
	for _, c := range s.changes {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// All returns every recorded Change, oldest first. Used by retention sweeps.
func (s *Store) All() []*Change {
	return s.filter(func(*Change) bool { return true })
}

// Remove deletes a Change from the in-memory index and its persisted JSON
// snapshot, used by retention sweeps.
func (s *Store) Remove(ch *Change) error {
	s.mu.Lock()
	for i, c := range s.changes {
		if c.ChangeID == ch.ChangeID {
			s.changes = append(s.changes[:i], s.changes[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	path := filepath.Join(s.baseDir, "sessions", ch.SessionID, "snapshots", ch.ChangeID+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
