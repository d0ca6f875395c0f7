package filehistory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordPersistsSnapshotJSON(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	ch, err := s.Record(context.Background(), "sess-1", "writer", "notes.md", OpWrite, nil, NewFileState([]byte("hello")), nil)
	require.NoError(t, err)
	require.Nil(t, ch.Before)
	require.Equal(t, "hello", ch.After.Content)

	path := filepath.Join(dir, "sessions", "sess-1", "snapshots", ch.ChangeID+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Change
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, ch.ChangeID, decoded.ChangeID)
	require.Equal(t, "notes.md", decoded.FilePath)
}

func TestLoadStoreRehydratesFromDisk(t *testing.T) {
	dir := t.TempDir()
	writer := NewStore(dir)
	_, err := writer.Record(context.Background(), "sess-1", "a", "notes.md", OpWrite, nil, NewFileState([]byte("v1")), nil)
	require.NoError(t, err)

	reader, err := LoadStore(dir)
	require.NoError(t, err)
	require.Len(t, reader.All(), 1)
	require.Equal(t, "notes.md", reader.All()[0].FilePath)
}

func TestLoadStoreOnMissingDirReturnsEmptyStore(t *testing.T) {
	reader, err := LoadStore(t.TempDir() + "/does-not-exist")
	require.NoError(t, err)
	require.Empty(t, reader.All())
}

func TestByFilePathOrdersAcrossSessions(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.Record(context.Background(), "sess-1", "a", "shared.txt", OpWrite, nil, NewFileState([]byte("v1")), nil)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), "sess-2", "b", "shared.txt", OpWrite, NewFileState([]byte("v1")), NewFileState([]byte("v2")), nil)
	require.NoError(t, err)

	changes := s.ByFilePath("shared.txt")
	require.Len(t, changes, 2)
	require.Equal(t, "sess-1", changes[0].SessionID)
	require.Equal(t, "sess-2", changes[1].SessionID)
}

func TestPlanRollbackByChangeIDRestoresBefore(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	before := NewFileState([]byte("v1"))
	ch, err := s.Record(context.Background(), "sess-1", "a", "notes.md", OpWrite, before, NewFileState([]byte("v2")), nil)
	require.NoError(t, err)

	plan, err := s.PlanRollback(Target{ChangeID: ch.ChangeID})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	require.False(t, plan.Actions[0].Delete)
	require.Equal(t, "v1", plan.Actions[0].Restore.Content)
}

func TestPlanRollbackByChangeIDWithNoBeforeDeletes(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	ch, err := s.Record(context.Background(), "sess-1", "a", "new.md", OpWrite, nil, NewFileState([]byte("v1")), nil)
	require.NoError(t, err)

	plan, err := s.PlanRollback(Target{ChangeID: ch.ChangeID})
	require.NoError(t, err)
	require.True(t, plan.Actions[0].Delete)
}

func TestPlanRollbackByFilePathUsesEarliestBefore(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.Record(context.Background(), "sess-1", "a", "notes.md", OpWrite, NewFileState([]byte("v0")), NewFileState([]byte("v1")), nil)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), "sess-1", "a", "notes.md", OpWrite, NewFileState([]byte("v1")), NewFileState([]byte("v2")), nil)
	require.NoError(t, err)

	plan, err := s.PlanRollback(Target{FilePath: "notes.md"})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	require.Equal(t, "v0", plan.Actions[0].Restore.Content)
}

func TestPlanRollbackByFilePathAndAfterRestoresEarliestAfterCutoff(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.Record(context.Background(), "sess-1", "a", "notes.md", OpWrite, NewFileState([]byte("v0")), NewFileState([]byte("v1")), nil)
	require.NoError(t, err)

	cutoff := time.Now()
	time.Sleep(time.Millisecond)

	_, err = s.Record(context.Background(), "sess-1", "a", "notes.md", OpWrite, NewFileState([]byte("v1")), NewFileState([]byte("v2")), nil)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), "sess-1", "a", "notes.md", OpWrite, NewFileState([]byte("v2")), NewFileState([]byte("v3")), nil)
	require.NoError(t, err)

	plan, err := s.PlanRollback(Target{FilePath: "notes.md", After: &cutoff})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)
	require.Equal(t, "v1", plan.Actions[0].Restore.Content)
}

func TestPlanRollbackBySessionGroupsPerFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.Record(context.Background(), "sess-1", "a", "a.md", OpWrite, NewFileState([]byte("a0")), NewFileState([]byte("a1")), nil)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), "sess-1", "a", "b.md", OpWrite, nil, NewFileState([]byte("b1")), nil)
	require.NoError(t, err)

	plan, err := s.PlanRollback(Target{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)
}

func TestApplyRollbackRestoresFileOnDisk(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("v2"), 0o644))

	dir := t.TempDir()
	s := NewStore(dir)
	ch, err := s.Record(context.Background(), "sess-1", "a", "notes.md", OpWrite, NewFileState([]byte("v1")), NewFileState([]byte("v2")), nil)
	require.NoError(t, err)

	plan, err := s.PlanRollback(Target{ChangeID: ch.ChangeID})
	require.NoError(t, err)
	require.NoError(t, ApplyRollback(root, plan))

	data, err := os.ReadFile(filepath.Join(root, "notes.md"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(data))
}

func TestApplyRollbackRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	plan := Plan{Actions: []Action{{FilePath: "../../etc/passwd", Restore: NewFileState([]byte("x"))}}}
	require.Error(t, ApplyRollback(root, plan))
}

func TestSweepRemovesChangesOlderThanMaxAge(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	ch, err := s.Record(context.Background(), "sess-1", "a", "notes.md", OpWrite, nil, NewFileState([]byte("v1")), nil)
	require.NoError(t, err)
	ch.Timestamp = time.Now().AddDate(0, 0, -10)

	removed, err := s.Sweep(RetentionPolicy{MaxAgeDays: 1})
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Empty(t, s.All())
}

func TestSweepKeepsOnlyMostRecentSessions(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, err := s.Record(context.Background(), "old-sess", "a", "notes.md", OpWrite, nil, NewFileState([]byte("v1")), nil)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = s.Record(context.Background(), "new-sess", "a", "notes.md", OpWrite, nil, NewFileState([]byte("v1")), nil)
	require.NoError(t, err)

	removed, err := s.Sweep(RetentionPolicy{MaxSessions: 1})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	remaining := s.All()
	require.Len(t, remaining, 1)
	require.Equal(t, "new-sess", remaining[0].SessionID)
}
