package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenwick-ai/agentrt/tool"
)

func TestRecorderRecordsSuccessfulInvocation(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	traceID, err := store.Create(ctx, "sess-1", "writer")
	require.NoError(t, err)
	rec := NewRecorder(store, traceID)

	res, err := rec.Record(ctx, "fs:write", []byte(`{"path":"a.go"}`), PurposeExecution, func(context.Context) (*tool.Result, error) {
		return &tool.Result{Success: true, Output: []byte("ok"), Metadata: map[string]any{"path": "a.go"}}, nil
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	tr, err := store.Load(ctx, traceID)
	require.NoError(t, err)
	require.Len(t, tr.Invocations, 1)
	inv := tr.Invocations[0]
	require.Equal(t, "fs:write", inv.Tool)
	require.Equal(t, StatusSuccess, inv.Status)
	require.Equal(t, []byte("ok"), []byte(inv.Output))
	require.Len(t, inv.EvidenceRefs, 1)
	require.Equal(t, EvidenceFile, inv.EvidenceRefs[0].Kind)
	require.NotEmpty(t, inv.EvidenceRefs[0].Hash)
	require.Contains(t, inv.Digest.KeyEvents, "file_created")
}

func TestRecorderMarksFailedResultAsStatusFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	traceID, _ := store.Create(ctx, "sess-1", "writer")
	rec := NewRecorder(store, traceID)

	_, err := rec.Record(ctx, "fs:read", nil, PurposeExecution, func(context.Context) (*tool.Result, error) {
		return &tool.Result{Success: false, Error: &tool.ErrorInfo{Code: "not_found", Message: "no such file"}}, nil
	})
	require.NoError(t, err)

	tr, _ := store.Load(ctx, traceID)
	require.Equal(t, StatusFailed, tr.Invocations[0].Status)
	require.Equal(t, "no such file", tr.Invocations[0].Error)
	require.Contains(t, tr.Invocations[0].Digest.KeyEvents, "failed")
}

func TestRecorderMarksCallErrorAsStatusErrorButDoesNotSwallowIt(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	traceID, _ := store.Create(ctx, "sess-1", "writer")
	rec := NewRecorder(store, traceID)

	wantErr := errors.New("executor unreachable")
	res, err := rec.Record(ctx, "shell:exec", nil, PurposeExecution, func(context.Context) (*tool.Result, error) {
		return nil, wantErr
	})
	require.Nil(t, res)
	require.ErrorIs(t, err, wantErr)

	tr, _ := store.Load(ctx, traceID)
	require.Equal(t, StatusError, tr.Invocations[0].Status)
	require.Equal(t, wantErr.Error(), tr.Invocations[0].Error)
}

func TestRecorderShellEvidenceUsesCommandMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	traceID, _ := store.Create(ctx, "sess-1", "writer")
	rec := NewRecorder(store, traceID)

	_, err := rec.Record(ctx, "shell:exec", nil, PurposeExecution, func(context.Context) (*tool.Result, error) {
		return &tool.Result{Success: true, Metadata: map[string]any{"command": "ls -la"}}, nil
	})
	require.NoError(t, err)

	tr, _ := store.Load(ctx, traceID)
	require.Equal(t, EvidenceLog, tr.Invocations[0].EvidenceRefs[0].Kind)
	require.Equal(t, "shell:ls -la", tr.Invocations[0].EvidenceRefs[0].Ref)
	require.Equal(t, 1, tr.Invocations[0].Digest.Counters["commands_executed"])
}

func TestRecorderArgsHashIsRecordedOnPlaceholder(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	traceID, _ := store.Create(ctx, "sess-1", "writer")
	rec := NewRecorder(store, traceID)

	_, err := rec.Record(ctx, "fs:read", []byte(`{"path":"a.go"}`), PurposeVerification, func(context.Context) (*tool.Result, error) {
		return &tool.Result{Success: true}, nil
	})
	require.NoError(t, err)

	tr, _ := store.Load(ctx, traceID)
	want, err := ArgsHash(map[string]any{"path": "a.go"})
	require.NoError(t, err)
	require.Equal(t, want, tr.Invocations[0].ArgsHash)
	require.Equal(t, PurposeVerification, tr.Invocations[0].Purpose)
}
