package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
	"github.com/fenwick-ai/agentrt/trace"
)

type fakeLLM struct {
	calls     int
	responses []*model.Response
}

func (f *fakeLLM) Chat(_ context.Context, _ []model.Message, _ []model.Tool, _ float64, _ int) (*model.Response, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], nil
}

type fakeExecutor struct{}

func (fakeExecutor) Execute(_ context.Context, name string, input []byte, _ <-chan struct{}) (*tool.Result, error) {
	return &tool.Result{Success: true, Output: []byte(`"ok"`)}, nil
}

func baseConfig(llm model.Client) Config {
	return Config{
		SessionID:     "session-1",
		SpecialistID:  "worker-1",
		Tier:          model.TierSmall,
		LLM:           llm,
		ToolExecutor:  fakeExecutor{},
		TraceStore:    trace.NewMemStore(),
		MaxIterations: 10,
	}
}

func TestExecuteReportCompleteBuildsOutput(t *testing.T) {
	llm := &fakeLLM{responses: []*model.Response{{
		ToolCalls: []model.ToolCall{{ID: "1", Name: tool.Report, Input: []byte(`{"answer":"done"}`)}},
	}}}
	out := Execute(context.Background(), "run-1", baseConfig(llm), "do the thing")
	require.NoError(t, out.Err)
	require.False(t, out.Escalate)
	require.Equal(t, "done", out.Output.Summary)
	require.NotEmpty(t, out.Output.TraceRef)
}

func TestExecutePropagatesTraceCreateFailure(t *testing.T) {
	cfg := baseConfig(&fakeLLM{})
	cfg.TraceStore = failingStore{}
	out := Execute(context.Background(), "run-1", cfg, "task")
	require.Error(t, out.Err)
}

func TestExecuteDeniesToolOutsidePermissions(t *testing.T) {
	llm := &fakeLLM{responses: []*model.Response{
		{ToolCalls: []model.ToolCall{{ID: "1", Name: "shell:exec", Input: []byte(`{"cmd":"rm -rf /"}`)}}},
		{ToolCalls: []model.ToolCall{{ID: "2", Name: tool.Report, Input: []byte(`{"answer":"blocked"}`)}}},
	}}
	cfg := baseConfig(llm)
	cfg.Permissions = tool.Permissions{Deny: []string{"shell:*"}}
	out := Execute(context.Background(), "run-1", cfg, "task")
	require.Equal(t, "blocked", out.Output.Summary)
}

func TestExecuteNoToolCallsCompletesTrace(t *testing.T) {
	llm := &fakeLLM{responses: []*model.Response{{Content: "thinking without tools"}}}
	cfg := baseConfig(llm)
	store := cfg.TraceStore
	out := Execute(context.Background(), "run-1", cfg, "task")
	require.False(t, out.Escalate)
	require.NoError(t, out.Err)
	require.Equal(t, "thinking without tools", out.Output.Summary)

	traceID, ok := trace.ParseRef(out.Output.TraceRef)
	require.True(t, ok)
	tr, err := store.Load(context.Background(), traceID)
	require.NoError(t, err)
	require.NotNil(t, tr.CompletedAt)
}

type failingStore struct{ trace.Store }

func (failingStore) Create(context.Context, string, string) (string, error) {
	return "", assertErr
}

var assertErr = errTraceCreate{}

type errTraceCreate struct{}

func (errTraceCreate) Error() string { return "trace create failed" }
