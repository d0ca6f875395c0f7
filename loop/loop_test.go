package loop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
	"github.com/fenwick-ai/agentrt/trace"
)

// fakeLLM returns a scripted Response for each successive Chat call, holding
// the last one once the script runs out.
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

// fakeExecutor always succeeds with a fixed output.
type fakeExecutor struct{}

func (fakeExecutor) Execute(_ context.Context, name string, input []byte, _ <-chan struct{}) (*tool.Result, error) {
	return &tool.Result{Success: true, Output: []byte(`"ok"`)}, nil
}

func newTestRecorder(t *testing.T) *trace.Recorder {
	t.Helper()
	store := trace.NewMemStore()
	traceID, err := store.Create(context.Background(), "session-1", "worker-1")
	require.NoError(t, err)
	return trace.NewRecorder(store, traceID)
}

func baseConfig(t *testing.T, llm model.Client) Config {
	return Config{
		Run:           middleware.RunRef{RunID: "run-1", SessionID: "session-1", AgentID: "worker-1"},
		LLM:           llm,
		ToolExecutor:  fakeExecutor{},
		Recorder:      newTestRecorder(t),
		Pipeline:      middleware.NewPipeline(),
		MaxIterations: 50,
	}
}

func TestLoopNoToolCallsStops(t *testing.T) {
	llm := &fakeLLM{responses: []*model.Response{{Content: "just thinking out loud"}}}
	l := New(baseConfig(t, llm), nil)
	out := l.Run(context.Background())
	require.Equal(t, StopNoToolCalls, out.StopCode)
	require.Equal(t, "just thinking out loud", out.Answer)
	require.Equal(t, 1, out.Iterations)
}

// An empty-content, no-tool-calls response is not one of the defined stop
// conditions: the loop must keep iterating rather than stop with an empty
// answer, until something else (here max iterations) terminates it.
func TestLoopEmptyResponseWithNoToolCallsContinues(t *testing.T) {
	cfg := baseConfig(t, &fakeLLM{responses: []*model.Response{{Content: ""}}})
	cfg.MaxIterations = 3
	l := New(cfg, nil)
	out := l.Run(context.Background())
	require.Equal(t, StopMaxIterations, out.StopCode)
	require.Equal(t, 4, out.Iterations)
}

func TestLoopReportCompleteExtractsAnswer(t *testing.T) {
	llm := &fakeLLM{responses: []*model.Response{{
		ToolCalls: []model.ToolCall{{ID: "1", Name: tool.Report, Input: []byte(`{"answer":"42"}`)}},
	}}}
	l := New(baseConfig(t, llm), nil)
	out := l.Run(context.Background())
	require.Equal(t, StopReportComplete, out.StopCode)
	require.Equal(t, "42", out.Answer)
}

func TestLoopMaxIterationsStops(t *testing.T) {
	llm := &fakeLLM{responses: []*model.Response{{
		ToolCalls: []model.ToolCall{{ID: "1", Name: "fs:read", Input: []byte(`{"path":"a"}`)}},
	}}}
	cfg := baseConfig(t, llm)
	cfg.MaxIterations = 2
	l := New(cfg, nil)
	out := l.Run(context.Background())
	require.Equal(t, StopMaxIterations, out.StopCode)
	require.Equal(t, 3, out.Iterations)
}

func TestLoopAbortSignalStopsImmediately(t *testing.T) {
	abort := make(chan struct{})
	close(abort)
	llm := &fakeLLM{responses: []*model.Response{{Content: "never reached"}}}
	cfg := baseConfig(t, llm)
	cfg.Abort = abort
	l := New(cfg, nil)
	out := l.Run(context.Background())
	require.Equal(t, StopAbortSignal, out.StopCode)
	require.Equal(t, 0, llm.calls)
}

func TestLoopDetectsRepeatedToolCalls(t *testing.T) {
	llm := &fakeLLM{responses: []*model.Response{{
		ToolCalls: []model.ToolCall{{ID: "1", Name: "fs:read", Input: []byte(`{"path":"same"}`)}},
	}}}
	cfg := baseConfig(t, llm)
	cfg.MaxIterations = 50
	l := New(cfg, nil)
	out := l.Run(context.Background())
	require.Equal(t, StopLoopDetected, out.StopCode)
	require.Equal(t, 6, out.Iterations)
}

func TestLoopHardTokenLimitForcesSynthesis(t *testing.T) {
	llm := &fakeLLM{responses: []*model.Response{
		{
			ToolCalls: []model.ToolCall{{ID: "1", Name: "fs:read", Input: []byte(`{"path":"a"}`)}},
			Usage:     model.Usage{PromptTokens: 10, CompletionTokens: 10},
		},
		{Content: "wrap up"},
	}}
	cfg := baseConfig(t, llm)
	cfg.HardTokenLimit = 10
	cfg.ForceSynthesisOnHardLimit = true
	l := New(cfg, nil)
	out := l.Run(context.Background())
	require.Equal(t, StopHardTokenLimit, out.StopCode)
	require.Equal(t, "wrap up", out.Answer)
	require.Equal(t, 2, llm.calls)
}

func TestLoopOnStopRunsForEveryMiddlewareEvenOnForcedSynthesis(t *testing.T) {
	var aCalled, bCalled bool
	pipeline := middleware.NewPipeline(
		middleware.Middleware{Name: "a", Order: 1, OnStop: func(context.Context, middleware.RunRef, string) error {
			aCalled = true
			return nil
		}},
		middleware.Middleware{Name: "b", Order: 2, OnStop: func(context.Context, middleware.RunRef, string) error {
			bCalled = true
			return nil
		}},
	)
	llm := &fakeLLM{responses: []*model.Response{
		{
			ToolCalls: []model.ToolCall{{ID: "1", Name: "fs:read", Input: []byte(`{"path":"a"}`)}},
			Usage:     model.Usage{PromptTokens: 10, CompletionTokens: 10},
		},
		{Content: "wrap up"},
	}}
	cfg := baseConfig(t, llm)
	cfg.Pipeline = pipeline
	cfg.HardTokenLimit = 10
	cfg.ForceSynthesisOnHardLimit = true
	l := New(cfg, nil)
	out := l.Run(context.Background())
	require.Equal(t, StopHardTokenLimit, out.StopCode)
	require.True(t, aCalled)
	require.True(t, bCalled)
}
