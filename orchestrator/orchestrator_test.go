package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
	"github.com/fenwick-ai/agentrt/trace"
	"github.com/fenwick-ai/agentrt/verify"
	"github.com/fenwick-ai/agentrt/worker"
)

type scriptedPlanner struct{ plan Plan }

func (p scriptedPlanner) Plan(context.Context, string) (Plan, error) { return p.plan, nil }

type fakeLLM struct{ content string }

func (f fakeLLM) Chat(_ context.Context, _ []model.Message, _ []model.Tool, _ float64, _ int) (*model.Response, error) {
	return &model.Response{
		ToolCalls: []model.ToolCall{{ID: "1", Name: tool.Report, Input: []byte(`{"answer":"` + f.content + `"}`)}},
	}, nil
}

type contentLLM struct{ content string }

func (f contentLLM) Chat(_ context.Context, _ []model.Message, _ []model.Tool, _ float64, _ int) (*model.Response, error) {
	return &model.Response{Content: f.content}, nil
}

type fakeExecutor struct{}

func (fakeExecutor) Execute(_ context.Context, name string, input []byte, _ <-chan struct{}) (*tool.Result, error) {
	return &tool.Result{Success: true, Output: []byte(`"ok"`)}, nil
}

func alwaysValid(context.Context, verify.SpecialistOutput, *trace.Trace) verify.Result {
	return verify.Result{Valid: true, Level: 1}
}

func baseConfig(store trace.Store) Config {
	factory := func(st SubTask, tier model.Tier) worker.Config {
		return worker.Config{
			SessionID:     "session-1",
			SpecialistID:  st.AgentID,
			Tier:          tier,
			LLM:           fakeLLM{content: st.AgentID + "-done"},
			ToolExecutor:  fakeExecutor{},
			TraceStore:    store,
			MaxIterations: 10,
		}
	}
	return Config{
		WorkerFactory:  factory,
		Verify:         alwaysValid,
		WorkerPoolSize: 2,
		MaxRetries:     0,
		DefaultLadder:  []model.Tier{model.TierSmall},
		TraceStore:     store,
		Sleep:          func(context.Context, <-chan struct{}, time.Duration) {},
	}
}

func TestExecuteSingleSubtaskForwardsDirectly(t *testing.T) {
	store := trace.NewMemStore()
	cfg := baseConfig(store)
	cfg.Planner = scriptedPlanner{plan: Plan{SubTasks: []SubTask{{ID: "s1", AgentID: "writer"}}}}

	res := Execute(context.Background(), "run-1", "session-1", cfg, "write a summary")
	require.True(t, res.Success)
	require.Len(t, res.DelegatedResults, 1)
	require.Equal(t, StatusCompleted, res.DelegatedResults[0].Status)
}

func TestExecuteSkipsSubtaskWhenDependencyFails(t *testing.T) {
	store := trace.NewMemStore()
	cfg := baseConfig(store)
	cfg.Verify = func(ctx context.Context, out verify.SpecialistOutput, tr *trace.Trace) verify.Result {
		return verify.Result{Valid: false, Errors: []verify.Error{{Category: verify.CategoryHashMismatch}}}
	}
	cfg.MaxRetries = 0
	cfg.Planner = scriptedPlanner{plan: Plan{SubTasks: []SubTask{
		{ID: "s1", AgentID: "research"},
		{ID: "s2", AgentID: "writer", Dependencies: []string{"s1"}},
	}}}

	res := Execute(context.Background(), "run-1", "session-1", cfg, "task")
	byID := map[string]DelegatedResult{}
	for _, r := range res.DelegatedResults {
		byID[r.SubTaskID] = r
	}
	require.Equal(t, StatusFailed, byID["s1"].Status)
	require.Equal(t, StatusSkipped, byID["s2"].Status)
}

func TestExecuteRunsIndependentSubtasksConcurrently(t *testing.T) {
	store := trace.NewMemStore()
	cfg := baseConfig(store)
	cfg.Planner = scriptedPlanner{plan: Plan{SubTasks: []SubTask{
		{ID: "s1", AgentID: "a"},
		{ID: "s2", AgentID: "b"},
	}}}

	res := Execute(context.Background(), "run-1", "session-1", cfg, "task")
	require.Len(t, res.DelegatedResults, 2)
	for _, r := range res.DelegatedResults {
		require.Equal(t, StatusCompleted, r.Status)
	}
}

func TestExecuteSynthesizesFromSuccessfulResults(t *testing.T) {
	store := trace.NewMemStore()
	cfg := baseConfig(store)
	cfg.SynthesisLLM = contentLLM{content: "final answer"}
	cfg.Planner = scriptedPlanner{plan: Plan{SubTasks: []SubTask{{ID: "s1", AgentID: "writer"}}}}

	res := Execute(context.Background(), "run-1", "session-1", cfg, "task")
	require.Equal(t, "final answer", res.Answer)
}
