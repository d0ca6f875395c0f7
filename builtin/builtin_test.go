package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
)

func TestBudgetStopsAtHardLimit(t *testing.T) {
	mw := Budget(BudgetConfig{MaxTokens: 100, SoftLimitRatio: 0.5, HardLimitRatio: 1.0})
	meta := middleware.NewMeta()
	meta.Set("loop", "tokensUsed", 150)
	action, err := mw.BeforeIteration(context.Background(), middleware.RunRef{}, meta)
	require.NoError(t, err)
	require.Equal(t, middleware.ActionStop, action)
}

func TestBudgetInjectsNudgeOnceAtSoftLimit(t *testing.T) {
	mw := Budget(BudgetConfig{MaxTokens: 100, SoftLimitRatio: 0.5, HardLimitRatio: 1.0})
	meta := middleware.NewMeta()
	meta.Set("loop", "tokensUsed", 60)
	_, err := mw.BeforeIteration(context.Background(), middleware.RunRef{}, meta)
	require.NoError(t, err)

	call := middleware.LLMCallContext{Messages: []model.Message{{Role: model.RoleUser}}}
	patch, err := mw.BeforeLLMCall(context.Background(), call, meta)
	require.NoError(t, err)
	require.NotNil(t, patch)
	require.Len(t, patch.Messages, 2)

	// A second call within the same run must not inject a second nudge.
	patch2, err := mw.BeforeLLMCall(context.Background(), call, meta)
	require.NoError(t, err)
	require.Nil(t, patch2)
}

func TestContextFilterDedupesRepeatedCalls(t *testing.T) {
	mw := ContextFilter(ContextFilterConfig{})
	meta := middleware.NewMeta()
	call := middleware.ToolExecContext{ToolName: "fs:read", Args: []byte(`{"path":"a"}`)}

	decision, err := mw.BeforeToolExec(context.Background(), call, meta)
	require.NoError(t, err)
	require.Equal(t, middleware.ToolExecute, decision)

	result := &tool.Result{Success: true, Output: []byte(`"contents"`)}
	require.NoError(t, mw.AfterToolExec(context.Background(), call, result, meta))

	decision2, err := mw.BeforeToolExec(context.Background(), call, meta)
	require.NoError(t, err)
	require.Equal(t, middleware.ToolSkip, decision2)

	cached, ok := meta.Get("toolresult", signature(call.ToolName, call.Args))
	require.True(t, ok)
	require.Equal(t, result, cached)
}

func TestContextFilterTruncatesOversizedOutput(t *testing.T) {
	mw := ContextFilter(ContextFilterConfig{MaxOutputLength: 4})
	call := middleware.ToolExecContext{ToolName: "shell:exec"}
	result := &tool.Result{Success: true, Output: []byte("0123456789")}
	require.NoError(t, mw.AfterToolExec(context.Background(), call, result, middleware.NewMeta()))
	require.Contains(t, string(result.Output), "truncated")
	require.Equal(t, "0123... truncated", string(result.Output))
}

func TestWindowMessagesKeepsToolResultPairs(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleUser},
		{Role: model.RoleAssistant, Parts: []model.Part{model.ToolUsePart{ID: "1", Name: "fs:read"}}},
		{Role: model.RoleUser, Parts: []model.Part{model.ToolResultPart{ToolUseID: "1"}}},
		{Role: model.RoleAssistant},
	}
	windowed := WindowMessages(msgs, 2)
	// A naive tail-window of 2 would start on the ToolResultPart message,
	// orphaning it from its ToolUsePart; the pair-aware cut must advance.
	require.NotEqual(t, model.ToolResultPart{ToolUseID: "1"}, firstPart(windowed[0]))
}

func TestProgressEscalatesWhenConfigured(t *testing.T) {
	mw := Progress(ProgressConfig{EscalateOnStuck: true})
	meta := middleware.NewMeta()
	meta.Set("progress", "stuck", true)
	action, err := mw.BeforeIteration(context.Background(), middleware.RunRef{}, meta)
	require.NoError(t, err)
	require.Equal(t, middleware.ActionEscalate, action)
}

func TestProgressDefaultDoesNotEscalate(t *testing.T) {
	mw := Progress(ProgressConfig{})
	meta := middleware.NewMeta()
	meta.Set("progress", "stuck", true)
	action, err := mw.BeforeIteration(context.Background(), middleware.RunRef{}, meta)
	require.NoError(t, err)
	require.Equal(t, middleware.ActionContinue, action)
}

func firstPart(m model.Message) model.Part {
	if len(m.Parts) == 0 {
		return nil
	}
	return m.Parts[0]
}
