package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
)

// ReflectionConfig configures when Reflection asks a secondary LLM call for
// an operational hypothesis: either on a fixed tool-call cadence, or as soon
// as a cluster of consecutive tool failures is observed.
type ReflectionConfig struct {
	ReflectionInterval int
	FailureClusterSize int
	LLM                model.Client
}

// Reflection requests an operational reflection from a secondary LLM call
// every ReflectionInterval tool calls, or immediately on a failure cluster,
// and records whenever the resulting hypothesis changes from the last one
//.
func Reflection(cfg ReflectionConfig) middleware.Middleware {
	var mu sync.Mutex
	toolCalls := 0
	consecutiveFailures := 0
	hypothesisSwitches := 0
	lastHypothesis := ""

	return middleware.Middleware{
		Name:   "reflection",
		Order:  70,
		Config: failOpen(0),

		AfterToolExec: func(ctx context.Context, call middleware.ToolExecContext, result *tool.Result, meta *middleware.Meta) error {
			if cfg.LLM == nil {
				return nil
			}
			failed := result == nil || !result.Success

			mu.Lock()
			toolCalls++
			if failed {
				consecutiveFailures++
			} else {
				consecutiveFailures = 0
			}
			dueInterval := cfg.ReflectionInterval > 0 && toolCalls%cfg.ReflectionInterval == 0
			dueFailureCluster := cfg.FailureClusterSize > 0 && consecutiveFailures >= cfg.FailureClusterSize
			mu.Unlock()

			if !dueInterval && !dueFailureCluster {
				return nil
			}

			hypothesis, err := reflect(ctx, cfg.LLM, call.ToolName, failed)
			if err != nil || hypothesis == "" {
				return nil
			}

			mu.Lock()
			if lastHypothesis != "" && lastHypothesis != hypothesis {
				hypothesisSwitches++
			}
			lastHypothesis = hypothesis
			if dueFailureCluster {
				consecutiveFailures = 0
			}
			mu.Unlock()

			meta.Set("reflection", "hypothesis", hypothesis)
			meta.Set("reflection", "switches", hypothesisSwitches)
			return nil
		},
	}
}

func reflect(ctx context.Context, llm model.Client, lastTool string, lastCallFailed bool) (string, error) {
	outcome := "succeeded"
	if lastCallFailed {
		outcome = "failed"
	}
	prompt := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{
			Text: fmt.Sprintf("The last tool call (%s) %s. In one sentence, state a hypothesis for the best next approach.", lastTool, outcome),
		}}},
	}
	resp, err := llm.Chat(ctx, prompt, nil, 0, 0)
	if err != nil || resp == nil {
		return "", err
	}
	return resp.Content, nil
}
