package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/trace"
	"github.com/fenwick-ai/agentrt/verify"
)

// synthesize feeds the successful delegated results to the synthesis LLM
// call and scores the result with a cross-tier verifier call. It returns an empty answer without error when there is nothing
// successful to synthesize from.
func synthesize(ctx context.Context, cfg Config, task string, successful []DelegatedResult) (string, verify.CrossTierResult, error) {
	if len(successful) == 0 {
		return "", verify.CrossTierResult{}, nil
	}
	if cfg.SynthesisLLM == nil {
		return successful[0].Outcome.Output.Summary, verify.CrossTierResult{}, nil
	}

	prompt := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: buildSynthesisPrompt(task, successful)}}},
	}
	resp, err := cfg.SynthesisLLM.Chat(ctx, prompt, nil, 0, 0)
	if err != nil {
		return "", verify.CrossTierResult{}, err
	}
	answer := ""
	if resp != nil {
		answer = resp.Content
	}

	if cfg.CrossTierLLM == nil {
		return answer, verify.CrossTierResult{}, nil
	}
	merged := mergeTraces(ctx, cfg, successful)
	crossTier, err := verify.CrossTier(ctx, cfg.CrossTierLLM, answer, merged)
	if err != nil {
		return answer, verify.CrossTierResult{}, nil
	}
	return answer, crossTier, nil
}

func buildSynthesisPrompt(task string, successful []DelegatedResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Synthesize one final answer for the task:\n%s\n\nDelegated results:\n", task)
	for _, r := range successful {
		fmt.Fprintf(&b, "- [%s/%s] %s\n", r.AgentID, r.SubTaskID, r.Outcome.Output.Summary)
	}
	return b.String()
}

// mergeTraces loads each successful result's trace and concatenates their
// invocations into one synthetic trace so the cross-tier verifier can score
// the combined answer against every subtask's evidence.
func mergeTraces(ctx context.Context, cfg Config, successful []DelegatedResult) *trace.Trace {
	merged := &trace.Trace{}
	if cfg.TraceStore == nil {
		return merged
	}
	for _, r := range successful {
		tr, err := cfg.TraceStore.Load(ctx, r.Outcome.Output.TraceRef)
		if err != nil || tr == nil {
			continue
		}
		merged.Invocations = append(merged.Invocations, tr.Invocations...)
	}
	return merged
}
