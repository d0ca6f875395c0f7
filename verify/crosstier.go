package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/trace"
)

// CrossTierResult is the scored assessment of a synthesized answer, produced
// by an LLM call one tier above the worker that produced it.
type CrossTierResult struct {
	Confidence         float64
	Completeness       float64
	Gaps               []string
	UnverifiedMentions []string
}

// CrossTier asks llm to score answer against the evidence recorded in tr,
// listing mentioned entities (files, packages, classes) it cannot confirm
// present in the tool-trace evidence as UnverifiedMentions.
func CrossTier(ctx context.Context, llm model.Client, answer string, tr *trace.Trace) (CrossTierResult, error) {
	prompt := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: buildCrossTierPrompt(answer, tr)}}},
	}
	resp, err := llm.Chat(ctx, prompt, nil, 0, 0)
	if err != nil {
		return CrossTierResult{}, err
	}
	if resp == nil {
		return CrossTierResult{}, nil
	}
	return parseCrossTierResponse(resp.Content), nil
}

func buildCrossTierPrompt(answer string, tr *trace.Trace) string {
	var evidence strings.Builder
	for _, inv := range tr.Invocations {
		fmt.Fprintf(&evidence, "- %s (%s)\n", inv.Tool, inv.Status)
		for _, ev := range inv.EvidenceRefs {
			fmt.Fprintf(&evidence, "  evidence: %s %s\n", ev.Kind, ev.Ref)
		}
	}
	return "Score the following answer against the recorded tool-trace evidence.\n" +
		"Respond with JSON: {\"confidence\":0-1,\"completeness\":0-1,\"gaps\":[...],\"unverifiedMentions\":[...]}.\n\n" +
		"Answer:\n" + answer + "\n\nEvidence:\n" + evidence.String()
}

func parseCrossTierResponse(content string) CrossTierResult {
	var payload struct {
		Confidence         float64  `json:"confidence"`
		Completeness       float64  `json:"completeness"`
		Gaps               []string `json:"gaps"`
		UnverifiedMentions []string `json:"unverifiedMentions"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return CrossTierResult{Gaps: []string{"cross-tier response was not valid JSON"}}
	}
	return CrossTierResult{
		Confidence:         payload.Confidence,
		Completeness:       payload.Completeness,
		Gaps:               payload.Gaps,
		UnverifiedMentions: payload.UnverifiedMentions,
	}
}
