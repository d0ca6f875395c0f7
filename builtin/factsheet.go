package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
)

// Fact is one entry in a worker's running Working Memory block.
type Fact struct {
	Kind   string
	Text   string
	Source string
}

// FactSheetConfig configures periodic LLM summarization and disk
// persistence for the FactSheet middleware.
type FactSheetConfig struct {
	// SummarizationInterval runs a summarization call (inline, from
	// AfterIteration) every N iterations. Zero disables summarization (heuristic extraction still
	// runs).
	SummarizationInterval int
	LLM                   model.Client

	// PersistDir, when non-empty, writes the fact sheet to
	// "<PersistDir>/<runID>.json" when the run stops.
	PersistDir string
}

// FactSheet extracts heuristic facts from tool results as they arrive,
// periodically asks a secondary LLM call to summarize them, and renders a
// Working Memory block into every subsequent LLM call's system context
//.
func FactSheet(cfg FactSheetConfig) middleware.Middleware {
	var mu sync.Mutex
	var facts []Fact
	iteration := 0

	addFact := func(f Fact) {
		mu.Lock()
		facts = append(facts, f)
		mu.Unlock()
	}

	render := func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(facts) == 0 {
			return ""
		}
		var b strings.Builder
		b.WriteString("Working Memory:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Kind, f.Text)
		}
		return b.String()
	}

	return middleware.Middleware{
		Name:   "fact_sheet",
		Order:  20,
		Config: failOpen(0),

		AfterToolExec: func(_ context.Context, call middleware.ToolExecContext, result *tool.Result, _ *middleware.Meta) error {
			if result == nil || !result.Success {
				return nil
			}
			addFact(Fact{Kind: "tool_result", Text: fmt.Sprintf("%s succeeded", call.ToolName), Source: call.ToolName})
			return nil
		},

		AfterIteration: func(ctx context.Context, _ middleware.RunRef, _ *middleware.Meta) error {
			iteration++
			if cfg.SummarizationInterval <= 0 || cfg.LLM == nil {
				return nil
			}
			if iteration%cfg.SummarizationInterval != 0 {
				return nil
			}
			summary, err := summarizeFacts(ctx, cfg.LLM, render())
			if err != nil || summary == "" {
				return nil
			}
			addFact(Fact{Kind: "summary", Text: summary, Source: "llm"})
			return nil
		},

		BeforeLLMCall: func(_ context.Context, call middleware.LLMCallContext, _ *middleware.Meta) (*middleware.Patch, error) {
			block := render()
			if block == "" {
				return nil, nil
			}
			sysMsg := model.Message{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: block}}}
			prefixed := append([]model.Message{sysMsg}, call.Messages...)
			return &middleware.Patch{Messages: prefixed}, nil
		},

		OnStop: func(_ context.Context, run middleware.RunRef, _ string) error {
			if cfg.PersistDir == "" {
				return nil
			}
			mu.Lock()
			snapshot := append([]Fact(nil), facts...)
			mu.Unlock()
			return persistFacts(cfg.PersistDir, run.RunID, snapshot)
		},
	}
}

func summarizeFacts(ctx context.Context, llm model.Client, workingMemory string) (string, error) {
	prompt := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{
			Text: "Summarize the following working memory into at most three sentences:\n\n" + workingMemory,
		}}},
	}
	resp, err := llm.Chat(ctx, prompt, nil, 0, 0)
	if err != nil || resp == nil {
		return "", err
	}
	return resp.Content, nil
}

func persistFacts(dir, runID string, facts []Fact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, runID+".json"), data, 0o644)
}
