package builtin

import (
	"context"
	"sync"

	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
)

// ContextFilterConfig bounds tool-output size and enables call-result dedup.
type ContextFilterConfig struct {
	// MaxOutputLength truncates a tool result's output past this many bytes,
	// appending "... truncated". Zero disables truncation.
	MaxOutputLength int
}

// WindowMessages trims msgs to at most window entries, counting from the
// tail, without ever starting the window on a tool-result message: an
// assistant message carrying tool calls must never be separated from the
// tool-result messages that answer it. It is a plain function rather than a
// middleware patch, since BeforeLLMCall patches merge field-wise with only
// the highest-order middleware's Messages value surviving. No component in
// this module calls it; the worker and loop send the full message history.
func WindowMessages(msgs []model.Message, window int) []model.Message {
	if window <= 0 || len(msgs) <= window {
		return msgs
	}
	cut := len(msgs) - window
	for cut < len(msgs) && isToolResultMessage(msgs[cut]) {
		cut++
	}
	return msgs[cut:]
}

func isToolResultMessage(m model.Message) bool {
	for _, p := range m.Parts {
		if _, ok := p.(model.ToolResultPart); ok {
			return true
		}
	}
	return false
}

// ContextFilter truncates oversized tool outputs and deduplicates repeated
// tool calls within a run: a second call with the same (toolName,
// canonical(args)) signature is skipped and its prior successful result is
// substituted rather than re-executed.
func ContextFilter(cfg ContextFilterConfig) middleware.Middleware {
	var mu sync.Mutex
	cache := make(map[string]*tool.Result)

	return middleware.Middleware{
		Name:   "context_filter",
		Order:  15,
		Config: failOpen(0),

		BeforeToolExec: func(_ context.Context, call middleware.ToolExecContext, meta *middleware.Meta) (middleware.ToolDecision, error) {
			sig := signature(call.ToolName, call.Args)
			mu.Lock()
			cached, ok := cache[sig]
			mu.Unlock()
			if !ok {
				return middleware.ToolExecute, nil
			}
			meta.Set("toolresult", sig, cached)
			return middleware.ToolSkip, nil
		},

		AfterToolExec: func(_ context.Context, call middleware.ToolExecContext, result *tool.Result, _ *middleware.Meta) error {
			if result == nil {
				return nil
			}
			sig := signature(call.ToolName, call.Args)
			if result.Success {
				mu.Lock()
				cache[sig] = result
				mu.Unlock()
			}
			if cfg.MaxOutputLength > 0 && len(result.Output) > cfg.MaxOutputLength {
				truncated := append([]byte(nil), result.Output[:cfg.MaxOutputLength]...)
				result.Output = append(truncated, []byte("... truncated")...)
			}
			return nil
		},
	}
}
