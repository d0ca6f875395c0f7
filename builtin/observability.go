package builtin

import (
	"context"
	"time"

	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
)

// Observability emits lifecycle and per-phase timing events into the event
// bus. It runs first (order 0) so its timestamps bracket
// every other middleware's work.
func Observability(bus *events.Bus) middleware.Middleware {
	mark := func(meta *middleware.Meta, key string) {
		meta.Set("observability", key, time.Now())
	}
	elapsed := func(meta *middleware.Meta, key string) int64 {
		v, ok := meta.Get("observability", key)
		if !ok {
			return 0
		}
		t, ok := v.(time.Time)
		if !ok {
			return 0
		}
		return time.Since(t).Milliseconds()
	}
	emit := func(run middleware.RunRef, phase string, durationMS int64) {
		bus.Emit(events.Event{
			Type:      events.TypeStatusChange,
			RunID:     run.RunID,
			SessionID: run.SessionID,
			AgentID:   run.AgentID,
			Payload:   map[string]any{"phase": phase, "durationMs": durationMS},
		})
	}

	return middleware.Middleware{
		Name:   "observability",
		Order:  0,
		Config: failOpen(0),

		BeforeIteration: func(_ context.Context, _ middleware.RunRef, meta *middleware.Meta) (middleware.Action, error) {
			mark(meta, "iteration")
			return middleware.ActionContinue, nil
		},
		AfterIteration: func(_ context.Context, run middleware.RunRef, meta *middleware.Meta) error {
			emit(run, "iteration", elapsed(meta, "iteration"))
			return nil
		},

		BeforeLLMCall: func(_ context.Context, call middleware.LLMCallContext, meta *middleware.Meta) (*middleware.Patch, error) {
			mark(meta, "llm")
			return nil, nil
		},
		AfterLLMCall: func(_ context.Context, call middleware.LLMCallContext, _ *model.Response, meta *middleware.Meta) error {
			emit(call.Run, "llm_call", elapsed(meta, "llm"))
			return nil
		},

		BeforeToolExec: func(_ context.Context, call middleware.ToolExecContext, meta *middleware.Meta) (middleware.ToolDecision, error) {
			meta.Set("observability", "tool:"+call.ToolName, time.Now())
			return middleware.ToolExecute, nil
		},
		AfterToolExec: func(_ context.Context, call middleware.ToolExecContext, _ *tool.Result, meta *middleware.Meta) error {
			var ms int64
			if v, ok := meta.Get("observability", "tool:"+call.ToolName); ok {
				if t, ok := v.(time.Time); ok {
					ms = time.Since(t).Milliseconds()
				}
			}
			emit(call.Run, "tool:"+call.ToolName, ms)
			return nil
		},
	}
}
