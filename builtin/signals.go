package builtin

import (
	"context"
	"strings"

	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/tool"
)

// FeatureFlag gates one of the signal-only middlewares below. Each is
// fail-open and never returns a non-continue Action, non-execute
// ToolDecision, or a Patch:, "emit signals but never alter
// correctness".
type FeatureFlag func(ctx context.Context, run middleware.RunRef) bool

// Analytics emits a tool-usage counter event after every tool call,
// feature-flagged since most deployments do not want the extra event
// volume.
func Analytics(bus *events.Bus, enabled FeatureFlag) middleware.Middleware {
	return middleware.Middleware{
		Name:    "analytics",
		Order:   90,
		Config:  failOpen(0),
		Enabled: enabled,
		AfterToolExec: func(_ context.Context, call middleware.ToolExecContext, result *tool.Result, _ *middleware.Meta) error {
			success := result != nil && result.Success
			bus.Emit(events.Event{
				Type:      events.TypeStatusChange,
				RunID:     call.Run.RunID,
				SessionID: call.Run.SessionID,
				AgentID:   call.Run.AgentID,
				Payload:   map[string]any{"signal": "analytics.tool_call", "tool": call.ToolName, "success": success},
			})
			return nil
		},
	}
}

// SearchSignal records which tool calls were search-family lookups (tool
// names with a "search:" namespace) so downstream analytics can measure
// search-vs-direct-action ratios.
func SearchSignal(enabled FeatureFlag) middleware.Middleware {
	return middleware.Middleware{
		Name:    "search_signal",
		Order:   91,
		Config:  failOpen(0),
		Enabled: enabled,
		AfterToolExec: func(_ context.Context, call middleware.ToolExecContext, _ *tool.Result, meta *middleware.Meta) error {
			if !strings.HasPrefix(call.ToolName, "search:") {
				return nil
			}
			count, _ := meta.Get("signals", "searchCalls")
			n, _ := count.(int)
			meta.Set("signals", "searchCalls", n+1)
			return nil
		},
	}
}

// TodoSync mirrors the output of the most recent successful "todo:*" tool
// call into meta so a UI surface can show live task-list state without
// polling the trace store.
func TodoSync(enabled FeatureFlag) middleware.Middleware {
	return middleware.Middleware{
		Name:    "todo_sync",
		Order:   92,
		Config:  failOpen(0),
		Enabled: enabled,
		AfterToolExec: func(_ context.Context, call middleware.ToolExecContext, result *tool.Result, meta *middleware.Meta) error {
			if !strings.HasPrefix(call.ToolName, "todo:") {
				return nil
			}
			if result == nil || !result.Success {
				return nil
			}
			meta.Set("signals", "lastTodoSync", string(result.Output))
			return nil
		},
	}
}

// TaskClassifier tags the run with a coarse heuristic task type inferred
// from the first tool call's namespace, for analytics segmentation only.
func TaskClassifier(enabled FeatureFlag) middleware.Middleware {
	return middleware.Middleware{
		Name:    "task_classifier",
		Order:   93,
		Config:  failOpen(0),
		Enabled: enabled,
		BeforeToolExec: func(_ context.Context, call middleware.ToolExecContext, meta *middleware.Meta) (middleware.ToolDecision, error) {
			if _, ok := meta.Get("signals", "taskType"); ok {
				return middleware.ToolExecute, nil
			}
			meta.Set("signals", "taskType", classify(call.ToolName))
			return middleware.ToolExecute, nil
		},
	}
}

func classify(toolName string) string {
	switch {
	case strings.HasPrefix(toolName, "fs:"):
		return "filesystem"
	case strings.HasPrefix(toolName, "shell:"):
		return "shell"
	case strings.HasPrefix(toolName, "search:"):
		return "research"
	default:
		return "other"
	}
}
