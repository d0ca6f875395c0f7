// Package middleware implements the Middleware Pipeline: an ordered set of pre/post hooks around iteration, LLM
// call, and tool call, with fail-open/fail-closed policy and per-hook
// timeouts.
package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/tool"
)

// Action is the verdict returned from beforeIteration.
type Action string

const (
	ActionContinue Action = "continue"
	ActionStop     Action = "stop"
	ActionEscalate Action = "escalate"
)

// ToolDecision is the verdict returned from beforeToolExec.
type ToolDecision string

const (
	ToolExecute ToolDecision = "execute"
	ToolSkip    ToolDecision = "skip"
)

// FailPolicy governs what happens when a hook errors or times out.
type FailPolicy string

const (
	FailOpen   FailPolicy = "fail-open"
	FailClosed FailPolicy = "fail-closed"
)

// Config declares a middleware's static behavior.
type Config struct {
	FailPolicy FailPolicy
	TimeoutMS  int // 0 = unlimited
}

// Patch carries optional overrides a middleware wants applied to the next
// LLM call. Fields merge by shallow field-wise overwrite across middlewares
// in ascending order, last wins.
type Patch struct {
	Messages    []model.Message
	Tools       []model.Tool
	Temperature *float64
	Model       string
}

// Merge overwrites any field set on p with the corresponding field from
// next, when next sets it (non-nil/non-empty).
func (p Patch) Merge(next Patch) Patch {
	out := p
	if len(next.Messages) > 0 {
		out.Messages = next.Messages
	}
	if len(next.Tools) > 0 {
		out.Tools = next.Tools
	}
	if next.Temperature != nil {
		out.Temperature = next.Temperature
	}
	if next.Model != "" {
		out.Model = next.Model
	}
	return out
}

// RunRef is the minimal run identity passed to lifecycle hooks.
type RunRef struct {
	RunID     string
	SessionID string
	AgentID   string
}

// ToolExecContext is passed to beforeToolExec/afterToolExec.
type ToolExecContext struct {
	Run        RunRef
	ToolName   string
	Args       []byte
	Iteration  int
}

// LLMCallContext is passed to beforeLLMCall/afterLLMCall.
type LLMCallContext struct {
	Run         RunRef
	Iteration   int
	Messages    []model.Message
	Tools       []model.Tool
	Temperature float64
}

type (
	// Middleware declares a name, ordering, config, an optional enablement
	// gate, and any subset of lifecycle hooks. All hooks are optional; a nil
	// hook is treated as absent.
	Middleware struct {
		Name    string
		Order   int
		Config  Config
		Enabled func(ctx context.Context, run RunRef) bool

		OnStart     func(ctx context.Context, run RunRef) error
		OnStop      func(ctx context.Context, run RunRef, reason string) error
		OnComplete  func(ctx context.Context, run RunRef) error

		BeforeIteration func(ctx context.Context, run RunRef, meta *Meta) (Action, error)
		AfterIteration  func(ctx context.Context, run RunRef, meta *Meta) error

		BeforeLLMCall func(ctx context.Context, call LLMCallContext, meta *Meta) (*Patch, error)
		AfterLLMCall  func(ctx context.Context, call LLMCallContext, result *model.Response, meta *Meta) error

		BeforeToolExec func(ctx context.Context, call ToolExecContext, meta *Meta) (ToolDecision, error)
		AfterToolExec  func(ctx context.Context, call ToolExecContext, result *tool.Result, meta *Meta) error
	}
)

// Meta is the mutable, namespaced cross-middleware hint map threaded through
// one run's hook invocations. It is safe for
// concurrent use since tool execution may fan out within an iteration.
type Meta struct {
	mu   sync.Mutex
	data map[string]map[string]any
}

// NewMeta returns an empty Meta map.
func NewMeta() *Meta { return &Meta{data: make(map[string]map[string]any)} }

// Get reads key within namespace.
func (m *Meta) Get(namespace, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.data[namespace]
	if !ok {
		return nil, false
	}
	v, ok := ns[key]
	return v, ok
}

// Set writes key within namespace, creating the namespace if absent.
func (m *Meta) Set(namespace, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[namespace] == nil {
		m.data[namespace] = make(map[string]any)
	}
	m.data[namespace][key] = value
}

func isEnabled(ctx context.Context, mw Middleware, run RunRef) bool {
	return mw.Enabled == nil || mw.Enabled(ctx, run)
}

func withTimeout(ctx context.Context, ms int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}
