// Package loop implements the Iteration Loop:
// the single-agent LLM→tools→repeat drive loop, with stop conditions,
// budgets, and loop detection.
package loop

import (
	"context"

	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/telemetry"
	"github.com/fenwick-ai/agentrt/tool"
	"github.com/fenwick-ai/agentrt/trace"
)

// StopCode is the terminal reason an iteration loop stopped, in priority
// order (lower Priority wins when more than one condition is true in the
// same iteration).
type StopCode string

const (
	StopReportComplete  StopCode = "report_complete"
	StopAbortSignal     StopCode = "abort_signal"
	StopMaxIterations   StopCode = "max_iterations"
	StopHardTokenLimit  StopCode = "hard_token_limit"
	StopLoopDetected    StopCode = "loop_detected"
	StopNoToolCalls     StopCode = "no_tool_calls"
	StopIterationError  StopCode = "iteration_error"
)

// Priority returns the stop-condition priority (lower wins).
func (c StopCode) Priority() int {
	switch c {
	case StopReportComplete:
		return 1
	case StopAbortSignal:
		return 2
	case StopMaxIterations:
		return 3
	case StopHardTokenLimit:
		return 4
	case StopLoopDetected:
		return 5
	case StopNoToolCalls:
		return 6
	case StopIterationError:
		return 7
	default:
		return 99
	}
}

// Config configures one Loop run. LLM, ToolExecutor, Bus, Recorder and
// Pipeline are required; everything else has a usable zero value.
type Config struct {
	Run           middleware.RunRef
	LLM           model.Client
	ToolExecutor  tool.Executor
	Permissions   tool.Permissions
	Bus           *events.Bus
	Recorder      *trace.Recorder
	Pipeline      *middleware.Pipeline
	Tools         []model.Tool

	// Logger and Tracer default to no-op implementations when unset, so
	// callers that have not wired an observability backend pay nothing.
	Logger telemetry.Logger
	Tracer telemetry.Tracer

	MaxIterations  int
	HardTokenLimit int
	Temperature    float64
	ModelOverride  string

	// ForceSynthesisOnHardLimit, when true, runs one final unconstrained
	// LLM call after a hard_token_limit stop so its output becomes the
	// run's summary.
	ForceSynthesisOnHardLimit bool

	// Abort is observed at the top of every iteration.
	Abort <-chan struct{}
}

// Outcome is what the loop returns to its caller (the Worker): when the
// loop escalates it returns {outcome: escalate, reason} and does not
// self-retry.
type Outcome struct {
	StopCode       StopCode
	Answer         string
	Messages       []model.Message
	TokensUsed     int
	Iterations     int
	Escalate       bool
	EscalateReason string
	Err            error
}

// Loop drives one worker's LLM→tools→repeat execution.
type Loop struct {
	cfg      Config
	meta     *middleware.Meta
	messages []model.Message
	detector *detector

	iteration               int
	totalTokens             int
	maxIterations           int
	iterationsSinceProgress int
}

// New returns a Loop ready to Run against the given initial messages.
func New(cfg Config, initial []model.Message) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NoopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NoopTracer{}
	}
	return &Loop{
		cfg:           cfg,
		meta:          middleware.NewMeta(),
		messages:      append([]model.Message(nil), initial...),
		detector:      newDetector(),
		maxIterations: cfg.MaxIterations,
	}
}

// Meta exposes the cross-middleware hint map so a Worker can read signals
// (e.g. progress.stuck) after Run returns.
func (l *Loop) Meta() *middleware.Meta { return l.meta }

func (l *Loop) emit(typ events.Type, payload any) {
	if l.cfg.Bus == nil {
		return
	}
	l.cfg.Bus.Emit(events.Event{
		Type:      typ,
		RunID:     l.cfg.Run.RunID,
		SessionID: l.cfg.Run.SessionID,
		AgentID:   l.cfg.Run.AgentID,
		Payload:   payload,
	})
}

func (l *Loop) aborted() bool {
	if l.cfg.Abort == nil {
		return false
	}
	select {
	case <-l.cfg.Abort:
		return true
	default:
		return false
	}
}

// Run drives the loop to completion, implementing the 11-step iteration
// procedure.
func (l *Loop) Run(ctx context.Context) *Outcome {
	for {
		l.iteration++
		l.emit(events.TypeIterationStart, map[string]any{"iteration": l.iteration})
		spanCtx, end := l.cfg.Tracer.StartSpan(ctx, "loop.iteration")
		l.cfg.Logger.Debug(spanCtx, "iteration start", "iteration", l.iteration)

		out := l.stepPreconditions(spanCtx)
		if out == nil {
			out = l.stepOne(spanCtx)
		}
		end()
		l.emit(events.TypeIterationEnd, map[string]any{"iteration": l.iteration})

		if out.Escalate {
			// Escalation does not run onStop/onComplete: the orchestrator
			// owns the retry at a higher tier and will start a fresh loop.
			return out
		}
		if out.StopCode != "" {
			l.finish(ctx, out)
			return out
		}
		// out.StopCode == "" and !Escalate means "continue to next iteration".
	}
}

// stepPreconditions evaluates the stop conditions that can fire before any
// model/tool work happens this iteration: abort signal, max iterations, and
// beforeIteration middleware verdicts (steps 1-2 of the iteration
// procedure). A nil return means no precondition fired and the main step
// should run.
func (l *Loop) stepPreconditions(ctx context.Context) *Outcome {
	if l.aborted() {
		return &Outcome{StopCode: StopAbortSignal, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
	}

	l.meta.Set("loop", "tokensUsed", l.totalTokens)
	l.meta.Set("loop", "iteration", l.iteration)
	action, err := l.cfg.Pipeline.BeforeIteration(ctx, l.cfg.Run, l.meta)
	if err != nil {
		return &Outcome{StopCode: StopIterationError, Err: err, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
	}
	switch action {
	case middleware.ActionStop:
		return l.stopFromMeta()
	case middleware.ActionEscalate:
		reason, _ := l.meta.Get("loop", "escalateReason")
		reasonStr, _ := reason.(string)
		return &Outcome{Escalate: true, EscalateReason: reasonStr, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
	}

	if l.maxIterations > 0 && l.iteration > l.maxIterations {
		return &Outcome{StopCode: StopMaxIterations, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
	}
	if l.cfg.HardTokenLimit > 0 && l.totalTokens >= l.cfg.HardTokenLimit {
		return l.hardLimitStop(ctx)
	}
	return nil
}

// stopFromMeta inspects meta for a stop reason a middleware (typically
// Budget) recorded before returning ActionStop, defaulting to
// hard_token_limit since that is the only built-in that requests a stop.
func (l *Loop) stopFromMeta() *Outcome {
	if reason, ok := l.meta.Get("loop", "stopCode"); ok {
		if code, ok := reason.(StopCode); ok {
			return &Outcome{StopCode: code, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
		}
	}
	return &Outcome{StopCode: StopHardTokenLimit, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
}

func (l *Loop) hardLimitStop(ctx context.Context) *Outcome {
	if l.cfg.ForceSynthesisOnHardLimit {
		l.emit(events.TypeSynthesisForced, nil)
		answer := l.forceSynthesis(ctx)
		return &Outcome{StopCode: StopHardTokenLimit, Answer: answer, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
	}
	return &Outcome{StopCode: StopHardTokenLimit, Messages: l.messages, TokensUsed: l.totalTokens, Iterations: l.iteration}
}

func (l *Loop) forceSynthesis(ctx context.Context) string {
	if l.cfg.LLM == nil {
		return ""
	}
	resp, err := l.cfg.LLM.Chat(ctx, l.messages, nil, l.cfg.Temperature, 0)
	if err != nil || resp == nil {
		return ""
	}
	l.totalTokens += resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	return resp.Content
}

// finish runs the terminal middleware hooks (onStop, then onComplete) for
// any stop, successful or not.
func (l *Loop) finish(ctx context.Context, out *Outcome) {
	l.cfg.Logger.Info(ctx, "loop stopped", "stopCode", string(out.StopCode), "iterations", out.Iterations, "tokensUsed", out.TokensUsed)
	_ = l.cfg.Pipeline.OnStop(ctx, l.cfg.Run, string(out.StopCode))
	_ = l.cfg.Pipeline.OnComplete(ctx, l.cfg.Run)
}
