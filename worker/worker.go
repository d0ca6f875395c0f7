// Package worker implements the Specialist Worker: the unit that composes a
// tool trace, a middleware pipeline, and an iteration loop into a single
// execute(task, config) -> SpecialistOutcome call, the building block the
// orchestrator delegates subtasks to.
package worker

import (
	"context"
	"time"

	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/loop"
	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/telemetry"
	"github.com/fenwick-ai/agentrt/tool"
	"github.com/fenwick-ai/agentrt/trace"
	"github.com/fenwick-ai/agentrt/verify"
)

// Config fully parameterizes one worker execution: tier, sampling,
// iteration bounds, the enabled middleware set, the tool-exposure strategy,
// and the collaborators (LLM, tool executor, trace store, event bus) it is
// wired against.
type Config struct {
	SessionID    string
	SpecialistID string
	Tier         model.Tier

	LLM          model.Client
	ToolExecutor tool.Executor
	Permissions  tool.Permissions
	ToolStrategy ToolStrategy

	TraceStore trace.Store
	Bus        *events.Bus
	Middlewares []middleware.Middleware

	// Logger and Tracer default to no-op implementations when unset.
	Logger telemetry.Logger
	Tracer telemetry.Tracer

	MaxIterations             int
	HardTokenLimit            int
	Temperature               float64
	ForceSynthesisOnHardLimit bool

	// Confidence seeds a Gated ToolStrategy's UnlockWhenConfidenceBelow
	// check for this run. Workers do not update it mid-run, and the
	// orchestrator does not change it between retries or escalations; the
	// value is whatever the Config's builder (e.g. a WorkerFactory) sets.
	Confidence float64
	// Unlocked seeds which gated tool groups have already satisfied their
	// UnlockAfter condition. SpecialistOutcome does not report unlocked
	// groups, and the orchestrator does not change this between attempts.
	Unlocked map[string]bool

	Abort <-chan struct{}
}

// SpecialistOutcome is what Execute returns to its caller.
type SpecialistOutcome struct {
	Output         verify.SpecialistOutput
	Messages       []model.Message
	TokensUsed     int
	Iterations     int
	DurationMS     int64
	StopCode       loop.StopCode
	Escalate       bool
	EscalateReason string
	Err            error
}

// Execute runs one specialist worker against task to completion (or until
// it escalates, errors, or exhausts its iteration/token budget). runID
// identifies the run for events and middleware lifecycle hooks; callers
// (runmanager, orchestrator) are responsible for minting it.
func Execute(ctx context.Context, runID string, cfg Config, task string) *SpecialistOutcome {
	start := time.Now()
	run := middleware.RunRef{RunID: runID, SessionID: cfg.SessionID, AgentID: cfg.SpecialistID}
	pipeline := middleware.NewPipeline(cfg.Middlewares...)
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracer{}
	}
	ctx, endSpan := tracer.StartSpan(ctx, "worker.execute")
	defer endSpan()
	logger.Info(ctx, "worker execute start", "specialistId", cfg.SpecialistID, "tier", string(cfg.Tier))

	traceID, err := cfg.TraceStore.Create(ctx, cfg.SessionID, cfg.SpecialistID)
	if err != nil {
		return &SpecialistOutcome{Err: err, DurationMS: since(start)}
	}
	recorder := trace.NewRecorder(cfg.TraceStore, traceID)

	tools, hints := cfg.ToolStrategy.Resolve(cfg.Unlocked, cfg.Confidence)
	initial := buildInitialMessages(task, hints)

	emit(cfg.Bus, run, events.TypeAgentStart, map[string]any{"task": task, "tier": cfg.Tier})

	if err := pipeline.OnStart(ctx, run); err != nil {
		emit(cfg.Bus, run, events.TypeAgentError, map[string]any{"error": err.Error()})
		return &SpecialistOutcome{Err: err, DurationMS: since(start)}
	}

	l := loop.New(loop.Config{
		Run:                       run,
		LLM:                       cfg.LLM,
		ToolExecutor:              cfg.ToolExecutor,
		Permissions:               cfg.Permissions,
		Bus:                       cfg.Bus,
		Recorder:                  recorder,
		Pipeline:                  pipeline,
		Tools:                     tools,
		Logger:                    logger,
		Tracer:                    tracer,
		MaxIterations:             cfg.MaxIterations,
		HardTokenLimit:            cfg.HardTokenLimit,
		Temperature:               cfg.Temperature,
		ForceSynthesisOnHardLimit: cfg.ForceSynthesisOnHardLimit,
		Abort:                     cfg.Abort,
	}, initial)

	out := l.Run(ctx)

	outcome := &SpecialistOutcome{
		Messages:       out.Messages,
		TokensUsed:     out.TokensUsed,
		Iterations:     out.Iterations,
		StopCode:       out.StopCode,
		Escalate:       out.Escalate,
		EscalateReason: out.EscalateReason,
		Err:            out.Err,
		DurationMS:     since(start),
	}

	if out.Escalate {
		// Escalation is resolved by the caller retrying at a higher tier
		// with a fresh trace; this one is left open for later inspection
		// rather than marked complete.
		emit(cfg.Bus, run, events.TypeAgentEnd, map[string]any{"escalate": true, "reason": out.EscalateReason})
		return outcome
	}

	if completeErr := cfg.TraceStore.Complete(ctx, traceID); completeErr != nil && outcome.Err == nil {
		outcome.Err = completeErr
	}

	if out.Err != nil {
		emit(cfg.Bus, run, events.TypeAgentError, map[string]any{"error": out.Err.Error()})
		logger.Error(ctx, "worker execute failed", "specialistId", cfg.SpecialistID, "error", out.Err.Error())
	} else {
		emit(cfg.Bus, run, events.TypeAgentEnd, map[string]any{"stopCode": string(out.StopCode)})
		logger.Info(ctx, "worker execute done", "specialistId", cfg.SpecialistID, "stopCode", string(out.StopCode))
	}

	outcome.Output = buildOutput(out, traceID)
	return outcome
}

func buildInitialMessages(task, hints string) []model.Message {
	msgs := []model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: task}}}}
	if hints == "" {
		return msgs
	}
	sysMsg := model.Message{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: hints}}}
	return append([]model.Message{sysMsg}, msgs...)
}

func buildOutput(out *loop.Outcome, traceID string) verify.SpecialistOutput {
	return verify.SpecialistOutput{
		Summary:  out.Answer,
		TraceRef: trace.Ref(traceID),
	}
}

func emit(bus *events.Bus, run middleware.RunRef, typ events.Type, payload any) {
	if bus == nil {
		return
	}
	bus.Emit(events.Event{Type: typ, RunID: run.RunID, SessionID: run.SessionID, AgentID: run.AgentID, Payload: payload})
}

func since(start time.Time) int64 { return time.Since(start).Milliseconds() }
