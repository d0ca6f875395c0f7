// Package orchestrator implements the Orchestrator: plans a task into
// subtasks, delegates them to Worker agents with bounded concurrency
// respecting declared dependencies, escalates failing subtasks up a
// per-agent tier ladder, verifies successful outputs, and synthesizes the
// delegated results into one final answer.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fenwick-ai/agentrt/agenterr"
	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/ids"
	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/telemetry"
	"github.com/fenwick-ai/agentrt/trace"
	"github.com/fenwick-ai/agentrt/verify"
	"github.com/fenwick-ai/agentrt/worker"
)

// SubTask is one unit of delegated work produced by planning.
type SubTask struct {
	ID           string
	AgentID      string
	Task         string
	Priority     int
	Dependencies []string
}

// Plan is the ordered set of SubTasks produced by planning.
type Plan struct {
	SubTasks []SubTask
}

// Planner decomposes a task into a Plan. Implementations are external
// collaborators (typically an LLM-backed planning call); this package only
// describes the contract it is driven through.
type Planner interface {
	Plan(ctx context.Context, task string) (Plan, error)
}

// Status is the terminal state of one delegated subtask.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// DelegatedResult is one subtask's outcome after delegation, escalation, and
// verification.
type DelegatedResult struct {
	SubTaskID    string
	AgentID      string
	Status       Status
	Outcome      *worker.SpecialistOutcome
	Verification verify.Result
	TierUsed     model.Tier
	Attempts     int
	Err          error
}

// WorkerFactory builds a worker.Config for one subtask attempt at the given
// tier. Callers typically close over shared collaborators (LLM registry,
// tool executor, trace store) and vary only Tier/MaxIterations per call.
type WorkerFactory func(subtask SubTask, tier model.Tier) worker.Config

// VerifyFunc runs the applicable Output Verifier levels
// against one worker's output and its trace, returning the merged result.
type VerifyFunc func(ctx context.Context, output verify.SpecialistOutput, tr *trace.Trace) verify.Result

// Config parameterizes one Orchestrator run.
type Config struct {
	Planner        Planner
	WorkerFactory  WorkerFactory
	Verify         VerifyFunc
	EscalationLadders map[string][]model.Tier // agentID -> tiers, ascending
	DefaultLadder  []model.Tier

	WorkerPoolSize int
	MaxRetries     int
	BackoffBase    time.Duration

	// WorkerLaunchRatePerSec caps how many subtask attempts may start per
	// second, independent of WorkerPoolSize's concurrency cap, so a plan
	// with many independent subtasks does not burst every LLM call at
	// once. Zero means unlimited.
	WorkerLaunchRatePerSec float64

	SynthesisLLM model.Client
	CrossTierLLM model.Client

	TraceStore trace.Store
	Bus        *events.Bus

	// Logger and Tracer default to no-op implementations when unset.
	Logger telemetry.Logger
	Tracer telemetry.Tracer

	// Sleep backs off between retries; overridable in tests. Default obeys
	// ctx cancellation and the Abort channel.
	Sleep func(ctx context.Context, abort <-chan struct{}, d time.Duration)

	Abort <-chan struct{}
}

// Result is what Execute returns.
type Result struct {
	Success          bool
	Aborted          bool
	Answer           string
	Plan             Plan
	DelegatedResults []DelegatedResult
	TokensUsed       int
	DurationMS       int64

	Confidence         float64
	Completeness       float64
	Gaps               []string
	UnverifiedMentions []string

	Err error
}

// Execute runs one orchestrator pass over task to completion.
func Execute(ctx context.Context, runID, sessionID string, cfg Config, task string) *Result {
	start := time.Now()
	run := middleware.RunRef{RunID: runID, SessionID: sessionID}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NoopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NoopTracer{}
	}
	ctx, endSpan := cfg.Tracer.StartSpan(ctx, "orchestrator.execute")
	defer endSpan()
	emit(cfg.Bus, run, events.TypeOrchestratorStart, map[string]any{"task": task})

	plan, err := cfg.Planner.Plan(ctx, task)
	if err != nil {
		cfg.Logger.Error(ctx, "planning failed", "error", err.Error())
		return &Result{Err: err, DurationMS: since(start)}
	}
	cfg.Logger.Info(ctx, "plan produced", "subtasks", len(plan.SubTasks))
	emit(cfg.Bus, run, events.TypeOrchestratorPlan, map[string]any{"subtasks": len(plan.SubTasks)})

	results := runDelegation(ctx, cfg, run, plan)

	if aborted(cfg.Abort) {
		return &Result{Plan: plan, DelegatedResults: results, Aborted: true, DurationMS: since(start)}
	}

	successful := successfulResults(results)
	answer, crossTier, synthErr := synthesize(ctx, cfg, task, successful)

	res := &Result{
		Success:            synthErr == nil && len(successful) > 0,
		Answer:             answer,
		Plan:               plan,
		DelegatedResults:   results,
		TokensUsed:         totalTokens(results),
		DurationMS:         since(start),
		Confidence:         crossTier.Confidence,
		Completeness:       crossTier.Completeness,
		Gaps:               crossTier.Gaps,
		UnverifiedMentions: crossTier.UnverifiedMentions,
		Err:                synthErr,
	}
	emit(cfg.Bus, run, events.TypeOrchestratorAnswer, map[string]any{
		"confidence": res.Confidence, "completeness": res.Completeness,
		"gaps": res.Gaps, "unverifiedMentions": res.UnverifiedMentions,
	})
	emit(cfg.Bus, run, events.TypeOrchestratorEnd, map[string]any{"success": res.Success})
	return res
}

// runDelegation runs every subtask respecting declared dependencies,
// bounded by a semaphore-limited worker pool. A
// subtask whose dependencies did not all complete successfully is marked
// skipped without being started.
func runDelegation(ctx context.Context, cfg Config, run middleware.RunRef, plan Plan) []DelegatedResult {
	doneCh := make(map[string]chan struct{}, len(plan.SubTasks))
	for _, st := range plan.SubTasks {
		doneCh[st.ID] = make(chan struct{})
	}

	sem := make(chan struct{}, poolSize(cfg.WorkerPoolSize))
	limiter := launchLimiter(cfg.WorkerLaunchRatePerSec)
	var mu sync.Mutex
	resultsByID := make(map[string]DelegatedResult, len(plan.SubTasks))
	var wg sync.WaitGroup

	for _, st := range plan.SubTasks {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(doneCh[st.ID])

			if !awaitDependencies(st, doneCh, cfg.Abort) {
				return
			}

			mu.Lock()
			skip := dependenciesFailed(st, resultsByID)
			mu.Unlock()
			if skip {
				mu.Lock()
				resultsByID[st.ID] = DelegatedResult{SubTaskID: st.ID, AgentID: st.AgentID, Status: StatusSkipped}
				mu.Unlock()
				return
			}

			if limiter != nil {
				_ = limiter.Wait(ctx)
			}
			sem <- struct{}{}
			defer func() { <-sem }()

			emit(cfg.Bus, run, events.TypeSubtaskStart, map[string]any{"subtaskId": st.ID, "agentId": st.AgentID})
			subCtx, endSpan := cfg.Tracer.StartSpan(ctx, "orchestrator.subtask")
			dr := runSubtask(subCtx, cfg, st)
			endSpan()
			emit(cfg.Bus, run, events.TypeSubtaskEnd, map[string]any{"subtaskId": st.ID, "status": string(dr.Status)})
			cfg.Logger.Info(ctx, "subtask finished", "subtaskId", st.ID, "agentId", st.AgentID, "status", string(dr.Status), "attempts", dr.Attempts)

			mu.Lock()
			resultsByID[st.ID] = dr
			mu.Unlock()
		}()
	}
	wg.Wait()

	out := make([]DelegatedResult, 0, len(plan.SubTasks))
	for _, st := range plan.SubTasks {
		out = append(out, resultsByID[st.ID])
	}
	return out
}

func awaitDependencies(st SubTask, doneCh map[string]chan struct{}, abort <-chan struct{}) bool {
	for _, dep := range st.Dependencies {
		ch, ok := doneCh[dep]
		if !ok {
			continue
		}
		select {
		case <-ch:
		case <-abort:
			return false
		}
	}
	return true
}

func dependenciesFailed(st SubTask, results map[string]DelegatedResult) bool {
	for _, dep := range st.Dependencies {
		if r, ok := results[dep]; ok && r.Status != StatusCompleted {
			return true
		}
	}
	return false
}

// runSubtask drives one subtask through the tier-escalation ladder and the
// verification-triggered retry loop.
func runSubtask(ctx context.Context, cfg Config, st SubTask) DelegatedResult {
	ladder := ladderFor(cfg, st.AgentID)
	note := ""
	attempts := 0

	for _, tier := range ladder {
		for retry := 0; retry <= cfg.MaxRetries; retry++ {
			attempts++
			runID := ids.NewRunID()
			wcfg := cfg.WorkerFactory(st, tier)
			outcome := worker.Execute(ctx, runID, wcfg, withNote(st.Task, note))

			if outcome.Err != nil && !agenterr.KindOf(outcome.Err).Retryable() {
				cfg.Logger.Warn(ctx, "subtask failed non-retryably", "subtaskId", st.ID, "kind", string(agenterr.KindOf(outcome.Err)), "error", outcome.Err.Error())
				return DelegatedResult{SubTaskID: st.ID, AgentID: st.AgentID, Status: StatusFailed, Outcome: outcome, TierUsed: tier, Attempts: attempts, Err: outcome.Err}
			}
			if outcome.Err != nil {
				cfg.Logger.Warn(ctx, "subtask attempt failed, retrying", "subtaskId", st.ID, "attempt", attempts, "error", outcome.Err.Error())
				sleepBackoff(ctx, cfg, attempts)
				continue
			}
			if outcome.Escalate {
				break // next tier
			}

			tr, _ := cfg.TraceStore.Load(ctx, outcome.Output.TraceRef)
			vres := cfg.Verify(ctx, outcome.Output, tr)
			if vres.Valid {
				return DelegatedResult{SubTaskID: st.ID, AgentID: st.AgentID, Status: StatusCompleted, Outcome: outcome, Verification: vres, TierUsed: tier, Attempts: attempts}
			}
			note = verificationNote(vres)
			sleepBackoff(ctx, cfg, attempts)
		}
	}

	return DelegatedResult{SubTaskID: st.ID, AgentID: st.AgentID, Status: StatusFailed, Attempts: attempts, Err: agenterr.New(agenterr.KindValidationFailed, "escalation ladder exhausted")}
}

func ladderFor(cfg Config, agentID string) []model.Tier {
	if l, ok := cfg.EscalationLadders[agentID]; ok && len(l) > 0 {
		return l
	}
	if len(cfg.DefaultLadder) > 0 {
		return cfg.DefaultLadder
	}
	return []model.Tier{model.TierSmall}
}

func withNote(task, note string) string {
	if note == "" {
		return task
	}
	return task + "\n\nPrior attempt failed verification:\n" + note
}

func verificationNote(res verify.Result) string {
	note := ""
	for _, e := range res.Errors {
		note += "- [" + e.Category + "] " + e.Message + "\n"
	}
	return note
}

func sleepBackoff(ctx context.Context, cfg Config, attempt int) {
	d := backoffDuration(cfg.BackoffBase, attempt)
	if cfg.Sleep != nil {
		cfg.Sleep(ctx, cfg.Abort, d)
		return
	}
	defaultSleep(ctx, cfg.Abort, d)
}

func backoffDuration(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt && i < 6; i++ {
		d *= 2
	}
	const cap = 30 * time.Second
	if d > cap {
		d = cap
	}
	return d
}

func defaultSleep(ctx context.Context, abort <-chan struct{}, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-abort:
	}
}

func successfulResults(results []DelegatedResult) []DelegatedResult {
	out := make([]DelegatedResult, 0, len(results))
	for _, r := range results {
		if r.Status == StatusCompleted {
			out = append(out, r)
		}
	}
	return out
}

func totalTokens(results []DelegatedResult) int {
	total := 0
	for _, r := range results {
		if r.Outcome != nil {
			total += r.Outcome.TokensUsed
		}
	}
	return total
}

// launchLimiter returns a rate.Limiter bounding subtask launches per second,
// or nil when ratePerSec is unset (unlimited).
func launchLimiter(ratePerSec float64) *rate.Limiter {
	if ratePerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(ratePerSec), 1)
}

func poolSize(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}

func aborted(abort <-chan struct{}) bool {
	if abort == nil {
		return false
	}
	select {
	case <-abort:
		return true
	default:
		return false
	}
}

func emit(bus *events.Bus, run middleware.RunRef, typ events.Type, payload any) {
	if bus == nil {
		return
	}
	bus.Emit(events.Event{Type: typ, RunID: run.RunID, SessionID: run.SessionID, Payload: payload})
}

func since(start time.Time) int64 { return time.Since(start).Milliseconds() }
