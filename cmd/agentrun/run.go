package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/fenwick-ai/agentrt/builtin"
	"github.com/fenwick-ai/agentrt/config"
	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/ids"
	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
	"github.com/fenwick-ai/agentrt/orchestrator"
	"github.com/fenwick-ai/agentrt/telemetry"
	"github.com/fenwick-ai/agentrt/trace"
	"github.com/fenwick-ai/agentrt/verify"
	"github.com/fenwick-ai/agentrt/worker"
)

func runCmd() *cobra.Command {
	var (
		task      string
		mode      string
		sessionID string
		tier      string
		dryRun    bool
		verbose   bool
		traceOut  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a task through the orchestrator and print the synthesized answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if task == "" {
				return fmt.Errorf("--task is required")
			}
			if sessionID == "" {
				sessionID = ids.NewSessionID()
			}
			runID := ids.NewRunID()

			if dryRun {
				fmt.Printf("dry run: would execute task %q (mode=%s tier=%s session=%s)\n", task, mode, tier, sessionID)
				return nil
			}

			cfg := config.Load()
			rc, err := config.LoadAgentRC(agentrcPath)
			if err != nil {
				return fmt.Errorf("loading %s: %w", agentrcPath, err)
			}

			bus := events.New()
			if verbose {
				bus.AddListener(runID, func(e events.Event) {
					fmt.Fprintf(os.Stderr, "[%s] %s agent=%s payload=%v\n", e.Type, e.RunID, e.AgentID, e.Payload)
				})
			}

			registry := stubRegistry(model.TierSmall, model.TierMedium, model.TierLarge)
			synthLLM, _ := registry.Resolve(model.TierLarge)

			traceStore := trace.NewMemStore()
			logger, metrics, tracer := telemetry.NewOtel(otel.Tracer("agentrt"), otel.Meter("agentrt"))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			abort := make(chan struct{})
			go watchSignals(abort, cancel)

			factory := func(st orchestrator.SubTask, t model.Tier) worker.Config {
				llm, ok := registry.Resolve(t)
				if !ok {
					llm, _ = registry.Resolve(model.TierSmall)
				}
				return worker.Config{
					SessionID:                 sessionID,
					SpecialistID:              st.AgentID,
					Tier:                      t,
					LLM:                       llm,
					ToolExecutor:              noopExecutor{},
					ToolStrategy:              worker.ToolStrategy{Mode: worker.Unrestricted},
					TraceStore:                traceStore,
					Bus:                       bus,
					Middlewares:               buildMiddlewares(rc, bus),
					MaxIterations:             cfg.MaxIterations,
					HardTokenLimit:            cfg.HardTokenLimit,
					Temperature:               0.2,
					ForceSynthesisOnHardLimit: cfg.ForceSynthesisOnHardLimit,
					Logger:                    logger,
					Tracer:                    tracer,
					Abort:                     abort,
				}
			}

			ocfg := orchestrator.Config{
				Planner:                trivialPlanner{defaultAgent: "default"},
				WorkerFactory:          factory,
				Verify:                 verifyOutput,
				EscalationLadders:      rc.EscalationLadders,
				DefaultLadder:          ladderFrom(rc.DefaultLadder, model.Tier(tier)),
				WorkerPoolSize:         cfg.WorkerPoolSize,
				MaxRetries:             cfg.MaxRetries,
				BackoffBase:            cfg.BackoffBase,
				WorkerLaunchRatePerSec: cfg.WorkerLaunchRatePerSec,
				SynthesisLLM:           synthLLM,
				CrossTierLLM:           synthLLM,
				TraceStore:             traceStore,
				Bus:                    bus,
				Logger:                 logger,
				Tracer:                 tracer,
				Abort:                  abort,
			}

			result := orchestrator.Execute(ctx, runID, sessionID, ocfg, task)
			metrics.IncCounter(ctx, "agentrun.runs_total", map[string]string{"success": fmt.Sprint(result.Success)})
			metrics.ObserveDuration(ctx, "agentrun.duration_seconds", map[string]string{"success": fmt.Sprint(result.Success)}, float64(result.DurationMS)/1000)

			if traceOut {
				printTrace(result)
			}
			fmt.Println(result.Answer)

			if !result.Success {
				if result.Err != nil {
					fmt.Fprintln(os.Stderr, "error:", result.Err)
				}
				return fmt.Errorf("run did not complete successfully")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "the task to run (required)")
	cmd.Flags().StringVar(&mode, "mode", "orchestrated", "execution mode label (orchestrated|direct), echoed by --dry-run; every run goes through the orchestrator")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session to attach this run to (default: a new session)")
	cmd.Flags().StringVar(&tier, "tier", string(model.TierMedium), "starting model tier")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would run without executing it")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "stream events to stderr as they are emitted")
	cmd.Flags().BoolVar(&traceOut, "trace", false, "print the per-subtask delegation trace before the answer")
	return cmd
}

// trivialPlanner decomposes every task into a single subtask delegated to
// defaultAgent. Real deployments supply an LLM-backed Planner; this stand-in keeps `agent run` runnable without one.
type trivialPlanner struct{ defaultAgent string }

func (p trivialPlanner) Plan(_ context.Context, task string) (orchestrator.Plan, error) {
	return orchestrator.Plan{SubTasks: []orchestrator.SubTask{
		{ID: "t1", AgentID: p.defaultAgent, Task: task, Priority: 0},
	}}, nil
}

// ladderFrom returns ladder starting from --tier's position, so escalation
// still proceeds through any higher tiers the declarative config defines.
// If tier isn't in ladder, it is used as the sole rung.
func ladderFrom(ladder []model.Tier, tier model.Tier) []model.Tier {
	for i, t := range ladder {
		if t == tier {
			return ladder[i:]
		}
	}
	if tier != "" {
		return []model.Tier{tier}
	}
	return ladder
}

func verifyOutput(_ context.Context, output verify.SpecialistOutput, tr *trace.Trace) verify.Result {
	structural := verify.Structural(output)
	if !structural.Valid {
		return structural
	}
	return verify.FilesystemState(".", output.Claims)
}

func buildMiddlewares(rc config.AgentRC, bus *events.Bus) []middleware.Middleware {
	mws := []middleware.Middleware{builtin.Observability(bus)}
	always := func(enabled bool) builtin.FeatureFlag {
		return func(context.Context, middleware.RunRef) bool { return enabled }
	}
	for _, m := range rc.Middlewares {
		if !m.Enabled {
			continue
		}
		var mw middleware.Middleware
		switch m.Name {
		case "budget":
			mw = builtin.Budget(builtin.BudgetConfig{MaxTokens: 100_000})
		case "progress":
			mw = builtin.Progress(builtin.ProgressConfig{})
		case "context_filter":
			mw = builtin.ContextFilter(builtin.ContextFilterConfig{MaxOutputLength: 4096})
		case "fact_sheet":
			mw = builtin.FactSheet(builtin.FactSheetConfig{})
		case "reflection":
			mw = builtin.Reflection(builtin.ReflectionConfig{})
		case "task_classifier":
			mw = builtin.TaskClassifier(always(true))
		case "search_signal":
			mw = builtin.SearchSignal(always(true))
		case "todo_sync":
			mw = builtin.TodoSync(always(true))
		default:
			continue
		}
		if m.Order != 0 {
			mw.Order = m.Order
		}
		mw.Config = middleware.Config{FailPolicy: m.FailPolicyValue(), TimeoutMS: m.TimeoutMs}
		mws = append(mws, mw)
	}
	return mws
}

func printTrace(result *orchestrator.Result) {
	for _, dr := range result.DelegatedResults {
		data, _ := json.Marshal(map[string]any{
			"subtaskId": dr.SubTaskID,
			"agentId":   dr.AgentID,
			"status":    dr.Status,
			"tier":      dr.TierUsed,
			"attempts":  dr.Attempts,
		})
		fmt.Fprintln(os.Stderr, string(data))
	}
}

func watchSignals(abort chan struct{}, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	close(abort)
	cancel()
}
