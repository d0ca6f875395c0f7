package builtin

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
)

// BudgetConfig configures the Budget middleware's token ceiling and the two
// ratios that trigger a soft nudge and a hard stop.
type BudgetConfig struct {
	MaxTokens       int
	SoftLimitRatio  float64 // default 0.8
	HardLimitRatio  float64 // default 1.0
}

// Budget tracks accumulated token usage (read from ctx.meta["loop"]["tokensUsed"],
// written by the iteration loop every iteration) against MaxTokens. Crossing
// SoftLimitRatio injects a one-time convergence nudge into the next LLM
// call; crossing HardLimitRatio stops the run.
func Budget(cfg BudgetConfig) middleware.Middleware {
	if cfg.SoftLimitRatio <= 0 {
		cfg.SoftLimitRatio = 0.8
	}
	if cfg.HardLimitRatio <= 0 {
		cfg.HardLimitRatio = 1.0
	}
	// A burst-1 limiter with an effectively-infinite refill period acts as a
	// one-shot gate: the first Allow() within a run's lifetime succeeds, every
	// subsequent call fails, giving "inject a single convergence-nudge"
	// without a separate boolean flag threaded through meta.
	nudgeGate := rate.NewLimiter(rate.Every(365*24*time.Hour), 1)

	tokensUsed := func(meta *middleware.Meta) int {
		v, ok := meta.Get("loop", "tokensUsed")
		if !ok {
			return 0
		}
		n, _ := v.(int)
		return n
	}

	return middleware.Middleware{
		Name:   "budget",
		Order:  10,
		Config: failOpen(0),

		BeforeIteration: func(_ context.Context, _ middleware.RunRef, meta *middleware.Meta) (middleware.Action, error) {
			if cfg.MaxTokens <= 0 {
				return middleware.ActionContinue, nil
			}
			used := tokensUsed(meta)
			if float64(used) >= float64(cfg.MaxTokens)*cfg.HardLimitRatio {
				meta.Set("budget", "hardLimitHit", true)
				return middleware.ActionStop, nil
			}
			if float64(used) >= float64(cfg.MaxTokens)*cfg.SoftLimitRatio {
				meta.Set("budget", "softLimitHit", true)
			}
			return middleware.ActionContinue, nil
		},

		BeforeLLMCall: func(_ context.Context, call middleware.LLMCallContext, meta *middleware.Meta) (*middleware.Patch, error) {
			soft, _ := meta.Get("budget", "softLimitHit")
			if soft != true {
				return nil, nil
			}
			if !nudgeGate.Allow() {
				return nil, nil
			}
			nudge := model.Message{
				Role: model.RoleSystem,
				Parts: []model.Part{model.TextPart{
					Text: fmt.Sprintf("Token budget at %.0f%% of limit: converge on a final answer soon.", cfg.SoftLimitRatio*100),
				}},
			}
			return &middleware.Patch{Messages: append(append([]model.Message(nil), call.Messages...), nudge)}, nil
		},
	}
}
