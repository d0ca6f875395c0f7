package builtin

import (
	"context"

	"github.com/fenwick-ai/agentrt/middleware"
)

// ProgressConfig controls whether a sustained stuck signal escalates the run
// or is left as an observability-only marker.
type ProgressConfig struct {
	// EscalateOnStuck, when true, requests escalation from beforeIteration
	// once ctx.meta["progress"]["stuck"] has been true (the default is to
	// emit the signal and keep running).
	EscalateOnStuck bool
}

// Progress surfaces the iteration loop's own stuck-progress tracking (set
// directly on ctx.meta by the loop) to the rest of the
// pipeline, optionally escalating when configured to treat stuckness as
// fatal.
func Progress(cfg ProgressConfig) middleware.Middleware {
	return middleware.Middleware{
		Name:   "progress",
		Order:  50,
		Config: failOpen(0),

		BeforeIteration: func(_ context.Context, _ middleware.RunRef, meta *middleware.Meta) (middleware.Action, error) {
			if !cfg.EscalateOnStuck {
				return middleware.ActionContinue, nil
			}
			stuck, _ := meta.Get("progress", "stuck")
			if stuck == true {
				meta.Set("loop", "escalateReason", "no progress after repeated iterations")
				return middleware.ActionEscalate, nil
			}
			return middleware.ActionContinue, nil
		},
	}
}
