// Package builtin implements the stock middlewares: Observability, Budget,
// ContextFilter, FactSheet, Progress, Reflection, and a handful of
// feature-flagged signal-only middlewares. All of them are constructed
// fail-open by default, matching the "a failing middleware never breaks an
// execution" rule for built-ins.
package builtin

import (
	"encoding/json"

	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/trace"
)

// signature derives the (toolName, canonical(args)) key used for dedup
// caching and loop-detection-adjacent bookkeeping across the built-ins.
func signature(name string, args []byte) string {
	if len(args) == 0 {
		args = []byte("null")
	}
	hash, _ := trace.ArgsHash(json.RawMessage(args))
	return name + ":" + hash
}

// failOpen is the Config every built-in uses unless a specific middleware
// has a reason to diverge (none currently do).
func failOpen(timeoutMS int) middleware.Config {
	return middleware.Config{FailPolicy: middleware.FailOpen, TimeoutMS: timeoutMS}
}
