// Package config loads runtime tunables (budgets, thresholds, timeouts,
// worker-pool size) from environment variables with typed defaults, in the
// style of a 12-factor Go service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Runtime holds the tunables every core component reads at startup.
type Runtime struct {
	MaxIterations             int
	HardTokenLimit            int
	SoftLimitRatio            float64
	HardLimitRatio            float64
	StuckThreshold            int
	ForceSynthesisOnHardLimit bool
	WorkerPoolSize            int
	WorkerLaunchRatePerSec    float64
	MaxRetries                int
	BackoffBase               time.Duration
	HookTimeout               time.Duration
	ToolTimeout               time.Duration
	LLMTimeout                time.Duration
}

// Default returns a Runtime with every field set to the value the spec's
// worked examples assume absent any override.
func Default() Runtime {
	return Runtime{
		MaxIterations:             25,
		HardTokenLimit:            100_000,
		SoftLimitRatio:            0.8,
		HardLimitRatio:            1.0,
		StuckThreshold:            4,
		ForceSynthesisOnHardLimit: true,
		WorkerPoolSize:            4,
		WorkerLaunchRatePerSec:    0, // unlimited by default
		MaxRetries:                2,
		BackoffBase:               200 * time.Millisecond,
		HookTimeout:               5 * time.Second,
		ToolTimeout:               30 * time.Second,
		LLMTimeout:                60 * time.Second,
	}
}

// Load reads Runtime tunables: defaults, then environment variables (env
// wins). Unset or unparsable variables fall back silently to the default
// already present in cfg.
func Load() Runtime {
	cfg := Default()

	cfg.MaxIterations = envInt("AGENTRT_MAX_ITERATIONS", cfg.MaxIterations)
	cfg.HardTokenLimit = envInt("AGENTRT_HARD_TOKEN_LIMIT", cfg.HardTokenLimit)
	cfg.SoftLimitRatio = envFloat("AGENTRT_SOFT_LIMIT_RATIO", cfg.SoftLimitRatio)
	cfg.HardLimitRatio = envFloat("AGENTRT_HARD_LIMIT_RATIO", cfg.HardLimitRatio)
	cfg.StuckThreshold = envInt("AGENTRT_STUCK_THRESHOLD", cfg.StuckThreshold)
	cfg.ForceSynthesisOnHardLimit = envBool("AGENTRT_FORCE_SYNTHESIS_ON_HARD_LIMIT", cfg.ForceSynthesisOnHardLimit)
	cfg.WorkerPoolSize = envInt("AGENTRT_WORKER_POOL_SIZE", cfg.WorkerPoolSize)
	cfg.WorkerLaunchRatePerSec = envFloat("AGENTRT_WORKER_LAUNCH_RATE_PER_SEC", cfg.WorkerLaunchRatePerSec)
	cfg.MaxRetries = envInt("AGENTRT_MAX_RETRIES", cfg.MaxRetries)
	cfg.BackoffBase = envDuration("AGENTRT_BACKOFF_BASE", cfg.BackoffBase)
	cfg.HookTimeout = envDuration("AGENTRT_HOOK_TIMEOUT", cfg.HookTimeout)
	cfg.ToolTimeout = envDuration("AGENTRT_TOOL_TIMEOUT", cfg.ToolTimeout)
	cfg.LLMTimeout = envDuration("AGENTRT_LLM_TIMEOUT", cfg.LLMTimeout)

	return cfg
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
