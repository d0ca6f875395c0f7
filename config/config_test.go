package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenwick-ai/agentrt/model"
)

func TestLoadUsesDefaultsWhenEnvUnset(t *testing.T) {
	cfg := Load()
	require.Equal(t, Default(), cfg)
}

func TestLoadPrefersEnvOverDefault(t *testing.T) {
	t.Setenv("AGENTRT_MAX_ITERATIONS", "40")
	t.Setenv("AGENTRT_HARD_TOKEN_LIMIT", "250000")
	t.Setenv("AGENTRT_SOFT_LIMIT_RATIO", "0.5")
	t.Setenv("AGENTRT_FORCE_SYNTHESIS_ON_HARD_LIMIT", "false")
	t.Setenv("AGENTRT_BACKOFF_BASE", "500ms")

	cfg := Load()
	require.Equal(t, 40, cfg.MaxIterations)
	require.Equal(t, 250000, cfg.HardTokenLimit)
	require.InDelta(t, 0.5, cfg.SoftLimitRatio, 0.0001)
	require.False(t, cfg.ForceSynthesisOnHardLimit)
	require.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
}

func TestLoadIgnoresUnparsableEnvValue(t *testing.T) {
	t.Setenv("AGENTRT_MAX_ITERATIONS", "not-a-number")
	cfg := Load()
	require.Equal(t, Default().MaxIterations, cfg.MaxIterations)
}

func TestLoadAgentRCMissingFileReturnsZeroValue(t *testing.T) {
	rc, err := LoadAgentRC(t.TempDir() + "/missing-agentrc.toml")
	require.NoError(t, err)
	require.Nil(t, rc.DefaultLadder)
}

func TestLoadAgentRCParsesLaddersAndMiddleware(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/agentrc.toml"
	require.NoError(t, os.WriteFile(path, []byte(`
default_ladder = ["small", "large"]

[escalation_ladders]
writer = ["medium", "large"]

[[middleware]]
name = "budget"
order = 10
fail_policy = "fail-open"
timeout_ms = 1000
enabled = true
`), 0o644))

	rc, err := LoadAgentRC(path)
	require.NoError(t, err)
	require.Len(t, rc.Middlewares, 1)
	require.Equal(t, "budget", rc.Middlewares[0].Name)
	require.Equal(t, []model.Tier{model.TierMedium, model.TierLarge}, rc.LadderFor("writer"))
	require.Equal(t, []model.Tier{model.TierSmall, model.TierLarge}, rc.LadderFor("researcher"))
}
