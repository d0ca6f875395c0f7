package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/fenwick-ai/agentrt/middleware"
	"github.com/fenwick-ai/agentrt/model"
)

// MiddlewareEntry declares one middleware's position and failure policy in
// the pipeline, as authored in agentrc.toml's [[middleware]] array.
type MiddlewareEntry struct {
	Name       string `toml:"name"`
	Order      int    `toml:"order"`
	FailPolicy string `toml:"fail_policy"`
	TimeoutMs  int    `toml:"timeout_ms"`
	Enabled    bool   `toml:"enabled"`
}

// FailPolicyValue resolves the declared string to middleware.FailPolicy,
// defaulting to fail-open when unset or unrecognized.
func (m MiddlewareEntry) FailPolicyValue() middleware.FailPolicy {
	if m.FailPolicy == string(middleware.FailClosed) {
		return middleware.FailClosed
	}
	return middleware.FailOpen
}

// AgentRC is the declarative `agentrc.toml` shape: per-agent escalation
// ladders and the middleware pipeline's static ordering, so operators can
// describe tiers and hook order without recompiling.
type AgentRC struct {
	DefaultLadder     []model.Tier            `toml:"default_ladder"`
	EscalationLadders map[string][]model.Tier `toml:"escalation_ladders"`
	Middlewares       []MiddlewareEntry       `toml:"middleware"`
}

// LoadAgentRC decodes an agentrc.toml file at path. A missing file returns
// a zero-value AgentRC (no ladders and no middleware entries) rather than an
// error, following a defaults-first config pattern.
func LoadAgentRC(path string) (AgentRC, error) {
	var rc AgentRC
	if _, err := toml.DecodeFile(path, &rc); err != nil {
		if os.IsNotExist(err) {
			return rc, nil
		}
		return rc, err
	}
	return rc, nil
}

// LadderFor returns the agent's declared escalation ladder, falling back to
// DefaultLadder when the agent has none of its own.
func (rc AgentRC) LadderFor(agentID string) []model.Tier {
	if ladder, ok := rc.EscalationLadders[agentID]; ok && len(ladder) > 0 {
		return ladder
	}
	return rc.DefaultLadder
}
