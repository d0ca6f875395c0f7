package runmanager

import "strings"

// Correction is an inbound message the Run Manager must route to one of
// the agents already active in a run.
type Correction struct {
	Text           string
	MentionedAgent string // empty if the message named no agentId
}

// CorrectionRouter decides which agentId an inbound Correction targets.
// Implementations may be purely heuristic or LLM-assisted; the Manager
// only depends on this interface.
type CorrectionRouter interface {
	Route(c Correction, activeAgents []string, lastActiveAgent string) (agentID string, ok bool)
}

// HeuristicRouter routes to the agent explicitly named in the message, or
// falls back to the most recently active agent in the run.
type HeuristicRouter struct{}

// Route implements CorrectionRouter without calling an LLM: a correction
// that names an agentId goes there; otherwise it goes to whichever agent
// was last active.
func (HeuristicRouter) Route(c Correction, activeAgents []string, lastActiveAgent string) (string, bool) {
	if c.MentionedAgent != "" && contains(activeAgents, c.MentionedAgent) {
		return c.MentionedAgent, true
	}
	if lastActiveAgent != "" {
		return lastActiveAgent, true
	}
	if len(activeAgents) > 0 {
		return activeAgents[0], true
	}
	return "", false
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
