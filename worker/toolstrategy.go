package worker

import (
	"fmt"
	"strings"

	"github.com/fenwick-ai/agentrt/model"
)

// ToolStrategyMode selects how the tool set offered to one iteration loop is
// assembled.
type ToolStrategyMode string

const (
	Unrestricted ToolStrategyMode = "unrestricted"
	Prioritized  ToolStrategyMode = "prioritized"
	Gated        ToolStrategyMode = "gated"
)

// ToolGroup is one named bundle of tools under Prioritized or Gated mode.
type ToolGroup struct {
	Name     string
	Tools    []model.Tool
	Priority int
	Hints    string

	// UnlockAfter names a group that must be unlocked first (Gated mode).
	UnlockAfter string
	// UnlockWhenConfidenceBelow unlocks this group once the run's tracked
	// confidence drops below the threshold (Gated mode). Zero disables this
	// gate, leaving UnlockAfter (if any) as the only condition.
	UnlockWhenConfidenceBelow float64
}

// ToolStrategy configures how the worker filters its tool registry for one
// run.
type ToolStrategy struct {
	Mode   ToolStrategyMode
	Tools  []model.Tool // used as-is when Mode == Unrestricted
	Groups []ToolGroup  // used when Mode == Prioritized or Gated
}

// Resolve computes the tool set and system-prompt hint text for the current
// run state. unlocked tracks which gated groups have already satisfied their
// UnlockAfter condition; confidence is the run's current self-assessed
// confidence, used by UnlockWhenConfidenceBelow gates.
func (s ToolStrategy) Resolve(unlocked map[string]bool, confidence float64) ([]model.Tool, string) {
	switch s.Mode {
	case Prioritized:
		return s.resolvePrioritized()
	case Gated:
		return s.resolveGated(unlocked, confidence)
	default:
		return s.Tools, ""
	}
}

func (s ToolStrategy) resolvePrioritized() ([]model.Tool, string) {
	groups := append([]ToolGroup(nil), s.Groups...)
	sortGroupsByPriority(groups)

	var tools []model.Tool
	var hints strings.Builder
	for _, g := range groups {
		tools = append(tools, g.Tools...)
		if g.Hints != "" {
			fmt.Fprintf(&hints, "[%s] %s\n", g.Name, g.Hints)
		}
	}
	return tools, hints.String()
}

func (s ToolStrategy) resolveGated(unlocked map[string]bool, confidence float64) ([]model.Tool, string) {
	var tools []model.Tool
	var hints strings.Builder
	for _, g := range s.Groups {
		if !s.groupUsable(g, unlocked, confidence) {
			continue
		}
		tools = append(tools, g.Tools...)
		if g.Hints != "" {
			fmt.Fprintf(&hints, "[%s] %s\n", g.Name, g.Hints)
		}
	}
	return tools, hints.String()
}

func (s ToolStrategy) groupUsable(g ToolGroup, unlocked map[string]bool, confidence float64) bool {
	if g.UnlockAfter == "" && g.UnlockWhenConfidenceBelow == 0 {
		return true
	}
	if g.UnlockAfter != "" && unlocked[g.UnlockAfter] {
		return true
	}
	if g.UnlockWhenConfidenceBelow > 0 && confidence < g.UnlockWhenConfidenceBelow {
		return true
	}
	return false
}

func sortGroupsByPriority(groups []ToolGroup) {
	for i := 1; i < len(groups); i++ {
		for j := i; j > 0 && groups[j].Priority < groups[j-1].Priority; j-- {
			groups[j], groups[j-1] = groups[j-1], groups[j]
		}
	}
}
