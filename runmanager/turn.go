package runmanager

import (
	"strconv"
	"time"

	"github.com/fenwick-ai/agentrt/events"
	"github.com/fenwick-ai/agentrt/session"
)

// AssembleTurn folds a run's AgentEvents, in seq order, into a single Turn.
// A TurnStep opens at every llm:start or tool:start that has no currently-open
// step and closes
// on the matching *:end/*:error; steps accumulate onto the Turn in the
// order they opened.
func AssembleTurn(turnID string, turnType session.TurnType, evts []events.Event) *session.Turn {
	turn := &session.Turn{
		ID:     turnID,
		Type:   turnType,
		Status: session.TurnStreaming,
	}

	var open *session.TurnStep
	for _, e := range evts {
		ts := time.UnixMilli(e.TimestampUnixMilli)
		switch e.Type {
		case events.TypeLLMStart:
			if open == nil {
				turn.Steps = append(turn.Steps, session.TurnStep{Kind: "llm", StartedAt: ts})
				open = &turn.Steps[len(turn.Steps)-1]
				if turn.StartedAt.IsZero() {
					turn.StartedAt = ts
				}
			}
		case events.TypeToolStart:
			if open == nil {
				name, _ := stringField(e.Payload, "tool")
				turn.Steps = append(turn.Steps, session.TurnStep{Kind: "tool", Name: name, StartedAt: ts})
				open = &turn.Steps[len(turn.Steps)-1]
				if turn.StartedAt.IsZero() {
					turn.StartedAt = ts
				}
			}
		case events.TypeLLMEnd, events.TypeToolEnd:
			if open != nil {
				closeStep(open, ts, false)
				open = nil
			}
		case events.TypeToolError:
			if open != nil {
				closeStep(open, ts, true)
				open = nil
			}
		case events.TypeAgentEnd:
			turn.Status = session.TurnCompleted
			cp := ts
			turn.CompletedAt = &cp
		case events.TypeAgentError:
			turn.Status = session.TurnFailed
			cp := ts
			turn.CompletedAt = &cp
		}
	}
	return turn
}

func closeStep(step *session.TurnStep, ts time.Time, failed bool) {
	cp := ts
	step.CompletedAt = &cp
	step.Failed = failed
}

func stringField(payload any, key string) (string, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok
}

// Signature renders the dedup signature consumed by the WS turn:snapshot
// surface.
func Signature(t *session.Turn) string {
	completedAt := ""
	if t.CompletedAt != nil {
		completedAt = t.CompletedAt.Format(time.RFC3339Nano)
	}
	return t.ID + ":" + string(t.Status) + ":" + completedAt + ":" + strconv.Itoa(len(t.Steps))
}
