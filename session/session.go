// Package session defines the wire types the Run Manager assembles and
// exposes to REST/WebSocket consumers: Run, Session, Turn, and TurnStep.
package session

import "time"

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunStopped   RunStatus = "stopped"
)

// Run is one user task execution, owned exclusively by the Run Manager.
type Run struct {
	RunID       string
	SessionID   string
	Task        string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Summary     string
	Error       string
	TokensUsed  int
	DurationMS  int64
}

// Session groups every Run belonging to one conversation as an ordered
// sequence of Turns.
type Session struct {
	SessionID string
	CreatedAt time.Time
	Turns     []*Turn
}

// TurnType classifies who originated a Turn.
type TurnType string

const (
	TurnUser      TurnType = "user"
	TurnAssistant TurnType = "assistant"
	TurnSystem    TurnType = "system"
)

// TurnStatus is the lifecycle state of a Turn.
type TurnStatus string

const (
	TurnStreaming TurnStatus = "streaming"
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
	TurnCancelled TurnStatus = "cancelled"
)

// TurnStep is one bounded unit of work within a Turn (one LLM call, one
// tool call), derived by folding AgentEvents in seq order.
type TurnStep struct {
	Kind        string // "llm" | "tool"
	Name        string // tool name, empty for llm steps
	StartedAt   time.Time
	CompletedAt *time.Time
	Failed      bool
}

// Turn is one user<->agent interaction, derived entirely from the events
// of its owning Run.
type Turn struct {
	ID          string
	Type        TurnType
	Sequence    int
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      TurnStatus
	Steps       []TurnStep
	Metadata    map[string]any
}
