// Package events implements the Event Bus: a
// sequenced, per-run fan-out of lifecycle, tool, LLM, and orchestrator
// events, with a bounded replay buffer for late subscribers.
package events

import "encoding/json"

// Type enumerates the exhaustive set of AgentEvent wire types.
type Type string

const (
	TypeAgentStart  Type = "agent:start"
	TypeAgentEnd    Type = "agent:end"
	TypeAgentError  Type = "agent:error"

	TypeIterationStart Type = "iteration:start"
	TypeIterationEnd   Type = "iteration:end"

	TypeLLMStart Type = "llm:start"
	TypeLLMChunk Type = "llm:chunk"
	TypeLLMEnd   Type = "llm:end"

	TypeToolStart Type = "tool:start"
	TypeToolEnd   Type = "tool:end"
	TypeToolError Type = "tool:error"

	TypeOrchestratorStart Type = "orchestrator:start"
	TypeOrchestratorPlan  Type = "orchestrator:plan"
	TypeOrchestratorAnswer Type = "orchestrator:answer"
	TypeOrchestratorEnd   Type = "orchestrator:end"

	TypeSubtaskStart Type = "subtask:start"
	TypeSubtaskEnd   Type = "subtask:end"

	TypeSynthesisForced   Type = "synthesis:forced"
	TypeSynthesisStart    Type = "synthesis:start"
	TypeSynthesisComplete Type = "synthesis:complete"

	TypeMemoryRead  Type = "memory:read"
	TypeMemoryWrite Type = "memory:write"

	TypeVerificationStart    Type = "verification:start"
	TypeVerificationComplete Type = "verification:complete"

	TypeProgressUpdate Type = "progress:update"
	TypeStatusChange   Type = "status:change"
)

// Event is one entry on the bus. Seq is assigned by the bus at Emit time and
// must be zero when passed in. Payload carries the
// type-specific fields as a JSON-serializable value so subscribers that only
// need a subset of events do not need to import every payload type.
type Event struct {
	Type          Type
	Seq           uint64
	TimestampUnixMilli int64
	SessionID     string
	RunID         string
	TaskID        string
	AgentID       string
	ParentAgentID string
	TurnID        string
	Payload       any
}

// MarshalPayload renders Payload as canonical JSON, used by persistence
// sinks and the WebSocket surface.
func (e Event) MarshalPayload() ([]byte, error) {
	if e.Payload == nil {
		return []byte("null"), nil
	}
	return json.Marshal(e.Payload)
}
