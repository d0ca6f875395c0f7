// Package model defines the provider-agnostic message and LLM client types
// consumed by the iteration loop and planner. The LLM itself is a black-box
// dependency; this package only describes the shape
// of the contract, not any particular provider's wire format.
package model

import "context"

// ConversationRole is the role of a message within a conversation.
type ConversationRole string

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
	RoleSystem    ConversationRole = "system"
)

type (
	// Part is a marker interface implemented by every message content part.
	// Concrete implementations capture plain text, provider-issued
	// reasoning ("thinking"), and tool call/result content in typed form
	// rather than as loosely structured maps.
	Part interface{ isPart() }

	// TextPart is a plain-text content block.
	TextPart struct{ Text string }

	// ThinkingPart carries provider-issued reasoning content. Some
	// providers surface this for transparency; others never populate it.
	ThinkingPart struct{ Text string }

	// ToolUsePart represents a tool call requested by the model.
	ToolUsePart struct {
		ID    string
		Name  string
		Input []byte // canonical JSON
	}

	// ToolResultPart represents a tool result fed back to the model.
	ToolResultPart struct {
		ToolUseID string
		Content   string
		IsError   bool
	}

	// Message is one turn in the conversation sent to/from the LLM.
	Message struct {
		Role  ConversationRole
		Parts []Part
	}

	// Tool describes one callable tool offered to the model for a single
	// call. Schema is the JSON schema for the tool's input.
	Tool struct {
		Name        string
		Description string
		Schema      []byte
	}

	// ToolCall is one tool invocation requested by the model in a single
	// response.
	ToolCall struct {
		ID    string
		Name  string
		Input []byte
	}

	// Usage reports token accounting for a single LLM call.
	Usage struct {
		PromptTokens     int
		CompletionTokens int
	}

	// StopReason classifies why the model stopped generating.
	StopReason string

	// Response is the result of a single LLM call.
	Response struct {
		Content    string
		ToolCalls  []ToolCall
		Usage      Usage
		StopReason StopReason
	}

	// Client is the minimal contract a model provider adapter must
	// satisfy. Implementations are tier-tagged ("small"|"medium"|"large");
	// the orchestrator resolves a tier to a concrete Client via
	// configuration rather than through this interface.
	Client interface {
		Chat(ctx context.Context, messages []Message, tools []Tool, temperature float64, maxTokens int) (*Response, error)
	}

	// Tier is the ordinal capability class of a Client.
	Tier string
)

const (
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

const (
	StopReasonToolUse       StopReason = "tool_use"
	StopReasonEndTurn       StopReason = "end_turn"
	StopReasonMaxTokens     StopReason = "max_tokens"
	StopReasonStopSequence  StopReason = "stop_sequence"
)

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// TextContent concatenates every TextPart in a message, ignoring thinking
// and tool parts. Useful for middlewares that only care about user-visible
// narration (e.g. the "no_tool_calls" stop condition).
func (m Message) TextContent() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// Registry resolves a Tier to a concrete Client, allowing the orchestrator
// to escalate tiers without hard-coding provider wiring.
type Registry interface {
	Resolve(tier Tier) (Client, bool)
}

// staticRegistry is a Registry backed by a fixed map, sufficient for tests
// and simple deployments that configure tiers once at start-up.
type staticRegistry struct{ clients map[Tier]Client }

// NewStaticRegistry returns a Registry that always resolves tiers from the
// given map.
func NewStaticRegistry(clients map[Tier]Client) Registry {
	cp := make(map[Tier]Client, len(clients))
	for k, v := range clients {
		cp[k] = v
	}
	return &staticRegistry{clients: cp}
}

func (r *staticRegistry) Resolve(tier Tier) (Client, bool) {
	c, ok := r.clients[tier]
	return c, ok
}
