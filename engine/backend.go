package engine

import (
	"context"

	"github.com/becomeliminal/nim-autopilot/core"
)

// Message roles in a reasoning transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// FinishReasonToolCalls is the finish reason of a completion that wants
// tools executed before it can answer.
const FinishReasonToolCalls = "tool_calls"

// Message is one entry of the transcript sent to a Backend.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string
}

// ToolCall is a tool invocation requested by the backend. Arguments is the
// raw JSON text exactly as the backend produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool choices understood by every Backend.
const (
	ToolChoiceAuto = "auto"

	// ToolChoiceNone keeps the tools declared, since the transcript may
	// already reference them, but forbids calling any.
	ToolChoiceNone = "none"
)

// CompletionOptions are the per-call options of a chat completion.
type CompletionOptions struct {
	Tools      []core.ToolDefinition
	ToolChoice string
}

// Completion is a backend response. Only the first choice is used.
type Completion struct {
	Choices []Choice
}

// Choice is one candidate answer of a completion.
type Choice struct {
	Message      Message
	FinishReason string
}

// Backend is a pay-per-call reasoning service.
type Backend interface {
	// ChatCompletion sends the transcript and returns the backend's reply.
	// opts may be nil, in which case no tools are offered.
	ChatCompletion(ctx context.Context, model string, messages []Message, opts *CompletionOptions) (*Completion, error)
}
