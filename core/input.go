package core

// BaseInput provides common fields for all action inputs.
// Actions embed this struct to accept the agent's reasoning alongside their
// arguments.
type BaseInput struct {
	// Thought contains the agent's reasoning about why it's using this action.
	// Optional for read actions, required by the schema of state-changing ones.
	Thought string `json:"thought,omitempty"`
}
