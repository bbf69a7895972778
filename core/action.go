package core

import (
	"context"
	"encoding/json"
)

// Action is a named, schema-described operation the reasoning backend can call.
//
// Invoke returns the text that is fed back into the transcript. Business
// failures ("insufficient balance") are ordinary results; a non-nil error is
// reserved for failures the action could not express itself and is converted
// to text by the registry.
type Action interface {
	// Name is the globally unique tool name.
	Name() string

	// Description tells the reasoning backend when to use the action.
	Description() string

	// Schema is the JSON Schema (object) describing the arguments.
	Schema() map[string]interface{}

	// Invoke runs the action with already validated arguments.
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolDefinition is the backend-facing description of an action.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}
