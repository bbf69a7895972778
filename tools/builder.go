package tools

import (
	"context"
	"encoding/json"

	"github.com/becomeliminal/nim-autopilot/core"
)

// HandlerFunc runs an action with its validated, raw JSON arguments.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Builder assembles a core.Action.
//
//	tools.New("get_wallet_state").
//		Description("...").
//		Schema(tools.EmptySchema()).
//		Handler(fn).
//		Build()
type Builder struct {
	name        string
	description string
	schema      map[string]interface{}
	handler     HandlerFunc
}

// New starts building an action with the given name.
func New(name string) *Builder {
	return &Builder{name: name}
}

// Description sets the description shown to the reasoning backend.
func (b *Builder) Description(d string) *Builder {
	b.description = d
	return b
}

// Schema sets the argument schema.
func (b *Builder) Schema(s map[string]interface{}) *Builder {
	b.schema = s
	return b
}

// Handler sets the function invoked for each call.
func (b *Builder) Handler(h HandlerFunc) *Builder {
	b.handler = h
	return b
}

// Build returns the finished action. A missing schema defaults to an
// argument-less object.
func (b *Builder) Build() core.Action {
	schema := b.schema
	if schema == nil {
		schema = EmptySchema()
	}
	return &funcAction{
		name:        b.name,
		description: b.description,
		schema:      schema,
		handler:     b.handler,
	}
}

type funcAction struct {
	name        string
	description string
	schema      map[string]interface{}
	handler     HandlerFunc
}

func (a *funcAction) Name() string { return a.name }

func (a *funcAction) Description() string { return a.description }

func (a *funcAction) Schema() map[string]interface{} { return a.schema }

func (a *funcAction) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	if a.handler == nil {
		return "", errNoHandler
	}
	return a.handler(ctx, args)
}
