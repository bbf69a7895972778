package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/becomeliminal/nim-autopilot/core"
)

var errNoHandler = errors.New("action has no handler")

// Registry maps tool names to actions and dispatches calls by name.
//
// Invoke never returns an error: whatever happens, the caller gets text that
// can go straight into the reasoning transcript.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

type entry struct {
	action    core.Action
	validator *openapi3.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds actions to the registry. A later action with the same name
// replaces the earlier one.
func (r *Registry) Register(actions ...core.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range actions {
		name := a.Name()
		if _, exists := r.entries[name]; exists {
			log.Printf("[TOOL] %s registered twice, keeping the last registration", name)
		} else {
			r.order = append(r.order, name)
		}

		validator, err := compileSchema(a.Schema())
		if err != nil {
			log.Printf("[TOOL] %s: schema not usable for validation: %v", name, err)
		}
		r.entries[name] = &entry{action: a, validator: validator}
	}
}

// Get returns the action registered under name.
func (r *Registry) Get(name string) (core.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.action, true
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns tool definitions for the named actions, in the order
// given. With no names it returns every action. Unknown names are skipped.
func (r *Registry) Definitions(names ...string) []core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		names = r.order
	}

	defs := make([]core.ToolDefinition, 0, len(names))
	for _, name := range names {
		e, ok := r.entries[name]
		if !ok {
			log.Printf("[TOOL] no action named %s, leaving it out of the tool set", name)
			continue
		}
		defs = append(defs, core.ToolDefinition{
			Name:        name,
			Description: e.action.Description(),
			Parameters:  e.action.Schema(),
		})
	}
	return defs
}

// Invoke parses and validates rawArgs, runs the named action and returns its
// result. Unknown tools, bad arguments, handler errors and handler panics
// all come back as descriptive text.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs string) (result string) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return `Error: unknown tool "` + name + `"`
	}

	defer func() {
		if p := recover(); p != nil {
			log.Printf("[TOOL] %s panicked: %v", name, p)
			result = executionError(name, fmt.Errorf("panic: %v", p))
		}
	}()

	args := strings.TrimSpace(rawArgs)
	if args == "" {
		args = "{}"
	}

	var value interface{}
	if err := json.Unmarshal([]byte(args), &value); err != nil {
		return executionError(name, err)
	}
	if e.validator != nil {
		if err := e.validator.VisitJSON(value); err != nil {
			return executionError(name, validationMessage(err))
		}
	}

	out, err := e.action.Invoke(ctx, json.RawMessage(args))
	if err != nil {
		return executionError(name, err)
	}
	return out
}

func executionError(name string, err error) string {
	return fmt.Sprintf("Error executing %s: %s", name, err.Error())
}

// compileSchema turns an action's JSON Schema into a kin-openapi validator.
func compileSchema(schema map[string]interface{}) (*openapi3.Schema, error) {
	if schema == nil {
		return nil, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var compiled openapi3.Schema
	if err := json.Unmarshal(raw, &compiled); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return &compiled, nil
}

// validationMessage reduces a kin-openapi error to the part worth showing
// the backend: the offending field and the reason.
func validationMessage(err error) error {
	var schemaErr *openapi3.SchemaError
	if !errors.As(err, &schemaErr) {
		return err
	}
	reason := schemaErr.Reason
	if path := schemaErr.JSONPointer(); len(path) > 0 {
		reason = strings.Join(path, ".") + ": " + reason
	}
	return errors.New(reason)
}
