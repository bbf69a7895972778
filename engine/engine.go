package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"

	"github.com/becomeliminal/nim-autopilot/core"
)

// DefaultMaxRounds bounds the number of tool-bearing backend calls per run.
const DefaultMaxRounds = 10

var txHashPattern = regexp.MustCompile(`[Hh]ash:?\s*(0x[a-fA-F0-9]{64})`)

var errNoChoices = errors.New("backend returned no choices")

// Dispatcher executes a tool call by name. It never fails: problems come
// back as text for the backend to read.
type Dispatcher interface {
	Invoke(ctx context.Context, name string, argsJSON string) string
}

// Engine runs the bounded tool-calling loop against a reasoning backend.
type Engine struct {
	backend    Backend
	dispatcher Dispatcher
	maxRounds  int
	extractTx  bool
}

// Option configures the engine.
type Option func(*Engine)

// WithMaxRounds sets the maximum number of tool-bearing rounds.
func WithMaxRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRounds = n
		}
	}
}

// WithTxHashExtraction toggles scanning tool results for transaction hashes.
// Enabled by default.
func WithTxHashExtraction(enabled bool) Option {
	return func(e *Engine) {
		e.extractTx = enabled
	}
}

// New creates an engine that reasons with backend and executes tools
// through dispatcher.
func New(backend Backend, dispatcher Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		backend:    backend,
		dispatcher: dispatcher,
		maxRounds:  DefaultMaxRounds,
		extractTx:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input represents the input to a loop run.
type Input struct {
	// Model is the backend model to use.
	Model string

	// SystemPrompt frames the phase.
	SystemPrompt string

	// UserPrompt carries the phase's situation.
	UserPrompt string

	// Tools is the subset of actions offered during this run.
	Tools []core.ToolDefinition
}

// Run drives the backend until it answers without requesting tools or the
// round budget is spent. When the budget is spent one last call is made
// that may not call tools and its text becomes the response.
//
// Backend errors abort the run. Tool problems never do.
func (e *Engine) Run(ctx context.Context, input *Input) (*core.LoopResult, error) {
	messages := []Message{
		{Role: RoleSystem, Content: input.SystemPrompt},
		{Role: RoleUser, Content: input.UserPrompt},
	}

	var opts *CompletionOptions
	if len(input.Tools) > 0 {
		opts = &CompletionOptions{Tools: input.Tools, ToolChoice: ToolChoiceAuto}
	}

	result := &core.LoopResult{}

	for round := 0; round < e.maxRounds; round++ {
		choice, err := e.complete(ctx, input.Model, messages, opts)
		if err != nil {
			return nil, err
		}

		msg := choice.Message
		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})

		if choice.FinishReason != FinishReasonToolCalls || len(msg.ToolCalls) == 0 {
			result.ResponseText = msg.Content
			return result, nil
		}

		for _, call := range msg.ToolCalls {
			log.Printf("[TOOL] calling %s(%s)", call.Name, call.Arguments)
			out := e.dispatcher.Invoke(ctx, call.Name, call.Arguments)
			log.Printf("[TOOL] %s -> %s", call.Name, truncate(out, 200))

			exec := core.ToolExecution{
				Name:   call.Name,
				Args:   parseArgs(call.Arguments),
				Result: out,
			}
			if e.extractTx {
				for _, m := range txHashPattern.FindAllStringSubmatch(out, -1) {
					if exec.TxHash == "" {
						exec.TxHash = m[1]
					}
					result.TxHashes = append(result.TxHashes, m[1])
				}
			}
			result.ToolExecutions = append(result.ToolExecutions, exec)

			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    out,
				ToolCallID: call.ID,
			})
		}
	}

	log.Printf("[LLM] max tool rounds (%d) reached, requesting final answer", e.maxRounds)
	var final *CompletionOptions
	if opts != nil {
		final = &CompletionOptions{Tools: opts.Tools, ToolChoice: ToolChoiceNone}
	}
	choice, err := e.complete(ctx, input.Model, messages, final)
	if err != nil {
		return nil, err
	}
	result.ResponseText = choice.Message.Content
	return result, nil
}

func (e *Engine) complete(ctx context.Context, model string, messages []Message, opts *CompletionOptions) (*Choice, error) {
	resp, err := e.backend.ChatCompletion(ctx, model, messages, opts)
	if err != nil {
		return nil, fmt.Errorf("backend completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errNoChoices
	}
	return &resp.Choices[0], nil
}

// parseArgs decodes a tool call's arguments for the execution ledger.
// Unparsable arguments yield nil. Non-string values keep their JSON text.
func parseArgs(raw string) map[string]string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return nil
	}
	args := make(map[string]string, len(fields))
	for k, v := range fields {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			args[k] = s
			continue
		}
		args[k] = string(v)
	}
	return args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
