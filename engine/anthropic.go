package engine

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/nim-autopilot/core"
)

const defaultMaxTokens int64 = 4096

// AnthropicBackend adapts the Anthropic Messages API to Backend.
type AnthropicBackend struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicBackend creates a backend that talks to the Messages API.
// httpClient carries the payment interceptor; baseURL may point at a
// pay-per-call gateway and is ignored when empty.
func NewAnthropicBackend(apiKey, baseURL string, httpClient *http.Client) *AnthropicBackend {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicBackend{
		client:    anthropic.NewClient(opts...),
		maxTokens: defaultMaxTokens,
	}
}

// ChatCompletion implements Backend.
func (b *AnthropicBackend) ChatCompletion(ctx context.Context, model string, messages []Message, opts *CompletionOptions) (*Completion, error) {
	system, params := toAnthropicMessages(messages)

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: b.maxTokens,
		Messages:  params,
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts != nil && len(opts.Tools) > 0 {
		req.Tools = toAnthropicTools(opts.Tools)
		switch opts.ToolChoice {
		case ToolChoiceAuto:
			req.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		case ToolChoiceNone:
			req.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		}
	}

	resp, err := b.client.Messages.New(ctx, req)
	if err != nil {
		return nil, err
	}

	var msg Message
	msg.Role = RoleAssistant
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}

	finish := string(resp.StopReason)
	if resp.StopReason == anthropic.StopReasonToolUse {
		finish = FinishReasonToolCalls
	}
	return &Completion{Choices: []Choice{{Message: msg, FinishReason: finish}}}, nil
}

// toAnthropicMessages splits out the system prompt and folds consecutive
// tool results into a single user turn, which is how the Messages API
// expects them.
func toAnthropicMessages(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	var out []anthropic.MessageParam
	var pending []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pending) > 0 {
			out = append(out, anthropic.NewUserMessage(pending...))
			pending = nil
		}
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = m.Content
		case RoleTool:
			pending = append(pending, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, toolInput(call.Arguments), call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()
	return system, out
}

// toolInput replays the backend's own arguments. Arguments that are not a
// JSON object are replaced by an empty one so the transcript stays valid.
func toolInput(raw string) any {
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return map[string]any{}
	}
	return v
}

func toAnthropicTools(defs []core.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema := anthropic.ToolInputSchemaParam{Properties: d.Parameters["properties"]}
		if req, ok := d.Parameters["required"].([]string); ok {
			schema.Required = req
		}
		tool := anthropic.ToolParam{
			Name:        d.Name,
			InputSchema: schema,
		}
		if d.Description != "" {
			tool.Description = anthropic.String(d.Description)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools
}
