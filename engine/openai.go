package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/becomeliminal/nim-autopilot/core"
)

// OpenAIBackend speaks the chat-completions wire format used by
// pay-per-call inference gateways.
type OpenAIBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIBackend creates a chat-completions backend rooted at baseURL
// (for example "https://gateway.example/v1").
func NewOpenAIBackend(baseURL, apiKey string, httpClient *http.Client) *OpenAIBackend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAIBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ChatCompletion implements Backend.
func (b *OpenAIBackend) ChatCompletion(ctx context.Context, model string, messages []Message, opts *CompletionOptions) (*Completion, error) {
	req := chatRequest{Model: model}
	for _, m := range messages {
		req.Messages = append(req.Messages, toChatMessage(m))
	}
	if opts != nil && len(opts.Tools) > 0 {
		req.Tools = toChatTools(opts.Tools)
		req.ToolChoice = opts.ToolChoice
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("chat completion: %s", decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completion: status %d", resp.StatusCode)
	}

	out := &Completion{}
	for _, c := range decoded.Choices {
		msg := Message{Role: RoleAssistant}
		if c.Message.Content != nil {
			msg.Content = *c.Message.Content
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out.Choices = append(out.Choices, Choice{Message: msg, FinishReason: c.FinishReason})
	}
	return out, nil
}

func toChatMessage(m Message) chatMessage {
	cm := chatMessage{Role: m.Role, ToolCallID: m.ToolCallID}
	if m.Content != "" || len(m.ToolCalls) == 0 {
		content := m.Content
		cm.Content = &content
	}
	for _, call := range m.ToolCalls {
		tc := chatToolCall{ID: call.ID, Type: "function"}
		tc.Function.Name = call.Name
		tc.Function.Arguments = call.Arguments
		cm.ToolCalls = append(cm.ToolCalls, tc)
	}
	return cm
}

func toChatTools(defs []core.ToolDefinition) []chatTool {
	tools := make([]chatTool, 0, len(defs))
	for _, d := range defs {
		var t chatTool
		t.Type = "function"
		t.Function.Name = d.Name
		t.Function.Description = d.Description
		t.Function.Parameters = d.Parameters
		tools = append(tools, t)
	}
	return tools
}
