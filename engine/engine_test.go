package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/engine"
)

const (
	hashA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type call struct {
	messages []engine.Message
	opts     *engine.CompletionOptions
}

// scriptedBackend replays completions in order and records every call.
type scriptedBackend struct {
	replies []*engine.Completion
	err     error
	calls   []call
}

func (b *scriptedBackend) ChatCompletion(ctx context.Context, model string, messages []engine.Message, opts *engine.CompletionOptions) (*engine.Completion, error) {
	b.calls = append(b.calls, call{messages: append([]engine.Message(nil), messages...), opts: opts})
	if b.err != nil {
		return nil, b.err
	}
	if len(b.replies) == 0 {
		return answer("done"), nil
	}
	next := b.replies[0]
	b.replies = b.replies[1:]
	return next, nil
}

func answer(text string) *engine.Completion {
	return &engine.Completion{Choices: []engine.Choice{{
		Message:      engine.Message{Role: engine.RoleAssistant, Content: text},
		FinishReason: "stop",
	}}}
}

func toolCalls(calls ...engine.ToolCall) *engine.Completion {
	return &engine.Completion{Choices: []engine.Choice{{
		Message:      engine.Message{Role: engine.RoleAssistant, ToolCalls: calls},
		FinishReason: engine.FinishReasonToolCalls,
	}}}
}

// recordingDispatcher returns canned results and records call order.
type recordingDispatcher struct {
	results map[string]string
	order   []string
}

func (d *recordingDispatcher) Invoke(ctx context.Context, name, argsJSON string) string {
	d.order = append(d.order, name)
	if r, ok := d.results[name]; ok {
		return r
	}
	return `Error: unknown tool "` + name + `"`
}

var someTools = []core.ToolDefinition{{Name: "get_wallet_state", Parameters: map[string]interface{}{"type": "object"}}}

func TestRun_NoToolCallsReturnsText(t *testing.T) {
	backend := &scriptedBackend{replies: []*engine.Completion{answer("all good")}}
	e := engine.New(backend, &recordingDispatcher{})

	res, err := e.Run(context.Background(), &engine.Input{Model: "m", SystemPrompt: "sys", UserPrompt: "user", Tools: someTools})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ResponseText != "all good" {
		t.Errorf("ResponseText = %q", res.ResponseText)
	}
	if len(res.ToolExecutions) != 0 || len(res.TxHashes) != 0 {
		t.Errorf("expected empty ledger, got %+v", res)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("backend called %d times, want 1", len(backend.calls))
	}

	first := backend.calls[0]
	if first.messages[0].Role != engine.RoleSystem || first.messages[0].Content != "sys" {
		t.Errorf("first message = %+v, want system prompt", first.messages[0])
	}
	if first.messages[1].Role != engine.RoleUser || first.messages[1].Content != "user" {
		t.Errorf("second message = %+v, want user prompt", first.messages[1])
	}
	if first.opts == nil || first.opts.ToolChoice != "auto" || len(first.opts.Tools) != 1 {
		t.Errorf("opts = %+v, want tools with auto choice", first.opts)
	}
}

func TestRun_NoToolsOffersNoOptions(t *testing.T) {
	backend := &scriptedBackend{}
	e := engine.New(backend, &recordingDispatcher{})

	if _, err := e.Run(context.Background(), &engine.Input{Model: "m"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if backend.calls[0].opts != nil {
		t.Errorf("expected nil options when no tools are offered, got %+v", backend.calls[0].opts)
	}
}

func TestRun_LedgerOrderMatchesCallOrder(t *testing.T) {
	backend := &scriptedBackend{replies: []*engine.Completion{
		toolCalls(
			engine.ToolCall{ID: "1", Name: "a", Arguments: `{"x":"1"}`},
			engine.ToolCall{ID: "2", Name: "b", Arguments: `{}`},
		),
		toolCalls(engine.ToolCall{ID: "3", Name: "c", Arguments: `{}`}),
		answer("finished"),
	}}
	d := &recordingDispatcher{results: map[string]string{"a": "A", "b": "B", "c": "C"}}
	e := engine.New(backend, d)

	res, err := e.Run(context.Background(), &engine.Input{Tools: someTools})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(res.ToolExecutions) != len(want) {
		t.Fatalf("got %d executions, want %d", len(res.ToolExecutions), len(want))
	}
	for i, name := range want {
		if res.ToolExecutions[i].Name != name {
			t.Errorf("execution %d = %s, want %s", i, res.ToolExecutions[i].Name, name)
		}
		if d.order[i] != name {
			t.Errorf("dispatch %d = %s, want %s", i, d.order[i], name)
		}
	}
	if res.ToolExecutions[0].Args["x"] != "1" {
		t.Errorf("args = %v, want x=1", res.ToolExecutions[0].Args)
	}

	// Round two sees the assistant turn and both tool results, in order.
	second := backend.calls[1].messages
	if len(second) != 5 {
		t.Fatalf("second call saw %d messages, want 5", len(second))
	}
	if second[2].Role != engine.RoleAssistant || len(second[2].ToolCalls) != 2 {
		t.Errorf("message 2 = %+v, want assistant with two tool calls", second[2])
	}
	if second[3].ToolCallID != "1" || second[3].Content != "A" || second[4].ToolCallID != "2" || second[4].Content != "B" {
		t.Errorf("tool messages out of order: %+v %+v", second[3], second[4])
	}
}

// countingDispatcher answers each call with its sequence number.
type countingDispatcher struct{ n int }

func (d *countingDispatcher) Invoke(ctx context.Context, name, argsJSON string) string {
	d.n++
	return fmt.Sprintf("%s call %d", name, d.n)
}

func TestRun_SameCallTwiceInOneRoundRecordsTwoExecutions(t *testing.T) {
	backend := &scriptedBackend{replies: []*engine.Completion{
		toolCalls(
			engine.ToolCall{ID: "1", Name: "get_wallet_state", Arguments: `{"thought":"check"}`},
			engine.ToolCall{ID: "2", Name: "get_wallet_state", Arguments: `{"thought":"check"}`},
		),
		answer("checked twice"),
	}}
	d := &countingDispatcher{}

	res, err := engine.New(backend, d).Run(context.Background(), &engine.Input{Tools: someTools})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if d.n != 2 {
		t.Fatalf("dispatched %d times, want 2", d.n)
	}
	if len(res.ToolExecutions) != 2 {
		t.Fatalf("got %d executions, want 2", len(res.ToolExecutions))
	}
	first, second := res.ToolExecutions[0], res.ToolExecutions[1]
	if first.Result != "get_wallet_state call 1" || second.Result != "get_wallet_state call 2" {
		t.Errorf("results = %q, %q", first.Result, second.Result)
	}
	if first.Args["thought"] != "check" || second.Args["thought"] != "check" {
		t.Errorf("args = %v, %v", first.Args, second.Args)
	}
	first.Args["thought"] = "changed"
	if second.Args["thought"] != "check" {
		t.Error("executions share their args map")
	}
}

func TestRun_ExtractsTransactionHashes(t *testing.T) {
	backend := &scriptedBackend{replies: []*engine.Completion{
		toolCalls(
			engine.ToolCall{ID: "1", Name: "swap", Arguments: `{}`},
			engine.ToolCall{ID: "2", Name: "read", Arguments: `{}`},
		),
		answer("ok"),
	}}
	d := &recordingDispatcher{results: map[string]string{
		"swap": "Swapped. Approve hash: " + hashA + " Swap Hash " + hashB,
		"read": "balance 5",
	}}
	e := engine.New(backend, d)

	res, err := e.Run(context.Background(), &engine.Input{Tools: someTools})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.ToolExecutions[0].TxHash != hashA {
		t.Errorf("TxHash = %q, want first match %q", res.ToolExecutions[0].TxHash, hashA)
	}
	if res.ToolExecutions[1].TxHash != "" {
		t.Errorf("read TxHash = %q, want empty", res.ToolExecutions[1].TxHash)
	}
	if len(res.TxHashes) != 2 || res.TxHashes[0] != hashA || res.TxHashes[1] != hashB {
		t.Errorf("TxHashes = %v, want [%s %s]", res.TxHashes, hashA, hashB)
	}
}

func TestRun_TxHashExtractionCanBeDisabled(t *testing.T) {
	backend := &scriptedBackend{replies: []*engine.Completion{
		toolCalls(engine.ToolCall{ID: "1", Name: "swap", Arguments: `{}`}),
		answer("ok"),
	}}
	d := &recordingDispatcher{results: map[string]string{"swap": "Hash: " + hashA}}
	e := engine.New(backend, d, engine.WithTxHashExtraction(false))

	res, err := e.Run(context.Background(), &engine.Input{Tools: someTools})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.TxHashes) != 0 || res.ToolExecutions[0].TxHash != "" {
		t.Errorf("expected no hashes, got %v / %q", res.TxHashes, res.ToolExecutions[0].TxHash)
	}
}

func TestRun_UnparsableArgsRecordedAsNil(t *testing.T) {
	backend := &scriptedBackend{replies: []*engine.Completion{
		toolCalls(engine.ToolCall{ID: "1", Name: "a", Arguments: `{not json`}),
		answer("ok"),
	}}
	d := &recordingDispatcher{results: map[string]string{"a": "Error executing a: bad input"}}
	e := engine.New(backend, d)

	res, err := e.Run(context.Background(), &engine.Input{Tools: someTools})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ToolExecutions[0].Args != nil {
		t.Errorf("Args = %v, want nil", res.ToolExecutions[0].Args)
	}
	if res.ToolExecutions[0].Result != "Error executing a: bad input" {
		t.Errorf("Result = %q", res.ToolExecutions[0].Result)
	}
}

func TestRun_UnknownToolDoesNotAbort(t *testing.T) {
	backend := &scriptedBackend{replies: []*engine.Completion{
		toolCalls(engine.ToolCall{ID: "1", Name: "ghost", Arguments: `{}`}),
		answer("recovered"),
	}}
	e := engine.New(backend, &recordingDispatcher{})

	res, err := e.Run(context.Background(), &engine.Input{Tools: someTools})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ResponseText != "recovered" {
		t.Errorf("ResponseText = %q", res.ResponseText)
	}
	if !strings.Contains(res.ToolExecutions[0].Result, "unknown tool") {
		t.Errorf("Result = %q, want unknown tool text", res.ToolExecutions[0].Result)
	}
}

func TestRun_BudgetExhaustionMakesOneFinalCallWithToolsDisabled(t *testing.T) {
	var replies []*engine.Completion
	for i := 0; i < 3; i++ {
		replies = append(replies, toolCalls(engine.ToolCall{ID: "x", Name: "a", Arguments: `{}`}))
	}
	backend := &scriptedBackend{replies: append(replies, answer("final words"))}

	d := &recordingDispatcher{results: map[string]string{"a": "A"}}
	e := engine.New(backend, d, engine.WithMaxRounds(3))

	res, err := e.Run(context.Background(), &engine.Input{Tools: someTools})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(backend.calls) != 4 {
		t.Fatalf("backend called %d times, want maxRounds+1 = 4", len(backend.calls))
	}
	final := backend.calls[3].opts
	if final == nil || final.ToolChoice != engine.ToolChoiceNone || len(final.Tools) != len(someTools) {
		t.Errorf("final call options = %+v, want tools declared with choice none", final)
	}
	if res.ResponseText != "final words" {
		t.Errorf("ResponseText = %q", res.ResponseText)
	}
	if len(res.ToolExecutions) != 3 {
		t.Errorf("got %d executions, want 3", len(res.ToolExecutions))
	}
}

func TestRun_DefaultBudgetIsTenRounds(t *testing.T) {
	var replies []*engine.Completion
	for i := 0; i < engine.DefaultMaxRounds; i++ {
		replies = append(replies, toolCalls(engine.ToolCall{ID: "x", Name: "a", Arguments: `{}`}))
	}
	backend := &scriptedBackend{replies: replies}
	e := engine.New(backend, &recordingDispatcher{results: map[string]string{"a": "A"}})

	if _, err := e.Run(context.Background(), &engine.Input{Tools: someTools}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(backend.calls) != engine.DefaultMaxRounds+1 {
		t.Errorf("backend called %d times, want %d", len(backend.calls), engine.DefaultMaxRounds+1)
	}
}

func TestRun_ToolCallsWithStopFinishReasonEndLoop(t *testing.T) {
	reply := toolCalls(engine.ToolCall{ID: "1", Name: "a", Arguments: `{}`})
	reply.Choices[0].FinishReason = "stop"
	reply.Choices[0].Message.Content = "never mind"
	backend := &scriptedBackend{replies: []*engine.Completion{reply}}
	d := &recordingDispatcher{results: map[string]string{"a": "A"}}

	res, err := engine.New(backend, d).Run(context.Background(), &engine.Input{Tools: someTools})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(d.order) != 0 {
		t.Errorf("tools executed despite stop finish reason: %v", d.order)
	}
	if res.ResponseText != "never mind" {
		t.Errorf("ResponseText = %q", res.ResponseText)
	}
}

func TestRun_BackendErrorPropagates(t *testing.T) {
	sentinel := errors.New("payment required")
	backend := &scriptedBackend{err: sentinel}
	e := engine.New(backend, &recordingDispatcher{})

	res, err := e.Run(context.Background(), &engine.Input{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Run() error = %v, want %v", err, sentinel)
	}
	if res != nil {
		t.Errorf("expected nil result on error, got %+v", res)
	}
}
