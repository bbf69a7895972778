package summarizer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/engine"
	"github.com/becomeliminal/nim-autopilot/summarizer"
)

type stubBackend struct {
	reply  string
	err    error
	prompt string
	opts   *engine.CompletionOptions
}

func (b *stubBackend) ChatCompletion(ctx context.Context, model string, messages []engine.Message, opts *engine.CompletionOptions) (*engine.Completion, error) {
	b.prompt = messages[len(messages)-1].Content
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return &engine.Completion{Choices: []engine.Choice{{Message: engine.Message{Content: b.reply}}}}, nil
}

func TestSummarize_UsesBackendAnswer(t *testing.T) {
	b := &stubBackend{reply: "  Swapped ETH for credit.  "}
	s := summarizer.New(b)

	got := s.Summarize(context.Background(), "m", core.ActivitySurvival, "low credit", []core.ToolExecution{
		{Name: "AlephProvider_swap_eth_to_credit", TxHash: "0x1234567890abcdef"},
		{Name: "get_compute_credit_info"},
	})
	if got != "Swapped ETH for credit." {
		t.Errorf("Summarize() = %q", got)
	}
	if b.opts != nil {
		t.Errorf("summary call offered tools")
	}
	if !strings.Contains(b.prompt, "Tools called: swap_eth_to_credit (tx: 0x12345678...), get_compute_credit_info") {
		t.Errorf("prompt = %q", b.prompt)
	}
	if !strings.Contains(b.prompt, "survival phase") {
		t.Errorf("prompt does not name the phase: %q", b.prompt)
	}
}

func TestSummarize_FallsBackToReasoningHead(t *testing.T) {
	reasoning := strings.Repeat("r", 500)

	got := summarizer.New(&stubBackend{err: errors.New("402")}).
		Summarize(context.Background(), "m", core.ActivityInventory, reasoning, nil)
	if got != strings.Repeat("r", 200) {
		t.Errorf("fallback length = %d, want 200", len(got))
	}

	got = summarizer.New(&stubBackend{reply: ""}).
		Summarize(context.Background(), "m", core.ActivityInventory, "short", nil)
	if got != "short" {
		t.Errorf("Summarize() = %q, want reasoning on empty answer", got)
	}
}

type silentBackend struct{}

func (silentBackend) ChatCompletion(ctx context.Context, model string, messages []engine.Message, opts *engine.CompletionOptions) (*engine.Completion, error) {
	return nil, nil
}

func TestSummarize_NilCompletionFallsBack(t *testing.T) {
	got := summarizer.New(silentBackend{}).
		Summarize(context.Background(), "m", core.ActivitySurvival, "topped up credit", nil)
	if got != "topped up credit" {
		t.Errorf("Summarize() = %q, want reasoning", got)
	}
}

func TestPrompt_CapsReasoningAndNotesNoTools(t *testing.T) {
	p := summarizer.Prompt(core.ActivityStrategy, strings.Repeat("x", 3000), nil)
	if strings.Count(p, "x") != 1000 {
		t.Errorf("reasoning in prompt = %d chars, want 1000", strings.Count(p, "x"))
	}
	if !strings.HasSuffix(p, "No tools called.") {
		t.Errorf("prompt = %q", p)
	}
}
