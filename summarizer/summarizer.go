// Package summarizer condenses a phase into a short human-readable digest.
package summarizer

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/engine"
)

const (
	maxReasoningInPrompt = 1000
	fallbackLength       = 200
)

var providerPrefix = regexp.MustCompile(`^[A-Za-z]+Provider_`)

// Summarizer asks a backend for a one or two sentence digest of a phase.
type Summarizer struct {
	backend engine.Backend
}

// New creates a summarizer backed by backend.
func New(backend engine.Backend) *Summarizer {
	return &Summarizer{backend: backend}
}

// Summarize returns a digest of the phase. It never fails: when the
// backend errors or answers with nothing, the head of the reasoning is
// used instead.
func (s *Summarizer) Summarize(ctx context.Context, model string, phaseType core.ActivityType, reasoning string, execs []core.ToolExecution) string {
	prompt := Prompt(phaseType, reasoning, execs)

	resp, err := s.backend.ChatCompletion(ctx, model, []engine.Message{
		{Role: engine.RoleUser, Content: prompt},
	}, nil)
	if err != nil {
		log.Printf("[SUMMARY] failed to summarize %s: %v", phaseType, err)
		return head(reasoning, fallbackLength)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return head(reasoning, fallbackLength)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

// Prompt builds the summarization request for a phase.
func Prompt(phaseType core.ActivityType, reasoning string, execs []core.ToolExecution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this %s phase in 1-2 short sentences. Focus on what was done and the outcome. No preamble.\n\n", phaseType)
	fmt.Fprintf(&b, "Reasoning: %s\n", head(reasoning, maxReasoningInPrompt))
	if tools := ToolList(execs); tools != "" {
		fmt.Fprintf(&b, "Tools called: %s", tools)
	} else {
		b.WriteString("No tools called.")
	}
	return b.String()
}

// ToolList renders executions as "name, name (tx: 0x12345678...)".
func ToolList(execs []core.ToolExecution) string {
	parts := make([]string, 0, len(execs))
	for _, e := range execs {
		name := providerPrefix.ReplaceAllString(e.Name, "")
		if e.TxHash != "" {
			name = fmt.Sprintf("%s (tx: %s...)", name, head(e.TxHash, 10))
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}

// head returns the first n characters of s.
func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
