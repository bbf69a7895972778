package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-autopilot/core"
)

// PhaseType is the Type() of PhaseMemory.
const PhaseType = "phase"

// PhaseMemory is the digest of one published phase.
type PhaseMemory struct {
	id        string
	ownerID   string
	cycleID   string
	createdAt time.Time
	embedding []float32
	metadata  map[string]interface{}

	Phase    core.ActivityType
	Model    string
	Summary  string
	Tools    []string
	TxHashes []string
}

// NewPhaseMemory creates a PhaseMemory from a published activity.
func NewPhaseMemory(ownerID string, phaseType core.ActivityType, activity *core.Activity) *PhaseMemory {
	tools := make([]string, 0, len(activity.Tools))
	for _, t := range activity.Tools {
		tools = append(tools, t.Name)
	}
	return &PhaseMemory{
		id:        uuid.New().String(),
		ownerID:   ownerID,
		cycleID:   activity.CycleID,
		createdAt: time.Now(),
		metadata: map[string]interface{}{
			"phase": string(phaseType),
			"model": activity.Model,
		},
		Phase:    phaseType,
		Model:    activity.Model,
		Summary:  activity.Summary,
		Tools:    tools,
		TxHashes: append([]string(nil), activity.TxHashes...),
	}
}

// NewPhaseMemoryFromStorage rebuilds a PhaseMemory read back from a Store.
func NewPhaseMemoryFromStorage(
	id string,
	ownerID string,
	cycleID string,
	createdAt time.Time,
	embedding []float32,
	phase core.ActivityType,
	model string,
	summary string,
	tools []string,
	txHashes []string,
	metadata map[string]interface{},
) *PhaseMemory {
	return &PhaseMemory{
		id:        id,
		ownerID:   ownerID,
		cycleID:   cycleID,
		createdAt: createdAt,
		embedding: embedding,
		metadata:  metadata,
		Phase:     phase,
		Model:     model,
		Summary:   summary,
		Tools:     tools,
		TxHashes:  txHashes,
	}
}

func (p *PhaseMemory) ID() string {
	return p.id
}

func (p *PhaseMemory) OwnerID() string {
	return p.ownerID
}

func (p *PhaseMemory) CycleID() string {
	return p.cycleID
}

func (p *PhaseMemory) Type() string {
	return PhaseType
}

func (p *PhaseMemory) Content() interface{} {
	return map[string]interface{}{
		"phase":    string(p.Phase),
		"model":    p.Model,
		"summary":  p.Summary,
		"tools":    p.Tools,
		"txHashes": p.TxHashes,
	}
}

func (p *PhaseMemory) Metadata() map[string]interface{} {
	return p.metadata
}

func (p *PhaseMemory) CreatedAt() time.Time {
	return p.createdAt
}

func (p *PhaseMemory) Embedding() []float32 {
	return p.embedding
}

func (p *PhaseMemory) SetEmbedding(emb []float32) {
	p.embedding = emb
}

// Format renders the phase as one dated line plus its tools.
func (p *PhaseMemory) Format(ctx FormatContext) string {
	line := fmt.Sprintf("[%s, %s] %s", p.Phase, p.createdAt.UTC().Format("2006-01-02 15:04"), p.Summary)
	if len(p.Tools) > 0 {
		line += "\n  Tools: " + strings.Join(p.Tools, ", ")
	}
	if len(p.TxHashes) > 0 {
		line += fmt.Sprintf("\n  Transactions: %d", len(p.TxHashes))
	}
	if ctx.MaxLength > 0 {
		line = truncate(line, ctx.MaxLength)
	}
	return line
}

// FormatForEmbedding returns the text the phase is indexed under.
func (p *PhaseMemory) FormatForEmbedding() string {
	return fmt.Sprintf("%s: %s\nTools: %s", p.Phase, p.Summary, strings.Join(p.Tools, " "))
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
