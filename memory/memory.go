package memory

import (
	"context"
	"time"

	"github.com/becomeliminal/nim-autopilot/core"
)

// Memory is one stored item.
type Memory interface {
	// Identity & Ownership
	ID() string
	OwnerID() string // Wallet address the memory belongs to
	CycleID() string // Cycle that produced it
	Type() string    // Memory type identifier (e.g., "phase")

	// Content & Metadata
	Content() interface{}
	Metadata() map[string]interface{}

	// Temporal
	CreatedAt() time.Time

	// Operations
	Format(ctx FormatContext) string // Formats this memory for prompt injection
	Embedding() []float32
	SetEmbedding([]float32)
}

// FormatContext bounds how a memory renders itself.
type FormatContext struct {
	OwnerID   string
	Query     string
	MaxLength int // Max characters for this memory's output
}

// Manager orchestrates memory operations for the cycle orchestrator.
type Manager interface {
	// Retrieve finds past phases related to query and returns them
	// formatted for prompt injection, or "" when there are none.
	Retrieve(ctx context.Context, ownerID string, query string) (string, error)

	// RecordPhase stores the published digest of a phase. The manager
	// decides whether the phase is worth keeping.
	RecordPhase(ctx context.Context, ownerID string, phaseType core.ActivityType, activity *core.Activity) error
}

// Store is the vector storage backend interface.
type Store interface {
	// Store saves a memory. Its embedding must be set.
	Store(ctx context.Context, mem Memory) error

	// Query returns up to limit memories of ownerID, most similar first.
	Query(ctx context.Context, ownerID string, embedding []float32, limit int) ([]Memory, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
