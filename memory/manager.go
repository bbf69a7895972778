package memory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/becomeliminal/nim-autopilot/core"
)

// SimpleManager is the Manager backed by a Store and an Embedder.
type SimpleManager struct {
	store    Store
	embedder Embedder
	config   *Config
}

// NewSimpleManager creates a new SimpleManager.
func NewSimpleManager(store Store, embedder Embedder, config *Config) *SimpleManager {
	if config == nil {
		config = DefaultConfig
	}
	return &SimpleManager{
		store:    store,
		embedder: embedder,
		config:   config,
	}
}

// Retrieve finds related past phases and returns them formatted.
func (m *SimpleManager) Retrieve(ctx context.Context, ownerID string, query string) (string, error) {
	if !m.config.Enabled {
		return "", nil
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	memories, err := m.store.Query(ctx, ownerID, embedding, m.config.maxResults())
	if err != nil {
		return "", fmt.Errorf("query store: %w", err)
	}

	log.Printf("[MEMORY] Retrieved %d memories for query: %q", len(memories), truncateLog(query, 50))
	if len(memories) == 0 {
		return "", nil
	}
	return m.formatMemories(memories, ownerID, query), nil
}

// RecordPhase stores a published phase if it is worth remembering.
func (m *SimpleManager) RecordPhase(ctx context.Context, ownerID string, phaseType core.ActivityType, activity *core.Activity) error {
	if !m.config.Enabled || activity == nil {
		return nil
	}
	if !worthStoring(phaseType, activity) {
		log.Printf("[MEMORY] Skipping routine %s phase", phaseType)
		return nil
	}

	mem := NewPhaseMemory(ownerID, phaseType, activity)
	embedding, err := m.embedder.Embed(ctx, mem.FormatForEmbedding())
	if err != nil {
		return fmt.Errorf("embed phase: %w", err)
	}
	mem.SetEmbedding(embedding)

	if err := m.store.Store(ctx, mem); err != nil {
		return fmt.Errorf("store phase: %w", err)
	}
	log.Printf("[MEMORY] Stored %s phase of cycle %s (%d tools)", phaseType, activity.CycleID, len(mem.Tools))
	return nil
}

// worthStoring drops inventory phases whose tools neither moved funds nor
// triggered anything; every other phase is kept. Activity.TxHashes is not
// consulted since it also carries inference payment receipts.
func worthStoring(phaseType core.ActivityType, activity *core.Activity) bool {
	if phaseType != core.ActivityInventory {
		return true
	}
	for _, t := range activity.Tools {
		if t.TxHash != "" || strings.HasPrefix(t.Name, "trigger_") {
			return true
		}
	}
	return false
}

func (m *SimpleManager) formatMemories(memories []Memory, ownerID string, query string) string {
	var parts []string
	parts = append(parts, "=== RELEVANT PAST PHASES ===\n")

	maxLengthPerMemory := 2000 / len(memories)
	if maxLengthPerMemory < 100 {
		maxLengthPerMemory = 100
	}

	for i, mem := range memories {
		formatted := mem.Format(FormatContext{
			OwnerID:   ownerID,
			Query:     query,
			MaxLength: maxLengthPerMemory,
		})
		parts = append(parts, fmt.Sprintf("%d. %s\n", i+1, formatted))
	}

	return strings.Join(parts, "\n")
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Config holds SimpleManager configuration.
type Config struct {
	// Enabled toggles memory on/off.
	// Default: false (opt-in).
	Enabled bool

	// MaxResults caps how many past phases Retrieve returns.
	// Default: 5
	MaxResults int
}

func (c *Config) maxResults() int {
	if c.MaxResults <= 0 {
		return 5
	}
	return c.MaxResults
}

// DefaultConfig leaves memory disabled.
var DefaultConfig = &Config{
	Enabled:    false,
	MaxResults: 5,
}
