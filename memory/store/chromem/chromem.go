// Package chromem keeps phase memories in an embedded chromem-go database,
// one collection per wallet.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-autopilot/core"
	"github.com/becomeliminal/nim-autopilot/memory"
)

// ChromemStore is an in-process memory.Store.
type ChromemStore struct {
	db *chromem.DB

	mu      sync.Mutex
	byOwner map[string]*chromem.Collection
}

// New creates an empty store.
func New() (*ChromemStore, error) {
	return &ChromemStore{
		db:      chromem.NewDB(),
		byOwner: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the owner's collection, creating it on first use.
// Wallet addresses are compared case-insensitively.
func (s *ChromemStore) collection(ownerID string) (*chromem.Collection, error) {
	key := strings.ToLower(ownerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.byOwner[key]; ok {
		return col, nil
	}

	name := "phases"
	if key != "" {
		name = "phases_" + key
	}
	// Embeddings always come from memory.Embedder, so no embedding func.
	col, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	s.byOwner[key] = col
	return col, nil
}

// record is the document body of a stored phase.
type record struct {
	Phase    core.ActivityType `json:"phase"`
	Model    string            `json:"model"`
	Summary  string            `json:"summary"`
	Tools    []string          `json:"tools"`
	TxHashes []string          `json:"txHashes,omitempty"`
}

// Store adds mem. Only phase memories are accepted.
func (s *ChromemStore) Store(ctx context.Context, mem memory.Memory) error {
	phase, ok := mem.(*memory.PhaseMemory)
	if !ok {
		return fmt.Errorf("unsupported memory type %q", mem.Type())
	}
	if len(phase.Embedding()) == 0 {
		return fmt.Errorf("memory %s has no embedding", phase.ID())
	}
	col, err := s.collection(phase.OwnerID())
	if err != nil {
		return err
	}

	body, err := json.Marshal(record{
		Phase:    phase.Phase,
		Model:    phase.Model,
		Summary:  phase.Summary,
		Tools:    phase.Tools,
		TxHashes: phase.TxHashes,
	})
	if err != nil {
		return fmt.Errorf("marshal phase memory: %w", err)
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        phase.ID(),
		Content:   string(body),
		Embedding: phase.Embedding(),
		Metadata: map[string]string{
			"owner":   phase.OwnerID(),
			"cycle":   phase.CycleID(),
			"phase":   string(phase.Phase),
			"created": phase.CreatedAt().UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("add phase memory: %w", err)
	}
	log.Printf("[CHROMEM] stored %s phase of cycle %s for %s", phase.Phase, phase.CycleID(), phase.OwnerID())
	return nil
}

// Query returns up to limit of the owner's memories closest to embedding.
func (s *ChromemStore) Query(ctx context.Context, ownerID string, embedding []float32, limit int) ([]memory.Memory, error) {
	col, err := s.collection(ownerID)
	if err != nil {
		return nil, err
	}

	// chromem-go rejects nResults above the collection size.
	n := min(limit, col.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query phase memories: %w", err)
	}

	out := make([]memory.Memory, 0, len(results))
	for _, r := range results {
		mem, err := decode(r)
		if err != nil {
			log.Printf("[CHROMEM] skipping %s: %v", r.ID, err)
			continue
		}
		out = append(out, mem)
	}
	return out, nil
}

// Close is a no-op; everything lives in memory.
func (s *ChromemStore) Close() error {
	return nil
}

func decode(r chromem.Result) (*memory.PhaseMemory, error) {
	var rec record
	if err := json.Unmarshal([]byte(r.Content), &rec); err != nil {
		return nil, fmt.Errorf("decode phase memory: %w", err)
	}
	created, _ := time.Parse(time.RFC3339Nano, r.Metadata["created"])

	return memory.NewPhaseMemoryFromStorage(
		r.ID,
		r.Metadata["owner"],
		r.Metadata["cycle"],
		created,
		r.Embedding,
		rec.Phase,
		rec.Model,
		rec.Summary,
		rec.Tools,
		rec.TxHashes,
		map[string]interface{}{"phase": string(rec.Phase), "model": rec.Model},
	), nil
}
