package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local is an in-process Store backed by cosine similarity over embeddings.
// Each agent key holds a bounded slice; the oldest memory is evicted once
// the cap is exceeded.
type Local struct {
	embedder Embedder
	maxPer   int

	mu      sync.RWMutex
	byAgent map[string][]stored
}

type stored struct {
	item      Item
	embedding []float32
}

// NewLocal creates a local store. maxPerAgent <= 0 defaults to 200.
func NewLocal(embedder Embedder, maxPerAgent int) *Local {
	if maxPerAgent <= 0 {
		maxPerAgent = 200
	}
	return &Local{
		embedder: embedder,
		maxPer:   maxPerAgent,
		byAgent:  make(map[string][]stored),
	}
}

func (l *Local) Store(ctx context.Context, agentKey, content string, metadata map[string]any, importance float64) (string, error) {
	emb, err := l.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed memory: %w", err)
	}

	item := Item{
		ID:         uuid.New().String(),
		AgentKey:   agentKey,
		Content:    content,
		Metadata:   metadata,
		Importance: clamp01(importance),
		CreatedAt:  time.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	memories := append(l.byAgent[agentKey], stored{item: item, embedding: emb})
	if len(memories) > l.maxPer {
		memories = memories[1:]
	}
	l.byAgent[agentKey] = memories
	return item.ID, nil
}

func (l *Local) RetrieveRelevant(ctx context.Context, agentKey, query string, limit int, threshold float64) ([]Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	queryEmb, err := l.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	l.mu.RLock()
	memories := l.byAgent[agentKey]
	scored := make([]Item, 0, len(memories))
	for _, m := range memories {
		sim := cosineSimilarity(queryEmb, m.embedding)
		if sim >= threshold {
			item := m.item
			item.Similarity = sim
			scored = append(scored, item)
		}
	}
	l.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Count returns the number of memories held for agentKey.
func (l *Local) Count(agentKey string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byAgent[agentKey])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
