// Package memstore is the semantic memory collaborator: agents write
// condensed exchange summaries and retrieve the most similar prior memories
// as advisory prompt context. Consolidation and pruning policy live behind
// the interface, not in the callers.
package memstore

import (
	"context"
	"time"
)

// Item is one retrieved memory. Similarity is populated only on retrieval.
type Item struct {
	ID         string
	AgentKey   string
	Content    string
	Metadata   map[string]any
	Importance float64 // [0,1]
	Similarity float64 // similarity to the query, [0,1]
	CreatedAt  time.Time
}

// Store is the contract the agent core consumes.
type Store interface {
	// RetrieveRelevant returns up to limit memories for agentKey whose
	// similarity to query meets threshold, most similar first.
	RetrieveRelevant(ctx context.Context, agentKey, query string, limit int, threshold float64) ([]Item, error)

	// Store persists a memory and returns its id.
	Store(ctx context.Context, agentKey, content string, metadata map[string]any, importance float64) (string, error)
}

// Embedder turns text into a vector for similarity comparison.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
