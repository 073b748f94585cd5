// Package memory implements the three-tier memory manager: an in-process
// short tier, a relational mid tier, and a relational+vector long tier,
// with importance-driven routing between them and periodic consolidation.
package memory

import (
	"context"
	"fmt"
	"time"
)

// Tier names where a MemoryEntry currently lives. An entry is owned by
// exactly one tier at a time; promotion moves it rather than copying it.
type Tier string

const (
	TierShort Tier = "short"
	TierMid   Tier = "mid"
	TierLong  Tier = "long"
)

// Default capacities, TTLs, and routing thresholds, per the manager's
// contract.
const (
	DefaultMaxShort = 10
	DefaultMaxMid   = 100
	DefaultMaxLong  = 1000

	DefaultTTLShort = time.Hour
	DefaultTTLMid   = 24 * time.Hour

	DefaultLongThreshold = 0.7
	DefaultMidThreshold  = 0.5

	DefaultRecallLimit = 10

	DefaultConsolidationInterval = 5 * time.Minute
)

// Entry is one unit of remembered content.
type Entry struct {
	ID             string
	AgentID        string
	ThreadID       string
	Tier           Tier
	Content        string
	Importance     float64
	Embedding      []float32
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
	Metadata       map[string]any
	ExpiresAt      *time.Time
}

// EmbeddingFunc embeds a batch of texts, preserving input order.
type EmbeddingFunc func(ctx context.Context, texts []string) ([][]float32, error)

// VectorStore is the pluggable semantic index the long tier recalls
// against. Implementations: pkg/memory/vectorindex (chromem-go, qdrant).
type VectorStore interface {
	AddDocuments(ctx context.Context, docs []VectorDocument) error
	SearchByVector(ctx context.Context, vector []float32, opts VectorSearchOptions) ([]VectorResult, error)
	DeleteDocuments(ctx context.Context, ids []string) error
}

// VectorDocument is one record added to a VectorStore.
type VectorDocument struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]any
}

// VectorSearchOptions bounds a VectorStore search.
type VectorSearchOptions struct {
	Limit    int
	MinScore float64
	Filter   map[string]any
}

// VectorResult is one hit from a VectorStore search.
type VectorResult struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// RememberOptions customizes a single Remember call.
type RememberOptions struct {
	AgentID  string
	ThreadID string

	// Importance, when non-nil, skips evaluation and is used as-is.
	Importance *float64

	// Tier, when non-empty, forces routing regardless of importance.
	Tier Tier

	Metadata map[string]any
}

// RecallOptions customizes a single Recall call.
type RecallOptions struct {
	AgentID       string
	ThreadID      string
	Limit         int
	MinScore      float64
	IncludeRecent bool
}

// GetContextOptions customizes a GetContext bundle.
type GetContextOptions struct {
	AgentID string
	JSON    bool
}

// ConsolidationResult reports how many entries moved or expired during one
// consolidation pass.
type ConsolidationResult struct {
	ShortToLong int
	ShortToMid  int
	ShortExpired int
	MidToLong   int
	MidExpired  int
	Errors      []error
}

// StoreUnavailableError wraps a failure reaching the mid/long relational
// store or its vector index; consolidation continues on other tiers.
type StoreUnavailableError struct {
	Tier  Tier
	Cause error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("memory: %s store unavailable: %v", e.Tier, e.Cause)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Cause }

// EmbeddingFailedError wraps an embedding function failure.
type EmbeddingFailedError struct {
	Cause error
}

func (e *EmbeddingFailedError) Error() string { return fmt.Sprintf("memory: embedding failed: %v", e.Cause) }
func (e *EmbeddingFailedError) Unwrap() error  { return e.Cause }
