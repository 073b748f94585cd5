package memory

import "context"

// QueryOptions filters a relational tier Query call.
type QueryOptions struct {
	AgentID  string
	ThreadID string
	Tier     Tier
	Limit    int
	OrderBy  QueryOrder
}

// QueryOrder names a Store's supported sort orders.
type QueryOrder string

const (
	OrderRecent              QueryOrder = "recent"
	OrderImportanceAscending QueryOrder = "importance_asc"
)

// SearchOptions filters a relational tier Search (text) call.
type SearchOptions struct {
	AgentID  string
	ThreadID string
	Tier     Tier
	Query    string
	Limit    int
}

// Stats summarizes one agent's footprint in a tier.
type Stats struct {
	Count          int
	AverageImportance float64
}

// Store is the relational memory store contract backing the mid and long
// tiers: add/get/update/delete by id, filtered query and text search,
// access-tracking, and per-agent stats.
type Store interface {
	Add(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, opts QueryOptions) ([]*Entry, error)
	Search(ctx context.Context, opts SearchOptions) ([]*Entry, error)
	RecordAccess(ctx context.Context, id string) error
	GetStats(ctx context.Context, agentID string, tier Tier) (Stats, error)
}
