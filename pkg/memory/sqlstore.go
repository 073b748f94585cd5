package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbPool is the slice of *pgxpool.Pool's API the store needs, narrowed so
// tests can substitute a fake without a live Postgres connection (pgxpool
// manages native connections and can't be driven through database/sql
// mocking libraries the way a database/sql.DB can).
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQLStore is the pgx-backed Store implementation for the mid and long
// tiers. Both tiers share one `memories` table, discriminated by the
// `tier` column, mirroring the teacher's one-table-per-concern SQL style.
type SQLStore struct {
	pool dbPool
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an existing pool. The caller owns the pool's lifecycle.
func NewSQLStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{pool: pool}
}

// Init creates the memories table and its indices. Safe to call repeatedly.
func (s *SQLStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			thread_id TEXT NOT NULL DEFAULT '',
			tier TEXT NOT NULL,
			content TEXT NOT NULL,
			importance DOUBLE PRECISION NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			last_accessed_at TIMESTAMPTZ NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			expires_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS memories_agent_tier_idx ON memories (agent_id, tier)`,
		`CREATE INDEX IF NOT EXISTS memories_thread_idx ON memories (thread_id)`,
		`CREATE INDEX IF NOT EXISTS memories_importance_idx ON memories (importance)`,
		`CREATE INDEX IF NOT EXISTS memories_last_accessed_idx ON memories (last_accessed_at)`,
		`CREATE INDEX IF NOT EXISTS memories_expires_idx ON memories (expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("memory: sqlstore init: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Add(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("memory: marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO memories (id, agent_id, thread_id, tier, content, importance, metadata, created_at, last_accessed_at, access_count, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.AgentID, e.ThreadID, string(e.Tier), e.Content, e.Importance, metadata,
		e.CreatedAt, e.LastAccessedAt, e.AccessCount, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("memory: insert entry: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, agent_id, thread_id, tier, content, importance, metadata, created_at, last_accessed_at, access_count, expires_at
		 FROM memories WHERE id = $1`, id)
	e, err := scanEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("memory: entry %q not found", id)
		}
		return nil, fmt.Errorf("memory: get entry: %w", err)
	}
	return e, nil
}

func (s *SQLStore) Update(ctx context.Context, e *Entry) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("memory: marshal metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE memories SET tier=$1, content=$2, importance=$3, metadata=$4, last_accessed_at=$5, access_count=$6, expires_at=$7
		 WHERE id=$8`,
		string(e.Tier), e.Content, e.Importance, metadata, e.LastAccessedAt, e.AccessCount, e.ExpiresAt, e.ID)
	if err != nil {
		return fmt.Errorf("memory: update entry: %w", err)
	}
	return nil
}

// Delete removes ids in one statement and tolerates ids already gone
// (the lost side of a concurrent eviction race).
func (s *SQLStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("memory: delete entries: %w", err)
	}
	return nil
}

func (s *SQLStore) Query(ctx context.Context, opts QueryOptions) ([]*Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}

	query := fmt.Sprintf(
		`SELECT id, agent_id, thread_id, tier, content, importance, metadata, created_at, last_accessed_at, access_count, expires_at
		 FROM memories WHERE agent_id = $1 AND tier = $2 AND ($3 = '' OR thread_id = $3)
		 ORDER BY %s LIMIT $4`, orderByClause(opts.OrderBy))

	rows, err := s.pool.Query(ctx, query, opts.AgentID, string(opts.Tier), opts.ThreadID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: query entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Search does a text LIKE fallback over content; used when no semantic
// index is configured or available.
func (s *SQLStore) Search(ctx context.Context, opts SearchOptions) ([]*Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, thread_id, tier, content, importance, metadata, created_at, last_accessed_at, access_count, expires_at
		 FROM memories WHERE agent_id = $1 AND tier = $2 AND ($3 = '' OR thread_id = $3) AND content ILIKE $4
		 ORDER BY importance DESC LIMIT $5`,
		opts.AgentID, string(opts.Tier), opts.ThreadID, "%"+opts.Query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("memory: search entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *SQLStore) RecordAccess(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = $1 WHERE id = $2`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("memory: record access: %w", err)
	}
	return nil
}

func (s *SQLStore) GetStats(ctx context.Context, agentID string, tier Tier) (Stats, error) {
	var stats Stats
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(importance), 0) FROM memories WHERE agent_id = $1 AND tier = $2`,
		agentID, string(tier))
	if err := row.Scan(&stats.Count, &stats.AverageImportance); err != nil {
		return Stats{}, fmt.Errorf("memory: get stats: %w", err)
	}
	return stats, nil
}

// orderByClause translates a QueryOrder into its SQL ORDER BY clause.
func orderByClause(order QueryOrder) string {
	if order == OrderImportanceAscending {
		return "importance ASC, access_count ASC, created_at ASC"
	}
	return "created_at DESC"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var tier string
	var metadata []byte
	if err := row.Scan(&e.ID, &e.AgentID, &e.ThreadID, &tier, &e.Content, &e.Importance, &metadata,
		&e.CreatedAt, &e.LastAccessedAt, &e.AccessCount, &e.ExpiresAt); err != nil {
		return nil, err
	}
	e.Tier = Tier(tier)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			slog.Warn("memory: failed to unmarshal entry metadata", "id", e.ID, "error", err)
		}
	}
	return &e, nil
}

func scanEntries(rows pgx.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("memory: scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
