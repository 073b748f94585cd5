package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbPool is the slice of *pgxpool.Pool's API the store needs, narrowed so
// tests can substitute a fake without a live Postgres connection.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQLStore is the pgx-backed Store implementation for threads, messages,
// and workflow runs.
type SQLStore struct {
	pool dbPool
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an existing pool. The caller owns the pool's lifecycle.
func NewSQLStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{pool: pool}
}

// Init creates the threads/messages/workflow_runs tables. Safe to call
// repeatedly.
func (s *SQLStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			title TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content JSONB NOT NULL,
			tool_calls JSONB,
			tool_results JSONB,
			token_usage JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_thread_idx ON messages (thread_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			state JSONB,
			current_step TEXT,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS workflow_runs_status_idx ON workflow_runs (status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: sqlstore init: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) CreateThread(ctx context.Context, t *Thread) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal thread metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO threads (id, title, metadata, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Title, metadata, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create thread: %w", err)
	}
	return nil
}

func (s *SQLStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, metadata, created_at, updated_at FROM threads WHERE id = $1`, id)
	t, err := scanThread(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("store: thread %q not found", id)
		}
		return nil, fmt.Errorf("store: get thread: %w", err)
	}
	return t, nil
}

func (s *SQLStore) UpdateThread(ctx context.Context, t *Thread) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal thread metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE threads SET title=$1, metadata=$2, updated_at=$3 WHERE id=$4`,
		t.Title, metadata, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("store: update thread: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteThread(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete thread: %w", err)
	}
	return nil
}

func (s *SQLStore) ListThreads(ctx context.Context, limit int) ([]*Thread, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, metadata, created_at, updated_at FROM threads ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list threads: %w", err)
	}
	defer rows.Close()

	var out []*Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan thread: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) AddMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, thread_id, role, content, tool_calls, tool_results, token_usage, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ThreadID, m.Role, m.Content, m.ToolCalls, m.ToolResults, m.TokenUsage, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: add message: %w", err)
	}
	return nil
}

func (s *SQLStore) ListMessages(ctx context.Context, threadID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, role, content, tool_calls, tool_results, token_usage, created_at
		 FROM messages WHERE thread_id = $1 ORDER BY created_at ASC LIMIT $2`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateRun(ctx context.Context, r *WorkflowRun) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_runs (id, workflow_name, status, state, current_step, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.WorkflowName, string(r.Status), r.State, r.CurrentStep, r.Error, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (*WorkflowRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, workflow_name, status, state, current_step, error, created_at, updated_at
		 FROM workflow_runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("store: run %q not found", id)
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return r, nil
}

func (s *SQLStore) UpdateRun(ctx context.Context, r *WorkflowRun) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE workflow_runs SET status=$1, state=$2, current_step=$3, error=$4, updated_at=$5 WHERE id=$6`,
		string(r.Status), r.State, r.CurrentStep, r.Error, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("store: update run: %w", err)
	}
	return nil
}

func (s *SQLStore) ListRuns(ctx context.Context, status RunStatus, limit int) ([]*WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, workflow_name, status, state, current_step, error, created_at, updated_at
		 FROM workflow_runs WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*WorkflowRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*Thread, error) {
	var t Thread
	var metadata []byte
	if err := row.Scan(&t.ID, &t.Title, &metadata, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal thread metadata: %w", err)
		}
	}
	return &t, nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.ToolCalls, &m.ToolResults, &m.TokenUsage, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanRun(row rowScanner) (*WorkflowRun, error) {
	var r WorkflowRun
	var status string
	if err := row.Scan(&r.ID, &r.WorkflowName, &status, &r.State, &r.CurrentStep, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	return &r, nil
}
