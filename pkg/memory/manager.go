package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Config wires one Manager's dependencies and tunables. MidStore and
// LongStore may be the same Store (a shared `memories` table
// discriminated by Tier) or distinct ones.
type Config struct {
	MidStore  Store
	LongStore Store
	Vector    VectorStore // optional: enables semantic recall/routing in the long tier
	Embed     EmbeddingFunc // optional: required for Vector to be used

	Evaluator Evaluator // defaults to RuleBasedEvaluator

	MaxShort int
	MaxMid   int
	MaxLong  int

	TTLShort time.Duration
	TTLMid   time.Duration

	LongThreshold float64
	MidThreshold  float64

	ConsolidationInterval time.Duration

	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.Evaluator == nil {
		c.Evaluator = RuleBasedEvaluator
	}
	if c.MaxShort <= 0 {
		c.MaxShort = DefaultMaxShort
	}
	if c.MaxMid <= 0 {
		c.MaxMid = DefaultMaxMid
	}
	if c.MaxLong <= 0 {
		c.MaxLong = DefaultMaxLong
	}
	if c.TTLShort <= 0 {
		c.TTLShort = DefaultTTLShort
	}
	if c.TTLMid <= 0 {
		c.TTLMid = DefaultTTLMid
	}
	if c.LongThreshold <= 0 {
		c.LongThreshold = DefaultLongThreshold
	}
	if c.MidThreshold <= 0 {
		c.MidThreshold = DefaultMidThreshold
	}
	if c.ConsolidationInterval <= 0 {
		c.ConsolidationInterval = DefaultConsolidationInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Manager is the tiered memory manager: it owns one short tier per agent
// and routes through the shared mid/long stores, scoped by agent id.
type Manager struct {
	cfg Config

	mu         sync.Mutex
	shortTiers map[string]*shortTier // agentID -> tier

	cron *cron.Cron
}

// New builds a Manager. Call Start to begin periodic consolidation.
func New(cfg Config) *Manager {
	cfg.setDefaults()
	return &Manager{cfg: cfg, shortTiers: make(map[string]*shortTier)}
}

func (m *Manager) shortTierFor(agentID string) *shortTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.shortTiers[agentID]
	if !ok {
		t = newShortTier(m.cfg.MaxShort, m.cfg.TTLShort, m.cfg.Now)
		m.shortTiers[agentID] = t
	}
	return t
}

func (m *Manager) agentIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.shortTiers))
	for id := range m.shortTiers {
		ids = append(ids, id)
	}
	return ids
}

// Remember evaluates (or accepts) an importance score, optionally embeds
// the content, and routes the resulting entry to short, mid, or long.
func (m *Manager) Remember(ctx context.Context, content string, opts RememberOptions) (*Entry, error) {
	importance, err := m.resolveImportance(ctx, content, opts.Importance)
	if err != nil {
		return nil, err
	}

	now := m.cfg.Now()
	entry := &Entry{
		ID:             uuid.NewString(),
		AgentID:        opts.AgentID,
		ThreadID:       opts.ThreadID,
		Content:        content,
		Importance:     importance,
		CreatedAt:      now,
		LastAccessedAt: now,
		Metadata:       opts.Metadata,
	}

	tier := opts.Tier
	if tier == "" {
		tier = m.routeTier(importance)
	}
	entry.Tier = tier

	if tier == TierLong && m.cfg.Embed != nil {
		embeddings, err := m.cfg.Embed(ctx, []string{content})
		if err != nil {
			slog.Warn("memory: embedding failed, storing without vector", "agent", opts.AgentID, "error", err)
		} else if len(embeddings) == 1 {
			entry.Embedding = embeddings[0]
		}
	}

	if err := m.store(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (m *Manager) resolveImportance(ctx context.Context, content string, override *float64) (float64, error) {
	if override != nil {
		return clamp01(*override), nil
	}
	return m.cfg.Evaluator(ctx, content)
}

func (m *Manager) routeTier(importance float64) Tier {
	switch {
	case importance >= m.cfg.LongThreshold:
		return TierLong
	case importance >= m.cfg.MidThreshold:
		return TierMid
	default:
		return TierShort
	}
}

func (m *Manager) store(ctx context.Context, e *Entry) error {
	switch e.Tier {
	case TierShort:
		m.shortTierFor(e.AgentID).add(e)
		return nil
	case TierMid:
		if m.cfg.MidStore == nil {
			return &StoreUnavailableError{Tier: TierMid, Cause: fmt.Errorf("no mid store configured")}
		}
		if err := m.cfg.MidStore.Add(ctx, e); err != nil {
			return &StoreUnavailableError{Tier: TierMid, Cause: err}
		}
		m.evictIfOverCapacity(ctx, m.cfg.MidStore, nil, e.AgentID, TierMid, m.cfg.MaxMid)
		return nil
	case TierLong:
		return m.storeLong(ctx, e)
	default:
		return fmt.Errorf("memory: unknown tier %q", e.Tier)
	}
}

// evictIfOverCapacity deletes the lowest-(importance,accessCount,createdAt)
// entries once a tier exceeds its capacity. Victim ids are selected before
// any delete, so concurrent eviction races tolerate a missing row.
func (m *Manager) evictIfOverCapacity(ctx context.Context, store Store, vector VectorStore, agentID string, tier Tier, capacity int) {
	stats, err := store.GetStats(ctx, agentID, tier)
	if err != nil {
		slog.Warn("memory: eviction stats check failed", "tier", tier, "agent", agentID, "error", err)
		return
	}
	if stats.Count <= capacity {
		return
	}

	victims, err := store.Query(ctx, QueryOptions{AgentID: agentID, Tier: tier, Limit: stats.Count - capacity, OrderBy: OrderImportanceAscending})
	if err != nil {
		slog.Warn("memory: eviction query failed", "tier", tier, "agent", agentID, "error", err)
		return
	}
	if len(victims) == 0 {
		return
	}

	ids := make([]string, 0, len(victims))
	for _, v := range victims {
		ids = append(ids, v.ID)
	}
	if err := store.Delete(ctx, ids); err != nil {
		slog.Warn("memory: eviction delete failed", "tier", tier, "agent", agentID, "error", err)
		return
	}
	if vector != nil {
		if err := vector.DeleteDocuments(ctx, ids); err != nil {
			slog.Warn("memory: eviction vector delete failed", "tier", tier, "agent", agentID, "error", err)
		}
	}
}

func (m *Manager) storeLong(ctx context.Context, e *Entry) error {
	if m.cfg.LongStore == nil {
		return &StoreUnavailableError{Tier: TierLong, Cause: fmt.Errorf("no long store configured")}
	}
	if err := m.cfg.LongStore.Add(ctx, e); err != nil {
		return &StoreUnavailableError{Tier: TierLong, Cause: err}
	}
	if m.cfg.Vector != nil && len(e.Embedding) > 0 {
		doc := VectorDocument{ID: e.ID, Content: e.Content, Embedding: e.Embedding, Metadata: map[string]any{
			"agent_id": e.AgentID, "thread_id": e.ThreadID,
		}}
		if err := m.cfg.Vector.AddDocuments(ctx, []VectorDocument{doc}); err != nil {
			slog.Warn("memory: vector index add failed", "id", e.ID, "error", err)
		}
	}
	m.evictIfOverCapacity(ctx, m.cfg.LongStore, m.cfg.Vector, e.AgentID, TierLong, m.cfg.MaxLong)
	return nil
}

// Recall gathers the most relevant entries across tiers: most-recent-K
// from short (when IncludeRecent), semantic or text search in long,
// recent top-K in mid. Deduplicated by id, short first then by
// importance descending, truncated to Limit and filtered by MinScore.
func (m *Manager) Recall(ctx context.Context, query string, opts RecallOptions) ([]*Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}

	seen := make(map[string]bool)
	var short, rest []*Entry

	if opts.IncludeRecent {
		for _, e := range m.shortTierFor(opts.AgentID).recent(limit) {
			if !seen[e.ID] {
				seen[e.ID] = true
				short = append(short, e)
			}
		}
	}

	longEntries, err := m.recallLong(ctx, query, opts, limit)
	if err != nil {
		slog.Warn("memory: long-tier recall failed", "agent", opts.AgentID, "error", err)
	}
	for _, e := range longEntries {
		if !seen[e.ID] {
			seen[e.ID] = true
			rest = append(rest, e)
		}
	}

	if m.cfg.MidStore != nil {
		midEntries, err := m.cfg.MidStore.Query(ctx, QueryOptions{AgentID: opts.AgentID, ThreadID: opts.ThreadID, Tier: TierMid, Limit: limit, OrderBy: OrderRecent})
		if err != nil {
			slog.Warn("memory: mid-tier recall failed", "agent", opts.AgentID, "error", err)
		}
		for _, e := range midEntries {
			if !seen[e.ID] {
				seen[e.ID] = true
				rest = append(rest, e)
			}
		}
	}

	sortByImportanceDesc(rest)

	out := append(short, rest...)
	if opts.MinScore > 0 {
		out = filterByScore(out, opts.MinScore)
	}
	if len(out) > limit {
		out = out[:limit]
	}

	for _, e := range out {
		m.recordAccess(ctx, e)
	}
	return out, nil
}

func (m *Manager) recallLong(ctx context.Context, query string, opts RecallOptions, limit int) ([]*Entry, error) {
	if m.cfg.LongStore == nil {
		return nil, nil
	}

	if m.cfg.Vector != nil && m.cfg.Embed != nil && query != "" {
		embeddings, err := m.cfg.Embed(ctx, []string{query})
		if err == nil && len(embeddings) == 1 {
			results, err := m.cfg.Vector.SearchByVector(ctx, embeddings[0], VectorSearchOptions{Limit: limit, Filter: map[string]any{"agent_id": opts.AgentID}})
			if err != nil {
				return nil, fmt.Errorf("vector search: %w", err)
			}
			out := make([]*Entry, 0, len(results))
			for _, r := range results {
				entry, err := m.cfg.LongStore.Get(ctx, r.ID)
				if err != nil {
					continue
				}
				out = append(out, entry)
			}
			return out, nil
		}
	}

	return m.cfg.LongStore.Search(ctx, SearchOptions{AgentID: opts.AgentID, ThreadID: opts.ThreadID, Tier: TierLong, Query: query, Limit: limit})
}

func (m *Manager) recordAccess(ctx context.Context, e *Entry) {
	switch e.Tier {
	case TierShort:
		m.shortTierFor(e.AgentID).recordAccess(e.ID)
	case TierMid:
		if m.cfg.MidStore != nil {
			if err := m.cfg.MidStore.RecordAccess(ctx, e.ID); err != nil {
				slog.Warn("memory: record access failed", "id", e.ID, "error", err)
			}
		}
	case TierLong:
		if m.cfg.LongStore != nil {
			if err := m.cfg.LongStore.RecordAccess(ctx, e.ID); err != nil {
				slog.Warn("memory: record access failed", "id", e.ID, "error", err)
			}
		}
	}
}

// GetContext formats a textual context bundle: Recent (short), Earlier
// (mid), Relevant Knowledge (long, semantically matched against the most
// recent short entry).
func (m *Manager) GetContext(ctx context.Context, threadID string, opts GetContextOptions) (string, error) {
	short := m.shortTierFor(opts.AgentID).recent(DefaultMaxShort)

	var mid []*Entry
	if m.cfg.MidStore != nil {
		var err error
		mid, err = m.cfg.MidStore.Query(ctx, QueryOptions{AgentID: opts.AgentID, ThreadID: threadID, Tier: TierMid, OrderBy: OrderRecent})
		if err != nil {
			slog.Warn("memory: context mid query failed", "agent", opts.AgentID, "error", err)
		}
	}

	var long []*Entry
	if len(short) > 0 {
		query := short[0].Content
		var err error
		long, err = m.recallLong(ctx, query, RecallOptions{AgentID: opts.AgentID, ThreadID: threadID}, DefaultRecallLimit)
		if err != nil {
			slog.Warn("memory: context long recall failed", "agent", opts.AgentID, "error", err)
		}
	}

	var b strings.Builder
	writeSection(&b, "Recent", short)
	writeSection(&b, "Earlier", mid)
	writeSection(&b, "Relevant Knowledge", long)
	return b.String(), nil
}

func writeSection(b *strings.Builder, title string, entries []*Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, e := range entries {
		fmt.Fprintf(b, "- %s\n", e.Content)
	}
}

// Consolidate runs one idempotent pass for every agent with entries in
// the short tier: promotes short->long/mid by importance, expires stale
// short/mid entries, and promotes mid->long. Per-tier failures are
// collected rather than aborting the whole pass.
func (m *Manager) Consolidate(ctx context.Context) ConsolidationResult {
	var result ConsolidationResult

	for _, agentID := range m.agentIDs() {
		short := m.shortTierFor(agentID)

		promoted := short.take(func(e *Entry) bool { return e.Importance >= m.cfg.LongThreshold })
		for _, e := range promoted {
			e.Tier = TierLong
			if err := m.storeLong(ctx, e); err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			result.ShortToLong++
		}

		toMid := short.take(func(e *Entry) bool { return e.Importance >= m.cfg.MidThreshold && e.Importance < m.cfg.LongThreshold })
		for _, e := range toMid {
			e.Tier = TierMid
			if m.cfg.MidStore == nil {
				result.Errors = append(result.Errors, &StoreUnavailableError{Tier: TierMid, Cause: fmt.Errorf("no mid store configured")})
				continue
			}
			if err := m.cfg.MidStore.Add(ctx, e); err != nil {
				result.Errors = append(result.Errors, &StoreUnavailableError{Tier: TierMid, Cause: err})
				continue
			}
			result.ShortToMid++
		}

		expired := short.expireStale()
		result.ShortExpired += len(expired)
	}

	if m.cfg.MidStore != nil {
		if err := m.consolidateMid(ctx, &result); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	return result
}

func (m *Manager) consolidateMid(ctx context.Context, result *ConsolidationResult) error {
	now := m.cfg.Now()

	for _, agentID := range m.agentIDs() {
		midEntries, err := m.cfg.MidStore.Query(ctx, QueryOptions{AgentID: agentID, Tier: TierMid, Limit: m.cfg.MaxMid, OrderBy: OrderImportanceAscending})
		if err != nil {
			return &StoreUnavailableError{Tier: TierMid, Cause: err}
		}

		var toPromote, toExpire, toDelete []string
		for _, e := range midEntries {
			if now.Sub(e.CreatedAt) > m.cfg.TTLMid {
				toExpire = append(toExpire, e.ID)
				continue
			}
			if e.Importance >= m.cfg.LongThreshold {
				e.Tier = TierLong
				if err := m.storeLong(ctx, e); err != nil {
					result.Errors = append(result.Errors, err)
					continue
				}
				toPromote = append(toPromote, e.ID)
				result.MidToLong++
			}
		}

		toDelete = append(toDelete, toPromote...)
		toDelete = append(toDelete, toExpire...)
		if len(toDelete) > 0 {
			if err := m.cfg.MidStore.Delete(ctx, toDelete); err != nil {
				return &StoreUnavailableError{Tier: TierMid, Cause: err}
			}
		}
		result.MidExpired += len(toExpire)
	}
	return nil
}

// Start schedules Consolidate to run every ConsolidationInterval. The
// returned stop function cancels the schedule.
func (m *Manager) Start(ctx context.Context) (stop func(), err error) {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", m.cfg.ConsolidationInterval)
	_, err = c.AddFunc(spec, func() {
		result := m.Consolidate(ctx)
		if len(result.Errors) > 0 {
			slog.Warn("memory: consolidation completed with errors", "errors", len(result.Errors))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("memory: scheduling consolidation: %w", err)
	}
	c.Start()
	m.cron = c
	return func() { <-c.Stop().Done() }, nil
}

func sortByImportanceDesc(entries []*Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Importance < entries[j].Importance; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func filterByScore(entries []*Entry, minScore float64) []*Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Importance >= minScore {
			out = append(out, e)
		}
	}
	return out
}
