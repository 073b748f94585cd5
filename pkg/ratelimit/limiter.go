package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config configures a Limiter's enabled state and rules.
type Config struct {
	Enabled bool
	Limits  []LimitRule
}

// Limiter is the rate-limiting contract consulted before an LLM call;
// cmd/conduitd's chat loop calls CheckAndRecord once per turn.
type Limiter interface {
	Check(ctx context.Context, scope Scope, identifier string) (*CheckResult, error)
	Record(ctx context.Context, scope Scope, identifier string, tokens, requests int64) error
	CheckAndRecord(ctx context.Context, scope Scope, identifier string, tokens, requests int64) (*CheckResult, error)
	GetUsage(ctx context.Context, scope Scope, identifier string) ([]Usage, error)
	Reset(ctx context.Context, scope Scope, identifier string) error
	ResetExpired(ctx context.Context, before time.Time) error
}

// DefaultLimiter is a sliding-window limiter backed by a pluggable Store.
type DefaultLimiter struct {
	config *Config
	store  Store
	mu     sync.Mutex
}

var _ Limiter = (*DefaultLimiter)(nil)

// New builds a DefaultLimiter, validating every configured rule.
func New(cfg *Config, store Store) (*DefaultLimiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ratelimit: config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ratelimit: store is required")
	}
	for i, rule := range cfg.Limits {
		if rule.Type == "" {
			return nil, fmt.Errorf("ratelimit: limit[%d]: type is required", i)
		}
		if rule.Window == "" {
			return nil, fmt.Errorf("ratelimit: limit[%d]: window is required", i)
		}
		if rule.Limit <= 0 {
			return nil, fmt.Errorf("ratelimit: limit[%d]: limit must be positive", i)
		}
	}
	return &DefaultLimiter{config: cfg, store: store}, nil
}

func (l *DefaultLimiter) Check(ctx context.Context, scope Scope, identifier string) (*CheckResult, error) {
	if !l.config.Enabled {
		return &CheckResult{Allowed: true}, nil
	}
	if identifier == "" {
		return nil, fmt.Errorf("ratelimit: identifier cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(ctx, scope, identifier)
}

func (l *DefaultLimiter) checkLocked(ctx context.Context, scope Scope, identifier string) (*CheckResult, error) {
	result := &CheckResult{Allowed: true, Usages: make([]Usage, 0, len(l.config.Limits))}
	now := time.Now()
	var earliestRetry *time.Time

	for _, rule := range l.config.Limits {
		current, windowEnd, err := l.store.GetUsage(ctx, scope, identifier, rule.Type, rule.Window)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: get usage for %s/%s: %w", rule.Type, rule.Window, err)
		}
		if windowEnd.Before(now) {
			current = 0
			windowEnd = now.Add(rule.Window.Duration())
		}

		remaining := rule.Limit - current
		if remaining < 0 {
			remaining = 0
		}
		usage := Usage{
			LimitType: rule.Type, Window: rule.Window, Current: current, Limit: rule.Limit,
			WindowEnd: windowEnd, Remaining: remaining, Percentage: float64(current) / float64(rule.Limit) * 100,
		}
		result.Usages = append(result.Usages, usage)

		if current > rule.Limit {
			result.Allowed = false
			if result.Reason == "" {
				result.Reason = fmt.Sprintf("%s limit exceeded for %s window (%d/%d)", rule.Type, rule.Window, current, rule.Limit)
			}
			if earliestRetry == nil || windowEnd.Before(*earliestRetry) {
				earliestRetry = &windowEnd
			}
		}
	}

	if !result.Allowed && earliestRetry != nil {
		if d := time.Until(*earliestRetry); d > 0 {
			result.RetryAfter = &d
		}
	}
	return result, nil
}

func (l *DefaultLimiter) Record(ctx context.Context, scope Scope, identifier string, tokens, requests int64) error {
	if !l.config.Enabled {
		return nil
	}
	if identifier == "" {
		return fmt.Errorf("ratelimit: identifier cannot be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordLocked(ctx, scope, identifier, tokens, requests)
}

func (l *DefaultLimiter) recordLocked(ctx context.Context, scope Scope, identifier string, tokens, requests int64) error {
	now := time.Now()
	for _, rule := range l.config.Limits {
		var amount int64
		switch rule.Type {
		case LimitTypeTokens:
			amount = tokens
		case LimitTypeRequests:
			amount = requests
		default:
			continue
		}
		if amount <= 0 {
			continue
		}

		_, windowEnd, err := l.store.GetUsage(ctx, scope, identifier, rule.Type, rule.Window)
		if err != nil {
			return fmt.Errorf("ratelimit: get usage for %s/%s: %w", rule.Type, rule.Window, err)
		}
		if windowEnd.Before(now) {
			if err := l.store.SetUsage(ctx, scope, identifier, rule.Type, rule.Window, amount, now.Add(rule.Window.Duration())); err != nil {
				return fmt.Errorf("ratelimit: reset usage for %s/%s: %w", rule.Type, rule.Window, err)
			}
			continue
		}
		if _, _, err := l.store.IncrementUsage(ctx, scope, identifier, rule.Type, rule.Window, amount); err != nil {
			return fmt.Errorf("ratelimit: increment usage for %s/%s: %w", rule.Type, rule.Window, err)
		}
	}
	return nil
}

// CheckAndRecord checks and, if allowed, records in a single atomic step —
// the preferred call for anything the agent loop invokes per-request.
func (l *DefaultLimiter) CheckAndRecord(ctx context.Context, scope Scope, identifier string, tokens, requests int64) (*CheckResult, error) {
	if !l.config.Enabled {
		return &CheckResult{Allowed: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	result, err := l.checkLocked(ctx, scope, identifier)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return result, nil
	}
	if err := l.recordLocked(ctx, scope, identifier, tokens, requests); err != nil {
		return nil, fmt.Errorf("ratelimit: recording usage: %w", err)
	}
	return l.checkLocked(ctx, scope, identifier)
}

func (l *DefaultLimiter) GetUsage(ctx context.Context, scope Scope, identifier string) ([]Usage, error) {
	if !l.config.Enabled {
		return []Usage{}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	result, err := l.checkLocked(ctx, scope, identifier)
	if err != nil {
		return nil, err
	}
	return result.Usages, nil
}

func (l *DefaultLimiter) Reset(ctx context.Context, scope Scope, identifier string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.DeleteUsage(ctx, scope, identifier)
}

func (l *DefaultLimiter) ResetExpired(ctx context.Context, before time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.DeleteExpired(ctx, before)
}
