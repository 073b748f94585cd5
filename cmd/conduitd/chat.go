package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/conduit/internal/config"
	"github.com/kadirpekel/conduit/internal/obs"
	"github.com/kadirpekel/conduit/pkg/agent"
	"github.com/kadirpekel/conduit/pkg/llm"
	"github.com/kadirpekel/conduit/pkg/llm/provider"
	"github.com/kadirpekel/conduit/pkg/memory"
	"github.com/kadirpekel/conduit/pkg/ratelimit"
	"github.com/kadirpekel/conduit/pkg/store"
	"github.com/kadirpekel/conduit/pkg/tool"
	"github.com/kadirpekel/conduit/pkg/tool/weather"
)

// ChatCmd drives a single agent's ReAct loop over stdin/stdout, one line of
// input per turn.
type ChatCmd struct {
	Agent    string `help:"LLM adapter name from the config's llms map." default:"default"`
	ThreadID string `name:"thread-id" help:"Thread id for persistence and memory recall." default:"cli"`
}

func (c *ChatCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	logger := newLogger(cli, cfg)

	adapterCfg, ok := cfg.LLMs[c.Agent]
	if !ok {
		return fmt.Errorf("conduitd: no llm adapter named %q in config", c.Agent)
	}
	adapter := llm.Adapter{
		Provider: adapterCfg.Provider,
		Model:    adapterCfg.Model,
		APIKey:   adapterCfg.APIKey,
		BaseURL:  adapterCfg.BaseURL,
	}

	registry := provider.NewDefaultRegistry()

	tools := tool.NewRegistry()
	if w, err := weather.New(weather.StubLookup(weather.Report{TempC: 21, Condition: "clear"})); err == nil {
		tools.Register(w)
	} else {
		logger.Warn("skipping builtin weather tool", "error", err)
	}

	limiter, err := newLimiter(cfg.Rate)
	if err != nil {
		return fmt.Errorf("conduitd: rate limiter: %w", err)
	}

	observability, err := obs.New(obs.Config{Enabled: cfg.Logger.EnableTracing, ServiceName: "conduitd"})
	if err != nil {
		return fmt.Errorf("conduitd: observability: %w", err)
	}
	defer observability.Shutdown(ctx)
	metrics, err := obs.NewMetrics(observability.Meter)
	if err != nil {
		return fmt.Errorf("conduitd: metrics: %w", err)
	}

	var mgr *memory.Manager
	var threads store.Store
	if cfg.Memory.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Memory.DatabaseURL)
		if err != nil {
			return fmt.Errorf("conduitd: connect memory database: %w", err)
		}
		defer pool.Close()

		memStore := memory.NewSQLStore(pool)
		if err := memStore.Init(ctx); err != nil {
			return fmt.Errorf("conduitd: init memory schema: %w", err)
		}

		sqlStore := store.NewSQLStore(pool)
		if err := sqlStore.Init(ctx); err != nil {
			return fmt.Errorf("conduitd: init store schema: %w", err)
		}
		threads = sqlStore

		mgr = memory.New(memory.Config{
			MidStore:              memStore,
			LongStore:             memStore,
			MaxShort:              cfg.Memory.MaxShort,
			MaxMid:                cfg.Memory.MaxMid,
			MaxLong:               cfg.Memory.MaxLong,
			TTLShort:              cfg.Memory.TTLShort,
			TTLMid:                cfg.Memory.TTLMid,
			MidThreshold:          cfg.Memory.MidThreshold,
			LongThreshold:         cfg.Memory.LongThreshold,
			ConsolidationInterval: cfg.Memory.ConsolidationPeriod,
		})
		stop, err := mgr.Start(ctx)
		if err != nil {
			return fmt.Errorf("conduitd: start memory consolidation: %w", err)
		}
		defer stop()
	}

	ag := agent.New(agent.Config{
		Registry: registry,
		Adapter:  adapter,
		Tools:    tools,
	})

	if threads != nil {
		if _, err := threads.GetThread(ctx, c.ThreadID); err != nil {
			if cerr := threads.CreateThread(ctx, &store.Thread{ID: c.ThreadID, CreatedAt: time.Now(), UpdatedAt: time.Now()}); cerr != nil {
				logger.Warn("could not create thread", "thread_id", c.ThreadID, "error", cerr)
			}
		}
	}

	fmt.Println("conduitd chat — Ctrl+D to exit")
	scanner := bufio.NewScanner(os.Stdin)
	var history []llm.Message
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if mgr != nil {
			if recalled, err := mgr.GetContext(ctx, c.ThreadID, memory.GetContextOptions{AgentID: c.Agent}); err == nil && recalled != "" {
				history = append(history, llm.Message{Role: llm.RoleSystem, Content: &recalled})
			}
		}
		history = append(history, llm.Message{Role: llm.RoleUser, Content: &line})

		check, err := limiter.CheckAndRecord(ctx, ratelimit.ScopeAgent, c.Agent, 0, 1)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		if !check.Allowed {
			fmt.Println("rate limit exceeded, try again shortly")
			continue
		}

		turnCtx, span := observability.Tracer.Start(ctx, "agent.turn", trace.WithAttributes(
			attribute.String("agent", c.Agent),
			attribute.String("thread_id", c.ThreadID),
		))
		start := time.Now()
		result, err := ag.Run(turnCtx, history, agent.RunOptions{})
		metrics.RecordAgentIteration(ctx, c.Agent)
		if err != nil {
			metrics.RecordLLMCall(ctx, adapter.Provider, time.Since(start), 0, 0, err)
			span.RecordError(err)
			span.End()
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		metrics.RecordLLMCall(ctx, adapter.Provider, time.Since(start), result.Usage.PromptTokens, result.Usage.CompletionTokens, nil)
		span.End()
		fmt.Println(result.Content)
		history = result.Messages

		if mgr != nil {
			if _, err := mgr.Remember(ctx, line, memory.RememberOptions{AgentID: c.Agent, ThreadID: c.ThreadID}); err != nil {
				logger.Warn("remember failed", "error", err)
			}
		}
		if threads != nil {
			now := time.Now()
			_ = threads.AddMessage(ctx, &store.Message{ThreadID: c.ThreadID, Role: "user", Content: jsonString(line), CreatedAt: now})
			_ = threads.AddMessage(ctx, &store.Message{ThreadID: c.ThreadID, Role: "assistant", Content: jsonString(result.Content), CreatedAt: now})
		}
	}
	return nil
}

func newLimiter(cfg config.RateLimitConfig) (ratelimit.Limiter, error) {
	rc := &ratelimit.Config{Enabled: cfg.Enabled}
	if cfg.Enabled && cfg.MaxRequests > 0 {
		rc.Limits = []ratelimit.LimitRule{{
			Type:   ratelimit.LimitTypeRequests,
			Window: windowFor(cfg.WindowMS),
			Limit:  int64(cfg.MaxRequests),
		}}
	}
	return ratelimit.New(rc, ratelimit.NewMemoryStore())
}

// windowFor maps an arbitrary millisecond window to the smallest named
// sliding window the limiter understands that is at least that long.
func windowFor(ms int) ratelimit.TimeWindow {
	switch {
	case ms <= int(time.Second.Milliseconds()):
		return ratelimit.WindowSecond
	case ms <= int(time.Minute.Milliseconds()):
		return ratelimit.WindowMinute
	case ms <= int(time.Hour.Milliseconds()):
		return ratelimit.WindowHour
	default:
		return ratelimit.WindowDay
	}
}

func jsonString(s string) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return b
}
