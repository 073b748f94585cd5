// Package config loads conduit's YAML configuration: LLM adapters, rate
// limits, memory tiers, and the workflows/agents they back.
package config

import "time"

// Config is the root configuration document.
type Config struct {
	Name   string          `yaml:"name" koanf:"name"`
	LLMs   map[string]LLM  `yaml:"llms" koanf:"llms" validate:"dive"`
	Memory MemoryConfig    `yaml:"memory" koanf:"memory"`
	Rate   RateLimitConfig `yaml:"rate_limiting" koanf:"rate_limiting"`
	Logger LoggerConfig    `yaml:"logger" koanf:"logger"`
}

// LLM describes one named LLM adapter entry.
type LLM struct {
	Provider    string  `yaml:"provider" koanf:"provider" validate:"required,oneof=openai anthropic gemini ollama"`
	Model       string  `yaml:"model" koanf:"model" validate:"required"`
	APIKey      string  `yaml:"api_key,omitempty" koanf:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" koanf:"base_url"`
	Temperature float64 `yaml:"temperature,omitempty" koanf:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `yaml:"top_p,omitempty" koanf:"top_p" validate:"gte=0,lte=1"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" koanf:"max_tokens" validate:"gte=0"`
}

// MemoryConfig configures the tiered memory manager's defaults.
type MemoryConfig struct {
	MaxShort            int           `yaml:"max_short,omitempty" koanf:"max_short"`
	MaxMid              int           `yaml:"max_mid,omitempty" koanf:"max_mid"`
	MaxLong             int           `yaml:"max_long,omitempty" koanf:"max_long"`
	TTLShort            time.Duration `yaml:"ttl_short,omitempty" koanf:"ttl_short"`
	TTLMid              time.Duration `yaml:"ttl_mid,omitempty" koanf:"ttl_mid"`
	MidThreshold        float64       `yaml:"mid_threshold,omitempty" koanf:"mid_threshold" validate:"gte=0,lte=1"`
	LongThreshold       float64       `yaml:"long_threshold,omitempty" koanf:"long_threshold" validate:"gte=0,lte=1"`
	ConsolidationPeriod time.Duration `yaml:"consolidation_period,omitempty" koanf:"consolidation_period"`
	DatabaseURL         string        `yaml:"database_url,omitempty" koanf:"database_url"`
}

// RateLimitConfig configures the sliding-window LLM call limiter.
type RateLimitConfig struct {
	Enabled     bool `yaml:"enabled" koanf:"enabled"`
	MaxRequests int  `yaml:"max_requests,omitempty" koanf:"max_requests" validate:"gte=0"`
	WindowMS    int  `yaml:"window_ms,omitempty" koanf:"window_ms" validate:"gte=0"`
}

// LoggerConfig configures conduit's slog logger.
type LoggerConfig struct {
	Level         string `yaml:"level,omitempty" koanf:"level"`
	EnableTracing bool   `yaml:"enable_tracing,omitempty" koanf:"enable_tracing"`
}

// SetDefaults fills zero-valued fields with spec.md's documented defaults.
func (c *Config) SetDefaults() {
	if c.Memory.MaxShort == 0 {
		c.Memory.MaxShort = 10
	}
	if c.Memory.MaxMid == 0 {
		c.Memory.MaxMid = 100
	}
	if c.Memory.MaxLong == 0 {
		c.Memory.MaxLong = 1000
	}
	if c.Memory.TTLShort == 0 {
		c.Memory.TTLShort = time.Hour
	}
	if c.Memory.TTLMid == 0 {
		c.Memory.TTLMid = 24 * time.Hour
	}
	if c.Memory.MidThreshold == 0 {
		c.Memory.MidThreshold = 0.5
	}
	if c.Memory.LongThreshold == 0 {
		c.Memory.LongThreshold = 0.7
	}
	if c.Memory.ConsolidationPeriod == 0 {
		c.Memory.ConsolidationPeriod = 5 * time.Minute
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "warn"
	}
}
