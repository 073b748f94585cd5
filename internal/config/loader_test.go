package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "conduit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoaderLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name: demo
llms:
  default:
    provider: openai
    model: gpt-4o
`)

	cfg, err := NewLoader("").Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, 10, cfg.Memory.MaxShort)
	assert.Equal(t, time.Hour, cfg.Memory.TTLShort)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestLoaderLoadRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name: demo
llms:
  default:
    provider: not-a-real-provider
    model: gpt-4o
`)

	_, err := NewLoader("").Load(path)
	assert.Error(t, err)
}

func TestLoaderLoadExpandsEnvVarsInAPIKey(t *testing.T) {
	t.Setenv("CONDUIT_TEST_API_KEY", "sk-test-123")
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name: demo
llms:
  default:
    provider: openai
    model: gpt-4o
    api_key: ${CONDUIT_TEST_API_KEY}
`)

	cfg, err := NewLoader("").Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.LLMs["default"].APIKey)
}

func TestLoaderLoadMissingFileErrors(t *testing.T) {
	_, err := NewLoader("").Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLoaderLoadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("CONDUIT_TEST_FROM_DOTENV=from-dotenv\n"), 0o644))

	path := writeConfig(t, dir, `
name: demo
llms:
  default:
    provider: openai
    model: gpt-4o
    api_key: ${CONDUIT_TEST_FROM_DOTENV}
`)

	cfg, err := NewLoader(dotenv).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLMs["default"].APIKey)
}
