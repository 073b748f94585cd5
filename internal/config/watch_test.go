package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoaderWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name: v1
llms:
  default:
    provider: openai
    model: gpt-4o
`)

	loader := NewLoader("")
	changes := make(chan *Config, 4)
	errs := make(chan error, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- loader.Watch(ctx, path, func(cfg *Config, err error) {
			if err != nil {
				errs <- err
				return
			}
			changes <- cfg
		})
	}()

	// Give the watcher time to start and register the directory.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`
name: v2
llms:
  default:
    provider: openai
    model: gpt-4o
`), 0o644))

	select {
	case cfg := <-changes:
		require.Equal(t, "v2", cfg.Name)
	case err := <-errs:
		t.Fatalf("unexpected reload error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	<-done
}
