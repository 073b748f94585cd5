package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelWarn,
		"bogus":   slog.LevelWarn,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input), "input %q", input)
	}
}

func TestNewLogsOwnPackageAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)
	logger.Info("should be suppressed: own-package info below warn")
	logger.Warn("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should be suppressed")
	assert.Contains(t, out, "should appear")
}

func TestNewAlwaysShowsErrorsRegardlessOfSource(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)
	logger.Error("boom")
	assert.Contains(t, buf.String(), "boom")
}

func TestNewDebugLevelShowsEverything(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug)
	logger.Debug("debug line")
	assert.True(t, strings.Contains(buf.String(), "debug line"))
}

func TestWithFieldsAttachesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)
	child := WithFields(logger, "agent", "assistant")
	child.Warn("hello")
	assert.Contains(t, buf.String(), `"agent":"assistant"`)
}
