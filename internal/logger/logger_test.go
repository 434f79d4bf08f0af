package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("visible")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestSetLevelAppliesAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "error")

	log.Info("before")
	log.SetLevel("debug")
	log.Debug("after")
	out := buf.String()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestWithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")
	child := log.With("component", "session")

	child.Info("tagged")
	assert.Contains(t, buf.String(), "component=session")

	// Changing the parent level changes the child too.
	log.SetLevel("error")
	buf.Reset()
	child.Info("suppressed")
	assert.Empty(t, buf.String())
}
