package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStdLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(old) })
	return &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestStdLogger_FormatsFields(t *testing.T) {
	buf := captureStdLog(t)

	logger := NewStdLogger("uow")
	logger.Info(context.Background(), "committed",
		String("context", "orders"),
		Int("affected", 3),
		Error(errors.New("boom")),
	)

	out := buf.String()
	assert.Contains(t, out, "[INFO] uow committed")
	assert.Contains(t, out, "context=orders")
	assert.Contains(t, out, "affected=3")
	assert.Contains(t, out, "error=boom")
}

func TestStdLogger_LevelFilter(t *testing.T) {
	buf := captureStdLog(t)

	logger := NewStdLogger("").WithLevel(WarnLevel)
	ctx := context.Background()
	logger.Debug(ctx, "hidden-debug")
	logger.Info(ctx, "hidden-info")
	logger.Warn(ctx, "shown-warn")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown-warn")
}

func TestStdLogger_WithFieldsIsImmutable(t *testing.T) {
	buf := captureStdLog(t)

	base := NewStdLogger("test")
	child := base.WithFields(String("module", "repo"))

	base.Info(context.Background(), "base")
	child.Info(context.Background(), "child", String("k", "v"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "module=repo")
	assert.Contains(t, lines[1], "module=repo")
	assert.Contains(t, lines[1], "k=v")
	assert.Empty(t, base.fields)
}

func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	noop := NewNoopLogger()
	SetLogger(noop)
	assert.Same(t, noop, GetLogger())

	SetLogger(nil)
	_, ok := GetLogger().(*NoopLogger)
	assert.True(t, ok, "nil 应被替换为 NoopLogger")
}

func TestZapLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZapLogger(BuildZap(ZapConfig{Level: "debug", Format: "json", Output: &buf}))

	logger.WithFields(String("uow", "u-1")).Info(context.Background(), "commit",
		String("context", "orders"),
		Int("affected", 2),
		Bool("ok", true),
	)
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "commit", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "u-1", entry["uow"])
	assert.Equal(t, "orders", entry["context"])
	assert.EqualValues(t, 2, entry["affected"])
	assert.Equal(t, true, entry["ok"])
}

func TestZapLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZapLogger(BuildZap(ZapConfig{Level: "warn", Output: &buf}))

	logger.Debug(context.Background(), "dropped")
	logger.Info(context.Background(), "dropped")
	assert.Zero(t, buf.Len())

	logger.Warn(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestLoggerInterface(t *testing.T) {
	var _ Logger = (*StdLogger)(nil)
	var _ Logger = (*NoopLogger)(nil)
	var _ Logger = (*ZapLogger)(nil)
}
