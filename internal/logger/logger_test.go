package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("dispatch", "op", "linear")

	out := buf.String()
	assert.Contains(t, out, `"msg":"dispatch"`)
	assert.Contains(t, out, `"op":"linear"`)
	assert.Contains(t, out, `"level":"INFO"`)
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Debug("hidden too")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(slog.LevelInfo))
	assert.True(t, log.Enabled(slog.LevelError))

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNop(t *testing.T) {
	t.Parallel()
	log := Nop()
	assert.False(t, log.Enabled(slog.LevelError))
	// Must not panic.
	log.With("k", 1).WithGroup("g").Error("dropped")
}

func TestWithAndGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo).With("component", "ops").WithGroup("kernel")
	log.Info("run", "name", "rope")

	out := buf.String()
	assert.Contains(t, out, `"component":"ops"`)
	assert.Contains(t, out, `"kernel":{"name":"rope"}`)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("roundtrip")
	assert.Contains(t, buf.String(), "roundtrip")

	assert.False(t, FromContext(context.Background()).Enabled(slog.LevelError))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if tc.wantErr {
			assert.Error(t, err, tc.input)
			continue
		}
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, got, tc.input)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	log, err := Open(&buf, "json", "debug")
	require.NoError(t, err)
	log.Debug("json debug")
	assert.Contains(t, buf.String(), `"msg":"json debug"`)

	buf.Reset()
	log, err = Open(&buf, "text", "info")
	require.NoError(t, err)
	log.Info("text info", "k", "v")
	assert.Contains(t, buf.String(), "k=v")

	_, err = Open(&buf, "xml", "info")
	assert.Error(t, err)
	_, err = Open(&buf, "json", "loud")
	assert.Error(t, err)
}

func TestPrettyHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &PrettyOptions{Level: slog.LevelDebug, NoColor: true})
	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("svc", "core")}).WithGroup("op"))
	log.Debug("step", "name", "self attention", "rows", 4)

	out := buf.String()
	assert.Contains(t, out, "DBG step")
	assert.Contains(t, out, "svc=core")
	assert.Contains(t, out, `op.name="self attention"`)
	assert.Contains(t, out, "op.rows=4")
	assert.NotContains(t, out, "\033[")
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &PrettyOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
	assert.Same(t, h, h.WithGroup(""))
}

func TestPrettyGroupValue(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo)
	log.Info("shape", slog.Group("out", "rows", 2, "cols", 3))

	assert.Contains(t, buf.String(), "out.rows=2 out.cols=3")
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()
	assert.False(t, needsQuoting("simple"))
	assert.False(t, needsQuoting(""))
	assert.True(t, needsQuoting("has space"))
	assert.True(t, needsQuoting(`has"quote`))
	assert.True(t, needsQuoting("a=b"))
}
