package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo, FormatJSON)

	ctx := WithRequestID(context.Background(), "req-1")
	log.InfoContext(ctx, "handled", "status", 200)
	log.DebugContext(ctx, "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "handled", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, 200.0, rec["status"])
}

func TestNewTextWithoutRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelDebug, FormatText)

	log.With("component", "watch").Debug("rescan")
	out := buf.String()
	assert.Contains(t, out, "msg=rescan")
	assert.Contains(t, out, "component=watch")
	assert.NotContains(t, out, "request_id")
}

func TestDecoratorExtractors(t *testing.T) {
	var buf bytes.Buffer
	extra := func(ctx context.Context) (slog.Attr, bool) { return slog.String("host", "fnhost"), true }
	h := NewLogHandlerDecorator(slog.NewTextHandler(&buf, nil), nil, extra)

	slog.New(h).WithGroup("g").Info("x", "k", "v")
	assert.Contains(t, buf.String(), "g.host=fnhost")
	assert.Contains(t, buf.String(), "g.k=v")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	assert.Equal(t, "abc", RequestID(WithRequestID(context.Background(), "abc")))
}
