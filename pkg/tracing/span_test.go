package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginRecordsStages(t *testing.T) {
	ctx, tr := Start(context.Background(), "search", "req-1")
	require.Same(t, tr, FromContext(ctx))

	end := Begin(ctx, "plan")
	end("terms", 2)
	Begin(ctx, "collect")()

	stages := tr.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, "plan", stages[0].Name)
	assert.Equal(t, []any{"terms", 2}, stages[0].Attrs)
	assert.Equal(t, "collect", stages[1].Name)
}

func TestNilTraceIsInert(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	Begin(ctx, "plan")("terms", 1)

	var tr *Trace
	assert.Nil(t, tr.Stages())
	tr.Log(slog.Default())
}

func TestLogRendersGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, tr := Start(context.Background(), "search", "req-7")
	Begin(ctx, "rank")("candidates", 12)
	tr.Log(log)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	trace := rec["trace"].(map[string]any)
	assert.Equal(t, "req-7", trace["trace_id"])
	rank := trace["rank"].(map[string]any)
	assert.Equal(t, 12.0, rank["candidates"])
	assert.Contains(t, rank, "ms")
}
