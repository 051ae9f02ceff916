// Package tracing records how long each stage of a request took and logs the
// stages as a single structured record keyed by the request ID.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey string

const traceKey contextKey = "trace"

// Stage is one timed step of a trace.
type Stage struct {
	Name     string
	Duration time.Duration
	Attrs    []any
}

// Trace collects stages. All methods are safe on a nil *Trace so callers
// never need to check whether tracing is active.
type Trace struct {
	Name    string
	TraceID string
	start   time.Time

	mu     sync.Mutex
	stages []Stage
}

// Start creates a trace and stores it in the returned context.
func Start(ctx context.Context, name, traceID string) (context.Context, *Trace) {
	t := &Trace{Name: name, TraceID: traceID, start: time.Now()}
	return context.WithValue(ctx, traceKey, t), t
}

// FromContext returns the trace in ctx, or nil.
func FromContext(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey).(*Trace)
	return t
}

// Begin starts timing a stage of the trace in ctx. The returned function
// ends the stage and attaches attrs as alternating keys and values.
func Begin(ctx context.Context, name string) func(attrs ...any) {
	t := FromContext(ctx)
	if t == nil {
		return func(...any) {}
	}
	start := time.Now()
	return func(attrs ...any) {
		t.mu.Lock()
		t.stages = append(t.stages, Stage{Name: name, Duration: time.Since(start), Attrs: attrs})
		t.mu.Unlock()
	}
}

// Stages returns a copy of the finished stages in completion order.
func (t *Trace) Stages() []Stage {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Stage, len(t.stages))
	copy(out, t.stages)
	return out
}

// LogValue renders the trace as a group of per-stage durations in
// milliseconds, with the stage attributes nested under each stage.
func (t *Trace) LogValue() slog.Value {
	if t == nil {
		return slog.Value{}
	}
	stages := t.Stages()
	attrs := make([]slog.Attr, 0, len(stages)+3)
	attrs = append(attrs,
		slog.String("name", t.Name),
		slog.String("trace_id", t.TraceID),
		slog.Float64("total_ms", float64(time.Since(t.start).Microseconds())/1000),
	)
	for _, s := range stages {
		group := []any{slog.Float64("ms", float64(s.Duration.Microseconds())/1000)}
		group = append(group, s.Attrs...)
		attrs = append(attrs, slog.Group(s.Name, group...))
	}
	return slog.GroupValue(attrs...)
}

// Log writes the trace at debug level.
func (t *Trace) Log(logger *slog.Logger) {
	if t == nil {
		return
	}
	logger.Debug("trace", "trace", t)
}
