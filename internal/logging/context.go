package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	compileIDKey ctxKey = iota
	graphKey
	nodeIDKey
)

// WithCompileID returns a context with the compile pass ID set.
func WithCompileID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, compileIDKey, id)
}

// WithGraph returns a context with the graph name set.
func WithGraph(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, graphKey, name)
}

// WithNodeID returns a context with the node ID set.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

// CompileID extracts the compile pass ID from the context, or "" if absent.
func CompileID(ctx context.Context) string {
	v, _ := ctx.Value(compileIDKey).(string)
	return v
}

// Graph extracts the graph name from the context, or "" if absent.
func Graph(ctx context.Context) string {
	v, _ := ctx.Value(graphKey).(string)
	return v
}

// NodeID extracts the node ID from the context, or "" if absent.
func NodeID(ctx context.Context) string {
	v, _ := ctx.Value(nodeIDKey).(string)
	return v
}

// WithIDs sets every correlation value in one call.
func WithIDs(ctx context.Context, compileID, graph, nodeID string) context.Context {
	return WithNodeID(WithGraph(WithCompileID(ctx, compileID), graph), nodeID)
}

// correlationAttrs lists the non-empty correlation values carried by ctx.
func correlationAttrs(ctx context.Context) []slog.Attr {
	fields := [...]struct{ key, val string }{
		{"compile_id", CompileID(ctx)},
		{"graph", Graph(ctx)},
		{"node_id", NodeID(ctx)},
	}
	var attrs []slog.Attr
	for _, f := range fields {
		if f.val != "" {
			attrs = append(attrs, slog.String(f.key, f.val))
		}
	}
	return attrs
}

// LogWith returns a logger enriched with correlation values from the context.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler stamps the compile ID, graph name and node ID found in
// the record's context onto every record it forwards.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a correlation-aware logger writing text records to w.
func New(w io.Writer, level string) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(NewCorrelationHandler(inner))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
