package obslog

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// contextKey is a private type for the context key, avoiding collisions
// with other packages' context values.
type contextKey struct{}

var diagContextKey = contextKey{}

// DiagContext carries the per-event coordinates every handler and resolver
// call logs against: chain, route, application, and the triggering event's
// provenance. One is built per dispatched event and threaded through
// pkg/handlers into pkg/resolver and pkg/store calls via context.Context.
type DiagContext struct {
	ChainID         int64
	Eid             int64
	OAppID          string
	OAppRouteKey    string
	EventID         string
	BlockNumber     uint64
	TransactionHash string
}

// WithContext attaches a DiagContext to ctx.
func WithContext(ctx context.Context, dc *DiagContext) context.Context {
	return context.WithValue(ctx, diagContextKey, dc)
}

// FromContext retrieves the DiagContext from ctx, or nil if absent.
func FromContext(ctx context.Context) *DiagContext {
	if ctx == nil {
		return nil
	}
	dc, _ := ctx.Value(diagContextKey).(*DiagContext)
	return dc
}

func appendContextFields(ctx context.Context, args []any) []any {
	dc := FromContext(ctx)
	if dc == nil {
		return args
	}
	out := make([]any, 0, 12+len(args))
	if dc.ChainID != 0 {
		out = append(out, KeyChainID, dc.ChainID)
	}
	if dc.Eid != 0 {
		out = append(out, KeyEid, dc.Eid)
	}
	if dc.OAppID != "" {
		out = append(out, KeyOAppID, dc.OAppID)
	}
	if dc.OAppRouteKey != "" {
		out = append(out, KeyOAppRouteKey, dc.OAppRouteKey)
	}
	if dc.EventID != "" {
		out = append(out, KeyEventID, dc.EventID)
	}
	if dc.TransactionHash != "" {
		out = append(out, KeyTransactionHash, dc.TransactionHash)
	}
	out = append(out, args...)
	return out
}

// mirrorToSpan records the diagnostic as a span event on the context's
// active OpenTelemetry span, so warnings surface in traces as well as logs
// (spec SPEC_FULL §4.K). A no-op if the context carries no recording span.
func mirrorToSpan(ctx context.Context, level, msg string, args []any) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(args)/2+1)
	attrs = append(attrs, attribute.String("log.level", level))
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, attribute.String(key, toAttrString(args[i+1])))
	}
	span.AddEvent(msg, trace.WithAttributes(attrs...))
}

func toAttrString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprint(t)
	}
}

// DebugCtx logs at debug level with DiagContext fields auto-injected.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if LevelDebug < Level(currentLevel.Load()) {
		return
	}
	fields := appendContextFields(ctx, args)
	getLogger().Debug(msg, fields...)
}

// WarnCtx logs at warn level with DiagContext fields auto-injected, and
// mirrors the event onto the active OpenTelemetry span.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	fields := appendContextFields(ctx, args)
	if LevelWarn >= Level(currentLevel.Load()) {
		getLogger().Warn(msg, fields...)
	}
	mirrorToSpan(ctx, "warn", msg, fields)
}

// ErrorCtx logs at error level with DiagContext fields auto-injected, and
// mirrors the event onto the active OpenTelemetry span.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	fields := appendContextFields(ctx, args)
	getLogger().Error(msg, fields...)
	mirrorToSpan(ctx, "error", msg, fields)
}
