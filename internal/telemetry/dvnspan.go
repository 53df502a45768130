package telemetry

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Event-diagnostic attribute keys. They cover the same fields internal/obslog
// attaches to structured log records (kind, chain_id, eid, oapp_id,
// oapp_route_key, event_id), under dotted attribute names.
const (
	AttrEventKind    = "event.kind"
	AttrChainID      = "chain.id"
	AttrEid          = "route.eid"
	AttrOAppID       = "oapp.id"
	AttrOAppRouteKey = "oapp.route_key"
	AttrEventID      = "event.id"
)

// EventKind returns an attribute for the event kind being dispatched.
func EventKind(kind string) attribute.KeyValue {
	return attribute.String(AttrEventKind, kind)
}

// ChainID returns an attribute for the chain ID an event or recomputation
// is scoped to.
func ChainID(chainID int64) attribute.KeyValue {
	return attribute.String(AttrChainID, strconv.FormatInt(chainID, 10))
}

// Eid returns an attribute for the endpoint ID a route is scoped to.
func Eid(eid int64) attribute.KeyValue {
	return attribute.Int64(AttrEid, eid)
}

// OAppID returns an attribute for the application address an event
// concerns.
func OAppID(oAppID string) attribute.KeyValue {
	return attribute.String(AttrOAppID, oAppID)
}

// OAppRouteKey returns an attribute for the (application, route) pair a
// resolved configuration or recomputation concerns.
func OAppRouteKey(key string) attribute.KeyValue {
	return attribute.String(AttrOAppRouteKey, key)
}

// EventID returns an attribute for the (chainId, blockNumber, logIndex)
// composite key identifying one raw event.
func EventID(eventID string) attribute.KeyValue {
	return attribute.String(AttrEventID, eventID)
}

// StartEventSpan starts a span wrapping one handler dispatch, named
// "dispatch.<kind>" and tagged with the event's kind and chain, plus any
// further attributes the call site passes.
func StartEventSpan(ctx context.Context, kind string, chainID int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{EventKind(kind), ChainID(chainID)}, attrs...)
	return StartSpan(ctx, "dispatch."+kind, trace.WithAttributes(allAttrs...))
}

// StartRecomputeSpan starts a span named "recompute.route" wrapping a
// recomputation, tagged with oAppRouteKey plus any further attributes the
// call site passes. pkg/handlers wraps each whole (chainId, eid) fan-out in
// one such span and passes an empty route key.
func StartRecomputeSpan(ctx context.Context, oAppRouteKey string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{OAppRouteKey(oAppRouteKey)}, attrs...)
	return StartSpan(ctx, "recompute.route", trace.WithAttributes(allAttrs...))
}
