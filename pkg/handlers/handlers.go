// Package handlers implements the per-event-kind processing contract and
// the packet snapshotter: validate, persist the raw event, resolve the
// derived OAppSecurityConfig, persist it, and fan out recomputation to any
// other route the change affects. Every handler shares the same shape:
// validate -> persist raw -> resolve -> persist derived -> fan-out.
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sekuba/dvnstats-sub001/internal/obslog"
	"github.com/sekuba/dvnstats-sub001/internal/telemetry"
	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/dvncatalog"
	"github.com/sekuba/dvnstats-sub001/pkg/entities"
	"github.com/sekuba/dvnstats-sub001/pkg/events"
	"github.com/sekuba/dvnstats-sub001/pkg/libclass"
	"github.com/sekuba/dvnstats-sub001/pkg/metrics"
	"github.com/sekuba/dvnstats-sub001/pkg/resolver"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
	"github.com/sekuba/dvnstats-sub001/pkg/ulnconfig"
)

// Context bundles everything a handler needs to process one event: the
// entity store, the library classifier, the DVN directory, and the metrics
// registry. It is built once per process (or once per replay run) and
// passed to every Dispatch call; cmd/dvnstats builds it for serve and
// replay and hands it to pkg/ingest, so this package never imports ingest.
type Context struct {
	Store      store.Store
	Classifier *libclass.Classifier
	Dvn        *dvncatalog.Directory
	Metrics    *metrics.Registry

	// Preload, when true, short-circuits every handler after decode-time
	// validation: no store reads or writes happen at all. cmd/dvnstats serve
	// sets this from the ingest.preload configuration setting.
	Preload bool
}

// Dispatch routes a decoded Event to its handler by Kind. Event is a tagged
// union rather than an interface, so this is a plain switch rather than a
// closure registry.
func Dispatch(ctx context.Context, hc *Context, ev events.Event) error {
	chainID := ev.ChainID()
	ctx, span := telemetry.StartEventSpan(ctx, string(ev.Kind), chainID)
	defer span.End()

	err := dispatch(ctx, hc, ev)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

func dispatch(ctx context.Context, hc *Context, ev events.Event) error {
	switch ev.Kind {
	case events.KindDefaultReceiveLibrarySet:
		return handleDefaultReceiveLibrarySet(ctx, hc, ev.DefaultReceiveLibrarySet)
	case events.KindDefaultUlnConfigsSet:
		return handleDefaultUlnConfigsSet(ctx, hc, ev.DefaultUlnConfigsSet)
	case events.KindReceiveLibrarySet:
		return handleReceiveLibrarySet(ctx, hc, ev.ReceiveLibrarySet)
	case events.KindUlnConfigSet:
		return handleUlnConfigSet(ctx, hc, ev.UlnConfigSet)
	case events.KindPeerSet:
		return handlePeerSet(ctx, hc, ev.PeerSet)
	case events.KindRateLimiterSet:
		return handleRateLimiterSet(ctx, hc, ev.RateLimiterSet)
	case events.KindRateLimitsChanged:
		return handleRateLimitsChanged(ctx, hc, ev.RateLimitsChanged)
	case events.KindPacketDelivered:
		return HandlePacketDelivered(ctx, hc, ev.PacketDelivered)
	default:
		return fmt.Errorf("handlers: unknown event kind %q", ev.Kind)
	}
}

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}

// skip logs a missing-address (or otherwise invalid-input) diagnostic at
// warn level and reports it to metrics, without returning an error — the
// missing-address policy is log-and-skip, never abort-the-batch (spec
// §4.G).
func skip(ctx context.Context, hc *Context, kind events.Kind, chainID int64, reason string, err error) error {
	obslog.WarnCtx(ctx, "skipping event: invalid input",
		obslog.KeyKind, string(kind), "reason", reason, obslog.KeyError, err)
	hc.Metrics.EventSkipped(chainLabel(chainID), string(kind), reason)
	return nil
}

func withDiag(ctx context.Context, chainID, eid int64, oAppID, oAppRouteKey, eventID string, blockNumber uint64, txHash string) context.Context {
	return obslog.WithContext(ctx, &obslog.DiagContext{
		ChainID:         chainID,
		Eid:             eid,
		OAppID:          oAppID,
		OAppRouteKey:    oAppRouteKey,
		EventID:         eventID,
		BlockNumber:     blockNumber,
		TransactionHash: txHash,
	})
}

func handleDefaultReceiveLibrarySet(ctx context.Context, hc *Context, ev *events.DefaultReceiveLibrarySet) error {
	eventID := addr.MakeEventID(ev.Ctx.ChainID, ev.Ctx.BlockNumber, ev.Ctx.LogIndex)
	dctx := withDiag(ctx, ev.Ctx.ChainID, ev.Eid, "", "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)

	library, err := addr.Normalize(ev.NewLibrary)
	if err != nil {
		return skip(dctx, hc, events.KindDefaultReceiveLibrarySet, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}

	if hc.Preload {
		hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindDefaultReceiveLibrarySet))
		return nil
	}

	routeKey := addr.MakeRouteKey(ev.Ctx.ChainID, ev.Eid)
	rec := &entities.DefaultReceiveLibrary{
		RouteKey:    routeKey,
		ChainID:     ev.Ctx.ChainID,
		Eid:         ev.Eid,
		Library:     library,
		LastEventID: eventID,
	}
	if err := hc.Store.PutDefaultReceiveLibrary(dctx, rec); err != nil {
		return fmt.Errorf("handlers: persist default receive library: %w", err)
	}
	if err := hc.Store.AppendDefaultReceiveLibraryVersion(dctx, &entities.DefaultReceiveLibraryVersion{
		EventID:     eventID,
		RouteKey:    routeKey,
		ChainID:     ev.Ctx.ChainID,
		Eid:         ev.Eid,
		Library:     library,
		BlockNumber: ev.Ctx.BlockNumber,
		Timestamp:   ev.Ctx.Timestamp,
		TxHash:      ev.Ctx.TxHash,
	}); err != nil {
		return fmt.Errorf("handlers: append default receive library version: %w", err)
	}

	if err := fanOut(dctx, hc, ev.Ctx.ChainID, ev.Eid, eventID, ev.Ctx.BlockNumber, ev.Ctx.Timestamp, ev.Ctx.TxHash); err != nil {
		return err
	}

	hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindDefaultReceiveLibrarySet))
	return nil
}

func handleDefaultUlnConfigsSet(ctx context.Context, hc *Context, ev *events.DefaultUlnConfigsSet) error {
	eventID := addr.MakeEventID(ev.Ctx.ChainID, ev.Ctx.BlockNumber, ev.Ctx.LogIndex)

	for _, entry := range ev.Entries {
		dctx := withDiag(ctx, ev.Ctx.ChainID, entry.Eid, "", "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)

		fields, warnings, err := normalizeUlnTuple(entry.Config)
		if err != nil {
			if skipErr := skip(dctx, hc, events.KindDefaultUlnConfigsSet, ev.Ctx.ChainID, obslog.KindMissingAddress, err); skipErr != nil {
				return skipErr
			}
			continue
		}
		logUlnWarnings(dctx, warnings)

		if hc.Preload {
			continue
		}

		routeKey := addr.MakeRouteKey(ev.Ctx.ChainID, entry.Eid)
		versionID := fmt.Sprintf("%s_%d", eventID, entry.Eid)
		rec := &entities.DefaultUlnConfig{
			RouteKey:             routeKey,
			ChainID:              ev.Ctx.ChainID,
			Eid:                  entry.Eid,
			Confirmations:        fields.Confirmations,
			RequiredDVNCount:     fields.RequiredDVNCount,
			OptionalDVNCount:     fields.OptionalDVNCount,
			OptionalDVNThreshold: fields.OptionalDVNThreshold,
			RequiredDVNs:         fields.RequiredDVNs,
			OptionalDVNs:         fields.OptionalDVNs,
			LastEventID:          versionID,
		}
		if err := hc.Store.PutDefaultUlnConfig(dctx, rec); err != nil {
			return fmt.Errorf("handlers: persist default uln config: %w", err)
		}
		if err := hc.Store.AppendDefaultUlnConfigVersion(dctx, &entities.DefaultUlnConfigVersion{
			ID:                   versionID,
			EventID:              eventID,
			RouteKey:             routeKey,
			ChainID:              ev.Ctx.ChainID,
			Eid:                  entry.Eid,
			Confirmations:        fields.Confirmations,
			RequiredDVNCount:     fields.RequiredDVNCount,
			OptionalDVNCount:     fields.OptionalDVNCount,
			OptionalDVNThreshold: fields.OptionalDVNThreshold,
			RequiredDVNs:         fields.RequiredDVNs,
			OptionalDVNs:         fields.OptionalDVNs,
			BlockNumber:          ev.Ctx.BlockNumber,
			Timestamp:            ev.Ctx.Timestamp,
			TxHash:               ev.Ctx.TxHash,
		}); err != nil {
			return fmt.Errorf("handlers: append default uln config version: %w", err)
		}

		if err := fanOut(dctx, hc, ev.Ctx.ChainID, entry.Eid, eventID, ev.Ctx.BlockNumber, ev.Ctx.Timestamp, ev.Ctx.TxHash); err != nil {
			return err
		}
	}

	hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindDefaultUlnConfigsSet))
	return nil
}

func handleReceiveLibrarySet(ctx context.Context, hc *Context, ev *events.ReceiveLibrarySet) error {
	eventID := addr.MakeEventID(ev.Ctx.ChainID, ev.Ctx.BlockNumber, ev.Ctx.LogIndex)

	receiver, err := addr.Normalize(ev.Receiver)
	if err != nil {
		dctx := withDiag(ctx, ev.Ctx.ChainID, ev.Eid, "", "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)
		return skip(dctx, hc, events.KindReceiveLibrarySet, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}
	oAppID := addr.MakeOAppID(ev.Ctx.ChainID, receiver)
	oAppRouteKey := addr.MakeOAppRouteKey(oAppID, ev.Eid)
	dctx := withDiag(ctx, ev.Ctx.ChainID, ev.Eid, oAppID, oAppRouteKey, eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)

	library := "" // the zero address is the documented way to unset an override
	if ev.NewLibrary != "" {
		library, err = addr.Normalize(ev.NewLibrary)
		if err != nil {
			return skip(dctx, hc, events.KindReceiveLibrarySet, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
		}
	}

	if hc.Preload {
		hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindReceiveLibrarySet))
		return nil
	}

	if err := ensureOAppStats(dctx, hc, oAppID); err != nil {
		return err
	}

	rec := &entities.OAppReceiveLibrary{
		OAppRouteKey: oAppRouteKey,
		OAppID:       oAppID,
		Eid:          ev.Eid,
		Library:      library,
		LastEventID:  eventID,
	}
	if err := hc.Store.PutOAppReceiveLibrary(dctx, rec); err != nil {
		return fmt.Errorf("handlers: persist override receive library: %w", err)
	}
	if err := hc.Store.AppendOAppReceiveLibraryVersion(dctx, &entities.OAppReceiveLibraryVersion{
		EventID:      eventID,
		OAppRouteKey: oAppRouteKey,
		OAppID:       oAppID,
		Eid:          ev.Eid,
		Library:      library,
		BlockNumber:  ev.Ctx.BlockNumber,
		Timestamp:    ev.Ctx.Timestamp,
		TxHash:       ev.Ctx.TxHash,
	}); err != nil {
		return fmt.Errorf("handlers: append override receive library version: %w", err)
	}

	if _, warnings, err := resolver.RecomputeRoute(dctx, hc.Store, hc.Classifier, oAppRouteKey, ev.Ctx.ChainID, ev.Eid, oAppID, change(ev.Ctx, eventID)); err != nil {
		return fmt.Errorf("handlers: recompute route after receive library set: %w", err)
	} else {
		logResolveWarnings(dctx, hc, warnings)
	}

	hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindReceiveLibrarySet))
	return nil
}

func handleUlnConfigSet(ctx context.Context, hc *Context, ev *events.UlnConfigSet) error {
	eventID := addr.MakeEventID(ev.Ctx.ChainID, ev.Ctx.BlockNumber, ev.Ctx.LogIndex)

	oapp, err := addr.Normalize(ev.OApp)
	if err != nil {
		dctx := withDiag(ctx, ev.Ctx.ChainID, ev.Eid, "", "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)
		return skip(dctx, hc, events.KindUlnConfigSet, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}
	oAppID := addr.MakeOAppID(ev.Ctx.ChainID, oapp)
	oAppRouteKey := addr.MakeOAppRouteKey(oAppID, ev.Eid)
	dctx := withDiag(ctx, ev.Ctx.ChainID, ev.Eid, oAppID, oAppRouteKey, eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)

	fields, warnings, err := normalizeUlnTuple(ev.Config)
	if err != nil {
		return skip(dctx, hc, events.KindUlnConfigSet, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}
	logUlnWarnings(dctx, warnings)

	if hc.Preload {
		hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindUlnConfigSet))
		return nil
	}

	if err := ensureOAppStats(dctx, hc, oAppID); err != nil {
		return err
	}

	rec := &entities.OAppUlnConfig{
		OAppRouteKey:         oAppRouteKey,
		OAppID:               oAppID,
		Eid:                  ev.Eid,
		Confirmations:        fields.Confirmations,
		RequiredDVNCount:     fields.RequiredDVNCount,
		OptionalDVNCount:     fields.OptionalDVNCount,
		OptionalDVNThreshold: fields.OptionalDVNThreshold,
		RequiredDVNs:         fields.RequiredDVNs,
		OptionalDVNs:         fields.OptionalDVNs,
		LastEventID:          eventID,
	}
	if err := hc.Store.PutOAppUlnConfig(dctx, rec); err != nil {
		return fmt.Errorf("handlers: persist override uln config: %w", err)
	}
	if err := hc.Store.AppendOAppUlnConfigVersion(dctx, &entities.OAppUlnConfigVersion{
		EventID:              eventID,
		OAppRouteKey:         oAppRouteKey,
		OAppID:               oAppID,
		Eid:                  ev.Eid,
		Confirmations:        fields.Confirmations,
		RequiredDVNCount:     fields.RequiredDVNCount,
		OptionalDVNCount:     fields.OptionalDVNCount,
		OptionalDVNThreshold: fields.OptionalDVNThreshold,
		RequiredDVNs:         fields.RequiredDVNs,
		OptionalDVNs:         fields.OptionalDVNs,
		BlockNumber:          ev.Ctx.BlockNumber,
		Timestamp:            ev.Ctx.Timestamp,
		TxHash:               ev.Ctx.TxHash,
	}); err != nil {
		return fmt.Errorf("handlers: append override uln config version: %w", err)
	}

	if _, resolveWarnings, err := resolver.RecomputeRoute(dctx, hc.Store, hc.Classifier, oAppRouteKey, ev.Ctx.ChainID, ev.Eid, oAppID, change(ev.Ctx, eventID)); err != nil {
		return fmt.Errorf("handlers: recompute route after uln config set: %w", err)
	} else {
		logResolveWarnings(dctx, hc, resolveWarnings)
	}

	hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindUlnConfigSet))
	return nil
}

func handlePeerSet(ctx context.Context, hc *Context, ev *events.PeerSet) error {
	eventID := addr.MakeEventID(ev.Ctx.ChainID, ev.Ctx.BlockNumber, ev.Ctx.LogIndex)

	oapp, err := addr.Normalize(ev.OApp)
	if err != nil {
		dctx := withDiag(ctx, ev.Ctx.ChainID, ev.Eid, "", "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)
		return skip(dctx, hc, events.KindPeerSet, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}
	oAppID := addr.MakeOAppID(ev.Ctx.ChainID, oapp)
	oAppRouteKey := addr.MakeOAppRouteKey(oAppID, ev.Eid)
	dctx := withDiag(ctx, ev.Ctx.ChainID, ev.Eid, oAppID, oAppRouteKey, eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)

	peerAddress, hasAddress, err := addr.Bytes32ToAddress(ev.Peer)
	if err != nil {
		return skip(dctx, hc, events.KindPeerSet, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}
	if !hasAddress {
		peerAddress = ""
	}

	if hc.Preload {
		hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindPeerSet))
		return nil
	}

	if err := ensureOAppStats(dctx, hc, oAppID); err != nil {
		return err
	}

	rec := &entities.OAppPeer{
		OAppRouteKey:        oAppRouteKey,
		OAppID:              oAppID,
		Eid:                 ev.Eid,
		Peer:                ev.Peer,
		PeerAddress:         peerAddress,
		FromPacketDelivered: false,
	}
	if err := hc.Store.PutOAppPeer(dctx, rec); err != nil {
		return fmt.Errorf("handlers: persist oapp peer: %w", err)
	}
	if err := hc.Store.AppendOAppPeerVersion(dctx, &entities.OAppPeerVersion{
		EventID:             eventID,
		OAppRouteKey:        oAppRouteKey,
		OAppID:              oAppID,
		Eid:                 ev.Eid,
		Peer:                ev.Peer,
		FromPacketDelivered: false,
		BlockNumber:         ev.Ctx.BlockNumber,
		Timestamp:           ev.Ctx.Timestamp,
		TxHash:              ev.Ctx.TxHash,
	}); err != nil {
		return fmt.Errorf("handlers: append oapp peer version: %w", err)
	}

	// Recompute so the persisted OAppSecurityConfig snapshot reflects the
	// current peer fields at the time query readers observe it.
	if _, resolveWarnings, err := resolver.RecomputeRoute(dctx, hc.Store, hc.Classifier, oAppRouteKey, ev.Ctx.ChainID, ev.Eid, oAppID, change(ev.Ctx, eventID)); err != nil {
		return fmt.Errorf("handlers: recompute route after peer set: %w", err)
	} else {
		logResolveWarnings(dctx, hc, resolveWarnings)
	}

	hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindPeerSet))
	return nil
}

func handleRateLimiterSet(ctx context.Context, hc *Context, ev *events.RateLimiterSet) error {
	eventID := addr.MakeEventID(ev.Ctx.ChainID, ev.Ctx.BlockNumber, ev.Ctx.LogIndex)

	oapp, err := addr.Normalize(ev.OApp)
	if err != nil {
		dctx := withDiag(ctx, ev.Ctx.ChainID, 0, "", "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)
		return skip(dctx, hc, events.KindRateLimiterSet, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}
	oAppID := addr.MakeOAppID(ev.Ctx.ChainID, oapp)
	dctx := withDiag(ctx, ev.Ctx.ChainID, 0, oAppID, "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)

	if hc.Preload {
		hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindRateLimiterSet))
		return nil
	}

	if err := ensureOAppStats(dctx, hc, oAppID); err != nil {
		return err
	}

	rec := &entities.OAppRateLimiter{
		OAppID:  oAppID,
		ChainID: ev.Ctx.ChainID,
		Limit:   ev.Limit,
		Window:  ev.Window,
	}
	if err := hc.Store.PutOAppRateLimiter(dctx, rec); err != nil {
		return fmt.Errorf("handlers: persist oapp rate limiter: %w", err)
	}
	if err := hc.Store.AppendOAppRateLimiterVersion(dctx, &entities.OAppRateLimiterVersion{
		EventID:     eventID,
		OAppID:      oAppID,
		Limit:       ev.Limit,
		Window:      ev.Window,
		BlockNumber: ev.Ctx.BlockNumber,
		Timestamp:   ev.Ctx.Timestamp,
		TxHash:      ev.Ctx.TxHash,
	}); err != nil {
		return fmt.Errorf("handlers: append oapp rate limiter version: %w", err)
	}

	hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindRateLimiterSet))
	return nil
}

func handleRateLimitsChanged(ctx context.Context, hc *Context, ev *events.RateLimitsChanged) error {
	eventID := addr.MakeEventID(ev.Ctx.ChainID, ev.Ctx.BlockNumber, ev.Ctx.LogIndex)

	oapp, err := addr.Normalize(ev.OApp)
	if err != nil {
		dctx := withDiag(ctx, ev.Ctx.ChainID, ev.DstEid, "", "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)
		return skip(dctx, hc, events.KindRateLimitsChanged, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}
	oAppID := addr.MakeOAppID(ev.Ctx.ChainID, oapp)
	id := fmt.Sprintf("%s_%d", oAppID, ev.DstEid)
	dctx := withDiag(ctx, ev.Ctx.ChainID, ev.DstEid, oAppID, "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)

	if hc.Preload {
		hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindRateLimitsChanged))
		return nil
	}

	if err := ensureOAppStats(dctx, hc, oAppID); err != nil {
		return err
	}

	rec := &entities.OAppRateLimit{
		ID:     id,
		OAppID: oAppID,
		DstEid: ev.DstEid,
		Limit:  ev.Limit,
		Window: ev.Window,
	}
	if err := hc.Store.PutOAppRateLimit(dctx, rec); err != nil {
		return fmt.Errorf("handlers: persist oapp rate limit: %w", err)
	}
	if err := hc.Store.AppendOAppRateLimitVersion(dctx, &entities.OAppRateLimitVersion{
		EventID:     eventID,
		ID:          id,
		OAppID:      oAppID,
		DstEid:      ev.DstEid,
		Limit:       ev.Limit,
		Window:      ev.Window,
		BlockNumber: ev.Ctx.BlockNumber,
		Timestamp:   ev.Ctx.Timestamp,
		TxHash:      ev.Ctx.TxHash,
	}); err != nil {
		return fmt.Errorf("handlers: append oapp rate limit version: %w", err)
	}

	hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindRateLimitsChanged))
	return nil
}

// fanOut wraps resolver.Recompute for the two default-scope event kinds,
// logging per-row failures and re-raising list-level failures as fatal.
func fanOut(ctx context.Context, hc *Context, chainID, eid int64, eventID string, blockNumber uint64, timestamp time.Time, txHash string) error {
	ctx, span := telemetry.StartRecomputeSpan(ctx, "", telemetry.ChainID(chainID), telemetry.Eid(eid), telemetry.EventID(eventID))
	defer span.End()

	sc := resolver.ScopeChange{
		ChainID:     chainID,
		Eid:         eid,
		EventID:     eventID,
		BlockNumber: blockNumber,
		Timestamp:   timestamp,
		TxHash:      txHash,
	}
	updated, warnings, failures, err := resolver.Recompute(ctx, hc.Store, hc.Classifier, sc)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("handlers: fan-out recompute for chain %d eid %d: %w", chainID, eid, err)
	}
	for _, f := range failures {
		obslog.WarnCtx(ctx, "recompute row failed, skipping",
			obslog.KeyKind, obslog.KindRecomputeRowFailed, obslog.KeyOAppRouteKey, f.OAppRouteKey, obslog.KeyError, f.Err)
		hc.Metrics.InvariantWarning(obslog.KindRecomputeRowFailed)
	}
	logResolveWarnings(ctx, hc, warnings)
	hc.Metrics.RecomputeRows(chainLabel(chainID), strconv.FormatInt(eid, 10), updated)
	return nil
}

// change builds the ScopeChange resolver.RecomputeRoute wants out of a raw
// event's block context.
func change(bctx events.BlockContext, eventID string) resolver.ScopeChange {
	return resolver.ScopeChange{
		ChainID:     bctx.ChainID,
		EventID:     eventID,
		BlockNumber: bctx.BlockNumber,
		Timestamp:   bctx.Timestamp,
		TxHash:      bctx.TxHash,
	}
}

// ensureOAppStats creates an OAppStats row the first time an application is
// observed by any handler, so downstream queries never have to distinguish
// "zero packets" from "never seen".
func ensureOAppStats(ctx context.Context, hc *Context, oAppID string) error {
	existing, err := hc.Store.GetOAppStats(ctx, oAppID)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("handlers: read oapp stats: %w", err)
	}
	if existing != nil {
		return nil
	}
	if err := hc.Store.PutOAppStats(ctx, &entities.OAppStats{OAppID: oAppID}); err != nil {
		return fmt.Errorf("handlers: create oapp stats: %w", err)
	}
	return nil
}

// normalizedUlnFields is the post-validation shape stored directly on
// DefaultUlnConfig/OAppUlnConfig and their version rows.
type normalizedUlnFields struct {
	Confirmations        uint64
	RequiredDVNCount     uint8
	OptionalDVNCount     uint8
	OptionalDVNThreshold uint8
	RequiredDVNs         []string
	OptionalDVNs         []string
}

// normalizeUlnTuple normalizes a raw wire tuple's DVN addresses and runs it
// through ulnconfig.Config.Validate to surface sentinel/mismatch/threshold
// warnings without rejecting the tuple outright — only a malformed address
// is treated as invalid input.
func normalizeUlnTuple(tuple events.UlnConfigTuple) (normalizedUlnFields, []ulnconfig.ValidationWarning, error) {
	requiredDvns, err := normalizeDvnList(tuple.RequiredDVNs)
	if err != nil {
		return normalizedUlnFields{}, nil, err
	}
	optionalDvns, err := normalizeDvnList(tuple.OptionalDVNs)
	if err != nil {
		return normalizedUlnFields{}, nil, err
	}

	cfg := ulnconfig.Config{
		Confirmations:        ulnconfig.FieldFromConfirmations(tuple.Confirmations),
		RequiredDVNCount:     ulnconfig.FieldFromCount(tuple.RequiredDVNCount),
		OptionalDVNCount:     ulnconfig.FieldFromCount(tuple.OptionalDVNCount),
		OptionalDVNThreshold: ulnconfig.FieldFromThreshold(tuple.OptionalDVNThreshold),
		RequiredDVNs:         requiredDvns,
		OptionalDVNs:         optionalDvns,
	}
	warnings := cfg.Validate()

	return normalizedUlnFields{
		Confirmations:        tuple.Confirmations,
		RequiredDVNCount:     tuple.RequiredDVNCount,
		OptionalDVNCount:     tuple.OptionalDVNCount,
		OptionalDVNThreshold: uint8(cfg.OptionalDVNThreshold.ResolvedValue()),
		RequiredDVNs:         requiredDvns,
		OptionalDVNs:         optionalDvns,
	}, warnings, nil
}

func normalizeDvnList(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		n, err := addr.Normalize(a)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return addr.Dedup(out), nil
}

func logUlnWarnings(ctx context.Context, warnings []ulnconfig.ValidationWarning) {
	for _, w := range warnings {
		obslog.DebugCtx(ctx, "uln config validation warning", obslog.KeyKind, w.Kind, "message", w.Message)
	}
}

func logResolveWarnings(ctx context.Context, hc *Context, warnings []resolver.Warning) {
	for _, w := range warnings {
		obslog.WarnCtx(ctx, "invariant warning", obslog.KeyKind, w.Kind, "message", w.Message)
		hc.Metrics.InvariantWarning(w.Kind)
	}
}
