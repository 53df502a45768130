package handlers

import (
	"context"
	"fmt"

	"github.com/sekuba/dvnstats-sub001/internal/obslog"
	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/entities"
	"github.com/sekuba/dvnstats-sub001/pkg/events"
	"github.com/sekuba/dvnstats-sub001/pkg/resolver"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

// HandlePacketDelivered implements the packet snapshotter: the six-step
// sequence of updating stats, re-resolving the route's effective
// configuration, embedding a full snapshot of it onto the new
// PacketDelivered row, applying the OAppPeer state machine, and ensuring
// DVN directory entries for every address the resolved configuration
// references.
func HandlePacketDelivered(ctx context.Context, hc *Context, ev *events.PacketDelivered) error {
	eventID := addr.MakeEventID(ev.Ctx.ChainID, ev.Ctx.BlockNumber, ev.Ctx.LogIndex)

	receiver, err := addr.Normalize(ev.Receiver)
	if err != nil {
		dctx := withDiag(ctx, ev.Ctx.ChainID, ev.Origin.SrcEid, "", "", eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)
		return skip(dctx, hc, events.KindPacketDelivered, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}
	oAppID := addr.MakeOAppID(ev.Ctx.ChainID, receiver)
	oAppRouteKey := addr.MakeOAppRouteKey(oAppID, ev.Origin.SrcEid)
	dctx := withDiag(ctx, ev.Ctx.ChainID, ev.Origin.SrcEid, oAppID, oAppRouteKey, eventID, ev.Ctx.BlockNumber, ev.Ctx.TxHash)

	senderAddress, senderHasAddress, err := addr.Bytes32ToAddress(ev.Origin.Sender)
	if err != nil {
		return skip(dctx, hc, events.KindPacketDelivered, ev.Ctx.ChainID, obslog.KindMissingAddress, err)
	}

	if hc.Preload {
		hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindPacketDelivered))
		return nil
	}

	// Step 1: OAppStats.
	stats, err := hc.Store.GetOAppStats(dctx, oAppID)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("handlers: read oapp stats: %w", err)
	}
	if stats == nil {
		stats = &entities.OAppStats{OAppID: oAppID}
	}
	stats.TotalPacketsReceived++
	stats.LastPacketBlock = ev.Ctx.BlockNumber
	stats.LastPacketTimestamp = ev.Ctx.Timestamp
	if err := hc.Store.PutOAppStats(dctx, stats); err != nil {
		return fmt.Errorf("handlers: persist oapp stats: %w", err)
	}

	// Step 2: OAppRouteStats.
	routeStats, err := hc.Store.GetOAppRouteStats(dctx, oAppRouteKey)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("handlers: read oapp route stats: %w", err)
	}
	if routeStats == nil {
		routeStats = &entities.OAppRouteStats{OAppRouteKey: oAppRouteKey, OAppID: oAppID, SrcEid: ev.Origin.SrcEid}
	}
	routeStats.PacketCount++
	routeStats.LastConfigEventID = eventID
	if err := hc.Store.PutOAppRouteStats(dctx, routeStats); err != nil {
		return fmt.Errorf("handlers: persist oapp route stats: %w", err)
	}

	// Step 3: resolve and persist the derived configuration.
	cfg, warnings, err := resolver.RecomputeRoute(dctx, hc.Store, hc.Classifier, oAppRouteKey, ev.Ctx.ChainID, ev.Origin.SrcEid, oAppID, change(ev.Ctx, eventID))
	if err != nil {
		return fmt.Errorf("handlers: resolve config for packet delivered: %w", err)
	}
	logResolveWarnings(dctx, hc, warnings)

	// Step 4: embed a complete copy of the resolved configuration into the
	// immutable PacketDelivered row.
	pd := &entities.PacketDelivered{
		EventID:     eventID,
		ChainID:     ev.Ctx.ChainID,
		SrcEid:      ev.Origin.SrcEid,
		Sender:      senderAddress,
		Nonce:       ev.Origin.Nonce,
		ReceiverID:  oAppID,
		BlockNumber: ev.Ctx.BlockNumber,
		Timestamp:   ev.Ctx.Timestamp,
		TxHash:      ev.Ctx.TxHash,

		EffectiveReceiveLibrary:       cfg.EffectiveReceiveLibrary,
		EffectiveConfirmations:        cfg.EffectiveConfirmations,
		EffectiveRequiredDVNCount:     cfg.EffectiveRequiredDVNCount,
		EffectiveOptionalDVNCount:     cfg.EffectiveOptionalDVNCount,
		EffectiveOptionalDVNThreshold: cfg.EffectiveOptionalDVNThreshold,
		EffectiveRequiredDVNs:         cfg.EffectiveRequiredDVNs,
		EffectiveOptionalDVNs:         cfg.EffectiveOptionalDVNs,
		LibraryStatus:                 cfg.LibraryStatus,
		IsConfigTracked:               cfg.IsConfigTracked,
		UsesDefaultLibrary:            cfg.UsesDefaultLibrary,
		UsesDefaultConfig:             cfg.UsesDefaultConfig,
		UsesRequiredDVNSentinel:       cfg.UsesRequiredDVNSentinel,
		FallbackFields:                cfg.FallbackFields,

		DefaultLibraryVersionEventID:    cfg.DefaultLibraryVersionEventID,
		DefaultUlnConfigVersionID:       cfg.DefaultUlnConfigVersionID,
		OverrideLibraryVersionEventID:   cfg.OverrideLibraryVersionEventID,
		OverrideUlnConfigVersionEventID: cfg.OverrideUlnConfigVersionEventID,
	}
	if err := hc.Store.PutPacketDelivered(dctx, pd); err != nil {
		return fmt.Errorf("handlers: persist packet delivered: %w", err)
	}

	// Step 5: OAppPeer state machine.
	if err := applyPeerStateMachine(dctx, hc, oAppRouteKey, oAppID, ev.Origin.SrcEid, ev.Origin.Sender, senderAddress, senderHasAddress, eventID, ev.Ctx); err != nil {
		return fmt.Errorf("handlers: apply peer state machine: %w", err)
	}

	// Step 6: DVN directory.
	if hc.Dvn != nil {
		addresses := make([]string, 0, len(cfg.EffectiveRequiredDVNs)+len(cfg.EffectiveOptionalDVNs))
		addresses = append(addresses, cfg.EffectiveRequiredDVNs...)
		addresses = append(addresses, cfg.EffectiveOptionalDVNs...)
		if err := hc.Dvn.EnsureAddresses(dctx, ev.Ctx.ChainID, addresses); err != nil {
			return fmt.Errorf("handlers: ensure dvn metadata: %w", err)
		}
	}

	hc.Metrics.PacketDelivered(chainLabel(ev.Ctx.ChainID))
	hc.Metrics.EventProcessed(chainLabel(ev.Ctx.ChainID), string(events.KindPacketDelivered))
	return nil
}

// applyPeerStateMachine implements the OAppPeer transitions triggered by
// delivery: synthesize an AutoDiscovered record the first time
// a route is seen with no prior PeerSet, and otherwise only check the
// existing record for the two documented delivery-time invariant warnings.
// A later PeerSet always overwrites an auto-discovered record (handled in
// handlePeerSet); delivery never overwrites an existing record itself.
func applyPeerStateMachine(ctx context.Context, hc *Context, oAppRouteKey, oAppID string, srcEid int64, rawSender, senderAddress string, senderHasAddress bool, eventID string, bctx events.BlockContext) error {
	existing, err := hc.Store.GetOAppPeer(ctx, oAppRouteKey)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("read oapp peer: %w", err)
	}

	if existing == nil {
		rec := &entities.OAppPeer{
			OAppRouteKey:        oAppRouteKey,
			OAppID:              oAppID,
			Eid:                 srcEid,
			Peer:                rawSender,
			PeerAddress:         senderAddress,
			FromPacketDelivered: true,
		}
		if err := hc.Store.PutOAppPeer(ctx, rec); err != nil {
			return fmt.Errorf("persist auto-discovered oapp peer: %w", err)
		}
		if err := hc.Store.AppendOAppPeerVersion(ctx, &entities.OAppPeerVersion{
			EventID:             eventID,
			OAppRouteKey:        oAppRouteKey,
			OAppID:              oAppID,
			Eid:                 srcEid,
			Peer:                rawSender,
			FromPacketDelivered: true,
			BlockNumber:         bctx.BlockNumber,
			Timestamp:           bctx.Timestamp,
			TxHash:              bctx.TxHash,
		}); err != nil {
			return fmt.Errorf("append auto-discovered oapp peer version: %w", err)
		}
		return nil
	}

	if existing.State() == entities.PeerExplicitlyBlocked {
		obslog.WarnCtx(ctx, "route explicitly blocked but packet delivered",
			obslog.KeyKind, obslog.KindBlockedButDelivered)
		hc.Metrics.InvariantWarning(obslog.KindBlockedButDelivered)
	}
	if existing.PeerAddress != senderAddress {
		obslog.WarnCtx(ctx, "sender does not match configured peer",
			obslog.KeyKind, obslog.KindPeerMismatch, "configured_peer", existing.PeerAddress, "sender", senderAddress)
		hc.Metrics.InvariantWarning(obslog.KindPeerMismatch)
	}
	return nil
}
