package handlers

import (
	"context"
	"testing"

	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/events"
)

// TestOAppStats_CountMatchesPacketDeliveredRows exercises property 10: after
// any number of PacketDelivered events for one application, OAppStats's
// counter equals the number of PacketDelivered rows stored for that OAppId.
func TestOAppStats_CountMatchesPacketDeliveredRows(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA}})
	s := &seq{}

	const deliveries = 5
	for i := 0; i < deliveries; i++ {
		mustDispatch(t, hc, events.Event{
			Kind: events.KindPacketDelivered,
			PacketDelivered: &events.PacketDelivered{
				Ctx:      s.next(),
				Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderAAA, Nonce: uint64(i)},
				Receiver: oappO,
			},
		})
	}

	oAppID := addr.MakeOAppID(testChainID, mustNormalize(t, oappO))
	stats, err := hc.Store.GetOAppStats(context.Background(), oAppID)
	if err != nil {
		t.Fatalf("GetOAppStats: %v", err)
	}
	if stats.TotalPacketsReceived != deliveries {
		t.Fatalf("expected TotalPacketsReceived=%d, got %d", deliveries, stats.TotalPacketsReceived)
	}

	recs, _, err := hc.Store.ListPacketDeliveredByRoute(context.Background(), routeKeyFor(t, oappO, testEid), "", 100)
	if err != nil {
		t.Fatalf("ListPacketDeliveredByRoute: %v", err)
	}
	if uint64(len(recs)) != stats.TotalPacketsReceived {
		t.Fatalf("OAppStats.TotalPacketsReceived=%d does not match %d stored PacketDelivered rows", stats.TotalPacketsReceived, len(recs))
	}
}

// TestOAppStats_CountIsPerApplicationNotGlobal makes sure the property
// above is scoped per OAppId: deliveries to a different application don't
// inflate the first application's counter.
func TestOAppStats_CountIsPerApplicationNotGlobal(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA}})
	s := &seq{}

	mustDispatch(t, hc, events.Event{
		Kind: events.KindPacketDelivered,
		PacketDelivered: &events.PacketDelivered{
			Ctx:      s.next(),
			Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderAAA, Nonce: 1},
			Receiver: oappO,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindPacketDelivered,
		PacketDelivered: &events.PacketDelivered{
			Ctx:      s.next(),
			Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderAAA, Nonce: 2},
			Receiver: oappP,
		},
	})

	oAppID := addr.MakeOAppID(testChainID, mustNormalize(t, oappO))
	stats, err := hc.Store.GetOAppStats(context.Background(), oAppID)
	if err != nil {
		t.Fatalf("GetOAppStats: %v", err)
	}
	if stats.TotalPacketsReceived != 1 {
		t.Fatalf("expected TotalPacketsReceived=1 for oappO, got %d", stats.TotalPacketsReceived)
	}
}

// TestFanOut_UpdatesEveryOverrideOnDefaultLibraryChange covers the
// recomputation fan-out: when the default receive library for a route
// changes, every application that currently resolves to that default (no
// override library of its own) gets its OAppSecurityConfig recomputed to
// reflect the new default, not just the route that triggered the change.
func TestFanOut_UpdatesEveryOverrideOnDefaultLibraryChange(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA, trackedLibB}})
	s := &seq{}

	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: testEid, NewLibrary: trackedLibA,
		},
	})

	// Establish two application overrides on the same route (distinct ULN
	// configs, no library override) so each gets its own OAppSecurityConfig
	// row in scope for the route's eid.
	mustDispatch(t, hc, events.Event{
		Kind: events.KindUlnConfigSet,
		UlnConfigSet: &events.UlnConfigSet{
			Ctx: s.next(), OApp: oappO, Eid: testEid,
			Config: events.UlnConfigTuple{Confirmations: 1},
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindUlnConfigSet,
		UlnConfigSet: &events.UlnConfigSet{
			Ctx: s.next(), OApp: oappP, Eid: testEid,
			Config: events.UlnConfigTuple{Confirmations: 2},
		},
	})

	cfgO, err := hc.Store.GetOAppSecurityConfig(context.Background(), routeKeyFor(t, oappO, testEid))
	if err != nil {
		t.Fatalf("GetOAppSecurityConfig(O): %v", err)
	}
	cfgP, err := hc.Store.GetOAppSecurityConfig(context.Background(), routeKeyFor(t, oappP, testEid))
	if err != nil {
		t.Fatalf("GetOAppSecurityConfig(P): %v", err)
	}
	wantNormalizedA := mustNormalize(t, trackedLibA)
	if cfgO.EffectiveReceiveLibrary != wantNormalizedA || cfgP.EffectiveReceiveLibrary != wantNormalizedA {
		t.Fatalf("expected both routes to resolve to the first default library before the cascade, got O=%s P=%s", cfgO.EffectiveReceiveLibrary, cfgP.EffectiveReceiveLibrary)
	}

	// Changing the default must cascade to both in-scope rows.
	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: testEid, NewLibrary: trackedLibB,
		},
	})

	wantNormalizedB := mustNormalize(t, trackedLibB)
	cfgO, err = hc.Store.GetOAppSecurityConfig(context.Background(), routeKeyFor(t, oappO, testEid))
	if err != nil {
		t.Fatalf("GetOAppSecurityConfig(O) after cascade: %v", err)
	}
	cfgP, err = hc.Store.GetOAppSecurityConfig(context.Background(), routeKeyFor(t, oappP, testEid))
	if err != nil {
		t.Fatalf("GetOAppSecurityConfig(P) after cascade: %v", err)
	}
	if cfgO.EffectiveReceiveLibrary != wantNormalizedB {
		t.Errorf("expected route O to cascade to the new default, got %s", cfgO.EffectiveReceiveLibrary)
	}
	if cfgP.EffectiveReceiveLibrary != wantNormalizedB {
		t.Errorf("expected route P to cascade to the new default, got %s", cfgP.EffectiveReceiveLibrary)
	}
	if cfgO.EffectiveConfirmations != 1 {
		t.Errorf("expected route O's own override confirmations to survive the cascade, got %d", cfgO.EffectiveConfirmations)
	}
	if cfgP.EffectiveConfirmations != 2 {
		t.Errorf("expected route P's own override confirmations to survive the cascade, got %d", cfgP.EffectiveConfirmations)
	}
}

// TestFanOut_DoesNotAffectOtherEids makes sure the recomputation scope is
// limited to the eid the default change targeted.
func TestFanOut_DoesNotAffectOtherEids(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA, trackedLibB}})
	s := &seq{}
	const otherEid = testEid + 1

	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: testEid, NewLibrary: trackedLibA,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: otherEid, NewLibrary: trackedLibA,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindUlnConfigSet,
		UlnConfigSet: &events.UlnConfigSet{
			Ctx: s.next(), OApp: oappO, Eid: otherEid,
			Config: events.UlnConfigTuple{Confirmations: 9},
		},
	})

	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: testEid, NewLibrary: trackedLibB,
		},
	})

	cfg, err := hc.Store.GetOAppSecurityConfig(context.Background(), routeKeyFor(t, oappO, otherEid))
	if err != nil {
		t.Fatalf("GetOAppSecurityConfig: %v", err)
	}
	wantNormalizedA := mustNormalize(t, trackedLibA)
	if cfg.EffectiveReceiveLibrary != wantNormalizedA {
		t.Fatalf("expected the other eid's route to be untouched by a different eid's default change, got %s", cfg.EffectiveReceiveLibrary)
	}
}

func mustNormalize(t *testing.T, raw string) string {
	t.Helper()
	n, err := addr.Normalize(raw)
	if err != nil {
		t.Fatalf("addr.Normalize(%q): %v", raw, err)
	}
	return n
}
