package resolver

import (
	"context"
	"testing"

	"github.com/sekuba/dvnstats-sub001/pkg/entities"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

func seedRoute(t *testing.T, s *store.MemoryStore, chainID, eid int64, oAppID string) string {
	t.Helper()
	oAppRouteKey := oAppID + "_30101"
	ctx := context.Background()
	if err := s.PutOAppSecurityConfig(ctx, &entities.OAppSecurityConfig{
		OAppRouteKey: oAppRouteKey,
		OAppID:       oAppID,
		Eid:          eid,
		ChainID:      chainID,
	}); err != nil {
		t.Fatalf("seed security config: %v", err)
	}
	return oAppRouteKey
}

// Recompute must re-resolve every row in scope for the affected chain and
// eid, and leave rows on other eids untouched.
func TestRecomputeFansOutByRouteOnly(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	classifier := classifierWithTracked(1, trackedLib)

	routeKey := "1_30101"
	if err := s.PutDefaultReceiveLibrary(ctx, &entities.DefaultReceiveLibrary{
		RouteKey: routeKey, ChainID: 1, Eid: 30101, Library: trackedLib, LastEventID: "1_50_0",
	}); err != nil {
		t.Fatalf("seed default library: %v", err)
	}
	if err := s.PutDefaultUlnConfig(ctx, &entities.DefaultUlnConfig{
		RouteKey: routeKey, ChainID: 1, Eid: 30101, Confirmations: 15, LastEventID: "1_50_0_30101",
	}); err != nil {
		t.Fatalf("seed default uln: %v", err)
	}

	affected := seedRoute(t, s, 1, 30101, "1_0xapp1")
	other := seedRoute(t, s, 1, 30102, "1_0xapp2")

	updated, _, failures, err := Recompute(ctx, s, classifier, ScopeChange{
		ChainID: 1, Eid: 30101, EventID: "1_51_0", BlockNumber: 51,
	})
	if err != nil {
		t.Fatalf("Recompute returned error: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("expected no failures, got %+v", failures)
	}
	if updated != 1 {
		t.Fatalf("expected exactly 1 row updated, got %d", updated)
	}

	got, err := s.GetOAppSecurityConfig(ctx, affected)
	if err != nil {
		t.Fatalf("get recomputed row: %v", err)
	}
	if got.EffectiveConfirmations != 15 {
		t.Fatalf("expected recomputed confirmations 15, got %d", got.EffectiveConfirmations)
	}
	if got.LastComputedEventID != "1_51_0" {
		t.Fatalf("expected LastComputedEventID updated, got %q", got.LastComputedEventID)
	}

	untouched, err := s.GetOAppSecurityConfig(ctx, other)
	if err != nil {
		t.Fatalf("get untouched row: %v", err)
	}
	if untouched.EffectiveConfirmations != 0 || untouched.LastComputedEventID != "" {
		t.Fatalf("expected the other eid's row untouched, got %+v", untouched)
	}
}

func TestRecomputeRouteSinglePath(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	classifier := classifierWithTracked(1, trackedLib)
	routeKey := "1_30101"

	if err := s.PutDefaultReceiveLibrary(ctx, &entities.DefaultReceiveLibrary{
		RouteKey: routeKey, ChainID: 1, Eid: 30101, Library: trackedLib,
	}); err != nil {
		t.Fatalf("seed default library: %v", err)
	}

	out, _, err := RecomputeRoute(ctx, s, classifier, "1_0xapp_30101", 1, 30101, "1_0xapp", ScopeChange{
		ChainID: 1, Eid: 30101, EventID: "1_60_0", BlockNumber: 60,
	})
	if err != nil {
		t.Fatalf("RecomputeRoute returned error: %v", err)
	}
	if !out.UsesDefaultLibrary {
		t.Fatalf("expected UsesDefaultLibrary=true, got %+v", out)
	}

	stored, err := s.GetOAppSecurityConfig(ctx, "1_0xapp_30101")
	if err != nil {
		t.Fatalf("get persisted row: %v", err)
	}
	if stored.EffectiveReceiveLibrary != trackedLib {
		t.Fatalf("expected persisted row to reflect resolved library, got %+v", stored)
	}
}
