package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/entities"
	"github.com/sekuba/dvnstats-sub001/pkg/libclass"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

// ScopeChange describes the triggering event for a recomputation fan-out:
// a default-library or default-ULN-config change always scopes to exactly
// one (chainId, eid) route.
type ScopeChange struct {
	ChainID     int64
	Eid         int64
	EventID     string
	BlockNumber uint64
	Timestamp   time.Time
	TxHash      string
}

// RecomputeFailure records one row's recomputation error without aborting
// the whole fan-out ("failures on a single row are logged ...
// and processing continues").
type RecomputeFailure struct {
	OAppRouteKey string
	Err          error
}

func (f RecomputeFailure) Error() string {
	return fmt.Sprintf("recompute %s: %v", f.OAppRouteKey, f.Err)
}

// Recompute implements the fan-out scheduler: given a default-
// or library-scope change on (chainId, eid), it enumerates every
// OAppSecurityConfig row currently in scope for that chain, filters by the
// affected eid in-memory, and re-resolves each match with fresh reads of
// the current default and override state. A failure resolving or
// persisting one row is returned in failures alongside the rest so the
// caller can log-and-continue; only a failure listing the chain's rows, or
// context cancellation, is returned as the top-level error.
func Recompute(ctx context.Context, s store.Store, classifier *libclass.Classifier, change ScopeChange) (updated int, warnings []Warning, failures []RecomputeFailure, err error) {
	rows, listErr := s.ListSecurityConfigsByRoute(ctx, change.ChainID)
	if listErr != nil {
		return 0, nil, nil, fmt.Errorf("resolver: recompute: list routes for chain %d: %w", change.ChainID, listErr)
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return updated, warnings, failures, ctx.Err()
		}
		if row.Eid != change.Eid {
			continue
		}

		fresh, warns, recErr := resolveRoute(ctx, s, classifier, row.OAppRouteKey, row.ChainID, row.Eid, row.OAppID, change)
		if recErr != nil {
			failures = append(failures, RecomputeFailure{OAppRouteKey: row.OAppRouteKey, Err: recErr})
			continue
		}
		if putErr := s.PutOAppSecurityConfig(ctx, fresh); putErr != nil {
			failures = append(failures, RecomputeFailure{OAppRouteKey: row.OAppRouteKey, Err: putErr})
			continue
		}
		updated++
		warnings = append(warnings, warns...)
	}

	return updated, warnings, failures, nil
}

// resolveRoute performs one fresh read-resolve cycle for a single route,
// shared by Recompute's fan-out and by handlers recomputing their own
// triggering route directly.
func resolveRoute(ctx context.Context, s store.Store, classifier *libclass.Classifier, oAppRouteKey string, chainID, eid int64, oAppID string, change ScopeChange) (*entities.OAppSecurityConfig, []Warning, error) {
	routeKey := addr.MakeRouteKey(chainID, eid)

	defaultLib, err := s.GetDefaultReceiveLibrary(ctx, routeKey)
	if err != nil && err != store.ErrNotFound {
		return nil, nil, fmt.Errorf("read default receive library: %w", err)
	}
	defaultUln, err := s.GetDefaultUlnConfig(ctx, routeKey)
	if err != nil && err != store.ErrNotFound {
		return nil, nil, fmt.Errorf("read default uln config: %w", err)
	}
	overrideLib, err := s.GetOAppReceiveLibrary(ctx, oAppRouteKey)
	if err != nil && err != store.ErrNotFound {
		return nil, nil, fmt.Errorf("read override receive library: %w", err)
	}
	overrideUln, err := s.GetOAppUlnConfig(ctx, oAppRouteKey)
	if err != nil && err != store.ErrNotFound {
		return nil, nil, fmt.Errorf("read override uln config: %w", err)
	}

	in := Inputs{
		ChainID:         chainID,
		Eid:             eid,
		OAppID:          oAppID,
		OAppRouteKey:    oAppRouteKey,
		Classifier:      classifier,
		DefaultLibrary:  defaultLib,
		DefaultUln:      defaultUln,
		OverrideLibrary: overrideLib,
		OverrideUln:     overrideUln,
		EventID:         change.EventID,
		BlockNumber:     change.BlockNumber,
		Timestamp:       change.Timestamp,
		TxHash:          change.TxHash,
	}

	out, warnings := Resolve(in)
	return out, warnings, nil
}

// RecomputeRoute is the single-route entry point handlers use for the route
// they just mutated directly (e.g. ReceiveLibrarySet, UlnConfigSet), before
// any chain-wide fan-out is considered. It shares resolveRoute with
// Recompute so both paths read identically fresh state.
func RecomputeRoute(ctx context.Context, s store.Store, classifier *libclass.Classifier, oAppRouteKey string, chainID, eid int64, oAppID string, change ScopeChange) (*entities.OAppSecurityConfig, []Warning, error) {
	out, warnings, err := resolveRoute(ctx, s, classifier, oAppRouteKey, chainID, eid, oAppID, change)
	if err != nil {
		return nil, nil, err
	}
	if putErr := s.PutOAppSecurityConfig(ctx, out); putErr != nil {
		return nil, nil, fmt.Errorf("persist security config: %w", putErr)
	}
	return out, warnings, nil
}
