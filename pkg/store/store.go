// Package store defines the entity store interface the resolver and event
// handlers are written against (the host runtime's context.get/getOrCreate/set/
// getWhere contract), plus two concrete implementations: an in-memory store
// for tests, dry-run, and the CLI's replay mode, and a Postgres-backed store
// for production. Every method takes a context.Context because each
// read/write is potentially a suspending interaction with a
// backing store even though the handlers that call them run one at a time
// per chain.
package store

import (
	"context"
	"errors"

	"github.com/sekuba/dvnstats-sub001/pkg/entities"
)

// ErrNotFound is returned by Get-style methods when no record exists for
// the given key.
var ErrNotFound = errors.New("store: not found")

// Store is the full entity persistence surface this core depends on. It is
// implemented by MemoryStore and postgres.Store.
type Store interface {
	// Defaults (component D)
	GetDefaultReceiveLibrary(ctx context.Context, routeKey string) (*entities.DefaultReceiveLibrary, error)
	PutDefaultReceiveLibrary(ctx context.Context, rec *entities.DefaultReceiveLibrary) error
	AppendDefaultReceiveLibraryVersion(ctx context.Context, v *entities.DefaultReceiveLibraryVersion) error

	GetDefaultUlnConfig(ctx context.Context, routeKey string) (*entities.DefaultUlnConfig, error)
	PutDefaultUlnConfig(ctx context.Context, rec *entities.DefaultUlnConfig) error
	AppendDefaultUlnConfigVersion(ctx context.Context, v *entities.DefaultUlnConfigVersion) error

	// Overrides (component E)
	GetOAppReceiveLibrary(ctx context.Context, oAppRouteKey string) (*entities.OAppReceiveLibrary, error)
	PutOAppReceiveLibrary(ctx context.Context, rec *entities.OAppReceiveLibrary) error
	AppendOAppReceiveLibraryVersion(ctx context.Context, v *entities.OAppReceiveLibraryVersion) error

	GetOAppUlnConfig(ctx context.Context, oAppRouteKey string) (*entities.OAppUlnConfig, error)
	PutOAppUlnConfig(ctx context.Context, rec *entities.OAppUlnConfig) error
	AppendOAppUlnConfigVersion(ctx context.Context, v *entities.OAppUlnConfigVersion) error

	GetOAppPeer(ctx context.Context, oAppRouteKey string) (*entities.OAppPeer, error)
	PutOAppPeer(ctx context.Context, rec *entities.OAppPeer) error
	AppendOAppPeerVersion(ctx context.Context, v *entities.OAppPeerVersion) error

	GetOAppRateLimiter(ctx context.Context, oAppID string) (*entities.OAppRateLimiter, error)
	PutOAppRateLimiter(ctx context.Context, rec *entities.OAppRateLimiter) error
	AppendOAppRateLimiterVersion(ctx context.Context, v *entities.OAppRateLimiterVersion) error

	GetOAppRateLimit(ctx context.Context, id string) (*entities.OAppRateLimit, error)
	PutOAppRateLimit(ctx context.Context, rec *entities.OAppRateLimit) error
	AppendOAppRateLimitVersion(ctx context.Context, v *entities.OAppRateLimitVersion) error

	// Derived state (component F output)
	GetOAppSecurityConfig(ctx context.Context, oAppRouteKey string) (*entities.OAppSecurityConfig, error)
	PutOAppSecurityConfig(ctx context.Context, rec *entities.OAppSecurityConfig) error
	// ListSecurityConfigsByRoute enumerates every OAppSecurityConfig row
	// currently in scope for a chain, for the recomputation scheduler
	// (component H) to filter in-memory by eid.
	ListSecurityConfigsByRoute(ctx context.Context, chainID int64) ([]*entities.OAppSecurityConfig, error)

	// Packets & stats (component I)
	GetPacketDelivered(ctx context.Context, eventID string) (*entities.PacketDelivered, error)
	PutPacketDelivered(ctx context.Context, rec *entities.PacketDelivered) error
	ListPacketDeliveredByRoute(ctx context.Context, oAppRouteKey string, cursor string, limit int) ([]*entities.PacketDelivered, string, error)

	GetOAppStats(ctx context.Context, oAppID string) (*entities.OAppStats, error)
	PutOAppStats(ctx context.Context, rec *entities.OAppStats) error

	GetOAppRouteStats(ctx context.Context, oAppRouteKey string) (*entities.OAppRouteStats, error)
	PutOAppRouteStats(ctx context.Context, rec *entities.OAppRouteStats) error

	// DVN directory (component J)
	GetDvnMetadata(ctx context.Context, chainID int64, address string) (*entities.DvnMetadata, error)
	PutDvnMetadata(ctx context.Context, rec *entities.DvnMetadata) error
}
