package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/entities"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

// Store implements store.Store on top of a pgx connection pool. Every
// method issues parameterized SQL directly rather than going through a
// query builder or ORM.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to Postgres, optionally applies pending migrations, and
// returns a ready-to-use Store.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	logger := slog.With("component", "postgres_store")

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.AutoMigrate {
		logger.Info("auto_migrate enabled, applying migrations")
		if err := runMigrations(ctx, cfg.ConnectionString(), logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	} else {
		logger.Info("auto_migrate disabled, pending schema migrations are not applied")
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// mapErr turns pgx.ErrNoRows into store.ErrNotFound and wraps everything
// else with the operation name, without
// the filesystem-specific error taxonomy this domain has no use for.
func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

var _ store.Store = (*Store)(nil)

// --- Defaults (component D) ---

func (s *Store) GetDefaultReceiveLibrary(ctx context.Context, routeKey string) (*entities.DefaultReceiveLibrary, error) {
	const q = `SELECT route_key, chain_id, eid, library, last_event_id FROM default_receive_libraries WHERE route_key = $1`
	row := s.pool.QueryRow(ctx, q, routeKey)
	var rec entities.DefaultReceiveLibrary
	if err := row.Scan(&rec.RouteKey, &rec.ChainID, &rec.Eid, &rec.Library, &rec.LastEventID); err != nil {
		return nil, mapErr(err, "GetDefaultReceiveLibrary")
	}
	return &rec, nil
}

func (s *Store) PutDefaultReceiveLibrary(ctx context.Context, rec *entities.DefaultReceiveLibrary) error {
	const q = `
		INSERT INTO default_receive_libraries (route_key, chain_id, eid, library, last_event_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (route_key) DO UPDATE SET library = EXCLUDED.library, last_event_id = EXCLUDED.last_event_id
	`
	_, err := s.pool.Exec(ctx, q, rec.RouteKey, rec.ChainID, rec.Eid, rec.Library, rec.LastEventID)
	return mapErr(err, "PutDefaultReceiveLibrary")
}

func (s *Store) AppendDefaultReceiveLibraryVersion(ctx context.Context, v *entities.DefaultReceiveLibraryVersion) error {
	const q = `
		INSERT INTO default_receive_library_versions
			(event_id, route_key, chain_id, eid, library, block_number, "timestamp", tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q, v.EventID, v.RouteKey, v.ChainID, v.Eid, v.Library, v.BlockNumber, v.Timestamp, v.TxHash)
	return mapErr(err, "AppendDefaultReceiveLibraryVersion")
}

func (s *Store) GetDefaultUlnConfig(ctx context.Context, routeKey string) (*entities.DefaultUlnConfig, error) {
	const q = `
		SELECT route_key, chain_id, eid, confirmations, required_dvn_count, optional_dvn_count,
		       optional_dvn_threshold, required_dvns, optional_dvns, last_event_id
		FROM default_uln_configs WHERE route_key = $1
	`
	row := s.pool.QueryRow(ctx, q, routeKey)
	var rec entities.DefaultUlnConfig
	if err := row.Scan(&rec.RouteKey, &rec.ChainID, &rec.Eid, &rec.Confirmations, &rec.RequiredDVNCount,
		&rec.OptionalDVNCount, &rec.OptionalDVNThreshold, &rec.RequiredDVNs, &rec.OptionalDVNs, &rec.LastEventID); err != nil {
		return nil, mapErr(err, "GetDefaultUlnConfig")
	}
	return &rec, nil
}

func (s *Store) PutDefaultUlnConfig(ctx context.Context, rec *entities.DefaultUlnConfig) error {
	const q = `
		INSERT INTO default_uln_configs
			(route_key, chain_id, eid, confirmations, required_dvn_count, optional_dvn_count,
			 optional_dvn_threshold, required_dvns, optional_dvns, last_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (route_key) DO UPDATE SET
			confirmations = EXCLUDED.confirmations,
			required_dvn_count = EXCLUDED.required_dvn_count,
			optional_dvn_count = EXCLUDED.optional_dvn_count,
			optional_dvn_threshold = EXCLUDED.optional_dvn_threshold,
			required_dvns = EXCLUDED.required_dvns,
			optional_dvns = EXCLUDED.optional_dvns,
			last_event_id = EXCLUDED.last_event_id
	`
	_, err := s.pool.Exec(ctx, q, rec.RouteKey, rec.ChainID, rec.Eid, rec.Confirmations, rec.RequiredDVNCount,
		rec.OptionalDVNCount, rec.OptionalDVNThreshold, rec.RequiredDVNs, rec.OptionalDVNs, rec.LastEventID)
	return mapErr(err, "PutDefaultUlnConfig")
}

func (s *Store) AppendDefaultUlnConfigVersion(ctx context.Context, v *entities.DefaultUlnConfigVersion) error {
	const q = `
		INSERT INTO default_uln_config_versions
			(id, event_id, route_key, chain_id, eid, confirmations, required_dvn_count, optional_dvn_count,
			 optional_dvn_threshold, required_dvns, optional_dvns, block_number, "timestamp", tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q, v.ID, v.EventID, v.RouteKey, v.ChainID, v.Eid, v.Confirmations, v.RequiredDVNCount,
		v.OptionalDVNCount, v.OptionalDVNThreshold, v.RequiredDVNs, v.OptionalDVNs, v.BlockNumber, v.Timestamp, v.TxHash)
	return mapErr(err, "AppendDefaultUlnConfigVersion")
}

// --- Overrides (component E) ---

func (s *Store) GetOAppReceiveLibrary(ctx context.Context, oAppRouteKey string) (*entities.OAppReceiveLibrary, error) {
	const q = `SELECT oapp_route_key, oapp_id, eid, library, last_event_id FROM oapp_receive_libraries WHERE oapp_route_key = $1`
	row := s.pool.QueryRow(ctx, q, oAppRouteKey)
	var rec entities.OAppReceiveLibrary
	if err := row.Scan(&rec.OAppRouteKey, &rec.OAppID, &rec.Eid, &rec.Library, &rec.LastEventID); err != nil {
		return nil, mapErr(err, "GetOAppReceiveLibrary")
	}
	return &rec, nil
}

func (s *Store) PutOAppReceiveLibrary(ctx context.Context, rec *entities.OAppReceiveLibrary) error {
	const q = `
		INSERT INTO oapp_receive_libraries (oapp_route_key, oapp_id, eid, library, last_event_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (oapp_route_key) DO UPDATE SET library = EXCLUDED.library, last_event_id = EXCLUDED.last_event_id
	`
	_, err := s.pool.Exec(ctx, q, rec.OAppRouteKey, rec.OAppID, rec.Eid, rec.Library, rec.LastEventID)
	return mapErr(err, "PutOAppReceiveLibrary")
}

func (s *Store) AppendOAppReceiveLibraryVersion(ctx context.Context, v *entities.OAppReceiveLibraryVersion) error {
	const q = `
		INSERT INTO oapp_receive_library_versions
			(event_id, oapp_route_key, oapp_id, eid, library, block_number, "timestamp", tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q, v.EventID, v.OAppRouteKey, v.OAppID, v.Eid, v.Library, v.BlockNumber, v.Timestamp, v.TxHash)
	return mapErr(err, "AppendOAppReceiveLibraryVersion")
}

func (s *Store) GetOAppUlnConfig(ctx context.Context, oAppRouteKey string) (*entities.OAppUlnConfig, error) {
	const q = `
		SELECT oapp_route_key, oapp_id, eid, confirmations, required_dvn_count, optional_dvn_count,
		       optional_dvn_threshold, required_dvns, optional_dvns, last_event_id
		FROM oapp_uln_configs WHERE oapp_route_key = $1
	`
	row := s.pool.QueryRow(ctx, q, oAppRouteKey)
	var rec entities.OAppUlnConfig
	if err := row.Scan(&rec.OAppRouteKey, &rec.OAppID, &rec.Eid, &rec.Confirmations, &rec.RequiredDVNCount,
		&rec.OptionalDVNCount, &rec.OptionalDVNThreshold, &rec.RequiredDVNs, &rec.OptionalDVNs, &rec.LastEventID); err != nil {
		return nil, mapErr(err, "GetOAppUlnConfig")
	}
	return &rec, nil
}

func (s *Store) PutOAppUlnConfig(ctx context.Context, rec *entities.OAppUlnConfig) error {
	const q = `
		INSERT INTO oapp_uln_configs
			(oapp_route_key, oapp_id, eid, confirmations, required_dvn_count, optional_dvn_count,
			 optional_dvn_threshold, required_dvns, optional_dvns, last_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (oapp_route_key) DO UPDATE SET
			confirmations = EXCLUDED.confirmations,
			required_dvn_count = EXCLUDED.required_dvn_count,
			optional_dvn_count = EXCLUDED.optional_dvn_count,
			optional_dvn_threshold = EXCLUDED.optional_dvn_threshold,
			required_dvns = EXCLUDED.required_dvns,
			optional_dvns = EXCLUDED.optional_dvns,
			last_event_id = EXCLUDED.last_event_id
	`
	_, err := s.pool.Exec(ctx, q, rec.OAppRouteKey, rec.OAppID, rec.Eid, rec.Confirmations, rec.RequiredDVNCount,
		rec.OptionalDVNCount, rec.OptionalDVNThreshold, rec.RequiredDVNs, rec.OptionalDVNs, rec.LastEventID)
	return mapErr(err, "PutOAppUlnConfig")
}

func (s *Store) AppendOAppUlnConfigVersion(ctx context.Context, v *entities.OAppUlnConfigVersion) error {
	const q = `
		INSERT INTO oapp_uln_config_versions
			(event_id, oapp_route_key, oapp_id, eid, confirmations, required_dvn_count, optional_dvn_count,
			 optional_dvn_threshold, required_dvns, optional_dvns, block_number, "timestamp", tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q, v.EventID, v.OAppRouteKey, v.OAppID, v.Eid, v.Confirmations, v.RequiredDVNCount,
		v.OptionalDVNCount, v.OptionalDVNThreshold, v.RequiredDVNs, v.OptionalDVNs, v.BlockNumber, v.Timestamp, v.TxHash)
	return mapErr(err, "AppendOAppUlnConfigVersion")
}

func (s *Store) GetOAppPeer(ctx context.Context, oAppRouteKey string) (*entities.OAppPeer, error) {
	const q = `
		SELECT oapp_route_key, oapp_id, eid, peer, peer_address, from_packet_delivered
		FROM oapp_peers WHERE oapp_route_key = $1
	`
	row := s.pool.QueryRow(ctx, q, oAppRouteKey)
	var rec entities.OAppPeer
	if err := row.Scan(&rec.OAppRouteKey, &rec.OAppID, &rec.Eid, &rec.Peer, &rec.PeerAddress, &rec.FromPacketDelivered); err != nil {
		return nil, mapErr(err, "GetOAppPeer")
	}
	return &rec, nil
}

func (s *Store) PutOAppPeer(ctx context.Context, rec *entities.OAppPeer) error {
	const q = `
		INSERT INTO oapp_peers (oapp_route_key, oapp_id, eid, peer, peer_address, from_packet_delivered)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (oapp_route_key) DO UPDATE SET
			peer = EXCLUDED.peer,
			peer_address = EXCLUDED.peer_address,
			from_packet_delivered = EXCLUDED.from_packet_delivered
	`
	_, err := s.pool.Exec(ctx, q, rec.OAppRouteKey, rec.OAppID, rec.Eid, rec.Peer, rec.PeerAddress, rec.FromPacketDelivered)
	return mapErr(err, "PutOAppPeer")
}

func (s *Store) AppendOAppPeerVersion(ctx context.Context, v *entities.OAppPeerVersion) error {
	const q = `
		INSERT INTO oapp_peer_versions
			(event_id, oapp_route_key, oapp_id, eid, peer, from_packet_delivered, block_number, "timestamp", tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q, v.EventID, v.OAppRouteKey, v.OAppID, v.Eid, v.Peer, v.FromPacketDelivered, v.BlockNumber, v.Timestamp, v.TxHash)
	return mapErr(err, "AppendOAppPeerVersion")
}

func (s *Store) GetOAppRateLimiter(ctx context.Context, oAppID string) (*entities.OAppRateLimiter, error) {
	const q = `SELECT oapp_id, chain_id, "limit", "window" FROM oapp_rate_limiters WHERE oapp_id = $1`
	row := s.pool.QueryRow(ctx, q, oAppID)
	var rec entities.OAppRateLimiter
	if err := row.Scan(&rec.OAppID, &rec.ChainID, &rec.Limit, &rec.Window); err != nil {
		return nil, mapErr(err, "GetOAppRateLimiter")
	}
	return &rec, nil
}

func (s *Store) PutOAppRateLimiter(ctx context.Context, rec *entities.OAppRateLimiter) error {
	const q = `
		INSERT INTO oapp_rate_limiters (oapp_id, chain_id, "limit", "window")
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (oapp_id) DO UPDATE SET "limit" = EXCLUDED."limit", "window" = EXCLUDED."window"
	`
	_, err := s.pool.Exec(ctx, q, rec.OAppID, rec.ChainID, rec.Limit, rec.Window)
	return mapErr(err, "PutOAppRateLimiter")
}

func (s *Store) AppendOAppRateLimiterVersion(ctx context.Context, v *entities.OAppRateLimiterVersion) error {
	const q = `
		INSERT INTO oapp_rate_limiter_versions (event_id, oapp_id, "limit", "window", block_number, "timestamp", tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q, v.EventID, v.OAppID, v.Limit, v.Window, v.BlockNumber, v.Timestamp, v.TxHash)
	return mapErr(err, "AppendOAppRateLimiterVersion")
}

func (s *Store) GetOAppRateLimit(ctx context.Context, id string) (*entities.OAppRateLimit, error) {
	const q = `SELECT id, oapp_id, dst_eid, "limit", "window" FROM oapp_rate_limits WHERE id = $1`
	row := s.pool.QueryRow(ctx, q, id)
	var rec entities.OAppRateLimit
	if err := row.Scan(&rec.ID, &rec.OAppID, &rec.DstEid, &rec.Limit, &rec.Window); err != nil {
		return nil, mapErr(err, "GetOAppRateLimit")
	}
	return &rec, nil
}

func (s *Store) PutOAppRateLimit(ctx context.Context, rec *entities.OAppRateLimit) error {
	const q = `
		INSERT INTO oapp_rate_limits (id, oapp_id, dst_eid, "limit", "window")
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET "limit" = EXCLUDED."limit", "window" = EXCLUDED."window"
	`
	_, err := s.pool.Exec(ctx, q, rec.ID, rec.OAppID, rec.DstEid, rec.Limit, rec.Window)
	return mapErr(err, "PutOAppRateLimit")
}

func (s *Store) AppendOAppRateLimitVersion(ctx context.Context, v *entities.OAppRateLimitVersion) error {
	const q = `
		INSERT INTO oapp_rate_limit_versions (event_id, id, oapp_id, dst_eid, "limit", "window", block_number, "timestamp", tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, q, v.EventID, v.ID, v.OAppID, v.DstEid, v.Limit, v.Window, v.BlockNumber, v.Timestamp, v.TxHash)
	return mapErr(err, "AppendOAppRateLimitVersion")
}

// --- Derived state (component F output) ---

func (s *Store) GetOAppSecurityConfig(ctx context.Context, oAppRouteKey string) (*entities.OAppSecurityConfig, error) {
	const q = `
		SELECT oapp_route_key, oapp_id, eid, chain_id,
		       effective_receive_library, effective_confirmations, effective_required_dvn_count,
		       effective_optional_dvn_count, effective_optional_dvn_threshold,
		       effective_required_dvns, effective_optional_dvns,
		       library_status, is_config_tracked, uses_default_library, uses_default_config, uses_required_dvn_sentinel,
		       fallback_fields,
		       default_library_version_event_id, default_uln_config_version_id,
		       override_library_version_event_id, override_uln_config_version_event_id,
		       last_computed_block, last_computed_timestamp, last_computed_event_id, last_computed_tx_hash
		FROM oapp_security_configs WHERE oapp_route_key = $1
	`
	row := s.pool.QueryRow(ctx, q, oAppRouteKey)
	rec, err := scanSecurityConfig(row)
	if err != nil {
		return nil, mapErr(err, "GetOAppSecurityConfig")
	}
	return rec, nil
}

func scanSecurityConfig(row pgx.Row) (*entities.OAppSecurityConfig, error) {
	var rec entities.OAppSecurityConfig
	var fallback []string
	err := row.Scan(
		&rec.OAppRouteKey, &rec.OAppID, &rec.Eid, &rec.ChainID,
		&rec.EffectiveReceiveLibrary, &rec.EffectiveConfirmations, &rec.EffectiveRequiredDVNCount,
		&rec.EffectiveOptionalDVNCount, &rec.EffectiveOptionalDVNThreshold,
		&rec.EffectiveRequiredDVNs, &rec.EffectiveOptionalDVNs,
		&rec.LibraryStatus, &rec.IsConfigTracked, &rec.UsesDefaultLibrary, &rec.UsesDefaultConfig, &rec.UsesRequiredDVNSentinel,
		&fallback,
		&rec.DefaultLibraryVersionEventID, &rec.DefaultUlnConfigVersionID,
		&rec.OverrideLibraryVersionEventID, &rec.OverrideUlnConfigVersionEventID,
		&rec.LastComputedBlock, &rec.LastComputedTimestamp, &rec.LastComputedEventID, &rec.LastComputedTxHash,
	)
	if err != nil {
		return nil, err
	}
	rec.FallbackFields = make([]entities.FallbackField, len(fallback))
	for i, f := range fallback {
		rec.FallbackFields[i] = entities.FallbackField(f)
	}
	return &rec, nil
}

func (s *Store) PutOAppSecurityConfig(ctx context.Context, rec *entities.OAppSecurityConfig) error {
	const q = `
		INSERT INTO oapp_security_configs (
			oapp_route_key, oapp_id, eid, chain_id,
			effective_receive_library, effective_confirmations, effective_required_dvn_count,
			effective_optional_dvn_count, effective_optional_dvn_threshold,
			effective_required_dvns, effective_optional_dvns,
			library_status, is_config_tracked, uses_default_library, uses_default_config, uses_required_dvn_sentinel,
			fallback_fields,
			default_library_version_event_id, default_uln_config_version_id,
			override_library_version_event_id, override_uln_config_version_event_id,
			last_computed_block, last_computed_timestamp, last_computed_event_id, last_computed_tx_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		ON CONFLICT (oapp_route_key) DO UPDATE SET
			effective_receive_library = EXCLUDED.effective_receive_library,
			effective_confirmations = EXCLUDED.effective_confirmations,
			effective_required_dvn_count = EXCLUDED.effective_required_dvn_count,
			effective_optional_dvn_count = EXCLUDED.effective_optional_dvn_count,
			effective_optional_dvn_threshold = EXCLUDED.effective_optional_dvn_threshold,
			effective_required_dvns = EXCLUDED.effective_required_dvns,
			effective_optional_dvns = EXCLUDED.effective_optional_dvns,
			library_status = EXCLUDED.library_status,
			is_config_tracked = EXCLUDED.is_config_tracked,
			uses_default_library = EXCLUDED.uses_default_library,
			uses_default_config = EXCLUDED.uses_default_config,
			uses_required_dvn_sentinel = EXCLUDED.uses_required_dvn_sentinel,
			fallback_fields = EXCLUDED.fallback_fields,
			default_library_version_event_id = EXCLUDED.default_library_version_event_id,
			default_uln_config_version_id = EXCLUDED.default_uln_config_version_id,
			override_library_version_event_id = EXCLUDED.override_library_version_event_id,
			override_uln_config_version_event_id = EXCLUDED.override_uln_config_version_event_id,
			last_computed_block = EXCLUDED.last_computed_block,
			last_computed_timestamp = EXCLUDED.last_computed_timestamp,
			last_computed_event_id = EXCLUDED.last_computed_event_id,
			last_computed_tx_hash = EXCLUDED.last_computed_tx_hash
	`
	fallback := make([]string, len(rec.FallbackFields))
	for i, f := range rec.FallbackFields {
		fallback[i] = string(f)
	}
	_, err := s.pool.Exec(ctx, q,
		rec.OAppRouteKey, rec.OAppID, rec.Eid, rec.ChainID,
		rec.EffectiveReceiveLibrary, rec.EffectiveConfirmations, rec.EffectiveRequiredDVNCount,
		rec.EffectiveOptionalDVNCount, rec.EffectiveOptionalDVNThreshold,
		rec.EffectiveRequiredDVNs, rec.EffectiveOptionalDVNs,
		rec.LibraryStatus, rec.IsConfigTracked, rec.UsesDefaultLibrary, rec.UsesDefaultConfig, rec.UsesRequiredDVNSentinel,
		fallback,
		rec.DefaultLibraryVersionEventID, rec.DefaultUlnConfigVersionID,
		rec.OverrideLibraryVersionEventID, rec.OverrideUlnConfigVersionEventID,
		rec.LastComputedBlock, rec.LastComputedTimestamp, rec.LastComputedEventID, rec.LastComputedTxHash,
	)
	return mapErr(err, "PutOAppSecurityConfig")
}

func (s *Store) ListSecurityConfigsByRoute(ctx context.Context, chainID int64) ([]*entities.OAppSecurityConfig, error) {
	const q = `
		SELECT oapp_route_key, oapp_id, eid, chain_id,
		       effective_receive_library, effective_confirmations, effective_required_dvn_count,
		       effective_optional_dvn_count, effective_optional_dvn_threshold,
		       effective_required_dvns, effective_optional_dvns,
		       library_status, is_config_tracked, uses_default_library, uses_default_config, uses_required_dvn_sentinel,
		       fallback_fields,
		       default_library_version_event_id, default_uln_config_version_id,
		       override_library_version_event_id, override_uln_config_version_event_id,
		       last_computed_block, last_computed_timestamp, last_computed_event_id, last_computed_tx_hash
		FROM oapp_security_configs WHERE chain_id = $1 ORDER BY oapp_route_key
	`
	rows, err := s.pool.Query(ctx, q, chainID)
	if err != nil {
		return nil, mapErr(err, "ListSecurityConfigsByRoute")
	}
	defer rows.Close()

	var out []*entities.OAppSecurityConfig
	for rows.Next() {
		rec, err := scanSecurityConfig(rows)
		if err != nil {
			return nil, mapErr(err, "ListSecurityConfigsByRoute")
		}
		out = append(out, rec)
	}
	return out, mapErr(rows.Err(), "ListSecurityConfigsByRoute")
}

// --- Packets & stats (component I) ---

func (s *Store) GetPacketDelivered(ctx context.Context, eventID string) (*entities.PacketDelivered, error) {
	const q = `
		SELECT event_id, chain_id, src_eid, sender, nonce, receiver_id, block_number, "timestamp", tx_hash,
		       effective_receive_library, effective_confirmations, effective_required_dvn_count,
		       effective_optional_dvn_count, effective_optional_dvn_threshold,
		       effective_required_dvns, effective_optional_dvns,
		       library_status, is_config_tracked, uses_default_library, uses_default_config, uses_required_dvn_sentinel,
		       fallback_fields,
		       default_library_version_event_id, default_uln_config_version_id,
		       override_library_version_event_id, override_uln_config_version_event_id
		FROM packets_delivered WHERE event_id = $1
	`
	row := s.pool.QueryRow(ctx, q, eventID)
	rec, err := scanPacketDelivered(row)
	if err != nil {
		return nil, mapErr(err, "GetPacketDelivered")
	}
	return rec, nil
}

func scanPacketDelivered(row pgx.Row) (*entities.PacketDelivered, error) {
	var rec entities.PacketDelivered
	var fallback []string
	err := row.Scan(
		&rec.EventID, &rec.ChainID, &rec.SrcEid, &rec.Sender, &rec.Nonce, &rec.ReceiverID,
		&rec.BlockNumber, &rec.Timestamp, &rec.TxHash,
		&rec.EffectiveReceiveLibrary, &rec.EffectiveConfirmations, &rec.EffectiveRequiredDVNCount,
		&rec.EffectiveOptionalDVNCount, &rec.EffectiveOptionalDVNThreshold,
		&rec.EffectiveRequiredDVNs, &rec.EffectiveOptionalDVNs,
		&rec.LibraryStatus, &rec.IsConfigTracked, &rec.UsesDefaultLibrary, &rec.UsesDefaultConfig, &rec.UsesRequiredDVNSentinel,
		&fallback,
		&rec.DefaultLibraryVersionEventID, &rec.DefaultUlnConfigVersionID,
		&rec.OverrideLibraryVersionEventID, &rec.OverrideUlnConfigVersionEventID,
	)
	if err != nil {
		return nil, err
	}
	rec.FallbackFields = make([]entities.FallbackField, len(fallback))
	for i, f := range fallback {
		rec.FallbackFields[i] = entities.FallbackField(f)
	}
	return &rec, nil
}

func (s *Store) PutPacketDelivered(ctx context.Context, rec *entities.PacketDelivered) error {
	const q = `
		INSERT INTO packets_delivered (
			event_id, chain_id, src_eid, sender, nonce, receiver_id, block_number, "timestamp", tx_hash,
			effective_receive_library, effective_confirmations, effective_required_dvn_count,
			effective_optional_dvn_count, effective_optional_dvn_threshold,
			effective_required_dvns, effective_optional_dvns,
			library_status, is_config_tracked, uses_default_library, uses_default_config, uses_required_dvn_sentinel,
			fallback_fields,
			default_library_version_event_id, default_uln_config_version_id,
			override_library_version_event_id, override_uln_config_version_event_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
		ON CONFLICT (event_id) DO NOTHING
	`
	fallback := make([]string, len(rec.FallbackFields))
	for i, f := range rec.FallbackFields {
		fallback[i] = string(f)
	}
	_, err := s.pool.Exec(ctx, q,
		rec.EventID, rec.ChainID, rec.SrcEid, rec.Sender, rec.Nonce, rec.ReceiverID, rec.BlockNumber, rec.Timestamp, rec.TxHash,
		rec.EffectiveReceiveLibrary, rec.EffectiveConfirmations, rec.EffectiveRequiredDVNCount,
		rec.EffectiveOptionalDVNCount, rec.EffectiveOptionalDVNThreshold,
		rec.EffectiveRequiredDVNs, rec.EffectiveOptionalDVNs,
		rec.LibraryStatus, rec.IsConfigTracked, rec.UsesDefaultLibrary, rec.UsesDefaultConfig, rec.UsesRequiredDVNSentinel,
		fallback,
		rec.DefaultLibraryVersionEventID, rec.DefaultUlnConfigVersionID,
		rec.OverrideLibraryVersionEventID, rec.OverrideUlnConfigVersionEventID,
	)
	return mapErr(err, "PutPacketDelivered")
}

func (s *Store) ListPacketDeliveredByRoute(ctx context.Context, oAppRouteKey string, cursor string, limit int) ([]*entities.PacketDelivered, string, error) {
	if limit <= 0 {
		limit = 50
	}

	oAppID, eid, err := addr.OAppIDOf(oAppRouteKey)
	if err != nil {
		return nil, "", err
	}

	const q = `
		SELECT event_id, chain_id, src_eid, sender, nonce, receiver_id, block_number, "timestamp", tx_hash,
		       effective_receive_library, effective_confirmations, effective_required_dvn_count,
		       effective_optional_dvn_count, effective_optional_dvn_threshold,
		       effective_required_dvns, effective_optional_dvns,
		       library_status, is_config_tracked, uses_default_library, uses_default_config, uses_required_dvn_sentinel,
		       fallback_fields,
		       default_library_version_event_id, default_uln_config_version_id,
		       override_library_version_event_id, override_uln_config_version_event_id
		FROM packets_delivered
		WHERE receiver_id = $1 AND src_eid = $2 AND ($3 = '' OR event_id > $3)
		ORDER BY event_id
		LIMIT $4
	`
	rows, err := s.pool.Query(ctx, q, oAppID, eid, cursor, limit+1)
	if err != nil {
		return nil, "", mapErr(err, "ListPacketDeliveredByRoute")
	}
	defer rows.Close()

	var out []*entities.PacketDelivered
	for rows.Next() {
		rec, err := scanPacketDelivered(rows)
		if err != nil {
			return nil, "", mapErr(err, "ListPacketDeliveredByRoute")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapErr(err, "ListPacketDeliveredByRoute")
	}

	nextCursor := ""
	if len(out) > limit {
		nextCursor = out[limit-1].EventID
		out = out[:limit]
	}
	return out, nextCursor, nil
}

func (s *Store) GetOAppStats(ctx context.Context, oAppID string) (*entities.OAppStats, error) {
	const q = `SELECT oapp_id, total_packets_received, last_packet_block, last_packet_timestamp FROM oapp_stats WHERE oapp_id = $1`
	row := s.pool.QueryRow(ctx, q, oAppID)
	var rec entities.OAppStats
	if err := row.Scan(&rec.OAppID, &rec.TotalPacketsReceived, &rec.LastPacketBlock, &rec.LastPacketTimestamp); err != nil {
		return nil, mapErr(err, "GetOAppStats")
	}
	return &rec, nil
}

func (s *Store) PutOAppStats(ctx context.Context, rec *entities.OAppStats) error {
	const q = `
		INSERT INTO oapp_stats (oapp_id, total_packets_received, last_packet_block, last_packet_timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (oapp_id) DO UPDATE SET
			total_packets_received = EXCLUDED.total_packets_received,
			last_packet_block = EXCLUDED.last_packet_block,
			last_packet_timestamp = EXCLUDED.last_packet_timestamp
	`
	_, err := s.pool.Exec(ctx, q, rec.OAppID, rec.TotalPacketsReceived, rec.LastPacketBlock, rec.LastPacketTimestamp)
	return mapErr(err, "PutOAppStats")
}

func (s *Store) GetOAppRouteStats(ctx context.Context, oAppRouteKey string) (*entities.OAppRouteStats, error) {
	const q = `SELECT oapp_route_key, oapp_id, src_eid, packet_count, last_config_event_id FROM oapp_route_stats WHERE oapp_route_key = $1`
	row := s.pool.QueryRow(ctx, q, oAppRouteKey)
	var rec entities.OAppRouteStats
	if err := row.Scan(&rec.OAppRouteKey, &rec.OAppID, &rec.SrcEid, &rec.PacketCount, &rec.LastConfigEventID); err != nil {
		return nil, mapErr(err, "GetOAppRouteStats")
	}
	return &rec, nil
}

func (s *Store) PutOAppRouteStats(ctx context.Context, rec *entities.OAppRouteStats) error {
	const q = `
		INSERT INTO oapp_route_stats (oapp_route_key, oapp_id, src_eid, packet_count, last_config_event_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (oapp_route_key) DO UPDATE SET
			packet_count = EXCLUDED.packet_count,
			last_config_event_id = EXCLUDED.last_config_event_id
	`
	_, err := s.pool.Exec(ctx, q, rec.OAppRouteKey, rec.OAppID, rec.SrcEid, rec.PacketCount, rec.LastConfigEventID)
	return mapErr(err, "PutOAppRouteStats")
}

// --- DVN directory (component J) ---

func (s *Store) GetDvnMetadata(ctx context.Context, chainID int64, address string) (*entities.DvnMetadata, error) {
	const q = `SELECT id, chain_id, address, name FROM dvn_metadata WHERE chain_id = $1 AND address = $2`
	row := s.pool.QueryRow(ctx, q, chainID, address)
	var rec entities.DvnMetadata
	if err := row.Scan(&rec.ID, &rec.ChainID, &rec.Address, &rec.Name); err != nil {
		return nil, mapErr(err, "GetDvnMetadata")
	}
	return &rec, nil
}

func (s *Store) PutDvnMetadata(ctx context.Context, rec *entities.DvnMetadata) error {
	const q = `
		INSERT INTO dvn_metadata (id, chain_id, address, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`
	_, err := s.pool.Exec(ctx, q, rec.ID, rec.ChainID, rec.Address, rec.Name)
	return mapErr(err, "PutDvnMetadata")
}
