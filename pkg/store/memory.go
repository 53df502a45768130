package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/entities"
)

// MemoryStore is an in-memory, mutex-guarded Store implementation used by
// tests, the CLI's replay mode, and local dry-run. Its only errors are
// context cancellation, ErrNotFound, and the key-parse error
// ListPacketDeliveredByRoute returns for a malformed route key.
type MemoryStore struct {
	mu sync.RWMutex

	defaultLibs        map[string]*entities.DefaultReceiveLibrary
	defaultLibVersions []*entities.DefaultReceiveLibraryVersion
	defaultUln         map[string]*entities.DefaultUlnConfig
	defaultUlnVersions map[string]*entities.DefaultUlnConfigVersion

	overrideLibs        map[string]*entities.OAppReceiveLibrary
	overrideLibVersions []*entities.OAppReceiveLibraryVersion
	overrideUln         map[string]*entities.OAppUlnConfig
	overrideUlnVersions []*entities.OAppUlnConfigVersion
	peers               map[string]*entities.OAppPeer
	peerVersions        []*entities.OAppPeerVersion
	rateLimiters        map[string]*entities.OAppRateLimiter
	rateLimiterVersions []*entities.OAppRateLimiterVersion
	rateLimits          map[string]*entities.OAppRateLimit
	rateLimitVersions   []*entities.OAppRateLimitVersion

	securityConfigs map[string]*entities.OAppSecurityConfig
	packets         map[string]*entities.PacketDelivered
	oappStats       map[string]*entities.OAppStats
	routeStats      map[string]*entities.OAppRouteStats
	dvnMetadata     map[string]*entities.DvnMetadata
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		defaultLibs:        make(map[string]*entities.DefaultReceiveLibrary),
		defaultUln:         make(map[string]*entities.DefaultUlnConfig),
		defaultUlnVersions: make(map[string]*entities.DefaultUlnConfigVersion),
		overrideLibs:       make(map[string]*entities.OAppReceiveLibrary),
		overrideUln:        make(map[string]*entities.OAppUlnConfig),
		peers:              make(map[string]*entities.OAppPeer),
		rateLimiters:       make(map[string]*entities.OAppRateLimiter),
		rateLimits:         make(map[string]*entities.OAppRateLimit),
		securityConfigs:    make(map[string]*entities.OAppSecurityConfig),
		packets:            make(map[string]*entities.PacketDelivered),
		oappStats:          make(map[string]*entities.OAppStats),
		routeStats:         make(map[string]*entities.OAppRouteStats),
		dvnMetadata:        make(map[string]*entities.DvnMetadata),
	}
}

func (s *MemoryStore) GetDefaultReceiveLibrary(ctx context.Context, routeKey string) (*entities.DefaultReceiveLibrary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.defaultLibs[routeKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutDefaultReceiveLibrary(ctx context.Context, rec *entities.DefaultReceiveLibrary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.defaultLibs[rec.RouteKey] = &cp
	return nil
}

func (s *MemoryStore) AppendDefaultReceiveLibraryVersion(ctx context.Context, v *entities.DefaultReceiveLibraryVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.defaultLibVersions = append(s.defaultLibVersions, &cp)
	return nil
}

func (s *MemoryStore) GetDefaultUlnConfig(ctx context.Context, routeKey string) (*entities.DefaultUlnConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.defaultUln[routeKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutDefaultUlnConfig(ctx context.Context, rec *entities.DefaultUlnConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.defaultUln[rec.RouteKey] = &cp
	return nil
}

func (s *MemoryStore) AppendDefaultUlnConfigVersion(ctx context.Context, v *entities.DefaultUlnConfigVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.defaultUlnVersions[v.ID]; exists {
		return nil // append-only: replaying the same EventId_eid is a no-op
	}
	cp := *v
	s.defaultUlnVersions[v.ID] = &cp
	return nil
}

func (s *MemoryStore) GetOAppReceiveLibrary(ctx context.Context, oAppRouteKey string) (*entities.OAppReceiveLibrary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.overrideLibs[oAppRouteKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutOAppReceiveLibrary(ctx context.Context, rec *entities.OAppReceiveLibrary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.overrideLibs[rec.OAppRouteKey] = &cp
	return nil
}

func (s *MemoryStore) AppendOAppReceiveLibraryVersion(ctx context.Context, v *entities.OAppReceiveLibraryVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.overrideLibVersions = append(s.overrideLibVersions, &cp)
	return nil
}

func (s *MemoryStore) GetOAppUlnConfig(ctx context.Context, oAppRouteKey string) (*entities.OAppUlnConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.overrideUln[oAppRouteKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutOAppUlnConfig(ctx context.Context, rec *entities.OAppUlnConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.overrideUln[rec.OAppRouteKey] = &cp
	return nil
}

func (s *MemoryStore) AppendOAppUlnConfigVersion(ctx context.Context, v *entities.OAppUlnConfigVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.overrideUlnVersions = append(s.overrideUlnVersions, &cp)
	return nil
}

func (s *MemoryStore) GetOAppPeer(ctx context.Context, oAppRouteKey string) (*entities.OAppPeer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.peers[oAppRouteKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutOAppPeer(ctx context.Context, rec *entities.OAppPeer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.peers[rec.OAppRouteKey] = &cp
	return nil
}

func (s *MemoryStore) AppendOAppPeerVersion(ctx context.Context, v *entities.OAppPeerVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.peerVersions = append(s.peerVersions, &cp)
	return nil
}

func (s *MemoryStore) GetOAppRateLimiter(ctx context.Context, oAppID string) (*entities.OAppRateLimiter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rateLimiters[oAppID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutOAppRateLimiter(ctx context.Context, rec *entities.OAppRateLimiter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.rateLimiters[rec.OAppID] = &cp
	return nil
}

func (s *MemoryStore) AppendOAppRateLimiterVersion(ctx context.Context, v *entities.OAppRateLimiterVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.rateLimiterVersions = append(s.rateLimiterVersions, &cp)
	return nil
}

func (s *MemoryStore) GetOAppRateLimit(ctx context.Context, id string) (*entities.OAppRateLimit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rateLimits[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutOAppRateLimit(ctx context.Context, rec *entities.OAppRateLimit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.rateLimits[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) AppendOAppRateLimitVersion(ctx context.Context, v *entities.OAppRateLimitVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.rateLimitVersions = append(s.rateLimitVersions, &cp)
	return nil
}

func (s *MemoryStore) GetOAppSecurityConfig(ctx context.Context, oAppRouteKey string) (*entities.OAppSecurityConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.securityConfigs[oAppRouteKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutOAppSecurityConfig(ctx context.Context, rec *entities.OAppSecurityConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.securityConfigs[rec.OAppRouteKey] = &cp
	return nil
}

func (s *MemoryStore) ListSecurityConfigsByRoute(ctx context.Context, chainID int64) ([]*entities.OAppSecurityConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entities.OAppSecurityConfig
	for _, rec := range s.securityConfigs {
		if rec.ChainID == chainID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OAppRouteKey < out[j].OAppRouteKey })
	return out, nil
}

func (s *MemoryStore) GetPacketDelivered(ctx context.Context, eventID string) (*entities.PacketDelivered, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.packets[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutPacketDelivered(ctx context.Context, rec *entities.PacketDelivered) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.packets[rec.EventID]; exists {
		return nil // immutable once written; replay is a no-op
	}
	cp := *rec
	s.packets[rec.EventID] = &cp
	return nil
}

func (s *MemoryStore) ListPacketDeliveredByRoute(ctx context.Context, oAppRouteKey string, cursor string, limit int) ([]*entities.PacketDelivered, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	oAppID, srcEid, err := addr.OAppIDOf(oAppRouteKey)
	if err != nil {
		return nil, "", err
	}

	var matched []*entities.PacketDelivered
	for _, rec := range s.packets {
		if rec.ReceiverID == oAppID && rec.SrcEid == srcEid {
			cp := *rec
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].EventID < matched[j].EventID })

	start := 0
	if cursor != "" {
		for i, rec := range matched {
			if rec.EventID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	if start > len(matched) {
		start = len(matched)
	}
	page := matched[start:end]
	nextCursor := ""
	if end < len(matched) {
		nextCursor = page[len(page)-1].EventID
	}
	return page, nextCursor, nil
}

func (s *MemoryStore) GetOAppStats(ctx context.Context, oAppID string) (*entities.OAppStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.oappStats[oAppID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutOAppStats(ctx context.Context, rec *entities.OAppStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.oappStats[rec.OAppID] = &cp
	return nil
}

func (s *MemoryStore) GetOAppRouteStats(ctx context.Context, oAppRouteKey string) (*entities.OAppRouteStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.routeStats[oAppRouteKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutOAppRouteStats(ctx context.Context, rec *entities.OAppRouteStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.routeStats[rec.OAppRouteKey] = &cp
	return nil
}

func (s *MemoryStore) GetDvnMetadata(ctx context.Context, chainID int64, address string) (*entities.DvnMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.dvnMetadata[dvnKey(chainID, address)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) PutDvnMetadata(ctx context.Context, rec *entities.DvnMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.dvnMetadata[dvnKey(rec.ChainID, rec.Address)] = &cp
	return nil
}

func dvnKey(chainID int64, address string) string {
	return fmt.Sprintf("%d_%s", chainID, address)
}

// Snapshot is a point-in-time dump of the store's latest-state entity maps
// listed below, keyed the same way the underlying maps are, for the replay
// CLI. Override receive libraries, override ULN configs and the append-only
// version records are not included.
type Snapshot struct {
	SecurityConfigs map[string]*entities.OAppSecurityConfig    `json:"securityConfigs"`
	Packets         map[string]*entities.PacketDelivered       `json:"packets"`
	OAppStats       map[string]*entities.OAppStats             `json:"oappStats"`
	RouteStats      map[string]*entities.OAppRouteStats        `json:"routeStats"`
	DvnMetadata     map[string]*entities.DvnMetadata           `json:"dvnMetadata"`
	DefaultLibs     map[string]*entities.DefaultReceiveLibrary `json:"defaultLibs"`
	DefaultUln      map[string]*entities.DefaultUlnConfig      `json:"defaultUln"`
	Peers           map[string]*entities.OAppPeer              `json:"peers"`
	RateLimiters    map[string]*entities.OAppRateLimiter       `json:"rateLimiters"`
	RateLimits      map[string]*entities.OAppRateLimit         `json:"rateLimits"`
}

// Snapshot returns a defensive copy of the entity maps the Snapshot type
// holds.
func (s *MemoryStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		SecurityConfigs: make(map[string]*entities.OAppSecurityConfig, len(s.securityConfigs)),
		Packets:         make(map[string]*entities.PacketDelivered, len(s.packets)),
		OAppStats:       make(map[string]*entities.OAppStats, len(s.oappStats)),
		RouteStats:      make(map[string]*entities.OAppRouteStats, len(s.routeStats)),
		DvnMetadata:     make(map[string]*entities.DvnMetadata, len(s.dvnMetadata)),
		DefaultLibs:     make(map[string]*entities.DefaultReceiveLibrary, len(s.defaultLibs)),
		DefaultUln:      make(map[string]*entities.DefaultUlnConfig, len(s.defaultUln)),
		Peers:           make(map[string]*entities.OAppPeer, len(s.peers)),
		RateLimiters:    make(map[string]*entities.OAppRateLimiter, len(s.rateLimiters)),
		RateLimits:      make(map[string]*entities.OAppRateLimit, len(s.rateLimits)),
	}
	for k, v := range s.securityConfigs {
		cp := *v
		snap.SecurityConfigs[k] = &cp
	}
	for k, v := range s.packets {
		cp := *v
		snap.Packets[k] = &cp
	}
	for k, v := range s.oappStats {
		cp := *v
		snap.OAppStats[k] = &cp
	}
	for k, v := range s.routeStats {
		cp := *v
		snap.RouteStats[k] = &cp
	}
	for k, v := range s.dvnMetadata {
		cp := *v
		snap.DvnMetadata[k] = &cp
	}
	for k, v := range s.defaultLibs {
		cp := *v
		snap.DefaultLibs[k] = &cp
	}
	for k, v := range s.defaultUln {
		cp := *v
		snap.DefaultUln[k] = &cp
	}
	for k, v := range s.peers {
		cp := *v
		snap.Peers[k] = &cp
	}
	for k, v := range s.rateLimiters {
		cp := *v
		snap.RateLimiters[k] = &cp
	}
	for k, v := range s.rateLimits {
		cp := *v
		snap.RateLimits[k] = &cp
	}
	return snap, nil
}
