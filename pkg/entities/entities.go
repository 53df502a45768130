// Package entities defines the persisted and derived record shapes of the
// effective-configuration resolver. Primary keys
// are the underscore-delimited composite strings produced by pkg/addr, so
// every entity round-trips through both the in-memory and Postgres store
// backends as plain Go structs.
package entities

import "time"

// DefaultReceiveLibrary is the current default library for a (chainId, eid)
// route. Keyed by RouteKey.
type DefaultReceiveLibrary struct {
	RouteKey    string // chainId_eid
	ChainID     int64
	Eid         int64
	Library     string // normalized, non-zero
	LastEventID string // EventId of the DefaultReceiveLibraryVersion that produced this row
}

// DefaultReceiveLibraryVersion is an append-only history row, keyed by
// EventId.
type DefaultReceiveLibraryVersion struct {
	EventID     string
	RouteKey    string
	ChainID     int64
	Eid         int64
	Library     string
	BlockNumber uint64
	Timestamp   time.Time
	TxHash      string
}

// DefaultUlnConfig is the current default ULN configuration for a route.
// Keyed by RouteKey.
type DefaultUlnConfig struct {
	RouteKey             string
	ChainID              int64
	Eid                  int64
	Confirmations        uint64
	RequiredDVNCount     uint8
	OptionalDVNCount     uint8
	OptionalDVNThreshold uint8
	RequiredDVNs         []string
	OptionalDVNs         []string
	LastEventID          string // DefaultUlnConfigVersion.ID (eventId_eid) that produced this row
}

// DefaultUlnConfigVersion is keyed by EventId_eid (not just EventId),
// because one DefaultUlnConfigsSet event can set many eids in one
// transaction.
type DefaultUlnConfigVersion struct {
	ID                   string // eventId_eid
	EventID              string
	RouteKey             string
	ChainID              int64
	Eid                  int64
	Confirmations        uint64
	RequiredDVNCount     uint8
	OptionalDVNCount     uint8
	OptionalDVNThreshold uint8
	RequiredDVNs         []string
	OptionalDVNs         []string
	BlockNumber          uint64
	Timestamp            time.Time
	TxHash               string
}

// OAppReceiveLibrary is the current override library for a specific
// application and route. Keyed by OAppRouteKey. Absence means "no
// override" — the default applies.
type OAppReceiveLibrary struct {
	OAppRouteKey string
	OAppID       string
	Eid          int64
	Library      string // normalized; may be the zero address (explicit unset)
	LastEventID  string // EventId of the OAppReceiveLibraryVersion that produced this row
}

// OAppReceiveLibraryVersion is keyed by EventId.
type OAppReceiveLibraryVersion struct {
	EventID      string
	OAppRouteKey string
	OAppID       string
	Eid          int64
	Library      string
	BlockNumber  uint64
	Timestamp    time.Time
	TxHash       string
}

// OAppUlnConfig is the current override ULN configuration for an
// application route. Keyed by OAppRouteKey.
type OAppUlnConfig struct {
	OAppRouteKey         string
	OAppID               string
	Eid                  int64
	Confirmations        uint64 // raw wire value; 0 = Inherit, max = Nil sentinel
	RequiredDVNCount     uint8
	OptionalDVNCount     uint8
	OptionalDVNThreshold uint8
	RequiredDVNs         []string
	OptionalDVNs         []string
	LastEventID          string // EventId of the OAppUlnConfigVersion that produced this row
}

// OAppUlnConfigVersion is keyed by EventId.
type OAppUlnConfigVersion struct {
	EventID              string
	OAppRouteKey         string
	OAppID               string
	Eid                  int64
	Confirmations        uint64
	RequiredDVNCount     uint8
	OptionalDVNCount     uint8
	OptionalDVNThreshold uint8
	RequiredDVNs         []string
	OptionalDVNs         []string
	BlockNumber          uint64
	Timestamp            time.Time
	TxHash               string
}

// PeerState classifies the four states a route's peer configuration can be
// in, derived from OAppPeer for downstream consumers.
type PeerState uint8

const (
	// PeerNotConfigured means no OAppPeer record exists at all.
	PeerNotConfigured PeerState = iota
	// PeerAutoDiscovered means the record was synthesized from the sender of
	// a PacketDelivered with no prior explicit PeerSet.
	PeerAutoDiscovered
	// PeerExplicitlySet means the application called PeerSet with a non-zero
	// peer.
	PeerExplicitlySet
	// PeerExplicitlyBlocked means the application called PeerSet with the
	// zero peer, which is the documented way to block a route entirely.
	PeerExplicitlyBlocked
)

func (p PeerState) String() string {
	switch p {
	case PeerNotConfigured:
		return "NotConfigured"
	case PeerAutoDiscovered:
		return "AutoDiscovered"
	case PeerExplicitlySet:
		return "ExplicitlySet"
	case PeerExplicitlyBlocked:
		return "ExplicitlyBlocked"
	default:
		return "Unknown"
	}
}

// OAppPeer is the peer identifier an application has declared (or had
// synthesized) for one inbound route. Keyed by OAppRouteKey; at most one
// record per key, always reflecting the latest PeerSet (or synthesis).
type OAppPeer struct {
	OAppRouteKey        string
	OAppID              string
	Eid                 int64
	Peer                string // 32-byte hex identifier, as sent
	PeerAddress         string // trailing-20-byte address form, if non-zero
	FromPacketDelivered bool
}

// State derives the four-valued peer classification from the record
// (nil record means PeerNotConfigured).
func (p *OAppPeer) State() PeerState {
	if p == nil {
		return PeerNotConfigured
	}
	if p.PeerAddress == "" && !p.FromPacketDelivered {
		return PeerExplicitlyBlocked
	}
	if p.FromPacketDelivered {
		return PeerAutoDiscovered
	}
	return PeerExplicitlySet
}

// OAppPeerVersion is keyed by EventId.
type OAppPeerVersion struct {
	EventID             string
	OAppRouteKey        string
	OAppID              string
	Eid                 int64
	Peer                string
	FromPacketDelivered bool
	BlockNumber         uint64
	Timestamp           time.Time
	TxHash              string
}

// OAppRateLimiter is peripheral per-application rate limiter state, keyed
// by OAppId. Maintained but not part of the merge.
type OAppRateLimiter struct {
	OAppID  string
	ChainID int64
	Limit   uint64
	Window  uint64
}

// OAppRateLimiterVersion is keyed by EventId.
type OAppRateLimiterVersion struct {
	EventID     string
	OAppID      string
	Limit       uint64
	Window      uint64
	BlockNumber uint64
	Timestamp   time.Time
	TxHash      string
}

// OAppRateLimit is peripheral per-(application, destination eid) rate limit
// state, keyed by (OAppId, dstEid).
type OAppRateLimit struct {
	ID     string // oAppId_dstEid
	OAppID string
	DstEid int64
	Limit  uint64
	Window uint64
}

// OAppRateLimitVersion is keyed by EventId.
type OAppRateLimitVersion struct {
	EventID     string
	ID          string
	OAppID      string
	DstEid      int64
	Limit       uint64
	Window      uint64
	BlockNumber uint64
	Timestamp   time.Time
	TxHash      string
}

// FallbackField names a field of the effective configuration that fell
// back from the default because the application's override left it as
// Inherit. Order matters: fallbackFields is always emitted in this
// canonical enumeration order.
type FallbackField string

const (
	FallbackReceiveLibrary       FallbackField = "receiveLibrary"
	FallbackConfirmations        FallbackField = "confirmations"
	FallbackRequiredDVNCount     FallbackField = "requiredDVNCount"
	FallbackRequiredDVNs         FallbackField = "requiredDVNs"
	FallbackOptionalDVNCount     FallbackField = "optionalDVNCount"
	FallbackOptionalDVNs         FallbackField = "optionalDVNs"
	FallbackOptionalDVNThreshold FallbackField = "optionalDVNThreshold"
)

// FallbackFieldOrder is the canonical ordering used to sort fallbackFields
// before it is persisted or compared (spec testable property 3).
var FallbackFieldOrder = []FallbackField{
	FallbackReceiveLibrary,
	FallbackConfirmations,
	FallbackRequiredDVNCount,
	FallbackRequiredDVNs,
	FallbackOptionalDVNCount,
	FallbackOptionalDVNs,
	FallbackOptionalDVNThreshold,
}

// OAppSecurityConfig is the derived, canonical output of the merge
// resolver (component F). It is always a pure function of the latest
// DefaultReceiveLibrary, DefaultUlnConfig, OAppReceiveLibrary,
// OAppUlnConfig, and the library classifier's output for the route.
type OAppSecurityConfig struct {
	OAppRouteKey string
	OAppID       string
	Eid          int64
	ChainID      int64

	EffectiveReceiveLibrary       string
	EffectiveConfirmations        uint64
	EffectiveRequiredDVNCount     uint64
	EffectiveOptionalDVNCount     uint64
	EffectiveOptionalDVNThreshold uint64
	EffectiveRequiredDVNs         []string
	EffectiveOptionalDVNs         []string

	LibraryStatus   string // Tracked | Unsupported | None
	IsConfigTracked bool

	UsesDefaultLibrary      bool
	UsesDefaultConfig       bool
	UsesRequiredDVNSentinel bool

	FallbackFields []FallbackField

	// Source pointers, for audit/debugging.
	DefaultLibraryVersionEventID    string
	DefaultUlnConfigVersionID       string
	OverrideLibraryVersionEventID   string
	OverrideUlnConfigVersionEventID string

	LastComputedBlock     uint64
	LastComputedTimestamp time.Time
	LastComputedEventID   string
	LastComputedTxHash    string
}

// PacketDelivered is one immutable record per observed inbound packet,
// embedding a full copy of the effective security configuration resolved
// at delivery time. Never mutated after creation.
type PacketDelivered struct {
	EventID string // primary key

	ChainID     int64
	SrcEid      int64
	Sender      string // normalized address extracted from origin.sender
	Nonce       uint64
	ReceiverID  string // OAppId of the receiving application
	BlockNumber uint64
	Timestamp   time.Time
	TxHash      string

	// Snapshot of the resolved configuration at delivery time.
	EffectiveReceiveLibrary       string
	EffectiveConfirmations        uint64
	EffectiveRequiredDVNCount     uint64
	EffectiveOptionalDVNCount     uint64
	EffectiveOptionalDVNThreshold uint64
	EffectiveRequiredDVNs         []string
	EffectiveOptionalDVNs         []string
	LibraryStatus                 string
	IsConfigTracked               bool
	UsesDefaultLibrary            bool
	UsesDefaultConfig             bool
	UsesRequiredDVNSentinel       bool
	FallbackFields                []FallbackField

	// Version pointers, copied from the OAppSecurityConfig this packet was
	// resolved against, for audit/debugging.
	DefaultLibraryVersionEventID    string
	DefaultUlnConfigVersionID       string
	OverrideLibraryVersionEventID   string
	OverrideUlnConfigVersionEventID string
}

// OAppStats is a monotonic per-application packet counter, keyed by OAppId.
type OAppStats struct {
	OAppID               string
	TotalPacketsReceived uint64
	LastPacketBlock      uint64
	LastPacketTimestamp  time.Time
}

// OAppRouteStats is a per-route packet counter, keyed by OAppRouteKey.
type OAppRouteStats struct {
	OAppRouteKey      string
	OAppID            string
	SrcEid            int64
	PacketCount       uint64
	LastConfigEventID string // points at the PacketDelivered.EventID of the most recent delivery
}

// DvnMetadata carries the best-known display name for a DVN address on a
// given chain, keyed by (ChainID, Address).
type DvnMetadata struct {
	ID      string // chainId_address
	ChainID int64
	Address string
	Name    string
}
