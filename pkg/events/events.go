// Package events defines the typed union of the eight event kinds this
// core ingests and the raw-payload decoding that turns the host runtime's
// untyped params into one of them. Handlers in pkg/handlers
// dispatch on Kind; pkg/ingest is the only other package that constructs an
// Event.
package events

import (
	"fmt"
	"time"
)

// Kind tags which of the eight event shapes a decoded Event carries.
type Kind string

const (
	KindDefaultReceiveLibrarySet Kind = "DefaultReceiveLibrarySet"
	KindDefaultUlnConfigsSet     Kind = "DefaultUlnConfigsSet"
	KindReceiveLibrarySet        Kind = "ReceiveLibrarySet"
	KindUlnConfigSet             Kind = "UlnConfigSet"
	KindPeerSet                  Kind = "PeerSet"
	KindRateLimiterSet           Kind = "RateLimiterSet"
	KindRateLimitsChanged        Kind = "RateLimitsChanged"
	KindPacketDelivered          Kind = "PacketDelivered"
)

// BlockContext is the provenance every event carries: which chain, block,
// log index, and transaction produced it. EventID is derived from it via
// pkg/addr.MakeEventID.
type BlockContext struct {
	ChainID     int64
	BlockNumber uint64
	LogIndex    uint32
	Timestamp   time.Time
	TxHash      string
}

// UlnConfigTuple is the six-field raw ULN configuration shape shared by
// DefaultUlnConfigsSet and UlnConfigSet.
type UlnConfigTuple struct {
	Confirmations        uint64
	RequiredDVNCount     uint8
	OptionalDVNCount     uint8
	OptionalDVNThreshold uint8
	RequiredDVNs         []string // raw hex, not yet normalized
	OptionalDVNs         []string
}

// DefaultReceiveLibrarySet is emitted when the default receive library for
// a route changes.
type DefaultReceiveLibrarySet struct {
	Ctx        BlockContext
	Eid        int64
	NewLibrary string // raw hex
}

// DefaultUlnConfigsSetEntry is one (eid, tuple) pair within a batched
// DefaultUlnConfigsSet event; one event can set many eids in one
// transaction.
type DefaultUlnConfigsSetEntry struct {
	Eid    int64
	Config UlnConfigTuple
}

// DefaultUlnConfigsSet carries a list of per-eid default ULN config
// updates emitted together.
type DefaultUlnConfigsSet struct {
	Ctx     BlockContext
	Entries []DefaultUlnConfigsSetEntry
}

// ReceiveLibrarySet is an application's override of its receive library
// for one inbound route.
type ReceiveLibrarySet struct {
	Ctx        BlockContext
	Receiver   string // raw hex, the OApp address
	Eid        int64
	NewLibrary string // raw hex
}

// UlnConfigSet is an application's override ULN configuration for one
// inbound route.
type UlnConfigSet struct {
	Ctx    BlockContext
	OApp   string // raw hex
	Eid    int64
	Config UlnConfigTuple
}

// PeerSet declares (or blocks, via the zero peer) the expected sender
// identity for one inbound route.
type PeerSet struct {
	Ctx  BlockContext
	OApp string // raw hex
	Eid  int64
	Peer string // 32-byte hex identifier
}

// RateLimiterSet updates an application's peripheral rate limiter state.
type RateLimiterSet struct {
	Ctx    BlockContext
	OApp   string // raw hex
	Limit  uint64
	Window uint64
}

// RateLimitsChanged updates an application's peripheral per-destination
// rate limit state.
type RateLimitsChanged struct {
	Ctx    BlockContext
	OApp   string // raw hex
	DstEid int64
	Limit  uint64
	Window uint64
}

// PacketOrigin identifies the sender side of an inbound packet.
type PacketOrigin struct {
	SrcEid int64
	Sender string // raw hex, 32-byte peer identifier as observed on the wire
	Nonce  uint64
}

// PacketDelivered is an observed inbound packet delivery, the trigger for
// the packet snapshotter.
type PacketDelivered struct {
	Ctx      BlockContext
	Origin   PacketOrigin
	Receiver string // raw hex, the receiving OApp address
}

// Event is the tagged union dispatched to pkg/handlers. Exactly one of the
// typed fields is non-nil, selected by Kind.
type Event struct {
	Kind Kind

	DefaultReceiveLibrarySet *DefaultReceiveLibrarySet
	DefaultUlnConfigsSet     *DefaultUlnConfigsSet
	ReceiveLibrarySet        *ReceiveLibrarySet
	UlnConfigSet             *UlnConfigSet
	PeerSet                  *PeerSet
	RateLimiterSet           *RateLimiterSet
	RateLimitsChanged        *RateLimitsChanged
	PacketDelivered          *PacketDelivered
}

// ChainID returns the chain ID of whichever typed field is set, for
// callers (e.g. tracing, per-chain routing) that need it without a type
// switch over every Kind.
func (e Event) ChainID() int64 {
	switch e.Kind {
	case KindDefaultReceiveLibrarySet:
		return e.DefaultReceiveLibrarySet.Ctx.ChainID
	case KindDefaultUlnConfigsSet:
		return e.DefaultUlnConfigsSet.Ctx.ChainID
	case KindReceiveLibrarySet:
		return e.ReceiveLibrarySet.Ctx.ChainID
	case KindUlnConfigSet:
		return e.UlnConfigSet.Ctx.ChainID
	case KindPeerSet:
		return e.PeerSet.Ctx.ChainID
	case KindRateLimiterSet:
		return e.RateLimiterSet.Ctx.ChainID
	case KindRateLimitsChanged:
		return e.RateLimitsChanged.Ctx.ChainID
	case KindPacketDelivered:
		return e.PacketDelivered.Ctx.ChainID
	default:
		return 0
	}
}

// ErrUnknownKind is returned by decoders when a raw event's kind string
// does not match any of the eight known kinds.
type ErrUnknownKind struct {
	Kind string
}

func (e ErrUnknownKind) Error() string {
	return fmt.Sprintf("events: unknown event kind %q", e.Kind)
}
