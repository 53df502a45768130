package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/entities"
	"github.com/sekuba/dvnstats-sub001/pkg/events"
	"github.com/sekuba/dvnstats-sub001/pkg/libclass"
	"github.com/sekuba/dvnstats-sub001/pkg/metrics"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

const (
	testChainID = int64(1)
	testEid     = int64(30101)

	trackedLibA  = "0x0000000000000000000000000000000000000001"
	trackedLibB  = "0x0000000000000000000000000000000000000002"
	untrackedLib = "0x0000000000000000000000000000000000000003"

	dvnA = "0x0000000000000000000000000000000000000004"
	dvnB = "0x0000000000000000000000000000000000000005"
	dvnX = "0x0000000000000000000000000000000000000006"
	dvnY = "0x0000000000000000000000000000000000000007"
	dvnZ = "0x0000000000000000000000000000000000000008"

	oappO = "0x0000000000000000000000000000000000000009"
	oappP = "0x000000000000000000000000000000000000000a"

	senderAAA = "0x000000000000000000000000000000000000000b"
	senderBBB = "0x000000000000000000000000000000000000000c"
	zeroPeer  = "0x0000000000000000000000000000000000000000"
)

func newTestContext(tracked map[int64][]string) *Context {
	return &Context{
		Store:      store.NewMemoryStore(),
		Classifier: libclass.New(tracked),
		Metrics:    metrics.New(nil),
	}
}

var testTime = time.Unix(1700000000, 0).UTC()

// seq hands out distinct (blockNumber, logIndex) pairs so successive events
// in one test get distinct EventIDs.
type seq struct{ block uint64 }

func (s *seq) next() events.BlockContext {
	s.block++
	return events.BlockContext{
		ChainID:     testChainID,
		BlockNumber: s.block,
		LogIndex:    0,
		Timestamp:   testTime,
		TxHash:      "0xtx",
	}
}

func mustDispatch(t *testing.T, hc *Context, ev events.Event) {
	t.Helper()
	if err := Dispatch(context.Background(), hc, ev); err != nil {
		t.Fatalf("Dispatch(%s): %v", ev.Kind, err)
	}
}

// TestHandlePacketDelivered_SentinelRequiredDVNCountOptionalQuorum covers the
// case where an override sets the required DVN count to its Nil sentinel
// while a default exists, so the effective route is left with only an
// optional-DVN quorum and no required DVNs at all.
func TestHandlePacketDelivered_SentinelRequiredDVNCountOptionalQuorum(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA}})
	s := &seq{}

	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: testEid, NewLibrary: trackedLibA,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultUlnConfigsSet,
		DefaultUlnConfigsSet: &events.DefaultUlnConfigsSet{
			Ctx: s.next(),
			Entries: []events.DefaultUlnConfigsSetEntry{{
				Eid: testEid,
				Config: events.UlnConfigTuple{
					Confirmations:    1,
					RequiredDVNCount: 1,
					RequiredDVNs:     []string{dvnA},
				},
			}},
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindReceiveLibrarySet,
		ReceiveLibrarySet: &events.ReceiveLibrarySet{
			Ctx: s.next(), Receiver: oappO, Eid: testEid, NewLibrary: trackedLibA,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindUlnConfigSet,
		UlnConfigSet: &events.UlnConfigSet{
			Ctx: s.next(), OApp: oappO, Eid: testEid,
			Config: events.UlnConfigTuple{
				Confirmations:        2,
				RequiredDVNCount:     255, // Nil sentinel
				OptionalDVNCount:     3,
				OptionalDVNThreshold: 2,
				OptionalDVNs:         []string{dvnX, dvnY, dvnZ},
			},
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindPacketDelivered,
		PacketDelivered: &events.PacketDelivered{
			Ctx:      s.next(),
			Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderAAA, Nonce: 1},
			Receiver: oappO,
		},
	})

	pd := mustGetOnlyPacket(t, hc, oappO, testEid)

	if !pd.UsesRequiredDVNSentinel {
		t.Error("expected UsesRequiredDVNSentinel=true")
	}
	if pd.EffectiveRequiredDVNCount != 0 || len(pd.EffectiveRequiredDVNs) != 0 {
		t.Errorf("expected zero required DVNs, got count=%d dvns=%v", pd.EffectiveRequiredDVNCount, pd.EffectiveRequiredDVNs)
	}
	if pd.EffectiveOptionalDVNCount != 3 {
		t.Errorf("expected optional count 3, got %d", pd.EffectiveOptionalDVNCount)
	}
	want := []string{dvnX, dvnY, dvnZ}
	if len(pd.EffectiveOptionalDVNs) != len(want) {
		t.Fatalf("expected optional dvns %v, got %v", want, pd.EffectiveOptionalDVNs)
	}
	for i := range want {
		if pd.EffectiveOptionalDVNs[i] != want[i] {
			t.Errorf("expected optional dvns %v, got %v", want, pd.EffectiveOptionalDVNs)
		}
	}
	if pd.EffectiveOptionalDVNThreshold != 2 {
		t.Errorf("expected threshold 2, got %d", pd.EffectiveOptionalDVNThreshold)
	}
	if pd.EffectiveConfirmations != 2 {
		t.Errorf("expected confirmations 2, got %d", pd.EffectiveConfirmations)
	}
	if pd.LibraryStatus != libclass.Tracked.String() || !pd.IsConfigTracked {
		t.Errorf("expected a tracked, config-tracked library, got status=%s tracked=%v", pd.LibraryStatus, pd.IsConfigTracked)
	}
	if !pd.UsesDefaultLibrary {
		t.Error("expected UsesDefaultLibrary=true (override resolves to the same tracked library)")
	}
	if pd.UsesDefaultConfig {
		t.Error("expected UsesDefaultConfig=false (override changed the ULN fields)")
	}
	if len(pd.FallbackFields) != 0 {
		t.Errorf("expected no fallback fields, got %v", pd.FallbackFields)
	}
}

// TestHandlePacketDelivered_UntrackedLibraryShortCircuitsULN covers an
// override library that isn't the tracked implementation: the ULN portion
// of the snapshot is left entirely zeroed/empty.
func TestHandlePacketDelivered_UntrackedLibraryShortCircuitsULN(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA}})
	s := &seq{}

	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: testEid, NewLibrary: untrackedLib,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindReceiveLibrarySet,
		ReceiveLibrarySet: &events.ReceiveLibrarySet{
			Ctx: s.next(), Receiver: oappO, Eid: testEid, NewLibrary: untrackedLib,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindPacketDelivered,
		PacketDelivered: &events.PacketDelivered{
			Ctx:      s.next(),
			Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderAAA, Nonce: 1},
			Receiver: oappO,
		},
	})

	pd := mustGetOnlyPacket(t, hc, oappO, testEid)

	if pd.LibraryStatus != libclass.Unsupported.String() {
		t.Errorf("expected Unsupported status, got %s", pd.LibraryStatus)
	}
	if pd.IsConfigTracked {
		t.Error("expected IsConfigTracked=false")
	}
	if pd.UsesDefaultConfig {
		t.Error("expected UsesDefaultConfig=false")
	}
	if pd.EffectiveConfirmations != 0 || pd.EffectiveRequiredDVNCount != 0 || pd.EffectiveOptionalDVNCount != 0 {
		t.Errorf("expected zeroed ULN fields, got %+v", pd)
	}
	if pd.EffectiveOptionalDVNThreshold != 0 {
		t.Errorf("expected zero threshold, got %d", pd.EffectiveOptionalDVNThreshold)
	}
}

// TestHandlePacketDelivered_DefaultOnlyNoOverride covers a route with no
// application override at all: the snapshot carries the default values
// directly with no fallback attribution.
func TestHandlePacketDelivered_DefaultOnlyNoOverride(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA}})
	s := &seq{}

	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: testEid, NewLibrary: trackedLibA,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultUlnConfigsSet,
		DefaultUlnConfigsSet: &events.DefaultUlnConfigsSet{
			Ctx: s.next(),
			Entries: []events.DefaultUlnConfigsSetEntry{{
				Eid: testEid,
				Config: events.UlnConfigTuple{
					Confirmations:    5,
					RequiredDVNCount: 2,
					RequiredDVNs:     []string{dvnA, dvnB},
				},
			}},
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindPacketDelivered,
		PacketDelivered: &events.PacketDelivered{
			Ctx:      s.next(),
			Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderAAA, Nonce: 1},
			Receiver: oappP,
		},
	})

	pd := mustGetOnlyPacket(t, hc, oappP, testEid)

	if !pd.UsesDefaultLibrary {
		t.Error("expected UsesDefaultLibrary=true")
	}
	if !pd.UsesDefaultConfig {
		t.Error("expected UsesDefaultConfig=true")
	}
	if len(pd.FallbackFields) != 0 {
		t.Errorf("expected no fallback fields, got %v", pd.FallbackFields)
	}
	if pd.EffectiveConfirmations != 5 {
		t.Errorf("expected confirmations 5, got %d", pd.EffectiveConfirmations)
	}
	want := []string{dvnA, dvnB}
	if len(pd.EffectiveRequiredDVNs) != len(want) {
		t.Fatalf("expected required dvns %v, got %v", want, pd.EffectiveRequiredDVNs)
	}
	for i := range want {
		if pd.EffectiveRequiredDVNs[i] != want[i] {
			t.Errorf("expected required dvns %v, got %v", want, pd.EffectiveRequiredDVNs)
		}
	}
}

// TestHandlePacketDelivered_OverrideFallbackAttribution covers an override
// record that leaves some fields as Inherit: those fields fall back to the
// default and are recorded in canonical order, while the override's own
// optional DVNs take effect.
func TestHandlePacketDelivered_OverrideFallbackAttribution(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA}})
	s := &seq{}

	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: testEid, NewLibrary: trackedLibA,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultUlnConfigsSet,
		DefaultUlnConfigsSet: &events.DefaultUlnConfigsSet{
			Ctx: s.next(),
			Entries: []events.DefaultUlnConfigsSetEntry{{
				Eid: testEid,
				Config: events.UlnConfigTuple{
					Confirmations:    5,
					RequiredDVNCount: 2,
					RequiredDVNs:     []string{dvnA, dvnB},
				},
			}},
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindUlnConfigSet,
		UlnConfigSet: &events.UlnConfigSet{
			Ctx: s.next(), OApp: oappO, Eid: testEid,
			Config: events.UlnConfigTuple{
				OptionalDVNCount:     1,
				OptionalDVNThreshold: 1,
				OptionalDVNs:         []string{dvnX},
			},
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindPacketDelivered,
		PacketDelivered: &events.PacketDelivered{
			Ctx:      s.next(),
			Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderAAA, Nonce: 1},
			Receiver: oappO,
		},
	})

	pd := mustGetOnlyPacket(t, hc, oappO, testEid)

	wantOrder := []entities.FallbackField{
		entities.FallbackConfirmations,
		entities.FallbackRequiredDVNCount,
		entities.FallbackRequiredDVNs,
	}
	if len(pd.FallbackFields) != len(wantOrder) {
		t.Fatalf("expected fallback fields %v, got %v", wantOrder, pd.FallbackFields)
	}
	for i, f := range wantOrder {
		if pd.FallbackFields[i] != f {
			t.Errorf("expected fallback field %d to be %s, got %s", i, f, pd.FallbackFields[i])
		}
	}
	if pd.EffectiveConfirmations != 5 {
		t.Errorf("expected confirmations 5 (fallback to default), got %d", pd.EffectiveConfirmations)
	}
	want := []string{dvnA, dvnB}
	if len(pd.EffectiveRequiredDVNs) != len(want) {
		t.Fatalf("expected required dvns %v, got %v", want, pd.EffectiveRequiredDVNs)
	}
	if len(pd.EffectiveOptionalDVNs) != 1 || pd.EffectiveOptionalDVNs[0] != dvnX {
		t.Errorf("expected optional dvns from override, got %v", pd.EffectiveOptionalDVNs)
	}
}

// TestHandlePacketDelivered_ThresholdAutoCapped covers an explicit optional
// threshold that exceeds the resolved optional DVN count: it is capped to
// the count rather than persisted as given.
func TestHandlePacketDelivered_ThresholdAutoCapped(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA}})
	s := &seq{}

	mustDispatch(t, hc, events.Event{
		Kind: events.KindDefaultReceiveLibrarySet,
		DefaultReceiveLibrarySet: &events.DefaultReceiveLibrarySet{
			Ctx: s.next(), Eid: testEid, NewLibrary: trackedLibA,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindUlnConfigSet,
		UlnConfigSet: &events.UlnConfigSet{
			Ctx: s.next(), OApp: oappO, Eid: testEid,
			Config: events.UlnConfigTuple{
				OptionalDVNCount:     2,
				OptionalDVNThreshold: 5,
				OptionalDVNs:         []string{dvnA, dvnB},
			},
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindPacketDelivered,
		PacketDelivered: &events.PacketDelivered{
			Ctx:      s.next(),
			Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderAAA, Nonce: 1},
			Receiver: oappO,
		},
	})

	pd := mustGetOnlyPacket(t, hc, oappO, testEid)
	if pd.EffectiveOptionalDVNThreshold != 2 {
		t.Errorf("expected threshold capped to 2, got %d", pd.EffectiveOptionalDVNThreshold)
	}
}

// TestHandlePacketDelivered_PeerBlockedButDelivered covers a route
// explicitly blocked (PeerSet with the zero peer) that still receives a
// packet: the row is persisted regardless, and the peer record is left
// untouched (still blocked, not overwritten by delivery).
func TestHandlePacketDelivered_PeerBlockedButDelivered(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA}})
	s := &seq{}

	mustDispatch(t, hc, events.Event{
		Kind: events.KindPeerSet,
		PeerSet: &events.PeerSet{
			Ctx: s.next(), OApp: oappO, Eid: testEid, Peer: zeroPeer,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindPacketDelivered,
		PacketDelivered: &events.PacketDelivered{
			Ctx:      s.next(),
			Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderAAA, Nonce: 1},
			Receiver: oappO,
		},
	})

	pd := mustGetOnlyPacket(t, hc, oappO, testEid)
	if pd.EventID == "" {
		t.Fatal("expected the packet delivered row to still be persisted for a blocked route")
	}

	peer, err := hc.Store.GetOAppPeer(context.Background(), routeKeyFor(t, oappO, testEid))
	if err != nil {
		t.Fatalf("GetOAppPeer: %v", err)
	}
	if peer.State() != entities.PeerExplicitlyBlocked {
		t.Errorf("expected the peer record to remain ExplicitlyBlocked, got %s", peer.State())
	}
}

// TestHandlePacketDelivered_AutoDiscoversPeerOnFirstDelivery covers the
// first delivery on a route with no prior PeerSet at all: the sender is
// synthesized as an auto-discovered peer.
func TestHandlePacketDelivered_AutoDiscoversPeerOnFirstDelivery(t *testing.T) {
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

	peer, err := hc.Store.GetOAppPeer(context.Background(), routeKeyFor(t, oappO, testEid))
	if err != nil {
		t.Fatalf("GetOAppPeer: %v", err)
	}
	if peer.State() != entities.PeerAutoDiscovered {
		t.Errorf("expected AutoDiscovered, got %s", peer.State())
	}
	if !peer.FromPacketDelivered {
		t.Error("expected FromPacketDelivered=true")
	}
}

// TestHandlePacketDelivered_SenderMismatchDoesNotOverwritePeer covers a
// delivery whose sender differs from an explicitly configured peer: the
// mismatch is only diagnosed, the configured peer record is left as-is.
func TestHandlePacketDelivered_SenderMismatchDoesNotOverwritePeer(t *testing.T) {
	hc := newTestContext(map[int64][]string{testChainID: {trackedLibA}})
	s := &seq{}

	mustDispatch(t, hc, events.Event{
		Kind: events.KindPeerSet,
		PeerSet: &events.PeerSet{
			Ctx: s.next(), OApp: oappO, Eid: testEid, Peer: senderAAA,
		},
	})
	mustDispatch(t, hc, events.Event{
		Kind: events.KindPacketDelivered,
		PacketDelivered: &events.PacketDelivered{
			Ctx:      s.next(),
			Origin:   events.PacketOrigin{SrcEid: testEid, Sender: senderBBB, Nonce: 1},
			Receiver: oappO,
		},
	})

	peer, err := hc.Store.GetOAppPeer(context.Background(), routeKeyFor(t, oappO, testEid))
	if err != nil {
		t.Fatalf("GetOAppPeer: %v", err)
	}
	if peer.State() != entities.PeerExplicitlySet {
		t.Errorf("expected ExplicitlySet to remain unchanged, got %s", peer.State())
	}
	if peer.PeerAddress == "" {
		t.Fatal("expected the configured peer address to survive the mismatched delivery")
	}
}

func routeKeyFor(t *testing.T, rawOAppAddr string, eid int64) string {
	t.Helper()
	normalized, err := addr.Normalize(rawOAppAddr)
	if err != nil {
		t.Fatalf("addr.Normalize(%q): %v", rawOAppAddr, err)
	}
	oAppID := addr.MakeOAppID(testChainID, normalized)
	return addr.MakeOAppRouteKey(oAppID, eid)
}

func mustGetOnlyPacket(t *testing.T, hc *Context, oAppAddr string, eid int64) *entities.PacketDelivered {
	t.Helper()
	recs, _, err := hc.Store.ListPacketDeliveredByRoute(context.Background(), routeKeyFor(t, oAppAddr, eid), "", 10)
	if err != nil {
		t.Fatalf("ListPacketDeliveredByRoute: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly 1 packet delivered row, got %d", len(recs))
	}
	return recs[0]
}
