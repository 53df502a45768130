package events

import "testing"

func TestEventChainID(t *testing.T) {
	ev, err := Decode("PeerSet", BlockContext{ChainID: 42}, RawPayload{
		"eid": float64(30101), "oapp": "0xabc", "peer": "0xdef",
	})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got := ev.ChainID(); got != 42 {
		t.Fatalf("expected ChainID 42, got %d", got)
	}
}

func TestEventChainID_UnknownKindDefaultsToZero(t *testing.T) {
	ev := Event{Kind: "bogus"}
	if got := ev.ChainID(); got != 0 {
		t.Fatalf("expected 0 for unrecognized kind, got %d", got)
	}
}
