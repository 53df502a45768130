package events

import "testing"

func TestDecodeDefaultReceiveLibrarySet(t *testing.T) {
	ev, err := Decode("DefaultReceiveLibrarySet", BlockContext{ChainID: 1}, RawPayload{
		"eid": float64(30101), "newLib": "0xabc",
	})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if ev.Kind != KindDefaultReceiveLibrarySet {
		t.Fatalf("expected KindDefaultReceiveLibrarySet, got %v", ev.Kind)
	}
	if ev.DefaultReceiveLibrarySet.Eid != 30101 || ev.DefaultReceiveLibrarySet.NewLibrary != "0xabc" {
		t.Fatalf("unexpected decoded event: %+v", ev.DefaultReceiveLibrarySet)
	}
}

func TestDecodeDefaultUlnConfigsSetBatch(t *testing.T) {
	ev, err := Decode("DefaultUlnConfigsSet", BlockContext{}, RawPayload{
		"entries": []any{
			map[string]any{
				"eid": float64(30101), "confirmations": float64(5),
				"requiredDvnCount": float64(2), "optionalDvnCount": float64(0),
				"optionalDvnThreshold": float64(0),
				"requiredDvns":         []any{"0xaaa", "0xbbb"},
				"optionalDvns":         []any{},
			},
			map[string]any{
				"eid": float64(30102), "confirmations": float64(0),
				"requiredDvnCount": float64(0), "optionalDvnCount": float64(0),
				"optionalDvnThreshold": float64(0),
			},
		},
	})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(ev.DefaultUlnConfigsSet.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ev.DefaultUlnConfigsSet.Entries))
	}
	if ev.DefaultUlnConfigsSet.Entries[0].Config.RequiredDVNCount != 2 {
		t.Fatalf("unexpected first entry: %+v", ev.DefaultUlnConfigsSet.Entries[0])
	}
}

func TestDecodeMissingFieldIsError(t *testing.T) {
	_, err := Decode("ReceiveLibrarySet", BlockContext{}, RawPayload{
		"receiver": "0xabc", "eid": float64(1),
	})
	if err == nil {
		t.Fatalf("expected error for missing newLib field")
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode("SomeOtherEvent", BlockContext{}, RawPayload{})
	if _, ok := err.(ErrUnknownKind); !ok {
		t.Fatalf("expected ErrUnknownKind, got %v (%T)", err, err)
	}
}

func TestDecodePacketDelivered(t *testing.T) {
	ev, err := Decode("PacketDelivered", BlockContext{}, RawPayload{
		"srcEid": float64(30101), "sender": "0xaaa", "nonce": float64(7), "receiver": "0xbbb",
	})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if ev.PacketDelivered.Origin.Nonce != 7 || ev.PacketDelivered.Receiver != "0xbbb" {
		t.Fatalf("unexpected decoded event: %+v", ev.PacketDelivered)
	}
}
