package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sekuba/dvnstats-sub001/pkg/events"
	"github.com/sekuba/dvnstats-sub001/pkg/handlers"
	"github.com/sekuba/dvnstats-sub001/pkg/libclass"
	"github.com/sekuba/dvnstats-sub001/pkg/metrics"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

func newTestContext() *handlers.Context {
	return &handlers.Context{
		Store:      store.NewMemoryStore(),
		Classifier: libclass.New(nil),
		Metrics:    metrics.New(nil),
	}
}

func TestAdapter_ChainReturnsSameQueue(t *testing.T) {
	a := New(newTestContext())
	q1 := a.Chain(1)
	q2 := a.Chain(1)
	if q1 != q2 {
		t.Error("Chain(1) returned a different channel on the second call")
	}
}

func TestAdapter_StopNotStarted(t *testing.T) {
	a := New(newTestContext())
	a.Stop(time.Second) // must not panic or block
}

func TestAdapter_DoubleStart(t *testing.T) {
	a := New(newTestContext())
	a.Chain(1)

	ctx := context.Background()
	a.Start(ctx)
	a.Start(ctx) // no-op

	a.Stop(time.Second)
}

func TestAdapter_DispatchesDeliveryToHandler(t *testing.T) {
	hc := newTestContext()
	a := New(hc)
	q := a.Chain(1)
	a.Start(context.Background())
	defer a.Stop(time.Second)

	q <- Delivery{
		Kind: string(events.KindDefaultReceiveLibrarySet),
		Ctx: events.BlockContext{
			ChainID:     1,
			BlockNumber: 100,
			LogIndex:    0,
			Timestamp:   time.Unix(1700000000, 0).UTC(),
			TxHash:      "0xabc",
		},
		Payload: events.RawPayload{
			"eid":    float64(2),
			"newLib": "0x1111111111111111111111111111111111111111",
		},
	}

	deadline := time.After(time.Second)
	for {
		rec, err := hc.Store.GetDefaultReceiveLibrary(context.Background(), "1_2")
		if err == nil && rec != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dispatched event to be persisted")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestAdapter_SkipsUndecodableDelivery(t *testing.T) {
	hc := newTestContext()
	a := New(hc)
	q := a.Chain(1)
	a.Start(context.Background())
	defer a.Stop(time.Second)

	// Missing "eid" makes this InvalidInput; the loop must skip it rather
	// than wedge the chain's queue.
	q <- Delivery{
		Kind:    string(events.KindDefaultReceiveLibrarySet),
		Ctx:     events.BlockContext{ChainID: 1, BlockNumber: 1},
		Payload: events.RawPayload{"newLib": "0x1111111111111111111111111111111111111111"},
	}
	q <- Delivery{
		Kind: string(events.KindDefaultReceiveLibrarySet),
		Ctx:  events.BlockContext{ChainID: 1, BlockNumber: 2, Timestamp: time.Unix(1700000000, 0).UTC()},
		Payload: events.RawPayload{
			"eid":    float64(3),
			"newLib": "0x2222222222222222222222222222222222222222",
		},
	}

	deadline := time.After(time.Second)
	for {
		rec, err := hc.Store.GetDefaultReceiveLibrary(context.Background(), "1_3")
		if err == nil && rec != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for second delivery to be processed after the first was skipped")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestReplay_DispatchesRecordsInOrder(t *testing.T) {
	hc := newTestContext()
	log := strings.Join([]string{
		`{"kind":"DefaultReceiveLibrarySet","chainId":1,"blockNumber":10,"blockTimestamp":1700000000,"logIndex":0,"transactionHash":"0xa","params":{"eid":2,"newLib":"0x1111111111111111111111111111111111111111"}}`,
		`{"kind":"DefaultReceiveLibrarySet","chainId":1,"blockNumber":11,"blockTimestamp":1700000001,"logIndex":0,"transactionHash":"0xb","params":{"eid":2,"newLib":"0x2222222222222222222222222222222222222222"}}`,
	}, "\n")

	if err := Replay(context.Background(), strings.NewReader(log), hc); err != nil {
		t.Fatalf("Replay returned error: %v", err)
	}

	rec, err := hc.Store.GetDefaultReceiveLibrary(context.Background(), "1_2")
	if err != nil {
		t.Fatalf("GetDefaultReceiveLibrary: %v", err)
	}
	if rec.Library != "0x2222222222222222222222222222222222222222" {
		t.Errorf("expected replay to apply both records in order, got library %q", rec.Library)
	}
}

func TestReplay_SkipsMalformedLine(t *testing.T) {
	hc := newTestContext()
	log := strings.Join([]string{
		`{"kind":"DefaultReceiveLibrarySet","chainId":1,"blockNumber":10,"blockTimestamp":1700000000,"logIndex":0,"transactionHash":"0xa","params":{"newLib":"0x1111111111111111111111111111111111111111"}}`,
		`{"kind":"DefaultReceiveLibrarySet","chainId":1,"blockNumber":11,"blockTimestamp":1700000001,"logIndex":0,"transactionHash":"0xb","params":{"eid":5,"newLib":"0x2222222222222222222222222222222222222222"}}`,
	}, "\n")

	if err := Replay(context.Background(), strings.NewReader(log), hc); err != nil {
		t.Fatalf("Replay returned error: %v", err)
	}

	if _, err := hc.Store.GetDefaultReceiveLibrary(context.Background(), "1_5"); err != nil {
		t.Fatalf("expected the valid second record to still apply, got: %v", err)
	}
}
