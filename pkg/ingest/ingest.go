// Package ingest bridges the host indexing runtime's per-chain event
// delivery into the dispatch path in pkg/handlers. Each chain gets its own
// dispatch loop goroutine so that events on one chain are processed
// strictly in delivery order while chains progress in parallel.
package ingest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sekuba/dvnstats-sub001/internal/obslog"
	"github.com/sekuba/dvnstats-sub001/pkg/events"
	"github.com/sekuba/dvnstats-sub001/pkg/handlers"
)

// Delivery is a single raw event as the host runtime hands it to the
// adapter: the decoded block envelope plus the untyped params payload for
// one of the eight event kinds.
type Delivery struct {
	Kind    string
	Ctx     events.BlockContext
	Payload events.RawPayload
}

// Adapter owns one dispatch loop per chain. Chains are registered with
// Chain before Start and cannot be added afterward.
type Adapter struct {
	hc *handlers.Context

	mu      sync.Mutex
	queues  map[int64]chan Delivery
	started bool

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// QueueSize is the per-chain delivery channel capacity. A chain that is
// still draining a backlog when its buffer fills blocks the upstream
// producer rather than dropping events, since every delivery must be
// processed to keep the derived entities a complete function of history.
const QueueSize = 256

// New constructs an Adapter dispatching into hc.
func New(hc *handlers.Context) *Adapter {
	return &Adapter{
		hc:        hc,
		queues:    make(map[int64]chan Delivery),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Chain registers a chain's dispatch loop and returns the channel to feed
// its deliveries into. Must be called before Start.
func (a *Adapter) Chain(chainID int64) chan<- Delivery {
	a.mu.Lock()
	defer a.mu.Unlock()

	if q, ok := a.queues[chainID]; ok {
		return q
	}
	q := make(chan Delivery, QueueSize)
	a.queues[chainID] = q
	return q
}

// Start begins one dispatch loop goroutine per registered chain.
func (a *Adapter) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	chains := make(map[int64]chan Delivery, len(a.queues))
	for id, q := range a.queues {
		chains[id] = q
	}
	a.mu.Unlock()

	for chainID, q := range chains {
		a.wg.Add(1)
		go a.dispatchLoop(ctx, chainID, q)
	}

	go func() {
		a.wg.Wait()
		close(a.stoppedCh)
	}()
}

// Stop signals every dispatch loop to drain its queue and exit, waiting up
// to timeout for them to finish.
func (a *Adapter) Stop(timeout time.Duration) {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	close(a.stopCh)

	select {
	case <-a.stoppedCh:
	case <-time.After(timeout):
		obslog.Warn("ingest adapter stop timed out, dispatch loops still draining")
	}
}

// dispatchLoop is the per-chain single-threaded consumer: it processes
// deliveries for chainID strictly in the order they arrive on q, so that a
// handler's fan-out recomputation always observes the cascaded state left
// by every prior event on this chain.
func (a *Adapter) dispatchLoop(ctx context.Context, chainID int64, q chan Delivery) {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			a.drain(ctx, chainID, q)
			return
		case <-ctx.Done():
			return
		case d, ok := <-q:
			if !ok {
				return
			}
			a.process(ctx, chainID, d)
		}
	}
}

// drain processes whatever is already queued before a dispatch loop exits,
// so a graceful Stop never silently discards accepted deliveries.
func (a *Adapter) drain(ctx context.Context, chainID int64, q chan Delivery) {
	for {
		select {
		case d, ok := <-q:
			if !ok {
				return
			}
			a.process(ctx, chainID, d)
		default:
			return
		}
	}
}

// process decodes one raw delivery and dispatches it, logging and skipping
// InvalidInput rather than letting one malformed event abort the chain's
// stream.
func (a *Adapter) process(ctx context.Context, chainID int64, d Delivery) {
	ev, err := events.Decode(d.Kind, d.Ctx, d.Payload)
	if err != nil {
		a.hc.Metrics.EventSkipped(chainLabel(chainID), d.Kind, "decode_error")
		obslog.WarnCtx(ctx, "skipping event: decode failed",
			obslog.KeyKind, d.Kind, obslog.KeyChainID, chainID, obslog.KeyError, err)
		return
	}

	if err := handlers.Dispatch(ctx, a.hc, *ev); err != nil {
		obslog.ErrorCtx(ctx, "dispatch failed",
			obslog.KeyKind, d.Kind, obslog.KeyChainID, chainID, obslog.KeyError, err)
	}
}

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}
