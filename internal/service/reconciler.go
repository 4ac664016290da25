package service

import (
	"context"
	"sync"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/logger"
)

// BlockFetcher pulls the latest server-side block for a simulator. Absence of
// data is a zero-valued Block, not an error.
type BlockFetcher func(ctx context.Context, simulatorID string) (md.Block, error)

// debounceQuiet is the quiet period after the last reading event before a
// pull refresh fires. Readings inside the window restart the timer, so a
// burst costs at most one fetch.
const debounceQuiet = 500 * time.Millisecond

type refreshCall struct {
	done  chan struct{}
	block md.Block
	err   error
}

// BlockReconciler owns the authoritative in-memory view of the current
// accounting block for one simulator and merges push events with pull
// refreshes. The observable block is monotonic per window: accumulated energy
// for a given window start never decreases; only a window change replaces the
// block wholesale.
type BlockReconciler struct {
	simulatorID    string
	fetch          BlockFetcher
	onWindowChange func(md.Block)
	log            *logger.Logger
	quiet          time.Duration

	mu            sync.Mutex
	block         md.Block
	hasBlock      bool
	lastReadingTS time.Time
	debounce      *time.Timer
	inflight      *refreshCall
	closed        bool
}

// NewBlockReconciler builds a reconciler for one simulator subscription.
// onWindowChange may be nil; when set it fires after a wholesale block
// replacement (collaborators use it to refresh history views).
func NewBlockReconciler(simulatorID string, fetch BlockFetcher, onWindowChange func(md.Block), log *logger.Logger) *BlockReconciler {
	return &BlockReconciler{
		simulatorID:    simulatorID,
		fetch:          fetch,
		onWindowChange: onWindowChange,
		log:            log,
		quiet:          debounceQuiet,
	}
}

// Block returns the current view and whether one exists yet.
func (r *BlockReconciler) Block() (md.Block, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.block, r.hasBlock
}

// LastReadingTS returns the device timestamp of the most recent reading
// event, used for window determination only.
func (r *BlockReconciler) LastReadingTS() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReadingTS
}

// LoadInitial pull-fetches the starting view. A failure surfaces the error
// and leaves any previous block untouched.
func (r *BlockReconciler) LoadInitial(ctx context.Context) (md.Block, error) {
	return r.Refresh(ctx)
}

// Refresh is an idempotent pull. While one fetch is in flight, concurrent
// callers await the same pending result instead of spawning a second request.
func (r *BlockReconciler) Refresh(ctx context.Context) (md.Block, error) {
	r.mu.Lock()
	if call := r.inflight; call != nil {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.block, call.err
		case <-ctx.Done():
			return md.Block{}, ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	r.inflight = call
	r.mu.Unlock()

	fetched, err := r.fetch(ctx, r.simulatorID)

	r.mu.Lock()
	r.inflight = nil
	var changedTo *md.Block
	if err == nil && !r.closed {
		changedTo = r.adoptLocked(fetched)
		fetched = r.block
	}
	r.mu.Unlock()

	call.block, call.err = fetched, err
	close(call.done)

	if changedTo != nil {
		r.notifyWindowChange(*changedTo)
	}
	return fetched, err
}

// OnPushEvent consumes one live feed event in delivery order.
func (r *BlockReconciler) OnPushEvent(ev md.PushEvent) {
	switch e := ev.(type) {
	case md.ReadingEvent:
		r.onReading(e)
	case md.BlockUpdateEvent:
		r.onBlockUpdate(e)
	case md.AlertEvent, md.PingEvent:
		// No block data; alerts are rendered elsewhere, pings only refresh
		// connection status.
	}
}

// Close cancels the pending debounce timer and abandons (without cancelling)
// any in-flight fetch; its result is discarded. No timers survive teardown.
func (r *BlockReconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
}

func (r *BlockReconciler) onReading(e md.ReadingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.lastReadingTS = e.TS

	// Single logical timer per subscription: a new reading cancels and
	// restarts it.
	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounce = time.AfterFunc(r.quiet, func() {
		r.mu.Lock()
		closed := r.closed
		r.debounce = nil
		r.mu.Unlock()
		if closed {
			return
		}
		if _, err := r.Refresh(context.Background()); err != nil && r.log != nil {
			r.log.Warnw("debounced refresh failed", "simulator_id", r.simulatorID, "err", err)
		}
	})
}

func (r *BlockReconciler) onBlockUpdate(e md.BlockUpdateEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	var changedTo *md.Block
	sameWindow := r.hasBlock && (e.BlockStart.IsZero() || e.BlockStart.Equal(r.block.WindowStart))
	if sameWindow {
		// Monotonic per window: a pushed regression is stale, ignore it.
		if e.AccumulatedKWh >= r.block.AccumulatedKWh {
			r.block.AccumulatedKWh = e.AccumulatedKWh
			r.block.PercentOfTarget = e.PercentOfTarget
			if e.BinSeconds > 0 {
				r.block.BinSeconds = e.BinSeconds
				r.block.Bins = e.Points
			}
		}
	} else {
		replacement := r.blockFromUpdateLocked(e)
		r.block = replacement
		r.hasBlock = true
		changedTo = &replacement
	}
	r.mu.Unlock()

	if changedTo != nil {
		r.notifyWindowChange(*changedTo)
	}
}

// blockFromUpdateLocked builds a wholesale replacement from a pushed payload.
// The push wire shape carries no target, so the previous target is carried
// forward unless the payload lets us derive one.
func (r *BlockReconciler) blockFromUpdateLocked(e md.BlockUpdateEvent) md.Block {
	b := md.Block{
		SimulatorID:     r.simulatorID,
		WindowStart:     e.BlockStart,
		AccumulatedKWh:  e.AccumulatedKWh,
		PercentOfTarget: e.PercentOfTarget,
		BinSeconds:      e.BinSeconds,
		Bins:            e.Points,
		TargetEnergyKWh: r.block.TargetEnergyKWh,
	}
	if !b.WindowStart.IsZero() {
		b.WindowEnd = WindowEnd(b.WindowStart)
	}
	if e.PercentOfTarget > 0 {
		b.TargetEnergyKWh = e.AccumulatedKWh / e.PercentOfTarget * 100
	}
	return b
}

// adoptLocked merges a fetched block under the same monotonicity rules as
// pushed updates. Returns the new block when the window changed.
func (r *BlockReconciler) adoptLocked(fetched md.Block) *md.Block {
	if fetched.IsZero() {
		// Server has no data yet; keep whatever view we hold.
		return nil
	}
	if r.hasBlock && fetched.WindowStart.Equal(r.block.WindowStart) {
		if fetched.AccumulatedKWh >= r.block.AccumulatedKWh {
			r.block = fetched
		}
		return nil
	}
	r.block = fetched
	r.hasBlock = true
	return &fetched
}

func (r *BlockReconciler) notifyWindowChange(b md.Block) {
	if r.onWindowChange != nil {
		r.onWindowChange(b)
	}
}
