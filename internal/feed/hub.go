// Package feed keeps the latest record set and its statistics in memory and
// pushes a new snapshot to subscribers whenever the store changes.
package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jizpi/arm-ledger/internal/stats"
	"github.com/jizpi/arm-ledger/internal/visit"
)

// Lister loads the full record set, newest first.
type Lister interface {
	List(ctx context.Context) ([]visit.Record, error)
}

// Observer is told how each refresh went.
type Observer interface {
	SnapshotComputed(records, today int, took time.Duration)
}

// State is one immutable snapshot. Readers must not modify it.
type State struct {
	Version   uint64           `json:"version"`
	Records   []visit.Record   `json:"-"`
	Stats     stats.Statistics `json:"stats"`
	LoadedAt  time.Time        `json:"loaded_at"`
	LastError string           `json:"last_error,omitempty"`
}

// Hub owns the current snapshot. A single goroutine (Run) reloads and
// recomputes; everything else only reads *State pointers.
type Hub struct {
	lister   Lister
	opts     stats.Options
	now      func() time.Time
	interval time.Duration
	logger   *zap.Logger
	observer Observer

	trigger chan struct{}
	current atomic.Pointer[State]

	mu     sync.Mutex
	subs   map[int]chan *State
	nextID int
}

// NewHub creates a Hub with an empty initial snapshot.
func NewHub(lister Lister, opts stats.Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		lister:  lister,
		opts:    opts,
		now:     time.Now,
		logger:  logger,
		trigger: make(chan struct{}, 1),
		subs:    map[int]chan *State{},
	}
	empty := stats.Empty(h.now(), opts)
	h.current.Store(&State{Records: []visit.Record{}, Stats: empty})
	return h
}

// WithClock replaces the clock used for statistics.
func (h *Hub) WithClock(now func() time.Time) *Hub {
	h.now = now
	return h
}

// WithInterval makes Run refresh on a timer as well, so date-based counters
// roll over at midnight without a write.
func (h *Hub) WithInterval(d time.Duration) *Hub {
	h.interval = d
	return h
}

// WithObserver attaches a refresh observer.
func (h *Hub) WithObserver(o Observer) *Hub {
	h.observer = o
	return h
}

// Notify asks Run to refresh. Requests arriving while one is pending are
// merged into it. It never blocks.
func (h *Hub) Notify(context.Context) error {
	select {
	case h.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Current returns the latest snapshot.
func (h *Hub) Current() *State {
	return h.current.Load()
}

// Subscribe returns a channel that receives each new snapshot. A slow
// subscriber only ever sees the most recent one. Call cancel when done.
func (h *Hub) Subscribe() (<-chan *State, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan *State, 1)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Run loads the first snapshot and then refreshes on every Notify until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info("snapshot hub started", zap.Duration("interval", h.interval))
	h.Refresh(ctx)

	var tick <-chan time.Time
	if h.interval > 0 {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("snapshot hub stopped")
			return nil
		case <-h.trigger:
			h.Refresh(ctx)
		case <-tick:
			h.Refresh(ctx)
		}
	}
}

// Refresh reloads the record set and recomputes statistics. On a load
// failure the previous records and statistics stay in place and the error
// is published with them.
func (h *Hub) Refresh(ctx context.Context) *State {
	start := time.Now()
	prev := h.Current()

	recs, err := h.lister.List(ctx)
	next := &State{Version: prev.Version + 1, LoadedAt: h.now()}
	if err != nil {
		h.logger.Error("reloading visits", zap.Error(err))
		next.Records = prev.Records
		next.Stats = prev.Stats
		next.LastError = err.Error()
	} else {
		next.Records = recs
		next.Stats = stats.Compute(recs, h.now(), h.opts)
	}

	h.current.Store(next)
	h.broadcast(next)

	took := time.Since(start)
	if h.observer != nil && err == nil {
		h.observer.SnapshotComputed(next.Stats.TotalRecords, next.Stats.TodayCount, took)
	}
	h.logger.Debug("snapshot refreshed",
		zap.Uint64("version", next.Version),
		zap.Int("records", len(next.Records)),
		zap.Duration("took", took),
	)
	return next
}

func (h *Hub) broadcast(s *State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		// Drop a stale snapshot the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
