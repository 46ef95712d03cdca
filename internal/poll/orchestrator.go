// Package poll keeps one logically current backend read in flight per view.
// Each dashboard view (all-sites overview, single-site detail) owns its own
// Orchestrator; their cancellation scopes never touch.
package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/watchboard/watchboard/internal/backend"
	"github.com/watchboard/watchboard/internal/domain"
)

const (
	MinAutoRefresh = 1 * time.Second
	MaxAutoRefresh = 60 * time.Second
)

// ClampRefresh forces an auto-refresh interval into [MinAutoRefresh, MaxAutoRefresh].
func ClampRefresh(d time.Duration) time.Duration {
	if d < MinAutoRefresh {
		return MinAutoRefresh
	}
	if d > MaxAutoRefresh {
		return MaxAutoRefresh
	}
	return d
}

// Query is the parameter set of one view. Changing it supersedes any
// in-flight load for the previous parameters.
type Query struct {
	Window  time.Duration // lookback; since = now - Window
	GroupBy string        // bucket granularity for aggregated reads
	URL     string        // empty for the all-sites overview
	Limit   int           // raw-log cap; 0 skips the raw read
}

// Result is what one load pass committed.
type Result struct {
	Records []domain.CheckRecord
	Summary domain.AggregatedSummary
	Buckets []domain.AggregatedBucket
}

// FetchFunc performs the reads for one query. It must honor ctx cancellation.
type FetchFunc func(ctx context.Context, q Query) (Result, error)

// State is a snapshot of a view. Refreshing is distinct from "empty":
// previously loaded data stays visible while a refresh is in flight.
type State struct {
	Result      Result
	Loaded      bool
	Refreshing  bool
	LastUpdated time.Time
	Err         string // user-visible, non-fatal; empty when healthy
}

type Orchestrator struct {
	log   *zap.Logger
	fetch FetchFunc

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	query    Query
	state    State
	stopTick chan struct{}
	closed   bool
	subs     map[int]chan struct{}
	nextSub  int
}

func New(log *zap.Logger, fetch FetchFunc) *Orchestrator {
	return &Orchestrator{
		log:   log,
		fetch: fetch,
		subs:  make(map[int]chan struct{}),
	}
}

// SetQuery cancels any in-flight load and issues a new one for q.
func (o *Orchestrator) SetQuery(q Query) {
	o.start(q)
}

// Refresh reloads the current query immediately, without waiting for the
// next auto-refresh tick.
func (o *Orchestrator) Refresh() {
	o.mu.Lock()
	q := o.query
	o.mu.Unlock()
	o.start(q)
}

// Query returns the current parameters.
func (o *Orchestrator) Query() Query {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.query
}

// Snapshot returns a copy of the view state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe returns a channel that receives a tick whenever the state
// changes, plus an unsubscribe func. The channel is never closed by the
// orchestrator; drop it after unsubscribing.
func (o *Orchestrator) Subscribe() (<-chan struct{}, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan struct{}, 1)
	o.subs[id] = ch
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

// SetAutoRefresh (re)starts the refresh ticker. every is clamped to
// [MinAutoRefresh, MaxAutoRefresh]; zero or negative disables.
func (o *Orchestrator) SetAutoRefresh(every time.Duration) {
	o.mu.Lock()
	if o.stopTick != nil {
		close(o.stopTick)
		o.stopTick = nil
	}
	if every <= 0 || o.closed {
		o.mu.Unlock()
		return
	}
	every = ClampRefresh(every)
	stop := make(chan struct{})
	o.stopTick = stop
	o.mu.Unlock()

	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				o.Refresh()
			}
		}
	}()
}

// Close cancels in-flight work and stops the auto-refresh ticker. The
// orchestrator accepts no further loads.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.stopTick != nil {
		close(o.stopTick)
		o.stopTick = nil
	}
	o.mu.Unlock()
}

func (o *Orchestrator) start(q Query) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.gen++
	gen := o.gen
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.query = q
	o.state.Refreshing = true
	o.mu.Unlock()
	o.notify()

	go func() {
		res, err := o.fetch(ctx, q)
		if o.apply(gen, res, err) {
			o.notify()
		}
	}()
}

// apply commits a completed load iff its generation is still current. A
// superseded response is dropped no matter when it arrives.
func (o *Orchestrator) apply(gen uint64, res Result, err error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.closed {
		return false
	}
	o.state.Refreshing = false
	if err != nil {
		if isCancelled(err) {
			// superseded or torn down; not an error the user should see
			return true
		}
		o.state.Err = err.Error()
		o.log.Warn("view_load_failed", zap.Error(err))
		return true
	}
	o.state.Result = res
	o.state.Loaded = true
	o.state.LastUpdated = time.Now().UTC()
	o.state.Err = ""
	return true
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	chans := make([]chan struct{}, 0, len(o.subs))
	for _, ch := range o.subs {
		chans = append(chans, ch)
	}
	o.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// isCancelled looks through a possibly multierr-combined error for a
// cancellation leg; one cancelled read means the whole pass was superseded.
func isCancelled(err error) bool {
	for _, e := range multierr.Errors(err) {
		if backend.IsCancelled(e) || errors.Is(e, context.Canceled) {
			return true
		}
	}
	return false
}
