// Package feed exposes the cached character list as an incrementally loaded
// window keyed by the canonical filter.
//
// A Feed owns a single run loop. Filter changes and load requests reach the
// loop as messages; the loop starts at most one reconcile cycle at a time and
// cancels the in-flight cycle when the filter changes (last filter wins).
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/internal/reconciler"
	"github.com/emmamdp/rickandmorty/internal/store"
)

// ErrSuperseded is returned to callers waiting on a cycle that was canceled
// by a filter change.
var ErrSuperseded = errors.New("load superseded by a newer filter")

// ErrStopped is returned once the run loop has exited.
var ErrStopped = errors.New("feed is not running")

// State is the load state of one direction.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateError   State = "error"
)

// LoadState is the observable state of refresh, prepend or append loading.
type LoadState struct {
	State      State
	EndReached bool
	Err        error
}

// Status is a point-in-time snapshot of the feed. Cached counts the cached
// characters of the current filter, including pages evicted from the window.
type Status struct {
	Ready         bool
	Filter        model.Filter
	FilterKey     string
	Generation    uint64
	Refresh       LoadState
	Prepend       LoadState
	Append        LoadState
	FirstID       int
	LastID        int
	Size          int
	Cached        int
	LastRefreshAt *time.Time
}

// Config holds feed settings.
type Config struct {
	// MaxWindow caps the number of characters in the window. When an append or
	// prepend grows past it, characters are evicted from the opposite end.
	// Zero disables eviction.
	MaxWindow int
	// RefreshOnStart starts an unfiltered sequence when Run begins.
	RefreshOnStart bool
}

type requestKind int

const (
	requestFilter requestKind = iota
	requestLoad
	requestRetry
)

type request struct {
	kind     requestKind
	filter   model.Filter
	loadType model.LoadType
	reply    chan reply
}

type reply struct {
	changed bool
	result  reconciler.Result
	err     error
}

type cycle struct {
	loadType   model.LoadType
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	result     reconciler.Result
	err        error
	waiters    []chan reply
	// followers re-applied the filter being refreshed; they wait for the
	// REFRESH but report changed=false.
	followers  []chan reply
	superseded bool
}

func (c *cycle) answer(rep reply) {
	for _, w := range c.waiters {
		w <- rep
	}
	rep.changed = false
	for _, w := range c.followers {
		w <- rep
	}
}

// Feed is the list presentation adapter.
type Feed struct {
	store         store.Store
	newReconciler reconciler.Factory
	maxWindow     int
	refreshOnRun  bool
	log           zerolog.Logger

	requests chan request
	stopped  chan struct{}

	stateMu sync.RWMutex
	status  Status

	ready atomic.Bool

	// Loop-owned state.
	started    bool
	rec        *reconciler.Reconciler
	inflight   *cycle
	queue      []request
	generation uint64
}

// New creates a feed. Call Run to start processing requests.
func New(st store.Store, factory reconciler.Factory, cfg Config, logger zerolog.Logger) *Feed {
	maxWindow := cfg.MaxWindow
	if maxWindow < 0 {
		maxWindow = 0
	}
	return &Feed{
		store:         st,
		newReconciler: factory,
		maxWindow:     maxWindow,
		refreshOnRun:  cfg.RefreshOnStart,
		log:           logger.With().Str("component", "feed").Logger(),
		requests:      make(chan request),
		stopped:       make(chan struct{}),
		status: Status{
			Refresh: LoadState{State: StateIdle},
			Prepend: LoadState{State: StateIdle},
			Append:  LoadState{State: StateIdle},
		},
	}
}

// Run processes requests until ctx is canceled.
func (f *Feed) Run(ctx context.Context) {
	defer close(f.stopped)

	if f.refreshOnRun {
		f.switchFilter(ctx, model.Filter{}, nil)
	}

	for {
		var done chan struct{}
		if f.inflight != nil {
			done = f.inflight.done
		}

		select {
		case <-ctx.Done():
			f.shutdown(ctx.Err())
			return
		case req := <-f.requests:
			f.handle(ctx, req)
		case <-done:
			f.finish()
			f.drainQueue(ctx)
		}
	}
}

// ApplyFilter switches the feed to filter. A canonically equal filter is a
// no-op and reports changed=false without starting a cycle; while that
// filter's REFRESH is still running it waits for it first. Otherwise the
// in-flight cycle is canceled and awaited, the window is reset and a REFRESH
// runs; ApplyFilter returns once that REFRESH finishes.
func (f *Feed) ApplyFilter(ctx context.Context, filter *model.Filter) (bool, error) {
	var target model.Filter
	if filter != nil {
		target = filter.Normalize()
	}
	rep, err := f.send(ctx, request{kind: requestFilter, filter: target})
	if err != nil {
		return false, err
	}
	return rep.changed, rep.err
}

// ClearFilter is ApplyFilter(nil).
func (f *Feed) ClearFilter(ctx context.Context) (bool, error) {
	return f.ApplyFilter(ctx, nil)
}

// Refresh reloads the page containing the first visible character.
func (f *Feed) Refresh(ctx context.Context) (reconciler.Result, error) {
	return f.load(ctx, model.LoadRefresh)
}

// Append extends the window forward by one page.
func (f *Feed) Append(ctx context.Context) (reconciler.Result, error) {
	return f.load(ctx, model.LoadAppend)
}

// Prepend extends the window backward by one page.
func (f *Feed) Prepend(ctx context.Context) (reconciler.Result, error) {
	return f.load(ctx, model.LoadPrepend)
}

// Retry reruns the failed load: refresh first, then append, then prepend.
// With nothing in error state it returns immediately.
func (f *Feed) Retry(ctx context.Context) (reconciler.Result, error) {
	rep, err := f.send(ctx, request{kind: requestRetry})
	if err != nil {
		return reconciler.Result{}, err
	}
	return rep.result, rep.err
}

// Fill appends until the window holds at least want characters, the end is
// reached, an append fails, or an append stops growing a window capped by
// MaxWindow.
func (f *Feed) Fill(ctx context.Context, want int) error {
	if f.maxWindow > 0 && want > f.maxWindow {
		want = f.maxWindow
	}
	for {
		st := f.Status()
		if st.Size >= want || st.Append.EndReached || st.Refresh.State == StateError {
			return nil
		}
		if st.Append.State == StateError {
			return st.Append.Err
		}
		result, err := f.Append(ctx)
		if err != nil {
			return err
		}
		if result.EndOfPagination && result.Count == 0 {
			return nil
		}
		if f.maxWindow > 0 && f.Status().Size <= st.Size {
			return nil
		}
	}
}

// Items returns up to limit characters of the current window starting at
// offset. A non-positive limit returns the rest of the window.
func (f *Feed) Items(ctx context.Context, offset, limit int) ([]model.Character, Status, error) {
	st := f.Status()
	if st.Size == 0 {
		return []model.Character{}, st, nil
	}
	if offset < 0 {
		offset = 0
	}
	items, err := f.store.ListCharacters(ctx, store.ListOptions{
		FromID: st.FirstID,
		ToID:   st.LastID,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		return nil, st, fmt.Errorf("listing feed window: %w", err)
	}
	return items, st, nil
}

// IsReady reports whether a REFRESH has completed successfully.
func (f *Feed) IsReady() bool {
	return f.ready.Load()
}

// Status returns the latest feed snapshot.
func (f *Feed) Status() Status {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()

	statusCopy := f.status
	statusCopy.Ready = f.ready.Load()
	if f.status.LastRefreshAt != nil {
		t := *f.status.LastRefreshAt
		statusCopy.LastRefreshAt = &t
	}
	return statusCopy
}

func (f *Feed) load(ctx context.Context, loadType model.LoadType) (reconciler.Result, error) {
	rep, err := f.send(ctx, request{kind: requestLoad, loadType: loadType})
	if err != nil {
		return reconciler.Result{}, err
	}
	return rep.result, rep.err
}

func (f *Feed) send(ctx context.Context, req request) (reply, error) {
	req.reply = make(chan reply, 1)

	select {
	case f.requests <- req:
	case <-f.stopped:
		return reply{}, ErrStopped
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (f *Feed) handle(ctx context.Context, req request) {
	switch req.kind {
	case requestFilter:
		if f.started && f.rec != nil && f.rec.FilterKey() == req.filter.CanonicalKey() {
			if f.inflight != nil && f.inflight.loadType == model.LoadRefresh && f.inflight.generation == f.generation {
				f.inflight.followers = append(f.inflight.followers, req.reply)
				return
			}
			req.reply <- reply{changed: false}
			return
		}
		f.switchFilter(ctx, req.filter, req.reply)
	default:
		if f.inflight != nil {
			if req.kind == requestLoad && f.inflight.loadType == req.loadType {
				f.inflight.waiters = append(f.inflight.waiters, req.reply)
				return
			}
			f.queue = append(f.queue, req)
			return
		}
		f.dispatch(ctx, req)
	}
}

// switchFilter cancels and awaits the in-flight cycle, fails queued requests
// that belonged to the old sequence, then starts a REFRESH for filter.
func (f *Feed) switchFilter(ctx context.Context, filter model.Filter, replyCh chan reply) {
	if f.inflight != nil {
		f.inflight.superseded = true
		f.inflight.cancel()
		<-f.inflight.done
		f.finish()
	}
	for _, queued := range f.queue {
		queued.reply <- reply{err: ErrSuperseded}
	}
	f.queue = nil

	f.started = true
	f.generation++
	f.rec = f.newReconciler(filter)

	f.updateStatus(func(st *Status) {
		st.Filter = f.rec.Filter()
		st.FilterKey = f.rec.FilterKey()
		st.Generation = f.generation
		st.FirstID, st.LastID, st.Size, st.Cached = 0, 0, 0, 0
		st.Refresh = LoadState{State: StateIdle}
		st.Prepend = LoadState{State: StateIdle}
		st.Append = LoadState{State: StateIdle}
	})
	f.log.Info().Str("filter", f.rec.FilterKey()).Uint64("generation", f.generation).Msg("filter applied")

	var waiters []chan reply
	if replyCh != nil {
		waiters = append(waiters, replyCh)
	}
	f.start(ctx, model.LoadRefresh, waiters)
}

// dispatch answers a load or retry request from state, or starts a cycle.
func (f *Feed) dispatch(ctx context.Context, req request) {
	if !f.started {
		if req.kind == requestRetry {
			req.reply <- reply{}
			return
		}
		req.reply <- reply{result: reconciler.Result{LoadType: req.loadType, EndOfPagination: true}}
		return
	}

	st := f.Status()
	loadType := req.loadType

	if req.kind == requestRetry {
		switch {
		case st.Refresh.State == StateError:
			loadType = model.LoadRefresh
		case st.Append.State == StateError:
			loadType = model.LoadAppend
		case st.Prepend.State == StateError:
			loadType = model.LoadPrepend
		default:
			req.reply <- reply{}
			return
		}
		f.start(ctx, loadType, []chan reply{req.reply})
		return
	}

	switch loadType {
	case model.LoadAppend:
		if st.Append.State == StateError {
			req.reply <- reply{err: st.Append.Err}
			return
		}
		if st.Append.EndReached {
			req.reply <- reply{result: reconciler.Result{LoadType: loadType, EndOfPagination: true}}
			return
		}
	case model.LoadPrepend:
		if st.Prepend.State == StateError {
			req.reply <- reply{err: st.Prepend.Err}
			return
		}
		if st.Prepend.EndReached {
			req.reply <- reply{result: reconciler.Result{LoadType: loadType, EndOfPagination: true}}
			return
		}
	}

	f.start(ctx, loadType, []chan reply{req.reply})
}

// start launches a cycle. A REFRESH anchors on the first visible character,
// which is absent right after a filter change.
func (f *Feed) start(ctx context.Context, loadType model.LoadType, waiters []chan reply) {
	st := f.Status()
	window := reconciler.Window{FirstID: st.FirstID, LastID: st.LastID}
	if loadType == model.LoadRefresh {
		window.AnchorID = st.FirstID
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	c := &cycle{
		loadType:   loadType,
		generation: f.generation,
		cancel:     cancel,
		done:       make(chan struct{}),
		waiters:    waiters,
	}
	f.inflight = c

	f.updateStatus(func(st *Status) {
		ls := st.loadState(loadType)
		ls.State = StateLoading
		ls.Err = nil
	})

	rec := f.rec
	go func() {
		defer close(c.done)
		defer cancel()
		c.result, c.err = rec.Load(cycleCtx, loadType, window)
	}()
}

// finish applies the completed in-flight cycle to the feed state and answers
// its waiters.
func (f *Feed) finish() {
	c := f.inflight
	f.inflight = nil
	if c == nil {
		return
	}

	changed := c.loadType == model.LoadRefresh

	if c.superseded {
		f.updateStatus(func(st *Status) {
			st.loadState(c.loadType).State = StateIdle
		})
		c.answer(reply{changed: changed, err: ErrSuperseded})
		return
	}

	if c.err != nil {
		f.updateStatus(func(st *Status) {
			ls := st.loadState(c.loadType)
			ls.State = StateError
			ls.Err = c.err
		})
		c.answer(reply{changed: changed, result: c.result, err: c.err})
		return
	}

	window, err := f.nextWindow(c.loadType, c.result)
	if err != nil {
		f.log.Error().Err(err).Msg("recomputing feed window failed")
	}
	cached, countErr := f.store.CountCharacters(context.Background(), f.rec.Filter())
	if countErr != nil {
		f.log.Warn().Err(countErr).Msg("counting cached characters failed")
	}

	now := time.Now().UTC()
	f.updateStatus(func(st *Status) {
		switch c.loadType {
		case model.LoadRefresh:
			st.LastRefreshAt = &now
			st.Refresh = LoadState{State: StateIdle}
			st.Append = LoadState{State: StateIdle, EndReached: c.result.EndOfPagination}
			st.Prepend = LoadState{State: StateIdle, EndReached: window.FirstID == 0 || !c.result.HasPrevious}
		case model.LoadAppend:
			st.Append = LoadState{State: StateIdle, EndReached: c.result.EndOfPagination}
		case model.LoadPrepend:
			noCall := c.result.Page == 0
			st.Prepend = LoadState{State: StateIdle, EndReached: (noCall && c.result.EndOfPagination) || (!noCall && !c.result.HasPrevious)}
		}
		if window.evictedTail {
			st.Append.EndReached = false
		}
		if window.evictedHead {
			st.Prepend.EndReached = false
		}
		if err == nil {
			st.FirstID, st.LastID, st.Size = window.FirstID, window.LastID, window.Size
		}
		if countErr == nil {
			st.Cached = cached
		}
	})
	if c.loadType == model.LoadRefresh {
		f.ready.Store(true)
	}

	c.answer(reply{changed: changed, result: c.result})
}

// drainQueue starts queued requests until one of them starts a cycle.
func (f *Feed) drainQueue(ctx context.Context) {
	for f.inflight == nil && len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		f.dispatch(ctx, next)
	}
}

func (f *Feed) shutdown(cause error) {
	if f.inflight != nil {
		f.inflight.cancel()
		<-f.inflight.done
		c := f.inflight
		f.inflight = nil
		c.answer(reply{err: cause})
	}
	for _, queued := range f.queue {
		queued.reply <- reply{err: cause}
	}
	f.queue = nil
}

func (f *Feed) updateStatus(update func(*Status)) {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	update(&f.status)
}

func (st *Status) loadState(loadType model.LoadType) *LoadState {
	switch loadType {
	case model.LoadPrepend:
		return &st.Prepend
	case model.LoadAppend:
		return &st.Append
	default:
		return &st.Refresh
	}
}
