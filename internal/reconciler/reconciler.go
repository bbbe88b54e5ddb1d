// Package reconciler runs paged-list reconcile cycles between the remote
// catalog API and the local cache.
//
// A Reconciler is bound to one filter. Each Load call resolves which remote
// page to fetch for the requested load type, fetches it, and persists the
// characters together with their pagination keys in one cache transaction,
// or reports end-of-pagination without touching the network.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/emmamdp/rickandmorty/internal/apperr"
	"github.com/emmamdp/rickandmorty/internal/events"
	"github.com/emmamdp/rickandmorty/internal/metrics"
	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/internal/store"
)

const publishTimeout = 5 * time.Second

// Source fetches one remote page.
type Source interface {
	FetchPage(ctx context.Context, page int, filter model.Filter) (model.Page, error)
}

// Window describes the currently materialized list by character id. Zero
// means absent.
type Window struct {
	FirstID  int
	LastID   int
	AnchorID int
}

// Result reports the outcome of one successful cycle.
type Result struct {
	LoadType        model.LoadType
	EndOfPagination bool
	// Page is the remote page fetched, or 0 when no remote call was made.
	Page int
	// FirstID and LastID bound the fetched characters; 0 when none.
	FirstID int
	LastID  int
	Count   int
	// HasPrevious reports that the fetched page has a previous page.
	HasPrevious bool
}

// LoadError is a failed cycle. Err is always classified.
type LoadError struct {
	LoadType model.LoadType
	Page     int
	Err      *apperr.Error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s load of page %d failed: %v", e.LoadType, e.Page, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.log = logger.With().Str("component", "reconciler").Logger()
	}
}

// WithPublisher sets the event publisher for synced events.
func WithPublisher(p events.Publisher) Option {
	return func(r *Reconciler) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithMetrics records cycle counts and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithClock overrides the time source used for pagination key timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// Reconciler runs reconcile cycles for a single filter.
type Reconciler struct {
	store     store.Store
	source    Source
	filter    model.Filter
	filterKey string

	publisher events.Publisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time

	runMu sync.Mutex
}

// Factory builds a Reconciler bound to filter.
type Factory func(filter model.Filter) *Reconciler

// NewFactory returns a Factory sharing st, src and opts across filters.
func NewFactory(st store.Store, src Source, opts ...Option) Factory {
	return func(filter model.Filter) *Reconciler {
		return New(st, src, filter, opts...)
	}
}

// New creates a reconciler for filter.
func New(st store.Store, src Source, filter model.Filter, opts ...Option) *Reconciler {
	normalized := filter.Normalize()
	r := &Reconciler{
		store:     st,
		source:    src,
		filter:    normalized,
		filterKey: normalized.CanonicalKey(),
		publisher: events.NoopPublisher{},
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Filter returns the normalized filter this reconciler serves.
func (r *Reconciler) Filter() model.Filter {
	return r.filter
}

// FilterKey returns the canonical key of the filter.
func (r *Reconciler) FilterKey() string {
	return r.filterKey
}

// Load runs one cycle. Cycles on the same reconciler never overlap. A canceled
// ctx returns the context error and leaves the cache untouched.
func (r *Reconciler) Load(ctx context.Context, loadType model.LoadType, window Window) (Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	startedAt := time.Now()
	result, err := r.load(ctx, loadType, window)
	r.metrics.ObserveCycle(loadType.String(), cycleOutcome(result, err), time.Since(startedAt))

	logEvent := r.log.Debug()
	if err != nil && !isContextError(err) {
		logEvent = r.log.Warn().Err(err)
	}
	logEvent.
		Str("load_type", loadType.String()).
		Str("filter", r.filterKey).
		Int("page", result.Page).
		Int("count", result.Count).
		Bool("end_of_pagination", result.EndOfPagination).
		Msg("reconcile cycle finished")

	return result, err
}

func (r *Reconciler) load(ctx context.Context, loadType model.LoadType, window Window) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{LoadType: loadType}, err
	}

	page, end, err := r.resolvePage(ctx, loadType, window)
	if err != nil {
		return Result{LoadType: loadType}, err
	}
	if end {
		return Result{LoadType: loadType, EndOfPagination: true}, nil
	}

	fetched, err := r.source.FetchPage(ctx, page, r.filter)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{LoadType: loadType, Page: page}, ctxErr
		}
		return Result{LoadType: loadType, Page: page}, &LoadError{LoadType: loadType, Page: page, Err: apperr.Classify(err)}
	}

	items := sortedCharacters(fetched.Characters)
	endOfPagination := len(items) == 0 || fetched.NextPage == nil || page >= fetched.TotalPages
	keys := r.paginationKeys(items, fetched, endOfPagination)

	err = r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if loadType == model.LoadRefresh {
			if err := tx.ClearPaginationKeys(ctx); err != nil {
				return err
			}
			if err := tx.ClearCharacters(ctx); err != nil {
				return err
			}
		}
		if err := tx.UpsertCharacters(ctx, items); err != nil {
			return err
		}
		return tx.UpsertPaginationKeys(ctx, keys)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{LoadType: loadType, Page: page}, ctxErr
		}
		return Result{LoadType: loadType, Page: page}, &LoadError{
			LoadType: loadType,
			Page:     page,
			Err:      apperr.Classify(fmt.Errorf("persisting page %d: %w", page, err)),
		}
	}

	result := Result{
		LoadType:        loadType,
		EndOfPagination: endOfPagination,
		Page:            page,
		Count:           len(items),
		HasPrevious:     fetched.PreviousPage != nil,
	}
	if len(items) > 0 {
		result.FirstID = items[0].ID
		result.LastID = items[len(items)-1].ID
	}

	r.publishSynced(ctx, result)
	return result, nil
}

// resolvePage picks the remote page for loadType. end reports that no remote
// call is needed because the window is already at the boundary.
func (r *Reconciler) resolvePage(ctx context.Context, loadType model.LoadType, window Window) (page int, end bool, err error) {
	switch loadType {
	case model.LoadRefresh:
		if window.AnchorID == 0 {
			return 1, false, nil
		}
		key, found, err := r.lookupKey(ctx, loadType, window.AnchorID)
		if err != nil || !found {
			return 1, false, err
		}
		return key.Page(), false, nil

	case model.LoadPrepend:
		if window.FirstID == 0 {
			return 0, true, nil
		}
		key, found, err := r.lookupKey(ctx, loadType, window.FirstID)
		if err != nil {
			return 0, false, err
		}
		if !found || key.PreviousPage == nil {
			return 0, true, nil
		}
		return *key.PreviousPage, false, nil

	case model.LoadAppend:
		if window.LastID == 0 {
			return 0, true, nil
		}
		key, found, err := r.lookupKey(ctx, loadType, window.LastID)
		if err != nil {
			return 0, false, err
		}
		if !found || key.NextPage == nil {
			return 0, true, nil
		}
		return *key.NextPage, false, nil

	default:
		return 0, false, &LoadError{
			LoadType: loadType,
			Err:      apperr.Classify(fmt.Errorf("unknown load type %d", int(loadType))),
		}
	}
}

func (r *Reconciler) lookupKey(ctx context.Context, loadType model.LoadType, characterID int) (model.PaginationKey, bool, error) {
	key, err := r.store.GetPaginationKey(ctx, characterID)
	if errors.Is(err, store.ErrNotFound) {
		return model.PaginationKey{}, false, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.PaginationKey{}, false, ctxErr
		}
		return model.PaginationKey{}, false, &LoadError{
			LoadType: loadType,
			Err:      apperr.Classify(fmt.Errorf("reading pagination key %d: %w", characterID, err)),
		}
	}
	return key, true, nil
}

func (r *Reconciler) paginationKeys(items []model.Character, page model.Page, endOfPagination bool) []model.PaginationKey {
	var next *int
	if !endOfPagination && page.NextPage != nil {
		next = model.IntPtr(*page.NextPage)
	}
	var prev *int
	if page.PreviousPage != nil {
		prev = model.IntPtr(*page.PreviousPage)
	}

	updatedAt := r.now().UTC()
	keys := make([]model.PaginationKey, 0, len(items))
	for _, item := range items {
		keys = append(keys, model.PaginationKey{
			CharacterID:  item.ID,
			PreviousPage: prev,
			NextPage:     next,
			UpdatedAt:    updatedAt,
		})
	}
	return keys
}

func (r *Reconciler) publishSynced(ctx context.Context, result Result) {
	event, err := events.NewSyncedEvent(events.SyncedData{
		LoadType:        result.LoadType.String(),
		FilterKey:       r.filterKey,
		Page:            result.Page,
		Count:           result.Count,
		EndOfPagination: result.EndOfPagination,
	}, r.now())
	if err != nil {
		r.log.Warn().Err(err).Msg("building synced event failed")
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(publishCtx, event); err != nil {
		r.log.Warn().Err(err).Str("event_id", event.ID).Msg("publishing synced event failed")
	}
}

// sortedCharacters orders by id and drops duplicate ids, keeping the last.
func sortedCharacters(items []model.Character) []model.Character {
	byID := make(map[int]model.Character, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	out := make([]model.Character, 0, len(byID))
	for _, item := range byID {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cycleOutcome(result Result, err error) string {
	switch {
	case isContextError(err):
		return metrics.ResultCanceled
	case err != nil:
		return metrics.ResultFailure
	case result.EndOfPagination:
		return metrics.ResultEnd
	default:
		return metrics.ResultSuccess
	}
}

// isContextError reports cancellation of the cycle itself. Classified
// upstream timeouts are failures, not cancellations.
func isContextError(err error) bool {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
