// Package catalog implements the catalog use cases on top of the feed, the
// local cache and the remote API.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/emmamdp/rickandmorty/internal/apperr"
	"github.com/emmamdp/rickandmorty/internal/feed"
	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/internal/reconciler"
	"github.com/emmamdp/rickandmorty/internal/store"
)

// Feed is the list presentation adapter used by the service.
type Feed interface {
	ApplyFilter(ctx context.Context, filter *model.Filter) (bool, error)
	ClearFilter(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) (reconciler.Result, error)
	Append(ctx context.Context) (reconciler.Result, error)
	Prepend(ctx context.Context) (reconciler.Result, error)
	Retry(ctx context.Context) (reconciler.Result, error)
	Fill(ctx context.Context, want int) error
	Items(ctx context.Context, offset, limit int) ([]model.Character, feed.Status, error)
	Status() feed.Status
	IsReady() bool
}

// Remote is the subset of the remote client used for uncached lookups.
type Remote interface {
	FetchPage(ctx context.Context, page int, filter model.Filter) (model.Page, error)
	FetchCharacter(ctx context.Context, id int) (model.Character, error)
}

// Config holds service settings.
type Config struct {
	// DefaultLimit applies when a list request has no limit.
	DefaultLimit int
	// DetailRemoteFallback fetches a character remotely on a cache miss.
	DetailRemoteFallback bool
}

// ListResult is one page of the feed window.
type ListResult struct {
	Items  []model.Character
	Offset int
	Limit  int
	Status feed.Status
	// LoadErr is the failed load behind a partial result, if any.
	LoadErr error
}

// Service implements the catalog use cases.
type Service struct {
	feed   Feed
	store  store.Store
	remote Remote
	cfg    Config
	log    zerolog.Logger
}

// New creates a catalog service.
func New(f Feed, st store.Store, remote Remote, cfg Config, logger zerolog.Logger) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	return &Service{
		feed:   f,
		store:  st,
		remote: remote,
		cfg:    cfg,
		log:    logger.With().Str("component", "catalog").Logger(),
	}
}

// ListCharacters applies filter to the feed, loads pages until offset+limit
// characters are in the window, and returns that slice of the window.
//
// A failed load with nothing to show is returned as an error. A failed append
// with content already loaded returns the content and reports the failure in
// LoadErr.
func (s *Service) ListCharacters(ctx context.Context, filter *model.Filter, offset, limit int) (ListResult, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	_, applyErr := s.feed.ApplyFilter(ctx, filter)
	if applyErr != nil && !isLoadError(applyErr) {
		return ListResult{}, fmt.Errorf("applying filter: %w", applyErr)
	}

	var fillErr error
	if applyErr == nil {
		fillErr = s.feed.Fill(ctx, offset+limit)
		if fillErr != nil && !isLoadError(fillErr) {
			return ListResult{}, fmt.Errorf("loading characters: %w", fillErr)
		}
	}

	items, status, err := s.feed.Items(ctx, offset, limit)
	if err != nil {
		return ListResult{}, err
	}

	loadErr := applyErr
	if loadErr == nil {
		loadErr = fillErr
	}
	if loadErr == nil && status.Refresh.State == feed.StateError {
		loadErr = status.Refresh.Err
	}
	if loadErr != nil && status.Size == 0 {
		return ListResult{}, loadErr
	}

	return ListResult{
		Items:   items,
		Offset:  offset,
		Limit:   limit,
		Status:  status,
		LoadErr: loadErr,
	}, nil
}

// GetCharacter returns a character from the cache. A miss is dataNotFound
// unless remote fallback is enabled, in which case the remote result or its
// classified error is returned.
func (s *Service) GetCharacter(ctx context.Context, id int) (model.Character, error) {
	item, err := s.store.GetCharacter(ctx, id)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Character{}, fmt.Errorf("reading character %d from cache: %w", id, err)
	}
	if !s.cfg.DetailRemoteFallback || s.remote == nil {
		return model.Character{}, apperr.DataNotFound(fmt.Sprintf("character %d", id))
	}

	s.log.Debug().Int("id", id).Msg("cache miss, fetching character remotely")
	item, err = s.remote.FetchCharacter(ctx, id)
	if err != nil {
		return model.Character{}, err
	}
	return item, nil
}

// Search queries the remote API directly for one page. Results are not
// cached and do not affect the feed.
func (s *Service) Search(ctx context.Context, filter model.Filter, page int) (model.Page, error) {
	if page < 1 {
		page = 1
	}
	result, err := s.remote.FetchPage(ctx, page, filter.Normalize())
	if err != nil {
		return model.Page{}, err
	}
	return result, nil
}

// FeedStatus returns the feed snapshot.
func (s *Service) FeedStatus() feed.Status {
	return s.feed.Status()
}

// Refresh reloads the feed.
func (s *Service) Refresh(ctx context.Context) (reconciler.Result, error) {
	return s.feed.Refresh(ctx)
}

// Append loads the next page into the feed.
func (s *Service) Append(ctx context.Context) (reconciler.Result, error) {
	return s.feed.Append(ctx)
}

// Prepend loads the previous page into the feed.
func (s *Service) Prepend(ctx context.Context) (reconciler.Result, error) {
	return s.feed.Prepend(ctx)
}

// Retry reruns the failed feed load.
func (s *Service) Retry(ctx context.Context) (reconciler.Result, error) {
	return s.feed.Retry(ctx)
}

// ClearFilter resets the feed to the unfiltered catalog.
func (s *Service) ClearFilter(ctx context.Context) (bool, error) {
	return s.feed.ClearFilter(ctx)
}

// Ready reports whether the cache is reachable and the feed has refreshed.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("pinging cache: %w", err)
	}
	if !s.feed.IsReady() {
		return errors.New("feed has not completed a refresh")
	}
	return nil
}

func isLoadError(err error) bool {
	var loadErr *reconciler.LoadError
	return errors.As(err, &loadErr)
}
