package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/internal/reconciler"
	"github.com/emmamdp/rickandmorty/pkg/types"
)

func (s *Server) handleFeedStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondFeedStatus(w)
}

func (s *Server) handleFeedLoad(loadType model.LoadType) http.HandlerFunc {
	var load func(ctx context.Context) (reconciler.Result, error)
	switch loadType {
	case model.LoadRefresh:
		load = s.catalog.Refresh
	case model.LoadPrepend:
		load = s.catalog.Prepend
	default:
		load = s.catalog.Append
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
		defer cancel()

		result, err := load(ctx)
		if err != nil {
			respondError(w, r, err)
			return
		}
		s.respondLoadResult(w, result)
	}
}

func (s *Server) handleFeedRetry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()

	result, err := s.catalog.Retry(ctx)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.respondLoadResult(w, result)
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()

	// A failed refresh after clearing still leaves the feed unfiltered; the
	// status carries the failure.
	if _, err := s.catalog.ClearFilter(ctx); err != nil && !errors.As(err, new(*reconciler.LoadError)) {
		respondError(w, r, err)
		return
	}
	s.respondFeedStatus(w)
}

func (s *Server) respondFeedStatus(w http.ResponseWriter) {
	status := s.catalog.FeedStatus()
	respondJSON(w, http.StatusOK, types.Resource[types.FeedStatus]{
		Kind:       types.KindFeedStatus,
		APIVersion: types.APIVersion,
		Metadata: types.Metadata{
			ID:        filterID(status.FilterKey),
			UpdatedAt: status.LastRefreshAt,
		},
		Spec: toFeedStatus(status),
	})
}

func (s *Server) respondLoadResult(w http.ResponseWriter, result reconciler.Result) {
	status := s.catalog.FeedStatus()
	respondJSON(w, http.StatusOK, types.Resource[types.LoadResult]{
		Kind:       types.KindLoadResult,
		APIVersion: types.APIVersion,
		Metadata:   types.Metadata{ID: filterID(status.FilterKey)},
		Spec:       toLoadResult(result),
	})
}
