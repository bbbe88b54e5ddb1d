package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/emmamdp/rickandmorty/internal/apperr"
	"github.com/emmamdp/rickandmorty/internal/feed"
	"github.com/emmamdp/rickandmorty/pkg/types"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblem(w, types.ProblemDetail{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	})
}

func writeProblem(w http.ResponseWriter, problem types.ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	if problem.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(problem.RetryAfter))
	}
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// respondError maps a use-case failure onto a problem response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, feed.ErrSuperseded):
		respondProblem(w, r, http.StatusConflict, "the feed filter changed while the request was running")
		return
	case errors.Is(err, feed.ErrStopped):
		respondProblem(w, r, http.StatusServiceUnavailable, "the feed is shutting down")
		return
	case errors.Is(err, context.DeadlineExceeded):
		respondProblem(w, r, http.StatusGatewayTimeout, "request timed out")
		return
	case errors.Is(err, context.Canceled):
		respondProblem(w, r, http.StatusServiceUnavailable, "request canceled")
		return
	}

	classified := apperr.Classify(err)
	status := statusForError(classified)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
	}

	problem := types.ProblemDetail{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   apperr.UserMessage(classified),
		Instance: r.URL.Path,
		Kind:     string(classified.Kind),
		Cause:    string(classified.Cause),
	}
	if classified.RetryAfter > 0 {
		problem.RetryAfter = int(math.Ceil(classified.RetryAfter.Seconds()))
	}
	writeProblem(w, problem)
}

func statusForError(err *apperr.Error) int {
	switch err.Kind {
	case apperr.KindDataNotFound:
		return http.StatusNotFound
	case apperr.KindHTTP:
		if err.StatusCode == http.StatusTooManyRequests {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case apperr.KindSerialization:
		return http.StatusBadGateway
	case apperr.KindNetwork:
		if err.Cause == apperr.CauseTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
