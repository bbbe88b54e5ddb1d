package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/pkg/types"
)

const maxListLimit = 100

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseIntParam(r, "limit", 0, 1, maxListLimit)
	if err != nil {
		respondProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseIntParam(r, "offset", 0, 0, -1)
	if err != nil {
		respondProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.catalog.ListCharacters(r.Context(), &filter, offset, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, types.Resource[types.CharacterList]{
		Kind:       types.KindCharacterList,
		APIVersion: types.APIVersion,
		Metadata: types.Metadata{
			ID:        filterID(result.Status.FilterKey),
			UpdatedAt: result.Status.LastRefreshAt,
		},
		Spec: types.CharacterList{
			Items:     toCharacters(result.Items),
			Offset:    result.Offset,
			Limit:     result.Limit,
			Feed:      toFeedStatus(result.Status),
			LoadError: toLoadFailure(result.LoadErr),
		},
	})
}

func (s *Server) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil || id < 1 {
		respondProblem(w, r, http.StatusBadRequest, "character id must be a positive integer")
		return
	}

	item, err := s.catalog.GetCharacter(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, types.Resource[types.Character]{
		Kind:       types.KindCharacter,
		APIVersion: types.APIVersion,
		Metadata:   types.Metadata{ID: strconv.Itoa(item.ID)},
		Spec:       toCharacter(item),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := parseIntParam(r, "page", 1, 1, -1)
	if err != nil {
		respondProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.catalog.Search(r.Context(), filter, page)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, types.Resource[types.SearchResult]{
		Kind:       types.KindSearchResult,
		APIVersion: types.APIVersion,
		Metadata:   types.Metadata{ID: fmt.Sprintf("%s@%d", filterID(filter.CanonicalKey()), page)},
		Spec:       toSearchResult(page, result),
	})
}

func parseFilter(r *http.Request) (model.Filter, error) {
	q := r.URL.Query()
	filter := model.Filter{
		Name:    q.Get("name"),
		Status:  q.Get("status"),
		Species: q.Get("species"),
		Type:    q.Get("type"),
		Gender:  q.Get("gender"),
	}
	n := filter.Normalize()
	if n.Status != "" && model.ParseStatus(n.Status) != model.Status(n.Status) {
		return model.Filter{}, fmt.Errorf("invalid status %q: want alive, dead or unknown", filter.Status)
	}
	if n.Gender != "" && model.ParseGender(n.Gender) != model.Gender(n.Gender) {
		return model.Filter{}, fmt.Errorf("invalid gender %q: want female, male, genderless or unknown", filter.Gender)
	}
	return filter, nil
}

// parseIntParam reads an optional integer query parameter. A negative maxValue means no
// upper bound.
func parseIntParam(r *http.Request, key string, fallback, minValue, maxValue int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if v < minValue || (maxValue >= 0 && v > maxValue) {
		if maxValue >= 0 {
			return 0, fmt.Errorf("%s must be between %d and %d", key, minValue, maxValue)
		}
		return 0, fmt.Errorf("%s must be at least %d", key, minValue)
	}
	return v, nil
}
