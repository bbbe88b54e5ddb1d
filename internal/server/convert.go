package server

import (
	"errors"

	"github.com/emmamdp/rickandmorty/internal/apperr"
	"github.com/emmamdp/rickandmorty/internal/feed"
	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/internal/reconciler"
	"github.com/emmamdp/rickandmorty/pkg/types"
)

func toCharacter(c model.Character) types.Character {
	episodes := c.EpisodeURLs
	if episodes == nil {
		episodes = []string{}
	}
	return types.Character{
		ID:       c.ID,
		Name:     c.Name,
		Status:   string(c.Status),
		Species:  c.Species,
		Type:     c.Type,
		Gender:   string(c.Gender),
		Origin:   c.OriginName,
		Location: c.LocationName,
		Image:    c.ImageURL,
		Episodes: episodes,
		Created:  c.Created,
	}
}

func toCharacters(items []model.Character) []types.Character {
	out := make([]types.Character, 0, len(items))
	for _, item := range items {
		out = append(out, toCharacter(item))
	}
	return out
}

func toFilter(f model.Filter) types.Filter {
	return types.Filter{
		Name:    f.Name,
		Status:  f.Status,
		Species: f.Species,
		Type:    f.Type,
		Gender:  f.Gender,
	}
}

func toLoadFailure(err error) *types.LoadFailure {
	if err == nil {
		return nil
	}
	classified := apperr.Classify(err)
	failure := &types.LoadFailure{
		Kind:        string(classified.Kind),
		Cause:       string(classified.Cause),
		StatusCode:  classified.StatusCode,
		Message:     classified.Error(),
		UserMessage: apperr.UserMessage(classified),
	}
	var loadErr *reconciler.LoadError
	if errors.As(err, &loadErr) {
		failure.LoadType = loadErr.LoadType.String()
		failure.Page = loadErr.Page
	}
	return failure
}

func toLoadState(st feed.LoadState) types.LoadState {
	return types.LoadState{
		State:      string(st.State),
		EndReached: st.EndReached,
		Error:      toLoadFailure(st.Err),
	}
}

func toFeedStatus(st feed.Status) types.FeedStatus {
	return types.FeedStatus{
		Ready:         st.Ready,
		Filter:        toFilter(st.Filter),
		FilterKey:     st.FilterKey,
		Generation:    st.Generation,
		Refresh:       toLoadState(st.Refresh),
		Prepend:       toLoadState(st.Prepend),
		Append:        toLoadState(st.Append),
		FirstID:       st.FirstID,
		LastID:        st.LastID,
		Size:          st.Size,
		Cached:        st.Cached,
		LastRefreshAt: st.LastRefreshAt,
	}
}

func toLoadResult(result reconciler.Result) types.LoadResult {
	return types.LoadResult{
		LoadType:        result.LoadType.String(),
		EndOfPagination: result.EndOfPagination,
		Page:            result.Page,
		FirstID:         result.FirstID,
		LastID:          result.LastID,
		Count:           result.Count,
	}
}

func toSearchResult(page int, p model.Page) types.SearchResult {
	return types.SearchResult{
		Page:         page,
		Count:        p.Count,
		TotalPages:   p.TotalPages,
		NextPage:     p.NextPage,
		PreviousPage: p.PreviousPage,
		Items:        toCharacters(p.Characters),
	}
}

func filterID(key string) string {
	if key == "" {
		return "all"
	}
	return key
}
