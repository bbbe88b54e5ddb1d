package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmamdp/rickandmorty/pkg/types"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func problemJSON(w http.ResponseWriter, status int, kind, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ProblemDetail{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Kind:   kind,
	})
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func characterResource(id int, name string) types.Resource[types.Character] {
	return types.Resource[types.Character]{
		Kind:       types.KindCharacter,
		APIVersion: types.APIVersion,
		Metadata:   types.Metadata{ID: "1"},
		Spec: types.Character{
			ID:     id,
			Name:   name,
			Status: "alive",
			Gender: "male",
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires base url", func(t *testing.T) {
		t.Parallel()
		c, err := New(Config{})
		require.Error(t, err)
		assert.Nil(t, c)
		assert.Contains(t, err.Error(), "BaseURL is required")
	})

	t.Run("rejects invalid base url", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{BaseURL: "not a url"})
		require.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, Config{BaseURL: " http://example.invalid/ "})
		assert.Equal(t, "http://example.invalid", c.baseURL)
		assert.Equal(t, defaultTimeout, c.cfg.Timeout)
		assert.Equal(t, defaultMaxRetries, c.cfg.MaxRetries)
	})

	t.Run("uses custom values", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, Config{
			BaseURL:    "http://example.invalid",
			Timeout:    5 * time.Second,
			MaxRetries: 1,
		})
		assert.Equal(t, 5*time.Second, c.cfg.Timeout)
		assert.Equal(t, 1, c.cfg.MaxRetries)
		assert.Equal(t, 5*time.Second, c.http.Timeout)
	})
}

func TestBuildPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, charactersPath, buildListCharactersPath(ListCharactersOptions{}))
	assert.Equal(t,
		charactersPath+"?limit=10&name=rick&offset=20&status=alive",
		buildListCharactersPath(ListCharactersOptions{
			Filter: types.Filter{Name: " rick ", Status: "alive", Species: "  "},
			Limit:  10,
			Offset: 20,
		}),
	)
	assert.Equal(t, searchPath, buildSearchPath(SearchOptions{Page: 1}))
	assert.Equal(t,
		searchPath+"?gender=female&page=3&type=parasite",
		buildSearchPath(SearchOptions{Filter: types.Filter{Gender: "female", Type: "parasite"}, Page: 3}),
	)
}

func TestListCharacters(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, charactersPath, r.URL.Path)
		assert.Equal(t, "rick", r.URL.Query().Get("name"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		respondJSON(w, http.StatusOK, types.Resource[types.CharacterList]{
			Kind:       types.KindCharacterList,
			APIVersion: types.APIVersion,
			Metadata:   types.Metadata{ID: "rick||||"},
			Spec: types.CharacterList{
				Items: []types.Character{characterResource(1, "Rick Sanchez").Spec},
				Limit: 5,
				Feed:  types.FeedStatus{Ready: true, Size: 20},
			},
		})
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, Config{BaseURL: srv.URL})
	result, err := c.ListCharacters(context.Background(), ListCharactersOptions{
		Filter: types.Filter{Name: "rick"},
		Limit:  5,
	})
	require.NoError(t, err)
	assert.Equal(t, "rick||||", result.Metadata.ID)
	require.Len(t, result.Spec.Items, 1)
	assert.Equal(t, "Rick Sanchez", result.Spec.Items[0].Name)
	assert.Equal(t, 20, result.Spec.Feed.Size)
}

func TestGetCharacter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case charactersPath + "/1":
			respondJSON(w, http.StatusOK, characterResource(1, "Rick Sanchez"))
		default:
			problemJSON(w, http.StatusNotFound, "dataNotFound", "This character is not available offline.")
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, Config{BaseURL: srv.URL})

	result, err := c.GetCharacter(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Rick Sanchez", result.Spec.Name)

	_, err = c.GetCharacter(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "dataNotFound", apiErr.Problem.Kind)
	assert.Contains(t, err.Error(), "getting character 999")

	_, err = c.GetCharacter(context.Background(), 0)
	require.Error(t, err)
}

func TestRetriesTransientReads(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			problemJSON(w, http.StatusServiceUnavailable, "network", "upstream unavailable")
			return
		}
		respondJSON(w, http.StatusOK, types.Resource[types.FeedStatus]{Kind: types.KindFeedStatus})
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, Config{BaseURL: srv.URL, MaxRetries: 3})
	result, err := c.FeedStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.KindFeedStatus, result.Kind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		problemJSON(w, http.StatusBadRequest, "", "invalid status")
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, Config{BaseURL: srv.URL, MaxRetries: 3})
	_, err := c.Search(context.Background(), SearchOptions{Filter: types.Filter{Status: "zombie"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "invalid status")
}

func TestLoadActionsAreNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		problemJSON(w, http.StatusBadGateway, "http", "The catalog service is having problems. Try again later.")
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, Config{BaseURL: srv.URL, MaxRetries: 3})
	_, err := c.Append(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "appending to feed")
}

func TestFeedActions(t *testing.T) {
	t.Parallel()

	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			respondJSON(w, http.StatusOK, types.Resource[types.FeedStatus]{Kind: types.KindFeedStatus})
			return
		}
		respondJSON(w, http.StatusOK, types.Resource[types.LoadResult]{
			Kind: types.KindLoadResult,
			Spec: types.LoadResult{LoadType: "append", Count: 20},
		})
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, Config{BaseURL: srv.URL})
	ctx := context.Background()

	_, err := c.Refresh(ctx)
	require.NoError(t, err)
	_, err = c.Append(ctx)
	require.NoError(t, err)
	_, err = c.Prepend(ctx)
	require.NoError(t, err)
	result, err := c.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Spec.Count)
	status, err := c.ClearFilter(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.KindFeedStatus, status.Kind)

	assert.Equal(t, []string{
		"POST " + feedRefreshPath,
		"POST " + feedAppendPath,
		"POST " + feedPrependPath,
		"POST " + feedRetryPath,
		"DELETE " + feedFilterPath,
	}, seen)
}

func TestNonJSONErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, Config{BaseURL: srv.URL})
	_, err := c.FeedStatus(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Problem.Detail)
}
