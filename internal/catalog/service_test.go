package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmamdp/rickandmorty/internal/apperr"
	"github.com/emmamdp/rickandmorty/internal/feed"
	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/internal/reconciler"
	"github.com/emmamdp/rickandmorty/internal/store"
)

type mockFeed struct {
	applyFilterFn func(ctx context.Context, filter *model.Filter) (bool, error)
	clearFilterFn func(ctx context.Context) (bool, error)
	loadFn        func(ctx context.Context, loadType model.LoadType) (reconciler.Result, error)
	retryFn       func(ctx context.Context) (reconciler.Result, error)
	fillFn        func(ctx context.Context, want int) error
	itemsFn       func(ctx context.Context, offset, limit int) ([]model.Character, feed.Status, error)
	statusFn      func() feed.Status
	isReadyFn     func() bool
}

func (m *mockFeed) ApplyFilter(ctx context.Context, filter *model.Filter) (bool, error) {
	if m.applyFilterFn != nil {
		return m.applyFilterFn(ctx, filter)
	}
	return false, nil
}

func (m *mockFeed) ClearFilter(ctx context.Context) (bool, error) {
	if m.clearFilterFn != nil {
		return m.clearFilterFn(ctx)
	}
	return false, nil
}

func (m *mockFeed) load(ctx context.Context, loadType model.LoadType) (reconciler.Result, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, loadType)
	}
	return reconciler.Result{LoadType: loadType}, nil
}

func (m *mockFeed) Refresh(ctx context.Context) (reconciler.Result, error) {
	return m.load(ctx, model.LoadRefresh)
}

func (m *mockFeed) Append(ctx context.Context) (reconciler.Result, error) {
	return m.load(ctx, model.LoadAppend)
}

func (m *mockFeed) Prepend(ctx context.Context) (reconciler.Result, error) {
	return m.load(ctx, model.LoadPrepend)
}

func (m *mockFeed) Retry(ctx context.Context) (reconciler.Result, error) {
	if m.retryFn != nil {
		return m.retryFn(ctx)
	}
	return reconciler.Result{}, nil
}

func (m *mockFeed) Fill(ctx context.Context, want int) error {
	if m.fillFn != nil {
		return m.fillFn(ctx, want)
	}
	return nil
}

func (m *mockFeed) Items(ctx context.Context, offset, limit int) ([]model.Character, feed.Status, error) {
	if m.itemsFn != nil {
		return m.itemsFn(ctx, offset, limit)
	}
	return nil, feed.Status{}, nil
}

func (m *mockFeed) Status() feed.Status {
	if m.statusFn != nil {
		return m.statusFn()
	}
	return feed.Status{}
}

func (m *mockFeed) IsReady() bool {
	if m.isReadyFn != nil {
		return m.isReadyFn()
	}
	return true
}

type mockStore struct {
	pingFn         func(ctx context.Context) error
	getCharacterFn func(ctx context.Context, id int) (model.Character, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return errors.New("not supported")
}

func (m *mockStore) GetCharacter(ctx context.Context, id int) (model.Character, error) {
	if m.getCharacterFn != nil {
		return m.getCharacterFn(ctx, id)
	}
	return model.Character{}, store.ErrNotFound
}

func (m *mockStore) ListCharacters(ctx context.Context, opts store.ListOptions) ([]model.Character, error) {
	return nil, nil
}

func (m *mockStore) CountCharacters(ctx context.Context, filter model.Filter) (int, error) {
	return 0, nil
}

func (m *mockStore) GetPaginationKey(ctx context.Context, characterID int) (model.PaginationKey, error) {
	return model.PaginationKey{}, store.ErrNotFound
}

type mockRemote struct {
	fetchPageFn      func(ctx context.Context, page int, filter model.Filter) (model.Page, error)
	fetchCharacterFn func(ctx context.Context, id int) (model.Character, error)
}

func (m *mockRemote) FetchPage(ctx context.Context, page int, filter model.Filter) (model.Page, error) {
	if m.fetchPageFn != nil {
		return m.fetchPageFn(ctx, page, filter)
	}
	return model.Page{}, nil
}

func (m *mockRemote) FetchCharacter(ctx context.Context, id int) (model.Character, error) {
	if m.fetchCharacterFn != nil {
		return m.fetchCharacterFn(ctx, id)
	}
	return model.Character{}, nil
}

func characters(from, to int) []model.Character {
	out := make([]model.Character, 0, to-from+1)
	for id := from; id <= to; id++ {
		out = append(out, model.Character{ID: id, Name: "Rick"})
	}
	return out
}

func loadErr(loadType model.LoadType, kind apperr.Kind) *reconciler.LoadError {
	return &reconciler.LoadError{
		LoadType: loadType,
		Page:     2,
		Err:      &apperr.Error{Kind: kind, Cause: apperr.CauseUnreachable, Message: "network unreachable"},
	}
}

func TestListCharacters(t *testing.T) {
	t.Run("fills the window and returns the requested slice", func(t *testing.T) {
		var gotFilter *model.Filter
		var gotWant int
		f := &mockFeed{
			applyFilterFn: func(_ context.Context, filter *model.Filter) (bool, error) {
				gotFilter = filter
				return true, nil
			},
			fillFn: func(_ context.Context, want int) error {
				gotWant = want
				return nil
			},
			itemsFn: func(_ context.Context, offset, limit int) ([]model.Character, feed.Status, error) {
				return characters(offset+1, offset+limit), feed.Status{Size: 25}, nil
			},
		}
		svc := New(f, &mockStore{}, &mockRemote{}, Config{}, zerolog.Nop())

		filter := &model.Filter{Name: "Rick"}
		result, err := svc.ListCharacters(context.Background(), filter, 18, 4)
		require.NoError(t, err)
		assert.Same(t, filter, gotFilter)
		assert.Equal(t, 22, gotWant)
		assert.Equal(t, []int{19, 20, 21, 22}, model.CharacterIDs(result.Items))
		assert.Equal(t, 18, result.Offset)
		assert.Equal(t, 4, result.Limit)
		assert.NoError(t, result.LoadErr)
	})

	t.Run("applies default limit and clamps offset", func(t *testing.T) {
		var gotOffset, gotLimit int
		f := &mockFeed{
			itemsFn: func(_ context.Context, offset, limit int) ([]model.Character, feed.Status, error) {
				gotOffset, gotLimit = offset, limit
				return nil, feed.Status{}, nil
			},
		}
		svc := New(f, &mockStore{}, &mockRemote{}, Config{DefaultLimit: 10}, zerolog.Nop())

		result, err := svc.ListCharacters(context.Background(), nil, -5, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, gotOffset)
		assert.Equal(t, 10, gotLimit)
		assert.Equal(t, 10, result.Limit)
	})

	t.Run("refresh failure on empty list is an error", func(t *testing.T) {
		failure := loadErr(model.LoadRefresh, apperr.KindNetwork)
		fillCalled := false
		f := &mockFeed{
			applyFilterFn: func(context.Context, *model.Filter) (bool, error) {
				return true, failure
			},
			fillFn: func(context.Context, int) error {
				fillCalled = true
				return nil
			},
			itemsFn: func(context.Context, int, int) ([]model.Character, feed.Status, error) {
				return nil, feed.Status{Refresh: feed.LoadState{State: feed.StateError, Err: failure}}, nil
			},
		}
		svc := New(f, &mockStore{}, &mockRemote{}, Config{}, zerolog.Nop())

		_, err := svc.ListCharacters(context.Background(), nil, 0, 20)
		require.Error(t, err)
		assert.False(t, fillCalled)
		var le *reconciler.LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
	})

	t.Run("refresh failure reported by status on empty list is an error", func(t *testing.T) {
		failure := loadErr(model.LoadRefresh, apperr.KindHTTP)
		f := &mockFeed{
			itemsFn: func(context.Context, int, int) ([]model.Character, feed.Status, error) {
				return nil, feed.Status{Refresh: feed.LoadState{State: feed.StateError, Err: failure}}, nil
			},
		}
		svc := New(f, &mockStore{}, &mockRemote{}, Config{}, zerolog.Nop())

		_, err := svc.ListCharacters(context.Background(), nil, 0, 20)
		require.ErrorIs(t, err, failure)
	})

	t.Run("append failure with content keeps the content", func(t *testing.T) {
		failure := loadErr(model.LoadAppend, apperr.KindNetwork)
		f := &mockFeed{
			fillFn: func(context.Context, int) error { return failure },
			itemsFn: func(_ context.Context, offset, limit int) ([]model.Character, feed.Status, error) {
				return characters(1, 20), feed.Status{
					Size:   20,
					Append: feed.LoadState{State: feed.StateError, Err: failure},
				}, nil
			},
		}
		svc := New(f, &mockStore{}, &mockRemote{}, Config{}, zerolog.Nop())

		result, err := svc.ListCharacters(context.Background(), nil, 0, 40)
		require.NoError(t, err)
		assert.Len(t, result.Items, 20)
		assert.ErrorIs(t, result.LoadErr, failure)
		assert.Equal(t, feed.StateError, result.Status.Append.State)
	})

	t.Run("superseded filter is returned as is", func(t *testing.T) {
		f := &mockFeed{
			applyFilterFn: func(context.Context, *model.Filter) (bool, error) {
				return false, feed.ErrSuperseded
			},
		}
		svc := New(f, &mockStore{}, &mockRemote{}, Config{}, zerolog.Nop())

		_, err := svc.ListCharacters(context.Background(), nil, 0, 20)
		require.ErrorIs(t, err, feed.ErrSuperseded)
	})

	t.Run("items failure", func(t *testing.T) {
		f := &mockFeed{
			itemsFn: func(context.Context, int, int) ([]model.Character, feed.Status, error) {
				return nil, feed.Status{}, feed.ErrStopped
			},
		}
		svc := New(f, &mockStore{}, &mockRemote{}, Config{}, zerolog.Nop())

		_, err := svc.ListCharacters(context.Background(), nil, 0, 20)
		require.ErrorIs(t, err, feed.ErrStopped)
	})
}

func TestGetCharacter(t *testing.T) {
	rick := model.Character{ID: 1, Name: "Rick Sanchez", Status: model.StatusAlive}

	t.Run("cache hit", func(t *testing.T) {
		remoteCalled := false
		st := &mockStore{getCharacterFn: func(_ context.Context, id int) (model.Character, error) {
			assert.Equal(t, 1, id)
			return rick, nil
		}}
		remote := &mockRemote{fetchCharacterFn: func(context.Context, int) (model.Character, error) {
			remoteCalled = true
			return model.Character{}, nil
		}}
		svc := New(&mockFeed{}, st, remote, Config{DetailRemoteFallback: true}, zerolog.Nop())

		got, err := svc.GetCharacter(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, rick, got)
		assert.False(t, remoteCalled)
	})

	t.Run("cache miss is dataNotFound without fallback", func(t *testing.T) {
		remoteCalled := false
		remote := &mockRemote{fetchCharacterFn: func(context.Context, int) (model.Character, error) {
			remoteCalled = true
			return rick, nil
		}}
		svc := New(&mockFeed{}, &mockStore{}, remote, Config{}, zerolog.Nop())

		_, err := svc.GetCharacter(context.Background(), 999)
		require.Error(t, err)
		assert.Equal(t, apperr.KindDataNotFound, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "character 999")
		assert.False(t, remoteCalled)
	})

	t.Run("cache miss falls back to remote when enabled", func(t *testing.T) {
		remote := &mockRemote{fetchCharacterFn: func(_ context.Context, id int) (model.Character, error) {
			assert.Equal(t, 1, id)
			return rick, nil
		}}
		svc := New(&mockFeed{}, &mockStore{}, remote, Config{DetailRemoteFallback: true}, zerolog.Nop())

		got, err := svc.GetCharacter(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, rick, got)
	})

	t.Run("remote fallback failure is classified", func(t *testing.T) {
		remote := &mockRemote{fetchCharacterFn: func(context.Context, int) (model.Character, error) {
			return model.Character{}, apperr.Classify(&apperr.StatusError{StatusCode: 500})
		}}
		svc := New(&mockFeed{}, &mockStore{}, remote, Config{DetailRemoteFallback: true}, zerolog.Nop())

		_, err := svc.GetCharacter(context.Background(), 1)
		require.Error(t, err)
		assert.Equal(t, apperr.KindHTTP, apperr.KindOf(err))
	})

	t.Run("cache failure is wrapped", func(t *testing.T) {
		st := &mockStore{getCharacterFn: func(context.Context, int) (model.Character, error) {
			return model.Character{}, errors.New("disk on fire")
		}}
		svc := New(&mockFeed{}, st, &mockRemote{}, Config{}, zerolog.Nop())

		_, err := svc.GetCharacter(context.Background(), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading character 1 from cache")
	})
}

func TestSearch(t *testing.T) {
	var gotPage int
	var gotFilter model.Filter
	remote := &mockRemote{fetchPageFn: func(_ context.Context, page int, filter model.Filter) (model.Page, error) {
		gotPage, gotFilter = page, filter
		return model.Page{Count: 1, TotalPages: 1, Characters: characters(1, 1)}, nil
	}}
	svc := New(&mockFeed{}, &mockStore{}, remote, Config{}, zerolog.Nop())

	page, err := svc.Search(context.Background(), model.Filter{Name: "  RICK ", Status: "Alive"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, gotPage)
	assert.Equal(t, model.Filter{Name: "rick", Status: "alive"}, gotFilter)
	assert.Len(t, page.Characters, 1)

	remote.fetchPageFn = func(context.Context, int, model.Filter) (model.Page, error) {
		return model.Page{}, apperr.Classify(&apperr.StatusError{StatusCode: 429})
	}
	_, err = svc.Search(context.Background(), model.Filter{}, 3)
	require.Error(t, err)
	assert.Equal(t, apperr.KindHTTP, apperr.KindOf(err))
}

func TestFeedPassthrough(t *testing.T) {
	var seen []model.LoadType
	f := &mockFeed{
		loadFn: func(_ context.Context, loadType model.LoadType) (reconciler.Result, error) {
			seen = append(seen, loadType)
			return reconciler.Result{LoadType: loadType}, nil
		},
		retryFn: func(context.Context) (reconciler.Result, error) {
			return reconciler.Result{LoadType: model.LoadAppend, Count: 20}, nil
		},
		clearFilterFn: func(context.Context) (bool, error) { return true, nil },
		statusFn:      func() feed.Status { return feed.Status{FilterKey: "rick||||", Size: 5} },
	}
	svc := New(f, &mockStore{}, &mockRemote{}, Config{}, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Refresh(ctx)
	require.NoError(t, err)
	_, err = svc.Append(ctx)
	require.NoError(t, err)
	_, err = svc.Prepend(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.LoadType{model.LoadRefresh, model.LoadAppend, model.LoadPrepend}, seen)

	result, err := svc.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Count)

	changed, err := svc.ClearFilter(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, "rick||||", svc.FeedStatus().FilterKey)
}

func TestReady(t *testing.T) {
	ready := false
	f := &mockFeed{isReadyFn: func() bool { return ready }}
	st := &mockStore{}
	svc := New(f, st, &mockRemote{}, Config{}, zerolog.Nop())

	require.Error(t, svc.Ready(context.Background()))

	ready = true
	require.NoError(t, svc.Ready(context.Background()))

	st.pingFn = func(context.Context) error { return errors.New("db down") }
	err := svc.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinging cache")
}
