//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/internal/store"
)

// newPostgresStore starts a throwaway PostgreSQL container and opens the
// cache on it with migrations applied.
func newPostgresStore(t *testing.T) *store.SQLStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("catalog"),
		tcpostgres.WithUsername("catalog"),
		tcpostgres.WithPassword("catalog"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	st, err := store.Open(ctx, "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPostgresStore_Ping(t *testing.T) {
	st := newPostgresStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, st.Ping(ctx))
}

func TestPostgresStore_RefreshCycle(t *testing.T) {
	st := newPostgresStore(t)
	ctx := context.Background()

	seed(t, st, []model.Character{character(1, "Rick Sanchez"), character(2, "Morty Smith")},
		[]model.PaginationKey{{CharacterID: 1, NextPage: model.IntPtr(2)}, {CharacterID: 2, NextPage: model.IntPtr(2)}})

	err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.ClearCharacters(ctx); err != nil {
			return err
		}
		if err := tx.ClearPaginationKeys(ctx); err != nil {
			return err
		}
		if err := tx.UpsertCharacters(ctx, []model.Character{character(2, "Morty Smith"), character(3, "Summer Smith")}); err != nil {
			return err
		}
		return tx.UpsertPaginationKeys(ctx, []model.PaginationKey{
			{CharacterID: 2, PreviousPage: model.IntPtr(1)},
			{CharacterID: 3, PreviousPage: model.IntPtr(1)},
		})
	})
	require.NoError(t, err)

	items, err := st.ListCharacters(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, model.CharacterIDs(items))

	smiths, err := st.CountCharacters(ctx, model.Filter{Name: "SMITH"})
	require.NoError(t, err)
	assert.Equal(t, 2, smiths)

	_, err = st.GetCharacter(ctx, 1)
	require.ErrorIs(t, err, store.ErrNotFound)

	key, err := st.GetPaginationKey(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, key.PreviousPage)
	assert.Equal(t, 1, *key.PreviousPage)
	assert.Nil(t, key.NextPage)
}
