// Package store defines persistence contracts for the local character cache.
package store

import (
	"context"
	"errors"

	"github.com/emmamdp/rickandmorty/internal/model"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("resource not found")

// ListOptions narrows a cache listing by id range. Zero values do not
// constrain; FromID and ToID are inclusive.
type ListOptions struct {
	FromID int
	ToID   int
	Limit  int
	Offset int
}

// Store is the local cache of synchronized characters and their pagination
// keys. Reads run outside transactions; every write goes through InTx.
type Store interface {
	// Ping checks DB connectivity for readiness checks.
	Ping(ctx context.Context) error

	// InTx runs fn inside one write transaction. Concurrent callers are
	// serialized. The transaction commits only if fn returns nil and ctx is
	// still live.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GetCharacter returns ErrNotFound on a cache miss.
	GetCharacter(ctx context.Context, id int) (model.Character, error)
	// ListCharacters returns cached characters ordered by ascending id.
	ListCharacters(ctx context.Context, opts ListOptions) ([]model.Character, error)
	// CountCharacters counts cached characters matching filter with the same
	// case-insensitive rules the remote API applies.
	CountCharacters(ctx context.Context, filter model.Filter) (int, error)
	// GetPaginationKey returns ErrNotFound when no key is stored.
	GetPaginationKey(ctx context.Context, characterID int) (model.PaginationKey, error)
}

// Tx is the write half of the cache, only reachable inside InTx.
type Tx interface {
	UpsertCharacters(ctx context.Context, items []model.Character) error
	ClearCharacters(ctx context.Context) error
	UpsertPaginationKeys(ctx context.Context, keys []model.PaginationKey) error
	ClearPaginationKeys(ctx context.Context) error
}
