package model

import (
	"fmt"
	"strings"
	"time"
)

// LoadType is the kind of reconciliation cycle.
type LoadType int

const (
	LoadRefresh LoadType = iota
	LoadPrepend
	LoadAppend
)

func (t LoadType) String() string {
	switch t {
	case LoadRefresh:
		return "refresh"
	case LoadPrepend:
		return "prepend"
	case LoadAppend:
		return "append"
	default:
		return fmt.Sprintf("loadtype(%d)", int(t))
	}
}

// ParseLoadType parses the String form of a LoadType.
func ParseLoadType(raw string) (LoadType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "refresh":
		return LoadRefresh, nil
	case "prepend":
		return LoadPrepend, nil
	case "append":
		return LoadAppend, nil
	default:
		return 0, fmt.Errorf("unknown load type %q", raw)
	}
}

// PaginationKey records the page boundary a cached character was fetched in.
// A nil pointer means no page exists in that direction.
type PaginationKey struct {
	CharacterID  int
	PreviousPage *int
	NextPage     *int
	UpdatedAt    time.Time
}

// Page returns the remote page the character was fetched in, derived from its
// neighbours. A key with no neighbours belongs to page 1.
func (k PaginationKey) Page() int {
	switch {
	case k.NextPage != nil && *k.NextPage > 1:
		return *k.NextPage - 1
	case k.PreviousPage != nil:
		return *k.PreviousPage + 1
	default:
		return 1
	}
}

// Page is one page of remote results.
type Page struct {
	Count        int
	TotalPages   int
	NextPage     *int
	PreviousPage *int
	Characters   []Character
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
