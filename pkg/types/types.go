// Package types defines public request/response payloads for the catalog API.
package types

import "time"

// APIVersion is the version stamped on every catalog resource.
const APIVersion = "catalog/v1"

const (
	// KindCharacter is the kind of a single character resource.
	KindCharacter = "Character"
	// KindCharacterList is the kind of a feed window slice.
	KindCharacterList = "CharacterList"
	// KindSearchResult is the kind of an uncached remote search page.
	KindSearchResult = "SearchResult"
	// KindFeedStatus is the kind of the feed status resource.
	KindFeedStatus = "FeedStatus"
	// KindLoadResult is the kind returned by feed load actions.
	KindLoadResult = "LoadResult"
)

const (
	// LoadStateIdle means no load is running for a direction.
	LoadStateIdle = "idle"
	// LoadStateLoading means a load is in flight.
	LoadStateLoading = "loading"
	// LoadStateError means the last load failed and waits for a retry.
	LoadStateError = "error"
)

// Metadata identifies a resource.
type Metadata struct {
	ID        string     `json:"id"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Resource is the envelope wrapped around every response body.
type Resource[T any] struct {
	Kind       string   `json:"kind"`
	APIVersion string   `json:"apiVersion"`
	Metadata   Metadata `json:"metadata"`
	Spec       T        `json:"spec"`
}

// ProblemDetail is an RFC 9457 error body.
type ProblemDetail struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Instance   string `json:"instance,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Cause      string `json:"cause,omitempty"`
	RetryAfter int    `json:"retryAfterSeconds,omitempty"`
}

// Character is the public character payload.
type Character struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Species  string   `json:"species"`
	Type     string   `json:"type,omitempty"`
	Gender   string   `json:"gender"`
	Origin   string   `json:"origin"`
	Location string   `json:"location"`
	Image    string   `json:"image"`
	Episodes []string `json:"episodes"`
	Created  string   `json:"created"`
}

// Filter is the public filter payload. Empty fields do not constrain.
type Filter struct {
	Name    string `json:"name,omitempty"`
	Status  string `json:"status,omitempty"`
	Species string `json:"species,omitempty"`
	Type    string `json:"type,omitempty"`
	Gender  string `json:"gender,omitempty"`
}

// LoadFailure describes a failed load.
type LoadFailure struct {
	LoadType    string `json:"loadType,omitempty"`
	Page        int    `json:"page,omitempty"`
	Kind        string `json:"kind"`
	Cause       string `json:"cause,omitempty"`
	StatusCode  int    `json:"statusCode,omitempty"`
	Message     string `json:"message"`
	UserMessage string `json:"userMessage"`
}

// LoadState is the state of one load direction.
type LoadState struct {
	State      string       `json:"state"`
	EndReached bool         `json:"endReached"`
	Error      *LoadFailure `json:"error,omitempty"`
}

// FeedStatus is the feed snapshot.
type FeedStatus struct {
	Ready         bool       `json:"ready"`
	Filter        Filter     `json:"filter"`
	FilterKey     string     `json:"filterKey"`
	Generation    uint64     `json:"generation"`
	Refresh       LoadState  `json:"refresh"`
	Prepend       LoadState  `json:"prepend"`
	Append        LoadState  `json:"append"`
	FirstID       int        `json:"firstID,omitempty"`
	LastID        int        `json:"lastID,omitempty"`
	Size          int        `json:"size"`
	Cached        int        `json:"cached"`
	LastRefreshAt *time.Time `json:"lastRefreshAt,omitempty"`
}

// CharacterList is a slice of the feed window.
type CharacterList struct {
	Items     []Character  `json:"items"`
	Offset    int          `json:"offset"`
	Limit     int          `json:"limit"`
	Feed      FeedStatus   `json:"feed"`
	LoadError *LoadFailure `json:"loadError,omitempty"`
}

// SearchResult is one uncached page from the remote catalog.
type SearchResult struct {
	Page         int         `json:"page"`
	Count        int         `json:"count"`
	TotalPages   int         `json:"totalPages"`
	NextPage     *int        `json:"nextPage,omitempty"`
	PreviousPage *int        `json:"previousPage,omitempty"`
	Items        []Character `json:"items"`
}

// LoadResult is the outcome of a feed load action.
type LoadResult struct {
	LoadType        string `json:"loadType"`
	EndOfPagination bool   `json:"endOfPagination"`
	Page            int    `json:"page,omitempty"`
	FirstID         int    `json:"firstID,omitempty"`
	LastID          int    `json:"lastID,omitempty"`
	Count           int    `json:"count"`
}
