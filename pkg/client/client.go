// Package client provides a typed HTTP client SDK for the catalog service.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/emmamdp/rickandmorty/pkg/types"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	charactersPath    = "/catalog/v1/characters"
	searchPath        = "/catalog/v1/search"
	feedPath          = "/catalog/v1/feed"
	feedRefreshPath   = "/catalog/v1/feed/refresh"
	feedAppendPath    = "/catalog/v1/feed/append"
	feedPrependPath   = "/catalog/v1/feed/prepend"
	feedRetryPath     = "/catalog/v1/feed/retry"
	feedFilterPath    = "/catalog/v1/feed/filter"
	maxErrorBodyBytes = 64 << 10
)

// Config holds catalog client configuration.
type Config struct {
	// BaseURL is the root URL of the catalog API (for example: http://localhost:27780).
	BaseURL string
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// MaxRetries is the number of retry attempts for transient errors on
	// read requests. Defaults to 3.
	MaxRetries int
	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
}

// APIError is a non-2xx response from the catalog API.
type APIError struct {
	StatusCode int
	Problem    types.ProblemDetail
}

func (e *APIError) Error() string {
	detail := strings.TrimSpace(e.Problem.Detail)
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	if e.Problem.Kind != "" {
		return fmt.Sprintf("catalog API returned %d (%s): %s", e.StatusCode, e.Problem.Kind, detail)
	}
	return fmt.Sprintf("catalog API returned %d: %s", e.StatusCode, detail)
}

// IsNotFound reports whether err is a 404 from the catalog API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is the typed HTTP SDK for catalog APIs.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     Config
}

// ListCharactersOptions configures GET /catalog/v1/characters.
type ListCharactersOptions struct {
	Filter types.Filter
	Limit  int
	Offset int
}

// SearchOptions configures GET /catalog/v1/search.
type SearchOptions struct {
	Filter types.Filter
	Page   int
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("client: invalid BaseURL %q: %w", baseURL, err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cfg.BaseURL = baseURL

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		http:    httpClient,
		baseURL: cfg.BaseURL,
		cfg:     cfg,
	}, nil
}

// ListCharacters returns a slice of the server feed window under the given
// filter.
func (c *Client) ListCharacters(
	ctx context.Context,
	opts ListCharactersOptions,
) (*types.Resource[types.CharacterList], error) {
	var result types.Resource[types.CharacterList]
	if err := c.do(ctx, http.MethodGet, buildListCharactersPath(opts), &result); err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	return &result, nil
}

// GetCharacter returns one cached character by id.
func (c *Client) GetCharacter(ctx context.Context, id int) (*types.Resource[types.Character], error) {
	if id < 1 {
		return nil, fmt.Errorf("character id must be positive, got %d", id)
	}

	var result types.Resource[types.Character]
	path := fmt.Sprintf("%s/%d", charactersPath, id)
	if err := c.do(ctx, http.MethodGet, path, &result); err != nil {
		return nil, fmt.Errorf("getting character %d: %w", id, err)
	}
	return &result, nil
}

// Search runs an uncached remote search.
func (c *Client) Search(ctx context.Context, opts SearchOptions) (*types.Resource[types.SearchResult], error) {
	var result types.Resource[types.SearchResult]
	if err := c.do(ctx, http.MethodGet, buildSearchPath(opts), &result); err != nil {
		return nil, fmt.Errorf("searching characters: %w", err)
	}
	return &result, nil
}

// FeedStatus returns the server feed snapshot.
func (c *Client) FeedStatus(ctx context.Context) (*types.Resource[types.FeedStatus], error) {
	var result types.Resource[types.FeedStatus]
	if err := c.do(ctx, http.MethodGet, feedPath, &result); err != nil {
		return nil, fmt.Errorf("getting feed status: %w", err)
	}
	return &result, nil
}

// Refresh reloads the server feed.
func (c *Client) Refresh(ctx context.Context) (*types.Resource[types.LoadResult], error) {
	return c.load(ctx, feedRefreshPath, "refreshing feed")
}

// Append loads the next page into the server feed.
func (c *Client) Append(ctx context.Context) (*types.Resource[types.LoadResult], error) {
	return c.load(ctx, feedAppendPath, "appending to feed")
}

// Prepend loads the previous page into the server feed.
func (c *Client) Prepend(ctx context.Context) (*types.Resource[types.LoadResult], error) {
	return c.load(ctx, feedPrependPath, "prepending to feed")
}

// Retry reruns the failed feed load.
func (c *Client) Retry(ctx context.Context) (*types.Resource[types.LoadResult], error) {
	return c.load(ctx, feedRetryPath, "retrying feed load")
}

// ClearFilter resets the server feed to the unfiltered catalog.
func (c *Client) ClearFilter(ctx context.Context) (*types.Resource[types.FeedStatus], error) {
	var result types.Resource[types.FeedStatus]
	if err := c.do(ctx, http.MethodDelete, feedFilterPath, &result); err != nil {
		return nil, fmt.Errorf("clearing feed filter: %w", err)
	}
	return &result, nil
}

func (c *Client) load(ctx context.Context, path, action string) (*types.Resource[types.LoadResult], error) {
	var result types.Resource[types.LoadResult]
	if err := c.do(ctx, http.MethodPost, path, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return &result, nil
}

// do sends one request. Reads and deletes are retried on transport errors
// and 502/503/504; load actions are sent once.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	attempt := func() (struct{}, error) {
		err := c.send(ctx, method, path, out)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil || !transient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	tries := uint(1)
	if method != http.MethodPost {
		tries += uint(c.cfg.MaxRetries)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithMaxElapsedTime(c.cfg.Timeout),
	)
	return err
}

func (c *Client) send(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err := json.Unmarshal(body, &apiErr.Problem); err != nil {
		apiErr.Problem = types.ProblemDetail{
			Status: resp.StatusCode,
			Title:  http.StatusText(resp.StatusCode),
			Detail: strings.TrimSpace(string(body)),
		}
	}
	return apiErr
}

func transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func buildListCharactersPath(opts ListCharactersOptions) string {
	params := url.Values{}
	appendFilter(params, opts.Filter)
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	if encoded := params.Encode(); encoded != "" {
		return charactersPath + "?" + encoded
	}
	return charactersPath
}

func buildSearchPath(opts SearchOptions) string {
	params := url.Values{}
	appendFilter(params, opts.Filter)
	if opts.Page > 1 {
		params.Set("page", strconv.Itoa(opts.Page))
	}

	if encoded := params.Encode(); encoded != "" {
		return searchPath + "?" + encoded
	}
	return searchPath
}

func appendFilter(params url.Values, filter types.Filter) {
	for _, kv := range []struct{ key, value string }{
		{"name", filter.Name},
		{"status", filter.Status},
		{"species", filter.Species},
		{"type", filter.Type},
		{"gender", filter.Gender},
	} {
		if v := strings.TrimSpace(kv.value); v != "" {
			params.Set(kv.key, v)
		}
	}
}
