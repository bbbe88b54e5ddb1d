// Package remote is the HTTP client for the public character catalog API.
//
// Every failure leaving this package is either the caller's context error or
// an *apperr.Error produced by apperr.Classify.
package remote

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
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/emmamdp/rickandmorty/internal/apperr"
	"github.com/emmamdp/rickandmorty/internal/metrics"
	"github.com/emmamdp/rickandmorty/internal/model"
)

const (
	defaultTimeout       = 20 * time.Second
	maxErrorPeekBytes    = 64 * 1024
	maxErrorPreviewChars = 512
	characterPath        = "/character"
)

// Config holds remote client configuration.
type Config struct {
	// BaseURL is the API root, for example https://rickandmortyapi.com/api.
	BaseURL string
	// Timeout bounds one HTTP attempt. Defaults to 20s.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts for 429 and 5xx responses.
	MaxRetries int
	// RateLimit is the sustained request rate per second. Zero disables limiting.
	RateLimit float64
	// RateBurst is the limiter bucket size.
	RateBurst int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "remote").Logger()
	}
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBackOff overrides the retry backoff policy factory.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		if newBackOff != nil {
			c.newBackOff = newBackOff
		}
	}
}

// Client fetches character pages and single characters.
type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// New creates a remote client.
func New(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote: BaseURL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("remote: invalid BaseURL %q: %w", baseURL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	c := &Client{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		newBackOff: defaultBackOff,
		logger:     zerolog.Nop(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

// FetchPage returns one page of characters matching filter. An upstream 404
// on the list endpoint means nothing matched and yields an empty page.
func (c *Client) FetchPage(ctx context.Context, page int, filter model.Filter) (model.Page, error) {
	if page < 1 {
		page = 1
	}
	path := buildPagePath(page, filter)

	var resp pageResponse
	err := c.get(ctx, path, &resp)
	if err != nil {
		var classified *apperr.Error
		if errors.As(err, &classified) && classified.Kind == apperr.KindHTTP && classified.StatusCode == http.StatusNotFound {
			return model.Page{Characters: []model.Character{}}, nil
		}
		return model.Page{}, err
	}
	return resp.toModel(), nil
}

// FetchCharacter returns one character by id.
func (c *Client) FetchCharacter(ctx context.Context, id int) (model.Character, error) {
	var dto characterDTO
	if err := c.get(ctx, characterPath+"/"+strconv.Itoa(id), &dto); err != nil {
		return model.Character{}, err
	}
	if dto.ID == 0 {
		return model.Character{}, apperr.Classify(&apperr.MalformedError{Err: fmt.Errorf("character %d payload has no id", id)})
	}
	return dto.toModel(), nil
}

func buildPagePath(page int, filter model.Filter) string {
	f := filter.Normalize()
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if f.Name != "" {
		query.Set("name", f.Name)
	}
	if f.Status != "" {
		query.Set("status", f.Status)
	}
	if f.Species != "" {
		query.Set("species", f.Species)
	}
	if f.Type != "" {
		query.Set("type", f.Type)
	}
	if f.Gender != "" {
		query.Set("gender", f.Gender)
	}
	return characterPath + "?" + query.Encode()
}

// get performs a GET with rate limiting and retries, decoding the JSON body
// into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.attempt(ctx, path, out)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}

		classified := apperr.Classify(err)
		c.metrics.ObserveRemoteRequest(string(classified.Cause))
		if !retryable(classified) {
			return struct{}{}, backoff.Permanent(classified)
		}
		return struct{}{}, withRetryAfter(classified)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn().Err(err).Str("path", path).Dur("retry_in", wait).Msg("retrying upstream request")
		}),
	)
	if err == nil {
		c.metrics.ObserveRemoteRequest("ok")
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return apperr.Classify(err)
}

func (c *Client) attempt(ctx context.Context, path string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorPeekBytes))
		return &apperr.StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Detail:     errorDetail(raw),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.MalformedError{Err: fmt.Errorf("decoding %s: %w", path, err)}
	}
	return nil
}

func retryable(err *apperr.Error) bool {
	if err.Kind != apperr.KindHTTP {
		return false
	}
	return err.StatusCode == http.StatusTooManyRequests || err.StatusCode >= 500
}

// parseRetryAfter accepts the delay-seconds form of Retry-After.
func parseRetryAfter(raw string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// errorDetail prefers the API's {"error": "..."} body, falling back to a
// truncated raw preview.
func errorDetail(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	preview := strings.TrimSpace(string(raw))
	if len(preview) > maxErrorPreviewChars {
		preview = preview[:maxErrorPreviewChars]
	}
	return preview
}

// withRetryAfter attaches the upstream Retry-After hint so backoff.Retry
// waits that long before the next attempt instead of the policy delay.
func withRetryAfter(err *apperr.Error) error {
	seconds := int(err.RetryAfter / time.Second)
	if seconds <= 0 {
		return err
	}
	return errors.Join(err, backoff.RetryAfter(seconds))
}
