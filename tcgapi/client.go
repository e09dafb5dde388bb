// Package tcgapi is a thin passthrough client for the upstream card-data API.
package tcgapi

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

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"tcg_catalog/config"
)

// userAgent is sent on every upstream request; the API rejects some
// non-browser agents.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrUpstream is matched by every UpstreamError.
var ErrUpstream = errors.New("upstream error")

// UpstreamError is returned when the upstream API answers with a non-2xx status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrUpstream) true for upstream errors.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// SearchParams are the query parameters forwarded to the cards endpoint.
type SearchParams struct {
	Q        string
	Page     int
	PageSize int
	OrderBy  string
	Select   string
}

// Values encodes the non-empty parameters.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	if p.Q != "" {
		v.Set("q", p.Q)
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	if p.OrderBy != "" {
		v.Set("orderBy", p.OrderBy)
	}
	if p.Select != "" {
		v.Set("select", p.Select)
	}
	return v
}

// Client talks to the upstream API with retries on transient failures.
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	log     zerolog.Logger
}

// New creates a Client from configuration.
func New(cfg config.TCGAPIConfig, log zerolog.Logger) *Client {
	log = log.With().Str("component", "tcgapi").Logger()

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient = &http.Client{
		Timeout: cfg.Timeout(),
	}
	retryClient.Logger = leveledLogger{log: log}
	// Hand the last response back instead of a generic "giving up" error so
	// the caller sees the upstream status.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultTCGAPIBaseURL
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    retryClient,
		log:     log,
	}
}

// SearchCards forwards a card search and returns the upstream body verbatim.
func (c *Client) SearchCards(ctx context.Context, params SearchParams) (json.RawMessage, error) {
	return c.get(ctx, "/cards", params.Values())
}

// Card fetches a single card by id.
func (c *Client) Card(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, errors.New("card id is required")
	}
	return c.get(ctx, "/cards/"+url.PathEscape(id), nil)
}

// SearchSets forwards a set search.
func (c *Client) SearchSets(ctx context.Context, params SearchParams) (json.RawMessage, error) {
	return c.get(ctx, "/sets", params.Values())
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Upstream request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("upstream returned invalid JSON for %s", path)
	}
	return json.RawMessage(body), nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Trace().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warn().Fields(kv).Msg(msg) }
