// Package tcgdex is a client for the TCGdex card database: set listings,
// per-set card listings and card image downloads.
package tcgdex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/httpclient"
	"github.com/tcgvision/cardmatch/internal/logger"
	"github.com/tcgvision/cardmatch/internal/observability/metrics"
)

// Endpoint labels for metrics.
const (
	endpointSets  = "sets"
	endpointSet   = "set"
	endpointImage = "image"
)

const cacheKeySets = "sets"

// Client talks to the TCGdex REST API. It is safe for concurrent use.
type Client struct {
	config  Config
	http    *httpclient.Client
	cache   *cache.Cache
	log     logger.Logger
	metrics *metrics.UpstreamMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics records request counts, latencies and cache hits.
func WithMetrics(m *metrics.UpstreamMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the outbound HTTP client.
func WithHTTPClient(h *httpclient.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient creates a TCGdex client. Zero config fields take defaults.
func NewClient(config Config, opts ...Option) (*Client, error) {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Language == "" {
		config.Language = defaults.Language
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, errors.New(err).
			Component("tcgdex").
			Category(errors.CategoryConfiguration).
			Context("base_url", config.BaseURL).
			Build()
	}

	c := &Client{
		config: config,
		cache:  cache.New(config.CacheTTL, config.CacheTTL*2),
		log:    logger.Global().Module("tcgdex"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.New(&httpclient.Config{
			DefaultTimeout: config.Timeout,
			UserAgent:      config.UserAgent,
		})
	}
	c.http.SetAfterResponseHook(c.observe)

	c.log.Debug("tcgdex client initialized",
		logger.String("base_url", config.BaseURL),
		logger.String("language", config.Language),
		logger.Duration("timeout", config.Timeout),
		logger.Duration("cache_ttl", config.CacheTTL))
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

// ClearCache drops all cached listings.
func (c *Client) ClearCache() {
	c.cache.Flush()
}

// ListSets returns every set. Dates are filled from set details when
// FillReleaseDates is set; otherwise sets the brief listing leaves undated
// keep a zero ReleaseDate.
func (c *Client) ListSets(ctx context.Context) ([]SetSummary, error) {
	if cached, found := c.cache.Get(cacheKeySets); found {
		if sets, ok := cached.([]SetSummary); ok {
			c.metrics.RecordCache(true)
			return append([]SetSummary(nil), sets...), nil
		}
	}
	c.metrics.RecordCache(false)

	u := c.url("sets")
	data, err := c.get(ctx, u, maxListingBytes)
	if err != nil {
		return nil, err
	}
	sets, err := parseSets(data)
	if err != nil {
		return nil, parseError(err, u)
	}

	if c.config.FillReleaseDates {
		for i := range sets {
			if !sets[i].ReleaseDate.IsZero() {
				continue
			}
			detail, err := c.setDetail(ctx, sets[i].ID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				c.log.Warn("could not fetch set release date",
					logger.String("set_id", sets[i].ID),
					logger.Error(err))
				continue
			}
			sets[i].ReleaseDate = detail.releaseDate
		}
	}

	c.cache.Set(cacheKeySets, sets, cache.DefaultExpiration)
	c.log.Debug("tcgdex sets listed", logger.Int("sets", len(sets)))
	return append([]SetSummary(nil), sets...), nil
}

// ListCards returns the cards of one set in listing order.
func (c *Client) ListCards(ctx context.Context, setID string) ([]CardSummary, error) {
	if strings.TrimSpace(setID) == "" {
		return nil, errors.InvalidInput("tcgdex", "set id is required")
	}
	detail, err := c.setDetail(ctx, setID)
	if err != nil {
		return nil, err
	}
	return append([]CardSummary(nil), detail.cards...), nil
}

// FetchImage downloads a card image.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if imageURL == "" {
		return nil, errors.InvalidInput("tcgdex", "image url is required")
	}
	data, err := c.get(ctx, imageURL, MaxImageBytes)
	if err != nil {
		return nil, err
	}
	c.metrics.AddImageBytes(len(data))
	return data, nil
}

func (c *Client) setDetail(ctx context.Context, setID string) (*setDetail, error) {
	key := "set:" + setID
	if cached, found := c.cache.Get(key); found {
		if detail, ok := cached.(*setDetail); ok {
			c.metrics.RecordCache(true)
			return detail, nil
		}
	}
	c.metrics.RecordCache(false)

	u := c.url("sets", setID)
	data, err := c.get(ctx, u, maxListingBytes)
	if err != nil {
		return nil, err
	}
	detail, err := parseSetDetail(setID, data)
	if err != nil {
		return nil, parseError(err, u)
	}
	c.cache.Set(key, detail, cache.DefaultExpiration)
	return detail, nil
}

func (c *Client) url(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, c.config.BaseURL, url.PathEscape(c.config.Language))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.Join(escaped, "/")
}

// get fetches u within the configured timeout and returns at most maxBytes.
func (c *Client) get(ctx context.Context, u string, maxBytes int64) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.http.Get(reqCtx, u)
	if err != nil {
		return nil, requestError(err, u, c.config.Timeout)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		c.log.Warn("tcgdex request failed",
			logger.String("url", u),
			logger.Int("status_code", resp.StatusCode))
		return nil, errors.Newf("tcgdex returned status %d", resp.StatusCode).
			Component("tcgdex").
			Category(errors.CategoryUpstream).
			Context("url", u).
			Context("status_code", resp.StatusCode).
			Build()
	}

	data, err := httpclient.ReadBody(resp, maxBytes)
	if err != nil {
		if errors.IsCategory(err, errors.CategoryLimit) {
			return nil, err
		}
		return nil, requestError(err, u, c.config.Timeout)
	}

	c.log.Trace("tcgdex request",
		logger.String("url", u),
		logger.Int("bytes", len(data)),
		logger.Duration("duration", time.Since(start)))
	return data, nil
}

// observe feeds the response hook into the upstream metrics.
func (c *Client) observe(req *http.Request, resp *http.Response, _ error, elapsed time.Duration) {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.metrics.RecordRequest(c.endpointOf(req.URL), status, elapsed.Seconds())
}

func (c *Client) endpointOf(u *url.URL) string {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil || u.Host != base.Host {
		return endpointImage
	}
	if strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/sets") {
		return endpointSets
	}
	if strings.Contains(u.Path, "/sets/") {
		return endpointSet
	}
	return endpointImage
}

func requestError(err error, u string, timeout time.Duration) error {
	category := errors.CategoryUpstream
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryTimeout
	case errors.Is(err, context.Canceled):
		category = errors.CategoryCancellation
	}
	return errors.New(fmt.Errorf("tcgdex request failed: %w", err)).
		Component("tcgdex").
		Category(category).
		Context("url", u).
		NetworkContext(u, timeout).
		Build()
}

func parseError(err error, u string) error {
	return errors.New(fmt.Errorf("tcgdex returned malformed JSON: %w", err)).
		Component("tcgdex").
		Category(errors.CategoryUpstream).
		Context("url", u).
		Build()
}
