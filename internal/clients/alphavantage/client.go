// Package alphavantage is a rate-limited client for the Alpha Vantage
// TIME_SERIES_DAILY and GLOBAL_QUOTE endpoints.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL    = "https://www.alphavantage.co/query"
	defaultDailyLimit = 25
	defaultPerMinute  = 5
	defaultTimeout    = 30 * time.Second
	maxBodyBytes      = 32 << 20
)

// Request outcomes reported to a Recorder.
const (
	OutcomeOK          = "ok"
	OutcomeCached      = "cached"
	OutcomeRateLimited = "rate_limited"
	OutcomeBreakerOpen = "breaker_open"
	OutcomeError       = "error"
)

// Recorder observes API calls.
type Recorder interface {
	APIRequest(function, outcome string)
}

// ClientInterface is the subset of the client used by the price loader.
type ClientInterface interface {
	GetDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]DailyPrice, error)
	GetGlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error)
	GetRemainingRequests() int
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// Client talks to Alpha Vantage. It enforces the free-tier daily quota, a
// per-minute request rate and trips a circuit breaker on repeated transport
// failures.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
	recorder   Recorder

	perMinute int
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker

	mu           sync.Mutex
	dailyLimit   int
	requestCount int
	resetAt      time.Time

	cacheMu  sync.RWMutex
	cache    map[string]cacheEntry
	cacheTTL CacheTTL
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDailyLimit sets the daily request quota.
func WithDailyLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.dailyLimit = n
		}
	}
}

// WithPerMinute sets the per-minute request rate.
func WithPerMinute(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.perMinute = n
		}
	}
}

// WithRecorder attaches a request recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// NewClient creates a new Alpha Vantage client.
func NewClient(apiKey string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.With().Str("client", "alphavantage").Logger(),
		perMinute:  defaultPerMinute,
		dailyLimit: defaultDailyLimit,
		resetAt:    nextMidnightUTC(),
		cache:      make(map[string]cacheEntry),
		cacheTTL:   DefaultCacheTTL(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.perMinute)), 1)
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alphavantage",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isAPIResponseError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return c
}

// GetDailyPrices returns daily bars for symbol between start and end
// inclusive, sorted ascending. A zero start or end leaves that side open.
// The full series is fetched once and cached.
func (c *Client) GetDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]DailyPrice, error) {
	const function = "TIME_SERIES_DAILY"
	params := map[string]string{"symbol": symbol, "outputsize": "full"}
	key := buildCacheKey(function, params)

	var all []DailyPrice
	if cached, ok := c.getFromCache(key); ok {
		all = cached.([]DailyPrice)
		c.record(function, OutcomeCached)
	} else {
		body, err := c.doRequest(ctx, function, params)
		if err != nil {
			return nil, err
		}
		all, err = parseDailyTimeSeries(body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", symbol, err)
		}
		c.setCache(key, all, c.cacheTTL.PriceData)
	}

	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(all), func(i int) bool { return !all[i].Date.Before(start) })
	}
	hi := len(all)
	if !end.IsZero() {
		hi = sort.Search(len(all), func(i int) bool { return all[i].Date.After(end) })
	}
	if lo >= hi {
		return []DailyPrice{}, nil
	}
	out := make([]DailyPrice, hi-lo)
	copy(out, all[lo:hi])
	return out, nil
}

// GetGlobalQuote returns the latest quote for symbol.
func (c *Client) GetGlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error) {
	const function = "GLOBAL_QUOTE"
	params := map[string]string{"symbol": symbol}
	key := buildCacheKey(function, params)

	if cached, ok := c.getFromCache(key); ok {
		c.record(function, OutcomeCached)
		q := *cached.(*GlobalQuote)
		return &q, nil
	}

	body, err := c.doRequest(ctx, function, params)
	if err != nil {
		return nil, err
	}
	quote, err := parseGlobalQuote(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	c.setCache(key, quote, c.cacheTTL.Quotes)
	q := *quote
	return &q, nil
}

// doRequest performs one API call through the quota, the rate limiter and the
// circuit breaker, returning the raw body.
func (c *Client) doRequest(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	if c.apiKey == "" {
		c.record(function, OutcomeError)
		return nil, ErrInvalidAPIKey{}
	}
	if err := c.checkRateLimit(); err != nil {
		c.record(function, OutcomeRateLimited)
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("function", function)
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "?" + q.Encode()

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, reqURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.record(function, OutcomeBreakerOpen)
			return nil, fmt.Errorf("alpha vantage unavailable: %w", err)
		}

		var apiErr ErrAPI
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "Invalid API call") {
			err = ErrSymbolNotFound{Symbol: params["symbol"]}
		}
		var limitErr ErrRateLimitExceeded
		if errors.As(err, &limitErr) {
			c.record(function, OutcomeRateLimited)
		} else {
			c.record(function, OutcomeError)
		}

		c.log.Warn().
			Err(err).
			Str("function", function).
			Str("symbol", params["symbol"]).
			Msg("Alpha Vantage request failed")
		return nil, err
	}

	c.record(function, OutcomeOK)
	c.log.Debug().
		Str("function", function).
		Str("symbol", params["symbol"]).
		Dur("duration", time.Since(start)).
		Int("remaining", c.GetRemainingRequests()).
		Msg("Alpha Vantage request completed")
	return result.([]byte), nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkAPIError inspects a 200 response for the error envelopes Alpha Vantage
// returns in place of data.
func (c *Client) checkAPIError(body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		if strings.Contains(trimmed, "Thank you") {
			return ErrRateLimitExceeded{}
		}
		return ErrAPI{Message: "non-JSON response"}
	}

	// Only the envelope fields are decoded here; the payload is parsed later.
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ErrAPI{Message: err.Error()}
	}
	switch {
	case env.ErrorMessage != nil:
		if strings.Contains(strings.ToLower(*env.ErrorMessage), "apikey") {
			return ErrInvalidAPIKey{}
		}
		return ErrAPI{Message: *env.ErrorMessage}
	case env.Note != nil:
		return ErrRateLimitExceeded{}
	case env.Information != nil:
		return ErrRateLimitExceeded{}
	}
	return nil
}

// checkRateLimit consumes one request from the daily quota.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().After(c.resetAt) {
		c.requestCount = 0
		c.resetAt = nextMidnightUTC()
	}
	if c.requestCount >= c.dailyLimit {
		return ErrRateLimitExceeded{ResetAt: c.resetAt.Format(time.RFC3339)}
	}
	c.requestCount++
	return nil
}

// GetRemainingRequests returns how many requests are left today.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().After(c.resetAt) {
		return c.dailyLimit
	}
	return c.dailyLimit - c.requestCount
}

// ResetDailyCounter restores the full daily quota.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount = 0
	c.resetAt = nextMidnightUTC()
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// SetCacheTTL replaces the cache lifetimes.
func (c *Client) SetCacheTTL(ttl CacheTTL) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cacheTTL = ttl
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

func (c *Client) record(function, outcome string) {
	if c.recorder != nil {
		c.recorder.APIRequest(function, outcome)
	}
}

// buildCacheKey renders function and params, minus the API key, in a stable order.
func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apikey" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(function)
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	return b.String()
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
