package alphavantage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyBody = `{
	"Meta Data": {"2. Symbol": "IBM"},
	"Time Series (Daily)": {
		"2024-01-16": {"1. open": "186.2", "2. high": "187.0", "3. low": "185.0", "4. close": "186.9", "5. volume": "4000000"},
		"2024-01-12": {"1. open": "184.0", "2. high": "185.5", "3. low": "183.5", "4. close": "185.0", "5. volume": "3000000"},
		"2024-01-15": {"1. open": "185.00", "2. high": "186.50", "3. low": "184.50", "4. close": "186.20", "5. volume": "3456789"},
		"not-a-date": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "1"}
	}
}`

type recorderStub struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorderStub) APIRequest(function, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, function+":"+outcome)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient("test-key", zerolog.Nop(), WithBaseURL(server.URL), WithPerMinute(6000))
	return client, server
}

// TestNewClient tests client creation.
func TestNewClient(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	assert.NotNil(t, client)
	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, 25, client.GetRemainingRequests())
	assert.Equal(t, "closed", client.BreakerState())
}

// TestNewClient_Options tests that options are applied.
func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	client := NewClient("k", zerolog.Nop(),
		WithBaseURL("http://localhost:1"),
		WithHTTPClient(hc),
		WithDailyLimit(500),
		WithPerMinute(75),
		WithDailyLimit(0),
	)

	assert.Equal(t, "http://localhost:1", client.baseURL)
	assert.Same(t, hc, client.httpClient)
	assert.Equal(t, 500, client.GetRemainingRequests())
	assert.Equal(t, 75, client.perMinute)
}

// TestRateLimiting tests the daily quota.
func TestRateLimiting(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	for i := 0; i < 25; i++ {
		assert.Equal(t, 25-i, client.GetRemainingRequests())
		require.NoError(t, client.checkRateLimit())
	}

	// 26th request should fail
	err := client.checkRateLimit()
	assert.Error(t, err)
	assert.IsType(t, ErrRateLimitExceeded{}, err)
	assert.Contains(t, err.Error(), "resets at")
}

// TestResetDailyCounter tests counter reset.
func TestResetDailyCounter(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	for i := 0; i < 10; i++ {
		_ = client.checkRateLimit()
	}
	assert.Equal(t, 15, client.GetRemainingRequests())

	client.ResetDailyCounter()
	assert.Equal(t, 25, client.GetRemainingRequests())
}

// TestQuotaRollsOverAtMidnight tests that an elapsed reset time restores the quota.
func TestQuotaRollsOverAtMidnight(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop(), WithDailyLimit(1))
	require.NoError(t, client.checkRateLimit())
	require.Error(t, client.checkRateLimit())

	client.mu.Lock()
	client.resetAt = time.Now().Add(-time.Second)
	client.mu.Unlock()

	assert.Equal(t, 1, client.GetRemainingRequests())
	assert.NoError(t, client.checkRateLimit())
}

// TestCaching tests the cache functionality.
func TestCaching(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.setCache("test-key", "test data", time.Hour)

	cached, ok := client.getFromCache("test-key")
	assert.True(t, ok)
	assert.Equal(t, "test data", cached)

	_, ok = client.getFromCache("missing")
	assert.False(t, ok)
}

// TestCacheExpiration tests cache TTL expiration.
func TestCacheExpiration(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.setCache("expired", "data", -time.Second)

	_, ok := client.getFromCache("expired")
	assert.False(t, ok)
}

// TestClearCache tests cache clearing.
func TestClearCache(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.setCache("key1", "data1", time.Hour)
	client.setCache("key2", "data2", time.Hour)
	client.ClearCache()

	_, ok1 := client.getFromCache("key1")
	_, ok2 := client.getFromCache("key2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}

// TestBuildCacheKey tests cache key generation.
func TestBuildCacheKey(t *testing.T) {
	tests := []struct {
		name     string
		function string
		params   map[string]string
		expected string
	}{
		{
			name:     "Simple function",
			function: "GLOBAL_QUOTE",
			params:   map[string]string{"symbol": "IBM"},
			expected: "GLOBAL_QUOTE&symbol=IBM",
		},
		{
			name:     "Multiple params sorted",
			function: "TIME_SERIES_DAILY",
			params: map[string]string{
				"symbol":     "AAPL",
				"outputsize": "full",
			},
			expected: "TIME_SERIES_DAILY&outputsize=full&symbol=AAPL",
		},
		{
			name:     "With apikey excluded",
			function: "TIME_SERIES_DAILY",
			params: map[string]string{
				"symbol": "MSFT",
				"apikey": "secret",
			},
			expected: "TIME_SERIES_DAILY&symbol=MSFT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := buildCacheKey(tt.function, tt.params)
			assert.Equal(t, tt.expected, key)
			assert.NotContains(t, key, "apikey=")
		})
	}
}

// TestParseFloat64 tests float parsing.
func TestParseFloat64(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"123.45", 123.45},
		{" 7 ", 7},
		{"0", 0},
		{"-50.5", -50.5},
		{"None", 0},
		{"", 0},
		{"null", 0},
		{"-", 0},
		{"invalid", 0},
		{"50.5%", 50.5},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseFloat64(tt.input))
		})
	}
}

// TestParseInt64 tests integer parsing.
func TestParseInt64(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"123", 123},
		{"0", 0},
		{"-456", -456},
		{"1.5E10", 15000000000},
		{"123.45", 123},
		{"None", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseInt64(tt.input))
		})
	}
}

// TestParseDate tests date parsing.
func TestParseDate(t *testing.T) {
	date := parseDate("2024-01-15")
	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), date)

	assert.True(t, parseDate("").IsZero())
	assert.True(t, parseDate("01/15/2024").IsZero())
}

// TestParseDailyTimeSeries tests daily time series parsing.
func TestParseDailyTimeSeries(t *testing.T) {
	prices, err := parseDailyTimeSeries([]byte(dailyBody))
	require.NoError(t, err)
	require.Len(t, prices, 3)

	// Sorted oldest first, unparsable dates dropped
	assert.Equal(t, 12, prices[0].Date.Day())
	assert.Equal(t, 15, prices[1].Date.Day())
	assert.Equal(t, 16, prices[2].Date.Day())

	assert.Equal(t, 185.0, prices[1].Open)
	assert.Equal(t, 186.5, prices[1].High)
	assert.Equal(t, 184.5, prices[1].Low)
	assert.Equal(t, 186.2, prices[1].Close)
	assert.Equal(t, int64(3456789), prices[1].Volume)
}

// TestParseDailyTimeSeries_Missing tests a body without the series.
func TestParseDailyTimeSeries_Missing(t *testing.T) {
	_, err := parseDailyTimeSeries([]byte(`{"Meta Data": {}}`))
	assert.ErrorIs(t, err, errNoTimeSeries)

	_, err = parseDailyTimeSeries([]byte(`not json`))
	assert.Error(t, err)
}

// TestParseGlobalQuote tests global quote parsing.
func TestParseGlobalQuote(t *testing.T) {
	jsonData := `{
		"Global Quote": {
			"01. symbol": "IBM",
			"02. open": "185.00",
			"03. high": "186.50",
			"04. low": "184.50",
			"05. price": "186.20",
			"06. volume": "3456789",
			"07. latest trading day": "2024-01-15",
			"08. previous close": "185.00",
			"09. change": "1.20",
			"10. change percent": "0.65%"
		}
	}`

	quote, err := parseGlobalQuote([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, "IBM", quote.Symbol)
	assert.Equal(t, 185.0, quote.Open)
	assert.Equal(t, 186.5, quote.High)
	assert.Equal(t, 184.5, quote.Low)
	assert.Equal(t, 186.2, quote.Price)
	assert.Equal(t, int64(3456789), quote.Volume)
	assert.Equal(t, 15, quote.LatestTradingDay.Day())
	assert.Equal(t, 185.0, quote.PreviousClose)
	assert.Equal(t, 1.2, quote.Change)
	assert.Equal(t, 0.65, quote.ChangePercent)

	_, err = parseGlobalQuote([]byte(`{"Global Quote": {}}`))
	assert.Error(t, err)
}

// TestErrorTypes tests error type implementations.
func TestErrorTypes(t *testing.T) {
	t.Run("ErrRateLimitExceeded", func(t *testing.T) {
		err := ErrRateLimitExceeded{}
		assert.Contains(t, err.Error(), "rate limit")
	})

	t.Run("ErrInvalidAPIKey", func(t *testing.T) {
		err := ErrInvalidAPIKey{}
		assert.Contains(t, err.Error(), "invalid")
	})

	t.Run("ErrSymbolNotFound", func(t *testing.T) {
		err := ErrSymbolNotFound{Symbol: "XYZ"}
		assert.Contains(t, err.Error(), "XYZ")
	})

	t.Run("ErrAPI", func(t *testing.T) {
		err := ErrAPI{Message: "boom"}
		assert.Contains(t, err.Error(), "boom")
	})
}

// TestSetCacheTTL tests custom cache TTL configuration.
func TestSetCacheTTL(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.SetCacheTTL(CacheTTL{PriceData: 30 * time.Minute, Quotes: 2 * time.Minute})

	assert.Equal(t, 30*time.Minute, client.cacheTTL.PriceData)
	assert.Equal(t, 2*time.Minute, client.cacheTTL.Quotes)
}

// TestDefaultCacheTTL tests default TTL values.
func TestDefaultCacheTTL(t *testing.T) {
	ttl := DefaultCacheTTL()

	assert.Equal(t, 15*time.Minute, ttl.PriceData)
	assert.Equal(t, time.Minute, ttl.Quotes)
}

// TestAPIErrorDetection tests detection of API error responses.
func TestAPIErrorDetection(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	tests := []struct {
		name      string
		body      string
		errorType error
	}{
		{
			name:      "Rate limit note",
			body:      `{"Note": "API call frequency is limited"}`,
			errorType: ErrRateLimitExceeded{},
		},
		{
			name:      "Information message",
			body:      `{"Information": "Our standard API rate limit is 25 requests per day."}`,
			errorType: ErrRateLimitExceeded{},
		},
		{
			name:      "Error message",
			body:      `{"Error Message": "Invalid API call."}`,
			errorType: ErrAPI{},
		},
		{
			name:      "Bad key",
			body:      `{"Error Message": "the parameter apikey is invalid or missing."}`,
			errorType: ErrInvalidAPIKey{},
		},
		{
			name:      "Thank you message",
			body:      `Thank you for using Alpha Vantage!`,
			errorType: ErrRateLimitExceeded{},
		},
		{
			name:      "Other text",
			body:      `<html></html>`,
			errorType: ErrAPI{},
		},
		{
			name: "Valid response",
			body: `{"data": "valid"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.checkAPIError([]byte(tt.body))
			if tt.errorType == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.IsType(t, tt.errorType, err)
		})
	}
}

// TestNextMidnightUTC tests the midnight calculation.
func TestNextMidnightUTC(t *testing.T) {
	midnight := nextMidnightUTC()

	now := time.Now().UTC()
	assert.True(t, midnight.After(now))
	assert.True(t, midnight.Sub(now) <= 24*time.Hour)
	assert.Equal(t, 0, midnight.Hour())
	assert.Equal(t, 0, midnight.Minute())
	assert.Equal(t, 0, midnight.Second())
}

// TestGetDailyPrices tests fetching, filtering and caching the daily series.
func TestGetDailyPrices(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
		assert.Equal(t, "full", r.URL.Query().Get("outputsize"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(dailyBody))
	})
	rec := &recorderStub{}
	client.recorder = rec

	start := time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	prices, err := client.GetDailyPrices(context.Background(), "IBM", start, end)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, 186.2, prices[0].Close)
	assert.Equal(t, 186.9, prices[1].Close)

	// Second call is served from cache with a different window
	all, err := client.GetDailyPrices(context.Background(), "IBM", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := client.GetDailyPrices(context.Background(), "IBM", end.AddDate(0, 1, 0), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 24, client.GetRemainingRequests())
	assert.Equal(t, []string{
		"TIME_SERIES_DAILY:ok",
		"TIME_SERIES_DAILY:cached",
		"TIME_SERIES_DAILY:cached",
	}, rec.calls)
}

// TestGetDailyPrices_UnknownSymbol tests the mapping of "Invalid API call".
func TestGetDailyPrices_UnknownSymbol(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Error Message": "Invalid API call. Please retry or visit the documentation."}`))
	})

	_, err := client.GetDailyPrices(context.Background(), "NOPE", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Equal(t, ErrSymbolNotFound{Symbol: "NOPE"}, err)
	assert.Equal(t, "closed", client.BreakerState())
}

// TestGetDailyPrices_MissingKey tests that no request is made without a key.
func TestGetDailyPrices_MissingKey(t *testing.T) {
	client := NewClient("", zerolog.Nop(), WithBaseURL("http://127.0.0.1:1"))

	_, err := client.GetDailyPrices(context.Background(), "IBM", time.Time{}, time.Time{})
	assert.IsType(t, ErrInvalidAPIKey{}, err)
	assert.Equal(t, 25, client.GetRemainingRequests())
}

// TestGetDailyPrices_QuotaExhausted tests that the quota is checked before any request.
func TestGetDailyPrices_QuotaExhausted(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(dailyBody))
	})
	client.dailyLimit = 0

	_, err := client.GetDailyPrices(context.Background(), "IBM", time.Time{}, time.Time{})
	assert.IsType(t, ErrRateLimitExceeded{}, err)
	assert.Zero(t, hits.Load())
}

// TestCircuitBreakerTrips tests that repeated server failures open the breaker.
func TestCircuitBreakerTrips(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	client.dailyLimit = 100

	for i := 0; i < 3; i++ {
		_, err := client.GetDailyPrices(context.Background(), fmt.Sprintf("S%d", i), time.Time{}, time.Time{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	}
	assert.Equal(t, "open", client.BreakerState())

	_, err := client.GetDailyPrices(context.Background(), "S9", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, int32(3), hits.Load())
}

// TestGetGlobalQuote tests the quote endpoint.
func TestGetGlobalQuote(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		_, _ = w.Write([]byte(`{"Global Quote": {"01. symbol": "MSFT", "05. price": "410.50"}}`))
	})

	quote, err := client.GetGlobalQuote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", quote.Symbol)
	assert.Equal(t, 410.5, quote.Price)

	// Mutating the result must not leak into the cache
	quote.Price = 0
	again, err := client.GetGlobalQuote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 410.5, again.Price)
}

// TestContextCancelled tests that a cancelled context aborts the wait.
func TestContextCancelled(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dailyBody))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetDailyPrices(ctx, "IBM", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}

// BenchmarkParseFloat64 benchmarks float parsing.
func BenchmarkParseFloat64(b *testing.B) {
	for i := 0; i < b.N; i++ {
		parseFloat64("123.456789")
	}
}

// TestInterfaceImplementation verifies Client implements ClientInterface.
func TestInterfaceImplementation(t *testing.T) {
	var _ ClientInterface = (*Client)(nil)
}
