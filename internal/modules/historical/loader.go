package historical

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/sharpescan/internal/clientdata"
	"github.com/aristath/sharpescan/internal/clients/alphavantage"
	"github.com/aristath/sharpescan/internal/domain"
)

// Price sources, recorded in the history table and in logs.
const (
	SourceCSV          = "csv"
	SourceCache        = "cache"
	SourceAlphaVantage = "alphavantage"
	SourceHistory      = "history"
	SourceStaleCache   = "stale_cache"
)

// DefaultConcurrency bounds parallel per-ticker loads.
const DefaultConcurrency = 4

// PriceClient fetches daily bars from a remote provider.
type PriceClient interface {
	GetDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]alphavantage.DailyPrice, error)
}

// SeriesCache is the persistent API response cache.
type SeriesCache interface {
	Store(table, key string, data interface{}, ttl time.Duration) error
	GetIfFresh(table, key string, out interface{}) (bool, error)
	Get(table, key string, out interface{}) (bool, error)
}

// HistoryStore is the long-lived price history.
type HistoryStore interface {
	Upsert(ticker, source string, points []domain.PricePoint) error
	Range(ticker string, start, end time.Time) ([]domain.PricePoint, error)
}

// CachedSeries is the cache representation of a full close history.
type CachedSeries struct {
	Dates  []string  `msgpack:"dates"`
	Closes []float64 `msgpack:"closes"`
}

func encodeSeries(points []domain.PricePoint) CachedSeries {
	cs := CachedSeries{
		Dates:  make([]string, len(points)),
		Closes: make([]float64, len(points)),
	}
	for i, p := range points {
		cs.Dates[i] = p.Date.Format(dateLayout)
		cs.Closes[i] = p.Price
	}
	return cs
}

func (cs CachedSeries) points(ticker string) []domain.PricePoint {
	out := make([]domain.PricePoint, 0, len(cs.Dates))
	for i, d := range cs.Dates {
		if i >= len(cs.Closes) {
			break
		}
		date, err := time.Parse(dateLayout, d)
		if err != nil {
			continue
		}
		out = append(out, domain.PricePoint{Date: date, Ticker: ticker, Price: cs.Closes[i]})
	}
	return out
}

// Loader assembles price series for a set of tickers. Any of client, cache
// and history may be nil, which removes that source from the chain.
type Loader struct {
	client      PriceClient
	cache       SeriesCache
	history     HistoryStore
	concurrency int
	group       singleflight.Group
	log         zerolog.Logger
}

// NewLoader creates a loader over the given sources.
func NewLoader(client PriceClient, cache SeriesCache, history HistoryStore, log zerolog.Logger) *Loader {
	return &Loader{
		client:      client,
		cache:       cache,
		history:     history,
		concurrency: DefaultConcurrency,
		log:         log.With().Str("component", "price_loader").Logger(),
	}
}

// SetConcurrency changes how many tickers load in parallel.
func (l *Loader) SetConcurrency(n int) {
	if n > 0 {
		l.concurrency = n
	}
}

type fetched struct {
	points []domain.PricePoint
	source string
}

// LoadAll returns prices for every ticker within [start, end].
//
// When csvPath names an existing file its columns are used first; tickers it
// lacks, or every ticker when there is no file, go through the provider chain:
// fresh cache, then the API, then the price history, then stale cache.
func (l *Loader) LoadAll(ctx context.Context, tickers []string, start, end time.Time, csvPath string) (domain.PriceSeries, error) {
	series := make(domain.PriceSeries, len(tickers))
	pending := tickers

	if csvPath != "" {
		if _, err := os.Stat(csvPath); err == nil {
			fromCSV, err := LoadWideCSV(csvPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", csvPath, err)
			}
			pending = nil
			for _, ticker := range tickers {
				points := FilterRange(fromCSV[ticker], start, end)
				if len(points) == 0 {
					pending = append(pending, ticker)
					continue
				}
				series[ticker] = points
			}
			l.log.Info().
				Str("path", csvPath).
				Int("from_csv", len(series)).
				Int("remaining", len(pending)).
				Msg("Loaded prices from CSV")
		} else {
			l.log.Info().Str("path", csvPath).Msg("Price file not found, using providers")
		}
	}

	if len(pending) == 0 {
		return series, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, ticker := range pending {
		g.Go(func() error {
			res, err := l.fetch(gctx, ticker)
			if err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
			points := FilterRange(res.points, start, end)
			if len(points) == 0 {
				return fmt.Errorf("%w: %s has no prices between %s and %s",
					domain.ErrInsufficientData, ticker, start.Format(dateLayout), end.Format(dateLayout))
			}

			mu.Lock()
			series[ticker] = points
			mu.Unlock()

			l.log.Debug().
				Str("ticker", ticker).
				Str("source", res.source).
				Int("points", len(points)).
				Msg("Loaded prices")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return series, nil
}

// fetch resolves the full history of ticker, sharing one in-flight lookup
// between concurrent callers.
func (l *Loader) fetch(ctx context.Context, ticker string) (fetched, error) {
	v, err, _ := l.group.Do(ticker, func() (interface{}, error) {
		return l.resolve(ctx, ticker)
	})
	if err != nil {
		return fetched{}, err
	}
	return v.(fetched), nil
}

func (l *Loader) resolve(ctx context.Context, ticker string) (fetched, error) {
	if l.cache != nil {
		var cs CachedSeries
		ok, err := l.cache.GetIfFresh(clientdata.TableAlphaVantageDaily, ticker, &cs)
		if err != nil {
			l.log.Warn().Err(err).Str("ticker", ticker).Msg("Cache lookup failed")
		} else if ok && len(cs.Dates) > 0 {
			return fetched{points: cs.points(ticker), source: SourceCache}, nil
		}
	}

	var apiErr error
	if l.client != nil {
		points, err := l.fetchFromAPI(ctx, ticker)
		if err == nil {
			return fetched{points: points, source: SourceAlphaVantage}, nil
		}
		if ctx.Err() != nil {
			return fetched{}, ctx.Err()
		}
		apiErr = err
		l.log.Warn().Err(err).Str("ticker", ticker).Msg("API fetch failed, trying local sources")
	}

	if l.history != nil {
		points, err := l.history.Range(ticker, time.Time{}, time.Time{})
		if err != nil {
			l.log.Warn().Err(err).Str("ticker", ticker).Msg("History lookup failed")
		} else if len(points) > 0 {
			return fetched{points: points, source: SourceHistory}, nil
		}
	}

	if l.cache != nil {
		var cs CachedSeries
		ok, err := l.cache.Get(clientdata.TableAlphaVantageDaily, ticker, &cs)
		if err == nil && ok && len(cs.Dates) > 0 {
			l.log.Warn().Str("ticker", ticker).Msg("Using stale cached prices")
			return fetched{points: cs.points(ticker), source: SourceStaleCache}, nil
		}
	}

	if apiErr != nil {
		return fetched{}, apiErr
	}
	return fetched{}, fmt.Errorf("%w: no price source has %s", domain.ErrInsufficientData, ticker)
}

// fetchFromAPI downloads the full history and writes it through to the cache
// and the price history.
func (l *Loader) fetchFromAPI(ctx context.Context, ticker string) ([]domain.PricePoint, error) {
	bars, err := l.client.GetDailyPrices(ctx, ticker, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: provider returned no bars for %s", domain.ErrInsufficientData, ticker)
	}

	points := make([]domain.PricePoint, len(bars))
	for i, b := range bars {
		points[i] = domain.PricePoint{Date: b.Date, Ticker: ticker, Price: b.Close}
	}
	sortPoints(points)

	if l.cache != nil {
		if err := l.cache.Store(clientdata.TableAlphaVantageDaily, ticker, encodeSeries(points), clientdata.TTLDailySeries); err != nil {
			l.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache prices")
		}
	}
	if l.history != nil {
		if err := l.history.Upsert(ticker, SourceAlphaVantage, points); err != nil {
			l.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to store price history")
		}
	}
	return points, nil
}

// Refresh downloads tickers whose cached history has expired. It stops at the
// first quota error and returns how many tickers were refreshed.
func (l *Loader) Refresh(ctx context.Context, tickers []string) (int, error) {
	if l.client == nil {
		return 0, fmt.Errorf("no price client configured")
	}

	refreshed := 0
	var errs []error
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if l.cache != nil {
			var cs CachedSeries
			if ok, err := l.cache.GetIfFresh(clientdata.TableAlphaVantageDaily, ticker, &cs); err == nil && ok {
				continue
			}
		}

		if _, err := l.fetchFromAPI(ctx, ticker); err != nil {
			var limitErr alphavantage.ErrRateLimitExceeded
			if errors.As(err, &limitErr) {
				return refreshed, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
			continue
		}
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}
