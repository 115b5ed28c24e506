package alphavantage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// parseDailyTimeSeries decodes TIME_SERIES_DAILY into bars sorted ascending
// by date. Bars with an unparsable date or close are skipped.
func parseDailyTimeSeries(body []byte) ([]DailyPrice, error) {
	var resp dailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode daily series: %w", err)
	}
	if resp.TimeSeries == nil {
		return nil, fmt.Errorf("daily series: %w", errNoTimeSeries)
	}

	prices := make([]DailyPrice, 0, len(resp.TimeSeries))
	for day, bar := range resp.TimeSeries {
		date := parseDate(day)
		if date.IsZero() {
			continue
		}
		closePrice := parseFloat64(bar.Close)
		if closePrice <= 0 {
			continue
		}
		prices = append(prices, DailyPrice{
			Date:   date,
			Open:   parseFloat64(bar.Open),
			High:   parseFloat64(bar.High),
			Low:    parseFloat64(bar.Low),
			Close:  closePrice,
			Volume: parseInt64(bar.Volume),
		})
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].Date.Before(prices[j].Date)
	})
	return prices, nil
}

// parseGlobalQuote decodes GLOBAL_QUOTE.
func parseGlobalQuote(body []byte) (*GlobalQuote, error) {
	var resp globalQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode global quote: %w", err)
	}
	q := resp.Quote
	if q == nil || q.Symbol == "" {
		return nil, fmt.Errorf("global quote: empty response")
	}

	return &GlobalQuote{
		Symbol:           q.Symbol,
		Open:             parseFloat64(q.Open),
		High:             parseFloat64(q.High),
		Low:              parseFloat64(q.Low),
		Price:            parseFloat64(q.Price),
		Volume:           parseInt64(q.Volume),
		LatestTradingDay: parseDate(q.LatestTradingDay),
		PreviousClose:    parseFloat64(q.PreviousClose),
		Change:           parseFloat64(q.Change),
		ChangePercent:    parseFloat64(q.ChangePercent),
	}, nil
}

// parseFloat64 parses API numeric strings, mapping "None", "-" and other
// placeholders to 0 and dropping a trailing percent sign.
func parseFloat64(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "None", "null", "-", ".":
		return 0
	}
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseInt64 parses integer strings, accepting float notation such as "1.5E10".
func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return int64(parseFloat64(s))
}

// parseDate parses YYYY-MM-DD, returning the zero time on failure.
func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
