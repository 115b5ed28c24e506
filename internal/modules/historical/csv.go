// Package historical loads daily closing prices from CSV files, the Alpha
// Vantage API and the local price history, and aligns them by trading date.
package historical

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/sharpescan/internal/domain"
)

const dateLayout = "2006-01-02"

// LoadWideCSV reads a wide price file: a "Date" column followed by one
// column per ticker. Rows with an unparsable date and empty or unparsable
// cells are skipped. Each series is returned sorted ascending by date.
func LoadWideCSV(path string) (domain.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	return ReadWideCSV(f)
}

// ReadWideCSV is LoadWideCSV over an arbitrary reader.
func ReadWideCSV(r io.Reader) (domain.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: price file is empty", domain.ErrInsufficientData)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: header has no ticker columns", domain.ErrInsufficientData)
	}

	tickers := make([]string, len(header)-1)
	series := make(domain.PriceSeries, len(tickers))
	for i, h := range header[1:] {
		tickers[i] = strings.TrimSpace(h)
		series[tickers[i]] = []domain.PricePoint{}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read price row: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		date, err := time.Parse(dateLayout, strings.TrimSpace(record[0]))
		if err != nil {
			continue
		}

		for i, cell := range record[1:] {
			if i >= len(tickers) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			price, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			series[tickers[i]] = append(series[tickers[i]], domain.PricePoint{
				Date:   date,
				Ticker: tickers[i],
				Price:  price,
			})
		}
	}

	for _, points := range series {
		sortPoints(points)
	}
	return series, nil
}

// WriteWideCSV writes series for tickers, in that column order, to path.
// Dates are the union across tickers; a ticker without a price on a date
// gets an empty cell.
func WriteWideCSV(path string, series domain.PriceSeries, tickers []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create price file: %w", err)
	}
	if err := writeWideCSV(f, series, tickers); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeWideCSV(w io.Writer, series domain.PriceSeries, tickers []string) error {
	byDate := make(map[time.Time]map[string]float64)
	for _, ticker := range tickers {
		for _, p := range series[ticker] {
			row, ok := byDate[p.Date]
			if !ok {
				row = make(map[string]float64, len(tickers))
				byDate[p.Date] = row
			}
			row[ticker] = p.Price
		}
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{"Date"}, tickers...)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(tickers)+1)
	for _, d := range dates {
		record[0] = d.Format(dateLayout)
		for i, ticker := range tickers {
			if price, ok := byDate[d][ticker]; ok {
				record[i+1] = strconv.FormatFloat(price, 'f', -1, 64)
			} else {
				record[i+1] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write price row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// FilterRange returns the points dated within [start, end]. A zero bound is open.
func FilterRange(points []domain.PricePoint, start, end time.Time) []domain.PricePoint {
	out := make([]domain.PricePoint, 0, len(points))
	for _, p := range points {
		if !start.IsZero() && p.Date.Before(start) {
			continue
		}
		if !end.IsZero() && p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func sortPoints(points []domain.PricePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
}
