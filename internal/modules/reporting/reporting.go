// Package reporting renders search results in the portfolio line format and
// writes the run summary.
package reporting

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/sharpescan/internal/domain"
)

const dateLayout = "2006-01-02"

// File names written into a results directory.
const (
	PortfoliosFile = "bestPortfolios.csv"
	SummaryFile    = "results.txt"
)

// FormatLine renders one result as "AAPL = 20.0%;MSFT = 15.5%;...;Sharpe = 1.234".
func FormatLine(r domain.CombinationResult, universe []string) (string, error) {
	tickers, err := r.Combination.Tickers(universe)
	if err != nil {
		return "", err
	}
	if len(tickers) != len(r.BestWeights) {
		return "", fmt.Errorf("%w: %d weights for %d tickers", domain.ErrMisalignedSeries, len(r.BestWeights), len(tickers))
	}

	var b strings.Builder
	for i, t := range tickers {
		fmt.Fprintf(&b, "%s = %.1f%%;", t, r.BestWeights[i]*100)
	}
	fmt.Fprintf(&b, "Sharpe = %.3f", r.BestSharpe)
	return b.String(), nil
}

// WriteResults writes one formatted line per result, in result order, so
// line n holds result n-1.
func WriteResults(w io.Writer, results []domain.CombinationResult, universe []string) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		line, err := FormatLine(r, universe)
		if err != nil {
			return fmt.Errorf("result %d: %w", r.Rank, err)
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteResultsCSV writes WriteResults output to path, creating directories.
func WriteResultsCSV(path string, results []domain.CombinationResult, universe []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	if err := WriteResults(f, results, universe); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// TopN returns the n results with the highest Sharpe, best first. Ties keep
// enumeration order.
func TopN(results []domain.CombinationResult, n int) []domain.CombinationResult {
	sorted := append([]domain.CombinationResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BestSharpe > sorted[j].BestSharpe
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// BacktestSummary is the out-of-sample part of a summary.
type BacktestSummary struct {
	Start  time.Time
	End    time.Time
	Sharpe float64
}

// Summary collects what a run reports in results.txt.
type Summary struct {
	Start          time.Time
	End            time.Time
	BestSharpe     float64
	BestLine       int
	PortfoliosPath string
	Elapsed        time.Duration
	Backtest       *BacktestSummary
}

// Lines renders the summary. Section headers are preceded by an empty line.
func (s Summary) Lines() []string {
	lines := []string{
		"",
		fmt.Sprintf("=== Initial Simulation %s → %s ===", s.Start.Format(dateLayout), s.End.Format(dateLayout)),
		fmt.Sprintf("Best Sharpe (in-sample): %.3f (CSV line: %d)", s.BestSharpe, s.BestLine),
	}
	if s.PortfoliosPath != "" {
		lines = append(lines, "Wrote detailed portfolios to "+s.PortfoliosPath)
	}
	lines = append(lines, fmt.Sprintf("Simulation took: %.0f seconds", s.Elapsed.Seconds()))

	if bt := s.Backtest; bt != nil {
		lines = append(lines,
			"",
			fmt.Sprintf("=== Backtest %s → %s ===", bt.Start.Format(dateLayout), bt.End.Format(dateLayout)),
			fmt.Sprintf("Sharpe Ratio (%s): %.3f", PeriodLabel(bt.Start, bt.End), bt.Sharpe),
		)
	}
	return lines
}

// WriteSummary writes the summary lines to path.
func WriteSummary(path string, s Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	content := strings.Join(s.Lines(), "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// PeriodLabel names a date range: "Q1 2025" for an exact calendar quarter,
// "2025" for a calendar year, otherwise "start → end".
func PeriodLabel(start, end time.Time) string {
	if start.Day() == 1 && (start.Month()-1)%3 == 0 {
		qEnd := start.AddDate(0, 3, -1)
		if sameDay(qEnd, end) {
			return fmt.Sprintf("Q%d %d", (start.Month()-1)/3+1, start.Year())
		}
		if start.Month() == time.January && sameDay(start.AddDate(1, 0, -1), end) {
			return fmt.Sprintf("%d", start.Year())
		}
	}
	return start.Format(dateLayout) + " → " + end.Format(dateLayout)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

