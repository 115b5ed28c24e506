// Package runs persists and orchestrates combination searches.
package runs

import (
	"errors"
	"time"

	"github.com/aristath/sharpescan/internal/config"
	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/modules/backtest"
	"github.com/aristath/sharpescan/internal/modules/reporting"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one stored combination search.
type Run struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Status       Status         `json:"status"`
	Profile      config.Profile `json:"profile"`
	Tickers      []string       `json:"tickers"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Combinations int            `json:"combinations"`
	BestSharpe   *float64       `json:"best_sharpe,omitempty"`
	BestLine     *int           `json:"best_line,omitempty"`
	OOSSharpe    *float64       `json:"oos_sharpe,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Outcome is everything a finished run produced.
type Outcome struct {
	Run            *Run
	Results        []domain.CombinationResult
	Best           domain.CombinationResult
	BestLine       int
	Dir            string
	PortfoliosPath string
	SummaryPath    string
	Summary        reporting.Summary
	ExportKey      string
	Backtest       *backtest.Result
	Elapsed        time.Duration
}
