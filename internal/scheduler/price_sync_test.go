package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	tickers  []string
	deadline bool
	n        int
	err      error
}

func (s *stubRefresher) Refresh(ctx context.Context, tickers []string) (int, error) {
	s.tickers = tickers
	_, s.deadline = ctx.Deadline()
	return s.n, s.err
}

func TestPriceSyncJob_Run(t *testing.T) {
	refresher := &stubRefresher{n: 2}
	tickers := []string{"AAPL", "MSFT"}
	job := NewPriceSyncJob(refresher, tickers, time.Minute, zerolog.Nop())
	tickers[0] = "MUTATED"

	assert.Equal(t, "price_sync", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, []string{"AAPL", "MSFT"}, refresher.tickers)
	assert.True(t, refresher.deadline)
}

func TestPriceSyncJob_NoTimeout(t *testing.T) {
	refresher := &stubRefresher{}
	job := NewPriceSyncJob(refresher, []string{"KO"}, 0, zerolog.Nop())
	require.NoError(t, job.Run())
	assert.False(t, refresher.deadline)
}

func TestPriceSyncJob_Error(t *testing.T) {
	job := NewPriceSyncJob(&stubRefresher{n: 1, err: errors.New("quota exhausted")}, []string{"KO", "PG"}, time.Minute, zerolog.Nop())
	assert.ErrorContains(t, job.Run(), "quota exhausted")
}
