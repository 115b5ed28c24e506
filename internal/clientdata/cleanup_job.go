package clientdata

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob prunes the alphavantage_daily price cache. Series that expired
// within StaleRetention stay behind as the loader's stale fallback.
type CleanupJob struct {
	repo      *Repository
	retention time.Duration
	log       zerolog.Logger
}

// NewCleanupJob creates the daily price cache cleanup.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:      repo,
		retention: StaleRetention,
		log:       log.With().Str("job", "price_cache_cleanup").Logger(),
	}
}

// Run deletes series that expired more than the retention ago and reports
// what the cache still holds.
func (j *CleanupJob) Run() error {
	start := time.Now()
	cutoff := j.repo.now().Add(-j.retention)

	deleted, err := j.repo.DeleteExpiredBefore(TableAlphaVantageDaily, cutoff)
	if err != nil {
		return fmt.Errorf("price cache cleanup: %w", err)
	}
	total, fresh, err := j.repo.Count(TableAlphaVantageDaily)
	if err != nil {
		return fmt.Errorf("price cache cleanup: %w", err)
	}

	j.log.Info().
		Str("table", TableAlphaVantageDaily).
		Int64("deleted", deleted).
		Int64("fresh", fresh).
		Int64("stale", total-fresh).
		Dur("elapsed", time.Since(start)).
		Msg("Price cache pruned")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "price_cache_cleanup"
}
