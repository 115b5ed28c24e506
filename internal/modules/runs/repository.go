package runs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/database"
	"github.com/aristath/sharpescan/internal/domain"
)

// runsColumns must match scanRun.
const runsColumns = `id, name, status, params, tickers, started_at, finished_at, combinations, best_sharpe, best_line, oos_sharpe, error`

// Repository stores runs and their per-combination results in results.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a run repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Create inserts a new run.
func (r *Repository) Create(run *Run) error {
	params, err := json.Marshal(run.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode run params: %w", err)
	}
	tickers, err := json.Marshal(run.Tickers)
	if err != nil {
		return fmt.Errorf("failed to encode run tickers: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO runs (id, name, status, params, tickers, started_at, combinations)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Name, string(run.Status), string(params), string(tickers), run.StartedAt.Unix(), run.Combinations)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	r.log.Debug().Str("run_id", run.ID).Str("name", run.Name).Msg("Run created")
	return nil
}

// SetStatus moves a run to status.
func (r *Repository) SetStatus(id string, status Status) error {
	return r.update(id, "UPDATE runs SET status = ? WHERE id = ?", string(status), id)
}

// SetCombinations records how many combinations the run will evaluate.
func (r *Repository) SetCombinations(id string, n int) error {
	return r.update(id, "UPDATE runs SET combinations = ? WHERE id = ?", n, id)
}

// Complete marks a run finished with its headline numbers.
func (r *Repository) Complete(id string, finishedAt time.Time, bestSharpe float64, bestLine int, oosSharpe *float64) error {
	return r.update(id, `
		UPDATE runs
		SET status = ?, finished_at = ?, best_sharpe = ?, best_line = ?, oos_sharpe = ?, error = NULL
		WHERE id = ?
	`, string(StatusCompleted), finishedAt.Unix(), bestSharpe, bestLine, nullFloat64Ptr(oosSharpe), id)
}

// Fail marks a run failed with its error message.
func (r *Repository) Fail(id string, finishedAt time.Time, message string) error {
	return r.update(id, "UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE id = ?",
		string(StatusFailed), finishedAt.Unix(), message, id)
}

func (r *Repository) update(id, query string, args ...interface{}) error {
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// SaveResults replaces the stored results of a run. Rank is the position in
// results, so rank n-1 is CSV line n.
func (r *Repository) SaveResults(runID string, results []domain.CombinationResult) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM run_results WHERE run_id = ?", runID); err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO run_results (run_id, rank, indices, weights, sharpe)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, res := range results {
			indices, err := json.Marshal(res.Combination)
			if err != nil {
				return err
			}
			weights, err := json.Marshal(res.BestWeights)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(runID, i, string(indices), string(weights), res.BestSharpe); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save results for run %s: %w", runID, err)
	}

	r.log.Debug().Str("run_id", runID).Int("results", len(results)).Msg("Run results saved")
	return nil
}

// Get returns the run with id.
func (r *Repository) Get(id string) (*Run, error) {
	row := r.db.QueryRow("SELECT "+runsColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs first. A non-positive limit returns all.
func (r *Repository) List(limit int) ([]Run, error) {
	query := "SELECT " + runsColumns + " FROM runs ORDER BY started_at DESC, id"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Results returns the stored results of a run in enumeration order.
func (r *Repository) Results(runID string) ([]domain.CombinationResult, error) {
	return r.queryResults(`
		SELECT rank, indices, weights, sharpe FROM run_results
		WHERE run_id = ? ORDER BY rank
	`, runID)
}

// TopResults returns the n best results of a run, highest Sharpe first.
// Ties keep enumeration order.
func (r *Repository) TopResults(runID string, n int) ([]domain.CombinationResult, error) {
	return r.queryResults(`
		SELECT rank, indices, weights, sharpe FROM run_results
		WHERE run_id = ? ORDER BY sharpe DESC, rank LIMIT ?
	`, runID, n)
}

func (r *Repository) queryResults(query string, args ...interface{}) ([]domain.CombinationResult, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []domain.CombinationResult
	for rows.Next() {
		var (
			res              domain.CombinationResult
			indices, weights string
		)
		if err := rows.Scan(&res.Rank, &indices, &weights, &res.BestSharpe); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(indices), &res.Combination); err != nil {
			return nil, fmt.Errorf("result %d: bad indices: %w", res.Rank, err)
		}
		if err := json.Unmarshal([]byte(weights), &res.BestWeights); err != nil {
			return nil, fmt.Errorf("result %d: bad weights: %w", res.Rank, err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// Delete removes a run and its results.
func (r *Repository) Delete(id string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM run_results WHERE run_id = ?", id); err != nil {
			return err
		}
		res, err := tx.Exec("DELETE FROM runs WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil
	})
}

// MarkInterrupted fails runs left pending or running by a previous process.
func (r *Repository) MarkInterrupted(now time.Time) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ?, error = ?
		WHERE status IN (?, ?)
	`, string(StatusFailed), now.Unix(), "interrupted by shutdown", string(StatusPending), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run          Run
		status       string
		params       string
		tickers      string
		startedAt    int64
		finishedAt   sql.NullInt64
		bestSharpe   sql.NullFloat64
		bestLine     sql.NullInt64
		oosSharpe    sql.NullFloat64
		errorMessage sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Name, &status, &params, &tickers, &startedAt, &finishedAt,
		&run.Combinations, &bestSharpe, &bestLine, &oosSharpe, &errorMessage); err != nil {
		return nil, err
	}

	run.Status = Status(status)
	if err := json.Unmarshal([]byte(params), &run.Profile); err != nil {
		return nil, fmt.Errorf("bad params for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(tickers), &run.Tickers); err != nil {
		return nil, fmt.Errorf("bad tickers for run %s: %w", run.ID, err)
	}
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		run.FinishedAt = &t
	}
	if bestSharpe.Valid {
		v := bestSharpe.Float64
		run.BestSharpe = &v
	}
	if bestLine.Valid {
		v := int(bestLine.Int64)
		run.BestLine = &v
	}
	if oosSharpe.Valid {
		v := oosSharpe.Float64
		run.OOSSharpe = &v
	}
	run.Error = errorMessage.String
	return &run, nil
}

func nullFloat64Ptr(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
