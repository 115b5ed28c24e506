package historical

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/aristath/sharpescan/internal/database"
	"github.com/aristath/sharpescan/internal/domain"
)

// HistoryDB stores daily closing prices per ticker.
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewHistoryDB wraps an open database that already carries the history schema.
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
		now: time.Now,
	}
}

// OpenHistoryDB opens (creating if needed) the history database at path and
// applies its schema.
func OpenHistoryDB(path string, log zerolog.Logger) (*HistoryDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One writer at a time; readers queue behind it.
	db.SetMaxOpenConns(1)

	schema, err := database.Schema(database.NameHistory)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return NewHistoryDB(db, log), nil
}

// Close closes the underlying database.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Upsert inserts or replaces the given points for ticker in one transaction.
func (h *HistoryDB) Upsert(ticker, source string, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	now := h.now().Unix()
	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO daily_prices (ticker, date, close, source, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.Exec(ticker, p.Date.Format(dateLayout), p.Price, source, now); err != nil {
				return fmt.Errorf("failed to upsert %s %s: %w", ticker, p.Date.Format(dateLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.log.Debug().
		Str("ticker", ticker).
		Str("source", source).
		Int("count", len(points)).
		Msg("Stored daily prices")
	return nil
}

// Range returns the stored points for ticker within [start, end], ascending.
// A zero bound is open.
func (h *HistoryDB) Range(ticker string, start, end time.Time) ([]domain.PricePoint, error) {
	lo, hi := "0000-00-00", "9999-99-99"
	if !start.IsZero() {
		lo = start.Format(dateLayout)
	}
	if !end.IsZero() {
		hi = end.Format(dateLayout)
	}

	rows, err := h.db.Query(`
		SELECT date, close
		FROM daily_prices
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, ticker, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var date string
		var price float64
		if err := rows.Scan(&date, &price); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			h.log.Warn().Str("ticker", ticker).Str("date", date).Msg("Skipping row with invalid date")
			continue
		}
		points = append(points, domain.PricePoint{Date: d, Ticker: ticker, Price: price})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}
	return points, nil
}

// LatestDate returns the most recent stored date for ticker, or the zero time.
func (h *HistoryDB) LatestDate(ticker string) (time.Time, error) {
	var date sql.NullString
	err := h.db.QueryRow("SELECT MAX(date) FROM daily_prices WHERE ticker = ?", ticker).Scan(&date)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest date: %w", err)
	}
	if !date.Valid {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, date.String)
}
