package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TickRepository persists the raw price tick store named in spec.md §3/§6,
// with retention enforced on every write per §4.2 ("old rows for that
// symbol are swept on each write").
type TickRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTickRepository constructs a TickRepository.
func NewTickRepository(db *sql.DB, log zerolog.Logger) *TickRepository {
	return &TickRepository{db: db, log: log.With().Str("repository", "ticks").Logger()}
}

// Record inserts one tick and deletes rows for the same symbol older than
// retention, relative to eventTime.
func (r *TickRepository) Record(symbol, venue string, price float64, eventTime time.Time, retention time.Duration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tick tx: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO crypto_price_ticks (symbol, venue, price, event_time) VALUES (?, ?, ?, ?)`,
		symbol, venue, price, eventTime.UTC().Format(time.RFC3339Nano))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert tick: %w", err)
	}

	cutoff := eventTime.Add(-retention).UTC().Format(time.RFC3339Nano)
	_, err = tx.Exec(`DELETE FROM crypto_price_ticks WHERE symbol = ? AND event_time < ?`, symbol, cutoff)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prune ticks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tick tx: %w", err)
	}
	return nil
}
