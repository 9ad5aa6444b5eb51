package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aitrader/engine/internal/domain"
	"github.com/rs/zerolog"
)

// AssetSnapshotRepository persists per-account asset snapshots and sweeps
// rows past retention. It is the only writer of account_asset_snapshots,
// matching spec.md §4.7's single-writer invariant — every write happens on
// behalf of the snapshot service (C7), never directly from HTTP or tests
// other than through this repository.
type AssetSnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAssetSnapshotRepository constructs an AssetSnapshotRepository.
func NewAssetSnapshotRepository(db *sql.DB, log zerolog.Logger) *AssetSnapshotRepository {
	return &AssetSnapshotRepository{db: db, log: log.With().Str("repository", "asset_snapshots").Logger()}
}

// Create inserts one snapshot row.
func (r *AssetSnapshotRepository) Create(s *domain.AssetSnapshot) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO account_asset_snapshots (account_id, event_time, cash, positions_value, total_assets, trigger_symbol)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.AccountID, s.EventTime.UTC().Format(time.RFC3339Nano), s.Cash, s.PositionsValue,
		s.TotalAssets, s.TriggerSymbol)
	if err != nil {
		return 0, fmt.Errorf("create asset snapshot: %w", err)
	}
	return res.LastInsertId()
}

// PurgeOlderThan deletes every snapshot row whose event_time precedes the
// cutoff. Called inside every publish per spec.md §4.7 (retention sweep
// runs on each write, not on a separate schedule).
func (r *AssetSnapshotRepository) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM account_asset_snapshots WHERE event_time < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("purge asset snapshots: %w", err)
	}
	return res.RowsAffected()
}

// GetRecentForAccount returns up to limit of the most recent snapshots for
// an account, newest first.
func (r *AssetSnapshotRepository) GetRecentForAccount(accountID int64, limit int) ([]domain.AssetSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT id, account_id, event_time, cash, positions_value, total_assets, trigger_symbol
		FROM account_asset_snapshots WHERE account_id = ?
		ORDER BY event_time DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent asset snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.AssetSnapshot
	for rows.Next() {
		var s domain.AssetSnapshot
		var eventTime string
		if err := rows.Scan(&s.ID, &s.AccountID, &eventTime, &s.Cash, &s.PositionsValue,
			&s.TotalAssets, &s.TriggerSymbol); err != nil {
			return nil, err
		}
		s.EventTime = parseTimestamp(eventTime)
		out = append(out, s)
	}
	return out, rows.Err()
}
