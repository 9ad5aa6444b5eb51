package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aitrader/engine/internal/domain"
	"github.com/rs/zerolog"
)

// StrategyConfigRepository persists the one-per-account trigger policy.
type StrategyConfigRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStrategyConfigRepository constructs a StrategyConfigRepository.
func NewStrategyConfigRepository(db *sql.DB, log zerolog.Logger) *StrategyConfigRepository {
	return &StrategyConfigRepository{db: db, log: log.With().Str("repository", "strategy_configs").Logger()}
}

// ListForActiveAccounts returns one row per active account, creating a
// default ("interval", 60s, disabled) row for any active account that does
// not yet have one — mirroring the original system's "create default config
// if missing" refresh behavior.
func (r *StrategyConfigRepository) ListForActiveAccounts() ([]domain.StrategyConfig, error) {
	rows, err := r.db.Query(`
		SELECT a.id, COALESCE(c.trigger_mode, 'interval'), COALESCE(c.interval_seconds, 60),
		       COALESCE(c.tick_batch_size, 5), COALESCE(c.enabled, 0), c.last_trigger_at,
		       COALESCE(c.updated_at, '')
		FROM accounts a
		LEFT JOIN account_strategy_configs c ON c.account_id = a.id
		WHERE a.active = 1
		ORDER BY a.id`)
	if err != nil {
		return nil, fmt.Errorf("list strategy configs: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyConfig
	for rows.Next() {
		var sc domain.StrategyConfig
		var lastTrigger sql.NullString
		var updatedAt string
		if err := rows.Scan(&sc.AccountID, &sc.TriggerMode, &sc.IntervalSeconds,
			&sc.TickBatchSize, &sc.Enabled, &lastTrigger, &updatedAt); err != nil {
			return nil, err
		}
		if lastTrigger.Valid && lastTrigger.String != "" {
			t := parseTimestamp(lastTrigger.String)
			sc.LastTriggerAt = &t
		}
		if updatedAt != "" {
			sc.UpdatedAt = parseTimestamp(updatedAt)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.ensureDefaults(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ensureDefaults inserts a default row for any account missing one, so the
// next refresh sees it without a LEFT JOIN fallback.
func (r *StrategyConfigRepository) ensureDefaults(configs []domain.StrategyConfig) error {
	_, err := r.db.Exec(`
		INSERT INTO account_strategy_configs (account_id, trigger_mode, interval_seconds, tick_batch_size, enabled, updated_at)
		SELECT a.id, 'interval', 60, 5, 0, ?
		FROM accounts a
		LEFT JOIN account_strategy_configs c ON c.account_id = a.id
		WHERE a.active = 1 AND c.account_id IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("ensure default strategy configs: %w", err)
	}
	return nil
}

// UpdateLastTriggerAt persists the in-memory advance of last_trigger_at.
func (r *StrategyConfigRepository) UpdateLastTriggerAt(accountID int64, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE account_strategy_configs SET last_trigger_at = ?, updated_at = ? WHERE account_id = ?`,
		at.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano), accountID)
	if err != nil {
		return fmt.Errorf("update last_trigger_at for account %d: %w", accountID, err)
	}
	return nil
}
