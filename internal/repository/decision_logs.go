package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aitrader/engine/internal/domain"
	"github.com/rs/zerolog"
)

// DecisionLogRepository persists append-only decision records.
type DecisionLogRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewDecisionLogRepository constructs a DecisionLogRepository.
func NewDecisionLogRepository(db *sql.DB, log zerolog.Logger) *DecisionLogRepository {
	return &DecisionLogRepository{db: db, log: log.With().Str("repository", "decision_logs").Logger()}
}

// Create inserts one DecisionLog row and returns its id.
func (r *DecisionLogRepository) Create(d *domain.DecisionLog) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO ai_decision_logs (account_id, decided_at, operation, symbol, previous_portion,
		       target_portion, total_balance, executed, broker_order_id, failure_reason,
		       prompt_snapshot, reasoning_snapshot, raw_decision_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.AccountID, d.DecidedAt.UTC().Format(time.RFC3339Nano), string(d.Operation),
		nullableString(d.Symbol), d.PreviousPortion, d.TargetPortion, d.TotalBalance,
		d.Executed, nullableString(d.BrokerOrderID), d.FailureReason,
		d.PromptSnapshot, d.ReasoningSnapshot, d.RawDecisionSnapshot)
	if err != nil {
		return 0, fmt.Errorf("create decision log: %w", err)
	}
	return res.LastInsertId()
}

// GetRecentForAccount returns the most recent decision rows for an account,
// newest first, capped at limit.
func (r *DecisionLogRepository) GetRecentForAccount(accountID int64, limit int) ([]domain.DecisionLog, error) {
	rows, err := r.db.Query(`
		SELECT id, account_id, decided_at, operation, symbol, previous_portion, target_portion,
		       total_balance, executed, broker_order_id, failure_reason, prompt_snapshot,
		       reasoning_snapshot, raw_decision_snapshot
		FROM ai_decision_logs WHERE account_id = ? ORDER BY decided_at DESC, id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent decision logs: %w", err)
	}
	defer rows.Close()

	var out []domain.DecisionLog
	for rows.Next() {
		d, err := scanDecisionLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDecisionLog(rows *sql.Rows) (domain.DecisionLog, error) {
	var d domain.DecisionLog
	var decidedAt string
	var symbol, brokerOrderID sql.NullString
	var op string
	err := rows.Scan(&d.ID, &d.AccountID, &decidedAt, &op, &symbol, &d.PreviousPortion,
		&d.TargetPortion, &d.TotalBalance, &d.Executed, &brokerOrderID, &d.FailureReason,
		&d.PromptSnapshot, &d.ReasoningSnapshot, &d.RawDecisionSnapshot)
	if err != nil {
		return domain.DecisionLog{}, err
	}
	d.Operation = domain.Operation(op)
	d.DecidedAt = parseTimestamp(decidedAt)
	if symbol.Valid {
		s := symbol.String
		d.Symbol = &s
	}
	if brokerOrderID.Valid {
		s := brokerOrderID.String
		d.BrokerOrderID = &s
	}
	return d, nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
