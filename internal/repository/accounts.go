package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aitrader/engine/internal/domain"
	"github.com/rs/zerolog"
)

// AccountRepository persists Account rows.
type AccountRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAccountRepository constructs an AccountRepository.
func NewAccountRepository(db *sql.DB, log zerolog.Logger) *AccountRepository {
	return &AccountRepository{db: db, log: log.With().Str("repository", "accounts").Logger()}
}

// ListActive returns every account with active=true, oldest first.
func (r *AccountRepository) ListActive() ([]domain.Account, error) {
	rows, err := r.db.Query(`
		SELECT id, display_name, active, auto_trading_enabled, oracle_base_url,
		       oracle_model, oracle_api_key, exchange_api_key, exchange_api_secret,
		       created_at, updated_at
		FROM accounts WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// GetByID fetches one account; returns sql.ErrNoRows if absent.
func (r *AccountRepository) GetByID(id int64) (*domain.Account, error) {
	row := r.db.QueryRow(`
		SELECT id, display_name, active, auto_trading_enabled, oracle_base_url,
		       oracle_model, oracle_api_key, exchange_api_key, exchange_api_secret,
		       created_at, updated_at
		FROM accounts WHERE id = ?`, id)

	acc, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Create inserts a new account and returns its assigned id.
func (r *AccountRepository) Create(acc *domain.Account) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.Exec(`
		INSERT INTO accounts (display_name, active, auto_trading_enabled, oracle_base_url,
		       oracle_model, oracle_api_key, exchange_api_key, exchange_api_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.DisplayName, acc.Active, acc.AutoTradingEnabled, acc.OracleBaseURL,
		acc.OracleModel, acc.OracleAPIKey, acc.ExchangeAPIKey, acc.ExchangeAPISecret,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("create account: %w", err)
	}
	return res.LastInsertId()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var acc domain.Account
	var createdAt, updatedAt string
	err := row.Scan(&acc.ID, &acc.DisplayName, &acc.Active, &acc.AutoTradingEnabled,
		&acc.OracleBaseURL, &acc.OracleModel, &acc.OracleAPIKey,
		&acc.ExchangeAPIKey, &acc.ExchangeAPISecret, &createdAt, &updatedAt)
	if err != nil {
		return domain.Account{}, err
	}
	acc.CreatedAt = parseTimestamp(createdAt)
	acc.UpdatedAt = parseTimestamp(updatedAt)
	return acc, nil
}

// parseTimestamp tries the handful of formats SQLite round-trips through
// this schema (RFC3339Nano written by this package, or the DEFAULT
// strftime format for rows inserted outside Go).
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
