// Package snapshot implements the Asset Snapshot Service (C7): on every
// market price event it revalues every active account's cash+positions and
// persists one row, sweeping rows past retention on the same write path.
// Grounded on
// original_source/backend/services/asset_snapshot_service.py's
// handle_price_update.
package snapshot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/market"
	"github.com/aitrader/engine/internal/telemetry"
)

// AccountSource lists the accounts this service values on every tick.
type AccountSource interface {
	ListActive() ([]domain.Account, error)
}

// PortfolioSource is the C1 view the service needs: live cash+positions,
// never the database, since balances/positions are exchange-authoritative.
type PortfolioSource interface {
	GetBalanceAndPositions(ctx context.Context, acc *domain.Account) (float64, []domain.Position, error)
}

// PriceSource is the C3 view used to value each position. A missing price
// means that position is skipped for this tick rather than guessed at.
type PriceSource interface {
	Get(symbol, venue string) (float64, bool)
}

// Repository is the persistence surface this service owns exclusively.
type Repository interface {
	Create(s *domain.AssetSnapshot) (int64, error)
	PurgeOlderThan(cutoff time.Time) (int64, error)
	GetRecentForAccount(accountID int64, limit int) ([]domain.AssetSnapshot, error)
}

// AggregateUpdate is the cross-account rollup published after each tick,
// the Go form of the original's arena-wide broadcast payload.
type AggregateUpdate struct {
	GeneratedAt         time.Time
	TotalCash           float64
	TotalPositionsValue float64
	TotalAssets         float64
	SymbolTotals        map[string]float64
}

// Publisher is the narrow C8 surface this service depends on, declared here
// so this package never imports internal/broadcast (Design Notes §9).
type Publisher interface {
	PublishAssetUpdate(update AggregateUpdate)
}

const venue = "binance"

// Service is the Asset Snapshot Service (C7).
type Service struct {
	accounts  AccountSource
	portfolio PortfolioSource
	prices    PriceSource
	repo      Repository
	publisher Publisher
	telemetry *telemetry.Log
	log       zerolog.Logger

	retention time.Duration
}

// Config bundles the collaborators a Service needs.
type Config struct {
	Accounts      AccountSource
	Portfolio     PortfolioSource
	Prices        PriceSource
	Repo          Repository
	Publisher     Publisher
	Telemetry     *telemetry.Log
	RetentionDays int
}

// New constructs a Service.
func New(cfg Config, log zerolog.Logger) *Service {
	retentionDays := cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Service{
		accounts:  cfg.Accounts,
		portfolio: cfg.Portfolio,
		prices:    cfg.Prices,
		repo:      cfg.Repo,
		publisher: cfg.Publisher,
		telemetry: cfg.Telemetry,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		log:       log.With().Str("component", "asset_snapshot_service").Logger(),
	}
}

// Start subscribes the service to the market bus so every price event
// triggers a revaluation pass.
func (s *Service) Start(bus *market.Bus) {
	bus.Subscribe(s.HandlePriceEvent)
}

// HandlePriceEvent is the market.Handler entry point. It never blocks the
// bus for long: each account's broker call has its own short cache/timeout
// upstream, and a single account's failure never stops the others.
func (s *Service) HandlePriceEvent(event market.PriceEvent) {
	accounts, err := s.accounts.ListActive()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list active accounts for snapshot pass")
		return
	}
	if len(accounts) == 0 {
		return
	}

	ctx := context.Background()
	symbolTotals := make(map[string]float64)
	var totalCash, totalPositionsValue float64

	for i := range accounts {
		account := &accounts[i]
		cash, positions, err := s.portfolio.GetBalanceAndPositions(ctx, account)
		if err != nil {
			s.log.Warn().Err(err).Int64("account_id", account.ID).Msg("failed to fetch balance/positions for snapshot")
			continue
		}

		positionsValue := 0.0
		for _, pos := range positions {
			if pos.TotalQty <= 0 {
				continue
			}
			price, ok := s.prices.Get(pos.Symbol, venue)
			if !ok {
				s.log.Debug().Str("symbol", pos.Symbol).Msg("skipping valuation, no cached price")
				continue
			}
			value := price * pos.TotalQty
			positionsValue += value
			symbolTotals[pos.Symbol] += value
		}

		totalCash += cash
		totalPositionsValue += positionsValue

		// A position with no cached price contributes 0, as in the loop above.
		priceFor := func(symbol string) float64 {
			price, _ := s.prices.Get(symbol, venue)
			return price
		}
		snap := &domain.AssetSnapshot{
			AccountID:      account.ID,
			EventTime:      event.EventTime,
			Cash:           cash,
			PositionsValue: positionsValue,
			TotalAssets:    domain.TotalAssets(cash, positions, priceFor),
			TriggerSymbol:  event.Symbol,
		}
		if _, err := s.repo.Create(snap); err != nil {
			s.log.Error().Err(err).Int64("account_id", account.ID).Msg("failed to persist asset snapshot")
			continue
		}
		s.telemetry.Add(telemetry.LevelInfo, telemetry.CategoryPriceUpdate, "asset snapshot recorded", map[string]interface{}{
			"account_id":   account.ID,
			"total_assets": snap.TotalAssets,
		})
	}

	if deleted, err := s.repo.PurgeOlderThan(event.EventTime.Add(-s.retention)); err != nil {
		s.log.Error().Err(err).Msg("failed to purge expired asset snapshots")
	} else if deleted > 0 {
		s.log.Debug().Int64("deleted", deleted).Msg("purged expired asset snapshots")
	}

	if s.publisher != nil {
		s.publisher.PublishAssetUpdate(AggregateUpdate{
			GeneratedAt:         event.EventTime,
			TotalCash:           totalCash,
			TotalPositionsValue: totalPositionsValue,
			TotalAssets:         totalCash + totalPositionsValue,
			SymbolTotals:        symbolTotals,
		})
	}
}

// Snapshot implements internal/broadcast.SnapshotProvider: the most recent
// persisted row for an account, pushed on the broadcaster's own cadence
// independent of price events.
func (s *Service) Snapshot(accountID int64) (interface{}, error) {
	rows, err := s.repo.GetRecentForAccount(accountID, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
