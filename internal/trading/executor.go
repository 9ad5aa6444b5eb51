// Package trading implements the Trade Executor (C6): translates a
// validated, non-HOLD decision into broker orders, sizing and affordability
// checks grounded on original_source/backend/services/order_executor.py's
// place_and_execute, generalized from its single-US-equity-lot case to the
// BUY/SELL/CLOSE cases in spec.md §4.6. HOLD never reaches this package —
// internal/decision.Pipeline handles it directly.
package trading

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aitrader/engine/internal/decision"
	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/exchange"
)

// Broker is the C1 surface the executor needs: refetching balances/positions
// and submitting orders. Satisfied structurally by *exchange.Client.
type Broker interface {
	GetBalanceAndPositions(ctx context.Context, acc *domain.Account) (float64, []domain.Position, error)
	ExecuteOrder(ctx context.Context, acc *domain.Account, symbol, side string, qty, refPrice float64, orderType exchange.OrderType) (string, error)
}

// PriceSource is the C3 surface the executor needs to size a BUY.
type PriceSource interface {
	Get(symbol, venue string) (float64, bool)
}

// Publisher is the narrow C8 surface the executor depends on, declared here
// so this package never imports internal/broadcast (Design Notes §9).
type Publisher interface {
	PublishTrade(accountID int64, operation, symbol string, qty float64, orderID string)
	PublishPositions(accountID int64, positions []domain.Position)
}

const venue = "binance"

// Executor implements decision.Executor.
type Executor struct {
	broker    Broker
	prices    PriceSource
	publisher Publisher

	commissionRate float64
	minCommission  float64

	log zerolog.Logger
}

// New constructs an Executor.
func New(broker Broker, prices PriceSource, publisher Publisher, commissionRate, minCommission float64, log zerolog.Logger) *Executor {
	return &Executor{
		broker:         broker,
		prices:         prices,
		publisher:      publisher,
		commissionRate: commissionRate,
		minCommission:  minCommission,
		log:            log.With().Str("component", "trade_executor").Logger(),
	}
}

// Execute runs a validated BUY/SELL/CLOSE decision per spec.md §4.6. A
// returned error means the executor itself could not run (e.g. the
// affordability/position-lookup refetch failed); an InsufficientCash or
// NoPosition rejection is reported as a non-executed result, not an error,
// matching the DecisionLog's executed=false contract.
func (e *Executor) Execute(ctx context.Context, account *domain.Account, d *domain.Decision) (decision.ExecutionResult, error) {
	switch d.Operation {
	case domain.OpBuy:
		return e.executeBuy(ctx, account, d)
	case domain.OpSell, domain.OpClose:
		return e.executeSell(ctx, account, d)
	default:
		return decision.ExecutionResult{}, fmt.Errorf("trade executor does not handle operation %q", d.Operation)
	}
}

func (e *Executor) executeBuy(ctx context.Context, account *domain.Account, d *domain.Decision) (decision.ExecutionResult, error) {
	cash, _, err := e.broker.GetBalanceAndPositions(ctx, account)
	if err != nil {
		return decision.ExecutionResult{}, fmt.Errorf("refetch balance for account %d: %w", account.ID, err)
	}

	currentPrice, ok := e.prices.Get(d.Symbol, venue)
	if !ok || currentPrice <= 0 {
		return decision.ExecutionResult{FailureReason: "NoPriceAvailable"}, nil
	}

	orderValue := cash * d.TargetPortion
	qty := roundQty(orderValue / currentPrice)
	commission := calcCommission(orderValue, e.commissionRate, e.minCommission)
	cashNeeded := orderValue + commission

	if cashNeeded > cash {
		e.log.Info().Int64("account_id", account.ID).Str("symbol", d.Symbol).Msg("buy rejected, insufficient cash")
		return decision.ExecutionResult{FailureReason: "InsufficientCash"}, nil
	}

	orderID, err := e.broker.ExecuteOrder(ctx, account, d.Symbol, "BUY", qty, currentPrice, exchange.OrderMarket)
	if err != nil {
		return decision.ExecutionResult{FailureReason: err.Error()}, nil
	}

	e.verifyBuy(ctx, account, d.Symbol, qty, orderID)
	e.publisher.PublishTrade(account.ID, string(d.Operation), d.Symbol, qty, orderID)
	return decision.ExecutionResult{Executed: true, BrokerOrderID: &orderID}, nil
}

func (e *Executor) executeSell(ctx context.Context, account *domain.Account, d *domain.Decision) (decision.ExecutionResult, error) {
	_, positions, err := e.broker.GetBalanceAndPositions(ctx, account)
	if err != nil {
		return decision.ExecutionResult{}, fmt.Errorf("refetch positions for account %d: %w", account.ID, err)
	}

	pos, found := findPosition(positions, d.Symbol)
	if !found {
		e.log.Info().Int64("account_id", account.ID).Str("symbol", d.Symbol).Msg("sell rejected, no position held")
		return decision.ExecutionResult{FailureReason: "NoPosition"}, nil
	}

	available := pos.FreeQty
	qty := sellQty(available, d.TargetPortion)

	currentPrice, _ := e.prices.Get(d.Symbol, venue)
	orderID, err := e.broker.ExecuteOrder(ctx, account, d.Symbol, "SELL", qty, currentPrice, exchange.OrderMarket)
	if err != nil {
		return decision.ExecutionResult{FailureReason: err.Error()}, nil
	}

	e.verifySell(ctx, account, d.Symbol, available, qty, orderID)
	e.publisher.PublishTrade(account.ID, string(d.Operation), d.Symbol, qty, orderID)
	return decision.ExecutionResult{Executed: true, BrokerOrderID: &orderID}, nil
}

func findPosition(positions []domain.Position, symbol string) (domain.Position, bool) {
	for _, p := range positions {
		if strings.EqualFold(p.Symbol, symbol) {
			return p, true
		}
	}
	return domain.Position{}, false
}

// verifyBuy is best-effort per spec.md §4.6: it never turns a filled order
// back into a failure, it only logs a warning when the broker's post-trade
// state looks off.
func (e *Executor) verifyBuy(ctx context.Context, account *domain.Account, symbol string, qty float64, orderID string) {
	_, positions, err := e.broker.GetBalanceAndPositions(ctx, account)
	if err != nil {
		e.log.Warn().Err(err).Str("order_id", orderID).Msg("post-trade verification fetch failed, skipping")
		return
	}
	e.publisher.PublishPositions(account.ID, positions)
	pos, found := findPosition(positions, symbol)
	if !found || pos.TotalQty < qty*0.95 {
		e.log.Warn().Str("order_id", orderID).Str("symbol", symbol).Float64("expected_qty", qty).Msg("post-trade verification mismatch on buy")
	}
}

func (e *Executor) verifySell(ctx context.Context, account *domain.Account, symbol string, priorAvailable, qty float64, orderID string) {
	_, positions, err := e.broker.GetBalanceAndPositions(ctx, account)
	if err != nil {
		e.log.Warn().Err(err).Str("order_id", orderID).Msg("post-trade verification fetch failed, skipping")
		return
	}
	e.publisher.PublishPositions(account.ID, positions)
	pos, found := findPosition(positions, symbol)
	if found && pos.TotalQty > priorAvailable-qty+qty*0.05 {
		e.log.Warn().Str("order_id", orderID).Str("symbol", symbol).Msg("post-trade verification mismatch on sell")
	}
}
