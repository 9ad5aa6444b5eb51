// Package domain holds the entities the engine owns or observes: accounts,
// their strategy configuration, prompt templates, decision logs and asset
// snapshots. All booleans here are real Go bools — never the "true"/"false"
// string encoding the system this engine replaces used for its rows.
package domain

import "time"

// TriggerMode selects how price events are turned into oracle invocations.
type TriggerMode string

const (
	TriggerRealtime  TriggerMode = "realtime"
	TriggerInterval  TriggerMode = "interval"
	TriggerTickBatch TriggerMode = "tick_batch"
)

// Operation is the trade action a decision names.
type Operation string

const (
	OpBuy  Operation = "buy"
	OpSell Operation = "sell"
	OpHold Operation = "hold"
	OpClose Operation = "close"
)

// Account is a single autonomous trader: exchange credentials bound to an
// oracle endpoint. It is the unit of isolation for every other component —
// no decision, balance or trigger may blend across accounts.
type Account struct {
	ID                int64
	DisplayName       string
	Active            bool
	AutoTradingEnabled bool
	OracleBaseURL     string
	OracleModel       string
	OracleAPIKey      string
	ExchangeAPIKey    string
	ExchangeAPISecret string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// StrategyConfig is the one-per-account trigger policy.
type StrategyConfig struct {
	AccountID       int64
	TriggerMode     TriggerMode
	IntervalSeconds int  // required iff TriggerMode == TriggerInterval
	TickBatchSize   int  // required iff TriggerMode == TriggerTickBatch
	Enabled         bool // effective only when Account.AutoTradingEnabled is also true
	LastTriggerAt   *time.Time
	UpdatedAt       time.Time
}

// PromptTemplate is a shared, named prompt body. "default" always exists.
type PromptTemplate struct {
	Name           string
	Template       string
	SystemTemplate string // immutable factory default, used to restore Template
	UpdatedAt      time.Time
}

// DecisionLog is one append-only row per oracle invocation that produced a
// parseable reply, or per invocation whose execution was attempted and
// failed.
type DecisionLog struct {
	ID               int64
	AccountID        int64
	DecidedAt        time.Time
	Operation        Operation
	Symbol           *string // nil for hold
	PreviousPortion  float64
	TargetPortion    float64
	TotalBalance     float64
	Executed         bool
	BrokerOrderID    *string
	FailureReason    string // empty when Executed
	PromptSnapshot   string
	ReasoningSnapshot string
	RawDecisionSnapshot string
}

// AssetSnapshot is a time-series (cash, positions_value, total_assets)
// tuple for an account at an event time. Written only by the asset
// snapshot service (C7); retained for 30 days by default and never read
// back on the trading path.
type AssetSnapshot struct {
	ID             int64
	AccountID      int64
	EventTime      time.Time
	Cash           float64
	PositionsValue float64
	TotalAssets    float64
	TriggerSymbol  string
}

// Position is a single non-quote asset balance as reported by the exchange.
type Position struct {
	Symbol   string
	TotalQty float64
	FreeQty  float64
	AvgCost  float64 // always 0: the exchange never reports it (see DESIGN.md)
}

// Order is a normalized open/closed order view.
type Order struct {
	OrderID    string
	Symbol     string
	Side       string // BUY or SELL
	Type       string // MARKET or LIMIT
	Quantity   float64
	Price      *float64 // nil for MARKET
	Status     string
	CreatedAt  time.Time
}

// Decision is the validated, normalized reply from the oracle plus the
// snapshots needed to audit it.
type Decision struct {
	Operation           Operation
	Symbol              string // empty for hold
	TargetPortion       float64
	Reason              string
	TradingStrategy      string
	PromptSnapshot      string
	ReasoningSnapshot   string
	RawDecisionSnapshot string
}
