package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/oracle"
	"github.com/aitrader/engine/internal/telemetry"
)

// AccountSource resolves one account by id.
type AccountSource interface {
	GetByID(id int64) (*domain.Account, error)
}

// PortfolioSource is the C1 view the pipeline needs for context assembly.
type PortfolioSource interface {
	GetBalanceAndPositions(ctx context.Context, acc *domain.Account) (float64, []domain.Position, error)
}

// PriceSource is the C3 view the pipeline needs to value positions.
type PriceSource interface {
	Get(symbol, venue string) (float64, bool)
}

// PromptSource resolves an account's bound prompt template.
type PromptSource interface {
	GetBoundTemplate(accountID int64) (*domain.PromptTemplate, error)
}

// DecisionLogSink persists the append-only decision log.
type DecisionLogSink interface {
	Create(d *domain.DecisionLog) (int64, error)
}

// ExecutionResult is what the trade executor (C6) reports back for a
// non-HOLD decision.
type ExecutionResult struct {
	Executed      bool
	BrokerOrderID *string
	FailureReason string
}

// Executor runs a validated non-HOLD decision against the exchange. Defined
// consumer-side so this package never imports internal/trading.
type Executor interface {
	Execute(ctx context.Context, account *domain.Account, d *domain.Decision) (ExecutionResult, error)
}

// Publisher is the narrow C8 surface this pipeline depends on, declared
// here so this package never imports internal/broadcast (Design Notes §9).
type Publisher interface {
	PublishDecision(accountID int64, operation, symbol, reason string, executed bool)
}

const venue = "binance"

// Pipeline is the Decision Pipeline (C5): resolves an account, assembles
// its portfolio/market context, calls the oracle, validates the reply,
// hands a non-HOLD decision to the executor, and writes the DecisionLog.
type Pipeline struct {
	accounts  AccountSource
	portfolio PortfolioSource
	prices    PriceSource
	prompts   PromptSource
	oracle    *oracle.Client
	logs      DecisionLogSink
	executor  Executor
	publisher Publisher
	telemetry *telemetry.Log
	log       zerolog.Logger

	commissionRate float64
	minCommission  float64
}

// Config bundles the collaborators a Pipeline needs.
type Config struct {
	Accounts       AccountSource
	Portfolio      PortfolioSource
	Prices         PriceSource
	Prompts        PromptSource
	Oracle         *oracle.Client
	Logs           DecisionLogSink
	Executor       Executor
	Publisher      Publisher
	Telemetry      *telemetry.Log
	CommissionRate float64
	MinCommission  float64
}

// New constructs a Pipeline.
func New(cfg Config, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		accounts:       cfg.Accounts,
		portfolio:      cfg.Portfolio,
		prices:         cfg.Prices,
		prompts:        cfg.Prompts,
		oracle:         cfg.Oracle,
		logs:           cfg.Logs,
		executor:       cfg.Executor,
		publisher:      cfg.Publisher,
		telemetry:      cfg.Telemetry,
		commissionRate: cfg.CommissionRate,
		minCommission:  cfg.MinCommission,
		log:            log.With().Str("component", "decision_pipeline").Logger(),
	}
}

// RunForAccount implements internal/strategy.Runner: one full decision
// cycle for a single account. Any failure before a usable oracle reply is
// logged and returned as an error (the caller does not advance
// last_trigger_at). A validation failure on the parsed reply is treated the
// same way — spec.md only advances last_trigger_at "on successful oracle
// reply", and a reply this pipeline cannot trust is not a successful one.
func (p *Pipeline) RunForAccount(ctx context.Context, accountID int64) error {
	correlationID := uuid.NewString()
	log := p.log.With().Str("correlation_id", correlationID).Int64("account_id", accountID).Logger()

	account, err := p.accounts.GetByID(accountID)
	if err != nil {
		return fmt.Errorf("load account %d: %w", accountID, err)
	}

	if oracle.IsPlaceholderCredential(account.OracleAPIKey) {
		log.Info().Msg("skipping decision cycle, oracle credential is a placeholder")
		return nil
	}

	cash, positions, err := p.portfolio.GetBalanceAndPositions(ctx, account)
	if err != nil {
		return fmt.Errorf("fetch balance/positions for account %d: %w", accountID, err)
	}

	priceFor := func(symbol string) float64 {
		price, ok := p.prices.Get(symbol, venue)
		if !ok {
			return 0
		}
		return price
	}
	view := buildPortfolioView(cash, positions, priceFor)

	prices := make(map[string]float64, len(supportedSymbols))
	for _, symbol := range supportedSymbols {
		if price, ok := p.prices.Get(symbol, venue); ok {
			prices[symbol] = price
		}
	}

	template, err := p.prompts.GetBoundTemplate(accountID)
	if err != nil {
		return fmt.Errorf("resolve prompt template for account %d: %w", accountID, err)
	}

	now := time.Now()
	promptContext := buildPromptContext(account, view, prices, p.commissionRate, p.minCommission, now)
	prompt := renderTemplate(template.Template, promptContext)

	d, err := p.oracle.Decide(ctx, account.OracleBaseURL, account.OracleAPIKey, account.OracleModel, prompt)
	if err != nil {
		p.telemetry.Error("ORACLE_CALL_FAILED", err.Error(), map[string]interface{}{"account_id": accountID, "correlation_id": correlationID})
		return fmt.Errorf("oracle call failed for account %d: %w", accountID, err)
	}

	if err := validate(d); err != nil {
		p.telemetry.Error("DECISION_VALIDATION_FAILED", err.Error(), map[string]interface{}{"account_id": accountID, "correlation_id": correlationID})
		return fmt.Errorf("invalid oracle decision for account %d: %w", accountID, err)
	}

	prevPortion := 0.0
	if (d.Operation == domain.OpSell || d.Operation == domain.OpHold) && d.Symbol != "" && view.TotalAssets > 0 {
		prevPortion = view.PositionValues[d.Symbol] / view.TotalAssets
	}

	logEntry := &domain.DecisionLog{
		AccountID:           accountID,
		DecidedAt:           now,
		Operation:           d.Operation,
		PreviousPortion:     prevPortion,
		TargetPortion:       d.TargetPortion,
		TotalBalance:        view.TotalAssets,
		PromptSnapshot:      d.PromptSnapshot,
		ReasoningSnapshot:   d.ReasoningSnapshot,
		RawDecisionSnapshot: d.RawDecisionSnapshot,
	}
	if d.Operation != domain.OpHold {
		symbol := d.Symbol
		logEntry.Symbol = &symbol
	}

	if d.Operation == domain.OpHold {
		logEntry.Executed = true
		p.persist(logEntry, account.DisplayName, d, correlationID)
		return nil
	}

	result, err := p.executor.Execute(ctx, account, d)
	if err != nil {
		logEntry.Executed = false
		logEntry.FailureReason = err.Error()
		p.persist(logEntry, account.DisplayName, d, correlationID)
		return nil
	}

	logEntry.Executed = result.Executed
	logEntry.BrokerOrderID = result.BrokerOrderID
	logEntry.FailureReason = result.FailureReason
	p.persist(logEntry, account.DisplayName, d, correlationID)
	return nil
}

// persist writes the DecisionLog row and fans the outcome out to telemetry
// and C8. correlationID ties these lines back to the triggering
// RunForAccount call across every component's log output.
func (p *Pipeline) persist(entry *domain.DecisionLog, accountName string, d *domain.Decision, correlationID string) {
	if _, err := p.logs.Create(entry); err != nil {
		p.log.Error().Err(err).Str("correlation_id", correlationID).Int64("account_id", entry.AccountID).Msg("failed to persist decision log")
	}
	p.telemetry.AIDecision(accountName, string(d.Operation), d.Symbol, d.Reason, entry.Executed)
	if p.publisher != nil {
		p.publisher.PublishDecision(entry.AccountID, string(d.Operation), d.Symbol, d.Reason, entry.Executed)
	}
}
