package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/market"
	"github.com/aitrader/engine/internal/telemetry"
)

// refreshInterval throttles ListForActiveAccounts/ListForActiveAccounts
// polling so a burst of price events doesn't hammer the database; matches
// STRATEGY_REFRESH_INTERVAL in trading_strategy.py.
const refreshInterval = 60 * time.Second

// AccountSource supplies the active-account list.
type AccountSource interface {
	ListActive() ([]domain.Account, error)
}

// ConfigSource supplies and persists per-account trigger policy.
type ConfigSource interface {
	ListForActiveAccounts() ([]domain.StrategyConfig, error)
	UpdateLastTriggerAt(accountID int64, at time.Time) error
}

// Runner executes the decision pipeline (C5) for one account and reports
// whether it ran to completion. Defined consumer-side so this package never
// imports internal/decision.
type Runner interface {
	RunForAccount(ctx context.Context, accountID int64) error
}

// Manager is the Strategy Trigger Engine (C4). It holds one State per
// active account, refreshed in place (never replaced wholesale) so a
// reload can never race a State a goroutine already holds a pointer to.
type Manager struct {
	mu           sync.Mutex
	states       map[int64]*State
	lastRefresh  time.Time

	accounts AccountSource
	configs  ConfigSource
	runner   Runner
	log      zerolog.Logger
	telemetry *telemetry.Log
}

// New constructs a Manager. Call Start to perform the initial refresh and
// subscribe to bus.
func New(accounts AccountSource, configs ConfigSource, runner Runner, tel *telemetry.Log, log zerolog.Logger) *Manager {
	return &Manager{
		states:    make(map[int64]*State),
		accounts:  accounts,
		configs:   configs,
		runner:    runner,
		telemetry: tel,
		log:       log.With().Str("component", "strategy_manager").Logger(),
	}
}

// Start performs a forced refresh and subscribes to the market bus.
func (m *Manager) Start(bus *market.Bus) {
	m.refresh(true)
	bus.Subscribe(m.HandlePriceEvent)
	m.log.Info().Msg("strategy manager subscribed to price events")
}

// refresh reconciles in-memory State against the account/config tables,
// throttled to refreshInterval unless force is set.
func (m *Manager) refresh(force bool) {
	now := time.Now()

	m.mu.Lock()
	due := force || now.Sub(m.lastRefresh) >= refreshInterval
	m.mu.Unlock()
	if !due {
		return
	}

	accounts, err := m.accounts.ListActive()
	if err != nil {
		m.log.Error().Err(err).Msg("failed to list active accounts during strategy refresh")
		return
	}
	configs, err := m.configs.ListForActiveAccounts()
	if err != nil {
		m.log.Error().Err(err).Msg("failed to list strategy configs during strategy refresh")
		return
	}

	configByAccount := make(map[int64]domain.StrategyConfig, len(configs))
	for _, c := range configs {
		configByAccount[c.AccountID] = c
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int64]bool, len(accounts))
	for _, acc := range accounts {
		seen[acc.ID] = true
		cfg, ok := configByAccount[acc.ID]
		if !ok {
			continue
		}
		enabled := cfg.Enabled && acc.AutoTradingEnabled

		if existing, ok := m.states[acc.ID]; ok {
			existing.mu.Lock()
			existing.TriggerMode = cfg.TriggerMode
			existing.IntervalSeconds = cfg.IntervalSeconds
			existing.TickBatchSize = cfg.TickBatchSize
			existing.Enabled = enabled
			existing.LastTriggerAt = cfg.LastTriggerAt
			existing.mu.Unlock()
			continue
		}

		m.states[acc.ID] = &State{
			AccountID:       acc.ID,
			TriggerMode:     cfg.TriggerMode,
			IntervalSeconds: cfg.IntervalSeconds,
			TickBatchSize:   cfg.TickBatchSize,
			Enabled:         enabled,
			LastTriggerAt:   cfg.LastTriggerAt,
		}
	}

	// Drop states for accounts that are no longer active.
	for id := range m.states {
		if !seen[id] {
			delete(m.states, id)
		}
	}

	m.lastRefresh = now
}

func (m *Manager) snapshot() []*State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*State, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	return out
}

// HandlePriceEvent is the market.Handler this manager subscribes with.
func (m *Manager) HandlePriceEvent(event market.PriceEvent) {
	m.telemetry.PriceUpdate(event.Symbol, event.Price)

	m.refresh(false)

	eventTime := event.EventTime
	if eventTime.IsZero() {
		eventTime = time.Now().UTC()
	}

	for _, state := range m.snapshot() {
		if state.TriggerMode == domain.TriggerTickBatch {
			state.IncrementTick()
		} else {
			state.ResetTicks()
		}

		should := state.ShouldTrigger(eventTime)
		if !should {
			continue
		}
		m.triggerAccount(state, eventTime)
	}
}

func (m *Manager) triggerAccount(state *State, eventTime time.Time) {
	if !state.Enabled {
		state.ResetTicks()
		return
	}

	if !state.tryAcquire() {
		m.telemetry.Add(telemetry.LevelWarning, telemetry.CategoryAIDecision,
			"trading still running, skipping trigger",
			map[string]interface{}{"account_id": state.AccountID})
		return
	}

	go m.runTrigger(state, eventTime)
}

func (m *Manager) runTrigger(state *State, eventTime time.Time) {
	defer state.release()
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Int64("account_id", state.AccountID).Msg("decision task panicked")
			m.telemetry.Add(telemetry.LevelError, telemetry.CategoryAIDecision,
				"decision task panicked", map[string]interface{}{"account_id": state.AccountID})
		}
	}()

	m.telemetry.Add(telemetry.LevelInfo, telemetry.CategoryAIDecision,
		"starting decision task", map[string]interface{}{"account_id": state.AccountID})

	ctx := context.Background()
	if err := m.runner.RunForAccount(ctx, state.AccountID); err != nil {
		m.log.Error().Err(err).Int64("account_id", state.AccountID).Msg("strategy trigger failed")
		m.telemetry.Add(telemetry.LevelError, telemetry.CategoryAIDecision,
			"decision task failed", map[string]interface{}{"account_id": state.AccountID, "error": err.Error()})
		return
	}

	state.MarkTriggered(eventTime)
	if err := m.configs.UpdateLastTriggerAt(state.AccountID, eventTime); err != nil {
		m.log.Error().Err(err).Int64("account_id", state.AccountID).Msg("failed to persist last_trigger_at")
	}
	m.telemetry.Add(telemetry.LevelInfo, telemetry.CategoryAIDecision,
		"decision task completed", map[string]interface{}{"account_id": state.AccountID})
}
