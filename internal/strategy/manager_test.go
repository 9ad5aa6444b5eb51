package strategy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/market"
	"github.com/aitrader/engine/internal/telemetry"
)

type fakeAccounts struct {
	accounts []domain.Account
}

func (f *fakeAccounts) ListActive() ([]domain.Account, error) { return f.accounts, nil }

type fakeConfigs struct {
	mu      sync.Mutex
	configs []domain.StrategyConfig
	updates int32
}

func (f *fakeConfigs) ListForActiveAccounts() ([]domain.StrategyConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StrategyConfig, len(f.configs))
	copy(out, f.configs)
	return out, nil
}

func (f *fakeConfigs) UpdateLastTriggerAt(accountID int64, at time.Time) error {
	atomic.AddInt32(&f.updates, 1)
	return nil
}

type fakeRunner struct {
	calls  int32
	block  chan struct{}
	fail   bool
}

func (f *fakeRunner) RunForAccount(ctx context.Context, accountID int64) error {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.fail {
		return assertErr{"boom"}
	}
	return nil
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestManager_TriggersEnabledAccountOnPriceEvent(t *testing.T) {
	accounts := &fakeAccounts{accounts: []domain.Account{{ID: 1, Active: true, AutoTradingEnabled: true}}}
	configs := &fakeConfigs{configs: []domain.StrategyConfig{{AccountID: 1, TriggerMode: domain.TriggerRealtime, Enabled: true}}}
	runner := &fakeRunner{}
	tel := telemetry.New(zerolog.Nop())

	m := New(accounts, configs, runner, tel, zerolog.Nop())
	bus := market.NewBus(zerolog.Nop())
	m.Start(bus)

	bus.Publish(market.PriceEvent{Symbol: "BTC", Price: 1, EventTime: time.Now()})

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runner.calls) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&configs.updates) == 1 }, time.Second, 5*time.Millisecond)
}

func TestManager_SingleFlightSkipsTriggerWhileRunning(t *testing.T) {
	accounts := &fakeAccounts{accounts: []domain.Account{{ID: 1, Active: true, AutoTradingEnabled: true}}}
	configs := &fakeConfigs{configs: []domain.StrategyConfig{{AccountID: 1, TriggerMode: domain.TriggerRealtime, Enabled: true}}}
	runner := &fakeRunner{block: make(chan struct{})}
	tel := telemetry.New(zerolog.Nop())

	m := New(accounts, configs, runner, tel, zerolog.Nop())
	bus := market.NewBus(zerolog.Nop())
	m.Start(bus)

	bus.Publish(market.PriceEvent{Symbol: "BTC", Price: 1, EventTime: time.Now()})
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runner.calls) == 1 }, time.Second, 5*time.Millisecond)

	// Second event while the first run is still blocked must not start a
	// second concurrent run.
	bus.Publish(market.PriceEvent{Symbol: "BTC", Price: 2, EventTime: time.Now().Add(5 * time.Second)})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.calls))

	close(runner.block)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&configs.updates) == 1 }, time.Second, 5*time.Millisecond)
}

func TestManager_DisabledAccountNeverTriggers(t *testing.T) {
	accounts := &fakeAccounts{accounts: []domain.Account{{ID: 1, Active: true, AutoTradingEnabled: false}}}
	configs := &fakeConfigs{configs: []domain.StrategyConfig{{AccountID: 1, TriggerMode: domain.TriggerRealtime, Enabled: true}}}
	runner := &fakeRunner{}
	tel := telemetry.New(zerolog.Nop())

	m := New(accounts, configs, runner, tel, zerolog.Nop())
	bus := market.NewBus(zerolog.Nop())
	m.Start(bus)

	bus.Publish(market.PriceEvent{Symbol: "BTC", Price: 1, EventTime: time.Now()})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runner.calls))
}
