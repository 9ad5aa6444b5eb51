package trading

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitrader/engine/internal/decision"
	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/exchange"
)

type fakeBroker struct {
	cash      float64
	positions []domain.Position
	orderID   string
	err       error
	calls     int
	lastQty   float64
}

func (f *fakeBroker) GetBalanceAndPositions(ctx context.Context, acc *domain.Account) (float64, []domain.Position, error) {
	return f.cash, f.positions, nil
}

func (f *fakeBroker) ExecuteOrder(ctx context.Context, acc *domain.Account, symbol, side string, qty, refPrice float64, orderType exchange.OrderType) (string, error) {
	f.calls++
	f.lastQty = qty
	if f.err != nil {
		return "", f.err
	}
	return f.orderID, nil
}

type fakePrices struct{ prices map[string]float64 }

func (f *fakePrices) Get(symbol, venue string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

type fakePublisher struct {
	published int
	positions int
}

func (f *fakePublisher) PublishTrade(accountID int64, operation, symbol string, qty float64, orderID string) {
	f.published++
}

func (f *fakePublisher) PublishPositions(accountID int64, positions []domain.Position) {
	f.positions++
}

func TestExecutor_Buy_SubmitsWhenAffordable(t *testing.T) {
	broker := &fakeBroker{cash: 1000, orderID: "ord-1"}
	prices := &fakePrices{prices: map[string]float64{"BTC": 50000}}
	pub := &fakePublisher{}
	e := New(broker, prices, pub, 0.001, 0.1, zerolog.Nop())

	d := &domain.Decision{Operation: domain.OpBuy, Symbol: "BTC", TargetPortion: 0.5}
	result, err := e.Execute(context.Background(), &domain.Account{ID: 1}, d)

	require.NoError(t, err)
	assert.True(t, result.Executed)
	require.NotNil(t, result.BrokerOrderID)
	assert.Equal(t, "ord-1", *result.BrokerOrderID)
	assert.Equal(t, 1, broker.calls)
	assert.Equal(t, 1, pub.published)
}

func TestExecutor_Buy_InsufficientCashNeverCallsBroker(t *testing.T) {
	broker := &fakeBroker{cash: 1.0, orderID: "ord-1"}
	prices := &fakePrices{prices: map[string]float64{"BTC": 50000}}
	e := New(broker, prices, &fakePublisher{}, 0.001, 0.1, zerolog.Nop())

	d := &domain.Decision{Operation: domain.OpBuy, Symbol: "BTC", TargetPortion: 1.0}
	result, err := e.Execute(context.Background(), &domain.Account{ID: 1}, d)

	require.NoError(t, err)
	assert.False(t, result.Executed)
	assert.Equal(t, "InsufficientCash", result.FailureReason)
	assert.Equal(t, 0, broker.calls)
}

func TestExecutor_Sell_NoPositionReportsFailureNotError(t *testing.T) {
	broker := &fakeBroker{cash: 0, positions: nil}
	e := New(broker, &fakePrices{prices: map[string]float64{}}, &fakePublisher{}, 0.001, 0.1, zerolog.Nop())

	d := &domain.Decision{Operation: domain.OpSell, Symbol: "ETH", TargetPortion: 1.0}
	result, err := e.Execute(context.Background(), &domain.Account{ID: 1}, d)

	require.NoError(t, err)
	assert.False(t, result.Executed)
	assert.Equal(t, "NoPosition", result.FailureReason)
	assert.Equal(t, 0, broker.calls)
}

func TestExecutor_Sell_ClampsToFreeQtyAndSubmits(t *testing.T) {
	broker := &fakeBroker{
		positions: []domain.Position{{Symbol: "ETH", TotalQty: 10, FreeQty: 4}},
		orderID:   "ord-2",
	}
	e := New(broker, &fakePrices{prices: map[string]float64{"ETH": 3000}}, &fakePublisher{}, 0.001, 0.1, zerolog.Nop())

	d := &domain.Decision{Operation: domain.OpClose, Symbol: "ETH", TargetPortion: 1.0}
	result, err := e.Execute(context.Background(), &domain.Account{ID: 1}, d)

	require.NoError(t, err)
	assert.True(t, result.Executed)
	assert.Equal(t, 1, broker.calls)
	assert.Equal(t, 4.0, broker.lastQty)
}

func TestExecutor_BrokerErrorIsNonExecutedResultNotGoError(t *testing.T) {
	broker := &fakeBroker{cash: 1000, err: assertErr{"exchange rejected"}}
	prices := &fakePrices{prices: map[string]float64{"BTC": 50000}}
	e := New(broker, prices, &fakePublisher{}, 0.001, 0.1, zerolog.Nop())

	d := &domain.Decision{Operation: domain.OpBuy, Symbol: "BTC", TargetPortion: 0.1}
	result, err := e.Execute(context.Background(), &domain.Account{ID: 1}, d)

	require.NoError(t, err)
	assert.False(t, result.Executed)
	assert.Equal(t, "exchange rejected", result.FailureReason)
}

type assertErr struct{ msg string }

func (a assertErr) Error() string { return a.msg }

var _ decision.Executor = (*Executor)(nil)
