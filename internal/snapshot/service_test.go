package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/market"
	"github.com/aitrader/engine/internal/telemetry"
)

type fakeAccounts struct{ accounts []domain.Account }

func (f *fakeAccounts) ListActive() ([]domain.Account, error) { return f.accounts, nil }

type fakePortfolio struct {
	byAccount map[int64]struct {
		cash      float64
		positions []domain.Position
	}
}

func (f *fakePortfolio) GetBalanceAndPositions(ctx context.Context, acc *domain.Account) (float64, []domain.Position, error) {
	v := f.byAccount[acc.ID]
	return v.cash, v.positions, nil
}

type fakePrices struct{ prices map[string]float64 }

func (f *fakePrices) Get(symbol, venue string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

type fakeRepo struct {
	created []*domain.AssetSnapshot
	purged  time.Time
}

func (f *fakeRepo) Create(s *domain.AssetSnapshot) (int64, error) {
	f.created = append(f.created, s)
	return int64(len(f.created)), nil
}

func (f *fakeRepo) PurgeOlderThan(cutoff time.Time) (int64, error) {
	f.purged = cutoff
	return 0, nil
}

func (f *fakeRepo) GetRecentForAccount(accountID int64, limit int) ([]domain.AssetSnapshot, error) {
	return nil, nil
}

type fakePublisher struct{ updates []AggregateUpdate }

func (f *fakePublisher) PublishAssetUpdate(update AggregateUpdate) {
	f.updates = append(f.updates, update)
}

func TestService_ValuesEachAccountSkippingMissingPrices(t *testing.T) {
	accounts := &fakeAccounts{accounts: []domain.Account{{ID: 1}, {ID: 2}}}
	portfolio := &fakePortfolio{byAccount: map[int64]struct {
		cash      float64
		positions []domain.Position
	}{
		1: {cash: 100, positions: []domain.Position{{Symbol: "BTC", TotalQty: 1}, {Symbol: "DOGE", TotalQty: 10}}},
		2: {cash: 50, positions: nil},
	}}
	prices := &fakePrices{prices: map[string]float64{"BTC": 60000}}
	repo := &fakeRepo{}
	pub := &fakePublisher{}

	svc := New(Config{
		Accounts:      accounts,
		Portfolio:     portfolio,
		Prices:        prices,
		Repo:          repo,
		Publisher:     pub,
		Telemetry:     telemetry.New(zerolog.Nop()),
		RetentionDays: 30,
	}, zerolog.Nop())

	svc.HandlePriceEvent(market.PriceEvent{Symbol: "BTC", Venue: "binance", Price: 60000, EventTime: time.Now()})

	require.Len(t, repo.created, 2)
	assert.Equal(t, 60100.0, repo.created[0].TotalAssets) // DOGE skipped, no price
	assert.Equal(t, 50.0, repo.created[1].TotalAssets)
	require.Len(t, pub.updates, 1)
	assert.Equal(t, 60000.0, pub.updates[0].SymbolTotals["BTC"])
	_, hasDoge := pub.updates[0].SymbolTotals["DOGE"]
	assert.False(t, hasDoge)
}

func TestService_NoActiveAccountsSkipsWriteAndPublish(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := New(Config{
		Accounts:  &fakeAccounts{},
		Portfolio: &fakePortfolio{},
		Prices:    &fakePrices{prices: map[string]float64{}},
		Repo:      repo,
		Publisher: pub,
		Telemetry: telemetry.New(zerolog.Nop()),
	}, zerolog.Nop())

	svc.HandlePriceEvent(market.PriceEvent{Symbol: "BTC", EventTime: time.Now()})

	assert.Empty(t, repo.created)
	assert.Empty(t, pub.updates)
}
