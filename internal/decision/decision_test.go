package decision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/oracle"
	"github.com/aitrader/engine/internal/telemetry"
)

func TestRenderTemplate_SubstitutesKnownKeysAndDefaultsUnknownToNA(t *testing.T) {
	ctx := map[string]string{"account_state": "cash=100", "model_name": "gpt-5"}
	out := renderTemplate("State: {account_state}, Model: {model_name}, Missing: {typo_key}", ctx)
	assert.Equal(t, "State: cash=100, Model: gpt-5, Missing: N/A", out)
}

func TestValidate_HoldNeverNeedsSymbolOrPortion(t *testing.T) {
	d := &domain.Decision{Operation: domain.OpHold}
	assert.NoError(t, validate(d))
}

func TestValidate_BuyRequiresSupportedSymbolAndPortionRange(t *testing.T) {
	assert.NoError(t, validate(&domain.Decision{Operation: domain.OpBuy, Symbol: "BTC", TargetPortion: 0.2}))
	assert.Error(t, validate(&domain.Decision{Operation: domain.OpBuy, Symbol: "DOGECOIN", TargetPortion: 0.2}))
	assert.Error(t, validate(&domain.Decision{Operation: domain.OpBuy, Symbol: "BTC", TargetPortion: 0}))
	assert.Error(t, validate(&domain.Decision{Operation: domain.OpBuy, Symbol: "BTC", TargetPortion: 1.5}))
}

func TestValidate_RejectsUnrecognizedOperation(t *testing.T) {
	assert.Error(t, validate(&domain.Decision{Operation: "short"}))
}

func TestBuildPortfolioView_ComputesTotalAssetsAndPositionValues(t *testing.T) {
	positions := []domain.Position{{Symbol: "BTC", TotalQty: 0.5}, {Symbol: "ETH", TotalQty: 2}}
	priceFor := func(symbol string) float64 {
		if symbol == "BTC" {
			return 60000
		}
		return 3000
	}
	view := buildPortfolioView(1000, positions, priceFor)

	assert.Equal(t, 1000.0, view.Cash)
	assert.Equal(t, 30000.0, view.PositionValues["BTC"])
	assert.Equal(t, 6000.0, view.PositionValues["ETH"])
	assert.Equal(t, 37000.0, view.TotalAssets)
}

type fakeAccounts struct{ acc *domain.Account }

func (f *fakeAccounts) GetByID(id int64) (*domain.Account, error) { return f.acc, nil }

type fakePortfolio struct {
	cash      float64
	positions []domain.Position
}

func (f *fakePortfolio) GetBalanceAndPositions(ctx context.Context, acc *domain.Account) (float64, []domain.Position, error) {
	return f.cash, f.positions, nil
}

type fakePrices struct{ prices map[string]float64 }

func (f *fakePrices) Get(symbol, venue string) (float64, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

type fakePrompts struct{ tmpl *domain.PromptTemplate }

func (f *fakePrompts) GetBoundTemplate(accountID int64) (*domain.PromptTemplate, error) {
	return f.tmpl, nil
}

type fakeLogs struct {
	created []*domain.DecisionLog
}

func (f *fakeLogs) Create(d *domain.DecisionLog) (int64, error) {
	f.created = append(f.created, d)
	return int64(len(f.created)), nil
}

type fakeExecutor struct {
	result ExecutionResult
	err    error
	calls  int
}

func (f *fakeExecutor) Execute(ctx context.Context, account *domain.Account, d *domain.Decision) (ExecutionResult, error) {
	f.calls++
	return f.result, f.err
}

// oracleStub serves a chat-completion reply whose message content is
// content, for every request.
func oracleStub(t *testing.T, content string) *httptest.Server {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": content}},
		},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newStubbedPipeline builds a Pipeline for account 1 whose oracle is the
// server at oracleURL.
func newStubbedPipeline(oracleURL string, logs *fakeLogs, exec *fakeExecutor) *Pipeline {
	return New(Config{
		Accounts:  &fakeAccounts{acc: &domain.Account{ID: 1, DisplayName: "acct-1", OracleBaseURL: oracleURL, OracleAPIKey: "test-oracle-key", OracleModel: "gpt-4o-mini"}},
		Portfolio: &fakePortfolio{},
		Prices:    &fakePrices{prices: map[string]float64{}},
		Prompts:   &fakePrompts{tmpl: &domain.PromptTemplate{Template: "x"}},
		Oracle:    oracle.New(oracle.Config{RequestTimeout: 5 * time.Second, MaxRetries: 1}, zerolog.Nop()),
		Logs:      logs,
		Executor:  exec,
		Telemetry: telemetry.New(zerolog.Nop()),
	}, zerolog.Nop())
}

func TestPipeline_SkipsPlaceholderCredentialWithoutError(t *testing.T) {
	accounts := &fakeAccounts{acc: &domain.Account{ID: 1, OracleAPIKey: ""}}
	logs := &fakeLogs{}
	p := New(Config{
		Accounts:  accounts,
		Portfolio: &fakePortfolio{},
		Prices:    &fakePrices{prices: map[string]float64{}},
		Prompts:   &fakePrompts{tmpl: &domain.PromptTemplate{Template: "x"}},
		Logs:      logs,
		Executor:  &fakeExecutor{},
		Telemetry: telemetry.New(zerolog.Nop()),
	}, zerolog.Nop())

	err := p.RunForAccount(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, logs.created)
}

func TestPipeline_InvalidDecisionIsNotPersisted(t *testing.T) {
	// The oracle stub replies with a BUY for an unsupported symbol: the
	// pipeline's validation gate must return an error before touching the
	// executor or the log sink.
	d := &domain.Decision{Operation: domain.OpBuy, Symbol: "NOTASYMBOL", TargetPortion: 0.5}
	assert.Error(t, validate(d))

	srv := oracleStub(t, `{"operation": "buy", "symbol": "NOTASYMBOL", "target_portion_of_balance": 0.5, "reason": "x"}`)
	logs := &fakeLogs{}
	exec := &fakeExecutor{}
	p := newStubbedPipeline(srv.URL, logs, exec)

	err := p.RunForAccount(context.Background(), 1)
	assert.Error(t, err)
	assert.Empty(t, logs.created)
	assert.Equal(t, 0, exec.calls)
}

func TestPipeline_HoldLogsExecutedTrueWithNilSymbol(t *testing.T) {
	srv := oracleStub(t, `{"operation": "hold", "symbol": null, "target_portion_of_balance": 0, "reason": "wait"}`)
	logs := &fakeLogs{}
	exec := &fakeExecutor{}
	p := newStubbedPipeline(srv.URL, logs, exec)

	require.NoError(t, p.RunForAccount(context.Background(), 1))
	require.Len(t, logs.created, 1)
	logEntry := logs.created[0]
	assert.Equal(t, domain.OpHold, logEntry.Operation)
	assert.Nil(t, logEntry.Symbol)
	assert.True(t, logEntry.Executed)
	assert.Equal(t, 0, exec.calls)
}

func TestBuildPromptContext_NewsSectionIsAlwaysPresent(t *testing.T) {
	account := &domain.Account{DisplayName: "acct-1", OracleModel: "gpt-5-mini", CreatedAt: time.Now().Add(-time.Hour)}
	view := buildPortfolioView(100, nil, func(string) float64 { return 0 })
	ctx := buildPromptContext(account, view, map[string]float64{}, 0.001, 0.1, time.Now())
	assert.Equal(t, "N/A", ctx["news_section"])
}
