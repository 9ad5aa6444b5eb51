// Package decision is the Decision Pipeline (C5): it assembles the prompt
// context for an account, renders it against the account's bound prompt
// template, calls the oracle, validates the reply, and hands a validated
// domain.Decision to the trade executor. Grounded on
// original_source/backend/services/ai_decision_service.py.
package decision

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aitrader/engine/internal/domain"
)

// supportedSymbols lists the tradable symbols in display order, matching
// ai_decision_service.py's SUPPORTED_SYMBOLS.
var supportedSymbols = []string{"BTC", "ETH", "SOL", "DOGE", "XRP", "BNB"}

const (
	commissionNote = "Trading Fees: %.2f%% per trade (minimum %.2f USDT)\n" +
		"Note: When buying, you need %.2f%% extra cash for fees. When selling, you receive %.2f%% less due to fees."

	decisionTaskText = "You are a systematic trader. For each open position decide: buy, sell, hold, or close.\n" +
		"- Avoid pyramiding or increasing size unless an exit plan explicitly allows it.\n" +
		"- Respect risk: keep new exposure within reasonable fractions of available cash (default <= 0.2).\n" +
		"- Close positions when invalidation conditions are met or risk is excessive.\n" +
		"- When data is missing (marked N/A), acknowledge uncertainty before deciding.\n" +
		"- Account for trading fees when sizing trades (see Trading Fees above)."

	outputFormatJSON = "{\n" +
		"  \"operation\": \"buy\" | \"sell\" | \"hold\" | \"close\",\n" +
		"  \"symbol\": \"<BTC|ETH|SOL|BNB|XRP|DOGE>\",\n" +
		"  \"target_portion_of_balance\": <float 0.0-1.0>,\n" +
		"  \"reason\": \"<150 characters maximum>\",\n" +
		"  \"trading_strategy\": \"<2-3 sentences covering signals, risk, execution>\"\n" +
		"}"
)

// portfolioView is the decision-pipeline-local valuation of one account,
// built once per cycle and reused for the prompt context, the executor's
// previous-portion calculation, and the decision log's total_balance.
type portfolioView struct {
	Cash           float64
	Positions      map[string]domain.Position
	PositionValues map[string]float64
	TotalAssets    float64
}

func buildPortfolioView(cash float64, positions []domain.Position, priceFor func(symbol string) float64) portfolioView {
	view := portfolioView{
		Cash:           cash,
		Positions:      make(map[string]domain.Position, len(positions)),
		PositionValues: make(map[string]float64, len(positions)),
	}
	for _, p := range positions {
		if p.TotalQty <= 0 {
			continue
		}
		view.Positions[p.Symbol] = p
		view.PositionValues[p.Symbol] = p.TotalQty * priceFor(p.Symbol)
	}
	view.TotalAssets = domain.TotalAssets(cash, positions, priceFor)
	return view
}

func formatCurrency(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func formatQuantity(value float64) string {
	return fmt.Sprintf("%.6f", value)
}

func buildAccountState(view portfolioView, commissionRate, minCommission float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Available Cash (USDT): %s\n", formatCurrency(view.Cash))
	fmt.Fprintf(&b, "Total Assets (USDT): %s\n\n", formatCurrency(view.TotalAssets))
	fmt.Fprintf(&b, commissionNote+"\n\n", commissionRate*100, minCommission, commissionRate*100, commissionRate*100)
	b.WriteString("Open Positions:\n")

	if len(view.Positions) == 0 {
		b.WriteString("- None")
		return b.String()
	}

	symbols := make([]string, 0, len(view.Positions))
	for s := range view.Positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		p := view.Positions[symbol]
		fmt.Fprintf(&b, "- %s: qty=%s, current_value=%s\n", symbol, formatQuantity(p.TotalQty), formatCurrency(view.PositionValues[symbol]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildMarketSnapshot(view portfolioView, prices map[string]float64) string {
	var lines []string
	for _, symbol := range supportedSymbols {
		price, ok := prices[symbol]
		priceStr := "N/A"
		if ok {
			priceStr = fmt.Sprintf("%.4f", price)
		}
		parts := []string{fmt.Sprintf("%s: price=%s", symbol, priceStr)}
		if pos, held := view.Positions[symbol]; held {
			parts = append(parts, fmt.Sprintf("qty=%s", formatQuantity(pos.TotalQty)))
			parts = append(parts, fmt.Sprintf("position_value=%s", formatCurrency(view.PositionValues[symbol])))
		} else {
			parts = append(parts, "position=flat")
		}
		lines = append(lines, strings.Join(parts, ", "))
	}
	return strings.Join(lines, "\n")
}

func buildSessionContext(account *domain.Account, now time.Time) string {
	runtimeMinutes := "N/A"
	if !account.CreatedAt.IsZero() {
		runtimeMinutes = fmt.Sprintf("%d", int(now.Sub(account.CreatedAt).Minutes()))
	}
	return strings.Join([]string{
		fmt.Sprintf("TRADER_ID: %s", account.DisplayName),
		fmt.Sprintf("MODEL: %s", account.OracleModel),
		fmt.Sprintf("RUNTIME_MINUTES: %s", runtimeMinutes),
		fmt.Sprintf("CURRENT_TIME_UTC: %s", now.UTC().Format(time.RFC3339)),
	}, "\n")
}

func toJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// buildPromptContext assembles the closed key set spec.md §4.5 names. Every
// value is a string; a key this function doesn't populate renders as "N/A"
// via renderTemplate's SafeDict-style lookup, never an error.
func buildPromptContext(account *domain.Account, view portfolioView, prices map[string]float64, commissionRate, minCommission float64, now time.Time) map[string]string {
	pricesPayload := make(map[string]float64, len(prices))
	for k, v := range prices {
		pricesPayload[k] = v
	}

	positionsPayload := make(map[string]map[string]interface{}, len(view.Positions))
	for symbol, p := range view.Positions {
		positionsPayload[symbol] = map[string]interface{}{
			"quantity":      p.TotalQty,
			"current_value": view.PositionValues[symbol],
		}
	}

	portfolioPayload := map[string]interface{}{
		"cash":          view.Cash,
		"positions":     positionsPayload,
		"total_assets":  view.TotalAssets,
	}

	return map[string]string{
		"account_state":            buildAccountState(view, commissionRate, minCommission),
		"market_snapshot":          buildMarketSnapshot(view, prices),
		"session_context":          buildSessionContext(account, now),
		"decision_task":            decisionTaskText,
		"output_format":            outputFormatJSON,
		"prices_json":              toJSON(pricesPayload),
		"portfolio_json":           toJSON(portfolioPayload),
		"portfolio_positions_json": toJSON(positionsPayload),
		"news_section":             "N/A",
		"account_name":             account.DisplayName,
		"model_name":               account.OracleModel,
	}
}
