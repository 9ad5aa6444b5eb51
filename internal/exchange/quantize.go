package exchange

import (
	"strings"

	"github.com/shopspring/decimal"
)

// symbolRule names the exchange's quantity granularity and minimum order
// value for one symbol. Grounded on
// original_source/backend/services/binance_sync.py's step_size_map /
// min_notional_map. Unknown symbols fall back to defaultStepSize /
// defaultMinNotional per spec.md §4.1 step 2.
type symbolRule struct {
	StepSize    decimal.Decimal
	MinNotional decimal.Decimal
}

var (
	defaultStepSize    = decimal.NewFromFloat(0.00001)
	defaultMinNotional = decimal.NewFromFloat(10.0)
)

var symbolRules = map[string]symbolRule{
	"BTC":  {StepSize: decimal.NewFromFloat(0.00001), MinNotional: decimal.NewFromFloat(10.0)},
	"ETH":  {StepSize: decimal.NewFromFloat(0.0001), MinNotional: decimal.NewFromFloat(10.0)},
	"SOL":  {StepSize: decimal.NewFromFloat(0.01), MinNotional: decimal.NewFromFloat(10.0)},
	"BNB":  {StepSize: decimal.NewFromFloat(0.001), MinNotional: decimal.NewFromFloat(10.0)},
	"XRP":  {StepSize: decimal.NewFromFloat(1.0), MinNotional: decimal.NewFromFloat(10.0)},
	"DOGE": {StepSize: decimal.NewFromFloat(1.0), MinNotional: decimal.NewFromFloat(10.0)},
}

func ruleFor(symbol string) symbolRule {
	if r, ok := symbolRules[strings.ToUpper(symbol)]; ok {
		return r
	}
	return symbolRule{StepSize: defaultStepSize, MinNotional: defaultMinNotional}
}

// quantizeOrder implements spec.md §4.1's order-preparation procedure,
// steps 2–5, using fixed-point decimal arithmetic throughout so Testable
// Property #6 ("qty mod step_size == 0") holds exactly — the original
// Python uses float floor division here, which this engine intentionally
// improves on (see DESIGN.md).
//
// Returns the quantized quantity, or a typed error
// (NotionalBelowMin/LotSizeUnsatisfiable) if no valid quantity exists.
func quantizeOrder(symbol string, qty, refPrice decimal.Decimal) (decimal.Decimal, error) {
	rule := ruleFor(symbol)

	// Step 3: reject on the raw (pre-rounding) notional.
	estimatedNotional := qty.Mul(refPrice)
	if estimatedNotional.LessThan(rule.MinNotional) {
		return decimal.Zero, newError(ErrNotionalBelowMin, "order value below exchange minimum")
	}

	// Step 4: round down to the step grid; a zero result fails outright,
	// with no rescue attempted (matches original_source exactly). The
	// rescue below is reached, but its own failure branch is not for a
	// positive step and price — see DESIGN.md.
	adjusted := floorToStep(qty, rule.StepSize)
	if !adjusted.IsPositive() {
		return decimal.Zero, newError(ErrLotSizeUnsatisfiable, "adjusted quantity rounds to zero")
	}

	// Step 5: if step-rounding pushed the notional back under the
	// minimum, rescue by rounding up one more step.
	adjustedNotional := adjusted.Mul(refPrice)
	if adjustedNotional.LessThan(rule.MinNotional) {
		minQtyNeeded := floorToStep(rule.MinNotional.Div(refPrice), rule.StepSize).Add(rule.StepSize)
		rescueNotional := minQtyNeeded.Mul(refPrice)
		if rescueNotional.GreaterThanOrEqual(rule.MinNotional) {
			adjusted = minQtyNeeded
		} else {
			return decimal.Zero, newError(ErrLotSizeUnsatisfiable, "adjusted order value still below exchange minimum after rescue")
		}
	}

	return adjusted, nil
}

// floorToStep rounds qty down to the nearest multiple of step.
func floorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return qty
	}
	units := qty.Div(step).Floor()
	return units.Mul(step)
}

// formatQuantity renders a decimal as a fixed-point string with trailing
// zeros trimmed and no scientific notation, per spec.md §4.1 step 6.
func formatQuantity(d decimal.Decimal) string {
	s := d.StringFixed(10)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
