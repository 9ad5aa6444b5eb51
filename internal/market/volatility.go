package market

import (
	"github.com/aitrader/engine/pkg/formulas"
)

// LogVolatility computes the standard deviation of the tick-to-tick returns
// in a symbol's rolling history, scaled by √252 through
// formulas.AnnualizedVolatility (a daily-returns factor applied here to
// per-poll returns), and logs it at debug level. Diagnostic only — nothing in the
// decision or trigger path reads this value; it exists purely as
// operational visibility into the data the strategy engine is reacting to,
// per SPEC_FULL §4.3.
func (s *Stream) LogVolatility(symbol string) {
	prices := s.cache.History(symbol, venue)
	if len(prices) < 2 {
		return
	}

	returns := formulas.CalculateReturns(prices)
	vol := formulas.AnnualizedVolatility(returns)

	s.log.Debug().
		Str("symbol", symbol).
		Int("samples", len(prices)).
		Float64("annualized_volatility", vol).
		Msg("rolling volatility")
}

// logVolatilityForAll is invoked once per poll iteration so every symbol's
// diagnostic stays current without a separate scheduled job.
func (s *Stream) logVolatilityForAll() {
	for _, symbol := range s.snapshotSymbols() {
		s.LogVolatility(symbol)
	}
}
