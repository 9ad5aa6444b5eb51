package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizeOrder_RoundsDownToStepSize(t *testing.T) {
	qty, err := quantizeOrder("BTC", decimal.NewFromFloat(0.123456), decimal.NewFromFloat(50000))
	require.NoError(t, err)
	assert.True(t, qty.Mod(decimal.NewFromFloat(0.00001)).IsZero())
}

func TestQuantizeOrder_NotionalBelowMin(t *testing.T) {
	// S4: $1000 cash, BTC 50000, target_portion 0.002 -> raw qty 0.00004, notional 2 < 10
	qty := decimal.NewFromFloat(1000 * 0.002).Div(decimal.NewFromFloat(50000))
	_, err := quantizeOrder("BTC", qty, decimal.NewFromFloat(50000))
	require.Error(t, err)
	exchErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrNotionalBelowMin, exchErr.Kind)
}

func TestQuantizeOrder_LotSizeUnsatisfiableWhenFloorIsZero(t *testing.T) {
	// Raw notional clears the minimum (0.6*20=12 >= 10) but the quantity is
	// smaller than one XRP step (1), so flooring drops it to zero with no
	// rescue attempted — see DESIGN.md for why S5's own narrative in
	// spec.md actually resolves through the step-3 early reject instead.
	_, err := quantizeOrder("XRP", decimal.NewFromFloat(0.6), decimal.NewFromFloat(20))
	require.Error(t, err)
	exchErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrLotSizeUnsatisfiable, exchErr.Kind)
}

func TestQuantizeOrder_RoundUpRescueSatisfiesMinNotional(t *testing.T) {
	// Raw qty just under min-notional after floor, but a rescue step clears it.
	qty, err := quantizeOrder("XRP", decimal.NewFromFloat(1.4), decimal.NewFromFloat(8))
	require.NoError(t, err)
	assert.True(t, qty.Mul(decimal.NewFromFloat(8)).GreaterThanOrEqual(decimal.NewFromFloat(10)))
}

func TestFormatQuantity_TrimsTrailingZerosAndNoScientificNotation(t *testing.T) {
	assert.Equal(t, "0.00004", formatQuantity(decimal.NewFromFloat(0.00004)))
	assert.Equal(t, "1", formatQuantity(decimal.NewFromFloat(1.0)))
	assert.Equal(t, "0", formatQuantity(decimal.Zero))
}

func TestMapSymbol(t *testing.T) {
	pair, err := mapSymbol("btc")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", pair)
	assert.Equal(t, "BTC", unmapSymbol("BTCUSDT"))
	assert.Equal(t, "XRP", unmapSymbol("XRPBUSD"))
}

func TestMapSymbol_UnknownSymbolFails(t *testing.T) {
	_, err := mapSymbol("SHIB")
	require.Error(t, err)
	exchErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrUnknownSymbol, exchErr.Kind)
}

func TestSign_IsDeterministicHexHMAC(t *testing.T) {
	sig1 := sign("symbol=BTCUSDT&timestamp=1000", "secret")
	sig2 := sign("symbol=BTCUSDT&timestamp=1000", "secret")
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64) // hex-encoded SHA256
}
