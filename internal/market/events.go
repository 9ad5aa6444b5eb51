// Package market is the Price Cache & Event Bus (C3) plus the Market
// Stream background poller (C2): a TTL price cache, a rolling per-symbol
// history, a synchronous pub/sub bus for PriceEvents, and the goroutine
// that drives both from a fixed-cadence poll of the exchange.
package market

import "time"

// PriceEvent is published once per symbol per poll iteration.
type PriceEvent struct {
	Symbol    string
	Venue     string
	Price     float64
	EventTime time.Time
}
