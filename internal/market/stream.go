package market

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PriceSource is the subset of the exchange client the stream needs. Defined
// here (consumer side) so this package never imports internal/exchange
// directly, matching the Publisher-interface pattern described in
// SPEC_FULL §5 / Design Notes §9.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// TickRecorder is the subset of repository.TickRepository the stream needs.
// Defined consumer-side for the same reason as PriceSource.
type TickRecorder interface {
	Record(symbol, venue string, price float64, eventTime time.Time, retention time.Duration) error
}

const venue = "binance"

// Stream is the Market Stream (C2): a single goroutine that polls
// PriceSource for every configured symbol at a fixed cadence, recording each
// result to the PriceCache, persisting it via the tick repository, and
// publishing a PriceEvent on the Bus. Grounded on
// original_source/backend/services/market_stream.py's MarketDataStream.
type Stream struct {
	mu       sync.Mutex
	symbols  []string
	interval time.Duration
	retention time.Duration

	source PriceSource
	cache  *PriceCache
	bus    *Bus
	ticks  TickRecorder
	log    zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewStream constructs a Stream. interval and retention are already resolved
// durations (config.MarketStreamIntervalSeconds / RetentionSeconds).
func NewStream(symbols []string, interval, retention time.Duration, source PriceSource, cache *PriceCache, bus *Bus, ticks TickRecorder, log zerolog.Logger) *Stream {
	syms := make([]string, len(symbols))
	copy(syms, symbols)
	return &Stream{
		symbols:   syms,
		interval:  interval,
		retention: retention,
		source:    source,
		cache:     cache,
		bus:       bus,
		ticks:     ticks,
		log:       log.With().Str("component", "market_stream").Logger(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// UpdateSymbols replaces the polled symbol set. Takes effect on the next
// iteration; never blocks an in-flight poll.
func (s *Stream) UpdateSymbols(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	syms := make([]string, len(symbols))
	copy(syms, symbols)
	s.symbols = syms
}

func (s *Stream) snapshotSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Run drives the poll loop until ctx is canceled or Stop is called. It uses
// a sleep-remainder cadence — each iteration subtracts its own elapsed time
// from the interval before sleeping — so a slow iteration shortens the next
// sleep instead of drifting the schedule or queueing catch-up ticks.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.done)

	for {
		start := time.Now()
		s.pollOnce(ctx)

		elapsed := time.Since(start)
		sleepFor := s.interval - elapsed
		if sleepFor < 0 {
			sleepFor = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-time.After(sleepFor):
		}
	}
}

// Stop requests the run loop exit after its current iteration and blocks
// until it has.
func (s *Stream) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Stream) pollOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("market stream iteration panicked, continuing on next tick")
		}
	}()

	now := time.Now()
	for _, symbol := range s.snapshotSymbols() {
		price, err := s.source.LastPrice(ctx, symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("last price fetch failed, skipping symbol this tick")
			continue
		}

		s.cache.Record(symbol, venue, price, now)

		if err := s.ticks.Record(symbol, venue, price, now, s.retention); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("failed to persist tick")
		}

		s.bus.Publish(PriceEvent{Symbol: symbol, Venue: venue, Price: price, EventTime: now})
	}

	s.cache.ClearExpired(now)
	s.logVolatilityForAll()
}
