package market

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives published PriceEvents. A handler must not block the
// bus — handlers that need real work should dispatch to their own
// goroutine or worker.
type Handler func(PriceEvent)

// Bus is the thread-safe publish/subscribe dispatcher named in spec.md
// §3/§4.3. Grounded on
// original_source/backend/services/market_events.py's
// MarketEventDispatcher: subscribe/unsubscribe under a lock, publish takes
// a snapshot of the handler list and invokes each one outside the lock, in
// subscription order, swallowing and logging any handler panic so later
// handlers still run.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
	log      zerolog.Logger
}

// NewBus constructs an empty Bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{log: log.With().Str("component", "event_bus").Logger()}
}

// Subscribe registers a handler. Each call adds a distinct subscription,
// even for a func value that looks identical to another.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unsubscribe removes a previously subscribed handler, identified by
// function pointer since Go func values aren't comparable with ==. A no-op
// if h was never subscribed.
func (b *Bus) Unsubscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := reflect.ValueOf(h).Pointer()
	out := b.handlers[:0]
	for _, existing := range b.handlers {
		if reflect.ValueOf(existing).Pointer() != target {
			out = append(out, existing)
		}
	}
	b.handlers = out
}

// Publish fans PriceEvent out to every subscribed handler, in subscription
// order, one at a time. A handler's panic is recovered and logged; it
// never suppresses later handlers or the publisher.
func (b *Bus) Publish(event PriceEvent) {
	b.mu.Lock()
	snapshot := make([]Handler, len(b.handlers))
	copy(snapshot, b.handlers)
	b.mu.Unlock()

	for _, h := range snapshot {
		b.invoke(h, event)
	}
}

func (b *Bus) invoke(h Handler, event PriceEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("symbol", event.Symbol).Msg("price event handler panicked")
		}
	}()
	h(event)
}
