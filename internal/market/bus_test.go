package market

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var a, b []PriceEvent
	bus.Subscribe(func(e PriceEvent) { a = append(a, e) })
	bus.Subscribe(func(e PriceEvent) { b = append(b, e) })

	bus.Publish(PriceEvent{Symbol: "BTC"})

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}

func TestBus_UnsubscribeStopsFurtherDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var calls int
	handler := func(e PriceEvent) { calls++ }

	bus.Subscribe(handler)
	bus.Publish(PriceEvent{Symbol: "BTC"})
	bus.Unsubscribe(handler)
	bus.Publish(PriceEvent{Symbol: "BTC"})

	assert.Equal(t, 1, calls)
}

func TestBus_UnsubscribeUnknownHandlerIsNoop(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	bus.Subscribe(func(e PriceEvent) {})
	bus.Unsubscribe(func(e PriceEvent) {})
	assert.Len(t, bus.handlers, 1)
}
