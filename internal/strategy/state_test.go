package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aitrader/engine/internal/domain"
)

func TestState_ShouldTrigger_RealtimeRequiresMinimumSpacing(t *testing.T) {
	now := time.Now()
	s := &State{TriggerMode: domain.TriggerRealtime, Enabled: true}
	assert.True(t, s.ShouldTrigger(now), "no prior trigger should always fire")

	last := now
	s.LastTriggerAt = &last
	assert.False(t, s.ShouldTrigger(now.Add(500*time.Millisecond)))
	assert.True(t, s.ShouldTrigger(now.Add(1500*time.Millisecond)))
}

func TestState_ShouldTrigger_IntervalMode(t *testing.T) {
	now := time.Now()
	s := &State{TriggerMode: domain.TriggerInterval, IntervalSeconds: 30, Enabled: true}
	last := now
	s.LastTriggerAt = &last

	assert.False(t, s.ShouldTrigger(now.Add(10*time.Second)))
	assert.True(t, s.ShouldTrigger(now.Add(31*time.Second)))
}

func TestState_ShouldTrigger_TickBatchMode(t *testing.T) {
	s := &State{TriggerMode: domain.TriggerTickBatch, TickBatchSize: 3, Enabled: true}

	s.TickCounter = 0
	assert.False(t, s.ShouldTrigger(time.Now()))

	s.TickCounter = 1
	assert.False(t, s.ShouldTrigger(time.Now()))

	s.TickCounter = 2
	assert.True(t, s.ShouldTrigger(time.Now()))
}

func TestState_ShouldTrigger_DisabledNeverFires(t *testing.T) {
	s := &State{TriggerMode: domain.TriggerRealtime, Enabled: false}
	assert.False(t, s.ShouldTrigger(time.Now()))
}

func TestState_MarkTriggered_ResetsTickCounterAndAdvancesTimestamp(t *testing.T) {
	s := &State{TickCounter: 7}
	eventTime := time.Now()
	s.MarkTriggered(eventTime)

	assert.Equal(t, 0, s.TickCounter)
	assert.NotNil(t, s.LastTriggerAt)
	assert.True(t, s.LastTriggerAt.Equal(eventTime))
}

func TestState_SingleFlightGuard(t *testing.T) {
	s := &State{}
	assert.True(t, s.tryAcquire())
	assert.False(t, s.tryAcquire(), "a second acquire must fail while the first is running")

	s.release()
	assert.True(t, s.tryAcquire(), "after release, acquire must succeed again")
}
