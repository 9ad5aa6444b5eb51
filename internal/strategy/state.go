// Package strategy is the Strategy Trigger Engine (C4): per-account trigger
// policy evaluation driven off market price events, deciding when a price
// tick should turn into an oracle consultation. Grounded on
// original_source/backend/services/trading_strategy.py (StrategyState,
// StrategyManager).
package strategy

import (
	"sync"
	"time"

	"github.com/aitrader/engine/internal/domain"
)

// MinRealtimeIntervalSeconds is the floor spacing between realtime-mode
// triggers. Not exposed to configuration — spec.md flags this value itself
// as a hardcoded, possibly-questionable constant in the source system, so it
// stays a named constant here rather than an env var (see DESIGN.md's Open
// Question decisions).
const MinRealtimeIntervalSeconds = 1.0

// State is one account's live trigger bookkeeping. Refreshed in place by
// the Manager on every config reload so a running trigger's Lock is never
// invalidated by a reload racing a trigger.
type State struct {
	AccountID       int64
	TriggerMode     domain.TriggerMode
	IntervalSeconds int
	TickBatchSize   int
	Enabled         bool
	LastTriggerAt   *time.Time
	TickCounter     int
	Running         bool

	mu sync.Mutex
}

// ShouldTrigger evaluates the trigger policy for eventTime. tick_batch mode
// compares the counter the caller has already incremented; the other modes
// depend only on elapsed time since LastTriggerAt. Locks s.mu for the
// duration of the read since MarkTriggered can run concurrently from a
// separate runTrigger goroutine while a later price event is dispatched.
func (s *State) ShouldTrigger(eventTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		return false
	}

	switch s.TriggerMode {
	case domain.TriggerInterval:
		if s.IntervalSeconds <= 0 {
			return true
		}
		if s.LastTriggerAt == nil {
			return true
		}
		return eventTime.Sub(*s.LastTriggerAt) >= time.Duration(s.IntervalSeconds)*time.Second

	case domain.TriggerTickBatch:
		if s.TickBatchSize <= 1 {
			return true
		}
		return s.TickCounter+1 >= s.TickBatchSize

	case domain.TriggerRealtime:
		fallthrough
	default:
		if s.LastTriggerAt == nil {
			return true
		}
		return eventTime.Sub(*s.LastTriggerAt) >= time.Duration(MinRealtimeIntervalSeconds*float64(time.Second))
	}
}

// IncrementTick advances the tick_batch counter. Called once per price
// event for states in tick_batch mode; other modes keep it pinned at 0.
func (s *State) IncrementTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TickCounter++
}

// ResetTicks zeroes the counter, used for non-tick_batch states on every
// event and for a state found disabled when a trigger is attempted.
func (s *State) ResetTicks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TickCounter = 0
}

// MarkTriggered records a successful trigger: advances LastTriggerAt and
// resets the tick counter in one critical section.
func (s *State) MarkTriggered(eventTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastTriggerAt = &eventTime
	s.TickCounter = 0
}

// tryAcquire is the single-flight guard (Testable Property: at most one
// in-flight decision task per account). Returns false if a run is already
// in progress.
func (s *State) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Running {
		return false
	}
	s.Running = true
	return true
}

func (s *State) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running = false
	s.TickCounter = 0
}
