package broadcast

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/scheduler"
)

type recordingSubscriber struct {
	events []Event
	fail   bool
}

func (s *recordingSubscriber) Send(event Event) error {
	if s.fail {
		return errors.New("subscriber gone")
	}
	s.events = append(s.events, event)
	return nil
}

func newTestHub(t *testing.T) (*Hub, *scheduler.Scheduler) {
	t.Helper()
	sched := scheduler.New(zerolog.Nop())
	sched.Start()
	t.Cleanup(sched.Stop)
	return New(sched, nil, 30, zerolog.Nop()), sched
}

func TestHub_PublishTradeReachesOnlySubscribedAccount(t *testing.T) {
	hub, _ := newTestHub(t)
	subA := &recordingSubscriber{}
	subB := &recordingSubscriber{}
	hub.Subscribe(1, subA)
	hub.Subscribe(2, subB)

	hub.PublishTrade(1, "buy", "BTC", 0.1, "ord-1")

	require.Len(t, subA.events, 1)
	assert.Equal(t, EventTrade, subA.events[0].Type)
	assert.Empty(t, subB.events)
}

func TestHub_DeadSubscriberIsDroppedOnSendFailure(t *testing.T) {
	hub, _ := newTestHub(t)
	sub := &recordingSubscriber{fail: true}
	hub.Subscribe(1, sub)

	hub.PublishDecision(1, "hold", "", "no signal", true)
	hub.PublishDecision(1, "hold", "", "no signal again", true)

	hub.mu.Lock()
	_, stillSubscribed := hub.subscribers[1][sub]
	hub.mu.Unlock()
	assert.False(t, stillSubscribed)
}

func TestHub_PublishPositionsCarriesPositionSlice(t *testing.T) {
	hub, _ := newTestHub(t)
	sub := &recordingSubscriber{}
	hub.Subscribe(1, sub)

	hub.PublishPositions(1, []domain.Position{{Symbol: "BTC", TotalQty: 0.5, FreeQty: 0.5}})

	require.Len(t, sub.events, 1)
	assert.Equal(t, EventPosition, sub.events[0].Type)
}

func TestHub_UnsubscribeLastSubscriberRemovesSnapshotJob(t *testing.T) {
	hub, _ := newTestHub(t)
	sub := &recordingSubscriber{}
	hub.Subscribe(1, sub)

	hub.mu.Lock()
	_, scheduled := hub.jobIDs[1]
	hub.mu.Unlock()
	assert.True(t, scheduled)

	hub.Unsubscribe(1, sub)

	hub.mu.Lock()
	_, stillScheduled := hub.jobIDs[1]
	hub.mu.Unlock()
	assert.False(t, stillScheduled)
}
