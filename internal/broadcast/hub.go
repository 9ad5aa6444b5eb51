// Package broadcast implements the Subscription Broadcaster (C8): an
// account id → subscriber set, a periodic per-account snapshot push
// scheduled on first subscribe and cancelled on last unsubscribe, and the
// typed events fanned out by C5/C6/C7. Grounded on the broadcast call site
// in original_source/backend/services/asset_snapshot_service.py (dynamic
// import to reach the WebSocket manager), replaced here with Go interfaces
// per Design Notes §9, and on internal/scheduler.Scheduler for the
// per-account cron entries.
package broadcast

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aitrader/engine/internal/domain"
	"github.com/aitrader/engine/internal/scheduler"
	"github.com/aitrader/engine/internal/snapshot"
)

// EventType names the kinds of pushes a subscriber can receive.
type EventType string

const (
	EventTrade    EventType = "trade_update"
	EventPosition EventType = "position_update"
	EventDecision EventType = "decision_update"
	EventAsset    EventType = "asset_update"
)

// Event is one message pushed to an account's subscribers.
type Event struct {
	Type      EventType
	AccountID int64
	Payload   interface{}
	Timestamp time.Time
}

// Subscriber is an opaque sink accepting events, the Go form of spec.md
// §3's SubscriberSet entries ("opaque sinks accepting JSON messages").
type Subscriber interface {
	Send(event Event) error
}

// SnapshotProvider supplies the periodic per-account view pushed even when
// no price event has fired recently, per spec.md §4.8's scheduled job.
type SnapshotProvider interface {
	Snapshot(accountID int64) (interface{}, error)
}

// Hub is the Subscription Broadcaster (C8).
type Hub struct {
	mu          sync.Mutex
	subscribers map[int64]map[Subscriber]struct{}
	jobIDs      map[int64]cron.EntryID

	scheduler        *scheduler.Scheduler
	snapshotProvider SnapshotProvider
	snapshotSchedule string
	log              zerolog.Logger
}

// New constructs a Hub. snapshotIntervalSeconds defaults to 30 when <= 0.
func New(sched *scheduler.Scheduler, provider SnapshotProvider, snapshotIntervalSeconds int, log zerolog.Logger) *Hub {
	if snapshotIntervalSeconds <= 0 {
		snapshotIntervalSeconds = 30
	}
	return &Hub{
		subscribers:      make(map[int64]map[Subscriber]struct{}),
		jobIDs:           make(map[int64]cron.EntryID),
		scheduler:        sched,
		snapshotProvider: provider,
		snapshotSchedule: fmt.Sprintf("@every %ds", snapshotIntervalSeconds),
		log:              log.With().Str("component", "broadcast_hub").Logger(),
	}
}

// SetSnapshotProvider wires the per-account periodic job's data source.
// Exists because main.go constructs the Hub before the Asset Snapshot
// Service it will eventually publish through, breaking the construction
// cycle (the service also needs the Hub as its own Publisher).
func (h *Hub) SetSnapshotProvider(provider SnapshotProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshotProvider = provider
}

type snapshotJob struct {
	hub       *Hub
	accountID int64
}

func (j *snapshotJob) Name() string { return fmt.Sprintf("broadcast-snapshot-%d", j.accountID) }

func (j *snapshotJob) Run() error {
	j.hub.pushSnapshot(j.accountID)
	return nil
}

// Subscribe registers a subscriber for an account. The account's periodic
// snapshot job is scheduled exactly once, on the transition from zero to
// one live subscriber.
func (h *Hub) Subscribe(accountID int64, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subscribers[accountID]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.subscribers[accountID] = set
	}
	firstSubscriber := len(set) == 0
	set[sub] = struct{}{}

	if firstSubscriber {
		id, err := h.scheduler.AddJob(h.snapshotSchedule, &snapshotJob{hub: h, accountID: accountID})
		if err != nil {
			h.log.Error().Err(err).Int64("account_id", accountID).Msg("failed to schedule per-account snapshot job")
			return
		}
		h.jobIDs[accountID] = id
	}
}

// Unsubscribe removes a subscriber, cancelling the account's periodic job
// on the transition from one to zero live subscribers.
func (h *Hub) Unsubscribe(accountID int64, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(accountID, sub)
}

func (h *Hub) unsubscribeLocked(accountID int64, sub Subscriber) {
	set, ok := h.subscribers[accountID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subscribers, accountID)
		if id, ok := h.jobIDs[accountID]; ok {
			h.scheduler.RemoveJob(id)
			delete(h.jobIDs, accountID)
		}
	}
}

// broadcast sends event to every live subscriber for an account. A
// subscriber whose Send fails is dropped silently and never retried —
// spec.md §4.8's dead-subscriber handling.
func (h *Hub) broadcast(accountID int64, event Event) {
	h.mu.Lock()
	set := h.subscribers[accountID]
	subs := make([]Subscriber, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Send(event); err != nil {
			h.log.Debug().Err(err).Int64("account_id", accountID).Msg("dropping dead subscriber")
			h.Unsubscribe(accountID, sub)
		}
	}
}

func (h *Hub) pushSnapshot(accountID int64) {
	if h.snapshotProvider == nil {
		return
	}
	payload, err := h.snapshotProvider.Snapshot(accountID)
	if err != nil {
		h.log.Warn().Err(err).Int64("account_id", accountID).Msg("failed to build periodic snapshot")
		return
	}
	h.broadcast(accountID, Event{Type: EventAsset, AccountID: accountID, Payload: payload, Timestamp: time.Now()})
}

// PublishTrade implements internal/trading.Publisher.
func (h *Hub) PublishTrade(accountID int64, operation, symbol string, qty float64, orderID string) {
	h.broadcast(accountID, Event{
		Type:      EventTrade,
		AccountID: accountID,
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"operation": operation,
			"symbol":    symbol,
			"quantity":  qty,
			"order_id":  orderID,
		},
	})
}

// PublishPositions implements internal/trading.Publisher: a fresh
// post-trade position snapshot pushed alongside the trade event.
func (h *Hub) PublishPositions(accountID int64, positions []domain.Position) {
	h.broadcast(accountID, Event{
		Type:      EventPosition,
		AccountID: accountID,
		Timestamp: time.Now(),
		Payload:   positions,
	})
}

// PublishDecision implements internal/decision.Publisher.
func (h *Hub) PublishDecision(accountID int64, operation, symbol, reason string, executed bool) {
	h.broadcast(accountID, Event{
		Type:      EventDecision,
		AccountID: accountID,
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"operation": operation,
			"symbol":    symbol,
			"reason":    reason,
			"executed":  executed,
		},
	})
}

// PublishAssetUpdate implements internal/snapshot.Publisher. Unlike
// PublishTrade/PublishDecision it carries a cross-account aggregate, so it
// fans out to every account that currently has live subscribers.
func (h *Hub) PublishAssetUpdate(update snapshot.AggregateUpdate) {
	h.mu.Lock()
	accountIDs := make([]int64, 0, len(h.subscribers))
	for id := range h.subscribers {
		accountIDs = append(accountIDs, id)
	}
	h.mu.Unlock()

	for _, id := range accountIDs {
		h.broadcast(id, Event{Type: EventAsset, AccountID: id, Payload: update, Timestamp: time.Now()})
	}
}
