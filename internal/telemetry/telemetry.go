// Package telemetry is the in-memory system event log named in SPEC_FULL
// §4.C: a bounded ring buffer of human-readable log entries (price updates,
// trigger decisions, trade outcomes, errors) that operator-facing surfaces
// can page through or tail, independent of the structured zerolog output
// each component also emits. Adapted from the teacher's
// internal/events.Manager (zerolog emission) and grounded on
// original_source/backend/services/system_logger.py's SystemLogCollector
// (bounded deque, level/category filtering, listener fan-out).
package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the three severities the original collector recognizes.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Category groups entries the way operator tooling filters on.
type Category string

const (
	CategoryPriceUpdate Category = "price_update"
	CategoryAIDecision  Category = "ai_decision"
	CategorySystemError Category = "system_error"
)

// Entry is one log record.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Category  Category               `json:"category"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Listener is notified of every new Entry. A listener's panic is recovered
// and logged, matching the original's try/except around each callback.
type Listener func(Entry)

const defaultMaxEntries = 500

// Log is the bounded ring buffer plus listener fan-out. Safe for concurrent
// use; every component in the engine holds a shared *Log.
type Log struct {
	mu        sync.Mutex
	entries   []Entry
	maxLen    int
	listeners []Listener
	zl        zerolog.Logger
}

// New constructs a Log backed by the given structured logger, which still
// receives every entry so the two surfaces never diverge.
func New(zl zerolog.Logger) *Log {
	return &Log{
		maxLen: defaultMaxEntries,
		zl:     zl.With().Str("component", "telemetry").Logger(),
	}
}

// Add appends an entry, evicting the oldest if the buffer is full, emits it
// to the structured logger, and notifies every listener.
func (l *Log) Add(level Level, category Category, message string, details map[string]interface{}) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Category:  category,
		Message:   message,
		Details:   details,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxLen {
		l.entries = l.entries[len(l.entries)-l.maxLen:]
	}
	listeners := make([]Listener, len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	l.emit(entry)

	for _, listener := range listeners {
		l.notify(listener, entry)
	}
}

func (l *Log) emit(entry Entry) {
	evt := l.zl.Info()
	switch entry.Level {
	case LevelWarning:
		evt = l.zl.Warn()
	case LevelError:
		evt = l.zl.Error()
	}
	evt.Str("category", string(entry.Category)).Interface("details", entry.Details).Msg(entry.Message)
}

func (l *Log) notify(listener Listener, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			l.zl.Error().Interface("panic", r).Msg("telemetry listener panicked")
		}
	}()
	listener(entry)
}

// AddListener registers a callback invoked for every future Add.
func (l *Log) AddListener(listener Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, listener)
}

// Recent returns up to limit entries, newest first, optionally filtered by
// level and/or category (empty string means "any").
func (l *Log) Recent(level Level, category Category, limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.entries[i]
		if level != "" && e.Level != level {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clear empties the buffer.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// PriceUpdate is a convenience wrapper mirroring log_price_update.
func (l *Log) PriceUpdate(symbol string, price float64) {
	l.Add(LevelInfo, CategoryPriceUpdate, symbol+" price updated", map[string]interface{}{
		"symbol": symbol,
		"price":  price,
	})
}

// AIDecision is a convenience wrapper mirroring log_ai_decision.
func (l *Log) AIDecision(accountName, operation, symbol, reason string, success bool) {
	level := LevelInfo
	if !success {
		level = LevelWarning
	}
	l.Add(level, CategoryAIDecision, accountName+" "+operation, map[string]interface{}{
		"account":   accountName,
		"operation": operation,
		"symbol":    symbol,
		"reason":    reason,
		"success":   success,
	})
}

// Error is a convenience wrapper mirroring log_error.
func (l *Log) Error(errorType, message string, details map[string]interface{}) {
	l.Add(LevelError, CategorySystemError, "["+errorType+"] "+message, details)
}
