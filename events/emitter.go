// Package events delivers pool notifications to in-process observers such
// as the indexer and the explorer.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType labels what happened.
type EventType string

const (
	EventTxExecuted       EventType = "tx_executed"
	EventSessionStarted   EventType = "session_started"
	EventLevelCompleted   EventType = "level_completed"
	EventSessionCompleted EventType = "session_completed"
	EventSessionAbandoned EventType = "session_abandoned"
	EventRewardsClaimed   EventType = "rewards_claimed"
	EventPoolFunded       EventType = "pool_funded"
	EventAdminWithdrawal  EventType = "admin_withdrawal"
	EventPoolPaused       EventType = "pool_paused"
	EventPoolUnpaused     EventType = "pool_unpaused"
)

// AllTypes lists every event type, for subscribers that want the full feed.
var AllTypes = []EventType{
	EventTxExecuted,
	EventSessionStarted,
	EventLevelCompleted,
	EventSessionCompleted,
	EventSessionAbandoned,
	EventRewardsClaimed,
	EventPoolFunded,
	EventAdminWithdrawal,
	EventPoolPaused,
	EventPoolUnpaused,
}

// Event carries a typed payload emitted after a state change commits.
type Event struct {
	Type     EventType      `json:"type"`
	TxID     string         `json:"tx_id"`
	Sequence uint64         `json:"sequence"`
	Time     int64          `json:"time"` // host time of the operation, ms
	Data     map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) {
	for _, typ := range AllTypes {
		e.Subscribe(typ, h)
	}
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot take the pool down with it.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("component", "events").
						Str("type", string(ev.Type)).
						Interface("panic", r).
						Msg("handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
