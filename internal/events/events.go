package events

import (
	"context"
	"sync"
	"time"

	"bonus-tracker-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventBonusCreated is emitted when a bonus is created
	EventBonusCreated EventType = "bonus.created"
	// EventBonusUpdated is emitted when bonus fields are edited
	EventBonusUpdated EventType = "bonus.updated"
	// EventBonusDeleted is emitted when a bonus is removed
	EventBonusDeleted EventType = "bonus.deleted"
	// EventBonusTransitioned is emitted when a bonus changes status through
	// the transition rule
	EventBonusTransitioned EventType = "bonus.transitioned"
	// EventBonusOverridden is emitted when a manual status override bypasses
	// the transition table (the audited escape hatch)
	EventBonusOverridden EventType = "bonus.overridden"
	// EventSweepCompleted is emitted after a deadline sweep finishes
	EventSweepCompleted EventType = "sweep.completed"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// BonusData contains data for bonus created/updated/deleted events.
type BonusData struct {
	Bonus models.BonusRecord
}

// TransitionData contains data for status change events, including manual
// overrides.
type TransitionData struct {
	Bonus models.BonusRecord
	From  models.Status
	To    models.Status
}

// SweepData contains data for sweep completion events.
type SweepData struct {
	UserID  string
	Expired int
	SweptAt time.Time
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Execute handlers asynchronously to avoid blocking
	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				// In production, you might want to log this or send to error tracking
				_ = err
			}
		}(handler)
	}
}

// PublishBonus publishes a created/updated/deleted bonus event.
func (m *Manager) PublishBonus(ctx context.Context, eventType EventType, bonus models.BonusRecord) {
	m.Publish(ctx, eventType, BonusData{Bonus: bonus})
}

// PublishTransition publishes a status change event.
func (m *Manager) PublishTransition(ctx context.Context, eventType EventType, bonus models.BonusRecord, from, to models.Status) {
	m.Publish(ctx, eventType, TransitionData{Bonus: bonus, From: from, To: to})
}

// PublishSweepCompleted publishes a sweep completion event.
func (m *Manager) PublishSweepCompleted(ctx context.Context, userID string, expired int) {
	m.Publish(ctx, EventSweepCompleted, SweepData{
		UserID:  userID,
		Expired: expired,
		SweptAt: time.Now(),
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
