package events

import (
	"encoding/json"
	"sync"
	"time"

	"guesthouse/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventBookingRequested = "booking_requested"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingRefunded  = "booking_refunded"

	EventGuesthouseStatusChanged = "guesthouse_status_changed"
	EventRoomChanged             = "room_changed"
	EventAvailabilityChanged     = "availability_changed"
)

// BookingEvents lists every booking lifecycle event type.
var BookingEvents = []string{
	EventBookingRequested,
	EventBookingConfirmed,
	EventBookingCancelled,
	EventBookingRefunded,
}

// BookingEventPayload is the booking snapshot carried by lifecycle events.
type BookingEventPayload struct {
	Booking   models.Booking `json:"booking"`
	ActorID   int64          `json:"actor_id,omitempty"`
	ActorRole models.Role    `json:"actor_role,omitempty"`
}

// CatalogEvents change which rooms a search can return.
var CatalogEvents = []string{
	EventBookingConfirmed,
	EventBookingRefunded,
	EventGuesthouseStatusChanged,
	EventRoomChanged,
	EventAvailabilityChanged,
}

type GuesthouseEventPayload struct {
	GuesthouseID int64                   `json:"guesthouse_id"`
	From         models.GuesthouseStatus `json:"from"`
	To           models.GuesthouseStatus `json:"to"`
	ActorID      int64                   `json:"actor_id"`
}

type RoomEventPayload struct {
	RoomID       int64 `json:"room_id"`
	GuesthouseID int64 `json:"guesthouse_id"`
	IsActive     bool  `json:"is_active"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// DecodeBooking unmarshals a booking lifecycle payload.
func (e *Event) DecodeBooking() (*BookingEventPayload, error) {
	var p BookingEventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub. Handlers run synchronously on the
// publishing goroutine; a failing handler is logged and does not stop the rest.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeMany registers one handler for several event types.
func (b *EventBus) SubscribeMany(eventTypes []string, handler EventHandler) {
	for _, t := range eventTypes {
		b.Subscribe(t, handler)
	}
}

func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event_type", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
