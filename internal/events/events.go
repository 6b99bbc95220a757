package events

import (
	"encoding/json"
	"sync"
	"time"

	"clinicbook/internal/models"
	"clinicbook/internal/scheduling"
)

const (
	EventAppointmentCreated   = "appointment_created"
	EventAppointmentConfirmed = "appointment_confirmed"
	EventAppointmentCancelled = "appointment_cancelled"
	EventAppointmentCompleted = "appointment_completed"
)

// AppointmentEventTypes lists every lifecycle event the booking service emits.
var AppointmentEventTypes = []string{
	EventAppointmentCreated,
	EventAppointmentConfirmed,
	EventAppointmentCancelled,
	EventAppointmentCompleted,
}

// AppointmentEventPayload is the appointment snapshot handed to event consumers.
type AppointmentEventPayload struct {
	AppointmentID  int64              `json:"appointment_id"`
	UserID         int64              `json:"user_id"`
	ProfessionalID int64              `json:"professional_id"`
	ServiceID      int64              `json:"service_id"`
	Date           string             `json:"date"`
	Start          string             `json:"start"`
	End            string             `json:"end"`
	Status         scheduling.Status  `json:"status"`
	Appointment    models.Appointment `json:"appointment"`
	ChangedBy      string             `json:"changed_by,omitempty"`
	ChangedByID    int64              `json:"changed_by_id,omitempty"`
}

// NewAppointmentPayload snapshots appt for publication.
func NewAppointmentPayload(appt *models.Appointment, changedBy string, changedByID int64) AppointmentEventPayload {
	return AppointmentEventPayload{
		AppointmentID:  appt.ID,
		UserID:         appt.UserID,
		ProfessionalID: appt.ProfessionalID,
		ServiceID:      appt.ServiceID,
		Date:           appt.DateString(),
		Start:          appt.Start.String(),
		End:            appt.End.String(),
		Status:         appt.Status,
		Appointment:    *appt,
		ChangedBy:      changedBy,
		ChangedByID:    changedByID,
	}
}

// DecodeAppointment reads an AppointmentEventPayload from ev.
func DecodeAppointment(ev *Event) (AppointmentEventPayload, error) {
	var payload AppointmentEventPayload
	err := json.Unmarshal(ev.Payload, &payload)
	return payload, err
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// ErrorHook receives handler failures.
type ErrorHook func(event *Event, err error)

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     ErrorHook
	mu          sync.RWMutex
	seq         int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a hook called for every handler that returns an error.
func (b *EventBus) OnError(hook ErrorHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = hook
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.Lock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	hook := b.onError
	b.seq++
	if event.ID == 0 {
		event.ID = b.seq
	}
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && hook != nil {
			hook(event, err)
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

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
