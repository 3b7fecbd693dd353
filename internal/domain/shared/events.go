package shared

import "time"

// EventType names a domain event.
type EventType string

const (
	EventStudentAdded   EventType = "student.added"
	EventStudentUpdated EventType = "student.updated"

	EventTransactionAdded   EventType = "transaction.added"
	EventTransactionUpdated EventType = "transaction.updated"
	EventPaymentApplied     EventType = "transaction.payment_applied"

	EventCalendarEventAdded   EventType = "event.added"
	EventCalendarEventUpdated EventType = "event.updated"
	EventCalendarEventDeleted EventType = "event.deleted"

	EventEmployeeAdded   EventType = "employee.added"
	EventEmployeeUpdated EventType = "employee.updated"

	EventStoreRefreshed EventType = "store.refreshed"
	EventKPIsRecomputed EventType = "kpi.recomputed"
)

// Event is something that happened to the store's data.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
}

// EventHandler consumes an event. Errors are logged by the bus.
type EventHandler func(Event) error

// Publisher is what the store needs from an event bus.
type Publisher interface {
	Publish(event Event) error
}

// BaseEvent implements Event.
type BaseEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Aggregate string    `json:"aggregate_id"`
}

func NewBaseEvent(t EventType, aggregateID string) BaseEvent {
	return BaseEvent{Type: t, Timestamp: time.Now().UTC(), Aggregate: aggregateID}
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.Aggregate }

// EntityChanged is published after an add, update or delete.
type EntityChanged struct {
	BaseEvent
	Collection string `json:"collection"`
}

// PaymentApplied is published when an income transaction was merged into a
// student's paid periods.
type PaymentApplied struct {
	BaseEvent
	TransactionID string   `json:"transaction_id"`
	Periods       []string `json:"periods"`
	Status        string   `json:"status"`
}

// KPIsRecomputed carries the dashboard values computed after a change.
// Payload is a dashboard.KPIs; it is typed as any to keep shared free of
// domain imports.
type KPIsRecomputed struct {
	BaseEvent
	Payload any `json:"payload"`
}
