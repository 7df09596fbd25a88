package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is a fact recorded by the Order aggregate. State-changing methods
// return the events they produce; the caller decides when to publish them.
type Event interface {
	EventName() string
	AggregateID() uuid.UUID
	OccurredAt() time.Time
}

type OrderCreated struct {
	OrderID   uuid.UUID
	UserID    string
	Total     Money
	CreatedAt time.Time
}

func (e OrderCreated) EventName() string      { return "OrderCreated" }
func (e OrderCreated) AggregateID() uuid.UUID { return e.OrderID }
func (e OrderCreated) OccurredAt() time.Time  { return e.CreatedAt }

type OrderStatusChanged struct {
	OrderID   uuid.UUID
	Previous  OrderStatus
	New       OrderStatus
	ChangedAt time.Time
}

func (e OrderStatusChanged) EventName() string      { return "OrderStatusChanged" }
func (e OrderStatusChanged) AggregateID() uuid.UUID { return e.OrderID }
func (e OrderStatusChanged) OccurredAt() time.Time  { return e.ChangedAt }
