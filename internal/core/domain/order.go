package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxUserIDLength = 256

// Order is the aggregate root for a customer's purchase. It exclusively owns
// its items; all mutation goes through its methods.
type Order struct {
	id                   uuid.UUID
	userID               string
	items                []OrderItem
	total                Money
	status               OrderStatus
	paymentTransactionID string
	version              int
	createdAt            time.Time
	updatedAt            time.Time
}

// NewOrder starts an empty order in Waiting status priced in DefaultCurrency.
func NewOrder(userID string) (*Order, OrderCreated, error) {
	return NewOrderInCurrency(userID, DefaultCurrency)
}

func NewOrderInCurrency(userID, currency string) (*Order, OrderCreated, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, OrderCreated{}, Validation("user id cannot be empty")
	}
	if len(userID) > maxUserIDLength {
		return nil, OrderCreated{}, Validation("user id cannot exceed %d characters", maxUserIDLength)
	}
	code, err := normalizeCurrency(currency)
	if err != nil {
		return nil, OrderCreated{}, &Error{Kind: KindValidation, Message: "invalid order currency", Err: err}
	}

	now := time.Now().UTC()
	o := &Order{
		id:        uuid.New(),
		userID:    userID,
		total:     Zero(code),
		status:    OrderStatusWaiting,
		createdAt: now,
		updatedAt: now,
	}
	return o, OrderCreated{OrderID: o.id, UserID: o.userID, Total: o.total, CreatedAt: o.createdAt}, nil
}

// OrderState carries persisted order fields for RestoreOrder.
type OrderState struct {
	ID                   uuid.UUID
	UserID               string
	Items                []OrderItem
	Currency             string
	Status               OrderStatus
	PaymentTransactionID string
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RestoreOrder rebuilds an order loaded from storage. No events are emitted.
func RestoreOrder(s OrderState) (*Order, error) {
	if s.ID == uuid.Nil {
		return nil, Validation("order id cannot be empty")
	}
	if !s.Status.IsValid() {
		return nil, Validation("invalid order status %q", s.Status)
	}
	code, err := normalizeCurrency(s.Currency)
	if err != nil {
		return nil, err
	}
	o := &Order{
		id:                   s.ID,
		userID:               s.UserID,
		items:                append([]OrderItem(nil), s.Items...),
		total:                Zero(code),
		status:               s.Status,
		paymentTransactionID: s.PaymentTransactionID,
		version:              s.Version,
		createdAt:            s.CreatedAt,
		updatedAt:            s.UpdatedAt,
	}
	for _, it := range o.items {
		if it.orderID != o.id {
			return nil, Validation("item %s belongs to order %s", it.id, it.orderID)
		}
		if it.subtotal.Currency() != code {
			return nil, Validation("item %s is priced in %s, order in %s", it.id, it.subtotal.Currency(), code)
		}
	}
	o.CalculateTotal()
	return o, nil
}

func (o *Order) ID() uuid.UUID                { return o.id }
func (o *Order) UserID() string               { return o.userID }
func (o *Order) TotalAmount() Money           { return o.total }
func (o *Order) Currency() string             { return o.total.Currency() }
func (o *Order) Status() OrderStatus          { return o.status }
func (o *Order) PaymentTransactionID() string { return o.paymentTransactionID }
func (o *Order) Version() int                 { return o.version }
func (o *Order) CreatedAt() time.Time         { return o.createdAt }
func (o *Order) UpdatedAt() time.Time         { return o.updatedAt }

// Items returns a copy; callers cannot mutate the aggregate through it.
func (o *Order) Items() []OrderItem {
	return append([]OrderItem(nil), o.items...)
}

func (o *Order) AddItem(snapshot ProductSnapshot, qty Quantity) (OrderItem, error) {
	if o.status != OrderStatusWaiting {
		return OrderItem{}, BusinessRule("cannot add items to an order that is %s", o.status)
	}
	if snapshot.UnitPrice().Currency() != o.Currency() {
		return OrderItem{}, BusinessRule("item priced in %s cannot be added to an order in %s",
			snapshot.UnitPrice().Currency(), o.Currency())
	}
	item, err := newOrderItem(o.id, snapshot, qty)
	if err != nil {
		return OrderItem{}, err
	}
	o.items = append(o.items, item)
	o.CalculateTotal()
	o.touch()
	return item, nil
}

func (o *Order) RemoveItem(itemID uuid.UUID) error {
	if o.status != OrderStatusWaiting {
		return BusinessRule("cannot remove items from an order that is %s", o.status)
	}
	for i, it := range o.items {
		if it.id == itemID {
			o.items = append(o.items[:i:i], o.items[i+1:]...)
			o.CalculateTotal()
			o.touch()
			return nil
		}
	}
	return NotFound("order item %s not found", itemID)
}

// UpdateStatus advances the order one step along Waiting → Preparation →
// Ready → Delivered. Anything else leaves the order untouched.
func (o *Order) UpdateStatus(next OrderStatus) (OrderStatusChanged, error) {
	if !o.status.CanTransitionTo(next) {
		return OrderStatusChanged{}, BusinessRule("invalid status transition from %s to %s", o.status, next)
	}
	previous := o.status
	o.status = next
	o.version++
	o.touch()
	return OrderStatusChanged{OrderID: o.id, Previous: previous, New: next, ChangedAt: o.updatedAt}, nil
}

func (o *Order) SetPaymentTransactionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return Validation("transaction id cannot be empty")
	}
	o.paymentTransactionID = id
	o.touch()
	return nil
}

// CalculateTotal sums item subtotals; an order without items totals zero.
func (o *Order) CalculateTotal() {
	total := Zero(o.total.Currency())
	for _, it := range o.items {
		total = total.Add(it.subtotal)
	}
	o.total = total
}

func (o *Order) touch() {
	o.updatedAt = time.Now().UTC()
}
