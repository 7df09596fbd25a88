package domain

import "github.com/google/uuid"

// OrderItem is one line of an order. It is never mutated; remove and re-add to change it.
type OrderItem struct {
	id       uuid.UUID
	orderID  uuid.UUID
	snapshot ProductSnapshot
	quantity Quantity
	subtotal Money
}

func newOrderItem(orderID uuid.UUID, snapshot ProductSnapshot, qty Quantity) (OrderItem, error) {
	return RestoreOrderItem(uuid.New(), orderID, snapshot, qty)
}

// RestoreOrderItem rebuilds a persisted item, recomputing its subtotal.
func RestoreOrderItem(id, orderID uuid.UUID, snapshot ProductSnapshot, qty Quantity) (OrderItem, error) {
	if orderID == uuid.Nil {
		return OrderItem{}, Validation("order id cannot be empty")
	}
	if qty.Value() <= 0 {
		return OrderItem{}, &Error{Kind: KindValidation, Err: ErrNonPositiveQuantity}
	}
	subtotal, err := snapshot.UnitPrice().Multiply(int64(qty.Value()))
	if err != nil {
		return OrderItem{}, err
	}
	return OrderItem{id: id, orderID: orderID, snapshot: snapshot, quantity: qty, subtotal: subtotal}, nil
}

func (i OrderItem) ID() uuid.UUID             { return i.id }
func (i OrderItem) OrderID() uuid.UUID        { return i.orderID }
func (i OrderItem) Snapshot() ProductSnapshot { return i.snapshot }
func (i OrderItem) Quantity() Quantity        { return i.quantity }
func (i OrderItem) Subtotal() Money           { return i.subtotal }
