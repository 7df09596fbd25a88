package domain

import "errors"

var ErrNonPositiveQuantity = errors.New("quantity must be positive")

// Quantity is an immutable positive count.
type Quantity struct {
	value int
}

func NewQuantity(value int) (Quantity, error) {
	if value <= 0 {
		return Quantity{}, ErrNonPositiveQuantity
	}
	return Quantity{value: value}, nil
}

func (q Quantity) Value() int { return q.value }

func (q Quantity) Increase(amount int) (Quantity, error) {
	return NewQuantity(q.value + amount)
}

func (q Quantity) Decrease(amount int) (Quantity, error) {
	return NewQuantity(q.value - amount)
}
