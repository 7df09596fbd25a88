package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func espresso(t *testing.T, price string) ProductSnapshot {
	t.Helper()
	s, err := NewProductSnapshot(uuid.New(), "Espresso", "Short black coffee", MustMoney(price, DefaultCurrency), "")
	require.NoError(t, err)
	return s
}

func qty(t *testing.T, n int) Quantity {
	t.Helper()
	q, err := NewQuantity(n)
	require.NoError(t, err)
	return q
}

func TestNewOrder(t *testing.T) {
	order, created, err := NewOrder("u1")
	require.NoError(t, err)

	assert.Equal(t, OrderStatusWaiting, order.Status())
	assert.True(t, order.TotalAmount().IsZero())
	assert.Empty(t, order.Items())
	assert.Equal(t, order.ID(), created.OrderID)
	assert.Equal(t, "u1", created.UserID)
	assert.Equal(t, order.CreatedAt(), created.CreatedAt)
	assert.True(t, created.Total.IsZero())
}

func TestNewOrder_RejectsEmptyUser(t *testing.T) {
	for _, id := range []string{"", "   "} {
		_, _, err := NewOrder(id)
		assert.True(t, errors.Is(err, ErrValidation), "user id %q", id)
	}
}

func TestOrder_AddItemRecomputesTotal(t *testing.T) {
	order, _, err := NewOrder("u1")
	require.NoError(t, err)

	item, err := order.AddItem(espresso(t, "10.00"), qty(t, 2))
	require.NoError(t, err)
	assert.True(t, item.Subtotal().Equal(MustMoney("20.00", DefaultCurrency)))
	assert.Equal(t, order.ID(), item.OrderID())

	_, err = order.AddItem(espresso(t, "4.25"), qty(t, 1))
	require.NoError(t, err)

	assert.Len(t, order.Items(), 2)
	assert.True(t, order.TotalAmount().Equal(MustMoney("24.25", DefaultCurrency)))
}

func TestOrder_AddItemRejectsOtherCurrency(t *testing.T) {
	order, _, err := NewOrder("u1")
	require.NoError(t, err)

	s, err := NewProductSnapshot(uuid.New(), "Latte", "Milk coffee", MustMoney("5", "USD"), "")
	require.NoError(t, err)

	_, err = order.AddItem(s, qty(t, 1))
	assert.True(t, errors.Is(err, ErrBusinessRule))
	assert.Empty(t, order.Items())
}

func TestOrder_RemoveOnlyItemResetsTotal(t *testing.T) {
	order, _, err := NewOrder("u1")
	require.NoError(t, err)
	item, err := order.AddItem(espresso(t, "10.00"), qty(t, 3))
	require.NoError(t, err)

	require.NoError(t, order.RemoveItem(item.ID()))

	assert.Empty(t, order.Items())
	assert.True(t, order.TotalAmount().IsZero())
}

func TestOrder_RemoveUnknownItem(t *testing.T) {
	order, _, err := NewOrder("u1")
	require.NoError(t, err)
	_, err = order.AddItem(espresso(t, "1"), qty(t, 1))
	require.NoError(t, err)

	err = order.RemoveItem(uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Len(t, order.Items(), 1)
}

func TestOrder_ItemsFrozenOutsideWaiting(t *testing.T) {
	order, _, err := NewOrder("u1")
	require.NoError(t, err)
	item, err := order.AddItem(espresso(t, "2"), qty(t, 1))
	require.NoError(t, err)

	_, err = order.UpdateStatus(OrderStatusPreparation)
	require.NoError(t, err)

	_, err = order.AddItem(espresso(t, "3"), qty(t, 1))
	assert.True(t, errors.Is(err, ErrBusinessRule))

	err = order.RemoveItem(item.ID())
	assert.True(t, errors.Is(err, ErrBusinessRule))

	assert.Len(t, order.Items(), 1)
	assert.True(t, order.TotalAmount().Equal(MustMoney("2", DefaultCurrency)))
}

func TestOrder_ItemsReturnsCopy(t *testing.T) {
	order, _, err := NewOrder("u1")
	require.NoError(t, err)
	_, err = order.AddItem(espresso(t, "2"), qty(t, 1))
	require.NoError(t, err)

	items := order.Items()
	items[0] = OrderItem{}

	assert.Equal(t, order.ID(), order.Items()[0].OrderID())
}

func TestOrder_UpdateStatusTransitions(t *testing.T) {
	all := []OrderStatus{OrderStatusWaiting, OrderStatusPreparation, OrderStatusReady, OrderStatusDelivered}
	allowed := map[[2]OrderStatus]bool{
		{OrderStatusWaiting, OrderStatusPreparation}: true,
		{OrderStatusPreparation, OrderStatusReady}:   true,
		{OrderStatusReady, OrderStatusDelivered}:     true,
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				order := orderInStatus(t, from)

				evt, err := order.UpdateStatus(to)
				if allowed[[2]OrderStatus{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, order.Status())
					assert.Equal(t, from, evt.Previous)
					assert.Equal(t, to, evt.New)
					assert.Equal(t, order.ID(), evt.OrderID)
					return
				}
				assert.True(t, errors.Is(err, ErrBusinessRule))
				assert.Contains(t, err.Error(), "invalid status transition")
				assert.Equal(t, from, order.Status())
			})
		}
	}
}

func TestOrder_WaitingToReadyIsRejected(t *testing.T) {
	order, _, err := NewOrder("u1")
	require.NoError(t, err)
	_, err = order.AddItem(espresso(t, "10.00"), qty(t, 2))
	require.NoError(t, err)

	_, err = order.UpdateStatus(OrderStatusReady)
	require.Error(t, err)
	assert.Equal(t, KindBusinessRule, KindOf(err))
	assert.Equal(t, OrderStatusWaiting, order.Status())
}

func TestOrder_SetPaymentTransactionID(t *testing.T) {
	order, _, err := NewOrder("u1")
	require.NoError(t, err)

	assert.True(t, errors.Is(order.SetPaymentTransactionID(" "), ErrValidation))
	require.NoError(t, order.SetPaymentTransactionID("tx-1"))
	assert.Equal(t, "tx-1", order.PaymentTransactionID())
}

func TestRestoreOrder(t *testing.T) {
	id := uuid.New()
	item, err := RestoreOrderItem(uuid.New(), id, espresso(t, "1.50"), qty(t, 4))
	require.NoError(t, err)

	order, err := RestoreOrder(OrderState{
		ID:       id,
		UserID:   "u1",
		Items:    []OrderItem{item},
		Currency: DefaultCurrency,
		Status:   OrderStatusReady,
		Version:  2,
	})
	require.NoError(t, err)
	assert.True(t, order.TotalAmount().Equal(MustMoney("6", DefaultCurrency)))
	assert.Equal(t, 2, order.Version())

	_, err = RestoreOrder(OrderState{ID: uuid.New(), UserID: "u1", Items: []OrderItem{item}, Currency: DefaultCurrency, Status: OrderStatusReady})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestParseOrderStatus(t *testing.T) {
	for raw, want := range map[string]OrderStatus{
		"Waiting":     OrderStatusWaiting,
		"preparation": OrderStatusPreparation,
		"2":           OrderStatusReady,
		" Delivered ": OrderStatusDelivered,
	} {
		got, err := ParseOrderStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	for _, raw := range []string{"", "Cancelled", "4", "-1"} {
		_, err := ParseOrderStatus(raw)
		assert.True(t, errors.Is(err, ErrValidation), raw)
	}
}

func orderInStatus(t *testing.T, status OrderStatus) *Order {
	t.Helper()
	order, _, err := NewOrder("u1")
	require.NoError(t, err)
	for order.Status() != status {
		next, ok := order.Status().Next()
		require.True(t, ok)
		_, err := order.UpdateStatus(next)
		require.NoError(t, err)
	}
	return order
}
