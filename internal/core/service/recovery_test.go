package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/core/saga"
)

func stalledEntry(t *testing.T, orderID uuid.UUID, step, txID string, age time.Duration) *saga.LogEntry {
	t.Helper()
	b, err := json.Marshal(sagaPayload{
		OrderID:       orderID.String(),
		UserID:        "user-1",
		Amount:        "20.00",
		Currency:      "USD",
		TransactionID: txID,
	})
	require.NoError(t, err)
	return &saga.LogEntry{
		SagaID:      orderID.String(),
		Status:      saga.StatusStepDone,
		CurrentStep: step,
		Payload:     string(b),
		UpdatedAt:   time.Now().UTC().Add(-age),
	}
}

func TestSagaRecovery_RefundsOrphanedCharge(t *testing.T) {
	h := newHarness()
	orderID := uuid.New()
	h.sagaLog.entries = append(h.sagaLog.entries, stalledEntry(t, orderID, chargeStepName, "tx-9", time.Hour))

	n, err := NewSagaRecovery(h.sagaLog, h.orders, h.payments, nil).Sweep(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, h.payments.refunds, 1)
	assert.Equal(t, "tx-9", h.payments.refunds[0].TransactionID)
	assert.True(t, h.payments.refunds[0].Amount.Equal(domain.MustMoney("20", "USD")))
	assert.Equal(t, []saga.Status{saga.StatusStepDone, saga.StatusCompensated}, h.sagaLog.statuses(orderID.String()))
}

func TestSagaRecovery_CompletesPersistedOrder(t *testing.T) {
	h := newHarness()
	order := h.usdOrder(t, "user-1")
	h.sagaLog.entries = append(h.sagaLog.entries, stalledEntry(t, order.ID(), persistStepName, "tx-1", time.Hour))

	n, err := NewSagaRecovery(h.sagaLog, h.orders, h.payments, nil).Sweep(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, h.payments.refunds)
	assert.Equal(t, []saga.Status{saga.StatusStepDone, saga.StatusCompleted}, h.sagaLog.statuses(order.ID().String()))
}

func TestSagaRecovery_IgnoresRecentSagas(t *testing.T) {
	h := newHarness()
	h.sagaLog.entries = append(h.sagaLog.entries, stalledEntry(t, uuid.New(), chargeStepName, "tx-1", time.Second))

	n, err := NewSagaRecovery(h.sagaLog, h.orders, h.payments, nil).Sweep(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.payments.refunds)
}

func TestSagaRecovery_FailedRefundIsRecorded(t *testing.T) {
	h := newHarness()
	h.payments.refundErr = errBoom
	orderID := uuid.New()
	h.sagaLog.entries = append(h.sagaLog.entries, stalledEntry(t, orderID, chargeStepName, "tx-3", time.Hour))

	n, err := NewSagaRecovery(h.sagaLog, h.orders, h.payments, nil).Sweep(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []saga.Status{saga.StatusStepDone, saga.StatusFailed}, h.sagaLog.statuses(orderID.String()))
}

func TestSagaRecovery_ListFailure(t *testing.T) {
	h := newHarness()
	h.sagaLog.listErr = errBoom

	_, err := NewSagaRecovery(h.sagaLog, h.orders, h.payments, nil).Sweep(context.Background(), time.Minute)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, domain.ErrExternalFailure)
}
