package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/core/saga"
	"github.com/rl1809/coffee-order/internal/port"
)

// SagaRecovery settles create-order sagas that stopped after a step
// completed, typically because the process died between charging and
// finishing. Orders that made it to storage are marked completed; charges
// without a stored order are refunded.
type SagaRecovery struct {
	sagaLog  port.SagaLog
	orders   port.OrderRepository
	payments port.PaymentGateway
	logger   *slog.Logger
}

func NewSagaRecovery(sagaLog port.SagaLog, orders port.OrderRepository, payments port.PaymentGateway, logger *slog.Logger) *SagaRecovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &SagaRecovery{sagaLog: sagaLog, orders: orders, payments: payments, logger: logger}
}

// Sweep settles sagas idle for longer than olderThan and reports how many it settled.
func (r *SagaRecovery) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	stalled, err := r.sagaLog.ListStalled(ctx, saga.StatusStepDone, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, domain.External("list stalled sagas", err)
	}

	settled := 0
	for _, entry := range stalled {
		if err := r.settle(ctx, entry); err != nil {
			r.logger.ErrorContext(ctx, "failed to settle saga", "saga_id", entry.SagaID, "error", err)
			continue
		}
		settled++
	}
	return settled, nil
}

func (r *SagaRecovery) settle(ctx context.Context, entry *saga.LogEntry) error {
	var p sagaPayload
	if err := json.Unmarshal([]byte(entry.Payload), &p); err != nil {
		return domain.Validation("decode saga payload: %v", err)
	}
	orderID, err := uuid.Parse(p.OrderID)
	if err != nil {
		return domain.Validation("saga payload order id: %v", err)
	}

	_, err = r.orders.GetByID(ctx, orderID)
	switch {
	case err == nil:
		r.logger.InfoContext(ctx, "recovered saga already persisted", "saga_id", entry.SagaID)
		return r.sagaLog.Save(ctx, saga.NewEntry(ctx, entry.SagaID, saga.StatusCompleted, entry.CurrentStep, entry.Payload, nil))
	case domain.KindOf(err) != domain.KindNotFound:
		return err
	}

	if entry.CurrentStep != chargeStepName || p.TransactionID == "" {
		// nothing was charged, or nothing identifies the charge
		return r.sagaLog.Save(ctx, saga.NewEntry(ctx, entry.SagaID, saga.StatusFailed, entry.CurrentStep, entry.Payload,
			[]string{"abandoned by recovery sweep"}))
	}

	amount, err := p.money()
	if err != nil {
		return err
	}
	r.logger.WarnContext(ctx, "refunding charge of interrupted saga",
		"saga_id", entry.SagaID, "transaction_id", p.TransactionID, "amount", amount.String())

	if _, err := r.payments.Refund(ctx, port.RefundRequest{TransactionID: p.TransactionID, Amount: amount}); err != nil {
		_ = r.sagaLog.Save(ctx, saga.NewEntry(ctx, entry.SagaID, saga.StatusFailed, entry.CurrentStep, entry.Payload,
			[]string{"recovery refund: " + err.Error()}))
		return &domain.Error{Kind: domain.KindCompensationFailure, Message: "refund transaction " + p.TransactionID, Err: err}
	}
	return r.sagaLog.Save(ctx, saga.NewEntry(ctx, entry.SagaID, saga.StatusCompensated, entry.CurrentStep, entry.Payload, nil))
}

// Run sweeps every interval until ctx is cancelled.
func (r *SagaRecovery) Run(ctx context.Context, interval, olderThan time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Sweep(ctx, olderThan)
			if err != nil {
				r.logger.ErrorContext(ctx, "saga recovery sweep failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.InfoContext(ctx, "saga recovery sweep settled sagas", "count", n)
			}
		}
	}
}
