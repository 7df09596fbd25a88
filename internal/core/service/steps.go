package service

import (
	"context"
	"log/slog"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/port"
)

const (
	chargeStepName  = "Payment_Charge_Step"
	persistStepName = "Persist_Order_Step"
)

// chargeStep charges the order total and records the transaction on the order.
// Its compensation refunds the full charged amount.
type chargeStep struct {
	payments port.PaymentGateway
	order    *domain.Order
	metrics  Metrics
	logger   *slog.Logger
	charged  domain.Money
}

func (s *chargeStep) Name() string { return chargeStepName }

func (s *chargeStep) Execute(ctx context.Context) error {
	res, err := s.payments.Charge(ctx, port.ChargeRequest{
		OrderID: s.order.ID(),
		Amount:  s.order.TotalAmount(),
		UserID:  s.order.UserID(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "payment failed", "order_id", s.order.ID(), "error", err)
		return err
	}
	s.charged = s.order.TotalAmount()
	if err := s.order.SetPaymentTransactionID(res.TransactionID); err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: payment succeeded without a transaction reference",
			"order_id", s.order.ID(), "amount", s.charged.String())
		return domain.External("record payment transaction", err)
	}
	return nil
}

func (s *chargeStep) Compensate(ctx context.Context) error {
	txID := s.order.PaymentTransactionID()
	s.logger.WarnContext(ctx, "order creation failed after payment, initiating refund",
		"order_id", s.order.ID(), "transaction_id", txID, "amount", s.charged.String())

	if txID == "" {
		s.metrics.ObserveCompensation("failed")
		return &domain.Error{Kind: domain.KindCompensationFailure, Message: "charge has no transaction id to refund"}
	}
	res, err := s.payments.Refund(ctx, port.RefundRequest{TransactionID: txID, Amount: s.charged})
	if err != nil {
		s.metrics.ObserveCompensation("failed")
		return &domain.Error{Kind: domain.KindCompensationFailure, Message: "refund transaction " + txID, Err: err}
	}
	s.metrics.ObserveCompensation("refunded")
	s.logger.InfoContext(ctx, "payment refunded",
		"order_id", s.order.ID(), "transaction_id", txID, "refund_transaction_id", res.TransactionID)
	return nil
}

// persistStep stores the order in one unit of work. It is the last step, so
// it has nothing to compensate.
type persistStep struct {
	orders port.OrderRepository
	order  *domain.Order
}

func (s *persistStep) Name() string { return persistStepName }

func (s *persistStep) Execute(ctx context.Context) error {
	uow, err := s.orders.Begin(ctx)
	if err != nil {
		return domain.External("begin order transaction", err)
	}
	defer uow.Rollback()

	if err := uow.Add(ctx, s.order); err != nil {
		return domain.External("persist order", err)
	}
	if err := uow.Commit(); err != nil {
		return domain.External("commit order", err)
	}
	return nil
}

func (s *persistStep) Compensate(ctx context.Context) error { return nil }
