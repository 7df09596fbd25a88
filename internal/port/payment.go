package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/rl1809/coffee-order/internal/core/domain"
)

type ChargeRequest struct {
	OrderID uuid.UUID
	Amount  domain.Money
	UserID  string
}

type RefundRequest struct {
	TransactionID string
	Amount        domain.Money
}

type PaymentResult struct {
	TransactionID string
}

type PaymentGateway interface {
	// Charge takes payment for an order. Only one charge per order may be in flight.
	Charge(ctx context.Context, req ChargeRequest) (PaymentResult, error)

	// Refund returns money for a settled transaction
	Refund(ctx context.Context, req RefundRequest) (PaymentResult, error)
}
