package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/rl1809/coffee-order/internal/core/domain"
)

type Notifier interface {
	// Notify tells the user their order moved to status
	Notify(ctx context.Context, userID string, orderID uuid.UUID, status domain.OrderStatus) error
}
