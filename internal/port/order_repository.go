package port

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rl1809/coffee-order/internal/core/domain"
)

var ErrConcurrentUpdate = errors.New("order was modified concurrently")

type OrderRepository interface {
	// GetByID loads the aggregate with its items, or returns a domain NotFound error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// GetAll returns every order, oldest first
	GetAll(ctx context.Context) ([]*domain.Order, error)

	// GetByUser returns a user's orders, newest first
	GetByUser(ctx context.Context, userID string) ([]*domain.Order, error)

	// Begin opens a unit of work; nothing is visible to readers until Commit
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork stages order writes and applies them atomically on Commit.
// Rollback after a successful Commit is a no-op, so callers can defer it.
type UnitOfWork interface {
	Add(ctx context.Context, order *domain.Order) error

	// Update persists a changed order; it fails with ErrConcurrentUpdate when
	// the stored version is not the one the order was loaded with
	Update(ctx context.Context, order *domain.Order) error

	Commit() error
	Rollback() error
}
