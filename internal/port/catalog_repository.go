package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/rl1809/coffee-order/internal/core/domain"
)

type CatalogRepository interface {
	// GetProduct returns the product with its variations, or a domain NotFound error
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)

	// GetVariation returns a single variation, or a domain NotFound error
	GetVariation(ctx context.Context, id uuid.UUID) (*domain.Variation, error)

	// ListProducts returns the available products for the menu
	ListProducts(ctx context.Context) ([]domain.Product, error)
}
