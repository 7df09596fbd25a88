package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Product is a catalog entry. The catalog subsystem owns it; orders only read it.
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Category    string
	ImageURL    string
	BasePrice   Money
	Available   bool
	Variations  []Variation
}

// Variation adjusts a product's base price, e.g. a larger cup size.
type Variation struct {
	ID              uuid.UUID
	ProductID       uuid.UUID
	Name            string
	PriceAdjustment Money
}

// UnitPrice returns the base price plus the variation's adjustment, if any.
func (p Product) UnitPrice(v *Variation) (Money, error) {
	if v == nil {
		return p.BasePrice, nil
	}
	if v.ProductID != p.ID {
		return Money{}, BusinessRule("variation %s does not belong to product %s", v.ID, p.ID)
	}
	if v.PriceAdjustment.Currency() != p.BasePrice.Currency() {
		return Money{}, BusinessRule("variation %s is priced in %s, product in %s",
			v.ID, v.PriceAdjustment.Currency(), p.BasePrice.Currency())
	}
	return p.BasePrice.Add(v.PriceAdjustment), nil
}

// ProductSnapshot freezes product details at the time an item is ordered so
// later catalog changes cannot alter an existing order.
type ProductSnapshot struct {
	productID     uuid.UUID
	name          string
	description   string
	unitPrice     Money
	variationName string
}

func NewProductSnapshot(productID uuid.UUID, name, description string, unitPrice Money, variationName string) (ProductSnapshot, error) {
	if productID == uuid.Nil {
		return ProductSnapshot{}, Validation("product id cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return ProductSnapshot{}, Validation("product name cannot be empty")
	}
	if strings.TrimSpace(description) == "" {
		return ProductSnapshot{}, Validation("product description cannot be empty")
	}
	if unitPrice.Currency() == "" {
		return ProductSnapshot{}, Validation("unit price must carry a currency")
	}
	return ProductSnapshot{
		productID:     productID,
		name:          name,
		description:   description,
		unitPrice:     unitPrice,
		variationName: variationName,
	}, nil
}

// SnapshotOf captures p (and optionally v) as priced right now.
func SnapshotOf(p Product, v *Variation) (ProductSnapshot, error) {
	price, err := p.UnitPrice(v)
	if err != nil {
		return ProductSnapshot{}, err
	}
	var variationName string
	if v != nil {
		variationName = v.Name
	}
	return NewProductSnapshot(p.ID, p.Name, p.Description, price, variationName)
}

func (s ProductSnapshot) ProductID() uuid.UUID  { return s.productID }
func (s ProductSnapshot) Name() string          { return s.name }
func (s ProductSnapshot) Description() string   { return s.description }
func (s ProductSnapshot) UnitPrice() Money      { return s.unitPrice }
func (s ProductSnapshot) VariationName() string { return s.variationName }
