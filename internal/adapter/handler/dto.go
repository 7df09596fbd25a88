package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/core/service"
)

type CreateOrderItemRequest struct {
	ProductID   uuid.UUID  `json:"product_id"`
	VariationID *uuid.UUID `json:"variation_id,omitempty"`
	Quantity    int        `json:"quantity"`
}

type CreateOrderRequest struct {
	// UserID is only read by the gRPC surface; HTTP callers send X-User-Id.
	UserID string                   `json:"user_id,omitempty"`
	Items  []CreateOrderItemRequest `json:"items"`
}

type CreateOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type UpdateStatusRequest struct {
	OrderID   string `json:"order_id,omitempty"`
	NewStatus string `json:"new_status"`
}

type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type OrderItemResponse struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	VariationName string `json:"variation_name,omitempty"`
	UnitPrice     string `json:"unit_price"`
	Quantity      int    `json:"quantity"`
	Subtotal      string `json:"subtotal"`
}

type OrderResponse struct {
	ID                   string              `json:"id"`
	UserID               string              `json:"user_id"`
	Items                []OrderItemResponse `json:"items"`
	TotalAmount          string              `json:"total_amount"`
	Currency             string              `json:"currency"`
	Status               string              `json:"status"`
	PaymentTransactionID string              `json:"payment_transaction_id,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

type VariationResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PriceAdjustment string `json:"price_adjustment"`
}

type ProductResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	ImageURL    string              `json:"image_url,omitempty"`
	BasePrice   string              `json:"base_price"`
	Currency    string              `json:"currency"`
	Variations  []VariationResponse `json:"variations"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := o.Items()
	resp := OrderResponse{
		ID:                   o.ID().String(),
		UserID:               o.UserID(),
		Items:                make([]OrderItemResponse, 0, len(items)),
		TotalAmount:          o.TotalAmount().Amount().StringFixed(2),
		Currency:             o.Currency(),
		Status:               string(o.Status()),
		PaymentTransactionID: o.PaymentTransactionID(),
		CreatedAt:            o.CreatedAt(),
		UpdatedAt:            o.UpdatedAt(),
	}
	for _, it := range items {
		snap := it.Snapshot()
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:            it.ID().String(),
			ProductID:     snap.ProductID().String(),
			ProductName:   snap.Name(),
			VariationName: snap.VariationName(),
			UnitPrice:     snap.UnitPrice().Amount().StringFixed(2),
			Quantity:      it.Quantity().Value(),
			Subtotal:      it.Subtotal().Amount().StringFixed(2),
		})
	}
	return resp
}

func toOrderResponses(orders []*domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func toProductResponse(p domain.Product) ProductResponse {
	resp := ProductResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		BasePrice:   p.BasePrice.Amount().StringFixed(2),
		Currency:    p.BasePrice.Currency(),
		Variations:  make([]VariationResponse, 0, len(p.Variations)),
	}
	for _, v := range p.Variations {
		resp.Variations = append(resp.Variations, VariationResponse{
			ID:              v.ID.String(),
			Name:            v.Name,
			PriceAdjustment: v.PriceAdjustment.Amount().StringFixed(2),
		})
	}
	return resp
}

func (r CreateOrderRequest) items() []service.CreateOrderItem {
	out := make([]service.CreateOrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, service.CreateOrderItem{ProductID: it.ProductID, VariationID: it.VariationID, Quantity: it.Quantity})
	}
	return out
}
