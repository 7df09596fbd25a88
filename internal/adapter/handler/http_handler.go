package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/core/service"
)

const userHeader = "X-User-Id"

// OrderService is what the transports need from the order use cases.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd service.CreateOrderCommand) (uuid.UUID, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error
	GetOrder(ctx context.Context, id uuid.UUID, userID string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]*domain.Order, error)
	Menu(ctx context.Context) ([]domain.Product, error)
}

type HTTPHandler struct {
	orderService OrderService
	logger       *slog.Logger
}

func NewHTTPHandler(orderService OrderService, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{orderService: orderService, logger: logger}
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StatusResponse{
			Message: "invalid request body",
			Error:   domain.KindValidation.String(),
		})
		return
	}

	id, err := h.orderService.CreateOrder(r.Context(), service.CreateOrderCommand{
		UserID: r.Header.Get(userHeader),
		Items:  req.items(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+id.String())
	writeJSON(w, http.StatusCreated, CreateOrderResponse{
		Success: true,
		Message: "order created",
		OrderID: id.String(),
	})
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StatusResponse{
			Message: "invalid request body",
			Error:   domain.KindValidation.String(),
		})
		return
	}
	status, err := domain.ParseOrderStatus(req.NewStatus)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.orderService.UpdateOrderStatus(r.Context(), id, status); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "order status updated to " + string(status)})
}

// GetOrder scopes the lookup to the caller when X-User-Id is sent.
func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), id, r.Header.Get(userHeader))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.ListOrders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *HTTPHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.ListUserOrders(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *HTTPHandler) Menu(w http.ResponseWriter, r *http.Request) {
	products, err := h.orderService.Menu(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, StatusResponse{
			Message: "invalid order id",
			Error:   domain.KindValidation.String(),
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		var de *domain.Error
		if errors.As(err, &de) && de.Message != "" {
			message = de.Message
		}
	}
	writeJSON(w, status, StatusResponse{Message: message, Error: kind.String()})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindBusinessRule:
		return http.StatusUnprocessableEntity
	case domain.KindExternalFailure, domain.KindCompensationFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
