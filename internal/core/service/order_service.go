package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/core/saga"
	"github.com/rl1809/coffee-order/internal/port"
)

var tracer = otel.Tracer("github.com/rl1809/coffee-order/internal/core/service")

type CreateOrderItem struct {
	ProductID   uuid.UUID
	VariationID *uuid.UUID
	Quantity    int
}

type CreateOrderCommand struct {
	UserID string
	Items  []CreateOrderItem
}

func (c CreateOrderCommand) validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return domain.Validation("user id is required")
	}
	if len(c.Items) == 0 {
		return domain.Validation("order must contain at least one item")
	}
	for i, it := range c.Items {
		if it.ProductID == uuid.Nil {
			return domain.Validation("item %d: product id is required", i)
		}
		if it.Quantity <= 0 {
			return domain.Validation("item %d: quantity must be greater than zero", i)
		}
	}
	return nil
}

// Metrics receives business outcomes. NewOrderService defaults to a no-op.
type Metrics interface {
	ObserveOrder(outcome string)
	ObserveCompensation(outcome string)
	ObserveEventPublished(topic string, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOrder(string)                {}
func (nopMetrics) ObserveCompensation(string)         {}
func (nopMetrics) ObserveEventPublished(string, error) {}

type OrderService struct {
	catalog  port.CatalogRepository
	orders   port.OrderRepository
	payments port.PaymentGateway
	notifier port.Notifier
	events   *EventRelay
	sagaLog  port.SagaLog
	metrics  Metrics
	logger   *slog.Logger
	currency string
}

type Option func(*OrderService)

func WithSagaLog(l port.SagaLog) Option {
	return func(s *OrderService) { s.sagaLog = l }
}

func WithMetrics(m Metrics) Option {
	return func(s *OrderService) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *OrderService) { s.logger = l }
}

// WithCurrency sets the currency new orders are priced in; it must match the catalog.
func WithCurrency(code string) Option {
	return func(s *OrderService) { s.currency = code }
}

func NewOrderService(
	catalog port.CatalogRepository,
	orders port.OrderRepository,
	payments port.PaymentGateway,
	notifier port.Notifier,
	events *EventRelay,
	opts ...Option,
) *OrderService {
	s := &OrderService{
		catalog:  catalog,
		orders:   orders,
		payments: payments,
		notifier: notifier,
		events:   events,
		metrics:  nopMetrics{},
		logger:   slog.Default(),
		currency: domain.DefaultCurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder prices the requested items, charges the user, and persists the
// order. A charge whose order cannot be persisted is refunded.
func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	id, err := s.createOrder(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveOrder(domain.KindOf(err).String())
		return uuid.Nil, err
	}
	span.SetAttributes(attribute.String("order.id", id.String()))
	s.metrics.ObserveOrder("created")
	return id, nil
}

func (s *OrderService) createOrder(ctx context.Context, cmd CreateOrderCommand) (uuid.UUID, error) {
	if err := cmd.validate(); err != nil {
		return uuid.Nil, err
	}

	order, created, err := domain.NewOrderInCurrency(cmd.UserID, s.currency)
	if err != nil {
		return uuid.Nil, err
	}

	for _, item := range cmd.Items {
		if err := s.addItem(ctx, order, item); err != nil {
			return uuid.Nil, err
		}
	}
	if len(order.Items()) == 0 {
		return uuid.Nil, domain.Validation("order must contain at least one item")
	}

	charge := &chargeStep{payments: s.payments, order: order, metrics: s.metrics, logger: s.logger}
	persist := &persistStep{orders: s.orders, order: order}
	orchestrator := saga.NewOrchestrator(order.ID().String(),
		[]saga.Step{charge, persist},
		saga.WithRecorder(s.sagaRecorder()),
		saga.WithPayload(func() any { return payloadOf(order) }),
		saga.WithLogger(s.logger),
	)
	if err := orchestrator.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "order creation failed",
			"order_id", order.ID(), "user_id", order.UserID(), "error", err)
		return uuid.Nil, err
	}

	s.logger.InfoContext(ctx, "order created",
		"order_id", order.ID(), "user_id", order.UserID(),
		"total", order.TotalAmount().String(), "transaction_id", order.PaymentTransactionID())

	// the event was raised on an empty order; publish the committed total
	created.Total = order.TotalAmount()
	s.publish(ctx, created)

	return order.ID(), nil
}

func (s *OrderService) addItem(ctx context.Context, order *domain.Order, req CreateOrderItem) error {
	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return lookupError(err, "load product")
	}
	if !product.Available {
		return domain.BusinessRule("product '%s' is not available", product.Name)
	}

	var variation *domain.Variation
	if req.VariationID != nil {
		variation, err = s.catalog.GetVariation(ctx, *req.VariationID)
		if err != nil {
			return lookupError(err, "load product variation")
		}
	}

	snapshot, err := domain.SnapshotOf(*product, variation)
	if err != nil {
		return err
	}
	qty, err := domain.NewQuantity(req.Quantity)
	if err != nil {
		return &domain.Error{Kind: domain.KindValidation, Err: err}
	}
	_, err = order.AddItem(snapshot, qty)
	return err
}

// UpdateOrderStatus advances an order and then tells the user. The status
// change stands even if the notification cannot be delivered.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, target domain.OrderStatus) error {
	ctx, span := tracer.Start(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()), attribute.String("order.status", string(target)))

	if orderID == uuid.Nil {
		return domain.Validation("order id is required")
	}
	if !target.IsValid() {
		return domain.Validation("invalid order status %q", target)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return lookupError(err, "load order")
	}

	changed, err := order.UpdateStatus(target)
	if err != nil {
		return err
	}

	if err := s.saveStatus(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.logger.InfoContext(ctx, "order status updated",
		"order_id", order.ID(), "previous", changed.Previous, "status", changed.New)

	s.publish(ctx, changed)

	if err := s.notifier.Notify(ctx, order.UserID(), order.ID(), target); err != nil {
		s.logger.WarnContext(ctx, "failed to send status notification",
			"order_id", order.ID(), "status", target, "error", err)
	}
	return nil
}

func (s *OrderService) saveStatus(ctx context.Context, order *domain.Order) error {
	uow, err := s.orders.Begin(ctx)
	if err != nil {
		return domain.External("begin order update", err)
	}
	defer uow.Rollback()

	if err := uow.Update(ctx, order); err != nil {
		if errors.Is(err, port.ErrConcurrentUpdate) {
			return &domain.Error{Kind: domain.KindBusinessRule, Message: "order status changed by another request", Err: err}
		}
		return domain.External("update order", err)
	}
	if err := uow.Commit(); err != nil {
		return domain.External("commit order update", err)
	}
	return nil
}

// GetOrder returns an order. When userID is set, orders of other users are
// reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID, userID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "load order")
	}
	if userID != "" && order.UserID() != userID {
		return nil, domain.NotFound("order %s not found", id)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	orders, err := s.orders.GetAll(ctx)
	if err != nil {
		return nil, domain.External("list orders", err)
	}
	return orders, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Validation("user id is required")
	}
	orders, err := s.orders.GetByUser(ctx, userID)
	if err != nil {
		return nil, domain.External("list user orders", err)
	}
	return orders, nil
}

func (s *OrderService) Menu(ctx context.Context) ([]domain.Product, error) {
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, domain.External("list products", err)
	}
	return products, nil
}

func (s *OrderService) publish(ctx context.Context, events ...domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Enqueue(ctx, events...); err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue domain events", "count", len(events), "error", err)
	}
}

// sagaRecorder avoids handing the orchestrator a non-nil interface holding nil.
func (s *OrderService) sagaRecorder() saga.Recorder {
	if s.sagaLog == nil {
		return nil
	}
	return s.sagaLog
}

func lookupError(err error, op string) error {
	if domain.KindOf(err) == domain.KindNotFound {
		return err
	}
	return domain.External(op, err)
}

// sagaPayload is the state a recovery sweep needs to settle an interrupted saga.
type sagaPayload struct {
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func payloadOf(o *domain.Order) sagaPayload {
	return sagaPayload{
		OrderID:       o.ID().String(),
		UserID:        o.UserID(),
		Amount:        o.TotalAmount().Amount().String(),
		Currency:      o.Currency(),
		TransactionID: o.PaymentTransactionID(),
	}
}

func (p sagaPayload) money() (domain.Money, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return domain.Money{}, fmt.Errorf("parse saga amount %q: %w", p.Amount, err)
	}
	return domain.NewMoney(amount, p.Currency)
}
