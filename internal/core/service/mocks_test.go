package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/core/saga"
	"github.com/rl1809/coffee-order/internal/port"
)

// Mock CatalogRepository
type mockCatalog struct {
	products   map[uuid.UUID]domain.Product
	variations map[uuid.UUID]domain.Variation
	err        error
}

func newMockCatalog(products ...domain.Product) *mockCatalog {
	c := &mockCatalog{
		products:   make(map[uuid.UUID]domain.Product),
		variations: make(map[uuid.UUID]domain.Variation),
	}
	for _, p := range products {
		c.products[p.ID] = p
		for _, v := range p.Variations {
			c.variations[v.ID] = v
		}
	}
	return c
}

func (m *mockCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, domain.NotFound("product %s not found", id)
	}
	return &p, nil
}

func (m *mockCatalog) GetVariation(ctx context.Context, id uuid.UUID) (*domain.Variation, error) {
	v, ok := m.variations[id]
	if !ok {
		return nil, domain.NotFound("variation %s not found", id)
	}
	return &v, nil
}

func (m *mockCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	for _, p := range m.products {
		if p.Available {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Mock OrderRepository. Stored orders are copies so callers cannot reach into it.
type mockOrders struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*domain.Order
	addErr    error
	updateErr error
	commitErr error
	beginErr  error
	commits   int
}

func newMockOrders() *mockOrders {
	return &mockOrders{orders: make(map[uuid.UUID]*domain.Order)}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c, err := domain.RestoreOrder(domain.OrderState{
		ID:                   o.ID(),
		UserID:               o.UserID(),
		Items:                o.Items(),
		Currency:             o.Currency(),
		Status:               o.Status(),
		PaymentTransactionID: o.PaymentTransactionID(),
		Version:              o.Version(),
		CreatedAt:            o.CreatedAt(),
		UpdatedAt:            o.UpdatedAt(),
	})
	if err != nil {
		panic(err)
	}
	return c
}

func (m *mockOrders) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NotFound("order %s not found", id)
	}
	return cloneOrder(o), nil
}

func (m *mockOrders) GetAll(ctx context.Context) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func (m *mockOrders) GetByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	all, _ := m.GetAll(ctx)
	var out []*domain.Order
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].UserID() == userID {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (m *mockOrders) Begin(ctx context.Context) (port.UnitOfWork, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &mockUoW{repo: m}, nil
}

func (m *mockOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *mockOrders) put(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID()] = cloneOrder(o)
}

type mockUoW struct {
	repo    *mockOrders
	staged  []*domain.Order
	updates []*domain.Order
	done    bool
}

func (u *mockUoW) Add(ctx context.Context, o *domain.Order) error {
	if u.repo.addErr != nil {
		return u.repo.addErr
	}
	u.staged = append(u.staged, cloneOrder(o))
	return nil
}

func (u *mockUoW) Update(ctx context.Context, o *domain.Order) error {
	if u.repo.updateErr != nil {
		return u.repo.updateErr
	}
	u.repo.mu.Lock()
	stored, ok := u.repo.orders[o.ID()]
	u.repo.mu.Unlock()
	if !ok {
		return domain.NotFound("order %s not found", o.ID())
	}
	if stored.Version() != o.Version()-1 {
		return port.ErrConcurrentUpdate
	}
	u.updates = append(u.updates, cloneOrder(o))
	return nil
}

func (u *mockUoW) Commit() error {
	if u.repo.commitErr != nil {
		return u.repo.commitErr
	}
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()
	for _, o := range append(u.staged, u.updates...) {
		u.repo.orders[o.ID()] = o
	}
	u.repo.commits++
	u.done = true
	return nil
}

func (u *mockUoW) Rollback() error {
	u.staged, u.updates = nil, nil
	return nil
}

// Mock PaymentGateway
type mockPayments struct {
	mu        sync.Mutex
	charges   []port.ChargeRequest
	refunds   []port.RefundRequest
	chargeErr error
	refundErr error
	txID      string
}

func (m *mockPayments) Charge(ctx context.Context, req port.ChargeRequest) (port.PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges = append(m.charges, req)
	if m.chargeErr != nil {
		return port.PaymentResult{}, m.chargeErr
	}
	txID := m.txID
	if txID == "" {
		txID = fmt.Sprintf("tx-%d", len(m.charges))
	}
	return port.PaymentResult{TransactionID: txID}, nil
}

func (m *mockPayments) Refund(ctx context.Context, req port.RefundRequest) (port.PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds = append(m.refunds, req)
	if m.refundErr != nil {
		return port.PaymentResult{}, m.refundErr
	}
	return port.PaymentResult{TransactionID: "refund-" + req.TransactionID}, nil
}

// Mock Notifier
type mockNotifier struct {
	mu    sync.Mutex
	calls []domain.OrderStatus
	err   error
}

func (m *mockNotifier) Notify(ctx context.Context, userID string, orderID uuid.UUID, status domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, status)
	return m.err
}

// Mock EventPublisher
type published struct {
	topic   string
	key     string
	payload any
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, published{topic: topic, key: key, payload: payload})
	return nil
}

func (m *mockPublisher) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.msgs {
		out = append(out, msg.topic)
	}
	return out
}

// Mock SagaLog
type mockSagaLog struct {
	mu      sync.Mutex
	entries []*saga.LogEntry
	listErr error
}

func (m *mockSagaLog) Save(ctx context.Context, e *saga.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockSagaLog) ListStalled(ctx context.Context, status saga.Status, before time.Time) ([]*saga.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	latest := make(map[string]*saga.LogEntry)
	var ids []string
	for _, e := range m.entries {
		if _, seen := latest[e.SagaID]; !seen {
			ids = append(ids, e.SagaID)
		}
		latest[e.SagaID] = e
	}
	var out []*saga.LogEntry
	for _, id := range ids {
		if e := latest[id]; e.Status == status && e.UpdatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockSagaLog) statuses(sagaID string) []saga.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []saga.Status
	for _, e := range m.entries {
		if e.SagaID == sagaID {
			out = append(out, e.Status)
		}
	}
	return out
}

// Mock Metrics
type mockMetrics struct {
	mu            sync.Mutex
	orders        []string
	compensations []string
	publishErrs   int
}

func (m *mockMetrics) ObserveOrder(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, outcome)
}

func (m *mockMetrics) ObserveCompensation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensations = append(m.compensations, outcome)
}

func (m *mockMetrics) ObserveEventPublished(topic string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.publishErrs++
	}
}

var errBoom = errors.New("boom")
