package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/port"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"

	publishTimeout = 5 * time.Second
)

var (
	ErrRelayClosed = errors.New("event relay closed")
	ErrRelayFull   = errors.New("event relay queue full")
)

type OrderCreatedMessage struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
}

type OrderStatusChangedMessage struct {
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedAt time.Time `json:"changed_at"`
}

// IntegrationMessage is a domain event flattened for other services.
type IntegrationMessage struct {
	Topic   string
	Key     string
	Payload any
}

// Translate maps a domain event to its integration message. Unknown events
// are not published.
func Translate(e domain.Event) (IntegrationMessage, bool) {
	switch ev := e.(type) {
	case domain.OrderCreated:
		return IntegrationMessage{
			Topic: TopicOrderCreated,
			Key:   ev.OrderID.String(),
			Payload: OrderCreatedMessage{
				OrderID:     ev.OrderID.String(),
				UserID:      ev.UserID,
				TotalAmount: ev.Total.Amount(),
				Currency:    ev.Total.Currency(),
				CreatedAt:   ev.CreatedAt,
			},
		}, true
	case domain.OrderStatusChanged:
		return IntegrationMessage{
			Topic: TopicOrderStatusChanged,
			Key:   ev.OrderID.String(),
			Payload: OrderStatusChangedMessage{
				OrderID:   ev.OrderID.String(),
				OldStatus: string(ev.Previous),
				NewStatus: string(ev.New),
				ChangedAt: ev.ChangedAt,
			},
		}, true
	default:
		return IntegrationMessage{}, false
	}
}

// EventRelay publishes committed domain events in the background so callers
// never wait on the broker. Events of one batch are published in order.
type EventRelay struct {
	publisher port.EventPublisher
	queue     chan []domain.Event
	metrics   Metrics
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewEventRelay(publisher port.EventPublisher, queueSize int, logger *slog.Logger, metrics Metrics) *EventRelay {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &EventRelay{
		publisher: publisher,
		queue:     make(chan []domain.Event, queueSize),
		metrics:   metrics,
		logger:    logger,
	}
}

// Start launches workers that drain the queue until Close.
func (r *EventRelay) Start(workers int) {
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.workerLoop(id)
		}(i)
	}
}

// Enqueue hands events over without blocking on the broker.
func (r *EventRelay) Enqueue(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRelayClosed
	}

	select {
	case r.queue <- events:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrRelayFull
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (r *EventRelay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *EventRelay) workerLoop(id int) {
	for batch := range r.queue {
		for _, e := range batch {
			r.Publish(context.Background(), e)
		}
	}
	r.logger.Debug("event relay worker stopped", "worker", id)
}

// Publish sends one event synchronously. Failures are logged and returned;
// the order they describe is already committed and stays that way.
func (r *EventRelay) Publish(ctx context.Context, e domain.Event) error {
	msg, ok := Translate(e)
	if !ok {
		r.logger.WarnContext(ctx, "no integration message for event", "event", e.EventName())
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := r.publisher.Publish(ctx, msg.Topic, msg.Key, msg.Payload)
	r.metrics.ObserveEventPublished(msg.Topic, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to publish event",
			"topic", msg.Topic, "event", e.EventName(), "order_id", e.AggregateID(), "error", err)
		return err
	}
	r.logger.InfoContext(ctx, "published event", "topic", msg.Topic, "event", e.EventName(), "order_id", e.AggregateID())
	return nil
}
