package port

import (
	"context"
	"time"

	"github.com/rl1809/coffee-order/internal/core/saga"
)

type SagaLog interface {
	// Save appends an entry; the log is append-only
	Save(ctx context.Context, entry *saga.LogEntry) error

	// ListStalled returns the latest entry of every saga whose last recorded
	// status is status and that has not moved since before
	ListStalled(ctx context.Context, status saga.Status, before time.Time) ([]*saga.LogEntry, error)
}
