// Package saga runs multi-step business transactions whose steps each carry
// a compensating action, and records every transition in an append-only log.
//
// The log serves two purposes: it shows where a saga is (or was), correlated
// with its distributed trace, and it lets a recovery sweep find sagas that
// stopped between a charge and its completion.
package saga

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Status is the lifecycle state recorded for a saga.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	StatusFailed       Status = "FAILED"
)

// LogEntry is a point-in-time snapshot of a saga execution.
type LogEntry struct {
	// SagaID is the order id, so entries join with business data.
	SagaID string

	Status Status

	// CurrentStep is the step that just ran, failed, or was compensated.
	CurrentStep string

	// Payload is the JSON state needed to resume or compensate the saga.
	Payload string

	Errors []string

	TraceID string
	SpanID  string

	UpdatedAt time.Time
}

// Recorder persists log entries.
type Recorder interface {
	Save(ctx context.Context, entry *LogEntry) error
}

// NewEntry builds an entry stamped with the trace active in ctx, if any.
func NewEntry(ctx context.Context, sagaID string, status Status, step, payload string, errs []string) *LogEntry {
	entry := &LogEntry{
		SagaID:      sagaID,
		Status:      status,
		CurrentStep: step,
		Payload:     payload,
		Errors:      errs,
		UpdatedAt:   time.Now().UTC(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		entry.TraceID = sc.TraceID().String()
		entry.SpanID = sc.SpanID().String()
	}
	return entry
}
