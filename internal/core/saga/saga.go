package saga

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Step is a single unit of work. Compensate undoes a successful Execute.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// Orchestrator runs steps in order and compensates completed steps, newest
// first, when a later step fails.
type Orchestrator struct {
	id       string
	steps    []Step
	recorder Recorder
	payload  func() any
	logger   *slog.Logger
}

type Option func(*Orchestrator)

// WithRecorder persists transitions; without it nothing is recorded.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPayload sets a function whose result is JSON-encoded into every log entry.
// It is evaluated at write time so it reflects state produced by earlier steps.
func WithPayload(fn func() any) Option {
	return func(o *Orchestrator) { o.payload = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func NewOrchestrator(id string, steps []Step, opts ...Option) *Orchestrator {
	o := &Orchestrator{id: id, steps: steps, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the saga. On failure it returns the failing step's error
// unchanged, after compensation has been attempted.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.record(ctx, StatusStarted, "", nil)

	var done []Step
	for _, step := range o.steps {
		if err := step.Execute(ctx); err != nil {
			o.logger.WarnContext(ctx, "saga step failed", "saga_id", o.id, "step", step.Name(), "error", err)
			if len(done) == 0 {
				o.record(ctx, StatusFailed, step.Name(), []string{err.Error()})
				return err
			}

			o.record(ctx, StatusCompensating, step.Name(), []string{err.Error()})
			errs := o.compensate(ctx, done)
			if len(errs) > 0 {
				o.record(ctx, StatusFailed, step.Name(), append([]string{err.Error()}, errs...))
			} else {
				o.record(ctx, StatusCompensated, step.Name(), []string{err.Error()})
			}
			return err
		}
		done = append(done, step)
		o.record(ctx, StatusStepDone, step.Name(), nil)
	}

	o.record(ctx, StatusCompleted, "", nil)
	return nil
}

// compensate runs on a context detached from ctx's cancellation: a caller
// that gave up must not leave a charge without its refund.
func (o *Orchestrator) compensate(ctx context.Context, steps []Step) []string {
	ctx = context.WithoutCancel(ctx)

	var errs []string
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		o.logger.InfoContext(ctx, "compensating saga step", "saga_id", o.id, "step", step.Name())
		if err := step.Compensate(ctx); err != nil {
			o.logger.ErrorContext(ctx, "CRITICAL: saga compensation failed",
				"saga_id", o.id, "step", step.Name(), "error", err)
			errs = append(errs, "compensate "+step.Name()+": "+err.Error())
			continue
		}
		o.logger.InfoContext(ctx, "saga step compensated", "saga_id", o.id, "step", step.Name())
	}
	return errs
}

func (o *Orchestrator) record(ctx context.Context, status Status, step string, errs []string) {
	if o.recorder == nil {
		return
	}
	var payload string
	if o.payload != nil {
		if b, err := json.Marshal(o.payload()); err == nil {
			payload = string(b)
		}
	}
	entry := NewEntry(ctx, o.id, status, step, payload, errs)
	if err := o.recorder.Save(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.WarnContext(ctx, "failed to record saga transition",
			"saga_id", o.id, "status", status, "error", err)
	}
}
