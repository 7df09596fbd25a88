// Package resilience wraps outbound calls in a circuit breaker, a bounded
// exponential retry, and a per-attempt timeout, in that order from the
// outside in.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without calling the dependency while the
// breaker is open or its half-open probe slots are taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type Settings struct {
	// Name labels the breaker in logs and metrics, e.g. "payment".
	Name string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// FailureThreshold consecutive failed calls open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		Timeout:          30 * time.Second,
		MaxRetries:       3,
		BaseDelay:        2 * time.Second,
		MaxDelay:         30 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Observer is told about retries and breaker transitions.
type Observer interface {
	Retry(name string, attempt int, delay time.Duration, err error)
	StateChange(name string, from, to string)
}

type nopObserver struct{}

func (nopObserver) Retry(string, int, time.Duration, error) {}
func (nopObserver) StateChange(string, string, string)      {}

// Reply is the outcome of one attempt. Only 2xx status codes count as success.
type Reply struct {
	StatusCode int
	Body       []byte
}

func (r Reply) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// StatusError reports a reply that was still unsuccessful after all retries.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Call performs one attempt. ctx already carries the attempt timeout.
type Call func(ctx context.Context) (Reply, error)

// Policy is owned by one adapter instance; each instance has its own breaker.
type Policy struct {
	settings Settings
	breaker  *gobreaker.CircuitBreaker[Reply]
	observer Observer
}

func NewPolicy(s Settings, observer Observer) *Policy {
	if observer == nil {
		observer = nopObserver{}
	}
	p := &Policy{settings: s, observer: observer}
	p.breaker = gobreaker.NewCircuitBreaker[Reply](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observer.StateChange(name, from.String(), to.String())
		},
	})
	return p
}

// State reports the breaker state: "closed", "half-open" or "open".
func (p *Policy) State() string {
	return p.breaker.State().String()
}

// Do runs call through the policy chain. A reply that is still not 2xx after
// the last retry is returned together with a *StatusError.
func (p *Policy) Do(ctx context.Context, call Call) (Reply, error) {
	reply, err := p.breaker.Execute(func() (Reply, error) {
		return p.retry(ctx, call)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Reply{}, fmt.Errorf("%s: %w", p.settings.Name, ErrCircuitOpen)
	}
	return reply, err
}

func (p *Policy) retry(ctx context.Context, call Call) (Reply, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.settings.BaseDelay
	exp.MaxInterval = p.settings.MaxDelay
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(p.settings.MaxRetries))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	op := func() (Reply, error) {
		attempt++
		reply, err := p.attempt(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				return reply, backoff.Permanent(err)
			}
			return reply, err
		}
		if !reply.OK() {
			return reply, &StatusError{StatusCode: reply.StatusCode, Body: string(reply.Body)}
		}
		return reply, nil
	}
	notify := func(err error, delay time.Duration) {
		p.observer.Retry(p.settings.Name, attempt, delay, err)
	}

	return backoff.RetryNotifyWithData(op, b, notify)
}

func (p *Policy) attempt(ctx context.Context, call Call) (Reply, error) {
	if p.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.Timeout)
		defer cancel()
	}
	return call(ctx)
}
