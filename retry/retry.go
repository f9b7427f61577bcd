// Package retry implements the single retry/backoff policy module shared by
// the Agent Invoker and the Tool Broker (spec §4.9 "Retry & Backoff"):
// exponential backoff with jitter, classifying errors as retriable/fatal via
// the orcherr taxonomy rather than string matching against error messages,
// since this system's failures already carry a typed Kind.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/arcflow/orchestrator/orcherr"
)

// Policy configures the backoff schedule.
type Policy struct {
	MaxAttempts  int           // default 3
	BaseDelay    time.Duration // default 250ms
	MaxDelay     time.Duration // default 10s
	JitterFactor float64       // 0.2 (20%) in DefaultPolicy; 0 disables jitter
}

// DefaultPolicy matches spec §4.9's defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		BaseDelay:    250 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.2,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 250 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0.2
	}
	return p
}

// Delay returns the backoff delay before attempt number `attempt` (1-indexed:
// the delay before the 2nd attempt is Delay(1)), as base*2^(attempt-1) with
// +/-JitterFactor jitter, capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	jitter := d * p.JitterFactor * (rand.Float64()*2 - 1)
	d += jitter
	if d < 0 {
		d = 0
	}
	if time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Do runs fn up to p.MaxAttempts times, sleeping Delay(attempt) between
// attempts, stopping early on a non-retriable error or a successful call.
// ctx cancellation aborts immediately.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	p = p.withDefaults()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !orcherr.Retriable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return lastErr
}

// DoWithResult is Do's generic counterpart for operations that return a value.
func DoWithResult[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	p = p.withDefaults()
	var zero, result T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !orcherr.Retriable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return zero, lastErr
}
