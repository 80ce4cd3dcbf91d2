// Package retry runs an operation with exponential backoff, deciding after
// each failure whether to try again from the error's classification.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
)

// Policy configures one retried operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Step        string

	// Timer overrides the sleep between attempts. Nil uses a real timer.
	Timer backoff.Timer
}

// Attempt describes one failed try.
type Attempt struct {
	Number int              `json:"number"`
	Error  *apperrors.Error `json:"error"`
	Delay  time.Duration    `json:"delay,omitempty"`
}

// Report is the history of a retried operation.
type Report struct {
	Attempts int       `json:"attempts"`
	Failures []Attempt `json:"failures,omitempty"`
}

// Do runs op until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. The wait before attempt n+1 is BaseDelay*2^(n-1).
// The returned error is always a *apperrors.Error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, Report, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var report Report

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.MaxInterval = p.BaseDelay << uint(maxAttempts)
	if b.MaxInterval <= 0 {
		b.MaxInterval = backoff.DefaultMaxInterval
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)

	operation := func() (T, error) {
		report.Attempts++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		ce := apperrors.Classify(err, p.Step)
		report.Failures = append(report.Failures, Attempt{Number: report.Attempts, Error: ce})
		if !ce.Retryable {
			return res, backoff.Permanent(ce)
		}
		return res, ce
	}
	notify := func(_ error, next time.Duration) {
		if n := len(report.Failures); n > 0 {
			report.Failures[n-1].Delay = next
		}
	}

	res, err := backoff.RetryNotifyWithTimerAndData(operation, bo, notify, p.Timer)
	if err != nil {
		if ce, ok := apperrors.As(err); ok {
			return res, report, ce
		}
		// Context expiry surfaces as the bare context error.
		return res, report, apperrors.Classify(err, p.Step)
	}
	return res, report, nil
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) (Report, error) {
	_, report, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return report, err
}
