// Package readiness polls a dependency until it answers or a deadline passes.
//
// Every failed attempt is treated as "not ready yet": the probe does not try
// to tell a dependency that is still starting from one that is misconfigured.
// A misconfiguration therefore only surfaces as a TimeoutError.
package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// AttemptFunc performs one readiness check. A nil return means ready.
type AttemptFunc func(ctx context.Context) error

// Spec describes one dependency to wait for.
type Spec struct {
	// Target names the dependency in logs and errors.
	Target   string
	Attempt  AttemptFunc
	Interval time.Duration
	Timeout  time.Duration
	// Clock defaults to clock.WallClock.
	Clock clock.Clock
}

// TimeoutError is returned when the dependency did not become ready before
// Timeout elapsed.
type TimeoutError struct {
	Target   string
	Timeout  time.Duration
	Attempts int
	// LastErr is the error from the final attempt, kept for logging only.
	LastErr error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not become ready within %s (%d attempts)", e.Target, e.Timeout, e.Attempts)
}

// Wait calls spec.Attempt every spec.Interval until it returns nil or
// spec.Timeout is reached. It returns as soon as an attempt succeeds. No
// attempt is started once the next sleep would cross the deadline, so a
// Timeout shorter than Interval yields exactly one attempt.
//
// Cancelling ctx stops the wait between attempts and returns ctx.Err().
func Wait(ctx context.Context, spec Spec) error {
	if spec.Attempt == nil {
		return fmt.Errorf("readiness %s: missing attempt func", spec.Target)
	}
	if spec.Interval <= 0 || spec.Timeout <= 0 {
		return fmt.Errorf("readiness %s: interval and timeout must be positive (got %s, %s)",
			spec.Target, spec.Interval, spec.Timeout)
	}
	clk := spec.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	attempts := 0
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			return spec.Attempt(ctx)
		},
		NotifyFunc: func(lastErr error, attempt int) {
			slog.DebugContext(ctx, "dependency not ready",
				"target", spec.Target,
				"attempt", attempt,
				"err", lastErr,
			)
		},
		Delay:       spec.Interval,
		MaxDuration: spec.Timeout,
		Clock:       clk,
		Stop:        ctx.Done(),
	})
	if err == nil {
		slog.InfoContext(ctx, "dependency ready", "target", spec.Target, "attempts", attempts)
		return nil
	}

	if retry.IsRetryStopped(err) {
		return fmt.Errorf("readiness %s: %w", spec.Target, ctx.Err())
	}

	if !retry.IsDurationExceeded(err) && !retry.IsAttemptsExceeded(err) {
		return fmt.Errorf("readiness %s: %w", spec.Target, err)
	}
	return &TimeoutError{
		Target:   spec.Target,
		Timeout:  spec.Timeout,
		Attempts: attempts,
		LastErr:  retry.LastError(err),
	}
}
