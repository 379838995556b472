package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
)

// Idle blocks until ctx is cancelled, waking once per interval. It returns
// nil on cancellation: stopping is the normal way out.
func Idle(ctx context.Context, clk clock.Clock, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("idle interval must be positive (got %s)", interval)
	}
	if clk == nil {
		clk = clock.WallClock
	}

	slog.InfoContext(ctx, "bootstrap complete; idling", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "idle stopped")
			return nil
		case <-clk.After(interval):
			slog.DebugContext(ctx, "idle heartbeat")
		}
	}
}
