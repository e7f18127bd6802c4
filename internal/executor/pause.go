package executor

import (
	"context"
	"time"
)

// pausedPollInterval is how often a blocked op-worker rechecks whether
// execution has resumed.
const pausedPollInterval = 200 * time.Millisecond

// sleepOrDone waits for d or ctx cancellation, reporting whether the caller
// should keep going (true) or ctx ended (false).
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
