package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tonimelisma/treesync/internal/planner"
)

const (
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
	retryMaxTries  = 5
)

// runWithRetry executes op, retrying with capped exponential backoff only
// while the error classifies as ErrTransient. A fatal or skippable error
// returns immediately. This retry tier only ever applies to the
// local-filesystem side of a Commander — GDrive-facing retries are the
// backend client's own responsibility.
func runWithRetry(ctx context.Context, cmd Commander, op *planner.Op) error {
	backoff, err := retry.NewExponential(retryBaseDelay)
	if err != nil {
		return fmt.Errorf("executor: build retry backoff: %w", err)
	}

	backoff = retry.WithCappedDuration(retryMaxDelay, backoff)
	backoff = retry.WithMaxRetries(retryMaxTries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := cmd.Execute(ctx, op)
		if err == nil {
			return nil
		}

		if classifyError(err) == classRetryable {
			return retry.RetryableError(err)
		}

		return err
	})
}
