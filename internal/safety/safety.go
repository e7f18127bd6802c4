// Package safety implements the pre-execution guard that blocks a batch
// from deleting an outsized share of a tree before the executor ever sees
// it.
package safety

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/treesync/internal/config"
)

// ErrBigBatchBlocked is returned when a batch's delete count exceeds the
// configured thresholds and no override was given.
var ErrBigBatchBlocked = errors.New("safety: big-batch protection triggered")

// Store is the subset of a tree-store the guard needs: how many live nodes
// it currently holds, so a deletion count can be judged as a fraction of
// the whole tree rather than in isolation.
type Store interface {
	Count() int
}

// Checker enforces SafetyConfig's big-batch thresholds against a planned
// batch before it is enqueued.
type Checker struct {
	cfg    config.SafetyConfig
	logger *slog.Logger
}

// NewChecker constructs a Checker from cfg.
func NewChecker(cfg config.SafetyConfig, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Checker{cfg: cfg, logger: logger}
}

// percentMultiplier converts a count to a percentage (multiply before
// dividing to avoid integer truncation).
const percentMultiplier = 100

// CheckBigBatch reports whether a batch removing deleteCount nodes from
// store (which currently holds store.Count() live nodes) may proceed.
// Trees below BigBatchMinItems are exempt — too small for a percentage
// threshold to mean anything. force overrides a violation, logging it as a
// warning instead of blocking it, matching a --force flag on the calling
// command.
func (c *Checker) CheckBigBatch(store Store, deleteCount int, force bool) error {
	if deleteCount == 0 {
		return nil
	}

	total := store.Count()
	if total < c.cfg.BigBatchMinItems {
		return nil
	}

	countExceeded := deleteCount > c.cfg.BigBatchThreshold

	var percentExceeded bool
	if total > 0 {
		percentExceeded = (deleteCount * percentMultiplier / total) > c.cfg.BigBatchPercentage
	}

	if !countExceeded && !percentExceeded {
		return nil
	}

	var pct int
	if total > 0 {
		pct = deleteCount * percentMultiplier / total
	}

	msg := fmt.Sprintf("would remove %d of %d items (%d%%), thresholds: %d items or %d%%",
		deleteCount, total, pct, c.cfg.BigBatchThreshold, c.cfg.BigBatchPercentage)

	if force {
		c.logger.Warn("safety: big-batch override via --force", "detail", msg)
		return nil
	}

	return fmt.Errorf("%w: %s (use --force to override)", ErrBigBatchBlocked, msg)
}
