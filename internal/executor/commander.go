package executor

import (
	"context"
	"errors"

	"github.com/tonimelisma/treesync/internal/planner"
)

// Commander realizes one planner.Op against whatever backend(s) own its
// src/dst devices (internal/backend.Dispatcher in production, a fake in
// tests). Execute must be idempotent enough to tolerate being called again
// after a crash left the op PENDING in the ledger.
type Commander interface {
	Execute(ctx context.Context, op *planner.Op) error
}

// errClass buckets a Commander error into how the executor should react.
type errClass int

const (
	classFatal errClass = iota
	classRetryable
	classSkip
)

// ErrSkippable marks an error as safe to treat as a COMPLETED_NO_OP rather
// than a batch-blocking failure (e.g. the source already vanished).
var ErrSkippable = errors.New("executor: op is a no-op, safe to skip")

// ErrTransient marks a local-filesystem error worth retrying a bounded
// number of times before giving up (EAGAIN/EBUSY-class conditions). Remote
// (GDrive) errors are never retried here — the backend's own API client
// owns retry policy for its requests.
var ErrTransient = errors.New("executor: transient local error, retry")

func classifyError(err error) errClass {
	switch {
	case err == nil:
		return classFatal // unreachable; callers only classify non-nil errors
	case errors.Is(err, ErrSkippable):
		return classSkip
	case errors.Is(err, ErrTransient):
		return classRetryable
	default:
		return classFatal
	}
}
