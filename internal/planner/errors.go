package planner

import "errors"

// Sentinel errors returned by Plan, matched with
// errors.Is by callers (the executor, the CLI).
var (
	// ErrNotImplemented is returned when a PROMPT policy is requested; this
	// build has no interactive prompt surface.
	ErrNotImplemented = errors.New("planner: policy requires a prompt, not implemented")

	// ErrAmbiguousConflict is returned when a REPLACE or MERGE policy finds
	// more than one destination child sharing the source's name.
	ErrAmbiguousConflict = errors.New("planner: multiple destination children share the source name")

	// ErrReplaceDirWithFile is returned when REPLACE_ALWAYS lands a file op
	// on an existing destination directory and the policy is FAIL.
	ErrReplaceDirWithFile = errors.New("planner: refusing to replace a directory with a file")

	// ErrInvalidBatch is returned by batch validation when an op references
	// a node that does not exist and is not scheduled to be created, or
	// targets a node already scheduled for removal.
	ErrInvalidBatch = errors.New("planner: batch failed validation")
)
