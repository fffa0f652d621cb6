package lsmap

import "errors"

// Sentinel errors returned by map operations.
//
// Callers classify with [errors.Is].
var (
	// ErrUnknownBackend indicates a back-end tag outside {"bt","sl","ht","rb"}.
	ErrUnknownBackend = errors.New("lsmap: unknown backend")

	// ErrDuplicateKey indicates an Insert for a key that is already present.
	// The engine removes before re-inserting, so seeing this from the write
	// path is a bug in the caller; back-ends still report it.
	ErrDuplicateKey = errors.New("lsmap: duplicate key")

	// ErrZeroKey indicates an operation on sector 0, which the lock-free
	// back-ends reserve for their head guards. The log offset keeps sector 0
	// out of every valid write, so this is a programming error.
	ErrZeroKey = errors.New("lsmap: zero key")

	// ErrContention indicates a lock-free lookup exhausted its retry budget.
	// This bounds livelock under pathological contention; retry after backoff.
	ErrContention = errors.New("lsmap: lookup retry budget exhausted")
)
