package domain

import "errors"

var (
	// ErrNotFound reports an absent edge, vertex, or record. It is an expected
	// condition during staleness eviction (an edge may already be gone) and
	// callers treat double-removal as a no-op.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation reports a broken contract between the shortest-path
	// engine and the cycle reconstructor, e.g. a missing predecessor for the
	// base currency when a witness edge exists. It is fatal and must never be
	// swallowed.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrMalformedFrame reports a provider datagram whose length is not a
	// whole number of quote records or whose fields cannot be decoded.
	ErrMalformedFrame = errors.New("malformed quote frame")

	// ErrLockHeld reports that a distributed lock is already held by another
	// party.
	ErrLockHeld = errors.New("lock already held")
)
