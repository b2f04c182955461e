package crdt

import "errors"

// Error kinds scoped to tree operations.
var (
	// ErrUnknownPath: a path segment is missing or points to a
	// tombstone — the producer saw a stale tree. The op is dropped.
	ErrUnknownPath = errors.New("crdt: path segment missing or tombstoned")

	// ErrSchemaViolation: a path segment resolves to a node of
	// unexpected kind.
	ErrSchemaViolation = errors.New("crdt: path does not resolve to expected node kind")

	// ErrStaleClock: the op's clock did not exceed the stored clock.
	ErrStaleClock = errors.New("crdt: stale clock, op dropped")

	// ErrStaleSeed: storage:init arrived after the room was already
	// seeded.
	ErrStaleSeed = errors.New("crdt: room already seeded")
)
