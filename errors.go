package hypersparse

import "errors"

var (
	// ErrDuplicateRelation is returned when a relation name is declared twice.
	ErrDuplicateRelation = errors.New("hypersparse: relation already declared")

	// ErrUnknownRelation is returned when an insert or query names a relation
	// that was never declared.
	ErrUnknownRelation = errors.New("hypersparse: unknown relation")

	// ErrTypeMismatch is returned when a weight cannot be coerced to the
	// relation's weight type.
	ErrTypeMismatch = errors.New("hypersparse: weight type mismatch")

	// ErrMalformedEdgeSpec is returned for tuples and edge specs of the wrong
	// shape: bad arity, empty names, or a hyperedge sent to an Adjacency
	// relation.
	ErrMalformedEdgeSpec = errors.New("hypersparse: malformed edge spec")

	// ErrNotFound is returned when a node id or name was never allocated.
	ErrNotFound = errors.New("hypersparse: not found")

	// ErrClosed is returned by every operation on a closed graph.
	ErrClosed = errors.New("hypersparse: graph is closed")

	// ErrReadOnly is returned by writes to a graph opened with
	// Options.ReadOnly.
	ErrReadOnly = errors.New("hypersparse: graph is read-only")

	// ErrWriteQueueFull is returned when the store's write queue stays full
	// until the caller's context expires.
	ErrWriteQueueFull = errors.New("hypersparse: write queue full")
)
