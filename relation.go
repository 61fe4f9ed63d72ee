package hypersparse

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync/atomic"
)

// Relation is a named, typed set of edges stored in sparse matrices.
//
// An Adjacency relation keeps one node x node matrix: inserting the same
// (source, destination) again overwrites the weight (last write wins), and
// hyperedges are rejected. An Incidence relation keeps two node x edge
// matrices, S for sources and D for destinations; every insert allocates a
// fresh EdgeID, so identical inserts produce distinct edges.
//
// All methods are safe for concurrent use. Each edge is written under one
// write lock, so readers never observe half an edge.
type Relation interface {
	ID() RelationID
	Name() string
	Kind() Kind
	WeightType() WeightType
	// Len is the number of stored coordinates (Adjacency) or edges
	// (Incidence).
	Len() int
	String() string

	// Insert applies one edge spec. A spec naming another relation is
	// malformed; an empty relation name is accepted.
	Insert(ctx context.Context, spec EdgeSpec) error
	// InsertMany applies specs in order, stopping at the first error.
	// Specs applied before the error stay applied.
	InsertMany(ctx context.Context, specs iter.Seq[EdgeSpec]) (int, error)
	// InsertTuples parses relation-scoped (src, dst[, weight]) tuples and
	// inserts them. Every tuple is parsed before the first write.
	InsertTuples(ctx context.Context, tuples ...[]any) (int, error)

	// Iterate yields every edge: Adjacency in row-major order, Incidence in
	// ascending edge id order.
	Iterate(ctx context.Context) EdgeIterator
	// Query yields the edges touching src and/or dst; "" is a wildcard.
	// A name that was never allocated matches nothing.
	Query(ctx context.Context, src, dst string) (EdgeIterator, error)
	// Project returns the node x node view of the relation.
	Project(ctx context.Context, combine Combine) (*Projection, error)

	// match captures the edges touching src and dst under the read lock.
	// A zero id is a wildcard.
	match(src, dst NodeID) []rawEdge
	// check validates spec and coerces its weights without writing.
	check(spec EdgeSpec) error
	replay(op OpType, payload []byte) error
	verify(ctx context.Context, report *IntegrityReport) error
	nvals() int
}

// RelationOptions configures AddRelation.
type RelationOptions struct {
	// WeightType defaults to Bool.
	WeightType WeightType
	// Incidence selects the paired-matrix encoding that supports
	// multi-edges and hyperedges.
	Incidence bool
}

// relationBase holds what every relation shares with its graph.
type relationBase struct {
	info     RelationInfo
	wt       WeightType
	catalog  *Catalog
	wal      *WAL
	metrics  *Metrics
	log      *slog.Logger
	closed   *atomic.Bool
	readOnly bool
}

func (r *relationBase) ID() RelationID         { return r.info.ID }
func (r *relationBase) Name() string           { return r.info.Name }
func (r *relationBase) Kind() Kind             { return r.info.Kind }
func (r *relationBase) WeightType() WeightType { return r.wt }

func (r *relationBase) checkOpen() error {
	if r.closed != nil && r.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (r *relationBase) checkWritable() error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if r.readOnly {
		return ErrReadOnly
	}
	return nil
}

// checkTarget rejects specs addressed to a different relation.
func (r *relationBase) checkTarget(spec EdgeSpec) error {
	if spec == nil {
		return fmt.Errorf("%w: nil edge spec", ErrMalformedEdgeSpec)
	}
	if n := spec.RelationName(); n != "" && n != r.info.Name {
		return fmt.Errorf("%w: spec for %q sent to relation %q", ErrMalformedEdgeSpec, n, r.info.Name)
	}
	return spec.validate()
}

func (r *relationBase) coerce(v any) (any, error) {
	w, err := r.wt.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("relation %s: %w", r.info.Name, err)
	}
	return w, nil
}

// logEdge appends one edge to the WAL. Without a WAL it is a no-op.
func (r *relationBase) logEdge(op OpType, payload any) error {
	if r.wal == nil {
		return nil
	}
	data, err := encodeWALPayload(payload)
	if err != nil {
		return fmt.Errorf("hypersparse: relation %s: encode WAL payload: %w", r.info.Name, err)
	}
	if _, err := r.wal.Append(op, data); err != nil {
		return err
	}
	r.metrics.WALAppends.Add(1)
	return nil
}

// resolveQuery turns query names into ids. ok is false when a given name
// was never allocated, in which case nothing can match.
func (r *relationBase) resolveQuery(ctx context.Context, src, dst string) (s, d NodeID, ok bool, err error) {
	if src != "" {
		if s, ok, err = r.catalog.Lookup(ctx, src); err != nil || !ok {
			return 0, 0, false, err
		}
	}
	if dst != "" {
		if d, ok, err = r.catalog.Lookup(ctx, dst); err != nil || !ok {
			return 0, 0, false, err
		}
	}
	return s, d, true, nil
}

func (r *relationBase) recordInsert(err error) error {
	if err != nil {
		r.metrics.InsertErrors.Add(1)
		return err
	}
	r.metrics.InsertsTotal.Add(1)
	return nil
}

func insertMany(ctx context.Context, r Relation, specs iter.Seq[EdgeSpec]) (int, error) {
	n := 0
	for spec := range specs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := r.Insert(ctx, spec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func insertTuples(ctx context.Context, r Relation, tuples [][]any) (int, error) {
	specs := make([]EdgeSpec, 0, len(tuples))
	for i, t := range tuples {
		spec, err := ParseRelationTuple(r.Name(), t)
		if err != nil {
			return 0, fmt.Errorf("hypersparse: tuple %d: %w", i, err)
		}
		specs = append(specs, spec)
	}
	return insertMany(ctx, r, slices.Values(specs))
}

// newRelation picks the matrix element type from the weight type.
func newRelation(base *relationBase) Relation {
	switch base.wt.kind {
	case WeightBool:
		return buildRelation[bool](base)
	case WeightInt64:
		return buildRelation[int64](base)
	case WeightFloat64:
		return buildRelation[float64](base)
	case WeightComplex64:
		return buildRelation[complex64](base)
	default:
		return buildRelation[any](base)
	}
}

func buildRelation[T any](base *relationBase) Relation {
	if base.info.Kind == Incidence {
		return newIncidence[T](base)
	}
	return newAdjacency[T](base)
}
