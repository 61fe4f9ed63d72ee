package hypersparse

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/mstrYoda/hypersparse/sparse"
)

// adjacency stores a relation as one node x node matrix M with
// M[src, dst] = weight.
type adjacency[T any] struct {
	*relationBase
	mu sync.RWMutex
	m  *sparse.Matrix[T]
}

func newAdjacency[T any](base *relationBase) *adjacency[T] {
	return &adjacency[T]{relationBase: base, m: sparse.New[T](1, 1)}
}

func (r *adjacency[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m.NVals()
}

func (r *adjacency[T]) nvals() int { return r.Len() }

func (r *adjacency[T]) String() string {
	return fmt.Sprintf("<Adjacency %s %s:%d>", r.info.Name, r.wt.Name(), r.Len())
}

func (r *adjacency[T]) Insert(ctx context.Context, spec EdgeSpec) error {
	return r.recordInsert(r.insert(ctx, spec))
}

// prepare validates spec and coerces its weight without writing anything.
func (r *adjacency[T]) prepare(spec EdgeSpec) (Simple, any, error) {
	if err := r.checkTarget(spec); err != nil {
		return Simple{}, nil, err
	}
	s, ok := spec.(Simple)
	if !ok {
		return Simple{}, nil, fmt.Errorf("%w: hyperedge sent to adjacency relation %s", ErrMalformedEdgeSpec, r.info.Name)
	}
	w, err := r.coerce(s.Weight)
	if err != nil {
		return Simple{}, nil, err
	}
	return s, w, nil
}

func (r *adjacency[T]) check(spec EdgeSpec) error {
	_, _, err := r.prepare(spec)
	return err
}

func (r *adjacency[T]) insert(ctx context.Context, spec EdgeSpec) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	s, w, err := r.prepare(spec)
	if err != nil {
		return err
	}
	src, err := r.catalog.ResolveOrCreate(ctx, s.Source)
	if err != nil {
		return err
	}
	dst, err := r.catalog.ResolveOrCreate(ctx, s.Destination)
	if err != nil {
		return err
	}

	// WAL order must equal apply order for overwrites.
	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.logEdge(OpInsertAdjacency, &walAdjacency{
		Relation:    r.info.ID,
		Source:      src,
		Destination: dst,
		Weight:      PortableWeight(w),
	})
	if err != nil {
		return err
	}
	r.setLocked(src, dst, asT[T](w))
	return nil
}

func (r *adjacency[T]) setLocked(src, dst NodeID, w T) {
	r.m.Grow(uint64(src), uint64(dst))
	_ = r.m.Set(uint64(src), uint64(dst), w)
}

func (r *adjacency[T]) InsertMany(ctx context.Context, specs iter.Seq[EdgeSpec]) (int, error) {
	return insertMany(ctx, r, specs)
}

func (r *adjacency[T]) InsertTuples(ctx context.Context, tuples ...[]any) (int, error) {
	return insertTuples(ctx, r, tuples)
}

func (r *adjacency[T]) Iterate(ctx context.Context) EdgeIterator {
	if err := r.checkOpen(); err != nil {
		return &relationIterator{err: err}
	}
	return newRelationIterator(ctx, r.info.Name, r.catalog, r.match(0, 0))
}

func (r *adjacency[T]) Query(ctx context.Context, src, dst string) (EdgeIterator, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	r.metrics.QueriesTotal.Add(1)
	s, d, ok, err := r.resolveQuery(ctx, src, dst)
	if err != nil {
		r.metrics.QueryErrorTotal.Add(1)
		return nil, err
	}
	if !ok {
		return emptyIterator{}, nil
	}
	return newRelationIterator(ctx, r.info.Name, r.catalog, r.match(s, d)), nil
}

// match answers the four pattern shapes: both ids is a cell test, one id a
// row or column slice, neither a full scan.
func (r *adjacency[T]) match(src, dst NodeID) []rawEdge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case src != 0 && dst != 0:
		if v, ok := r.m.Get(uint64(src), uint64(dst)); ok {
			return []rawEdge{adjacencyEdge(src, dst, v)}
		}
		return nil
	case src != 0:
		row := r.m.Row(uint64(src))
		out := make([]rawEdge, len(row))
		for i, e := range row {
			out[i] = adjacencyEdge(src, NodeID(e.Index), e.Value)
		}
		return out
	case dst != 0:
		col := r.m.Col(uint64(dst))
		out := make([]rawEdge, len(col))
		for i, e := range col {
			out[i] = adjacencyEdge(NodeID(e.Index), dst, e.Value)
		}
		return out
	default:
		out := make([]rawEdge, 0, r.m.NVals())
		r.m.Each(func(i, j uint64, v T) bool {
			out = append(out, adjacencyEdge(NodeID(i), NodeID(j), v))
			return true
		})
		return out
	}
}

func adjacencyEdge[T any](src, dst NodeID, w T) rawEdge {
	return rawEdge{src: []NodeID{src}, dst: []NodeID{dst}, dstW: []any{w}}
}

// Project returns the adjacency matrix itself; there is nothing to combine.
func (r *adjacency[T]) Project(_ context.Context, combine Combine) (*Projection, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	m := sparse.Apply(r.m, func(v T) any { return v })
	r.mu.RUnlock()

	r.metrics.ProjectionsTotal.Add(1)
	return &Projection{
		Relation: r.info.Name,
		Combine:  combine.Name(),
		Matrix:   m,
		Labels:   map[sparse.Coord][]EdgeID{},
		catalog:  r.catalog,
	}, nil
}

func (r *adjacency[T]) replay(op OpType, payload []byte) error {
	if op != OpInsertAdjacency {
		return fmt.Errorf("hypersparse: relation %s: unexpected WAL op %s", r.info.Name, op)
	}
	var p walAdjacency
	if err := decodeWALPayload(payload, &p); err != nil {
		return err
	}
	w, err := r.coerce(p.Weight)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.setLocked(p.Source, p.Destination, asT[T](w))
	r.mu.Unlock()
	return nil
}

func (r *adjacency[T]) verify(ctx context.Context, report *IntegrityReport) error {
	r.mu.RLock()
	cells := r.m.Cells()
	r.mu.RUnlock()

	for _, c := range cells {
		report.CellsChecked++
		for _, id := range []uint64{c.Row, c.Col} {
			if _, err := r.catalog.NameOf(ctx, NodeID(id)); err != nil {
				report.add(r.info.Name, fmt.Sprintf("cell (%d, %d) names unallocated node %d: %v", c.Row, c.Col, id, err))
			}
		}
	}
	return ctx.Err()
}
