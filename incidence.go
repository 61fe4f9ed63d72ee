package hypersparse

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/mstrYoda/hypersparse/sparse"
)

// incidence stores a relation as two node x edge matrices sharing the edge
// axis: S[src, e] holds the weight of source src on edge e, D[dst, e] the
// weight of destination dst. An edge exists iff one of its columns is
// non-empty.
type incidence[T any] struct {
	*relationBase
	mu    sync.RWMutex
	s     *sparse.Matrix[T]
	d     *sparse.Matrix[T]
	edges []EdgeID // ascending
}

func newIncidence[T any](base *relationBase) *incidence[T] {
	return &incidence[T]{
		relationBase: base,
		s:            sparse.New[T](1, 1),
		d:            sparse.New[T](1, 1),
	}
}

func (r *incidence[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.edges)
}

func (r *incidence[T]) nvals() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.s.NVals() + r.d.NVals()
}

func (r *incidence[T]) String() string {
	return fmt.Sprintf("<Incidence %s %s:%d>", r.info.Name, r.wt.Name(), r.Len())
}

func (r *incidence[T]) Insert(ctx context.Context, spec EdgeSpec) error {
	return r.recordInsert(r.insert(ctx, spec))
}

// prepare validates spec and coerces one weight per endpoint without
// writing anything.
func (r *incidence[T]) prepare(spec EdgeSpec) (h Hyper, srcW, dstW []any, err error) {
	if err = r.checkTarget(spec); err != nil {
		return Hyper{}, nil, nil, err
	}
	h = asHyper(spec)
	if srcW, err = r.coerceSide(h.Sources, h.SourceWeights, h.Weight); err != nil {
		return Hyper{}, nil, nil, err
	}
	if dstW, err = r.coerceSide(h.Destinations, h.DestinationWeights, h.Weight); err != nil {
		return Hyper{}, nil, nil, err
	}
	return h, srcW, dstW, nil
}

func (r *incidence[T]) check(spec EdgeSpec) error {
	_, _, _, err := r.prepare(spec)
	return err
}

func (r *incidence[T]) insert(ctx context.Context, spec EdgeSpec) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	h, srcW, dstW, err := r.prepare(spec)
	if err != nil {
		return err
	}
	srcs, err := r.resolveAll(ctx, h.Sources)
	if err != nil {
		return err
	}
	dsts, err := r.resolveAll(ctx, h.Destinations)
	if err != nil {
		return err
	}
	eid, err := r.catalog.NextEdgeID(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.logEdge(OpInsertIncidence, &walIncidence{
		Relation:           r.info.ID,
		Edge:               eid,
		Sources:            srcs,
		Destinations:       dsts,
		SourceWeights:      portableAll(srcW),
		DestinationWeights: portableAll(dstW),
	})
	if err != nil {
		return err
	}
	r.applyLocked(eid, srcs, dsts, srcW, dstW)
	return nil
}

func asHyper(spec EdgeSpec) Hyper {
	switch s := spec.(type) {
	case Hyper:
		return s
	case Simple:
		return Hyper{
			Relation:     s.Relation,
			Sources:      []string{s.Source},
			Destinations: []string{s.Destination},
			Weight:       s.Weight,
		}
	}
	return Hyper{}
}

// coerceSide returns one weight per endpoint: the per-endpoint weight when
// given, otherwise the uniform weight.
func (r *incidence[T]) coerceSide(names []string, perEndpoint []any, uniform any) ([]any, error) {
	out := make([]any, len(names))
	for i := range names {
		v := uniform
		if perEndpoint != nil {
			v = perEndpoint[i]
		}
		w, err := r.coerce(v)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func (r *incidence[T]) resolveAll(ctx context.Context, names []string) ([]NodeID, error) {
	ids := make([]NodeID, len(names))
	for i, n := range names {
		id, err := r.catalog.ResolveOrCreate(ctx, n)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// applyLocked writes one edge's columns; the caller holds the write lock.
// Both matrices grow to cover eid so they keep the same edge axis.
func (r *incidence[T]) applyLocked(eid EdgeID, srcs, dsts []NodeID, srcW, dstW []any) {
	e := uint64(eid)
	r.s.Grow(0, e)
	r.d.Grow(0, e)
	for i, id := range srcs {
		r.s.Grow(uint64(id), e)
		_ = r.s.Set(uint64(id), e, asT[T](srcW[i]))
	}
	for i, id := range dsts {
		r.d.Grow(uint64(id), e)
		_ = r.d.Set(uint64(id), e, asT[T](dstW[i]))
	}
	if i, found := slices.BinarySearch(r.edges, eid); !found {
		r.edges = slices.Insert(r.edges, i, eid)
	}
}

func (r *incidence[T]) InsertMany(ctx context.Context, specs iter.Seq[EdgeSpec]) (int, error) {
	return insertMany(ctx, r, specs)
}

func (r *incidence[T]) InsertTuples(ctx context.Context, tuples ...[]any) (int, error) {
	return insertTuples(ctx, r, tuples)
}

func (r *incidence[T]) Iterate(ctx context.Context) EdgeIterator {
	if err := r.checkOpen(); err != nil {
		return &relationIterator{err: err}
	}
	return newRelationIterator(ctx, r.info.Name, r.catalog, r.match(0, 0))
}

func (r *incidence[T]) Query(ctx context.Context, src, dst string) (EdgeIterator, error) {
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

// match selects edge ids from row src of S and/or row dst of D (the
// intersection when both are given) and captures their columns.
func (r *incidence[T]) match(src, dst NodeID) []rawEdge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []uint64
	switch {
	case src != 0 && dst != 0:
		ids = intersectSorted(r.s.RowIndices(uint64(src)), r.d.RowIndices(uint64(dst)))
	case src != 0:
		ids = r.s.RowIndices(uint64(src))
	case dst != 0:
		ids = r.d.RowIndices(uint64(dst))
	default:
		ids = make([]uint64, len(r.edges))
		for i, e := range r.edges {
			ids[i] = uint64(e)
		}
	}

	out := make([]rawEdge, 0, len(ids))
	for _, e := range ids {
		out = append(out, r.edgeAt(e))
	}
	return out
}

// edgeAt must be called with r.mu held.
func (r *incidence[T]) edgeAt(e uint64) rawEdge {
	raw := rawEdge{id: EdgeID(e)}
	for _, x := range r.s.Col(e) {
		raw.src = append(raw.src, NodeID(x.Index))
		raw.srcW = append(raw.srcW, x.Value)
	}
	for _, x := range r.d.Col(e) {
		raw.dst = append(raw.dst, NodeID(x.Index))
		raw.dstW = append(raw.dstW, x.Value)
	}
	return raw
}

func intersectSorted(a, b []uint64) []uint64 {
	var out []uint64
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// Project computes R = S (+.x) D^T. R[i, j] folds, over every edge e with
// source i and destination j, the product S[i, e] * D[j, e].
func (r *incidence[T]) Project(_ context.Context, combine Combine) (*Projection, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	sr, check, err := semiringFor[T](combine, r.wt)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	m, prov, err := sparse.MxMWithProvenance(r.s, r.d.Transpose(), sr)
	r.mu.RUnlock()
	if err == nil {
		err = check()
	}
	if err != nil {
		return nil, fmt.Errorf("hypersparse: project %s: %w", r.info.Name, err)
	}

	labels := make(map[sparse.Coord][]EdgeID, len(prov))
	for c, ks := range prov {
		ids := make([]EdgeID, len(ks))
		for i, k := range ks {
			ids[i] = EdgeID(k)
		}
		labels[c] = ids
	}

	r.metrics.ProjectionsTotal.Add(1)
	return &Projection{
		Relation: r.info.Name,
		Combine:  combine.Name(),
		Matrix:   sparse.Apply(m, func(v T) any { return v }),
		Labels:   labels,
		catalog:  r.catalog,
	}, nil
}

func (r *incidence[T]) replay(op OpType, payload []byte) error {
	if op != OpInsertIncidence {
		return fmt.Errorf("hypersparse: relation %s: unexpected WAL op %s", r.info.Name, op)
	}
	var p walIncidence
	if err := decodeWALPayload(payload, &p); err != nil {
		return err
	}
	if len(p.SourceWeights) != len(p.Sources) || len(p.DestinationWeights) != len(p.Destinations) {
		return fmt.Errorf("hypersparse: relation %s: edge %d: weight count mismatch", r.info.Name, p.Edge)
	}
	srcW := make([]any, len(p.SourceWeights))
	for i, v := range p.SourceWeights {
		w, err := r.coerce(v)
		if err != nil {
			return err
		}
		srcW[i] = w
	}
	dstW := make([]any, len(p.DestinationWeights))
	for i, v := range p.DestinationWeights {
		w, err := r.coerce(v)
		if err != nil {
			return err
		}
		dstW[i] = w
	}
	r.mu.Lock()
	r.applyLocked(p.Edge, p.Sources, p.Destinations, srcW, dstW)
	r.mu.Unlock()
	return nil
}

func (r *incidence[T]) verify(ctx context.Context, report *IntegrityReport) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.s.NCols() != r.d.NCols() {
		report.add(r.info.Name, fmt.Sprintf("edge axes differ: S has %d columns, D has %d", r.s.NCols(), r.d.NCols()))
	}
	for _, e := range r.edges {
		report.EdgesChecked++
		if r.s.ColLen(uint64(e)) == 0 && r.d.ColLen(uint64(e)) == 0 {
			report.add(r.info.Name, fmt.Sprintf("edge %d has no endpoints", e))
		}
	}
	for _, m := range []*sparse.Matrix[T]{r.s, r.d} {
		for _, row := range m.NonEmptyRows() {
			report.CellsChecked += m.RowLen(row)
			if _, err := r.catalog.NameOf(ctx, NodeID(row)); err != nil {
				report.add(r.info.Name, fmt.Sprintf("row %d names unallocated node: %v", row, err))
			}
		}
	}
	return ctx.Err()
}
