package hypersparse

import (
	"context"
)

// EdgeIterator is a lazy, pull-based, single-pass iterator over query
// results. Matching coordinates are captured when the query runs; names are
// decoded on each Next. An iterator cannot be restarted; run the query again
// for a fresh one.
//
// Usage:
//
//	it, err := g.Query(ctx, hypersparse.Pattern{Source: "bob"})
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//	    fmt.Println(it.Edge())
//	}
//	if err := it.Err(); err != nil { ... }
type EdgeIterator interface {
	// Next advances to the next edge. It returns false when the results are
	// exhausted, the iterator was closed or an error occurred.
	Next() bool
	// Edge returns the current edge. Only valid after Next returns true.
	Edge() Edge
	// Err returns the first error encountered during iteration.
	Err() error
	// Close releases the iterator. Further Next calls return false.
	Close()
}

// rawEdge is an edge captured as ids under the relation's read lock.
type rawEdge struct {
	id   EdgeID
	src  []NodeID
	dst  []NodeID
	srcW []any // nil for adjacency edges
	dstW []any
}

// relationIterator decodes one relation's captured edges.
type relationIterator struct {
	ctx      context.Context
	relation string
	catalog  *Catalog
	raws     []rawEdge
	pos      int
	cur      Edge
	err      error
	closed   bool
}

func newRelationIterator(ctx context.Context, relation string, catalog *Catalog, raws []rawEdge) *relationIterator {
	return &relationIterator{ctx: ctx, relation: relation, catalog: catalog, raws: raws}
}

func (it *relationIterator) Next() bool {
	if it.closed || it.err != nil || it.pos >= len(it.raws) {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	raw := it.raws[it.pos]
	it.pos++

	srcs, err := it.catalog.namesOf(it.ctx, raw.src)
	if err != nil {
		it.err = err
		return false
	}
	dsts, err := it.catalog.namesOf(it.ctx, raw.dst)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = Edge{
		Relation:      it.relation,
		ID:            raw.id,
		Sources:       srcs,
		Destinations:  dsts,
		SourceWeights: raw.srcW,
		Weights:       raw.dstW,
	}
	return true
}

func (it *relationIterator) Edge() Edge { return it.cur }
func (it *relationIterator) Err() error { return it.err }

func (it *relationIterator) Close() {
	it.closed = true
	it.raws = nil
}

// concatIterator yields its parts in order.
type concatIterator struct {
	parts []EdgeIterator
	idx   int
	err   error
}

func newConcatIterator(parts []EdgeIterator) *concatIterator {
	return &concatIterator{parts: parts}
}

func (it *concatIterator) Next() bool {
	for it.err == nil && it.idx < len(it.parts) {
		p := it.parts[it.idx]
		if p.Next() {
			return true
		}
		if err := p.Err(); err != nil {
			it.err = err
			return false
		}
		p.Close()
		it.idx++
	}
	return false
}

func (it *concatIterator) Edge() Edge {
	if it.idx < len(it.parts) {
		return it.parts[it.idx].Edge()
	}
	return Edge{}
}

func (it *concatIterator) Err() error { return it.err }

func (it *concatIterator) Close() {
	for ; it.idx < len(it.parts); it.idx++ {
		it.parts[it.idx].Close()
	}
}

// emptyIterator yields nothing.
type emptyIterator struct{}

func (emptyIterator) Next() bool { return false }
func (emptyIterator) Edge() Edge { return Edge{} }
func (emptyIterator) Err() error { return nil }
func (emptyIterator) Close()     {}

// Collect drains it into a slice and closes it.
func Collect(it EdgeIterator) ([]Edge, error) {
	defer it.Close()
	var out []Edge
	for it.Next() {
		out = append(out, it.Edge())
	}
	return out, it.Err()
}
