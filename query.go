package hypersparse

import (
	"context"
	"fmt"
	"time"
)

// Pattern selects edges across the graph. Empty fields are wildcards: the
// zero Pattern matches every edge of every relation.
type Pattern struct {
	Source      string `json:"source,omitempty"`
	Relation    string `json:"relation,omitempty"`
	Destination string `json:"destination,omitempty"`
}

func (p Pattern) String() string {
	return fmt.Sprintf("query(source=%q, relation=%q, destination=%q)", p.Source, p.Relation, p.Destination)
}

type relationMatch struct {
	rel  Relation
	raws []rawEdge
}

// Query returns the edges matching p. With no relation every relation is
// searched on the worker pool and results come back in declaration order.
// Matching runs eagerly under each relation's read lock; names are decoded
// lazily as the iterator advances.
//
// A node name that was never allocated matches nothing. An unknown relation
// name is ErrUnknownRelation.
func (g *Graph) Query(ctx context.Context, p Pattern) (EdgeIterator, error) {
	if g.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()
	g.metrics.QueriesTotal.Add(1)

	it, rows, err := safeExecuteResultPair(func() (EdgeIterator, int, error) {
		return g.query(ctx, p)
	})
	g.observeQuery(p.String(), time.Since(start), rows, err)
	return it, err
}

func (g *Graph) query(ctx context.Context, p Pattern) (EdgeIterator, int, error) {
	var rels []Relation
	if p.Relation != "" {
		r, err := g.Relation(p.Relation)
		if err != nil {
			return nil, 0, err
		}
		rels = []Relation{r}
	} else {
		rels = g.Relations()
	}

	mctx, cancel := g.governor.wrapContext(ctx)
	defer cancel()

	src, dst, ok, err := g.resolvePattern(mctx, p)
	if err != nil {
		return nil, 0, err
	}
	if !ok || len(rels) == 0 {
		return emptyIterator{}, 0, nil
	}

	matches, err := g.matchAll(mctx, rels, src, dst)
	if err != nil {
		return nil, 0, err
	}

	rows := 0
	for _, m := range matches {
		rows += len(m.raws)
	}
	if err := g.governor.checkRowCount(rows); err != nil {
		return nil, rows, err
	}

	parts := make([]EdgeIterator, 0, len(matches))
	for _, m := range matches {
		if len(m.raws) == 0 {
			continue
		}
		parts = append(parts, newRelationIterator(ctx, m.rel.Name(), g.catalog, m.raws))
	}
	switch len(parts) {
	case 0:
		return emptyIterator{}, 0, nil
	case 1:
		return parts[0], rows, nil
	}
	return newConcatIterator(parts), rows, nil
}

func (g *Graph) resolvePattern(ctx context.Context, p Pattern) (src, dst NodeID, ok bool, err error) {
	if p.Source != "" {
		if src, ok, err = g.catalog.Lookup(ctx, p.Source); err != nil || !ok {
			return 0, 0, false, err
		}
	}
	if p.Destination != "" {
		if dst, ok, err = g.catalog.Lookup(ctx, p.Destination); err != nil || !ok {
			return 0, 0, false, err
		}
	}
	return src, dst, true, nil
}

// matchAll captures matches for each relation. A single relation runs on
// the calling goroutine.
func (g *Graph) matchAll(ctx context.Context, rels []Relation, src, dst NodeID) ([]relationMatch, error) {
	if len(rels) == 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []relationMatch{{rel: rels[0], raws: rels[0].match(src, dst)}}, nil
	}

	tasks := make([]task, len(rels))
	for i, r := range rels {
		tasks[i] = func() (any, error) {
			return safeExecuteResult(func() ([]rawEdge, error) {
				return r.match(src, dst), nil
			})
		}
	}
	results := g.pool.executeConcurrent(ctx, tasks)

	out := make([]relationMatch, len(rels))
	for i, res := range results {
		if res.Err != nil {
			return nil, res.Err
		}
		raws, _ := res.Value.([]rawEdge)
		out[i] = relationMatch{rel: rels[i], raws: raws}
	}
	return out, nil
}

// safeExecuteResultPair is safeExecuteResult for a query returning both an
// iterator and its row count.
func safeExecuteResultPair(fn func() (EdgeIterator, int, error)) (EdgeIterator, int, error) {
	type pair struct {
		it   EdgeIterator
		rows int
	}
	res, err := safeExecuteResult(func() (pair, error) {
		it, rows, err := fn()
		return pair{it, rows}, err
	})
	return res.it, res.rows, err
}
