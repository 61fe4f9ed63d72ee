package pgstore

import (
	"context"
	"fmt"

	"github.com/mstrYoda/hypersparse"
)

// Tuples runs an arbitrary query and returns its rows as edge tuples ready
// for Relation.InsertTuples (2 or 3 columns: src, dst[, weight]) or
// Graph.InsertTuples (3 or 4 columns: relation, src, dst[, weight]).
// Endpoint columns may be text or text[]; an array becomes a hyperedge
// endpoint set. Numeric weights should be cast to bigint or float8.
func (s *Store) Tuples(ctx context.Context, sql string, args ...any) ([][]any, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: tuple query: %w", err)
	}
	defer rows.Close()

	if n := len(rows.FieldDescriptions()); n < 2 || n > 4 {
		return nil, fmt.Errorf("%w: tuple query returned %d columns, want 2 to 4", hypersparse.ErrMalformedEdgeSpec, n)
	}

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("pgstore: tuple row %d: %w", len(out), err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: tuple query: %w", err)
	}
	s.log.Debug("tuple query done", "rows", len(out))
	return out, nil
}

// Import runs sql and inserts its rows. With a relation the rows are
// relation-scoped tuples; with "" they are graph-scoped.
func (s *Store) Import(ctx context.Context, g *hypersparse.Graph, relation string, sql string, args ...any) (int, error) {
	tuples, err := s.Tuples(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	if relation == "" {
		return g.InsertTuples(ctx, tuples...)
	}
	r, err := g.Relation(relation)
	if err != nil {
		return 0, err
	}
	return r.InsertTuples(ctx, tuples...)
}
