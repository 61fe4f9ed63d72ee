package hypersparse

import "fmt"

// EdgeSpec describes one edge to insert. It is either a Simple edge (one
// source, one destination) or a Hyper edge (ordered endpoint sets). The
// interface is sealed; use ParseTuple, ParseRelationTuple or the two
// struct types directly.
type EdgeSpec interface {
	// RelationName is the relation the spec targets. It may be empty when the
	// spec is passed to a Relation directly.
	RelationName() string
	validate() error
}

// Simple is an edge between exactly one source and one destination.
// A nil Weight takes the relation's default.
type Simple struct {
	Relation    string
	Source      string
	Destination string
	Weight      any
}

// Hyper is an incidence edge connecting a set of sources to a set of
// destinations. Weight applies to every endpoint unless SourceWeights or
// DestinationWeights give one weight per endpoint.
type Hyper struct {
	Relation           string
	Sources            []string
	Destinations       []string
	Weight             any
	SourceWeights      []any
	DestinationWeights []any
}

func (s Simple) RelationName() string { return s.Relation }
func (h Hyper) RelationName() string  { return h.Relation }

func (s Simple) validate() error {
	if s.Source == "" || s.Destination == "" {
		return fmt.Errorf("%w: empty node name in %s(%q, %q)", ErrMalformedEdgeSpec, s.Relation, s.Source, s.Destination)
	}
	return nil
}

func (h Hyper) validate() error {
	if len(h.Sources) == 0 && len(h.Destinations) == 0 {
		return fmt.Errorf("%w: hyperedge with no endpoints", ErrMalformedEdgeSpec)
	}
	for _, names := range [][]string{h.Sources, h.Destinations} {
		for _, n := range names {
			if n == "" {
				return fmt.Errorf("%w: empty node name in hyperedge", ErrMalformedEdgeSpec)
			}
		}
	}
	if h.SourceWeights != nil && len(h.SourceWeights) != len(h.Sources) {
		return fmt.Errorf("%w: %d source weights for %d sources", ErrMalformedEdgeSpec, len(h.SourceWeights), len(h.Sources))
	}
	if h.DestinationWeights != nil && len(h.DestinationWeights) != len(h.Destinations) {
		return fmt.Errorf("%w: %d destination weights for %d destinations", ErrMalformedEdgeSpec, len(h.DestinationWeights), len(h.Destinations))
	}
	return nil
}

// ParseTuple converts a graph-scoped tuple (relation, src, dst) or
// (relation, src, dst, weight) into an EdgeSpec. src and dst may be a
// string or an ordered collection of strings; a collection on either side
// yields a Hyper spec.
func ParseTuple(t []any) (EdgeSpec, error) {
	if len(t) != 3 && len(t) != 4 {
		return nil, fmt.Errorf("%w: graph tuple needs 3 or 4 elements, got %d", ErrMalformedEdgeSpec, len(t))
	}
	rel, ok := t[0].(string)
	if !ok || rel == "" {
		return nil, fmt.Errorf("%w: relation name must be a non-empty string, got %T", ErrMalformedEdgeSpec, t[0])
	}
	return ParseRelationTuple(rel, t[1:])
}

// ParseRelationTuple converts a relation-scoped tuple (src, dst) or
// (src, dst, weight) into an EdgeSpec targeting rel.
func ParseRelationTuple(rel string, t []any) (EdgeSpec, error) {
	if len(t) != 2 && len(t) != 3 {
		return nil, fmt.Errorf("%w: relation tuple needs 2 or 3 elements, got %d", ErrMalformedEdgeSpec, len(t))
	}
	var weight any
	if len(t) == 3 {
		weight = t[2]
	}

	srcs, srcMulti, err := parseEndpoint(t[0])
	if err != nil {
		return nil, err
	}
	dsts, dstMulti, err := parseEndpoint(t[1])
	if err != nil {
		return nil, err
	}

	var spec EdgeSpec
	if srcMulti || dstMulti {
		spec = Hyper{Relation: rel, Sources: srcs, Destinations: dsts, Weight: weight}
	} else {
		spec = Simple{Relation: rel, Source: srcs[0], Destination: dsts[0], Weight: weight}
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// parseEndpoint returns the names of one tuple endpoint and whether it was
// given as a collection.
func parseEndpoint(v any) ([]string, bool, error) {
	switch e := v.(type) {
	case string:
		return []string{e}, false, nil
	case []string:
		return append([]string(nil), e...), true, nil
	case []any:
		names := make([]string, 0, len(e))
		for _, x := range e {
			s, ok := x.(string)
			if !ok {
				return nil, false, fmt.Errorf("%w: endpoint element %v is %T, not a name", ErrMalformedEdgeSpec, x, x)
			}
			names = append(names, s)
		}
		return names, true, nil
	}
	return nil, false, fmt.Errorf("%w: endpoint %v is %T, not a name or list of names", ErrMalformedEdgeSpec, v, v)
}
