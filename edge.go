package hypersparse

import (
	"fmt"
	"strings"
)

// Edge is one decoded query result. Adjacency edges have ID 0 and exactly
// one source and destination. Incidence edges carry their EdgeID and list
// endpoints in ascending node id order.
//
// Weights holds the destination-side weights; SourceWeights the source
// side. For an Adjacency edge Weights has the single cell value.
type Edge struct {
	Relation      string   `json:"relation"`
	ID            EdgeID   `json:"id,omitempty"`
	Sources       []string `json:"sources"`
	Destinations  []string `json:"destinations"`
	SourceWeights []any    `json:"source_weights,omitempty"`
	Weights       []any    `json:"weights"`
}

// Source returns the first source name, or "" if there is none.
func (e Edge) Source() string {
	if len(e.Sources) == 0 {
		return ""
	}
	return e.Sources[0]
}

// Destination returns the first destination name, or "".
func (e Edge) Destination() string {
	if len(e.Destinations) == 0 {
		return ""
	}
	return e.Destinations[0]
}

// Weight returns the first destination weight, falling back to the first
// source weight for an edge without destinations.
func (e Edge) Weight() any {
	if len(e.Weights) > 0 {
		return e.Weights[0]
	}
	if len(e.SourceWeights) > 0 {
		return e.SourceWeights[0]
	}
	return nil
}

// IsHyper reports whether the edge has other than one source and one
// destination.
func (e Edge) IsHyper() bool {
	return len(e.Sources) != 1 || len(e.Destinations) != 1
}

// Portable returns a copy whose weights are safe for JSON and msgpack.
func (e Edge) Portable() Edge {
	out := e
	out.SourceWeights = portableAll(e.SourceWeights)
	out.Weights = portableAll(e.Weights)
	return out
}

func portableAll(ws []any) []any {
	if ws == nil {
		return nil
	}
	out := make([]any, len(ws))
	for i, w := range ws {
		out[i] = PortableWeight(w)
	}
	return out
}

// String renders friend(bob, alice), distance(chicago, seattle, 422) or,
// for hyperedges, r((a, b), (c), (1)). A true boolean weight is omitted
// from the simple form. An edge without destinations shows its source
// weights.
func (e Edge) String() string {
	if !e.IsHyper() {
		if b, ok := e.Weight().(bool); ok && b {
			return fmt.Sprintf("%s(%s, %s)", e.Relation, e.Sources[0], e.Destinations[0])
		}
		return fmt.Sprintf("%s(%s, %s, %v)", e.Relation, e.Sources[0], e.Destinations[0], e.Weight())
	}
	weights := e.Weights
	if len(weights) == 0 {
		weights = e.SourceWeights
	}
	ws := make([]string, len(weights))
	for i, w := range weights {
		ws[i] = fmt.Sprint(w)
	}
	return fmt.Sprintf("%s((%s), (%s), (%s))", e.Relation,
		strings.Join(e.Sources, ", "), strings.Join(e.Destinations, ", "), strings.Join(ws, ", "))
}
