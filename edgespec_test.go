package hypersparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTuple(t *testing.T) {
	tests := []struct {
		name  string
		tuple []any
		want  EdgeSpec
	}{
		{
			name:  "simple",
			tuple: []any{"friend", "bob", "alice"},
			want:  Simple{Relation: "friend", Source: "bob", Destination: "alice"},
		},
		{
			name:  "weighted",
			tuple: []any{"distance", "chicago", "seattle", 422},
			want:  Simple{Relation: "distance", Source: "chicago", Destination: "seattle", Weight: 422},
		},
		{
			name:  "hyper sources",
			tuple: []any{"r", []string{"a", "b"}, "c"},
			want:  Hyper{Relation: "r", Sources: []string{"a", "b"}, Destinations: []string{"c"}},
		},
		{
			name:  "hyper from any slice",
			tuple: []any{"r", "a", []any{"b", "c"}, 2.5},
			want:  Hyper{Relation: "r", Sources: []string{"a"}, Destinations: []string{"b", "c"}, Weight: 2.5},
		},
		{
			name:  "one-sided hyperedge",
			tuple: []any{"r", []string{}, []string{"c"}},
			want:  Hyper{Relation: "r", Sources: []string{}, Destinations: []string{"c"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTuple(tt.tuple)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTupleMalformed(t *testing.T) {
	bad := [][]any{
		{"friend", "bob"},
		{"friend", "bob", "alice", 1, 2},
		{"", "bob", "alice"},
		{42, "bob", "alice"},
		{"friend", 7, "alice"},
		{"friend", "bob", ""},
		{"r", []any{"a", 1}, "c"},
		{"r", []string{}, []string{}},
		{"r", []string{"a", ""}, "c"},
	}
	for _, tuple := range bad {
		_, err := ParseTuple(tuple)
		assert.ErrorIs(t, err, ErrMalformedEdgeSpec, "tuple %v", tuple)
	}
}

func TestParseRelationTuple(t *testing.T) {
	spec, err := ParseRelationTuple("friend", []any{"bob", "alice"})
	require.NoError(t, err)
	assert.Equal(t, Simple{Relation: "friend", Source: "bob", Destination: "alice"}, spec)
	assert.Equal(t, "friend", spec.RelationName())

	spec, err = ParseRelationTuple("road", []any{"a", "b", int64(3)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), spec.(Simple).Weight)

	_, err = ParseRelationTuple("friend", []any{"bob"})
	assert.ErrorIs(t, err, ErrMalformedEdgeSpec)
}

func TestHyperValidate(t *testing.T) {
	h := Hyper{
		Sources:       []string{"a", "b"},
		Destinations:  []string{"c"},
		SourceWeights: []any{1},
	}
	assert.ErrorIs(t, h.validate(), ErrMalformedEdgeSpec)

	h.SourceWeights = []any{1, 2}
	h.DestinationWeights = []any{3}
	assert.NoError(t, h.validate())
}

func TestEdgeString(t *testing.T) {
	tests := []struct {
		edge Edge
		want string
	}{
		{
			edge: Edge{Relation: "friend", Sources: []string{"bob"}, Destinations: []string{"alice"}, Weights: []any{true}},
			want: "friend(bob, alice)",
		},
		{
			edge: Edge{Relation: "distance", ID: 1, Sources: []string{"chicago"}, Destinations: []string{"seattle"}, Weights: []any{int64(422)}},
			want: "distance(chicago, seattle, 422)",
		},
		{
			edge: Edge{Relation: "r", ID: 3, Sources: []string{"a", "b"}, Destinations: []string{"c"}, Weights: []any{true}},
			want: "r((a, b), (c), (true))",
		},
		{
			edge: Edge{Relation: "h", ID: 4, Sources: []string{"a", "b"}, SourceWeights: []any{int64(2), int64(5)}},
			want: "h((a, b), (), (2, 5))",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.edge.String())
	}
}

func TestEdgePortable(t *testing.T) {
	e := Edge{
		Relation:      "flow",
		Sources:       []string{"a"},
		Destinations:  []string{"b"},
		SourceWeights: []any{complex64(complex(1, 2))},
		Weights:       []any{complex64(complex(3, -1))},
	}
	p := e.Portable()
	assert.Equal(t, []any{[]float64{1, 2}}, p.SourceWeights)
	assert.Equal(t, []any{[]float64{3, -1}}, p.Weights)
	assert.Equal(t, complex64(complex(1, 2)), e.SourceWeights[0], "original must not change")
}
