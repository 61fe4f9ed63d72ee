package hypersparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightCoerce(t *testing.T) {
	tests := []struct {
		wt   WeightType
		in   any
		want any
	}{
		{Bool, nil, true},
		{Bool, false, false},
		{Int64, nil, int64(1)},
		{Int64, 42, int64(42)},
		{Int64, uint8(7), int64(7)},
		{Int64, 3.0, int64(3)},
		{Int64, json.Number("12"), int64(12)},
		{Float64, nil, 1.0},
		{Float64, 2, 2.0},
		{Float64, float32(0.5), 0.5},
		{Complex64, nil, complex64(1)},
		{Complex64, complex(1, 2), complex64(complex(1, 2))},
		{Complex64, []float64{3, 4}, complex64(complex(3, 4))},
		{Complex64, []any{3.0, int8(-4)}, complex64(complex(3, -4))},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.wt, tt.in), func(t *testing.T) {
			got, err := tt.wt.Coerce(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeightCoerceMismatch(t *testing.T) {
	tests := []struct {
		wt WeightType
		in any
	}{
		{Bool, 1},
		{Bool, "true"},
		{Int64, 1.5},
		{Int64, uint64(1 << 63)},
		{Int64, "7"},
		{Float64, "x"},
		{Complex64, []float64{1}},
		{Complex64, "1+2i"},
	}
	for _, tt := range tests {
		_, err := tt.wt.Coerce(tt.in)
		assert.ErrorIs(t, err, ErrTypeMismatch, "%s <- %v", tt.wt, tt.in)
	}
}

func TestWeightParse(t *testing.T) {
	v, err := Int64.Parse("422")
	require.NoError(t, err)
	assert.Equal(t, int64(422), v)

	v, err = Bool.Parse("false")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = Complex64.Parse("1+2i")
	require.NoError(t, err)
	assert.Equal(t, complex64(complex(1, 2)), v)

	_, err = Float64.Parse("fast")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestUserWeightType(t *testing.T) {
	label := UserType("LABEL", "none", func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("not a string")
		}
		return strings.ToUpper(s), nil
	})
	assert.Equal(t, "LABEL", label.Name())
	assert.Equal(t, WeightUser, label.Kind())

	got, err := label.Coerce("hot")
	require.NoError(t, err)
	assert.Equal(t, "HOT", got)

	got, err = label.Coerce(nil)
	require.NoError(t, err)
	assert.Equal(t, "none", got)

	_, err = label.Coerce(3)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	found, ok := lookupWeightType("LABEL", []WeightType{label})
	require.True(t, ok)
	assert.Equal(t, WeightUser, found.Kind())

	_, ok = lookupWeightType("LABEL", nil)
	assert.False(t, ok)
}

func TestPortableWeight(t *testing.T) {
	assert.Equal(t, []float64{1, -2}, PortableWeight(complex64(complex(1, -2))))
	assert.Equal(t, int64(5), PortableWeight(int64(5)))
}

func TestUserTypeRelationProjection(t *testing.T) {
	g := testGraph(t)
	ctx := t.Context()

	label := UserType("LABEL", "", nil)
	r := mustRelation(t, g, "tag", RelationOptions{Incidence: true, WeightType: label})
	_, err := r.InsertTuples(ctx, []any{"a", "b", "x"}, []any{"a", "b", "y"})
	require.NoError(t, err)

	_, err = r.Project(ctx, PlusTimes)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	concat := CustomCombine("concat",
		func(x, y any) any { return fmt.Sprint(x) + fmt.Sprint(y) },
		func(_, y any) any { return y },
	)
	p, err := r.Project(ctx, concat)
	require.NoError(t, err)
	pe, ok, err := p.Lookup(ctx, "a", "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "xy", pe.Weight)
	assert.Len(t, pe.EdgeIDs, 2)
}

func TestCustomCombineConvertsToWeightType(t *testing.T) {
	g := testGraph(t)
	ctx := t.Context()

	mustRelation(t, g, "cost", RelationOptions{Incidence: true, WeightType: Int64})
	_, err := g.InsertTuples(ctx, []any{"cost", "p", "q", 3}, []any{"cost", "p", "q", 3})
	require.NoError(t, err)

	// Operators returning plain ints are converted back to INT64.
	ints := CustomCombine("int_plus_times",
		func(x, y any) any { return int(x.(int64)) + int(y.(int64)) },
		func(x, y any) any { return int(x.(int64)) * int(y.(int64)) },
	)
	p, err := g.Project(ctx, "cost", ints)
	require.NoError(t, err)
	pe, ok, err := p.Lookup(ctx, "p", "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(18), pe.Weight)

	labels := CustomCombine("labels",
		func(_, _ any) any { return "sum" },
		func(_, _ any) any { return "product" },
	)
	_, err = g.Project(ctx, "cost", labels)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.ErrorContains(t, err, "combine labels")
}
