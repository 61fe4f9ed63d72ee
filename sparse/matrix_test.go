package sparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetOverwrite(t *testing.T) {
	m := New[int64](3, 3)
	require.NoError(t, m.Set(1, 2, 5))
	require.NoError(t, m.Set(1, 2, 7))

	v, ok := m.Get(1, 2)
	require.True(t, ok)
	require.Equal(t, int64(7), v)
	require.Equal(t, 1, m.NVals())

	_, ok = m.Get(2, 1)
	require.False(t, ok)
}

func TestExplicitZeroIsAnEntry(t *testing.T) {
	m := New[bool](2, 2)
	require.NoError(t, m.Set(0, 1, false))
	require.True(t, m.Has(0, 1))
	require.Equal(t, 1, m.NVals())
}

func TestSetOutOfRange(t *testing.T) {
	m := New[float64](2, 2)
	require.ErrorIs(t, m.Set(2, 0, 1), ErrOutOfRange)
	require.ErrorIs(t, m.Set(0, 2, 1), ErrOutOfRange)
	require.Zero(t, m.NVals())
}

func TestResizeNeverShrinks(t *testing.T) {
	m := New[int64](4, 4)
	require.ErrorIs(t, m.Resize(3, 4), ErrShrink)
	require.NoError(t, m.Resize(10, 4))
	require.Equal(t, uint64(10), m.NRows())

	m.Grow(2, 20)
	r, c := m.Shape()
	require.Equal(t, uint64(10), r)
	require.Equal(t, uint64(21), c)
}

func TestRowAndColSlicesAreOrdered(t *testing.T) {
	m := New[int64](5, 5)
	for _, c := range []Cell[int64]{{3, 4, 1}, {3, 0, 2}, {1, 4, 3}, {3, 2, 4}} {
		require.NoError(t, m.Set(c.Row, c.Col, c.Value))
	}

	require.Equal(t, []Entry[int64]{{0, 2}, {2, 4}, {4, 1}}, m.Row(3))
	require.Equal(t, []Entry[int64]{{1, 3}, {3, 1}}, m.Col(4))
	require.Equal(t, []uint64{0, 2, 4}, m.RowIndices(3))
	require.Equal(t, []uint64{1, 3}, m.ColIndices(4))
	require.Equal(t, []uint64{1, 3}, m.NonEmptyRows())
	require.Equal(t, []uint64{0, 2, 4}, m.NonEmptyCols())
	require.Equal(t, 2, m.ColLen(4))
	require.Equal(t, 3, m.RowLen(3))
	require.Nil(t, m.Row(0))
	require.Nil(t, m.Col(1))
}

func TestEachIsRowMajor(t *testing.T) {
	m := New[int64](3, 3)
	require.NoError(t, m.Set(2, 0, 1))
	require.NoError(t, m.Set(0, 2, 2))
	require.NoError(t, m.Set(0, 1, 3))

	require.Equal(t, []Cell[int64]{{0, 1, 3}, {0, 2, 2}, {2, 0, 1}}, m.Cells())

	var seen int
	m.Each(func(_, _ uint64, _ int64) bool {
		seen++
		return false
	})
	require.Equal(t, 1, seen)
}

func TestTransposeAndClone(t *testing.T) {
	m := New[int64](2, 3)
	require.NoError(t, m.Set(0, 2, 9))
	require.NoError(t, m.Set(1, 0, 4))

	tr := m.Transpose()
	r, c := tr.Shape()
	require.Equal(t, uint64(3), r)
	require.Equal(t, uint64(2), c)
	v, ok := tr.Get(2, 0)
	require.True(t, ok)
	require.Equal(t, int64(9), v)

	cl := m.Clone()
	require.NoError(t, cl.Set(1, 1, 1))
	require.Equal(t, 2, m.NVals())
	require.Equal(t, 3, cl.NVals())
	require.Nil(t, m.ColIndices(1), "clone must not share the column index")
	require.Equal(t, []uint64{1}, cl.ColIndices(1))
}

func TestApply(t *testing.T) {
	m := New[int64](2, 2)
	require.NoError(t, m.Set(0, 0, 2))
	out := Apply(m, func(v int64) any { return v * 10 })
	v, ok := out.Get(0, 0)
	require.True(t, ok)
	require.Equal(t, int64(20), v)
}
