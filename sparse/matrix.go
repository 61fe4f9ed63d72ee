// Package sparse is a small typed sparse-matrix engine.
//
// A Matrix stores explicit entries only: a coordinate either holds a value or
// it is absent. There is no implicit zero, so a stored false or 0 is still an
// entry and is reported by NVals, Row, Col and Each. Dimensions only grow.
//
// Storage is a row map of column maps plus a column index holding the row
// keys of every column, so both row and column slices cost time proportional
// to the number of entries they return (plus a sort for deterministic order).
//
// Matrices are not safe for concurrent mutation; callers serialize writers
// and may run any number of readers in parallel with no writer active.
package sparse

import (
	"fmt"
	"maps"
	"slices"
)

// Entry is one stored value of a row or column slice.
type Entry[T any] struct {
	Index uint64
	Value T
}

// Cell is one stored value with both coordinates.
type Cell[T any] struct {
	Row   uint64
	Col   uint64
	Value T
}

// Coord is a (row, col) pair, usable as a map key.
type Coord struct {
	Row uint64
	Col uint64
}

// Matrix is a typed sparse matrix of shape nrows x ncols.
type Matrix[T any] struct {
	nrows uint64
	ncols uint64
	rows  map[uint64]map[uint64]T
	cols  map[uint64]map[uint64]struct{}
	nvals int
}

// New returns an empty nrows x ncols matrix.
func New[T any](nrows, ncols uint64) *Matrix[T] {
	return &Matrix[T]{
		nrows: nrows,
		ncols: ncols,
		rows:  make(map[uint64]map[uint64]T),
		cols:  make(map[uint64]map[uint64]struct{}),
	}
}

// Shape returns (nrows, ncols).
func (m *Matrix[T]) Shape() (uint64, uint64) { return m.nrows, m.ncols }

// NRows returns the number of rows.
func (m *Matrix[T]) NRows() uint64 { return m.nrows }

// NCols returns the number of columns.
func (m *Matrix[T]) NCols() uint64 { return m.ncols }

// NVals returns the number of stored entries.
func (m *Matrix[T]) NVals() int { return m.nvals }

// Get returns the value stored at (i, j) and whether an entry exists.
func (m *Matrix[T]) Get(i, j uint64) (T, bool) {
	var zero T
	row, ok := m.rows[i]
	if !ok {
		return zero, false
	}
	v, ok := row[j]
	return v, ok
}

// Has reports whether (i, j) holds an entry.
func (m *Matrix[T]) Has(i, j uint64) bool {
	_, ok := m.Get(i, j)
	return ok
}

// Set stores v at (i, j), replacing any previous entry.
func (m *Matrix[T]) Set(i, j uint64, v T) error {
	if i >= m.nrows || j >= m.ncols {
		return fmt.Errorf("%w: (%d, %d) in %dx%d", ErrOutOfRange, i, j, m.nrows, m.ncols)
	}
	row, ok := m.rows[i]
	if !ok {
		row = make(map[uint64]T)
		m.rows[i] = row
	}
	if _, exists := row[j]; !exists {
		m.nvals++
		col, ok := m.cols[j]
		if !ok {
			col = make(map[uint64]struct{})
			m.cols[j] = col
		}
		col[i] = struct{}{}
	}
	row[j] = v
	return nil
}

// Resize changes the shape. Shrinking either dimension is rejected.
func (m *Matrix[T]) Resize(nrows, ncols uint64) error {
	if nrows < m.nrows || ncols < m.ncols {
		return fmt.Errorf("%w: %dx%d to %dx%d", ErrShrink, m.nrows, m.ncols, nrows, ncols)
	}
	m.nrows, m.ncols = nrows, ncols
	return nil
}

// Grow enlarges the matrix, if needed, so that (i, j) is in range.
func (m *Matrix[T]) Grow(i, j uint64) {
	if i >= m.nrows {
		m.nrows = i + 1
	}
	if j >= m.ncols {
		m.ncols = j + 1
	}
}

// Row returns the entries of row i ordered by column.
func (m *Matrix[T]) Row(i uint64) []Entry[T] {
	row, ok := m.rows[i]
	if !ok {
		return nil
	}
	out := make([]Entry[T], 0, len(row))
	for _, j := range slices.Sorted(maps.Keys(row)) {
		out = append(out, Entry[T]{Index: j, Value: row[j]})
	}
	return out
}

// RowIndices returns the column indices of row i in ascending order.
func (m *Matrix[T]) RowIndices(i uint64) []uint64 {
	row, ok := m.rows[i]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(row))
}

// Col returns the entries of column j ordered by row.
func (m *Matrix[T]) Col(j uint64) []Entry[T] {
	col, ok := m.cols[j]
	if !ok {
		return nil
	}
	out := make([]Entry[T], 0, len(col))
	for _, i := range slices.Sorted(maps.Keys(col)) {
		out = append(out, Entry[T]{Index: i, Value: m.rows[i][j]})
	}
	return out
}

// ColIndices returns the row indices of column j in ascending order.
func (m *Matrix[T]) ColIndices(j uint64) []uint64 {
	col, ok := m.cols[j]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(col))
}

// ColLen returns the number of entries in column j.
func (m *Matrix[T]) ColLen(j uint64) int { return len(m.cols[j]) }

// RowLen returns the number of entries in row i.
func (m *Matrix[T]) RowLen(i uint64) int { return len(m.rows[i]) }

// NonEmptyRows returns the indices of rows holding at least one entry.
func (m *Matrix[T]) NonEmptyRows() []uint64 {
	return slices.Sorted(maps.Keys(m.rows))
}

// NonEmptyCols returns the indices of columns holding at least one entry.
func (m *Matrix[T]) NonEmptyCols() []uint64 {
	return slices.Sorted(maps.Keys(m.cols))
}

// Each calls fn for every entry in row-major order. Returning false stops
// the walk.
func (m *Matrix[T]) Each(fn func(i, j uint64, v T) bool) {
	for _, i := range slices.Sorted(maps.Keys(m.rows)) {
		row := m.rows[i]
		for _, j := range slices.Sorted(maps.Keys(row)) {
			if !fn(i, j, row[j]) {
				return
			}
		}
	}
}

// Cells returns every entry in row-major order.
func (m *Matrix[T]) Cells() []Cell[T] {
	out := make([]Cell[T], 0, m.nvals)
	m.Each(func(i, j uint64, v T) bool {
		out = append(out, Cell[T]{Row: i, Col: j, Value: v})
		return true
	})
	return out
}

// Transpose returns a new ncols x nrows matrix with every entry mirrored.
func (m *Matrix[T]) Transpose() *Matrix[T] {
	t := New[T](m.ncols, m.nrows)
	for i, row := range m.rows {
		for j, v := range row {
			_ = t.Set(j, i, v)
		}
	}
	return t
}

// Clone returns a deep copy.
func (m *Matrix[T]) Clone() *Matrix[T] {
	c := New[T](m.nrows, m.ncols)
	for i, row := range m.rows {
		c.rows[i] = maps.Clone(row)
	}
	for j, col := range m.cols {
		c.cols[j] = maps.Clone(col)
	}
	c.nvals = m.nvals
	return c
}

// Apply returns a new matrix of the same shape with fn applied to every entry.
func Apply[T, U any](m *Matrix[T], fn func(T) U) *Matrix[U] {
	out := New[U](m.nrows, m.ncols)
	for i, row := range m.rows {
		for j, v := range row {
			_ = out.Set(i, j, fn(v))
		}
	}
	return out
}
