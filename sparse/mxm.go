package sparse

import (
	"fmt"
	"maps"
	"slices"
)

// MxM computes C = A (add.mul) B using a row-wise Gustavson product.
func MxM[T any](a, b *Matrix[T], sr Semiring[T]) (*Matrix[T], error) {
	c, _, err := mxm(a, b, sr, false)
	return c, err
}

// MxMWithProvenance is MxM that additionally records, for every output cell,
// the ascending inner indices k whose products a(i,k)*b(k,j) were reduced
// into it.
func MxMWithProvenance[T any](a, b *Matrix[T], sr Semiring[T]) (*Matrix[T], map[Coord][]uint64, error) {
	return mxm(a, b, sr, true)
}

func mxm[T any](a, b *Matrix[T], sr Semiring[T], track bool) (*Matrix[T], map[Coord][]uint64, error) {
	if sr.Add == nil || sr.Mul == nil {
		return nil, nil, ErrNoSemiring
	}
	if a.ncols != b.nrows {
		return nil, nil, fmt.Errorf("%w: %dx%d * %dx%d", ErrDimensionMismatch, a.nrows, a.ncols, b.nrows, b.ncols)
	}

	c := New[T](a.nrows, b.ncols)
	var prov map[Coord][]uint64
	if track {
		prov = make(map[Coord][]uint64)
	}

	for _, i := range slices.Sorted(maps.Keys(a.rows)) {
		arow := a.rows[i]
		acc := make(map[uint64]T)
		for _, k := range slices.Sorted(maps.Keys(arow)) {
			brow, ok := b.rows[k]
			if !ok {
				continue
			}
			aik := arow[k]
			for j, bkj := range brow {
				p := sr.Mul(aik, bkj)
				if cur, seen := acc[j]; seen {
					acc[j] = sr.Add(cur, p)
				} else {
					acc[j] = p
				}
				if track {
					key := Coord{Row: i, Col: j}
					prov[key] = append(prov[key], k)
				}
			}
		}
		for j, v := range acc {
			_ = c.Set(i, j, v)
		}
	}
	return c, prov, nil
}
