package sparse

import "errors"

var (
	// ErrOutOfRange is returned by Set when a coordinate falls outside the shape.
	ErrOutOfRange = errors.New("sparse: index out of range")

	// ErrShrink is returned by Resize when either dimension would decrease.
	ErrShrink = errors.New("sparse: matrix dimensions never shrink")

	// ErrDimensionMismatch is returned by MxM when a.NCols() != b.NRows().
	ErrDimensionMismatch = errors.New("sparse: dimension mismatch")

	// ErrNoSemiring is returned when a semiring lacks Add or Mul.
	ErrNoSemiring = errors.New("sparse: semiring needs both Add and Mul")
)
