package sparse

// Semiring is the (add, multiply) operator pair used by MxM. Add reduces the
// products contributing to one output cell; Mul combines a(i,k) with b(k,j).
// There is no identity element: an output cell exists only if at least one
// product contributed to it.
type Semiring[T any] struct {
	Name string
	Add  func(x, y T) T
	Mul  func(x, y T) T
}

// Number is the set of element types with arithmetic.
type Number interface {
	~int64 | ~float64 | ~complex64
}

// Ordered is the set of element types with a total order.
type Ordered interface {
	~int64 | ~float64
}

// PlusTimes is the conventional arithmetic semiring.
func PlusTimes[T Number]() Semiring[T] {
	return Semiring[T]{
		Name: "plus_times",
		Add:  func(x, y T) T { return x + y },
		Mul:  func(x, y T) T { return x * y },
	}
}

// PlusSecond sums the right-hand operands, ignoring the left ones.
func PlusSecond[T Number]() Semiring[T] {
	return Semiring[T]{
		Name: "plus_second",
		Add:  func(x, y T) T { return x + y },
		Mul:  func(_, y T) T { return y },
	}
}

// AnySecond keeps one right-hand operand per output cell (the first seen in
// ascending inner-index order).
func AnySecond[T any]() Semiring[T] {
	return Semiring[T]{
		Name: "any_second",
		Add:  func(x, _ T) T { return x },
		Mul:  func(_, y T) T { return y },
	}
}

// MinPlus is the tropical semiring used for shortest paths.
func MinPlus[T Ordered]() Semiring[T] {
	return Semiring[T]{
		Name: "min_plus",
		Add:  func(x, y T) T { return min(x, y) },
		Mul:  func(x, y T) T { return x + y },
	}
}

// MaxTimes keeps the largest product.
func MaxTimes[T Ordered]() Semiring[T] {
	return Semiring[T]{
		Name: "max_times",
		Add:  func(x, y T) T { return max(x, y) },
		Mul:  func(x, y T) T { return x * y },
	}
}

// LorLand is the boolean reachability semiring.
func LorLand() Semiring[bool] {
	return Semiring[bool]{
		Name: "lor_land",
		Add:  func(x, y bool) bool { return x || y },
		Mul:  func(x, y bool) bool { return x && y },
	}
}

// LorSecond ORs the right-hand operands.
func LorSecond() Semiring[bool] {
	return Semiring[bool]{
		Name: "lor_second",
		Add:  func(x, y bool) bool { return x || y },
		Mul:  func(_, y bool) bool { return y },
	}
}
