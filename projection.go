package hypersparse

import (
	"context"
	"fmt"
	"strings"

	"github.com/mstrYoda/hypersparse/sparse"
)

// Combine names the semiring a projection uses to fold the edges that
// connect the same (source, destination) pair into one weight.
type Combine struct {
	name string
	add  func(x, y any) any
	mul  func(x, y any) any
}

// Built-in combine rules. PlusTimes is the default; on BOOL relations it
// behaves as LorLand.
var (
	PlusTimes  = Combine{name: "plus_times"}
	PlusSecond = Combine{name: "plus_second"}
	AnySecond  = Combine{name: "any_second"}
	MinPlus    = Combine{name: "min_plus"}
	MaxTimes   = Combine{name: "max_times"}
	LorLand    = Combine{name: "lor_land"}
)

var builtinCombines = []Combine{PlusTimes, PlusSecond, AnySecond, MinPlus, MaxTimes, LorLand}

// CustomCombine builds a rule from arbitrary operators. mul combines a
// source weight with a destination weight; add folds two products.
// Results are converted back to the relation's weight type.
func CustomCombine(name string, add, mul func(x, y any) any) Combine {
	return Combine{name: name, add: add, mul: mul}
}

// ParseCombine returns the built-in rule with the given name. An empty name
// yields PlusTimes.
func ParseCombine(name string) (Combine, error) {
	if name == "" {
		return PlusTimes, nil
	}
	for _, c := range builtinCombines {
		if c.name == strings.ToLower(name) {
			return c, nil
		}
	}
	return Combine{}, fmt.Errorf("hypersparse: unknown combine rule %q", name)
}

// Name returns the rule's name.
func (c Combine) Name() string {
	if c.name == "" {
		return PlusTimes.name
	}
	return c.name
}

func (c Combine) String() string { return c.Name() }

// customOps runs user combine operators over T, converting every result
// through the relation's weight type. The first result that does not
// convert is kept in err and the cell gets T's zero value.
type customOps[T any] struct {
	c   Combine
	wt  WeightType
	err error
}

func (o *customOps[T]) convert(v any) T {
	w, err := o.wt.Coerce(v)
	if err == nil {
		if t, ok := w.(T); ok {
			return t
		}
		err = fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, w, o.wt.Name())
	}
	if o.err == nil {
		o.err = fmt.Errorf("combine %s: %w", o.c.name, err)
	}
	var zero T
	return zero
}

// semiringFor maps a combine rule onto a typed semiring for T. The
// returned check reports a custom operator result that could not be
// converted to wt; call it after the product is computed.
func semiringFor[T any](c Combine, wt WeightType) (sparse.Semiring[T], func() error, error) {
	noCheck := func() error { return nil }
	if c.add != nil || c.mul != nil {
		if c.add == nil || c.mul == nil {
			return sparse.Semiring[T]{}, nil, fmt.Errorf("hypersparse: combine %s needs both add and mul", c.name)
		}
		ops := &customOps[T]{c: c, wt: wt}
		return sparse.Semiring[T]{
			Name: c.name,
			Add:  func(x, y T) T { return ops.convert(c.add(x, y)) },
			Mul:  func(x, y T) T { return ops.convert(c.mul(x, y)) },
		}, func() error { return ops.err }, nil
	}

	name := c.Name()
	if name == AnySecond.name {
		return sparse.AnySecond[T](), noCheck, nil
	}

	var (
		sr any
		ok = true
	)
	var zero T
	switch any(zero).(type) {
	case bool:
		switch name {
		case PlusTimes.name, LorLand.name:
			sr = sparse.LorLand()
		case PlusSecond.name:
			sr = sparse.LorSecond()
		default:
			ok = false
		}
	case int64:
		sr, ok = numericSemiring[int64](name)
	case float64:
		sr, ok = numericSemiring[float64](name)
	case complex64:
		switch name {
		case PlusTimes.name:
			sr = sparse.PlusTimes[complex64]()
		case PlusSecond.name:
			sr = sparse.PlusSecond[complex64]()
		default:
			ok = false
		}
	default:
		ok = false
	}
	if !ok {
		return sparse.Semiring[T]{}, nil, fmt.Errorf("%w: combine %s does not apply to %s", ErrTypeMismatch, name, wt.Name())
	}
	return sr.(sparse.Semiring[T]), noCheck, nil
}

func numericSemiring[T sparse.Ordered](name string) (any, bool) {
	switch name {
	case PlusTimes.name:
		return sparse.PlusTimes[T](), true
	case PlusSecond.name:
		return sparse.PlusSecond[T](), true
	case MinPlus.name:
		return sparse.MinPlus[T](), true
	case MaxTimes.name:
		return sparse.MaxTimes[T](), true
	}
	return nil, false
}

// asT converts v to T, yielding T's zero value for nil.
func asT[T any](v any) T {
	t, _ := v.(T)
	return t
}

// Projection is a node x node view of a relation. For an Incidence
// relation it is S (+.x) D^T under the chosen combine rule, and Labels
// lists, for every stored cell, the ascending ids of the edges that
// contributed to it. For an Adjacency relation it is the matrix itself and
// Labels is empty.
type Projection struct {
	Relation string
	Combine  string
	Matrix   *sparse.Matrix[any]
	Labels   map[sparse.Coord][]EdgeID

	catalog *Catalog
}

// ProjectedEdge is one decoded projection cell.
type ProjectedEdge struct {
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Weight      any      `json:"weight"`
	EdgeIDs     []EdgeID `json:"edge_ids,omitempty"`
}

func (p ProjectedEdge) String() string {
	return fmt.Sprintf("%s -> %s: %v %v", p.Source, p.Destination, p.Weight, p.EdgeIDs)
}

// NVals returns the number of stored cells.
func (p *Projection) NVals() int { return p.Matrix.NVals() }

// Edges decodes every cell in row-major order.
func (p *Projection) Edges(ctx context.Context) ([]ProjectedEdge, error) {
	out := make([]ProjectedEdge, 0, p.Matrix.NVals())
	var err error
	p.Matrix.Each(func(i, j uint64, v any) bool {
		var pe ProjectedEdge
		pe, err = p.decode(ctx, i, j, v)
		if err != nil {
			return false
		}
		out = append(out, pe)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup returns the cell for (src, dst). Unknown names report false.
func (p *Projection) Lookup(ctx context.Context, src, dst string) (ProjectedEdge, bool, error) {
	s, ok, err := p.catalog.Lookup(ctx, src)
	if err != nil || !ok {
		return ProjectedEdge{}, false, err
	}
	d, ok, err := p.catalog.Lookup(ctx, dst)
	if err != nil || !ok {
		return ProjectedEdge{}, false, err
	}
	v, ok := p.Matrix.Get(uint64(s), uint64(d))
	if !ok {
		return ProjectedEdge{}, false, nil
	}
	pe, err := p.decode(ctx, uint64(s), uint64(d), v)
	return pe, err == nil, err
}

func (p *Projection) decode(ctx context.Context, i, j uint64, v any) (ProjectedEdge, error) {
	src, err := p.catalog.NameOf(ctx, NodeID(i))
	if err != nil {
		return ProjectedEdge{}, err
	}
	dst, err := p.catalog.NameOf(ctx, NodeID(j))
	if err != nil {
		return ProjectedEdge{}, err
	}
	return ProjectedEdge{
		Source:      src,
		Destination: dst,
		Weight:      v,
		EdgeIDs:     p.Labels[sparse.Coord{Row: i, Col: j}],
	}, nil
}
