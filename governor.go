package hypersparse

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ---------------------------------------------------------------------------
// Query Governor: resource limits on graph queries and projections.
//
//  1. MaxResultRows bounds the edges one graph query may capture before it
//     fails with ErrResultTooLarge.
//  2. DefaultQueryTimeout bounds matching when the caller's context has no
//     deadline.
//
// The governor is created once in Open and never mutated.
// ---------------------------------------------------------------------------

var (
	// ErrResultTooLarge is returned when a query would capture more edges
	// than Options.MaxResultRows.
	ErrResultTooLarge = errors.New("hypersparse: result set exceeds MaxResultRows limit")

	// ErrQueryPanic is returned when a query or projection panics. The panic
	// is recovered at the API boundary and the graph stays usable.
	ErrQueryPanic = errors.New("hypersparse: query panicked")
)

type queryGovernor struct {
	maxRows        int           // 0 = unlimited
	defaultTimeout time.Duration // 0 = no default timeout
}

// wrapContext applies defaultTimeout when ctx has no deadline. The returned
// cancel must always be called.
func (g *queryGovernor) wrapContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.defaultTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, g.defaultTimeout)
	}
	return ctx, func() {}
}

// checkRowCount returns ErrResultTooLarge once n exceeds the limit.
func (g *queryGovernor) checkRowCount(n int) error {
	if g.maxRows > 0 && n > g.maxRows {
		return fmt.Errorf("%w: %d > %d", ErrResultTooLarge, n, g.maxRows)
	}
	return nil
}

// safeExecute converts a panic in fn into an error wrapping ErrQueryPanic.
func safeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("%w: %v\n\nstack trace:\n%s", ErrQueryPanic, r, buf[:n])
		}
	}()
	return fn()
}

// safeExecuteResult is safeExecute for functions returning a value.
func safeExecuteResult[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			var zero T
			result = zero
			err = fmt.Errorf("%w: %v\n\nstack trace:\n%s", ErrQueryPanic, r, buf[:n])
		}
	}()
	return fn()
}
