package hypersparse

import (
	"context"
	"sync"
)

// task is a unit of work for the worker pool.
type task func() (any, error)

type taskResult struct {
	Value any
	Err   error
	Index int
}

// workerPool runs query matching across relations on a fixed set of
// goroutines.
type workerPool struct {
	workers int
	tasks   chan poolTask
	wg      sync.WaitGroup
	quit    chan struct{}
	once    sync.Once
}

type poolTask struct {
	fn     task
	result chan<- taskResult
	index  int
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 1
	}
	p := &workerPool{
		workers: size,
		tasks:   make(chan poolTask, size*4),
		quit:    make(chan struct{}),
	}
	p.wg.Add(size)
	for range size {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			val, err := t.fn()
			t.result <- taskResult{Value: val, Err: err, Index: t.index}
		case <-p.quit:
			return
		}
	}
}

func (p *workerPool) stop() {
	p.once.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}

// executeConcurrent runs tasks on the pool and returns their results in
// submission order. Tasks not run before ctx is done report ctx.Err(), and
// tasks not run before the pool stops report ErrClosed.
func (p *workerPool) executeConcurrent(ctx context.Context, tasks []task) []taskResult {
	n := len(tasks)
	if n == 0 {
		return nil
	}

	resultCh := make(chan taskResult, n)
	results := make([]taskResult, n)
	done := make([]bool, n)
	abort := func(err error) []taskResult {
		for i := range results {
			if !done[i] {
				results[i] = taskResult{Err: err, Index: i}
			}
		}
		return results
	}

	submitted := 0
	for i, t := range tasks {
		select {
		case p.tasks <- poolTask{fn: t, result: resultCh, index: i}:
			submitted++
		case <-ctx.Done():
			return abort(ctx.Err())
		case <-p.quit:
			return abort(ErrClosed)
		}
	}

	// resultCh is buffered for every task, so workers never block on it
	// even after we stop collecting.
	for range submitted {
		select {
		case r := <-resultCh:
			results[r.Index] = r
			done[r.Index] = true
		case <-ctx.Done():
			return abort(ctx.Err())
		case <-p.quit:
			return abort(ErrClosed)
		}
	}
	return results
}
