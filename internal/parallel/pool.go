// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel provides the worker pool used by the CPU bake path to
// spread per-glyph kernel work across cores.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool distributes independent work items across a fixed set of
// goroutines. Work items must not depend on each other; the pool gives no
// ordering guarantee.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queue   chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers and starts
// them immediately. If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{
		workers: workers,
		queue:   make(chan func(), workers*4),
		done:    make(chan struct{}),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			// Drain queued work before exiting so ExecuteN callers
			// blocked on completion are not left waiting.
			for {
				select {
				case work := <-p.queue:
					work()
				default:
					return
				}
			}
		case work := <-p.queue:
			work()
		}
	}
}

// ExecuteN runs fn(i) for every i in [0, n) across the pool and waits for
// all calls to complete. If the pool is closed, all calls run on the
// calling goroutine instead.
func (p *WorkerPool) ExecuteN(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if !p.running.Load() {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		work := func() {
			defer wg.Done()
			fn(i)
		}
		select {
		case p.queue <- work:
		case <-p.done:
			// Pool is closing; run inline.
			work()
		}
	}
	wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int { return p.workers }

// Close stops the pool after finishing queued work. Close is safe to call
// multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}
