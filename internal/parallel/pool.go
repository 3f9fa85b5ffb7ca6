// Package parallel runs compute-style kernels on a pool of goroutines.
//
// A pass is dispatched as a grid of thread groups (8x8 for every SSGI
// kernel). Rows of groups are handed to a persistent worker pool; Dispatch
// returns only when every group finished, which is the barrier between a
// pass and the passes that read its output.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// batch is one Run call: n indexed items claimed through a shared cursor.
// Workers that finish early keep claiming, so rows whose rays march longer
// than their neighbours' do not stall the pass.
type batch struct {
	n      int
	fn     func(i int)
	cursor atomic.Int64
	wg     sync.WaitGroup
}

func (b *batch) drain() {
	for {
		i := int(b.cursor.Add(1)) - 1
		if i >= b.n {
			return
		}
		b.fn(i)
	}
}

// WorkerPool is a fixed set of goroutines that help the caller drain
// batches of indexed work.
//
// Thread safety: WorkerPool is safe for concurrent use. Run must not be
// called from inside a function running on the same pool.
type WorkerPool struct {
	workers int
	batches chan *batch

	// mu orders Run's sends before Close closes the channel.
	mu      sync.RWMutex
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewWorkerPool starts a pool. workers <= 0 uses GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{
		workers: workers,
		batches: make(chan *batch, workers),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for b := range p.batches {
		b.drain()
		b.wg.Done()
	}
}

// Run calls fn(i) for every i in [0, n) and returns when all calls are
// done. The calling goroutine works on the batch too. On a closed pool the
// batch runs on the caller alone.
func (p *WorkerPool) Run(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	b := &batch{n: n, fn: fn}
	helpers := min(p.workers, n) - 1

	p.mu.RLock()
	if !p.running.Load() {
		p.mu.RUnlock()
		b.drain()
		return
	}
	b.wg.Add(helpers)
	for range helpers {
		p.batches <- b
	}
	p.mu.RUnlock()

	b.drain()
	b.wg.Wait()
}

// Close stops the workers after batches already queued are drained.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.mu.Lock()
	close(p.batches)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool still hands work to its workers.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }
