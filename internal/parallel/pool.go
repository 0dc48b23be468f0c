// Package parallel provides the worker pool that executes workgroups of the
// emulated compute device.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines that executes index ranges in parallel.
//
// Each Run splits [0, n) into one contiguous span per worker. A worker first
// drains its own span and then steals indices from the spans of other
// workers, which balances load when some items are slower than others.
//
// Thread safety: WorkerPool is safe for concurrent use, but Run must not be
// called from inside a function executed by the same pool.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// jobs holds one channel per worker.
	jobs []chan *job

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool
}

// span is the range of indices initially assigned to one worker.
type span struct {
	next atomic.Int64
	end  int64
	_    [48]byte // keep spans on separate cache lines
}

type job struct {
	fn      func(i int)
	spans   []span
	pending sync.WaitGroup

	errOnce sync.Once
	err     error
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{
		workers: workers,
		jobs:    make([]chan *job, workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.jobs[i] = make(chan *job, 1)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	return p
}

// worker is the main loop for each worker goroutine.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case j := <-p.jobs[id]:
			p.execute(j, id)
		}
	}
}

// execute drains the worker's own span, then steals from the others.
func (p *WorkerPool) execute(j *job, id int) {
	defer j.pending.Done()

	for k := range len(j.spans) {
		s := &j.spans[(id+k)%len(j.spans)]
		for {
			i := s.next.Add(1) - 1
			if i >= s.end {
				break
			}
			j.call(int(i))
		}
	}
}

// call runs one item, converting a panic into the job error.
func (j *job) call(i int) {
	defer func() {
		if r := recover(); r != nil {
			j.errOnce.Do(func() {
				if err, ok := r.(error); ok {
					j.err = fmt.Errorf("item %d: %w", i, err)
				} else {
					j.err = fmt.Errorf("item %d: %v", i, r)
				}
			})
		}
	}()
	j.fn(i)
}

// Run calls fn(i) for every i in [0, n) and waits for all calls to return.
// A panic in fn is recovered and returned as an error; the remaining items
// still run. If the pool is closed the items run on the calling goroutine.
func (p *WorkerPool) Run(n int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}

	workers := min(p.workers, n)
	j := &job{fn: fn, spans: make([]span, workers)}
	per, extra := n/workers, n%workers
	start := 0
	for w := range workers {
		size := per
		if w < extra {
			size++
		}
		j.spans[w].next.Store(int64(start))
		j.spans[w].end = int64(start + size)
		start += size
	}

	if !p.running.Load() {
		j.pending.Add(1)
		p.execute(j, 0)
		return j.err
	}

	j.pending.Add(workers)
	for w := range workers {
		select {
		case p.jobs[w] <- j:
		case <-p.done:
			// Pool closed underneath us; run the share inline.
			p.execute(j, w)
		}
	}
	j.pending.Wait()

	return j.err
}

// Close stops the workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
