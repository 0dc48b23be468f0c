package compute

import (
	"errors"
	"sync"
)

// errBrokenBarrier is raised in threads waiting on a barrier whose workgroup
// lost a thread to a panic.
var errBrokenBarrier = errors.New("compute: barrier broken by a failed thread")

// barrier is a reusable cyclic barrier for the threads of one workgroup.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     uint64
	broken  bool
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks until all parties have called wait for the current cycle.
func (b *barrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken {
		panic(errBrokenBarrier)
	}

	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		return
	}

	for gen == b.gen && !b.broken {
		b.cond.Wait()
	}
	if b.broken {
		panic(errBrokenBarrier)
	}
}

// breakAll releases every waiter with errBrokenBarrier.
func (b *barrier) breakAll() {
	b.mu.Lock()
	b.broken = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
