// Package compute emulates a data-parallel compute device on goroutines.
//
// A kernel is launched over a 2-D grid of workgroups. Threads of one
// workgroup share a float32 scratch area and may synchronize with Barrier.
// Workgroups never synchronize with each other. Launches are ordered by a
// Queue, mirroring the in-order command queue of a GPU.
package compute

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/boxblur/internal/parallel"
)

// Dim is a 2-D extent or coordinate.
type Dim struct {
	X, Y int
}

// Area returns X*Y.
func (d Dim) Area() int { return d.X * d.Y }

// Item is the view of one thread during a launch.
type Item struct {
	// Global is the thread position in the whole grid.
	Global Dim
	// Local is the thread position inside its workgroup.
	Local Dim
	// Group is the workgroup position in the grid.
	Group Dim
	// Size is the workgroup extent.
	Size Dim
	// Groups is the number of workgroups per dimension.
	Groups Dim

	g *group
}

// LocalIndex is the linear thread index inside the workgroup.
func (it *Item) LocalIndex() int { return it.Local.Y*it.Size.X + it.Local.X }

// Shared returns the workgroup's shared memory.
func (it *Item) Shared() []float32 { return it.g.shared }

// Barrier waits until every thread of the workgroup reaches it. All threads
// must call Barrier the same number of times.
func (it *Item) Barrier() {
	if it.g.barrier == nil {
		panic("compute: Barrier called in a launch without barriers")
	}
	it.g.barrier.wait()
}

// Kernel is the per-thread body of a launch.
type Kernel func(it *Item)

// Launch describes one kernel invocation.
type Launch struct {
	Name string

	// Global is the grid extent in threads, a multiple of Local.
	Global Dim
	// Local is the workgroup extent.
	Local Dim
	// Shared is the number of float32 words of shared memory per workgroup.
	Shared int
	// Barriers runs each thread of a workgroup on its own goroutine so that
	// Barrier can be used. Without it the threads of a workgroup run in order.
	Barriers bool

	Kernel Kernel
}

// Validate checks the launch geometry.
func (l *Launch) Validate(maxWorkgroup int) error {
	switch {
	case l.Kernel == nil:
		return fmt.Errorf("launch %s: nil kernel", l.Name)
	case l.Local.X < 1 || l.Local.Y < 1:
		return fmt.Errorf("launch %s: empty workgroup %v", l.Name, l.Local)
	case l.Local.Area() > maxWorkgroup:
		return fmt.Errorf("launch %s: workgroup %v exceeds %d threads", l.Name, l.Local, maxWorkgroup)
	case l.Global.X%l.Local.X != 0 || l.Global.Y%l.Local.Y != 0:
		return fmt.Errorf("launch %s: grid %v is not a multiple of workgroup %v", l.Name, l.Global, l.Local)
	}
	return nil
}

type group struct {
	shared  []float32
	barrier *barrier
}

var sharedPool = sync.Pool{
	New: func() any {
		s := make([]float32, 0, 4096)
		return &s
	},
}

func getShared(n int) *[]float32 {
	p := sharedPool.Get().(*[]float32)
	if cap(*p) < n {
		*p = make([]float32, n)
	}
	*p = (*p)[:n]
	return p
}

// Run executes l on pool and returns after every workgroup has finished.
// A panic in any thread is returned as an error.
func Run(pool *parallel.WorkerPool, l *Launch) error {
	groups := Dim{l.Global.X / l.Local.X, l.Global.Y / l.Local.Y}

	err := pool.Run(groups.Area(), func(i int) {
		runGroup(l, groups, Dim{i % groups.X, i / groups.X})
	})
	if err != nil {
		return fmt.Errorf("launch %s: %w", l.Name, err)
	}
	return nil
}

func runGroup(l *Launch, groups, gid Dim) {
	shared := getShared(l.Shared)
	defer sharedPool.Put(shared)

	g := &group{shared: *shared}
	n := l.Local.Area()
	items := make([]Item, n)
	for i := range items {
		local := Dim{i % l.Local.X, i / l.Local.X}
		items[i] = Item{
			Global: Dim{gid.X*l.Local.X + local.X, gid.Y*l.Local.Y + local.Y},
			Local:  local,
			Group:  gid,
			Size:   l.Local,
			Groups: groups,
			g:      g,
		}
	}

	if !l.Barriers {
		for i := range items {
			l.Kernel(&items[i])
		}
		return
	}

	g.barrier = newBarrier(n)

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		failure any
	)
	wg.Add(n)
	for i := range items {
		go func(it *Item) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					if err, ok := r.(error); !ok || !errors.Is(err, errBrokenBarrier) {
						errOnce.Do(func() { failure = r })
					}
					g.barrier.breakAll()
				}
			}()
			l.Kernel(it)
		}(&items[i])
	}
	wg.Wait()

	if failure != nil {
		panic(fmt.Sprintf("workgroup %v: %v", gid, failure))
	}
}
