package kernel

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/boxblur/internal/compute"
	"github.com/gogpu/boxblur/internal/parallel"
	"github.com/gogpu/boxblur/internal/reference"
	"github.com/gogpu/boxblur/internal/subblock"
)

const tolerance = 1e-4

func newPool(t testing.TB) *parallel.WorkerPool {
	t.Helper()
	p := parallel.NewWorkerPool(0)
	t.Cleanup(p.Close)
	return p
}

func randomBuffer(n int, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]float32, n)
	for i := range b {
		b[i] = rng.Float32()
	}
	return b
}

func run(t *testing.T, pool *parallel.WorkerPool, l *compute.Launch) {
	t.Helper()
	if err := l.Validate(256); err != nil {
		t.Fatal(err)
	}
	if err := compute.Run(pool, l); err != nil {
		t.Fatal(err)
	}
}

func expectClose(t *testing.T, got, want []float32) {
	t.Helper()
	s, err := reference.Compare(got, want, 1e-2)
	if err != nil {
		t.Fatal(err)
	}
	if s.MaxRel > tolerance {
		t.Errorf("result differs from reference: %v", s)
	}
}

func params(width, nblk int) []subblock.Params {
	var blocks [subblock.MaxRadius]int
	for i := range blocks {
		blocks[i] = nblk
	}
	return subblock.Build(width, &blocks)
}

func TestManual(t *testing.T) {
	pool := newPool(t)

	tests := []struct {
		w, h, c int
		wg      compute.Dim
	}{
		{17, 9, 1, compute.Dim{X: 8, Y: 4}},
		{32, 32, 4, compute.Dim{X: 16, Y: 16}},
		{5, 40, 3, compute.Dim{X: 32, Y: 8}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%dx%d", tt.w, tt.h, tt.c), func(t *testing.T) {
			src := randomBuffer(tt.w*tt.h*tt.c, 1)
			dst := make([]float32, len(src))

			run(t, pool, Manual(Args{
				Src: src, Dst: dst,
				Width: tt.w, Height: tt.h, Components: tt.c, Radius: 1,
				Workgroup: tt.wg,
			}))

			expectClose(t, dst, reference.Box3x3(src, tt.w, tt.h, tt.c))
		})
	}
}

func TestDirect(t *testing.T) {
	pool := newPool(t)

	tests := []struct {
		name    string
		w, h, c int
		r       int
		wg      compute.Dim
	}{
		{"square tiles exact fit", 64, 48, 1, 3, compute.Dim{X: 16, Y: 16}},
		{"square tiles with edges", 70, 45, 2, 5, compute.Dim{X: 16, Y: 16}},
		{"wide workgroup", 100, 30, 4, 9, compute.Dim{X: 32, Y: 8}},
		{"radius wider than row", 12, 20, 1, 40, compute.Dim{X: 4, Y: 4}},
		{"tall workgroup", 33, 65, 3, 2, compute.Dim{X: 4, Y: 64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := randomBuffer(tt.w*tt.h*tt.c, 2)
			dst := make([]float32, len(src))

			run(t, pool, Direct(Args{
				Src: src, Dst: dst,
				Width: tt.w, Height: tt.h, Components: tt.c, Radius: tt.r,
				Workgroup: tt.wg,
			}))

			want := make([]float32, len(src))
			reference.MovingAverage(want, src, tt.w, tt.h, tt.c, tt.r)
			expectClose(t, dst, want)
		})
	}
}

func TestSubblock(t *testing.T) {
	pool := newPool(t)

	tests := []struct {
		name    string
		w, h, c int
		r       int
		wg      compute.Dim
	}{
		{"even blocks", 256, 32, 1, 20, compute.Dim{X: 16, Y: 16}},
		{"uneven blocks", 250, 30, 4, 33, compute.Dim{X: 16, Y: 16}},
		{"blocks wider than window", 512, 8, 2, 3, compute.Dim{X: 4, Y: 64}},
		{"window wraps row", 40, 20, 1, 100, compute.Dim{X: 8, Y: 32}},
		{"max radius", 300, 10, 1, subblock.MaxRadius, compute.Dim{X: 32, Y: 8}},
		{"half row radius", 200, 16, 3, 100, compute.Dim{X: 64, Y: 4}},
		{"one pixel blocks", 64, 4, 1, 10, compute.Dim{X: 64, Y: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := randomBuffer(tt.w*tt.h*tt.c, 3)
			dst := make([]float32, len(src))

			run(t, pool, Subblock(Args{
				Src: src, Dst: dst,
				Width: tt.w, Height: tt.h, Components: tt.c, Radius: tt.r,
				Workgroup: tt.wg,
				Params:    params(tt.w, tt.wg.X),
			}))

			want := make([]float32, len(src))
			reference.MovingAverage(want, src, tt.w, tt.h, tt.c, tt.r)
			expectClose(t, dst, want)
		})
	}
}

func TestSubblockRejectsSentinel(t *testing.T) {
	pool := newPool(t)

	src := randomBuffer(64*4, 4)
	dst := make([]float32, len(src))
	table := make([]subblock.Params, subblock.TableSize)
	for i := range table {
		table[i] = subblock.Sentinel
	}

	l := Subblock(Args{
		Src: src, Dst: dst, Width: 64, Height: 4, Components: 1, Radius: 5,
		Workgroup: compute.Dim{X: 8, Y: 4}, Params: table,
	})
	if err := compute.Run(pool, l); err == nil {
		t.Error("Run() with sentinel params: error = nil")
	}
}

func TestBuildParamsMatchesHostBuild(t *testing.T) {
	pool := newPool(t)

	var blocks [subblock.MaxRadius]int
	for i := range blocks {
		blocks[i] = []int{4, 16, 64, 256}[i%4]
	}

	got := make([]subblock.Params, subblock.TableSize)
	run(t, pool, BuildParams(got, 300, &blocks))
	want := subblock.Build(300, &blocks)

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func BenchmarkSubblock(b *testing.B) {
	pool := newPool(b)
	const w, h = 1024, 256
	src := randomBuffer(w*h, 5)
	dst := make([]float32, len(src))
	p := params(w, 16)

	l := Subblock(Args{
		Src: src, Dst: dst, Width: w, Height: h, Components: 1, Radius: 64,
		Workgroup: compute.Dim{X: 16, Y: 16}, Params: p,
	})

	b.ResetTimer()
	for range b.N {
		if err := compute.Run(pool, l); err != nil {
			b.Fatal(err)
		}
	}
}
