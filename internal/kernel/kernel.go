// Package kernel implements the box-blur kernels for the emulated compute
// device.
//
// Buffers hold Components float32 values per pixel, row-major. Direct and
// Subblock read Height rows of Width pixels and write the result transposed,
// so running a kernel twice yields a correctly oriented separable 2-D blur.
package kernel

import (
	"fmt"

	"github.com/gogpu/boxblur/internal/compute"
	"github.com/gogpu/boxblur/internal/subblock"
)

// Args are the operands of one blur kernel launch.
type Args struct {
	Src, Dst []float32

	// Width and Height are the source extent in pixels.
	Width, Height int
	// Components is the number of floats per pixel, 1 to 4.
	Components int
	Radius     int

	// Workgroup is (block count, rows per workgroup).
	Workgroup compute.Dim

	// Params is the subblock table for Width; used by Subblock only.
	Params []subblock.Params
}

func (a *Args) check(minLen int) {
	if a.Components < 1 || a.Components > 4 {
		panic(fmt.Sprintf("kernel: %d components per pixel", a.Components))
	}
	if len(a.Src) < minLen || len(a.Dst) < minLen {
		panic(fmt.Sprintf("kernel: buffers hold %d/%d floats, need %d", len(a.Src), len(a.Dst), minLen))
	}
}

func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// vec is one pixel.
type vec [4]float32

func (v *vec) add(src []float32, p, c int) {
	for i := range c {
		v[i] += src[p+i]
	}
}

func (v *vec) sub(src []float32, p, c int) {
	for i := range c {
		v[i] -= src[p+i]
	}
}

func (v *vec) store(dst []float32, p, c int, scale float32) {
	for i := range c {
		dst[p+i] = v[i] * scale
	}
}

// addRun adds count consecutive pixels of a row starting at x, wrapping at
// width.
func (v *vec) addRun(src []float32, row, x, count, width, c int) {
	x = mod(x, width)
	for range count {
		v.add(src, (row+x)*c, c)
		if x++; x == width {
			x = 0
		}
	}
}

// Manual blurs with a 3x3 circular neighborhood. Output is not transposed.
func Manual(a Args) *compute.Launch {
	w, h, c := a.Width, a.Height, a.Components
	a.check(w * h * c)
	src, dst := a.Src, a.Dst

	return &compute.Launch{
		Name:   "manual",
		Global: compute.Dim{X: roundUp(w, a.Workgroup.X), Y: roundUp(h, a.Workgroup.Y)},
		Local:  a.Workgroup,
		Kernel: func(it *compute.Item) {
			x, y := it.Global.X, it.Global.Y
			if x >= w || y >= h {
				return
			}
			var acc vec
			for dy := -1; dy <= 1; dy++ {
				row := mod(y+dy, h) * w
				for dx := -1; dx <= 1; dx++ {
					acc.add(src, (row+mod(x+dx, w))*c, c)
				}
			}
			acc.store(dst, (y*w+x)*c, c, 1.0/9)
		},
	}
}

// Direct sums the 2r+1 pixels of each row window and stores transposed.
// Square workgroups fully inside the image route their tile through shared
// memory so that each thread writes consecutive output addresses.
func Direct(a Args) *compute.Launch {
	w, h, c, r := a.Width, a.Height, a.Components, a.Radius
	a.check(w * h * c)
	src, dst := a.Src, a.Dst
	nx, ny := a.Workgroup.X, a.Workgroup.Y
	square := nx == ny
	scale := 1 / float32(2*r+1)

	l := &compute.Launch{
		Name:   "direct",
		Global: compute.Dim{X: roundUp(w, nx), Y: roundUp(h, ny)},
		Local:  a.Workgroup,
	}
	if square {
		l.Shared = nx * ny * c
		l.Barriers = true
	}

	l.Kernel = func(it *compute.Item) {
		x, y := it.Global.X, it.Global.Y
		inside := x < w && y < h

		var acc vec
		if inside {
			acc.addRun(src, y*w, x-r, 2*r+1, w, c)
		}

		full := (it.Group.X+1)*nx <= w && (it.Group.Y+1)*ny <= h
		if !square || !full {
			if inside {
				acc.store(dst, (x*h+y)*c, c, scale)
			}
			return
		}

		tile := it.Shared()
		acc.store(tile, (it.Local.X*ny+it.Local.Y)*c, c, scale)
		it.Barrier()

		li := it.LocalIndex()
		xr, yc := li/ny, li%ny
		out := ((it.Group.X*nx+xr)*h + it.Group.Y*ny + yc) * c
		copy(dst[out:out+c], tile[li*c:li*c+c])
	}

	return l
}

// Subblock splits each row into Workgroup.X blocks. Each thread owns one
// block of one row: it publishes its block sum, combines the sums of whole
// neighbor blocks with loose pixels from the source, then slides the window
// across its block. Every step is written through a shared tile.
func Subblock(a Args) *compute.Launch {
	w, h, c, r := a.Width, a.Height, a.Components, a.Radius
	a.check(w * h * c)
	src, dst, params := a.Src, a.Dst, a.Params
	n, ny := a.Workgroup.X, a.Workgroup.Y
	lay := subblock.NewLayout(w, n)
	steps := lay.MaxBlockWidth()
	scale := 1 / float32(2*r+1)
	area := n * ny * c

	return &compute.Launch{
		Name:     "subblock",
		Global:   compute.Dim{X: n, Y: roundUp(h, ny)},
		Local:    a.Workgroup,
		Shared:   2 * area,
		Barriers: true,
		Kernel: func(it *compute.Item) {
			tx, ty := it.Local.X, it.Local.Y
			y := it.Global.Y
			rowOK := y < h
			row := y * w
			size, x0 := lay.Size(tx), lay.Start(tx)

			sh := it.Shared()
			partial, tile := sh[:area], sh[area:]

			var own vec
			if rowOK {
				own.addRun(src, row, x0, size, w, c)
			}
			own.store(partial, (ty*n+tx)*c, c, 1)
			it.Barrier()

			acc := own
			if rowOK {
				p := params[subblock.Index(r, tx)]
				if !p.Valid() {
					panic(fmt.Sprintf("kernel: sentinel subblock params for block %d radius %d", tx, r))
				}
				for j := 1; j <= int(p.LeftBlocks); j++ {
					acc.add(partial, (ty*n+mod(tx-j, n))*c, c)
				}
				for j := 1; j <= int(p.RightBlocks); j++ {
					acc.add(partial, (ty*n+mod(tx+j, n))*c, c)
				}
				acc.addRun(src, row, x0-r, int(p.LeftPixels), w, c)
				if p.RightPixels >= 0 {
					acc.addRun(src, row, x0+r-int(p.RightPixels)+1, int(p.RightPixels), w, c)
				} else {
					for x := x0 + r + 1; x < x0+size; x++ {
						acc.sub(src, (row+x)*c, c)
					}
				}
			}

			li := ty*n + tx
			br, yo := li/ny, li%ny
			yy := it.Group.Y*ny + yo
			for i := range steps {
				active := rowOK && i < size
				if active {
					if i > 0 {
						x := x0 + i
						acc.add(src, (row+mod(x+r, w))*c, c)
						acc.sub(src, (row+mod(x-r-1, w))*c, c)
					}
					acc.store(tile, (tx*ny+ty)*c, c, scale)
				}
				it.Barrier()

				if i < lay.Size(br) && yy < h {
					xx := lay.Start(br) + i
					out := (xx*h + yy) * c
					copy(dst[out:out+c], tile[li*c:li*c+c])
				}
				it.Barrier()
			}
		},
	}
}

// BuildParams fills a subblock table for rows of width pixels, one thread
// per (block, radius) pair.
func BuildParams(dst []subblock.Params, width int, blocks *[subblock.MaxRadius]int) *compute.Launch {
	if len(dst) < subblock.TableSize {
		panic(fmt.Sprintf("kernel: params table holds %d entries, need %d", len(dst), subblock.TableSize))
	}

	return &compute.Launch{
		Name:   "subblock-params",
		Global: compute.Dim{X: subblock.MaxBlocks, Y: subblock.MaxRadius},
		Local:  compute.Dim{X: 256, Y: 1},
		Kernel: func(it *compute.Item) {
			b, r := it.Global.X, it.Global.Y+1
			nblk := blocks[r-1]
			if b >= nblk || !subblock.Fits(width, nblk) {
				dst[subblock.Index(r, b)] = subblock.Sentinel
				return
			}
			l := subblock.Layout{Width: width, Blocks: nblk}
			dst[subblock.Index(r, b)] = l.Walk(b, r)
		},
	}
}
