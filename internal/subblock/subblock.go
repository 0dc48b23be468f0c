// Package subblock computes the block decomposition used by the subblock
// box-blur kernel.
//
// A row of Width pixels is split into Blocks contiguous blocks. The first
// Width%Blocks blocks are one pixel wider than the rest. For every block and
// radius the table records how many whole neighboring blocks and how many
// loose pixels a thread must accumulate on each side so that its first pixel
// sees exactly 2r+1 pixels of a circular window.
package subblock

import "fmt"

const (
	// MaxRadius is the largest supported blur radius.
	MaxRadius = 512

	// MaxBlocks is the largest supported block count.
	MaxBlocks = 1024

	// TableSize is the number of entries in a full parameter table.
	TableSize = MaxRadius * MaxBlocks
)

// Params describes how block b accumulates a window of radius r.
//
// RightPixels is negative when the block is wider than r+1: the pixels past
// the window end are inside the own block and must be subtracted.
type Params struct {
	LeftBlocks  int16
	LeftPixels  int16
	RightBlocks int16
	RightPixels int16
}

// Sentinel marks table entries that must never be used.
var Sentinel = Params{-1, -1, -1, -1}

// Valid reports whether p is not the sentinel.
func (p Params) Valid() bool {
	return p.LeftBlocks >= 0 && p.LeftPixels >= 0 && p.RightBlocks >= 0
}

// Index returns the table slot for (radius, block).
func Index(radius, block int) int {
	return (radius-1)*MaxBlocks + block
}

// Layout is a row split into blocks.
type Layout struct {
	Width  int
	Blocks int
}

// NewLayout validates and returns a layout. It panics when blocks is not in
// 1..min(width, MaxBlocks).
func NewLayout(width, blocks int) Layout {
	if blocks < 1 || blocks > MaxBlocks {
		panic(fmt.Sprintf("subblock: block count %d out of range [1, %d]", blocks, MaxBlocks))
	}
	if blocks > width {
		panic(fmt.Sprintf("subblock: block count %d exceeds row width %d", blocks, width))
	}
	return Layout{Width: width, Blocks: blocks}
}

// Fits reports whether blocks can split a row of width pixels.
func Fits(width, blocks int) bool {
	return blocks >= 1 && blocks <= MaxBlocks && blocks <= width
}

// BlockWidth is the width of a small block.
func (l Layout) BlockWidth() int { return l.Width / l.Blocks }

// Overflow is the number of large blocks.
func (l Layout) Overflow() int { return l.Width % l.Blocks }

// MaxBlockWidth is the widest block in the row.
func (l Layout) MaxBlockWidth() int {
	if l.Overflow() > 0 {
		return l.BlockWidth() + 1
	}
	return l.BlockWidth()
}

// Size returns the width of block b.
func (l Layout) Size(b int) int {
	if b < l.Overflow() {
		return l.BlockWidth() + 1
	}
	return l.BlockWidth()
}

// Start returns the first pixel of block b.
func (l Layout) Start(b int) int {
	return b*l.BlockWidth() + min(b, l.Overflow())
}

// runDown returns the first block of the same-width run that contains b.
func (l Layout) runDown(b int) int {
	if b < l.Overflow() {
		return 0
	}
	return l.Overflow()
}

// runUp returns the last block of the same-width run that contains b.
func (l Layout) runUp(b int) int {
	if b < l.Overflow() {
		return l.Overflow() - 1
	}
	return l.Blocks - 1
}

// walkLeft consumes whole blocks to the left of b until fewer than one
// block's worth of budget remains.
func (l Layout) walkLeft(b, budget int) (blocks, pixels int) {
	j := b - 1
	for {
		if j < 0 {
			j += l.Blocks
		}
		w := l.Size(j)
		if budget < w {
			return blocks, budget
		}
		lo := l.runDown(j)
		n := min(j-lo+1, budget/w)
		blocks += n
		budget -= n * w
		j -= n
	}
}

// walkRight is walkLeft mirrored.
func (l Layout) walkRight(b, budget int) (blocks, pixels int) {
	j := b + 1
	for {
		if j >= l.Blocks {
			j -= l.Blocks
		}
		w := l.Size(j)
		if budget < w {
			return blocks, budget
		}
		hi := l.runUp(j)
		n := min(hi-j+1, budget/w)
		blocks += n
		budget -= n * w
		j += n
	}
}

// Walk computes the parameters of block b at radius r.
func (l Layout) Walk(b, r int) Params {
	if b < 0 || b >= l.Blocks {
		panic(fmt.Sprintf("subblock: block %d out of range [0, %d)", b, l.Blocks))
	}
	if r < 1 || r > MaxRadius {
		panic(fmt.Sprintf("subblock: radius %d out of range [1, %d]", r, MaxRadius))
	}

	lblk, lpix := l.walkLeft(b, r)

	var rblk, rpix int
	if right := r + 1 - l.Size(b); right < 0 {
		rpix = right
	} else {
		rblk, rpix = l.walkRight(b, right)
	}

	return Params{
		LeftBlocks:  int16(lblk),
		LeftPixels:  int16(lpix),
		RightBlocks: int16(rblk),
		RightPixels: int16(rpix),
	}
}

// Walk is shorthand for NewLayout(width, nblk).Walk(b, r).
func Walk(width, nblk, b, r int) Params {
	return NewLayout(width, nblk).Walk(b, r)
}

// Coverage returns the number of pixels p makes block b accumulate,
// summing the real widths of the neighbor blocks it names.
func (l Layout) Coverage(b int, p Params) int {
	n := l.Size(b) + int(p.LeftPixels) + int(p.RightPixels)
	for i := 1; i <= int(p.LeftBlocks); i++ {
		n += l.Size(mod(b-i, l.Blocks))
	}
	for i := 1; i <= int(p.RightBlocks); i++ {
		n += l.Size(mod(b+i, l.Blocks))
	}
	return n
}

// Check verifies the coverage invariant of one entry.
func (l Layout) Check(b, r int, p Params) error {
	if !p.Valid() {
		return fmt.Errorf("subblock: sentinel entry at block %d radius %d", b, r)
	}
	if p.LeftPixels >= int16(l.MaxBlockWidth()) {
		return fmt.Errorf("subblock: block %d radius %d: %d left pixels not below block width", b, r, p.LeftPixels)
	}
	if got, want := l.Coverage(b, p), 2*r+1; got != want {
		return fmt.Errorf("subblock: block %d radius %d covers %d pixels, want %d", b, r, got, want)
	}
	return nil
}

// Fill builds rows [lo, hi) of a parameter table: radius lo+1..hi, each with
// the block count blocks[r-1]. Radii whose block count does not fit width get
// sentinel rows, as do blocks past the count.
func Fill(dst []Params, width int, blocks *[MaxRadius]int, lo, hi int) {
	for row := lo; row < hi; row++ {
		r := row + 1
		nblk := blocks[row]
		base := row * MaxBlocks
		if !Fits(width, nblk) {
			for b := range MaxBlocks {
				dst[base+b] = Sentinel
			}
			continue
		}
		l := Layout{Width: width, Blocks: nblk}
		for b := range MaxBlocks {
			if b < nblk {
				dst[base+b] = l.Walk(b, r)
			} else {
				dst[base+b] = Sentinel
			}
		}
	}
}

// Build returns a complete table for width.
func Build(width int, blocks *[MaxRadius]int) []Params {
	t := make([]Params, TableSize)
	Fill(t, width, blocks, 0, MaxRadius)
	return t
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}
