package subblock

import (
	"testing"
)

func TestLayoutWidths(t *testing.T) {
	l := NewLayout(10, 3)

	if got := l.BlockWidth(); got != 3 {
		t.Errorf("BlockWidth() = %d, want 3", got)
	}
	if got := l.Overflow(); got != 1 {
		t.Errorf("Overflow() = %d, want 1", got)
	}

	wantSize := []int{4, 3, 3}
	wantStart := []int{0, 4, 7}
	for b := range 3 {
		if got := l.Size(b); got != wantSize[b] {
			t.Errorf("Size(%d) = %d, want %d", b, got, wantSize[b])
		}
		if got := l.Start(b); got != wantStart[b] {
			t.Errorf("Start(%d) = %d, want %d", b, got, wantStart[b])
		}
	}
}

// Width 10, 3 blocks of 4,3,3 pixels, radius 4, block 0.
func TestWalkUnevenBlocks(t *testing.T) {
	p := Walk(10, 3, 0, 4)

	want := Params{LeftBlocks: 1, LeftPixels: 1, RightBlocks: 0, RightPixels: 1}
	if p != want {
		t.Fatalf("Walk(10, 3, 0, 4) = %+v, want %+v", p, want)
	}

	l := NewLayout(10, 3)
	if got := l.Coverage(0, p); got != 9 {
		t.Errorf("Coverage = %d, want 9", got)
	}
}

func TestWalkNegativeRight(t *testing.T) {
	// Block 0 is 25 pixels wide, radius 3 needs only 4 pixels to the right
	// of the first pixel, the remaining 21 are subtracted.
	p := Walk(100, 4, 0, 3)
	if p.RightPixels != -21 {
		t.Errorf("RightPixels = %d, want -21", p.RightPixels)
	}
	if p.RightBlocks != 0 {
		t.Errorf("RightBlocks = %d, want 0", p.RightBlocks)
	}
	if p.LeftBlocks != 0 || p.LeftPixels != 3 {
		t.Errorf("left = (%d, %d), want (0, 3)", p.LeftBlocks, p.LeftPixels)
	}
}

func TestCoverageInvariant(t *testing.T) {
	tests := []struct {
		width int
		nblks []int
	}{
		{10, []int{1, 2, 3, 4, 7, 10}},
		{64, []int{1, 4, 16, 64}},
		{100, []int{3, 7, 16, 32, 64}},
		{257, []int{4, 16, 128, 256}},
		{1080, []int{4, 16, 32, 128, 256, 512}},
		{1920, []int{4, 32, 256, 1024}},
	}

	for _, tt := range tests {
		for _, nblk := range tt.nblks {
			l := NewLayout(tt.width, nblk)
			for r := 1; r <= MaxRadius; r++ {
				for b := range nblk {
					p := l.Walk(b, r)
					if err := l.Check(b, r, p); err != nil {
						t.Fatalf("width=%d nblk=%d: %v", tt.width, nblk, err)
					}
				}
			}
		}
	}
}

func TestWalkTerminatesAtLimits(t *testing.T) {
	tests := []struct {
		name  string
		width int
		nblk  int
		r     int
	}{
		{"max radius tiny row", 3, 3, MaxRadius},
		{"max radius single block", 7, 1, MaxRadius},
		{"max radius wide row", 1920, 1024, MaxRadius},
		{"half row", 1024, 16, 512},
		{"half odd row", 999, 7, 499},
		{"many wraps", 10, 3, MaxRadius},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLayout(tt.width, tt.nblk)
			for b := range tt.nblk {
				if err := l.Check(b, tt.r, l.Walk(b, tt.r)); err != nil {
					t.Error(err)
				}
			}
		})
	}
}

func TestFillSentinels(t *testing.T) {
	var blocks [MaxRadius]int
	for i := range blocks {
		blocks[i] = 16
	}
	blocks[9] = 64 // does not fit a 40 pixel row

	table := Build(40, &blocks)

	if got := table[Index(1, 16)]; got != Sentinel {
		t.Errorf("entry past block count = %+v, want sentinel", got)
	}
	if got := table[Index(10, 0)]; got != Sentinel {
		t.Errorf("entry of oversized block count = %+v, want sentinel", got)
	}

	l := NewLayout(40, 16)
	for b := range 16 {
		if err := l.Check(b, 5, table[Index(5, b)]); err != nil {
			t.Error(err)
		}
	}
}

func TestNewLayoutPanics(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		blocks int
	}{
		{"zero blocks", 10, 0},
		{"too many blocks", 2000, MaxBlocks + 1},
		{"wider than row", 10, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("NewLayout(%d, %d) did not panic", tt.width, tt.blocks)
				}
			}()
			NewLayout(tt.width, tt.blocks)
		})
	}
}

func TestWalkRadiusPanics(t *testing.T) {
	l := NewLayout(10, 2)
	for _, r := range []int{0, MaxRadius + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Walk(0, %d) did not panic", r)
				}
			}()
			l.Walk(0, r)
		}()
	}
}
