// Package reference holds scalar box-blur implementations used to verify
// the parallel kernels, and tolerance-based comparison helpers.
package reference

import (
	"fmt"
	"math"
)

// MovingAverage writes the circular moving average of radius r over each of
// the height rows of src into dst, transposed: dst[x][y] = avg(src[y], x).
// Sums are accumulated in float64.
func MovingAverage(dst, src []float32, width, height, comps, r int) {
	n := float64(2*r + 1)
	for y := range height {
		row := y * width
		for x := range width {
			var acc [4]float64
			for k := -r; k <= r; k++ {
				p := (row + wrap(x+k, width)) * comps
				for c := range comps {
					acc[c] += float64(src[p+c])
				}
			}
			out := (x*height + y) * comps
			for c := range comps {
				dst[out+c] = float32(acc[c] / n)
			}
		}
	}
}

// Blur applies passes rounds of the separable circular box blur of radius r.
func Blur(src []float32, width, height, comps, r, passes int) []float32 {
	cur := append([]float32(nil), src...)
	tmp := make([]float32, len(src))
	for range passes {
		MovingAverage(tmp, cur, width, height, comps, r)
		MovingAverage(cur, tmp, height, width, comps, r)
	}
	return cur
}

// Box3x3 averages the circular 3x3 neighborhood of every pixel.
func Box3x3(src []float32, width, height, comps int) []float32 {
	dst := make([]float32, len(src))
	for y := range height {
		for x := range width {
			var acc [4]float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					p := (wrap(y+dy, height)*width + wrap(x+dx, width)) * comps
					for c := range comps {
						acc[c] += float64(src[p+c])
					}
				}
			}
			for c := range comps {
				dst[(y*width+x)*comps+c] = float32(acc[c] / 9)
			}
		}
	}
	return dst
}

func wrap(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// Stats summarizes the difference between two buffers.
type Stats struct {
	MaxAbs float64
	MaxRel float64
	RMS    float64
	// Worst is the index of the element with the largest relative error.
	Worst int
}

func (s Stats) String() string {
	return fmt.Sprintf("max abs %.3g, max rel %.3g, rms %.3g (at %d)", s.MaxAbs, s.MaxRel, s.RMS, s.Worst)
}

// Compare returns error statistics of got against want. Relative error is
// measured against max(|want|, floor) so values near zero do not dominate.
func Compare(got, want []float32, floor float64) (Stats, error) {
	if len(got) != len(want) {
		return Stats{}, fmt.Errorf("reference: length %d, want %d", len(got), len(want))
	}

	var s Stats
	var sq float64
	for i := range got {
		g, w := float64(got[i]), float64(want[i])
		if math.IsNaN(g) != math.IsNaN(w) {
			return Stats{}, fmt.Errorf("reference: NaN mismatch at %d: got %v, want %v", i, g, w)
		}
		d := math.Abs(g - w)
		sq += d * d
		if d > s.MaxAbs {
			s.MaxAbs = d
		}
		if rel := d / math.Max(math.Abs(w), floor); rel > s.MaxRel {
			s.MaxRel = rel
			s.Worst = i
		}
	}
	if len(got) > 0 {
		s.RMS = math.Sqrt(sq / float64(len(got)))
	}
	return s, nil
}
