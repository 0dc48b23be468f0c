package boxblur

import (
	"fmt"
	"io"
	"math"
	"time"
)

// worstTime marks a radius with no measured configuration yet.
const worstTime = time.Duration(math.MaxInt64)

// calibrationReps is the number of timed repetitions per configuration.
const calibrationReps = 3

// minCalibrationBlocks is the smallest block count the sweep tries.
const minCalibrationBlocks = 4

// Measurement is the timing of one (strategy, blocks, radius) combination.
type Measurement struct {
	Radius   int
	Strategy Strategy
	Blocks   int
	Times    [calibrationReps]time.Duration
	Mean     time.Duration
}

// Report is the result of a calibration sweep.
type Report struct {
	Vendor, Device            string
	Width, Height, Components int
	MinRadius, MaxRadius      int

	// Measurements holds every timed combination in sweep order.
	Measurements []Measurement

	best []Measurement
}

// Best returns the fastest configuration measured for radius.
func (r *Report) Best(radius int) (Measurement, bool) {
	if radius < r.MinRadius || radius > r.MaxRadius {
		return Measurement{}, false
	}
	m := r.best[radius-r.MinRadius]
	return m, m.Mean != worstTime
}

// Table returns a strategy table holding the winners. Radii outside the
// calibrated range keep the configuration of the vendor's profile.
func (r *Report) Table(vendor string) *Table {
	t := NewTable(vendor)
	for radius := r.MinRadius; radius <= r.MaxRadius; radius++ {
		if m, ok := r.Best(radius); ok {
			t.entries[radius-1] = Entry{Strategy: m.Strategy, Blocks: m.Blocks}
		}
	}
	return t
}

// Calibrate times every strategy at every power-of-two block count from the
// device maximum down to 4, for each radius in [minRadius, maxRadius], and
// reports the fastest configuration per radius. Combinations that cannot run
// on the engine are skipped. The engine's table is restored before
// Calibrate returns.
//
// Progress and the summary are written to w in a fixed-column format whose
// summary section can be read back with ParseTable.
func Calibrate(e *Engine, minRadius, maxRadius int, w io.Writer) (rep *Report, err error) {
	checkRadius(minRadius)
	checkRadius(maxRadius)
	if minRadius > maxRadius {
		panic(fmt.Sprintf("boxblur: radius range [%d, %d] is empty", minRadius, maxRadius))
	}

	info := e.dev.Info()
	width, height, comps := e.Size()
	rep = &Report{
		Vendor:     info.Vendor,
		Device:     info.Name,
		Width:      width,
		Height:     height,
		Components: comps,
		MinRadius:  minRadius,
		MaxRadius:  maxRadius,
		best:       make([]Measurement, maxRadius-minRadius+1),
	}
	for i := range rep.best {
		rep.best[i] = Measurement{Radius: minRadius + i, Mean: worstTime}
	}

	src, err := e.Upload(RandomImage(width, height, comps, 1))
	if err != nil {
		return nil, err
	}
	defer src.Release()
	dst, err := e.NewBuffer("calibrate-dst")
	if err != nil {
		return nil, err
	}
	defer dst.Release()

	saved := e.table
	defer func() {
		if rerr := e.SetTable(saved); err == nil {
			err = rerr
		}
	}()

	fmt.Fprintf(w, "#\n# Box blur performance test\n")
	fmt.Fprintf(w, "# GPU vendor = %q\n", info.Vendor)
	fmt.Fprintf(w, "# GPU device = %q\n", info.Name)
	fmt.Fprintf(w, "# Buffer size = %dx%dx%d\n#\n", width, height, comps)
	fmt.Fprintf(w, "# rad bk nblk  average -time1- -time2- -time3-\n")

	for _, s := range Strategies {
		for blocks := info.MaxWorkgroupSize; blocks >= minCalibrationBlocks; blocks >>= 1 {
			// Only Manual depends on the radius, and only its first radius.
			if !e.Runnable(s, blocks, minRadius) {
				continue
			}
			if err := e.SetTable(ManualTable(blocks, s)); err != nil {
				return nil, err
			}
			for radius := minRadius; radius <= maxRadius; radius++ {
				if !e.Runnable(s, blocks, radius) {
					if s == Manual {
						break
					}
					continue
				}
				m, err := measure(e, src, dst, s, blocks, radius)
				if err != nil {
					return nil, err
				}
				rep.Measurements = append(rep.Measurements, m)
				if b := &rep.best[radius-minRadius]; m.Mean < b.Mean {
					*b = m
				}

				fmt.Fprintf(w, "# %3d %2d %4d ", radius, s, blocks)
				writeMillis(w, m.Mean)
				for _, t := range m.Times {
					writeMillis(w, t)
				}
				fmt.Fprintln(w)
			}
		}
	}

	fmt.Fprintf(w, "\n# rad bk nblk  average\n")
	for _, b := range rep.best {
		if b.Mean == worstTime {
			fmt.Fprintf(w, "# %3d    none\n", b.Radius)
			continue
		}
		fmt.Fprintf(w, "%5d %2d %4d  ", b.Radius, b.Strategy, b.Blocks)
		writeMillis(w, b.Mean)
		fmt.Fprintln(w)
		e.log.Info("boxblur: calibrated",
			"radius", b.Radius, "strategy", b.Strategy, "blocks", b.Blocks, "mean", b.Mean)
	}

	return rep, nil
}

// measure runs one warm-up blur and calibrationReps timed blurs.
func measure(e *Engine, src, dst Buffer, s Strategy, blocks, radius int) (Measurement, error) {
	m := Measurement{Radius: radius, Strategy: s, Blocks: blocks}

	blur := func() error {
		if err := e.Blur(src, dst, radius, 1); err != nil {
			return err
		}
		return e.dev.Finish()
	}

	if err := blur(); err != nil {
		return m, err
	}
	start := time.Now()
	prev := start
	for i := range m.Times {
		if err := blur(); err != nil {
			return m, err
		}
		now := time.Now()
		m.Times[i] = now.Sub(prev)
		prev = now
	}
	m.Mean = prev.Sub(start) / calibrationReps
	return m, nil
}

// writeMillis prints d as milliseconds with a microsecond fraction.
func writeMillis(w io.Writer, d time.Duration) {
	us := d.Microseconds()
	fmt.Fprintf(w, " %3d.%03d", us/1000, us%1000)
}
