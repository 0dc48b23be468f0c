// Command boxblur blurs images with the adaptive box-blur engine and
// calibrates the strategy table of a device.
//
// Blur an image twice with radius 20 on the best device:
//
//	boxblur -in photo.png -out blurred.png -radius 20 -passes 2
//
// Time every strategy for radii 1 to 64 and save the report:
//
//	boxblur -calibrate -r 1 -R 64 -w 1920 -h 1080 > lab.txt
//	boxblur -in photo.png -table lab.txt -radius 50
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/boxblur"
	_ "github.com/gogpu/boxblur/gpu"
	"github.com/gogpu/boxblur/internal/imageio"
	"github.com/gogpu/boxblur/internal/reference"
	"github.com/gogpu/boxblur/internal/subblock"
)

func main() {
	var (
		calibrate = flag.Bool("calibrate", false, "time every strategy and print a calibration report")
		minRadius = flag.Int("r", 1, "smallest radius to calibrate")
		maxRadius = flag.Int("R", 64, "largest radius to calibrate")
		width     = flag.Int("w", 1920, "calibration buffer width")
		height    = flag.Int("h", 1080, "calibration buffer height")
		comps     = flag.Int("c", 4, "calibration buffer components (1-4)")
		input     = flag.String("in", "", "input image (png, jpeg, bmp, tiff)")
		output    = flag.String("out", "blurred.png", "output image")
		radius    = flag.Int("radius", 8, "blur radius")
		passes    = flag.Int("passes", 2, "number of blur passes")
		device    = flag.String("device", "", "compute device: gpu or software (default: best available)")
		tableFile = flag.String("table", "", "calibration report to take the strategy table from")
		verify    = flag.Bool("verify", false, "compare the result against the scalar reference")
		verbose   = flag.Bool("v", false, "debug logging")
		dump      = flag.Bool("dump", false, "print the strategy table and the first subblock parameters")
	)
	flag.Parse()

	if *verbose {
		boxblur.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	dev, err := boxblur.OpenDevice(*device)
	if err != nil {
		fatal("open device", err)
	}
	defer func() { _ = dev.Close() }()
	info := dev.Info()
	log.Printf("Device: %s (%s, vendor %q)", info.Name, info.Backend, info.Vendor)

	var opts []boxblur.Option
	if *tableFile != "" {
		t, err := loadTable(*tableFile, info.Vendor)
		if err != nil {
			log.Fatalf("Failed to read table: %v", err)
		}
		opts = append(opts, boxblur.WithTable(t))
	}

	if *calibrate {
		e, err := boxblur.NewEngine(dev, *width, *height, *comps, opts...)
		if err != nil {
			fatal("create engine", err)
		}
		if *dump {
			dumpTable(e)
		}
		if _, err := boxblur.Calibrate(e, *minRadius, *maxRadius, os.Stdout); err != nil {
			fatal("calibrate", err)
		}
		return
	}

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}
	src, err := imageio.Load(*input)
	if err != nil {
		log.Fatalf("Failed to load: %v", err)
	}
	img := boxblur.FromImage(src)

	e, err := boxblur.NewEngine(dev, img.Width, img.Height, img.Components, opts...)
	if err != nil {
		fatal("create engine", err)
	}
	if *dump {
		dumpTable(e)
	}

	start := time.Now()
	out, err := e.BlurImage(img, *radius, *passes)
	if err != nil {
		fatal("blur", err)
	}
	s, blocks := e.Table().Get(*radius)
	log.Printf("Blurred %dx%d, radius %d, %d passes with %s/%d in %v",
		img.Width, img.Height, *radius, *passes, s, blocks, time.Since(start))

	if *verify {
		want := reference.Blur(img.Pix, img.Width, img.Height, img.Components, *radius, *passes)
		stats, err := reference.Compare(out.Pix, want, 1e-2)
		if err != nil {
			log.Fatalf("Failed to verify: %v", err)
		}
		fmt.Printf("verify: max relative error %.3g, RMS %.3g\n", stats.MaxRel, stats.RMS)
	}

	if err := imageio.Save(*output, out.ToNRGBA()); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Saved %s", *output)
}

// fatal reports err and exits.
func fatal(what string, err error) {
	log.Fatal(fatalMessage(what, err))
}

// fatalMessage names the failing backend operation of a device error, with
// its status code when the backend reports one.
func fatalMessage(what string, err error) string {
	var derr *boxblur.DeviceError
	if !errors.As(err, &derr) {
		return fmt.Sprintf("Failed to %s: %v", what, err)
	}
	if derr.Code != 0 {
		return fmt.Sprintf("Failed to %s: %s %s returned code %d: %v", what, derr.Backend, derr.Op, derr.Code, derr.Err)
	}
	return fmt.Sprintf("Failed to %s: %s %s failed: %v", what, derr.Backend, derr.Op, derr.Err)
}

func loadTable(path, vendor string) (*boxblur.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return boxblur.ParseTable(f, vendor)
}

// dumpTable prints the strategy table and the subblock parameters of the
// first radii for the row width.
func dumpTable(e *boxblur.Engine) {
	fmt.Print(e.Table())

	width, _, _ := e.Size()
	blocks := e.Table().Blocks()
	params := subblock.Build(width, blocks)
	fmt.Printf("subblock parameters, width %d (left blocks, left pixels, right blocks, right pixels):\n", width)
	for r := 1; r <= 4; r++ {
		nblk := min(blocks[r-1], 8)
		fmt.Printf("  r %d:", r)
		for b := range nblk {
			p := params[subblock.Index(r, b)]
			fmt.Printf(" {%d %d %d %d}", p.LeftBlocks, p.LeftPixels, p.RightBlocks, p.RightPixels)
		}
		fmt.Println()
	}
}
