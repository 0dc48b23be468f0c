// Package boxblur provides an adaptive separable box blur for compute
// devices.
//
// # Overview
//
// A box blur replaces every pixel with the mean of the 2r+1 pixels around
// it. Applied once per axis it gives a 2-D box blur; applied twice it is a
// good Gaussian approximation. Images are arrays of 1 to 4 float32
// components per pixel and wrap around at the edges.
//
// # Quick Start
//
//	dev, err := boxblur.OpenDevice("") // GPU if registered, else software
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	e, err := boxblur.NewEngine(dev, 1920, 1080, 4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := e.BlurImage(img, 50, 2)
//
// Import the gpu package to register the WebGPU device:
//
//	import _ "github.com/gogpu/boxblur/gpu"
//
// # Strategies
//
// Three kernels implement the 1-D pass, each writing its result transposed
// so the same kernel serves both axes:
//   - Manual: a direct 3x3 sum, radius 1 only
//   - Direct: sums every window, with a blocked transpose through shared memory
//   - Subblock: splits rows into blocks and reuses block sums, for large radii
//
// A Table picks the strategy and block count for each radius. NewTable
// builds it from tuned vendor heuristics; Calibrate measures every
// combination on the current device and produces a new one.
//
// # Errors
//
// Invalid arguments such as a radius outside [1, MaxRadius] or a block count
// that does not divide the workgroup size are programming errors and panic.
// Device failures are returned as *DeviceError and are not recoverable.
package boxblur
