package boxblur

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/boxblur/internal/subblock"
)

// Engine applies separable box blurs of a fixed image size on a device.
//
// The engine owns a scratch buffer for the transposed intermediate and one
// subblock parameter table per axis. Both tables are rebuilt whenever the
// strategy table or the image size changes.
//
// An Engine must not be used from several goroutines at once.
type Engine struct {
	dev    Device
	table  *Table
	log    *slog.Logger
	closed bool

	width, height, components int

	scratch Buffer
	// rowParams serves the horizontal pass over rows of width pixels,
	// colParams the vertical pass over rows of height pixels.
	rowParams, colParams ParamsBuffer
}

// NewEngine creates an engine for images of width x height pixels with the
// given number of components. The strategy table comes from the device
// vendor unless overridden by an option.
func NewEngine(dev Device, width, height, components int, opts ...Option) (*Engine, error) {
	checkShape(width, height, components)

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		dev:        dev,
		log:        o.logger,
		components: components,
	}
	if e.log == nil {
		e.log = Logger()
	}

	e.table = o.table
	if e.table == nil {
		vendor := o.vendor
		if vendor == "" {
			vendor = dev.Info().Vendor
		}
		e.table = NewTable(vendor)
	}

	var err error
	if e.rowParams, err = dev.NewParamsBuffer("params-rows"); err != nil {
		return nil, err
	}
	if e.colParams, err = dev.NewParamsBuffer("params-cols"); err != nil {
		e.rowParams.Release()
		return nil, err
	}
	if err := e.Resize(width, height); err != nil {
		if e.scratch != nil {
			e.scratch.Release()
		}
		e.rowParams.Release()
		e.colParams.Release()
		return nil, err
	}
	return e, nil
}

// Device returns the engine's device.
func (e *Engine) Device() Device { return e.dev }

// Table returns the current strategy table.
func (e *Engine) Table() *Table { return e.table }

// Size returns the image dimensions and component count.
func (e *Engine) Size() (width, height, components int) {
	return e.width, e.height, e.components
}

// SetTable replaces the strategy table and rebuilds the parameter tables.
func (e *Engine) SetTable(t *Table) error {
	if t == nil {
		panic("boxblur: nil table")
	}
	if e.closed {
		return ErrClosed
	}
	if err := e.buildParams(e.width, e.height, t); err != nil {
		return err
	}
	e.table = t
	return nil
}

// Resize changes the image dimensions, reallocating the scratch buffer and
// rebuilding the parameter tables.
func (e *Engine) Resize(width, height int) error {
	checkShape(width, height, e.components)
	if e.closed {
		return ErrClosed
	}

	if e.scratch == nil || e.width*e.height != width*height {
		scratch, err := e.dev.NewBuffer("scratch", width*height, e.components)
		if err != nil {
			return err
		}
		if e.scratch != nil {
			e.scratch.Release()
		}
		e.scratch = scratch
	}
	e.width, e.height = width, height
	return e.rebuildParams()
}

func (e *Engine) rebuildParams() error {
	return e.buildParams(e.width, e.height, e.table)
}

// buildParams rebuilds both parameter tables for a width x height image
// under t.
func (e *Engine) buildParams(width, height int, t *Table) error {
	blocks := t.Blocks()
	if err := e.dev.BuildParams(e.rowParams, width, blocks); err != nil {
		return err
	}
	if err := e.dev.BuildParams(e.colParams, height, blocks); err != nil {
		return err
	}
	e.log.Debug("boxblur: parameter tables rebuilt",
		"width", width, "height", height, "vendor", t.Vendor())
	return nil
}

// NewBuffer allocates a device buffer sized for the engine's images.
func (e *Engine) NewBuffer(label string) (Buffer, error) {
	return e.dev.NewBuffer(label, e.width*e.height, e.components)
}

// Blur enqueues passes rounds of a box blur of radius from src into dst.
// Two passes approximate a Gaussian well. src and dst may be the same
// buffer; src is left untouched otherwise. Blur returns once the work is
// enqueued; use the device's Finish or Read to wait for it.
//
// Blur panics if radius is outside [1, MaxRadius], if passes is negative,
// if the buffers do not match the engine's size, or if the table's block
// count for radius cannot run on the device.
func (e *Engine) Blur(src, dst Buffer, radius, passes int) error {
	if e.closed {
		return ErrClosed
	}
	s, blocks := e.table.Get(radius)
	if passes < 0 {
		panic(fmt.Sprintf("boxblur: negative pass count %d", passes))
	}
	e.checkBuffer(src)
	e.checkBuffer(dst)

	if passes == 0 {
		if src == dst {
			return nil
		}
		return e.dev.Copy(dst, src)
	}

	rows := e.workgroupRows(s, blocks)
	w, h := e.width, e.height

	launch := func(in, out Buffer, width, height int, params ParamsBuffer) error {
		return e.dev.Dispatch(Launch{
			Strategy: s,
			Src:      in,
			Dst:      out,
			Params:   params,
			Width:    width,
			Height:   height,
			Radius:   radius,
			Blocks:   blocks,
			Rows:     rows,
		})
	}

	switch s {
	case Manual:
		if radius != 1 {
			panic(fmt.Sprintf("boxblur: manual strategy at radius %d", radius))
		}
		in := src
		if passes%2 == 1 && src != dst {
			if err := launch(src, dst, w, h, nil); err != nil {
				return err
			}
			in = dst
			passes--
		}
		for ; passes > 0; passes -= 2 {
			if err := launch(in, e.scratch, w, h, nil); err != nil {
				return err
			}
			if passes == 1 {
				// Odd count in place: one kernel cannot read and write dst.
				return e.dev.Copy(dst, e.scratch)
			}
			if err := launch(e.scratch, dst, w, h, nil); err != nil {
				return err
			}
			in = dst
		}

	case Direct, Subblock:
		if s == Subblock && (!subblock.Fits(w, blocks) || !subblock.Fits(h, blocks)) {
			panic(fmt.Sprintf("boxblur: %d blocks do not fit a %dx%d image", blocks, w, h))
		}
		in := src
		for range passes {
			if err := launch(in, e.scratch, w, h, e.rowParams); err != nil {
				return err
			}
			if err := launch(e.scratch, dst, h, w, e.colParams); err != nil {
				return err
			}
			in = dst
		}

	default:
		panic(fmt.Sprintf("boxblur: invalid strategy %d", s))
	}
	return nil
}

// workgroupRows returns the number of rows a workgroup of blocks threads per
// row covers. The block count must divide the kernel workgroup size.
func (e *Engine) workgroupRows(s Strategy, blocks int) int {
	wg := e.dev.KernelWorkgroupSize(s)
	rows := wg / blocks
	if rows < 1 || blocks*rows != wg {
		panic(fmt.Sprintf("boxblur: %s block count %d does not divide workgroup size %d", s, blocks, wg))
	}
	return rows
}

// Runnable reports whether the configuration can run on this engine without
// violating a precondition of Blur.
func (e *Engine) Runnable(s Strategy, blocks, radius int) bool {
	wg := e.dev.KernelWorkgroupSize(s)
	if blocks < 1 || blocks > wg || wg%blocks != 0 {
		return false
	}
	switch s {
	case Manual:
		return radius == 1
	case Direct:
		return true
	case Subblock:
		return subblock.Fits(e.width, blocks) && subblock.Fits(e.height, blocks)
	}
	return false
}

func (e *Engine) checkBuffer(b Buffer) {
	if b.Pixels() != e.width*e.height || b.Components() != e.components {
		panic(fmt.Sprintf("boxblur: buffer %q holds %d x %d, engine is %dx%d x %d",
			b.Label(), b.Pixels(), b.Components(), e.width, e.height, e.components))
	}
}

// Upload copies a host image into a new device buffer.
func (e *Engine) Upload(img *Image) (Buffer, error) {
	if img.Width != e.width || img.Height != e.height || img.Components != e.components {
		return nil, fmt.Errorf("%w: image %dx%d x %d, engine %dx%d x %d", ErrSize,
			img.Width, img.Height, img.Components, e.width, e.height, e.components)
	}
	b, err := e.NewBuffer("image")
	if err != nil {
		return nil, err
	}
	if err := e.dev.Write(b, img.Pix); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

// Download reads a device buffer into a new host image.
func (e *Engine) Download(b Buffer) (*Image, error) {
	img := NewImage(e.width, e.height, e.components)
	if err := e.dev.Read(img.Pix, b); err != nil {
		return nil, err
	}
	return img, nil
}

// BlurImage blurs a host image and returns the result.
func (e *Engine) BlurImage(img *Image, radius, passes int) (*Image, error) {
	src, err := e.Upload(img)
	if err != nil {
		return nil, err
	}
	defer src.Release()

	dst, err := e.NewBuffer("blurred")
	if err != nil {
		return nil, err
	}
	defer dst.Release()

	if err := e.Blur(src, dst, radius, passes); err != nil {
		return nil, err
	}
	return e.Download(dst)
}

// Close releases the engine's buffers. It does not close the device.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	// Pending kernels may still reference the buffers.
	err := e.dev.Finish()
	e.scratch.Release()
	e.rowParams.Release()
	e.colParams.Release()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
