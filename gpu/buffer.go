//go:build !nogpu

package gpu

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/wgpu"

	"github.com/gogpu/boxblur"
	"github.com/gogpu/boxblur/internal/subblock"
)

// vec4Size is the size of one pixel on the device. Pixels are padded to
// four components so every kernel works on vec4<f32>.
const vec4Size = 16

// mapTimeout bounds the wait for a readback.
const mapTimeout = 30 * time.Second

type buffer struct {
	label      string
	pixels     int
	components int
	buf        *wgpu.Buffer
}

func (b *buffer) Label() string   { return b.label }
func (b *buffer) Pixels() int     { return b.pixels }
func (b *buffer) Components() int { return b.components }

func (b *buffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

type params struct {
	label string
	buf   *wgpu.Buffer
}

func (p *params) Label() string { return p.label }

func (p *params) Release() {
	if p.buf != nil {
		p.buf.Release()
		p.buf = nil
	}
}

// NewBuffer allocates a storage buffer of pixels vec4 entries.
func (d *Device) NewBuffer(label string, pixels, components int) (boxblur.Buffer, error) {
	if pixels < 1 || components < 1 || components > 4 {
		return nil, fmt.Errorf("%w: buffer %q of %d pixels x %d components", boxblur.ErrSize, label, pixels, components)
	}
	size := uint64(pixels) * vec4Size
	if size > d.limits.MaxStorageBufferBindingSize {
		return nil, fmt.Errorf("%w: buffer %q needs %d bytes, device binds at most %d",
			boxblur.ErrSize, label, size, d.limits.MaxStorageBufferBindingSize)
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, d.fail("CreateBuffer", err)
	}
	return &buffer{label: label, pixels: pixels, components: components, buf: buf}, nil
}

// NewParamsBuffer allocates a subblock parameter table.
func (d *Device) NewParamsBuffer(label string) (boxblur.ParamsBuffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  subblock.TableSize * vec4Size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, d.fail("CreateBuffer", err)
	}
	return &params{label: label, buf: buf}, nil
}

func (d *Device) buffer(b boxblur.Buffer) *buffer {
	gb, ok := b.(*buffer)
	if !ok {
		panic(fmt.Sprintf("gpu: buffer %q does not belong to the GPU device", b.Label()))
	}
	return gb
}

func (d *Device) params(p boxblur.ParamsBuffer) *params {
	gp, ok := p.(*params)
	if !ok {
		panic(fmt.Sprintf("gpu: params %q do not belong to the GPU device", p.Label()))
	}
	return gp
}

// Write uploads src into dst. The data is copied before Write returns and
// reaches the buffer ahead of any later submission.
func (d *Device) Write(dst boxblur.Buffer, src []float32) error {
	if d.closed {
		return boxblur.ErrClosed
	}
	b := d.buffer(dst)
	if len(src) != b.pixels*b.components {
		return fmt.Errorf("%w: writing %d floats into %q of %d", boxblur.ErrSize, len(src), b.label, b.pixels*b.components)
	}
	return d.fail("WriteBuffer", d.queue.WriteBuffer(b.buf, 0, pack(src, b.components)))
}

// Read waits for submitted work and downloads src into dst.
func (d *Device) Read(dst []float32, src boxblur.Buffer) error {
	ctx, cancel := context.WithTimeout(context.Background(), mapTimeout)
	defer cancel()
	return d.ReadContext(ctx, dst, src)
}

// ReadContext is Read with a caller-supplied deadline for the readback.
func (d *Device) ReadContext(ctx context.Context, dst []float32, src boxblur.Buffer) error {
	if d.closed {
		return boxblur.ErrClosed
	}
	b := d.buffer(src)
	if len(dst) != b.pixels*b.components {
		return fmt.Errorf("%w: reading %q of %d floats into %d", boxblur.ErrSize, b.label, b.pixels*b.components, len(dst))
	}

	data, err := d.readback(ctx, b.buf)
	if err != nil {
		return err
	}
	unpack(dst, data, b.components)
	return nil
}

// readback waits for submitted work and returns a copy of buf's contents.
func (d *Device) readback(ctx context.Context, buf *wgpu.Buffer) ([]byte, error) {
	size := buf.Size()
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: buf.Label() + "-readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, d.fail("CreateBuffer", err)
	}
	defer staging.Release()

	err = d.submit("readback "+buf.Label(), func(enc *wgpu.CommandEncoder) error {
		enc.CopyBufferToBuffer(buf, 0, staging, 0, size)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := staging.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, d.fail("Map", err)
	}
	defer func() {
		if err := staging.Unmap(); err != nil {
			boxblur.Logger().Warn("gpu: unmap failed", "buffer", staging.Label(), "err", err)
		}
	}()

	rng, err := staging.MappedRange(0, size)
	if err != nil {
		return nil, d.fail("MappedRange", err)
	}
	return bytes.Clone(rng.Bytes()), nil
}

// Copy submits a copy of src into dst.
func (d *Device) Copy(dst, src boxblur.Buffer) error {
	if d.closed {
		return boxblur.ErrClosed
	}
	db, sb := d.buffer(dst), d.buffer(src)
	if db.pixels != sb.pixels || db.components != sb.components {
		return fmt.Errorf("%w: copying %q into %q", boxblur.ErrSize, sb.label, db.label)
	}
	return d.submit("copy "+sb.label, func(enc *wgpu.CommandEncoder) error {
		enc.CopyBufferToBuffer(sb.buf, 0, db.buf, 0, sb.buf.Size())
		return nil
	})
}

// BuildParams runs the parameter kernel over every (block, radius) pair of
// p, reading the block counts from blocks.
func (d *Device) BuildParams(p boxblur.ParamsBuffer, width int, blocks *[boxblur.MaxRadius]int) error {
	if d.closed {
		return boxblur.ErrClosed
	}
	gp := d.params(p)

	counts, err := d.blockCounts()
	if err != nil {
		return err
	}
	// Queue writes land before the submission that follows.
	if err := d.queue.WriteBuffer(counts, 0, packCounts(blocks)); err != nil {
		return d.fail("WriteBuffer", err)
	}
	uni, err := d.uniform(dims{width: uint32(width)})
	if err != nil {
		return err
	}

	wg := min(d.info.MaxWorkgroupSize, subblock.MaxBlocks)
	k := pipelineKey{kernel: paramsKernel, x: wg, y: 1}
	return d.run(k, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: uni, Size: vec4Size},
		{Binding: 1, Buffer: counts},
		{Binding: 2, Buffer: gp.buf},
	}, uint32(subblock.MaxBlocks/wg), subblock.MaxRadius)
}

// blockCounts returns the buffer holding the block count of every radius.
func (d *Device) blockCounts() (*wgpu.Buffer, error) {
	if d.counts != nil {
		return d.counts, nil
	}
	b, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "boxblur-block-counts",
		Size:  subblock.MaxRadius * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, d.fail("CreateBuffer", err)
	}
	d.counts = b
	return b, nil
}

// pack pads pixels of components floats to vec4.
func pack(src []float32, components int) []byte {
	n := len(src) / components
	out := make([]byte, n*vec4Size)
	for i := range n {
		for c := range components {
			binary.LittleEndian.PutUint32(out[i*vec4Size+c*4:], math.Float32bits(src[i*components+c]))
		}
	}
	return out
}

// unpack drops the padding added by pack.
func unpack(dst []float32, src []byte, components int) {
	n := len(dst) / components
	for i := range n {
		for c := range components {
			dst[i*components+c] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*vec4Size+c*4:]))
		}
	}
}

// packCounts lays out block counts as u32.
func packCounts(blocks *[boxblur.MaxRadius]int) []byte {
	out := make([]byte, len(blocks)*4)
	for i, n := range blocks {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(n))
	}
	return out
}
