//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/boxblur"
)

// Bind group layouts: Manual and Direct bind dims, src and dst; Subblock
// adds the parameter table.
const (
	plainLayout = iota
	subblockLayout
)

// dims is the uniform block of a dispatch.
type dims struct {
	width, height, radius, blocks uint32
}

func (m dims) bytes() []byte {
	b := make([]byte, vec4Size)
	binary.LittleEndian.PutUint32(b[0:], m.width)
	binary.LittleEndian.PutUint32(b[4:], m.height)
	binary.LittleEndian.PutUint32(b[8:], m.radius)
	binary.LittleEndian.PutUint32(b[12:], m.blocks)
	return b
}

func (d *Device) createLayouts() error {
	entries := []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
		{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
	}

	for i, n := range [2]int{3, 4} {
		l, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("boxblur-bgl-%d", n),
			Entries: entries[:n],
		})
		if err != nil {
			return d.fail("CreateBindGroupLayout", err)
		}
		d.layouts[i] = l

		pl, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
			Label:            fmt.Sprintf("boxblur-pl-%d", n),
			BindGroupLayouts: []*wgpu.BindGroupLayout{l},
		})
		if err != nil {
			return d.fail("CreatePipelineLayout", err)
		}
		d.pipeLays[i] = pl
	}
	return nil
}

func (d *Device) releaseLayouts() {
	for i := range d.layouts {
		if d.pipeLays[i] != nil {
			d.pipeLays[i].Release()
			d.pipeLays[i] = nil
		}
		if d.layouts[i] != nil {
			d.layouts[i].Release()
			d.layouts[i] = nil
		}
	}
}

// layoutFor returns the bind group layout of a kernel. The params kernel
// binds dims, block counts and the table like a plain blur kernel.
func layoutFor(kernel string) int {
	if kernel == boxblur.Subblock.String() {
		return subblockLayout
	}
	return plainLayout
}

// pipeline returns the compiled kernel for k, building it on first use.
func (d *Device) pipeline(k pipelineKey) (*wgpu.ComputePipeline, error) {
	return d.pipelines.GetOrCreate(k, func() (*wgpu.ComputePipeline, error) {
		return d.buildPipeline(k)
	})
}

func (d *Device) buildPipeline(k pipelineKey) (*wgpu.ComputePipeline, error) {
	src, err := shaderSource(k)
	if err != nil {
		return nil, err
	}
	desc := &wgpu.ShaderModuleDescriptor{Label: k.String()}
	if d.useSPIRV {
		if desc.SPIRV, err = compileSPIRV(src); err != nil {
			return nil, err
		}
	} else {
		desc.WGSL = src
	}

	module, err := d.device.CreateShaderModule(desc)
	if err != nil {
		return nil, d.fail("CreateShaderModule", err)
	}
	defer module.Release()

	p, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:      k.String(),
		Layout:     d.pipeLays[layoutFor(k.kernel)],
		Module:     module,
		EntryPoint: "main",
	})
	if err != nil {
		return nil, d.fail("CreateComputePipeline", err)
	}
	boxblur.Logger().Debug("gpu: pipeline built", "kernel", k.String(), "spirv", d.useSPIRV)
	return p, nil
}

// uniform returns the dims buffer for m. Calibration revisits the same
// shapes, so recent buffers are kept.
func (d *Device) uniform(m dims) (*wgpu.Buffer, error) {
	return d.uniforms.GetOrCreate(m, func() (*wgpu.Buffer, error) {
		b, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "boxblur-dims",
			Size:  vec4Size,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, d.fail("CreateBuffer", err)
		}
		if err := d.queue.WriteBuffer(b, 0, m.bytes()); err != nil {
			b.Release()
			return nil, d.fail("WriteBuffer", err)
		}
		return b, nil
	})
}

// workgroups returns the dispatch grid of l.
func workgroups(l boxblur.Launch) (x, y uint32) {
	gy := uint32((l.Height + l.Rows - 1) / l.Rows)
	if l.Strategy == boxblur.Subblock {
		return 1, gy
	}
	return uint32((l.Width + l.Blocks - 1) / l.Blocks), gy
}

// Dispatch submits a blur kernel. Invalid launches panic.
func (d *Device) Dispatch(l boxblur.Launch) error {
	if d.closed {
		return boxblur.ErrClosed
	}
	if !l.Strategy.Valid() {
		panic(fmt.Sprintf("gpu: invalid strategy %d", l.Strategy))
	}
	if l.Blocks < 1 || l.Rows < 1 || l.Blocks*l.Rows > d.info.MaxWorkgroupSize {
		panic(fmt.Sprintf("gpu: workgroup %dx%d exceeds %d", l.Blocks, l.Rows, d.info.MaxWorkgroupSize))
	}
	if l.Src == l.Dst {
		panic("gpu: kernel source and destination alias")
	}
	src, dst := d.buffer(l.Src), d.buffer(l.Dst)

	k := strategyKey(l.Strategy, l.Blocks, l.Rows)
	uni, err := d.uniform(dims{
		width:  uint32(l.Width),
		height: uint32(l.Height),
		radius: uint32(l.Radius),
		blocks: uint32(l.Blocks),
	})
	if err != nil {
		return err
	}

	entries := []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: uni, Size: vec4Size},
		{Binding: 1, Buffer: src.buf},
		{Binding: 2, Buffer: dst.buf},
	}
	if l.Strategy == boxblur.Subblock {
		entries = append(entries, wgpu.BindGroupEntry{Binding: 3, Buffer: d.params(l.Params).buf})
	}
	gx, gy := workgroups(l)
	return d.run(k, entries, gx, gy)
}

// run binds entries and submits one compute pass of kernel k over a gx x gy
// grid.
func (d *Device) run(k pipelineKey, entries []wgpu.BindGroupEntry, gx, gy uint32) error {
	pipe, err := d.pipeline(k)
	if err != nil {
		return err
	}
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.String(),
		Layout:  d.layouts[layoutFor(k.kernel)],
		Entries: entries,
	})
	if err != nil {
		return d.fail("CreateBindGroup", err)
	}
	// Destruction is deferred until the submission completes.
	defer bg.Release()

	return d.submit(k.String(), func(enc *wgpu.CommandEncoder) error {
		pass, err := enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: k.String()})
		if err != nil {
			return err
		}
		pass.SetPipeline(pipe)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(gx, gy, 1)
		return pass.End()
	})
}

// submit records commands into a new encoder and submits them.
func (d *Device) submit(label string, record func(enc *wgpu.CommandEncoder) error) error {
	enc, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return d.fail("CreateCommandEncoder", err)
	}
	if err := record(enc); err != nil {
		enc.DiscardEncoding()
		return d.fail("Encode", err)
	}
	cb, err := enc.Finish()
	if err != nil {
		return d.fail("Finish", err)
	}
	if _, err := d.queue.Submit(cb); err != nil {
		return d.fail("Submit", err)
	}
	return nil
}
