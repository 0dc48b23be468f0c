//go:build !nogpu

// Package gpu runs the box-blur kernels on a WebGPU device.
//
// Importing the package registers the device under the name "gpu", which
// takes priority over the software device in boxblur.OpenDevice:
//
//	import _ "github.com/gogpu/boxblur/gpu"
//
// The HAL backends must be registered separately, usually with
//
//	import _ "github.com/gogpu/wgpu/hal/allbackends"
//
// A GPU that cannot be opened is reported as a *boxblur.DeviceError. The
// software device is never substituted for it.
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/boxblur"
	"github.com/gogpu/boxblur/internal/cache"
)

func init() {
	boxblur.RegisterDevice("gpu", func() (boxblur.Device, error) {
		d, err := NewDevice()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// maxWorkgroup caps the kernel workgroup size. The subblock kernel keeps two
// vec4 arrays of this many entries in workgroup memory.
const maxWorkgroup = 256

// Cache limits. A calibration sweep builds one pipeline per strategy and
// block count and one uniform block per radius.
const (
	maxPipelines = 64
	maxUniforms  = 1024
)

// releaser is a GPU object whose release waits for in-flight work.
type releaser interface{ Release() }

// Device is a boxblur.Device backed by a WebGPU compute queue.
//
// Kernels are submitted as soon as they are enqueued and execute in order.
// Device is not safe for concurrent use.
type Device struct {
	instance *wgpu.Instance // nil for a shared device
	adapter  *wgpu.Adapter  // nil for a shared device
	device   *wgpu.Device
	queue    *wgpu.Queue
	shared   bool
	closed   bool

	info     boxblur.DeviceInfo
	backend  gputypes.Backend
	limits   gputypes.Limits
	useSPIRV bool

	layouts   [2]*wgpu.BindGroupLayout
	pipeLays  [2]*wgpu.PipelineLayout
	pipelines *cache.Cache[pipelineKey, *wgpu.ComputePipeline]
	uniforms  *cache.Cache[dims, *wgpu.Buffer]
	counts    *wgpu.Buffer // block counts read by the params kernel

	// retired holds evicted objects that submitted work may still use.
	retired []releaser
}

var _ boxblur.Device = (*Device)(nil)

// NewDevice opens the high-performance adapter and creates a device on it.
func NewDevice() (*Device, error) {
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, boxblur.NewDeviceError("webgpu", "CreateInstance", err)
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, boxblur.NewDeviceError("webgpu", "RequestAdapter",
			fmt.Errorf("%w: %w", boxblur.ErrNoDevice, err))
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "boxblur"})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, boxblur.NewDeviceError(adapter.Info().Backend.String(), "RequestDevice", err)
	}

	d, err := newDevice(device, device.Queue(), adapter.Info())
	if err != nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, err
	}
	d.instance, d.adapter = instance, adapter
	return d, nil
}

// NewDeviceFromProvider runs the kernels on a device owned by the host
// application, such as a gogpu window. Close releases only the resources
// the boxblur device created.
func NewDeviceFromProvider(p gpucontext.DeviceProvider) (*Device, error) {
	device, ok := p.Device().(*wgpu.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpu: provider device is %T, want *wgpu.Device", p.Device())
	}
	queue, ok := p.Queue().(*wgpu.Queue)
	if !ok || queue == nil {
		queue = device.Queue()
	}

	var info gputypes.AdapterInfo
	if a, ok := p.Adapter().(*wgpu.Adapter); ok && a != nil {
		info = a.Info()
	} else {
		pi := p.AdapterInfo()
		info.Name = pi.Name
		if pi.Type == gpucontext.AdapterTypeSoftware {
			info.DeviceType = gputypes.DeviceTypeCPU
		}
	}

	d, err := newDevice(device, queue, info)
	if err != nil {
		return nil, err
	}
	d.shared = true
	return d, nil
}

func newDevice(device *wgpu.Device, queue *wgpu.Queue, ai gputypes.AdapterInfo) (*Device, error) {
	limits := device.Limits()
	d := &Device{
		device:   device,
		queue:    queue,
		backend:  ai.Backend,
		limits:   limits,
		useSPIRV: ai.Backend == gputypes.BackendVulkan,
	}
	d.pipelines = cache.New(maxPipelines, func(_ pipelineKey, p *wgpu.ComputePipeline) {
		d.retired = append(d.retired, p)
	})
	d.uniforms = cache.New(maxUniforms, func(_ dims, b *wgpu.Buffer) {
		d.retired = append(d.retired, b)
	})
	d.info = boxblur.DeviceInfo{
		Vendor:           vendorName(ai),
		Name:             ai.Name,
		Backend:          ai.Backend.String(),
		MaxWorkgroupSize: workgroupSize(limits),
	}
	if d.info.MaxWorkgroupSize < 1 {
		return nil, d.fail("Limits", fmt.Errorf("no usable workgroup size in %+v", limits))
	}

	if err := d.createLayouts(); err != nil {
		d.releaseLayouts()
		return nil, err
	}
	boxblur.Logger().Debug("gpu: device created",
		"vendor", d.info.Vendor, "name", d.info.Name, "backend", d.info.Backend,
		"workgroup", d.info.MaxWorkgroupSize, "spirv", d.useSPIRV)
	return d, nil
}

// workgroupSize returns the largest power of two the device can run as a
// workgroup of either kernel shape, or 0.
func workgroupSize(l gputypes.Limits) int {
	n := min(int(l.MaxComputeWorkgroupSizeX), int(l.MaxComputeWorkgroupSizeY),
		int(l.MaxComputeInvocationsPerWorkgroup), maxWorkgroup)
	if n < 1 {
		return 0
	}
	p := 1
	for p*2 <= n {
		p *= 2
	}
	for p > 0 && 2*p*vec4Size > int(l.MaxComputeWorkgroupStorageSize) {
		p /= 2
	}
	return p
}

// Info returns the device identification.
func (d *Device) Info() boxblur.DeviceInfo { return d.info }

// KernelWorkgroupSize returns the workgroup size every kernel is built for.
func (d *Device) KernelWorkgroupSize(s boxblur.Strategy) int {
	if !s.Valid() {
		panic(fmt.Sprintf("gpu: invalid strategy %d", s))
	}
	return d.info.MaxWorkgroupSize
}

// Finish waits for all submitted work.
func (d *Device) Finish() error {
	if d.closed {
		return boxblur.ErrClosed
	}
	if err := d.device.WaitIdle(); err != nil {
		return d.fail("WaitIdle", err)
	}
	d.releaseRetired()
	return nil
}

func (d *Device) releaseRetired() {
	for i, r := range d.retired {
		r.Release()
		d.retired[i] = nil
	}
	d.retired = d.retired[:0]
}

// Close waits for submitted work and releases the device's resources. A
// device from NewDeviceFromProvider is left open.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	err := d.fail("WaitIdle", d.device.WaitIdle())
	d.closed = true

	d.pipelines.Clear()
	d.uniforms.Clear()
	d.releaseRetired()
	if d.counts != nil {
		d.counts.Release()
		d.counts = nil
	}
	d.releaseLayouts()

	if !d.shared {
		d.device.Release()
		d.adapter.Release()
		d.instance.Release()
	}
	return err
}

// fail wraps a backend error. It returns nil if err is nil.
func (d *Device) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, wgpu.ErrReleased) {
		return boxblur.ErrClosed
	}
	return boxblur.NewDeviceError(d.backend.String(), op, err)
}
