package boxblur

import (
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"
)

// DeviceInfo identifies a compute device.
type DeviceInfo struct {
	// Vendor is the vendor string used as the heuristics key.
	Vendor string
	// Name is the device name.
	Name string
	// Backend names the implementation, such as "software" or "vulkan".
	Backend string
	// MaxWorkgroupSize is the largest number of threads in a workgroup
	// along one dimension.
	MaxWorkgroupSize int
}

// Buffer is a device-resident array of pixels.
type Buffer interface {
	Label() string
	// Pixels is the number of pixels the buffer holds.
	Pixels() int
	// Components is the number of floats per pixel.
	Components() int
	Release()
}

// ParamsBuffer is a device-resident subblock parameter table.
type ParamsBuffer interface {
	Label() string
	Release()
}

// Launch describes one blur kernel invocation.
type Launch struct {
	Strategy Strategy
	Src, Dst Buffer

	// Params is the table for Width. Subblock only.
	Params ParamsBuffer

	// Width and Height are the source extent. Direct and Subblock write a
	// Height x Width result.
	Width, Height int
	Radius        int

	// Blocks and Rows are the workgroup extent.
	Blocks, Rows int
}

// Device executes blur kernels. Implementations keep a single in-order
// queue: Write and Read block, everything else is enqueued and runs after
// all previously enqueued work. Device methods are not safe for concurrent
// use.
type Device interface {
	Info() DeviceInfo

	// KernelWorkgroupSize is the number of threads a workgroup of the
	// strategy's kernel runs with. Block counts must divide it.
	KernelWorkgroupSize(s Strategy) int

	NewBuffer(label string, pixels, components int) (Buffer, error)
	NewParamsBuffer(label string) (ParamsBuffer, error)

	// Write uploads host floats into dst and waits for completion.
	Write(dst Buffer, src []float32) error
	// Read waits for queued work, then downloads src into dst.
	Read(dst []float32, src Buffer) error

	// Copy enqueues a buffer-to-buffer copy.
	Copy(dst, src Buffer) error
	// BuildParams enqueues a rebuild of p for rows of width pixels, with
	// the block count of every radius taken from blocks.
	BuildParams(p ParamsBuffer, width int, blocks *[MaxRadius]int) error
	// Dispatch enqueues a kernel.
	Dispatch(l Launch) error

	// Finish waits until all enqueued work has completed.
	Finish() error
	Close() error
}

// Opener opens a device.
type Opener func() (Device, error)

var devices = gpucontext.NewRegistry[Opener](
	gpucontext.WithPriority("gpu", "software"),
)

func init() {
	RegisterDevice("software", func() (Device, error) { return NewSoftwareDevice(), nil })
}

// RegisterDevice makes a device implementation available under name.
// Device packages call it from init.
func RegisterDevice(name string, open Opener) {
	if open == nil {
		panic("boxblur: nil device opener")
	}
	devices.Register(name, func() Opener { return open })
}

// Devices returns the names of the registered devices, sorted.
func Devices() []string {
	names := devices.Available()
	slices.Sort(names)
	return names
}

// OpenDevice opens the device registered under name. An empty name selects
// the highest-priority device registered. A device that fails to open is
// reported, never replaced by another one.
func OpenDevice(name string) (Device, error) {
	var open Opener
	if name == "" {
		name = devices.BestName()
		open = devices.Best()
	} else {
		open = devices.Get(name)
	}
	if open == nil {
		return nil, fmt.Errorf("%w: %q not registered", ErrNoDevice, name)
	}

	dev, err := open()
	if err != nil {
		return nil, err
	}
	info := dev.Info()
	Logger().Info("boxblur: device opened",
		"device", name, "vendor", info.Vendor, "name", info.Name, "backend", info.Backend)
	return dev, nil
}
