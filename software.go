package boxblur

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"

	"github.com/gogpu/boxblur/internal/compute"
	"github.com/gogpu/boxblur/internal/kernel"
	"github.com/gogpu/boxblur/internal/parallel"
	"github.com/gogpu/boxblur/internal/subblock"
)

// softwareWorkgroup is the workgroup size of the emulated device.
const softwareWorkgroup = 256

// SoftwareDevice runs the blur kernels on goroutines. Workgroups are spread
// over a work-stealing pool; threads of a workgroup that uses barriers run on
// their own goroutines.
//
// SoftwareDevice is an explicit choice of compute backend, not a fallback
// for a failed GPU.
type SoftwareDevice struct {
	pool  *parallel.WorkerPool
	queue *compute.Queue
	info  DeviceInfo
}

// NewSoftwareDevice creates an emulated device with one worker per
// GOMAXPROCS.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{
		pool:  parallel.NewWorkerPool(0),
		queue: compute.NewQueue(64),
		info: DeviceInfo{
			Vendor:           VendorSoftware,
			Name:             cpuName(),
			Backend:          "software",
			MaxWorkgroupSize: softwareWorkgroup,
		},
	}
}

// cpuName describes the host CPU by the vector features the Go runtime
// detected.
func cpuName() string {
	var feats []string
	switch runtime.GOARCH {
	case "amd64", "386":
		for _, f := range []struct {
			name string
			ok   bool
		}{
			{"avx512f", cpu.X86.HasAVX512F},
			{"avx2", cpu.X86.HasAVX2},
			{"fma", cpu.X86.HasFMA},
			{"sse4.1", cpu.X86.HasSSE41},
		} {
			if f.ok {
				feats = append(feats, f.name)
			}
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			feats = append(feats, "asimd")
		}
		if cpu.ARM64.HasSVE {
			feats = append(feats, "sve")
		}
	}

	name := fmt.Sprintf("%s/%s x%d", runtime.GOOS, runtime.GOARCH, runtime.GOMAXPROCS(0))
	if len(feats) > 0 {
		name += " (" + strings.Join(feats, " ") + ")"
	}
	return name
}

// Info returns the device identification.
func (d *SoftwareDevice) Info() DeviceInfo { return d.info }

// KernelWorkgroupSize returns the workgroup size of every kernel.
func (d *SoftwareDevice) KernelWorkgroupSize(s Strategy) int {
	switch s {
	case Manual, Direct, Subblock:
		return softwareWorkgroup
	}
	panic(fmt.Sprintf("boxblur: invalid strategy %d", s))
}

type softwareBuffer struct {
	label      string
	components int
	data       []float32
}

func (b *softwareBuffer) Label() string   { return b.label }
func (b *softwareBuffer) Pixels() int     { return len(b.data) / b.components }
func (b *softwareBuffer) Components() int { return b.components }
func (b *softwareBuffer) Release()        { b.data = nil }

type softwareParams struct {
	label string
	table []subblock.Params
}

func (p *softwareParams) Label() string { return p.label }
func (p *softwareParams) Release()      { p.table = nil }

// NewBuffer allocates a zeroed buffer.
func (d *SoftwareDevice) NewBuffer(label string, pixels, components int) (Buffer, error) {
	if pixels < 1 || components < 1 || components > 4 {
		return nil, fmt.Errorf("%w: buffer %q of %d pixels x %d components", ErrSize, label, pixels, components)
	}
	return &softwareBuffer{label: label, components: components, data: make([]float32, pixels*components)}, nil
}

// NewParamsBuffer allocates a parameter table filled with sentinels.
func (d *SoftwareDevice) NewParamsBuffer(label string) (ParamsBuffer, error) {
	t := make([]subblock.Params, subblock.TableSize)
	for i := range t {
		t[i] = subblock.Sentinel
	}
	return &softwareParams{label: label, table: t}, nil
}

func (d *SoftwareDevice) buffer(b Buffer) *softwareBuffer {
	sb, ok := b.(*softwareBuffer)
	if !ok {
		panic(fmt.Sprintf("boxblur: buffer %q does not belong to the software device", b.Label()))
	}
	return sb
}

func (d *SoftwareDevice) params(p ParamsBuffer) *softwareParams {
	sp, ok := p.(*softwareParams)
	if !ok {
		panic(fmt.Sprintf("boxblur: params %q do not belong to the software device", p.Label()))
	}
	return sp
}

// Write copies src into dst after all queued work.
func (d *SoftwareDevice) Write(dst Buffer, src []float32) error {
	b := d.buffer(dst)
	if len(src) != len(b.data) {
		return fmt.Errorf("%w: writing %d floats into %q of %d", ErrSize, len(src), b.label, len(b.data))
	}
	return d.wrap("Write", d.queue.Do("write "+b.label, func() error {
		copy(b.data, src)
		return nil
	}))
}

// Read copies src into dst after all queued work.
func (d *SoftwareDevice) Read(dst []float32, src Buffer) error {
	b := d.buffer(src)
	if len(dst) != len(b.data) {
		return fmt.Errorf("%w: reading %q of %d floats into %d", ErrSize, b.label, len(b.data), len(dst))
	}
	return d.wrap("Read", d.queue.Do("read "+b.label, func() error {
		copy(dst, b.data)
		return nil
	}))
}

// Copy enqueues a copy of src into dst.
func (d *SoftwareDevice) Copy(dst, src Buffer) error {
	db, sb := d.buffer(dst), d.buffer(src)
	if len(db.data) != len(sb.data) {
		return fmt.Errorf("%w: copying %q into %q", ErrSize, sb.label, db.label)
	}
	return d.wrap("Copy", d.queue.Enqueue("copy", func() error {
		copy(db.data, sb.data)
		return nil
	}))
}

// BuildParams enqueues the parameter table kernel.
func (d *SoftwareDevice) BuildParams(p ParamsBuffer, width int, blocks *[MaxRadius]int) error {
	sp := d.params(p)
	bc := *blocks
	l := kernel.BuildParams(sp.table, width, &bc)
	return d.enqueue(l)
}

// Dispatch enqueues a blur kernel. Invalid launches panic.
func (d *SoftwareDevice) Dispatch(l Launch) error {
	args := kernel.Args{
		Src:        d.buffer(l.Src).data,
		Dst:        d.buffer(l.Dst).data,
		Width:      l.Width,
		Height:     l.Height,
		Components: l.Src.Components(),
		Radius:     l.Radius,
		Workgroup:  compute.Dim{X: l.Blocks, Y: l.Rows},
	}

	var cl *compute.Launch
	switch l.Strategy {
	case Manual:
		cl = kernel.Manual(args)
	case Direct:
		cl = kernel.Direct(args)
	case Subblock:
		args.Params = d.params(l.Params).table
		cl = kernel.Subblock(args)
	default:
		panic(fmt.Sprintf("boxblur: invalid strategy %d", l.Strategy))
	}
	return d.enqueue(cl)
}

func (d *SoftwareDevice) enqueue(l *compute.Launch) error {
	if err := l.Validate(softwareWorkgroup); err != nil {
		panic("boxblur: " + err.Error())
	}
	return d.wrap("Dispatch", d.queue.Enqueue(l.Name, func() error {
		return compute.Run(d.pool, l)
	}))
}

// Finish waits for the queue to drain and returns the first kernel failure.
func (d *SoftwareDevice) Finish() error {
	return d.wrap("Finish", d.queue.Finish())
}

// Close drains the queue and stops the workers.
func (d *SoftwareDevice) Close() error {
	err := d.queue.Close()
	d.pool.Close()
	return d.wrap("Close", err)
}

func (d *SoftwareDevice) wrap(op string, err error) error {
	if errors.Is(err, compute.ErrQueueClosed) {
		return ErrClosed
	}
	return NewDeviceError(d.info.Backend, op, err)
}
