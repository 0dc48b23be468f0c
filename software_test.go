package boxblur

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/boxblur/internal/subblock"
)

func TestSoftwareDeviceInfo(t *testing.T) {
	dev := newDevice(t)
	info := dev.Info()

	if info.Backend != "software" {
		t.Errorf("Backend = %q, want software", info.Backend)
	}
	if info.MaxWorkgroupSize != softwareWorkgroup {
		t.Errorf("MaxWorkgroupSize = %d, want %d", info.MaxWorkgroupSize, softwareWorkgroup)
	}
	if !strings.Contains(info.Name, "/") {
		t.Errorf("Name = %q, want os/arch", info.Name)
	}
	for _, s := range Strategies {
		if got := dev.KernelWorkgroupSize(s); got != softwareWorkgroup {
			t.Errorf("KernelWorkgroupSize(%v) = %d", s, got)
		}
	}
}

func TestSoftwareWriteRead(t *testing.T) {
	dev := newDevice(t)
	b, err := dev.NewBuffer("b", 6, 2)
	if err != nil {
		t.Fatal(err)
	}
	if b.Pixels() != 6 || b.Components() != 2 {
		t.Fatalf("buffer is %d x %d, want 6 x 2", b.Pixels(), b.Components())
	}

	src := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if err := dev.Write(b, src); err != nil {
		t.Fatal(err)
	}
	c, _ := dev.NewBuffer("c", 6, 2)
	if err := dev.Copy(c, b); err != nil {
		t.Fatal(err)
	}

	got := make([]float32, len(src))
	if err := dev.Read(got, c); err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if got[i] != src[i] {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], src[i])
		}
	}
}

func TestSoftwareSizeErrors(t *testing.T) {
	dev := newDevice(t)
	b, _ := dev.NewBuffer("b", 4, 1)
	c, _ := dev.NewBuffer("c", 5, 1)

	if err := dev.Write(b, make([]float32, 3)); !errors.Is(err, ErrSize) {
		t.Errorf("Write error = %v, want %v", err, ErrSize)
	}
	if err := dev.Read(make([]float32, 5), b); !errors.Is(err, ErrSize) {
		t.Errorf("Read error = %v, want %v", err, ErrSize)
	}
	if err := dev.Copy(c, b); !errors.Is(err, ErrSize) {
		t.Errorf("Copy error = %v, want %v", err, ErrSize)
	}
	for _, shape := range [][2]int{{0, 1}, {4, 0}, {4, 5}} {
		if _, err := dev.NewBuffer("x", shape[0], shape[1]); !errors.Is(err, ErrSize) {
			t.Errorf("NewBuffer(%d, %d) error = %v, want %v", shape[0], shape[1], err, ErrSize)
		}
	}
}

func TestSoftwareBuildParams(t *testing.T) {
	dev := newDevice(t)
	p, _ := dev.NewParamsBuffer("p")

	blocks := ManualTable(8, Subblock).Blocks()
	if err := dev.BuildParams(p, 100, blocks); err != nil {
		t.Fatal(err)
	}
	if err := dev.Finish(); err != nil {
		t.Fatal(err)
	}

	table := dev.params(p).table
	for _, r := range []int{1, 7, 50, MaxRadius} {
		for b := range 8 {
			got := table[subblock.Index(r, b)]
			if want := subblock.Walk(100, 8, b, r); got != want {
				t.Errorf("params(r=%d, b=%d) = %v, want %v", r, b, got, want)
			}
		}
		if got := table[subblock.Index(r, 8)]; got != subblock.Sentinel {
			t.Errorf("params(r=%d, b=8) = %v, want sentinel", r, got)
		}
	}
}

func TestSoftwareClosed(t *testing.T) {
	dev := NewSoftwareDevice()
	b, _ := dev.NewBuffer("b", 4, 1)
	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := dev.Write(b, make([]float32, 4)); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close error = %v, want %v", err, ErrClosed)
	}
	if err := dev.Copy(b, b); !errors.Is(err, ErrClosed) {
		t.Errorf("Copy after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestSoftwareForeignBufferPanics(t *testing.T) {
	dev := newDevice(t)

	defer func() {
		if recover() == nil {
			t.Error("Write with a foreign buffer did not panic")
		}
	}()
	_ = dev.Write(foreignBuffer{}, nil)
}

type foreignBuffer struct{}

func (foreignBuffer) Label() string   { return "foreign" }
func (foreignBuffer) Pixels() int     { return 1 }
func (foreignBuffer) Components() int { return 1 }
func (foreignBuffer) Release()        {}
