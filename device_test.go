package boxblur

import (
	"errors"
	"fmt"
	"slices"
	"testing"
)

func TestSoftwareDeviceRegistered(t *testing.T) {
	if !slices.Contains(Devices(), "software") {
		t.Fatalf("Devices() = %v, want software registered", Devices())
	}

	dev, err := OpenDevice("software")
	if err != nil {
		t.Fatalf("OpenDevice(software) error = %v", err)
	}
	defer dev.Close()

	if got := dev.Info().Vendor; got != VendorSoftware {
		t.Errorf("Info().Vendor = %q, want %q", got, VendorSoftware)
	}
}

func TestOpenDeviceUnknown(t *testing.T) {
	_, err := OpenDevice("quantum")
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("OpenDevice(quantum) error = %v, want %v", err, ErrNoDevice)
	}
}

func TestOpenDeviceBest(t *testing.T) {
	dev, err := OpenDevice("")
	if err != nil {
		// The highest-priority device may be a GPU that is absent here.
		var derr *DeviceError
		if errors.As(err, &derr) {
			t.Skipf("best device unavailable: %v", err)
		}
		t.Fatalf("OpenDevice(\"\") error = %v", err)
	}
	defer dev.Close()
	if dev.Info().MaxWorkgroupSize < minCalibrationBlocks {
		t.Errorf("MaxWorkgroupSize = %d", dev.Info().MaxWorkgroupSize)
	}
}

func TestRegisterDeviceOpenerError(t *testing.T) {
	boom := &DeviceError{Backend: "test", Op: "RequestAdapter", Err: errors.New("no adapter")}
	RegisterDevice("test-failing", func() (Device, error) { return nil, boom })
	t.Cleanup(func() { devices.Unregister("test-failing") })

	_, err := OpenDevice("test-failing")
	if !errors.Is(err, boom) {
		t.Errorf("OpenDevice error = %v, want %v", err, boom)
	}
}

func TestRegisterDeviceNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("RegisterDevice(nil) did not panic")
		}
	}()
	RegisterDevice("nil", nil)
}

func TestDeviceError(t *testing.T) {
	base := errors.New("lost")

	tests := []struct {
		err  *DeviceError
		want string
	}{
		{&DeviceError{Backend: "vulkan", Op: "Submit", Err: base}, "boxblur: vulkan: Submit failed: lost"},
		{&DeviceError{Backend: "vulkan", Op: "Map", Code: 3, Err: base}, "boxblur: vulkan: Map failed (code 3): lost"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
		if !errors.Is(tt.err, base) {
			t.Error("DeviceError does not unwrap to its cause")
		}
	}

	if NewDeviceError("software", "Finish", nil) != nil {
		t.Error("NewDeviceError(nil) != nil")
	}
}

type statusError int32

func (e statusError) Error() string { return fmt.Sprintf("status %d", int32(e)) }
func (e statusError) Code() int32   { return int32(e) }

func TestNewDeviceErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{errors.New("lost"), 0},
		{statusError(-2005270523), -2005270523},
		{fmt.Errorf("present: %w", statusError(7)), 7},
	}
	for _, tt := range tests {
		var derr *DeviceError
		if !errors.As(NewDeviceError("dx12", "Submit", tt.err), &derr) {
			t.Fatalf("NewDeviceError(%v) is not a *DeviceError", tt.err)
		}
		if derr.Code != tt.code {
			t.Errorf("NewDeviceError(%v).Code = %d, want %d", tt.err, derr.Code, tt.code)
		}
	}
}
