package boxblur

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.table != nil {
		t.Error("default table should be nil")
	}
	if o.vendor != "" {
		t.Errorf("default vendor = %q, want empty", o.vendor)
	}
	if o.logger != nil {
		t.Error("default logger should be nil")
	}
}

func TestWithTableOverridesVendor(t *testing.T) {
	dev := newDevice(t)
	table := ManualTable(8, Direct)
	e := newEngine(t, dev, 16, 16, 1, WithVendor(VendorNVIDIA), WithTable(table))

	if e.Table() != table {
		t.Error("WithTable was not used")
	}
}

func TestEngineDefaultTableFromDevice(t *testing.T) {
	dev := newDevice(t)
	e := newEngine(t, dev, 16, 16, 1)

	if got := e.Table().Vendor(); got != VendorSoftware {
		t.Errorf("Table().Vendor() = %q, want %q", got, VendorSoftware)
	}
	if !e.Table().Equal(NewTable(VendorSoftware)) {
		t.Error("default table differs from the software profile")
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dev := newDevice(t)
	e := newEngine(t, dev, 16, 16, 1, WithLogger(l))
	if err := e.SetTable(ManualTable(4, Subblock)); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "parameter tables rebuilt") {
		t.Errorf("engine logger not used, got %q", buf.String())
	}
}
