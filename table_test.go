package boxblur

import (
	"strings"
	"testing"
)

func TestVendorHeuristics(t *testing.T) {
	tests := []struct {
		vendor string
		radius int
		want   Entry
	}{
		{VendorIntel, 1, Entry{Manual, 32}},
		{VendorIntel, 7, Entry{Direct, 32}},
		{VendorIntel, 8, Entry{Subblock, 256}},
		{VendorIntel, 87, Entry{Subblock, 256}},
		{VendorIntel, 88, Entry{Subblock, 128}},
		{VendorAMD, 1, Entry{Manual, 256}},
		{VendorAMD, 14, Entry{Direct, 16}},
		{VendorAMD, 15, Entry{Direct, 32}},
		{VendorAMD, 19, Entry{Subblock, 4}},
		{VendorNVIDIA, 1, Entry{Manual, 256}},
		{VendorNVIDIA, 5, Entry{Direct, 128}},
		{VendorNVIDIA, 9, Entry{Direct, 256}},
		{VendorNVIDIA, 10, Entry{Subblock, 256}},
		{VendorNVIDIA, MaxRadius, Entry{Subblock, 256}},
		{"NVIDIA", 6, Entry{Direct, 256}},
		{VendorSoftware, 1, Entry{Manual, 16}},
		{VendorSoftware, 16, Entry{Direct, 32}},
		{VendorSoftware, 17, Entry{Subblock, 16}},
	}

	for _, tt := range tests {
		s, blocks := NewTable(tt.vendor).Get(tt.radius)
		if got := (Entry{s, blocks}); got != tt.want {
			t.Errorf("NewTable(%q).Get(%d) = %v, want %v", tt.vendor, tt.radius, got, tt.want)
		}
	}
}

func TestUnknownVendorUsesDefault(t *testing.T) {
	def := NewTable(DefaultVendor)
	for _, vendor := range []string{"", "nvidia corporation", "Apple", "AMD "} {
		if got := NewTable(vendor); !got.Equal(def) {
			t.Errorf("NewTable(%q) differs from the default table", vendor)
		}
	}
}

func TestRadiusOneSelectsManual(t *testing.T) {
	for _, vendor := range Profiles() {
		if s, _ := NewTable(vendor).Get(1); s != Manual {
			t.Errorf("NewTable(%q).Get(1) strategy = %v, want manual", vendor, s)
		}
	}
}

func TestManualTable(t *testing.T) {
	table := ManualTable(64, Direct)
	for r := 1; r <= MaxRadius; r++ {
		s, blocks := table.Get(r)
		if s != Direct || blocks != 64 {
			t.Fatalf("Get(%d) = (%v, %d), want (direct, 64)", r, s, blocks)
		}
	}
}

func TestTableGetOutOfRangePanics(t *testing.T) {
	table := NewTable(VendorIntel)
	for _, r := range []int{0, -1, MaxRadius + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Get(%d) did not panic", r)
				}
			}()
			table.Get(r)
		}()
	}
}

func TestManualTableInvalidPanics(t *testing.T) {
	tests := []struct {
		name   string
		blocks int
		s      Strategy
	}{
		{"zero blocks", 0, Direct},
		{"too many blocks", MaxBlocks + 1, Direct},
		{"bad strategy", 16, Strategy(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("ManualTable did not panic")
				}
			}()
			ManualTable(tt.blocks, tt.s)
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range Strategies {
		got, err := ParseStrategy(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStrategy(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStrategy("gaussian"); err == nil {
		t.Error("ParseStrategy(gaussian) error = nil")
	}
}

func TestParseTable(t *testing.T) {
	report := `#
# Box blur performance test
# rad bk nblk  average -time1- -time2- -time3-
#   1  0   16    0.100    0.100   0.100   0.100

# rad bk nblk  average
    1  0   16    0.100
    2  1   64    0.200
   40  2    8    1.500
`
	table, err := ParseTable(strings.NewReader(report), VendorAMD)
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}

	tests := []struct {
		radius int
		want   Entry
	}{
		{1, Entry{Manual, 16}},
		{2, Entry{Direct, 64}},
		{40, Entry{Subblock, 8}},
		{3, Entry{Direct, 16}}, // AMD profile
	}
	for _, tt := range tests {
		s, blocks := table.Get(tt.radius)
		if got := (Entry{s, blocks}); got != tt.want {
			t.Errorf("Get(%d) = %v, want %v", tt.radius, got, tt.want)
		}
	}

	for _, bad := range []string{"1 0\n", "0 1 16\n", "5 fancy 16\n", "5 1 0\n"} {
		if _, err := ParseTable(strings.NewReader(bad), VendorAMD); err == nil {
			t.Errorf("ParseTable(%q) error = nil", bad)
		}
	}
}

func TestTableString(t *testing.T) {
	got := NewTable(VendorIntel).String()
	for _, want := range []string{
		"r   1..  1: manual",
		"r   2..  7: direct",
		"r   8.. 87: subblock  256",
		"r  88..512: subblock  128",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("String() missing %q in:\n%s", want, got)
		}
	}
}

func TestRegisterProfile(t *testing.T) {
	t.Cleanup(func() {
		profilesMu.Lock()
		delete(profiles, "Lab GPU")
		profilesMu.Unlock()
	})

	RegisterProfile("Lab GPU", TableProfile(ManualTable(8, Direct)))
	if s, blocks := NewTable("Lab GPU").Get(300); s != Direct || blocks != 8 {
		t.Errorf("Get(300) = (%v, %d), want (direct, 8)", s, blocks)
	}
}
