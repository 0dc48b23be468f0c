package boxblur

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table maps every radius in [1, MaxRadius] to a strategy and block count.
// A Table is immutable once built and safe to share.
type Table struct {
	vendor  string
	entries [MaxRadius]Entry
}

// NewTable builds the table for a device vendor. The vendor string must match
// a registered profile exactly; any other vendor silently gets the profile of
// DefaultVendor.
func NewTable(vendor string) *Table {
	p, ok := lookupProfile(vendor)
	if !ok {
		Logger().Debug("boxblur: no heuristics for vendor, using default",
			"vendor", vendor, "default", DefaultVendor)
	}
	return fromProfile(vendor, p)
}

func fromProfile(vendor string, p Profile) *Table {
	t := &Table{vendor: vendor}
	for r := 1; r <= MaxRadius; r++ {
		e := p(r)
		checkEntry(e)
		t.entries[r-1] = e
	}
	return t
}

// ManualTable returns a table that uses the same configuration at every
// radius. The calibration harness uses it to time a single combination.
func ManualTable(blocks int, s Strategy) *Table {
	e := Entry{Strategy: s, Blocks: blocks}
	checkEntry(e)

	t := &Table{vendor: "manual"}
	for i := range t.entries {
		t.entries[i] = e
	}
	return t
}

// Get returns the configuration for radius. It panics if radius is outside
// [1, MaxRadius].
func (t *Table) Get(radius int) (Strategy, int) {
	checkRadius(radius)
	e := t.entries[radius-1]
	return e.Strategy, e.Blocks
}

// Vendor returns the vendor string the table was built for.
func (t *Table) Vendor() string { return t.vendor }

// Blocks returns the block count of every radius, indexed by radius-1.
func (t *Table) Blocks() *[MaxRadius]int {
	var b [MaxRadius]int
	for i, e := range t.entries {
		b[i] = e.Blocks
	}
	return &b
}

// Equal reports whether two tables choose the same configuration everywhere.
func (t *Table) Equal(o *Table) bool {
	return t.entries == o.entries
}

// String lists runs of radii that share a configuration.
func (t *Table) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "vendor %q\n", t.vendor)
	start := 0
	for i := 1; i <= MaxRadius; i++ {
		if i < MaxRadius && t.entries[i] == t.entries[start] {
			continue
		}
		e := t.entries[start]
		fmt.Fprintf(&sb, "  r %3d..%3d: %-8s %4d blocks\n", start+1, i, e.Strategy, e.Blocks)
		start = i
	}
	return sb.String()
}

// ParseTable reads the summary section of a calibration report. Lines
// starting with '#' are ignored; every other non-blank line must read
// "radius strategy blocks [time]". Radii the report does not mention keep the
// configuration of the vendor's profile.
func ParseTable(r io.Reader, vendor string) (*Table, error) {
	t := NewTable(vendor)
	t.vendor = vendor

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f := strings.Fields(text)
		if len(f) < 3 {
			return nil, fmt.Errorf("boxblur: table line %d: want radius, strategy and blocks", line)
		}
		radius, err := strconv.Atoi(f[0])
		if err != nil || radius < 1 || radius > MaxRadius {
			return nil, fmt.Errorf("boxblur: table line %d: bad radius %q", line, f[0])
		}
		s, err := ParseStrategy(f[1])
		if err != nil {
			return nil, fmt.Errorf("boxblur: table line %d: %w", line, err)
		}
		blocks, err := strconv.Atoi(f[2])
		if err != nil || blocks < 1 || blocks > MaxBlocks {
			return nil, fmt.Errorf("boxblur: table line %d: bad block count %q", line, f[2])
		}
		t.entries[radius-1] = Entry{Strategy: s, Blocks: blocks}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("boxblur: reading table: %w", err)
	}
	return t, nil
}
