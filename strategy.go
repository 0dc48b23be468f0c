package boxblur

import (
	"fmt"

	"github.com/gogpu/boxblur/internal/subblock"
)

const (
	// MaxRadius is the largest blur radius.
	MaxRadius = subblock.MaxRadius

	// MaxBlocks is the largest block count a strategy may use.
	MaxBlocks = subblock.MaxBlocks
)

// Strategy selects the kernel used for one blur pass.
type Strategy uint8

const (
	// Manual sums the 3x3 neighborhood directly. Radius 1 only.
	Manual Strategy = iota

	// Direct sums the 2r+1 pixels of every window.
	Direct

	// Subblock combines precomputed block sums with loose pixels.
	Subblock
)

// Strategies lists every strategy in calibration order.
var Strategies = [...]Strategy{Manual, Direct, Subblock}

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Manual:
		return "manual"
	case Direct:
		return "direct"
	case Subblock:
		return "subblock"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the defined strategies.
func (s Strategy) Valid() bool {
	return s <= Subblock
}

// ParseStrategy parses a strategy name or its numeric code.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "manual", "0":
		return Manual, nil
	case "direct", "1":
		return Direct, nil
	case "subblock", "2":
		return Subblock, nil
	}
	return 0, fmt.Errorf("boxblur: unknown strategy %q", name)
}

func checkRadius(radius int) {
	if radius < 1 || radius > MaxRadius {
		panic(fmt.Sprintf("boxblur: radius %d out of range [1, %d]", radius, MaxRadius))
	}
}
