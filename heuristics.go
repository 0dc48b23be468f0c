package boxblur

import (
	"fmt"
	"slices"
	"sync"
)

// Entry is the configuration chosen for one radius.
type Entry struct {
	Strategy Strategy
	Blocks   int
}

// Profile maps a radius to the fastest known configuration on some hardware.
type Profile func(radius int) Entry

// Vendor strings reported by compute backends.
const (
	VendorIntel    = "Intel Inc."
	VendorAMD      = "AMD"
	VendorNVIDIA   = "NVIDIA Corporation"
	VendorSoftware = "Software"

	// DefaultVendor is used when the device vendor has no profile.
	DefaultVendor = VendorIntel
)

var (
	profilesMu sync.RWMutex
	profiles   = map[string]Profile{
		VendorIntel:    intelProfile,
		"Intel":        intelProfile,
		VendorAMD:      amdProfile,
		VendorNVIDIA:   nvidiaProfile,
		"NVIDIA":       nvidiaProfile,
		VendorSoftware: softwareProfile,
	}
)

func intelProfile(r int) Entry {
	switch {
	case r == 1:
		return Entry{Manual, 32}
	case r <= 7:
		return Entry{Direct, 32}
	case r <= 87:
		return Entry{Subblock, 256}
	default:
		return Entry{Subblock, 128}
	}
}

func amdProfile(r int) Entry {
	switch {
	case r == 1:
		return Entry{Manual, 256}
	case r <= 14:
		return Entry{Direct, 16}
	case r <= 18:
		return Entry{Direct, 32}
	default:
		return Entry{Subblock, 4}
	}
}

func nvidiaProfile(r int) Entry {
	switch {
	case r == 1:
		return Entry{Manual, 256}
	case r <= 5:
		return Entry{Direct, 128}
	case r <= 9:
		return Entry{Direct, 256}
	default:
		return Entry{Subblock, 256}
	}
}

// softwareProfile favors configurations without barriers on the emulated
// device, where a barrier costs a goroutine handoff.
func softwareProfile(r int) Entry {
	switch {
	case r == 1:
		return Entry{Manual, 16}
	case r <= 16:
		return Entry{Direct, 32}
	default:
		return Entry{Subblock, 16}
	}
}

// RegisterProfile installs p for the exact vendor string. It replaces any
// existing profile.
func RegisterProfile(vendor string, p Profile) {
	if p == nil {
		panic("boxblur: nil profile")
	}
	profilesMu.Lock()
	defer profilesMu.Unlock()
	profiles[vendor] = p
}

// Profiles returns the registered vendor strings, sorted.
func Profiles() []string {
	profilesMu.RLock()
	defer profilesMu.RUnlock()

	names := make([]string, 0, len(profiles))
	for v := range profiles {
		names = append(names, v)
	}
	slices.Sort(names)
	return names
}

// lookupProfile matches vendor exactly. Unknown vendors get the default.
func lookupProfile(vendor string) (Profile, bool) {
	profilesMu.RLock()
	defer profilesMu.RUnlock()

	if p, ok := profiles[vendor]; ok {
		return p, true
	}
	return profiles[DefaultVendor], false
}

// TableProfile turns a table into a profile, so that a calibration result
// can be registered for its vendor.
func TableProfile(t *Table) Profile {
	entries := t.entries
	return func(r int) Entry {
		checkRadius(r)
		return entries[r-1]
	}
}

func checkEntry(e Entry) {
	if !e.Strategy.Valid() {
		panic(fmt.Sprintf("boxblur: invalid strategy %d", e.Strategy))
	}
	if e.Blocks < 1 || e.Blocks > MaxBlocks {
		panic(fmt.Sprintf("boxblur: block count %d out of range [1, %d]", e.Blocks, MaxBlocks))
	}
}
