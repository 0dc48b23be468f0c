//go:build !nogpu

package gpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/boxblur"
)

// PCI vendor IDs of the vendors with tuned heuristics.
const (
	pciNVIDIA  = 0x10de
	pciAMD     = 0x1002
	pciAMDAlt  = 0x1022
	pciIntel   = 0x8086
	pciUnknown = 0
)

// vendorName maps adapter info to the vendor key of the heuristics table.
// Adapters the table does not know keep their reported name and get the
// default heuristics.
func vendorName(ai gputypes.AdapterInfo) string {
	if ai.DeviceType == gputypes.DeviceTypeCPU {
		return boxblur.VendorSoftware
	}
	switch ai.VendorID {
	case pciNVIDIA:
		return boxblur.VendorNVIDIA
	case pciAMD, pciAMDAlt:
		return boxblur.VendorAMD
	case pciIntel:
		return boxblur.VendorIntel
	case pciUnknown:
	default:
		if ai.Vendor == "" {
			return fmt.Sprintf("0x%04x", ai.VendorID)
		}
	}

	// Backends without a PCI ID, such as GLES.
	v := strings.ToLower(ai.Vendor + " " + ai.Name)
	switch {
	case strings.Contains(v, "nvidia"):
		return boxblur.VendorNVIDIA
	case strings.Contains(v, "amd"), strings.Contains(v, "radeon"), strings.Contains(v, "ati "):
		return boxblur.VendorAMD
	case strings.Contains(v, "intel"):
		return boxblur.VendorIntel
	}
	return ai.Vendor
}
