package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/synth07/Veil/compute"
)

// GPUInfo describes the adapter behind an enumerated device handle.
type GPUInfo struct {
	// Name is the adapter name (e.g. "NVIDIA GeForce RTX 3080").
	Name string
	// DeviceType classifies the adapter (discrete, integrated, ...).
	DeviceType gputypes.DeviceType
}

// String returns a human-readable description of the GPU.
func (g *GPUInfo) String() string {
	return fmt.Sprintf("%s (%v)", g.Name, g.DeviceType)
}

// GPUInfo returns adapter details for a device handle reported by Devices.
// The second result is false for unknown handles and for the shared device,
// whose adapter the lender does not expose.
func (d *Driver) GPUInfo(device compute.Handle) (*GPUInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx, ok := d.byID[device]
	if !ok {
		return nil, false
	}
	return &GPUInfo{
		Name:       d.adapters[idx].Info.Name,
		DeviceType: d.adapters[idx].Info.DeviceType,
	}, true
}

// devicePreference orders device types for enumeration: discrete GPUs
// first, integrated second, everything else after.
func devicePreference(dt gputypes.DeviceType) int {
	switch dt {
	case gputypes.DeviceTypeDiscreteGPU:
		return 0
	case gputypes.DeviceTypeIntegratedGPU:
		return 1
	default:
		return 2
	}
}
