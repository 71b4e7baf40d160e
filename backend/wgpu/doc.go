// Package wgpu provides the production compute driver on gogpu/wgpu.
//
// It uses the gogpu/wgpu pure Go HAL, which supports Vulkan, Metal, and
// DX12 backends depending on the platform. Programs are WGSL sources
// compiled through gogpu/naga to SPIR-V and uploaded as HAL shader
// modules; kernels are compute pipelines resolved per entry point; queue
// synchronization and event status are built on HAL fences.
//
// # Registration and Selection
//
// The driver is automatically registered when this package is imported:
//
//	import _ "github.com/synth07/Veil/backend/wgpu"
//
// After that, compute.DefaultDriver() prefers it and Devices enumerates
// the usable adapters:
//
//	drv := compute.DefaultDriver()
//	devices, err := drv.Devices()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	env, err := compute.New(drv, devices[0])
//
// # Device Sharing
//
// A host that already owns a GPU device (for example a gogpu window) can
// lend it to the driver through UseDeviceProvider instead of letting the
// driver open its own adapter. Devices then reports the shared device,
// contexts run on it, and the driver never destroys it.
//
// # Event Callbacks
//
// The HAL has no native completion-callback primitive, so every device
// this driver reports has SupportsEventCallbacks=false and environments
// built on it poll event status instead. SetEventCallback always returns
// compute.ErrCallbacksUnsupported.
package wgpu
