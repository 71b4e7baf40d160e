// Package veil provides a managed runtime for general-purpose GPU compute
// kernels embedded inside an interactive rendering application.
//
// # Overview
//
// veil wraps a native compute API behind a small driver boundary and manages
// the lifecycle of everything that is expensive or dangerous to leak: compute
// contexts, command queues, compiled programs, and resolved kernels. Compute
// source can be hot-reloaded at any time while the host keeps rendering
// frames; a broken edit never takes a running application down.
//
// # Quick Start
//
//	import (
//	    "github.com/synth07/Veil/compute"
//
//	    _ "github.com/synth07/Veil/backend/wgpu" // enables the wgpu driver
//	)
//
//	drv := compute.DefaultDriver()
//	devices, _ := drv.Devices()
//
//	env, err := compute.New(drv, devices[0])
//	if err != nil {
//	    // no usable device
//	}
//	defer env.Free()
//
//	env.LoadProgram("blur", blurSource)
//	if k := env.Kernel("blur", "main"); k != nil {
//	    // hand k.Handle() to an enqueue helper
//	}
//
// # Architecture
//
// The library is organized into:
//   - compute: environment, program/kernel caches, event dispatch, driver boundary
//   - compute/computetest: in-memory driver for tests and driverless embedding
//   - backend/wgpu: production driver on gogpu/wgpu with naga-compiled WGSL
//
// # Logging
//
// veil produces no log output by default. Call [SetLogger] to enable it.
package veil

// Version information
const (
	// Version is the current version of the library
	Version = "0.2.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 2

	// VersionPatch is the patch version
	VersionPatch = 0
)
