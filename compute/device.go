package compute

import "github.com/gogpu/gputypes"

// Handle is an opaque reference to a native compute object (context, queue,
// program, kernel, or event). Handles are minted and interpreted by one
// Driver; passing a handle to a different driver is undefined.
type Handle uint64

// NilHandle is the zero handle. Drivers never mint it for a live object.
const NilHandle Handle = 0

// DeviceInfo identifies one compute device on one platform, together with
// the capability flags the environment needs at construction time.
//
// DeviceInfo values are produced by a driver's device enumeration and are
// read-only afterwards; the environment never discovers devices itself.
type DeviceInfo struct {
	// Name is the human-readable device name reported by the driver.
	Name string

	// Type classifies the device (discrete GPU, integrated GPU, CPU...).
	Type gputypes.DeviceType

	// Platform is the driver handle for the platform the device lives on.
	Platform Handle

	// ID is the driver handle for the device itself.
	ID Handle

	// SupportsEventCallbacks reports whether the native runtime can invoke
	// completion callbacks on its own threads. It decides which event
	// dispatcher variant an environment constructed for this device uses;
	// the decision is made once and never re-evaluated.
	SupportsEventCallbacks bool
}
