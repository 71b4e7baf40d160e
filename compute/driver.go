package compute

// Driver is the boundary to a native compute API. Every native call the
// environment makes goes through this interface, which keeps the cache and
// lifecycle logic independent of the underlying runtime (wgpu, a test
// double, ...).
//
// Handle ownership follows the native model: whoever receives a handle from
// a Create/Build call must release it through the matching Release call
// exactly once. Release calls must tolerate being invoked with handles the
// driver has already forgotten; they have no return value because teardown
// never propagates errors.
type Driver interface {
	// Name returns the driver identifier (e.g. "wgpu", "test").
	Name() string

	// Devices enumerates the compute devices this driver can open.
	Devices() ([]DeviceInfo, error)

	// CreateContext creates a compute context bound to the given
	// platform/device pair. notify receives native diagnostic messages and
	// may be invoked from driver-owned threads for the lifetime of the
	// context; it must not panic. The callback's native registration is
	// released together with the context.
	CreateContext(platform, device Handle, notify func(message string)) (Handle, error)

	// ReleaseContext releases a context created by CreateContext.
	ReleaseContext(ctx Handle)

	// CreateQueue creates an ordered command queue on the context/device
	// pair.
	CreateQueue(ctx, device Handle) (Handle, error)

	// ReleaseQueue releases a queue created by CreateQueue.
	ReleaseQueue(queue Handle)

	// BuildProgram compiles source into a program object for the device.
	// On failure no handle is retained by the driver and the returned error
	// carries the build log as a *CompileError where one is available.
	BuildProgram(ctx, device Handle, source string) (Handle, error)

	// ReleaseProgram releases a program created by BuildProgram.
	ReleaseProgram(program Handle)

	// CreateKernel resolves one named entry point of a compiled program.
	// If the program has no such entry point the returned error wraps
	// ErrInvalidKernelName; that classification must be stable for a given
	// (program, entryPoint) pair since callers cache it permanently.
	CreateKernel(program Handle, entryPoint string) (Handle, error)

	// ReleaseKernel releases a kernel created by CreateKernel.
	ReleaseKernel(kernel Handle)

	// Finish blocks until all work previously submitted to the queue has
	// completed.
	Finish(queue Handle) error

	// EventComplete reports whether the unit of work behind the event has
	// finished. A non-nil error means the work (or the status query)
	// failed terminally; the event will not complete later.
	EventComplete(event Handle) (bool, error)

	// SetEventCallback registers fn to be invoked exactly once, on a
	// driver-owned thread, when the event completes. fn receives nil on
	// success and the failure otherwise. Drivers whose runtime has no
	// native callback primitive return ErrCallbacksUnsupported, and must
	// never invoke fn when they return an error.
	SetEventCallback(event Handle, fn func(err error)) error
}
