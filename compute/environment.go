package compute

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	veil "github.com/synth07/Veil"
)

// Environment is a compute runtime bound to one device. It owns a context,
// a command queue, the program cache, and the event dispatcher, and is the
// façade every caller goes through.
//
// All methods except the event dispatcher's are expected to be called from
// a single owner goroutine; see the package documentation.
type Environment struct {
	drv        Driver
	device     DeviceInfo
	log        *slog.Logger
	context    Handle
	queue      Handle
	programs   map[string]*programData
	dispatcher EventDispatcher
	freed      bool
}

// New constructs an environment on the given device. Construction is
// all-or-nothing: if the queue cannot be created, the context created in
// the same attempt is released before the error surfaces, and the caller
// never sees a partially built environment.
//
// The event dispatcher variant is chosen here, once, from
// device.SupportsEventCallbacks.
func New(drv Driver, device DeviceInfo) (*Environment, error) {
	if drv == nil {
		return nil, &InitError{Op: "select driver", Err: ErrNoDriver}
	}
	log := veil.Logger().With("driver", drv.Name(), "device", device.Name)

	ctx, err := drv.CreateContext(device.Platform, device.ID, func(message string) {
		// Invoked by the native runtime on its own thread; must not panic.
		log.Error("native context error", "info", message)
	})
	if err != nil {
		return nil, &InitError{Op: "create context", Err: err}
	}

	queue, err := drv.CreateQueue(ctx, device.ID)
	if err != nil || queue == NilHandle {
		drv.ReleaseContext(ctx)
		if err == nil {
			err = errors.New("driver returned nil queue handle")
		}
		return nil, &InitError{Op: "create queue", Err: err}
	}

	var dispatcher EventDispatcher
	if device.SupportsEventCallbacks {
		dispatcher = newNativeDispatcher(drv, log)
	} else {
		dispatcher = newPollingDispatcher(drv, log, defaultPollInterval)
	}

	log.Debug("compute environment created")
	return &Environment{
		drv:        drv,
		device:     device,
		log:        log,
		context:    ctx,
		queue:      queue,
		programs:   make(map[string]*programData),
		dispatcher: dispatcher,
	}, nil
}

// LoadProgram compiles source and stores the resulting program under name.
//
// Compile failures are not fatal: the build log is written to the logger,
// any partially created native object is released by the driver, and the
// previous program under name (if any) stays untouched and resolvable.
// This is deliberate — hot-reload of a broken edit must not destabilize
// the host.
//
// On success any previous program under name is replaced; its handle and
// every kernel resolved from it are released.
func (e *Environment) LoadProgram(name, source string) {
	if e.freed {
		e.log.Error("load program on freed environment", "program", name)
		return
	}

	program, err := e.drv.BuildProgram(e.context, e.device.ID, source)
	if err != nil {
		var build *CompileError
		if errors.As(err, &build) && build.Log != "" {
			e.log.Error("failed to compile program", "program", name, "log", build.Log)
		} else {
			e.log.Error("failed to load program from source", "program", name, "err", err)
		}
		return
	}

	// Install the replacement before freeing the old entry so the name is
	// never mapped to nothing.
	old := e.programs[name]
	e.programs[name] = newProgramData(program)
	if old != nil {
		e.log.Info("deleting old program", "program", name)
		old.free(e.drv)
	}
}

// LoadProgramFrom resolves name through the provider, reads the source as
// UTF-8 text, and delegates to LoadProgram. Unlike compile failures, I/O
// failures are propagated to the caller.
func (e *Environment) LoadProgramFrom(name string, provider SourceProvider) error {
	rc, err := provider.Open(name)
	if err != nil {
		return fmt.Errorf("open program source %q: %w", name, err)
	}
	defer rc.Close()

	source, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read program source %q: %w", name, err)
	}

	e.LoadProgram(name, string(source))
	return nil
}

// Kernel resolves the entry point entryPoint of the program loaded under
// program. It returns nil if the program is not loaded, if the name was
// previously found invalid, or if kernel creation fails.
//
// Resolution is memoized: repeated calls for the same pair return the same
// *Kernel. An entry point the native runtime reports as nonexistent is
// negative-cached and never attempted again for this program; any other
// failure is logged and retried on the next call.
func (e *Environment) Kernel(program, entryPoint string) *Kernel {
	if e.freed {
		return nil
	}
	data := e.programs[program]
	if data == nil {
		return nil
	}
	if _, bad := data.invalid[entryPoint]; bad {
		return nil
	}
	if k, ok := data.kernels[entryPoint]; ok {
		return k
	}

	id, err := e.drv.CreateKernel(data.id, entryPoint)
	if err != nil {
		if errors.Is(err, ErrInvalidKernelName) {
			// The program is immutable once compiled, so a missing entry
			// point stays missing.
			e.log.Error("failed to find kernel", "program", program, "kernel", entryPoint)
			data.invalid[entryPoint] = struct{}{}
		} else {
			e.log.Error("failed to create kernel", "program", program, "kernel", entryPoint, "err", err)
		}
		return nil
	}

	k := &Kernel{id: id, program: program, entryPoint: entryPoint}
	data.kernels[entryPoint] = k
	e.log.Debug("kernel resolved", "program", program, "kernel", entryPoint)
	return k
}

// Finish blocks the calling goroutine until all work previously enqueued
// on the environment's queue has completed. It is the only blocking
// synchronization primitive the environment exposes.
func (e *Environment) Finish() error {
	if e.freed {
		return ErrEnvironmentFreed
	}
	if err := e.drv.Finish(e.queue); err != nil {
		return fmt.Errorf("finish queue: %w", err)
	}
	return nil
}

// Free releases every native resource the environment owns: the queue, the
// context (together with its diagnostic callback registration), every
// cached program with its kernels, and finally the event dispatcher.
//
// Free is idempotent; the second and later calls do nothing. Teardown
// never fails: dispatcher drain problems are logged and swallowed.
func (e *Environment) Free() {
	if e.freed {
		return
	}
	e.freed = true

	if e.queue != NilHandle {
		e.drv.ReleaseQueue(e.queue)
		e.queue = NilHandle
	}
	if e.context != NilHandle {
		e.drv.ReleaseContext(e.context)
		e.context = NilHandle
	}
	for _, p := range e.programs {
		p.free(e.drv)
	}
	clear(e.programs)

	if err := e.dispatcher.Close(); err != nil {
		e.log.Error("failed to stop event dispatcher", "err", err)
	}
	e.log.Debug("compute environment freed")
}

// Device returns the device descriptor the environment was built for.
func (e *Environment) Device() DeviceInfo { return e.device }

// Dispatcher returns the event dispatcher chosen at construction.
func (e *Environment) Dispatcher() EventDispatcher { return e.dispatcher }

// Driver returns the driver the environment talks to.
func (e *Environment) Driver() Driver { return e.drv }

// Context returns the native context handle for collaborators that create
// buffers or submit work. Only the environment may release it.
func (e *Environment) Context() Handle { return e.context }

// Queue returns the native command-queue handle for collaborators that
// submit work. Only the environment may release it.
func (e *Environment) Queue() Handle { return e.queue }
