// Package computetest provides an in-memory compute.Driver for tests and
// for embedders that want to exercise compute plumbing without a GPU.
//
// Program source for the fake driver is a whitespace-separated list of
// kernel entry-point names; a source containing the field "!" fails to
// build, standing in for a syntax error. Events are minted with NewEvent
// and completed explicitly with Complete.
package computetest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/synth07/Veil/compute"
)

// ReleaseCounts records how many times each class of native handle has
// been released.
type ReleaseCounts struct {
	Contexts int
	Queues   int
	Programs int
	Kernels  int
}

// LiveCounts records how many handles of each class are currently alive.
type LiveCounts struct {
	Contexts int
	Queues   int
	Programs int
	Kernels  int
}

type fakeProgram struct {
	entries map[string]struct{}
}

type fakeEvent struct {
	complete bool
	err      error
	callback func(err error)
}

// Driver is an in-memory implementation of compute.Driver. The zero value
// is not usable; create instances with New.
//
// The exported knob fields configure failure injection and must be set
// before the corresponding call is made; they are not synchronized against
// concurrent native calls.
type Driver struct {
	// CallbackSupport controls both the advertised device capability and
	// whether SetEventCallback works.
	CallbackSupport bool

	// QueueErr, if set, makes CreateQueue fail.
	QueueErr error

	// NilQueue makes CreateQueue report success with a nil handle.
	NilQueue bool

	// FinishErr, if set, is returned by Finish.
	FinishErr error

	// KernelHook, if set, runs before kernel creation and can veto it with
	// a (transient) error.
	KernelHook func(entryPoint string) error

	mu       sync.Mutex
	next     compute.Handle
	platform compute.Handle
	device   compute.Handle
	notify   func(message string)

	contexts map[compute.Handle]struct{}
	queues   map[compute.Handle]struct{}
	programs map[compute.Handle]*fakeProgram
	kernels  map[compute.Handle]struct{}
	events   map[compute.Handle]*fakeEvent

	released ReleaseCounts
	attempts map[string]int
	finishes int
}

var _ compute.Driver = (*Driver)(nil)

// New creates a fake driver exposing a single device.
func New() *Driver {
	d := &Driver{
		contexts: make(map[compute.Handle]struct{}),
		queues:   make(map[compute.Handle]struct{}),
		programs: make(map[compute.Handle]*fakeProgram),
		kernels:  make(map[compute.Handle]struct{}),
		events:   make(map[compute.Handle]*fakeEvent),
		attempts: make(map[string]int),
	}
	d.platform = d.mint()
	d.device = d.mint()
	return d
}

func (d *Driver) mint() compute.Handle {
	d.next++
	return d.next
}

// Name implements compute.Driver.
func (d *Driver) Name() string { return "test" }

// Device returns the fake device descriptor, with the callback capability
// mirroring the CallbackSupport knob.
func (d *Driver) Device() compute.DeviceInfo {
	return compute.DeviceInfo{
		Name:                   "Test Device",
		Type:                   gputypes.DeviceTypeIntegratedGPU,
		Platform:               d.platform,
		ID:                     d.device,
		SupportsEventCallbacks: d.CallbackSupport,
	}
}

// Devices implements compute.Driver.
func (d *Driver) Devices() ([]compute.DeviceInfo, error) {
	return []compute.DeviceInfo{d.Device()}, nil
}

// CreateContext implements compute.Driver.
func (d *Driver) CreateContext(platform, device compute.Handle, notify func(message string)) (compute.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if platform != d.platform || device != d.device {
		return compute.NilHandle, compute.Errorf(-33, "unknown platform/device pair")
	}
	d.notify = notify
	h := d.mint()
	d.contexts[h] = struct{}{}
	return h, nil
}

// ReleaseContext implements compute.Driver.
func (d *Driver) ReleaseContext(ctx compute.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.contexts[ctx]; ok {
		delete(d.contexts, ctx)
		d.released.Contexts++
	}
}

// CreateQueue implements compute.Driver.
func (d *Driver) CreateQueue(ctx, device compute.Handle) (compute.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.QueueErr != nil {
		return compute.NilHandle, d.QueueErr
	}
	if d.NilQueue {
		return compute.NilHandle, nil
	}
	if _, ok := d.contexts[ctx]; !ok {
		return compute.NilHandle, compute.Errorf(-34, "invalid context")
	}
	h := d.mint()
	d.queues[h] = struct{}{}
	return h, nil
}

// ReleaseQueue implements compute.Driver.
func (d *Driver) ReleaseQueue(queue compute.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.queues[queue]; ok {
		delete(d.queues, queue)
		d.released.Queues++
	}
}

// BuildProgram implements compute.Driver.
func (d *Driver) BuildProgram(ctx, device compute.Handle, source string) (compute.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.contexts[ctx]; !ok {
		return compute.NilHandle, compute.Errorf(-34, "invalid context")
	}
	entries := make(map[string]struct{})
	for _, field := range strings.Fields(source) {
		if field == "!" {
			return compute.NilHandle, &compute.CompileError{
				Log: "fake: syntax error near '!'",
				Err: compute.Errorf(-11, "program build failure"),
			}
		}
		entries[field] = struct{}{}
	}
	h := d.mint()
	d.programs[h] = &fakeProgram{entries: entries}
	return h, nil
}

// ReleaseProgram implements compute.Driver.
func (d *Driver) ReleaseProgram(program compute.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.programs[program]; ok {
		delete(d.programs, program)
		d.released.Programs++
	}
}

// CreateKernel implements compute.Driver.
func (d *Driver) CreateKernel(program compute.Handle, entryPoint string) (compute.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[entryPoint]++

	p, ok := d.programs[program]
	if !ok {
		return compute.NilHandle, compute.Errorf(-44, "invalid program")
	}
	if d.KernelHook != nil {
		if err := d.KernelHook(entryPoint); err != nil {
			return compute.NilHandle, err
		}
	}
	if _, ok := p.entries[entryPoint]; !ok {
		return compute.NilHandle, fmt.Errorf("no entry point %q: %w", entryPoint, compute.ErrInvalidKernelName)
	}
	h := d.mint()
	d.kernels[h] = struct{}{}
	return h, nil
}

// ReleaseKernel implements compute.Driver.
func (d *Driver) ReleaseKernel(kernel compute.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.kernels[kernel]; ok {
		delete(d.kernels, kernel)
		d.released.Kernels++
	}
}

// Finish implements compute.Driver.
func (d *Driver) Finish(queue compute.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finishes++
	if d.FinishErr != nil {
		return d.FinishErr
	}
	if _, ok := d.queues[queue]; !ok {
		return compute.Errorf(-36, "invalid command queue")
	}
	return nil
}

// EventComplete implements compute.Driver.
func (d *Driver) EventComplete(event compute.Handle) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.events[event]
	if !ok {
		return false, compute.Errorf(-58, "invalid event")
	}
	return e.complete, e.err
}

// SetEventCallback implements compute.Driver.
func (d *Driver) SetEventCallback(event compute.Handle, fn func(err error)) error {
	d.mu.Lock()
	if !d.CallbackSupport {
		d.mu.Unlock()
		return compute.ErrCallbacksUnsupported
	}
	e, ok := d.events[event]
	if !ok {
		d.mu.Unlock()
		return compute.Errorf(-58, "invalid event")
	}
	if e.complete {
		err := e.err
		d.mu.Unlock()
		// Already settled: fire on a fresh goroutine like a runtime thread.
		go fn(err)
		return nil
	}
	e.callback = fn
	d.mu.Unlock()
	return nil
}

// NewEvent mints an incomplete event, standing in for a unit of submitted
// work.
func (d *Driver) NewEvent() compute.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.mint()
	d.events[h] = &fakeEvent{}
	return h
}

// Complete marks an event as settled with the given result and, when a
// native callback is registered, fires it on a separate goroutine the way
// a runtime-owned thread would.
func (d *Driver) Complete(event compute.Handle, result error) {
	d.mu.Lock()
	e, ok := d.events[event]
	if !ok || e.complete {
		d.mu.Unlock()
		return
	}
	e.complete = true
	e.err = result
	cb := e.callback
	e.callback = nil
	d.mu.Unlock()

	if cb != nil {
		go cb(result)
	}
}

// TriggerContextError invokes the diagnostic callback installed at context
// creation, as the native runtime would on an internal error.
func (d *Driver) TriggerContextError(message string) {
	d.mu.Lock()
	notify := d.notify
	d.mu.Unlock()
	if notify != nil {
		notify(message)
	}
}

// Released returns release counters for leak assertions.
func (d *Driver) Released() ReleaseCounts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Live returns the number of currently live handles per class.
func (d *Driver) Live() LiveCounts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return LiveCounts{
		Contexts: len(d.contexts),
		Queues:   len(d.queues),
		Programs: len(d.programs),
		Kernels:  len(d.kernels),
	}
}

// KernelAttempts returns how many times CreateKernel has been called for
// the entry-point name, across all programs.
func (d *Driver) KernelAttempts(entryPoint string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[entryPoint]
}

// Finishes returns how many times Finish has been called.
func (d *Driver) Finishes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finishes
}
