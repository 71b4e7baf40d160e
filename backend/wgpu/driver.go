package wgpu

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	veil "github.com/synth07/Veil"
	"github.com/synth07/Veil/compute"
)

func init() {
	compute.Register("wgpu", func() compute.Driver { return sharedDriver() })
}

// sharedDriver returns the process-wide driver instance. The HAL instance
// and adapter enumeration are expensive; every environment shares them.
var sharedDriver = sync.OnceValue(New)

// fenceTimeout bounds how long Finish waits for submitted work.
const fenceTimeout = 5 * time.Second

// contextState is the native state behind one context handle. The HAL opens
// device and queue together, so the context owns both; queue handles alias
// into it.
//
// refs counts the programs, kernels, and events created on the device.
// Release order at teardown is queue, context, then programs, so an owned
// device is destroyed only once the last dependent object is gone.
type contextState struct {
	device hal.Device
	queue  hal.Queue
	owned  bool // device opened by this driver, destroyed when drained
	notify func(message string)

	refs     int
	released bool
}

func (cs *contextState) retain() { cs.refs++ }

func (cs *contextState) release() {
	cs.refs--
	cs.maybeDestroy()
}

func (cs *contextState) maybeDestroy() {
	if cs.released && cs.refs == 0 && cs.owned && cs.device != nil {
		cs.device.Destroy()
		cs.device = nil
	}
}

type queueState struct {
	cs *contextState
}

type programState struct {
	cs      *contextState
	module  hal.ShaderModule
	entries map[string]struct{}
}

type kernelState struct {
	cs       *contextState
	pipeline hal.ComputePipeline
}

type eventState struct {
	cs    *contextState
	fence hal.Fence
	value uint64
}

// Driver implements compute.Driver on the gogpu/wgpu HAL.
//
// All methods are safe for concurrent use. Handles are minted from a
// per-driver counter and never reused.
type Driver struct {
	mu       sync.Mutex
	instance hal.Instance
	adapters []hal.ExposedAdapter

	platform  compute.Handle
	deviceIDs []compute.Handle // aligned with adapters
	byID      map[compute.Handle]int

	// Externally lent device (UseDeviceProvider). When set, enumeration
	// reports it as the only device and contexts run on it.
	extDevice hal.Device
	extQueue  hal.Queue
	extID     compute.Handle

	nextID   uint64
	contexts map[compute.Handle]*contextState
	queues   map[compute.Handle]*queueState
	programs map[compute.Handle]*programState
	kernels  map[compute.Handle]*kernelState
	events   map[compute.Handle]*eventState

	spirv *spirvCache
}

var _ compute.Driver = (*Driver)(nil)

// New creates an unconnected driver. The HAL instance is created lazily on
// the first Devices call. Most callers should go through the registry
// (compute.DefaultDriver) instead, which hands out a shared instance.
func New() *Driver {
	return &Driver{
		byID:     make(map[compute.Handle]int),
		contexts: make(map[compute.Handle]*contextState),
		queues:   make(map[compute.Handle]*queueState),
		programs: make(map[compute.Handle]*programState),
		kernels:  make(map[compute.Handle]*kernelState),
		events:   make(map[compute.Handle]*eventState),
		spirv:    newSPIRVCache(),
	}
}

// Name returns "wgpu".
func (d *Driver) Name() string { return "wgpu" }

func (d *Driver) newHandleLocked() compute.Handle {
	d.nextID++
	return compute.Handle(d.nextID)
}

// UseDeviceProvider lends an externally owned GPU device to the driver.
// Contexts created afterwards run on the shared device and the driver will
// not destroy it. The provider must expose its HAL device and queue, which
// gogpu device providers do.
func (d *Driver) UseDeviceProvider(provider gpucontext.DeviceProvider) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.extDevice = device
	d.extQueue = queue
	if d.extID == compute.NilHandle {
		d.extID = d.newHandleLocked()
	}
	if d.platform == compute.NilHandle {
		d.platform = d.newHandleLocked()
	}
	veil.Logger().Debug("wgpu: using shared GPU device")
	return nil
}

func (d *Driver) ensureInstanceLocked() error {
	if d.instance != nil {
		return nil
	}
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}
	d.instance = instance
	d.adapters = instance.EnumerateAdapters(nil)
	if d.platform == compute.NilHandle {
		d.platform = d.newHandleLocked()
	}
	d.deviceIDs = make([]compute.Handle, len(d.adapters))
	for i := range d.adapters {
		id := d.newHandleLocked()
		d.deviceIDs[i] = id
		d.byID[id] = i
	}
	return nil
}

// Devices enumerates the usable adapters. GPUs sort before other device
// types so that devices[0] is a sensible default. When a shared device has
// been lent through UseDeviceProvider it is the only device reported.
func (d *Driver) Devices() ([]compute.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.extDevice != nil {
		return []compute.DeviceInfo{{
			Name:     "shared device",
			Type:     gputypes.DeviceTypeIntegratedGPU,
			Platform: d.platform,
			ID:       d.extID,
		}}, nil
	}

	if err := d.ensureInstanceLocked(); err != nil {
		return nil, err
	}
	if len(d.adapters) == 0 {
		return nil, fmt.Errorf("wgpu: no GPU adapters found")
	}

	infos := make([]compute.DeviceInfo, 0, len(d.adapters))
	for i := range d.adapters {
		infos = append(infos, compute.DeviceInfo{
			Name:     d.adapters[i].Info.Name,
			Type:     d.adapters[i].Info.DeviceType,
			Platform: d.platform,
			ID:       d.deviceIDs[i],
		})
	}
	slices.SortStableFunc(infos, func(a, b compute.DeviceInfo) int {
		return devicePreference(a.Type) - devicePreference(b.Type)
	})
	return infos, nil
}

// CreateContext opens the device and binds a diagnostic callback to it.
// The HAL reports failures synchronously, so notify only sees diagnostics
// this driver raises itself (fence timeouts and the like).
func (d *Driver) CreateContext(platform, device compute.Handle, notify func(message string)) (compute.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if platform != d.platform {
		return compute.NilHandle, fmt.Errorf("wgpu: unknown platform handle %#x", uint64(platform))
	}

	var cs *contextState
	switch {
	case d.extDevice != nil && device == d.extID:
		cs = &contextState{device: d.extDevice, queue: d.extQueue, owned: false, notify: notify}
	default:
		idx, ok := d.byID[device]
		if !ok {
			return compute.NilHandle, fmt.Errorf("wgpu: unknown device handle %#x", uint64(device))
		}
		openDev, err := d.adapters[idx].Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
		if err != nil {
			return compute.NilHandle, fmt.Errorf("wgpu: open device: %w", err)
		}
		cs = &contextState{device: openDev.Device, queue: openDev.Queue, owned: true, notify: notify}
		veil.Logger().Info("wgpu: opened device", "adapter", d.adapters[idx].Info.Name)
	}

	h := d.newHandleLocked()
	d.contexts[h] = cs
	return h, nil
}

// ReleaseContext releases a context. An owned device is destroyed once the
// programs, kernels, and events created on it are released too.
func (d *Driver) ReleaseContext(ctx compute.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cs, ok := d.contexts[ctx]
	if !ok {
		return
	}
	delete(d.contexts, ctx)
	cs.released = true
	cs.notify = nil
	cs.maybeDestroy()
}

// CreateQueue returns a queue on the context. The HAL opens device and
// queue together, so this aliases the context's queue rather than creating
// a second one; ordering within it is the HAL's submission order.
func (d *Driver) CreateQueue(ctx, device compute.Handle) (compute.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cs, ok := d.contexts[ctx]
	if !ok {
		return compute.NilHandle, fmt.Errorf("wgpu: unknown context handle %#x", uint64(ctx))
	}
	cs.retain()
	h := d.newHandleLocked()
	d.queues[h] = &queueState{cs: cs}
	return h, nil
}

// ReleaseQueue releases a queue created by CreateQueue.
func (d *Driver) ReleaseQueue(queue compute.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	qs, ok := d.queues[queue]
	if !ok {
		return
	}
	delete(d.queues, queue)
	qs.cs.release()
}

// BuildProgram compiles WGSL source to SPIR-V and uploads it as a shader
// module. The @compute entry point names are recorded at build time so that
// kernel name lookups are answered from the source, not from pipeline
// creation, which keeps the invalid-name classification stable.
func (d *Driver) BuildProgram(ctx, device compute.Handle, source string) (compute.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cs, ok := d.contexts[ctx]
	if !ok {
		return compute.NilHandle, fmt.Errorf("wgpu: unknown context handle %#x", uint64(ctx))
	}

	words, err := d.spirv.compile(source)
	if err != nil {
		return compute.NilHandle, &compute.CompileError{Log: err.Error(), Err: err}
	}

	h := d.newHandleLocked()
	module, err := cs.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: fmt.Sprintf("program-%x", uint64(h)),
		Source: hal.ShaderSource{
			SPIRV: words,
		},
	})
	if err != nil {
		return compute.NilHandle, fmt.Errorf("wgpu: create shader module: %w", err)
	}

	cs.retain()
	d.programs[h] = &programState{
		cs:      cs,
		module:  module,
		entries: computeEntryPoints(source),
	}
	return h, nil
}

// ReleaseProgram releases a program created by BuildProgram.
func (d *Driver) ReleaseProgram(program compute.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ps, ok := d.programs[program]
	if !ok {
		return
	}
	delete(d.programs, program)
	if ps.cs.device != nil {
		ps.cs.device.DestroyShaderModule(ps.module)
	}
	ps.cs.release()
}

// CreateKernel resolves one @compute entry point into a compute pipeline.
// A name the program does not declare fails with ErrInvalidKernelName.
func (d *Driver) CreateKernel(program compute.Handle, entryPoint string) (compute.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ps, ok := d.programs[program]
	if !ok {
		return compute.NilHandle, fmt.Errorf("wgpu: unknown program handle %#x", uint64(program))
	}
	if _, ok := ps.entries[entryPoint]; !ok {
		return compute.NilHandle, fmt.Errorf("wgpu: entry point %q: %w", entryPoint, compute.ErrInvalidKernelName)
	}

	// Nil layout: the HAL derives bind group layouts from the module.
	pipeline, err := ps.cs.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  entryPoint,
		Layout: nil,
		Compute: hal.ComputeState{
			Module:     ps.module,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		return compute.NilHandle, fmt.Errorf("wgpu: create compute pipeline %q: %w", entryPoint, err)
	}

	ps.cs.retain()
	h := d.newHandleLocked()
	d.kernels[h] = &kernelState{cs: ps.cs, pipeline: pipeline}
	return h, nil
}

// ReleaseKernel releases a kernel created by CreateKernel.
func (d *Driver) ReleaseKernel(kernel compute.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ks, ok := d.kernels[kernel]
	if !ok {
		return
	}
	delete(d.kernels, kernel)
	if ks.cs.device != nil {
		ks.cs.device.DestroyComputePipeline(ks.pipeline)
	}
	ks.cs.release()
}

// Finish blocks until all work previously submitted to the queue has
// completed, by submitting a fence-only signal and waiting on it.
func (d *Driver) Finish(queue compute.Handle) error {
	d.mu.Lock()
	qs, ok := d.queues[queue]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("wgpu: unknown queue handle %#x", uint64(queue))
	}
	cs := qs.cs
	d.mu.Unlock()

	fence, err := cs.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer cs.device.DestroyFence(fence)

	if err := cs.queue.Submit(nil, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit fence: %w", err)
	}
	done, err := cs.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wgpu: wait fence: %w", err)
	}
	if !done {
		if cs.notify != nil {
			cs.notify(fmt.Sprintf("queue drain timed out after %v", fenceTimeout))
		}
		return fmt.Errorf("wgpu: queue drain timed out after %v", fenceTimeout)
	}
	return nil
}

// TrackFence registers a signaled-at-value fence as an event handle, so
// that an environment's dispatcher can watch a submission for completion.
// The caller keeps ownership of neither: ReleaseEvent destroys the fence.
func (d *Driver) TrackFence(ctx compute.Handle, fence hal.Fence, value uint64) (compute.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cs, ok := d.contexts[ctx]
	if !ok {
		return compute.NilHandle, fmt.Errorf("wgpu: unknown context handle %#x", uint64(ctx))
	}
	cs.retain()
	h := d.newHandleLocked()
	d.events[h] = &eventState{cs: cs, fence: fence, value: value}
	return h, nil
}

// ReleaseEvent destroys the fence behind an event handle.
func (d *Driver) ReleaseEvent(event compute.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	es, ok := d.events[event]
	if !ok {
		return
	}
	delete(d.events, event)
	if es.cs.device != nil {
		es.cs.device.DestroyFence(es.fence)
	}
	es.cs.release()
}

// EventComplete polls the fence behind the event without blocking.
func (d *Driver) EventComplete(event compute.Handle) (bool, error) {
	d.mu.Lock()
	es, ok := d.events[event]
	d.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("wgpu: unknown event handle %#x", uint64(event))
	}
	done, err := es.cs.device.Wait(es.fence, es.value, 0)
	if err != nil {
		return false, fmt.Errorf("wgpu: poll fence: %w", err)
	}
	return done, nil
}

// SetEventCallback always fails: the HAL has no completion-callback
// primitive. Environments on this driver poll instead.
func (d *Driver) SetEventCallback(event compute.Handle, fn func(err error)) error {
	return compute.ErrCallbacksUnsupported
}

// Close destroys the HAL instance. Environments built on the driver must
// be freed first. A lent device is left alone; its owner destroys it.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
		d.adapters = nil
	}
}
