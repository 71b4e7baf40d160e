package compute

// Kernel is an owned wrapper around one native kernel object, bound to one
// entry point of one compiled program. Kernels are created lazily on first
// resolution and cached for the lifetime of their program entry; the owning
// environment releases them when the program is replaced or freed.
type Kernel struct {
	id         Handle
	program    string
	entryPoint string
	released   bool
}

// Handle returns the native kernel handle for enqueue collaborators.
// The handle stays valid until the owning program is replaced or the
// environment is freed; callers must not release it themselves.
func (k *Kernel) Handle() Handle { return k.id }

// Program returns the logical name of the program the kernel belongs to.
func (k *Kernel) Program() string { return k.program }

// EntryPoint returns the entry-point name the kernel is bound to.
func (k *Kernel) EntryPoint() string { return k.entryPoint }

func (k *Kernel) release(drv Driver) {
	if k.released {
		return
	}
	k.released = true
	drv.ReleaseKernel(k.id)
}

// programData owns one compiled program handle plus its resolved kernels
// and the set of entry-point names known to be unresolvable. A name is
// never in both kernels and invalid at the same time.
type programData struct {
	id      Handle
	kernels map[string]*Kernel
	invalid map[string]struct{}
	freed   bool
}

func newProgramData(id Handle) *programData {
	return &programData{
		id:      id,
		kernels: make(map[string]*Kernel),
		invalid: make(map[string]struct{}),
	}
}

// free releases the program handle and cascades to every cached kernel.
// Safe to call twice; the second call is a no-op.
func (p *programData) free(drv Driver) {
	if p.freed {
		return
	}
	p.freed = true
	drv.ReleaseProgram(p.id)
	for _, k := range p.kernels {
		k.release(drv)
	}
	clear(p.kernels)
	clear(p.invalid)
}
