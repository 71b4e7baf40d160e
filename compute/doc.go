// Package compute manages the lifecycle of native GPU compute resources:
// contexts, command queues, compiled programs, and resolved kernels.
//
// # Overview
//
// An [Environment] binds one context and one command queue to a single
// device and caches compiled programs by name. Kernels are resolved lazily
// per entry point and memoized; entry-point names that the native runtime
// rejects are negative-cached so they are attempted at most once per
// program. Reloading a program under an existing name atomically replaces
// the old entry and releases its native handles.
//
// The native API itself sits behind the [Driver] interface. Production
// drivers register themselves through [Register] (see backend/wgpu); tests
// use the in-memory driver from the computetest package.
//
// # Hot Reload
//
// LoadProgram is deliberately forgiving: a source that fails to compile is
// logged together with its build log and the previous program stays
// resolvable. A broken shader edit must never take down a running render
// loop. [SourceWatcher] builds on this to reload programs as their source
// files change on disk.
//
// # Threading
//
// All cache mutation (LoadProgram, Kernel, Free) is expected to happen on
// one owner goroutine, typically the host's render/submission loop. Event
// dispatch is the exception: completion notifications may arrive on
// driver-owned threads, so dispatcher bookkeeping is internally locked.
package compute
