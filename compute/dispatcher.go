package compute

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// defaultPollInterval is how often the polling dispatcher queries
	// outstanding events. Short enough to not add visible latency to a
	// frame, long enough to stay off profiler radars.
	defaultPollInterval = time.Millisecond

	// drainTimeout bounds how long Close waits for in-flight native
	// callbacks to settle.
	drainTimeout = 5 * time.Second
)

// EventDispatcher notifies listeners when submitted compute work completes.
// Each registration is notified exactly once, with nil on success and the
// failure otherwise, no earlier than the work's native completion.
// Notifications carry no ordering guarantee relative to each other.
//
// The dispatcher variant is fixed when the environment is constructed:
// drivers whose runtime can invoke callbacks on its own threads get the
// native variant, everything else gets the polling variant.
type EventDispatcher interface {
	// Listen registers fn for the completion of event. fn may be invoked
	// on a driver-owned goroutine. Returns ErrDispatcherClosed after
	// Close.
	Listen(event Handle, fn func(err error)) error

	// Close stops accepting registrations and waits for in-flight
	// notifications to settle. Interest in events that have not fired yet
	// is discarded; the underlying native work is not cancelled.
	Close() error
}

// nativeDispatcher delegates to the driver's callback primitive. The
// native runtime invokes callbacks on threads we do not control, so the
// only bookkeeping here is counting in-flight notifications for Close.
type nativeDispatcher struct {
	drv Driver
	log *slog.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func newNativeDispatcher(drv Driver, log *slog.Logger) *nativeDispatcher {
	return &nativeDispatcher{drv: drv, log: log}
}

func (d *nativeDispatcher) Listen(event Handle, fn func(err error)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	var once sync.Once
	err := d.drv.SetEventCallback(event, func(status error) {
		once.Do(func() {
			defer d.inflight.Done()
			fn(status)
		})
	})
	if err != nil {
		// Driver contract: fn is never invoked when registration fails.
		d.inflight.Done()
		return err
	}
	return nil
}

func (d *nativeDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	settled := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(settled)
	}()
	select {
	case <-settled:
		return nil
	case <-time.After(drainTimeout):
		d.log.Warn("event dispatcher close timed out waiting for native callbacks")
		return nil
	}
}

// pollingDispatcher is the fallback for runtimes without a callback
// primitive. A background goroutine periodically queries the status of
// every registered event and fires listeners once a status transitions to
// complete or errored.
type pollingDispatcher struct {
	drv      Driver
	log      *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	closed  bool
	pending map[Handle][]func(err error)

	quit chan struct{}
	done chan struct{}
}

func newPollingDispatcher(drv Driver, log *slog.Logger, interval time.Duration) *pollingDispatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	d := &pollingDispatcher{
		drv:      drv,
		log:      log,
		interval: interval,
		pending:  make(map[Handle][]func(err error)),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *pollingDispatcher) Listen(event Handle, fn func(err error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.pending[event] = append(d.pending[event], fn)
	return nil
}

func (d *pollingDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	dropped := len(d.pending)
	d.mu.Unlock()

	close(d.quit)
	<-d.done

	if dropped > 0 {
		d.log.Debug("event dispatcher closed with unfired events", "events", dropped)
	}
	return nil
}

func (d *pollingDispatcher) loop() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C:
			d.poll()
		}
	}
}

// poll fires listeners for every event whose status has settled. Listeners
// run outside the lock so they may re-register other events freely.
func (d *pollingDispatcher) poll() {
	type firing struct {
		fns []func(err error)
		err error
	}
	var ready []firing

	d.mu.Lock()
	for event, fns := range d.pending {
		complete, err := d.drv.EventComplete(event)
		if !complete && err == nil {
			continue
		}
		ready = append(ready, firing{fns: fns, err: err})
		delete(d.pending, event)
	}
	d.mu.Unlock()

	for _, f := range ready {
		for _, fn := range f.fns {
			fn(f.err)
		}
	}
}
