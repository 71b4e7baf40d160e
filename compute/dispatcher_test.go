package compute_test

import (
	"errors"
	"testing"
	"time"

	"github.com/synth07/Veil/compute"
	"github.com/synth07/Veil/compute/computetest"
)

const notifyTimeout = 5 * time.Second

// wait expects exactly one notification on ch and returns it.
func wait(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(notifyTimeout):
		t.Fatal("timed out waiting for event notification")
		return nil
	}
}

// newDispatcherEnv builds an environment whose driver advertises the given
// callback capability, which selects the dispatcher variant under test.
func newDispatcherEnv(t *testing.T, callbacks bool) (*computetest.Driver, *compute.Environment) {
	t.Helper()
	drv := computetest.New()
	drv.CallbackSupport = callbacks
	env, err := compute.New(drv, drv.Device())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(env.Free)
	return drv, env
}

func testDispatcherDelivery(t *testing.T, callbacks bool) {
	drv, env := newDispatcherEnv(t, callbacks)

	ev := drv.NewEvent()
	ch := make(chan error, 4)
	if err := env.Dispatcher().Listen(ev, func(err error) { ch <- err }); err != nil {
		t.Fatalf("Listen() = %v", err)
	}

	drv.Complete(ev, nil)
	if err := wait(t, ch); err != nil {
		t.Errorf("successful work notified with error: %v", err)
	}

	// Exactly once: no second notification may arrive.
	select {
	case err := <-ch:
		t.Errorf("event notified twice, second notification: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func testDispatcherFailureDelivery(t *testing.T, callbacks bool) {
	drv, env := newDispatcherEnv(t, callbacks)

	ev := drv.NewEvent()
	ch := make(chan error, 1)
	if err := env.Dispatcher().Listen(ev, func(err error) { ch <- err }); err != nil {
		t.Fatalf("Listen() = %v", err)
	}

	boom := compute.Errorf(-14, "exec status error")
	drv.Complete(ev, boom)
	var cerr *compute.Error
	if err := wait(t, ch); !errors.As(err, &cerr) {
		t.Errorf("failed work notified with %v, want *compute.Error", err)
	}
}

func TestPollingDispatcherDelivery(t *testing.T)        { testDispatcherDelivery(t, false) }
func TestNativeDispatcherDelivery(t *testing.T)         { testDispatcherDelivery(t, true) }
func TestPollingDispatcherFailureDelivery(t *testing.T) { testDispatcherFailureDelivery(t, false) }
func TestNativeDispatcherFailureDelivery(t *testing.T)  { testDispatcherFailureDelivery(t, true) }

func TestNativeDispatcherAlreadyCompleteEvent(t *testing.T) {
	drv, env := newDispatcherEnv(t, true)

	ev := drv.NewEvent()
	drv.Complete(ev, nil)

	ch := make(chan error, 1)
	if err := env.Dispatcher().Listen(ev, func(err error) { ch <- err }); err != nil {
		t.Fatalf("Listen() on settled event = %v", err)
	}
	if err := wait(t, ch); err != nil {
		t.Errorf("settled event notified with error: %v", err)
	}
}

func TestNativeDispatcherRegistrationFailure(t *testing.T) {
	_, env := newDispatcherEnv(t, true)

	// An event handle the driver has never seen.
	err := env.Dispatcher().Listen(compute.Handle(0xdead), func(error) {
		t.Error("callback fired for failed registration")
	})
	if err == nil {
		t.Fatal("Listen() on unknown event should fail")
	}
}

func TestPollingDispatcherUnknownEventNotifiesFailure(t *testing.T) {
	_, env := newDispatcherEnv(t, false)

	// The polling loop discovers the invalid handle on its first query and
	// settles the registration with the driver's error.
	ch := make(chan error, 1)
	if err := env.Dispatcher().Listen(compute.Handle(0xdead), func(err error) { ch <- err }); err != nil {
		t.Fatalf("Listen() = %v", err)
	}
	if err := wait(t, ch); err == nil {
		t.Error("invalid event settled without error")
	}
}

func TestDispatcherClosedAfterFree(t *testing.T) {
	for _, callbacks := range []bool{false, true} {
		drv := computetest.New()
		drv.CallbackSupport = callbacks
		env, err := compute.New(drv, drv.Device())
		if err != nil {
			t.Fatalf("New() = %v", err)
		}
		dispatcher := env.Dispatcher()
		env.Free()

		ev := drv.NewEvent()
		if err := dispatcher.Listen(ev, func(error) {}); !errors.Is(err, compute.ErrDispatcherClosed) {
			t.Errorf("callbacks=%v: Listen after Free = %v, want ErrDispatcherClosed", callbacks, err)
		}
		// Closing again must stay a no-op.
		if err := dispatcher.Close(); err != nil {
			t.Errorf("callbacks=%v: second Close() = %v", callbacks, err)
		}
	}
}

func TestPollingDispatcherDiscardsPendingOnClose(t *testing.T) {
	drv := computetest.New()
	env, err := compute.New(drv, drv.Device())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	ev := drv.NewEvent() // never completed
	fired := make(chan error, 1)
	if err := env.Dispatcher().Listen(ev, func(err error) { fired <- err }); err != nil {
		t.Fatalf("Listen() = %v", err)
	}

	env.Free()

	// Interest was discarded, not failed: completing the work afterwards
	// must not notify.
	drv.Complete(ev, nil)
	select {
	case err := <-fired:
		t.Errorf("discarded registration fired with %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNativeDispatcherCloseWaitsForInflight(t *testing.T) {
	drv := computetest.New()
	drv.CallbackSupport = true
	env, err := compute.New(drv, drv.Device())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	dispatcher := env.Dispatcher()

	ev := drv.NewEvent()
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	if err := dispatcher.Listen(ev, func(error) {
		close(entered)
		<-release
	}); err != nil {
		t.Fatalf("Listen() = %v", err)
	}

	drv.Complete(ev, nil)
	<-entered

	go func() {
		env.Free() // blocks in dispatcher Close until the callback returns
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Free returned while a native callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(notifyTimeout):
		t.Fatal("Free did not return after callbacks drained")
	}
}
