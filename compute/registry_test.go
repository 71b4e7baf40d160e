package compute_test

import (
	"slices"
	"testing"

	"github.com/synth07/Veil/compute"
	"github.com/synth07/Veil/compute/computetest"
)

func TestRegistry(t *testing.T) {
	const name = "registry-test"
	t.Cleanup(func() { compute.Unregister(name) })

	if compute.IsRegistered(name) {
		t.Fatalf("%q registered before test", name)
	}
	if d := compute.GetDriver(name); d != nil {
		t.Fatalf("GetDriver(%q) = %v before registration", name, d)
	}

	compute.Register(name, func() compute.Driver { return computetest.New() })

	if !compute.IsRegistered(name) {
		t.Error("IsRegistered = false after Register")
	}
	if !slices.Contains(compute.AvailableDrivers(), name) {
		t.Error("AvailableDrivers does not list the registered driver")
	}
	d := compute.GetDriver(name)
	if d == nil {
		t.Fatal("GetDriver returned nil for a registered driver")
	}
	if d.Name() != "test" {
		t.Errorf("driver Name() = %q, want %q", d.Name(), "test")
	}

	compute.Unregister(name)
	if compute.IsRegistered(name) {
		t.Error("IsRegistered = true after Unregister")
	}
}

func TestDefaultDriverFallsBackToAnyRegistered(t *testing.T) {
	const name = "registry-fallback-test"
	t.Cleanup(func() { compute.Unregister(name) })

	compute.Register(name, func() compute.Driver { return computetest.New() })

	if d := compute.DefaultDriver(); d == nil {
		t.Error("DefaultDriver() = nil with a driver registered")
	}
}
