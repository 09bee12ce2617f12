package registry

import (
	"testing"

	"github.com/opskernel/pluginhost/internal/kernel"
	"github.com/opskernel/pluginhost/internal/kernel/manifest"
)

func TestRegisterAndGet(t *testing.T) {
	r := New()
	r.Register(Metadata{ID: "p1", Name: "p1", State: kernel.StateInstalled}, &manifest.Manifest{Name: "p1"})

	meta, err := r.GetMetadata("p1")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta.State != kernel.StateInstalled {
		t.Fatalf("expected Installed, got %s", meta.State)
	}
}

func TestUpdateStateRejectsIllegalTransition(t *testing.T) {
	r := New()
	r.Register(Metadata{ID: "p1", State: kernel.StateInstalled}, nil)

	if err := r.UpdateState("p1", kernel.StateRunning); err == nil {
		t.Fatal("expected Installed->Running to be rejected")
	}
	if err := r.UpdateState("p1", kernel.StateLoaded); err != nil {
		t.Fatalf("expected Installed->Loaded to succeed: %v", err)
	}
}

func TestUpdateStateSequentialLegalTransitions(t *testing.T) {
	r := New()
	r.Register(Metadata{ID: "p1", State: kernel.StateInstalled}, nil)

	sequence := []kernel.State{kernel.StateLoaded, kernel.StateActivated, kernel.StateRunning}
	for _, s := range sequence {
		if err := r.UpdateState("p1", s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if err := r.UpdateState("p1", kernel.StateInstalled); err == nil {
		t.Fatal("expected Running->Installed to be rejected")
	}
}

func TestRemoveDeletesFromAllMaps(t *testing.T) {
	r := New()
	r.Register(Metadata{ID: "p1"}, &manifest.Manifest{Name: "p1"})
	r.AddToActivationOrder("p1")

	r.Remove("p1")

	if r.Has("p1") {
		t.Fatal("expected plugin removed")
	}
	if len(r.ActivationOrder()) != 0 {
		t.Fatal("expected activation order cleared")
	}
}

func TestAddToActivationOrderDedups(t *testing.T) {
	r := New()
	r.AddToActivationOrder("p1")
	r.AddToActivationOrder("p1")
	r.AddToActivationOrder("p2")

	order := r.ActivationOrder()
	if len(order) != 2 {
		t.Fatalf("expected 2 entries, got %v", order)
	}
}
