package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	b := newMock("builtin", "echo")
	if err := r.Register(b); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	got, ok := r.Get("builtin")
	if !ok || got != b {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get() should return false for missing backend")
	}
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil backend")
	}
	if err := r.Register(newMock("")); err == nil {
		t.Error("expected error for empty name")
	}
	_ = r.Register(newMock("a"))
	if err := r.Register(newMock("a")); !errors.Is(err, ErrBackendExists) {
		t.Errorf("duplicate Register() error = %v, want ErrBackendExists", err)
	}
}

func TestRegistry_KeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		_ = r.Register(newMock(n))
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, r.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_ListEnabled(t *testing.T) {
	r := NewRegistry()
	off := newMock("off")
	off.enabled = false
	_ = r.Register(newMock("on"))
	_ = r.Register(off)

	enabled := r.ListEnabled()
	if len(enabled) != 1 || enabled[0].Name() != "on" {
		t.Errorf("ListEnabled() = %v", enabled)
	}
	if len(r.List()) != 2 {
		t.Errorf("List() len = %d, want 2", len(r.List()))
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	b := newMock("test")
	_ = r.Register(b)
	if err := r.Unregister("test"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if !b.stopped {
		t.Error("Unregister() should stop the backend")
	}
	if _, ok := r.Get("test"); ok {
		t.Error("Get() should return false after Unregister()")
	}
	if err := r.Unregister("test"); !errors.Is(err, ErrBackendNotFound) {
		t.Errorf("second Unregister() error = %v", err)
	}
}

func TestRegistry_StartStopAll(t *testing.T) {
	r := NewRegistry()
	a, b := newMock("a"), newMock("b")
	b.stopErr = errBoom
	off := newMock("off")
	off.enabled = false
	for _, m := range []*mockBackend{a, b, off} {
		_ = r.Register(m)
	}

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if !a.started || !b.started || off.started {
		t.Errorf("started = %v %v %v, want true true false", a.started, b.started, off.started)
	}

	err := r.StopAll()
	if !errors.Is(err, errBoom) {
		t.Errorf("StopAll() error = %v, want errBoom", err)
	}
	if !a.stopped || !off.stopped {
		t.Error("StopAll() should stop every backend despite failures")
	}
}
