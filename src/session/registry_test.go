package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

// spawn creates a session running a long-lived child.
func spawn(t *testing.T, r *Registry, name string) *Session {
	t.Helper()
	s, err := r.Create(context.Background(), name, Spec{Command: "sleep 60"})
	if err != nil {
		t.Fatalf("create %q: %v", name, err)
	}
	return s
}

func TestValidName(t *testing.T) {
	valid := []string{"a", "work", "my.session-1_x", "0"}
	for _, n := range valid {
		if !ValidName(n) {
			t.Errorf("%q should be valid", n)
		}
	}
	invalid := []string{"", "has space", "slash/name", "x@y", string(make([]byte, 101))}
	for _, n := range invalid {
		if ValidName(n) {
			t.Errorf("%q should be invalid", n)
		}
	}
}

func TestCreateAndGet(t *testing.T) {
	r := NewRegistry(0)
	defer r.Drain()
	s := spawn(t, r, "work")
	if s.Name != "work" {
		t.Errorf("name = %q", s.Name)
	}
	got, ok := r.Get("work")
	if !ok || got != s {
		t.Error("lookup failed")
	}
	if r.Len() != 1 {
		t.Errorf("len = %d", r.Len())
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	r := NewRegistry(0)
	defer r.Drain()
	spawn(t, r, "dup")
	if _, err := r.Create(context.Background(), "dup", Spec{Command: "sleep 60"}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("err = %v, want duplicate", err)
	}
}

func TestInvalidNameRejected(t *testing.T) {
	r := NewRegistry(0)
	if _, err := r.Create(context.Background(), "bad name", Spec{}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("err = %v, want invalid name", err)
	}
}

func TestAutoNameAllocation(t *testing.T) {
	r := NewRegistry(0)
	defer r.Drain()
	s0, err := r.Create(context.Background(), "", Spec{Command: "sleep 60"})
	if err != nil {
		t.Fatal(err)
	}
	if s0.Name != "0" {
		t.Errorf("first auto name = %q, want 0", s0.Name)
	}
	s1, err := r.Create(context.Background(), "", Spec{Command: "sleep 60"})
	if err != nil {
		t.Fatal(err)
	}
	if s1.Name != "1" {
		t.Errorf("second auto name = %q, want 1", s1.Name)
	}
	// Free "0"; the next auto name reuses the lowest free integer.
	r.Remove("0")
	s2, err := r.Create(context.Background(), "", Spec{Command: "sleep 60"})
	if err != nil {
		t.Fatal(err)
	}
	if s2.Name != "0" {
		t.Errorf("reused auto name = %q, want 0", s2.Name)
	}
}

func TestMaxSessions(t *testing.T) {
	r := NewRegistry(1)
	defer r.Drain()
	spawn(t, r, "only")
	if _, err := r.Create(context.Background(), "more", Spec{Command: "sleep 60"}); !errors.Is(err, ErrMaxSessionsReached) {
		t.Errorf("err = %v, want max sessions", err)
	}
}

func TestRename(t *testing.T) {
	r := NewRegistry(0)
	defer r.Drain()
	spawn(t, r, "old")
	spawn(t, r, "taken")

	if err := r.Rename("old", "taken"); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("rename onto existing name: err = %v", err)
	}
	if err := r.Rename("old", "bad name"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("rename to invalid name: err = %v", err)
	}
	if err := r.Rename("old", "new"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok := r.Get("old"); ok {
		t.Error("old name still resolves")
	}
	s, ok := r.Get("new")
	if !ok || s.Name != "new" {
		t.Error("new name does not resolve")
	}
}

func TestRemoveEmitsDestroyed(t *testing.T) {
	r := NewRegistry(0)
	defer r.Drain()
	ev := r.SubscribeEvents()
	defer r.UnsubscribeEvents(ev)

	spawn(t, r, "gone")
	if e := <-ev; e.Kind != EventCreated || e.Name != "gone" {
		t.Errorf("event = %+v", e)
	}
	if !r.Remove("gone") {
		t.Fatal("remove failed")
	}
	select {
	case e := <-ev:
		if e.Kind != EventDestroyed || e.Name != "gone" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no destroyed event")
	}
	if r.Remove("gone") {
		t.Error("second remove should return false")
	}
}

func TestChildExitEmitsExited(t *testing.T) {
	r := NewRegistry(0)
	defer r.Drain()
	ev := r.SubscribeEvents()
	defer r.UnsubscribeEvents(ev)

	if _, err := r.Create(context.Background(), "brief", Spec{Command: "true"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-ev:
			if e.Kind == EventExited {
				if e.Name != "brief" {
					t.Errorf("event = %+v", e)
				}
				return
			}
		case <-deadline:
			t.Fatal("no exited event")
		}
	}
}

func TestDrain(t *testing.T) {
	r := NewRegistry(0)
	spawn(t, r, "a")
	spawn(t, r, "b")

	s, _ := r.Get("a")
	detach := s.SubscribeDetach()

	r.Drain()
	if r.Len() != 0 {
		t.Errorf("len = %d after drain", r.Len())
	}
	select {
	case <-detach:
	case <-time.After(time.Second):
		t.Error("detach not signalled on drain")
	}
	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Error("session context not cancelled on drain")
	}
}

func TestSessionInputCaptureRouting(t *testing.T) {
	r := NewRegistry(0)
	defer r.Drain()
	s := spawn(t, r, "cap")

	events := s.InputEvents().Subscribe()
	defer s.InputEvents().Unsubscribe(events)

	if err := s.InputMode().Capture("client-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SendInput([]byte("hi")); err != nil {
		t.Fatalf("send in capture mode: %v", err)
	}
	// Input was broadcast but not queued for the PTY.
	select {
	case e := <-events:
		if string(e.Raw) != "hi" {
			t.Errorf("raw = %q", e.Raw)
		}
	case <-time.After(time.Second):
		t.Fatal("input not broadcast in capture mode")
	}
	if len(s.inputCh) != 0 {
		t.Error("capture-mode input must not reach the PTY channel")
	}

	// Disconnect auto-releases the capture.
	s.AddClient("client-1")
	s.RemoveClient("client-1")
	if s.InputMode().IsCapture() {
		t.Error("capture not released on disconnect")
	}
}

func TestSendInputTouchesActivity(t *testing.T) {
	r := NewRegistry(0)
	defer r.Drain()
	s := spawn(t, r, "act")
	before := s.Activity().Generation()
	if err := s.SendInput([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if s.Activity().Generation() <= before {
		t.Error("input did not touch the activity tracker")
	}
}
