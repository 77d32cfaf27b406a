// Package input holds input-routing state for a session: the
// passthrough/capture mode, the focus tracker, key parsing, and the
// input-event broadcaster.
package input

import (
	"fmt"
	"sync"
)

// Mode is the current input routing mode.
type Mode string

const (
	// ModePassthrough delivers input to both API subscribers and the PTY.
	ModePassthrough Mode = "passthrough"
	// ModeCapture delivers input to API subscribers only.
	ModeCapture Mode = "capture"
)

// LocalOwner is the sentinel owner recorded when the local terminal user
// toggles capture (Ctrl+\).
const LocalOwner = "local"

// AlreadyCapturedError is returned when a different owner holds the capture.
type AlreadyCapturedError struct {
	Owner string
}

func (e *AlreadyCapturedError) Error() string {
	return fmt.Sprintf("input already captured by %s", e.Owner)
}

// ErrNotOwner is returned when the caller is not the current capture owner.
var ErrNotOwner = fmt.Errorf("caller is not the current capture owner")

// InputMode is thread-safe input mode state. Defaults to passthrough.
type InputMode struct {
	mu    sync.RWMutex
	mode  Mode
	owner string // empty when no owner holds the capture
}

// NewInputMode creates an InputMode in the default passthrough state.
func NewInputMode() *InputMode {
	return &InputMode{mode: ModePassthrough}
}

// Get returns the current mode.
func (m *InputMode) Get() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Capture sets the mode to capture with the given owner. Fails if a
// different owner already holds the capture; idempotent for the same owner.
func (m *InputMode) Capture(owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != "" && m.owner != owner {
		return &AlreadyCapturedError{Owner: m.owner}
	}
	m.mode = ModeCapture
	m.owner = owner
	return nil
}

// Release sets the mode to passthrough. Fails if another owner holds the
// capture; releasing from passthrough (no owner) succeeds.
func (m *InputMode) Release(owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != "" && m.owner != owner {
		return ErrNotOwner
	}
	m.mode = ModePassthrough
	m.owner = ""
	return nil
}

// ReleaseIfOwner releases the capture iff the given owner holds it. No-op
// otherwise. Used for auto-release on client disconnect.
func (m *InputMode) ReleaseIfOwner(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == owner {
		m.mode = ModePassthrough
		m.owner = ""
	}
}

// Toggle switches the mode. Entering capture records the "local" sentinel
// owner. Returns the new mode.
func (m *InputMode) Toggle() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModePassthrough {
		m.mode = ModeCapture
		m.owner = LocalOwner
	} else {
		m.mode = ModePassthrough
		m.owner = ""
	}
	return m.mode
}

// IsCapture reports whether the current mode is capture.
func (m *InputMode) IsCapture() bool {
	return m.Get() == ModeCapture
}

// Owner returns the current capture owner, or "" if none.
func (m *InputMode) Owner() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.owner
}
