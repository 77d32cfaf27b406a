package input

import "sync"

// FocusTracker tracks which overlay or panel currently has input focus.
//
// At most one element has focus at a time. Focus requires capture mode to
// be active; the tracker does not enforce this itself, the API layer checks
// capture mode before routing input.
type FocusTracker struct {
	mu      sync.RWMutex
	focused string // empty when nothing has focus
}

// NewFocusTracker creates a tracker with no focused element.
func NewFocusTracker() *FocusTracker {
	return &FocusTracker{}
}

// Focus sets focus to the element with the given id.
func (f *FocusTracker) Focus(id string) {
	f.mu.Lock()
	f.focused = id
	f.mu.Unlock()
}

// Unfocus removes focus from any element.
func (f *FocusTracker) Unfocus() {
	f.mu.Lock()
	f.focused = ""
	f.mu.Unlock()
}

// Focused returns the currently focused element's id, or "" if none.
func (f *FocusTracker) Focused() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.focused
}

// ClearIfFocused clears focus only if the given id currently has it.
// Used when an element is deleted.
func (f *FocusTracker) ClearIfFocused(id string) {
	f.mu.Lock()
	if f.focused == id {
		f.focused = ""
	}
	f.mu.Unlock()
}
