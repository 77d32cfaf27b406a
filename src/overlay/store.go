package overlay

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store is a thread-safe store of overlays for one session.
//
// Every overlay is tagged with the screen mode that was current when it was
// created; list and get only see overlays whose tag matches the current
// mode. Exiting alt mode destroys alt-tagged overlays.
type Store struct {
	mu       sync.RWMutex
	overlays map[string]*Overlay
	order    map[string]int // creation order, breaks z ties deterministically
	created  int
	nextZ    int
}

// NewStore creates an empty overlay store.
func NewStore() *Store {
	return &Store{
		overlays: make(map[string]*Overlay),
		order:    make(map[string]int),
	}
}

// CreateSpec is the caller-provided portion of an overlay.
type CreateSpec struct {
	X            uint16
	Y            uint16
	Z            *int
	Width        uint16
	Height       uint16
	Background   *Background
	Spans        []Span
	RegionWrites []RegionWrite
	Focusable    bool
}

// Create adds a new overlay tagged with the given screen mode and returns
// its id. Without an explicit z, the next monotonic z is assigned;
// an explicit z that is at least the current counter bumps it.
func (s *Store) Create(spec CreateSpec, mode ScreenMode) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	z := 0
	if spec.Z != nil {
		z = *spec.Z
	} else {
		z = s.nextZ
		s.nextZ++
	}
	if z >= s.nextZ {
		s.nextZ = z + 1
	}

	s.overlays[id] = &Overlay{
		ID:           id,
		X:            spec.X,
		Y:            spec.Y,
		Z:            z,
		Width:        spec.Width,
		Height:       spec.Height,
		Background:   spec.Background,
		Spans:        spec.Spans,
		RegionWrites: spec.RegionWrites,
		Focusable:    spec.Focusable,
		ScreenMode:   mode,
	}
	s.order[id] = s.created
	s.created++
	return id
}

// Get returns a copy of the overlay with the given id if it exists and is
// tagged with the given mode.
func (s *Store) Get(id string, mode ScreenMode) (Overlay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overlays[id]
	if !ok || o.ScreenMode != mode {
		return Overlay{}, false
	}
	return *o, true
}

// List returns copies of all overlays tagged with the given mode, sorted by
// z ascending (creation order breaks ties).
func (s *Store) List(mode ScreenMode) []Overlay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Overlay, 0, len(s.overlays))
	for _, o := range s.overlays {
		if o.ScreenMode == mode {
			out = append(out, *o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Z != out[j].Z {
			return out[i].Z < out[j].Z
		}
		return s.order[out[i].ID] < s.order[out[j].ID]
	})
	return out
}

// Update replaces an overlay's spans.
func (s *Store) Update(id string, mode ScreenMode, spans []Span) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.overlays[id]
	if !ok || o.ScreenMode != mode {
		return false
	}
	o.Spans = spans
	return true
}

// MoveSpec holds the optional fields of a move operation.
type MoveSpec struct {
	X      *uint16
	Y      *uint16
	Z      *int
	Width  *uint16
	Height *uint16
}

// Move updates any of an overlay's position and size fields.
func (s *Store) Move(id string, mode ScreenMode, spec MoveSpec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.overlays[id]
	if !ok || o.ScreenMode != mode {
		return false
	}
	if spec.X != nil {
		o.X = *spec.X
	}
	if spec.Y != nil {
		o.Y = *spec.Y
	}
	if spec.Z != nil {
		o.Z = *spec.Z
		if o.Z >= s.nextZ {
			s.nextZ = o.Z + 1
		}
	}
	if spec.Width != nil {
		o.Width = *spec.Width
	}
	if spec.Height != nil {
		o.Height = *spec.Height
	}
	return true
}

// Delete removes an overlay. Returns true if it existed under the given mode.
func (s *Store) Delete(id string, mode ScreenMode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.overlays[id]
	if !ok || o.ScreenMode != mode {
		return false
	}
	delete(s.overlays, id)
	delete(s.order, id)
	return true
}

// Clear removes all overlays tagged with the given mode. Returns the ids of
// the removed overlays.
func (s *Store) Clear(mode ScreenMode) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, o := range s.overlays {
		if o.ScreenMode == mode {
			removed = append(removed, id)
			delete(s.overlays, id)
			delete(s.order, id)
		}
	}
	return removed
}

// DestroyMode removes every overlay tagged with the given mode, regardless
// of the current mode. Used when exiting alt screen, which destroys all
// alt-tagged overlays. Returns the removed ids so focus can be cleared.
func (s *Store) DestroyMode(mode ScreenMode) []string {
	return s.Clear(mode)
}
