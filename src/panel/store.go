package panel

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/deepgram/wsh/src/overlay"
)

// Store is a thread-safe store of panels for one session. Screen-mode
// scoping works exactly as for overlays.
type Store struct {
	mu      sync.RWMutex
	panels  map[string]*Panel
	order   map[string]int
	created int
	nextZ   int
}

// NewStore creates an empty panel store.
func NewStore() *Store {
	return &Store{
		panels: make(map[string]*Panel),
		order:  make(map[string]int),
	}
}

// CreateSpec is the caller-provided portion of a panel.
type CreateSpec struct {
	Position     Position
	Height       uint16
	Z            *int
	Background   *overlay.Background
	Spans        []overlay.Span
	RegionWrites []overlay.RegionWrite
	Focusable    bool
}

// Create adds a new panel tagged with the given screen mode and returns its
// id.
func (s *Store) Create(spec CreateSpec, mode overlay.ScreenMode) string {
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

	s.panels[id] = &Panel{
		ID:           id,
		Position:     spec.Position,
		Height:       spec.Height,
		Z:            z,
		Background:   spec.Background,
		Spans:        spec.Spans,
		RegionWrites: spec.RegionWrites,
		Visible:      true,
		Focusable:    spec.Focusable,
		ScreenMode:   mode,
	}
	s.order[id] = s.created
	s.created++
	return id
}

// Get returns a copy of the panel with the given id under the given mode.
func (s *Store) Get(id string, mode overlay.ScreenMode) (Panel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.panels[id]
	if !ok || p.ScreenMode != mode {
		return Panel{}, false
	}
	return *p, true
}

// List returns copies of all panels tagged with the given mode: top panels
// first, then bottom, each group sorted by z descending (edge first).
// Creation order breaks z ties.
func (s *Store) List(mode overlay.ScreenMode) []Panel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Panel, 0, len(s.panels))
	for _, p := range s.panels {
		if p.ScreenMode == mode {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position == PositionTop
		}
		if out[i].Z != out[j].Z {
			return out[i].Z > out[j].Z
		}
		return s.order[out[i].ID] < s.order[out[j].ID]
	})
	return out
}

// PatchSpec holds the optional fields of a panel patch.
type PatchSpec struct {
	Position   *Position
	Height     *uint16
	Z          *int
	Spans      []overlay.Span // nil = leave unchanged
	Background **overlay.Background
	Visible    *bool
}

// Patch updates any subset of a panel's fields.
func (s *Store) Patch(id string, mode overlay.ScreenMode, spec PatchSpec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[id]
	if !ok || p.ScreenMode != mode {
		return false
	}
	if spec.Position != nil {
		p.Position = *spec.Position
	}
	if spec.Height != nil {
		p.Height = *spec.Height
	}
	if spec.Z != nil {
		p.Z = *spec.Z
		if p.Z >= s.nextZ {
			s.nextZ = p.Z + 1
		}
	}
	if spec.Spans != nil {
		p.Spans = spec.Spans
	}
	if spec.Background != nil {
		p.Background = *spec.Background
	}
	if spec.Visible != nil {
		p.Visible = *spec.Visible
	}
	return true
}

// Update replaces a panel's spans.
func (s *Store) Update(id string, mode overlay.ScreenMode, spans []overlay.Span) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[id]
	if !ok || p.ScreenMode != mode {
		return false
	}
	p.Spans = spans
	return true
}

// UpdateSpans replaces the text and style of spans matched by span id,
// leaving all other spans untouched. Returns false if the panel does not
// exist under the given mode.
func (s *Store) UpdateSpans(id string, mode overlay.ScreenMode, updates []overlay.Span) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[id]
	if !ok || p.ScreenMode != mode {
		return false
	}
	for _, upd := range updates {
		if upd.ID == "" {
			continue
		}
		for i := range p.Spans {
			if p.Spans[i].ID == upd.ID {
				keep := p.Spans[i].ID
				p.Spans[i] = upd
				p.Spans[i].ID = keep
			}
		}
	}
	return true
}

// SetVisible overrides a panel's visible flag.
func (s *Store) SetVisible(id string, mode overlay.ScreenMode, visible bool) bool {
	v := visible
	return s.Patch(id, mode, PatchSpec{Visible: &v})
}

// Delete removes a panel. Returns true if it existed under the given mode.
func (s *Store) Delete(id string, mode overlay.ScreenMode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[id]
	if !ok || p.ScreenMode != mode {
		return false
	}
	delete(s.panels, id)
	delete(s.order, id)
	return true
}

// Clear removes all panels tagged with the given mode and returns their ids.
func (s *Store) Clear(mode overlay.ScreenMode) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, p := range s.panels {
		if p.ScreenMode == mode {
			removed = append(removed, id)
			delete(s.panels, id)
			delete(s.order, id)
		}
	}
	return removed
}

// DestroyMode removes every panel tagged with the given mode; used when
// exiting alt screen.
func (s *Store) DestroyMode(mode overlay.ScreenMode) []string {
	return s.Clear(mode)
}
