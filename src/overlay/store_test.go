package overlay

import (
	"encoding/json"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestCreateAndGet(t *testing.T) {
	s := NewStore()
	id := s.Create(CreateSpec{X: 5, Y: 10, Z: intPtr(50), Width: 80, Height: 1}, ScreenModeNormal)
	if id == "" {
		t.Fatal("empty id")
	}
	o, ok := s.Get(id, ScreenModeNormal)
	if !ok {
		t.Fatal("overlay not found")
	}
	if o.X != 5 || o.Y != 10 || o.Z != 50 {
		t.Errorf("overlay = %+v", o)
	}
}

func TestListSortedByZ(t *testing.T) {
	s := NewStore()
	s.Create(CreateSpec{Z: intPtr(100)}, ScreenModeNormal)
	s.Create(CreateSpec{Z: intPtr(50)}, ScreenModeNormal)
	s.Create(CreateSpec{Z: intPtr(75)}, ScreenModeNormal)

	list := s.List(ScreenModeNormal)
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].Z != 50 || list[1].Z != 75 || list[2].Z != 100 {
		t.Errorf("z order = %d,%d,%d", list[0].Z, list[1].Z, list[2].Z)
	}
}

func TestAutoIncrementZ(t *testing.T) {
	s := NewStore()
	id1 := s.Create(CreateSpec{}, ScreenModeNormal)
	id2 := s.Create(CreateSpec{}, ScreenModeNormal)
	o1, _ := s.Get(id1, ScreenModeNormal)
	o2, _ := s.Get(id2, ScreenModeNormal)
	if o2.Z <= o1.Z {
		t.Errorf("z not monotonic: %d then %d", o1.Z, o2.Z)
	}
}

func TestExplicitZBumpsCounter(t *testing.T) {
	s := NewStore()
	s.Create(CreateSpec{Z: intPtr(10)}, ScreenModeNormal)
	id := s.Create(CreateSpec{}, ScreenModeNormal)
	o, _ := s.Get(id, ScreenModeNormal)
	if o.Z <= 10 {
		t.Errorf("auto z = %d, want > 10", o.Z)
	}
}

func TestUpdateAndMove(t *testing.T) {
	s := NewStore()
	id := s.Create(CreateSpec{Width: 10, Height: 2}, ScreenModeNormal)

	if !s.Update(id, ScreenModeNormal, []Span{{Text: "hello"}}) {
		t.Fatal("update failed")
	}
	o, _ := s.Get(id, ScreenModeNormal)
	if len(o.Spans) != 1 || o.Spans[0].Text != "hello" {
		t.Errorf("spans = %+v", o.Spans)
	}

	x := uint16(3)
	z := 99
	if !s.Move(id, ScreenModeNormal, MoveSpec{X: &x, Z: &z}) {
		t.Fatal("move failed")
	}
	o, _ = s.Get(id, ScreenModeNormal)
	if o.X != 3 || o.Z != 99 {
		t.Errorf("after move: %+v", o)
	}
	// Height untouched.
	if o.Height != 2 {
		t.Errorf("height = %d", o.Height)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := NewStore()
	id := s.Create(CreateSpec{}, ScreenModeNormal)
	if !s.Delete(id, ScreenModeNormal) {
		t.Fatal("delete failed")
	}
	if _, ok := s.Get(id, ScreenModeNormal); ok {
		t.Error("overlay still present after delete")
	}
	if s.Delete(id, ScreenModeNormal) {
		t.Error("second delete should fail")
	}

	s.Create(CreateSpec{}, ScreenModeNormal)
	s.Create(CreateSpec{}, ScreenModeNormal)
	removed := s.Clear(ScreenModeNormal)
	if len(removed) != 2 {
		t.Errorf("cleared %d, want 2", len(removed))
	}
	if len(s.List(ScreenModeNormal)) != 0 {
		t.Error("list not empty after clear")
	}
}

func TestScreenModeScoping(t *testing.T) {
	s := NewStore()
	normalID := s.Create(CreateSpec{}, ScreenModeNormal)
	altID := s.Create(CreateSpec{}, ScreenModeAlt)

	if got := s.List(ScreenModeNormal); len(got) != 1 || got[0].ID != normalID {
		t.Errorf("normal list = %+v", got)
	}
	if got := s.List(ScreenModeAlt); len(got) != 1 || got[0].ID != altID {
		t.Errorf("alt list = %+v", got)
	}
	if _, ok := s.Get(altID, ScreenModeNormal); ok {
		t.Error("alt overlay visible under normal mode")
	}

	// Exiting alt destroys alt-tagged overlays.
	removed := s.DestroyMode(ScreenModeAlt)
	if len(removed) != 1 || removed[0] != altID {
		t.Errorf("destroyed = %v", removed)
	}
	if _, ok := s.Get(altID, ScreenModeAlt); ok {
		t.Error("alt overlay survives destruction")
	}
	if _, ok := s.Get(normalID, ScreenModeNormal); !ok {
		t.Error("normal overlay destroyed by alt exit")
	}
}

func TestColorJSON(t *testing.T) {
	b, err := json.Marshal(NamedColor("red"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"red"` {
		t.Errorf("named = %s", b)
	}

	b, err = json.Marshal(RGBColor(255, 128, 0))
	if err != nil {
		t.Fatal(err)
	}
	var rgb map[string]uint8
	if err := json.Unmarshal(b, &rgb); err != nil {
		t.Fatal(err)
	}
	if rgb["r"] != 255 || rgb["g"] != 128 || rgb["b"] != 0 {
		t.Errorf("rgb = %v", rgb)
	}

	var c Color
	if err := json.Unmarshal([]byte(`"blue"`), &c); err != nil {
		t.Fatal(err)
	}
	if c.Name != "blue" || c.RGB {
		t.Errorf("c = %+v", c)
	}
	if err := json.Unmarshal([]byte(`"mauve"`), &c); err == nil {
		t.Error("unknown color name should fail")
	}
	if err := json.Unmarshal([]byte(`{"r":1,"g":2,"b":3}`), &c); err != nil {
		t.Fatal(err)
	}
	if !c.RGB || c.R != 1 || c.G != 2 || c.B != 3 {
		t.Errorf("c = %+v", c)
	}
}

func TestZTiesBreakByCreationOrder(t *testing.T) {
	s := NewStore()
	first := s.Create(CreateSpec{Z: intPtr(5)}, ScreenModeNormal)
	second := s.Create(CreateSpec{Z: intPtr(5)}, ScreenModeNormal)
	list := s.List(ScreenModeNormal)
	if list[0].ID != first || list[1].ID != second {
		t.Error("equal z should list in creation order")
	}
}
