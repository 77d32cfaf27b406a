// Package overlay provides in-terminal drawing primitives layered on top of
// PTY content, and a thread-safe store for them.
package overlay

import (
	"encoding/json"
	"fmt"
)

// ScreenMode identifies which screen buffer an overlay or panel belongs to.
// Elements tagged with a mode are only visible (and returned by list
// endpoints) while the session is in that mode.
type ScreenMode string

const (
	ScreenModeNormal ScreenMode = "normal"
	ScreenModeAlt    ScreenMode = "alt"
)

// Named ANSI colors accepted in overlay styling.
var namedColors = map[string]bool{
	"black": true, "red": true, "green": true, "yellow": true,
	"blue": true, "magenta": true, "cyan": true, "white": true,
}

// Color is either a named ANSI color or an RGB triple. It serializes as
// either a bare string ("red") or an object ({"r":255,"g":0,"b":0}).
type Color struct {
	Name string
	R    uint8
	G    uint8
	B    uint8
	RGB  bool
}

// NamedColor builds a named color value.
func NamedColor(name string) Color { return Color{Name: name} }

// RGBColor builds an RGB color value.
func RGBColor(r, g, b uint8) Color { return Color{R: r, G: g, B: b, RGB: true} }

func (c Color) MarshalJSON() ([]byte, error) {
	if c.RGB {
		return json.Marshal(map[string]uint8{"r": c.R, "g": c.G, "b": c.B})
	}
	return json.Marshal(c.Name)
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		if !namedColors[name] {
			return fmt.Errorf("unknown color name %q", name)
		}
		*c = Color{Name: name}
		return nil
	}
	var rgb struct {
		R uint8 `json:"r"`
		G uint8 `json:"g"`
		B uint8 `json:"b"`
	}
	if err := json.Unmarshal(data, &rgb); err != nil {
		return fmt.Errorf("color must be a named color string or an {r,g,b} object")
	}
	*c = Color{R: rgb.R, G: rgb.G, B: rgb.B, RGB: true}
	return nil
}

// Span is a styled text run within an overlay or panel.
type Span struct {
	Text      string `json:"text"`
	ID        string `json:"id,omitempty"`
	Fg        *Color `json:"fg,omitempty"`
	Bg        *Color `json:"bg,omitempty"`
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
}

// RegionWrite is a styled text write at a specific (row, col) offset within
// an overlay or panel. Enables freeform cell-level drawing for charts and
// other non-linear content.
type RegionWrite struct {
	Row       uint16 `json:"row"`
	Col       uint16 `json:"col"`
	Text      string `json:"text"`
	Fg        *Color `json:"fg,omitempty"`
	Bg        *Color `json:"bg,omitempty"`
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
}

// Background is the fill style for an element's bounding rectangle.
type Background struct {
	Bg Color `json:"bg"`
}

// Overlay is a positioned drawing layered on top of terminal content.
type Overlay struct {
	ID           string        `json:"id"`
	X            uint16        `json:"x"`
	Y            uint16        `json:"y"`
	Z            int           `json:"z"`
	Width        uint16        `json:"width"`
	Height       uint16        `json:"height"`
	Background   *Background   `json:"background,omitempty"`
	Spans        []Span        `json:"spans"`
	RegionWrites []RegionWrite `json:"region_writes,omitempty"`
	Focusable    bool          `json:"focusable,omitempty"`
	ScreenMode   ScreenMode    `json:"screen_mode,omitempty"`
}
