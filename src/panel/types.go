// Package panel provides top-/bottom-anchored drawings that carve dedicated
// rows out of the PTY viewport, plus the greedy layout algorithm that
// allocates terminal rows to panels.
package panel

import "github.com/deepgram/wsh/src/overlay"

// Position is the terminal edge a panel is anchored to.
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
)

// Panel carves out dedicated rows at the top or bottom of the terminal.
//
// Unlike overlays (which draw on top of PTY content), panels shrink the PTY
// viewport so that programs never write into panel space. Visible is not a
// client field; the layout algorithm computes it.
type Panel struct {
	ID           string                `json:"id"`
	Position     Position              `json:"position"`
	Height       uint16                `json:"height"`
	Z            int                   `json:"z"`
	Background   *overlay.Background   `json:"background,omitempty"`
	Spans        []overlay.Span        `json:"spans"`
	RegionWrites []overlay.RegionWrite `json:"region_writes,omitempty"`
	Visible      bool                  `json:"visible"`
	Focusable    bool                  `json:"focusable,omitempty"`
	ScreenMode   overlay.ScreenMode    `json:"screen_mode,omitempty"`
}
