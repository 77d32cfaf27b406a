package parser

import (
	"strings"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

// term wraps the VT emulator with scrollback capture and per-row change
// tracking. It is owned exclusively by the actor goroutine; no locking.
type term struct {
	emu *vt.Emulator

	cols, rows int

	// Scrollback ring of rendered lines scrolled off the top. Entries are
	// raw ANSI strings exactly as the emulator rendered them.
	scrollback []string
	sbHead     int
	sbLen      int

	// Rendered screen rows from the previous chunk, for change detection.
	prevRows []string

	altScreen    bool // emulator-reported, suppresses scrollback capture
	cursorHidden bool
}

func newTerm(cols, rows, scrollbackLimit int) *term {
	t := &term{
		cols:       cols,
		rows:       rows,
		scrollback: make([]string, scrollbackLimit),
		emu:        vt.NewEmulator(cols, rows),
	}
	t.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			if t.altScreen {
				return
			}
			for _, line := range lines {
				rendered := line.Render()
				if t.sbLen == len(t.scrollback) {
					t.scrollback[t.sbHead] = ""
				}
				t.scrollback[t.sbHead] = rendered
				t.sbHead = (t.sbHead + 1) % len(t.scrollback)
				if t.sbLen < len(t.scrollback) {
					t.sbLen++
				}
			}
		},
		ScrollbackClear: func() {
			for i := range t.scrollback {
				t.scrollback[i] = ""
			}
			t.sbLen = 0
			t.sbHead = 0
		},
		AltScreen: func(on bool) {
			t.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			t.cursorHidden = !visible
		},
	})
	t.prevRows = t.screenRows()
	return t
}

// feed writes a chunk to the emulator and returns the indices of screen
// rows whose rendered content changed.
func (t *term) feed(chunk []byte) []int {
	_, _ = t.emu.Write(chunk)
	rows := t.screenRows()
	var changed []int
	for i, row := range rows {
		if i >= len(t.prevRows) || t.prevRows[i] != row {
			changed = append(changed, i)
		}
	}
	t.prevRows = rows
	return changed
}

// screenRows renders the grid and splits it into per-row ANSI strings.
func (t *term) screenRows() []string {
	rendered := t.emu.Render()
	rows := strings.Split(rendered, "\n")
	for i, r := range rows {
		rows[i] = strings.TrimSuffix(r, "\r")
	}
	// The render always covers the full grid; pad or clamp defensively so
	// row indices stay stable.
	if len(rows) > t.rows {
		rows = rows[:t.rows]
	}
	for len(rows) < t.rows {
		rows = append(rows, "")
	}
	return rows
}

// resize changes the emulator dimensions and resets change tracking.
func (t *term) resize(cols, rows int) {
	t.emu.Resize(cols, rows)
	t.cols = cols
	t.rows = rows
	t.prevRows = t.screenRows()
}

// cursor returns the current cursor state.
func (t *term) cursor() Cursor {
	pos := t.emu.CursorPosition()
	return Cursor{Row: pos.Y, Col: pos.X, Visible: !t.cursorHidden}
}

// scrollbackLines returns all captured scrollback lines, oldest first.
func (t *term) scrollbackLines() []string {
	if t.sbLen == 0 {
		return nil
	}
	lines := make([]string, t.sbLen)
	start := (t.sbHead - t.sbLen + len(t.scrollback)) % len(t.scrollback)
	for i := 0; i < t.sbLen; i++ {
		lines[i] = t.scrollback[(start+i)%len(t.scrollback)]
	}
	return lines
}

// allLines returns history plus the current screen. In alt mode the
// alternate buffer has no history, so only the screen is returned.
func (t *term) allLines() []string {
	if t.altScreen {
		return t.screenRows()
	}
	return append(t.scrollbackLines(), t.screenRows()...)
}

// totalLines is the line count allLines would return.
func (t *term) totalLines() int {
	if t.altScreen {
		return t.rows
	}
	return t.sbLen + t.rows
}

func (t *term) close() {
	_ = t.emu.Close()
}
