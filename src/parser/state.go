// Package parser owns the VT emulation for one session.
//
// A single actor goroutine feeds PTY bytes to the emulator, answers
// snapshot queries over a bounded channel, and publishes structured change
// events. Nothing outside the actor touches the emulator.
package parser

import (
	"encoding/json"
	"fmt"
)

// Format selects plain or styled line rendering.
type Format string

const (
	FormatPlain  Format = "plain"
	FormatStyled Format = "styled"
)

// ParseFormat validates a format query parameter. An empty value defaults
// to styled.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", string(FormatStyled):
		return FormatStyled, nil
	case string(FormatPlain):
		return FormatPlain, nil
	}
	return "", fmt.Errorf("expected 'plain' or 'styled', got %q", s)
}

// Color is a terminal color: either an indexed palette entry or a truecolor
// RGB triple. Indexed colors serialize as a bare number, RGB as {r,g,b}.
type Color struct {
	Index uint8
	R     uint8
	G     uint8
	B     uint8
	IsRGB bool
}

// IndexedColor builds a palette color.
func IndexedColor(idx uint8) Color { return Color{Index: idx} }

// RGB builds a truecolor value.
func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b, IsRGB: true} }

func (c Color) MarshalJSON() ([]byte, error) {
	if c.IsRGB {
		return json.Marshal(map[string]uint8{"r": c.R, "g": c.G, "b": c.B})
	}
	return json.Marshal(c.Index)
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var idx uint8
	if err := json.Unmarshal(data, &idx); err == nil {
		*c = Color{Index: idx}
		return nil
	}
	var rgb struct {
		R uint8 `json:"r"`
		G uint8 `json:"g"`
		B uint8 `json:"b"`
	}
	if err := json.Unmarshal(data, &rgb); err != nil {
		return fmt.Errorf("color must be an index or an {r,g,b} object")
	}
	*c = Color{R: rgb.R, G: rgb.G, B: rgb.B, IsRGB: true}
	return nil
}

// Style holds the text attributes of a span.
type Style struct {
	Fg            *Color `json:"fg,omitempty"`
	Bg            *Color `json:"bg,omitempty"`
	Bold          bool   `json:"bold,omitempty"`
	Faint         bool   `json:"faint,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Underline     bool   `json:"underline,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
	Blink         bool   `json:"blink,omitempty"`
	Inverse       bool   `json:"inverse,omitempty"`
}

// IsDefault reports whether the style carries no attributes or colors.
func (s Style) IsDefault() bool {
	return s.Fg == nil && s.Bg == nil && !s.Bold && !s.Faint && !s.Italic &&
		!s.Underline && !s.Strikethrough && !s.Blink && !s.Inverse
}

func (s Style) equal(o Style) bool {
	if (s.Fg == nil) != (o.Fg == nil) || (s.Bg == nil) != (o.Bg == nil) {
		return false
	}
	if s.Fg != nil && *s.Fg != *o.Fg {
		return false
	}
	if s.Bg != nil && *s.Bg != *o.Bg {
		return false
	}
	return s.Bold == o.Bold && s.Faint == o.Faint && s.Italic == o.Italic &&
		s.Underline == o.Underline && s.Strikethrough == o.Strikethrough &&
		s.Blink == o.Blink && s.Inverse == o.Inverse
}

// Span is a run of text with one style. Style fields are flattened into the
// span object on the wire.
type Span struct {
	Text string `json:"text"`
	Style
}

// Line is one formatted terminal line: a plain string or a list of styled
// spans, depending on the requested format. Serializes untagged.
type Line struct {
	plain  string
	spans  []Span
	styled bool
}

// PlainLine builds a plain-format line.
func PlainLine(text string) Line { return Line{plain: text} }

// StyledLine builds a styled-format line.
func StyledLine(spans []Span) Line { return Line{spans: spans, styled: true} }

// Plain returns the line's text content. For styled lines, span texts are
// concatenated.
func (l Line) Plain() string {
	if !l.styled {
		return l.plain
	}
	var out string
	for _, s := range l.spans {
		out += s.Text
	}
	return out
}

// Spans returns the styled spans (nil for plain lines).
func (l Line) Spans() []Span { return l.spans }

// Styled reports whether this is a styled line.
func (l Line) Styled() bool { return l.styled }

func (l Line) MarshalJSON() ([]byte, error) {
	if l.styled {
		if l.spans == nil {
			return json.Marshal([]Span{})
		}
		return json.Marshal(l.spans)
	}
	return json.Marshal(l.plain)
}

func (l *Line) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*l = Line{plain: text}
		return nil
	}
	var spans []Span
	if err := json.Unmarshal(data, &spans); err != nil {
		return fmt.Errorf("line must be a string or a span array")
	}
	*l = Line{spans: spans, styled: true}
	return nil
}

// Cursor is the terminal cursor position and visibility.
type Cursor struct {
	Row     int  `json:"row"`
	Col     int  `json:"col"`
	Visible bool `json:"visible"`
}

// ScreenResponse answers a screen snapshot query.
type ScreenResponse struct {
	Epoch           uint64 `json:"epoch"`
	FirstLineIndex  int    `json:"first_line_index"`
	TotalLines      int    `json:"total_lines"`
	Lines           []Line `json:"lines"`
	Cursor          Cursor `json:"cursor"`
	Cols            int    `json:"cols"`
	Rows            int    `json:"rows"`
	AlternateActive bool   `json:"alternate_active"`
}

// ScrollbackResponse answers a scrollback query.
type ScrollbackResponse struct {
	Epoch      uint64 `json:"epoch"`
	Lines      []Line `json:"lines"`
	TotalLines int    `json:"total_lines"`
	Offset     int    `json:"offset"`
}

// CursorResponse answers a cursor query.
type CursorResponse struct {
	Epoch  uint64 `json:"epoch"`
	Cursor Cursor `json:"cursor"`
}
