package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// This file converts between styled spans and raw ANSI escape sequences.
//
// Spans → ANSI is used by the attach handler to replay styled screen and
// scrollback content to reconnecting raw clients. ANSI → spans is used to
// lift the emulator's rendered lines into structured form for the API.

// LineToANSI renders a formatted line as a string containing ANSI escape
// sequences.
func LineToANSI(line Line) string {
	if !line.Styled() {
		return line.Plain()
	}
	return SpansToANSI(line.Spans())
}

// SpansToANSI renders spans as an ANSI-styled string. Default-styled spans
// produce no escape sequences.
func SpansToANSI(spans []Span) string {
	var buf strings.Builder
	for _, span := range spans {
		if span.Style.IsDefault() {
			buf.WriteString(span.Text)
		} else {
			buf.WriteString("\x1b[")
			buf.WriteString(styleToSGR(span.Style))
			buf.WriteByte('m')
			buf.WriteString(span.Text)
			buf.WriteString("\x1b[0m")
		}
	}
	return buf.String()
}

// styleToSGR builds the semicolon-separated SGR parameter list (without the
// CSI prefix or the final 'm').
func styleToSGR(style Style) string {
	var params []string
	if style.Bold {
		params = append(params, "1")
	}
	if style.Faint {
		params = append(params, "2")
	}
	if style.Italic {
		params = append(params, "3")
	}
	if style.Underline {
		params = append(params, "4")
	}
	if style.Blink {
		params = append(params, "5")
	}
	if style.Inverse {
		params = append(params, "7")
	}
	if style.Strikethrough {
		params = append(params, "9")
	}
	if style.Fg != nil {
		params = append(params, colorToSGR(*style.Fg, true))
	}
	if style.Bg != nil {
		params = append(params, colorToSGR(*style.Bg, false))
	}
	return strings.Join(params, ";")
}

// colorToSGR maps a color to its SGR parameter string: 30-37/90-97 or
// 38;5;N / 38;2;r;g;b for foreground, the 40/100/48-based forms for
// background.
func colorToSGR(c Color, isFg bool) string {
	if c.IsRGB {
		prefix := 48
		if isFg {
			prefix = 38
		}
		return fmt.Sprintf("%d;2;%d;%d;%d", prefix, c.R, c.G, c.B)
	}
	idx := int(c.Index)
	switch {
	case idx <= 7:
		base := 40
		if isFg {
			base = 30
		}
		return strconv.Itoa(base + idx)
	case idx <= 15:
		base := 100
		if isFg {
			base = 90
		}
		return strconv.Itoa(base + idx - 8)
	default:
		prefix := 48
		if isFg {
			prefix = 38
		}
		return fmt.Sprintf("%d;5;%d", prefix, idx)
	}
}

// SpansFromANSI parses a rendered terminal line into styled spans. SGR
// sequences update the running style; every other escape sequence is
// dropped. Consecutive characters with identical style collapse into one
// span.
func SpansFromANSI(line string) []Span {
	var spans []Span
	var current Style
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			spans = append(spans, Span{Text: text.String(), Style: current})
			text.Reset()
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != 0x1b {
			text.WriteRune(r)
			continue
		}
		if i+1 >= len(runes) {
			break
		}
		switch runes[i+1] {
		case '[':
			// CSI: collect until final byte 0x40-0x7e.
			j := i + 2
			for j < len(runes) && (runes[j] < 0x40 || runes[j] > 0x7e) {
				j++
			}
			if j >= len(runes) {
				i = len(runes)
				break
			}
			if runes[j] == 'm' {
				next := applySGR(current, string(runes[i+2:j]))
				if !next.equal(current) {
					flush()
					current = next
				}
			}
			i = j
		case ']':
			// OSC: skip to BEL or ST (ESC \).
			j := i + 2
			for j < len(runes) {
				if runes[j] == 0x07 {
					break
				}
				if runes[j] == 0x1b && j+1 < len(runes) && runes[j+1] == '\\' {
					j++
					break
				}
				j++
			}
			i = j
		default:
			// Two-character escape; drop it.
			i++
		}
	}
	flush()
	return spans
}

// applySGR applies one SGR parameter list to a style and returns the result.
func applySGR(style Style, params string) Style {
	if params == "" {
		return Style{}
	}
	parts := strings.Split(params, ";")
	for i := 0; i < len(parts); i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			continue
		}
		switch {
		case n == 0:
			style = Style{}
		case n == 1:
			style.Bold = true
		case n == 2:
			style.Faint = true
		case n == 3:
			style.Italic = true
		case n == 4:
			style.Underline = true
		case n == 5:
			style.Blink = true
		case n == 7:
			style.Inverse = true
		case n == 9:
			style.Strikethrough = true
		case n == 22:
			style.Bold = false
			style.Faint = false
		case n == 23:
			style.Italic = false
		case n == 24:
			style.Underline = false
		case n == 25:
			style.Blink = false
		case n == 27:
			style.Inverse = false
		case n == 29:
			style.Strikethrough = false
		case n >= 30 && n <= 37:
			c := IndexedColor(uint8(n - 30))
			style.Fg = &c
		case n == 38 || n == 48:
			c, consumed, ok := extendedColor(parts[i+1:])
			if !ok {
				return style
			}
			if n == 38 {
				style.Fg = &c
			} else {
				style.Bg = &c
			}
			i += consumed
		case n == 39:
			style.Fg = nil
		case n >= 40 && n <= 47:
			c := IndexedColor(uint8(n - 40))
			style.Bg = &c
		case n == 49:
			style.Bg = nil
		case n >= 90 && n <= 97:
			c := IndexedColor(uint8(n - 90 + 8))
			style.Fg = &c
		case n >= 100 && n <= 107:
			c := IndexedColor(uint8(n - 100 + 8))
			style.Bg = &c
		}
	}
	return style
}

// extendedColor parses the tail of a 38/48 SGR: "5;N" or "2;r;g;b".
// Returns the color, the number of parameters consumed, and validity.
func extendedColor(parts []string) (Color, int, bool) {
	if len(parts) == 0 {
		return Color{}, 0, false
	}
	switch parts[0] {
	case "5":
		if len(parts) < 2 {
			return Color{}, 0, false
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 || idx > 255 {
			return Color{}, 0, false
		}
		return IndexedColor(uint8(idx)), 2, true
	case "2":
		if len(parts) < 4 {
			return Color{}, 0, false
		}
		var rgb [3]uint8
		for i := 0; i < 3; i++ {
			v, err := strconv.Atoi(parts[1+i])
			if err != nil || v < 0 || v > 255 {
				return Color{}, 0, false
			}
			rgb[i] = uint8(v)
		}
		return RGB(rgb[0], rgb[1], rgb[2]), 4, true
	}
	return Color{}, 0, false
}
