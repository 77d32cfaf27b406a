package input

// ParsedKey is a structured key event recognized from raw input bytes.
type ParsedKey struct {
	// Key is the recognized key name or character, empty if unrecognized.
	Key string `json:"key,omitempty"`
	// Modifiers active during the key press (e.g. "ctrl").
	Modifiers []string `json:"modifiers,omitempty"`
}

// IsCtrlBackslash reports whether the data is Ctrl+\ (byte 0x1c), the
// local capture-toggle escape hatch.
func IsCtrlBackslash(data []byte) bool {
	return len(data) == 1 && data[0] == 0x1c
}

// ParseKey interprets raw input bytes as a key event.
//
// Recognized forms:
//   - control chars 0x01-0x1a: letter with "ctrl" modifier
//   - 0x1c-0x1f: "\", "]", "^", "_" with "ctrl" modifier
//   - 0x09 Tab, 0x0d Enter, 0x1b Escape (single byte), 0x7f Backspace
//   - printable ASCII 0x20-0x7e: the character itself
//   - ESC [ A/B/C/D/H/F: arrow keys, Home, End
//
// Anything else yields a zero ParsedKey.
func ParseKey(data []byte) ParsedKey {
	if len(data) == 0 {
		return ParsedKey{}
	}

	if len(data) >= 3 && data[0] == 0x1b && data[1] == '[' {
		switch data[2] {
		case 'A':
			return ParsedKey{Key: "ArrowUp"}
		case 'B':
			return ParsedKey{Key: "ArrowDown"}
		case 'C':
			return ParsedKey{Key: "ArrowRight"}
		case 'D':
			return ParsedKey{Key: "ArrowLeft"}
		case 'H':
			return ParsedKey{Key: "Home"}
		case 'F':
			return ParsedKey{Key: "End"}
		}
		return ParsedKey{}
	}

	if len(data) != 1 {
		return ParsedKey{}
	}

	b := data[0]
	switch {
	case b == 0x09:
		return ParsedKey{Key: "Tab"}
	case b == 0x0d:
		return ParsedKey{Key: "Enter"}
	case b == 0x1b:
		return ParsedKey{Key: "Escape"}
	case b >= 0x01 && b <= 0x1a:
		return ParsedKey{Key: string(rune(b - 1 + 'a')), Modifiers: []string{"ctrl"}}
	case b == 0x1c:
		return ParsedKey{Key: `\`, Modifiers: []string{"ctrl"}}
	case b == 0x1d:
		return ParsedKey{Key: "]", Modifiers: []string{"ctrl"}}
	case b == 0x1e:
		return ParsedKey{Key: "^", Modifiers: []string{"ctrl"}}
	case b == 0x1f:
		return ParsedKey{Key: "_", Modifiers: []string{"ctrl"}}
	case b == 0x7f:
		return ParsedKey{Key: "Backspace"}
	case b >= 0x20 && b <= 0x7e:
		return ParsedKey{Key: string(rune(b))}
	}
	return ParsedKey{}
}
