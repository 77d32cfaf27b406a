package parser

import (
	"bytes"
	"strings"
)

// altScreenDetector tracks DEC private mode set/reset sequences (modes 47,
// 1047, 1049) across chunk boundaries.
//
// Terminal output arrives in arbitrary-sized chunks that may split an
// escape sequence anywhere — after ESC, after '[', after '?', mid-params,
// or before the final byte. The detector buffers partial sequences so any
// splitting of the same byte stream yields the same final state. It also
// recognizes the C1 CSI form (U+009B, UTF-8 0xC2 0x9B).
type altScreenDetector struct {
	// partial holds bytes of an in-flight sequence carried across chunks.
	partial []byte
}

// scan states while walking a chunk.
type scanState int

const (
	scanGround    scanState = iota // not inside any escape sequence
	scanEsc                        // seen ESC, waiting for '['
	scanCsiEntry                   // inside CSI, waiting for '?'
	scanDecParams                  // seen CSI ?, collecting parameter bytes
)

func newAltScreenDetector() *altScreenDetector {
	return &altScreenDetector{}
}

// feed scans a chunk and returns the alternate-active state after it.
// Multiple transitions within one chunk apply in order.
func (d *altScreenDetector) feed(chunk []byte, current bool) bool {
	state := current
	scan := scanGround
	if len(d.partial) > 0 {
		scan = d.classifyPartial()
	}

	for _, b := range chunk {
		switch scan {
		case scanGround:
			switch {
			case b == 0x1b:
				d.partial = d.partial[:0]
				d.partial = append(d.partial, b)
				scan = scanEsc
			case b == 0xc2:
				// Potential start of C1 CSI (U+009B = 0xC2 0x9B).
				d.partial = d.partial[:0]
				d.partial = append(d.partial, b)
			case len(d.partial) == 1 && d.partial[0] == 0xc2 && b == 0x9b:
				d.partial = append(d.partial[:0], 0xc2, 0x9b)
				scan = scanCsiEntry
			default:
				d.partial = d.partial[:0]
			}

		case scanEsc:
			if b == '[' {
				d.partial = append(d.partial, b)
				scan = scanCsiEntry
			} else {
				d.partial = d.partial[:0]
				scan = scanGround
			}

		case scanCsiEntry:
			if b == '?' {
				d.partial = append(d.partial, b)
				scan = scanDecParams
			} else {
				// Not a DEC private mode sequence; abandon and reclassify
				// this byte as a potential sequence start.
				d.partial = d.partial[:0]
				scan = scanGround
				if b == 0x1b {
					d.partial = append(d.partial, b)
					scan = scanEsc
				}
			}

		case scanDecParams:
			switch {
			case b >= 0x30 && b <= 0x3f:
				d.partial = append(d.partial, b)
			case b == 'h' || b == 'l':
				if toggled, on := d.processParams(b == 'h'); toggled {
					state = on
				}
				d.partial = d.partial[:0]
				scan = scanGround
			default:
				d.partial = d.partial[:0]
				scan = scanGround
				if b == 0x1b {
					d.partial = append(d.partial, b)
					scan = scanEsc
				}
			}
		}
	}

	if scan == scanGround && !(len(d.partial) == 1 && d.partial[0] == 0xc2) {
		d.partial = d.partial[:0]
	}
	return state
}

// classifyPartial determines which scan state the buffered partial
// represents.
func (d *altScreenDetector) classifyPartial() scanState {
	p := d.partial
	if len(p) == 0 {
		return scanGround
	}
	if len(p) == 1 && p[0] == 0xc2 {
		// Waiting for 0x9B; handled in ground state.
		return scanGround
	}
	if len(p) == 1 && p[0] == 0x1b {
		return scanEsc
	}
	csi := (len(p) >= 2 && p[0] == 0x1b && p[1] == '[') ||
		(len(p) >= 2 && p[0] == 0xc2 && p[1] == 0x9b)
	if !csi {
		return scanGround
	}
	if len(p) <= 2 {
		return scanCsiEntry
	}
	if p[2] == '?' {
		return scanDecParams
	}
	return scanGround
}

// processParams checks the buffered parameters for an alternate screen
// mode. Returns (found, entering).
func (d *altScreenDetector) processParams(entering bool) (bool, bool) {
	// Params start after the introducer plus '?': ESC [ ? or C1-CSI ?.
	const paramsStart = 3
	if paramsStart > len(d.partial) {
		return false, false
	}
	params := string(d.partial[paramsStart:])
	for _, param := range strings.Split(params, ";") {
		switch param {
		case "47", "1047", "1049":
			return true, entering
		}
	}
	return false, false
}

// containsAltScreenSequence is a convenience for tests: scans a complete
// byte stream in one shot.
func containsAltScreenSequence(data []byte, current bool) bool {
	d := newAltScreenDetector()
	return d.feed(bytes.Clone(data), current)
}
