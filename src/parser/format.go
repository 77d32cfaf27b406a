package parser

import "strings"

// FormatRendered converts a rendered (ANSI-carrying) terminal line into a
// formatted line.
//
// Plain format strips escape sequences and trims trailing whitespace.
// Styled format collapses runs of identical style into spans and trims
// trailing whitespace only while it carries default styling, preserving
// intentional styled whitespace such as colored backgrounds.
func FormatRendered(rendered string, format Format) Line {
	spans := SpansFromANSI(rendered)
	if format == FormatPlain {
		var text strings.Builder
		for _, s := range spans {
			text.WriteString(s.Text)
		}
		return PlainLine(strings.TrimRight(text.String(), " \t"))
	}
	return StyledLine(trimTrailingDefaultWhitespace(spans))
}

// trimTrailingDefaultWhitespace removes trailing whitespace from spans, but
// only while the trailing spans have default styling.
func trimTrailingDefaultWhitespace(spans []Span) []Span {
	for len(spans) > 0 {
		last := &spans[len(spans)-1]
		if !last.Style.IsDefault() {
			break
		}
		trimmed := strings.TrimRight(last.Text, " \t")
		if trimmed == "" {
			spans = spans[:len(spans)-1]
			continue
		}
		last.Text = trimmed
		break
	}
	return spans
}
