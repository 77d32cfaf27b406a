package parser

import "testing"

func fg(c Color) *Color { return &c }

func TestDefaultStyleProducesNoSGR(t *testing.T) {
	out := SpansToANSI([]Span{{Text: "hello"}})
	if out != "hello" {
		t.Errorf("out = %q", out)
	}
}

func TestAttributeSGRCodes(t *testing.T) {
	tests := []struct {
		name  string
		style Style
		want  string
	}{
		{"bold", Style{Bold: true}, "1"},
		{"faint", Style{Faint: true}, "2"},
		{"italic", Style{Italic: true}, "3"},
		{"underline", Style{Underline: true}, "4"},
		{"blink", Style{Blink: true}, "5"},
		{"inverse", Style{Inverse: true}, "7"},
		{"strikethrough", Style{Strikethrough: true}, "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := styleToSGR(tt.style); got != tt.want {
				t.Errorf("sgr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestColorSGRCodes(t *testing.T) {
	tests := []struct {
		color Color
		isFg  bool
		want  string
	}{
		{IndexedColor(0), true, "30"},
		{IndexedColor(7), true, "37"},
		{IndexedColor(0), false, "40"},
		{IndexedColor(7), false, "47"},
		{IndexedColor(8), true, "90"},
		{IndexedColor(15), true, "97"},
		{IndexedColor(8), false, "100"},
		{IndexedColor(15), false, "107"},
		{IndexedColor(16), true, "38;5;16"},
		{IndexedColor(255), true, "38;5;255"},
		{IndexedColor(128), false, "48;5;128"},
		{RGB(255, 128, 0), true, "38;2;255;128;0"},
		{RGB(0, 0, 0), false, "48;2;0;0;0"},
	}
	for _, tt := range tests {
		if got := colorToSGR(tt.color, tt.isFg); got != tt.want {
			t.Errorf("colorToSGR(%+v, %v) = %q, want %q", tt.color, tt.isFg, got, tt.want)
		}
	}
}

func TestCombinedAttributes(t *testing.T) {
	got := styleToSGR(Style{Bold: true, Italic: true, Fg: fg(IndexedColor(1))})
	if got != "1;3;31" {
		t.Errorf("sgr = %q", got)
	}
}

func TestSpansToANSIMixed(t *testing.T) {
	out := SpansToANSI([]Span{
		{Text: "normal "},
		{Text: "bold", Style: Style{Bold: true}},
	})
	if out != "normal \x1b[1mbold\x1b[0m" {
		t.Errorf("out = %q", out)
	}
}

func TestSpansFromANSIPlain(t *testing.T) {
	spans := SpansFromANSI("plain text")
	if len(spans) != 1 || spans[0].Text != "plain text" || !spans[0].Style.IsDefault() {
		t.Errorf("spans = %+v", spans)
	}
}

func TestSpansFromANSIStyledRuns(t *testing.T) {
	spans := SpansFromANSI("\x1b[1;31mred\x1b[0m plain \x1b[38;2;100;200;50mrgb\x1b[0m")
	if len(spans) != 3 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].Text != "red" || !spans[0].Bold || spans[0].Fg == nil || spans[0].Fg.Index != 1 {
		t.Errorf("span0 = %+v", spans[0])
	}
	if spans[1].Text != " plain " || !spans[1].Style.IsDefault() {
		t.Errorf("span1 = %+v", spans[1])
	}
	if spans[2].Fg == nil || !spans[2].Fg.IsRGB || spans[2].Fg.R != 100 || spans[2].Fg.G != 200 || spans[2].Fg.B != 50 {
		t.Errorf("span2 = %+v", spans[2])
	}
}

func TestSpansFromANSIIgnoresNonSGR(t *testing.T) {
	spans := SpansFromANSI("a\x1b[2Jb\x1b]0;title\x07c")
	if len(spans) != 1 || spans[0].Text != "abc" {
		t.Errorf("spans = %+v", spans)
	}
}

func TestRoundTripSpansANSISpans(t *testing.T) {
	orig := []Span{
		{Text: "red", Style: Style{Bold: true, Fg: fg(IndexedColor(1))}},
		{Text: " plain "},
		{Text: "bg", Style: Style{Bg: fg(IndexedColor(4))}},
	}
	back := SpansFromANSI(SpansToANSI(orig))
	if len(back) != len(orig) {
		t.Fatalf("back = %+v", back)
	}
	for i := range orig {
		if back[i].Text != orig[i].Text || !back[i].Style.equal(orig[i].Style) {
			t.Errorf("span %d: got %+v, want %+v", i, back[i], orig[i])
		}
	}
}

func TestFormatRenderedPlainTrims(t *testing.T) {
	line := FormatRendered("hello   ", FormatPlain)
	if line.Styled() || line.Plain() != "hello" {
		t.Errorf("line = %+v", line)
	}
}

func TestFormatRenderedPlainStripsEscapes(t *testing.T) {
	line := FormatRendered("\x1b[1mbold\x1b[0m text  ", FormatPlain)
	if line.Plain() != "bold text" {
		t.Errorf("plain = %q", line.Plain())
	}
}

func TestFormatRenderedStyledTrimsDefaultWhitespaceOnly(t *testing.T) {
	// Trailing default-styled spaces removed, styled spaces preserved.
	line := FormatRendered("\x1b[41m    \x1b[0m     ", FormatStyled)
	spans := line.Spans()
	if len(spans) != 1 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].Text != "    " || spans[0].Bg == nil {
		t.Errorf("span = %+v", spans[0])
	}
}

func TestFormatRenderedStyledAllDefaultWhitespace(t *testing.T) {
	line := FormatRendered("     ", FormatStyled)
	if len(line.Spans()) != 0 {
		t.Errorf("spans = %+v", line.Spans())
	}
}

func TestFormatRenderedStyledPartialTrim(t *testing.T) {
	line := FormatRendered("hello   ", FormatStyled)
	spans := line.Spans()
	if len(spans) != 1 || spans[0].Text != "hello" {
		t.Errorf("spans = %+v", spans)
	}
}

// Plain → styled → plain of the same content preserves the plain text.
func TestPlainStyledPlainRoundTrip(t *testing.T) {
	rendered := "\x1b[32mgreen\x1b[0m and default"
	plain := FormatRendered(rendered, FormatPlain)
	styled := FormatRendered(rendered, FormatStyled)
	var fromStyled string
	for _, s := range styled.Spans() {
		fromStyled += s.Text
	}
	if plain.Plain() != fromStyled {
		t.Errorf("plain %q != styled concat %q", plain.Plain(), fromStyled)
	}
}

func TestLineToANSI(t *testing.T) {
	if got := LineToANSI(PlainLine("plain text")); got != "plain text" {
		t.Errorf("plain = %q", got)
	}
	styled := StyledLine([]Span{{Text: "normal "}, {Text: "bold", Style: Style{Bold: true}}})
	if got := LineToANSI(styled); got != "normal \x1b[1mbold\x1b[0m" {
		t.Errorf("styled = %q", got)
	}
}
