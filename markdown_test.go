package docpress

import (
	"strings"
	"testing"
)

func TestConvertHeadingIDs(t *testing.T) {
	t.Parallel()

	conv := NewConverter()
	out, err := conv.Convert("# Hello World\n\n## Hello World\n", nil, "intro.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out, `id="intro-md-hello-world"`) {
		t.Errorf("output missing prefixed heading id:\n%s", out)
	}
	// Duplicate heading text gets a numbered id.
	if !strings.Contains(out, `id="intro-md-hello-world-1"`) {
		t.Errorf("output missing deduplicated heading id:\n%s", out)
	}
}

func TestConvertIdempotent(t *testing.T) {
	t.Parallel()

	md := "# Title\n\nSome *text* with a [link](http://example.com).\n\n- a\n- b\n"
	conv := NewConverter()

	first, err := conv.Convert(md, nil, "a.md")
	if err != nil {
		t.Fatalf("first conversion: %v", err)
	}
	second, err := conv.Convert(md, nil, "a.md")
	if err != nil {
		t.Fatalf("second conversion: %v", err)
	}
	if first != second {
		t.Error("same input produced different HTML")
	}
}

func TestConvertExtensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		md   string
		want string
	}{
		{
			name: "task list checkbox",
			md:   "- [x] done\n- [ ] open\n",
			want: `type="checkbox"`,
		},
		{
			name: "pipe table",
			md:   "| a | b |\n| --- | --- |\n| 1 | 2 |\n",
			want: "<table>",
		},
		{
			name: "fenced code highlighting classes",
			md:   "```go\nfunc main() {}\n```\n",
			want: "chroma",
		},
		{
			name: "footnote",
			md:   "Text[^1]\n\n[^1]: A note.\n",
			want: "footnote",
		},
		{
			name: "mermaid block",
			md:   "```mermaid\ngraph TD;\nA-->B;\n```\n",
			want: "mermaid",
		},
		{
			name: "subscript",
			md:   "Water is H~2~O.\n",
			want: "H<sub>2</sub>O",
		},
		{
			name: "superscript",
			md:   "E=mc^2^\n",
			want: "mc<sup>2</sup>",
		},
	}

	conv := NewConverter()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := conv.Convert(tt.md, nil, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestConvertAbbreviations(t *testing.T) {
	t.Parallel()

	md := "*[HTML]: HyperText Markup Language\n\nHTML is everywhere, even `HTML` in code.\n"
	out, err := NewConverter().Convert(md, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out, `<abbr title="HyperText Markup Language">HTML</abbr>`) {
		t.Errorf("output missing abbr wrapping:\n%s", out)
	}
	if !strings.Contains(out, "<code>HTML</code>") {
		t.Errorf("code span should stay unwrapped:\n%s", out)
	}
	if strings.Contains(out, "*[HTML]") {
		t.Errorf("definition line leaked into output:\n%s", out)
	}
}

func TestConvertTOC(t *testing.T) {
	t.Parallel()

	md := "[TOC]\n\n## One\n\n### Two\n\n## Three\n"
	out, err := NewConverter().Convert(md, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out, `<nav class="toc">`) {
		t.Fatalf("output missing toc nav:\n%s", out)
	}
	for _, want := range []string{`href="#one"`, `href="#two"`, `href="#three"`} {
		if !strings.Contains(out, want) {
			t.Errorf("toc missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "[TOC]") {
		t.Errorf("marker left in output:\n%s", out)
	}
}

func TestConvertTOCDepthMeta(t *testing.T) {
	t.Parallel()

	md := "[TOC]\n\n## One\n\n### Two\n"
	meta := map[string]interface{}{"toc_depth": "2-2"}
	out, err := NewConverter().Convert(md, meta, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out, `href="#one"`) {
		t.Errorf("level-2 heading missing from toc:\n%s", out)
	}
	if strings.Contains(out, `href="#two"`) {
		t.Errorf("level-3 heading should be excluded:\n%s", out)
	}
}

func TestConvertTableCaption(t *testing.T) {
	t.Parallel()

	md := "| a |\n| --- |\n| 1 |\n\nTable: Results\n"

	out, err := NewConverter().Convert(md, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "<caption>Results</caption>") {
		t.Errorf("caption not attached:\n%s", out)
	}

	disabled, err := NewConverter().Convert(md, map[string]interface{}{"table_caption": false}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(disabled, "<caption>") {
		t.Errorf("caption attached despite table_caption: false:\n%s", disabled)
	}
}

func TestConvertGridTables(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		"+------+-----+",
		"| Name | Age |",
		"+======+=====+",
		"| Ada  | 36  |",
		"+------+-----+",
	}, "\n")
	want := strings.Join([]string{
		"| Name | Age |",
		"| --- | --- |",
		"| Ada | 36 |",
	}, "\n")

	if got := convertGridTables(in); got != want {
		t.Errorf("convertGridTables =\n%s\nwant\n%s", got, want)
	}
}

func TestConvertGridTablesMultilineCells(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		"+------+-----+",
		"| Name | Age |",
		"+======+=====+",
		"| Ada  | 36  |",
		"| Lady |     |",
		"+------+-----+",
	}, "\n")

	got := convertGridTables(in)
	if !strings.Contains(got, "| Ada Lady | 36 |") {
		t.Errorf("continuation row not merged:\n%s", got)
	}
}

func TestConvertGridTablesWithoutHeaderSeparator(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		"+---+---+",
		"| a | b |",
		"+---+---+",
		"| 1 | 2 |",
		"+---+---+",
	}, "\n")
	want := strings.Join([]string{
		"| a | b |",
		"| --- | --- |",
		"| 1 | 2 |",
	}, "\n")

	if got := convertGridTables(in); got != want {
		t.Errorf("convertGridTables =\n%s\nwant\n%s", got, want)
	}
}

func TestConvertTextboxes(t *testing.T) {
	t.Parallel()

	in := "!!! note\n    Be careful.\n\nafter\n"
	got := convertTextboxes(in)

	if !strings.Contains(got, `<div class="textbox note">`) {
		t.Errorf("missing textbox div:\n%s", got)
	}
	if !strings.Contains(got, "\nBe careful.\n") {
		t.Errorf("body not dedented:\n%s", got)
	}
	if !strings.Contains(got, "</div>\nafter") {
		t.Errorf("following content swallowed:\n%s", got)
	}
}

func TestConvertTextboxWithoutClass(t *testing.T) {
	t.Parallel()

	got := convertTextboxes("!!!\n    plain box\n")
	if !strings.Contains(got, `<div class="textbox">`) {
		t.Errorf("missing bare textbox div:\n%s", got)
	}
}

func TestConvertSubSupSkipsFences(t *testing.T) {
	t.Parallel()

	in := "H~2~O\n\n```\nvar x = a~b~\n```\n"
	got := convertSubSup(in)

	if !strings.Contains(got, "H<sub>2</sub>O") {
		t.Errorf("prose not converted:\n%s", got)
	}
	if !strings.Contains(got, "a~b~") {
		t.Errorf("fenced code was rewritten:\n%s", got)
	}
}

func TestExpandLeadingTabs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{
			name:  "leading tab",
			in:    "\t- nested",
			width: 2,
			want:  "  - nested",
		},
		{
			name:  "tab after text untouched",
			in:    "a\tb",
			width: 2,
			want:  "a\tb",
		},
		{
			name:  "mixed leading whitespace",
			in:    " \t- deep",
			width: 4,
			want:  "     - deep",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := expandLeadingTabs(tt.in, tt.width); got != tt.want {
				t.Errorf("expandLeadingTabs(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
		})
	}
}

func TestParseDepthRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		min    int
		max    int
		wantOK bool
	}{
		{"2-6", 2, 6, true},
		{"3", 3, 3, true},
		{"1-3", 1, 3, true},
		{"0-3", 0, 0, false},
		{"4-2", 0, 0, false},
		{"2-9", 0, 0, false},
		{"x", 0, 0, false},
	}

	for _, tt := range tests {
		min, max, ok := parseDepthRange(tt.in)
		if ok != tt.wantOK || min != tt.min || max != tt.max {
			t.Errorf("parseDepthRange(%q) = (%d, %d, %v), want (%d, %d, %v)",
				tt.in, min, max, ok, tt.min, tt.max, tt.wantOK)
		}
	}
}

func TestSanitizeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Intro.md", "intro-md"},
		{"Hello World!", "hello-world"},
		{"--dashes--", "dashes"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sanitizeID(tt.in); got != tt.want {
			t.Errorf("sanitizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHeadlineText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		html   string
		want   string
		wantOK bool
	}{
		{
			name:   "leading h1",
			html:   `<h1 id="x">Getting <em>Started</em></h1><p>body</p>`,
			want:   "Getting Started",
			wantOK: true,
		},
		{
			name:   "entities unescaped",
			html:   "<h1>Q &amp; A</h1>",
			want:   "Q & A",
			wantOK: true,
		},
		{
			name:   "no heading",
			html:   "<p>plain</p>",
			wantOK: false,
		},
		{
			name:   "heading not first",
			html:   "<p>intro</p><h1>Late</h1>",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := headlineText(tt.html)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("headlineText = %q, want %q", got, tt.want)
			}
			if hasCustomHeadline(tt.html) != tt.wantOK {
				t.Errorf("hasCustomHeadline = %v, want %v", !tt.wantOK, tt.wantOK)
			}
		})
	}
}
