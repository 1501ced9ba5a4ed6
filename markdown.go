package docpress

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	ghtml "github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/mermaid"
)

// Conversion defaults, overridable per article through meta keys.
const (
	defaultTabLength = 2
	defaultTOCMin    = 2
	defaultTOCMax    = 6
)

// Meta keys recognized by the converter.
const (
	metaTabLength    = "tab_length"
	metaTOCDepth     = "toc_depth"
	metaTableCaption = "table_caption"
)

// convertConfig holds the per-article toggles of the conversion pipeline.
type convertConfig struct {
	TabLength    int
	TOCMin       int
	TOCMax       int
	TableCaption bool
	IDPrefix     string
}

// Converter turns expanded Markdown into HTML through a fixed, ordered
// chain of extension stages. Conversion is stateless and idempotent: the
// same text and configuration always yield byte-identical HTML.
//
// List parsing follows CommonMark semantics, which already gives the
// "sane list" behavior: a number only starts an ordered list at the start
// of a block.
type Converter struct{}

// NewConverter creates a Converter.
func NewConverter() *Converter {
	return &Converter{}
}

// stage is one named step of the conversion pipeline. Markdown-level
// transforms run before Goldmark, extenders configure Goldmark itself,
// and HTML-level transforms run on its output. Order matters; the list
// in pipelineStages is fixed.
type stage struct {
	name      string
	enabled   func(cfg convertConfig) bool
	pre       func(cfg convertConfig, md string) string
	extenders func(cfg convertConfig) []goldmark.Extender
	post      func(cfg convertConfig, htmlContent string) string
}

// pipelineStages builds the ordered stage list for one conversion.
// Stages that need to carry state from the Markdown pass to the HTML pass
// (abbr) share it through closures, so the list must not be reused.
func pipelineStages() []stage {
	abbrDefs := map[string]string{}

	return []stage{
		{
			name: "tabwidth",
			pre: func(cfg convertConfig, md string) string {
				return expandLeadingTabs(md, cfg.TabLength)
			},
		},
		{
			name: "gridtable",
			pre: func(cfg convertConfig, md string) string {
				return convertGridTables(md)
			},
		},
		{
			name: "textbox",
			pre: func(cfg convertConfig, md string) string {
				return convertTextboxes(md)
			},
		},
		{
			name: "subsup",
			pre: func(cfg convertConfig, md string) string {
				return convertSubSup(md)
			},
		},
		{
			name: "abbr",
			pre: func(cfg convertConfig, md string) string {
				return collectAbbreviations(md, abbrDefs)
			},
			post: func(cfg convertConfig, htmlContent string) string {
				return wrapAbbreviations(htmlContent, abbrDefs)
			},
		},
		{
			name: "footnote",
			extenders: func(cfg convertConfig) []goldmark.Extender {
				return []goldmark.Extender{extension.Footnote}
			},
		},
		{
			name: "table",
			extenders: func(cfg convertConfig) []goldmark.Extender {
				return []goldmark.Extender{extension.Table}
			},
		},
		{
			name: "checkbox",
			extenders: func(cfg convertConfig) []goldmark.Extender {
				return []goldmark.Extender{extension.TaskList}
			},
		},
		{
			name: "fencedcode",
			extenders: func(cfg convertConfig) []goldmark.Extender {
				return []goldmark.Extender{
					highlighting.NewHighlighting(
						highlighting.WithFormatOptions(
							chromahtml.WithClasses(true),
						),
					),
				}
			},
		},
		{
			name: "mermaid",
			extenders: func(cfg convertConfig) []goldmark.Extender {
				return []goldmark.Extender{&mermaid.Extender{}}
			},
		},
		{
			name: "toc",
			post: func(cfg convertConfig, htmlContent string) string {
				return insertTOC(htmlContent, cfg)
			},
		},
		{
			name: "tablecaption",
			enabled: func(cfg convertConfig) bool {
				return cfg.TableCaption
			},
			post: func(cfg convertConfig, htmlContent string) string {
				return attachTableCaptions(htmlContent)
			},
		},
	}
}

// Convert renders contentMD to an HTML fragment. idPrefix (usually the
// article's file name) namespaces heading IDs so bundled articles do not
// collide. meta supplies the per-article configuration overrides.
func (c *Converter) Convert(contentMD string, meta map[string]interface{}, idPrefix string) (string, error) {
	cfg := parseConvertConfig(meta, idPrefix)
	stages := pipelineStages()

	md := contentMD
	for _, s := range stages {
		if s.pre != nil && stageEnabled(s, cfg) {
			md = s.pre(cfg, md)
		}
	}

	var exts []goldmark.Extender
	for _, s := range stages {
		if s.extenders != nil && stageEnabled(s, cfg) {
			exts = append(exts, s.extenders(cfg)...)
		}
	}

	// Unsafe rendering is required: the pre stages emit raw HTML
	// (sub/sup tags, textbox divs) that must pass through.
	gm := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			ghtml.WithUnsafe(),
			ghtml.WithXHTML(),
		),
	)

	pctx := parser.NewContext(parser.WithIDs(newPrefixedIDs(cfg.IDPrefix)))

	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf, parser.WithContext(pctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHTMLConversion, err)
	}

	out := buf.String()
	for _, s := range stages {
		if s.post != nil && stageEnabled(s, cfg) {
			out = s.post(cfg, out)
		}
	}
	return out, nil
}

func stageEnabled(s stage, cfg convertConfig) bool {
	return s.enabled == nil || s.enabled(cfg)
}

// parseConvertConfig reads the converter toggles out of article meta.
func parseConvertConfig(meta map[string]interface{}, idPrefix string) convertConfig {
	cfg := convertConfig{
		TabLength:    defaultTabLength,
		TOCMin:       defaultTOCMin,
		TOCMax:       defaultTOCMax,
		TableCaption: true,
		IDPrefix:     sanitizeID(idPrefix),
	}

	if n, ok := metaInt(meta, metaTabLength); ok && n > 0 {
		cfg.TabLength = n
	}
	if s, ok := metaString(meta, metaTOCDepth); ok {
		if min, max, ok := parseDepthRange(s); ok {
			cfg.TOCMin, cfg.TOCMax = min, max
		}
	}
	if b, ok := metaBool(meta, metaTableCaption); ok {
		cfg.TableCaption = b
	}
	return cfg
}

// parseDepthRange parses "2-6" style ranges; a bare number sets both ends.
func parseDepthRange(s string) (int, int, bool) {
	lo, hi, found := strings.Cut(s, "-")
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, false
	}
	max := min
	if found {
		max, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return 0, 0, false
		}
	}
	if min < 1 || max > 6 || min > max {
		return 0, 0, false
	}
	return min, max, true
}

func metaInt(meta map[string]interface{}, key string) (int, bool) {
	switch v := meta[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

func metaString(meta map[string]interface{}, key string) (string, bool) {
	switch v := meta[key].(type) {
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	}
	return "", false
}

func metaBool(meta map[string]interface{}, key string) (bool, bool) {
	b, ok := meta[key].(bool)
	return b, ok
}

// --- heading IDs ---

// prefixedIDs generates heading IDs namespaced by a per-article prefix.
// Implements parser.IDs.
type prefixedIDs struct {
	prefix string
	used   map[string]bool
}

func newPrefixedIDs(prefix string) *prefixedIDs {
	return &prefixedIDs{prefix: prefix, used: map[string]bool{}}
}

func (p *prefixedIDs) Generate(value []byte, kind ast.NodeKind) []byte {
	base := sanitizeID(string(value))
	if base == "" {
		base = "heading"
	}
	if p.prefix != "" {
		base = p.prefix + "-" + base
	}
	candidate := base
	for i := 1; p.used[candidate]; i++ {
		candidate = base + "-" + strconv.Itoa(i)
	}
	p.used[candidate] = true
	return []byte(candidate)
}

func (p *prefixedIDs) Put(value []byte) {
	p.used[string(value)] = true
}

var idSeparatorRe = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeID lowercases and maps non-alphanumeric runs to single dashes.
func sanitizeID(s string) string {
	s = idSeparatorRe.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// --- markdown-level transforms ---

// expandLeadingTabs replaces tabs in each line's leading whitespace with
// width spaces, so indentation-sensitive constructs (nested lists) follow
// the configured tab length instead of CommonMark's fixed four columns.
func expandLeadingTabs(md string, width int) string {
	spaces := strings.Repeat(" ", width)
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		j := 0
		for j < len(line) && (line[j] == ' ' || line[j] == '\t') {
			j++
		}
		if strings.ContainsRune(line[:j], '\t') {
			lines[i] = strings.ReplaceAll(line[:j], "\t", spaces) + line[j:]
		}
	}
	return strings.Join(lines, "\n")
}

var (
	subRe = regexp.MustCompile(`(^|[^~])~([^~\s]+)~`)
	supRe = regexp.MustCompile(`\^([^\^\s]+)\^`)

	fenceRe = regexp.MustCompile("^(```|~~~)")
)

// convertSubSup turns ~text~ into <sub> and ^text^ into <sup>. Applied
// line by line outside fenced code blocks so code samples survive intact.
func convertSubSup(md string) string {
	return mapLinesOutsideFences(md, func(line string) string {
		line = subRe.ReplaceAllString(line, "$1<sub>$2</sub>")
		return supRe.ReplaceAllString(line, "<sup>$1</sup>")
	})
}

// mapLinesOutsideFences applies fn to every line not inside a fenced code
// block.
func mapLinesOutsideFences(md string, fn func(string) string) string {
	lines := strings.Split(md, "\n")
	inFence := false
	for i, line := range lines {
		if fenceRe.MatchString(line) {
			inFence = !inFence
			continue
		}
		if !inFence {
			lines[i] = fn(line)
		}
	}
	return strings.Join(lines, "\n")
}

var abbrDefRe = regexp.MustCompile(`(?m)^\*\[([^\]]+)\]:[ \t]*(.+)$`)

// collectAbbreviations extracts *[ABBR]: definition lines into defs and
// removes them from the text.
func collectAbbreviations(md string, defs map[string]string) string {
	for _, m := range abbrDefRe.FindAllStringSubmatch(md, -1) {
		defs[m[1]] = strings.TrimSpace(m[2])
	}
	if len(defs) == 0 {
		return md
	}
	md = abbrDefRe.ReplaceAllString(md, "")
	return md
}

// abbrev is one abbreviation definition prepared for HTML substitution.
type abbrev struct {
	term string
	re   *regexp.Regexp
	repl string
}

// wrapAbbreviations wraps occurrences of defined abbreviations in text
// nodes with <abbr> tags, leaving code and pre blocks alone.
func wrapAbbreviations(htmlContent string, defs map[string]string) string {
	if len(defs) == 0 {
		return htmlContent
	}

	terms := make([]abbrev, 0, len(defs))
	for term, title := range defs {
		terms = append(terms, abbrev{
			term: term,
			re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`),
			repl: `<abbr title="` + html.EscapeString(title) + `">` + term + `</abbr>`,
		})
	}
	// Longer terms first so "HTML5" wins over "HTML".
	sort.Slice(terms, func(i, j int) bool { return len(terms[i].term) > len(terms[j].term) })

	wrapText := func(text string, skipDepth int) string {
		if skipDepth > 0 || text == "" {
			return text
		}
		for _, t := range terms {
			text = t.re.ReplaceAllString(text, t.repl)
		}
		return text
	}

	var b strings.Builder
	rest := htmlContent
	skipDepth := 0
	for {
		lt := strings.IndexByte(rest, '<')
		if lt < 0 {
			b.WriteString(wrapText(rest, skipDepth))
			break
		}
		b.WriteString(wrapText(rest[:lt], skipDepth))

		gt := strings.IndexByte(rest[lt:], '>')
		if gt < 0 {
			b.WriteString(rest[lt:])
			break
		}
		tag := rest[lt : lt+gt+1]
		lower := strings.ToLower(tag)
		switch {
		case strings.HasPrefix(lower, "<code") || strings.HasPrefix(lower, "<pre"):
			skipDepth++
		case strings.HasPrefix(lower, "</code") || strings.HasPrefix(lower, "</pre"):
			if skipDepth > 0 {
				skipDepth--
			}
		}
		b.WriteString(tag)
		rest = rest[lt+gt+1:]
	}
	return b.String()
}

// convertTextboxes turns admonition-style blocks
//
//	!!! note
//	    body
//
// into <div class="textbox note"> blocks whose dedented body is still
// parsed as Markdown.
func convertTextboxes(md string) string {
	lines := strings.Split(md, "\n")
	var out []string
	boxRe := regexp.MustCompile(`^!!![ \t]*([\w-]*)[ \t]*$`)

	for i := 0; i < len(lines); i++ {
		m := boxRe.FindStringSubmatch(lines[i])
		if m == nil {
			out = append(out, lines[i])
			continue
		}

		class := "textbox"
		if m[1] != "" {
			class += " " + m[1]
		}

		var body []string
		j := i + 1
	collect:
		for ; j < len(lines); j++ {
			line := lines[j]
			switch {
			case strings.HasPrefix(line, "    "):
				body = append(body, line[4:])
			case strings.HasPrefix(line, "\t"):
				body = append(body, line[1:])
			case strings.TrimSpace(line) == "":
				body = append(body, "")
			default:
				break collect
			}
		}

		// Trim trailing blanks out of the box.
		for len(body) > 0 && body[len(body)-1] == "" {
			body = body[:len(body)-1]
		}

		out = append(out, `<div class="`+class+`">`, "")
		out = append(out, body...)
		out = append(out, "", "</div>")
		i = j - 1
	}
	return strings.Join(out, "\n")
}

var (
	gridBorderRe = regexp.MustCompile(`^\+[-=+]+\+$`)
	gridRowRe    = regexp.MustCompile(`^\|.*\|$`)
)

// convertGridTables rewrites reStructuredText-style grid tables into pipe
// tables ahead of the table extension. A border row containing '=' marks
// the end of the header; without one the first row becomes the header.
func convertGridTables(md string) string {
	lines := strings.Split(md, "\n")
	var out []string

	for i := 0; i < len(lines); i++ {
		if !gridBorderRe.MatchString(strings.TrimSpace(lines[i])) || i+1 >= len(lines) || !gridRowRe.MatchString(strings.TrimSpace(lines[i+1])) {
			out = append(out, lines[i])
			continue
		}

		var rows [][]string
		var current []string
		headerEnd := -1
		j := i + 1
	scan:
		for ; j < len(lines); j++ {
			trimmed := strings.TrimSpace(lines[j])
			switch {
			case gridBorderRe.MatchString(trimmed):
				if current != nil {
					rows = append(rows, current)
					current = nil
				}
				if strings.Contains(trimmed, "=") {
					headerEnd = len(rows)
				}
			case gridRowRe.MatchString(trimmed):
				cells := splitGridRow(trimmed)
				if current == nil {
					current = cells
				} else {
					current = mergeGridCells(current, cells)
				}
			default:
				break scan
			}
		}
		if current != nil {
			rows = append(rows, current)
		}
		if len(rows) == 0 {
			out = append(out, lines[i])
			continue
		}
		if headerEnd <= 0 {
			headerEnd = 1
		}

		header := rows[0]
		for _, extra := range rows[1:headerEnd] {
			header = mergeGridCells(header, extra)
		}
		out = append(out, pipeRow(header))
		sep := make([]string, len(header))
		for k := range sep {
			sep[k] = "---"
		}
		out = append(out, pipeRow(sep))
		for _, row := range rows[headerEnd:] {
			out = append(out, pipeRow(row))
		}
		i = j - 1
	}
	return strings.Join(out, "\n")
}

func splitGridRow(row string) []string {
	parts := strings.Split(strings.Trim(row, "|"), "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func mergeGridCells(a, b []string) []string {
	for i := range a {
		if i < len(b) && b[i] != "" {
			a[i] = strings.TrimSpace(a[i] + " " + b[i])
		}
	}
	return a
}

func pipeRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

// --- html-level transforms ---

var (
	tocMarkerRe = regexp.MustCompile(`(?m)^<p>\[TOC\]</p>$`)
	headingRe   = regexp.MustCompile(`(?s)<h([1-6])[^>]*\bid="([^"]*)"[^>]*>(.*?)</h[1-6]>`)
	innerTagRe  = regexp.MustCompile(`<[^>]*>`)
)

// insertTOC replaces a standalone [TOC] paragraph with a nested list of the
// document's headings within the configured depth range. Runs after the
// full extension chain so IDs and heading text are final.
func insertTOC(htmlContent string, cfg convertConfig) string {
	if !tocMarkerRe.MatchString(htmlContent) {
		return htmlContent
	}

	type entry struct {
		level int
		id    string
		text  string
	}
	var entries []entry
	for _, m := range headingRe.FindAllStringSubmatch(htmlContent, -1) {
		level, _ := strconv.Atoi(m[1])
		if level < cfg.TOCMin || level > cfg.TOCMax {
			continue
		}
		text := strings.TrimSpace(innerTagRe.ReplaceAllString(m[3], ""))
		entries = append(entries, entry{level: level, id: m[2], text: text})
	}

	var b strings.Builder
	b.WriteString(`<nav class="toc">`)
	depth := 0
	for _, e := range entries {
		rel := e.level - cfg.TOCMin + 1
		for depth < rel {
			b.WriteString("<ul>")
			depth++
		}
		for depth > rel {
			b.WriteString("</ul>")
			depth--
		}
		b.WriteString(`<li><a href="#` + e.id + `">` + e.text + `</a></li>`)
	}
	for depth > 0 {
		b.WriteString("</ul>")
		depth--
	}
	b.WriteString("</nav>")

	return tocMarkerRe.ReplaceAllString(htmlContent, b.String())
}

var tableCaptionRe = regexp.MustCompile(`(?s)<table>(.*?)</table>\s*<p>[Tt]able:\s*(.*?)</p>`)

// attachTableCaptions moves a "Table: ..." paragraph following a table into
// the table itself as a <caption>.
func attachTableCaptions(htmlContent string) string {
	return tableCaptionRe.ReplaceAllString(htmlContent, "<table><caption>$2</caption>$1</table>")
}

// --- derived-content helpers ---

var h1Re = regexp.MustCompile(`(?s)^<h1[^>]*>(.*?)</h1>`)

// hasCustomHeadline reports whether rendered HTML begins with a top-level
// heading. Must be checked on converted output, not raw Markdown: the
// extension chain can both introduce and consume leading elements.
func hasCustomHeadline(htmlContent string) bool {
	return strings.HasPrefix(strings.TrimLeft(htmlContent, " \r\n"), "<h1")
}

// headlineText returns the text of a leading top-level heading.
func headlineText(htmlContent string) (string, bool) {
	m := h1Re.FindStringSubmatch(strings.TrimLeft(htmlContent, " \r\n"))
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(html.UnescapeString(innerTagRe.ReplaceAllString(m[1], ""))), true
}
