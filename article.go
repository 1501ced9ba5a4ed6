package docpress

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/alnah/go-docpress/internal/fileutil"
	"github.com/alnah/go-docpress/internal/frontmatter"
	"github.com/alnah/go-docpress/internal/schema"
	"github.com/alnah/go-docpress/internal/yamlutil"
)

// templateSearchDepth bounds the parent-directory walk when looking for the
// effective template of a YAML source.
const templateSearchDepth = 2

// Names an effective template for a YAML source may carry, in preference
// order.
var yamlTemplateNames = []string{"_template.md", "_template.md.j2"}

// schemaFileName is looked up alongside the effective template.
const schemaFileName = "schema.json"

// Article is one loaded, template-expanded, Markdown-convertible source
// document. The source path is its identity; Meta and ContentMD are fixed
// at load time, everything else is derived fresh on each access.
type Article struct {
	// Source is the path of the origin file.
	Source string
	// Meta holds the merged metadata: run-level overlay first, then the
	// source's own front matter (later merges win).
	Meta map[string]interface{}
	// ContentMD is the template-expanded Markdown body.
	ContentMD string

	// deps holds every file opened while rendering this article:
	// templates, includes, data schemas. Together with Source it is the
	// article's invalidation set.
	deps map[string]struct{}

	conv *Converter
	rev  RevisionProvider
}

// LoadArticle reads and expands a source file. inputRoot joins the source's
// own directory and the working directory on the template search path.
// runMeta is the run-level metadata overlay; the source's own front matter
// is merged over it.
func LoadArticle(source, inputRoot string, runMeta map[string]interface{}, conv *Converter, rev RevisionProvider) (*Article, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", source, err)
	}

	cwd, _ := os.Getwd()

	a := &Article{
		Source: abs,
		Meta:   cloneMeta(runMeta),
		deps:   map[string]struct{}{},
		conv:   conv,
		rev:    rev,
	}

	expander := NewExpander(filepath.Dir(abs), inputRoot, cwd)

	switch strings.ToLower(filepath.Ext(abs)) {
	case ".md":
		err = a.loadMarkdown(expander)
	case ".yaml", ".yml":
		err = a.loadYAML(expander)
	default:
		return nil, fmt.Errorf("%w: %q (%s)", ErrUnsupportedSource, filepath.Ext(abs), abs)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// loadMarkdown splits the source's front matter and expands its body with
// no bound template variables.
func (a *Article) loadMarkdown(expander *Expander) error {
	data, err := os.ReadFile(a.Source)
	if err != nil {
		return fmt.Errorf("reading %s: %w", a.Source, err)
	}

	meta, body, err := frontmatter.Split(data)
	if err != nil {
		return fmt.Errorf("loading %s: %w", a.Source, err)
	}

	expanded, opened, err := expander.Expand(body, nil)
	if err != nil {
		return fmt.Errorf("expanding %s: %w", a.Source, err)
	}

	mergeMeta(a.Meta, meta)
	a.ContentMD = expanded
	a.addDeps(opened...)
	return nil
}

// loadYAML deserializes the source, validates it against a schema found
// next to the effective template (when present), and renders the data
// through that template. Template front matter merges below the data's
// own metadata key.
func (a *Article) loadYAML(expander *Expander) error {
	var doc interface{}
	if err := yamlutil.DecodeFile(a.Source, &doc); err != nil {
		return fmt.Errorf("loading %s: %w", a.Source, err)
	}

	templatePath, schemaPath, err := findEffectiveTemplate(filepath.Dir(a.Source))
	if err != nil {
		return err
	}

	if schemaPath != "" {
		if err := schema.ValidateFile(schemaPath, doc); err != nil {
			return fmt.Errorf("%w for %s: %v", ErrSchemaValidation, a.Source, err)
		}
		a.addDeps(schemaPath)
	}

	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("reading template %s: %w", templatePath, err)
	}
	tplMeta, tplBody, err := frontmatter.Split(raw)
	if err != nil {
		return fmt.Errorf("loading template %s: %w", templatePath, err)
	}

	data, dataMeta := templateContext(doc)

	expanded, opened, err := expander.Expand(tplBody, data)
	if err != nil {
		return fmt.Errorf("expanding %s: %w", a.Source, err)
	}

	mergeMeta(a.Meta, tplMeta)
	mergeMeta(a.Meta, dataMeta)
	a.ContentMD = expanded
	a.addDeps(templatePath)
	a.addDeps(opened...)
	return nil
}

// templateContext binds the YAML document for template rendering: a map
// spreads its keys as variables, anything else is exposed as "data".
// A "metadata" map inside the document feeds article metadata.
func templateContext(doc interface{}) (map[string]interface{}, map[string]interface{}) {
	m, ok := doc.(map[string]interface{})
	if !ok {
		return map[string]interface{}{"data": doc}, nil
	}
	meta, _ := m["metadata"].(map[string]interface{})
	return m, meta
}

// findEffectiveTemplate searches dir and its parents (bounded depth) for a
// _template.md or _template.md.j2, returning it plus a sibling schema.json
// when one exists.
func findEffectiveTemplate(dir string) (templatePath, schemaPath string, err error) {
	start := dir
	for depth := 0; depth < templateSearchDepth; depth++ {
		for _, name := range yamlTemplateNames {
			candidate := filepath.Join(dir, name)
			if !fileutil.FileExists(candidate) {
				continue
			}
			if s := filepath.Join(dir, schemaFileName); fileutil.FileExists(s) {
				schemaPath = s
			}
			return candidate, schemaPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", "", fmt.Errorf("%w: no _template.md in %s or parent directories (going up max. %d levels)",
		ErrTemplateNotFound, start, templateSearchDepth)
}

// OverlayMeta merges extra metadata over the article's, once, before use.
func (a *Article) OverlayMeta(extra map[string]interface{}) {
	mergeMeta(a.Meta, extra)
}

// DependencyPaths returns the article's full invalidation set: the source
// plus every file opened during template expansion, sorted by path.
func (a *Article) DependencyPaths() []string {
	paths := make([]string, 0, len(a.deps)+1)
	paths = append(paths, a.Source)
	for p := range a.deps {
		if p != a.Source {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

func (a *Article) addDeps(paths ...string) {
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		a.deps[p] = struct{}{}
	}
}

var (
	annotationRe = regexp.MustCompile(`(\([^)]+\))|(\[[^\]]+\])`)
	parenRe      = regexp.MustCompile(`\([^)]+\)`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
)

// Title derives the display title from the file name: extension dropped,
// parenthetical and bracketed annotations stripped, underscores read as
// spaces.
func (a *Article) Title() string {
	name := strings.TrimSuffix(filepath.Base(a.Source), filepath.Ext(a.Source))
	name = strings.ReplaceAll(name, "_", " ")
	name = annotationRe.ReplaceAllString(name, "")
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(name, " "))
}

// Filename derives the output file stem: extension dropped, parenthetical
// annotations stripped, whitespace collapsed. Underscores are kept.
func (a *Article) Filename() string {
	name := strings.TrimSuffix(filepath.Base(a.Source), filepath.Ext(a.Source))
	name = parenRe.ReplaceAllString(name, "")
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(name, " "))
}

// Content converts the expanded Markdown to HTML with the article's current
// meta. It is recomputed on each call: a pure function of ContentMD and the
// converter configuration, so identical inputs give byte-identical output.
func (a *Article) Content() (string, error) {
	htmlContent, err := a.conv.Convert(a.ContentMD, a.Meta, filepath.Base(a.Source))
	if err != nil {
		return "", fmt.Errorf("converting %s: %w", a.Source, err)
	}
	return htmlContent, nil
}

// HasCustomHeadline reports whether the rendered HTML begins with a
// top-level heading.
func (a *Article) HasCustomHeadline() (bool, error) {
	htmlContent, err := a.Content()
	if err != nil {
		return false, err
	}
	return hasCustomHeadline(htmlContent), nil
}

// AltTitle returns the text of a leading top-level heading when the
// article has one, the filename-derived title otherwise.
func (a *Article) AltTitle() (string, error) {
	htmlContent, err := a.Content()
	if err != nil {
		return "", err
	}
	if text, ok := headlineText(htmlContent); ok {
		return text, nil
	}
	return a.Title(), nil
}

// Hash returns the article's content-addressable identity: the blob hash
// of its only dependency, or a combined hash over all dependency files in
// path order.
func (a *Article) Hash() (string, error) {
	paths := a.DependencyPaths()
	hashes := make([]string, 0, len(paths))
	for _, p := range paths {
		h, err := a.rev.BlobHash(p)
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", a.Source, err)
		}
		hashes = append(hashes, h)
	}
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	combined := sha1.Sum([]byte(strings.Join(hashes, "")))
	return fmt.Sprintf("%x", combined), nil
}

// Authors returns the deduplicated contributors across the source and all
// dependencies. History lookup failures yield an empty set, never an error.
func (a *Article) Authors() []Author {
	seen := map[Author]struct{}{}
	var out []Author
	for _, p := range a.DependencyPaths() {
		authors, err := a.rev.Authors(p)
		if err != nil {
			continue
		}
		for _, author := range authors {
			if _, dup := seen[author]; dup {
				continue
			}
			seen[author] = struct{}{}
			out = append(out, author)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ModifiedDate returns the latest modification date (YYYY-MM-DD) across
// the source and all dependencies.
func (a *Article) ModifiedDate() (string, error) {
	latest := ""
	for _, p := range a.DependencyPaths() {
		date, err := a.rev.ModifiedDate(p)
		if err != nil {
			return "", fmt.Errorf("modification date of %s: %w", a.Source, err)
		}
		if date > latest {
			latest = date
		}
	}
	return latest, nil
}

func cloneMeta(meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func mergeMeta(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = v
	}
}
