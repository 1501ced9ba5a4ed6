package docpress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/alnah/go-docpress/internal/fileutil"
	"github.com/alnah/go-docpress/internal/frontmatter"
)

// Expander renders Jinja-style placeholders in article bodies while
// recording every file it opens, so callers know an article's full
// invalidation set. Auto-escaping is on: expanded output becomes part of
// an HTML document.
type Expander struct {
	searchPaths []string
}

// NewExpander creates an Expander resolving includes against searchPaths
// in order. Typical order: the source's own directory, the input root,
// the working directory.
func NewExpander(searchPaths ...string) *Expander {
	paths := make([]string, 0, len(searchPaths))
	for _, p := range searchPaths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		paths = append(paths, p)
	}
	return &Expander{searchPaths: paths}
}

// Expand renders body with data bound as template variables and returns the
// expanded text plus the sorted set of files opened during rendering
// (includes, extended templates). A missing include or malformed expression
// is fatal to the containing document.
func (e *Expander) Expand(body string, data map[string]interface{}) (string, []string, error) {
	loader := &recordingLoader{
		searchPaths: e.searchPaths,
		opened:      map[string]struct{}{},
	}

	set := pongo2.NewSet("docpress", loader)

	tpl, err := set.FromString(body)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	ctx := pongo2.Context{}
	for k, v := range data {
		ctx[k] = v
	}

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return out, loader.paths(), nil
}

// recordingLoader resolves template names against a search path list,
// strips front matter from every file it serves, and records each opened
// path. Front matter in included templates is discovered but never merged
// into article metadata.
type recordingLoader struct {
	searchPaths []string
	opened      map[string]struct{}
}

// Abs resolves a template name to a path: absolute names pass through,
// relative names are tried next to the including template first, then
// against each search path. Unresolvable names pass through unchanged so
// Get can fail with the name the author wrote.
func (l *recordingLoader) Abs(base, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if base != "" {
		if candidate := filepath.Join(filepath.Dir(base), name); fileutil.FileExists(candidate) {
			return candidate
		}
	}
	for _, dir := range l.searchPaths {
		if candidate := filepath.Join(dir, name); fileutil.FileExists(candidate) {
			return candidate
		}
	}
	return name
}

func (l *recordingLoader) Get(path string) (io.Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, path)
	}

	if abs, absErr := filepath.Abs(path); absErr == nil {
		path = abs
	}
	l.opened[path] = struct{}{}

	_, content, err := frontmatter.Split(data)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", path, err)
	}
	return strings.NewReader(content), nil
}

func (l *recordingLoader) paths() []string {
	out := make([]string, 0, len(l.opened))
	for p := range l.opened {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Compile-time interface check.
var _ pongo2.TemplateLoader = (*recordingLoader)(nil)
