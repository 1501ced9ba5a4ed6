package docpress

import (
	"fmt"
	"path/filepath"

	"github.com/flosch/pongo2/v6"

	"github.com/alnah/go-docpress/internal/fileutil"
	"github.com/alnah/go-docpress/internal/layouts"
)

// Root template file names tried inside a layout directory, templated
// variant first.
var layoutRootCandidates = []string{"index.html.j2", "index.html"}

// Layout is a resolved layout: the compiled root template and the
// directory holding it and its assets. Shared read-only across documents.
type Layout struct {
	Template *pongo2.Template
	Dir      string
}

// LayoutResolver maps layout names to directories and loads their root
// templates. A name with path separators resolves as a directory path
// only; a bare name is tried as a directory, then under the configured
// layouts root, then under the built-in layouts.
// Results are cached for one build pass; call Clear at the start of each
// pass so edited layout files are picked up on rebuild.
type LayoutResolver struct {
	layoutsDir string
	cache      map[string]*Layout
}

// NewLayoutResolver creates a resolver with the given layouts root
// directory (may be empty when only direct paths and built-ins are used).
func NewLayoutResolver(layoutsDir string) *LayoutResolver {
	return &LayoutResolver{
		layoutsDir: layoutsDir,
		cache:      map[string]*Layout{},
	}
}

// Resolve returns the layout for name, loading and caching it on first use.
func (r *LayoutResolver) Resolve(name string) (*Layout, error) {
	if name == "" {
		return nil, ErrNoLayout
	}
	if cached, ok := r.cache[name]; ok {
		return cached, nil
	}

	dir, err := r.layoutDir(name)
	if err != nil {
		return nil, err
	}

	root, err := layoutRoot(dir)
	if err != nil {
		return nil, err
	}

	set := pongo2.NewSet("layout:"+name, pongo2.MustNewLocalFileSystemLoader(dir))
	tpl, err := set.FromFile(filepath.Base(root))
	if err != nil {
		return nil, fmt.Errorf("%w: loading %s: %v", ErrTemplateRender, root, err)
	}

	layout := &Layout{Template: tpl, Dir: dir}
	r.cache[name] = layout
	return layout, nil
}

// Clear drops every cached layout. Called once at the start of each build
// pass.
func (r *LayoutResolver) Clear() {
	r.cache = map[string]*Layout{}
}

// layoutDir resolves a layout name to a directory. A name containing a
// path separator is taken as a directory path and never falls through to
// the layouts root or the built-ins.
func (r *LayoutResolver) layoutDir(name string) (string, error) {
	if fileutil.IsFilePath(name) {
		if fileutil.DirExists(name) {
			return filepath.Abs(name)
		}
		return "", fmt.Errorf("%w: %q", ErrLayoutNotFound, name)
	}
	if fileutil.DirExists(name) {
		return filepath.Abs(name)
	}
	if r.layoutsDir != "" {
		if dir := filepath.Join(r.layoutsDir, name); fileutil.DirExists(dir) {
			return filepath.Abs(dir)
		}
	}
	builtinRoot, err := layouts.Dir()
	if err != nil {
		return "", err
	}
	if dir := filepath.Join(builtinRoot, name); fileutil.DirExists(dir) {
		return dir, nil
	}
	return "", fmt.Errorf("%w: %q", ErrLayoutNotFound, name)
}

// layoutRoot locates the layout's root template file.
func layoutRoot(dir string) (string, error) {
	for _, candidate := range layoutRootCandidates {
		path := filepath.Join(dir, candidate)
		if fileutil.FileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no %v in %s", ErrLayoutRootMissing, layoutRootCandidates, dir)
}
