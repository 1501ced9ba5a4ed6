package docpress

import (
	"path/filepath"
	"sort"
)

// Document is one renderable unit: one or many articles bound to a
// resolved layout template. Never mutated after construction.
type Document struct {
	Title    string
	AltTitle string
	Filename string
	// Layout supplies the root template and the base directory for
	// relative asset resolution.
	Layout *Layout
	// Articles is ordered; bundle order follows selection order.
	Articles []*Article
	// Meta merges run-level metadata and, in per-article mode, the single
	// article's metadata.
	Meta map[string]interface{}
}

// Authors returns the union of contributors across all articles.
func (d *Document) Authors() []Author {
	seen := map[Author]struct{}{}
	var out []Author
	for _, a := range d.Articles {
		for _, author := range a.Authors() {
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

// SourceDirs returns the distinct directories the document's articles were
// loaded from, in article order. The PDF renderer's asset fallback chain
// tries them after the layout directory.
func (d *Document) SourceDirs() []string {
	seen := map[string]struct{}{}
	var dirs []string
	for _, a := range d.Articles {
		dir := filepath.Dir(a.Source)
		if _, dup := seen[dir]; dup {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}
