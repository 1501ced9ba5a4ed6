// Package docpress builds PDF documents from trees of Markdown articles and
// YAML data files rendered through shared templates.
//
// # Quick Start
//
// Create a Printer for an input tree and execute a build pass:
//
//	p, err := docpress.NewPrinter(docpress.Options{
//	    Input:     "docs",
//	    OutputDir: "out",
//	    Layout:    "default",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	results, err := p.Execute(ctx, nil)
//
// Each result names the produced PDF and the Document it was rendered from.
// Pass Options.Bundle to assemble every selected article into a single PDF
// under one layout; otherwise each article yields its own PDF.
//
// # Build Pipeline
//
// A build pass runs these stages per source file:
//
//  1. Content loading (front matter + body; YAML sources are rendered
//     through a discovered _template.md, optionally schema-validated)
//  2. Template expansion via pongo2 with dependency tracking
//  3. Markdown to HTML conversion via Goldmark (ordered extension chain)
//  4. Layout template rendering and PDF generation via headless Chrome
//
// # Sources
//
// Markdown files (.md) carry their own YAML front matter. YAML files
// (.yaml, .yml) are data documents rendered through the nearest
// _template.md or _template.md.j2 found in their directory or a parent;
// a sibling schema.json next to the template validates the data first.
// Files whose name starts with an underscore are partials and never
// selected as articles.
//
// # Layouts
//
// A layout is a directory holding an index.html.j2 (or index.html) root
// template plus its assets. Layout names resolve against a direct path,
// then the configured layouts root, then the built-in layouts shipped
// with the package. Resolved templates are cached for one build pass.
//
// # Watch Mode
//
// Watcher observes the input and layout trees, coalesces event bursts
// with a one second debounce and re-runs the pipeline; a Markdown file
// modification rebuilds just that file, anything else rebuilds all.
//
// # Browser Requirements
//
// PDF generation requires Chrome/Chromium. The go-rod library downloads
// a managed Chromium on first run. Set ROD_BROWSER_BIN to use a
// pre-installed binary; sandboxing is disabled when CI=true or a browser
// binary is pinned.
package docpress
