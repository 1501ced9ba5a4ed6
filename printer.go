package docpress

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/alnah/go-docpress/internal/fileutil"
)

// Source extensions selected by the input walk.
var sourceExtensions = map[string]bool{
	".md":   true,
	".yaml": true,
	".yml":  true,
}

// Options configures a Printer for one run.
type Options struct {
	// Input is a source file or directory (required).
	Input string
	// OutputDir receives the produced files; created if absent.
	OutputDir string
	// LayoutsDir is the root under which layout names are resolved.
	LayoutsDir string
	// Bundle renders all selected articles into a single document.
	Bundle bool
	// Title and AltTitle name the bundled document; only valid with Bundle.
	Title    string
	AltTitle string
	// Layout is the default layout name; required with Bundle.
	Layout string
	// OutputHTML additionally writes the rendered HTML next to each PDF.
	OutputHTML bool
	// OutputMD additionally writes each article's expanded Markdown.
	OutputMD bool
	// FilenameFilter restricts selection to sources whose path relative
	// to the input root matches this pattern.
	FilenameFilter string
	// Meta is arbitrary run-level metadata passed to layouts and merged
	// under each article's own front matter.
	Meta map[string]interface{}
	// KeepTree mirrors the source subdirectory structure under OutputDir
	// in per-article mode.
	KeepTree bool
}

// Validate checks structural option requirements.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Input, validation.Required),
		validation.Field(&o.OutputDir, validation.Required),
	)
}

// Result describes one produced document.
type Result struct {
	Document   *Document
	OutputPath string
}

// Option configures a Printer.
type Option func(*Printer)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(p *Printer) { p.logger = logger }
}

// WithRenderer replaces the PDF renderer (e.g. a fake in tests).
func WithRenderer(r Renderer) Option {
	return func(p *Printer) { p.renderer = r }
}

// WithRevisionProvider replaces the provenance source.
func WithRevisionProvider(rev RevisionProvider) Option {
	return func(p *Printer) { p.rev = rev }
}

// Printer orchestrates the build pipeline: source selection, article
// loading, document assembly, and PDF rendering. A Printer is not safe
// for concurrent builds; watch mode serializes rebuilds.
type Printer struct {
	opts     Options
	filter   *regexp.Regexp
	layouts  *LayoutResolver
	conv     *Converter
	rev      RevisionProvider
	renderer Renderer
	logger   *slog.Logger
}

// NewPrinter validates the options eagerly and creates a Printer.
// Configuration errors (bundle without layout/title, title without bundle,
// bad filter pattern, missing input) surface here, before any article is
// loaded.
func NewPrinter(opts Options, options ...Option) (*Printer, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	if opts.Bundle {
		if opts.Layout == "" || opts.Title == "" {
			return nil, ErrBundleConfig
		}
	} else if opts.Title != "" || opts.AltTitle != "" {
		return nil, ErrTitleWithoutBundle
	}

	abs, err := filepath.Abs(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("resolving input: %w", err)
	}
	opts.Input = abs
	if _, err := os.Stat(opts.Input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, opts.Input)
	}

	if err := fileutil.EnsureDir(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputDir, err)
	}

	p := &Printer{
		opts:    opts,
		layouts: NewLayoutResolver(opts.LayoutsDir),
		conv:    NewConverter(),
		logger:  slog.Default(),
	}

	if opts.FilenameFilter != "" {
		p.filter, err = regexp.Compile(opts.FilenameFilter)
		if err != nil {
			return nil, fmt.Errorf("invalid filename filter: %w", err)
		}
	}

	for _, opt := range options {
		opt(p)
	}
	if p.rev == nil {
		p.rev = NewRevisionProvider()
	}
	if p.renderer == nil {
		p.renderer = NewRodRenderer(defaultRenderTimeout)
	}

	if opts.Bundle && !fileutil.DirExists(opts.Input) {
		p.logger.Warn("option bundle has no effect when using a single file as input")
	}

	return p, nil
}

// Close releases renderer resources.
func (p *Printer) Close() error {
	return p.renderer.Close()
}

// Input returns the resolved input path.
func (p *Printer) Input() string {
	return p.opts.Input
}

// ListSources walks the input directory for Markdown and YAML sources in
// lexicographic path order. Bundle article order follows this order, so it
// must stay stable across runs. A single-file input yields itself.
func (p *Printer) ListSources() ([]string, error) {
	if !fileutil.DirExists(p.opts.Input) {
		return []string{p.opts.Input}, nil
	}

	var sources []string
	err := filepath.WalkDir(p.opts.Input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("scanning %s: %w", path, err)
		}
		if d.IsDir() {
			return nil
		}
		if sourceExtensions[strings.ToLower(filepath.Ext(path))] {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(sources)
	return sources, nil
}

// selectSources applies the selection rules: only Markdown and YAML files
// under the input root, underscore-prefixed files are templates/partials
// and never selected, and the filename filter matches against the path
// relative to the input root. Scoped rebuilds pass arbitrary changed paths
// through here, so containment and extension are re-checked.
func (p *Printer) selectSources(sources []string) []string {
	var selected []string
	for _, source := range sources {
		if !sourceExtensions[strings.ToLower(filepath.Ext(source))] {
			continue
		}
		if strings.HasPrefix(filepath.Base(source), "_") {
			continue
		}
		rel, err := filepath.Rel(p.opts.Input, source)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if p.filter != nil && !p.filter.MatchString(filepath.ToSlash(rel)) {
			continue
		}
		selected = append(selected, source)
	}
	return selected
}

// Execute runs one build pass. scope narrows the build to the given source
// paths (nil = everything under the input). Returns a result per produced
// document; in per-article mode, per-document failures are logged, skipped,
// and joined into the returned error while the remaining documents still
// render.
func (p *Printer) Execute(ctx context.Context, scope []string) ([]Result, error) {
	// Cleared per pass so edited layouts are picked up on rebuild.
	p.layouts.Clear()

	articles, loadErrs, err := p.loadArticles(scope)
	if err != nil {
		return nil, err
	}

	if p.opts.OutputMD {
		for _, a := range articles {
			target := filepath.Join(p.opts.OutputDir, a.Filename()+".md")
			if writeErr := os.WriteFile(target, []byte(a.ContentMD), 0o644); writeErr != nil {
				return nil, fmt.Errorf("could not output md for %s: %w", a.Source, writeErr)
			}
		}
	}

	if p.opts.Bundle {
		result, err := p.executeBundle(ctx, articles)
		if err != nil {
			return nil, err
		}
		return []Result{result}, nil
	}

	results, renderErrs := p.executePerArticle(ctx, articles)
	return results, errors.Join(append(loadErrs, renderErrs...)...)
}

// loadArticles loads the selected sources. In bundle mode any load failure
// aborts (a bundle failure cannot be isolated to one article); in
// per-article mode failures are reported and skipped.
func (p *Printer) loadArticles(scope []string) ([]*Article, []error, error) {
	singleFile := !fileutil.DirExists(p.opts.Input)

	var sources []string
	var err error
	switch {
	case singleFile:
		sources = []string{p.opts.Input}
	case scope != nil:
		sources = p.selectSources(scope)
	default:
		sources, err = p.ListSources()
		if err != nil {
			return nil, nil, err
		}
		sources = p.selectSources(sources)
	}

	var articles []*Article
	var loadErrs []error
	for _, source := range sources {
		a, loadErr := LoadArticle(source, p.opts.Input, p.opts.Meta, p.conv, p.rev)
		if loadErr != nil {
			if p.opts.Bundle {
				return nil, nil, loadErr
			}
			p.logger.Error("skipping article",
				slog.String("source", source),
				slog.String("error", loadErr.Error()))
			loadErrs = append(loadErrs, loadErr)
			continue
		}
		articles = append(articles, a)
	}
	return articles, loadErrs, nil
}

func (p *Printer) executeBundle(ctx context.Context, articles []*Article) (Result, error) {
	if len(articles) == 0 {
		return Result{}, fmt.Errorf("no articles selected under %s", p.opts.Input)
	}

	layout, err := p.layouts.Resolve(p.opts.Layout)
	if err != nil {
		return Result{}, err
	}

	altTitle := p.opts.AltTitle
	if altTitle == "" {
		altTitle = p.opts.Title
	}

	doc := &Document{
		Title:    p.opts.Title,
		AltTitle: altTitle,
		Filename: strings.ReplaceAll(p.opts.Title, " ", "_"),
		Layout:   layout,
		Articles: articles,
		Meta:     cloneMeta(p.opts.Meta),
	}

	outputPath, err := p.renderDocument(ctx, doc, p.opts.OutputDir)
	if err != nil {
		return Result{}, err
	}
	return Result{Document: doc, OutputPath: outputPath}, nil
}

func (p *Printer) executePerArticle(ctx context.Context, articles []*Article) ([]Result, []error) {
	var results []Result
	var errs []error

	for _, a := range articles {
		doc, err := p.assembleArticleDocument(a)
		if err != nil {
			p.logger.Error("skipping document",
				slog.String("source", a.Source),
				slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}

		outDir := p.opts.OutputDir
		if p.opts.KeepTree {
			if rel, relErr := filepath.Rel(p.opts.Input, filepath.Dir(a.Source)); relErr == nil {
				outDir = filepath.Join(outDir, rel)
			}
		}

		outputPath, err := p.renderDocument(ctx, doc, outDir)
		if err != nil {
			p.logger.Error("rendering failed",
				slog.String("source", a.Source),
				slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		results = append(results, Result{Document: doc, OutputPath: outputPath})
	}
	return results, errs
}

// assembleArticleDocument builds a single-article document. The article's
// own layout and alt-title win over run-level defaults in per-article mode.
func (p *Printer) assembleArticleDocument(a *Article) (*Document, error) {
	layoutName := p.opts.Layout
	if name, ok := metaString(a.Meta, "layout"); ok && name != "" {
		layoutName = name
	}

	layout, err := p.layouts.Resolve(layoutName)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrDocumentAssembly, a.Source, err)
	}

	altTitle, err := a.AltTitle()
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrDocumentAssembly, a.Source, err)
	}

	return &Document{
		Title:    a.Title(),
		AltTitle: altTitle,
		Filename: a.Filename(),
		Layout:   layout,
		Articles: []*Article{a},
		Meta:     a.Meta,
	}, nil
}

// renderDocument renders the document's layout template to HTML and the
// HTML to a PDF under outDir, plus the optional HTML sibling.
func (p *Printer) renderDocument(ctx context.Context, doc *Document, outDir string) (string, error) {
	tplCtx, err := documentContext(doc, p.rev)
	if err != nil {
		return "", err
	}

	htmlContent, err := doc.Layout.Template.Execute(tplCtx)
	if err != nil {
		return "", fmt.Errorf("%w: layout for %q: %v", ErrTemplateRender, doc.Title, err)
	}

	if err := fileutil.EnsureDir(outDir); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputDir, err)
	}

	if p.opts.OutputHTML {
		htmlPath := filepath.Join(outDir, doc.Filename+".html")
		if err := os.WriteFile(htmlPath, []byte(htmlContent), 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", htmlPath, err)
		}
	}

	pdfBytes, err := p.renderer.RenderPDF(ctx, htmlContent, doc.Layout.Dir, doc.SourceDirs())
	if err != nil {
		return "", err
	}

	outputPath := filepath.Join(outDir, doc.Filename+".pdf")
	if err := os.WriteFile(outputPath, pdfBytes, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", outputPath, err)
	}

	if len(doc.Articles) > 1 {
		p.logger.Info("created PDF",
			slog.String("title", doc.Title),
			slog.Int("articles", len(doc.Articles)),
			slog.String("output", outputPath))
	} else {
		p.logger.Info("created PDF",
			slog.String("title", doc.Title),
			slog.String("source", doc.Articles[0].Source),
			slog.String("output", outputPath))
	}
	return outputPath, nil
}
