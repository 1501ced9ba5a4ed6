package docpress

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-docpress/internal/fileutil"
)

// Renderer abstracts HTML to PDF conversion to allow different backends.
type Renderer interface {
	// RenderPDF converts htmlContent to PDF bytes. Relative asset URLs in
	// the HTML resolve against baseDir first, then each fallbackDir in
	// order (first hit wins). This lets a layout reference "this
	// article's local image" without knowing which article directory it
	// will be paired with.
	RenderPDF(ctx context.Context, htmlContent, baseDir string, fallbackDirs []string) ([]byte, error)
	Close() error
}

// Compile-time interface check.
var _ Renderer = (*RodRenderer)(nil)

// defaultRenderTimeout bounds page load and remote asset fetches.
const defaultRenderTimeout = 30 * time.Second

// RodRenderer converts HTML to PDF using headless Chrome via go-rod.
// Rod automatically downloads Chromium on first run if not found.
type RodRenderer struct {
	browser *rod.Browser
	timeout time.Duration
}

// NewRodRenderer creates a RodRenderer with the given timeout
// (0 = default).
func NewRodRenderer(timeout time.Duration) *RodRenderer {
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	return &RodRenderer{timeout: timeout}
}

// ensureBrowser lazily connects to the browser.
func (r *RodRenderer) ensureBrowser() error {
	if r.browser != nil {
		return nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	r.browser = rod.New().ControlURL(u)
	if err := r.browser.Connect(); err != nil {
		r.browser = nil
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	return nil
}

// Close releases browser resources.
func (r *RodRenderer) Close() error {
	if r.browser != nil {
		err := r.browser.Close()
		r.browser = nil
		return err
	}
	return nil
}

// RenderPDF serves the document and its local assets from a loopback HTTP
// server implementing the fallback chain, loads it in headless Chrome, and
// prints it. CSS @page rules in the layout control the paper geometry.
func (r *RodRenderer) RenderPDF(ctx context.Context, htmlContent, baseDir string, fallbackDirs []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.ensureBrowser(); err != nil {
		return nil, err
	}

	handler := newAssetHandler(htmlContent, baseDir, fallbackDirs)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("%w: serving assets: %v", ErrPDFGeneration, err)
	}
	srv := &http.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	page, err := r.browser.Page(proto.TargetCreateTarget{
		URL: fmt.Sprintf("http://%s/", ln.Addr().String()),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer func() { _ = page.Close() }()

	// Wait for page to load with timeout from context or default
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFGeneration, err)
	}

	pdfBuf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrPDFGeneration, err)
	}

	return pdfBuf, nil
}

// assetHandler serves the rendered document at "/" and resolves every
// other request path against a chain of directories: the layout directory
// first, then each article source directory.
type assetHandler struct {
	index []byte
	roots []string
}

func newAssetHandler(htmlContent, baseDir string, fallbackDirs []string) *assetHandler {
	roots := append([]string{baseDir}, fallbackDirs...)
	return &assetHandler{index: []byte(htmlContent), roots: roots}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(h.index)
		return
	}

	rel := strings.TrimPrefix(filepath.Clean("/"+req.URL.Path), "/")
	if rel == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		http.NotFound(w, req)
		return
	}

	for _, root := range h.roots {
		candidate := filepath.Join(root, filepath.FromSlash(rel))
		if fileutil.FileExists(candidate) {
			http.ServeFile(w, req, candidate)
			return
		}
	}
	http.NotFound(w, req)
}

// documentContext builds the template context for rendering a document's
// layout: build date, resolved revision, the ordered articles, title,
// alt-title, metadata, and the document itself.
func documentContext(doc *Document, rev RevisionProvider) (pongo2.Context, error) {
	articles := make([]pongo2.Context, 0, len(doc.Articles))
	for _, a := range doc.Articles {
		actx, err := articleContext(a)
		if err != nil {
			return nil, err
		}
		articles = append(articles, actx)
	}

	return pongo2.Context{
		"date":      time.Now().Format(time.DateOnly),
		"commit":    ResolveRevision(rev),
		"articles":  articles,
		"title":     doc.Title,
		"alt_title": doc.AltTitle,
		"meta":      doc.Meta,
		"document": pongo2.Context{
			"title":     doc.Title,
			"alt_title": doc.AltTitle,
			"filename":  doc.Filename,
			"authors":   authorStrings(doc.Authors()),
		},
	}, nil
}

// articleContext exposes one article to the layout template. Content is
// marked safe: it is already HTML and must not be escaped again.
func articleContext(a *Article) (pongo2.Context, error) {
	htmlContent, err := a.Content()
	if err != nil {
		return nil, err
	}

	altTitle := a.Title()
	if text, ok := headlineText(htmlContent); ok {
		altTitle = text
	}

	// Provenance is best-effort; an article outside version control still
	// renders.
	hash, _ := a.Hash()
	modified, _ := a.ModifiedDate()

	return pongo2.Context{
		"title":               a.Title(),
		"alt_title":           altTitle,
		"filename":            a.Filename(),
		"content":             pongo2.AsSafeValue(htmlContent),
		"has_custom_headline": hasCustomHeadline(htmlContent),
		"meta":                a.Meta,
		"source":              a.Source,
		"hash":                hash,
		"authors":             authorStrings(a.Authors()),
		"modified_date":       modified,
	}, nil
}

func authorStrings(authors []Author) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		if a.Email != "" {
			out = append(out, fmt.Sprintf("%s <%s>", a.Name, a.Email))
			continue
		}
		out = append(out, a.Name)
	}
	return out
}
