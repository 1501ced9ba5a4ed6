package docpress

import "errors"

// Sentinel errors for library operations.
var (
	// Configuration errors: fatal to the whole run, raised before any
	// article is loaded.
	ErrBundleConfig       = errors.New("a layout and title must be specified when using bundle")
	ErrTitleWithoutBundle = errors.New("a title cannot be specified when not using bundle")
	ErrNoLayout           = errors.New("no layout defined")
	ErrLayoutNotFound     = errors.New("layout could not be found")
	ErrLayoutRootMissing  = errors.New("layout has no root template file")
	ErrInputNotFound      = errors.New("input path does not exist")
	ErrOutputDir          = errors.New("output directory could not be created")

	// Per-document errors: skip the document in per-article mode, abort
	// the run in bundle mode.
	ErrUnsupportedSource = errors.New("unsupported source type")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrSchemaValidation  = errors.New("schema validation failed")
	ErrTemplateRender    = errors.New("template rendering failed")
	ErrDocumentAssembly  = errors.New("could not create document")

	// Rendering errors: fatal to one document only.
	ErrHTMLConversion = errors.New("HTML conversion failed")
	ErrPDFGeneration  = errors.New("PDF generation failed")
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
)
