package main

import (
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
)

// commonFlags holds logging and mode flags.
type commonFlags struct {
	quiet   bool
	verbose bool
	watch   bool
	version bool
	config  string
}

// bundleFlags holds single-document bundling flags.
type bundleFlags struct {
	bundle   bool
	title    string
	altTitle string
}

// selectionFlags holds source selection flags.
type selectionFlags struct {
	filter       string
	onlyModified bool
}

// layoutFlags holds layout resolution flags.
type layoutFlags struct {
	layoutsDir string
	layout     string
}

// outputFlags holds extra output artifact flags.
type outputFlags struct {
	html     bool
	md       bool
	keepTree bool
}

// cliFlags holds all docpress flags. The flag set is kept so callers can
// tell explicit flags apart from defaults when merging a config file.
type cliFlags struct {
	common    commonFlags
	bundle    bundleFlags
	selection selectionFlags
	layouts   layoutFlags
	output    outputFlags
	meta      string

	fs *flag.FlagSet
}

func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug output")
	fs.BoolVarP(&f.watch, "watch", "w", false, "rebuild on source or layout changes")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.StringVarP(&f.config, "config", "c", "", "YAML config file with flag defaults")
}

func addBundleFlags(fs *flag.FlagSet, f *bundleFlags) {
	fs.BoolVarP(&f.bundle, "bundle", "b", false, "render all articles into a single document")
	fs.StringVarP(&f.title, "title", "t", "", "bundled document title (requires --bundle)")
	fs.StringVar(&f.altTitle, "alt-title", "", "short title for headers (requires --bundle)")
}

func addSelectionFlags(fs *flag.FlagSet, f *selectionFlags) {
	fs.StringVarP(&f.filter, "filter", "f", "", "regexp on source paths relative to the input")
	fs.BoolVar(&f.onlyModified, "only-modified-in-commit", false, "only build sources touched by the current commit")
}

func addLayoutFlags(fs *flag.FlagSet, f *layoutFlags) {
	fs.StringVar(&f.layoutsDir, "layouts-dir", "layouts", "directory containing layout subdirectories")
	fs.StringVarP(&f.layout, "layout", "l", "", "default layout name")
}

func addOutputFlags(fs *flag.FlagSet, f *outputFlags) {
	fs.BoolVar(&f.html, "output-html", false, "write rendered HTML next to each PDF")
	fs.BoolVar(&f.md, "output-md", false, "write expanded Markdown next to each PDF")
	fs.BoolVar(&f.keepTree, "keep-tree", false, "mirror the source directory structure in the output")
}

// parseFlags parses the command line and returns the flags plus the
// positional arguments (input, optional output directory).
func parseFlags(args []string) (*cliFlags, []string, error) {
	fs := flag.NewFlagSet("docpress", flag.ContinueOnError)
	f := &cliFlags{}

	addCommonFlags(fs, &f.common)
	addBundleFlags(fs, &f.bundle)
	addSelectionFlags(fs, &f.selection)
	addLayoutFlags(fs, &f.layouts)
	addOutputFlags(fs, &f.output)
	fs.StringVarP(&f.meta, "meta", "m", "", "run-level metadata as a JSON object")

	fs.Usage = func() { printUsage(os.Stderr, fs) }

	if err := fs.Parse(args[1:]); err != nil {
		return nil, nil, err
	}
	f.fs = fs
	return f, fs.Args(), nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: docpress [flags] <input> [output_dir]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Build PDF documents from Markdown and YAML sources.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  <input>       source file or directory")
	fmt.Fprintln(w, "  [output_dir]  destination directory (default: $OUTPUT_PATH or .)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, fs.FlagUsages())
}
