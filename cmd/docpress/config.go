package main

import (
	"fmt"

	"github.com/alnah/go-docpress/internal/yamlutil"
)

// fileConfig mirrors the command-line flags that make sense to persist in a
// project config file. Explicit flags always win over file values.
type fileConfig struct {
	Layout     string                 `yaml:"layout"`
	LayoutsDir string                 `yaml:"layouts_dir"`
	Bundle     bool                   `yaml:"bundle"`
	Title      string                 `yaml:"title"`
	AltTitle   string                 `yaml:"alt_title"`
	OutputHTML bool                   `yaml:"output_html"`
	OutputMD   bool                   `yaml:"output_md"`
	KeepTree   bool                   `yaml:"keep_tree"`
	Filter     string                 `yaml:"filter"`
	Meta       map[string]interface{} `yaml:"meta"`
}

// applyConfig loads the YAML config file named by --config and fills in
// every flag the user did not set explicitly. The file's meta map is
// returned separately so run can merge it with --meta.
func applyConfig(flags *cliFlags) (map[string]interface{}, error) {
	if flags.common.config == "" {
		return nil, nil
	}

	var cfg fileConfig
	if err := yamlutil.DecodeFile(flags.common.config, &cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", flags.common.config, err)
	}

	set := func(name string, apply func()) {
		if !flags.fs.Changed(name) {
			apply()
		}
	}
	set("layout", func() { flags.layouts.layout = cfg.Layout })
	set("layouts-dir", func() {
		if cfg.LayoutsDir != "" {
			flags.layouts.layoutsDir = cfg.LayoutsDir
		}
	})
	set("bundle", func() { flags.bundle.bundle = cfg.Bundle })
	set("title", func() { flags.bundle.title = cfg.Title })
	set("alt-title", func() { flags.bundle.altTitle = cfg.AltTitle })
	set("output-html", func() { flags.output.html = cfg.OutputHTML })
	set("output-md", func() { flags.output.md = cfg.OutputMD })
	set("keep-tree", func() { flags.output.keepTree = cfg.KeepTree })
	set("filter", func() { flags.selection.filter = cfg.Filter })

	return cfg.Meta, nil
}
