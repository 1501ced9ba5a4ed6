// Package layouts ships the built-in layouts as embedded assets.
package layouts

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

//go:embed builtin
var builtin embed.FS

var (
	once sync.Once
	dir  string
	err  error
)

// Dir returns a directory on the real filesystem containing the built-in
// layouts, one subdirectory per layout. The embedded assets are extracted
// on first use: the PDF renderer needs layout assets addressable by path,
// which an embed.FS cannot provide.
func Dir() (string, error) {
	once.Do(func() {
		dir, err = extract()
	})
	return dir, err
}

func extract() (string, error) {
	root, err := os.MkdirTemp("", "docpress-layouts-")
	if err != nil {
		return "", fmt.Errorf("extracting built-in layouts: %w", err)
	}

	walkErr := fs.WalkDir(builtin, "builtin", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel("builtin", path)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(root, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		data, readErr := builtin.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		return os.WriteFile(target, data, 0o644)
	})
	if walkErr != nil {
		return "", fmt.Errorf("extracting built-in layouts: %w", walkErr)
	}
	return root, nil
}
