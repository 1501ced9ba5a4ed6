package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		args  []string
		want  func(t *testing.T, f *cliFlags, pos []string)
		error bool
	}{
		{
			name: "positionals only",
			args: []string{"docpress", "docs", "out"},
			want: func(t *testing.T, f *cliFlags, pos []string) {
				if len(pos) != 2 || pos[0] != "docs" || pos[1] != "out" {
					t.Errorf("positionals = %v, want [docs out]", pos)
				}
				if f.common.watch || f.bundle.bundle {
					t.Error("expected all bool flags off by default")
				}
				if f.layouts.layoutsDir != "layouts" {
					t.Errorf("layoutsDir = %q, want %q", f.layouts.layoutsDir, "layouts")
				}
			},
		},
		{
			name: "short flags",
			args: []string{"docpress", "-w", "-b", "-t", "Handbook", "-l", "letter", "docs"},
			want: func(t *testing.T, f *cliFlags, pos []string) {
				if !f.common.watch {
					t.Error("watch = false, want true")
				}
				if !f.bundle.bundle || f.bundle.title != "Handbook" {
					t.Errorf("bundle = %v title = %q", f.bundle.bundle, f.bundle.title)
				}
				if f.layouts.layout != "letter" {
					t.Errorf("layout = %q, want %q", f.layouts.layout, "letter")
				}
			},
		},
		{
			name: "long flags after positional",
			args: []string{"docpress", "docs", "--filter", "^guides/", "--keep-tree", "--meta", `{"k":1}`},
			want: func(t *testing.T, f *cliFlags, pos []string) {
				if f.selection.filter != "^guides/" {
					t.Errorf("filter = %q, want %q", f.selection.filter, "^guides/")
				}
				if !f.output.keepTree {
					t.Error("keepTree = false, want true")
				}
				if f.meta != `{"k":1}` {
					t.Errorf("meta = %q", f.meta)
				}
			},
		},
		{
			name:  "unknown flag",
			args:  []string{"docpress", "--bogus", "docs"},
			error: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, pos, err := parseFlags(tt.args)
			if tt.error {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			tt.want(t, f, pos)
		})
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	writeConfig := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "docpress.yaml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("fills unset flags", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, strings.Join([]string{
			"layout: letter",
			"layouts_dir: themes",
			"bundle: true",
			"title: Team Handbook",
			"keep_tree: true",
			"filter: ^guides/",
			"meta:",
			"  org: acme",
		}, "\n"))

		flags, _, err := parseFlags([]string{"docpress", "-c", path, "docs"})
		if err != nil {
			t.Fatalf("parseFlags: %v", err)
		}
		meta, err := applyConfig(flags)
		if err != nil {
			t.Fatalf("applyConfig: %v", err)
		}

		if flags.layouts.layout != "letter" {
			t.Errorf("layout = %q, want %q", flags.layouts.layout, "letter")
		}
		if flags.layouts.layoutsDir != "themes" {
			t.Errorf("layoutsDir = %q, want %q", flags.layouts.layoutsDir, "themes")
		}
		if !flags.bundle.bundle || flags.bundle.title != "Team Handbook" {
			t.Errorf("bundle = %v title = %q", flags.bundle.bundle, flags.bundle.title)
		}
		if !flags.output.keepTree {
			t.Error("keepTree = false, want true")
		}
		if flags.selection.filter != "^guides/" {
			t.Errorf("filter = %q, want %q", flags.selection.filter, "^guides/")
		}
		if meta["org"] != "acme" {
			t.Errorf("meta[org] = %v, want %q", meta["org"], "acme")
		}
	})

	t.Run("explicit flags win", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "layout: letter\ntitle: From Config\nbundle: true")

		flags, _, err := parseFlags([]string{
			"docpress", "-c", path, "--layout", "default", "--title", "From CLI", "docs",
		})
		if err != nil {
			t.Fatalf("parseFlags: %v", err)
		}
		if _, err := applyConfig(flags); err != nil {
			t.Fatalf("applyConfig: %v", err)
		}

		if flags.layouts.layout != "default" {
			t.Errorf("layout = %q, want %q", flags.layouts.layout, "default")
		}
		if flags.bundle.title != "From CLI" {
			t.Errorf("title = %q, want %q", flags.bundle.title, "From CLI")
		}
		if !flags.bundle.bundle {
			t.Error("bundle = false, want true from config")
		}
	})

	t.Run("empty layouts_dir keeps default", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "bundle: true")

		flags, _, err := parseFlags([]string{"docpress", "-c", path, "docs"})
		if err != nil {
			t.Fatalf("parseFlags: %v", err)
		}
		if _, err := applyConfig(flags); err != nil {
			t.Fatalf("applyConfig: %v", err)
		}
		if flags.layouts.layoutsDir != "layouts" {
			t.Errorf("layoutsDir = %q, want %q", flags.layouts.layoutsDir, "layouts")
		}
	})

	t.Run("no config file is a no-op", func(t *testing.T) {
		t.Parallel()

		flags, _, err := parseFlags([]string{"docpress", "docs"})
		if err != nil {
			t.Fatalf("parseFlags: %v", err)
		}
		meta, err := applyConfig(flags)
		if err != nil {
			t.Fatalf("applyConfig: %v", err)
		}
		if meta != nil {
			t.Errorf("meta = %v, want nil", meta)
		}
	})

	t.Run("missing config file errors with path", func(t *testing.T) {
		t.Parallel()

		flags, _, err := parseFlags([]string{"docpress", "-c", "nope.yaml", "docs"})
		if err != nil {
			t.Fatalf("parseFlags: %v", err)
		}
		if _, err := applyConfig(flags); err == nil {
			t.Fatal("expected error for missing config file")
		} else if !strings.Contains(err.Error(), "nope.yaml") {
			t.Errorf("error %q does not name the config file", err)
		}
	})
}

func TestMergeMeta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     map[string]interface{}
		override map[string]interface{}
		want     map[string]interface{}
	}{
		{
			name:     "nil base returns override",
			override: map[string]interface{}{"k": "v"},
			want:     map[string]interface{}{"k": "v"},
		},
		{
			name: "nil override returns base",
			base: map[string]interface{}{"k": "v"},
			want: map[string]interface{}{"k": "v"},
		},
		{
			name:     "override wins on conflict",
			base:     map[string]interface{}{"org": "config", "team": "docs"},
			override: map[string]interface{}{"org": "cli"},
			want:     map[string]interface{}{"org": "cli", "team": "docs"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := mergeMeta(tt.base, tt.override)
			if len(got) != len(tt.want) {
				t.Fatalf("merged = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("merged[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestParseMeta(t *testing.T) {
	t.Parallel()

	t.Run("empty string", func(t *testing.T) {
		t.Parallel()

		meta, err := parseMeta("")
		if err != nil || meta != nil {
			t.Errorf("parseMeta(\"\") = %v, %v; want nil, nil", meta, err)
		}
	})

	t.Run("object", func(t *testing.T) {
		t.Parallel()

		meta, err := parseMeta(`{"version":"1.2","draft":true}`)
		if err != nil {
			t.Fatalf("parseMeta: %v", err)
		}
		if meta["version"] != "1.2" || meta["draft"] != true {
			t.Errorf("meta = %v", meta)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		t.Parallel()

		if _, err := parseMeta("{not json"); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})
}
