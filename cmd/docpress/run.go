package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	docpress "github.com/alnah/go-docpress"
)

// outputPathEnv provides the default output directory when no positional
// output argument is given.
const outputPathEnv = "OUTPUT_PATH"

func run(flags *cliFlags, args []string, logger *slog.Logger) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("expected <input> [output_dir], got %d arguments", len(args))
	}

	outputDir := os.Getenv(outputPathEnv)
	if len(args) == 2 {
		outputDir = args[1]
	}
	if outputDir == "" {
		outputDir = "."
	}

	cfgMeta, err := applyConfig(flags)
	if err != nil {
		return err
	}

	meta, err := parseMeta(flags.meta)
	if err != nil {
		return err
	}
	meta = mergeMeta(cfgMeta, meta)

	rev := docpress.NewRevisionProvider()

	printer, err := docpress.NewPrinter(docpress.Options{
		Input:          args[0],
		OutputDir:      outputDir,
		LayoutsDir:     flags.layouts.layoutsDir,
		Bundle:         flags.bundle.bundle,
		Title:          flags.bundle.title,
		AltTitle:       flags.bundle.altTitle,
		Layout:         flags.layouts.layout,
		OutputHTML:     flags.output.html,
		OutputMD:       flags.output.md,
		FilenameFilter: flags.selection.filter,
		Meta:           meta,
		KeepTree:       flags.output.keepTree,
	},
		docpress.WithLogger(logger),
		docpress.WithRevisionProvider(rev),
	)
	if err != nil {
		return err
	}
	defer printer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scope, err := buildScope(flags, rev, logger)
	if err != nil {
		return err
	}

	results, err := printer.Execute(ctx, scope)
	if err != nil {
		if !flags.common.watch {
			return err
		}
		// In watch mode a failing initial build is not fatal; the next
		// edit gets another chance.
		logger.Error("initial build failed", slog.String("error", err.Error()))
	} else {
		logger.Info("completed", slog.Int("documents", len(results)))
	}

	if !flags.common.watch {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return docpress.NewWatcher(printer, logger).Run(ctx)
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// buildScope narrows the initial build to the files changed in the current
// commit when --only-modified-in-commit is set. Sources outside the input
// tree are filtered out by the printer's selection.
func buildScope(flags *cliFlags, rev docpress.RevisionProvider, logger *slog.Logger) ([]string, error) {
	if !flags.selection.onlyModified {
		return nil, nil
	}
	id := docpress.ResolveRevision(rev)
	if id == "" {
		return nil, fmt.Errorf("--only-modified-in-commit requires a git work tree or a revision env var")
	}
	changed, err := rev.ChangedFiles(id)
	if err != nil {
		return nil, err
	}
	logger.Debug("restricting build to commit",
		slog.String("revision", id),
		slog.Int("files", len(changed)))
	if changed == nil {
		changed = []string{}
	}
	return changed, nil
}

// mergeMeta overlays --meta values on top of the config file metadata.
func mergeMeta(base, override map[string]interface{}) map[string]interface{} {
	if len(base) == 0 {
		return override
	}
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func parseMeta(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("invalid --meta JSON: %w", err)
	}
	return meta, nil
}
