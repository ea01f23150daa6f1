package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/wudi/pdfmerge/config"
	"github.com/wudi/pdfmerge/discovery"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/optimize"
	"github.com/wudi/pdfmerge/parser"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/writer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns the exit status. Failures print one
// line on stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlags(ctx, args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "pdfmerge: %s\n", oneLine(err))
		return 2
	}
	if err := mergeFolder(ctx, cfg, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "pdfmerge: %s\n", oneLine(err))
		return 1
	}
	return 0
}

// parseFlags loads the optional config file, then applies the flags that
// were set explicitly on top of it.
func parseFlags(ctx context.Context, args []string, stderr io.Writer) (*config.Config, error) {
	fset := flag.NewFlagSet("pdfmerge", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), "Usage: pdfmerge [flags]\n\nMerges every PDF below a folder into one file.\n\n")
		fset.PrintDefaults()
	}
	folder := fset.String("folder", config.DefaultFolder, "Folder (or afs URL) searched recursively for PDF files")
	output := fset.String("output", config.DefaultOutput, "Merged output file (or afs URL)")
	configURL := fset.String("config", "", "Optional YAML configuration file")
	logLevel := fset.String("log-level", "info", "Log level: debug, info, warn or error")
	parallel := fset.Int("parallel", 4, "Number of files parsed concurrently")
	lenient := fset.Bool("lenient", false, "Skip damaged objects instead of failing")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	if fset.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fset.Arg(0))
	}

	cfg := config.Default()
	if *configURL != "" {
		loaded, err := config.Load(ctx, afs.New(), *configURL)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "folder":
			cfg.Folder = *folder
		case "output":
			cfg.Output = *output
		case "log-level":
			cfg.LogLevel = *logLevel
		case "parallel":
			cfg.Parallel = *parallel
		case "lenient":
			cfg.Lenient = *lenient
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFolder(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	level, _ := observability.ParseLevel(cfg.LogLevel)
	logger := observability.NewTextLogger(stderr, level)
	fs := afs.New()
	output := outputLocation(cfg.Output)

	sources, err := discovery.NewFinder(fs, logger).Find(ctx, cfg.Folder, output)
	if err != nil {
		return err
	}
	for _, src := range sources {
		fmt.Fprintf(stdout, "Merging: %s\n", src.Path)
	}

	pcfg := parser.Config{Limits: parser.DefaultLimits(), Logger: logger}
	if cfg.Lenient {
		pcfg.Recovery = recovery.NewLenientStrategy(logger)
	}
	loaded, err := discovery.NewLoader(fs, parser.NewDocumentParser(pcfg), cfg.Parallel, logger).LoadAll(ctx, sources)
	if err != nil {
		return err
	}

	inputs := make([]merge.Input, len(loaded))
	for i, l := range loaded {
		inputs[i] = merge.Input{Name: l.Source.Path, Document: l.Document}
	}
	opts := append(cfg.MergeOptions(), merge.WithLogger(logger))
	if cfg.OptimizeEnabled() {
		opts = append(opts, merge.WithOptimizer(optimize.New(cfg.OptimizerConfig())))
	}
	started := time.Now()
	res, err := merge.New(opts...).Merge(ctx, inputs)
	if err != nil {
		return err
	}
	logger.Debug("merge finished",
		observability.Int(observability.MetricPageCount, res.PageCount()),
		observability.Int64(observability.MetricMergeTime, time.Since(started).Milliseconds()))

	// The file is only created once serialization has succeeded.
	started = time.Now()
	var buf bytes.Buffer
	if err := writer.NewWriter().Write(ctx, res.Document, &buf, cfg.SerializerConfig()); err != nil {
		return fmt.Errorf("write merged document: %w", err)
	}
	if err := fs.Upload(ctx, output, 0o644, &buf); err != nil {
		return fmt.Errorf("save %s: %w", cfg.Output, err)
	}
	logger.Debug("output written",
		observability.String("output", output),
		observability.Int64(observability.MetricWriteTime, time.Since(started).Milliseconds()))

	fmt.Fprintf(stdout, "PDFs merged into %s\n", cfg.Output)
	return nil
}

// outputLocation makes local output paths absolute so storage resolves them
// against the working directory.
func outputLocation(output string) string {
	if strings.Contains(output, "://") {
		return output
	}
	if abs, err := filepath.Abs(output); err == nil {
		return abs
	}
	return output
}

func oneLine(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}
