// Package config holds the pdfmerge settings and reads them from YAML.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/viant/afs"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/optimize"
	"github.com/wudi/pdfmerge/writer"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFolder = "."
	DefaultOutput = "merged_output.pdf"
)

const sampleYAML = `# pdfmerge configuration
folder: .
output: merged_output.pdf
version: "1.5"
log_level: info
parallel: 4
lenient: false

bookmarks:
  title_format: Page_%d
  use_file_names: false

optimize:
  prune_unreachable: true
  combine_identical_objects: true
  combine_duplicate_streams: false
  combine_direct_objects: false
  compress_streams: false

writer:
  compression: 0
  deterministic: true
`

// BookmarkConfig controls the per-document outline entries.
type BookmarkConfig struct {
	TitleFormat  string `yaml:"title_format"`
	UseFileNames bool   `yaml:"use_file_names"`
}

// OptimizeConfig selects the passes run on the merged document.
type OptimizeConfig struct {
	PruneUnreachable        bool `yaml:"prune_unreachable"`
	CombineIdenticalObjects bool `yaml:"combine_identical_objects"`
	CombineDuplicateStreams bool `yaml:"combine_duplicate_streams"`
	CombineDirectObjects    bool `yaml:"combine_direct_objects"`
	CompressStreams         bool `yaml:"compress_streams"`
}

// WriterConfig controls serialization.
type WriterConfig struct {
	Compression   int  `yaml:"compression"`
	Deterministic bool `yaml:"deterministic"`
}

// Config models a pdfmerge YAML file.
type Config struct {
	Folder    string         `yaml:"folder"`
	Output    string         `yaml:"output"`
	Version   string         `yaml:"version"`
	LogLevel  string         `yaml:"log_level"`
	Parallel  int            `yaml:"parallel"`
	Lenient   bool           `yaml:"lenient"`
	Bookmarks BookmarkConfig `yaml:"bookmarks"`
	Optimize  OptimizeConfig `yaml:"optimize"`
	Writer    WriterConfig   `yaml:"writer"`
}

// Default returns the built-in settings, the same as Sample parsed.
func Default() *Config {
	return &Config{
		Folder:   DefaultFolder,
		Output:   DefaultOutput,
		Version:  merge.DefaultVersion,
		LogLevel: "info",
		Parallel: 4,
		Bookmarks: BookmarkConfig{
			TitleFormat: merge.DefaultTitleFormat,
		},
		Optimize: OptimizeConfig{
			PruneUnreachable:        true,
			CombineIdenticalObjects: true,
		},
		Writer: WriterConfig{Deterministic: true},
	}
}

// Sample returns a commented configuration file with the default values.
func Sample() string { return sampleYAML }

// Load reads the YAML file at URL over the defaults. Keys missing from the
// file keep their default value; unknown keys are an error.
func Load(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", URL, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", URL, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

var versionRE = regexp.MustCompile(`^\d\.\d$`)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Folder == "" {
		errs = append(errs, errors.New("folder is empty"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output is empty"))
	}
	if !versionRE.MatchString(c.Version) {
		errs = append(errs, fmt.Errorf("version %q is not of the form major.minor", c.Version))
	}
	if _, err := observability.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Parallel < 1 {
		errs = append(errs, fmt.Errorf("parallel must be at least 1, got %d", c.Parallel))
	}
	if !c.Bookmarks.UseFileNames {
		if rendered := fmt.Sprintf(c.Bookmarks.TitleFormat, 1); c.Bookmarks.TitleFormat == "" || strings.Contains(rendered, "%!") {
			errs = append(errs, fmt.Errorf("bookmarks.title_format %q must take exactly one number, rendered %q", c.Bookmarks.TitleFormat, rendered))
		}
	}
	if c.Writer.Compression < -1 || c.Writer.Compression > 9 {
		errs = append(errs, fmt.Errorf("writer.compression %d is outside -1..9", c.Writer.Compression))
	}
	return errors.Join(errs...)
}

// OptimizerConfig maps the optimize section onto the optimizer settings.
// Streams compressed here are left alone by the writer.
func (c *Config) OptimizerConfig() optimize.Config {
	return optimize.Config{
		PruneUnreachable:                c.Optimize.PruneUnreachable,
		CombineIdenticalIndirectObjects: c.Optimize.CombineIdenticalObjects,
		CombineDuplicateStreams:         c.Optimize.CombineDuplicateStreams,
		CombineDuplicateDirectObjects:   c.Optimize.CombineDirectObjects,
		CompressStreams:                 c.Optimize.CompressStreams,
		CompressionLevel:                c.Writer.Compression,
	}
}

// OptimizeEnabled reports whether any optimizer pass is selected.
func (c *Config) OptimizeEnabled() bool {
	o := c.Optimize
	return o.PruneUnreachable || o.CombineIdenticalObjects || o.CombineDuplicateStreams || o.CombineDirectObjects || o.CompressStreams
}

// SerializerConfig returns the writer settings.
func (c *Config) SerializerConfig() writer.Config {
	return writer.Config{
		Version:       c.Version,
		Compression:   c.Writer.Compression,
		Deterministic: c.Writer.Deterministic,
	}
}

// MergeOptions returns the merge options implied by the bookmark and version
// settings.
func (c *Config) MergeOptions() []merge.Option {
	return []merge.Option{
		merge.WithVersion(c.Version),
		merge.WithTitleFormat(c.Bookmarks.TitleFormat),
		merge.WithFileNameTitles(c.Bookmarks.UseFileNames),
	}
}
