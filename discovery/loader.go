package discovery

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/observability"
	"golang.org/x/sync/errgroup"
)

// Loaded is a parsed source.
type Loaded struct {
	Source   Source
	Document *raw.Document
}

// Loader downloads and parses sources. Parsing runs concurrently; results
// keep the order of the sources.
type Loader struct {
	fs       afs.Service
	parser   raw.Parser
	parallel int
	logger   observability.Logger
}

// NewLoader returns a loader running at most parallel parses at once; zero
// or less means one.
func NewLoader(fs afs.Service, p raw.Parser, parallel int, logger observability.Logger) *Loader {
	if parallel < 1 {
		parallel = 1
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Loader{fs: fs, parser: p, parallel: parallel, logger: logger}
}

// LoadAll parses every source. The first failure cancels the remaining work
// and is returned wrapped with the source path.
func (l *Loader) LoadAll(ctx context.Context, sources []Source) ([]Loaded, error) {
	out := make([]Loaded, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)
	for i, src := range sources {
		g.Go(func() error {
			doc, err := l.Load(ctx, src)
			if err != nil {
				return err
			}
			out[i] = Loaded{Source: src, Document: doc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Load downloads and parses one source.
func (l *Loader) Load(ctx context.Context, src Source) (*raw.Document, error) {
	started := time.Now()
	data, err := l.fs.DownloadWithURL(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Path, err)
	}
	doc, err := l.parser.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Path, err)
	}
	l.logger.Debug("loaded document",
		observability.String("path", src.Path),
		observability.Int64("bytes", int64(len(data))),
		observability.Int(observability.MetricObjectCount, len(doc.Objects)),
		observability.Int64(observability.MetricParseTime, time.Since(started).Milliseconds()))
	return doc, nil
}
