package merge

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/observability"
)

const (
	DefaultTitleFormat = "Page_%d"
	DefaultVersion     = "1.5"
	DefaultProducer    = "pdfmerge"
)

// Optimizer is the structural size-optimization pass run after compaction.
// Pinned objects must survive with their identity and content relationships.
type Optimizer interface {
	Optimize(ctx context.Context, doc *raw.Document, pinned ...raw.ObjectRef) error
}

// Input is one source document. Name is used for logging and, when
// enabled, as the bookmark title.
type Input struct {
	Name     string
	Document *raw.Document
}

// Result is the merged document plus the facts callers usually report.
type Result struct {
	Document  *raw.Document
	Pages     []raw.ObjectRef
	Bookmarks []Bookmark
}

// PageCount returns the number of pages in the merged page tree.
func (r *Result) PageCount() int { return len(r.Pages) }

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l observability.Logger) Option { return func(m *Merger) { m.logger = l } }

// WithOptimizer sets the post-merge optimization pass. Nil disables it.
func WithOptimizer(o Optimizer) Option { return func(m *Merger) { m.optimizer = o } }

// WithTitleFormat sets the fmt format for bookmark titles; it receives the
// 1-based bookmark number.
func WithTitleFormat(format string) Option { return func(m *Merger) { m.titleFormat = format } }

// WithFileNameTitles titles bookmarks with the input's base name (without
// extension) when the input has a name.
func WithFileNameTitles(enabled bool) Option { return func(m *Merger) { m.fileNames = enabled } }

// WithVersion sets the minimum PDF version of the merged document.
func WithVersion(v string) Option { return func(m *Merger) { m.version = v } }

// WithProducer sets the /Producer of the merged document's info dictionary.
// An empty producer omits the info dictionary.
func WithProducer(p string) Option { return func(m *Merger) { m.producer = p } }

// Merger runs the merge pipeline. It holds no state between runs.
type Merger struct {
	logger      observability.Logger
	optimizer   Optimizer
	titleFormat string
	fileNames   bool
	version     string
	producer    string
}

// New constructs a Merger.
func New(opts ...Option) *Merger {
	m := &Merger{
		logger:      observability.NopLogger{},
		titleFormat: DefaultTitleFormat,
		version:     DefaultVersion,
		producer:    DefaultProducer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge combines inputs, in order, into a new document. Inputs are not
// modified. Page order is the concatenation of each input's reading order
// and bookmark numbering follows input order, so equal inputs always give
// isomorphic results.
func (m *Merger) Merge(ctx context.Context, inputs []Input) (*Result, error) {
	running := 0
	version := m.version
	c := newCollector(m.logger, m.title)
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if in.Document == nil {
			continue
		}
		var doc *raw.Document
		running, doc = Renumber(in.Document, running)
		c.collect(doc, in.Name)
		if newerVersion(doc.Version, version) {
			version = doc.Version
		}
	}

	catalog, pages, err := selectRoots(c)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("selected roots",
		observability.String("catalog", catalog.ref.String()),
		observability.String("pages", pages.ref.String()),
		observability.Int("catalogs", len(c.catalogs)),
		observability.Int("pagesDicts", len(c.pages)))

	merged := raw.NewDocument(version)
	merged.Objects = c.others
	merged.MaxID = running
	alloc := func() raw.ObjectRef {
		merged.MaxID++
		return raw.ObjectRef{Num: merged.MaxID}
	}

	rebuildPageTree(merged, pages, c.pool)
	finalizeCatalog(merged, catalog, pages)
	bookmarks, outlineRefs := buildOutline(merged, catalog, c.bookmarks, c.pool, alloc)
	if m.producer != "" {
		info := raw.Dict()
		info.Set(raw.NameLiteral("Producer"), raw.Str([]byte(m.producer)))
		ref := alloc()
		merged.Objects[ref] = info
		merged.Trailer.Set(raw.NameLiteral("Info"), raw.RefTo(ref))
	}

	pinned := make([]raw.ObjectRef, 0, len(c.pool)+len(outlineRefs)+2)
	pinned = append(pinned, catalog.ref, pages.ref)
	for _, p := range c.pool {
		pinned = append(pinned, p.ref)
	}
	pinned = append(pinned, outlineRefs...)

	mapping := Compact(merged)
	if m.optimizer != nil {
		pinned = remapAll(pinned, mapping)
		if err := m.optimizer.Optimize(ctx, merged, pinned...); err != nil {
			return nil, fmt.Errorf("optimize merged document: %w", err)
		}
		mapping = compose(mapping, Compact(merged))
	}

	res := &Result{Document: merged}
	for _, p := range c.pool {
		res.Pages = append(res.Pages, mapping[p.ref])
	}
	for _, b := range bookmarks {
		b.Target = mapping[b.Target]
		res.Bookmarks = append(res.Bookmarks, b)
	}
	m.logger.Info("merged documents",
		observability.Int("documents", c.docs),
		observability.Int("pages", len(res.Pages)),
		observability.Int("bookmarks", len(res.Bookmarks)),
		observability.Int("objects", len(merged.Objects)),
		observability.Int("dropped", c.dropped))
	return res, nil
}

func (m *Merger) title(n int, name string) string {
	if m.fileNames && name != "" {
		base := path.Base(strings.ReplaceAll(name, "\\", "/"))
		return strings.TrimSuffix(base, path.Ext(base))
	}
	return fmt.Sprintf(m.titleFormat, n)
}

func remapAll(refs []raw.ObjectRef, mapping map[raw.ObjectRef]raw.ObjectRef) []raw.ObjectRef {
	out := make([]raw.ObjectRef, 0, len(refs))
	for _, r := range refs {
		if to, ok := mapping[r]; ok {
			out = append(out, to)
		}
	}
	return out
}

// compose returns first followed by second. Objects removed by the second
// step are absent from the result.
func compose(first, second map[raw.ObjectRef]raw.ObjectRef) map[raw.ObjectRef]raw.ObjectRef {
	out := make(map[raw.ObjectRef]raw.ObjectRef, len(first))
	for from, mid := range first {
		if to, ok := second[mid]; ok {
			out[from] = to
		}
	}
	return out
}

// newerVersion reports whether header version a is above b. Versions are
// "major.minor" with single-digit parts, so byte order is version order.
func newerVersion(a, b string) bool {
	if a == "" {
		return false
	}
	return a > b
}
