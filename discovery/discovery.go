// Package discovery finds the PDF files of a folder and loads them in a
// reproducible order. Any afs URL works as the folder; plain paths are local
// files.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/wudi/pdfmerge/observability"
)

// ErrNoDocuments is returned when a folder holds no PDF files.
var ErrNoDocuments = errors.New("no PDF documents found")

// Source is one discovered file.
type Source struct {
	// URL is the afs location the file is read from.
	URL string
	// Path is the file as the user named it: the folder joined with Rel.
	Path string
	// Rel is the slash-separated path below the folder.
	Rel string
}

// Finder lists PDF files under a folder.
type Finder struct {
	fs     afs.Service
	logger observability.Logger
}

func NewFinder(fs afs.Service, logger observability.Logger) *Finder {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Finder{fs: fs, logger: logger}
}

// Find walks folder recursively and returns every file with a ".pdf"
// extension (any case) except the excluded paths. Sources are ordered by
// comparing their relative paths segment by segment, so the order does not
// depend on how the storage lists a directory.
func (f *Finder) Find(ctx context.Context, folder string, exclude ...string) ([]Source, error) {
	if folder == "" {
		folder = "."
	}
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[normalize(e)] = true
	}

	var sources []Source
	visitor := func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		if !strings.EqualFold(path.Ext(info.Name()), ".pdf") {
			return true, nil
		}
		rel := path.Join(strings.Trim(parent, "/"), info.Name())
		src := Source{
			URL:  url.Join(baseURL, rel),
			Path: displayPath(folder, rel),
			Rel:  rel,
		}
		if skip[normalize(src.Path)] || skip[normalize(src.URL)] {
			f.logger.Debug("skipping excluded file", observability.String("path", src.Path))
			return true, nil
		}
		sources = append(sources, src)
		return true, nil
	}
	if err := f.fs.Walk(ctx, folder, storage.OnVisit(visitor)); err != nil {
		return nil, fmt.Errorf("walk %s: %w", folder, err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, folder)
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return lessSegments(sources[i].Rel, sources[j].Rel)
	})
	f.logger.Debug("discovered documents",
		observability.String("folder", folder),
		observability.Int("count", len(sources)))
	return sources, nil
}

// lessSegments orders slash-separated paths by their first differing
// segment; a path that is a prefix of another sorts first.
func lessSegments(a, b string) bool {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}

func isURL(location string) bool {
	return strings.Contains(location, "://")
}

func displayPath(folder, rel string) string {
	if isURL(folder) {
		return url.Join(folder, rel)
	}
	return filepath.Join(folder, filepath.FromSlash(rel))
}

// normalize makes local paths comparable regardless of how they were
// spelled; URLs are compared as given.
func normalize(location string) string {
	if isURL(location) {
		if strings.HasPrefix(location, "file://") {
			location = strings.TrimPrefix(location, "file://")
			location = strings.TrimPrefix(location, "localhost")
		} else {
			return strings.TrimSuffix(location, "/")
		}
	}
	if abs, err := filepath.Abs(location); err == nil {
		return abs
	}
	return filepath.Clean(location)
}
