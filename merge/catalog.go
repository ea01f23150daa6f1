package merge

import (
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
)

// pagesRecomputed are never copied from a source Pages dictionary; the page
// tree reconstructor rewrites them.
var pagesRecomputed = map[string]bool{"Kids": true, "Count": true, "Parent": true}

// selectRoots picks the surviving catalog and Pages dictionary: the first
// candidates in document order. Later Pages dictionaries are folded into
// the survivor first-wins: an existing key is never overwritten.
// Inheritable page attributes already live on the pages themselves, so they
// are removed from the survivor instead of leaking into other documents.
func selectRoots(c *collector) (catalog, pages entry, err error) {
	if len(c.catalogs) == 0 {
		return entry{}, entry{}, fmt.Errorf("merge %d documents: %w", c.docs, ErrCatalogNotFound)
	}
	if len(c.pages) == 0 {
		return entry{}, entry{}, fmt.Errorf("merge %d documents: %w", c.docs, ErrPagesNotFound)
	}
	catalog, pages = c.catalogs[0], c.pages[0]
	for _, other := range c.pages[1:] {
		for _, key := range other.dict.SortedKeys() {
			if pagesRecomputed[key] || isInheritable(key) {
				continue
			}
			if _, exists := pages.dict.Lookup(key); exists {
				continue
			}
			pages.dict.Set(raw.NameLiteral(key), other.dict.KV[key])
		}
	}
	for _, key := range inheritable {
		pages.dict.Delete(key)
	}
	return catalog, pages, nil
}

// finalizeCatalog points the catalog at the surviving Pages, strips any
// inherited outline and installs the catalog as the trailer root.
func finalizeCatalog(merged *raw.Document, catalog, pages entry) {
	catalog.dict.Set(raw.NameLiteral("Pages"), raw.RefTo(pages.ref))
	catalog.dict.Delete("Outlines")
	merged.Objects[catalog.ref] = catalog.dict
	merged.Trailer.Set(raw.NameLiteral("Root"), raw.RefTo(catalog.ref))
}
