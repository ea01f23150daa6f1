package merge

import (
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/observability"
)

// inheritable lists the page attributes a Page may take from its Pages
// ancestors. They are copied onto the page since the ancestors are dropped.
var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

func isInheritable(key string) bool {
	for _, k := range inheritable {
		if k == key {
			return true
		}
	}
	return false
}

type entry struct {
	ref  raw.ObjectRef
	dict *raw.DictObj
}

type pooledPage struct {
	entry
	doc int
}

// pendingBookmark is a bookmark before outline compilation. start is the
// pool index of its document's first page.
type pendingBookmark struct {
	Bookmark
	doc   int
	start int
}

// collector buckets the objects of renumbered documents by role.
type collector struct {
	logger    observability.Logger
	title     func(n int, name string) string
	pool      []pooledPage
	catalogs  []entry
	pages     []entry
	others    map[raw.ObjectRef]raw.Object
	bookmarks []pendingBookmark
	dropped   int
	docs      int
}

func newCollector(logger observability.Logger, title func(int, string) string) *collector {
	return &collector{
		logger: logger,
		title:  title,
		others: make(map[raw.ObjectRef]raw.Object),
	}
}

// collect classifies every object of doc. It never fails: objects whose
// role cannot be determined go to the "other" table.
func (c *collector) collect(doc *raw.Document, name string) {
	idx := c.docs
	c.docs++
	roles := classifyAll(doc)
	start := len(c.pool)

	pooled := make(map[raw.ObjectRef]bool)
	for _, p := range orderedPages(doc, roles, c.logger) {
		pooled[p.ref] = true
		c.pool = append(c.pool, pooledPage{entry: p, doc: idx})
	}

	root, hasRoot := doc.Root()
	if hasRoot && roles[root] == RoleCatalog {
		if d, ok := raw.DictOf(doc.Objects[root]); ok {
			c.catalogs = append(c.catalogs, entry{ref: root, dict: d})
		}
	}
	treeRoot, hasTree := pageTreeRoot(doc, roles)
	if hasTree {
		if d, ok := raw.DictOf(doc.Objects[treeRoot]); ok {
			c.pages = append(c.pages, entry{ref: treeRoot, dict: d})
		}
	}
	for _, ref := range doc.SortedRefs() {
		obj := doc.Objects[ref]
		switch roles[ref] {
		case RoleCatalog:
			if hasRoot && ref == root {
				continue
			}
			if d, ok := raw.DictOf(obj); ok {
				c.catalogs = append(c.catalogs, entry{ref: ref, dict: d})
			}
		case RolePages:
			if hasTree && ref == treeRoot {
				continue
			}
			if d, ok := raw.DictOf(obj); ok {
				c.pages = append(c.pages, entry{ref: ref, dict: d})
			}
		case RolePage:
			if !pooled[ref] {
				c.dropped++
				c.logger.Debug("dropping page outside page tree", observability.String("ref", ref.String()))
			}
		case RoleOutlines, RoleOutline:
			c.dropped++
		default:
			c.others[ref] = obj
		}
	}

	if len(c.pool) > start {
		first := c.pool[start].ref
		c.bookmarks = append(c.bookmarks, pendingBookmark{
			Bookmark: Bookmark{
				Title:  c.title(len(c.bookmarks)+1, name),
				Target: first,
			},
			doc:   idx,
			start: start,
		})
	}
	c.logger.Debug("collected document",
		observability.String("name", name),
		observability.Int("objects", len(doc.Objects)),
		observability.Int("pages", len(c.pool)-start))
}

// orderedPages returns the leaf pages of doc in reading order by walking the
// page tree from the catalog. Visited nodes are tracked so a cyclic Kids or
// Parent structure terminates. Without a usable tree, Page objects are taken
// in table order.
func orderedPages(doc *raw.Document, roles map[raw.ObjectRef]Role, logger observability.Logger) []entry {
	treeRoot, ok := pageTreeRoot(doc, roles)
	if !ok {
		var out []entry
		for _, ref := range doc.SortedRefs() {
			if roles[ref] != RolePage {
				continue
			}
			if d, ok := raw.DictOf(doc.Objects[ref]); ok {
				inheritFromParents(doc, d, roles)
				out = append(out, entry{ref: ref, dict: d})
			}
		}
		return out
	}

	var out []entry
	visited := make(map[raw.ObjectRef]bool)
	var visit func(ref raw.ObjectRef, inherited map[string]raw.Object)
	visit = func(ref raw.ObjectRef, inherited map[string]raw.Object) {
		if visited[ref] {
			logger.Warn("page tree cycle", observability.String("ref", ref.String()))
			return
		}
		visited[ref] = true
		dict, ok := raw.DictOf(doc.Objects[ref])
		if !ok {
			return
		}
		switch roles[ref] {
		case RolePage:
			for _, key := range inheritable {
				if _, has := dict.Lookup(key); has {
					continue
				}
				if v, ok := inherited[key]; ok {
					dict.Set(raw.NameLiteral(key), raw.Clone(v))
				}
			}
			out = append(out, entry{ref: ref, dict: dict})
		case RolePages:
			next := make(map[string]raw.Object, len(inheritable))
			for k, v := range inherited {
				next[k] = v
			}
			for _, key := range inheritable {
				if v, ok := dict.Lookup(key); ok {
					next[key] = v
				}
			}
			kids, ok := doc.Resolve(dictValue(dict, "Kids")).(*raw.ArrayObj)
			if !ok {
				return
			}
			for _, kid := range kids.Items {
				if r, ok := kid.(raw.RefObj); ok {
					visit(r.R, next)
				}
			}
		}
	}
	visit(treeRoot, nil)
	return out
}

// inheritFromParents fills the inheritable attributes of a page reached
// without a tree walk by following its Parent chain.
func inheritFromParents(doc *raw.Document, page *raw.DictObj, roles map[raw.ObjectRef]Role) {
	seen := make(map[raw.ObjectRef]bool)
	parent, ok := dictValue(page, "Parent").(raw.RefObj)
	for ok && !seen[parent.R] && roles[parent.R] == RolePages {
		seen[parent.R] = true
		node, isDict := raw.DictOf(doc.Objects[parent.R])
		if !isDict {
			return
		}
		for _, key := range inheritable {
			if _, has := page.Lookup(key); has {
				continue
			}
			if v, found := node.Lookup(key); found {
				page.Set(raw.NameLiteral(key), raw.Clone(v))
			}
		}
		parent, ok = dictValue(node, "Parent").(raw.RefObj)
	}
}

// pageTreeRoot finds the Pages object referenced by the document catalog.
func pageTreeRoot(doc *raw.Document, roles map[raw.ObjectRef]Role) (raw.ObjectRef, bool) {
	root, ok := doc.Root()
	if !ok || roles[root] != RoleCatalog {
		return raw.ObjectRef{}, false
	}
	catalog, _ := raw.DictOf(doc.Objects[root])
	pages, ok := dictValue(catalog, "Pages").(raw.RefObj)
	if !ok || roles[pages.R] != RolePages {
		return raw.ObjectRef{}, false
	}
	return pages.R, true
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Lookup(key)
	return v
}
