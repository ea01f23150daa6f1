package merge

import (
	"github.com/wudi/pdfmerge/ir/raw"
	"golang.org/x/text/encoding/unicode"
)

// Bookmark is one outline entry. Indent 0 is top level; an entry with
// indent k+1 directly after an entry with indent k becomes its child.
type Bookmark struct {
	Title  string
	Color  [3]float64 // RGB, 0..1
	Indent int
	Target raw.ObjectRef
}

type outlineNode struct {
	bookmark Bookmark
	children []*outlineNode
}

// outlineBuilder compiles bookmarks into Outlines/Outline dictionaries.
type outlineBuilder struct {
	doc   *raw.Document
	alloc func() raw.ObjectRef
	refs  []raw.ObjectRef
}

// buildOutline inserts the outline tree for bookmarks into merged and
// links it from the catalog. Targets that do not name a pooled page are
// rebound by rebindTarget. It returns the bookmarks as written and every
// object it allocated (root first); nothing is inserted for an empty list.
func buildOutline(merged *raw.Document, catalog entry, pending []pendingBookmark, pool []pooledPage, alloc func() raw.ObjectRef) ([]Bookmark, []raw.ObjectRef) {
	isPage := make(map[raw.ObjectRef]bool, len(pool))
	for _, p := range pool {
		isPage[p.ref] = true
	}
	var resolved []Bookmark
	for _, pb := range pending {
		b := pb.Bookmark
		if b.Target.IsZero() || !isPage[b.Target] {
			target, ok := rebindTarget(pool, pb.start)
			if !ok {
				continue
			}
			b.Target = target
		}
		resolved = append(resolved, b)
	}
	if len(resolved) == 0 {
		return nil, nil
	}

	ob := &outlineBuilder{doc: merged, alloc: alloc}
	rootRef := ob.next()
	root := raw.Dict()
	root.Set(raw.NameLiteral("Type"), raw.NameLiteral("Outlines"))
	merged.Objects[rootRef] = root

	first, last, total := ob.emit(nest(resolved), rootRef)
	root.Set(raw.NameLiteral("First"), raw.RefTo(first))
	root.Set(raw.NameLiteral("Last"), raw.RefTo(last))
	root.Set(raw.NameLiteral("Count"), raw.NumberInt(total))

	catalog.dict.Set(raw.NameLiteral("Outlines"), raw.RefTo(rootRef))
	if _, ok := catalog.dict.Lookup("PageMode"); !ok {
		catalog.dict.Set(raw.NameLiteral("PageMode"), raw.NameLiteral("UseOutlines"))
	}
	return resolved, ob.refs
}

// rebindTarget picks the first page of the nearest available subtree: the
// first pooled page at or after start, else the last one before it.
func rebindTarget(pool []pooledPage, start int) (raw.ObjectRef, bool) {
	if start < 0 {
		start = 0
	}
	if start < len(pool) {
		return pool[start].ref, true
	}
	if len(pool) > 0 {
		return pool[len(pool)-1].ref, true
	}
	return raw.ObjectRef{}, false
}

// nest turns the flat indent-annotated list into a forest. Indent jumps of
// more than one level are clamped.
func nest(bookmarks []Bookmark) []*outlineNode {
	var roots, stack []*outlineNode
	for _, b := range bookmarks {
		level := b.Indent
		if level < 0 {
			level = 0
		}
		if level > len(stack) {
			level = len(stack)
		}
		n := &outlineNode{bookmark: b}
		if level == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[level-1]
			parent.children = append(parent.children, n)
		}
		stack = append(stack[:level], n)
	}
	return roots
}

func (ob *outlineBuilder) next() raw.ObjectRef {
	ref := ob.alloc()
	ob.refs = append(ob.refs, ref)
	return ref
}

func (ob *outlineBuilder) emit(items []*outlineNode, parent raw.ObjectRef) (first, last raw.ObjectRef, count int64) {
	refs := make([]raw.ObjectRef, len(items))
	for i := range items {
		refs[i] = ob.next()
	}
	for i, item := range items {
		count++
		d := raw.Dict()
		d.Set(raw.NameLiteral("Title"), textString(item.bookmark.Title))
		d.Set(raw.NameLiteral("Parent"), raw.RefTo(parent))
		d.Set(raw.NameLiteral("Dest"), raw.NewArray(raw.RefTo(item.bookmark.Target), raw.NameLiteral("Fit")))
		if c := item.bookmark.Color; c != [3]float64{} {
			d.Set(raw.NameLiteral("C"), raw.NewArray(raw.NumberFloat(c[0]), raw.NumberFloat(c[1]), raw.NumberFloat(c[2])))
		}
		if i > 0 {
			d.Set(raw.NameLiteral("Prev"), raw.RefTo(refs[i-1]))
		}
		if i < len(refs)-1 {
			d.Set(raw.NameLiteral("Next"), raw.RefTo(refs[i+1]))
		}
		if len(item.children) > 0 {
			firstChild, lastChild, childCount := ob.emit(item.children, refs[i])
			d.Set(raw.NameLiteral("First"), raw.RefTo(firstChild))
			d.Set(raw.NameLiteral("Last"), raw.RefTo(lastChild))
			d.Set(raw.NameLiteral("Count"), raw.NumberInt(childCount))
			count += childCount
		}
		ob.doc.Objects[refs[i]] = d
	}
	return refs[0], refs[len(refs)-1], count
}

// textString encodes s as a PDF text string: ASCII stays as is, anything
// else becomes UTF-16BE with a byte order mark.
func textString(s string) raw.StringObj {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return raw.Str([]byte(s))
	}
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	b, err := enc.Bytes([]byte(s))
	if err != nil {
		return raw.Str([]byte(s))
	}
	return raw.StringObj{Bytes: b, Hex: true}
}
