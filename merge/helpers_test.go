package merge

import (
	"fmt"
	"testing"

	"github.com/wudi/pdfmerge/ir/raw"
)

// buildDoc returns a document with a catalog (1), a flat Pages node (2), a
// source outline (3) and n pages, each with its own content stream whose
// payload is "<label> p<i>".
func buildDoc(label string, n int) *raw.Document {
	doc := raw.NewDocument("1.4")
	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.Ref(2, 0))
	catalog.Set(raw.NameLiteral("Outlines"), raw.Ref(3, 0))
	doc.Objects[raw.ObjectRef{Num: 1}] = catalog

	outlines := raw.Dict()
	outlines.Set(raw.NameLiteral("Type"), raw.NameLiteral("Outlines"))
	outlines.Set(raw.NameLiteral("Count"), raw.NumberInt(0))
	doc.Objects[raw.ObjectRef{Num: 3}] = outlines

	kids := raw.NewArray()
	for i := 0; i < n; i++ {
		pageRef := raw.ObjectRef{Num: 4 + 2*i}
		contentRef := raw.ObjectRef{Num: 5 + 2*i}
		page := raw.Dict()
		page.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
		page.Set(raw.NameLiteral("Parent"), raw.Ref(2, 0))
		page.Set(raw.NameLiteral("MediaBox"), raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
		page.Set(raw.NameLiteral("Contents"), raw.RefTo(contentRef))
		doc.Objects[pageRef] = page
		doc.Objects[contentRef] = raw.NewStream(raw.Dict(), []byte(fmt.Sprintf("%s p%d", label, i+1)))
		kids.Append(raw.RefTo(pageRef))
	}
	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Kids"), kids)
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(int64(n)))
	doc.Objects[raw.ObjectRef{Num: 2}] = pages

	doc.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))
	doc.ComputeMaxID()
	return doc
}

func mustDict(t *testing.T, doc *raw.Document, ref raw.ObjectRef) *raw.DictObj {
	t.Helper()
	d, ok := raw.DictOf(doc.Objects[ref])
	if !ok {
		t.Fatalf("object %v is %T, want dictionary", ref, doc.Objects[ref])
	}
	return d
}

func refValue(t *testing.T, d *raw.DictObj, key string) raw.ObjectRef {
	t.Helper()
	v, ok := d.Lookup(key)
	if !ok {
		t.Fatalf("missing /%s", key)
	}
	r, ok := v.(raw.RefObj)
	if !ok {
		t.Fatalf("/%s is %T, want reference", key, v)
	}
	return r.R
}

// pageLabel returns the content payload of the page at ref.
func pageLabel(t *testing.T, doc *raw.Document, ref raw.ObjectRef) string {
	t.Helper()
	page := mustDict(t, doc, ref)
	stream, ok := doc.Objects[refValue(t, page, "Contents")].(*raw.StreamObj)
	if !ok {
		t.Fatalf("page %v contents is not a stream", ref)
	}
	return string(stream.Data)
}

// pageTree returns the catalog, the Pages ref and its kids.
func pageTree(t *testing.T, doc *raw.Document) (*raw.DictObj, raw.ObjectRef, []raw.ObjectRef) {
	t.Helper()
	root, ok := doc.Root()
	if !ok {
		t.Fatalf("trailer has no root")
	}
	catalog := mustDict(t, doc, root)
	pagesRef := refValue(t, catalog, "Pages")
	pages := mustDict(t, doc, pagesRef)
	kidsObj, _ := pages.Lookup("Kids")
	kids, ok := kidsObj.(*raw.ArrayObj)
	if !ok {
		t.Fatalf("Kids is %T", kidsObj)
	}
	var refs []raw.ObjectRef
	for _, k := range kids.Items {
		refs = append(refs, k.(raw.RefObj).R)
	}
	count, _ := pages.Lookup("Count")
	if n, _ := raw.IntOf(count); int(n) != len(refs) {
		t.Fatalf("Count %d != len(Kids) %d", n, len(refs))
	}
	return catalog, pagesRef, refs
}
