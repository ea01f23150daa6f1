package merge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wudi/pdfmerge/ir/raw"
)

func outlineTitles(t *testing.T, doc *raw.Document, catalog *raw.DictObj) ([]string, []raw.ObjectRef) {
	t.Helper()
	if _, ok := catalog.Lookup("Outlines"); !ok {
		return nil, nil
	}
	root := mustDict(t, doc, refValue(t, catalog, "Outlines"))
	if typ, _ := root.Lookup("Type"); typ != raw.NameLiteral("Outlines") {
		t.Fatalf("outline root type %v", typ)
	}
	var titles []string
	var targets []raw.ObjectRef
	item, hasItem := root.Lookup("First")
	for hasItem {
		d := mustDict(t, doc, item.(raw.RefObj).R)
		title, _ := d.Lookup("Title")
		titles = append(titles, string(title.(raw.StringObj).Bytes))
		dest, _ := d.Lookup("Dest")
		targets = append(targets, dest.(*raw.ArrayObj).Items[0].(raw.RefObj).R)
		item, hasItem = d.Lookup("Next")
	}
	return titles, targets
}

func TestMergeConcatenatesPagesAndBookmarks(t *testing.T) {
	a := buildDoc("A", 3)
	b := buildDoc("B", 2)

	res, err := New().Merge(context.Background(), []Input{{Name: "a.pdf", Document: a}, {Name: "b.pdf", Document: b}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	doc := res.Document
	catalog, pagesRef, kids := pageTree(t, doc)

	var labels []string
	for _, k := range kids {
		labels = append(labels, pageLabel(t, doc, k))
		if parent := refValue(t, mustDict(t, doc, k), "Parent"); parent != pagesRef {
			t.Fatalf("page %v parent %v, want %v", k, parent, pagesRef)
		}
	}
	want := []string{"A p1", "A p2", "A p3", "B p1", "B p2"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Fatalf("page order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(kids, res.Pages); diff != "" {
		t.Fatalf("result pages differ from Kids (-kids +pages):\n%s", diff)
	}

	titles, targets := outlineTitles(t, doc, catalog)
	if diff := cmp.Diff([]string{"Page_1", "Page_2"}, titles); diff != "" {
		t.Fatalf("bookmark titles mismatch (-want +got):\n%s", diff)
	}
	if targets[0] != kids[0] || targets[1] != kids[3] {
		t.Fatalf("bookmark targets %v, want %v and %v", targets, kids[0], kids[3])
	}
	if len(res.Bookmarks) != 2 || res.Bookmarks[1].Target != kids[3] {
		t.Fatalf("unexpected result bookmarks: %+v", res.Bookmarks)
	}
	if mode, _ := catalog.Lookup("PageMode"); mode != raw.NameLiteral("UseOutlines") {
		t.Fatalf("PageMode = %v", mode)
	}
}

func TestMergeDropsSourceOutlines(t *testing.T) {
	res, err := New().Merge(context.Background(), []Input{{Document: buildDoc("A", 1)}, {Document: buildDoc("B", 1)}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	roots := 0
	for _, obj := range res.Document.Objects {
		if Classify(res.Document, obj) == RoleOutlines {
			roots++
		}
	}
	if roots != 1 {
		t.Fatalf("expected only the generated outline root, found %d", roots)
	}
}

func TestMergeIdentifiersAreDense(t *testing.T) {
	res, err := New().Merge(context.Background(), []Input{{Document: buildDoc("A", 3)}, {Document: buildDoc("B", 2)}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	doc := res.Document
	for i := 1; i <= len(doc.Objects); i++ {
		if _, ok := doc.Objects[raw.ObjectRef{Num: i}]; !ok {
			t.Fatalf("object %d missing from dense table of %d", i, len(doc.Objects))
		}
	}
	if doc.MaxID != len(doc.Objects) {
		t.Fatalf("MaxID %d, want %d", doc.MaxID, len(doc.Objects))
	}
}

func TestMergeSingleInputPassthrough(t *testing.T) {
	res, err := New().Merge(context.Background(), []Input{{Document: buildDoc("A", 4)}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	catalog, _, kids := pageTree(t, res.Document)
	if len(kids) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(kids))
	}
	for i, k := range kids {
		if got, want := pageLabel(t, res.Document, k), "A p"+string(rune('1'+i)); got != want {
			t.Fatalf("page %d is %q, want %q", i, got, want)
		}
	}
	titles, targets := outlineTitles(t, res.Document, catalog)
	if len(titles) != 1 || titles[0] != "Page_1" || targets[0] != kids[0] {
		t.Fatalf("expected one bookmark to the first page, got %v -> %v", titles, targets)
	}
}

func TestMergeZeroPageInput(t *testing.T) {
	inputs := []Input{{Document: buildDoc("A", 2)}, {Document: buildDoc("Empty", 0)}, {Document: buildDoc("B", 1)}}
	res, err := New().Merge(context.Background(), inputs)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	catalog, _, kids := pageTree(t, res.Document)
	if len(kids) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(kids))
	}
	titles, targets := outlineTitles(t, res.Document, catalog)
	if diff := cmp.Diff([]string{"Page_1", "Page_2"}, titles); diff != "" {
		t.Fatalf("bookmark titles mismatch (-want +got):\n%s", diff)
	}
	if targets[1] != kids[2] {
		t.Fatalf("second bookmark targets %v, want %v", targets[1], kids[2])
	}
}

func TestMergeOnlyEmptyInputHasNoOutline(t *testing.T) {
	res, err := New().Merge(context.Background(), []Input{{Document: buildDoc("Empty", 0)}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	catalog, _, kids := pageTree(t, res.Document)
	if len(kids) != 0 || len(res.Bookmarks) != 0 {
		t.Fatalf("expected no pages and no bookmarks, got %d/%d", len(kids), len(res.Bookmarks))
	}
	if _, ok := catalog.Lookup("Outlines"); ok {
		t.Fatalf("catalog must not reference an outline")
	}
}

func TestMergeMissingPagesRoot(t *testing.T) {
	doc := buildDoc("A", 1)
	delete(doc.Objects, raw.ObjectRef{Num: 2})

	_, err := New().Merge(context.Background(), []Input{{Document: doc}})
	if !errors.Is(err, ErrPagesNotFound) {
		t.Fatalf("expected ErrPagesNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "Pages root not found") {
		t.Fatalf("unexpected message %q", err)
	}
}

func TestMergeMissingCatalog(t *testing.T) {
	doc := buildDoc("A", 1)
	delete(doc.Objects, raw.ObjectRef{Num: 1})

	_, err := New().Merge(context.Background(), []Input{{Document: doc}})
	if !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
	if errors.Is(err, ErrPagesNotFound) {
		t.Fatalf("catalog and pages errors must be distinct")
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	inputs := func() []Input {
		return []Input{{Document: buildDoc("A", 3)}, {Document: buildDoc("B", 2)}, {Document: buildDoc("C", 1)}}
	}
	first, err := New().Merge(context.Background(), inputs())
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	second, err := New().Merge(context.Background(), inputs())
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if diff := cmp.Diff(first.Document.Objects, second.Document.Objects); diff != "" {
		t.Fatalf("merge is not deterministic (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Bookmarks, second.Bookmarks); diff != "" {
		t.Fatalf("bookmarks differ (-first +second):\n%s", diff)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	a := buildDoc("A", 2)
	snapshot := a.Clone()
	if _, err := New().Merge(context.Background(), []Input{{Document: a}, {Document: buildDoc("B", 1)}}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if diff := cmp.Diff(snapshot, a); diff != "" {
		t.Fatalf("input mutated (-before +after):\n%s", diff)
	}
}

func TestMergePagesFieldsFirstWins(t *testing.T) {
	a := buildDoc("A", 1)
	b := buildDoc("B", 1)
	aPages := a.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	aPages.Set(raw.NameLiteral("Custom"), raw.NameLiteral("FromA"))
	bPages := b.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	bPages.Set(raw.NameLiteral("Custom"), raw.NameLiteral("FromB"))
	bPages.Set(raw.NameLiteral("Extra"), raw.NumberInt(7))

	res, err := New().Merge(context.Background(), []Input{{Document: a}, {Document: b}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	_, pagesRef, kids := pageTree(t, res.Document)
	pages := mustDict(t, res.Document, pagesRef)
	if v, _ := pages.Lookup("Custom"); v != raw.NameLiteral("FromA") {
		t.Fatalf("Custom = %v, want first document's FromA", v)
	}
	if v, _ := pages.Lookup("Extra"); v != raw.NumberInt(7) {
		t.Fatalf("Extra = %v, want 7", v)
	}
	if _, ok := pages.Lookup("Parent"); ok {
		t.Fatalf("surviving Pages must not have a parent")
	}
	if len(kids) != 2 {
		t.Fatalf("Kids taken from a source dictionary: %v", kids)
	}
}

func TestMergeKeepsInheritedAttributesPerDocument(t *testing.T) {
	box := func(n int64) *raw.ArrayObj {
		return raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(n), raw.NumberInt(n))
	}
	a := buildDoc("A", 1)
	aPages := a.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	aPages.Set(raw.NameLiteral("Rotate"), raw.NumberInt(90))
	aPages.Set(raw.NameLiteral("CropBox"), box(100))
	b := buildDoc("B", 1)
	bPages := b.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	bPages.Set(raw.NameLiteral("Resources"), raw.Dict())
	c := buildDoc("C", 1)
	c.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj).Set(raw.NameLiteral("Rotate"), raw.NumberInt(180))

	res, err := New().Merge(context.Background(), []Input{{Document: a}, {Document: b}, {Document: c}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	_, pagesRef, kids := pageTree(t, res.Document)
	pages := mustDict(t, res.Document, pagesRef)
	for _, key := range inheritable {
		if v, ok := pages.Lookup(key); ok {
			t.Fatalf("surviving Pages carries /%s %v", key, v)
		}
	}

	pageA := mustDict(t, res.Document, kids[0])
	if v, _ := pageA.Lookup("Rotate"); v != raw.NumberInt(90) {
		t.Fatalf("A Rotate = %v, want 90", v)
	}
	if _, ok := pageA.Lookup("CropBox"); !ok {
		t.Fatalf("A lost its inherited CropBox")
	}
	if _, ok := pageA.Lookup("Resources"); ok {
		t.Fatalf("A picked up Resources from B")
	}

	pageB := mustDict(t, res.Document, kids[1])
	for _, key := range []string{"Rotate", "CropBox"} {
		if v, ok := pageB.Lookup(key); ok {
			t.Fatalf("B picked up /%s %v from another document", key, v)
		}
	}
	if _, ok := pageB.Lookup("Resources"); !ok {
		t.Fatalf("B lost its inherited Resources")
	}

	if v, _ := mustDict(t, res.Document, kids[2]).Lookup("Rotate"); v != raw.NumberInt(180) {
		t.Fatalf("C Rotate = %v, want 180", v)
	}
}

func TestMergeSurvivingPagesIsTreeRoot(t *testing.T) {
	doc := raw.NewDocument("1.7")
	set := func(num int, kv map[string]raw.Object) {
		doc.Objects[raw.ObjectRef{Num: num}] = &raw.DictObj{KV: kv}
	}
	set(1, map[string]raw.Object{"Type": raw.NameLiteral("Catalog"), "Pages": raw.Ref(3, 0)})
	set(2, map[string]raw.Object{
		"Type":   raw.NameLiteral("Pages"),
		"Parent": raw.Ref(3, 0),
		"Kids":   raw.NewArray(raw.Ref(4, 0)),
		"Count":  raw.NumberInt(1),
		"Origin": raw.NameLiteral("Intermediate"),
	})
	set(3, map[string]raw.Object{
		"Type":   raw.NameLiteral("Pages"),
		"Kids":   raw.NewArray(raw.Ref(2, 0)),
		"Count":  raw.NumberInt(1),
		"Origin": raw.NameLiteral("Root"),
	})
	set(4, map[string]raw.Object{
		"Type":     raw.NameLiteral("Page"),
		"Parent":   raw.Ref(2, 0),
		"Contents": raw.Ref(5, 0),
	})
	doc.Objects[raw.ObjectRef{Num: 5}] = raw.NewStream(raw.Dict(), []byte("only"))
	doc.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))

	res, err := New().Merge(context.Background(), []Input{{Document: doc}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	_, pagesRef, kids := pageTree(t, res.Document)
	if v, _ := mustDict(t, res.Document, pagesRef).Lookup("Origin"); v != raw.NameLiteral("Root") {
		t.Fatalf("surviving Pages Origin = %v, want Root", v)
	}
	if len(kids) != 1 || pageLabel(t, res.Document, kids[0]) != "only" {
		t.Fatalf("unexpected kids %v", kids)
	}
}

func TestMergeTablePagesInheritFromParent(t *testing.T) {
	doc := buildDoc("A", 1)
	doc.Objects[raw.ObjectRef{Num: 1}].(*raw.DictObj).Delete("Pages")
	doc.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj).Set(raw.NameLiteral("Rotate"), raw.NumberInt(270))

	res, err := New().Merge(context.Background(), []Input{{Document: doc}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	_, _, kids := pageTree(t, res.Document)
	if len(kids) != 1 {
		t.Fatalf("kids = %v, want the single table page", kids)
	}
	if v, _ := mustDict(t, res.Document, kids[0]).Lookup("Rotate"); v != raw.NumberInt(270) {
		t.Fatalf("Rotate = %v, want 270 from the Parent chain", v)
	}
}

func TestMergeFlattensNestedTreeWithInheritance(t *testing.T) {
	doc := raw.NewDocument("1.7")
	set := func(num int, kv map[string]raw.Object) {
		doc.Objects[raw.ObjectRef{Num: num}] = &raw.DictObj{KV: kv}
	}
	set(1, map[string]raw.Object{"Type": raw.NameLiteral("Catalog"), "Pages": raw.Ref(2, 0)})
	set(2, map[string]raw.Object{
		"Type":     raw.NameLiteral("Pages"),
		"Kids":     raw.NewArray(raw.Ref(3, 0), raw.Ref(6, 0)),
		"Count":    raw.NumberInt(3),
		"MediaBox": raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(100), raw.NumberInt(100)),
	})
	set(3, map[string]raw.Object{
		"Type":   raw.NameLiteral("Pages"),
		"Parent": raw.Ref(2, 0),
		"Kids":   raw.NewArray(raw.Ref(5, 0), raw.Ref(4, 0)),
		"Count":  raw.NumberInt(2),
		"Rotate": raw.NumberInt(90),
	})
	for _, num := range []int{4, 5, 6} {
		parent := 3
		if num == 6 {
			parent = 2
		}
		set(num, map[string]raw.Object{
			"Type":     raw.NameLiteral("Page"),
			"Parent":   raw.Ref(parent, 0),
			"Contents": raw.Ref(num+10, 0),
		})
		doc.Objects[raw.ObjectRef{Num: num + 10}] = raw.NewStream(raw.Dict(), []byte{byte('0' + num)})
	}
	mustDict(t, doc, raw.ObjectRef{Num: 6}).Set(raw.NameLiteral("Rotate"), raw.NumberInt(270))
	doc.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))

	res, err := New().Merge(context.Background(), []Input{{Document: doc}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	_, _, kids := pageTree(t, res.Document)
	var labels []string
	for _, k := range kids {
		labels = append(labels, pageLabel(t, res.Document, k))
	}
	if diff := cmp.Diff([]string{"5", "4", "6"}, labels); diff != "" {
		t.Fatalf("reading order mismatch (-want +got):\n%s", diff)
	}
	first := mustDict(t, res.Document, kids[0])
	if v, _ := first.Lookup("Rotate"); v != raw.NumberInt(90) {
		t.Fatalf("inherited Rotate = %v, want 90", v)
	}
	if _, ok := first.Lookup("MediaBox"); !ok {
		t.Fatalf("MediaBox not inherited from root")
	}
	if v, _ := mustDict(t, res.Document, kids[2]).Lookup("Rotate"); v != raw.NumberInt(270) {
		t.Fatalf("own Rotate overwritten: %v", v)
	}
}

func TestMergeSurvivesPageTreeCycle(t *testing.T) {
	doc := buildDoc("A", 2)
	pages := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	pages.KV["Kids"].(*raw.ArrayObj).Append(raw.Ref(2, 0))

	res, err := New().Merge(context.Background(), []Input{{Document: doc}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if res.PageCount() != 2 {
		t.Fatalf("expected 2 pages, got %d", res.PageCount())
	}
}

func TestMergeFileNameTitles(t *testing.T) {
	m := New(WithFileNameTitles(true))
	res, err := m.Merge(context.Background(), []Input{{Name: "docs/report.pdf", Document: buildDoc("A", 1)}, {Document: buildDoc("B", 1)}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if got := res.Bookmarks[0].Title; got != "report" {
		t.Fatalf("title %q, want report", got)
	}
	if got := res.Bookmarks[1].Title; got != "Page_2" {
		t.Fatalf("unnamed input title %q, want Page_2", got)
	}
}

func TestMergeVersionAndInfo(t *testing.T) {
	b := buildDoc("B", 1)
	b.Version = "1.7"
	res, err := New(WithProducer("tests")).Merge(context.Background(), []Input{{Document: buildDoc("A", 1)}, {Document: b}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if res.Document.Version != "1.7" {
		t.Fatalf("version %q, want 1.7", res.Document.Version)
	}
	info := mustDict(t, res.Document, refValue(t, res.Document.Trailer, "Info"))
	if v, _ := info.Lookup("Producer"); string(v.(raw.StringObj).Bytes) != "tests" {
		t.Fatalf("producer %v", v)
	}
}

func TestMergeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Merge(ctx, []Input{{Document: buildDoc("A", 1)}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
