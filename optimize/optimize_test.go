package optimize

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/minio/highwayhash"
	"github.com/wudi/pdfmerge/ir/raw"
)

func newDoc(objects map[raw.ObjectRef]raw.Object) *raw.Document {
	doc := raw.NewDocument("1.5")
	doc.Objects = objects
	doc.MaxID = doc.ComputeMaxID()
	return doc
}

func TestCombineIdenticalIndirectObjects(t *testing.T) {
	doc := newDoc(map[raw.ObjectRef]raw.Object{
		{Num: 1}: raw.NewArray(raw.NumberInt(1), raw.NumberInt(2)),
		{Num: 2}: raw.NewArray(raw.NumberInt(1), raw.NumberInt(2)),
		{Num: 3}: raw.NewArray(raw.NumberInt(3)),
		{Num: 4}: raw.NewArray(raw.Ref(1, 0), raw.Ref(2, 0)),
	})

	opt := New(Config{CombineIdenticalIndirectObjects: true})
	if err := opt.Optimize(context.Background(), doc); err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if len(doc.Objects) != 3 {
		t.Errorf("Expected 3 objects, got %d", len(doc.Objects))
	}
	obj4 := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.ArrayObj)
	if diff := cmp.Diff([]raw.Object{raw.Ref(1, 0), raw.Ref(1, 0)}, obj4.Items); diff != "" {
		t.Errorf("references not redirected to the survivor (-want +got):\n%s", diff)
	}
}

func TestCombineCascadesThroughParents(t *testing.T) {
	doc := newDoc(map[raw.ObjectRef]raw.Object{
		{Num: 1}: raw.NewArray(raw.NumberInt(7)),
		{Num: 2}: raw.NewArray(raw.NumberInt(7)),
		{Num: 3}: raw.NewArray(raw.Ref(1, 0)),
		{Num: 4}: raw.NewArray(raw.Ref(2, 0)),
		{Num: 5}: raw.NewArray(raw.Ref(3, 0), raw.Ref(4, 0)),
	})

	if err := New(Config{CombineIdenticalIndirectObjects: true}).Optimize(context.Background(), doc); err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	want := []raw.ObjectRef{{Num: 1}, {Num: 3}, {Num: 5}}
	if diff := cmp.Diff(want, doc.SortedRefs()); diff != "" {
		t.Errorf("surviving objects (-want +got):\n%s", diff)
	}
}

func TestPinnedObjectsAreNeverCombined(t *testing.T) {
	page := func() *raw.DictObj {
		d := raw.Dict()
		d.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
		return d
	}
	doc := newDoc(map[raw.ObjectRef]raw.Object{
		{Num: 1}: page(),
		{Num: 2}: page(),
		{Num: 3}: raw.NewArray(raw.Ref(1, 0), raw.Ref(2, 0)),
	})

	pinned := []raw.ObjectRef{{Num: 1}, {Num: 2}}
	if err := New(Config{CombineIdenticalIndirectObjects: true}).Optimize(context.Background(), doc, pinned...); err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(doc.Objects) != 3 {
		t.Fatalf("pinned pages were merged: %v", doc.SortedRefs())
	}
}

func TestCombineDuplicateStreamsOnly(t *testing.T) {
	doc := newDoc(map[raw.ObjectRef]raw.Object{
		{Num: 1}: raw.NewStream(raw.Dict(), []byte("q Q")),
		{Num: 2}: raw.NewStream(raw.Dict(), []byte("q Q")),
		{Num: 3}: raw.NewArray(raw.NumberInt(1)),
		{Num: 4}: raw.NewArray(raw.NumberInt(1)),
	})

	if err := New(Config{CombineDuplicateStreams: true}).Optimize(context.Background(), doc); err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	want := []raw.ObjectRef{{Num: 1}, {Num: 3}, {Num: 4}}
	if diff := cmp.Diff(want, doc.SortedRefs()); diff != "" {
		t.Errorf("surviving objects (-want +got):\n%s", diff)
	}
}

func TestPruneUnreachable(t *testing.T) {
	doc := newDoc(map[raw.ObjectRef]raw.Object{
		{Num: 1}: raw.NewArray(raw.Ref(2, 0)),
		{Num: 2}: raw.NumberInt(2),
		{Num: 3}: raw.NumberInt(3),
		{Num: 4}: raw.NewArray(raw.Ref(5, 0)),
		{Num: 5}: raw.NumberInt(5),
	})
	doc.Trailer.Set(raw.NameLiteral("Root"), raw.Ref(1, 0))

	if err := New(Config{PruneUnreachable: true}).Optimize(context.Background(), doc, raw.ObjectRef{Num: 4}); err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	want := []raw.ObjectRef{{Num: 1}, {Num: 2}, {Num: 4}, {Num: 5}}
	if diff := cmp.Diff(want, doc.SortedRefs()); diff != "" {
		t.Errorf("surviving objects (-want +got):\n%s", diff)
	}
}

func TestCombineDuplicateDirectObjects(t *testing.T) {
	box := func() *raw.ArrayObj {
		return raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792))
	}
	withBox := func(n int64) *raw.DictObj {
		d := raw.Dict()
		d.Set(raw.NameLiteral("MediaBox"), box())
		d.Set(raw.NameLiteral("N"), raw.NumberInt(n))
		return d
	}
	doc := newDoc(map[raw.ObjectRef]raw.Object{
		{Num: 1}: withBox(1),
		{Num: 2}: withBox(2),
		{Num: 5}: withBox(5),
	})

	if err := New(Config{CombineDuplicateDirectObjects: true}).Optimize(context.Background(), doc, raw.ObjectRef{Num: 5}); err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	hoisted := raw.ObjectRef{Num: 6}
	if diff := cmp.Diff(box(), doc.Objects[hoisted]); diff != "" {
		t.Fatalf("hoisted object (-want +got):\n%s", diff)
	}
	for _, num := range []int{1, 2} {
		d := doc.Objects[raw.ObjectRef{Num: num}].(*raw.DictObj)
		if d.KV["MediaBox"] != raw.RefTo(hoisted) {
			t.Errorf("object %d MediaBox = %v", num, d.KV["MediaBox"])
		}
	}
	if _, direct := doc.Objects[raw.ObjectRef{Num: 5}].(*raw.DictObj).KV["MediaBox"].(*raw.ArrayObj); !direct {
		t.Errorf("pinned object was rewritten")
	}
	if doc.MaxID != 6 {
		t.Errorf("MaxID = %d, want 6", doc.MaxID)
	}
}

func TestCompressStreams(t *testing.T) {
	content := []byte(strings.Repeat("BT /F1 12 Tf 72 712 Td (hello) Tj ET\n", 40))
	filtered := raw.Dict()
	filtered.Set(raw.NameLiteral("Filter"), raw.NameLiteral("DCTDecode"))
	doc := newDoc(map[raw.ObjectRef]raw.Object{
		{Num: 1}: raw.NewStream(raw.Dict(), append([]byte(nil), content...)),
		{Num: 2}: raw.NewStream(filtered, []byte("jpeg bytes")),
	})

	if err := New(Config{CompressStreams: true, CompressionLevel: zlib.BestCompression}).Optimize(context.Background(), doc); err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	s := doc.Objects[raw.ObjectRef{Num: 1}].(*raw.StreamObj)
	if f, _ := s.Dict.Lookup("Filter"); f != raw.NameLiteral("FlateDecode") {
		t.Fatalf("Filter = %v", f)
	}
	if n, _ := raw.IntOf(s.Dict.KV["Length"]); int(n) != len(s.Data) {
		t.Fatalf("Length = %d, data is %d bytes", n, len(s.Data))
	}
	r, err := zlib.NewReader(bytes.NewReader(s.Data))
	if err != nil {
		t.Fatalf("zlib reader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("round trip mismatch")
	}

	other := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.StreamObj)
	if string(other.Data) != "jpeg bytes" {
		t.Fatalf("already filtered stream was re-encoded")
	}
}

func TestOptimizeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := newDoc(map[raw.ObjectRef]raw.Object{{Num: 1}: raw.NumberInt(1)})
	if err := New(DefaultConfig()).Optimize(ctx, doc); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestHashIgnoresKeyOrderButNotValues(t *testing.T) {
	a := raw.Dict()
	a.Set(raw.NameLiteral("A"), raw.NumberInt(1))
	a.Set(raw.NameLiteral("B"), raw.Str([]byte("x")))
	b := raw.Dict()
	b.Set(raw.NameLiteral("B"), raw.Str([]byte("x")))
	b.Set(raw.NameLiteral("A"), raw.NumberInt(1))
	if hashObject(a) != hashObject(b) {
		t.Fatalf("equal dictionaries hash differently")
	}
	b.Set(raw.NameLiteral("A"), raw.NumberFloat(1.5))
	if hashObject(a) == hashObject(b) {
		t.Fatalf("different dictionaries hash equally")
	}
	if hashObject(raw.NameLiteral("ab")) == hashObject(raw.Str([]byte("ab"))) {
		t.Fatalf("name and string collide")
	}
}

func TestHashKeyIsAccepted(t *testing.T) {
	if _, err := highwayhash.New(hashKey[:]); err != nil {
		t.Fatalf("hash key rejected: %v", err)
	}
	if got := len(hashObject(raw.NullObj{})); got != highwayhash.Size {
		t.Fatalf("digest length = %d, want %d", got, highwayhash.Size)
	}
}
