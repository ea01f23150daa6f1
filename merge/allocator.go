package merge

import "github.com/wudi/pdfmerge/ir/raw"

// Renumber returns a copy of doc whose object numbers, and every reference
// to them, are shifted past running. It returns the next running maximum,
// which the caller threads into the following call. Internal reference
// relationships are preserved exactly; generations are kept. A document
// without objects leaves running unchanged.
func Renumber(doc *raw.Document, running int) (int, *raw.Document) {
	out := doc.Clone()
	if len(out.Objects) == 0 {
		return running, out
	}
	offset := running + 1
	shift := func(r raw.RefObj) raw.Object {
		return raw.Ref(r.R.Num+offset, r.R.Gen)
	}
	objects := make(map[raw.ObjectRef]raw.Object, len(out.Objects))
	for ref, obj := range out.Objects {
		objects[raw.ObjectRef{Num: ref.Num + offset, Gen: ref.Gen}] = raw.Walk(obj, shift)
	}
	out.Objects = objects
	raw.Walk(out.Trailer, shift)
	return out.ComputeMaxID() + 1, out
}
