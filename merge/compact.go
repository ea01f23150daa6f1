package merge

import "github.com/wudi/pdfmerge/ir/raw"

// Compact renumbers doc densely to 1..N with generation 0, preserving the
// (Num, Gen) order of the existing objects. References to objects that are
// not in the table become null. It returns the old-to-new mapping.
func Compact(doc *raw.Document) map[raw.ObjectRef]raw.ObjectRef {
	refs := doc.SortedRefs()
	mapping := make(map[raw.ObjectRef]raw.ObjectRef, len(refs))
	for i, ref := range refs {
		mapping[ref] = raw.ObjectRef{Num: i + 1}
	}
	rewrite := func(r raw.RefObj) raw.Object {
		if to, ok := mapping[r.R]; ok {
			return raw.RefTo(to)
		}
		return raw.NullObj{}
	}
	objects := make(map[raw.ObjectRef]raw.Object, len(refs))
	for _, ref := range refs {
		objects[mapping[ref]] = raw.Walk(doc.Objects[ref], rewrite)
	}
	doc.Objects = objects
	if doc.Trailer != nil {
		raw.Walk(doc.Trailer, rewrite)
	}
	doc.MaxID = len(refs)
	return mapping
}
