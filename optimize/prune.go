package optimize

import (
	"context"

	"github.com/wudi/pdfmerge/ir/raw"
)

// pruneUnreachable drops objects that cannot be reached from the trailer or
// from a pinned object.
func (o *Optimizer) pruneUnreachable(ctx context.Context, doc *raw.Document, keep map[raw.ObjectRef]bool) error {
	reachable := make(map[raw.ObjectRef]bool)

	if doc.Trailer != nil {
		markReachable(doc, doc.Trailer, reachable)
	}
	for ref := range keep {
		markReachable(doc, raw.RefTo(ref), reachable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for ref := range doc.Objects {
		if !reachable[ref] {
			delete(doc.Objects, ref)
		}
	}
	return nil
}

func markReachable(doc *raw.Document, obj raw.Object, reachable map[raw.ObjectRef]bool) {
	if obj == nil {
		return
	}

	switch t := obj.(type) {
	case raw.Reference:
		ref := t.Ref()
		if reachable[ref] {
			return
		}
		reachable[ref] = true
		if target, ok := doc.Objects[ref]; ok {
			markReachable(doc, target, reachable)
		}
	case raw.Array:
		for i := 0; i < t.Len(); i++ {
			v, _ := t.Get(i)
			markReachable(doc, v, reachable)
		}
	case raw.Stream:
		markReachable(doc, t.Dictionary(), reachable)
	case raw.Dictionary:
		for _, k := range t.Keys() {
			v, _ := t.Get(k)
			markReachable(doc, v, reachable)
		}
	}
}
