package optimize

import (
	"context"

	"github.com/wudi/pdfmerge/ir/raw"
)

// combineObjects replaces every indirect object that is identical to an
// earlier one by a reference to the earlier one, repeating until stable
// since merging children can make parents identical.
func (o *Optimizer) combineObjects(ctx context.Context, doc *raw.Document, keep map[raw.ObjectRef]bool, includeStreams, includeOthers bool) error {
	changed := true
	for changed {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed = false
		seen := make(map[string]raw.ObjectRef)
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)

		for _, ref := range doc.SortedRefs() {
			if keep[ref] {
				continue
			}
			obj := doc.Objects[ref]
			isStream := obj.Type() == "stream"

			if isStream && !includeStreams {
				continue
			}
			if !isStream && !includeOthers {
				continue
			}

			h := hashObject(obj)
			if original, ok := seen[h]; ok {
				replacements[ref] = original
				changed = true
			} else {
				seen[h] = ref
			}
		}

		if len(replacements) > 0 {
			applyReplacements(doc, replacements)
			for dup := range replacements {
				delete(doc.Objects, dup)
			}
		}
	}
	return nil
}

// combineDuplicateDirectObjects hoists direct arrays and dictionaries that
// occur more than once into a single new indirect object. The trailer and
// pinned objects are left alone.
func (o *Optimizer) combineDuplicateDirectObjects(ctx context.Context, doc *raw.Document, keep map[raw.ObjectRef]bool) error {
	// 1. Count occurrences
	counts := make(map[string]int)
	samples := make(map[string]raw.Object)

	var countVisitor func(obj raw.Object)
	countVisitor = func(obj raw.Object) {
		if obj == nil || obj.IsIndirect() {
			return
		}

		switch t := obj.(type) {
		case *raw.ArrayObj:
			h := hashObject(obj)
			counts[h]++
			if counts[h] == 1 {
				samples[h] = obj
			}
			for _, v := range t.Items {
				countVisitor(v)
			}
		case *raw.DictObj:
			h := hashObject(obj)
			counts[h]++
			if counts[h] == 1 {
				samples[h] = obj
			}
			for _, k := range t.SortedKeys() {
				countVisitor(t.KV[k])
			}
		}
	}

	refs := doc.SortedRefs()
	for _, ref := range refs {
		if keep[ref] {
			continue
		}
		// The top-level object is already indirect; only its children count.
		switch t := doc.Objects[ref].(type) {
		case *raw.ArrayObj:
			for _, v := range t.Items {
				countVisitor(v)
			}
		case *raw.DictObj:
			for _, k := range t.SortedKeys() {
				countVisitor(t.KV[k])
			}
		case *raw.StreamObj:
			for _, k := range t.Dict.SortedKeys() {
				countVisitor(t.Dict.KV[k])
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 2. Identify candidates, numbered in first-seen order
	candidates := make(map[string]raw.ObjectRef)
	nextID := doc.ComputeMaxID() + 1
	var order []string
	var walkOrder func(obj raw.Object)
	walkOrder = func(obj raw.Object) {
		switch t := obj.(type) {
		case *raw.ArrayObj:
			h := hashObject(t)
			if counts[h] > 1 {
				if _, ok := candidates[h]; !ok {
					candidates[h] = raw.ObjectRef{}
					order = append(order, h)
				}
			}
			for _, v := range t.Items {
				walkOrder(v)
			}
		case *raw.DictObj:
			h := hashObject(t)
			if counts[h] > 1 {
				if _, ok := candidates[h]; !ok {
					candidates[h] = raw.ObjectRef{}
					order = append(order, h)
				}
			}
			for _, k := range t.SortedKeys() {
				walkOrder(t.KV[k])
			}
		}
	}
	for _, ref := range refs {
		if keep[ref] {
			continue
		}
		switch t := doc.Objects[ref].(type) {
		case *raw.ArrayObj:
			for _, v := range t.Items {
				walkOrder(v)
			}
		case *raw.DictObj:
			for _, k := range t.SortedKeys() {
				walkOrder(t.KV[k])
			}
		case *raw.StreamObj:
			for _, k := range t.Dict.SortedKeys() {
				walkOrder(t.Dict.KV[k])
			}
		}
	}
	if len(order) == 0 {
		return nil
	}
	for _, h := range order {
		ref := raw.ObjectRef{Num: nextID}
		nextID++
		doc.Objects[ref] = samples[h]
		candidates[h] = ref
	}

	// 3. Replace
	for _, ref := range refs {
		if keep[ref] {
			continue
		}
		replaceDirectInObject(doc.Objects[ref], candidates)
	}
	doc.MaxID = nextID - 1
	return nil
}

func replaceDirectInObject(obj raw.Object, candidates map[string]raw.ObjectRef) {
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if ref, ok := candidateFor(val, candidates); ok {
				t.Items[i] = raw.RefTo(ref)
				continue
			}
			replaceDirectInObject(val, candidates)
		}
	case *raw.DictObj:
		for _, key := range t.SortedKeys() {
			val := t.KV[key]
			if ref, ok := candidateFor(val, candidates); ok {
				t.KV[key] = raw.RefTo(ref)
				continue
			}
			replaceDirectInObject(val, candidates)
		}
	case *raw.StreamObj:
		replaceDirectInObject(t.Dict, candidates)
	}
}

func candidateFor(val raw.Object, candidates map[string]raw.ObjectRef) (raw.ObjectRef, bool) {
	switch val.(type) {
	case *raw.ArrayObj, *raw.DictObj:
		ref, ok := candidates[hashObject(val)]
		return ref, ok
	}
	return raw.ObjectRef{}, false
}

func applyReplacements(doc *raw.Document, replacements map[raw.ObjectRef]raw.ObjectRef) {
	doc.WalkDocument(func(r raw.RefObj) raw.Object {
		if to, ok := replacements[r.R]; ok {
			return raw.RefTo(to)
		}
		return r
	})
}
