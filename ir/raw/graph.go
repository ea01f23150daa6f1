package raw

import "sort"

// Clone returns a deep copy of obj. Stream payloads are copied too.
func Clone(obj Object) Object {
	switch t := obj.(type) {
	case *ArrayObj:
		items := make([]Object, len(t.Items))
		for i, it := range t.Items {
			items[i] = Clone(it)
		}
		return &ArrayObj{Items: items}
	case *DictObj:
		return cloneDict(t)
	case *StreamObj:
		data := make([]byte, len(t.Data))
		copy(data, t.Data)
		return &StreamObj{Dict: cloneDict(t.Dict), Data: data}
	case StringObj:
		b := make([]byte, len(t.Bytes))
		copy(b, t.Bytes)
		return StringObj{Bytes: b, Hex: t.Hex}
	default:
		return obj
	}
}

func cloneDict(d *DictObj) *DictObj {
	if d == nil {
		return nil
	}
	out := &DictObj{KV: make(map[string]Object, len(d.KV))}
	for k, v := range d.KV {
		out.KV[k] = Clone(v)
	}
	return out
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		Objects: make(map[ObjectRef]Object, len(d.Objects)),
		Trailer: cloneDict(d.Trailer),
		Version: d.Version,
		MaxID:   d.MaxID,
	}
	for ref, obj := range d.Objects {
		out.Objects[ref] = Clone(obj)
	}
	if out.Trailer == nil {
		out.Trailer = Dict()
	}
	return out
}

// Walk replaces every reference reachable inside obj (without following
// references) by the result of fn. Containers are updated in place; the
// return value replaces obj itself.
func Walk(obj Object, fn func(RefObj) Object) Object {
	switch t := obj.(type) {
	case RefObj:
		return fn(t)
	case *ArrayObj:
		for i, it := range t.Items {
			t.Items[i] = Walk(it, fn)
		}
	case *DictObj:
		if t == nil {
			return t
		}
		for k, v := range t.KV {
			t.KV[k] = Walk(v, fn)
		}
	case *StreamObj:
		Walk(t.Dict, fn)
	}
	return obj
}

// WalkDocument applies Walk to every object and to the trailer.
func (d *Document) WalkDocument(fn func(RefObj) Object) {
	for ref, obj := range d.Objects {
		d.Objects[ref] = Walk(obj, fn)
	}
	if d.Trailer != nil {
		Walk(d.Trailer, fn)
	}
}

// ComputeMaxID recomputes MaxID from the object table and returns it.
func (d *Document) ComputeMaxID() int {
	maxNum := 0
	for ref := range d.Objects {
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}
	d.MaxID = maxNum
	return maxNum
}

// SortedRefs returns the table's references in (Num, Gen) order.
func (d *Document) SortedRefs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	return refs
}

// Resolve follows references (at most len(Objects) hops) until a direct
// object is reached. Dangling references resolve to nil.
func (d *Document) Resolve(obj Object) Object {
	for hops := 0; hops <= len(d.Objects); hops++ {
		r, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		target, found := d.Objects[r.R]
		if !found {
			return nil
		}
		obj = target
	}
	return nil
}

// Root returns the trailer's /Root reference.
func (d *Document) Root() (ObjectRef, bool) {
	if d.Trailer == nil {
		return ObjectRef{}, false
	}
	v, ok := d.Trailer.Lookup("Root")
	if !ok {
		return ObjectRef{}, false
	}
	r, ok := v.(RefObj)
	return r.R, ok
}

// DictOf returns obj as a dictionary; streams yield their dictionary.
func DictOf(obj Object) (*DictObj, bool) {
	switch t := obj.(type) {
	case *DictObj:
		return t, t != nil
	case *StreamObj:
		return t.Dict, t.Dict != nil
	}
	return nil, false
}

// NameOf returns the value of a name object.
func NameOf(obj Object) (string, bool) {
	n, ok := obj.(NameObj)
	return n.Val, ok
}

// IntOf returns the integer value of a number object.
func IntOf(obj Object) (int64, bool) {
	n, ok := obj.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}
