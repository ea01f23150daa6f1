package optimize

import (
	"fmt"
	"hash"

	"github.com/minio/highwayhash"
	"github.com/wudi/pdfmerge/ir/raw"
)

// hashKey has the fixed HighwayHash key size, the only condition under
// which highwayhash.New fails.
var hashKey [highwayhash.Size]byte

func init() {
	copy(hashKey[:], "pdfmerge-dedupe-0123456789ABCDEF")
}

// hashObject returns a 256-bit HighwayHash of obj's canonical form. Keys
// are sorted so equal dictionaries hash equally.
func hashObject(obj raw.Object) string {
	h, _ := highwayhash.New(hashKey[:])
	writeHash(h, obj)
	return string(h.Sum(nil))
}

func writeHash(h hash.Hash, obj raw.Object) {
	if obj == nil {
		fmt.Fprint(h, "nil")
		return
	}
	fmt.Fprint(h, obj.Type(), ":")
	switch t := obj.(type) {
	case raw.Name:
		fmt.Fprintf(h, "%d:%s", len(t.Value()), t.Value())
	case raw.Number:
		if t.IsInteger() {
			fmt.Fprint(h, t.Int())
		} else {
			fmt.Fprint(h, t.Float())
		}
	case raw.Boolean:
		fmt.Fprint(h, t.Value())
	case raw.String:
		fmt.Fprintf(h, "%d:", len(t.Value()))
		h.Write(t.Value())
	case raw.Reference:
		fmt.Fprintf(h, "%d %d R", t.Ref().Num, t.Ref().Gen)
	case raw.Array:
		fmt.Fprint(h, "[")
		for i := 0; i < t.Len(); i++ {
			v, _ := t.Get(i)
			writeHash(h, v)
			fmt.Fprint(h, ",")
		}
		fmt.Fprint(h, "]")
	case raw.Stream:
		writeHash(h, t.Dictionary())
		fmt.Fprintf(h, "%d:", len(t.RawData()))
		h.Write(t.RawData())
	case raw.Dictionary:
		fmt.Fprint(h, "<<")
		for _, k := range t.Keys() {
			fmt.Fprintf(h, "%d:%s", len(k.Value()), k.Value())
			v, _ := t.Get(k)
			writeHash(h, v)
		}
		fmt.Fprint(h, ">>")
	case raw.Null:
		fmt.Fprint(h, "null")
	}
}
