// Package writer serializes raw.Document object graphs as PDF files with a
// classic cross-reference table.
package writer

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/wudi/pdfmerge/ir/raw"
)

// ErrNoRoot is returned for documents whose trailer has no /Root reference.
var ErrNoRoot = errors.New("trailer has no Root")

// DefaultVersion is written when neither the config nor the document names
// a header version.
const DefaultVersion = "1.7"

type Config struct {
	// Version is the minimum header version; a newer document version wins.
	Version string
	// Compression is the zlib level applied to streams without a /Filter.
	// Zero leaves stream data as it is.
	Compression int
	// Deterministic derives /ID from the written bytes only. Otherwise the
	// first /ID element is random.
	Deterministic bool
}

// Writer writes documents.
type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

type impl struct{}

func NewWriter() Writer { return &impl{} }

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	return SerializeObject(ref, obj), nil
}

// Write emits doc in object-number order followed by a dense xref table and
// the trailer. The document is not modified.
func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	root, ok := doc.Root()
	if !ok {
		return ErrNoRoot
	}
	refs := doc.SortedRefs()
	for i := 1; i < len(refs); i++ {
		if refs[i].Num == refs[i-1].Num {
			return fmt.Errorf("object number %d used by generations %d and %d", refs[i].Num, refs[i-1].Gen, refs[i].Gen)
		}
	}

	h := sha256.New()
	cw := &countingWriter{w: bufio.NewWriter(out), h: h}
	fmt.Fprintf(cw, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", headerVersion(doc, cfg))

	offsets := make(map[int]int64, len(refs))
	gens := make(map[int]int, len(refs))
	for i, ref := range refs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		obj := doc.Objects[ref]
		if s, ok := obj.(*raw.StreamObj); ok && cfg.Compression != 0 {
			compressed, err := compressStream(s, cfg.Compression)
			if err != nil {
				return fmt.Errorf("compress %v: %w", ref, err)
			}
			obj = compressed
		}
		offsets[ref.Num] = cw.n
		gens[ref.Num] = ref.Gen
		cw.Write(SerializeObject(ref, obj))
	}

	size := 1
	if len(refs) > 0 {
		size = refs[len(refs)-1].Num + 1
	}
	xrefOffset := cw.n
	fmt.Fprintf(cw, "xref\n0 %d\n", size)
	cw.writeString("0000000000 65535 f \n")
	for i := 1; i < size; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(cw, "%010d %05d n \n", off, gens[i])
		} else {
			cw.writeString("0000000000 65535 f \n")
		}
	}

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	trailer.Set(raw.NameLiteral("Root"), raw.RefTo(root))
	if info, ok := doc.Trailer.Lookup("Info"); ok {
		if r, ok := info.(raw.RefObj); ok {
			if _, exists := doc.Objects[r.R]; exists {
				trailer.Set(raw.NameLiteral("Info"), r)
			}
		}
	}
	ids := fileID(doc, h.Sum(nil), cfg)
	trailer.Set(raw.NameLiteral("ID"), raw.NewArray(
		raw.StringObj{Bytes: ids[0], Hex: true},
		raw.StringObj{Bytes: ids[1], Hex: true},
	))
	cw.writeString("trailer\n")
	cw.Write(appendObject(nil, trailer))
	fmt.Fprintf(cw, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	if cw.err != nil {
		return cw.err
	}
	return cw.w.Flush()
}

func headerVersion(doc *raw.Document, cfg Config) string {
	v := cfg.Version
	if doc.Version > v {
		v = doc.Version
	}
	if v == "" {
		return DefaultVersion
	}
	return v
}

// fileID keeps the first element of an existing /ID. The second element is
// always derived from the serialized objects.
func fileID(doc *raw.Document, digest []byte, cfg Config) [2][]byte {
	content := digest[:16]
	if ids, ok := doc.Trailer.Lookup("ID"); ok {
		if arr, ok := ids.(*raw.ArrayObj); ok && len(arr.Items) > 0 {
			if first, ok := arr.Items[0].(raw.StringObj); ok && len(first.Bytes) > 0 {
				return [2][]byte{first.Bytes, content}
			}
		}
	}
	if cfg.Deterministic {
		return [2][]byte{content, content}
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		id = content
	}
	return [2][]byte{id, content}
}

// compressStream returns a Flate-encoded copy of s when s has no filter and
// encoding makes it smaller; otherwise s itself.
func compressStream(s *raw.StreamObj, level int) (raw.Object, error) {
	if len(s.Data) == 0 {
		return s, nil
	}
	if _, filtered := s.Dict.Lookup("Filter"); filtered {
		return s, nil
	}
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(s.Data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if buf.Len() >= len(s.Data) {
		return s, nil
	}
	dict := raw.Dict()
	if s.Dict != nil {
		dict = raw.Clone(s.Dict).(*raw.DictObj)
	}
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	dict.Delete("DecodeParms")
	return raw.NewStream(dict, buf.Bytes()), nil
}

// countingWriter tracks the byte offset and keeps the first write error.
type countingWriter struct {
	w   *bufio.Writer
	h   hash.Hash
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.h.Write(p[:n])
	c.n += int64(n)
	c.err = err
	return n, err
}

func (c *countingWriter) writeString(s string) {
	c.Write([]byte(s))
}
