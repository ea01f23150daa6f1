package optimize

import (
	"bytes"
	"compress/zlib"
	"context"

	"github.com/wudi/pdfmerge/ir/raw"
)

// compressStreams Flate-encodes every stream that carries no filter yet.
// Streams whose compressed form is not smaller are left untouched.
func (o *Optimizer) compressStreams(ctx context.Context, doc *raw.Document) error {
	level := o.config.CompressionLevel
	if level == 0 {
		level = zlib.DefaultCompression
	}
	for _, ref := range doc.SortedRefs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		stream, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok || len(stream.Data) == 0 {
			continue
		}
		if stream.Dict == nil {
			stream.Dict = raw.Dict()
		}
		if _, filtered := stream.Dict.Lookup("Filter"); filtered {
			continue
		}

		var b bytes.Buffer
		w, err := zlib.NewWriterLevel(&b, level)
		if err != nil {
			return err
		}
		if _, err := w.Write(stream.Data); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		if b.Len() >= len(stream.Data) {
			continue
		}

		stream.Data = b.Bytes()
		stream.Dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
		stream.Dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(stream.Data))))
		stream.Dict.Delete("DecodeParms")
	}
	return nil
}
