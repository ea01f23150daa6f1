package filters

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfmerge/ir/raw"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, _ := zlib.NewWriterLevel(&buf, zlib.BestSpeed)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), deflate(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp := deflate(t, []byte{1, 10, 12, 20})

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(1))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(3))

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), comp, params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestUpPredictorAcrossRows(t *testing.T) {
	// xref stream style: W [1 2 1], Columns 4, Up predictor on every row.
	rows := []byte{
		2, 1, 0, 15, 0,
		2, 0, 0, 10, 0,
	}
	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(4))

	out, err := NewFlateDecoder().Decode(context.Background(), deflate(t, rows), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{1, 0, 15, 0, 1, 0, 25, 0}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestLZWDecode(t *testing.T) {
	// Example sequence from the PDF reference: codes 256 45 258 258 65 259 66 257.
	in := []byte{0x80, 0x0B, 0x60, 0x50, 0x22, 0x0C, 0x0C, 0x85, 0x01}
	out, err := NewLZWDecoder().Decode(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "-----A---B" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	dec := NewRunLengthDecoder()
	out, err := dec.Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	dec := NewASCII85Decoder()
	out, err := dec.Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	dec := NewASCIIHexDecoder()
	out, err := dec.Decode(context.Background(), []byte("68656c6c 6f20776f\n726c64>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineChainsFilters(t *testing.T) {
	hexOfFlate := []byte{}
	for _, b := range deflate(t, []byte("chained")) {
		hexOfFlate = append(hexOfFlate, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&15])
	}
	dict := raw.Dict()
	dict.Set(raw.NameObj{Val: "Filter"}, raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	s := raw.NewStream(dict, append(hexOfFlate, '>'))

	out, err := NewDefaultPipeline(Limits{}).DecodeStream(context.Background(), s)
	if err != nil {
		t.Fatalf("pipeline decode error: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineSizeLimit(t *testing.T) {
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 4})
	_, err := p.Decode(context.Background(), deflate(t, []byte("longer than four")), []string{"FlateDecode"}, nil)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	fp := NewDefaultPipeline(Limits{})
	_, err := fp.Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JPXDecode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestExtractFiltersKeepsNullParamSlots(t *testing.T) {
	parms := raw.Dict()
	parms.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	dict := raw.Dict()
	dict.Set(raw.NameObj{Val: "Filter"}, raw.NewArray(raw.NameLiteral("ASCII85Decode"), raw.NameLiteral("FlateDecode")))
	dict.Set(raw.NameObj{Val: "DecodeParms"}, raw.NewArray(raw.NullObj{}, parms))

	names, params := ExtractFilters(dict)
	if len(names) != 2 || len(params) != 2 {
		t.Fatalf("names=%v params=%d", names, len(params))
	}
	if params[0] != nil || params[1] == nil {
		t.Fatalf("parameter slots misaligned: %v", params)
	}
}
