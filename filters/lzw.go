package filters

import (
	"context"
	"errors"

	"github.com/wudi/pdfmerge/ir/raw"
)

const (
	lzwClear = 256
	lzwEOD   = 257
)

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func NewLZWDecoder() Decoder    { return lzwDecoder{} }

// Decode implements the PDF flavour of LZW: MSB-first codes of 9 to 12
// bits, with the code width growing one code early unless /EarlyChange 0.
func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	early := 1
	if v, ok := paramInt(params, "EarlyChange"); ok {
		early = v
	}

	var (
		out    []byte
		table  = make([][]byte, 258, 4096)
		width  = 9
		prev   []byte
		bitBuf uint32
		bits   int
	)
	for i := 0; i < 256; i++ {
		table[i] = []byte{byte(i)}
	}
	reset := func() {
		table = table[:258]
		width = 9
		prev = nil
	}

	for _, b := range in {
		bitBuf = bitBuf<<8 | uint32(b)
		bits += 8
		for bits >= width {
			code := int(bitBuf>>(bits-width)) & (1<<width - 1)
			bits -= width

			switch {
			case code == lzwClear:
				reset()
				continue
			case code == lzwEOD:
				return applyPredictor(out, params)
			}

			var entry []byte
			switch {
			case code < len(table):
				entry = table[code]
			case code == len(table) && prev != nil:
				entry = append(append([]byte(nil), prev...), prev[0])
			default:
				return nil, errors.New("lzw: invalid code")
			}
			out = append(out, entry...)

			if prev != nil && len(table) < 4096 {
				next := make([]byte, len(prev)+1)
				copy(next, prev)
				next[len(prev)] = entry[0]
				table = append(table, next)
			}
			prev = entry

			if len(table)+early >= 1<<width && width < 12 {
				width++
			}
		}
	}
	return applyPredictor(out, params)
}
