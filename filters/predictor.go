package filters

import (
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
)

func paramInt(params raw.Dictionary, key string) (int, bool) {
	if params == nil {
		return 0, false
	}
	v, ok := params.Get(raw.NameObj{Val: key})
	if !ok {
		return 0, false
	}
	n, ok := v.(raw.Number)
	if !ok {
		return 0, false
	}
	return int(n.Int()), true
}

// applyPredictor undoes the PNG predictors (10..15) described by params.
// Predictor 1 or an absent entry leaves data alone.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	predictor, ok := paramInt(params, "Predictor")
	if !ok || predictor <= 1 {
		return data, nil
	}
	if predictor == 2 {
		return nil, UnsupportedError{Filter: "TIFF predictor"}
	}
	colors := 1
	if v, ok := paramInt(params, "Colors"); ok && v > 0 {
		colors = v
	}
	bpc := 8
	if v, ok := paramInt(params, "BitsPerComponent"); ok && v > 0 {
		bpc = v
	}
	columns := 1
	if v, ok := paramInt(params, "Columns"); ok && v > 0 {
		columns = v
	}

	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	stride := rowLen + 1

	out := make([]byte, 0, len(data)/stride*rowLen)
	prior := make([]byte, rowLen)
	for off := 0; off+1 < len(data); off += stride {
		end := off + stride
		if end > len(data) {
			end = len(data)
		}
		tag := data[off]
		row := make([]byte, rowLen)
		copy(row, data[off+1:end])

		for i := range row {
			var left, up, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prior[i-bpp]
			}
			up = prior[i]
			switch tag {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown png predictor tag %d", tag)
			}
		}
		out = append(out, row...)
		prior = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
