package writer

import (
	"encoding/hex"
	"math"
	"strconv"

	"github.com/wudi/pdfmerge/ir/raw"
)

// SerializeObject renders one indirect object definition, "N G obj ... endobj".
// Stream /Length always matches the payload.
func SerializeObject(ref raw.ObjectRef, obj raw.Object) []byte {
	buf := make([]byte, 0, 64)
	buf = strconv.AppendInt(buf, int64(ref.Num), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(ref.Gen), 10)
	buf = append(buf, " obj\n"...)
	buf = appendObject(buf, obj)
	buf = append(buf, "\nendobj\n"...)
	return buf
}

func appendObject(buf []byte, o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return appendName(buf, v.Val)
	case raw.NumberObj:
		if v.IsInt {
			return strconv.AppendInt(buf, v.I, 10)
		}
		return appendReal(buf, v.F)
	case raw.BoolObj:
		return strconv.AppendBool(buf, v.V)
	case raw.StringObj:
		if v.Hex {
			buf = append(buf, '<')
			buf = append(buf, hex.EncodeToString(v.Bytes)...)
			return append(buf, '>')
		}
		return appendLiteralString(buf, v.Bytes)
	case raw.RefObj:
		buf = strconv.AppendInt(buf, int64(v.R.Num), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(v.R.Gen), 10)
		return append(buf, " R"...)
	case *raw.ArrayObj:
		buf = append(buf, '[')
		for i, it := range v.Items {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = appendObject(buf, it)
		}
		return append(buf, ']')
	case *raw.DictObj:
		return appendDict(buf, v, nil)
	case *raw.StreamObj:
		length := raw.NumberInt(int64(len(v.Data)))
		buf = appendDict(buf, v.Dict, &length)
		buf = append(buf, "\nstream\n"...)
		buf = append(buf, v.Data...)
		return append(buf, "\nendstream"...)
	default:
		return append(buf, "null"...)
	}
}

// appendDict writes d with sorted keys. A non-nil length replaces /Length.
func appendDict(buf []byte, d *raw.DictObj, length *raw.NumberObj) []byte {
	buf = append(buf, "<<"...)
	wroteLength := false
	for _, k := range d.SortedKeys() {
		v := d.KV[k]
		if k == "Length" && length != nil {
			v = *length
			wroteLength = true
		}
		if _, null := v.(raw.NullObj); null || v == nil {
			continue
		}
		buf = appendName(buf, k)
		buf = append(buf, ' ')
		buf = appendObject(buf, v)
		buf = append(buf, ' ')
	}
	if length != nil && !wroteLength {
		buf = append(buf, "/Length "...)
		buf = appendObject(buf, *length)
		buf = append(buf, ' ')
	}
	if buf[len(buf)-1] == ' ' {
		buf = buf[:len(buf)-1]
	}
	return append(buf, ">>"...)
}

// appendReal writes f without an exponent or trailing zeros. NaN and
// infinities have no PDF form and become 0.
func appendReal(buf []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return append(buf, '0')
	}
	return strconv.AppendFloat(buf, f, 'f', -1, 64)
}

func appendName(buf []byte, value string) []byte {
	buf = append(buf, '/')
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch <= ' ' || ch >= 0x7F || ch == '#' || isDelimiter(ch) {
			buf = append(buf, '#')
			buf = append(buf, "0123456789ABCDEF"[ch>>4], "0123456789ABCDEF"[ch&0x0F])
			continue
		}
		buf = append(buf, ch)
	}
	return buf
}

func appendLiteralString(buf []byte, s []byte) []byte {
	buf = append(buf, '(')
	for _, ch := range s {
		switch ch {
		case '\\', '(', ')':
			buf = append(buf, '\\', ch)
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		default:
			if ch < 0x20 || ch >= 0x80 {
				buf = append(buf, '\\', '0'+ch>>6, '0'+(ch>>3)&7, '0'+ch&7)
			} else {
				buf = append(buf, ch)
			}
		}
	}
	return append(buf, ')')
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
