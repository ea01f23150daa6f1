package parser

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/scanner"
)

var errDepth = errors.New("nesting too deep")

type streamLengthSetter interface{ SetNextStreamLength(int64) }

// tokenReader adds one-token pushback to a scanner.
type tokenReader struct {
	s            interface{ Next() (scanner.Token, error) }
	buf          []scanner.Token
	lengthSetter streamLengthSetter
}

func newTokenReader(src interface{ Next() (scanner.Token, error) }) *tokenReader {
	tr := &tokenReader{s: src}
	if setter, ok := src.(streamLengthSetter); ok {
		tr.lengthSetter = setter
	}
	return tr
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func (r *tokenReader) setStreamLengthHint(n int64) {
	if r.lengthSetter != nil {
		r.lengthSetter.SetNextStreamLength(n)
	}
}

func (r *tokenReader) clearStreamLengthHint() { r.setStreamLengthHint(-1) }

// parseObject reads one direct value. ref only labels recovery reports.
func parseObject(tr *tokenReader, cfg Config, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if depth > cfg.Limits.MaxDepth {
		return nil, errDepth
	}
	tok, err := tr.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenArray:
		return parseArray(tr, cfg, ref, depth)
	case scanner.TokenDict:
		return parseDict(tr, cfg, ref, depth)
	case scanner.TokenRef:
		return raw.RefTo(tok.Ref), nil
	}
	tr.unread(tok)
	return nil, fmt.Errorf("unexpected %s %q at offset %d", tok.Type, tok.Str, tok.Pos)
}

func parseArray(tr *tokenReader, cfg Config, ref raw.ObjectRef, depth int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
			tr.unread(tok)
			if unterminated(cfg, ref, tok, "unexpected endobj in array (missing ]?)") {
				return arr, nil
			}
			return nil, errors.New("unexpected endobj in array")
		}
		tr.unread(tok)
		item, err := parseObject(tr, cfg, ref, depth+1)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(tr *tokenReader, cfg Config, ref raw.ObjectRef, depth int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := tr.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			// Recovery logic for missing ">>"
			if (tok.Type == scanner.TokenKeyword && tok.Str == "endobj") || tok.Type == scanner.TokenStream {
				tr.unread(tok)
				if unterminated(cfg, ref, tok, "unexpected end of dict (missing >>?)") {
					return d, nil
				}
				return nil, errors.New("unexpected end of dict")
			}
			return nil, fmt.Errorf("expected name in dict, got %s at offset %d", tok.Type, tok.Pos)
		}
		val, err := parseObject(tr, cfg, ref, depth+1)
		if err != nil {
			return nil, err
		}
		// a null value is the same as an absent key
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		d.Set(raw.NameObj{Val: tok.Str}, val)
	}
}

func unterminated(cfg Config, ref raw.ObjectRef, tok scanner.Token, msg string) bool {
	if cfg.Recovery == nil {
		return false
	}
	loc := recovery.Location{ByteOffset: tok.Pos, ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser:object"}
	return cfg.Recovery.OnError(nil, errors.New(msg), loc).Continues()
}
