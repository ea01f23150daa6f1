// Package parser reads PDF files into raw.Document object graphs.
//
// Objects are found by scanning the file for "N G obj" headers rather than
// by trusting the cross-reference table, so files with stale or broken
// offsets still load. Later definitions of an object replace earlier ones,
// which is how incremental updates behave.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/scanner"
)

var (
	// ErrMalformed is returned when a file cannot be read as a PDF.
	ErrMalformed = errors.New("malformed PDF")
	// ErrEncrypted is returned for files whose trailer names an encryption
	// dictionary; decryption is not supported.
	ErrEncrypted = errors.New("encrypted PDF not supported")
)

// trailerKeys are the trailer entries kept on the parsed document. Size,
// Prev and the xref-stream fields describe the old file layout only.
var trailerKeys = []string{"Root", "Info", "ID"}

// headerRE matches the %PDF-x.y header; it may be preceded by junk.
var headerRE = regexp.MustCompile(`%PDF-(\d\.\d)`)

const headerSearchWindow = 1024

type Limits struct {
	MaxStringLength     int64
	MaxStreamLength     int64
	MaxDecompressedSize int64
	MaxDepth            int
}

func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 256 << 20,
		MaxDepth:            256,
	}
}

// Config controls parsing. A nil Recovery fails on the first problem.
type Config struct {
	Recovery recovery.Strategy
	Limits   Limits
	Logger   observability.Logger
}

// DocumentParser implements raw.Parser.
type DocumentParser struct {
	cfg     Config
	filters *filters.Pipeline
}

var _ raw.Parser = (*DocumentParser)(nil)

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Limits.MaxDepth == 0 {
		cfg.Limits.MaxDepth = DefaultLimits().MaxDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &DocumentParser{
		cfg:     cfg,
		filters: filters.NewDefaultPipeline(filters.Limits{MaxDecompressedSize: cfg.Limits.MaxDecompressedSize}),
	}
}

// Parse reads all of r and parses it.
func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	data, err := io.ReadAll(io.NewSectionReader(r, 0, math.MaxInt64))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return p.ParseBytes(ctx, data)
}

// ParseBytes parses an in-memory file.
func (p *DocumentParser) ParseBytes(ctx context.Context, data []byte) (*raw.Document, error) {
	version, ok := headerVersion(data)
	if !ok {
		return nil, fmt.Errorf("%w: missing %%PDF header", ErrMalformed)
	}

	st := &scanState{
		p:       p,
		ctx:     ctx,
		doc:     raw.NewDocument(version),
		streams: make(map[raw.ObjectRef]*raw.StreamObj),
	}
	if err := st.scan(data); err != nil {
		return nil, err
	}
	if err := st.expandObjectStreams(); err != nil {
		return nil, err
	}
	if err := st.buildTrailer(); err != nil {
		return nil, err
	}
	if len(st.doc.Objects) == 0 {
		return nil, fmt.Errorf("%w: no objects found", ErrMalformed)
	}
	st.doc.MaxID = st.doc.ComputeMaxID()

	p.cfg.Logger.Debug("parsed document",
		observability.String("version", version),
		observability.Int("objects", len(st.doc.Objects)),
		observability.Int("objectStreams", len(st.objStreams)),
		observability.Int("trailers", len(st.trailers)))
	return st.doc, nil
}

func headerVersion(data []byte) (string, bool) {
	window := data
	if len(window) > headerSearchWindow {
		window = window[:headerSearchWindow]
	}
	m := headerRE.FindSubmatch(window)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// scanState accumulates one parse.
type scanState struct {
	p          *DocumentParser
	ctx        context.Context
	doc        *raw.Document
	trailers   []*raw.DictObj
	objStreams []raw.ObjectRef
	streams    map[raw.ObjectRef]*raw.StreamObj
	compressed map[raw.ObjectRef]bool
}

func (st *scanState) scan(data []byte) error {
	cfg := st.p.cfg
	s := scanner.New(data, scanner.Config{
		MaxStringLength: cfg.Limits.MaxStringLength,
		MaxStreamLength: cfg.Limits.MaxStreamLength,
		Recovery:        cfg.Recovery,
	})
	tr := newTokenReader(s)

	// the two tokens before the current one, for spotting "N G obj"
	var prev2, prev1 scanner.Token
	for {
		if err := st.ctx.Err(); err != nil {
			return err
		}
		before := s.Position()
		tok, err := tr.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if !st.recover(err, recovery.Location{ByteOffset: before, Component: "parser:scan"}) {
				return fmt.Errorf("%w: %w", ErrMalformed, err)
			}
			if s.Position() <= before {
				_ = s.Seek(before + 1)
			}
			continue
		}

		switch {
		case tok.Type == scanner.TokenKeyword && tok.Str == "obj" && isObjectNumber(prev2) && isObjectNumber(prev1):
			ref := raw.ObjectRef{Num: int(prev2.Int), Gen: int(prev1.Int)}
			if err := st.readObject(tr, s, ref, prev2.Pos); err != nil {
				return err
			}
			prev2, prev1 = scanner.Token{}, scanner.Token{}
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			obj, err := parseObject(tr, st.p.cfg, raw.ObjectRef{}, 0)
			if err != nil {
				if !st.recover(err, recovery.Location{ByteOffset: tok.Pos, Component: "parser:trailer"}) {
					return fmt.Errorf("%w: trailer: %w", ErrMalformed, err)
				}
				continue
			}
			if d, ok := obj.(*raw.DictObj); ok {
				st.trailers = append(st.trailers, d)
			}
			prev2, prev1 = scanner.Token{}, scanner.Token{}
		default:
			prev2, prev1 = prev1, tok
		}
	}
}

func isObjectNumber(tok scanner.Token) bool {
	return tok.Type == scanner.TokenNumber && tok.IsInt && tok.Int >= 0 && tok.Int <= math.MaxInt32
}

// readObject parses the body of an indirect object whose header was just
// consumed. A damaged object is dropped when the recovery strategy allows.
func (st *scanState) readObject(tr *tokenReader, s scanner.Scanner, ref raw.ObjectRef, pos int64) error {
	loc := recovery.Location{ByteOffset: pos, ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser:object"}
	if rl, ok := s.(interface{ SetRecoveryLocation(recovery.Location) }); ok {
		rl.SetRecoveryLocation(loc)
		defer rl.SetRecoveryLocation(recovery.Location{})
	}

	if tok, err := tr.next(); err == nil && tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
		// "N G obj endobj" defines the null object
		st.doc.Objects[ref] = raw.NullObj{}
		return nil
	} else if err == nil {
		tr.unread(tok)
	}

	obj, err := parseObject(tr, st.p.cfg, ref, 0)
	if err != nil {
		if st.recover(err, loc) {
			return nil
		}
		return fmt.Errorf("%w: object %s: %w", ErrMalformed, ref, err)
	}

	if dict, ok := obj.(*raw.DictObj); ok {
		tr.setStreamLengthHint(st.streamLength(dict))
		tok, err := tr.next()
		switch {
		case err == nil && tok.Type == scanner.TokenStream:
			obj = raw.NewStream(dict, tok.Bytes)
		case err == nil:
			tr.unread(tok)
		case errors.Is(err, io.EOF):
		default:
			if st.recover(err, loc) {
				return nil
			}
			return fmt.Errorf("%w: object %s: %w", ErrMalformed, ref, err)
		}
		tr.clearStreamLengthHint()
	}
	if tok, err := tr.next(); err == nil && !(tok.Type == scanner.TokenKeyword && tok.Str == "endobj") {
		tr.unread(tok)
	}

	if stream, ok := obj.(*raw.StreamObj); ok {
		switch typ, _ := raw.NameOf(dictValue(stream.Dict, "Type")); typ {
		case "XRef":
			// cross-reference streams carry the trailer entries
			st.trailers = append(st.trailers, stream.Dict)
			return nil
		case "ObjStm":
			if _, seen := st.streams[ref]; !seen {
				st.objStreams = append(st.objStreams, ref)
			}
			st.streams[ref] = stream
			delete(st.doc.Objects, ref)
			return nil
		}
	}
	st.doc.Objects[ref] = obj
	return nil
}

// streamLength returns the /Length of dict when it is known at this point
// of the scan, or -1.
func (st *scanState) streamLength(dict *raw.DictObj) int64 {
	v := dictValue(dict, "Length")
	if r, ok := v.(raw.RefObj); ok {
		v = st.doc.Objects[r.R]
	}
	if n, ok := v.(raw.NumberObj); ok && n.IsInt && n.I >= 0 {
		return n.I
	}
	return -1
}

// buildTrailer folds every trailer dictionary and cross-reference stream
// dictionary, in file order, into the document trailer.
func (st *scanState) buildTrailer() error {
	merged := raw.Dict()
	for _, t := range st.trailers {
		for _, k := range t.SortedKeys() {
			merged.KV[k] = t.KV[k]
		}
	}
	if _, ok := merged.Lookup("Encrypt"); ok {
		return ErrEncrypted
	}
	for _, k := range trailerKeys {
		if v, ok := merged.Lookup(k); ok {
			st.doc.Trailer.Set(raw.NameLiteral(k), v)
		}
	}
	return nil
}

func (st *scanState) recover(err error, loc recovery.Location) bool {
	if st.p.cfg.Recovery == nil {
		return false
	}
	return st.p.cfg.Recovery.OnError(st.ctx, err, loc).Continues()
}

func dictValue(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Lookup(key)
	return v
}
