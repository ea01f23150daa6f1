package parser

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/scanner"
)

// expandObjectStreams moves the objects packed in object streams into the
// document. Objects defined outside any object stream take precedence;
// among object streams, the later one in the file wins.
func (st *scanState) expandObjectStreams() error {
	st.compressed = make(map[raw.ObjectRef]bool)
	for _, ref := range st.objStreams {
		if err := st.ctx.Err(); err != nil {
			return err
		}
		if err := st.expandObjectStream(ref, st.streams[ref]); err != nil {
			loc := recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser:objstm"}
			if !st.recover(err, loc) {
				return fmt.Errorf("%w: object stream %s: %w", ErrMalformed, ref, err)
			}
		}
	}
	return nil
}

func (st *scanState) expandObjectStream(ref raw.ObjectRef, stream *raw.StreamObj) error {
	n, _ := raw.IntOf(dictValue(stream.Dict, "N"))
	first, _ := raw.IntOf(dictValue(stream.Dict, "First"))
	data, err := st.p.filters.DecodeStream(st.ctx, stream)
	if err != nil {
		return err
	}
	if n < 0 || first < 0 || first > int64(len(data)) {
		return errors.New("object stream header out of range")
	}

	cfg := st.p.cfg
	s := scanner.New(data, scanner.Config{MaxStringLength: cfg.Limits.MaxStringLength, Recovery: cfg.Recovery})
	type entry struct {
		num    int
		offset int64
	}
	entries := make([]entry, 0, n)
	for i := int64(0); i < n; i++ {
		num, err1 := s.Next()
		off, err2 := s.Next()
		if err1 != nil || err2 != nil || num.Type != scanner.TokenNumber || off.Type != scanner.TokenNumber {
			return errors.New("truncated object stream header")
		}
		entries = append(entries, entry{num: int(num.Int), offset: off.Int})
	}

	for _, e := range entries {
		objRef := raw.ObjectRef{Num: e.num}
		if _, exists := st.doc.Objects[objRef]; exists && !st.compressed[objRef] {
			continue
		}
		if err := s.Seek(first + e.offset); err != nil {
			return fmt.Errorf("object %d: %w", e.num, err)
		}
		obj, err := parseObject(newTokenReader(s), cfg, objRef, 0)
		if err != nil {
			if st.recover(err, recovery.Location{ObjectNum: e.num, Component: "parser:objstm"}) {
				continue
			}
			return fmt.Errorf("object %d: %w", e.num, err)
		}
		st.doc.Objects[objRef] = obj
		st.compressed[objRef] = true
	}
	return nil
}
