// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"strconv"
	"strings"
)

// jsonSkeletonSink compiles a template body into JSON-flavored
// templateParts producing the structural form
// {"#name":"…","#attrs":{…},"#content":[…]}. Comma and quote placement
// is baked into the statics at compile time, which is sound because a
// template's token structure is fixed for every record that fills it:
// a slot always renders its payload (an omitted optional renders an
// empty payload inside the statically-placed quotes), so no comma or
// quote ever depends on a record's values.
type jsonSkeletonSink struct {
	buf    strings.Builder
	out    []templatePart
	stack  []jsonElemFrame
	inAttr bool
	bad    bool
}

func newJSONSkeletonSink() *jsonSkeletonSink {
	return &jsonSkeletonSink{}
}

func (s *jsonSkeletonSink) isSkeleton() bool { return true }
func (s *jsonSkeletonSink) failed() bool     { return s.bad }

func (s *jsonSkeletonSink) flush() {
	if s.buf.Len() > 0 {
		s.out = append(s.out, templatePart{static: s.buf.String()})
		s.buf.Reset()
	}
}

func (s *jsonSkeletonSink) parts() []templatePart {
	s.flush()
	return s.out
}

func (s *jsonSkeletonSink) beginContentItem() {
	if len(s.stack) == 0 {
		return
	}
	top := &s.stack[len(s.stack)-1]
	if !top.contentOpen {
		s.buf.WriteString(`,"#content":[`)
		top.contentOpen = true
		return
	}
	s.buf.WriteByte(',')
}

func (s *jsonSkeletonSink) openStartElement(name string) {
	s.beginContentItem()
	s.buf.WriteString(`{"#name":"`)
	s.buf.WriteString(escapeJSON(name))
	s.buf.WriteByte('"')
	s.stack = append(s.stack, jsonElemFrame{})
}

func (s *jsonSkeletonSink) attributeName(name string) {
	top := &s.stack[len(s.stack)-1]
	if !top.attrsOpen {
		s.buf.WriteString(`,"#attrs":{`)
		top.attrsOpen = true
	} else {
		s.buf.WriteByte(',')
	}
	s.buf.WriteByte('"')
	s.buf.WriteString(escapeJSON(name))
	s.buf.WriteString(`":"`)
	s.inAttr = true
}

func (s *jsonSkeletonSink) endAttribute() {
	s.buf.WriteByte('"')
	s.inAttr = false
}

func (s *jsonSkeletonSink) closeAttrsIfOpen() {
	if len(s.stack) == 0 {
		return
	}
	top := &s.stack[len(s.stack)-1]
	if top.attrsOpen {
		s.buf.WriteByte('}')
		top.attrsOpen = false
	}
}

func (s *jsonSkeletonSink) closeStartElement() {
	s.closeAttrsIfOpen()
}

func (s *jsonSkeletonSink) popElement() {
	s.closeAttrsIfOpen()
	if len(s.stack) == 0 {
		return
	}
	top := &s.stack[len(s.stack)-1]
	if top.contentOpen {
		s.buf.WriteByte(']')
	}
	s.buf.WriteByte('}')
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *jsonSkeletonSink) closeEmptyElement() {
	s.popElement()
}

func (s *jsonSkeletonSink) endElement(name string) {
	s.popElement()
}

func (s *jsonSkeletonSink) writeText(text string) {
	if s.inAttr {
		s.buf.WriteString(escapeJSON(text))
		return
	}
	s.beginContentItem()
	s.buf.WriteByte('"')
	s.buf.WriteString(escapeJSON(text))
	s.buf.WriteByte('"')
}

func (s *jsonSkeletonSink) literalValue(typeCode byte, data []byte) error {
	tmp := acquireSink()
	defer tmp.release()
	if err := formatValue(tmp, typeCode, data); err != nil {
		return err
	}
	s.writeText(tmp.String())
	return nil
}

func (s *jsonSkeletonSink) cdata(typeCode byte, data []byte) error {
	return s.literalValue(typeCode, data)
}

func (s *jsonSkeletonSink) charRef(v uint16) {
	s.writeText("&#" + strconv.FormatUint(uint64(v), 10) + ";")
}

func (s *jsonSkeletonSink) entityRef(name string) {
	s.writeText("&" + name + ";")
}

func (s *jsonSkeletonSink) substitutionValue(index uint16, typeHint byte, optional bool) error {
	inAttr := s.inAttr
	if !inAttr {
		// A content-position slot is a string item whose quotes are
		// static; the slot fills only the payload between them.
		s.beginContentItem()
		s.buf.WriteByte('"')
	}
	s.flush()
	s.out = append(s.out, templatePart{isSlot: true, slot: slotPart{index: index, typeHint: typeHint, optional: optional, inAttr: inAttr}})
	if !inAttr {
		s.buf.WriteByte('"')
	}
	return nil
}

func (s *jsonSkeletonSink) writeRaw(text string) {
	s.bad = true
}
