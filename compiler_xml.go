// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"strconv"
	"strings"
)

// xmlSkeletonSink compiles a template body into XML-flavored
// templateParts: every structural token (tags, attribute syntax,
// literal text) bakes into the current static run; a substitution
// token flushes that run and appends a slot.
type xmlSkeletonSink struct {
	buf    strings.Builder
	out    []templatePart
	inAttr bool
	bad    bool
}

func newXMLSkeletonSink() *xmlSkeletonSink {
	return &xmlSkeletonSink{}
}

func (s *xmlSkeletonSink) isSkeleton() bool { return true }
func (s *xmlSkeletonSink) failed() bool     { return s.bad }

func (s *xmlSkeletonSink) flush() {
	if s.buf.Len() > 0 {
		s.out = append(s.out, templatePart{static: s.buf.String()})
		s.buf.Reset()
	}
}

func (s *xmlSkeletonSink) parts() []templatePart {
	s.flush()
	return s.out
}

func (s *xmlSkeletonSink) openStartElement(name string) {
	s.buf.WriteByte('<')
	s.buf.WriteString(name)
}

func (s *xmlSkeletonSink) attributeName(name string) {
	s.buf.WriteByte(' ')
	s.buf.WriteString(name)
	s.buf.WriteString(`="`)
	s.inAttr = true
}

func (s *xmlSkeletonSink) endAttribute() {
	s.buf.WriteByte('"')
	s.inAttr = false
}

func (s *xmlSkeletonSink) closeStartElement() {
	s.buf.WriteByte('>')
}

func (s *xmlSkeletonSink) closeEmptyElement() {
	s.buf.WriteString("/>")
}

func (s *xmlSkeletonSink) endElement(name string) {
	s.buf.WriteString("</")
	s.buf.WriteString(name)
	s.buf.WriteByte('>')
}

func (s *xmlSkeletonSink) literalValue(typeCode byte, data []byte) error {
	tmp := acquireSink()
	defer tmp.release()
	if err := formatValue(tmp, typeCode, data); err != nil {
		return err
	}
	s.buf.WriteString(escapeXML(tmp.String()))
	return nil
}

func (s *xmlSkeletonSink) cdata(typeCode byte, data []byte) error {
	tmp := acquireSink()
	defer tmp.release()
	if err := formatValue(tmp, typeCode, data); err != nil {
		return err
	}
	s.buf.WriteString("<![CDATA[")
	s.buf.WriteString(tmp.String())
	s.buf.WriteString("]]>")
	return nil
}

func (s *xmlSkeletonSink) charRef(v uint16) {
	s.buf.WriteString("&#")
	s.buf.WriteString(strconv.FormatUint(uint64(v), 10))
	s.buf.WriteByte(';')
}

func (s *xmlSkeletonSink) entityRef(name string) {
	s.buf.WriteByte('&')
	s.buf.WriteString(name)
	s.buf.WriteByte(';')
}

func (s *xmlSkeletonSink) substitutionValue(index uint16, typeHint byte, optional bool) error {
	s.flush()
	s.out = append(s.out, templatePart{isSlot: true, slot: slotPart{index: index, typeHint: typeHint, optional: optional, inAttr: s.inAttr}})
	return nil
}

func (s *xmlSkeletonSink) writeRaw(text string) {
	s.bad = true
}
