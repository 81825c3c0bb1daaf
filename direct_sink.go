// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"strconv"
	"strings"
)

// directSink is an eventSink that resolves values immediately and
// accumulates real output text, used both for top-level fragments that
// never reference a template and for the uncompilable-template
// fallback path.
type directSink interface {
	eventSink
	result() string
}

// newDirectSink returns the XML- or JSON-flavored direct sink. subs is
// the substitution vector in scope when this sink is rendering a
// template body directly (the uncompilable-template fallback); it's
// nil for a record's own top-level fragment, which never contains a
// bare substitution token outside template context. w is the owning
// walker, consulted when a substitution carries an embedded BinXml
// fragment that must itself be walked.
func newDirectSink(format OutputFormat, subs []substitution, w *binxmlWalker) directSink {
	if format == OutputJSON {
		return newJSONDirectSink(subs, w)
	}
	return newXMLDirectSink(subs, w)
}

// resolveSub looks up a substitution by index, reporting skip=true when
// an OptionalSubstitution resolves to a null or zero-length value.
func resolveSub(subs []substitution, index uint16, optional bool) (typeCode byte, data []byte, skip bool, err error) {
	if int(index) >= len(subs) {
		return 0, nil, false, ErrUnresolvedSubstitution
	}
	s := subs[index]
	if optional && (s.typeCode == valTypeNull || len(s.data) == 0) {
		return 0, nil, true, nil
	}
	return s.typeCode, s.data, false, nil
}

// --- XML flavor ---

type xmlDirectSink struct {
	sink   *textSink
	subs   []substitution
	w      *binxmlWalker
	inAttr bool
}

func newXMLDirectSink(subs []substitution, w *binxmlWalker) *xmlDirectSink {
	return &xmlDirectSink{sink: acquireSink(), subs: subs, w: w}
}

func (s *xmlDirectSink) isSkeleton() bool { return false }

func (s *xmlDirectSink) openStartElement(name string) {
	s.sink.WriteByte('<')
	s.sink.WriteString(name)
}

func (s *xmlDirectSink) attributeName(name string) {
	s.sink.WriteByte(' ')
	s.sink.WriteString(name)
	s.sink.WriteString(`="`)
	s.inAttr = true
}

func (s *xmlDirectSink) endAttribute() {
	s.sink.WriteByte('"')
	s.inAttr = false
}

func (s *xmlDirectSink) closeStartElement() {
	s.sink.WriteByte('>')
}

func (s *xmlDirectSink) closeEmptyElement() {
	s.sink.WriteString("/>")
}

func (s *xmlDirectSink) endElement(name string) {
	s.sink.WriteString("</")
	s.sink.WriteString(name)
	s.sink.WriteByte('>')
}

func (s *xmlDirectSink) literalValue(typeCode byte, data []byte) error {
	return s.writeValue(typeCode, data)
}

func (s *xmlDirectSink) cdata(typeCode byte, data []byte) error {
	tmp := acquireSink()
	defer tmp.release()
	if err := formatValue(tmp, typeCode, data); err != nil {
		return err
	}
	s.sink.WriteString("<![CDATA[")
	s.sink.WriteString(tmp.String())
	s.sink.WriteString("]]>")
	return nil
}

func (s *xmlDirectSink) charRef(v uint16) {
	s.sink.WriteString("&#")
	s.sink.WriteString(strconv.FormatUint(uint64(v), 10))
	s.sink.WriteByte(';')
}

func (s *xmlDirectSink) entityRef(name string) {
	s.sink.WriteByte('&')
	s.sink.WriteString(name)
	s.sink.WriteByte(';')
}

func (s *xmlDirectSink) substitutionValue(index uint16, typeHint byte, optional bool) error {
	typeCode, data, skip, err := resolveSub(s.subs, index, optional)
	if err != nil || skip {
		return err
	}
	return s.writeValue(typeCode, data)
}

func (s *xmlDirectSink) writeValue(typeCode byte, data []byte) error {
	if typeCode == valTypeEmbeddedBinXml && s.w != nil {
		text, err := s.w.renderEmbedded(data, 0)
		if err != nil {
			return err
		}
		if s.inAttr {
			s.sink.WriteString(escapeXML(text))
		} else {
			s.sink.WriteString(text)
		}
		return nil
	}
	tmp := acquireSink()
	defer tmp.release()
	if err := formatValue(tmp, typeCode, data); err != nil {
		return err
	}
	s.sink.WriteString(escapeXML(tmp.String()))
	return nil
}

func (s *xmlDirectSink) writeRaw(text string) {
	s.sink.WriteString(text)
}

func (s *xmlDirectSink) result() string {
	defer s.sink.release()
	return s.sink.String()
}

// escapeXML entity-escapes the five XML-reserved characters.
func escapeXML(s string) string {
	if !strings.ContainsAny(s, `&<>"'`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// --- JSON flavor ---

// jsonElemFrame tracks one open element's output state: whether its
// "#attrs" object and "#content" array have been opened yet.
type jsonElemFrame struct {
	attrsOpen   bool
	contentOpen bool
}

// jsonDirectSink renders a fragment in the structural JSON form
// {"#name":"…","#attrs":{…},"#content":[…]}. Attribute values land
// inside a string literal opened by attributeName and closed by
// endAttribute; everything else is a content-array item.
type jsonDirectSink struct {
	sink   *textSink
	subs   []substitution
	w      *binxmlWalker
	stack  []jsonElemFrame
	inAttr bool
}

func newJSONDirectSink(subs []substitution, w *binxmlWalker) *jsonDirectSink {
	return &jsonDirectSink{sink: acquireSink(), subs: subs, w: w}
}

func (s *jsonDirectSink) isSkeleton() bool { return false }

// beginContentItem opens the enclosing element's "#content" array on
// its first item and separates later items with commas. A top-level
// item (no enclosing element) needs neither.
func (s *jsonDirectSink) beginContentItem() {
	if len(s.stack) == 0 {
		return
	}
	top := &s.stack[len(s.stack)-1]
	if !top.contentOpen {
		s.sink.WriteString(`,"#content":[`)
		top.contentOpen = true
		return
	}
	s.sink.WriteByte(',')
}

func (s *jsonDirectSink) openStartElement(name string) {
	s.beginContentItem()
	s.sink.WriteString(`{"#name":"`)
	s.sink.WriteString(escapeJSON(name))
	s.sink.WriteByte('"')
	s.stack = append(s.stack, jsonElemFrame{})
}

func (s *jsonDirectSink) attributeName(name string) {
	top := &s.stack[len(s.stack)-1]
	if !top.attrsOpen {
		s.sink.WriteString(`,"#attrs":{`)
		top.attrsOpen = true
	} else {
		s.sink.WriteByte(',')
	}
	s.sink.WriteByte('"')
	s.sink.WriteString(escapeJSON(name))
	s.sink.WriteString(`":"`)
	s.inAttr = true
}

func (s *jsonDirectSink) endAttribute() {
	s.sink.WriteByte('"')
	s.inAttr = false
}

func (s *jsonDirectSink) closeAttrsIfOpen() {
	if len(s.stack) == 0 {
		return
	}
	top := &s.stack[len(s.stack)-1]
	if top.attrsOpen {
		s.sink.WriteByte('}')
		top.attrsOpen = false
	}
}

func (s *jsonDirectSink) closeStartElement() {
	s.closeAttrsIfOpen()
}

func (s *jsonDirectSink) popElement() {
	s.closeAttrsIfOpen()
	if len(s.stack) == 0 {
		return
	}
	top := &s.stack[len(s.stack)-1]
	if top.contentOpen {
		s.sink.WriteByte(']')
	}
	s.sink.WriteByte('}')
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *jsonDirectSink) closeEmptyElement() {
	s.popElement()
}

func (s *jsonDirectSink) endElement(name string) {
	s.popElement()
}

func (s *jsonDirectSink) literalValue(typeCode byte, data []byte) error {
	return s.writeValue(typeCode, data)
}

func (s *jsonDirectSink) cdata(typeCode byte, data []byte) error {
	return s.writeValue(typeCode, data)
}

func (s *jsonDirectSink) charRef(v uint16) {
	s.writeText("&#" + strconv.FormatUint(uint64(v), 10) + ";")
}

func (s *jsonDirectSink) entityRef(name string) {
	s.writeText("&" + name + ";")
}

func (s *jsonDirectSink) substitutionValue(index uint16, typeHint byte, optional bool) error {
	typeCode, data, skip, err := resolveSub(s.subs, index, optional)
	if err != nil {
		return err
	}
	if skip {
		// The slot renders as an empty payload: the attribute's (or
		// content item's) string literal stays, so an omitted optional
		// never unbalances commas or quotes.
		s.writeText("")
		return nil
	}
	return s.writeValue(typeCode, data)
}

func (s *jsonDirectSink) writeValue(typeCode byte, data []byte) error {
	if typeCode == valTypeEmbeddedBinXml && s.w != nil {
		text, err := s.w.renderEmbedded(data, 0)
		if err != nil {
			return err
		}
		s.writeText(text)
		return nil
	}
	tmp := acquireSink()
	defer tmp.release()
	if err := formatValue(tmp, typeCode, data); err != nil {
		return err
	}
	s.writeText(tmp.String())
	return nil
}

// writeText places text as an attribute-value payload (escaped into
// the literal already opened by attributeName) or as its own quoted
// content-array item.
func (s *jsonDirectSink) writeText(text string) {
	if s.inAttr {
		s.sink.WriteString(escapeJSON(text))
		return
	}
	s.beginContentItem()
	s.sink.WriteByte('"')
	s.sink.WriteString(escapeJSON(text))
	s.sink.WriteByte('"')
}

func (s *jsonDirectSink) writeRaw(text string) {
	if s.inAttr {
		s.sink.WriteString(escapeJSON(text))
		return
	}
	s.beginContentItem()
	s.sink.WriteString(text)
}

func (s *jsonDirectSink) result() string {
	defer s.sink.release()
	// A truncated walk can leave elements open; close them so the
	// output stays parseable JSON even for degraded records.
	for len(s.stack) > 0 {
		s.popElement()
	}
	return s.sink.String()
}

func escapeJSON(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 {
				b.WriteString("\\u00")
				const hex = "0123456789abcdef"
				b.WriteByte(hex[(r>>4)&0xF])
				b.WriteByte(hex[r&0xF])
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
