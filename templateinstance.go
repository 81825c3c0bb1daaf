// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "errors"

// errNestedTemplateInstance signals the compiler.go skeleton walk that
// a template definition refers to another template — the nested-
// TemplateInstance case that aborts compilation (the compiled-skeleton
// model can't represent a template whose shape depends on another
// template's own compiled form).
var errNestedTemplateInstance = errors.New("evtx: nested template instance, template is not compilable")

// substitution is one resolved value slot from a TemplateInstance's
// substitution array: the declared type code and the raw value bytes.
type substitution struct {
	typeCode byte
	data     []byte
}

// walkTemplateInstance decodes a TemplateInstance token body: a 1-byte
// reserved field, 4 reserved bytes, a 4-byte chunk-relative definition
// offset (inline if it points at the position right after itself,
// otherwise a back-reference into the chunk's template table), then a
// substitution descriptor array and its values. It resolves (compiling
// and caching where possible) the referenced template and writes its
// rendered form into sink via writeRaw, returning the number of bytes
// this token instance consumed.
func (w *binxmlWalker) walkTemplateInstance(data []byte, depth int, sink eventSink) (uint32, error) {
	if sink.isSkeleton() {
		return 0, errNestedTemplateInstance
	}
	if len(data) < 9 {
		return 0, ErrOutsideBoundary
	}

	defOffset := leUint32(data[5:9])
	pos := uint32(9)
	// The offset self-references when the definition follows in-line,
	// i.e. it names the chunk-relative position right after the offset
	// field itself.
	herePos := tokenChunkOffset(w.chunk, data, pos)

	def, err := w.resolveTemplateDef(defOffset, herePos, data, &pos)
	if err != nil {
		return 0, err
	}

	subs, n, err := w.readSubstitutions(data[pos:])
	if err != nil {
		return 0, err
	}
	pos += n

	text, err := w.renderTemplate(def, depth, subs)
	if err != nil {
		return 0, err
	}
	sink.writeRaw(text)
	return pos, nil
}

// resolveTemplateDef returns the template definition either in-line
// (defOffset equals herePos, the chunk-relative position right after
// the offset field: a 24-byte header of next-pointer, GUID, and body
// size follows here) or by back-reference into the chunk's template
// table, with a last-resort direct read of the header at defOffset when
// the table has no entry for it. On the inline path *pos is advanced
// past the definition.
func (w *binxmlWalker) resolveTemplateDef(defOffset, herePos uint32, data []byte, pos *uint32) (*templateDef, error) {
	if defOffset != herePos {
		if def, ok := w.templates.lookup(defOffset); ok {
			return def, nil
		}
		def, _, err := decodeTemplateDefAt(w.chunk, defOffset)
		if err != nil {
			w.diag.add(DiagUnresolvedTemplate)
			return nil, err
		}
		w.templates.byOffset[defOffset] = def
		return def, nil
	}

	// Inline: next-pointer(4) + GUID(16) + body size(4), then the body.
	if *pos+24 > uint32(len(data)) {
		return nil, ErrOutsideBoundary
	}
	g, err := decodeWindowsGUID(data[*pos+4 : *pos+20])
	if err != nil {
		return nil, err
	}
	dataSize := leUint32(data[*pos+20:])
	bodyStart := *pos + 24
	if bodyStart+dataSize > uint32(len(data)) || bodyStart+dataSize < bodyStart {
		return nil, ErrOutsideBoundary
	}

	def := &templateDef{
		guid:       g,
		dataOffset: tokenChunkOffset(w.chunk, data, bodyStart),
		dataSize:   dataSize,
		body:       data[bodyStart : bodyStart+dataSize],
	}
	*pos = bodyStart + dataSize
	w.templates.byOffset[herePos] = def
	return def, nil
}

// readSubstitutions reads the descriptor array (uint32 count, then
// that many 4-byte {uint16 size, uint8 type, uint8 padding} entries)
// and the contiguous value bytes it describes.
func (w *binxmlWalker) readSubstitutions(data []byte) ([]substitution, uint32, error) {
	if len(data) < 4 {
		return nil, 0, ErrOutsideBoundary
	}
	count := leUint32(data[0:4])
	if count > uint32(len(data))/4 {
		return nil, 0, ErrOutsideBoundary
	}
	pos := uint32(4)

	type descriptor struct {
		size     uint16
		typeCode byte
	}
	descs := make([]descriptor, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > uint32(len(data)) {
			return nil, 0, ErrOutsideBoundary
		}
		descs[i] = descriptor{
			size:     uint16(data[pos]) | uint16(data[pos+1])<<8,
			typeCode: data[pos+2],
		}
		pos += 4
	}

	subs := make([]substitution, count)
	for i, d := range descs {
		if pos+uint32(d.size) > uint32(len(data)) {
			return nil, 0, ErrOutsideBoundary
		}
		subs[i] = substitution{typeCode: d.typeCode, data: data[pos : pos+uint32(d.size)]}
		pos += uint32(d.size)
	}
	return subs, pos, nil
}

// renderTemplate returns the rendered text for one TemplateInstance:
// the compiled-template zipper path when the template compiles, the
// direct fallback walk otherwise.
func (w *binxmlWalker) renderTemplate(def *templateDef, depth int, subs []substitution) (string, error) {
	tmpl, compilable := w.cache.getOrCompile(def, w.format, w.names, w.chunk)
	if compilable {
		return renderCompiled(w, tmpl, subs)
	}

	w.diag.add(DiagUncompilableTemplate)
	sink := newDirectSink(w.format, subs, w)
	if err := w.walkFragment(def.body, depth+1, sink); err != nil {
		return "", err
	}
	return sink.result(), nil
}
