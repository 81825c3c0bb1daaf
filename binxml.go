// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "errors"

// ErrUnresolvedSubstitution is returned by an eventSink when asked to
// resolve a substitution token it has no value for.
var ErrUnresolvedSubstitution = errors.New("evtx: substitution index out of range")

// eventSink receives the structural events a BinXml fragment walk
// produces. Two purposes share this one walker: rendering a fragment
// directly (an xmlDirectSink/jsonDirectSink resolves values immediately
// and writes real text) and compiling a template definition into a
// static/slot skeleton (an xmlSkeletonSink/jsonSkeletonSink in
// compiler_xml.go/compiler_json.go).
type eventSink interface {
	openStartElement(name string)
	attributeName(name string)
	endAttribute()
	literalValue(typeCode byte, data []byte) error
	substitutionValue(index uint16, typeHint byte, optional bool) error
	closeStartElement()
	closeEmptyElement()
	endElement(name string)
	cdata(typeCode byte, data []byte) error
	charRef(v uint16)
	entityRef(name string)

	// isSkeleton is true for the template-compile sinks, which must
	// abort (compiler.go's nested-TemplateInstance rule) rather than
	// recurse into a nested template reference.
	isSkeleton() bool

	// writeRaw splices pre-rendered text (the output of resolving a
	// TemplateInstance, whether via the compiled-template zipper or
	// the uncompilable fallback walk, or the element-nesting cap's
	// closing marker) into the sink's current position.
	writeRaw(s string)
}

// binxmlWalker walks one BinXml fragment's tokens against chunk, the
// chunk this fragment's name/template-table offsets are relative to.
type binxmlWalker struct {
	chunk     []byte
	names     *nameTable
	templates *templateTable
	cache     *templateCache
	format    OutputFormat
	diag      *diagState
}

// walkFragment walks data's tokens down to EndOfFile, dispatching each
// token to sink. depth is the level this walk starts at: 0 for a record
// body, one more than the enclosing walk's for an uncompilable template
// body, and 1 for every embedded fragment. Together with this walk's own
// open-element count it enforces maxElementDepth; elements left open by
// an enclosing walk are not counted. Element names are pushed so
// endElement can report the closing tag.
func (w *binxmlWalker) walkFragment(data []byte, depth int, sink eventSink) error {
	if depth > maxElementDepth {
		w.diag.add(DiagRecursionCapHit)
		return nil
	}

	var stack []string
	pos := uint32(0)
	for pos < uint32(len(data)) {
		tok := data[pos]
		base := tok &^ hasMoreDataFlag

		switch base {
		case tokenEndOfFile:
			return nil

		case tokenOpenStartElement:
			if depth+len(stack) >= maxElementDepth {
				w.diag.add(DiagRecursionCapHit)
				if w.format == OutputJSON {
					sink.writeRaw("null")
				} else {
					sink.writeRaw("/>")
				}
				return nil
			}
			name, consumed, err := w.readElementHeader(data, pos)
			if err != nil {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			sink.openStartElement(name)
			stack = append(stack, name)
			pos += consumed

			if tok&hasMoreDataFlag != 0 {
				// The attribute list carries its own 4-byte size prefix.
				if pos+4 > uint32(len(data)) {
					w.diag.add(DiagTruncatedBody)
					return nil
				}
				attrSize := leUint32(data[pos:])
				pos += 4
				end, err := w.walkAttributes(data[pos:clampLen(data, pos, attrSize)], sink)
				if err != nil {
					w.diag.add(DiagTruncatedBody)
					return nil
				}
				pos += end
			}

		case tokenCloseStartElement:
			sink.closeStartElement()
			pos++

		case tokenCloseEmptyElement:
			sink.closeEmptyElement()
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			pos++

		case tokenEndElement:
			if len(stack) > 0 {
				sink.endElement(stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			pos++

		case tokenValue:
			if pos+2 > uint32(len(data)) {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			typeCode := data[pos+1]
			n, err := w.readLiteralValue(data, pos+2, typeCode, sink.literalValue)
			if err != nil {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			pos += 2 + n

		case tokenAttribute:
			// Attribute tokens outside the inline attribute list (one
			// that immediately follows OpenStartElementAttr) are not
			// produced by any known writer; treat as end of usable
			// data rather than guess at a layout.
			return nil

		case tokenCDataSection:
			n, err := w.readLiteralValue(data, pos+1, valTypeUnicodeString, sink.cdata)
			if err != nil {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			pos += 1 + n

		case tokenCharRef:
			if pos+3 > uint32(len(data)) {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			sink.charRef(uint16(data[pos+1]) | uint16(data[pos+2])<<8)
			pos += 3

		case tokenEntityRef:
			name, nconsumed, err := w.names.resolveNameRef(tokenChunkOffset(w.chunk, data, pos+1))
			if err != nil {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			sink.entityRef(name)
			pos += 1 + nconsumed

		case tokenPiTarget:
			// Consumed but not rendered; processing instructions carry
			// no event payload.
			_, nconsumed, err := w.names.resolveNameRef(tokenChunkOffset(w.chunk, data, pos+1))
			if err != nil {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			pos += 1 + nconsumed

		case tokenPiData:
			// A bare PiData without a preceding PiTarget is a no-op;
			// either way its character payload is skipped, not rendered.
			if pos+3 > uint32(len(data)) {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			chars := uint32(uint16(data[pos+1]) | uint16(data[pos+2])<<8)
			pos += 3 + chars*2

		case tokenTemplateInstance:
			n, err := w.walkTemplateInstance(data[pos+1:], depth, sink)
			if err == errNestedTemplateInstance {
				return err
			}
			if err != nil {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			pos += 1 + n

		case tokenNormalSubstitution, tokenOptionalSubstitution:
			if pos+4 > uint32(len(data)) {
				w.diag.add(DiagTruncatedBody)
				return nil
			}
			index := uint16(data[pos+1]) | uint16(data[pos+2])<<8
			typeHint := data[pos+3]
			if err := sink.substitutionValue(index, typeHint, base == tokenOptionalSubstitution); err != nil {
				w.diag.add(DiagUnresolvedTemplate)
			}
			pos += 4

		case tokenFragmentHeader:
			pos += 4 // token(1) + version(1) + flags(1) + marker placeholder(1)

		default:
			w.diag.add(DiagTruncatedBody)
			return nil
		}
	}
	return nil
}

func clampLen(data []byte, pos, n uint32) uint32 {
	if pos+n > uint32(len(data)) {
		return uint32(len(data))
	}
	return pos + n
}

// readElementHeader reads an OpenStartElement header: 2 bytes
// dependency id, 4 bytes element data size (advisory; the walker is
// token-delimited), then a name reference. It returns the decoded name
// and the number of bytes consumed by the header itself.
func (w *binxmlWalker) readElementHeader(data []byte, pos uint32) (name string, consumed uint32, err error) {
	if pos+7 > uint32(len(data)) {
		return "", 0, ErrOutsideBoundary
	}
	nameRefOffset := tokenChunkOffset(w.chunk, data, pos+7)
	text, nconsumed, err := w.names.resolveNameRef(nameRefOffset)
	if err != nil {
		return "", 0, err
	}
	return text, 7 + nconsumed, nil
}

// tokenChunkOffset converts a position within the current fragment
// span data into its offset relative to the owning chunk, since name
// references are always chunk-relative. Fragments are slices of the
// chunk's backing array, so this is pointer arithmetic, not a copy.
func tokenChunkOffset(chunk []byte, data []byte, pos uint32) uint32 {
	return uint32(cap(chunk)-cap(data)) + pos
}

// walkAttributes walks the size-delimited attribute list following an
// OpenStartElement token with hasMoreDataFlag set: a sequence of
// Attribute tokens, each a name reference followed by content tokens
// up to the next break token (another Attribute, a close token, or
// EndOfFile).
func (w *binxmlWalker) walkAttributes(data []byte, sink eventSink) (uint32, error) {
	pos := uint32(0)
	inAttr := false
	endAttr := func() {
		if inAttr {
			sink.endAttribute()
			inAttr = false
		}
	}
	for pos < uint32(len(data)) {
		tok := data[pos]
		base := tok &^ hasMoreDataFlag
		switch base {
		case tokenAttribute:
			endAttr()
			nameRefOffset := tokenChunkOffset(w.chunk, data, pos+1)
			name, nconsumed, err := w.names.resolveNameRef(nameRefOffset)
			if err != nil {
				return pos, err
			}
			sink.attributeName(name)
			inAttr = true
			pos += 1 + nconsumed

		case tokenValue:
			if pos+2 > uint32(len(data)) {
				return pos, ErrOutsideBoundary
			}
			typeCode := data[pos+1]
			n, err := w.readLiteralValue(data, pos+2, typeCode, sink.literalValue)
			if err != nil {
				return pos, err
			}
			pos += 2 + n

		case tokenNormalSubstitution, tokenOptionalSubstitution:
			if pos+4 > uint32(len(data)) {
				return pos, ErrOutsideBoundary
			}
			index := uint16(data[pos+1]) | uint16(data[pos+2])<<8
			typeHint := data[pos+3]
			_ = sink.substitutionValue(index, typeHint, base == tokenOptionalSubstitution)
			pos += 4

		case tokenCharRef:
			if pos+3 > uint32(len(data)) {
				return pos, ErrOutsideBoundary
			}
			sink.charRef(uint16(data[pos+1]) | uint16(data[pos+2])<<8)
			pos += 3

		case tokenEntityRef:
			name, nconsumed, err := w.names.resolveNameRef(tokenChunkOffset(w.chunk, data, pos+1))
			if err != nil {
				return pos, err
			}
			sink.entityRef(name)
			pos += 1 + nconsumed

		case tokenEndOfFile, tokenCloseStartElement, tokenCloseEmptyElement, tokenEndElement:
			endAttr()
			return pos, nil

		default:
			return pos, ErrOutsideBoundary
		}
	}
	endAttr()
	return pos, nil
}

// readLiteralValue reads a length-prefixed value (2-byte byte count,
// then that many bytes) and dispatches it to consume, returning the
// total bytes consumed including the length prefix.
func (w *binxmlWalker) readLiteralValue(data []byte, pos uint32, typeCode byte, consume func(byte, []byte) error) (uint32, error) {
	if pos+2 > uint32(len(data)) {
		return 0, ErrOutsideBoundary
	}
	n := uint32(uint16(data[pos]) | uint16(data[pos+1])<<8)
	start := pos + 2
	if start+n > uint32(len(data)) {
		return 0, ErrOutsideBoundary
	}
	if err := consume(typeCode, data[start:start+n]); err != nil {
		return 0, err
	}
	return 2 + n, nil
}

// renderEmbedded walks an embedded BinXml fragment (substitution type
// 0x21) into a fresh direct sink of the walker's own output flavor and
// returns the rendered text.
func (w *binxmlWalker) renderEmbedded(data []byte, depth int) (string, error) {
	sink := newDirectSink(w.format, nil, w)
	if err := w.walkFragment(data, depth+1, sink); err != nil {
		return "", err
	}
	return sink.result(), nil
}
