// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

// chunkBuilder assembles a single 65536-byte chunk span byte by byte, the
// way a real writer would, tracking its own cursor so offsets used for
// self-referential inline names fall out of the write sequence instead of
// being hand-computed magic numbers.
type chunkBuilder struct {
	buf []byte
	pos int

	// attrSizePatch is the offset of the open attribute list's 4-byte
	// size prefix, patched when the list is closed. -1 when none open.
	attrSizePatch int
}

func newChunkBuilder() *chunkBuilder {
	return &chunkBuilder{buf: make([]byte, chunkSize), attrSizePatch: -1}
}

func (b *chunkBuilder) seek(off int) { b.pos = off }
func (b *chunkBuilder) offset() int  { return b.pos }

func (b *chunkBuilder) u8(v byte) {
	b.buf[b.pos] = v
	b.pos++
}

func (b *chunkBuilder) u16(v uint16) {
	b.buf[b.pos] = byte(v)
	b.buf[b.pos+1] = byte(v >> 8)
	b.pos += 2
}

func (b *chunkBuilder) u32(v uint32) {
	b.buf[b.pos] = byte(v)
	b.buf[b.pos+1] = byte(v >> 8)
	b.buf[b.pos+2] = byte(v >> 16)
	b.buf[b.pos+3] = byte(v >> 24)
	b.pos += 4
}

func (b *chunkBuilder) u32At(off int, v uint32) {
	b.buf[off] = byte(v)
	b.buf[off+1] = byte(v >> 8)
	b.buf[off+2] = byte(v >> 16)
	b.buf[off+3] = byte(v >> 24)
}

func (b *chunkBuilder) u64(v uint64) {
	b.u32(uint32(v))
	b.u32(uint32(v >> 32))
}

func (b *chunkBuilder) raw(p []byte) {
	copy(b.buf[b.pos:], p)
	b.pos += len(p)
}

// asciiUTF16 writes s as UTF-16LE code units, one byte pair per rune,
// ASCII-only (sufficient for every name/value this test package builds).
func (b *chunkBuilder) asciiUTF16(s string) {
	for i := 0; i < len(s); i++ {
		b.u8(s[i])
		b.u8(0)
	}
}

// inlineName writes one inline element/attribute name definition at the
// builder's current position: a self-referential chain pointer (the
// signal resolveNameRef uses to decide "defined right here" instead of
// "look up elsewhere"), a hash, a UTF-16LE string, and its NUL terminator.
func (b *chunkBuilder) inlineName(s string) {
	self := uint32(b.offset())
	b.u32(self) // chain/self-pointer
	b.u16(0)    // hash, unchecked by these tests
	b.u16(uint16(len(s)))
	b.asciiUTF16(s)
	b.u16(0) // NUL terminator
}

// openElement writes a no-attribute OpenStartElement token with an
// inline name, mirroring readElementHeader's 7-byte fixed header
// (token + dep id + data size) followed by a name reference.
func (b *chunkBuilder) openElement(name string) {
	b.u8(tokenOpenStartElement)
	b.u16(0) // dependency id
	b.u32(0) // element data size, advisory
	b.inlineName(name)
}

// openElementWithAttrs writes an OpenStartElement token with the
// hasMoreData flag set, followed by the attribute list's 4-byte size
// prefix. The size is backpatched by the next closeStartElement or
// closeEmptyElement call.
func (b *chunkBuilder) openElementWithAttrs(name string) {
	b.u8(tokenOpenStartElementAttr)
	b.u16(0)
	b.u32(0)
	b.inlineName(name)
	b.attrSizePatch = b.offset()
	b.u32(0) // attribute list size, patched on close
}

func (b *chunkBuilder) patchAttrSize() {
	if b.attrSizePatch < 0 {
		return
	}
	size := uint32(b.offset() - (b.attrSizePatch + 4))
	b.u32At(b.attrSizePatch, size)
	b.attrSizePatch = -1
}

// attribute writes one Attribute token with an inline name and a
// literal UTF-16LE value, the shape walkAttributes expects inside an
// OpenStartElementAttr's attribute list.
func (b *chunkBuilder) attribute(name, value string) {
	b.u8(tokenAttribute)
	b.inlineName(name)
	b.unicodeValue(value)
}

// attributeSub writes one Attribute token whose value is a substitution.
func (b *chunkBuilder) attributeSub(name string, index uint16, typeHint byte, optional bool) {
	b.u8(tokenAttribute)
	b.inlineName(name)
	if optional {
		b.optionalSubstitution(index, typeHint)
	} else {
		b.normalSubstitution(index, typeHint)
	}
}

// normalSubstitution writes a NormalSubstitution token: index low byte,
// index high byte, then the declared type hint.
func (b *chunkBuilder) normalSubstitution(index uint16, typeHint byte) {
	b.u8(tokenNormalSubstitution)
	b.u8(byte(index))
	b.u8(byte(index >> 8))
	b.u8(typeHint)
}

// optionalSubstitution is the OptionalSubstitution-flavored equivalent
// of normalSubstitution, whose value is omitted entirely when it
// resolves to valTypeNull or zero length.
func (b *chunkBuilder) optionalSubstitution(index uint16, typeHint byte) {
	b.u8(tokenOptionalSubstitution)
	b.u8(byte(index))
	b.u8(byte(index >> 8))
	b.u8(typeHint)
}

func (b *chunkBuilder) closeStartElement() {
	b.patchAttrSize()
	b.u8(tokenCloseStartElement)
}

func (b *chunkBuilder) closeEmptyElement() {
	b.patchAttrSize()
	b.u8(tokenCloseEmptyElement)
}

func (b *chunkBuilder) endElement() { b.u8(tokenEndElement) }
func (b *chunkBuilder) endOfFile()  { b.u8(tokenEndOfFile) }

func (b *chunkBuilder) fragmentHeader() {
	b.u8(tokenFragmentHeader)
	b.u8(1) // version
	b.u8(1) // flags
	b.u8(0) // marker placeholder, unused
}

// unicodeValue writes a Value token carrying a UTF-16LE string.
func (b *chunkBuilder) unicodeValue(s string) {
	b.u8(tokenValue)
	b.u8(valTypeUnicodeString)
	b.u16(uint16(len(s) * 2))
	b.asciiUTF16(s)
}

// charRef writes a CharRef token carrying v.
func (b *chunkBuilder) charRef(v uint16) {
	b.u8(tokenCharRef)
	b.u16(v)
}

// templateInstanceInline writes a TemplateInstance token whose
// definition follows in-line (the definition offset names the position
// right after the offset field), with bodyFn writing the template body
// and subs supplying the substitution vector as (typeCode, valueBytes)
// pairs.
func (b *chunkBuilder) templateInstanceInline(guid [16]byte, bodyFn func(*chunkBuilder), subs []testSub) {
	b.u8(tokenTemplateInstance)
	b.u8(0)  // reserved
	b.u32(0) // reserved
	defOffset := uint32(b.offset() + 4)
	b.u32(defOffset)

	b.u32(0) // next-definition pointer
	b.raw(guid[:])
	sizePatch := b.offset()
	b.u32(0) // body size, patched below
	bodyStart := b.offset()
	bodyFn(b)
	b.u32At(sizePatch, uint32(b.offset()-bodyStart))

	b.writeSubVector(subs)
}

// templateInstanceBackRef writes a TemplateInstance token referencing a
// definition already present in the chunk at defOffset.
func (b *chunkBuilder) templateInstanceBackRef(defOffset uint32, subs []testSub) {
	b.u8(tokenTemplateInstance)
	b.u8(0)
	b.u32(0)
	b.u32(defOffset)
	b.writeSubVector(subs)
}

type testSub struct {
	typeCode byte
	data     []byte
}

func (b *chunkBuilder) writeSubVector(subs []testSub) {
	b.u32(uint32(len(subs)))
	for _, s := range subs {
		b.u16(uint16(len(s.data)))
		b.u8(s.typeCode)
		b.u8(0) // padding
	}
	for _, s := range subs {
		b.raw(s.data)
	}
}

// templateDefinition writes a standalone template definition at the
// builder's current position (for back-reference tests), returning its
// chunk-relative offset.
func (b *chunkBuilder) templateDefinition(guid [16]byte, bodyFn func(*chunkBuilder)) uint32 {
	off := uint32(b.offset())
	b.u32(0) // next-definition pointer
	b.raw(guid[:])
	sizePatch := b.offset()
	b.u32(0)
	bodyStart := b.offset()
	bodyFn(b)
	b.u32At(sizePatch, uint32(b.offset()-bodyStart))
	return off
}

// buildRecord writes a record header plus body at the builder's current
// position, returning the record's chunk-relative start offset. body is
// written by bodyFn against the same builder positioned at the right
// spot so its offsets stay self-consistent with the outer chunk.
func (b *chunkBuilder) buildRecord(recordID uint64, bodyFn func(*chunkBuilder)) uint32 {
	start := b.offset()
	headerOff := start
	b.seek(headerOff + recordHeaderSize)
	bodyFn(b)
	end := b.offset()

	size := uint32(end-headerOff) + 4 // + trailing size copy
	b.u32At(headerOff, recordMagic)
	b.u32At(headerOff+4, size)
	b.u32At(headerOff+8, uint32(recordID))
	b.u32At(headerOff+12, 0)
	b.u32At(headerOff+16, 0)
	b.u32At(headerOff+20, 0)

	b.seek(int(uint32(headerOff) + size - 4))
	b.u32(size)
	return uint32(headerOff)
}

// finishChunk stamps the chunk header's magic, header-size field, and
// free-space offset, leaving checksums at zero (tests run with
// ValidateChecksums: false).
func (b *chunkBuilder) finishChunk() []byte {
	copy(b.buf[0:8], chunkMagic[:])
	b.u32At(40, chunkHeaderSize)
	freeSpace := uint32(b.offset())
	b.u32At(44, freeSpace)
	return b.buf
}

// buildMinimalImage assembles a complete file image: one file header
// block followed by one chunk containing a single record whose BinXml
// fragment is "<Foo>bar</Foo>".
func buildMinimalImage() []byte {
	img := make([]byte, fileHeaderBlockSize+chunkSize)
	copy(img[0:8], fileMagic[:])
	// MajorVersion is the uint16 at byte offset 38 in FileHeader's
	// sequential binary.Read layout (Magic[8] + three uint64 + uint32 +
	// MinorVersion uint16 precede it).
	img[38] = 3
	img[39] = 0

	cb := newChunkBuilder()
	cb.seek(recordRegionStart)
	cb.buildRecord(1, func(rb *chunkBuilder) {
		rb.fragmentHeader()
		rb.openElement("Foo")
		rb.closeStartElement()
		rb.unicodeValue("bar")
		rb.endElement()
		rb.endOfFile()
	})
	chunkBytes := cb.finishChunk()
	copy(img[fileHeaderBlockSize:], chunkBytes)
	return img
}
