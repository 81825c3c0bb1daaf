// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"golang.org/x/text/encoding/unicode"
)

// nameEntry is one decoded element/attribute name, cached by its
// chunk-relative offset so repeated references (common across records
// sharing a template) decode once.
type nameEntry struct {
	hash uint16
	text string
}

// nameTable is a per-chunk cache of decoded BinXml names, seeded from
// the 64-entry common-string table at chunk offset 128 and grown
// lazily as the token walker dereferences name offsets it hasn't seen.
type nameTable struct {
	chunk   []byte
	entries map[uint32]nameEntry
}

func newNameTable(chunk []byte) *nameTable {
	nt := newLazyNameTable(chunk)
	nt.preload()
	return nt
}

// newLazyNameTable skips the common-string preload; the headerless
// recovery path uses it because a chunk with a corrupt header can't be
// trusted to carry an intact string table, while individual lazy
// decodes stay bounds-checked.
func newLazyNameTable(chunk []byte) *nameTable {
	return &nameTable{chunk: chunk, entries: make(map[uint32]nameEntry, commonStringTableEntries)}
}

// preload walks the common-string table's bucket chains, decoding every
// entry up front. A chunk with no common strings (all buckets zero) is
// a no-op, not an error.
func (nt *nameTable) preload() {
	for bucket := 0; bucket < commonStringTableEntries; bucket++ {
		off := commonStringTableOffset + uint32(bucket)*4
		if off+4 > uint32(len(nt.chunk)) {
			return
		}
		next := leUint32(nt.chunk[off:])
		seen := 0
		for next != 0 && seen < maxBucketChainLength {
			link, _, _, err := nt.decodeAt(next)
			if err != nil || link == next {
				break
			}
			next = link
			seen++
		}
	}
}

// lookup returns the decoded name at chunk-relative offset off,
// decoding and caching it on first access.
func (nt *nameTable) lookup(off uint32) (string, error) {
	if e, ok := nt.entries[off]; ok {
		return e.text, nil
	}
	_, text, _, err := nt.decodeAt(off)
	return text, err
}

// decodeAt decodes the name record at off: a 4-byte chain pointer to
// the next entry in this bucket (0 if last), a uint16 hash, a uint16
// char count, that many UTF-16LE code units (not NUL-terminated; the
// count is authoritative), and a 2-byte NUL terminator. It caches the
// text and returns both the chain pointer (for preload's bucket walk)
// and the total byte span consumed (for an inline definition read at
// an element/attribute token).
func (nt *nameTable) decodeAt(off uint32) (chain uint32, text string, consumed uint32, err error) {
	if off+8 > uint32(len(nt.chunk)) {
		return 0, "", 0, ErrOutsideBoundary
	}
	chain = leUint32(nt.chunk[off:])
	hash := uint16(nt.chunk[off+4]) | uint16(nt.chunk[off+5])<<8
	charCount := uint16(nt.chunk[off+6]) | uint16(nt.chunk[off+7])<<8
	byteLen := uint32(charCount) * 2
	start := off + 8
	if start+byteLen+2 > uint32(len(nt.chunk)) {
		return 0, "", 0, ErrOutsideBoundary
	}
	raw := nt.chunk[start : start+byteLen]

	text, err = decodeUTF16LE(raw)
	if err != nil {
		return 0, "", 0, err
	}
	nt.entries[off] = nameEntry{hash: hash, text: text}
	return chain, text, byteLen + 10, nil
}

// resolveNameRef reads the 4-byte name reference at tokenOffset: if it
// points at tokenOffset itself the name is defined inline right there,
// else it's a back-reference into the name table, already decoded or
// decoded now.
func (nt *nameTable) resolveNameRef(tokenOffset uint32) (text string, consumed uint32, err error) {
	if tokenOffset+4 > uint32(len(nt.chunk)) {
		return "", 0, ErrOutsideBoundary
	}
	nameOffset := leUint32(nt.chunk[tokenOffset:])
	if nameOffset == tokenOffset {
		_, text, consumed, err = nt.decodeAt(tokenOffset)
		return text, consumed, err
	}
	text, err = nt.lookup(nameOffset)
	return text, 4, err
}

// decodeUTF16LE decodes a UTF-16LE byte span using the x/text decoder,
// with a pre-pass replacing any unpaired surrogate with U+FFFD since
// the decoder otherwise errors out instead of substituting.
func decodeUTF16LE(b []byte) (string, error) {
	b = replaceUnpairedSurrogates(b)
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// replaceUnpairedSurrogates scans 16-bit code units and substitutes
// U+FFFD for any surrogate half that isn't part of a valid pair.
func replaceUnpairedSurrogates(b []byte) []byte {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	out := make([]byte, len(b))
	copy(out, b)
	for i := 0; i+1 < len(out); i += 2 {
		unit := uint16(out[i]) | uint16(out[i+1])<<8
		switch {
		case unit >= 0xD800 && unit <= 0xDBFF: // high surrogate
			if i+3 < len(out) {
				next := uint16(out[i+2]) | uint16(out[i+3])<<8
				if next >= 0xDC00 && next <= 0xDFFF {
					i += 2
					continue
				}
			}
			writeReplacementChar(out, i)
		case unit >= 0xDC00 && unit <= 0xDFFF: // unpaired low surrogate
			writeReplacementChar(out, i)
		}
	}
	return out
}

func writeReplacementChar(b []byte, i int) {
	b[i], b[i+1] = 0xFD, 0xFF
}
