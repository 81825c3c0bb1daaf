// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "github.com/google/uuid"

// templateDef is one template definition found in a chunk: its
// identifying GUID and the span of BinXml that defines it.
type templateDef struct {
	guid       uuid.UUID
	dataOffset uint32
	dataSize   uint32
	body       []byte
}

// templateTable indexes a chunk's template definitions by their
// chunk-relative offset, populated by walking the 32-bucket chained
// hash table at chunk offset 384. A per-bucket visited-count cap
// keeps a cyclic chain from spinning the walk.
type templateTable struct {
	byOffset map[uint32]*templateDef
}

func newTemplateTable(chunk []byte) (*templateTable, error) {
	tt := &templateTable{byOffset: make(map[uint32]*templateDef, templateTableBuckets)}
	if err := tt.walk(chunk); err != nil {
		return tt, err
	}
	return tt, nil
}

func (tt *templateTable) walk(chunk []byte) error {
	for bucket := 0; bucket < templateTableBuckets; bucket++ {
		bucketOff := templateTableOffset + uint32(bucket)*4
		if bucketOff+4 > uint32(len(chunk)) {
			return ErrOutsideBoundary
		}
		off := leUint32(chunk[bucketOff:])
		seen := 0
		for off != 0 && seen < maxBucketChainLength {
			def, next, err := decodeTemplateDefAt(chunk, off)
			if err != nil {
				break
			}
			tt.byOffset[off] = def
			if next == off {
				break
			}
			off = next
			seen++
		}
	}
	return nil
}

// decodeTemplateDefAt decodes the 24-byte template definition header at
// chunk-relative offset off: a 4-byte chain pointer to the next
// definition in the same hash bucket, a 16-byte GUID (mixed-endian, see
// guid.go), and a 4-byte data size, followed by that many bytes of
// BinXml defining the template.
func decodeTemplateDefAt(chunk []byte, off uint32) (*templateDef, uint32, error) {
	const headerSize = 24
	if off+headerSize > uint32(len(chunk)) || off+headerSize < off {
		return nil, 0, ErrOutsideBoundary
	}
	next := leUint32(chunk[off:])
	g, err := decodeWindowsGUID(chunk[off+4 : off+20])
	if err != nil {
		return nil, 0, err
	}
	dataSize := leUint32(chunk[off+20:])

	bodyStart := off + headerSize
	if bodyStart+dataSize > uint32(len(chunk)) || bodyStart+dataSize < bodyStart {
		return nil, 0, ErrOutsideBoundary
	}

	def := &templateDef{
		guid:       g,
		dataOffset: bodyStart,
		dataSize:   dataSize,
		body:       chunk[bodyStart : bodyStart+dataSize],
	}
	return def, next, nil
}

// lookup resolves a template definition by its chunk-relative table
// offset, the form a TemplateInstance back-reference uses.
func (tt *templateTable) lookup(off uint32) (*templateDef, bool) {
	def, ok := tt.byOffset[off]
	return def, ok
}
