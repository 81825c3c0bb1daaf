// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "hash/crc32"

// chunkHeader is the 128-byte header at the start of every chunk.
// HeaderChecksum covers bytes [0:120) followed by [128:512)
// (the common-string and template tables); RecordsChecksum covers the
// record region [512:FreeSpaceOffset).
type chunkHeader struct {
	Magic               [8]byte
	FirstRecordNumber   uint64
	LastRecordNumber    uint64
	FirstRecordID       uint64
	LastRecordID        uint64
	HeaderSizeField     uint32
	FreeSpaceOffset     uint32
	RecordsChecksum     uint32
	_                   [68]byte
	Flags               uint32
	HeaderChecksum      uint32
}

// Chunk is one parsed 65536-byte chunk: its header, the record span it
// owns, and whether validation rejected it. A rejected chunk routes to
// headerless recovery; individual record corruption only skips one
// record.
type Chunk struct {
	Index    int
	header   chunkHeader
	data     []byte // the full 65536-byte chunk span
	Rejected bool
	reason   string
}

// parseChunkHeader decodes one chunk's header fields.
func parseChunkHeader(data []byte) (chunkHeader, error) {
	var hdr chunkHeader
	if len(data) < chunkHeaderSize {
		return hdr, ErrOutsideBoundary
	}
	copy(hdr.Magic[:], data[0:8])
	hdr.FirstRecordNumber = leUint64(data[8:])
	hdr.LastRecordNumber = leUint64(data[16:])
	hdr.FirstRecordID = leUint64(data[24:])
	hdr.LastRecordID = leUint64(data[32:])
	hdr.HeaderSizeField = leUint32(data[40:])
	hdr.FreeSpaceOffset = leUint32(data[44:])
	hdr.RecordsChecksum = leUint32(data[48:])
	hdr.Flags = leUint32(data[120:])
	hdr.HeaderChecksum = leUint32(data[124:])
	return hdr, nil
}

// classifyChunk inspects one chunk-sized span and returns a Chunk
// marked healthy or Rejected, never erroring: an unhealthy chunk is
// routed to headerless recovery rather than aborting the whole file.
func classifyChunk(index int, data []byte, validateChecksums bool) Chunk {
	c := Chunk{Index: index, data: data}

	hdr, err := parseChunkHeader(data)
	if err != nil || hdr.Magic != chunkMagic {
		c.Rejected = true
		c.reason = "chunk magic not found"
		return c
	}
	c.header = hdr

	if hdr.HeaderSizeField != chunkHeaderSize {
		c.Rejected = true
		c.reason = "chunk header size field mismatch"
		return c
	}

	if hdr.FreeSpaceOffset < recordRegionStart || hdr.FreeSpaceOffset > uint32(len(data)) {
		c.Rejected = true
		c.reason = "chunk free space offset out of range"
		return c
	}

	if validateChecksums && !chunkChecksumsValid(data, hdr) {
		c.Rejected = true
		c.reason = "chunk checksum mismatch"
		return c
	}

	return c
}

func chunkChecksumsValid(data []byte, hdr chunkHeader) bool {
	headerSpan := make([]byte, 0, 120+384)
	headerSpan = append(headerSpan, data[0:120]...)
	headerSpan = append(headerSpan, data[128:512]...)
	if crc32.ChecksumIEEE(headerSpan) != hdr.HeaderChecksum {
		return false
	}

	if hdr.FreeSpaceOffset > recordRegionStart {
		recordsSpan := data[recordRegionStart:hdr.FreeSpaceOffset]
		if crc32.ChecksumIEEE(recordsSpan) != hdr.RecordsChecksum {
			return false
		}
	}
	return true
}

// records walks the chunk's record region, yielding each successfully
// parsed record in order plus a count of corrupt stretches skipped. A
// magic or trailing-size mismatch advances the scan by 4 bytes rather
// than aborting the chunk; a contiguous run of such advances counts as
// one omitted record.
func (c *Chunk) records() ([]record, int) {
	var out []record
	omitted := 0
	skipping := false
	offset := uint32(recordRegionStart)
	for offset+recordHeaderSize <= c.header.FreeSpaceOffset {
		rec, size, err := parseRecordAt(c.data, offset, c.header.FreeSpaceOffset)
		if err != nil {
			if !skipping {
				omitted++
				skipping = true
			}
			offset += 4
			continue
		}
		skipping = false
		out = append(out, rec)
		offset += size
	}
	return out, omitted
}
