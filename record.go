// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"errors"
	"time"
)

// ErrRecordCorruption marks a record whose header or trailing size
// copy failed to validate; the scan skips past it, it is never fatal.
var ErrRecordCorruption = errors.New("evtx: record corruption")

// recordHeader is the 24-byte header at the start of every record.
type recordHeader struct {
	Magic       uint32
	Size        uint32
	RecordID    uint64
	WrittenTime uint64
}

// record is one decoded record header plus the body span it wraps.
type record struct {
	header recordHeader
	body   []byte // span over the BinXml fragment, offset 24 to Size-4
	offset uint32 // chunk-relative offset of the record's start
}

// filetimeEpoch is 1601-01-01T00:00:00Z, the FILETIME zero point.
var filetimeEpoch = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

// filetimeToTime converts a 100ns-tick FILETIME value to a time.Time.
// Used for the one-off record-header timestamp; value.go's per-value
// FILETIME formatter avoids this path deliberately, see value.go.
func filetimeToTime(ticks uint64) time.Time {
	// Whole days first: ticks*100 ns overflows time.Duration past 1893.
	const ticksPerDay = 86400 * 10_000_000
	return filetimeEpoch.AddDate(0, 0, int(ticks/ticksPerDay)).Add(time.Duration(ticks%ticksPerDay) * 100)
}

// parseRecordAt decodes one record at chunkRelOffset within chunk data
// (the full 65536-byte chunk span), validating the header magic, the
// declared Size against the chunk's free-space boundary, and the
// trailing 4-byte size copy.
func parseRecordAt(chunkData []byte, chunkRelOffset, freeSpaceOffset uint32) (record, uint32, error) {
	var rec record
	if chunkRelOffset+recordHeaderSize > freeSpaceOffset {
		return rec, 0, ErrRecordCorruption
	}

	magic := leUint32(chunkData[chunkRelOffset:])
	if magic != recordMagic {
		return rec, 0, ErrRecordCorruption
	}

	size := leUint32(chunkData[chunkRelOffset+4:])
	if size < recordHeaderSize+4 || chunkRelOffset+size > freeSpaceOffset {
		return rec, 0, ErrRecordCorruption
	}

	trailingSize := leUint32(chunkData[chunkRelOffset+size-4:])
	if trailingSize != size {
		return rec, 0, ErrRecordCorruption
	}

	rec.header = recordHeader{
		Magic:       magic,
		Size:        size,
		RecordID:    leUint64(chunkData[chunkRelOffset+8:]),
		WrittenTime: leUint64(chunkData[chunkRelOffset+16:]),
	}
	rec.body = chunkData[chunkRelOffset+recordHeaderSize : chunkRelOffset+size-4]
	rec.offset = chunkRelOffset
	return rec, size, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	return uint64(leUint32(b)) | uint64(leUint32(b[4:]))<<32
}
