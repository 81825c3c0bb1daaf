// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "hash/crc32"

// FileHeader is the 128-byte header at offset 0 of every .evtx file.
type FileHeader struct {
	Magic           [8]byte
	FirstChunkNumber uint64
	LastChunkNumber  uint64
	NextRecordID     uint64
	HeaderSize       uint32
	MinorVersion     uint16
	MajorVersion     uint16
	HeaderBlockSize  uint16
	ChunkCount       uint16
	_                [76]byte
	Flags            uint32
	Checksum         uint32
}

// parseFileHeader decodes the file header and validates its magic.
func (f *FileImage) parseFileHeader() (FileHeader, error) {
	var hdr FileHeader
	if f.size < fileHeaderSize {
		return hdr, ErrTooSmall
	}
	if err := f.structUnpack(&hdr, 0, fileHeaderSize); err != nil {
		return hdr, err
	}
	if hdr.Magic != fileMagic {
		return hdr, ErrFileMagicNotFound
	}
	if hdr.MajorVersion != 3 {
		f.logger.Warnf("unexpected file format version %d.%d",
			hdr.MajorVersion, hdr.MinorVersion)
	}
	return hdr, nil
}

// dirty reports whether the log was not cleanly closed (FileFlagDirty).
func (h FileHeader) dirty() bool {
	return h.Flags&fileFlagDirty != 0
}

// full reports whether the log reached its configured retention cap.
func (h FileHeader) full() bool {
	return h.Flags&fileFlagFull != 0
}

// noCRC32 reports whether per-chunk CRC32 validation was disabled when
// this file was written.
func (h FileHeader) noCRC32() bool {
	return h.Flags&fileFlagNoCRC32 != 0
}

// checksumValid recomputes the CRC32 over bytes [0:120) and compares it
// against the stored Checksum field.
func (f *FileImage) checksumValid(h FileHeader) bool {
	span, err := f.readBytesAt(0, 120)
	if err != nil {
		return false
	}
	return crc32.ChecksumIEEE(span) == h.Checksum
}
