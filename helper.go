// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Errors returned by fatal, file-level conditions. These abort
// parsing outright, unlike chunk rejection, record corruption, and
// render degradation, which are recorded as diagnostics on the object
// that encountered them.
var (
	// ErrTooSmall is returned when the image is smaller than the
	// 128-byte file header.
	ErrTooSmall = errors.New("evtx: file image smaller than a file header")

	// ErrFileMagicNotFound is returned when the 8-byte file signature at
	// offset 0 doesn't match "ElfFile\x00".
	ErrFileMagicNotFound = errors.New("evtx: file magic not found")

	// ErrOutsideBoundary is returned when attempting to read past the end
	// of the file image.
	ErrOutsideBoundary = errors.New("evtx: reading data outside file image boundary")
)

// readUint64 reads a little-endian uint64 at offset, bounds-checked
// against the image size.
func (f *FileImage) readUint64(offset uint32) (uint64, error) {
	if offset+8 > f.size || offset+8 < offset {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint64(f.data[offset:]), nil
}

// readUint32 reads a little-endian uint32 at offset.
func (f *FileImage) readUint32(offset uint32) (uint32, error) {
	if offset+4 > f.size || offset+4 < offset {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint32(f.data[offset:]), nil
}

// readUint16 reads a little-endian uint16 at offset.
func (f *FileImage) readUint16(offset uint32) (uint16, error) {
	if offset+2 > f.size || offset+2 < offset {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint16(f.data[offset:]), nil
}

// readUint8 reads a single byte at offset.
func (f *FileImage) readUint8(offset uint32) (uint8, error) {
	if offset+1 > f.size {
		return 0, ErrOutsideBoundary
	}
	return f.data[offset], nil
}

// structUnpack decodes a fixed-size little-endian struct from the
// image: overflow-checked boundary math, then a bytes.Reader fed to
// binary.Read.
func (f *FileImage) structUnpack(iface interface{}, offset, size uint32) error {
	totalSize := offset + size
	if (totalSize > offset) != (size > 0) {
		return ErrOutsideBoundary
	}
	if offset >= f.size || totalSize > f.size {
		return ErrOutsideBoundary
	}
	r := bytes.NewReader(f.data[offset:totalSize])
	return binary.Read(r, binary.LittleEndian, iface)
}

// readBytesAt returns a bounds-checked sub-slice of the image. The
// returned slice aliases the image's backing array; callers must not
// retain it past the image's lifetime without copying.
func (f *FileImage) readBytesAt(offset, size uint32) ([]byte, error) {
	totalSize := offset + size
	if (totalSize > offset) != (size > 0) {
		return nil, ErrOutsideBoundary
	}
	if offset >= f.size || totalSize > f.size {
		return nil, ErrOutsideBoundary
	}
	return f.data[offset:totalSize], nil
}

// isBitSet returns true when bit pos is set in n.
func isBitSet(n uint32, pos uint) bool {
	return n&(1<<pos) != 0
}
