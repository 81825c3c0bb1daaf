// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

// BinXml token bytes. The high bit 0x40 (hasMoreData) marks an
// OpenStartElement with an attribute list, or a Value/Attribute/
// CDataSection/CharRef/EntityRef token with a continuation.
const (
	tokenEndOfFile            = 0x00
	tokenOpenStartElement     = 0x01
	tokenOpenStartElementAttr = 0x41
	tokenCloseStartElement    = 0x02
	tokenCloseEmptyElement    = 0x03
	tokenEndElement           = 0x04
	tokenValue                = 0x05
	tokenValueAttr            = 0x45
	tokenAttribute            = 0x06
	tokenAttributeAttr        = 0x46
	tokenCDataSection         = 0x07
	tokenCDataSectionAttr     = 0x47
	tokenCharRef              = 0x08
	tokenCharRefAttr          = 0x48
	tokenEntityRef            = 0x09
	tokenEntityRefAttr        = 0x49
	tokenPiTarget             = 0x0A
	tokenPiData               = 0x0B
	tokenTemplateInstance     = 0x0C
	tokenNormalSubstitution   = 0x0D
	tokenOptionalSubstitution = 0x0E
	tokenFragmentHeader       = 0x0F

	hasMoreDataFlag = 0x40
)

// Value type codes, as they appear in substitution descriptors and
// TemplateInstance argument maps.
const (
	valTypeNull           = 0x00
	valTypeUnicodeString  = 0x01
	valTypeAnsiString     = 0x02
	valTypeInt8           = 0x03
	valTypeUint8          = 0x04
	valTypeInt16          = 0x05
	valTypeUint16         = 0x06
	valTypeInt32          = 0x07
	valTypeUint32         = 0x08
	valTypeInt64          = 0x09
	valTypeUint64         = 0x0A
	valTypeReal32         = 0x0B
	valTypeReal64         = 0x0C
	valTypeBool           = 0x0D
	valTypeBinary         = 0x0E
	valTypeGUID           = 0x0F
	valTypeSizeT          = 0x10
	valTypeFiletime       = 0x11
	valTypeSystemtime     = 0x12
	valTypeSID            = 0x13
	valTypeHexInt32       = 0x14
	valTypeHexInt64       = 0x15
	valTypeEvtHandle      = 0x20
	valTypeEmbeddedBinXml = 0x21
	valTypeEvtXml         = 0x23

	// valTypeArrayFlag, when set on any of the scalar type codes above,
	// indicates an array-of-that-type substitution.
	valTypeArrayFlag = 0x80
)

// File and chunk magic values.
var (
	fileMagic  = [8]byte{'E', 'l', 'f', 'F', 'i', 'l', 'e', 0x00}
	chunkMagic = [8]byte{'E', 'l', 'f', 'C', 'h', 'n', 'k', 0x00}
)

// Record magic, a little-endian 32-bit constant at the start of every
// record header.
const recordMagic = 0x00002A2A

// Structural size constants fixed by the file format.
const (
	fileHeaderSize      = 128
	fileHeaderBlockSize = 4096
	chunkSize           = 65536
	chunkHeaderSize     = 128

	commonStringTableOffset  = 128
	commonStringTableSize    = 256
	commonStringTableEntries = 64

	templateTableOffset  = 384
	templateTableSize    = 128
	templateTableBuckets = 32

	recordRegionStart = 512
	recordHeaderSize  = 24

	// maxElementDepth bounds BinXml element nesting within one fragment
	// walk. An uncompilable template body's walk starts one level above
	// its enclosing walk's starting level and an embedded fragment's walk
	// starts at 1; elements open in an enclosing walk do not count.
	maxElementDepth = 64

	// maxBucketChainLength caps a single hash bucket's linked-list walk
	// so a cyclic chain cannot spin the preload forever.
	maxBucketChainLength = 32
)

// File header flag bits.
const (
	fileFlagDirty   = 0x1
	fileFlagFull    = 0x2
	fileFlagNoCRC32 = 0x4
)
