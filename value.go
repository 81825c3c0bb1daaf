// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"math"
	"strconv"
	"strings"
)

// valueFormatter renders one scalar value's raw bytes as text into
// sink. Array and string formatters get the whole span; fixed-size
// scalar formatters are called once per element by formatArray.
type valueFormatter func(sink *textSink, data []byte) error

// formatters is the single dispatch table shared by the template
// renderer's zipper and the token walker's fallback path: a closed
// tagged dispatch over the type codes, not a polymorphic object.
var formatters = map[byte]valueFormatter{
	valTypeNull:          formatNull,
	valTypeUnicodeString: formatUnicodeString,
	valTypeAnsiString:    formatAnsiString,
	valTypeInt8:          formatInt8,
	valTypeUint8:         formatUint8,
	valTypeInt16:         formatInt16,
	valTypeUint16:        formatUint16,
	valTypeInt32:         formatInt32,
	valTypeUint32:        formatUint32,
	valTypeInt64:         formatInt64,
	valTypeUint64:        formatUint64,
	valTypeReal32:        formatReal32,
	valTypeReal64:        formatReal64,
	valTypeBool:          formatBool,
	valTypeBinary:        formatBinary,
	valTypeGUID:          formatGUID,
	valTypeSizeT:         formatSizeT,
	valTypeFiletime:      formatFiletime,
	valTypeSystemtime:    formatSystemtime,
	valTypeSID:           formatSID,
	valTypeHexInt32:      formatHexInt32,
	valTypeHexInt64:      formatHexInt64,
	valTypeEvtHandle:     formatBinary,
	valTypeEvtXml:        formatBinary,
}

// fixedElementSize returns the per-element byte width for type codes
// that support array substitution as a fixed-stride split, or 0 for
// the variable-width string types (NUL-split instead).
func fixedElementSize(typeCode byte) uint32 {
	switch typeCode {
	case valTypeInt8, valTypeUint8:
		return 1
	case valTypeInt16, valTypeUint16:
		return 2
	case valTypeInt32, valTypeUint32, valTypeReal32, valTypeHexInt32, valTypeBool:
		return 4
	case valTypeInt64, valTypeUint64, valTypeReal64, valTypeHexInt64,
		valTypeSizeT, valTypeFiletime, valTypeEvtHandle:
		return 8
	case valTypeGUID:
		return 16
	case valTypeSystemtime:
		return 16
	default:
		return 0
	}
}

// formatValue looks up and applies the formatter for typeCode.
func formatValue(sink *textSink, typeCode byte, data []byte) error {
	base := typeCode &^ valTypeArrayFlag
	if typeCode&valTypeArrayFlag != 0 {
		return formatArray(sink, base, data)
	}
	fn, ok := formatters[base]
	if !ok {
		return formatBinary(sink, data)
	}
	return fn(sink, data)
}

// formatArray splits data into elements and joins their formatted text
// with ", ". String types split on a NUL terminator per element and
// drop a trailing empty segment (a StringArray ending on a NUL pair
// must not render a spurious trailing empty element).
func formatArray(sink *textSink, base byte, data []byte) error {
	if base == valTypeUnicodeString {
		return formatStringArray(sink, data, 2)
	}
	if base == valTypeAnsiString {
		return formatStringArray(sink, data, 1)
	}

	width := fixedElementSize(base)
	if width == 0 {
		return formatBinary(sink, data)
	}
	fn, ok := formatters[base]
	if !ok {
		return formatBinary(sink, data)
	}

	first := true
	for off := uint32(0); off+width <= uint32(len(data)); off += width {
		if !first {
			sink.WriteString(", ")
		}
		first = false
		if err := fn(sink, data[off:off+width]); err != nil {
			return err
		}
	}
	return nil
}

func formatStringArray(sink *textSink, data []byte, unitSize int) error {
	elems := splitOnNUL(data, unitSize)
	// Drop a trailing empty element produced by a terminating NUL.
	if n := len(elems); n > 0 && len(elems[n-1]) == 0 {
		elems = elems[:n-1]
	}
	for i, e := range elems {
		if i > 0 {
			sink.WriteString(", ")
		}
		if unitSize == 2 {
			if err := formatUnicodeString(sink, e); err != nil {
				return err
			}
		} else {
			if err := formatAnsiString(sink, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitOnNUL(data []byte, unitSize int) [][]byte {
	var out [][]byte
	start := 0
	for i := 0; i+unitSize <= len(data); i += unitSize {
		isNUL := true
		for j := 0; j < unitSize; j++ {
			if data[i+j] != 0 {
				isNUL = false
				break
			}
		}
		if isNUL {
			out = append(out, data[start:i])
			start = i + unitSize
		}
	}
	out = append(out, data[start:])
	return out
}

func formatNull(sink *textSink, data []byte) error {
	return nil
}

// formatUnicodeString decodes UTF-16LE text, stripping one trailing NUL
// code unit if the writer included it.
func formatUnicodeString(sink *textSink, data []byte) error {
	if n := len(data); n >= 2 && data[n-1] == 0 && data[n-2] == 0 {
		data = data[:n-2]
	}
	s, err := decodeUTF16LE(data)
	if err != nil {
		return err
	}
	sink.WriteString(s)
	return nil
}

// formatAnsiString renders bytes up to the first NUL as Latin-1, each
// byte mapping to the code point of the same value.
func formatAnsiString(sink *textSink, data []byte) error {
	if i := strings.IndexByte(string(data), 0); i >= 0 {
		data = data[:i]
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	sink.WriteString(string(runes))
	return nil
}

func formatInt8(sink *textSink, data []byte) error {
	if len(data) < 1 {
		return nil
	}
	sink.WriteString(strconv.FormatInt(int64(int8(data[0])), 10))
	return nil
}

func formatUint8(sink *textSink, data []byte) error {
	if len(data) < 1 {
		return nil
	}
	sink.WriteString(strconv.FormatUint(uint64(data[0]), 10))
	return nil
}

func formatInt16(sink *textSink, data []byte) error {
	if len(data) < 2 {
		return nil
	}
	v := int16(uint16(data[0]) | uint16(data[1])<<8)
	sink.WriteString(strconv.FormatInt(int64(v), 10))
	return nil
}

func formatUint16(sink *textSink, data []byte) error {
	if len(data) < 2 {
		return nil
	}
	v := uint16(data[0]) | uint16(data[1])<<8
	sink.WriteString(strconv.FormatUint(uint64(v), 10))
	return nil
}

func formatInt32(sink *textSink, data []byte) error {
	if len(data) < 4 {
		return nil
	}
	sink.WriteString(strconv.FormatInt(int64(int32(leUint32(data))), 10))
	return nil
}

func formatUint32(sink *textSink, data []byte) error {
	if len(data) < 4 {
		return nil
	}
	sink.WriteString(strconv.FormatUint(uint64(leUint32(data)), 10))
	return nil
}

func formatInt64(sink *textSink, data []byte) error {
	if len(data) < 8 {
		return nil
	}
	sink.WriteString(strconv.FormatInt(int64(leUint64(data)), 10))
	return nil
}

func formatUint64(sink *textSink, data []byte) error {
	if len(data) < 8 {
		return nil
	}
	sink.WriteString(strconv.FormatUint(leUint64(data), 10))
	return nil
}

func formatReal32(sink *textSink, data []byte) error {
	if len(data) < 4 {
		return nil
	}
	v := math.Float32frombits(leUint32(data))
	sink.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	return nil
}

func formatReal64(sink *textSink, data []byte) error {
	if len(data) < 8 {
		return nil
	}
	v := math.Float64frombits(leUint64(data))
	sink.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	return nil
}

// formatBool reads a 32-bit little-endian BOOL.
func formatBool(sink *textSink, data []byte) error {
	if len(data) < 4 {
		return nil
	}
	if leUint32(data) != 0 {
		sink.WriteString("true")
	} else {
		sink.WriteString("false")
	}
	return nil
}

func formatBinary(sink *textSink, data []byte) error {
	const hexDigits = "0123456789ABCDEF"
	for _, b := range data {
		sink.WriteByte(hexDigits[b>>4])
		sink.WriteByte(hexDigits[b&0xF])
	}
	return nil
}

func formatGUID(sink *textSink, data []byte) error {
	g, err := decodeWindowsGUID(data)
	if err != nil {
		return err
	}
	sink.WriteString(windowsGUIDString(g))
	return nil
}

func writeHexPadded(sink *textSink, v uint64, digits int) {
	s := strconv.FormatUint(v, 16)
	sink.WriteString("0x")
	for i := len(s); i < digits; i++ {
		sink.WriteByte('0')
	}
	sink.WriteString(s)
}

func formatHexInt32(sink *textSink, data []byte) error {
	if len(data) < 4 {
		return nil
	}
	writeHexPadded(sink, uint64(leUint32(data)), 8)
	return nil
}

func formatHexInt64(sink *textSink, data []byte) error {
	if len(data) < 8 {
		return nil
	}
	writeHexPadded(sink, leUint64(data), 16)
	return nil
}

// formatSizeT renders a pointer-width value as 0x-prefixed hex, padded
// to 16 digits for an 8-byte value and 8 digits otherwise.
func formatSizeT(sink *textSink, data []byte) error {
	switch {
	case len(data) >= 8:
		writeHexPadded(sink, leUint64(data), 16)
	case len(data) >= 4:
		writeHexPadded(sink, uint64(leUint32(data)), 8)
	}
	return nil
}

// formatFiletime renders a FILETIME (100ns ticks since 1601-01-01) by
// direct Gregorian-cycle decomposition rather than via time.Time,
// avoiding the allocation and locale lookups a stdlib-time round trip
// would cost per substitution slot per record. The zero FILETIME
// renders as empty.
func formatFiletime(sink *textSink, data []byte) error {
	if len(data) < 8 {
		return nil
	}
	ticks := leUint64(data)
	if ticks == 0 {
		return nil
	}
	writeFiletimeTicks(sink, ticks)
	return nil
}

func writeFiletimeTicks(sink *textSink, ticks uint64) {
	totalSeconds := int64(ticks / 10_000_000)
	fracTicks := ticks % 10_000_000

	const daysFrom1601To1970 = 134774
	days := totalSeconds/86400 - daysFrom1601To1970
	secOfDay := totalSeconds % 86400
	if secOfDay < 0 {
		secOfDay += 86400
	}

	y, m, d := civilFromDays(days)
	hh := secOfDay / 3600
	mm := (secOfDay % 3600) / 60
	ss := secOfDay % 60

	writePadded(sink, y, 4)
	sink.WriteByte('-')
	writePadded(sink, int64(m), 2)
	sink.WriteByte('-')
	writePadded(sink, int64(d), 2)
	sink.WriteByte('T')
	writePadded(sink, hh, 2)
	sink.WriteByte(':')
	writePadded(sink, mm, 2)
	sink.WriteByte(':')
	writePadded(sink, ss, 2)
	sink.WriteByte('.')
	writePadded(sink, int64(fracTicks), 7)
	sink.WriteByte('Z')
}

// civilFromDays converts a day count relative to 1970-01-01 into a
// Gregorian (year, month, day), using Howard Hinnant's days-from-civil
// cycle decomposition (400/100/4/1-year eras) run in reverse.
func civilFromDays(z int64) (year int64, month, day int) {
	z += 719468
	era := z / 146097
	if z%146097 < 0 {
		era--
	}
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d := doy - (153*mp+2)/5 + 1
	var m int64
	if mp < 10 {
		m = mp + 3
	} else {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}
	return y, int(m), int(d)
}

func writePadded(sink *textSink, v int64, width int) {
	s := strconv.FormatInt(v, 10)
	for len(s) < width {
		s = "0" + s
	}
	sink.WriteString(s)
}

// formatSystemtime renders a SYSTEMTIME: 8 little-endian uint16 fields
// (year, month, day-of-week, day, hour, minute, second, millisecond);
// day-of-week is not part of the rendered text.
func formatSystemtime(sink *textSink, data []byte) error {
	if len(data) < 16 {
		return nil
	}
	u16 := func(i int) int64 {
		return int64(uint16(data[i]) | uint16(data[i+1])<<8)
	}
	writePadded(sink, u16(0), 4)
	sink.WriteByte('-')
	writePadded(sink, u16(2), 2)
	sink.WriteByte('-')
	writePadded(sink, u16(6), 2)
	sink.WriteByte('T')
	writePadded(sink, u16(8), 2)
	sink.WriteByte(':')
	writePadded(sink, u16(10), 2)
	sink.WriteByte(':')
	writePadded(sink, u16(12), 2)
	sink.WriteByte('.')
	writePadded(sink, u16(14), 3)
	sink.WriteByte('Z')
	return nil
}

// formatSID renders a Windows SID: 1-byte revision, 1-byte
// sub-authority count, a 6-byte big-endian identifier authority, then
// that many little-endian uint32 sub-authorities.
func formatSID(sink *textSink, data []byte) error {
	if len(data) < 8 {
		return ErrOutsideBoundary
	}
	revision := data[0]
	subCount := int(data[1])

	var authority uint64
	for i := 2; i < 8; i++ {
		authority = authority<<8 | uint64(data[i])
	}

	sink.WriteString("S-")
	sink.WriteString(strconv.FormatUint(uint64(revision), 10))
	sink.WriteByte('-')
	sink.WriteString(strconv.FormatUint(authority, 10))

	for i := 0; i < subCount; i++ {
		off := 8 + i*4
		if off+4 > len(data) {
			break
		}
		sink.WriteByte('-')
		sink.WriteString(strconv.FormatUint(uint64(leUint32(data[off:])), 10))
	}
	return nil
}
