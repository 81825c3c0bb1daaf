// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "github.com/google/uuid"

// decodeWindowsGUID decodes a 16-byte Windows GUID, reordering its
// mixed-endian fields (first three groups little-endian, final 8 bytes
// already big-endian) into the byte order uuid.UUID expects, then
// delegating group/hyphen string formatting to it.
func decodeWindowsGUID(b []byte) (uuid.UUID, error) {
	var u uuid.UUID
	if len(b) != 16 {
		return u, ErrOutsideBoundary
	}
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u, nil
}

// windowsGUIDString renders a decoded GUID as upper-case hyphenated
// hex, XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX.
func windowsGUIDString(u uuid.UUID) string {
	s := u.String()
	upper := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	return string(upper)
}
