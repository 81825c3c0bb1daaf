// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

// Fuzz is the legacy go-fuzz entry point: a minimal "does it crash"
// smoke test over arbitrary bytes.
func Fuzz(data []byte) int {
	f, err := NewBytes(data, &Options{})
	if err != nil {
		return 0
	}
	if _, _, err := f.Parse(); err != nil {
		return 0
	}
	return 1
}
