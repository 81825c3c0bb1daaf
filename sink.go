// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "sync"

// stackBufSize is the inline capacity a textSink carries before it
// spills to a pooled heap buffer. Sized for the common case of a
// single rendered event's text.
const stackBufSize = 512

// textSink is a stack-first growable byte buffer with pooled heap
// spill: 4x-then-25% growth, sync.Pool-backed spill storage, and a
// discard of oversized buffers on release.
type textSink struct {
	stack [stackBufSize]byte
	buf   []byte // nil until the stack buffer overflows
	n     int
}

var sinkPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, stackBufSize*4) },
}

// acquireSink returns a zeroed textSink ready for use.
func acquireSink() *textSink {
	return &textSink{}
}

// release returns any pooled heap buffer to sinkPool. Oversized buffers
// (grown well past the pool's seed capacity) are discarded instead of
// pooled, mirroring ByteBufferPool.Put's size-gated discard.
func (s *textSink) release() {
	if s.buf == nil {
		return
	}
	if cap(s.buf) <= stackBufSize*16 {
		sinkPool.Put(s.buf[:0])
	}
	s.buf = nil
}

func (s *textSink) active() []byte {
	if s.buf != nil {
		return s.buf[:s.n]
	}
	return s.stack[:s.n]
}

// WriteString appends p, spilling to a pooled heap buffer the first
// time the inline stack array would overflow.
func (s *textSink) WriteString(p string) {
	s.write([]byte(p))
}

func (s *textSink) WriteByte(b byte) {
	s.write([]byte{b})
}

func (s *textSink) write(p []byte) {
	if s.buf == nil && s.n+len(p) <= stackBufSize {
		copy(s.stack[s.n:], p)
		s.n += len(p)
		return
	}
	if s.buf == nil {
		s.buf = sinkPool.Get().([]byte)
		s.buf = append(s.buf[:0], s.stack[:s.n]...)
	}
	s.buf = s.grow(s.buf, len(p))
	s.buf = append(s.buf, p...)
	s.n += len(p)
}

// grow applies the 4x-then-25% capacity policy: below a 4KiB
// threshold the buffer quadruples, above it grows by 25%, always
// enough to fit the incoming write.
func (s *textSink) grow(buf []byte, extra int) []byte {
	need := len(buf) + extra
	if cap(buf) >= need {
		return buf
	}
	newCap := cap(buf)
	if newCap == 0 {
		newCap = stackBufSize
	}
	for newCap < need {
		if newCap < 4096 {
			newCap *= 4
		} else {
			newCap += newCap / 4
		}
	}
	grown := make([]byte, len(buf), newCap)
	copy(grown, buf)
	return grown
}

func (s *textSink) String() string {
	return string(s.active())
}
