// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// stdLogger writes one line per Log call to an io.Writer, guarded by a
// mutex since chunk workers may log concurrently.
type stdLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdLogger returns a Logger that writes timestamped lines to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{w: w}
}

func (l *stdLogger) Log(level Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}
	bindValues(keyvals)

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.w, "%s %s", time.Now().Format("2006-01-02T15:04:05.000Z07:00"), level.String())
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(l.w, " %v=%v", keyvals[i], keyvals[i+1])
	}
	fmt.Fprintln(l.w)
	return nil
}
