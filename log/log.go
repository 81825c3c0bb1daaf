// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log reconstructs the small slice of a Kratos-style logging
// API the rest of this module calls through: a leveled Logger
// interface, a severity Filter, and a Helper that formats printf-style
// calls into key/value pairs before handing them to the Logger.
package log

// Level is a log severity.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger is the sink every helper call eventually reaches: a level and
// an even-length slice of alternating key, value pairs.
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// Valuer resolves a context-dependent value at log time, e.g. a request
// id or a timestamp, the way Kratos' DefaultCaller/Timestamp valuers do.
type Valuer func() interface{}

func bindValues(keyvals []interface{}) {
	for i := 1; i < len(keyvals); i += 2 {
		if v, ok := keyvals[i].(Valuer); ok {
			keyvals[i] = v()
		}
	}
}
