// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package log

import "fmt"

// Helper adapts printf-style call sites (Debugf, Warnf, Errorf) onto a
// Logger's leveled keyvals form.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in a Helper.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, format string, a ...interface{}) {
	if h == nil || h.logger == nil {
		return
	}
	_ = h.logger.Log(level, "msg", fmt.Sprintf(format, a...))
}

func (h *Helper) Debugf(format string, a ...interface{}) { h.log(LevelDebug, format, a...) }
func (h *Helper) Infof(format string, a ...interface{})  { h.log(LevelInfo, format, a...) }
func (h *Helper) Warnf(format string, a ...interface{})  { h.log(LevelWarn, format, a...) }
func (h *Helper) Errorf(format string, a ...interface{}) { h.log(LevelError, format, a...) }
