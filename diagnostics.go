// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "strings"

// Render-degradation reasons reported on RenderedEvent.Diagnostic.
// These never abort parsing; they flag that a record's output may be
// incomplete.
const (
	// DiagTruncatedBody is reported when a token's fields run past the
	// end of the BinXml span being walked, or a token cannot be decoded
	// (an unknown token byte, an unresolvable name, a value its formatter
	// rejects). A span that simply ends before an EndOfFile token is not
	// reported.
	DiagTruncatedBody = "binxml body truncated before end of fragment"

	// DiagUnresolvedTemplate is reported when a TemplateInstance back
	// reference could not be resolved to a definition within the chunk.
	DiagUnresolvedTemplate = "template back-reference could not be resolved"

	// DiagRecursionCapHit is reported when element nesting reached
	// maxElementDepth and the walker truncated the offending element.
	DiagRecursionCapHit = "element nesting exceeded recursion cap"

	// DiagUncompilableTemplate is reported when the fallback token-walker
	// path was used because the template failed compilation.
	DiagUncompilableTemplate = "template is not compilable, used fallback render path"

	// DiagHeaderlessRecovery is reported on records recovered from a
	// chunk with a corrupt or missing chunk header.
	DiagHeaderlessRecovery = "record recovered from headerless chunk scan"
)

// diagState accumulates render-degradation reasons for one record,
// deduplicated, and collapses them into RenderedEvent.Diagnostic at the
// end of rendering.
type diagState struct {
	reasons []string
}

// add appends reason if it isn't already present.
func (d *diagState) add(reason string) {
	for _, r := range d.reasons {
		if r == reason {
			return
		}
	}
	d.reasons = append(d.reasons, reason)
}

func (d *diagState) empty() bool {
	return len(d.reasons) == 0
}

// String joins accumulated reasons into the single diagnostic string
// carried by RenderedEvent.
func (d *diagState) String() string {
	return strings.Join(d.reasons, "; ")
}
