// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "github.com/google/uuid"

// slotPart is one substitution slot in a compiled template. inAttr
// records whether the slot sits inside an attribute value or in
// element content; both skeleton flavors set it. renderCompiled reads
// it only for an XML slot holding an embedded BinXml fragment, whose
// rendered text is escaped inside an attribute and spliced unescaped in
// element content. Every other XML payload goes through escapeXML
// wherever the slot sits.
type slotPart struct {
	index    uint16
	typeHint byte
	optional bool
	inAttr   bool
}

// templatePart is one segment of a compiled template: either a fixed
// run of output text or a substitution slot to fill at render time.
type templatePart struct {
	static string
	isSlot bool
	slot   slotPart
}

// CompiledTemplate is the interleaved static-fragment/substitution-slot
// form a template definition compiles to: one walk of the template's
// BinXml body, cached by GUID and output flavor, then "zippered"
// against each record's own substitution vector.
type CompiledTemplate struct {
	GUID   uuid.UUID
	Format OutputFormat
	Parts  []templatePart
}

// compileTemplate walks def's body once, producing its static/slot
// skeleton for format. It returns ok=false (never an error — a failed
// compile only degrades that template to the fallback walk) when the
// body contains a nested TemplateInstance or reaches the element-nesting
// cap, and so can't be reduced to a fixed skeleton.
func compileTemplate(def *templateDef, format OutputFormat, names *nameTable, chunk []byte, diag *diagState) (*CompiledTemplate, bool) {
	var sink skeletonSink
	if format == OutputJSON {
		sink = newJSONSkeletonSink()
	} else {
		sink = newXMLSkeletonSink()
	}

	w := &binxmlWalker{chunk: chunk, names: names, diag: diag, format: format}
	if err := w.walkFragment(def.body, 0, sink); err != nil {
		return nil, false
	}
	if sink.failed() {
		return nil, false
	}

	return &CompiledTemplate{GUID: def.guid, Format: format, Parts: sink.parts()}, true
}

// skeletonSink is the common shape of xmlSkeletonSink/jsonSkeletonSink:
// an eventSink that accumulates templateParts instead of writing real
// output, and records whether the walk asked it to splice raw text (in
// a skeleton walk only the element-nesting cap does), which a skeleton
// cannot hold. A nested TemplateInstance is reported separately, as
// errNestedTemplateInstance from the walk.
type skeletonSink interface {
	eventSink
	parts() []templatePart
	failed() bool
}
