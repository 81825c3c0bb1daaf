// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "testing"

// buildTemplateBody writes a template definition's BinXml body at off
// within cb's chunk and returns the slice compileTemplate expects,
// anchored to the same backing array its names were resolved against.
func buildTemplateBody(cb *chunkBuilder, off int, bodyFn func(*chunkBuilder)) []byte {
	cb.seek(off)
	bodyFn(cb)
	return cb.buf[off:cb.offset()]
}

func TestCompileTemplate_StaticAndSlot(t *testing.T) {
	cb := newChunkBuilder()
	body := buildTemplateBody(cb, 2000, func(b *chunkBuilder) {
		b.openElement("Foo")
		b.closeStartElement()
		b.normalSubstitution(0, valTypeUnicodeString)
		b.endElement()
	})

	def := &templateDef{body: body}
	names := newNameTable(cb.buf)
	diag := &diagState{}

	tmpl, ok := compileTemplate(def, OutputXML, names, cb.buf, diag)
	if !ok {
		t.Fatalf("expected compilation to succeed, diagnostics: %s", diag.String())
	}
	if len(tmpl.Parts) != 3 {
		t.Fatalf("got %d parts, want 3: %+v", len(tmpl.Parts), tmpl.Parts)
	}
	if tmpl.Parts[0].static != "<Foo>" {
		t.Errorf("part 0: got %q, want %q", tmpl.Parts[0].static, "<Foo>")
	}
	if !tmpl.Parts[1].isSlot || tmpl.Parts[1].slot.index != 0 || tmpl.Parts[1].slot.typeHint != valTypeUnicodeString {
		t.Errorf("part 1: got %+v, want a slot for index 0", tmpl.Parts[1])
	}
	if tmpl.Parts[2].static != "</Foo>" {
		t.Errorf("part 2: got %q, want %q", tmpl.Parts[2].static, "</Foo>")
	}
}

func TestCompileTemplate_JSONStructuralParts(t *testing.T) {
	cb := newChunkBuilder()
	body := buildTemplateBody(cb, 2000, func(b *chunkBuilder) {
		b.openElementWithAttrs("Event")
		b.attributeSub("Name", 0, valTypeUnicodeString, false)
		b.closeStartElement()
		b.normalSubstitution(1, valTypeUnicodeString)
		b.endElement()
	})

	def := &templateDef{body: body}
	names := newNameTable(cb.buf)
	diag := &diagState{}

	tmpl, ok := compileTemplate(def, OutputJSON, names, cb.buf, diag)
	if !ok {
		t.Fatalf("expected compilation to succeed, diagnostics: %s", diag.String())
	}
	if len(tmpl.Parts) != 5 {
		t.Fatalf("got %d parts, want 5: %+v", len(tmpl.Parts), tmpl.Parts)
	}
	if want := `{"#name":"Event","#attrs":{"Name":"`; tmpl.Parts[0].static != want {
		t.Errorf("part 0: got %q, want %q", tmpl.Parts[0].static, want)
	}
	if !tmpl.Parts[1].isSlot || !tmpl.Parts[1].slot.inAttr {
		t.Errorf("part 1: got %+v, want an attribute-context slot", tmpl.Parts[1])
	}
	if want := `"},"#content":["`; tmpl.Parts[2].static != want {
		t.Errorf("part 2: got %q, want %q", tmpl.Parts[2].static, want)
	}
	if !tmpl.Parts[3].isSlot || tmpl.Parts[3].slot.inAttr {
		t.Errorf("part 3: got %+v, want a content-context slot", tmpl.Parts[3])
	}
	if want := `"]}`; tmpl.Parts[4].static != want {
		t.Errorf("part 4: got %q, want %q", tmpl.Parts[4].static, want)
	}
}

func TestCompileTemplate_NestedTemplateInstanceFails(t *testing.T) {
	cb := newChunkBuilder()
	def := &templateDef{body: []byte{tokenTemplateInstance}}
	names := newNameTable(cb.buf)
	diag := &diagState{}

	_, ok := compileTemplate(def, OutputXML, names, cb.buf, diag)
	if ok {
		t.Fatal("expected compilation to fail for a nested template instance")
	}
}

func TestRenderCompiled_FillsSlot(t *testing.T) {
	tmpl := &CompiledTemplate{
		Format: OutputXML,
		Parts: []templatePart{
			{static: "<Foo>"},
			{isSlot: true, slot: slotPart{index: 0, typeHint: valTypeUnicodeString}},
			{static: "</Foo>"},
		},
	}
	subs := []substitution{{typeCode: valTypeUnicodeString, data: encodeUTF16LE(t, "bar")}}

	text, err := renderCompiled(nil, tmpl, subs)
	if err != nil {
		t.Fatalf("renderCompiled failed: %v", err)
	}
	if want := "<Foo>bar</Foo>"; text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestRenderCompiled_OptionalNullSlotOmittedInXML(t *testing.T) {
	tmpl := &CompiledTemplate{
		Format: OutputXML,
		Parts: []templatePart{
			{static: "<Foo>"},
			{isSlot: true, slot: slotPart{index: 0, optional: true}},
			{static: "</Foo>"},
		},
	}
	subs := []substitution{{typeCode: valTypeNull}}

	text, err := renderCompiled(nil, tmpl, subs)
	if err != nil {
		t.Fatalf("renderCompiled failed: %v", err)
	}
	if want := "<Foo></Foo>"; text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestRenderCompiled_EscapesXMLInTextSlot(t *testing.T) {
	tmpl := &CompiledTemplate{
		Format: OutputXML,
		Parts: []templatePart{
			{static: "<Foo>"},
			{isSlot: true, slot: slotPart{index: 0, typeHint: valTypeUnicodeString}},
			{static: "</Foo>"},
		},
	}
	subs := []substitution{{typeCode: valTypeUnicodeString, data: encodeUTF16LE(t, "<a&b>")}}

	text, err := renderCompiled(nil, tmpl, subs)
	if err != nil {
		t.Fatalf("renderCompiled failed: %v", err)
	}
	if want := "<Foo>&lt;a&amp;b&gt;</Foo>"; text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestRenderCompiled_EscapesXMLAttrSlot(t *testing.T) {
	tmpl := &CompiledTemplate{
		Format: OutputXML,
		Parts: []templatePart{
			{static: `<Foo id="`},
			{isSlot: true, slot: slotPart{index: 0, typeHint: valTypeUnicodeString, inAttr: true}},
			{static: `"/>`},
		},
	}
	subs := []substitution{{typeCode: valTypeUnicodeString, data: encodeUTF16LE(t, `a"b`)}}

	text, err := renderCompiled(nil, tmpl, subs)
	if err != nil {
		t.Fatalf("renderCompiled failed: %v", err)
	}
	if want := `<Foo id="a&quot;b"/>`; text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestRenderCompiled_EscapesJSONSlotPayload(t *testing.T) {
	tmpl := &CompiledTemplate{
		Format: OutputJSON,
		Parts: []templatePart{
			{static: `{"#name":"Foo","#content":["`},
			{isSlot: true, slot: slotPart{index: 0, typeHint: valTypeUnicodeString}},
			{static: `"]}`},
		},
	}
	subs := []substitution{{typeCode: valTypeUnicodeString, data: encodeUTF16LE(t, `a"b`)}}

	text, err := renderCompiled(nil, tmpl, subs)
	if err != nil {
		t.Fatalf("renderCompiled failed: %v", err)
	}
	if want := `{"#name":"Foo","#content":["a\"b"]}`; text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestRenderCompiled_OptionalNullSlotEmptyPayloadInJSON(t *testing.T) {
	tmpl := &CompiledTemplate{
		Format: OutputJSON,
		Parts: []templatePart{
			{static: `{"#name":"Foo","#content":["`},
			{isSlot: true, slot: slotPart{index: 0, optional: true}},
			{static: `"]}`},
		},
	}
	subs := []substitution{{typeCode: valTypeNull}}

	text, err := renderCompiled(nil, tmpl, subs)
	if err != nil {
		t.Fatalf("renderCompiled failed: %v", err)
	}
	// The statically-placed quotes stay; the omitted optional only
	// empties the payload, so the content array stays well-formed.
	if want := `{"#name":"Foo","#content":[""]}`; text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestCompileTemplate_AttributeSlotMarkedInAttr(t *testing.T) {
	cb := newChunkBuilder()
	body := buildTemplateBody(cb, 2000, func(b *chunkBuilder) {
		b.openElementWithAttrs("Foo")
		b.attributeSub("id", 0, valTypeUnicodeString, false)
		b.closeEmptyElement()
	})

	def := &templateDef{body: body}
	names := newNameTable(cb.buf)
	diag := &diagState{}

	tmpl, ok := compileTemplate(def, OutputXML, names, cb.buf, diag)
	if !ok {
		t.Fatalf("expected compilation to succeed, diagnostics: %s", diag.String())
	}

	var slot *slotPart
	for i := range tmpl.Parts {
		if tmpl.Parts[i].isSlot {
			slot = &tmpl.Parts[i].slot
		}
	}
	if slot == nil {
		t.Fatalf("expected a slot part, got %+v", tmpl.Parts)
	}
	if !slot.inAttr {
		t.Errorf("expected the attribute substitution's slot to be marked inAttr, got %+v", slot)
	}
}
