// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

// renderCompiled zippers a CompiledTemplate's static/slot parts against
// subs, the substitution vector decoded from one TemplateInstance, and
// returns the rendered text. w supplies the walk for substitutions
// carrying an embedded BinXml fragment; it may be nil when none can
// occur.
//
// Quote, comma, and tag syntax all live in the static parts, so a slot
// only ever contributes an escaped payload. A skipped optional slot
// contributes an empty payload, which keeps the compiled path
// byte-identical to the fallback token walk.
func renderCompiled(w *binxmlWalker, tmpl *CompiledTemplate, subs []substitution) (string, error) {
	sink := acquireSink()
	defer sink.release()

	for _, part := range tmpl.Parts {
		if !part.isSlot {
			sink.WriteString(part.static)
			continue
		}

		typeCode, data, skip, err := resolveSub(subs, part.slot.index, part.slot.optional)
		if err != nil {
			return "", err
		}
		if skip {
			continue
		}

		if typeCode == valTypeEmbeddedBinXml && w != nil {
			text, err := w.renderEmbedded(data, 0)
			if err != nil {
				return "", err
			}
			switch {
			case tmpl.Format == OutputJSON:
				sink.WriteString(escapeJSON(text))
			case part.slot.inAttr:
				sink.WriteString(escapeXML(text))
			default:
				sink.WriteString(text)
			}
			continue
		}

		tmp := acquireSink()
		err = formatValue(tmp, typeCode, data)
		if err != nil {
			tmp.release()
			return "", err
		}
		if tmpl.Format == OutputJSON {
			sink.WriteString(escapeJSON(tmp.String()))
		} else {
			sink.WriteString(escapeXML(tmp.String()))
		}
		tmp.release()
	}
	return sink.String(), nil
}
