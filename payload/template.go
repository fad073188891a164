package payload

import "strings"

// Render substitutes {{path}} tokens in template with values resolved from
// the payload. An unresolved token renders as [MISSING:<path>] so broken
// templates show up in the execution log instead of producing silently
// empty messages.
func (p Payload) Render(template string) string {
	var b strings.Builder
	rest := template

	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		close := strings.Index(rest[open+2:], "}}")
		if close < 0 {
			b.WriteString(rest)
			return b.String()
		}

		b.WriteString(rest[:open])
		path := strings.TrimSpace(rest[open+2 : open+2+close])

		if val, ok := p.Resolve(path); ok {
			b.WriteString(Stringify(val))
		} else {
			b.WriteString("[MISSING:" + path + "]")
		}

		rest = rest[open+2+close+2:]
	}
}
