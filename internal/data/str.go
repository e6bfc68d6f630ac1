package data

import (
	"strconv"
	"strings"
)

// Str renders the canonical textual form of the element tree: maps as
// { "key": value, ... } in insertion order, lists as [ value, ... ],
// scalars in their natural form, strings quoted. The output is valid input
// for FromString.
func (e *Element) Str() string {
	var b strings.Builder
	e.writeStr(&b)
	return b.String()
}

// String makes elements printable with fmt; it is an alias for Str.
func (e *Element) String() string { return e.Str() }

func (e *Element) writeStr(b *strings.Builder) {
	switch e.typ {
	case Integer:
		b.WriteString(strconv.FormatInt(int64(e.intv), 10))
	case Real:
		b.WriteString(formatReal(e.realv))
	case Boolean:
		b.WriteString(strconv.FormatBool(e.boolv))
	case String:
		b.WriteString(quoteString(e.strv))
	case List:
		b.WriteString("[ ")
		for i, child := range e.listv {
			if i > 0 {
				b.WriteString(", ")
			}
			child.writeStr(b)
		}
		b.WriteString(" ]")
	case Map:
		b.WriteString("{ ")
		for i, k := range e.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteString(k))
			b.WriteString(": ")
			e.mapv[k].writeStr(b)
		}
		b.WriteString(" }")
	}
}

// formatReal keeps a decimal point or exponent in the output so the value
// re-parses as a real, not an integer.
func formatReal(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "Inf") && s != "NaN" {
		s += ".0"
	}
	return s
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 {
				b.WriteString(`\u`)
				const hex = "0123456789abcdef"
				b.WriteByte('0')
				b.WriteByte('0')
				b.WriteByte(hex[(r>>4)&0xf])
				b.WriteByte(hex[r&0xf])
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
