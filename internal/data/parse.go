package data

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// FromString parses the textual element grammar and returns the resulting
// tree. The grammar is a JSON subset: objects, arrays, double-quoted strings
// with the usual escapes, numbers (a decimal point or exponent makes a real,
// otherwise a 32-bit integer), and the literals true and false. There is no
// null literal and there are no comments. Malformed input fails with a
// ParseError carrying the offending line and column.
func FromString(in string) (*Element, error) {
	p := &parser{src: in, line: 1, col: 1}
	p.skipSpace()
	el, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errf("trailing data after element")
	}
	return el, nil
}

// FromReader parses the element grammar from a stream. The stream is read to
// completion before parsing.
func FromReader(r io.Reader) (*Element, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading element text: %w", err)
	}
	return FromString(string(b))
}

// parser is a recursive-descent scanner over the input. Its position state
// (offset, line, column) is internal; only ParseError locations escape.
type parser struct {
	src  string
	off  int
	line int
	col  int
}

func (p *parser) eof() bool { return p.off >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.off] }

func (p *parser) advance() byte {
	c := p.src[p.off]
	p.off++
	if c == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	return c
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\r', '\n':
			p.advance()
		default:
			return
		}
	}
}

func (p *parser) errf(format string, args ...any) error {
	return &ParseError{Line: p.line, Column: p.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseValue() (*Element, error) {
	if p.eof() {
		return nil, p.errf("unexpected end of input")
	}
	switch c := p.peek(); {
	case c == '{':
		return p.parseMap()
	case c == '[':
		return p.parseList()
	case c == '"':
		s, err := p.parseString()
		if err != nil {
			return nil, err
		}
		return NewString(s), nil
	case c == 't' || c == 'f':
		return p.parseBool()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return nil, p.errf("unexpected character %q", c)
	}
}

func (p *parser) parseMap() (*Element, error) {
	p.advance() // '{'
	el := NewMap()
	p.skipSpace()
	if !p.eof() && p.peek() == '}' {
		p.advance()
		return el, nil
	}
	for {
		p.skipSpace()
		if p.eof() || p.peek() != '"' {
			return nil, p.errf("expected quoted map key")
		}
		key, err := p.parseString()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ':' {
			return nil, p.errf("expected ':' after map key %q", key)
		}
		p.advance()
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		el.Set(key, val)
		p.skipSpace()
		if p.eof() {
			return nil, p.errf("unterminated map")
		}
		switch p.peek() {
		case ',':
			p.advance()
		case '}':
			p.advance()
			return el, nil
		default:
			return nil, p.errf("expected ',' or '}' in map")
		}
	}
}

func (p *parser) parseList() (*Element, error) {
	p.advance() // '['
	el := NewList()
	p.skipSpace()
	if !p.eof() && p.peek() == ']' {
		p.advance()
		return el, nil
	}
	for {
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		el.Add(val)
		p.skipSpace()
		if p.eof() {
			return nil, p.errf("unterminated list")
		}
		switch p.peek() {
		case ',':
			p.advance()
		case ']':
			p.advance()
			return el, nil
		default:
			return nil, p.errf("expected ',' or ']' in list")
		}
	}
}

func (p *parser) parseString() (string, error) {
	p.advance() // opening '"'
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errf("unterminated string")
		}
		c := p.advance()
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if p.eof() {
				return "", p.errf("unterminated escape sequence")
			}
			esc := p.advance()
			switch esc {
			case '"', '\\', '/':
				b.WriteByte(esc)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				r, err := p.parseUnicodeEscape()
				if err != nil {
					return "", err
				}
				b.WriteRune(r)
			default:
				return "", p.errf("invalid escape character %q", esc)
			}
		case '\n':
			return "", p.errf("unterminated string")
		default:
			b.WriteByte(c)
		}
	}
}

func (p *parser) parseUnicodeEscape() (rune, error) {
	r1, err := p.parseHex4()
	if err != nil {
		return 0, err
	}
	if utf16.IsSurrogate(r1) {
		// expect a low surrogate to complete the pair
		if p.off+1 < len(p.src) && p.peek() == '\\' && p.src[p.off+1] == 'u' {
			p.advance()
			p.advance()
			r2, err := p.parseHex4()
			if err != nil {
				return 0, err
			}
			if r := utf16.DecodeRune(r1, r2); r != utf8.RuneError {
				return r, nil
			}
		}
		return utf8.RuneError, nil
	}
	return r1, nil
}

func (p *parser) parseHex4() (rune, error) {
	var v rune
	for i := 0; i < 4; i++ {
		if p.eof() {
			return 0, p.errf("truncated \\u escape")
		}
		c := p.advance()
		switch {
		case c >= '0' && c <= '9':
			v = v<<4 | rune(c-'0')
		case c >= 'a' && c <= 'f':
			v = v<<4 | rune(c-'a'+10)
		case c >= 'A' && c <= 'F':
			v = v<<4 | rune(c-'A'+10)
		default:
			return 0, p.errf("invalid hex digit %q in \\u escape", c)
		}
	}
	return v, nil
}

func (p *parser) parseBool() (*Element, error) {
	if strings.HasPrefix(p.src[p.off:], "true") {
		p.consume(4)
		return NewBool(true), nil
	}
	if strings.HasPrefix(p.src[p.off:], "false") {
		p.consume(5)
		return NewBool(false), nil
	}
	return nil, p.errf("invalid literal")
}

func (p *parser) consume(n int) {
	for i := 0; i < n; i++ {
		p.advance()
	}
}

func (p *parser) parseNumber() (*Element, error) {
	start := p.off
	isReal := false
	if p.peek() == '-' {
		p.advance()
	}
	digits := 0
	for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
		p.advance()
		digits++
	}
	if digits == 0 {
		return nil, p.errf("malformed number")
	}
	if !p.eof() && p.peek() == '.' {
		isReal = true
		p.advance()
		frac := 0
		for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
			p.advance()
			frac++
		}
		if frac == 0 {
			return nil, p.errf("malformed number: missing fraction digits")
		}
	}
	if !p.eof() && (p.peek() == 'e' || p.peek() == 'E') {
		isReal = true
		p.advance()
		if !p.eof() && (p.peek() == '+' || p.peek() == '-') {
			p.advance()
		}
		exp := 0
		for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
			p.advance()
			exp++
		}
		if exp == 0 {
			return nil, p.errf("malformed number: missing exponent digits")
		}
	}
	text := p.src[start:p.off]
	if isReal {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errf("malformed real %q", text)
		}
		return NewReal(v), nil
	}
	v, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return nil, p.errf("integer %q out of 32-bit range", text)
	}
	return NewInt(int32(v)), nil
}
