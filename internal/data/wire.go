package data

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire format
//
// Each encoded element is:
//
//	1 byte   type tag (the Type enumeration value)
//	4 bytes  payload length, big-endian (absent only when the caller asked
//	         for it to be omitted on the top-level element)
//	N bytes  payload
//
// Payloads by type:
//
//	integer  4 bytes, int32 big-endian
//	real     8 bytes, IEEE 754 bits big-endian
//	boolean  1 byte, 0 or 1
//	string   raw bytes
//	list     concatenated child encodings (tag + length + payload each)
//	map      repeated: 1-byte key length, key bytes, child encoding
//
// Composite payloads carry no delimiter beyond the declared length; a
// decoder must consume exactly the declared span. Any tag, length or
// content inconsistency fails with a DecodeError, which is a different
// error kind from the text ParseError.

const maxWireKeyLen = 255

// ToWire encodes the element tree. With omitLength the top-level length
// field is dropped, for callers whose framing already carries the total
// size; child elements always keep theirs.
func (e *Element) ToWire(omitLength bool) ([]byte, error) {
	payload, err := e.wirePayload()
	if err != nil {
		return nil, err
	}
	var out []byte
	if omitLength {
		out = make([]byte, 0, 1+len(payload))
		out = append(out, byte(e.typ))
	} else {
		out = make([]byte, 0, 5+len(payload))
		out = append(out, byte(e.typ))
		out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
	}
	return append(out, payload...), nil
}

func (e *Element) wirePayload() ([]byte, error) {
	switch e.typ {
	case Integer:
		return binary.BigEndian.AppendUint32(nil, uint32(e.intv)), nil
	case Real:
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(e.realv)), nil
	case Boolean:
		if e.boolv {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case String:
		return []byte(e.strv), nil
	case List:
		var out []byte
		for _, child := range e.listv {
			enc, err := child.ToWire(false)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
		return out, nil
	case Map:
		var out []byte
		for _, k := range e.keys {
			if len(k) > maxWireKeyLen {
				return nil, fmt.Errorf("map key %q exceeds %d bytes", k[:32], maxWireKeyLen)
			}
			out = append(out, byte(len(k)))
			out = append(out, k...)
			enc, err := e.mapv[k].ToWire(false)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unencodable element type %d", e.typ)
}

// FromWire decodes a full encoding (tag, length, payload) and fails with a
// DecodeError on an unknown tag, a length inconsistent with the available
// bytes, or trailing data.
func FromWire(b []byte) (*Element, error) {
	r := &wireReader{buf: b}
	el, err := r.readElement()
	if err != nil {
		return nil, err
	}
	if r.off != len(b) {
		return nil, decodeErrf("%d trailing bytes after element", len(b)-r.off)
	}
	return el, nil
}

// FromWireOmitted decodes the omit-length form produced by
// ToWire(omitLength=true): a tag byte followed by a payload spanning the
// rest of the buffer.
func FromWireOmitted(b []byte) (*Element, error) {
	if len(b) < 1 {
		return nil, decodeErrf("empty input")
	}
	return decodePayload(Type(b[0]), b[1:])
}

type wireReader struct {
	buf []byte
	off int
}

func (r *wireReader) remaining() int { return len(r.buf) - r.off }

func (r *wireReader) readElement() (*Element, error) {
	if r.remaining() < 1 {
		return nil, decodeErrf("truncated input: missing type tag")
	}
	tag := Type(r.buf[r.off])
	r.off++
	if r.remaining() < 4 {
		return nil, decodeErrf("truncated input: missing length field")
	}
	length := int(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	if length > r.remaining() {
		return nil, decodeErrf("declared length %d exceeds %d available bytes", length, r.remaining())
	}
	payload := r.buf[r.off : r.off+length]
	r.off += length
	return decodePayload(tag, payload)
}

func decodePayload(tag Type, payload []byte) (*Element, error) {
	switch tag {
	case Integer:
		if len(payload) != 4 {
			return nil, decodeErrf("integer payload is %d bytes, want 4", len(payload))
		}
		return NewInt(int32(binary.BigEndian.Uint32(payload))), nil
	case Real:
		if len(payload) != 8 {
			return nil, decodeErrf("real payload is %d bytes, want 8", len(payload))
		}
		return NewReal(math.Float64frombits(binary.BigEndian.Uint64(payload))), nil
	case Boolean:
		if len(payload) != 1 {
			return nil, decodeErrf("boolean payload is %d bytes, want 1", len(payload))
		}
		switch payload[0] {
		case 0:
			return NewBool(false), nil
		case 1:
			return NewBool(true), nil
		}
		return nil, decodeErrf("boolean payload byte 0x%02x is neither 0 nor 1", payload[0])
	case String:
		return NewString(string(payload)), nil
	case List:
		el := NewList()
		r := &wireReader{buf: payload}
		for r.remaining() > 0 {
			child, err := r.readElement()
			if err != nil {
				return nil, err
			}
			el.Add(child)
		}
		return el, nil
	case Map:
		el := NewMap()
		r := &wireReader{buf: payload}
		for r.remaining() > 0 {
			keyLen := int(r.buf[r.off])
			r.off++
			if keyLen > r.remaining() {
				return nil, decodeErrf("map key length %d exceeds %d available bytes", keyLen, r.remaining())
			}
			key := string(r.buf[r.off : r.off+keyLen])
			r.off += keyLen
			child, err := r.readElement()
			if err != nil {
				return nil, err
			}
			el.Set(key, child)
		}
		return el, nil
	}
	return nil, decodeErrf("unrecognized type tag 0x%02x", byte(tag))
}
