package data

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four failure kinds of the data model.
// Wrap with fmt.Errorf("context: %w", ...) to add context; callers
// dispatch with errors.Is, or errors.As for the structured variants.
var (
	// ErrType marks an operation invoked on an Element variant that does
	// not support it. Always caller misuse, never recoverable internally.
	ErrType = errors.New("element type error")

	// ErrParse marks malformed textual input.
	ErrParse = errors.New("element parse error")

	// ErrDecode marks malformed wire-format input. Kept distinct from
	// ErrParse so callers can tell text from binary origin.
	ErrDecode = errors.New("element decode error")

	// ErrRange marks a list index out of bounds.
	ErrRange = errors.New("element index out of range")
)

// TypeError reports an operation called on the wrong Element variant.
type TypeError struct {
	Op   string // the attempted operation, e.g. "IntValue"
	Type Type   // the actual type of the receiver
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s() called on %s element", e.Op, e.Type)
}

func (e *TypeError) Unwrap() error { return ErrType }

// ParseError reports malformed text input with its source location.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d column %d: %s", e.Line, e.Column, e.Msg)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// DecodeError reports malformed wire-format input.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string {
	return "wire decode error: " + e.Msg
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

func typeErr(op string, t Type) error {
	return &TypeError{Op: op, Type: t}
}

func decodeErrf(format string, args ...any) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}
