package service

import "errors"

var (
	// ErrInvalidParameter marks a bad address family or an undefined
	// server flag combination at registration time.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrIO marks a low-level socket failure while adopting a descriptor,
	// like a closed fd or one of the wrong socket type.
	ErrIO = errors.New("socket I/O error")
)
