package service

import (
	"context"
	"net"
)

// Query is one inbound DNS message as the service hands it to the lookup
// provider. The service does not interpret the bytes; DNS message encoding
// belongs to the providers.
type Query struct {
	// Data is the raw request. When the listener was registered with
	// ServerSyncOK the slice aliases a pooled buffer and is only valid
	// until the Lookup call returns; providers that retain it must copy.
	Data []byte

	// RemoteAddr is the peer the query came from.
	RemoteAddr net.Addr

	// Protocol is "udp" or "tcp".
	Protocol string
}

// Result is what a lookup provider produces for one query.
type Result struct {
	// Answered reports whether a response should be sent at all. False
	// drops the query silently (the normal reaction to garbage).
	Answered bool

	// Data is the provider payload handed on to the answer provider.
	Data []byte
}

// Lookup resolves queries. The service invokes it once per inbound message
// and resumes only when done is called; done may fire after Lookup returns
// (asynchronous completion), from any goroutine, but exactly once.
//
// A provider behind a ServerSyncOK listener must complete the query and
// call done before returning, releasing any claim on the query buffer.
type Lookup interface {
	Lookup(ctx context.Context, q *Query, done func(Result))
}

// Answer renders the final response bytes for a completed lookup. It runs
// after the lookup provider finishes; errors drop the response.
type Answer interface {
	Answer(q *Query, r Result) ([]byte, error)
}
