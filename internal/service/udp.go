package service

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/kestreldns/kestrel/internal/pool"
)

const (
	// maxUDPMessageSize bounds one inbound datagram.
	maxUDPMessageSize = 4096

	// maxUDPConcurrency caps in-flight asynchronous lookups per listener.
	maxUDPConcurrency = 128
)

// udpBufPool reduces allocations for inbound datagrams.
var udpBufPool = pool.NewBytes(maxUDPMessageSize)

// udpListener reads datagrams from one adopted socket and runs the
// lookup/answer cycle for each.
//
// In synchronous mode (ServerSyncOK) the pooled read buffer is handed to
// the lookup provider directly and recycled once the completion and the
// read loop are both done with it, relying on the provider's promise to
// complete before returning. In the
// default mode the datagram is copied out first and the lookup dispatched
// on a bounded set of worker goroutines.
type udpListener struct {
	svc    *Service
	conn   *net.UDPConn
	syncOK bool
	sem    chan struct{}
}

func (l *udpListener) Close() error {
	return l.conn.Close()
}

func (l *udpListener) run(ctx context.Context) {
	for {
		bufPtr := udpBufPool.Get()
		buf := *bufPtr

		n, remote, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			udpBufPool.Put(bufPtr)
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// socket closed by ClearServers, or unrecoverable
			return
		}
		if remote == nil || n == 0 {
			udpBufPool.Put(bufPtr)
			continue
		}

		l.svc.recordQuery("udp")
		if l.syncOK {
			l.serveSync(ctx, bufPtr, buf[:n], remote)
		} else {
			data := make([]byte, n)
			copy(data, buf[:n])
			udpBufPool.Put(bufPtr)
			l.serveAsync(ctx, data, remote)
		}
	}
}

// serveSync runs the whole cycle on the read loop without copying. The
// buffer returns to the pool only once both the completion callback and
// the read loop have released it, so a completion racing the return can
// never touch a recycled buffer. A completion arriving after the query
// was abandoned is dropped, and an abandoned buffer is left to the
// collector because the provider may still hold it.
func (l *udpListener) serveSync(ctx context.Context, bufPtr *[]byte, data []byte, remote *net.UDPAddr) {
	q := &Query{Data: data, RemoteAddr: remote, Protocol: "udp"}

	const (
		statePending = int32(iota)
		stateCompleted
		stateAbandoned
	)
	var state atomic.Int32
	var refs atomic.Int32
	refs.Store(2)
	release := func() {
		if refs.Add(-1) == 0 {
			udpBufPool.Put(bufPtr)
		}
	}

	l.svc.lookup.Lookup(ctx, q, func(res Result) {
		if !state.CompareAndSwap(statePending, stateCompleted) {
			// the read loop already abandoned the query
			l.svc.recordDropped()
			return
		}
		l.respond(q, res, remote)
		release()
	})

	if state.CompareAndSwap(statePending, stateAbandoned) {
		l.svc.logger.Warn("lookup provider violated the synchronous completion contract; dropping query",
			"remote", remote.String())
		l.svc.recordDropped()
		return
	}
	release()
}

// serveAsync owns a private copy of the datagram, so the provider may
// complete whenever it likes. The semaphore slot is held until then.
func (l *udpListener) serveAsync(ctx context.Context, data []byte, remote *net.UDPAddr) {
	select {
	case l.sem <- struct{}{}:
	default:
		// at max concurrency, drop the query
		l.svc.recordDropped()
		return
	}
	q := &Query{Data: data, RemoteAddr: remote, Protocol: "udp"}
	go l.svc.lookup.Lookup(ctx, q, func(res Result) {
		defer func() { <-l.sem }()
		l.respond(q, res, remote)
	})
}

func (l *udpListener) respond(q *Query, res Result, remote *net.UDPAddr) {
	if !res.Answered {
		l.svc.recordDropped()
		return
	}
	resp, err := l.svc.answer.Answer(q, res)
	if err != nil {
		l.svc.logger.Debug("answer provider failed", "remote", remote.String(), "error", err)
		l.svc.recordDropped()
		return
	}
	if _, err := l.conn.WriteToUDP(resp, remote); err != nil {
		l.svc.logger.Debug("udp response write failed", "remote", remote.String(), "error", err)
	}
}
