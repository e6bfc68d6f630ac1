package service

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/kestreldns/kestrel/internal/pool"
)

const (
	// maxTCPMessageSize is the largest length-prefixed message accepted.
	maxTCPMessageSize = 65535

	// tcpWriteTimeout bounds response writes so a stalled peer cannot pin
	// a handler goroutine.
	tcpWriteTimeout = 5 * time.Second

	// maxTCPConnectionsPerIP keeps one peer from exhausting the service.
	maxTCPConnectionsPerIP = 10

	// maxQueriesPerConnection bounds pipelining on a single connection.
	maxQueriesPerConnection = 100
)

// lenBufPool holds the 2-byte length-prefix scratch buffers.
var lenBufPool = pool.NewBytes(2)

// tcpListener accepts connections on one adopted socket. Each message on a
// connection is a 2-byte big-endian length prefix followed by the query;
// responses are framed the same way. A connection that fails to deliver a
// complete query within the service's recv timeout is torn down; that is
// lifecycle, not an error. Close tears down open connections immediately
// instead of waiting for their timeouts.
type tcpListener struct {
	svc *Service
	ln  *net.TCPListener

	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
	perIP  map[string]int
	conns  map[net.Conn]struct{}
}

func (l *tcpListener) Close() error {
	err := l.ln.Close()
	l.mu.Lock()
	l.closed = true
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
	return err
}

func (l *tcpListener) run(ctx context.Context) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			// closed listener or shutdown
			return
		}
		ip := remoteIPString(conn.RemoteAddr())
		if !l.tryAcquireConn(ip) {
			l.svc.logger.Debug("tcp connection limit reached", "remote", ip)
			conn.Close()
			continue
		}
		if !l.trackConn(conn) {
			conn.Close()
			l.releaseConn(ip)
			return
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.releaseConn(ip)
			defer l.untrackConn(conn)
			l.handleConn(ctx, conn)
		}()
	}
}

// handleConn serves pipelined queries until the peer closes, the recv
// timeout expires, or the query cap is reached. The timeout is re-read
// from the service before every message so SetTCPRecvTimeout updates
// apply to established connections.
func (l *tcpListener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	for served := 0; served < maxQueriesPerConnection; served++ {
		if ctx.Err() != nil {
			return
		}

		data, err := l.readMessage(conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// idle teardown: expected lifecycle
				l.svc.recordTimeout()
				l.svc.logger.Debug("tcp connection idle, dropping", "remote", conn.RemoteAddr().String())
			} else if !errors.Is(err, io.EOF) {
				l.svc.logger.Debug("tcp read failed", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		l.svc.recordQuery("tcp")
		if !l.serveQuery(ctx, conn, data) {
			return
		}
	}
}

// readMessage reads one length-prefixed message. Prefix and body share a
// single deadline: the peer gets one recv-timeout window to deliver the
// complete query.
func (l *tcpListener) readMessage(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(l.svc.recvTimeout())); err != nil {
		return nil, err
	}

	lenPtr := lenBufPool.Get()
	defer lenBufPool.Put(lenPtr)
	lenBuf := *lenPtr

	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, err
	}
	size := int(binary.BigEndian.Uint16(lenBuf))
	if size == 0 {
		return nil, errors.New("zero-length message")
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

// serveQuery runs the lookup/answer cycle for one message and writes the
// framed response. Completion may arrive asynchronously; the connection
// waits for it to keep responses in pipeline order. Reports whether the
// connection should keep serving.
func (l *tcpListener) serveQuery(ctx context.Context, conn net.Conn, data []byte) bool {
	q := &Query{Data: data, RemoteAddr: conn.RemoteAddr(), Protocol: "tcp"}

	resCh := make(chan Result, 1)
	l.svc.lookup.Lookup(ctx, q, func(res Result) {
		resCh <- res
	})

	var res Result
	select {
	case <-ctx.Done():
		return false
	case res = <-resCh:
	}

	if !res.Answered {
		l.svc.recordDropped()
		return true
	}
	resp, err := l.svc.answer.Answer(q, res)
	if err != nil {
		l.svc.logger.Debug("answer provider failed", "remote", conn.RemoteAddr().String(), "error", err)
		l.svc.recordDropped()
		return true
	}
	if len(resp) > maxTCPMessageSize {
		l.svc.logger.Debug("response exceeds tcp frame limit, dropping", "size", len(resp))
		l.svc.recordDropped()
		return true
	}
	return l.writeMessage(conn, resp)
}

func (l *tcpListener) writeMessage(conn net.Conn, resp []byte) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(tcpWriteTimeout)); err != nil {
		return false
	}

	lenPtr := lenBufPool.Get()
	defer lenBufPool.Put(lenPtr)
	lenBuf := *lenPtr
	binary.BigEndian.PutUint16(lenBuf, uint16(len(resp)))

	if _, err := conn.Write(lenBuf); err != nil {
		return false
	}
	if _, err := conn.Write(resp); err != nil {
		return false
	}
	return true
}

// trackConn registers an accepted connection so Close can tear it down.
// It reports false once the listener is closing, plugging the window
// between the accept and Close's sweep.
func (l *tcpListener) trackConn(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *tcpListener) untrackConn(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

func (l *tcpListener) tryAcquireConn(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] >= maxTCPConnectionsPerIP {
		return false
	}
	l.perIP[ip]++
	return true
}

func (l *tcpListener) releaseConn(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] <= 1 {
		delete(l.perIP, ip)
		return
	}
	l.perIP[ip]--
}

func remoteIPString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
