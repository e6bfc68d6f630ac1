// Package service implements the DNS service listener: it adopts
// already-bound sockets into the shared event loop and dispatches every
// inbound message to externally supplied lookup and answer providers.
//
// The service owns socket lifecycle and per-connection timeout policy and
// nothing else; it never parses DNS messages. AddServer and ClearServers
// carry no internal locking and must be called from the goroutine driving
// the loop, matching the single-threaded contract of the event loop the
// service runs on.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kestreldns/kestrel/internal/ioloop"
	"github.com/kestreldns/kestrel/internal/stats"
)

// ServerFlag selects optional properties of a UDP listener. Flags are
// bitwise-composable; only ServerSyncOK is currently defined.
type ServerFlag uint32

const (
	// ServerDefault requests no particular property.
	ServerDefault ServerFlag = 0

	// ServerSyncOK asserts that the lookup provider always completes the
	// query and releases the query buffer before returning. A listener
	// may exploit that to skip the otherwise mandatory buffer copy; the
	// non-synchronous mode remains functionally compatible.
	ServerSyncOK ServerFlag = 1
)

// flagSet validates option bits at the module boundary. Constructed once;
// every AddServerUDPFromFD call checks against it.
type flagSet struct {
	defined ServerFlag
}

var serverFlags = flagSet{defined: ServerSyncOK}

func (f flagSet) valid(options ServerFlag) bool {
	return options&^f.defined == 0
}

// defaultTCPRecvTimeout applies until SetTCPRecvTimeout is called.
const defaultTCPRecvTimeout = 10 * time.Second

// Service dispatches DNS queries arriving on adopted sockets to its lookup
// and answer providers.
type Service struct {
	loop   *ioloop.Loop
	lookup Lookup
	answer Answer
	logger *slog.Logger
	stats  *stats.Collector

	// tcpRecvTimeout is read by every established connection before each
	// message, so updates apply live.
	tcpRecvTimeout atomic.Int64

	// listeners is only touched from the loop goroutine (see package doc).
	listeners []io.Closer

	wg sync.WaitGroup
}

// Option configures a Service created by New.
type Option func(*Service)

// WithLogger sets the logger used by the service and its listeners.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithStats makes the service record per-query counters into c.
func WithStats(c *stats.Collector) Option {
	return func(s *Service) { s.stats = c }
}

// New creates a service without any servers; use AddServerTCPFromFD and
// AddServerUDPFromFD to add some. The loop is shared, not owned.
func New(loop *ioloop.Loop, lookup Lookup, answer Answer, opts ...Option) *Service {
	s := &Service{
		loop:   loop,
		lookup: lookup,
		answer: answer,
		logger: slog.Default(),
	}
	s.tcpRecvTimeout.Store(int64(defaultTCPRecvTimeout))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddServerTCPFromFD adopts an already-bound TCP socket of the given
// address family as a new listener. The descriptor must be ready for
// listening but not yet listening; the service issues listen(2) itself.
// TCP listeners take no option flags.
//
// Registration failures are synchronous and final: ErrInvalidParameter for
// an address family other than AF_INET/AF_INET6, ErrIO when the descriptor
// cannot be adopted. Retry policy, if any, belongs to the caller.
func (s *Service) AddServerTCPFromFD(fd, af int) error {
	if err := checkAddressFamily(af); err != nil {
		return err
	}
	ln, err := adoptTCPListener(fd)
	if err != nil {
		return err
	}
	l := &tcpListener{svc: s, ln: ln, perIP: map[string]int{}, conns: map[net.Conn]struct{}{}}
	s.listeners = append(s.listeners, l)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		l.run(s.loop.Context())
	}()
	s.logger.Debug("tcp listener adopted", "fd", fd, "addr", ln.Addr().String())
	return nil
}

// AddServerUDPFromFD adopts an already-bound UDP socket of the given
// address family as a new listener. options must be a combination of
// defined ServerFlag bits; anything else is an ErrInvalidParameter.
func (s *Service) AddServerUDPFromFD(fd, af int, options ServerFlag) error {
	if err := checkAddressFamily(af); err != nil {
		return err
	}
	if !serverFlags.valid(options) {
		return fmt.Errorf("undefined server flags 0x%x: %w", uint32(options), ErrInvalidParameter)
	}
	conn, err := adoptUDPConn(fd)
	if err != nil {
		return err
	}
	l := &udpListener{
		svc:    s,
		conn:   conn,
		syncOK: options&ServerSyncOK != 0,
		sem:    make(chan struct{}, maxUDPConcurrency),
	}
	s.listeners = append(s.listeners, l)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		l.run(s.loop.Context())
	}()
	s.logger.Debug("udp listener adopted",
		"fd", fd, "addr", conn.LocalAddr().String(), "sync_ok", l.syncOK)
	return nil
}

// ClearServers deregisters and releases every listener previously added.
// Idempotent; clearing an empty service is a no-op.
func (s *Service) ClearServers() {
	for _, l := range s.listeners {
		if err := l.Close(); err != nil {
			s.logger.Debug("listener close", "error", err)
		}
	}
	s.listeners = nil
	s.wg.Wait()
}

// SetTCPRecvTimeout sets the idle window within which an established TCP
// connection must deliver a complete query before the service tears it
// down. Existing connections observe the update from their next message;
// the value is also retained for listeners created later.
func (s *Service) SetTCPRecvTimeout(d time.Duration) {
	s.tcpRecvTimeout.Store(int64(d))
}

func (s *Service) recvTimeout() time.Duration {
	return time.Duration(s.tcpRecvTimeout.Load())
}

// Loop returns the event loop the service runs on, for shared use by
// co-located components. The service keeps ownership.
func (s *Service) Loop() *ioloop.Loop {
	return s.loop
}

func checkAddressFamily(af int) error {
	if af != unix.AF_INET && af != unix.AF_INET6 {
		return fmt.Errorf("address family %d is neither AF_INET nor AF_INET6: %w", af, ErrInvalidParameter)
	}
	return nil
}

func (s *Service) recordQuery(protocol string) {
	if s.stats != nil {
		s.stats.RecordQuery(protocol)
	}
}

func (s *Service) recordDropped() {
	if s.stats != nil {
		s.stats.RecordDropped()
	}
}

func (s *Service) recordTimeout() {
	if s.stats != nil {
		s.stats.RecordTimeout()
	}
}
