package msgq

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/kestreldns/kestrel/internal/data"
)

// Broker routes bus frames between connected clients. Clients subscribe to
// group/instance pairs and send to groups; the broker fans each message
// out to the matching subscribers, never to the sender itself.
//
// Recognized header commands: getlname (assigns the connection's unique
// local name), subscribe, unsubscribe, and send. A malformed frame drops
// the connection; everything it subscribed to is cleaned up.
type Broker struct {
	logger *slog.Logger
	subs   *SubscriptionManager[*client]
	nextID atomic.Uint64
	wg     sync.WaitGroup
}

type client struct {
	conn  net.Conn
	lname string

	// writeMu serializes frames from concurrent fan-out paths.
	writeMu sync.Mutex
}

func (c *client) send(headerBytes, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.conn, headerBytes, payload)
}

// NewBroker creates a broker with no connections.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger: logger,
		subs:   NewSubscriptionManager[*client](),
	}
}

// Serve accepts connections on ln until ctx is done or the listener
// closes. It blocks; the listener is closed on return.
func (b *Broker) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				b.wg.Wait()
				return nil
			}
			b.wg.Wait()
			return fmt.Errorf("accepting bus connection: %w", err)
		}
		c := &client{
			conn:  conn,
			lname: fmt.Sprintf("%d@kestrel-msgq", b.nextID.Add(1)),
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.serveClient(ctx, c)
		}()
	}
}

func (b *Broker) serveClient(ctx context.Context, c *client) {
	defer func() {
		b.subs.UnsubscribeAll(c)
		c.conn.Close()
		b.logger.Debug("bus client gone", "lname", c.lname)
	}()

	b.logger.Debug("bus client connected", "lname", c.lname, "remote", c.conn.RemoteAddr().String())
	for {
		if ctx.Err() != nil {
			return
		}
		f, err := readFrame(c.conn)
		if err != nil {
			// EOF is a normal departure; anything else drops the client
			return
		}
		if err := b.handleFrame(c, f); err != nil {
			b.logger.Warn("dropping bus client", "lname", c.lname, "error", err)
			return
		}
	}
}

func (b *Broker) handleFrame(c *client, f *frame) error {
	cmd, ok := headerString(f.header, "type")
	if !ok {
		return fmt.Errorf("routing header missing type")
	}

	switch cmd {
	case "getlname":
		reply := data.NewMap()
		reply.Set("type", data.NewString("getlname"))
		reply.Set("lname", data.NewString(c.lname))
		return writeHeaderFrame(lockedWriter{c}, reply, nil)

	case "subscribe":
		group, ok := headerString(f.header, "group")
		if !ok {
			return fmt.Errorf("subscribe without group")
		}
		instance, ok := headerString(f.header, "instance")
		if !ok {
			instance = "*"
		}
		b.subs.Subscribe(group, instance, c)
		return nil

	case "unsubscribe":
		group, ok := headerString(f.header, "group")
		if !ok {
			return fmt.Errorf("unsubscribe without group")
		}
		instance, ok := headerString(f.header, "instance")
		if !ok {
			instance = "*"
		}
		b.subs.Unsubscribe(group, instance, c)
		return nil

	case "send":
		return b.route(c, f)
	}
	return fmt.Errorf("unknown bus command %q", cmd)
}

// route fans a send frame out to the group's subscribers. A "to" header
// narrows delivery to one local name; the sender never receives its own
// message.
func (b *Broker) route(from *client, f *frame) error {
	group, ok := headerString(f.header, "group")
	if !ok {
		return fmt.Errorf("send without group")
	}
	instance, ok := headerString(f.header, "instance")
	if !ok {
		instance = "*"
	}
	to, _ := headerString(f.header, "to")

	for _, target := range b.subs.Find(group, instance) {
		if target == from {
			continue
		}
		if to != "" && to != "*" && target.lname != to {
			continue
		}
		if err := target.send(f.headerBytes, f.payload); err != nil {
			b.logger.Debug("bus delivery failed", "to", target.lname, "error", err)
		}
	}
	return nil
}

// lockedWriter adapts a client into an io.Writer that takes the client's
// write lock per frame.
type lockedWriter struct {
	c *client
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

func headerString(header *data.Element, key string) (string, bool) {
	el, ok := header.FindOK(key)
	if !ok {
		return "", false
	}
	return el.GetString()
}
