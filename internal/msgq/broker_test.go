package msgq

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldns/kestrel/internal/data"
)

func startBroker(t *testing.T) net.Addr {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewBroker(nil).Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("broker did not shut down")
		}
	})
	return ln.Addr()
}

func dialBroker(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func sendCommand(t *testing.T, conn net.Conn, fields map[string]string, payload []byte) {
	t.Helper()
	header := data.NewMap()
	for _, k := range []string{"type", "group", "instance", "to"} {
		if v, ok := fields[k]; ok {
			header.Set(k, data.NewString(v))
		}
	}
	require.NoError(t, writeHeaderFrame(conn, header, payload))
}

func getLname(t *testing.T, conn net.Conn) string {
	t.Helper()
	sendCommand(t, conn, map[string]string{"type": "getlname"}, nil)
	f, err := readFrame(conn)
	require.NoError(t, err)
	lname, ok := f.header.FindOK("lname")
	require.True(t, ok)
	s, ok := lname.GetString()
	require.True(t, ok)
	require.NotEmpty(t, s)
	return s
}

func TestBrokerAssignsUniqueLnames(t *testing.T) {
	addr := startBroker(t)

	a := dialBroker(t, addr)
	b := dialBroker(t, addr)

	assert.NotEqual(t, getLname(t, a), getLname(t, b))
}

func TestBrokerRoutesToGroupSubscribers(t *testing.T) {
	addr := startBroker(t)

	sub := dialBroker(t, addr)
	wild := dialBroker(t, addr)
	other := dialBroker(t, addr)
	sender := dialBroker(t, addr)

	sendCommand(t, sub, map[string]string{"type": "subscribe", "group": "Stats", "instance": "main"}, nil)
	sendCommand(t, wild, map[string]string{"type": "subscribe", "group": "Stats"}, nil)
	sendCommand(t, other, map[string]string{"type": "subscribe", "group": "Boss", "instance": "main"}, nil)

	// getlname round-trips prove the subscribes above were processed
	getLname(t, sub)
	getLname(t, wild)
	getLname(t, other)

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	sendCommand(t, sender, map[string]string{"type": "send", "group": "Stats", "instance": "main"}, payload)

	for _, conn := range []net.Conn{sub, wild} {
		f, err := readFrame(conn)
		require.NoError(t, err)
		typ, ok := f.header.FindOK("type")
		require.True(t, ok)
		s, _ := typ.GetString()
		assert.Equal(t, "send", s)
		assert.Equal(t, payload, f.payload)
	}

	// the Boss subscriber sees nothing
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := readFrame(other)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestBrokerDoesNotEchoToSender(t *testing.T) {
	addr := startBroker(t)

	conn := dialBroker(t, addr)
	sendCommand(t, conn, map[string]string{"type": "subscribe", "group": "Stats"}, nil)
	getLname(t, conn)

	sendCommand(t, conn, map[string]string{"type": "send", "group": "Stats", "instance": "main"}, []byte("x"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := readFrame(conn)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestBrokerHonorsToHeader(t *testing.T) {
	addr := startBroker(t)

	a := dialBroker(t, addr)
	b := dialBroker(t, addr)
	sender := dialBroker(t, addr)

	sendCommand(t, a, map[string]string{"type": "subscribe", "group": "Stats"}, nil)
	sendCommand(t, b, map[string]string{"type": "subscribe", "group": "Stats"}, nil)
	aName := getLname(t, a)
	getLname(t, b)

	sendCommand(t, sender, map[string]string{"type": "send", "group": "Stats", "to": aName}, []byte("direct"))

	f, err := readFrame(a)
	require.NoError(t, err)
	assert.Equal(t, []byte("direct"), f.payload)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = readFrame(b)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	addr := startBroker(t)

	sub := dialBroker(t, addr)
	sender := dialBroker(t, addr)

	sendCommand(t, sub, map[string]string{"type": "subscribe", "group": "Stats", "instance": "main"}, nil)
	sendCommand(t, sub, map[string]string{"type": "unsubscribe", "group": "Stats", "instance": "main"}, nil)
	getLname(t, sub)

	sendCommand(t, sender, map[string]string{"type": "send", "group": "Stats", "instance": "main"}, []byte("x"))

	require.NoError(t, sub.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err := readFrame(sub)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestBrokerDropsClientOnBadFrame(t *testing.T) {
	addr := startBroker(t)

	conn := dialBroker(t, addr)

	// a header that is not a map is a protocol violation
	header, err := data.NewInt(7).ToWire(false)
	require.NoError(t, err)
	require.NoError(t, writeFrame(conn, header, nil))

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameRoundTrip(t *testing.T) {
	header := data.NewMap()
	header.Set("type", data.NewString("send"))
	header.Set("group", data.NewString("Stats"))

	var buf bytes.Buffer
	require.NoError(t, writeHeaderFrame(&buf, header, []byte("payload")))

	f, err := readFrame(&buf)
	require.NoError(t, err)
	assert.True(t, data.Equal(f.header, header))
	assert.Equal(t, []byte("payload"), f.payload)
}

func TestReadFrameRejectsBadLengths(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"total below header length field", []byte{0x00, 0x00, 0x00, 0x01, 0x00}},
		{"header longer than frame", []byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x09, 0x00, 0x00}},
		{"oversized frame", []byte{0xff, 0xff, 0xff, 0xff}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readFrame(bytes.NewReader(tc.raw))
			assert.Error(t, err)
		})
	}
}
