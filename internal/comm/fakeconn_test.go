package comm

import (
	"net"
	"os"
	"sync"
	"time"

	"firestige.xyz/nocrw/internal/core"
)

var (
	fabricAddr = &net.UDPAddr{IP: net.IPv4(192, 168, 42, 240), Port: 1800}
	hostAddr   = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 40000}
)

// fakeConn is an in-memory PacketConn. Datagrams written to it are passed to
// handler, whose replies are queued for ReadFrom. An empty inbox reads as a
// deadline expiry.
type fakeConn struct {
	mu      sync.Mutex
	inbox   [][]byte
	sent    [][]byte
	handler func([]byte) [][]byte
	closed  bool
}

func newFakeConn(handler func([]byte) [][]byte) *fakeConn {
	return &fakeConn{handler: handler}
}

// push queues datagrams as if the fabric had sent them.
func (f *fakeConn) push(datagrams ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range datagrams {
		f.inbox = append(f.inbox, append([]byte(nil), d...))
	}
}

func (f *fakeConn) sentDatagrams() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, nil, net.ErrClosed
	}
	if len(f.inbox) == 0 {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: os.ErrDeadlineExceeded}
	}
	d := f.inbox[0]
	f.inbox = f.inbox[1:]
	return copy(p, d), fabricAddr, nil
}

func (f *fakeConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	d := append([]byte(nil), p...)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, net.ErrClosed
	}
	f.sent = append(f.sent, d)
	h := f.handler
	f.mu.Unlock()

	if h != nil {
		f.push(h(d)...)
	}
	return len(p), nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) LocalAddr() net.Addr              { return hostAddr }
func (f *fakeConn) SetDeadline(time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

// memTap collects recorded datagrams.
type memTap struct {
	mu     sync.Mutex
	got    []core.Datagram
	closed bool
}

func (t *memTap) Record(d core.Datagram) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.got = append(t.got, d)
	return nil
}

func (t *memTap) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
