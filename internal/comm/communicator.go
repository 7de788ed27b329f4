// Package comm implements the Communicator, the host side of the NoC-over-UDP
// link to the fabric's Ethernet bridge.
//
// A Communicator owns one UDP socket and the decoder state that goes with it.
// Every public method runs to completion under a single lock; the only
// blocking points are datagram receives, each bounded by a timeout.
package comm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/xid"
	"golang.org/x/net/ipv4"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/log"
	"firestige.xyz/nocrw/internal/metrics"
)

// Tap observes every datagram exchanged with the fabric.
type Tap interface {
	Record(d core.Datagram) error
	Close() error
}

// Stats is a snapshot of a Communicator's traffic counters.
type Stats struct {
	DatagramsSent     uint64
	DatagramsReceived uint64
	PacketsSent       uint64
	PacketsReceived   uint64
	ReadRetries       uint64
	StaleResponses    uint64
	Pending           int
}

// Communicator drives the NoC protocol over one UDP socket.
type Communicator struct {
	mu sync.Mutex

	conn   net.PacketConn
	remote net.Addr
	opts   Options
	log    log.Logger
	id     xid.ID

	tx        *coalescer
	rxBuf     []byte
	burst     codec.BurstState
	pending   pendingQueue
	divert    codec.BurstState // open group whose start was queued for Receive
	queued    codec.BurstState // decoder state of the queued stream
	nextReqID uint32

	stats    Stats
	unusable bool
	closed   bool
}

// New builds a Communicator over an existing socket. remote is the fabric's
// Ethernet bridge. No self test is run.
func New(conn net.PacketConn, remote net.Addr, opts Options) *Communicator {
	opts.applyDefaults()
	id := xid.New()
	c := &Communicator{
		conn:   conn,
		remote: remote,
		opts:   opts,
		id:     id,
		log:    opts.Logger.WithField(core.FieldSession, id.String()),
		// one spare byte detects oversized datagrams
		rxBuf: make([]byte, codec.MaxDatagramLen+1),
	}
	c.tx = newCoalescer(c.sendDatagram)
	return c
}

// Dial opens a UDP/IPv4 socket to the fabric at remote ("ip:port"),
// optionally resets the fabric and verifies the link with a self test.
func Dial(ctx context.Context, remote string, opts Options) (*Communicator, error) {
	raddr, err := net.ResolveUDPAddr("udp4", remote)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", remote, err)
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", opts.LocalPort))
	if err != nil {
		return nil, fmt.Errorf("bind local port %d: %w", opts.LocalPort, err)
	}

	if err := applyIPOptions(pc, opts.TOS, opts.TTL); err != nil {
		pc.Close()
		return nil, err
	}

	c := New(pc, raddr, opts)
	c.log.WithField(core.FieldPeer, raddr.String()).
		WithField("local", pc.LocalAddr().String()).
		Info("connected to fabric")

	switch {
	case opts.Reset:
		err = c.Reset(ctx, opts.ChipID)
	case !opts.SkipSelfTest:
		err = c.SelfTest()
	}
	if err != nil {
		if cerr := c.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
		return nil, err
	}
	return c, nil
}

func applyIPOptions(pc net.PacketConn, tos, ttl int) error {
	if tos == 0 && ttl == 0 {
		return nil
	}
	p := ipv4.NewPacketConn(pc)
	if tos != 0 {
		if err := p.SetTOS(tos); err != nil {
			return fmt.Errorf("set TOS %#x: %w", tos, err)
		}
	}
	if ttl != 0 {
		if err := p.SetTTL(ttl); err != nil {
			return fmt.Errorf("set TTL %d: %w", ttl, err)
		}
	}
	return nil
}

// SessionID identifies this Communicator in logs and captures.
func (c *Communicator) SessionID() string { return c.id.String() }

// LocalAddr returns the bound socket address.
func (c *Communicator) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the fabric address.
func (c *Communicator) RemoteAddr() net.Addr { return c.remote }

// Stats returns a snapshot of the traffic counters.
func (c *Communicator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Pending = c.pending.Len()
	return s
}

// Close flushes queued packets and releases the socket and tap.
func (c *Communicator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs *multierror.Error
	if !c.unusable {
		if err := c.tx.Flush(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("flush: %w", err))
		}
	}
	if err := c.conn.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close socket: %w", err))
	}
	if c.opts.Tap != nil {
		if err := c.opts.Tap.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close tap: %w", err))
		}
	}
	c.dropPending()
	c.log.Debug("communicator closed")
	return errs.ErrorOrNil()
}

// usable guards every operation; callers hold mu.
func (c *Communicator) usable() error {
	switch {
	case c.closed:
		return core.ErrClosed
	case c.unusable:
		return core.ErrUnusable
	}
	return nil
}

// ─── datagram I/O ───

func (c *Communicator) sendDatagram(b []byte) error {
	if _, err := c.conn.WriteTo(b, c.remote); err != nil {
		return err
	}
	c.stats.DatagramsSent++
	metrics.DatagramsTotal.WithLabelValues(metrics.DirectionTx).Inc()
	c.record(core.Outbound, b, c.remote)
	return nil
}

// appendPacket queues one encoded packet for transmission.
func (c *Communicator) appendPacket(pkt [codec.PacketLen]byte, label string) error {
	if c.log.IsTraceEnabled() {
		c.log.Tracef("-> NoC packet: % x", pkt[:])
	}
	if err := c.tx.append(pkt[:]); err != nil {
		return err
	}
	c.stats.PacketsSent++
	metrics.PacketsTotal.WithLabelValues(metrics.DirectionTx, label).Inc()
	return nil
}

// recv waits up to timeout for one datagram. The returned slice is only
// valid until the next call. Datagrams that are not a whole number of
// packets yield ErrMalformedDatagram together with the raw bytes.
func (c *Communicator) recv(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, from, err := c.conn.ReadFrom(c.rxBuf)
	if err != nil {
		return nil, err
	}
	b := c.rxBuf[:n]
	c.stats.DatagramsReceived++
	metrics.DatagramsTotal.WithLabelValues(metrics.DirectionRx).Inc()
	c.record(core.Inbound, b, from)

	if err := codec.CheckDatagram(n); err != nil {
		metrics.ProtocolErrorsTotal.WithLabelValues("datagram").Inc()
		return b, err
	}
	c.stats.PacketsReceived += uint64(n / codec.PacketLen)
	return b, nil
}

// decode decodes one received packet with st, logging and counting it.
func (c *Communicator) decode(b []byte, st *codec.BurstState) (codec.Packet, error) {
	if c.log.IsTraceEnabled() {
		c.log.Tracef("<- NoC packet: % x", b[:codec.PacketLen])
	}
	pkt, err := codec.Decode(b, st)
	if err != nil {
		metrics.ProtocolErrorsTotal.WithLabelValues("packet").Inc()
		return pkt, err
	}
	label := "flit"
	if !pkt.Flit {
		label = pkt.Mode.String()
	}
	metrics.PacketsTotal.WithLabelValues(metrics.DirectionRx, label).Inc()
	return pkt, nil
}

func (c *Communicator) record(dir core.Direction, b []byte, peer net.Addr) {
	if c.opts.Tap == nil {
		return
	}
	d := core.Datagram{
		Data:      append([]byte(nil), b...),
		Timestamp: time.Now(),
		Local:     addrPort(c.conn.LocalAddr()),
		Peer:      addrPort(peer),
		Direction: dir,
	}
	if err := c.opts.Tap.Record(d); err != nil {
		c.log.WithError(err).Warn("failed to record datagram")
	}
}

func addrPort(a net.Addr) netip.AddrPort {
	var ap netip.AddrPort
	switch u := a.(type) {
	case nil:
		return ap
	case *net.UDPAddr:
		if u == nil {
			return ap
		}
		ap = u.AddrPort()
	default:
		ap, _ = netip.ParseAddrPort(a.String())
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// isTimeout reports whether err is a receive deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func checkRange(target core.ModuleAddress, addr uint32, n int) error {
	if !target.Valid() {
		return core.ErrInvalidTarget
	}
	if n < 0 || uint64(addr)+uint64(n) > 1<<32 {
		return core.ErrAddressOverflow
	}
	return nil
}

func opError(op string, target core.ModuleAddress, addr uint32, n int, err error) error {
	if err == nil {
		return nil
	}
	return &core.OpError{Op: op, Target: target, Addr: addr, Len: n, Err: err}
}
