// Package nocrw is the public API of the NoC-over-UDP driver. A Client talks
// to one fabric; modules are addressed by (chip, module) pairs.
package nocrw

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"firestige.xyz/nocrw/internal/capture"
	"firestige.xyz/nocrw/internal/comm"
	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/log"
)

// Well-known module ids.
const (
	ModuleEthernet = core.ModuleEthernet
)

// Stats is a snapshot of a Client's traffic counters.
type Stats = comm.Stats

// Client is a connection to one fabric. It is safe for concurrent use;
// operations are serialized.
type Client struct {
	mu   sync.Mutex
	comm *comm.Communicator
	rec  *capture.Recorder
}

type settings struct {
	opts        comm.Options
	capture     bool
	capturePath string
}

// Option tunes Connect.
type Option func(*settings)

// WithChipID selects the chip reset by WithReset.
func WithChipID(id uint8) Option {
	return func(s *settings) { s.opts.ChipID = id }
}

// WithReset resets the chip before the link check.
func WithReset() Option {
	return func(s *settings) { s.opts.Reset = true }
}

// WithResetDelay sets how long to wait for the fabric after a reset.
func WithResetDelay(d time.Duration) Option {
	return func(s *settings) { s.opts.ResetDelay = d }
}

// WithLocalPort binds the host socket to port instead of an ephemeral one.
func WithLocalPort(port int) Option {
	return func(s *settings) { s.opts.LocalPort = port }
}

// WithReadTimeout sets the per-datagram receive timeout of reads.
func WithReadTimeout(d time.Duration) Option {
	return func(s *settings) { s.opts.ReadTimeout = d }
}

// WithReadRetries sets how many failed requests a read tolerates.
func WithReadRetries(n int) Option {
	return func(s *settings) { s.opts.ReadRetries = n }
}

// WithoutSelfTest skips the loopback check on connect.
func WithoutSelfTest() Option {
	return func(s *settings) { s.opts.SkipSelfTest = true }
}

// WithCapture records all traffic to a pcap file. An empty path picks a
// generated name.
func WithCapture(path string) Option {
	return func(s *settings) {
		s.capture = true
		s.capturePath = path
	}
}

// WithOptions replaces the Communicator options wholesale. Later options
// still apply on top.
func WithOptions(o comm.Options) Option {
	return func(s *settings) { s.opts = o }
}

// Connect opens a connection to the fabric at ip:port and verifies the link.
func Connect(ctx context.Context, ip string, port int, options ...Option) (*Client, error) {
	s := settings{opts: comm.Options{Logger: log.GetLogger()}}
	for _, o := range options {
		o(&s)
	}

	cl := &Client{}
	if s.capture {
		rec, err := capture.Open(s.capturePath)
		if err != nil {
			return nil, fmt.Errorf("connect failed: %w", err)
		}
		cl.rec = rec
		s.opts.Tap = rec
	}

	c, err := comm.Dial(ctx, net.JoinHostPort(ip, strconv.Itoa(port)), s.opts)
	if err != nil {
		if cl.rec != nil {
			cl.rec.Close()
		}
		return nil, fmt.Errorf("connect failed: %w", err)
	}
	cl.comm = c
	return cl, nil
}

// Read reads length bytes from module on chip starting at addr.
func (cl *Client) Read(chip, module uint8, addr uint32, length int) ([]byte, error) {
	c, err := cl.get()
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	data, err := c.Read(core.Addr(chip, module), addr, length)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	return data, nil
}

// Write writes data to module on chip at addr, as burst groups if burst is set.
func (cl *Client) Write(chip, module uint8, addr uint32, data []byte, burst bool) error {
	c, err := cl.get()
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if _, err := c.Write(core.Addr(chip, module), addr, data, burst); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Send delivers data as one message to endpoint of module on chip.
func (cl *Client) Send(version, chip, module uint8, endpoint uint32, data []byte) error {
	c, err := cl.get()
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	if err := c.Send(version, core.Addr(chip, module), endpoint, data); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

// Receive returns the data of unsolicited traffic, waiting up to timeout.
func (cl *Client) Receive(timeout time.Duration) ([]byte, error) {
	c, err := cl.get()
	if err != nil {
		return nil, fmt.Errorf("receive failed: %w", err)
	}
	data, err := c.Receive(timeout)
	if err != nil {
		return nil, fmt.Errorf("receive failed: %w", err)
	}
	return data, nil
}

// Reset resets chip and re-checks the link.
func (cl *Client) Reset(ctx context.Context, chip uint8) error {
	c, err := cl.get()
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	if err := c.Reset(ctx, chip); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	return nil
}

// Stats returns the traffic counters of the connection.
func (cl *Client) Stats() Stats {
	c, err := cl.get()
	if err != nil {
		return Stats{}
	}
	return c.Stats()
}

// CapturePath returns the pcap file in use, or "".
func (cl *Client) CapturePath() string {
	if cl.rec == nil {
		return ""
	}
	return cl.rec.Path()
}

// Close disconnects. Further calls fail with ErrClosed.
func (cl *Client) Close() error {
	cl.mu.Lock()
	c := cl.comm
	cl.comm = nil
	cl.mu.Unlock()
	if c == nil {
		return nil
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}

func (cl *Client) get() (*comm.Communicator, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.comm == nil {
		return nil, core.ErrClosed
	}
	return cl.comm, nil
}
