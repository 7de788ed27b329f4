package comm

import (
	"bytes"
	"fmt"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/metrics"
)

// SelfTest writes SelfTestPattern to the Ethernet module and waits for the
// loopback. Up to SelfTestRetries unrelated datagrams are skipped. On
// failure the Communicator refuses further I/O.
func (c *Communicator) SelfTest() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return opError("self-test", core.EthModule, c.opts.SelfTestAddr, len(SelfTestPattern), err)
	}
	if err := c.selfTest(); err != nil {
		c.unusable = true
		return opError("self-test", core.EthModule, c.opts.SelfTestAddr, len(SelfTestPattern), err)
	}
	return nil
}

func (c *Communicator) selfTest() error {
	if _, err := c.writeNoBurst(core.EthModule, c.opts.SelfTestAddr, SelfTestPattern[:]); err != nil {
		return err
	}

	for retries := 0; retries < c.opts.SelfTestRetries; retries++ {
		buf, err := c.recv(c.opts.ReadTimeout)
		if err != nil {
			if isTimeout(err) {
				metrics.SelfTestTotal.WithLabelValues(metrics.SelfTestTimeout).Inc()
				return fmt.Errorf("%w: %v", core.ErrSelfTestTimeout, err)
			}
			if !core.IsProtocol(err) {
				return err
			}
			continue
		}

		found, err := c.scanLoopback(buf)
		if found {
			if err != nil {
				metrics.SelfTestTotal.WithLabelValues(metrics.SelfTestMismatch).Inc()
				return err
			}
			metrics.SelfTestTotal.WithLabelValues(metrics.SelfTestPass).Inc()
			c.log.Info("self test passed")
			return nil
		}
		c.log.WithField(core.FieldRetry, retries).Debug("skipping unrelated datagram during self test")
	}

	metrics.SelfTestTotal.WithLabelValues(metrics.SelfTestTimeout).Inc()
	return core.ErrSelfTestTimeout
}

// scanLoopback looks for the loopback packet in buf. The burst state is left
// as it was unless the loopback is found.
func (c *Communicator) scanLoopback(buf []byte) (bool, error) {
	saved := c.burst
	defer func() { c.burst = saved }()

	for pos := 0; pos+codec.PacketLen <= len(buf); pos += codec.PacketLen {
		pkt, err := c.decode(buf[pos:], &c.burst)
		if err != nil {
			return false, nil
		}
		if pkt.Flit || pkt.Addr != c.opts.SelfTestAddr {
			continue
		}
		if pkt.Mode != core.ModeWritePosted || pkt.Src != core.EthModule || pkt.Burst {
			return true, fmt.Errorf("%w: mode=%s src=%s burst=%t", core.ErrSelfTestMismatch, pkt.Mode, pkt.Src, pkt.Burst)
		}
		if !bytes.Equal(pkt.Data, SelfTestPattern[:]) {
			return true, fmt.Errorf("%w: got % x", core.ErrSelfTestMismatch, pkt.Data)
		}
		saved.Reset()
		return true, nil
	}
	return false, nil
}
