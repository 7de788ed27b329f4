package comm

import (
	"time"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/metrics"
)

// Read reads length bytes from target starting at addr. The range is split
// into requests of at most MaxReadChunk bytes; transport failures are retried
// until ReadRetries failures have accumulated over the whole read.
func (c *Communicator) Read(target core.ModuleAddress, addr uint32, length int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return nil, opError("read", target, addr, length, err)
	}
	if err := checkRange(target, addr, length); err != nil {
		return nil, opError("read", target, addr, length, err)
	}

	res, err := c.read(target, addr, length)
	if err != nil {
		return nil, opError("read", target, addr, length, err)
	}
	metrics.BytesTotal.WithLabelValues("read").Add(float64(len(res)))
	return res, nil
}

func (c *Communicator) read(target core.ModuleAddress, addr uint32, length int) ([]byte, error) {
	res := make([]byte, 0, length)
	failures := 0
	for len(res) < length {
		at := addr + uint32(len(res))
		chunk, err := c.readSingle(target, at, length-len(res))
		if err != nil {
			if core.IsProtocol(err) {
				c.log.WithError(err).WithField(core.FieldAddr, at).Error("read aborted on protocol error")
				return nil, err
			}
			failures++
			if failures >= c.opts.ReadRetries {
				c.log.WithError(err).
					WithField(core.FieldTarget, target.String()).
					WithField(core.FieldAddr, at).
					Error("read request failed, giving up")
				return nil, err
			}
			c.stats.ReadRetries++
			metrics.ReadRetriesTotal.Inc()
			c.log.WithError(err).
				WithField(core.FieldTarget, target.String()).
				WithField(core.FieldAddr, at).
				WithField(core.FieldRetry, failures).
				Warn("read request failed, retrying")
			continue
		}
		res = append(res, chunk...)
	}
	return res, nil
}

// readSingle issues one read request and collects its response. It returns
// the bytes of this request only; nothing is kept from a failed attempt.
func (c *Communicator) readSingle(target core.ModuleAddress, addr uint32, want int) ([]byte, error) {
	count := min(want, c.opts.MaxReadChunk)

	// Responses carry id + offset in their address field. Advancing the
	// counter past the whole window keeps late replies of earlier requests
	// from matching this one.
	id := c.nextReqID
	c.nextReqID += uint32(count)

	req := codec.EncodeNormal(target, false, 0xFF, addr, codec.ReadRequestPayload(uint32(count), id), core.ModeReadReq)
	if err := c.appendPacket(req, core.ModeReadReq.String()); err != nil {
		return nil, err
	}
	if err := c.tx.Flush(); err != nil {
		return nil, err
	}

	start := time.Now()
	expect := id
	res := make([]byte, 0, count)
	for len(res) < count {
		buf, err := c.recv(c.opts.ReadTimeout)
		if err != nil {
			// a half-received burst must not leak into the retry
			c.burst.Reset()
			return nil, err
		}
		buf = c.claimDiverted(buf)

	scan:
		for pos := 0; pos+codec.PacketLen <= len(buf); pos += codec.PacketLen {
			saved := c.burst
			pkt, err := c.decode(buf[pos:], &c.burst)
			if err != nil {
				c.burst.Reset()
				return nil, err
			}

			switch {
			case pkt.Flit:
				if pkt.Discarded {
					continue
				}
				res = append(res, pkt.Data...)
				expect += uint32(len(pkt.Data))

			case pkt.Mode.Unsolicited():
				// keep the rest of the datagram for Receive
				c.log.WithField(core.FieldMode, pkt.Mode.String()).Debug("keeping unsolicited packet for later")
				c.burst = saved
				c.queueTail(buf[pos:])
				break scan

			case pkt.Mode != core.ModeReadResp:
				c.log.WithField(core.FieldMode, pkt.Mode.String()).Debug("ignoring packet")
				c.burst.Discard()

			case pkt.Addr != expect:
				c.log.WithField(core.FieldReqID, pkt.Addr).
					WithField("expected", expect).
					Debug("ignoring stale read response")
				c.stats.StaleResponses++
				metrics.StaleResponsesTotal.Inc()
				c.burst.Discard()

			case pkt.BurstStart:
				c.log.WithField(core.FieldReqID, pkt.Addr).Tracef("burst-start from %s", pkt.Src)

			default:
				res = append(res, pkt.Data...)
				expect += uint32(len(pkt.Data))
			}
		}
	}

	if len(res) > count {
		c.log.WithField(core.FieldLen, len(res)).WithField("expected", count).Warn("read response longer than requested")
		res = res[:count]
	}
	metrics.ReadLatencySeconds.Observe(time.Since(start).Seconds())
	return res, nil
}
