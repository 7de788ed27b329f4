package comm

import (
	"time"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/metrics"
)

// Receive returns the data of the next unsolicited datagram: queued traffic
// first, otherwise whatever arrives within timeout. Burst headers contribute
// no data, their flits do.
func (c *Communicator) Receive(timeout time.Duration) ([]byte, error) {
	pkts, err := c.ReceivePackets(timeout)
	if err != nil {
		return nil, err
	}
	var res []byte
	for _, p := range pkts {
		res = append(res, p.Data...)
	}
	if res == nil {
		res = []byte{}
	}
	return res, nil
}

// ReceivePackets is Receive keeping packet boundaries. Only packets whose
// mode is WritePosted or Msg and the flits of their groups are returned.
func (c *Communicator) ReceivePackets(timeout time.Duration) ([]codec.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return nil, opError("receive", core.EthModule, 0, 0, err)
	}
	if timeout <= 0 {
		timeout = c.opts.ReadTimeout
	}

	var out []codec.Packet
	if buf, ok := c.pending.pop(); ok {
		pkts, err := c.collect(buf, &c.queued, out)
		if err != nil {
			return nil, opError("receive", core.EthModule, 0, len(buf), err)
		}
		out = pkts
	} else {
		buf, err := c.recv(timeout)
		if err != nil {
			return nil, opError("receive", core.EthModule, 0, len(buf), err)
		}
		n := c.divertedLen(buf)
		if out, err = c.collect(buf[:n], &c.queued, out); err == nil {
			out, err = c.collect(buf[n:], &c.burst, out)
		}
		if err != nil {
			return nil, opError("receive", core.EthModule, 0, len(buf), err)
		}
		c.handOff()
	}

	n := 0
	for _, p := range out {
		n += len(p.Data)
	}
	metrics.BytesTotal.WithLabelValues("receive").Add(float64(n))
	return out, nil
}

// collect decodes the packets of buf with st and appends the unsolicited ones
// to out.
func (c *Communicator) collect(buf []byte, st *codec.BurstState, out []codec.Packet) ([]codec.Packet, error) {
	for pos := 0; pos+codec.PacketLen <= len(buf); pos += codec.PacketLen {
		pkt, err := c.decode(buf[pos:], st)
		if err != nil {
			st.Reset()
			return out, err
		}
		switch {
		case pkt.Flit:
			if pkt.Discarded {
				continue
			}
		case !pkt.Mode.Unsolicited():
			c.log.WithField(core.FieldMode, pkt.Mode.String()).
				WithField(core.FieldAddr, pkt.Addr).
				Debug("ignoring packet while receiving")
			st.Discard()
			continue
		case pkt.BurstStart || pkt.Mode == core.ModeMsg:
			// group headers carry the flit count, not data
			c.log.WithField(core.FieldAddr, pkt.Addr).Tracef("%s header from %s", pkt.Mode, pkt.Src)
			pkt.Data = pkt.Data[:0]
		default:
			c.log.WithField(core.FieldAddr, pkt.Addr).Tracef("received packet from %s: % x", pkt.Src, pkt.Data)
		}
		out = append(out, pkt)
	}
	return out, nil
}
