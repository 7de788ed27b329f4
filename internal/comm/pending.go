package comm

import (
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/metrics"
)

// pendingQueue holds datagram tails that arrived while waiting for something
// else. FIFO, drained by Receive.
type pendingQueue struct {
	items [][]byte
}

// push stores a copy of b.
func (q *pendingQueue) push(b []byte) {
	q.items = append(q.items, append([]byte(nil), b...))
	metrics.PendingDatagrams.Inc()
}

func (q *pendingQueue) pop() ([]byte, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	metrics.PendingDatagrams.Dec()
	return b, true
}

func (q *pendingQueue) Len() int { return len(q.items) }

func (q *pendingQueue) clear() {
	metrics.PendingDatagrams.Sub(float64(len(q.items)))
	q.items = nil
}

// queueTail keeps b, which starts with unsolicited traffic, for Receive. A
// group still open at the end of b claims the leading flits of the next
// datagrams.
func (c *Communicator) queueTail(b []byte) {
	c.pending.push(b)
	c.divert = openGroup(b)
}

// claimDiverted queues the leading flits of buf that continue a queued group
// and returns the remainder.
func (c *Communicator) claimDiverted(buf []byte) []byte {
	n := c.divertedLen(buf)
	if n > 0 {
		c.pending.push(buf[:n])
	}
	return buf[n:]
}

// divertedLen consumes the flits at the start of buf that belong to the
// diverted group and returns their length in bytes.
func (c *Communicator) divertedLen(buf []byte) int {
	n := 0
	for c.divert.Active() && n+codec.PacketLen <= len(buf) {
		// flits never fail to decode
		_, _ = codec.Decode(buf[n:], &c.divert)
		n += codec.PacketLen
	}
	return n
}

// handOff moves a group opened by Receive over to the queued stream so its
// remaining flits are routed the same way as a queued tail's.
func (c *Communicator) handOff() {
	if !c.burst.Active() || c.burst.Discarding() {
		return
	}
	c.divert = c.burst
	c.queued = c.burst
	c.burst.Reset()
}

func (c *Communicator) dropPending() {
	c.pending.clear()
	c.divert.Reset()
	c.queued.Reset()
}

// openGroup returns the decoder state left after the packets of b. A
// malformed tail yields an idle state; Receive reports the error.
func openGroup(b []byte) codec.BurstState {
	var st codec.BurstState
	for pos := 0; pos+codec.PacketLen <= len(b); pos += codec.PacketLen {
		if _, err := codec.Decode(b[pos:], &st); err != nil {
			st.Reset()
			break
		}
	}
	return st
}
