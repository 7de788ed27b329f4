package comm

import (
	"firestige.xyz/nocrw/internal/core/codec"
)

// coalescer gathers encoded packets into one UDP payload.
type coalescer struct {
	buf   []byte
	flush func([]byte) error
}

func newCoalescer(flush func([]byte) error) *coalescer {
	return &coalescer{
		buf:   make([]byte, 0, codec.PacketsPerDatagram*codec.PacketLen),
		flush: flush,
	}
}

// append queues pkt, sending the buffered packets first if pkt would not fit.
func (q *coalescer) append(pkt []byte) error {
	if len(q.buf)+len(pkt) > cap(q.buf) {
		if err := q.Flush(); err != nil {
			return err
		}
	}
	q.buf = append(q.buf, pkt...)
	return nil
}

// Flush sends the buffered packets as one datagram. The buffer is cleared
// even when sending fails so a broken datagram is never resent.
func (q *coalescer) Flush() error {
	if len(q.buf) == 0 {
		return nil
	}
	err := q.flush(q.buf)
	q.buf = q.buf[:0]
	return err
}

func (q *coalescer) Len() int { return len(q.buf) / codec.PacketLen }
