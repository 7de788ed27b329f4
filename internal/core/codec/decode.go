package codec

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/nocrw/internal/core"
)

// BurstState is the decoder state carried between packets of one stream.
// It is a plain value: copy it to snapshot, assign the copy back to roll back.
type BurstState struct {
	active  bool
	mask    uint8
	first   bool
	discard bool
}

// Active reports whether the next packet is decoded as a burst flit.
func (s BurstState) Active() bool { return s.active }

// Discarding reports whether the flits of the current group are dropped.
func (s BurstState) Discarding() bool { return s.active && s.discard }

// Discard marks the running group so its flits are consumed without data.
func (s *BurstState) Discard() {
	if s.active {
		s.discard = true
	}
}

// Reset clears any burst in progress.
func (s *BurstState) Reset() { *s = BurstState{} }

func (s BurstState) String() string {
	if !s.active {
		return "none"
	}
	return fmt.Sprintf("mask=%#02x first=%t discard=%t", s.mask, s.first, s.discard)
}

// Decode decodes the first PacketLen bytes of b, updating st.
func Decode(b []byte, st *BurstState) (Packet, error) {
	if len(b) < PacketLen {
		return Packet{}, core.ErrShortPacket
	}
	if st.active {
		return decodeFlit(b, st), nil
	}
	return decodeNormal(b, st)
}

func decodeFlit(b []byte, st *BurstState) Packet {
	head, tail := burstTrim(st.mask)
	begin, end := 0, 0
	last := b[0] == 0
	if last {
		begin = tail
	}
	if st.first {
		end = head
	}

	pkt := Packet{Flit: true, Discarded: st.discard}
	pkt.Burst = !last

	st.first = false
	if last {
		st.Reset()
	}

	lo, hi := flitOffset+begin, PacketLen-end
	if lo > hi || pkt.Discarded {
		pkt.Data = []byte{}
		return pkt
	}
	pkt.Data = make([]byte, hi-lo)
	reverse(pkt.Data, b[lo:hi])
	return pkt
}

func decodeNormal(b []byte, st *BurstState) (Packet, error) {
	src, dst, mode := unpackRoute(b[2:6])
	if !mode.Valid() {
		return Packet{}, fmt.Errorf("%w: %d", core.ErrUnknownMode, uint8(mode))
	}

	pkt := Packet{
		Header: Header{
			Burst:      b[0] != 0,
			ByteSelect: b[1],
			Src:        src,
			Dst:        dst,
			Mode:       mode,
			Addr:       binary.BigEndian.Uint32(b[6:10]),
		},
	}
	if pkt.Burst {
		*st = BurstState{active: true, mask: b[1], first: true}
		pkt.BurstStart = true
	}

	reverse(pkt.Payload[:], b[dataOffset:PacketLen])
	off, n := MaskWindow(b[1])
	pkt.Data = make([]byte, n)
	// logical [off, off+n) sits at wire [18-off-n, 18-off)
	reverse(pkt.Data, b[PacketLen-off-n:PacketLen-off])
	return pkt, nil
}

// SplitDatagram splits a datagram into its 18-byte packets.
func SplitDatagram(buf []byte) ([][]byte, error) {
	if err := CheckDatagram(len(buf)); err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(buf)/PacketLen)
	for pos := 0; pos+PacketLen <= len(buf); pos += PacketLen {
		out = append(out, buf[pos:pos+PacketLen])
	}
	return out, nil
}

// CheckDatagram validates a datagram length.
func CheckDatagram(n int) error {
	if n == 0 || n%PacketLen != 0 || n > MaxDatagramLen {
		return fmt.Errorf("%w: %d bytes", core.ErrMalformedDatagram, n)
	}
	return nil
}
