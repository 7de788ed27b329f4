// Package codec implements the 18-byte NoC packet format carried over UDP.
//
// Normal packet layout:
//
//	0      burst flag
//	1      byte-select mask (MSB = last logical byte)
//	2      source module
//	3      source chip (6) | dest module high (2)
//	4      dest module low (6) | dest chip high (2)
//	5      dest chip low (4) | mode (4)
//	6..9   address, big endian
//	10..17 data, byte-reversed
//
// Burst flits carry the continuation flag in byte 0, 0xFF in byte 1 and 16
// byte-reversed data bytes.
package codec

import "firestige.xyz/nocrw/internal/core"

const (
	PacketLen          = 18
	MaxDatagramLen     = 1472
	PacketsPerDatagram = MaxDatagramLen / PacketLen
	BytesPerPacket     = 8
	BytesPerFlit       = 16

	dataOffset = 10
	flitOffset = 2
)

// Header holds the fields of a normal packet.
type Header struct {
	Burst      bool
	ByteSelect uint8
	Src        core.ModuleAddress
	Dst        core.ModuleAddress
	Mode       core.Mode
	Addr       uint32
}

// Packet is one decoded NoC packet.
type Packet struct {
	Header

	// Flit is set when the packet was decoded as a burst flit; only Data and
	// Header.Burst (the continuation flag) are meaningful then.
	Flit bool
	// BurstStart is set when a normal packet opened a burst group.
	BurstStart bool
	// Discarded is set for flits of a group whose header was rejected.
	Discarded bool

	// Data in logical order.
	Data []byte
	// Payload holds all 8 data bytes of a normal packet in logical order,
	// regardless of the byte-select mask. Burst headers keep their flit
	// count here.
	Payload [BytesPerPacket]byte
}

func reverse(dst, src []byte) {
	n := len(src)
	for i := 0; i < n; i++ {
		dst[i] = src[n-1-i]
	}
}
