package codec

import (
	"encoding/binary"

	"firestige.xyz/nocrw/internal/core"
)

// Encode builds a normal packet from h and 8 logical data bytes.
func Encode(h Header, data [BytesPerPacket]byte) [PacketLen]byte {
	var pkt [PacketLen]byte
	if h.Burst {
		pkt[0] = 1
	}
	pkt[1] = h.ByteSelect
	packRoute(pkt[2:6], h.Src, h.Dst, h.Mode)
	binary.BigEndian.PutUint32(pkt[6:10], h.Addr)
	reverse(pkt[dataOffset:], data[:])
	return pkt
}

// EncodeNormal builds a packet sent by the host, i.e. from core.EthModule.
func EncodeNormal(target core.ModuleAddress, burst bool, bsel uint8, addr uint32, data [BytesPerPacket]byte, mode core.Mode) [PacketLen]byte {
	return Encode(Header{
		Burst:      burst,
		ByteSelect: bsel,
		Src:        core.EthModule,
		Dst:        target,
		Mode:       mode,
		Addr:       addr,
	}, data)
}

// EncodeBurstFlit builds one 16-byte burst flit. continues is false only for
// the last flit of a group.
func EncodeBurstFlit(continues bool, data [BytesPerFlit]byte) [PacketLen]byte {
	var pkt [PacketLen]byte
	if continues {
		pkt[0] = 1
	}
	pkt[1] = 0xFF
	reverse(pkt[flitOffset:], data[:])
	return pkt
}

// Slot copies up to 8 bytes of src into a zero-padded packet payload.
func Slot(src []byte) [BytesPerPacket]byte {
	var s [BytesPerPacket]byte
	copy(s[:], src)
	return s
}

// FlitSlot copies up to 16 bytes of src into a zero-padded flit payload.
func FlitSlot(src []byte) [BytesPerFlit]byte {
	var s [BytesPerFlit]byte
	copy(s[:], src)
	return s
}
