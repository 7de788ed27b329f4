package codec

import "encoding/binary"

// ReadRequestPayload packs a read request: byte count in the upper and
// request id in the lower 32 bits of a little-endian u64.
func ReadRequestPayload(count, id uint32) [BytesPerPacket]byte {
	var p [BytesPerPacket]byte
	binary.LittleEndian.PutUint64(p[:], uint64(count)<<32|uint64(id))
	return p
}

// ParseReadRequest is the inverse of ReadRequestPayload.
func ParseReadRequest(data []byte) (count, id uint32) {
	s := Slot(data)
	v := binary.LittleEndian.Uint64(s[:])
	return uint32(v >> 32), uint32(v)
}

// BurstHeaderPayload packs the flit count of a burst group. Messages carry
// their protocol version in the top byte.
func BurstHeaderPayload(flits uint32, version uint8) [BytesPerPacket]byte {
	var p [BytesPerPacket]byte
	binary.LittleEndian.PutUint64(p[:], uint64(version)<<56|uint64(flits))
	return p
}

// ParseBurstHeader is the inverse of BurstHeaderPayload.
func ParseBurstHeader(data []byte) (flits uint32, version uint8) {
	s := Slot(data)
	v := binary.LittleEndian.Uint64(s[:])
	return uint32(v), uint8(v >> 56)
}
