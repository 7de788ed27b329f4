package codec

import "math/bits"

// Mask returns the byte-select mask covering the first n logical bytes.
func Mask(n int) uint8 {
	switch {
	case n <= 0:
		return 0
	case n >= BytesPerPacket:
		return 0xFF
	default:
		return 0xFF >> (BytesPerPacket - n)
	}
}

// MaskWindow returns the logical byte window [off, off+n) selected by mask.
// Gaps inside the mask are not representable and are treated as selected.
func MaskWindow(mask uint8) (off, n int) {
	if mask == 0 {
		return 0, 0
	}
	lz := bits.LeadingZeros8(mask)
	tz := bits.TrailingZeros8(mask)
	return tz, BytesPerPacket - lz - tz
}

// MaskBytes counts the bytes covered by mask.
func MaskBytes(mask uint8) int {
	_, n := MaskWindow(mask)
	return n
}

// burstTrim returns how many logical bytes are dropped from the head of the
// first flit and from the tail of the last flit of a burst group.
//
// mask[3:0] is the index of the first valid byte in the first flit (inverted),
// mask[7:4] the index of the last valid byte in the last flit.
func burstTrim(mask uint8) (head, tail int) {
	return int(0xF - mask&0xF), int(0xF - mask>>4)
}

// BurstMask builds the burst header mask for a group whose first flit starts at
// logical byte first and whose last flit ends at logical byte last (inclusive).
func BurstMask(first, last int) uint8 {
	return uint8(last&0xF)<<4 | uint8(0xF-first&0xF)
}
