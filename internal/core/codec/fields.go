package codec

import "firestige.xyz/nocrw/internal/core"

// packRoute packs source, destination and mode into bytes 2..5.
func packRoute(b []byte, src, dst core.ModuleAddress, mode core.Mode) {
	b[0] = src.Module
	b[1] = src.Chip<<2 | dst.Module>>6
	b[2] = dst.Module<<2 | (dst.Chip>>4)&0x3
	b[3] = dst.Chip<<4 | uint8(mode)&0xF
}

// unpackRoute is the inverse of packRoute. The mode is returned unchecked.
func unpackRoute(b []byte) (src, dst core.ModuleAddress, mode core.Mode) {
	src = core.ModuleAddress{Chip: b[1] >> 2, Module: b[0]}
	dst = core.ModuleAddress{
		Chip:   (b[2]&0x3)<<4 | b[3]>>4,
		Module: (b[1]&0x3)<<6 | b[2]>>2,
	}
	mode = core.Mode(b[3] & 0xF)
	return src, dst, mode
}
