package fabric

import "firestige.xyz/nocrw/internal/core"

// memory is a sparse byte store per module. Unwritten bytes read as zero.
type memory map[core.ModuleAddress]map[uint32]byte

func (m memory) write(target core.ModuleAddress, addr uint32, data []byte) {
	page, ok := m[target]
	if !ok {
		page = make(map[uint32]byte)
		m[target] = page
	}
	for i, b := range data {
		page[addr+uint32(i)] = b
	}
}

func (m memory) read(target core.ModuleAddress, addr uint32, n int) []byte {
	out := make([]byte, n)
	page := m[target]
	if page == nil {
		return out
	}
	for i := range out {
		out[i] = page[addr+uint32(i)]
	}
	return out
}
