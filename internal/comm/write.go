package comm

import (
	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/metrics"
)

// Write writes data to target at addr, using burst groups when burst is set.
func (c *Communicator) Write(target core.ModuleAddress, addr uint32, data []byte, burst bool) (int, error) {
	if burst {
		return c.WriteBurst(target, addr, data)
	}
	return c.WriteNoBurst(target, addr, data)
}

// WriteNoBurst writes data as posted 8-byte packets: one leading packet up to
// the next 8-byte boundary, full packets, then one trailing partial packet.
func (c *Communicator) WriteNoBurst(target core.ModuleAddress, addr uint32, data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkWrite(target, addr, data); err != nil {
		return 0, opError("write", target, addr, len(data), err)
	}
	n, err := c.writeNoBurst(target, addr, data)
	if err != nil {
		return 0, opError("write", target, addr, len(data), err)
	}
	metrics.BytesTotal.WithLabelValues("write").Add(float64(n))
	return n, nil
}

// WriteBurst writes the 16-byte multiple prefix of data as burst groups of at
// most MaxBurstFlits flits and the rest as posted packets. Addresses that are
// not 16-byte aligned use WriteNoBurst for everything.
func (c *Communicator) WriteBurst(target core.ModuleAddress, addr uint32, data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkWrite(target, addr, data); err != nil {
		return 0, opError("write", target, addr, len(data), err)
	}
	n, err := c.writeBurst(target, addr, data)
	if err != nil {
		return 0, opError("write", target, addr, len(data), err)
	}
	metrics.BytesTotal.WithLabelValues("write").Add(float64(n))
	return n, nil
}

func (c *Communicator) checkWrite(target core.ModuleAddress, addr uint32, data []byte) error {
	if err := c.usable(); err != nil {
		return err
	}
	return checkRange(target, addr, len(data))
}

func (c *Communicator) writeNoBurst(target core.ModuleAddress, addr uint32, data []byte) (int, error) {
	pos := 0
	put := func(n int) error {
		pkt := codec.EncodeNormal(target, false, codec.Mask(n), addr, codec.Slot(data[pos:pos+n]), core.ModeWritePosted)
		if err := c.appendPacket(pkt, core.ModeWritePosted.String()); err != nil {
			return err
		}
		addr += uint32(n)
		pos += n
		return nil
	}

	// align first
	if rem := int(addr % codec.BytesPerPacket); rem != 0 && len(data) > 0 {
		if err := put(min(codec.BytesPerPacket-rem, len(data))); err != nil {
			return 0, err
		}
	}
	for len(data)-pos >= codec.BytesPerPacket {
		if err := put(codec.BytesPerPacket); err != nil {
			return 0, err
		}
	}
	if pos < len(data) {
		if err := put(len(data) - pos); err != nil {
			return 0, err
		}
	}

	if err := c.tx.Flush(); err != nil {
		return 0, err
	}
	return pos, nil
}

func (c *Communicator) writeBurst(target core.ModuleAddress, addr uint32, data []byte) (int, error) {
	if addr%codec.BytesPerFlit != 0 {
		c.log.WithField(core.FieldAddr, addr).Debug("burst write not 16-byte aligned, using posted packets")
		return c.writeNoBurst(target, addr, data)
	}

	pos := 0
	flitsLeft := len(data) / codec.BytesPerFlit
	for flitsLeft > 0 {
		flits := min(flitsLeft, c.opts.MaxBurstFlits)
		hdr := codec.EncodeNormal(target, true, 0xFF, addr, codec.BurstHeaderPayload(uint32(flits), 0), core.ModeWritePosted)
		if err := c.appendPacket(hdr, core.ModeWritePosted.String()); err != nil {
			return 0, err
		}
		for i := 0; i < flits; i++ {
			flit := codec.EncodeBurstFlit(i < flits-1, codec.FlitSlot(data[pos:pos+codec.BytesPerFlit]))
			if err := c.appendPacket(flit, "flit"); err != nil {
				return 0, err
			}
			pos += codec.BytesPerFlit
		}
		addr += uint32(flits * codec.BytesPerFlit)
		flitsLeft -= flits
	}

	n, err := c.writeNoBurst(target, addr, data[pos:])
	if err != nil {
		return 0, err
	}
	return pos + n, nil
}
