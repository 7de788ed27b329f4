package comm

import (
	"fmt"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/metrics"
)

// Send delivers payload as one message to endpoint on target. The message is
// a Msg burst group: the header carries the flit count and version, its
// byte-select marks the last valid byte of the final flit. Empty payloads are
// sent as a single header packet.
func (c *Communicator) Send(version uint8, target core.ModuleAddress, endpoint uint32, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return opError("send", target, endpoint, len(payload), err)
	}
	if !target.Valid() {
		return opError("send", target, endpoint, len(payload), core.ErrInvalidTarget)
	}
	if limit := c.opts.MaxBurstFlits * codec.BytesPerFlit; len(payload) > limit {
		return opError("send", target, endpoint, len(payload), fmt.Errorf("%w: %d > %d bytes", core.ErrPayloadTooLarge, len(payload), limit))
	}

	if err := c.send(version, target, endpoint, payload); err != nil {
		return opError("send", target, endpoint, len(payload), err)
	}
	metrics.BytesTotal.WithLabelValues("send").Add(float64(len(payload)))
	c.log.WithField(core.FieldTarget, target.String()).
		WithField(core.FieldEP, endpoint).
		WithField(core.FieldLen, len(payload)).
		Debug("message sent")
	return nil
}

func (c *Communicator) send(version uint8, target core.ModuleAddress, endpoint uint32, payload []byte) error {
	mode := core.ModeMsg.String()
	if len(payload) == 0 {
		hdr := codec.EncodeNormal(target, false, 0xFF, endpoint, codec.BurstHeaderPayload(0, version), core.ModeMsg)
		if err := c.appendPacket(hdr, mode); err != nil {
			return err
		}
		return c.tx.Flush()
	}

	flits := (len(payload) + codec.BytesPerFlit - 1) / codec.BytesPerFlit
	last := (len(payload) - 1) % codec.BytesPerFlit
	hdr := codec.EncodeNormal(target, true, codec.BurstMask(0, last), endpoint, codec.BurstHeaderPayload(uint32(flits), version), core.ModeMsg)
	if err := c.appendPacket(hdr, mode); err != nil {
		return err
	}
	for i := 0; i < flits; i++ {
		lo := i * codec.BytesPerFlit
		hi := min(lo+codec.BytesPerFlit, len(payload))
		flit := codec.EncodeBurstFlit(i < flits-1, codec.FlitSlot(payload[lo:hi]))
		if err := c.appendPacket(flit, "flit"); err != nil {
			return err
		}
	}
	return c.tx.Flush()
}
