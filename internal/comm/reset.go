package comm

import (
	"context"
	"encoding/binary"
	"time"

	"firestige.xyz/nocrw/internal/core"
)

// ResetRegister is the Ethernet module's config register 0; writing 1 resets
// the chip.
const ResetRegister uint32 = 0xF0003028

// Reset resets chip through its Ethernet module, waits ResetDelay for the
// fabric to come back and runs the self test.
func (c *Communicator) Reset(ctx context.Context, chip uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := core.Addr(chip, core.ModuleEthernet)
	if err := c.usable(); err != nil {
		return opError("reset", target, ResetRegister, 8, err)
	}
	if !target.Valid() {
		return opError("reset", target, ResetRegister, 8, core.ErrInvalidTarget)
	}

	var cmd [8]byte
	binary.LittleEndian.PutUint64(cmd[:], 1)
	if _, err := c.writeNoBurst(target, ResetRegister, cmd[:]); err != nil {
		return opError("reset", target, ResetRegister, 8, err)
	}
	c.log.WithField(core.FieldTarget, target.String()).
		WithField("delay", c.opts.ResetDelay.String()).
		Info("fabric reset issued")

	t := time.NewTimer(c.opts.ResetDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return opError("reset", target, ResetRegister, 8, ctx.Err())
	case <-t.C:
	}

	// whatever was in flight before the reset is meaningless now
	c.burst.Reset()
	c.dropPending()

	if c.opts.SkipSelfTest {
		return nil
	}
	if err := c.selfTest(); err != nil {
		c.unusable = true
		return opError("self-test", core.EthModule, c.opts.SelfTestAddr, len(SelfTestPattern), err)
	}
	return nil
}
