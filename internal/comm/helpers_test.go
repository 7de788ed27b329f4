package comm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/fabric"
	"firestige.xyz/nocrw/internal/log"
)

var dram = core.Addr(1, 6)

func testOptions() Options {
	return Options{
		ReadTimeout: 10 * time.Millisecond,
		ResetDelay:  time.Millisecond,
		Logger:      log.Nop(),
	}
}

func newComm(t *testing.T, conn *fakeConn, opts Options) *Communicator {
	t.Helper()
	c := New(conn, fabricAddr, opts)
	t.Cleanup(func() { c.Close() })
	return c
}

// newEmulated wires a Communicator to an in-process fabric.
func newEmulated(t *testing.T, burstReads bool, opts Options) (*Communicator, *fabric.Emulator, *fakeConn) {
	t.Helper()
	emu := fabric.New(fabric.Options{BurstReads: burstReads, Logger: log.Nop()})
	conn := newFakeConn(func(d []byte) [][]byte {
		out, _ := emu.Handle(d)
		return out
	})
	return newComm(t, conn, opts), emu, conn
}

// decodeAll decodes datagrams as one packet stream.
func decodeAll(t *testing.T, datagrams [][]byte) []codec.Packet {
	t.Helper()
	var st codec.BurstState
	var out []codec.Packet
	for _, d := range datagrams {
		raw, err := codec.SplitDatagram(d)
		require.NoError(t, err)
		for _, r := range raw {
			p, err := codec.Decode(r, &st)
			require.NoError(t, err)
			out = append(out, p)
		}
	}
	return out
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

func joinData(pkts []codec.Packet) []byte {
	var out []byte
	for _, p := range pkts {
		if p.BurstStart {
			continue
		}
		out = append(out, p.Data...)
	}
	return out
}

// respond builds a datagram out of packets.
func respond(pkts ...[codec.PacketLen]byte) []byte {
	var d []byte
	for _, p := range pkts {
		d = append(d, p[:]...)
	}
	return d
}

// loopback echoes the self test write.
func loopback(d []byte) [][]byte {
	return [][]byte{append([]byte(nil), d...)}
}

func printPacket(text string) [codec.PacketLen]byte {
	return codec.Encode(codec.Header{
		ByteSelect: codec.Mask(len(text)),
		Src:        core.Addr(0, 0),
		Dst:        core.EthModule,
		Mode:       core.ModeWritePosted,
	}, codec.Slot([]byte(text)))
}
