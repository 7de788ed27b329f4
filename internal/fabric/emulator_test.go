package fabric

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/log"
)

var dram = core.Addr(1, 6)

func datagram(pkts ...[codec.PacketLen]byte) []byte {
	var d []byte
	for _, p := range pkts {
		d = append(d, p[:]...)
	}
	return d
}

func decodeAll(datagrams [][]byte) []codec.Packet {
	var st codec.BurstState
	var out []codec.Packet
	for _, d := range datagrams {
		raw, err := codec.SplitDatagram(d)
		Expect(err).NotTo(HaveOccurred())
		for _, r := range raw {
			p, err := codec.Decode(r, &st)
			Expect(err).NotTo(HaveOccurred())
			out = append(out, p)
		}
	}
	return out
}

func payload(pkts []codec.Packet) []byte {
	var out []byte
	for _, p := range pkts {
		if !p.BurstStart {
			out = append(out, p.Data...)
		}
	}
	return out
}

func readReq(target core.ModuleAddress, addr, count, id uint32) [codec.PacketLen]byte {
	return codec.EncodeNormal(target, false, 0xFF, addr, codec.ReadRequestPayload(count, id), core.ModeReadReq)
}

func seq(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*3 + 1)
	}
	return b
}

var _ = Describe("Emulator", func() {
	var emu *Emulator

	BeforeEach(func() {
		emu = New(Options{Logger: log.Nop()})
	})

	Describe("posted writes", func() {
		It("stores the selected bytes at the packet address", func() {
			pkt := codec.EncodeNormal(dram, false, codec.Mask(3), 0x1005, codec.Slot([]byte{0xA, 0xB, 0xC}), core.ModeWritePosted)
			out, err := emu.Handle(datagram(pkt))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())
			Expect(emu.Peek(dram, 0x1004, 5)).To(Equal([]byte{0, 0xA, 0xB, 0xC, 0}))
		})

		It("assembles burst groups", func() {
			data := seq(48)
			hdr := codec.EncodeNormal(dram, true, 0xFF, 0x2000, codec.BurstHeaderPayload(3, 0), core.ModeWritePosted)
			d := datagram(hdr,
				codec.EncodeBurstFlit(true, codec.FlitSlot(data[0:16])),
				codec.EncodeBurstFlit(true, codec.FlitSlot(data[16:32])),
				codec.EncodeBurstFlit(false, codec.FlitSlot(data[32:48])))
			_, err := emu.Handle(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(emu.Peek(dram, 0x2000, 48)).To(Equal(data))
		})

		It("keeps modules apart", func() {
			other := core.Addr(1, 7)
			emu.Poke(dram, 0, []byte{1, 2})
			Expect(emu.Peek(other, 0, 2)).To(Equal([]byte{0, 0}))
		})

		It("rejects datagrams that are not whole packets", func() {
			_, err := emu.Handle(make([]byte, 20))
			Expect(err).To(MatchError(core.ErrMalformedDatagram))
		})
	})

	Describe("reads", func() {
		BeforeEach(func() {
			emu.Poke(dram, 0x100, seq(20))
		})

		It("answers with normal packets carrying id plus offset", func() {
			out, err := emu.Handle(datagram(readReq(dram, 0x100, 20, 0x40)))
			Expect(err).NotTo(HaveOccurred())
			pkts := decodeAll(out)
			Expect(pkts).To(HaveLen(3))
			for i, p := range pkts {
				Expect(p.Mode).To(Equal(core.ModeReadResp))
				Expect(p.Addr).To(Equal(uint32(0x40 + 8*i)))
				Expect(p.Src).To(Equal(dram))
			}
			Expect(pkts[2].ByteSelect).To(Equal(codec.Mask(4)))
			Expect(payload(pkts)).To(Equal(seq(20)))
		})

		It("answers with one burst group when burst reads are on", func() {
			emu = New(Options{BurstReads: true, Logger: log.Nop()})
			emu.Poke(dram, 0x100, seq(20))
			out, err := emu.Handle(datagram(readReq(dram, 0x100, 20, 7)))
			Expect(err).NotTo(HaveOccurred())
			pkts := decodeAll(out)
			Expect(pkts).To(HaveLen(3))
			Expect(pkts[0].BurstStart).To(BeTrue())
			Expect(pkts[0].Addr).To(Equal(uint32(7)))
			Expect(pkts[0].ByteSelect).To(Equal(codec.BurstMask(0, 3)))
			Expect(payload(pkts)).To(Equal(seq(20)))
		})

		It("uses normal packets for short burst reads", func() {
			emu = New(Options{BurstReads: true, Logger: log.Nop()})
			out, err := emu.Handle(datagram(readReq(dram, 0, 8, 0)))
			Expect(err).NotTo(HaveOccurred())
			pkts := decodeAll(out)
			Expect(pkts).To(HaveLen(1))
			Expect(pkts[0].Burst).To(BeFalse())
		})

		It("drops the requested number of reads", func() {
			emu.DropReads(1)
			out, err := emu.Handle(datagram(readReq(dram, 0x100, 8, 0)))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())

			out, err = emu.Handle(datagram(readReq(dram, 0x100, 8, 8)))
			Expect(err).NotTo(HaveOccurred())
			Expect(decodeAll(out)).To(HaveLen(1))
		})

		It("replays the previous answer in stale mode", func() {
			emu.StaleReply(true)
			_, err := emu.Handle(datagram(readReq(dram, 0x100, 8, 0)))
			Expect(err).NotTo(HaveOccurred())
			out, err := emu.Handle(datagram(readReq(dram, 0x108, 8, 8)))
			Expect(err).NotTo(HaveOccurred())
			pkts := decodeAll(out)
			Expect(pkts).To(HaveLen(2))
			Expect(pkts[0].Addr).To(Equal(uint32(0)))
			Expect(pkts[1].Addr).To(Equal(uint32(8)))
		})
	})

	Describe("the Ethernet module", func() {
		It("echoes writes unchanged", func() {
			pkt := codec.EncodeNormal(core.EthModule, false, 0xFF, 0xDEADBEE0, codec.Slot(seq(8)), core.ModeWritePosted)
			out, err := emu.Handle(datagram(pkt))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal([][]byte{pkt[:]}))
		})

		It("records a reset", func() {
			var cmd [8]byte
			binary.LittleEndian.PutUint64(cmd[:], 1)
			target := core.Addr(2, core.ModuleEthernet)
			out, err := emu.Handle(datagram(codec.EncodeNormal(target, false, 0xFF, ResetRegister, cmd, core.ModeWritePosted)))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())
			Expect(emu.Resets()).To(Equal([]uint8{2}))
		})

		It("ignores other values written to the reset register", func() {
			out, err := emu.Handle(datagram(codec.EncodeNormal(core.EthModule, false, 0xFF, ResetRegister, codec.Slot([]byte{2}), core.ModeWritePosted)))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())
			Expect(emu.Resets()).To(BeEmpty())
		})
	})

	Describe("messages", func() {
		It("records a single packet message", func() {
			hdr := codec.EncodeNormal(dram, false, 0xFF, 42, codec.BurstHeaderPayload(0, 3), core.ModeMsg)
			_, err := emu.Handle(datagram(hdr))
			Expect(err).NotTo(HaveOccurred())
			Expect(emu.Messages()).To(ConsistOf(Message{Target: dram, Endpoint: 42, Version: 3, Data: []byte{}}))
		})

		It("records a message group", func() {
			data := seq(20)
			hdr := codec.EncodeNormal(dram, true, codec.BurstMask(0, 3), 9, codec.BurstHeaderPayload(2, 1), core.ModeMsg)
			d := datagram(hdr,
				codec.EncodeBurstFlit(true, codec.FlitSlot(data[:16])),
				codec.EncodeBurstFlit(false, codec.FlitSlot(data[16:])))
			_, err := emu.Handle(d)
			Expect(err).NotTo(HaveOccurred())

			msgs := emu.Messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Endpoint).To(Equal(uint32(9)))
			Expect(msgs[0].Version).To(Equal(uint8(1)))
			Expect(msgs[0].Data).To(Equal(data))
		})
	})

	Describe("unsolicited traffic", func() {
		It("sends prints ahead of replies in their own datagram", func() {
			emu.Print(core.Addr(0, 0), []byte("hello, world"))
			out, err := emu.Handle(datagram(readReq(dram, 0, 8, 0)))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(2))

			prints := decodeAll(out[:1])
			Expect(prints).To(HaveLen(2))
			Expect(prints[0].Mode).To(Equal(core.ModeWritePosted))
			Expect(string(payload(prints))).To(Equal("hello, world"))

			reply := decodeAll(out[1:])
			Expect(reply).To(HaveLen(1))
			Expect(reply[0].Mode).To(Equal(core.ModeReadResp))
		})

		It("drains queued notifications", func() {
			emu.Notify(dram, 5, 2, seq(33))
			out := emu.Drain()
			Expect(out).To(HaveLen(1))
			pkts := decodeAll(out)
			Expect(pkts).To(HaveLen(4))
			Expect(pkts[0].Mode).To(Equal(core.ModeMsg))
			Expect(pkts[0].Addr).To(Equal(uint32(5)))
			flits, version := codec.ParseBurstHeader(pkts[0].Payload[:])
			Expect(flits).To(Equal(uint32(3)))
			Expect(version).To(Equal(uint8(2)))
			Expect(payload(pkts)).To(Equal(seq(33)))

			Expect(emu.Drain()).To(BeEmpty())
		})
	})
})
