// Package fabric emulates the FPGA Ethernet bridge: it answers read
// requests from a sparse memory, stores posted writes, loops back writes to
// the Ethernet module and records messages and resets.
package fabric

import (
	"encoding/binary"
	"fmt"
	"sync"

	"firestige.xyz/nocrw/internal/config"
	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
	"firestige.xyz/nocrw/internal/log"
	"firestige.xyz/nocrw/internal/metrics"
)

// ResetRegister mirrors the Ethernet module's config register 0.
const ResetRegister uint32 = 0xF0003028

// Message is one Msg group received from the host.
type Message struct {
	Target   core.ModuleAddress
	Endpoint uint32
	Version  uint8
	Data     []byte
}

// Options configure an Emulator.
type Options struct {
	// BurstReads answers reads longer than 8 bytes with one burst group
	// instead of a run of normal packets.
	BurstReads bool
	Logger     log.Logger
}

// OptionsFromConfig maps the emulator section onto Options.
func OptionsFromConfig(cfg config.EmulatorConfig) Options {
	return Options{BurstReads: cfg.BurstReads}
}

// group is an incoming burst group being assembled.
type group struct {
	hdr   codec.Packet
	flits uint32
	data  []byte
}

// Emulator is a software fabric. It is safe for concurrent use.
type Emulator struct {
	mu   sync.Mutex
	opts Options
	log  log.Logger

	mem   memory
	burst codec.BurstState
	group *group

	resets    []uint8
	messages  []Message
	dropReads int
	stale     bool
	last      [][codec.PacketLen]byte
	outbox    [][codec.PacketLen]byte
}

// New creates an empty fabric.
func New(opts Options) *Emulator {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Emulator{
		opts: opts,
		log:  opts.Logger.WithField("component", "fabric"),
		mem:  make(memory),
	}
}

// Poke stores data directly into the memory of target.
func (e *Emulator) Poke(target core.ModuleAddress, addr uint32, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mem.write(target, addr, data)
}

// Peek returns n bytes of target's memory.
func (e *Emulator) Peek(target core.ModuleAddress, addr uint32, n int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem.read(target, addr, n)
}

// Resets returns the chips reset so far.
func (e *Emulator) Resets() []uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint8(nil), e.resets...)
}

// Messages returns the messages received so far.
func (e *Emulator) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Message(nil), e.messages...)
}

// DropReads swallows the next n read requests.
func (e *Emulator) DropReads(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropReads = n
}

// StaleReply makes every read answer start with a replay of the previous one.
func (e *Emulator) StaleReply(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stale = on
}

// Print queues data as unsolicited posted writes from src to the host, the
// way a core prints to the console. Queued traffic goes out before the next
// reply.
func (e *Emulator) Print(src core.ModuleAddress, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for pos := 0; pos < len(data); pos += codec.BytesPerPacket {
		n := min(codec.BytesPerPacket, len(data)-pos)
		e.outbox = append(e.outbox, codec.Encode(codec.Header{
			ByteSelect: codec.Mask(n),
			Src:        src,
			Dst:        core.EthModule,
			Mode:       core.ModeWritePosted,
		}, codec.Slot(data[pos:pos+n])))
	}
}

// Notify queues a message group from src to the host.
func (e *Emulator) Notify(src core.ModuleAddress, endpoint uint32, version uint8, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := codec.Header{Src: src, Dst: core.EthModule, Mode: core.ModeMsg, Addr: endpoint, ByteSelect: 0xFF}
	if len(data) == 0 {
		e.outbox = append(e.outbox, codec.Encode(h, codec.BurstHeaderPayload(0, version)))
		return
	}
	flits := (len(data) + codec.BytesPerFlit - 1) / codec.BytesPerFlit
	h.Burst = true
	h.ByteSelect = codec.BurstMask(0, (len(data)-1)%codec.BytesPerFlit)
	e.outbox = append(e.outbox, codec.Encode(h, codec.BurstHeaderPayload(uint32(flits), version)))
	e.outbox = append(e.outbox, encodeFlits(data)...)
}

// Handle processes one datagram from the host and returns the datagrams to
// send back, queued traffic first.
func (e *Emulator) Handle(datagram []byte) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pkts, err := codec.SplitDatagram(datagram)
	if err != nil {
		return nil, err
	}

	// queued traffic travels in its own datagrams, like on the real bridge
	out := coalesce(e.outbox)
	e.outbox = nil
	var resp [][codec.PacketLen]byte
	for _, raw := range pkts {
		pkt, err := codec.Decode(raw, &e.burst)
		if err != nil {
			e.burst.Reset()
			e.group = nil
			return append(out, coalesce(resp)...), err
		}
		resp = append(resp, e.handle(raw, pkt)...)
	}
	return append(out, coalesce(resp)...), nil
}

// Drain returns queued unsolicited traffic.
func (e *Emulator) Drain() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := coalesce(e.outbox)
	e.outbox = nil
	return out
}

func (e *Emulator) handle(raw []byte, pkt codec.Packet) [][codec.PacketLen]byte {
	if pkt.Flit {
		metrics.EmulatorPacketsTotal.WithLabelValues("flit").Inc()
		if e.group == nil || pkt.Discarded {
			return nil
		}
		e.group.data = append(e.group.data, pkt.Data...)
		if !pkt.Burst {
			g := e.group
			e.group = nil
			return e.complete(g.hdr, g.hdr.Addr, g.data)
		}
		return nil
	}

	metrics.EmulatorPacketsTotal.WithLabelValues(pkt.Mode.String()).Inc()
	if pkt.BurstStart {
		flits, _ := codec.ParseBurstHeader(pkt.Payload[:])
		e.group = &group{hdr: pkt, flits: flits}
		return nil
	}

	switch pkt.Mode {
	case core.ModeReadReq:
		return e.read(pkt)
	case core.ModeWritePosted:
		if pkt.Dst.Module == core.ModuleEthernet && pkt.Addr != ResetRegister {
			// loopback
			var echo [codec.PacketLen]byte
			copy(echo[:], raw)
			return [][codec.PacketLen]byte{echo}
		}
		off, _ := codec.MaskWindow(pkt.ByteSelect)
		return e.complete(pkt, pkt.Addr+uint32(off), pkt.Data)
	case core.ModeMsg:
		return e.complete(pkt, pkt.Addr, nil)
	default:
		e.log.WithField(core.FieldMode, pkt.Mode.String()).Debug("ignoring packet")
		return nil
	}
}

// complete applies a finished write or message.
func (e *Emulator) complete(hdr codec.Packet, addr uint32, data []byte) [][codec.PacketLen]byte {
	switch hdr.Mode {
	case core.ModeWritePosted:
		if hdr.Dst.Module == core.ModuleEthernet && addr == ResetRegister && len(data) == 8 &&
			binary.LittleEndian.Uint64(data) == 1 {
			e.resets = append(e.resets, hdr.Dst.Chip)
			e.burst.Reset()
			e.log.WithField(core.FieldTarget, hdr.Dst.String()).Info("reset requested")
			return nil
		}
		e.mem.write(hdr.Dst, addr, data)
		e.log.WithField(core.FieldTarget, hdr.Dst.String()).
			WithField(core.FieldAddr, fmt.Sprintf("%#x", addr)).
			WithField(core.FieldLen, len(data)).
			Trace("write")
	case core.ModeMsg:
		_, version := codec.ParseBurstHeader(hdr.Payload[:])
		e.messages = append(e.messages, Message{
			Target:   hdr.Dst,
			Endpoint: addr,
			Version:  version,
			Data:     append([]byte{}, data...),
		})
		e.log.WithField(core.FieldEP, hdr.Addr).WithField(core.FieldLen, len(data)).Debug("message received")
	}
	return nil
}

func (e *Emulator) read(req codec.Packet) [][codec.PacketLen]byte {
	count, id := codec.ParseReadRequest(req.Payload[:])
	if e.dropReads > 0 {
		e.dropReads--
		e.log.WithField(core.FieldReqID, id).Debug("dropping read request")
		return nil
	}

	data := e.mem.read(req.Dst, req.Addr, int(count))
	var resp [][codec.PacketLen]byte
	h := codec.Header{Src: req.Dst, Dst: core.EthModule, Mode: core.ModeReadResp, Addr: id}

	if e.opts.BurstReads && count > codec.BytesPerPacket {
		flits := (len(data) + codec.BytesPerFlit - 1) / codec.BytesPerFlit
		h.Burst = true
		h.ByteSelect = codec.BurstMask(0, (len(data)-1)%codec.BytesPerFlit)
		resp = append(resp, codec.Encode(h, codec.BurstHeaderPayload(uint32(flits), 0)))
		resp = append(resp, encodeFlits(data)...)
	} else {
		for pos := 0; pos < len(data); pos += codec.BytesPerPacket {
			n := min(codec.BytesPerPacket, len(data)-pos)
			h.ByteSelect = codec.Mask(n)
			h.Addr = id + uint32(pos)
			resp = append(resp, codec.Encode(h, codec.Slot(data[pos:pos+n])))
		}
	}

	out := resp
	if e.stale && e.last != nil {
		out = append(append([][codec.PacketLen]byte{}, e.last...), resp...)
	}
	e.last = resp
	return out
}

func encodeFlits(data []byte) [][codec.PacketLen]byte {
	flits := (len(data) + codec.BytesPerFlit - 1) / codec.BytesPerFlit
	out := make([][codec.PacketLen]byte, 0, flits)
	for i := 0; i < flits; i++ {
		lo := i * codec.BytesPerFlit
		hi := min(lo+codec.BytesPerFlit, len(data))
		out = append(out, codec.EncodeBurstFlit(i < flits-1, codec.FlitSlot(data[lo:hi])))
	}
	return out
}

// coalesce packs packets into datagrams of at most MaxDatagramLen bytes.
func coalesce(pkts [][codec.PacketLen]byte) [][]byte {
	var out [][]byte
	for len(pkts) > 0 {
		n := min(len(pkts), codec.PacketsPerDatagram)
		d := make([]byte, 0, n*codec.PacketLen)
		for _, p := range pkts[:n] {
			d = append(d, p[:]...)
		}
		out = append(out, d)
		pkts = pkts[n:]
	}
	return out
}
