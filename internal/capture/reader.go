package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/nocrw/internal/core"
)

// DefaultFabricPort is the bridge's UDP port, used to tell directions apart
// in captures taken by other tools.
const DefaultFabricPort = 1800

// Reader decodes a pcap file back into datagrams. Frames that are not
// Ethernet/IPv4/UDP are skipped.
type Reader struct {
	r          *pcapgo.Reader
	fabricPort uint16
	skipped    int
}

// NewReader reads a pcap stream. fabricPort 0 selects DefaultFabricPort.
func NewReader(r io.Reader, fabricPort uint16) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	if fabricPort == 0 {
		fabricPort = DefaultFabricPort
	}
	return &Reader{r: pr, fabricPort: fabricPort}, nil
}

// Skipped returns the number of frames that carried no UDP datagram.
func (r *Reader) Skipped() int { return r.skipped }

// Next returns the next datagram, or io.EOF.
func (r *Reader) Next() (core.Datagram, error) {
	for {
		data, ci, err := r.r.ReadPacketData()
		if err != nil {
			return core.Datagram{}, err
		}
		pkt := gopacket.NewPacket(data, r.r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		d, ok := r.datagram(pkt)
		if !ok {
			r.skipped++
			continue
		}
		d.Timestamp = ci.Timestamp
		return d, nil
	}
}

func (r *Reader) datagram(pkt gopacket.Packet) (core.Datagram, bool) {
	ip, _ := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	udp, _ := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if ip == nil || udp == nil {
		return core.Datagram{}, false
	}
	src := addrPort(ip.SrcIP, uint16(udp.SrcPort))
	dst := addrPort(ip.DstIP, uint16(udp.DstPort))

	d := core.Datagram{
		Data:      append([]byte(nil), udp.Payload...),
		Direction: core.Outbound,
		Local:     src,
		Peer:      dst,
	}
	if r.inbound(pkt, udp) {
		d.Direction = core.Inbound
		d.Local, d.Peer = dst, src
	}
	return d, true
}

// inbound trusts the MACs written by Recorder and falls back to the port.
func (r *Reader) inbound(pkt gopacket.Packet, udp *layers.UDP) bool {
	if eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok {
		switch {
		case bytes.Equal(eth.SrcMAC, fabricMAC):
			return true
		case bytes.Equal(eth.SrcMAC, hostMAC):
			return false
		}
	}
	return uint16(udp.SrcPort) == r.fabricPort
}

// ReadFile returns every datagram of the capture at path.
func ReadFile(path string, fabricPort uint16) ([]core.Datagram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()

	r, err := NewReader(f, fabricPort)
	if err != nil {
		return nil, err
	}
	var out []core.Datagram
	for {
		d, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("read capture record: %w", err)
		}
		out = append(out, d)
	}
}

func addrPort(ip []byte, port uint16) netip.AddrPort {
	a, _ := netip.AddrFromSlice(ip)
	return netip.AddrPortFrom(a.Unmap(), port)
}
