// Package capture records the datagrams a Communicator exchanges as a pcap
// file readable by Wireshark or tcpdump.
package capture

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"firestige.xyz/nocrw/internal/core"
)

const snapLen = 65536

var (
	hostMAC   = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	fabricMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Recorder writes every datagram as an Ethernet/IPv4/UDP frame.
type Recorder struct {
	mu     sync.Mutex
	path   string
	out    *bufio.Writer
	closer io.Closer
	w      *pcapgo.Writer
	ipID   uint16
	count  int
	closed bool
}

// Open creates the pcap file at path. An empty path picks nocrw_<xid>.pcap.
// The file is flushed and closed at process exit if Close is never called.
func Open(path string) (*Recorder, error) {
	if path == "" {
		path = "nocrw_" + xid.New().String() + ".pcap"
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	r, err := newRecorder(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.path = path
	atexit.Register(func() { r.Close() })
	return r, nil
}

// NewWriter records into w. Close does not close w.
func NewWriter(w io.Writer) (*Recorder, error) {
	return newRecorder(w, nil)
}

func newRecorder(w io.Writer, c io.Closer) (*Recorder, error) {
	out := bufio.NewWriter(w)
	pw := pcapgo.NewWriter(out)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Recorder{out: out, closer: c, w: pw}, nil
}

// Path returns the capture file, empty for NewWriter recorders.
func (r *Recorder) Path() string { return r.path }

// Count returns the number of datagrams recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Record appends one datagram.
func (r *Recorder) Record(d core.Datagram) error {
	src, dst := d.Local, d.Peer
	srcMAC, dstMAC := hostMAC, fabricMAC
	if d.Direction == core.Inbound {
		src, dst = dst, src
		srcMAC, dstMAC = dstMAC, srcMAC
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.ErrClosed
	}
	r.ipID++

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		Id:       r.ipID,
		Flags:    layers.IPv4DontFragment,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipv4(src),
		DstIP:    ipv4(dst),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port()),
		DstPort: layers.UDPPort(dst.Port()),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("failed to set network layer for checksum: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(d.Data)); err != nil {
		return fmt.Errorf("failed to serialize datagram: %w", err)
	}
	frame := buf.Bytes()

	ci := gopacket.CaptureInfo{
		Timestamp:     d.Timestamp,
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := r.w.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("write pcap record: %w", err)
	}
	r.count++
	return nil
}

// Close flushes buffered records and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.out.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func ipv4(ap netip.AddrPort) net.IP {
	a := ap.Addr().Unmap()
	if !a.Is4() {
		return net.IPv4zero.To4()
	}
	b := a.As4()
	return net.IP(b[:])
}
