package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/nocrw/internal/capture"
	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/core/codec"
)

var inspectFabricPort uint16

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.pcap>",
	Short: "Decode NoC packets from a capture file",
	Long: `Decode every datagram of a pcap file, as written with capture.enabled or
taken with tcpdump, into NoC packets. Burst groups are followed per direction.

Examples:
  nocrw inspect nocrw_cq1v2b.pcap
  nocrw inspect link.pcap --fabric-port 1800`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		datagrams, err := capture.ReadFile(args[0], inspectFabricPort)
		if err != nil {
			return err
		}
		return runInspect(datagrams, cmd.OutOrStdout())
	},
}

func init() {
	inspectCmd.Flags().Uint16Var(&inspectFabricPort, "fabric-port", capture.DefaultFabricPort,
		"UDP port of the fabric, used when frames lack recorder MACs")
}

func runInspect(datagrams []core.Datagram, w io.Writer) error {
	// one decoder state per direction
	var states [2]codec.BurstState
	for i, d := range datagrams {
		arrow := ">"
		if d.Direction == core.Inbound {
			arrow = "<"
		}
		fmt.Fprintf(w, "#%d %s %s %s %s %s (%d bytes)\n", i+1,
			d.Timestamp.Format(time.RFC3339Nano), d.Direction, d.Local, arrow, d.Peer, len(d.Data))

		st := &states[d.Direction]
		raw, err := codec.SplitDatagram(d.Data)
		if err != nil {
			fmt.Fprintf(w, "  ! %v\n", err)
			continue
		}
		for _, b := range raw {
			pkt, err := codec.Decode(b, st)
			if err != nil {
				fmt.Fprintf(w, "  ! %v\n", err)
				st.Reset()
				continue
			}
			fmt.Fprintf(w, "  %s\n", describePacket(pkt))
		}
	}
	return nil
}

func describePacket(p codec.Packet) string {
	if p.Flit {
		state := "last"
		if p.Burst {
			state = "more"
		}
		if p.Discarded {
			state += " discarded"
		}
		return fmt.Sprintf("flit %s data=% x", state, p.Data)
	}
	s := fmt.Sprintf("%s %s > %s addr=%#08x bsel=%#02x", p.Mode, p.Src, p.Dst, p.Addr, p.ByteSelect)
	switch {
	case p.BurstStart:
		flits, version := codec.ParseBurstHeader(p.Payload[:])
		return s + fmt.Sprintf(" burst flits=%d version=%d", flits, version)
	case p.Mode == core.ModeReadReq:
		count, id := codec.ParseReadRequest(p.Payload[:])
		return s + fmt.Sprintf(" count=%d id=%#x", count, id)
	default:
		return s + fmt.Sprintf(" data=% x", p.Data)
	}
}
