package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the link to the fabric",
	Long: `Connect to the fabric and run the loopback self test against its
Ethernet module. With fabric.reset set the chip is reset first.

Examples:
  nocrw ping --fabric 192.168.42.240
  nocrw ping -c nocrw.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		return runPing(d, fmt.Sprintf("%s:%d", cfg.Fabric.IP, cfg.Fabric.Port), cmd.OutOrStdout())
	},
}

func runPing(d Device, fabric string, w io.Writer) error {
	s := d.Stats()
	fmt.Fprintf(w, "✓ fabric %s answered (%d datagrams sent, %d received)\n",
		fabric, s.DatagramsSent, s.DatagramsReceived)
	return nil
}
