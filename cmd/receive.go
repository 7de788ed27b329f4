package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var (
	receiveTimeout time.Duration
	receiveHex     bool
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Receive one unsolicited datagram",
	Long: `Wait for one datagram of unsolicited traffic (console prints, messages)
and print its data.

Examples:
  nocrw receive --timeout 5s
  nocrw receive --hex`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		return runReceive(d, receiveTimeout, receiveHex, cmd.OutOrStdout())
	},
}

func init() {
	receiveCmd.Flags().DurationVarP(&receiveTimeout, "timeout", "t", time.Second, "how long to wait")
	receiveCmd.Flags().BoolVar(&receiveHex, "hex", false, "print a hex dump instead of text")
}

func runReceive(d Device, timeout time.Duration, asHex bool, w io.Writer) error {
	data, err := d.Receive(timeout)
	if err != nil {
		return err
	}
	return printData(w, data, asHex)
}

func printData(w io.Writer, data []byte, asHex bool) error {
	if asHex {
		_, err := io.WriteString(w, hex.Dump(data))
		return err
	}
	_, err := fmt.Fprintf(w, "%s", data)
	return err
}
