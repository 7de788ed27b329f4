package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/nocrw/internal/core"
)

var (
	sendVersion uint8
	sendFile    string
)

var sendCmd = &cobra.Command{
	Use:   "send <target> <endpoint> [hex-data]",
	Short: "Send a message to a module endpoint",
	Long: `Send one message to an endpoint of a module. The payload is given as hex
or read from --file; an empty payload sends a bare header.

Examples:
  nocrw send 0:1 0x10 "01 02 03"
  nocrw send cpu 4 --file request.bin --version 2`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseTarget(cfg, args[0])
		if err != nil {
			return err
		}
		ep, err := parseUint32("endpoint", args[1])
		if err != nil {
			return err
		}
		var data []byte
		if len(args) == 3 || sendFile != "" {
			var arg string
			if len(args) == 3 {
				arg = args[2]
			}
			if data, err = parseData(arg, sendFile); err != nil {
				return err
			}
		}
		d, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		return runSend(d, sendVersion, target, ep, data, cmd.OutOrStdout())
	},
}

func init() {
	sendCmd.Flags().Uint8Var(&sendVersion, "version", 0, "message version")
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "read payload from file")
}

func runSend(d Device, version uint8, target core.ModuleAddress, ep uint32, data []byte, w io.Writer) error {
	if err := d.Send(version, target.Chip, target.Module, ep, data); err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ sent %d bytes to %s endpoint %#x\n", len(data), target, ep)
	return nil
}
