package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/nocrw/internal/core"
)

var (
	writeBurst bool
	writeFile  string
)

var writeCmd = &cobra.Command{
	Use:   "write <target> <addr> [hex-data]",
	Short: "Write memory of a NoC module",
	Long: `Write bytes to a module starting at addr. Data is given as hex on the
command line or read from --file. With --burst, 16-byte aligned writes use
burst groups.

Examples:
  nocrw write 1:6 0x1003 "de ad be ef"
  nocrw write dram 0x0 --file firmware.bin --burst`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseTarget(cfg, args[0])
		if err != nil {
			return err
		}
		addr, err := parseUint32("address", args[1])
		if err != nil {
			return err
		}
		var arg string
		if len(args) == 3 {
			arg = args[2]
		} else if writeFile == "" {
			return fmt.Errorf("no data: give hex data or --file")
		}
		data, err := parseData(arg, writeFile)
		if err != nil {
			return err
		}
		d, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		return runWrite(d, target, addr, data, writeBurst, cmd.OutOrStdout())
	},
}

func init() {
	writeCmd.Flags().BoolVarP(&writeBurst, "burst", "b", false, "use burst groups")
	writeCmd.Flags().StringVarP(&writeFile, "file", "f", "", "read data from file")
}

func runWrite(d Device, target core.ModuleAddress, addr uint32, data []byte, burst bool, w io.Writer) error {
	if err := d.Write(target.Chip, target.Module, addr, data, burst); err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ wrote %d bytes to %s at %#x\n", len(data), target, addr)
	return nil
}
