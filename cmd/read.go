package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"firestige.xyz/nocrw/internal/core"
)

var readRaw bool

var readCmd = &cobra.Command{
	Use:   "read <target> <addr> <length>",
	Short: "Read memory of a NoC module",
	Long: `Read length bytes starting at addr from a module and print them as a
hex dump, or as raw bytes with --raw.

Examples:
  nocrw read 1:6 0x1000 64
  nocrw read dram 0x80000000 4096 --raw > dump.bin`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseTarget(cfg, args[0])
		if err != nil {
			return err
		}
		addr, err := parseUint32("address", args[1])
		if err != nil {
			return err
		}
		n, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid length %q: %w", args[2], err)
		}
		d, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		return runRead(d, target, addr, int(n), readRaw, cmd.OutOrStdout())
	},
}

func init() {
	readCmd.Flags().BoolVar(&readRaw, "raw", false, "write raw bytes instead of a hex dump")
}

func runRead(d Device, target core.ModuleAddress, addr uint32, n int, raw bool, w io.Writer) error {
	data, err := d.Read(target.Chip, target.Module, addr, n)
	if err != nil {
		return err
	}
	if raw {
		_, err = w.Write(data)
		return err
	}
	dumper := hex.Dumper(w)
	if _, err := dumper.Write(data); err != nil {
		return err
	}
	return dumper.Close()
}
