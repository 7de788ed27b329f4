package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/fabric"
	"firestige.xyz/nocrw/internal/metrics"
)

var emulateListen string

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run a software fabric",
	Long: `Serve the NoC-over-UDP protocol from an in-memory fabric: reads, posted
and burst writes, loopback on the Ethernet module, resets and messages.
Useful to try the other commands without hardware.

Examples:
  nocrw emulate --listen 127.0.0.1:1800
  nocrw ping --fabric 127.0.0.1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runEmulate(ctx)
	},
}

func init() {
	emulateCmd.Flags().StringVarP(&emulateListen, "listen", "l", "", "UDP address to serve (overrides emulator.listen)")
}

func runEmulate(ctx context.Context) error {
	listen := cfg.Emulator.Listen
	if emulateListen != "" {
		listen = emulateListen
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	emu := fabric.New(fabric.OptionsFromConfig(cfg.Emulator))
	if cfg.Emulator.PrintOnBoot != "" {
		emu.Print(core.Addr(0, 0), []byte(cfg.Emulator.PrintOnBoot))
	}
	if err := emu.ListenAndServe(ctx, listen); err != nil {
		return fmt.Errorf("emulator failed: %w", err)
	}
	return nil
}
