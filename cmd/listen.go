package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/nocrw/internal/log"
	"firestige.xyz/nocrw/internal/metrics"
	"firestige.xyz/nocrw/pkg/nocrw"
)

var listenHex bool

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print unsolicited traffic until interrupted",
	Long: `Stay connected and print every unsolicited datagram, such as console
output of cores on the fabric, until Ctrl-C. Serves Prometheus metrics when
metrics.enabled is set.

Examples:
  nocrw listen
  nocrw listen --hex -c nocrw.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Metrics.Enabled {
			srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer srv.Stop(context.Background())
		}

		d, err := openDevice(ctx)
		if err != nil {
			return err
		}
		return runListen(ctx, d, cfg.Transport.ReadTimeout, listenHex, cmd.OutOrStdout())
	},
}

func init() {
	listenCmd.Flags().BoolVar(&listenHex, "hex", false, "print hex dumps instead of text")
}

// runListen polls for traffic in timeout steps until ctx is done.
func runListen(ctx context.Context, d Device, timeout time.Duration, asHex bool, w io.Writer) error {
	for ctx.Err() == nil {
		data, err := d.Receive(timeout)
		if err != nil {
			if nocrw.IsTimeout(err) {
				continue
			}
			return err
		}
		if err := printData(w, data, asHex); err != nil {
			return err
		}
	}
	log.GetLogger().Info("listen stopped")
	return nil
}
