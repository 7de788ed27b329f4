package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/nocrw/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, NOCRW_*
environment variables, .env and flags have been applied.

Examples:
  nocrw config -c nocrw.yaml
  NOCRW_FABRIC_IP=10.0.0.2 nocrw config`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig(cfg, cmd.OutOrStdout())
	},
}

func runConfig(c *config.Config, w io.Writer) error {
	out, err := config.Dump(c)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
