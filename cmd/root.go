// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/nocrw/internal/config"
	"firestige.xyz/nocrw/internal/log"
)

var (
	// Global flags
	configFile string
	fabricIP   string
	fabricPort int
	logLevel   string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nocrw",
	Short: "nocrw - read, write and message NoC modules over UDP",
	Long: `nocrw talks to an FPGA NoC fabric through its Ethernet bridge.
Every NoC packet is 18 bytes; the host coalesces them into UDP datagrams,
reads memory with request/response packets and writes with posted packets
or burst groups.

Targets are given as chip:module (e.g. 1:6 or 0x1:0x06) or by a name from
the targets section of the config file.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: closeDevice,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	defer log.Close()
	defer closeDevice(nil, nil)
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path")
	rootCmd.PersistentFlags().StringVar(&fabricIP, "fabric", "",
		"fabric IPv4 address (overrides fabric.ip)")
	rootCmd.PersistentFlags().IntVarP(&fabricPort, "port", "p", 0,
		"fabric UDP port (overrides fabric.port)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"trace, debug, info, warn or error (overrides log.level)")

	// Add subcommands
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(receiveCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(emulateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(inspectCmd)
}

// loadConfig reads the config file, applies flag overrides and sets up logging.
func loadConfig(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("fabric") {
		overrides["fabric.ip"] = fabricIP
	}
	if flags.Changed("port") {
		overrides["fabric.port"] = fabricPort
	}
	if flags.Changed("log-level") {
		overrides["log.level"] = logLevel
	}

	c, err := config.Load(configFile, overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := log.Init(c.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	cfg = c
	return nil
}
