package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/nocrw/internal/comm"
	"firestige.xyz/nocrw/internal/config"
	"firestige.xyz/nocrw/pkg/nocrw"
)

// Device is the fabric connection used by the commands.
type Device interface {
	Read(chip, module uint8, addr uint32, length int) ([]byte, error)
	Write(chip, module uint8, addr uint32, data []byte, burst bool) error
	Send(version, chip, module uint8, endpoint uint32, data []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Stats() nocrw.Stats
	Close() error
}

var (
	dev Device

	// connect opens the fabric connection; replaced in tests.
	connect = dialFabric
)

func dialFabric(ctx context.Context, cfg *config.Config) (Device, error) {
	opts := []nocrw.Option{nocrw.WithOptions(comm.OptionsFromConfig(cfg))}
	if cfg.Capture.Enabled {
		opts = append(opts, nocrw.WithCapture(cfg.Capture.Path))
	}
	return nocrw.Connect(ctx, cfg.Fabric.IP, cfg.Fabric.Port, opts...)
}

// openDevice connects on first use.
func openDevice(ctx context.Context) (Device, error) {
	if dev != nil {
		return dev, nil
	}
	d, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	dev = d
	return dev, nil
}

func closeDevice(_ *cobra.Command, _ []string) {
	if dev != nil {
		dev.Close()
		dev = nil
	}
}

// SetDevice injects a device, used by tests.
func SetDevice(d Device) {
	dev = d
}
