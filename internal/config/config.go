// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"firestige.xyz/nocrw/internal/core"
)

// Config represents the top-level configuration.
// Maps to the `nocrw:` root key in YAML.
type Config struct {
	Fabric    FabricConfig    `mapstructure:"fabric" yaml:"fabric"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Emulator  EmulatorConfig  `mapstructure:"emulator" yaml:"emulator"`

	// Targets are named module addresses, e.g. `dram: "0:6"`.
	Targets map[string]core.ModuleAddress `mapstructure:"-" yaml:"targets,omitempty"`
}

// ─── Fabric ───

// FabricConfig identifies the remote Ethernet bridge.
type FabricConfig struct {
	IP         string        `mapstructure:"ip" yaml:"ip"`
	Port       int           `mapstructure:"port" yaml:"port"`
	LocalPort  int           `mapstructure:"local_port" yaml:"local_port"` // 0 = ephemeral
	ChipID     int           `mapstructure:"chip_id" yaml:"chip_id"`
	Reset      bool          `mapstructure:"reset" yaml:"reset"`
	ResetDelay time.Duration `mapstructure:"reset_delay" yaml:"reset_delay"`
}

// ─── Transport ───

// TransportConfig tunes the Communicator.
type TransportConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	ReadRetries     int           `mapstructure:"read_retries" yaml:"read_retries"`
	MaxReadChunk    int           `mapstructure:"max_read_chunk" yaml:"max_read_chunk"` // empirically tuned, see DESIGN.md
	MaxBurstFlits   int           `mapstructure:"max_burst_flits" yaml:"max_burst_flits"`
	SelfTest        bool          `mapstructure:"self_test" yaml:"self_test"`
	SelfTestRetries int           `mapstructure:"self_test_retries" yaml:"self_test_retries"`
	SelfTestAddr    uint32        `mapstructure:"self_test_addr" yaml:"self_test_addr"`
	TOS             int           `mapstructure:"tos" yaml:"tos"` // 0 = leave untouched
	TTL             int           `mapstructure:"ttl" yaml:"ttl"` // 0 = leave untouched
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`     // trace / debug / info / warn / error
	Pattern string           `mapstructure:"pattern" yaml:"pattern"` // %time %level %field %msg %caller
	Time    string           `mapstructure:"time" yaml:"time"`
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations.
type LogOutputsConfig struct {
	Console bool             `mapstructure:"console" yaml:"console"`
	File    FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Level    string         `mapstructure:"level" yaml:"level"` // empty = same as log.level
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Capture ───

// CaptureConfig enables pcap recording of the NoC datagrams.
type CaptureConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // empty = nocrw_<xid>.pcap
}

// ─── Emulator ───

// EmulatorConfig configures the software fabric.
type EmulatorConfig struct {
	Listen      string `mapstructure:"listen" yaml:"listen"`
	BurstReads  bool   `mapstructure:"burst_reads" yaml:"burst_reads"`
	PrintOnBoot string `mapstructure:"print_on_boot" yaml:"print_on_boot"`
}

// ─── Loading ───

type configRoot struct {
	Nocrw Config `mapstructure:"nocrw"`
}

// Load loads configuration from file. An empty path skips the file and uses
// defaults plus environment. The YAML file uses `nocrw:` as root key; env vars
// use the NOCRW_ prefix (e.g., NOCRW_FABRIC_IP).
// overrides are applied last, keyed like "fabric.ip".
func Load(path string, overrides map[string]any) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, val := range overrides {
		v.Set("nocrw."+key, val)
	}

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Nocrw

	targets, err := decodeTargets(v.Get("nocrw.targets"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode targets: %w: %v", core.ErrInvalidTarget, err)
	}
	cfg.Targets = targets

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "nocrw." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Fabric defaults
	v.SetDefault("nocrw.fabric.ip", "192.168.42.240")
	v.SetDefault("nocrw.fabric.port", 1800)
	v.SetDefault("nocrw.fabric.local_port", 0)
	v.SetDefault("nocrw.fabric.chip_id", 0)
	v.SetDefault("nocrw.fabric.reset", false)
	v.SetDefault("nocrw.fabric.reset_delay", "5s")

	// Transport defaults
	v.SetDefault("nocrw.transport.read_timeout", "1s")
	v.SetDefault("nocrw.transport.read_retries", 3)
	v.SetDefault("nocrw.transport.max_read_chunk", (1024+512)*16)
	v.SetDefault("nocrw.transport.max_burst_flits", 2047)
	v.SetDefault("nocrw.transport.self_test", true)
	v.SetDefault("nocrw.transport.self_test_retries", 100)
	v.SetDefault("nocrw.transport.self_test_addr", 0xDEADBEE0)

	// Log defaults
	v.SetDefault("nocrw.log.level", "warn")
	v.SetDefault("nocrw.log.pattern", "%time [%level] %field %msg")
	v.SetDefault("nocrw.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("nocrw.log.outputs.console", true)
	v.SetDefault("nocrw.log.outputs.file.enabled", false)
	v.SetDefault("nocrw.log.outputs.file.path", "log/ethernet.log")
	v.SetDefault("nocrw.log.outputs.file.level", "info")
	v.SetDefault("nocrw.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("nocrw.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("nocrw.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("nocrw.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("nocrw.metrics.enabled", false)
	v.SetDefault("nocrw.metrics.listen", ":9091")
	v.SetDefault("nocrw.metrics.path", "/metrics")

	// Capture defaults
	v.SetDefault("nocrw.capture.enabled", false)

	// Emulator defaults
	v.SetDefault("nocrw.emulator.listen", "127.0.0.1:1800")
	v.SetDefault("nocrw.emulator.burst_reads", true)
}

var validLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// All problems are reported at once.
func (cfg *Config) ValidateAndApplyDefaults() error {
	var errs *multierror.Error

	// ── Log ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		errs = multierror.Append(errs, fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level))
	}
	if cfg.Log.Outputs.File.Level == "" {
		cfg.Log.Outputs.File.Level = cfg.Log.Level
	}
	if cfg.Log.Outputs.File.Enabled {
		if cfg.Log.Outputs.File.Path == "" {
			errs = multierror.Append(errs, fmt.Errorf("log.outputs.file.path is required when file output is enabled"))
		}
		if !validLevels[strings.ToLower(cfg.Log.Outputs.File.Level)] {
			errs = multierror.Append(errs, fmt.Errorf("invalid file log level: %s", cfg.Log.Outputs.File.Level))
		}
	}

	// ── Fabric ──
	if cfg.Fabric.IP != "" {
		if ip := net.ParseIP(cfg.Fabric.IP); ip == nil || ip.To4() == nil {
			errs = multierror.Append(errs, fmt.Errorf("fabric.ip must be an IPv4 address: %q", cfg.Fabric.IP))
		}
	}
	if cfg.Fabric.Port <= 0 || cfg.Fabric.Port > 0xFFFF {
		errs = multierror.Append(errs, fmt.Errorf("fabric.port out of range: %d", cfg.Fabric.Port))
	}
	if cfg.Fabric.LocalPort < 0 || cfg.Fabric.LocalPort > 0xFFFF {
		errs = multierror.Append(errs, fmt.Errorf("fabric.local_port out of range: %d", cfg.Fabric.LocalPort))
	}
	if cfg.Fabric.ChipID < 0 || cfg.Fabric.ChipID > core.MaxChipID {
		errs = multierror.Append(errs, fmt.Errorf("fabric.chip_id out of range: %d", cfg.Fabric.ChipID))
	}

	// ── Transport ──
	t := &cfg.Transport
	if t.ReadTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("transport.read_timeout must be positive"))
	}
	if t.ReadRetries < 1 {
		errs = multierror.Append(errs, fmt.Errorf("transport.read_retries must be at least 1"))
	}
	if t.MaxReadChunk < 1 {
		errs = multierror.Append(errs, fmt.Errorf("transport.max_read_chunk must be positive"))
	}
	if t.MaxBurstFlits < 1 || t.MaxBurstFlits > 2047 {
		errs = multierror.Append(errs, fmt.Errorf("transport.max_burst_flits must be within 1..2047"))
	}
	if t.SelfTestRetries < 1 {
		errs = multierror.Append(errs, fmt.Errorf("transport.self_test_retries must be at least 1"))
	}
	if t.SelfTestAddr%8 != 0 {
		errs = multierror.Append(errs, fmt.Errorf("transport.self_test_addr must be 8-byte aligned: %#x", t.SelfTestAddr))
	}
	if t.TOS < 0 || t.TOS > 0xFF {
		errs = multierror.Append(errs, fmt.Errorf("transport.tos out of range: %d", t.TOS))
	}
	if t.TTL < 0 || t.TTL > 0xFF {
		errs = multierror.Append(errs, fmt.Errorf("transport.ttl out of range: %d", t.TTL))
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = multierror.Append(errs, fmt.Errorf("metrics.listen is required when metrics are enabled"))
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// ── Targets ──
	for name, addr := range cfg.Targets {
		if !addr.Valid() {
			errs = multierror.Append(errs, fmt.Errorf("target %s: chip id %d exceeds %d", name, addr.Chip, core.MaxChipID))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

// Target resolves a named target.
func (cfg *Config) Target(name string) (core.ModuleAddress, error) {
	addr, ok := cfg.Targets[name]
	if !ok {
		return core.ModuleAddress{}, fmt.Errorf("%w: %s", core.ErrTargetNotDefined, name)
	}
	return addr, nil
}
