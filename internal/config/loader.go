package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"firestige.xyz/nocrw/internal/core"
)

// DotEnvFile is read from the working directory before the environment is consulted.
var DotEnvFile = ".env"

// loadDotEnv exports variables from DotEnvFile without overriding the real environment.
func loadDotEnv() error {
	if DotEnvFile == "" {
		return nil
	}
	if _, err := os.Stat(DotEnvFile); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(DotEnvFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
	}
	return nil
}

// ParseModuleAddress parses "chip:module"; both parts accept 0x prefixes.
func ParseModuleAddress(s string) (core.ModuleAddress, error) {
	chipStr, modStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return core.ModuleAddress{}, fmt.Errorf("%w: %q (want chip:module)", core.ErrInvalidTarget, s)
	}
	chip, err := strconv.ParseUint(strings.TrimSpace(chipStr), 0, 8)
	if err != nil {
		return core.ModuleAddress{}, fmt.Errorf("%w: chip %q: %v", core.ErrInvalidTarget, chipStr, err)
	}
	mod, err := strconv.ParseUint(strings.TrimSpace(modStr), 0, 8)
	if err != nil {
		return core.ModuleAddress{}, fmt.Errorf("%w: module %q: %v", core.ErrInvalidTarget, modStr, err)
	}
	addr := core.Addr(uint8(chip), uint8(mod))
	if !addr.Valid() {
		return core.ModuleAddress{}, fmt.Errorf("%w: chip %d exceeds %d", core.ErrInvalidTarget, chip, core.MaxChipID)
	}
	return addr, nil
}

// moduleAddressHook lets targets be written either as "chip:module" or as
// {chip: .., module: ..}.
func moduleAddressHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(core.ModuleAddress{}) || from.Kind() != reflect.String {
		return data, nil
	}
	return ParseModuleAddress(data.(string))
}

// decodeTargets converts the raw `targets` section.
func decodeTargets(raw interface{}) (map[string]core.ModuleAddress, error) {
	targets := map[string]core.ModuleAddress{}
	if raw == nil {
		return targets, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       moduleAddressHook,
		WeaklyTypedInput: true,
		Result:           &targets,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return targets, nil
}

// Dump renders the effective configuration as YAML under the `nocrw:` key.
func Dump(cfg *Config) ([]byte, error) {
	out := struct {
		Nocrw yamlConfig `yaml:"nocrw"`
	}{Nocrw: toYAML(cfg)}
	return yaml.Marshal(out)
}

// yamlConfig mirrors Config with targets rendered back to "chip:module".
type yamlConfig struct {
	Fabric    FabricConfig      `yaml:"fabric"`
	Transport TransportConfig   `yaml:"transport"`
	Log       LogConfig         `yaml:"log"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Capture   CaptureConfig     `yaml:"capture"`
	Emulator  EmulatorConfig    `yaml:"emulator"`
	Targets   map[string]string `yaml:"targets,omitempty"`
}

func toYAML(cfg *Config) yamlConfig {
	y := yamlConfig{
		Fabric:    cfg.Fabric,
		Transport: cfg.Transport,
		Log:       cfg.Log,
		Metrics:   cfg.Metrics,
		Capture:   cfg.Capture,
		Emulator:  cfg.Emulator,
	}
	if len(cfg.Targets) > 0 {
		y.Targets = make(map[string]string, len(cfg.Targets))
		for name, addr := range cfg.Targets {
			y.Targets[name] = fmt.Sprintf("%d:%#x", addr.Chip, addr.Module)
		}
	}
	return y
}
