package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"firestige.xyz/nocrw/internal/config"
	"firestige.xyz/nocrw/internal/core"
)

// parseTarget resolves a named target or a chip:module pair.
func parseTarget(c *config.Config, s string) (core.ModuleAddress, error) {
	if c != nil {
		if t, err := c.Target(s); err == nil {
			return t, nil
		}
	}
	if !strings.Contains(s, ":") {
		return core.ModuleAddress{}, fmt.Errorf("%w: %s", core.ErrTargetNotDefined, s)
	}
	return config.ParseModuleAddress(s)
}

func parseUint32(name, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return uint32(v), nil
}

// parseData takes hex bytes from arg ("0xdeadbeef", "de ad be ef") or the
// contents of file when file is set.
func parseData(arg, file string) ([]byte, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		return b, nil
	}
	s := strings.TrimPrefix(strings.ToLower(arg), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "_", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return b, nil
}
