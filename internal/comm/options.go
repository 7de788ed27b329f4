package comm

import (
	"time"

	"firestige.xyz/nocrw/internal/config"
	"firestige.xyz/nocrw/internal/core"
	"firestige.xyz/nocrw/internal/log"
)

// Protocol defaults.
const (
	DefaultReadTimeout     = time.Second
	DefaultReadRetries     = 3
	DefaultMaxReadChunk    = (1024 + 512) * 16 // larger requests exhaust the host's UDP receive buffer
	DefaultMaxBurstFlits   = 2047
	DefaultSelfTestRetries = 100
	DefaultSelfTestAddr    = 0xDEADBEE0
	DefaultResetDelay      = 5 * time.Second
)

// SelfTestPattern is written to the Ethernet module and expected back unchanged.
var SelfTestPattern = [8]byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xFF}

// Options tune a Communicator. Zero values select the defaults above.
type Options struct {
	LocalPort       int // 0 = ephemeral
	ReadTimeout     time.Duration
	ReadRetries     int
	MaxReadChunk    int
	MaxBurstFlits   int
	SkipSelfTest    bool
	SelfTestRetries int
	SelfTestAddr    uint32
	Reset           bool
	ResetDelay      time.Duration
	ChipID          uint8
	TOS             int // 0 = leave untouched
	TTL             int // 0 = leave untouched

	Logger log.Logger
	Tap    Tap
}

// DefaultOptions returns Options with every default filled in.
func DefaultOptions() Options {
	var o Options
	o.applyDefaults()
	return o
}

// OptionsFromConfig maps the fabric and transport sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	o := Options{
		LocalPort:       cfg.Fabric.LocalPort,
		ReadTimeout:     cfg.Transport.ReadTimeout,
		ReadRetries:     cfg.Transport.ReadRetries,
		MaxReadChunk:    cfg.Transport.MaxReadChunk,
		MaxBurstFlits:   cfg.Transport.MaxBurstFlits,
		SkipSelfTest:    !cfg.Transport.SelfTest,
		SelfTestRetries: cfg.Transport.SelfTestRetries,
		SelfTestAddr:    cfg.Transport.SelfTestAddr,
		Reset:           cfg.Fabric.Reset,
		ResetDelay:      cfg.Fabric.ResetDelay,
		ChipID:          uint8(cfg.Fabric.ChipID),
		TOS:             cfg.Transport.TOS,
		TTL:             cfg.Transport.TTL,
	}
	o.applyDefaults()
	return o
}

func (o *Options) applyDefaults() {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.ReadRetries <= 0 {
		o.ReadRetries = DefaultReadRetries
	}
	if o.MaxReadChunk <= 0 {
		o.MaxReadChunk = DefaultMaxReadChunk
	}
	if o.MaxBurstFlits <= 0 || o.MaxBurstFlits > DefaultMaxBurstFlits {
		o.MaxBurstFlits = DefaultMaxBurstFlits
	}
	if o.SelfTestRetries <= 0 {
		o.SelfTestRetries = DefaultSelfTestRetries
	}
	if o.SelfTestAddr == 0 {
		o.SelfTestAddr = DefaultSelfTestAddr
	}
	if o.ResetDelay <= 0 {
		o.ResetDelay = DefaultResetDelay
	}
	if o.ChipID > core.MaxChipID {
		o.ChipID = 0
	}
	if o.Logger == nil {
		o.Logger = log.GetLogger()
	}
}
