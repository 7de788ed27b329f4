// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// Protocol errors are fatal and never retried.
	ErrProtocol          = errors.New("nocrw: protocol error")
	ErrUnknownMode       = fmt.Errorf("%w: unknown packet mode", ErrProtocol)
	ErrMalformedDatagram = fmt.Errorf("%w: malformed datagram length", ErrProtocol)
	ErrShortPacket       = fmt.Errorf("%w: packet too short", ErrProtocol)

	// Link errors
	ErrSelfTestTimeout  = errors.New("nocrw: no self test response")
	ErrSelfTestMismatch = errors.New("nocrw: self test loopback mismatch")
	ErrClosed           = errors.New("nocrw: communicator closed")
	ErrUnusable         = errors.New("nocrw: communicator unusable after failed self test")

	// Argument errors
	ErrInvalidTarget    = errors.New("nocrw: invalid target address")
	ErrPayloadTooLarge  = errors.New("nocrw: payload too large")
	ErrAddressOverflow  = errors.New("nocrw: address range overflows 32 bits")
	ErrConfigInvalid    = errors.New("nocrw: invalid configuration")
	ErrTargetNotDefined = errors.New("nocrw: target not defined")
)

// OpError records the operation and location that failed.
type OpError struct {
	Op     string
	Target ModuleAddress
	Addr   uint32
	Len    int
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s at %#x (len=%d): %v", e.Op, e.Target, e.Addr, e.Len, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// IsProtocol reports whether err indicates link corruption or a version mismatch.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}
