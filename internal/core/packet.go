// Package core defines core data structures with zero external dependencies.
package core

import (
	"net/netip"
	"time"
)

// Direction of a datagram relative to the host.
type Direction uint8

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "tx"
	}
	return "rx"
}

// Datagram is one UDP payload exchanged with the fabric.
type Datagram struct {
	Data      []byte // concatenation of 18-byte NoC packets
	Timestamp time.Time
	Local     netip.AddrPort
	Peer      netip.AddrPort
	Direction Direction
}
