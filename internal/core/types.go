// Package core defines core types with zero external dependencies.
package core

import "fmt"

// ModuleAddress identifies one endpoint of the fabric.
type ModuleAddress struct {
	Chip   uint8 // 6 bits on the wire
	Module uint8
}

// MaxChipID is the largest chip id the packet header can carry.
const MaxChipID = 0x3F

// Well-known module ids.
const (
	ModuleEthernet uint8 = 0x05
)

// EthModule is the fabric's Ethernet bridge; every host packet is sent on its behalf.
var EthModule = ModuleAddress{Chip: 0, Module: ModuleEthernet}

// Addr is a shorthand constructor.
func Addr(chip, module uint8) ModuleAddress {
	return ModuleAddress{Chip: chip, Module: module}
}

// Valid reports whether the address fits into the packet header.
func (m ModuleAddress) Valid() bool {
	return m.Chip <= MaxChipID
}

func (m ModuleAddress) String() string {
	return fmt.Sprintf("(chip=%d, mod=%d)", m.Chip, m.Module)
}

// Mode is the 4-bit NoC packet mode.
type Mode uint8

const (
	ModeReadReq     Mode = 0
	ModeReadResp    Mode = 1
	ModeWritePosted Mode = 2
	ModeMsg         Mode = 3
	ModeMsgAck      Mode = 4
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m <= ModeMsgAck
}

func (m Mode) String() string {
	switch m {
	case ModeReadReq:
		return "ReadReq"
	case ModeReadResp:
		return "ReadResp"
	case ModeWritePosted:
		return "WritePosted"
	case ModeMsg:
		return "Msg"
	case ModeMsgAck:
		return "MsgAck"
	default:
		return fmt.Sprintf("mode:%d", uint8(m))
	}
}

// Unsolicited reports whether packets of this mode are fabric-initiated traffic
// that must be kept for a later receive.
func (m Mode) Unsolicited() bool {
	return m == ModeWritePosted || m == ModeMsg
}
