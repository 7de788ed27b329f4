package nocrw

import (
	"errors"
	"net"
	"os"

	"firestige.xyz/nocrw/internal/core"
)

// Errors returned (wrapped) by Client methods.
var (
	ErrClosed           = core.ErrClosed
	ErrUnusable         = core.ErrUnusable
	ErrProtocol         = core.ErrProtocol
	ErrSelfTestTimeout  = core.ErrSelfTestTimeout
	ErrSelfTestMismatch = core.ErrSelfTestMismatch
	ErrInvalidTarget    = core.ErrInvalidTarget
	ErrAddressOverflow  = core.ErrAddressOverflow
	ErrPayloadTooLarge  = core.ErrPayloadTooLarge
)

// IsTimeout reports whether err is a receive timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
