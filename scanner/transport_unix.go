//go:build !windows

package scanner

import (
	"errors"
	"syscall"
)

// The device node only appears once the scanner has enumerated on the bus.
// go.bug.st/serial returns that case as a raw errno.
func isTransientOSError(err error) bool {
	return errors.Is(err, syscall.ENOENT)
}
