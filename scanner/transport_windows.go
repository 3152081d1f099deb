//go:build windows

package scanner

import (
	"errors"
	"syscall"
)

// errGenFailure is ERROR_GEN_FAILURE, reported by the USB-COM driver while
// the scanner is still waking up.
const errGenFailure = syscall.Errno(31)

func isTransientOSError(err error) bool {
	return errors.Is(err, errGenFailure)
}
