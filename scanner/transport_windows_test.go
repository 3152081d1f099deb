//go:build windows

package scanner

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransientOSError_GenFailure(t *testing.T) {
	if !isTransientOpenError(fmt.Errorf("open COM3: %w", syscall.Errno(31))) {
		t.Error("expected ERROR_GEN_FAILURE to be retried")
	}
	if isTransientOpenError(errors.New("access is denied")) {
		t.Error("expected plain error not to be retried")
	}
}
