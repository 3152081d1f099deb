package scanner

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport represents an established, bidirectional byte stream to a scanner.
//
// Read must not block: it returns whatever is currently available (up to
// len(p)) and 0, nil when nothing is pending. Drain blocks until every
// written byte has been handed to the device. Closing the transport makes
// in-flight and later reads fail, which is the only way to abort an operation
// that ignores its context.
type Transport interface {
	io.ReadWriteCloser
	Drain() error
}

// Dialer opens a Transport to a scanner.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens a scanner attached over USB-COM or RS232 using go.bug.st/serial.
//
// A scanner that is asleep refuses the port for a short while after it is
// plugged in or woken up. Dial keeps retrying transient open failures every
// OpenInterval until OpenTimeout has elapsed, then makes one last attempt and
// returns its error.
type SerialDialer struct {
	PortName string
	BaudRate int
	// Mode overrides BaudRate and the default 8N1 settings when set.
	Mode         *serial.Mode
	OpenTimeout  time.Duration
	OpenInterval time.Duration

	// open is swapped in tests
	open func(name string, mode *serial.Mode) (serial.Port, error)
}

var (
	errNoPortName = errors.New("pdscan: serial port name is required")
	errNilContext = errors.New("pdscan: context is nil")
)

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errNilContext
	}
	if d.PortName == "" {
		return nil, errNoPortName
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = 115200
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}
	timeout := d.OpenTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	interval := d.OpenInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	open := d.open
	if open == nil {
		open = serial.Open
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.Now().Add(timeout)

	for {
		port, err := open(d.PortName, mode)
		if err == nil {
			return newSerialTransport(port)
		}
		if !isTransientOpenError(err) {
			return nil, fmt.Errorf("open %s: %w", d.PortName, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("open %s: %w: %w", d.PortName, ErrTransientOpen, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// isTransientOpenError reports whether an open failure is worth retrying.
func isTransientOpenError(err error) bool {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return isTransientPortCode(portErr.Code())
	}
	return isTransientOSError(err)
}

// isTransientPortCode reports whether the port is merely not there yet or
// held by the device while it wakes up.
func isTransientPortCode(code serial.PortErrorCode) bool {
	switch code {
	case serial.PortBusy, serial.PortNotFound:
		return true
	}
	return false
}

// serialTransport adapts a serial.Port to the non-blocking Transport contract.
type serialTransport struct {
	serial.Port
}

func newSerialTransport(port serial.Port) (Transport, error) {
	// A zero read timeout makes Read return immediately with what is buffered.
	if err := port.SetReadTimeout(0); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return serialTransport{Port: port}, nil
}
