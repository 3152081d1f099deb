package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/pdscan/wire"
)

// Scanner drives a handheld optical scanner over a serial transport.
//
// It sends CR terminated ASCII commands, frames the responses into lines and
// runs the binary picture transfer. A Scanner is not safe for concurrent use:
// every call runs on the caller's goroutine and polls the transport until it
// is done.
type Scanner struct {
	// transport provides the physical connection to the scanner
	transport Transport
	// config contains the scanner configuration settings, defaults applied
	config Config
	logger *slog.Logger
	// closed indicates if the scanner has been shut down
	closed bool

	// framer holds the bytes of a response line that has not been terminated yet
	framer  wire.Framer
	readBuf []byte

	// model is the identification string reported by the device
	model string
	// unhandled collects lines that did not fit the protocol phase they arrived in
	unhandled []string
}

// New dials the scanner described by config and returns a ready to use Scanner.
func New(ctx context.Context, config Config) (*Scanner, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial scanner: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	return &Scanner{
		transport: transport,
		config:    config,
		logger:    config.Logger,
		readBuf:   make([]byte, config.ReadChunkSize),
		model:     "Unknown",
	}, nil
}

// Close releases the transport. After calling Close(), the scanner cannot be reused.
func (s *Scanner) Close() error {
	if s.closed {
		return ErrAlreadyClosed
	}
	s.closed = true

	if s.transport != nil {
		return s.transport.Close()
	}
	return nil
}

func (s *Scanner) usable() error {
	if s.closed {
		return ErrAlreadyClosed
	}
	if s.transport == nil {
		return ErrNotInitialized
	}
	return nil
}

// Send writes cmd followed by CR and flushes the transport.
func (s *Scanner) Send(cmd string) error {
	if err := s.usable(); err != nil {
		return err
	}

	s.logger.Debug("sending command", "command", cmd)
	frame := cmd + wire.CR
	if _, err := s.transport.Write([]byte(frame)); err != nil {
		return fmt.Errorf("write command %q: %w", cmd, err)
	}
	if err := s.transport.Drain(); err != nil {
		return fmt.Errorf("flush command %q: %w", cmd, err)
	}
	return nil
}

// PollLines reads everything the transport has buffered right now and
// returns the lines it completes. It never waits for data.
//
// Lines that are not valid UTF-8 are logged and dropped.
func (s *Scanner) PollLines() ([]string, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	var lines []string
	for {
		n, err := s.transport.Read(s.readBuf)
		if n > 0 {
			batch, decodeErr := s.framer.Feed(s.readBuf[:n])
			if decodeErr != nil {
				s.logger.Warn("dropped undecodable line", "error", decodeErr)
			}
			for _, line := range batch {
				s.logger.Debug("completed line", "line", line)
			}
			lines = append(lines, batch...)
		}
		if err != nil {
			return lines, fmt.Errorf("read error: %w", err)
		}
		if n < len(s.readBuf) {
			return lines, nil
		}
	}
}

// ReadLines polls the transport every PollInterval for up to timeout.
//
// With stopOnFirstBatch it returns as soon as a poll yields at least one line,
// otherwise it keeps collecting until the timeout. An expired timeout is not an
// error: the lines collected so far, possibly none, are returned with a nil
// error. Cancellation of ctx returns the collected lines and ctx.Err().
func (s *Scanner) ReadLines(ctx context.Context, timeout time.Duration, stopOnFirstBatch bool) ([]string, error) {
	polls := int(timeout / s.config.PollInterval)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	var lines []string
	for i := 0; ; i++ {
		batch, err := s.PollLines()
		lines = append(lines, batch...)
		if err != nil {
			return lines, err
		}
		if len(batch) > 0 && stopOnFirstBatch {
			return lines, nil
		}
		if i >= polls {
			return lines, nil
		}

		select {
		case <-ctx.Done():
			return lines, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DeviceID asks the scanner for its model identification and remembers it.
//
// It returns ErrNoResponse if no line arrives within the read timeout.
func (s *Scanner) DeviceID(ctx context.Context) (string, error) {
	if err := s.Send(wire.CmdIdentify); err != nil {
		return "", err
	}

	lines, err := s.ReadLines(ctx, s.config.ReadTimeout, true)
	if err != nil {
		return "", fmt.Errorf("read identification: %w", err)
	}
	if len(lines) == 0 {
		return "", ErrNoResponse
	}

	s.model = lines[0]
	for _, extra := range lines[1:] {
		s.addUnhandled(extra)
	}
	s.logger.Info("scanner identified", "model", s.model)
	return s.model, nil
}

// Model returns the identification recorded by the last successful DeviceID,
// or "Unknown".
func (s *Scanner) Model() string {
	return s.model
}

// EnterConfigMode switches the scanner into configuration mode.
func (s *Scanner) EnterConfigMode() error {
	return s.Send(wire.CmdConfigModeStart)
}

// ExitConfigMode switches the scanner back out of configuration mode.
func (s *Scanner) ExitConfigMode() error {
	return s.Send(wire.CmdConfigModeEnd)
}

// ScanCodes delivers every non-empty line the scanner sends, typically decoded
// barcodes, to fn until ctx is cancelled or fn returns an error.
// Picture protocol lines are recorded as unhandled instead.
func (s *Scanner) ScanCodes(ctx context.Context, fn func(code string) error) error {
	for {
		lines, err := s.ReadLines(ctx, s.config.ReadTimeout, true)
		for _, line := range lines {
			if line == "" {
				continue
			}
			if wire.Classify(line) != wire.TypeData {
				s.addUnhandled(line)
				continue
			}
			if err := fn(line); err != nil {
				return err
			}
		}
		if err != nil {
			return err
		}
	}
}

// Unhandled returns the lines that arrived when the protocol expected
// something else, oldest first.
func (s *Scanner) Unhandled() []string {
	return append([]string(nil), s.unhandled...)
}

// ResetUnhandled discards the collected unhandled lines.
func (s *Scanner) ResetUnhandled() {
	s.unhandled = nil
}

func (s *Scanner) addUnhandled(line string) {
	s.logger.Debug("unhandled message", "line", line)
	s.unhandled = append(s.unhandled, line)
}
