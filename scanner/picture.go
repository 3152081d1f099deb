package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"i4.energy/across/pdscan/wire"
)

// CaptureParams configures a single picture capture.
type CaptureParams struct {
	// Trigger defaults to wire.TriggerButton when empty.
	Trigger    wire.Trigger
	Contrast   int
	Brightness int
}

// Validate checks contrast and brightness against [-255, 255].
func (p CaptureParams) Validate() error {
	if p.Contrast < wire.MinLevel || p.Contrast > wire.MaxLevel {
		return &ValidationError{Field: "contrast", Value: p.Contrast, Min: wire.MinLevel, Max: wire.MaxLevel}
	}
	if p.Brightness < wire.MinLevel || p.Brightness > wire.MaxLevel {
		return &ValidationError{Field: "brightness", Value: p.Brightness, Min: wire.MinLevel, Max: wire.MaxLevel}
	}
	switch p.Trigger {
	case "", wire.TriggerAuto, wire.TriggerButton, wire.TriggerCodeRead:
	default:
		return fmt.Errorf("%w: unknown trigger %q", ErrValidation, string(p.Trigger))
	}
	return nil
}

// Picture is a captured image. The caller owns Data.
type Picture struct {
	Data        []byte
	ContentType wire.ContentType
}

// SessionState is a step of the picture capture protocol.
type SessionState int

const (
	StateIdle SessionState = iota
	StateModeStarted
	StateAwaitingReady
	StateFetching
	StateModeEnded
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateModeStarted:
		return "mode-started"
	case StateAwaitingReady:
		return "awaiting-ready"
	case StateFetching:
		return "fetching"
	case StateModeEnded:
		return "mode-ended"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// maxPrealloc caps the buffer reserved up front for a transfer, the announced
// length comes straight off the wire.
const maxPrealloc = 16 << 20

// pictureSession runs one capture from picture mode start to picture mode end.
type pictureSession struct {
	scanner *Scanner
	state   SessionState
}

func (ps *pictureSession) transition(to SessionState) {
	ps.scanner.logger.Debug("picture session", "from", ps.state, "to", to)
	ps.state = to
}

// CapturePicture switches the scanner to picture mode, waits for a picture,
// transfers it and switches picture mode off again.
//
// Out of range parameters fail with a *ValidationError before anything is
// sent. A picture of zero bytes yields ErrNoImage. Waiting for the picture is
// bounded by ReadyAttempts rounds of ReadTimeout (ErrReadyTimeout) and the
// transfer by FetchTimeout (*FetchError). Lines that do not belong to the
// exchange are kept in Unhandled.
func (s *Scanner) CapturePicture(ctx context.Context, params CaptureParams) (*Picture, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Trigger == "" {
		params.Trigger = wire.TriggerButton
	}
	if err := s.usable(); err != nil {
		return nil, err
	}

	ps := &pictureSession{scanner: s, state: StateIdle}
	return ps.run(ctx, params)
}

func (ps *pictureSession) run(ctx context.Context, params CaptureParams) (*Picture, error) {
	s := ps.scanner

	cmd := wire.PictureStartCommand(params.Trigger, params.Contrast, params.Brightness)
	if err := s.Send(cmd); err != nil {
		return nil, fmt.Errorf("start picture mode: %w", err)
	}
	ps.transition(StateModeStarted)
	ps.transition(StateAwaitingReady)

	ready, err := ps.awaitReady(ctx)
	if err != nil {
		ps.abort()
		return nil, err
	}

	if ready.Length == 0 {
		s.logger.Info("scanner reported no image")
		ps.transition(StateModeEnded)
		if err := ps.end(ctx); err != nil {
			return nil, err
		}
		return nil, ErrNoImage
	}
	if ready.ContentType == wire.ContentUnknown {
		s.logger.Warn("unhandled picture type", "code", ready.Code)
	}
	s.logger.Debug("image ready", "length", ready.Length, "type", ready.ContentType)

	ps.transition(StateFetching)
	data, err := ps.fetch(ctx, ready.Length)
	if err != nil {
		ps.abort()
		return nil, err
	}
	s.logger.Debug("completed fetching image", "length", len(data))

	ps.transition(StateModeEnded)
	if err := ps.end(ctx); err != nil {
		return nil, err
	}

	return &Picture{Data: data, ContentType: ready.ContentType}, nil
}

// awaitReady reads lines until a ready notification shows up. Everything
// else, including notifications that fail to parse, is recorded as unhandled.
func (ps *pictureSession) awaitReady(ctx context.Context) (wire.Ready, error) {
	s := ps.scanner
	attempts := s.config.ReadyAttempts

	for attempt := 1; attempt <= attempts; attempt++ {
		lines, err := s.ReadLines(ctx, s.config.ReadTimeout, true)
		if err != nil {
			for _, line := range lines {
				s.addUnhandled(line)
			}
			return wire.Ready{}, fmt.Errorf("wait for picture: %w", err)
		}

		for i, line := range lines {
			if wire.Classify(line) != wire.TypeReady {
				s.addUnhandled(line)
				continue
			}
			ready, err := wire.ParseReady(line)
			if err != nil {
				s.logger.Warn("malformed ready notification", "error", err)
				s.addUnhandled(line)
				continue
			}
			for _, rest := range lines[i+1:] {
				s.addUnhandled(rest)
			}
			return ready, nil
		}
		s.logger.Debug("still waiting for picture", "attempt", attempt, "max_attempts", attempts)
	}
	return wire.Ready{}, fmt.Errorf("%w after %d attempts", ErrReadyTimeout, attempts)
}

// fetch requests the picture and reads exactly length raw bytes, bypassing the
// line framer. Reads never ask for more than what is still missing so the
// closing acknowledgment stays on the transport.
func (ps *pictureSession) fetch(ctx context.Context, length int) ([]byte, error) {
	s := ps.scanner

	if pending := s.framer.Pending(); len(pending) > 0 {
		s.logger.Warn("discarding partial line before picture transfer", "bytes", len(pending))
	}
	s.framer.Reset()

	if err := s.Send(wire.CmdPictureFetch); err != nil {
		return nil, fmt.Errorf("request picture: %w", err)
	}

	data := make([]byte, 0, min(length, maxPrealloc))
	deadline := time.Now().Add(s.config.FetchTimeout)
	ticker := time.NewTicker(s.config.FetchPollInterval)
	defer ticker.Stop()

	for len(data) < length {
		want := min(length-len(data), len(s.readBuf))
		n, err := s.transport.Read(s.readBuf[:want])
		data = append(data, s.readBuf[:n]...)
		if err != nil {
			return nil, &FetchError{Received: len(data), Expected: length, Err: fmt.Errorf("read error: %w", err)}
		}
		if n > 0 {
			continue
		}
		if time.Now().After(deadline) {
			return nil, &FetchError{Received: len(data), Expected: length, Err: ErrFetchTimeout}
		}
		select {
		case <-ctx.Done():
			return nil, &FetchError{Received: len(data), Expected: length, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
	return data, nil
}

// end leaves picture mode and drains the closing acknowledgment.
func (ps *pictureSession) end(ctx context.Context) error {
	s := ps.scanner

	if err := s.Send(wire.CmdPictureEnd); err != nil {
		return fmt.Errorf("end picture mode: %w", err)
	}

	// The picture is already complete, a cancelled caller still gets it.
	lines, err := s.ReadLines(context.WithoutCancel(ctx), s.config.ReadTimeout, true)
	for _, line := range lines {
		if line != "" && wire.Classify(line) != wire.TypeClosing {
			s.addUnhandled(line)
		}
	}
	if err != nil {
		return fmt.Errorf("drain picture mode end: %w", err)
	}
	return nil
}

// abort tries to leave picture mode after a failed capture.
func (ps *pictureSession) abort() {
	s := ps.scanner
	ps.transition(StateModeEnded)
	if err := s.Send(wire.CmdPictureEnd); err != nil && !errors.Is(err, ErrAlreadyClosed) {
		s.logger.Warn("could not leave picture mode", "error", err)
	}
}
