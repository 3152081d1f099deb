package scanner_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/pdscan/scanner"
)

// fastConfig keeps polling tests well below a second.
func fastConfig(t *testing.T, dialer scanner.Dialer) scanner.Config {
	t.Helper()
	config, err := scanner.NewConfigBuilder().
		WithDialer(dialer).
		WithReadTimeout(50 * time.Millisecond).
		WithPollInterval(5 * time.Millisecond).
		WithReadyAttempts(2).
		WithFetchTimeout(100 * time.Millisecond).
		WithFetchPollInterval(time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	return config
}

func newTestScanner(t *testing.T, transport *scanner.TestTransport) *scanner.Scanner {
	t.Helper()
	s, err := scanner.New(context.Background(), fastConfig(t, transport))
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScannerNew(t *testing.T) {
	t.Run("Initialization Success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := scanner.NewMockTransport(ctrl)
		mockDialer := scanner.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)

		config, err := scanner.NewConfigBuilder().
			WithDialer(mockDialer).
			Build()
		if err != nil {
			t.Errorf("unexpected error from Build(): %v", err)
		}

		s, err := scanner.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Model() != "Unknown" {
			t.Errorf("expected model Unknown before identification, got %q", s.Model())
		}

		mockTransport.EXPECT().Close().Return(nil)
		if err := s.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
	})

	t.Run("Dialer error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		dialErr := errors.New("connection failed")
		mockDialer := scanner.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, dialErr)

		s, err := scanner.New(context.Background(), scanner.Config{Dialer: mockDialer})
		if !errors.Is(err, dialErr) {
			t.Errorf("expected dial error, got: %v", err)
		}
		if s != nil {
			t.Error("New() should return nil scanner when dialer fails")
		}
	})

	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		s, err := scanner.New(context.Background(), scanner.Config{})
		if !errors.Is(err, scanner.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer from New(), got: %v", err)
		}
		if s != nil {
			t.Error("New() should return nil scanner when no dialer provided")
		}
	})

	t.Run("ErrNotInitialized on nil transport", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := scanner.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, nil)

		_, err := scanner.New(context.Background(), scanner.Config{Dialer: mockDialer})
		if !errors.Is(err, scanner.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized from New(), got: %v", err)
		}
	})
}

func TestScannerClose(t *testing.T) {
	t.Run("Returns transport error on close failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := scanner.NewMockTransport(ctrl)
		mockDialer := scanner.NewMockDialer(ctrl)
		closeError := errors.New("transport close failed")
		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			mockTransport.EXPECT().Close().Return(closeError),
		)

		s, err := scanner.New(context.Background(), scanner.Config{Dialer: mockDialer})
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}
		if err := s.Close(); err != closeError {
			t.Errorf("expected transport error, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed on double close and later use", func(t *testing.T) {
		s := newTestScanner(t, scanner.NewTestTransport())

		if err := s.Close(); err != nil {
			t.Errorf("first close should succeed, got error: %v", err)
		}
		if err := s.Close(); err != scanner.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed on second close, got: %v", err)
		}
		if err := s.Send("$S"); !errors.Is(err, scanner.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed from Send, got: %v", err)
		}
		if _, err := s.PollLines(); !errors.Is(err, scanner.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed from PollLines, got: %v", err)
		}
	})
}

func TestScannerSend(t *testing.T) {
	t.Run("Appends CR and flushes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := scanner.NewMockTransport(ctrl)
		mockDialer := scanner.NewMockDialer(ctrl)
		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			mockTransport.EXPECT().Write([]byte("$S\r")).Return(3, nil),
			mockTransport.EXPECT().Drain().Return(nil),
			mockTransport.EXPECT().Write([]byte("$s\r")).Return(3, nil),
			mockTransport.EXPECT().Drain().Return(nil),
		)

		s, err := scanner.New(context.Background(), scanner.Config{Dialer: mockDialer})
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}
		if err := s.EnterConfigMode(); err != nil {
			t.Errorf("unexpected error from EnterConfigMode(): %v", err)
		}
		if err := s.ExitConfigMode(); err != nil {
			t.Errorf("unexpected error from ExitConfigMode(): %v", err)
		}
	})

	t.Run("Write error is returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		writeErr := errors.New("device gone")
		mockTransport := scanner.NewMockTransport(ctrl)
		mockDialer := scanner.NewMockDialer(ctrl)
		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			mockTransport.EXPECT().Write(gomock.Any()).Return(0, writeErr),
		)

		s, err := scanner.New(context.Background(), scanner.Config{Dialer: mockDialer})
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}
		if err := s.Send("$S"); !errors.Is(err, writeErr) {
			t.Errorf("expected write error, got: %v", err)
		}
	})

	t.Run("Flush error is returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		drainErr := errors.New("drain failed")
		mockTransport := scanner.NewMockTransport(ctrl)
		mockDialer := scanner.NewMockDialer(ctrl)
		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			mockTransport.EXPECT().Write(gomock.Any()).Return(3, nil),
			mockTransport.EXPECT().Drain().Return(drainErr),
		)

		s, err := scanner.New(context.Background(), scanner.Config{Dialer: mockDialer})
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}
		if err := s.Send("$s"); !errors.Is(err, drainErr) {
			t.Errorf("expected drain error, got: %v", err)
		}
	})
}

func TestScannerDeviceID(t *testing.T) {
	t.Run("Returns first line", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := scanner.NewMockTransport(ctrl)
		mockDialer := scanner.NewMockDialer(ctrl)
		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			NewMockSequence(mockTransport).Identify("Scanner-X1").Build(),
		)...)

		s, err := scanner.New(context.Background(), scanner.Config{Dialer: mockDialer})
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		model, err := s.DeviceID(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if model != "Scanner-X1" {
			t.Errorf("expected model Scanner-X1, got %q", model)
		}
		if s.Model() != "Scanner-X1" {
			t.Errorf("expected recorded model Scanner-X1, got %q", s.Model())
		}
	})

	t.Run("Reply split across reads", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := scanner.NewMockTransport(ctrl)
		mockDialer := scanner.NewMockDialer(ctrl)
		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			NewMockSequence(mockTransport).
				Command("$+$!").
				Reply("PD95").
				Silence().
				Reply("30-DPM\r").
				Build(),
		)...)

		config := fastConfig(t, mockDialer)
		s, err := scanner.New(context.Background(), config)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}

		model, err := s.DeviceID(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if model != "PD9530-DPM" {
			t.Errorf("expected model PD9530-DPM, got %q", model)
		}
	})

	t.Run("ErrNoResponse when nothing arrives", func(t *testing.T) {
		s := newTestScanner(t, scanner.NewTestTransport())

		start := time.Now()
		model, err := s.DeviceID(context.Background())
		if !errors.Is(err, scanner.ErrNoResponse) {
			t.Errorf("expected ErrNoResponse, got: %v", err)
		}
		if model != "" {
			t.Errorf("expected empty model, got %q", model)
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("expected to wait for the read timeout, returned after %v", elapsed)
		}
		if s.Model() != "Unknown" {
			t.Errorf("expected model to stay Unknown, got %q", s.Model())
		}
	})

	t.Run("Extra lines are kept as unhandled", func(t *testing.T) {
		transport := scanner.NewTestTransport().
			OnCommand("$+$!", []byte("Scanner-X1\r4006381333931\r"))
		s := newTestScanner(t, transport)

		model, err := s.DeviceID(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if model != "Scanner-X1" {
			t.Errorf("expected model Scanner-X1, got %q", model)
		}
		if got := s.Unhandled(); !slices.Equal(got, []string{"4006381333931"}) {
			t.Errorf("expected stray code in unhandled, got %q", got)
		}
	})
}

func TestScannerReadLines(t *testing.T) {
	t.Run("Empty result on timeout is not an error", func(t *testing.T) {
		s := newTestScanner(t, scanner.NewTestTransport())

		lines, err := s.ReadLines(context.Background(), 20*time.Millisecond, true)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(lines) != 0 {
			t.Errorf("expected no lines, got %q", lines)
		}
	})

	t.Run("Keeps collecting until timeout", func(t *testing.T) {
		transport := scanner.NewTestTransport()
		transport.SendData("one\rtw")
		s := newTestScanner(t, transport)

		go func() {
			time.Sleep(10 * time.Millisecond)
			transport.SendData("o\rthree\r")
		}()

		lines, err := s.ReadLines(context.Background(), 60*time.Millisecond, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(lines, []string{"one", "two", "three"}) {
			t.Errorf("expected [one two three], got %q", lines)
		}
	})

	t.Run("Stops on first batch", func(t *testing.T) {
		transport := scanner.NewTestTransport()
		transport.SendData("first\r")
		s := newTestScanner(t, transport)

		start := time.Now()
		lines, err := s.ReadLines(context.Background(), time.Second, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(lines, []string{"first"}) {
			t.Errorf("expected [first], got %q", lines)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Error("expected ReadLines to return before the timeout")
		}
	})

	t.Run("Context cancellation", func(t *testing.T) {
		s := newTestScanner(t, scanner.NewTestTransport())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.ReadLines(ctx, time.Second, true)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	})

	t.Run("Undecodable line is dropped", func(t *testing.T) {
		transport := scanner.NewTestTransport()
		transport.SendData("good\r\xff\rnext\r")
		s := newTestScanner(t, transport)

		lines, err := s.PollLines()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(lines, []string{"good", "next"}) {
			t.Errorf("expected [good next], got %q", lines)
		}
	})

	t.Run("Read error is returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		readErr := errors.New("port closed")
		mockTransport := scanner.NewMockTransport(ctrl)
		mockDialer := scanner.NewMockDialer(ctrl)
		gomock.InOrder(
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			mockTransport.EXPECT().Read(gomock.Any()).Return(0, readErr),
		)

		s, err := scanner.New(context.Background(), scanner.Config{Dialer: mockDialer})
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}
		if _, err := s.ReadLines(context.Background(), time.Second, true); !errors.Is(err, readErr) {
			t.Errorf("expected read error, got: %v", err)
		}
	})
}

func TestScannerScanCodes(t *testing.T) {
	transport := scanner.NewTestTransport()
	transport.SendData("4006381333931\r\r$b\rABC-123\r")
	s := newTestScanner(t, transport)

	var codes []string
	stop := errors.New("stop")
	err := s.ScanCodes(context.Background(), func(code string) error {
		codes = append(codes, code)
		if len(codes) == 2 {
			return stop
		}
		return nil
	})

	if !errors.Is(err, stop) {
		t.Errorf("expected callback error, got: %v", err)
	}
	if !slices.Equal(codes, []string{"4006381333931", "ABC-123"}) {
		t.Errorf("expected two codes, got %q", codes)
	}
	if got := s.Unhandled(); !slices.Equal(got, []string{"$b"}) {
		t.Errorf("expected $b in unhandled, got %q", got)
	}

	s.ResetUnhandled()
	if got := s.Unhandled(); len(got) != 0 {
		t.Errorf("expected unhandled to be empty after reset, got %q", got)
	}
}
