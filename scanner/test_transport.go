package scanner

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// TestTransport is an in-memory scanner for tests and demos.
//
// Replies registered with OnCommand are queued for reading as soon as the
// matching command is written, which is how a real scanner answers. Reads
// never block, like a serial port with a zero read timeout.
type TestTransport struct {
	mu       sync.Mutex
	rx       bytes.Buffer
	replies  map[string][][]byte
	commands []string
	chunk    int
	closed   bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		replies: make(map[string][][]byte),
	}
}

// Dial returns the transport itself so a TestTransport can be used as Dialer.
func (t *TestTransport) Dial(ctx context.Context) (Transport, error) {
	return t, nil
}

// OnCommand queues reply to be received after the next write of cmd (without
// CR). Replies for the same command are used in registration order.
func (t *TestTransport) OnCommand(cmd string, reply []byte) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[cmd] = append(t.replies[cmd], reply)
	return t
}

// SetChunkSize limits how many bytes a single Read returns, to exercise
// partial reads. Zero means no limit.
func (t *TestTransport) SetChunkSize(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chunk = n
}

// SendData queues data to be read by the transport.
// This simulates the scanner sending something unprompted.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx.WriteString(data)
}

// Commands returns every command written so far, without CR.
func (t *TestTransport) Commands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.commands...)
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}

	for _, cmd := range bytes.Split(bytes.TrimSuffix(p, []byte("\r")), []byte("\r")) {
		t.commands = append(t.commands, string(cmd))
		if queued := t.replies[string(cmd)]; len(queued) > 0 {
			t.rx.Write(queued[0])
			t.replies[string(cmd)] = queued[1:]
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}

	if t.chunk > 0 && len(p) > t.chunk {
		p = p[:t.chunk]
	}
	if t.rx.Len() == 0 {
		return 0, nil
	}
	return t.rx.Read(p)
}

func (t *TestTransport) Drain() error {
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
