package scanner_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/pdscan/scanner"
)

type MockSequenceBuilder struct {
	transport *scanner.MockTransport
	calls     []any
}

func NewMockSequence(transport *scanner.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Command expects cmd to be written with its CR terminator and flushed.
func (b *MockSequenceBuilder) Command(cmd string) *MockSequenceBuilder {
	frame := []byte(cmd + "\r")
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(frame).Return(len(frame), nil),
		b.transport.EXPECT().Drain().Return(nil),
	)
	return b
}

// Reply makes the next read return resp.
func (b *MockSequenceBuilder) Reply(resp string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, resp), nil
		}),
	)
	return b
}

// Silence makes the next read find nothing pending.
func (b *MockSequenceBuilder) Silence() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).Return(0, nil),
	)
	return b
}

func (b *MockSequenceBuilder) Identify(model string) *MockSequenceBuilder {
	return b.Command("$+$!").Reply(model + "\r")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
