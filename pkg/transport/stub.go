package transport

import (
	"context"
	"sync"
)

// StubAdmin is an in-process AdminInterface backed by a function. It records
// every command it receives.
type StubAdmin struct {
	mu       sync.Mutex
	fn       AdminFunc
	commands [][]byte
}

// NewStubAdmin returns a stub that answers with fn.
func NewStubAdmin(fn AdminFunc) *StubAdmin {
	return &StubAdmin{fn: fn}
}

// NewStaticAdmin returns a stub that answers every command with outbuf and status 0.
func NewStaticAdmin(outbuf string) *StubAdmin {
	return NewStubAdmin(func(context.Context, []byte, []byte) (*Reply, error) {
		return &Reply{Outbuf: []byte(outbuf)}, nil
	})
}

func (s *StubAdmin) MonCommand(ctx context.Context, cmd []byte, inbuf []byte) (*Reply, error) {
	s.mu.Lock()
	s.commands = append(s.commands, append([]byte(nil), cmd...))
	s.mu.Unlock()
	return s.fn(ctx, cmd, inbuf)
}

// Calls returns how many commands the stub has received.
func (s *StubAdmin) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands)
}

// LastCommand returns the most recent serialized command, or nil.
func (s *StubAdmin) LastCommand() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.commands) == 0 {
		return nil
	}
	return s.commands[len(s.commands)-1]
}
