package mailer

import (
	"context"
	"sync"
)

// MockTransport is a hand-written Transport used in unit tests. It hands
// out a single MockSession.
type MockTransport struct {
	Session *MockSession
	OpenErr error
	Opens   int
}

func NewMockTransport() *MockTransport {
	return &MockTransport{Session: &MockSession{}}
}

func (t *MockTransport) Open(_ context.Context) (Session, error) {
	t.Opens++
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	return t.Session, nil
}

// MockSession records every envelope it is given.
type MockSession struct {
	mu sync.Mutex

	// FailFor maps a recipient to the error its send returns.
	FailFor map[string]error
	// OnSend, when set, is called after every accepted envelope.
	OnSend func(Envelope)

	Sent   []Envelope
	Calls  int
	Closed int
}

func (s *MockSession) Send(_ context.Context, env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if err, ok := s.FailFor[env.To]; ok {
		return err
	}
	s.Sent = append(s.Sent, env)
	if s.OnSend != nil {
		s.OnSend(env)
	}
	return nil
}

func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed++
	return nil
}
