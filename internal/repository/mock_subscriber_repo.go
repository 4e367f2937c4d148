package repository

import (
	"context"
	"sync"

	"github.com/ricirt/newsdigest/internal/domain"
)

// MockSubscriberRepository is a hand-written, in-memory implementation of
// SubscriberRepository used in unit tests.
type MockSubscriberRepository struct {
	mu         sync.Mutex
	recipients []domain.Recipient

	// Optional error overrides, set in tests to simulate failure paths.
	ListErr error
	// CloseFailures makes the first N calls to Close fail with CloseErr.
	CloseFailures int
	CloseErr      error

	ListCalls  int
	CloseCalls int
}

func NewMockSubscriberRepository(recipients ...domain.Recipient) *MockSubscriberRepository {
	return &MockSubscriberRepository{recipients: recipients}
}

func (m *MockSubscriberRepository) ListRecipients(_ context.Context) ([]domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]domain.Recipient, len(m.recipients))
	copy(out, m.recipients)
	return out, nil
}

func (m *MockSubscriberRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	if m.CloseCalls <= m.CloseFailures {
		return m.CloseErr
	}
	return nil
}
