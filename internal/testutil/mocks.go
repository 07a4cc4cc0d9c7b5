package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/poyrazK/tourpass/internal/core/domain"
)

// MockNotifier implements ports.Notifier and records every attempt.
type MockNotifier struct {
	mu      sync.Mutex
	Sent    []domain.Notification
	Fail    bool
	Attempt int
}

func (m *MockNotifier) Notify(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempt++
	if m.Fail {
		return errors.Join(domain.ErrNotifierUnavailable, errors.New("smtp: connection refused"))
	}
	m.Sent = append(m.Sent, n)
	return nil
}

// Attempts returns the number of Notify calls so far.
func (m *MockNotifier) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Attempt
}
