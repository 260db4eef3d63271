package carrier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockGateway records sends for tests and local development.
type MockGateway struct {
	mu    sync.Mutex
	seq   atomic.Int64
	Sent  []MockSend
	// FailWith, when set, is returned for every send.
	FailWith error
	// FailFirst fails the first N sends with a transient error.
	FailFirst int
}

type MockSend struct {
	To   string
	Body string
	Ref  string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Send(_ context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return "", m.FailWith
	}
	if m.FailFirst > 0 {
		m.FailFirst--
		return "", NewTransientError("network", "mock transient failure")
	}

	ref := fmt.Sprintf("mock-%d", m.seq.Add(1))
	m.Sent = append(m.Sent, MockSend{To: to, Body: body, Ref: ref})
	return ref, nil
}

// SentCount returns how many sends succeeded.
func (m *MockGateway) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
