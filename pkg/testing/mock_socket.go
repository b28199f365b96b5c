package testing

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/pagestudio/pkg/core"
)

// MockSocket implements core.Transport and records what a component pushes.
type MockSocket struct {
	ID        string
	Connected bool
	Sent      []core.Message
	Closed    bool

	errorToSend error

	mu sync.Mutex
}

// NewMockSocket creates a new mock socket.
func NewMockSocket() *MockSocket {
	return &MockSocket{
		ID:        "test-socket-" + uuid.NewString()[:8],
		Connected: true,
	}
}

// Send records a sent message.
func (ms *MockSocket) Send(msg core.Message) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.errorToSend != nil {
		return ms.errorToSend
	}
	if ms.Closed {
		return core.ErrSocketClosed
	}

	ms.Sent = append(ms.Sent, msg)
	return nil
}

// Close marks the socket as closed.
func (ms *MockSocket) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.Closed = true
	ms.Connected = false
	return nil
}

// IsConnected returns the connection status.
func (ms *MockSocket) IsConnected() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.Connected && !ms.Closed
}

// SentCount returns the number of sent messages.
func (ms *MockSocket) SentCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.Sent)
}

// SentMessages returns all sent messages.
func (ms *MockSocket) SentMessages() []core.Message {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	result := make([]core.Message, len(ms.Sent))
	copy(result, ms.Sent)
	return result
}

// SetError makes every following Send fail with err.
func (ms *MockSocket) SetError(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.errorToSend = err
}
