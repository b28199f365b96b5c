package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockTransport implements Transport for testing.
type MockTransport struct {
	connected bool
	messages  []Message
	mu        sync.Mutex
}

func NewMockTransport() *MockTransport {
	return &MockTransport{connected: true}
}

func (m *MockTransport) Send(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrSocketClosed
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Message, len(m.messages))
	copy(result, m.messages)
	return result
}

func TestSocket_Send(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	if err := socket.Push("notice", map[string]any{"text": "saved"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	messages := transport.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Topic != "lv:test-id" || messages[0].Event != "notice" {
		t.Errorf("unexpected message %+v", messages[0])
	}
}

func TestSocket_Send_Closed(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())
	socket.Close()

	if err := socket.Send(Message{Event: "test"}); err != ErrSocketClosed {
		t.Errorf("expected ErrSocketClosed, got %v", err)
	}
}

func TestSocket_Send_Concurrent(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	const goroutines = 50
	const messagesPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < messagesPerGoroutine; j++ {
				socket.Send(Message{Event: "test", Payload: map[string]any{"id": id, "msg": j}})
			}
		}(i)
	}
	wg.Wait()

	if got, want := len(transport.Messages()), goroutines*messagesPerGoroutine; got != want {
		t.Errorf("expected %d messages, got %d", want, got)
	}
}

func TestSocket_LastActivity(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())
	initial := socket.LastActivity()

	time.Sleep(10 * time.Millisecond)
	socket.Send(Message{Event: "test"})

	if !socket.LastActivity().After(initial) {
		t.Error("expected LastActivity to be updated after Send")
	}
}

func TestSocket_SendInfo(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())

	if socket.SendInfo("early") {
		t.Error("expected SendInfo to fail without an event loop")
	}

	var got []any
	socket.SetInfoSink(func(msg any) bool {
		got = append(got, msg)
		return true
	})
	if !socket.SendInfo("saved") {
		t.Error("expected SendInfo to be accepted")
	}

	socket.Close()
	if socket.SendInfo("late") {
		t.Error("expected SendInfo to fail after Close")
	}
	if len(got) != 1 || got[0] != "saved" {
		t.Errorf("expected only the message sent while open, got %v", got)
	}
}

func TestSocket_SendDiff(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	if err := socket.SendDiff(nil); err != nil {
		t.Fatalf("nil payload: %v", err)
	}
	if err := socket.SendDiff(&DiffPayload{Version: 1}); err != nil {
		t.Fatalf("empty payload: %v", err)
	}
	if len(transport.Messages()) != 0 {
		t.Fatal("expected empty payloads not to be sent")
	}

	payload := &DiffPayload{Version: 2, HTMLSlots: map[string]string{"canvas": "<p>x</p>"}}
	if err := socket.SendDiff(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	messages := transport.Messages()
	if len(messages) != 1 || messages[0].Event != "diff" {
		t.Fatalf("expected one diff message, got %+v", messages)
	}
	if _, ok := messages[0].Payload["f"]; ok {
		t.Error("expected no full render for a slot diff")
	}
	if payload.Size() != len("<p>x</p>") {
		t.Errorf("unexpected size %d", payload.Size())
	}
}

func TestSocketManager_AddRemove(t *testing.T) {
	sm := NewSocketManager()
	socket := NewSocket("a", NewMockTransport())

	if !sm.Add(socket) {
		t.Fatal("expected Add to succeed")
	}
	if got, ok := sm.Get("a"); !ok || got != socket {
		t.Fatal("expected to find socket a")
	}
	sm.Remove("a")
	if sm.Count() != 0 {
		t.Errorf("expected 0 sockets, got %d", sm.Count())
	}
}

func TestSocketManager_Shutdown(t *testing.T) {
	sm := NewSocketManager()
	transports := make([]*MockTransport, 3)
	for i := range transports {
		transports[i] = NewMockTransport()
		sm.Add(NewSocket(fmt.Sprintf("s%d", i), transports[i]))
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, tr := range transports {
		if tr.IsConnected() {
			t.Errorf("transport %d still connected", i)
		}
	}
	if sm.Add(NewSocket("late", NewMockTransport())) {
		t.Error("expected Add to fail after Shutdown")
	}
}

func TestSocketManager_CleanupInactive(t *testing.T) {
	sm := NewSocketManager()
	for i := 0; i < 3; i++ {
		sm.Add(NewSocket(fmt.Sprintf("old-%d", i), NewMockTransport()))
	}

	time.Sleep(60 * time.Millisecond)

	for i := 0; i < 2; i++ {
		socket := NewSocket(fmt.Sprintf("new-%d", i), NewMockTransport())
		sm.Add(socket)
		socket.UpdateActivity()
	}

	if removed := sm.CleanupInactive(30 * time.Millisecond); removed != 3 {
		t.Errorf("expected to remove 3 sockets, removed %d", removed)
	}
	if sm.Count() != 2 {
		t.Errorf("expected 2 sockets remaining, got %d", sm.Count())
	}
}

func TestTimeoutConfig_Validate(t *testing.T) {
	if err := DefaultTimeoutConfig().Validate(); err != nil {
		t.Errorf("default: %v", err)
	}
	if err := RelaxedTimeoutConfig().Validate(); err != nil {
		t.Errorf("relaxed: %v", err)
	}
	cfg := DefaultTimeoutConfig()
	cfg.ComponentEvent = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a zero event timeout")
	}
}

func BenchmarkSocket_Send(b *testing.B) {
	socket := NewSocket("bench-id", NewMockTransport())
	msg := Message{Event: "test", Payload: map[string]any{"key": "value"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		socket.Send(msg)
	}
}
