// Package testing drives live components without a browser or WebSocket
// connection: mount, send events, deliver info messages and inspect the
// rendered HTML.
package testing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gabrielmiguelok/pagestudio/pkg/core"
)

// Event is one event pushed through the harness.
type Event struct {
	Name    string
	Payload map[string]any
}

// LiveViewTest is a harness around one mounted component. Like the router,
// it calls the component from one goroutine only; info messages the
// component sends itself are queued until AwaitInfo or Drain.
type LiveViewTest struct {
	t         *testing.T
	component core.Component
	transport *MockSocket
	socket    *core.Socket
	info      chan any
	rendered  string
	events    []Event
	ctx       context.Context
}

type mountConfig struct {
	params  core.Params
	session core.Session
}

// MountOption configures the test mount.
type MountOption func(*mountConfig)

// WithParams sets mount parameters.
func WithParams(params core.Params) MountOption {
	return func(c *mountConfig) { c.params = params }
}

// WithSession sets session data.
func WithSession(session core.Session) MountOption {
	return func(c *mountConfig) { c.session = session }
}

// Mount mounts comp and renders it once.
func Mount(t *testing.T, comp core.Component, opts ...MountOption) *LiveViewTest {
	t.Helper()

	cfg := mountConfig{params: core.Params{}, session: core.Session{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	lvt := &LiveViewTest{
		t:         t,
		component: comp,
		transport: NewMockSocket(),
		info:      make(chan any, 16),
	}
	lvt.socket = core.NewSocket(lvt.transport.ID, lvt.transport)
	lvt.socket.SetInfoSink(func(msg any) bool {
		lvt.info <- msg
		return true
	})
	if setter, ok := comp.(core.SocketSetter); ok {
		setter.SetSocket(lvt.socket)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		comp.Terminate(context.Background(), core.TerminateNormal)
		lvt.socket.Close()
	})
	lvt.ctx = core.BuildContext(ctx, lvt.socket, cfg.session, cfg.params)

	if err := comp.Mount(lvt.ctx, cfg.params, cfg.session); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	lvt.render()
	return lvt
}

// EventOption configures an event payload.
type EventOption func(map[string]any)

// WithPayload merges payload into the event payload.
func WithPayload(payload map[string]any) EventOption {
	return func(p map[string]any) {
		for k, v := range payload {
			p[k] = v
		}
	}
}

// WithValue sets one payload value, like an lv-value-* attribute.
func WithValue(key string, value any) EventOption {
	return func(p map[string]any) { p[key] = value }
}

// Click sends event, as an lv-click element would.
func (lvt *LiveViewTest) Click(event string, opts ...EventOption) *LiveViewTest {
	lvt.t.Helper()
	payload := make(map[string]any)
	for _, opt := range opts {
		opt(payload)
	}
	lvt.push(event, payload)
	return lvt
}

// Change sends event with the new input value, as an lv-change input would.
func (lvt *LiveViewTest) Change(event, value string, opts ...EventOption) *LiveViewTest {
	lvt.t.Helper()
	payload := map[string]any{"value": value}
	for _, opt := range opts {
		opt(payload)
	}
	lvt.push(event, payload)
	return lvt
}

// Submit sends event with form data.
func (lvt *LiveViewTest) Submit(event string, data map[string]string) *LiveViewTest {
	lvt.t.Helper()
	payload := make(map[string]any, len(data))
	for k, v := range data {
		payload[k] = v
	}
	lvt.push(event, payload)
	return lvt
}

func (lvt *LiveViewTest) push(event string, payload map[string]any) {
	lvt.t.Helper()
	lvt.events = append(lvt.events, Event{Name: event, Payload: payload})

	if err := lvt.component.HandleEvent(lvt.ctx, event, payload); err != nil {
		lvt.t.Errorf("HandleEvent %q failed: %v", event, err)
		return
	}
	lvt.render()
}

// SendInfo hands msg to the component directly.
func (lvt *LiveViewTest) SendInfo(msg any) *LiveViewTest {
	lvt.t.Helper()
	lvt.handleInfo(msg)
	return lvt
}

// AwaitInfo waits for the component to send itself an info message and
// delivers it.
func (lvt *LiveViewTest) AwaitInfo(timeout time.Duration) *LiveViewTest {
	lvt.t.Helper()
	select {
	case msg := <-lvt.info:
		lvt.handleInfo(msg)
	case <-time.After(timeout):
		lvt.t.Fatalf("no info message within %s", timeout)
	}
	return lvt
}

// Drain delivers every queued info message without waiting.
func (lvt *LiveViewTest) Drain() int {
	lvt.t.Helper()
	n := 0
	for {
		select {
		case msg := <-lvt.info:
			lvt.handleInfo(msg)
			n++
		default:
			return n
		}
	}
}

func (lvt *LiveViewTest) handleInfo(msg any) {
	lvt.t.Helper()
	if err := lvt.component.HandleInfo(lvt.ctx, msg); err != nil {
		lvt.t.Errorf("HandleInfo failed: %v", err)
		return
	}
	lvt.render()
}

func (lvt *LiveViewTest) render() {
	lvt.t.Helper()
	renderer := lvt.component.Render(lvt.ctx)
	if renderer == nil {
		lvt.t.Fatalf("Render returned nil")
	}

	var buf bytes.Buffer
	if err := renderer.Render(lvt.ctx, &buf); err != nil {
		lvt.t.Fatalf("Render failed: %v", err)
	}
	lvt.rendered = buf.String()
}

// Rendered returns the current rendered HTML.
func (lvt *LiveViewTest) Rendered() string {
	return lvt.rendered
}

// AssertHasElement checks that the rendered HTML contains fragment, such as
// an attribute or an opening tag.
func (lvt *LiveViewTest) AssertHasElement(fragment string) *LiveViewTest {
	lvt.t.Helper()
	if !strings.Contains(lvt.rendered, fragment) {
		lvt.t.Errorf("Element not found: %s\nRendered HTML:\n%s", fragment, lvt.rendered)
	}
	return lvt
}

// AssertNoElement checks that fragment is absent.
func (lvt *LiveViewTest) AssertNoElement(fragment string) *LiveViewTest {
	lvt.t.Helper()
	if strings.Contains(lvt.rendered, fragment) {
		lvt.t.Errorf("Element should not exist: %s", fragment)
	}
	return lvt
}

// AssertText checks that the rendered HTML contains text.
func (lvt *LiveViewTest) AssertText(text string) *LiveViewTest {
	lvt.t.Helper()
	if !strings.Contains(lvt.rendered, text) {
		lvt.t.Errorf("Text not found: %q\nRendered HTML:\n%s", text, lvt.rendered)
	}
	return lvt
}

// AssertNoText checks that text is absent.
func (lvt *LiveViewTest) AssertNoText(text string) *LiveViewTest {
	lvt.t.Helper()
	if strings.Contains(lvt.rendered, text) {
		lvt.t.Errorf("Text should not exist: %q", text)
	}
	return lvt
}

// Socket returns the mock transport behind the component's socket.
func (lvt *LiveViewTest) Socket() *MockSocket {
	return lvt.transport
}

// Component returns the component under test.
func (lvt *LiveViewTest) Component() core.Component {
	return lvt.component
}

// Events returns all events pushed so far.
func (lvt *LiveViewTest) Events() []Event {
	return lvt.events
}
