package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gabrielmiguelok/pagestudio/pkg/protocol"
)

func TestWebSocket_OriginValidation(t *testing.T) {
	config := DefaultTransportConfig()

	tests := []struct {
		name          string
		wsConfig      *WebSocketConfig
		origin        string
		host          string
		expectAllowed bool
	}{
		{
			name: "same-origin allowed",
			wsConfig: &WebSocketConfig{
				AllowedOrigins:  nil,
				InsecureDevMode: false,
			},
			origin:        "https://example.com",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name: "no origin allowed",
			wsConfig: &WebSocketConfig{
				AllowedOrigins:  nil,
				InsecureDevMode: false,
			},
			origin:        "",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name: "explicit origin allowed",
			wsConfig: &WebSocketConfig{
				AllowedOrigins:  []string{"https://allowed.com"},
				InsecureDevMode: false,
			},
			origin:        "https://allowed.com",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name: "origin not in list blocked",
			wsConfig: &WebSocketConfig{
				AllowedOrigins:  []string{"https://allowed.com"},
				InsecureDevMode: false,
			},
			origin:        "https://attacker.com",
			host:          "example.com",
			expectAllowed: false,
		},
		{
			name: "wildcard allows all",
			wsConfig: &WebSocketConfig{
				AllowedOrigins:  []string{"*"},
				InsecureDevMode: false,
			},
			origin:        "https://any-site.com",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name: "insecure dev mode allows all",
			wsConfig: &WebSocketConfig{
				AllowedOrigins:  nil,
				InsecureDevMode: true,
			},
			origin:        "https://attacker.com",
			host:          "example.com",
			expectAllowed: true,
		},
		{
			name: "cross-origin blocked by default",
			wsConfig: &WebSocketConfig{
				AllowedOrigins:  nil,
				InsecureDevMode: false,
			},
			origin:        "https://other-site.com",
			host:          "example.com",
			expectAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewWebSocketTransport(config, tt.wsConfig, nil)

			allowed := transport.isOriginAllowed(tt.origin, tt.host)

			if allowed != tt.expectAllowed {
				t.Errorf("isOriginAllowed(%q, %q) = %v, want %v",
					tt.origin, tt.host, allowed, tt.expectAllowed)
			}
		})
	}
}

func TestWebSocket_RejectsInvalidOrigin(t *testing.T) {
	config := DefaultTransportConfig()
	wsConfig := &WebSocketConfig{
		AllowedOrigins:  []string{"https://allowed.com"},
		InsecureDevMode: false,
	}
	transport := NewWebSocketTransport(config, wsConfig, nil)

	// Create a mock request with invalid origin
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://attacker.com")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Host = "example.com"

	w := httptest.NewRecorder()

	err := transport.Upgrade(w, req)

	if err != ErrOriginNotAllowed {
		t.Errorf("Expected ErrOriginNotAllowed, got %v", err)
	}

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestWebSocket_RoundTrip(t *testing.T) {
	for _, name := range []string{"phoenix", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			codec, err := protocol.CodecByName(name)
			if err != nil {
				t.Fatal(err)
			}

			// The server echoes every message back with a reply event.
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				server := NewWebSocketTransport(nil, nil, codec)
				if err := server.Upgrade(w, r); err != nil {
					return
				}
				for {
					select {
					case msg := <-server.Receive():
						server.Send(protocol.OkReply(msg.JoinRef, msg.Ref, msg.Topic, msg.Payload))
					case <-server.CloseChan():
						return
					}
				}
			}))
			defer srv.Close()

			client := NewWebSocketTransport(nil, nil, codec)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")); err != nil {
				t.Fatal(err)
			}
			defer client.Close()

			sent := &protocol.Message{Ref: "3", Topic: "lv:studio-home", Event: "select", Payload: map[string]any{"section": "about"}}
			if err := client.Send(sent); err != nil {
				t.Fatal(err)
			}

			select {
			case reply := <-client.Receive():
				if reply.Event != protocol.EventReply || reply.Ref != "3" {
					t.Fatalf("unexpected reply %+v", reply)
				}
				response, _ := reply.Payload["response"].(map[string]any)
				if response["section"] != "about" {
					t.Errorf("expected the payload echoed back, got %v", reply.Payload)
				}
			case <-ctx.Done():
				t.Fatal("timed out waiting for reply")
			}
		})
	}
}

func TestDefaultWebSocketConfig(t *testing.T) {
	config := DefaultWebSocketConfig()

	if config.InsecureDevMode != false {
		t.Error("InsecureDevMode should be false by default")
	}

	if config.AllowedOrigins != nil {
		t.Error("AllowedOrigins should be nil by default (same-origin only)")
	}
}
