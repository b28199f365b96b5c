package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/pagestudio/pkg/core"
	"github.com/gabrielmiguelok/pagestudio/pkg/protocol"
	"github.com/gabrielmiguelok/pagestudio/pkg/transport"
)

// counterComponent renders a counter slot next to a static slot.
type counterComponent struct {
	core.BaseComponent

	mu         sync.Mutex
	count      int
	mounted    bool
	terminated bool
}

func (c *counterComponent) Name() string { return "counter" }

func (c *counterComponent) Mount(ctx context.Context, params core.Params, session core.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mounted = true
	return nil
}

func (c *counterComponent) Render(ctx context.Context) core.Renderer {
	c.mu.Lock()
	n := c.count
	c.mu.Unlock()
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<main><div data-slot="count">%d</div><div data-slot="static">fixed</div></main>`, n)
		return err
	})
}

func (c *counterComponent) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	switch event {
	case "inc":
		c.mu.Lock()
		c.count++
		c.mu.Unlock()
	case "later":
		socket := c.Socket()
		go socket.SendInfo("bump")
	case "noop":
	default:
		return errors.New("unknown event")
	}
	return nil
}

func (c *counterComponent) HandleInfo(ctx context.Context, msg any) error {
	if msg == "bump" {
		c.mu.Lock()
		c.count += 10
		c.mu.Unlock()
	}
	return nil
}

func (c *counterComponent) Terminate(ctx context.Context, reason core.TerminateReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = true
	return nil
}

func TestRouter_Live_InitialHTTPRender(t *testing.T) {
	r := New()
	r.Live("/", func() core.Component { return &counterComponent{} }, WithTitle("Counter"),
		WithLayout(func(ctx context.Context, w io.Writer, route *LiveRoute, body []byte) error {
			_, err := fmt.Fprintf(w, "<html><title>%s</title><body>%s</body></html>", route.Title, body)
			return err
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<title>Counter</title>") {
		t.Errorf("expected layout title, got %s", body)
	}
	if !strings.Contains(body, `<div data-slot="count">0</div>`) {
		t.Errorf("expected rendered component, got %s", body)
	}
}

func TestRouter_MountErrorUsesErrorHandler(t *testing.T) {
	r := New()
	var got error
	r.SetErrorHandler(func(w http.ResponseWriter, req *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	})
	r.Live("/", func() core.Component { return &nilRenderComponent{} })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected custom error handler, got %d", rec.Code)
	}
	if !errors.Is(got, ErrNilRenderer) {
		t.Errorf("expected ErrNilRenderer, got %v", got)
	}
}

type nilRenderComponent struct{ counterComponent }

func (c *nilRenderComponent) Render(ctx context.Context) core.Renderer { return nil }

func TestRouter_MiddlewareOrder(t *testing.T) {
	r := New()
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, req)
			})
		}
	}
	r.Use(mark("outer"))
	r.Use(mark("inner"))
	r.HandleFunc("GET /ping", func(w http.ResponseWriter, req *http.Request) {
		order = append(order, "handler")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	if strings.Join(order, ",") != "outer,inner,handler" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestExtractSlots(t *testing.T) {
	html := `<aside data-slot="sidebar"><div><p>a</p></div></aside>` +
		`<section data-slot="canvas"><section class="inner">x</section></section>` +
		`<div data-slot="empty"></div>`

	slots := extractSlots(html)

	assert.Equal(t, map[string]string{
		"sidebar": "<div><p>a</p></div>",
		"canvas":  `<section class="inner">x</section>`,
		"empty":   "",
	}, slots)
}

func TestBuildDiffPayload(t *testing.T) {
	s := NewLiveViewSession("sock", &counterComponent{}, nil, nil)
	first := `<div data-slot="a">1</div><div data-slot="b">1</div>`
	s.SetSlotHashes(hashSlots(extractSlots(first)))

	t.Run("unchanged render is empty", func(t *testing.T) {
		p := buildDiffPayload(s, first)
		assert.True(t, p.IsEmpty())
	})

	t.Run("changed slot only", func(t *testing.T) {
		p := buildDiffPayload(s, `<div data-slot="a">2</div><div data-slot="b">1</div>`)
		assert.Equal(t, map[string]string{"a": "2"}, p.HTMLSlots)
		assert.Empty(t, p.Full)
		assert.Equal(t, uint64(1), p.Version)
	})

	t.Run("slot set change sends full render", func(t *testing.T) {
		html := `<div data-slot="a">2</div>`
		p := buildDiffPayload(s, html)
		assert.Equal(t, html, p.Full)
		assert.Nil(t, p.HTMLSlots)
		assert.Equal(t, uint64(2), p.Version)
	})
}

func TestLiveViewSessionManager_Evicts(t *testing.T) {
	m := NewLiveViewSessionManager(&LiveViewSessionManagerConfig{MaxSessions: 2, SessionTTL: time.Minute})

	first, evicted := m.Create("s1", &counterComponent{}, nil, nil)
	require.Nil(t, evicted)
	time.Sleep(time.Millisecond)
	second, _ := m.Create("s2", &counterComponent{}, nil, nil)
	second.UpdateActivity()

	_, evicted = m.Create("s3", &counterComponent{}, nil, nil)
	require.NotNil(t, evicted)
	assert.Equal(t, first.ID, evicted.ID)
	assert.Equal(t, 2, m.Count())

	_, ok := m.GetBySocket("s1")
	assert.False(t, ok)
}

func TestLiveViewSessionManager_Expired(t *testing.T) {
	m := NewLiveViewSessionManager(&LiveViewSessionManagerConfig{SessionTTL: 20 * time.Millisecond})
	idle, _ := m.Create("idle", &counterComponent{}, nil, nil)
	time.Sleep(30 * time.Millisecond)
	active, _ := m.Create("active", &counterComponent{}, nil, nil)

	expired := m.Expired()
	require.Len(t, expired, 1)
	assert.Equal(t, idle.ID, expired[0].ID)
	_, ok := m.Get(active.ID)
	assert.True(t, ok)
}

func TestLiveViewSession_RateLimit(t *testing.T) {
	s := NewLiveViewSession("sock", &counterComponent{}, nil, nil)
	assert.True(t, s.AllowEvent())

	s.SetRateLimit(0.001, 2)
	assert.True(t, s.AllowEvent())
	assert.True(t, s.AllowEvent())
	assert.False(t, s.AllowEvent())
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(0.001, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestSecureHeaders_Nonce(t *testing.T) {
	var nonce string
	h := SecureHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce = GetCSPNonce(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, nonce)
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "'nonce-"+nonce+"'")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRecovery(t *testing.T) {
	h := Recovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// liveClient drives a live route over a real WebSocket.
type liveClient struct {
	t  *testing.T
	ws *transport.WebSocketTransport
}

func dialLive(t *testing.T, srv *httptest.Server, codec protocol.Codec) *liveClient {
	t.Helper()
	ws := transport.NewWebSocketTransport(nil, nil, codec)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?codec=" + codec.Name()
	require.NoError(t, ws.Dial(ctx, endpoint))
	t.Cleanup(func() { ws.Close() })
	return &liveClient{t: t, ws: ws}
}

func (c *liveClient) send(ref, event string, payload map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.Send(&protocol.Message{JoinRef: "1", Ref: ref, Topic: "lv:test", Event: event, Payload: payload}))
}

func (c *liveClient) next() *protocol.Message {
	c.t.Helper()
	select {
	case msg := <-c.ws.Receive():
		return msg
	case <-time.After(5 * time.Second):
		c.t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestRouter_WebSocketSession(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.NewPhoenixCodec(), protocol.NewMsgPackCodec()} {
		t.Run(codec.Name(), func(t *testing.T) {
			comp := &counterComponent{}
			r := New()
			r.Live("/", func() core.Component { return comp })
			srv := httptest.NewServer(r)
			defer srv.Close()

			c := dialLive(t, srv, codec)

			c.send("1", protocol.EventJoin, nil)
			join := c.next()
			require.Equal(t, protocol.EventReply, join.Event)
			assert.Equal(t, "ok", join.GetPayloadString("status"))
			rendered := join.GetPayloadMap("response")["rendered"].(map[string]any)
			html := fmt.Sprint(rendered["s"].([]any)[0])
			assert.Contains(t, html, `<div data-slot="count">0</div>`)

			c.send("2", "inc", map[string]any{})
			reply := c.next()
			assert.Equal(t, "2", reply.Ref)
			assert.Equal(t, "ok", reply.GetPayloadString("status"))

			diff := c.next()
			require.Equal(t, protocol.EventDiff, diff.Event)
			assert.Equal(t, map[string]any{"count": "1"}, diff.GetPayloadMap("h"))

			// Events that change nothing send a reply but no diff.
			c.send("3", "noop", nil)
			assert.Equal(t, "3", c.next().Ref)

			c.send("4", "later", nil)
			assert.Equal(t, "4", c.next().Ref)
			async := c.next()
			require.Equal(t, protocol.EventDiff, async.Event)
			assert.Equal(t, map[string]any{"count": "11"}, async.GetPayloadMap("h"))

			c.send("5", "bogus", nil)
			failed := c.next()
			assert.Equal(t, "error", failed.GetPayloadString("status"))

			c.send("6", protocol.EventHeartbeat, nil)
			assert.Equal(t, "6", c.next().Ref)

			c.send("7", protocol.EventLeave, nil)
			assert.Equal(t, "7", c.next().Ref)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, r.Shutdown(ctx))
			assert.Eventually(t, func() bool {
				comp.mu.Lock()
				defer comp.mu.Unlock()
				return comp.terminated
			}, time.Second, 10*time.Millisecond)
			assert.Equal(t, 0, r.SessionManager().Count())
		})
	}
}

func TestRouter_WebSocketRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventsPerSecond = 0.001
	cfg.EventBurst = 1
	r := New(WithConfig(cfg))
	r.Live("/", func() core.Component { return &counterComponent{} })
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := dialLive(t, srv, protocol.NewJSONCodec())
	c.send("1", protocol.EventJoin, nil)
	c.next()

	c.send("2", "noop", nil)
	assert.Equal(t, "ok", c.next().GetPayloadString("status"))

	c.send("3", "noop", nil)
	limited := c.next()
	assert.Equal(t, "error", limited.GetPayloadString("status"))
	assert.Equal(t, ErrRateLimited.Error(), limited.GetPayloadMap("response")["reason"])
}

func TestRouter_UnknownCodec(t *testing.T) {
	r := New()
	r.Live("/", func() core.Component { return &counterComponent{} })

	req := httptest.NewRequest(http.MethodGet, "/?codec=xml", nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func BenchmarkExtractSlots(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, `<div data-slot="s%d"><span>%d</span></div>`, i, i)
	}
	html := sb.String()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		extractSlots(html)
	}
}
