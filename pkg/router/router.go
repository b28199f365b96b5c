// Package router serves live components over HTTP and WebSocket: a plain
// HTTP render for the first paint, then a channel that carries client events
// in and slot diffs out.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/pagestudio/pkg/core"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
	"github.com/gabrielmiguelok/pagestudio/pkg/protocol"
	"github.com/gabrielmiguelok/pagestudio/pkg/transport"
)

// Common router errors.
var (
	ErrNilRenderer  = errors.New("component returned nil renderer")
	ErrRateLimited  = errors.New("too many events")
	ErrNotMounted   = errors.New("component not mounted")
	ErrShuttingDown = errors.New("server shutting down")
)

// maxConsecutiveErrors closes a connection whose events keep failing.
const maxConsecutiveErrors = 20

// Config configures the live runtime.
type Config struct {
	Timeouts  core.TimeoutConfig
	Transport *transport.TransportConfig
	WebSocket *transport.WebSocketConfig

	// Codec is the codec used when the client does not ask for one.
	Codec string

	// EventsPerSecond and EventBurst throttle client events per connection.
	// Zero disables the limit.
	EventsPerSecond float64
	EventBurst      int

	Sessions *LiveViewSessionManagerConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeouts:        core.DefaultTimeoutConfig(),
		Transport:       transport.DefaultTransportConfig(),
		WebSocket:       transport.DefaultWebSocketConfig(),
		Codec:           protocol.DefaultCodec,
		EventsPerSecond: 20,
		EventBurst:      40,
		Sessions:        DefaultSessionManagerConfig(),
	}
}

// Router handles HTTP routing for live components.
type Router struct {
	mux          *http.ServeMux
	liveRoutes   map[string]*LiveRoute
	middleware   []Middleware
	errorHandler ErrorHandler

	config Config
	logger logging.Logger

	sessionManager *LiveViewSessionManager
	socketManager  *core.SocketManager

	closing atomic.Bool
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// LiveRoute defines a route that renders a live component.
type LiveRoute struct {
	// Path is the URL path pattern.
	Path string

	// Component is the factory function for creating the component.
	Component func() core.Component

	// Layout wraps the first HTTP render in a full document.
	Layout Layout

	// Title is handed to the layout.
	Title string

	// Middleware are route-specific middleware.
	Middleware []Middleware
}

// Layout writes a full HTML document around a rendered component.
type Layout func(ctx context.Context, w io.Writer, route *LiveRoute, body []byte) error

// Middleware is a function that wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

// ErrorHandler handles errors during request processing.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures a Router.
type Option func(*Router)

// WithConfig replaces the runtime configuration.
func WithConfig(cfg Config) Option {
	return func(r *Router) { r.config = cfg }
}

// WithLogger sets the router logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a new router.
func New(opts ...Option) *Router {
	r := &Router{
		mux:        http.NewServeMux(),
		liveRoutes: make(map[string]*LiveRoute),
		config:     DefaultConfig(),
		logger:     logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.sessionManager = NewLiveViewSessionManager(r.config.Sessions)
	r.socketManager = core.NewSocketManager()
	r.errorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		r.logger.Error("request failed", logging.String("path", req.URL.Path), logging.Err(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
	return r
}

// Use adds middleware to the router. Only routes registered afterwards use it.
func (r *Router) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

// SetErrorHandler sets the error handler.
func (r *Router) SetErrorHandler(handler ErrorHandler) {
	r.errorHandler = handler
}

// SessionManager returns the session manager.
func (r *Router) SessionManager() *LiveViewSessionManager {
	return r.sessionManager
}

// SocketManager returns the socket manager.
func (r *Router) SocketManager() *core.SocketManager {
	return r.socketManager
}

// Live registers a live component route for GET requests and WebSocket upgrades.
func (r *Router) Live(path string, component func() core.Component, opts ...RouteOption) {
	route := &LiveRoute{
		Path:      path,
		Component: component,
	}
	for _, opt := range opts {
		opt(route)
	}

	r.mu.Lock()
	r.liveRoutes[path] = route
	r.mu.Unlock()

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.renderLive(w, req, route)
	})
	for i := len(route.Middleware) - 1; i >= 0; i-- {
		h = route.Middleware[i](h)
	}
	r.mux.Handle("GET "+path, r.wrap(h))
}

// Handle registers a standard HTTP handler.
func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, r.wrap(handler))
}

// HandleFunc registers a standard HTTP handler function.
func (r *Router) HandleFunc(pattern string, handler http.HandlerFunc) {
	r.Handle(pattern, handler)
}

func (r *Router) wrap(h http.Handler) http.Handler {
	r.mu.RLock()
	middleware := make([]Middleware, len(r.middleware))
	copy(middleware, r.middleware)
	r.mu.RUnlock()

	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// renderLive renders the component once over HTTP, or upgrades the request
// to a live connection.
func (r *Router) renderLive(w http.ResponseWriter, req *http.Request, route *LiveRoute) {
	if isWebSocketRequest(req) {
		r.handleWebSocket(w, req, route.Component())
		return
	}

	component := route.Component()
	params := extractParams(req)
	session := r.extractSession(req)

	ctx, cancel := context.WithTimeout(req.Context(), r.config.Timeouts.ComponentMount)
	defer cancel()
	ctx = core.BuildContext(ctx, nil, session, params)

	if err := component.Mount(ctx, params, session); err != nil {
		r.errorHandler(w, req, fmt.Errorf("mount %s: %w", component.Name(), err))
		return
	}
	defer component.Terminate(context.Background(), core.TerminateNormal)

	renderer := component.Render(ctx)
	if renderer == nil {
		r.errorHandler(w, req, ErrNilRenderer)
		return
	}

	var body bytes.Buffer
	if err := renderer.Render(ctx, &body); err != nil {
		r.errorHandler(w, req, err)
		return
	}

	var page bytes.Buffer
	if route.Layout != nil {
		if err := route.Layout(ctx, &page, route, body.Bytes()); err != nil {
			r.errorHandler(w, req, err)
			return
		}
	} else {
		page.Write(body.Bytes())
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page.Bytes())
}

// handleWebSocket upgrades the request and starts the connection's event loop.
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request, component core.Component) {
	codecName := req.URL.Query().Get("codec")
	if codecName == "" {
		codecName = r.config.Codec
	}
	codec, err := protocol.CodecByName(codecName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	wsTransport := transport.NewWebSocketTransport(r.config.Transport, r.config.WebSocket, codec)
	if err := wsTransport.Upgrade(w, req); err != nil {
		r.logger.Warn("websocket upgrade failed", logging.Err(err), logging.String("origin", req.Header.Get("Origin")))
		return
	}

	socketID := uuid.NewString()
	params := extractParams(req)
	session := r.extractSession(req)

	lvSession, evicted := r.sessionManager.Create(socketID, component, params, session)
	if evicted != nil {
		r.logger.Warn("session limit reached, closing oldest", logging.String("session", evicted.ID))
		evicted.Transport.Close()
	}

	logger := r.logger.With(
		logging.String("session", lvSession.ID),
		logging.String("component", component.Name()),
		logging.String("codec", codec.Name()),
	)
	wsTransport.SetLogger(logger)

	socket := core.NewSocket(socketID, NewTransportAdapter(wsTransport, func() string {
		ref, _ := lvSession.GetJoinRef()
		return ref
	}))
	socket.SetInfoSink(func(msg any) bool {
		select {
		case lvSession.info <- msg:
			return true
		case <-wsTransport.CloseChan():
			return false
		}
	})
	if setter, ok := component.(core.SocketSetter); ok {
		setter.SetSocket(socket)
	}

	lvSession.Transport = wsTransport
	lvSession.Socket = socket
	lvSession.SetRateLimit(r.config.EventsPerSecond, r.config.EventBurst)

	if !r.socketManager.Add(socket) {
		r.sessionManager.Remove(lvSession.ID)
		wsTransport.Close()
		return
	}

	// The connection outlives the HTTP request, so its context does not
	// derive from req.Context().
	ctx, cancel := context.WithCancel(context.Background())
	ctx = core.BuildContext(ctx, socket, session, params)
	ctx = logging.ContextWithLogger(ctx, logger)

	logger.Info("live connection opened")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.messageLoop(ctx, lvSession, logger)
		r.handleDisconnect(lvSession, logger)
	}()
}

// messageLoop processes client messages and info messages for one
// connection. Component callbacks are never called concurrently.
func (r *Router) messageLoop(ctx context.Context, session *LiveViewSession, logger logging.Logger) {
	recvCh := session.Transport.Receive()
	closeCh := session.Transport.CloseChan()

	for {
		select {
		case msg := <-recvCh:
			session.UpdateActivity()
			session.Socket.UpdateActivity()

			switch msg.Event {
			case protocol.EventHeartbeat:
				r.sendReply(session, msg, nil)

			case protocol.EventJoin:
				r.handleJoin(ctx, session, msg, logger)

			case protocol.EventLeave:
				r.sendReply(session, msg, nil)
				return

			default:
				r.handleEvent(ctx, session, msg, logger)
			}

		case info := <-session.info:
			r.handleInfo(ctx, session, info, logger)

		case <-closeCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// handleJoin mounts the component and replies with the full render.
func (r *Router) handleJoin(ctx context.Context, session *LiveViewSession, msg *protocol.Message, logger logging.Logger) {
	session.SetJoinRef(msg.JoinRef, msg.Topic)

	if !session.IsMounted() {
		mountCtx, cancel := context.WithTimeout(ctx, r.config.Timeouts.ComponentMount)
		err := session.Component.Mount(mountCtx, session.Params, session.Session)
		cancel()
		if err != nil {
			logger.Error("mount failed", logging.Err(err))
			r.sendError(session, msg, err)
			return
		}
		session.SetMounted(true)
	}

	html, err := r.render(ctx, session)
	if err != nil {
		r.sendError(session, msg, err)
		return
	}
	session.SetSlotHashes(hashSlots(extractSlots(html)))

	r.sendReply(session, msg, map[string]any{
		"rendered": map[string]any{
			"s": []string{html},
		},
	})
}

// handleEvent dispatches a client event and sends the resulting diff.
func (r *Router) handleEvent(ctx context.Context, session *LiveViewSession, msg *protocol.Message, logger logging.Logger) {
	if !session.IsMounted() {
		r.sendError(session, msg, ErrNotMounted)
		return
	}
	if !session.AllowEvent() {
		logger.Warn("event rate limited", logging.String("event", msg.Event))
		r.sendError(session, msg, ErrRateLimited)
		return
	}

	payload := msg.Payload
	if payload == nil {
		payload = make(map[string]any)
	}

	eventCtx, cancel := context.WithTimeout(ctx, r.config.Timeouts.ComponentEvent)
	start := time.Now()
	err := session.Component.HandleEvent(eventCtx, msg.Event, payload)
	cancel()

	if err != nil {
		logger.Warn("event failed", logging.String("event", msg.Event), logging.Err(err))
		r.sendError(session, msg, err)
		if session.Socket.IncrementErrorCount() >= maxConsecutiveErrors {
			logger.Error("too many failed events, closing connection")
			session.Transport.Close()
		}
		return
	}
	session.Socket.ResetErrorCount()

	r.sendReply(session, msg, nil)
	r.renderAndSendDiff(ctx, session, logger)
	logger.Debug("event handled", logging.String("event", msg.Event), logging.Duration("duration", time.Since(start)))
}

// handleInfo hands an info message to the component and sends the resulting diff.
func (r *Router) handleInfo(ctx context.Context, session *LiveViewSession, info any, logger logging.Logger) {
	infoCtx, cancel := context.WithTimeout(ctx, r.config.Timeouts.ComponentEvent)
	err := session.Component.HandleInfo(infoCtx, info)
	cancel()
	if err != nil {
		logger.Warn("info failed", logging.String("type", fmt.Sprintf("%T", info)), logging.Err(err))
		return
	}
	r.renderAndSendDiff(ctx, session, logger)
}

func (r *Router) render(ctx context.Context, session *LiveViewSession) (string, error) {
	renderer := session.Component.Render(ctx)
	if renderer == nil {
		return "", ErrNilRenderer
	}
	var buf bytes.Buffer
	if err := renderer.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderAndSendDiff renders the component and sends the slots that changed.
func (r *Router) renderAndSendDiff(ctx context.Context, session *LiveViewSession, logger logging.Logger) {
	html, err := r.render(ctx, session)
	if err != nil {
		logger.Error("render failed", logging.Err(err))
		return
	}

	payload := buildDiffPayload(session, html)
	if payload.IsEmpty() {
		return
	}
	if err := session.Socket.SendDiff(payload); err != nil {
		logger.Warn("send diff failed", logging.Err(err))
	}
}

// buildDiffPayload compares the data-slot contents of html with the hashes
// of the previous render. When the set of slots changed, or html has no
// slots, the full render is sent instead.
func buildDiffPayload(session *LiveViewSession, html string) *core.DiffPayload {
	slots := extractSlots(html)
	hashes := hashSlots(slots)
	prev := session.GetSlotHashes()
	session.SetSlotHashes(hashes)

	payload := &core.DiffPayload{HTMLSlots: make(map[string]string)}

	if len(slots) == 0 || !sameKeys(prev, hashes) {
		payload.Full = html
		payload.HTMLSlots = nil
	} else {
		for id, content := range slots {
			if prev[id] != hashes[id] {
				payload.HTMLSlots[id] = content
			}
		}
	}

	if !payload.IsEmpty() {
		payload.Version = session.nextVersion()
	}
	return payload
}

func sameKeys(a, b map[string]uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func hashSlots(slots map[string]string) map[string]uint64 {
	hashes := make(map[string]uint64, len(slots))
	for id, content := range slots {
		hashes[id] = hashSlotContent(content)
	}
	return hashes
}

// hashSlotContent computes the FNV-64a hash of content.
func hashSlotContent(content string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(content))
	return h.Sum64()
}

// extractSlots returns the inner HTML of every top-level data-slot element
// in a single pass. Slots nested inside another slot are part of the outer
// slot's content.
func extractSlots(html string) map[string]string {
	slots := make(map[string]string)

	const marker = `data-slot="`
	markerLen := len(marker)
	htmlLen := len(html)
	pos := 0

	for pos < htmlLen {
		idx := strings.Index(html[pos:], marker)
		if idx == -1 {
			break
		}

		slotStart := pos + idx + markerLen
		slotEnd := strings.IndexByte(html[slotStart:], '"')
		if slotEnd == -1 {
			break
		}
		slotID := html[slotStart : slotStart+slotEnd]

		// Find the tag start (search backwards for <)
		tagStart := pos + idx
		for tagStart > 0 && html[tagStart] != '<' {
			tagStart--
		}

		tagNameEnd := tagStart + 1
		for tagNameEnd < htmlLen && html[tagNameEnd] != ' ' && html[tagNameEnd] != '>' && html[tagNameEnd] != '/' {
			tagNameEnd++
		}
		tagName := html[tagStart+1 : tagNameEnd]

		closeAngle := strings.IndexByte(html[slotStart+slotEnd:], '>')
		if closeAngle == -1 {
			break
		}
		contentStart := slotStart + slotEnd + closeAngle + 1

		// Match the close tag with a depth counter.
		openTag := "<" + tagName
		closeTag := "</" + tagName
		depth := 1
		searchPos := contentStart
		contentEnd := -1

		for depth > 0 && searchPos < htmlLen {
			nextClose := strings.Index(html[searchPos:], closeTag)
			if nextClose == -1 {
				break
			}
			nextClose += searchPos

			nextOpen := strings.Index(html[searchPos:], openTag)
			if nextOpen != -1 {
				nextOpen += searchPos
			} else {
				nextOpen = htmlLen
			}

			if nextOpen < nextClose {
				afterOpen := nextOpen + len(openTag)
				if afterOpen < htmlLen {
					switch html[afterOpen] {
					case ' ', '>', '/', '\t', '\n':
						depth++
					}
				}
				searchPos = afterOpen
			} else {
				depth--
				if depth == 0 {
					contentEnd = nextClose
				}
				searchPos = nextClose + len(closeTag)
			}
		}

		if contentEnd == -1 {
			break
		}
		slots[slotID] = strings.TrimSpace(html[contentStart:contentEnd])
		pos = searchPos
	}

	return slots
}

// handleDisconnect terminates the component and releases the connection.
func (r *Router) handleDisconnect(session *LiveViewSession, logger logging.Logger) {
	reason := core.TerminateNormal
	if r.closing.Load() {
		reason = core.TerminateShutdown
	}
	if err := session.Component.Terminate(context.Background(), reason); err != nil {
		logger.Warn("terminate failed", logging.Err(err))
	}

	r.sessionManager.Remove(session.ID)
	r.socketManager.Remove(session.SocketID)
	session.Socket.Close()

	logger.Info("live connection closed", logging.Duration("duration", time.Since(session.CreatedAt)))
}

// CleanupIdle closes connections idle for longer than the session TTL.
func (r *Router) CleanupIdle() int {
	expired := r.sessionManager.Expired()
	for _, s := range expired {
		if s.Transport != nil {
			s.Transport.Close()
		}
	}
	return len(expired)
}

// StartCleanup runs CleanupIdle every interval until ctx is done.
func (r *Router) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.CleanupIdle(); n > 0 {
					r.logger.Info("closed idle connections", logging.Int("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown closes every live connection and waits for their event loops
// to finish or for ctx to end.
func (r *Router) Shutdown(ctx context.Context) error {
	r.closing.Store(true)
	if err := r.socketManager.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) sendReply(session *LiveViewSession, req *protocol.Message, response map[string]any) {
	joinRef, _ := session.GetJoinRef()
	if err := session.Transport.Send(protocol.OkReply(joinRef, req.Ref, req.Topic, response)); err != nil {
		r.logger.Debug("send reply failed", logging.Err(err))
	}
}

func (r *Router) sendError(session *LiveViewSession, req *protocol.Message, err error) {
	joinRef, _ := session.GetJoinRef()
	if sendErr := session.Transport.Send(protocol.ErrorReply(joinRef, req.Ref, req.Topic, err.Error())); sendErr != nil {
		r.logger.Debug("send error reply failed", logging.Err(sendErr))
	}
}

// extractSession collects request data handed to Mount.
func (r *Router) extractSession(req *http.Request) core.Session {
	session := make(core.Session)
	if id := req.Header.Get("X-Request-ID"); id != "" {
		session["request_id"] = id
	}
	for _, cookie := range req.Cookies() {
		session["cookie:"+cookie.Name] = cookie.Value
	}
	return session
}

// extractParams extracts path values and query parameters.
func extractParams(req *http.Request) core.Params {
	params := make(core.Params)
	for key, values := range req.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	params["path"] = req.URL.Path
	return params
}

// isWebSocketRequest checks if this is a WebSocket upgrade request.
func isWebSocketRequest(req *http.Request) bool {
	return strings.Contains(strings.ToLower(req.Header.Get("Upgrade")), "websocket")
}

// RouteOption configures a LiveRoute.
type RouteOption func(*LiveRoute)

// WithLayout sets the document layout of the first render.
func WithLayout(layout Layout) RouteOption {
	return func(r *LiveRoute) {
		r.Layout = layout
	}
}

// WithTitle sets the document title.
func WithTitle(title string) RouteOption {
	return func(r *LiveRoute) {
		r.Title = title
	}
}

// WithRouteMiddleware adds middleware to the route.
func WithRouteMiddleware(mw ...Middleware) RouteOption {
	return func(r *LiveRoute) {
		r.Middleware = append(r.Middleware, mw...)
	}
}
