package router

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gabrielmiguelok/pagestudio/pkg/core"
	"github.com/gabrielmiguelok/pagestudio/pkg/transport"
)

// LiveViewSession binds one WebSocket connection to its component instance.
type LiveViewSession struct {
	ID       string
	SocketID string

	Component core.Component
	Socket    *core.Socket
	Transport *transport.WebSocketTransport

	Params  core.Params
	Session core.Session

	JoinRef string

	// Topic is the channel topic the client joined.
	Topic string

	CreatedAt    time.Time
	LastActivity time.Time

	Mounted bool

	// Version orders diffs on the client.
	Version uint64

	// limiter throttles client events.
	limiter *rate.Limiter

	// info carries messages the component sent to itself.
	info chan any

	slotHashes map[string]uint64
	slotMu     sync.RWMutex

	mu sync.RWMutex
}

// NewLiveViewSession creates a session for socketID.
func NewLiveViewSession(socketID string, comp core.Component, params core.Params, session core.Session) *LiveViewSession {
	now := time.Now()
	return &LiveViewSession{
		ID:           uuid.NewString(),
		SocketID:     socketID,
		Component:    comp,
		Params:       params,
		Session:      session,
		Topic:        "lv:" + socketID,
		CreatedAt:    now,
		LastActivity: now,
		limiter:      rate.NewLimiter(rate.Inf, 0),
		info:         make(chan any, 8),
	}
}

// GetSlotHashes returns the slot hashes of the last render sent.
func (s *LiveViewSession) GetSlotHashes() map[string]uint64 {
	s.slotMu.RLock()
	defer s.slotMu.RUnlock()
	return s.slotHashes
}

// SetSlotHashes stores the slot hashes of the last render sent.
func (s *LiveViewSession) SetSlotHashes(hashes map[string]uint64) {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	s.slotHashes = hashes
}

// SetRateLimit limits client events to perSecond with the given burst.
// A non-positive perSecond disables the limit.
func (s *LiveViewSession) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		s.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// AllowEvent reports whether another client event may be processed now.
func (s *LiveViewSession) AllowEvent() bool {
	return s.limiter.Allow()
}

// UpdateActivity updates the last activity timestamp.
func (s *LiveViewSession) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActivity = time.Now()
}

// GetLastActivity returns the last activity timestamp.
func (s *LiveViewSession) GetLastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActivity
}

// SetMounted marks the component as mounted.
func (s *LiveViewSession) SetMounted(mounted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Mounted = mounted
}

// IsMounted reports whether the component was mounted.
func (s *LiveViewSession) IsMounted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Mounted
}

// SetJoinRef stores the join ref and topic of the channel.
func (s *LiveViewSession) SetJoinRef(ref, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.JoinRef = ref
	if topic != "" {
		s.Topic = topic
	}
}

// GetJoinRef returns the join ref and topic of the channel.
func (s *LiveViewSession) GetJoinRef() (ref, topic string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.JoinRef, s.Topic
}

func (s *LiveViewSession) nextVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Version++
	return s.Version
}

// LiveViewSessionManager tracks all live sessions.
type LiveViewSessionManager struct {
	sessions map[string]*LiveViewSession
	bySocket map[string]*LiveViewSession

	// maxSessions is the session cap (0 = unlimited)
	maxSessions int

	// sessionTTL is how long an idle session is kept
	sessionTTL time.Duration

	mu sync.RWMutex
}

// LiveViewSessionManagerConfig configures the session manager.
type LiveViewSessionManagerConfig struct {
	MaxSessions int
	SessionTTL  time.Duration
}

// DefaultSessionManagerConfig returns the default session limits.
func DefaultSessionManagerConfig() *LiveViewSessionManagerConfig {
	return &LiveViewSessionManagerConfig{
		MaxSessions: 1000,
		SessionTTL:  30 * time.Minute,
	}
}

// NewLiveViewSessionManager creates a manager. A nil config uses the defaults.
func NewLiveViewSessionManager(config *LiveViewSessionManagerConfig) *LiveViewSessionManager {
	if config == nil {
		config = DefaultSessionManagerConfig()
	}
	return &LiveViewSessionManager{
		sessions:    make(map[string]*LiveViewSession),
		bySocket:    make(map[string]*LiveViewSession),
		maxSessions: config.MaxSessions,
		sessionTTL:  config.SessionTTL,
	}
}

// Create creates and registers a session, evicting the least recently
// active one when the cap is reached. The evicted session is returned so the
// caller can close its connection.
func (m *LiveViewSessionManager) Create(socketID string, comp core.Component, params core.Params, session core.Session) (created, evicted *LiveViewSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		evicted = m.evictOldestLocked()
	}

	created = NewLiveViewSession(socketID, comp, params, session)
	m.sessions[created.ID] = created
	m.bySocket[socketID] = created
	return created, evicted
}

// Get returns a session by ID.
func (m *LiveViewSessionManager) Get(sessionID string) (*LiveViewSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// GetBySocket returns a session by socket ID.
func (m *LiveViewSessionManager) GetBySocket(socketID string) (*LiveViewSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bySocket[socketID]
	return s, ok
}

// Remove unregisters a session.
func (m *LiveViewSessionManager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		delete(m.bySocket, s.SocketID)
		delete(m.sessions, sessionID)
	}
}

// Count returns the number of sessions.
func (m *LiveViewSessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expired removes and returns sessions idle for longer than the TTL.
func (m *LiveViewSessionManager) Expired() []*LiveViewSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var expired []*LiveViewSession
	for id, s := range m.sessions {
		if now.Sub(s.GetLastActivity()) > m.sessionTTL {
			delete(m.bySocket, s.SocketID)
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	return expired
}

// evictOldestLocked must be called with m.mu held.
func (m *LiveViewSessionManager) evictOldestLocked() *LiveViewSession {
	var oldest *LiveViewSession
	for _, s := range m.sessions {
		if oldest == nil || s.GetLastActivity().Before(oldest.GetLastActivity()) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(m.bySocket, oldest.SocketID)
		delete(m.sessions, oldest.ID)
	}
	return oldest
}
