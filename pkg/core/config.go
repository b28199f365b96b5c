package core

import (
	"time"
)

// TimeoutConfig bounds the work done for one live connection.
type TimeoutConfig struct {
	// ComponentMount is the timeout for Mount calls, which load the page and catalog.
	ComponentMount time.Duration

	// ComponentEvent is the timeout for HandleEvent and HandleInfo calls.
	ComponentEvent time.Duration

	// BackgroundTask bounds work a component runs off the event loop, such as a save.
	BackgroundTask time.Duration

	// WebSocketRead is the read timeout for WebSocket connections.
	WebSocketRead time.Duration

	// WebSocketWrite is the write timeout for WebSocket connections.
	WebSocketWrite time.Duration

	// SessionIdle closes connections without activity for this long.
	SessionIdle time.Duration
}

// DefaultTimeoutConfig returns the production timeouts.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ComponentMount: 10 * time.Second,
		ComponentEvent: 3 * time.Second,
		BackgroundTask: 30 * time.Second,
		WebSocketRead:  60 * time.Second,
		WebSocketWrite: 10 * time.Second,
		SessionIdle:    30 * time.Minute,
	}
}

// RelaxedTimeoutConfig returns more relaxed timeouts for development.
func RelaxedTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ComponentMount: 30 * time.Second,
		ComponentEvent: 30 * time.Second,
		BackgroundTask: 2 * time.Minute,
		WebSocketRead:  300 * time.Second,
		WebSocketWrite: 30 * time.Second,
		SessionIdle:    2 * time.Hour,
	}
}

// Validate reports the first non-positive timeout.
func (c TimeoutConfig) Validate() error {
	switch {
	case c.ComponentMount <= 0:
		return configError("timeouts: mount must be positive")
	case c.ComponentEvent <= 0:
		return configError("timeouts: event must be positive")
	case c.BackgroundTask <= 0:
		return configError("timeouts: background task must be positive")
	case c.WebSocketRead <= 0 || c.WebSocketWrite <= 0:
		return configError("timeouts: websocket read and write must be positive")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }
