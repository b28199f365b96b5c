// Package protocol defines the messages exchanged between the studio client
// and the live router, and the codecs that put them on the wire.
package protocol

// Channel events understood by the router.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventHeartbeat = "heartbeat"
	EventDiff      = "diff"
)

// Message is one frame of the live protocol.
type Message struct {
	// JoinRef is the ref of the join that opened the channel.
	JoinRef string `json:"join_ref,omitempty" msgpack:"join_ref,omitempty"`

	// Ref correlates a request with its reply.
	Ref string `json:"ref,omitempty" msgpack:"ref,omitempty"`

	// Topic is the channel this message belongs to (e.g., "lv:studio-home").
	Topic string `json:"topic" msgpack:"topic"`

	// Event is the event name (e.g., "select", "editor").
	Event string `json:"event,omitempty" msgpack:"event,omitempty"`

	Payload map[string]any `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// IsHeartbeat returns true if this is a heartbeat message.
func (m *Message) IsHeartbeat() bool {
	return m.Event == EventHeartbeat
}

// GetPayloadString retrieves a string value from the payload.
func (m *Message) GetPayloadString(key string) string {
	if v, ok := m.Payload[key].(string); ok {
		return v
	}
	return ""
}

// GetPayloadMap retrieves a nested object from the payload.
func (m *Message) GetPayloadMap(key string) map[string]any {
	if v, ok := m.Payload[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Clone creates a shallow copy of the message and its payload map.
func (m *Message) Clone() *Message {
	clone := *m
	if m.Payload != nil {
		clone.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			clone.Payload[k] = v
		}
	}
	return &clone
}

// ReplyMessage creates a reply to the request identified by ref.
func ReplyMessage(joinRef, ref, topic, status string, response map[string]any) *Message {
	if response == nil {
		response = map[string]any{}
	}
	return &Message{
		JoinRef: joinRef,
		Ref:     ref,
		Topic:   topic,
		Event:   EventReply,
		Payload: map[string]any{
			"status":   status,
			"response": response,
		},
	}
}

// OkReply creates a successful reply message.
func OkReply(joinRef, ref, topic string, response map[string]any) *Message {
	return ReplyMessage(joinRef, ref, topic, "ok", response)
}

// ErrorReply creates an error reply message.
func ErrorReply(joinRef, ref, topic, reason string) *Message {
	return ReplyMessage(joinRef, ref, topic, "error", map[string]any{"reason": reason})
}
