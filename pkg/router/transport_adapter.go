package router

import (
	"github.com/gabrielmiguelok/pagestudio/pkg/core"
	"github.com/gabrielmiguelok/pagestudio/pkg/protocol"
	"github.com/gabrielmiguelok/pagestudio/pkg/transport"
)

// TransportAdapter lets a core.Socket push messages through a WebSocket
// transport. Pushed messages carry the join ref of the channel.
type TransportAdapter struct {
	ws      *transport.WebSocketTransport
	joinRef func() string
}

// NewTransportAdapter wraps ws. joinRef may be nil.
func NewTransportAdapter(ws *transport.WebSocketTransport, joinRef func() string) *TransportAdapter {
	return &TransportAdapter{ws: ws, joinRef: joinRef}
}

// Send implements core.Transport.
func (a *TransportAdapter) Send(msg core.Message) error {
	pm := &protocol.Message{
		Ref:     msg.Ref,
		Topic:   msg.Topic,
		Event:   msg.Event,
		Payload: msg.Payload,
	}
	if a.joinRef != nil {
		pm.JoinRef = a.joinRef()
	}
	return a.ws.Send(pm)
}

// Close implements core.Transport.
func (a *TransportAdapter) Close() error {
	return a.ws.Close()
}

// IsConnected implements core.Transport.
func (a *TransportAdapter) IsConnected() bool {
	return a.ws.IsConnected()
}
