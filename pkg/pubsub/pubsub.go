// Package pubsub fans studio events out to the other sessions of a node.
package pubsub

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned once the hub is closed.
var ErrClosed = errors.New("pubsub is closed")

// subscriberBuffer is the number of undelivered messages a subscriber may
// hold before new ones are dropped.
const subscriberBuffer = 64

// Hub is an in-memory topic hub. Each subscriber has its own goroutine and
// buffer, so a slow handler never blocks Publish.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*Subscription
	nextID uint64
	closed bool

	dropped atomic.Int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[uint64]*Subscription)}
}

// Subscription is a handler registered on one topic.
type Subscription struct {
	id     uint64
	topic  string
	hub    *Hub
	ch     chan []byte
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
}

// Subscribe runs handler for every message published on topic until the
// subscription or the hub is closed.
func (h *Hub) Subscribe(topic string, handler func(msg []byte)) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	h.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		id:     h.nextID,
		topic:  topic,
		hub:    h,
		ch:     make(chan []byte, subscriberBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[uint64]*Subscription)
	}
	h.topics[topic][sub.id] = sub

	go func() {
		defer close(sub.done)
		for {
			select {
			case msg := <-sub.ch:
				handler(msg)
			case <-ctx.Done():
				return
			}
		}
	}()
	return sub, nil
}

// Publish delivers a copy of msg to every subscriber of topic. Messages for
// a subscriber whose buffer is full are dropped.
func (h *Hub) Publish(topic string, msg []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}

	for _, sub := range h.topics[topic] {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- append([]byte(nil), msg...):
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Dropped returns the number of messages dropped on full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close stops every subscription and waits for their handlers to return.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var subs []*Subscription
	for _, m := range h.topics {
		for _, sub := range m {
			subs = append(subs, sub)
		}
	}
	h.topics = make(map[string]map[uint64]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	for _, sub := range subs {
		<-sub.done
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) String() string {
	return s.topic + "#" + strconv.FormatUint(s.id, 10)
}

// Unsubscribe stops the handler. A handler already running finishes on its
// own goroutine. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.hub.mu.Lock()
	if m := s.hub.topics[s.topic]; m != nil {
		delete(m, s.id)
		if len(m) == 0 {
			delete(s.hub.topics, s.topic)
		}
	}
	s.hub.mu.Unlock()
	s.stop()
}

func (s *Subscription) stop() {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
	}
}
