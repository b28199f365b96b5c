package pubsub

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// PageSaved announces that a studio wrote a page.
type PageSaved struct {
	Page   string    `msgpack:"page"`
	Origin string    `msgpack:"origin"` // socket id of the saving studio
	At     time.Time `msgpack:"at"`
}

// PageTopic is the topic carrying events for page.
func PageTopic(page string) string {
	return "page:" + page
}

// PublishSaved announces ev on its page topic.
func PublishSaved(h *Hub, ev PageSaved) error {
	msg, err := msgpack.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("encode page event: %w", err)
	}
	return h.Publish(PageTopic(ev.Page), msg)
}

// SubscribeSaved calls fn for every save of page. Malformed messages are
// skipped.
func SubscribeSaved(h *Hub, page string, fn func(PageSaved)) (*Subscription, error) {
	return h.Subscribe(PageTopic(page), func(msg []byte) {
		var ev PageSaved
		if err := msgpack.Unmarshal(msg, &ev); err != nil {
			return
		}
		fn(ev)
	})
}
