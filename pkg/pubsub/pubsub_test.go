package pubsub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHub_PublishReachesTopicSubscribers(t *testing.T) {
	h := NewHub()
	defer h.Close()

	got := make(chan string, 4)
	_, err := h.Subscribe("page:home", func(msg []byte) { got <- "a:" + string(msg) })
	require.NoError(t, err)
	_, err = h.Subscribe("page:home", func(msg []byte) { got <- "b:" + string(msg) })
	require.NoError(t, err)
	_, err = h.Subscribe("page:offers", func(msg []byte) { got <- "c:" + string(msg) })
	require.NoError(t, err)

	require.NoError(t, h.Publish("page:home", []byte("saved")))

	var msgs []string
	for range 2 {
		select {
		case m := <-got:
			msgs = append(msgs, m)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
	assert.ElementsMatch(t, []string{"a:saved", "b:saved"}, msgs)
	assert.Equal(t, 2, h.SubscriberCount("page:home"))
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub, err := h.Subscribe("t", func([]byte) {})
	require.NoError(t, err)
	assert.Equal(t, "t", sub.Topic())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Zero(t, h.SubscriberCount("t"))
	assert.NoError(t, h.Publish("t", []byte("x")))
}

func TestHub_FullBufferDrops(t *testing.T) {
	h := NewHub()
	defer h.Close()

	release := make(chan struct{})
	var once sync.Once
	started := make(chan struct{})
	_, err := h.Subscribe("t", func([]byte) {
		once.Do(func() { close(started) })
		<-release
	})
	require.NoError(t, err)

	require.NoError(t, h.Publish("t", nil))
	<-started
	for range subscriberBuffer + 3 {
		require.NoError(t, h.Publish("t", nil))
	}
	assert.Equal(t, int64(3), h.Dropped())
	close(release)
}

func TestHub_Closed(t *testing.T) {
	h := NewHub()
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err := h.Subscribe("t", func([]byte) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.Publish("t", nil), ErrClosed)
}

func TestPageSavedRoundTrip(t *testing.T) {
	h := NewHub()
	defer h.Close()

	got := make(chan PageSaved, 1)
	_, err := SubscribeSaved(h, "offers", func(ev PageSaved) { got <- ev })
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, PublishSaved(h, PageSaved{Page: "offers", Origin: "sock-1", At: at}))

	select {
	case ev := <-got:
		assert.Equal(t, "offers", ev.Page)
		assert.Equal(t, "sock-1", ev.Origin)
		assert.True(t, at.Equal(ev.At))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
