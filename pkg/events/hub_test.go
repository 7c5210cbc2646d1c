package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Publish(AlertRaised, AlertRaisedEvent{Kind: "low", Capacity: 18})

	ev := <-ch
	assert.Equal(t, AlertRaised, ev.Name)

	payload, err := DecodeAs[AlertRaisedEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, "low", payload.Kind)
	assert.Equal(t, 18, payload.Capacity)

	h.Unsubscribe(ch)
	assert.Equal(t, 0, h.Subscribers())
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestHubPublishDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish(MonitorState, MonitorStateEvent{Running: true})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestNilHubPublish(t *testing.T) {
	var h *Hub
	assert.NotPanics(t, func() { h.Publish(AlertRaised, nil) })
}
