package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsetrade/core/events"
)

func TestBroadcaster_DeliversToSubscribedUserOnly(t *testing.T) {
	b := NewBroadcaster()

	chA, unsubA := b.Subscribe(1)
	defer unsubA()
	chB, unsubB := b.Subscribe(2)
	defer unsubB()

	b.PublishOrderEvent(1, events.OrderEvent{Symbol: "BTCUSDT"})

	select {
	case e := <-chA:
		evt, ok := e.(events.OrderEvent)
		require.True(t, ok)
		assert.Equal(t, "BTCUSDT", evt.Symbol)
	case <-time.After(time.Second):
		t.Fatal("expected event on subscriber A")
	}

	select {
	case <-chB:
		t.Fatal("subscriber B should not receive user 1's event")
	default:
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()

	ch, unsub := b.Subscribe(1)
	unsub()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestBroadcaster_SlowConsumerDropsRatherThanBlocks(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 64; i++ {
		b.PublishOrderEvent(1, events.OrderEvent{Symbol: "BTCUSDT"})
	}

	assert.LessOrEqual(t, len(ch), cap(ch), "publish must never block even when the subscriber buffer is full")
}
