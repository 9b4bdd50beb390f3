package wspool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTransitionsAccepted(t *testing.T) {
	sm := NewStateMachine()
	require.NoError(t, sm.Transition(Connecting))
	require.NoError(t, sm.Transition(Connected))
	require.NoError(t, sm.Transition(Disconnecting))
	require.NoError(t, sm.Transition(Disconnected))
	assert.Equal(t, Disconnected, sm.Current())
}

func TestInvalidTransitionForcesError(t *testing.T) {
	sm := NewStateMachine()
	// DISCONNECTED -> CONNECTED is not in the table.
	err := sm.Transition(Connected)
	require.Error(t, err)
	assert.Equal(t, Error, sm.Current())
}

func TestErrorReachableFromAnyState(t *testing.T) {
	sm := NewStateMachine()
	require.NoError(t, sm.Transition(Connecting))
	require.NoError(t, sm.Transition(Error))
	assert.Equal(t, Error, sm.Current())
}

func TestReconnectingReachableFromErrorOrDisconnected(t *testing.T) {
	sm := NewStateMachine()
	require.NoError(t, sm.Transition(Connecting))
	require.NoError(t, sm.Transition(Error))
	require.NoError(t, sm.Transition(Reconnecting))

	sm2 := NewStateMachine()
	require.NoError(t, sm2.Transition(Connecting))
	require.NoError(t, sm2.Transition(Connected))
	require.NoError(t, sm2.Transition(Disconnecting))
	require.NoError(t, sm2.Transition(Disconnected))
	require.NoError(t, sm2.Transition(Reconnecting))
}

func TestReconnectBackoffDoublesAndCaps(t *testing.T) {
	d0, exhausted0 := ReconnectBackoff(0)
	assert.False(t, exhausted0)
	assert.Equal(t, time.Second, d0)

	d1, _ := ReconnectBackoff(1)
	assert.Equal(t, 2*time.Second, d1)

	d6, _ := ReconnectBackoff(6) // 2^6=64s, capped at 60s
	assert.Equal(t, 60*time.Second, d6)

	_, exhausted := ReconnectBackoff(10)
	assert.True(t, exhausted)
}

func TestSubscribeSymbolRefcounting(t *testing.T) {
	p := New(nil)
	calls := 0
	subFn := func() error { calls++; return nil }

	require.NoError(t, p.SubscribeSymbol(1, "BTC/USDT", subFn))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, p.RefCount(1, "BTC/USDT"))

	require.NoError(t, p.SubscribeSymbol(1, "BTC/USDT", subFn))
	assert.Equal(t, 1, calls, "second subscribe on same key must not re-send subscribe frame")
	assert.Equal(t, 2, p.RefCount(1, "BTC/USDT"))

	unsubCalls := 0
	unsubFn := func() error { unsubCalls++; return nil }
	require.NoError(t, p.UnsubscribeSymbol(1, "BTC/USDT", unsubFn))
	assert.Equal(t, 0, unsubCalls, "refcount still 1, must not unsubscribe yet")
	assert.Equal(t, 1, p.RefCount(1, "BTC/USDT"))

	require.NoError(t, p.UnsubscribeSymbol(1, "BTC/USDT", unsubFn))
	assert.Equal(t, 1, unsubCalls)
	assert.Equal(t, 0, p.RefCount(1, "BTC/USDT"))
}
