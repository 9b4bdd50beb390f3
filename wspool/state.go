// Package wspool implements the WebSocket Pool (spec.md §4.12): the
// public price feed and per-account private feed, each a connection with
// an explicit state machine, a Reconnect method with exponential backoff
// (nothing in this package calls it automatically), thread-safe
// registries, and refcounted symbol subscriptions.
//
// Grounded on the teacher's trader/vwap_collector.go (market data feed
// consumption idiom) and gorilla/websocket usage pattern.
package wspool

import (
	"fmt"
	"sync"
)

// State is a connection's lifecycle state (spec.md §4.12).
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Disconnecting State = "DISCONNECTING"
	Error        State = "ERROR"
	Reconnecting State = "RECONNECTING"
)

// validTransitions enumerates every accepted state transition (spec.md
// §4.12). Any attempted transition not in this table forces ERROR
// (testable property #9).
var validTransitions = map[State]map[State]bool{
	Disconnected:  {Connecting: true, Reconnecting: true},
	Connecting:    {Connected: true, Error: true},
	Connected:     {Disconnecting: true, Error: true},
	Disconnecting: {Disconnected: true, Error: true},
	Error:         {Reconnecting: true},
	Reconnecting:  {Connecting: true, Disconnected: true, Error: true},
}

// StateMachine guards one connection's State with a mutex; Transition is
// the only mutation entrypoint so invalid transitions can never be
// observed from outside.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: Disconnected}
}

// Transition attempts to move to next. An invalid transition (not in
// validTransitions) forces the state to ERROR and returns an error
// describing the rejected transition, per spec.md §4.12 "Invalid
// transition attempts force ERROR".
func (sm *StateMachine) Transition(next State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// ERROR is reachable from any transient state unconditionally.
	if next == Error {
		sm.state = Error
		return nil
	}

	allowed, ok := validTransitions[sm.state]
	if !ok || !allowed[next] {
		prev := sm.state
		sm.state = Error
		return fmt.Errorf("wspool: invalid transition %s -> %s, forced to ERROR", prev, next)
	}
	sm.state = next
	return nil
}

func (sm *StateMachine) Current() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}
