package wspool

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/synapsetrade/core/logger"
)

// Metadata is per-connection health/telemetry state (spec.md §4.12).
type Metadata struct {
	mu                    sync.RWMutex
	lastPingTime          time.Time
	lastMessageTime       time.Time
	bytesReceived         int64
	bytesSent             int64
	reconnectCount        int
	connectionAttemptCount int
	lastError             string
}

// Snapshot is a point-in-time copy of Metadata, returned instead of a
// live reference so statistics collectors never iterate while mutating
// (spec.md §4.12 "Statistics collectors take snapshots").
type Snapshot struct {
	LastPingTime           time.Time
	LastMessageTime        time.Time
	BytesReceived          int64
	BytesSent              int64
	ReconnectCount         int
	ConnectionAttemptCount int
	LastError              string
}

func (m *Metadata) snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		LastPingTime: m.lastPingTime, LastMessageTime: m.lastMessageTime,
		BytesReceived: m.bytesReceived, BytesSent: m.bytesSent,
		ReconnectCount: m.reconnectCount, ConnectionAttemptCount: m.connectionAttemptCount,
		LastError: m.lastError,
	}
}

func (m *Metadata) recordMessage(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastMessageTime = time.Now()
	m.bytesReceived += int64(n)
}

func (m *Metadata) recordPing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPingTime = time.Now()
}

func (m *Metadata) recordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = err.Error()
}

// Connection wraps one gorilla/websocket connection plus its state
// machine and metadata (spec.md §4.12).
type Connection struct {
	URL      string
	sm       *StateMachine
	meta     *Metadata
	conn     *websocket.Conn
	handler  func(message []byte)

	mu       sync.Mutex
	cancel   context.CancelFunc
}

func NewConnection(url string, handler func(message []byte)) *Connection {
	return &Connection{URL: url, sm: NewStateMachine(), meta: &Metadata{}, handler: handler}
}

func (c *Connection) State() State       { return c.sm.Current() }
func (c *Connection) Stats() Snapshot    { return c.meta.snapshot() }

// IsHealthy implements spec.md §4.12's is_healthy():
// CONNECTED && last_ping within 60s && last_message within 120s.
func (c *Connection) IsHealthy() bool {
	if c.sm.Current() != Connected {
		return false
	}
	snap := c.meta.snapshot()
	now := time.Now()
	return now.Sub(snap.LastPingTime) <= 60*time.Second && now.Sub(snap.LastMessageTime) <= 120*time.Second
}

// Dial performs the handshake. The caller (Pool.register) MUST NOT add
// this connection to any registry until Dial returns nil — the critical
// bug spec.md §4.12 calls out: "register the connection only after the
// handshake succeeds."
func (c *Connection) Dial(ctx context.Context) error {
	if err := c.sm.Transition(Connecting); err != nil {
		return err
	}
	c.meta.mu.Lock()
	c.meta.connectionAttemptCount++
	c.meta.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		c.meta.recordError(err)
		_ = c.sm.Transition(Error)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.sm.Transition(Connected); err != nil {
		return err
	}
	c.meta.recordPing()
	return nil
}

// Run reads messages until the context is cancelled or the connection
// errors; it never blocks the webhook path (spec.md §5) — callers invoke
// it on its own goroutine.
func (c *Connection) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	for {
		select {
		case <-runCtx.Done():
			return
		default:
		}
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.meta.recordError(err)
			_ = c.sm.Transition(Error)
			return
		}
		c.meta.recordMessage(len(msg))
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// Close transitions DISCONNECTING -> DISCONNECTED and tears down the
// socket (spec.md §4.12 state machine).
func (c *Connection) Close() error {
	if err := c.sm.Transition(Disconnecting); err != nil {
		return err
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return c.sm.Transition(Disconnected)
}

// ReconnectBackoff implements spec.md §4.12's reconnect policy:
// exponential backoff starting at 1s, doubling up to 60s max, capped at
// 10 attempts.
func ReconnectBackoff(attempt int) (delay time.Duration, exhausted bool) {
	const maxAttempts = 10
	const maxDelay = 60 * time.Second
	if attempt >= maxAttempts {
		return 0, true
	}
	seconds := math.Pow(2, float64(attempt))
	d := time.Duration(seconds) * time.Second
	if d > maxDelay {
		d = maxDelay
	}
	return d, false
}

// Reconnect runs the backoff loop, redialing until success or the
// attempt cap is hit. On exhaustion, the connection is not left dangling
// — the caller must remove it from the registry so the periodic health
// check can re-initiate from scratch (spec.md §4.12).
func (c *Connection) Reconnect(ctx context.Context) error {
	if err := c.sm.Transition(Reconnecting); err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		delay, exhausted := ReconnectBackoff(attempt)
		if exhausted {
			return errReconnectExhausted
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err := c.Dial(ctx); err == nil {
			c.meta.mu.Lock()
			c.meta.reconnectCount++
			c.meta.mu.Unlock()
			return nil
		}
		logger.Warnf("wspool: reconnect attempt %d failed for %s", attempt+1, c.URL)
		_ = c.sm.Transition(Reconnecting)
	}
}

type wsError string

func (e wsError) Error() string { return string(e) }

const errReconnectExhausted = wsError("wspool: reconnect attempts exhausted")
