package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	reconnectDelay       = 3000 * time.Millisecond
	maxReconnectAttempts = 5
	dialTimeout          = 10 * time.Second
	writeTimeout         = 3 * time.Second
)

// ErrConnectionLost is carried by the terminal ConnectionLost event once
// the reconnection budget is spent.
var ErrConnectionLost = errors.New("connection lost, manual action required")

// Manager owns exactly one connection to the game's real-time endpoint.
// It dials, decodes inbound envelopes, reconnects after abnormal drops
// (fixed delay, bounded attempts), and delivers everything in transport
// order on a single event channel.
type Manager struct {
	url string
	log *zap.Logger

	// overridable in tests
	delay       time.Duration
	maxAttempts int

	mu         sync.Mutex
	state      ConnectionState
	conn       *websocket.Conn
	attempts   int
	retryTimer *time.Timer
	closing    bool
	ctx        context.Context
	cancel     context.CancelFunc

	events chan Event
}

func NewManager(socketURL string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		url:         socketURL,
		log:         log,
		delay:       reconnectDelay,
		maxAttempts: maxReconnectAttempts,
		state:       StateIdle,
		events:      make(chan Event, 64),
	}
}

// Events is the manager's outbound stream. Never closed; consumers stop
// reading when they tear down.
func (m *Manager) Events() <-chan Event { return m.events }

func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open starts the connection if none is underway. ctx bounds the whole
// connection lifetime; cancelling it tears the manager down without
// reconnection, same as Close.
func (m *Manager) Open(ctx context.Context) {
	m.mu.Lock()
	if m.closing || m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.state = StateConnecting
	runCtx := m.ctx
	m.mu.Unlock()

	go m.connect(runCtx)
}

func (m *Manager) connect(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, m.url, nil)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Warn("dial failed", zap.String("url", m.url), zap.Error(err))
		m.scheduleReconnect(ctx)
		return
	}

	m.mu.Lock()
	if m.closing || ctx.Err() != nil {
		m.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "client closing")
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.mu.Unlock()

	m.log.Info("connected", zap.String("url", m.url))
	m.emit(Connected{})
	m.readLoop(ctx, conn)
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			m.handleDrop(ctx, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			// Malformed payloads are dropped, never forwarded.
			m.log.Warn("dropping malformed message", zap.Error(err))
			continue
		}
		m.emit(Inbound{Envelope: env})
	}
}

func (m *Manager) handleDrop(ctx context.Context, err error) {
	status := websocket.CloseStatus(err)
	clean := status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway

	m.mu.Lock()
	intentional := m.closing || ctx.Err() != nil
	m.conn = nil
	if !intentional {
		if clean {
			m.state = StateClosed
		}
	}
	m.mu.Unlock()

	m.emit(Disconnected{})
	if intentional || clean {
		m.log.Info("disconnected", zap.String("url", m.url))
		return
	}

	m.log.Warn("connection dropped", zap.String("url", m.url), zap.Error(err))
	m.scheduleReconnect(ctx)
}

// scheduleReconnect arms the fixed-delay retry timer, or transitions to
// Failed once the attempt budget is spent. The terminal error is emitted
// exactly once: Failed is a dead end, nothing schedules after it.
func (m *Manager) scheduleReconnect(ctx context.Context) {
	m.mu.Lock()
	if m.closing || ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.maxAttempts {
		m.state = StateFailed
		m.mu.Unlock()
		m.log.Error("reconnection budget exhausted", zap.Int("attempts", m.maxAttempts))
		m.emit(ConnectionLost{Err: ErrConnectionLost})
		return
	}
	m.attempts++
	attempt := m.attempts
	m.state = StateReconnecting
	m.retryTimer = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		if m.closing || ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		m.mu.Unlock()
		m.connect(ctx)
	})
	m.mu.Unlock()

	m.log.Info("reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Int("max", m.maxAttempts),
		zap.Duration("delay", m.delay))
}

// Send encodes v and writes it while the connection is Open. Returns
// whether the send was attempted and succeeded.
func (m *Manager) Send(v any) bool {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	ctx := m.ctx
	m.mu.Unlock()

	if !open || conn == nil {
		m.log.Warn("send while not open")
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		m.log.Warn("encode outbound message", zap.Error(err))
		return false
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		m.log.Warn("write failed", zap.Error(err))
		return false
	}
	return true
}

// Close shuts the connection down intentionally. The attempt counter is
// saturated and any pending retry timer cancelled, so no reconnection
// can follow, even one already scheduled.
func (m *Manager) Close(code websocket.StatusCode) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	m.closing = true
	m.attempts = m.maxAttempts
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = StateClosed
	cancel := m.cancel
	m.mu.Unlock()

	if conn != nil {
		conn.Close(code, "client closing")
	}
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		// Consumer is gone or badly behind - drop rather than block the
		// read loop.
		m.log.Warn("dropping event, consumer not keeping up")
	}
}
