// Package connection owns the single live transport connection per
// authenticated identity: connect, reconnect with bounded backoff, and room
// membership re-issue after every reconnect.
package connection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scribemarket/scribemarket/internal/domain/session"
	"github.com/scribemarket/scribemarket/internal/events"
)

var (
	// ErrOffline is surfaced once the reconnect budget is exhausted. The
	// manager stops retrying until the next explicit Connect.
	ErrOffline = errors.New("connection offline")
	// ErrNoSession is returned for room operations before the first Connect.
	ErrNoSession = errors.New("no active session")
)

// Transport is one established duplex connection. ReadEvent blocks until
// the next inbound envelope or a transport-level failure.
type Transport interface {
	ReadEvent() (events.Envelope, error)
	Join(ctx context.Context, roomID string) error
	Close() error
}

// Dialer establishes transports for an identity.
type Dialer interface {
	Dial(ctx context.Context, identityID string) (Transport, error)
}

// Options tune the reconnect behaviour.
type Options struct {
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxRetries  int
}

func (o Options) withDefaults() Options {
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 8
	}
	return o
}

// StateChange is published to subscribers on every connection state
// transition. Resync is set on Connected entries that followed a silent
// disconnect: events missed while away are not replayed by the transport,
// so consumers must re-fetch authoritative lists.
type StateChange struct {
	IdentityID string
	State      session.ConnState
	Resync     bool
	Err        error
}

// Manager owns the process's single live connection. All state is guarded
// by mu; event dispatch happens on the read-loop goroutine, serialized per
// connection.
type Manager struct {
	dialer Dialer
	router *events.Router
	opts   Options
	logger zerolog.Logger

	mu         sync.Mutex
	sess       *session.Session
	transport  Transport
	closing    bool
	generation int

	subsMu sync.RWMutex
	subs   map[string]chan StateChange
}

// NewManager creates a connection manager dispatching inbound events
// through the given router.
func NewManager(dialer Dialer, router *events.Router, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		dialer: dialer,
		router: router,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("service", "connection").Logger(),
		subs:   make(map[string]chan StateChange),
	}
}

// Connect establishes the live connection for an identity, blocking until
// connected or the retry budget is spent. A Connect for the already
// connected identity reuses the live connection; a different identity tears
// the old connection down first. There are never two live connections.
func (m *Manager) Connect(ctx context.Context, identityID string) error {
	m.mu.Lock()
	if m.sess != nil && m.sess.IdentityID == identityID {
		switch m.sess.ConnState {
		case session.StateConnected, session.StateConnecting, session.StateReconnecting:
			m.mu.Unlock()
			return nil
		}
	}
	if m.transport != nil {
		old := m.transport
		m.transport = nil
		m.generation++
		m.mu.Unlock()
		_ = old.Close()
		m.mu.Lock()
	}
	if m.sess == nil || m.sess.IdentityID != identityID {
		m.sess = session.New(identityID)
	}
	m.closing = false
	m.setStateLocked(session.StateConnecting, false, nil)
	m.mu.Unlock()

	return m.establish(ctx, false)
}

// Disconnect closes the connection client-side. No auto-reconnect follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return
	}
	m.closing = true
	m.generation++
	t := m.transport
	m.transport = nil
	m.setStateLocked(session.StateDisconnected, false, nil)
	m.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
}

// JoinRoom records the membership on the session and, when connected,
// issues the join immediately. The recorded set is re-issued on every
// reconnect since membership does not survive the transport.
func (m *Manager) JoinRoom(ctx context.Context, roomID string) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	m.sess.JoinRoom(roomID)
	t := m.transport
	connected := m.sess.ConnState == session.StateConnected
	m.mu.Unlock()

	if connected && t != nil {
		return t.Join(ctx, roomID)
	}
	return nil
}

// LeaveRoom drops the membership from the session.
func (m *Manager) LeaveRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		m.sess.LeaveRoom(roomID)
	}
}

// State returns the current connection state.
func (m *Manager) State() session.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return session.StateDisconnected
	}
	return m.sess.ConnState
}

// Identity returns the connected identity, empty before the first Connect.
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.IdentityID
}

// Rooms returns the session's recorded room memberships.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	return m.sess.Rooms()
}

// Subscribe registers for state changes. The returned cancel func releases
// the subscription and closes the channel.
func (m *Manager) Subscribe() (<-chan StateChange, func()) {
	ch := make(chan StateChange, 16)
	id := uuid.NewString()

	m.subsMu.Lock()
	m.subs[id] = ch
	m.subsMu.Unlock()

	cancel := func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (m *Manager) establish(ctx context.Context, resync bool) error {
	var t Transport
	for attempt := 0; ; attempt++ {
		m.mu.Lock()
		if m.closing {
			m.mu.Unlock()
			return nil
		}
		identityID := m.sess.IdentityID
		m.mu.Unlock()

		var err error
		t, err = m.dialer.Dial(ctx, identityID)
		if err == nil {
			break
		}
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("dial failed")

		if attempt >= m.opts.MaxRetries {
			m.mu.Lock()
			m.setStateLocked(session.StateOffline, false, err)
			m.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrOffline, err)
		}
		select {
		case <-time.After(m.backoff(attempt)):
		case <-ctx.Done():
			m.mu.Lock()
			m.setStateLocked(session.StateDisconnected, false, ctx.Err())
			m.mu.Unlock()
			return ctx.Err()
		}
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		_ = t.Close()
		return nil
	}
	m.generation++
	gen := m.generation
	m.transport = t
	rooms := m.sess.Rooms()
	m.mu.Unlock()

	for _, room := range rooms {
		if err := t.Join(ctx, room); err != nil {
			m.logger.Warn().Err(err).Str("room", room).Msg("room rejoin failed")
		}
	}

	m.mu.Lock()
	if m.closing || gen != m.generation {
		// a Disconnect or a newer Connect landed during the rejoins;
		// their state stands and this connection must not go live
		m.mu.Unlock()
		_ = t.Close()
		return nil
	}
	m.setStateLocked(session.StateConnected, resync, nil)
	m.mu.Unlock()

	go m.readLoop(t, gen)
	return nil
}

func (m *Manager) readLoop(t Transport, gen int) {
	for {
		env, err := t.ReadEvent()
		if err != nil {
			m.handleDisconnect(gen, err)
			return
		}
		m.router.Dispatch(env)
	}
}

func (m *Manager) handleDisconnect(gen int, cause error) {
	m.mu.Lock()
	if gen != m.generation {
		// superseded by a newer connection or a client-side Disconnect
		m.mu.Unlock()
		return
	}
	m.transport = nil
	if m.closing {
		m.setStateLocked(session.StateDisconnected, false, nil)
		m.mu.Unlock()
		return
	}
	m.logger.Warn().Err(cause).Msg("transport disconnected, reconnecting")
	m.setStateLocked(session.StateReconnecting, false, cause)
	m.mu.Unlock()

	_ = m.establish(context.Background(), true)
}

// setStateLocked updates the session state and publishes the change.
// Callers hold m.mu.
func (m *Manager) setStateLocked(state session.ConnState, resync bool, err error) {
	m.sess.ConnState = state
	change := StateChange{
		IdentityID: m.sess.IdentityID,
		State:      state,
		Resync:     resync,
		Err:        err,
	}

	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (m *Manager) backoff(attempt int) time.Duration {
	d := time.Duration(float64(m.opts.BackoffBase) * math.Pow(2, float64(attempt)))
	if d > m.opts.BackoffCap || d <= 0 {
		return m.opts.BackoffCap
	}
	return d
}
