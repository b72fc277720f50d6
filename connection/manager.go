// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package connection keeps the session alive and routes session events to the archival components.
package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go.mau.fi/whatsarchive/events"
	"go.mau.fi/whatsarchive/metrics"
	"go.mau.fi/whatsarchive/session"
)

// ErrLoggedOut is returned by Run when the account was logged out and must be paired again.
var ErrLoggedOut = errors.New("session logged out")

const (
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultQueueSize      = 256
)

// Client is the protocol client owned by the manager.
type Client interface {
	session.Session
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// MessageHandler archives message events.
type MessageHandler interface {
	HandleMessage(ctx context.Context, evt *events.Message)
}

// CallHandler consumes the three call feeds.
type CallHandler interface {
	HandleResult(ctx context.Context, evt *events.CallResult)
	HandleLifecycle(ctx context.Context, evt *events.CallLifecycle)
	HandleStub(ctx context.Context, evt *events.CallStub)
}

// BlocklistHandler reconciles the block list.
type BlocklistHandler interface {
	Bootstrap(ctx context.Context)
	Refresh(ctx context.Context)
}

// Handlers are the components that events are routed to. Nil handlers drop their events.
type Handlers struct {
	Messages  MessageHandler
	Calls     CallHandler
	Blocklist BlocklistHandler
	// OnQR is called synchronously with every batch of pairing codes.
	OnQR func(codes []string)
}

// Config contains the reconnect and queueing parameters of the manager.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	QueueSize      int
}

func (cfg *Config) setDefaults() {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(DefaultMaxBackoff, cfg.InitialBackoff)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
}

// Manager owns the session handle and runs the connection state machine.
type Manager struct {
	client   Client
	handlers Handlers
	cfg      Config
	log      zerolog.Logger

	state       atomic.Int32
	sessionID   atomic.Pointer[string]
	transitions *transitionQueue

	messageWorker   *worker
	callMsgWorker   *worker
	lifecycleWorker *worker
	blocklistWorker *worker
	runLock         sync.Mutex
}

// NewManager creates a manager for the given client. Run must be called to connect.
func NewManager(client Client, handlers Handlers, cfg Config, log zerolog.Logger) *Manager {
	cfg.setDefaults()
	m := &Manager{
		client:      client,
		handlers:    handlers,
		cfg:         cfg,
		log:         log,
		transitions: newTransitionQueue(),

		messageWorker:   newWorker("message", cfg.QueueSize, log),
		callMsgWorker:   newWorker("call-message", cfg.QueueSize, log),
		lifecycleWorker: newWorker("call-lifecycle", cfg.QueueSize, log),
		blocklistWorker: newWorker("blocklist", cfg.QueueSize, log),
	}
	m.setState(StateConnecting)
	return m
}

func (m *Manager) workers() []*worker {
	return []*worker{m.messageWorker, m.callMsgWorker, m.lifecycleWorker, m.blocklistWorker}
}

// Session returns the shared session handle.
func (m *Manager) Session() session.Session {
	return m.client
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsOpen returns true while the session is open.
func (m *Manager) IsOpen() bool {
	return m.State() == StateOpen
}

// SessionID returns the run ID of the currently or most recently open session.
func (m *Manager) SessionID() string {
	if id := m.sessionID.Load(); id != nil {
		return *id
	}
	return ""
}

func (m *Manager) setState(state State) {
	m.state.Store(int32(state))
	metrics.SessionState.Set(float64(state))
}

// Dispatch routes one event from the client. It's safe to call from the client's event goroutine.
func (m *Manager) Dispatch(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Opened, *events.Closed:
		m.transitions.push(evt)
	case *events.QR:
		if m.handlers.OnQR != nil {
			m.handlers.OnQR(evt.Codes)
		}
	case *events.Message:
		if m.handlers.Messages != nil {
			m.messageWorker.enqueue(func(ctx context.Context) {
				m.handlers.Messages.HandleMessage(ctx, evt)
			})
		}
	case *events.CallResult:
		if m.handlers.Calls != nil {
			m.callMsgWorker.enqueue(func(ctx context.Context) {
				m.handlers.Calls.HandleResult(ctx, evt)
			})
		}
	case *events.CallStub:
		if m.handlers.Calls != nil {
			m.callMsgWorker.enqueue(func(ctx context.Context) {
				m.handlers.Calls.HandleStub(ctx, evt)
			})
		}
	case *events.CallLifecycle:
		if m.handlers.Calls != nil {
			m.lifecycleWorker.enqueue(func(ctx context.Context) {
				m.handlers.Calls.HandleLifecycle(ctx, evt)
			})
		}
	case *events.BlocklistChanged:
		if m.handlers.Blocklist != nil {
			m.blocklistWorker.enqueue(m.handlers.Blocklist.Refresh)
		}
	default:
		m.log.Trace().Type("event_type", evt).Msg("Ignoring unhandled event")
	}
}

// Run connects the client and keeps the session alive until ctx is cancelled or the account is
// logged out. Queued events are drained before Run returns. Run may only be called once.
func (m *Manager) Run(ctx context.Context) error {
	if !m.runLock.TryLock() {
		return errors.New("connection manager is already running")
	}
	var wg sync.WaitGroup
	workerCtx := m.log.WithContext(context.WithoutCancel(ctx))
	for _, w := range m.workers() {
		wg.Add(1)
		go w.run(workerCtx, &wg)
	}
	defer func() {
		for _, w := range m.workers() {
			w.stop()
		}
		wg.Wait()
	}()

	backoff := m.cfg.InitialBackoff
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.Reconnects.Inc()
		}
		m.setState(StateConnecting)
		opened, closed, err := m.connectOnce(ctx)
		if ctx.Err() != nil {
			m.client.Disconnect()
			m.setState(StateClosedRetryable)
			m.log.Info().Msg("Connection manager stopped")
			return nil
		}
		if closed != nil && closed.LoggedOut {
			m.client.Disconnect()
			m.setState(StateClosedTerminal)
			m.log.Error().Str("reason", closed.Reason).Msg("Session logged out, pairing required")
			return ErrLoggedOut
		}
		m.setState(StateClosedRetryable)
		m.client.Disconnect()
		if opened {
			backoff = m.cfg.InitialBackoff
		}
		logEvt := m.log.Warn().Stringer("retry_in", backoff)
		if err != nil {
			logEvt = logEvt.AnErr("error", err)
		} else if closed != nil {
			logEvt = logEvt.Str("reason", closed.Reason)
		}
		logEvt.Msg("Connection closed, reconnecting")

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, m.cfg.MaxBackoff)
		case <-ctx.Done():
			m.log.Info().Msg("Connection manager stopped")
			return nil
		}
	}
}

// connectOnce runs a single connection attempt until the session closes or ctx is cancelled.
func (m *Manager) connectOnce(ctx context.Context) (opened bool, closed *events.Closed, err error) {
	m.drainTransitions()
	if err = m.client.Connect(ctx); err != nil {
		return false, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return opened, nil, ctx.Err()
		case <-m.transitions.notify:
			for _, rawEvt := range m.transitions.take() {
				switch evt := rawEvt.(type) {
				case *events.Opened:
					if !opened {
						opened = true
						m.onOpen()
					}
				case *events.Closed:
					return opened, evt, nil
				}
			}
		}
	}
}

// drainTransitions discards connection events left over from the previous attempt.
func (m *Manager) drainTransitions() {
	for _, evt := range m.transitions.take() {
		m.log.Debug().Type("event_type", evt).Msg("Discarding stale connection event")
	}
}

func (m *Manager) onOpen() {
	id := uuid.NewString()
	m.sessionID.Store(&id)
	m.setState(StateOpen)
	m.log.Info().
		Str("session_id", id).
		Str("own_id", m.client.OwnID().String()).
		Msg("Session open")
	if m.handlers.Blocklist != nil {
		m.blocklistWorker.enqueue(func(ctx context.Context) {
			m.handlers.Blocklist.Bootstrap(m.log.With().Str("session_id", id).Logger().WithContext(ctx))
		})
	}
}

// QueueLength returns the number of events waiting in all worker queues.
func (m *Manager) QueueLength() int {
	var total int
	for _, w := range m.workers() {
		total += w.pending()
	}
	return total
}
