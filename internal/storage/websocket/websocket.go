package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/combatsim/internal/storage"
	"github.com/OCAP2/combatsim/pkg/core"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL          string
	Secret       string
	WriteTimeout time.Duration
}

// Backend streams combat events over WebSocket to a remote viewer.
// Events are fire-and-forget; session start and end wait for an ack.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	conn := newConnection(logger)
	if cfg.WriteTimeout > 0 {
		conn.writeWait = cfg.WriteTimeout
	}
	return &Backend{
		conn: conn,
		cfg:  cfg,
	}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "websocket" }

// Init connects to the WebSocket server and announces the session.
func (b *Backend) Init(session core.Session) error {
	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}

	data, err := marshalEnvelope(TypeStartSession, StartSessionPayload{Session: session})
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, TypeStartSession, b.conn.ackTimeout)
}

// RecordEvent pushes the event to the write loop.
func (b *Backend) RecordEvent(e *core.CombatEvent) error {
	if !b.conn.connected() {
		return storage.ErrNotInitialized
	}
	return b.sendEnvelope(TypeCombatEvent, e)
}

// Flush is a no-op; the write loop sends as fast as the socket allows.
func (b *Backend) Flush() error {
	return nil
}

// WriteSummary sends the session summary.
func (b *Backend) WriteSummary(s *core.SessionSummary) error {
	if !b.conn.connected() {
		return storage.ErrNotInitialized
	}
	return b.sendEnvelope(TypeSummary, s)
}

// Close sends end_session, waits for the ack and disconnects.
func (b *Backend) Close() error {
	var ackErr error
	if b.conn.connected() {
		if data, err := marshalEnvelope(TypeEndSession, nil); err == nil {
			ackErr = b.conn.sendAndWait(data, TypeEndSession, b.conn.ackTimeout)
		}
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	if err := b.conn.close(); err != nil {
		return err
	}
	return ackErr
}

// Dropped returns the number of messages dropped because the send buffer
// was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}
