package websocket

import (
	"encoding/json"

	"github.com/OCAP2/combatsim/pkg/core"
)

// Message types of the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeCombatEvent  = "combat_event"
	TypeSummary      = "session_summary"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload opens a session on the receiving side.
type StartSessionPayload struct {
	Session core.Session `json:"session"`
}
