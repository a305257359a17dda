// Package types holds the websocket wire messages.
package types

import "github.com/DoyleJ11/servant-draft/internal/engine"

const (
	MsgIntent = "Intent"
	MsgPing   = "Ping"

	MsgSnapshot = "StateSnapshot"
	MsgAck      = "Ack"
	MsgError    = "Error"
	MsgPong     = "Pong"
)

// ClientMessage is what a connected client sends. Intents act as the
// token's subject.
type ClientMessage struct {
	Type    string       `json:"type" cbor:"type"`
	Action  string       `json:"action,omitempty" cbor:"action,omitempty"`
	Phase   engine.Phase `json:"phase,omitempty" cbor:"phase,omitempty"`
	Round   int          `json:"round,omitempty" cbor:"round,omitempty"`
	Payload string       `json:"payload,omitempty" cbor:"payload,omitempty"`
}

type ServerMessage struct {
	Type    string       `json:"type" cbor:"type"` // "StateSnapshot" | "Ack" | "Error" | "Pong"
	Version int          `json:"version,omitempty" cbor:"version,omitempty"`
	State   *engine.View `json:"state,omitempty" cbor:"state,omitempty"`
	Log     []string     `json:"log,omitempty" cbor:"log,omitempty"`
	Message string       `json:"message,omitempty" cbor:"message,omitempty"`
	Error   string       `json:"error,omitempty" cbor:"error,omitempty"`
}
