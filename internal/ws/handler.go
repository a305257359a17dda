// Package ws streams a draft's published state to web clients and accepts
// intents from them.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/DoyleJ11/servant-draft/internal/auth"
	"github.com/DoyleJ11/servant-draft/internal/draft"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/lobby"
	"github.com/DoyleJ11/servant-draft/internal/types"
)

const (
	outboxSize   = 8
	repliesSize  = 16
	writeTimeout = 5 * time.Second
	// Clients ping to stay connected.
	idleTimeout = 2 * time.Minute
)

type codec struct {
	kind      websocket.MessageType
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var (
	jsonCodec = codec{websocket.MessageText, json.Marshal, json.Unmarshal}
	cborCodec = codec{websocket.MessageBinary, cbor.Marshal, cbor.Unmarshal}
)

func codecFor(format string) codec {
	if format == "cbor" {
		return cborCodec
	}
	return jsonCodec
}

// Handler serves /ws?session=<guild:channel>[&format=cbor]. Intents act as
// the bearer token's subject. An open server without tokens takes the user
// from the user query parameter instead.
func Handler(o *draft.Orchestrator, log *zap.Logger, origins ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		key, err := engine.ParseKey(q.Get("session"))
		if err != nil {
			http.Error(w, "missing or bad session", http.StatusBadRequest)
			return
		}
		c := codecFor(q.Get("format"))
		actor, name := actorFrom(r)

		clientID := uuid.NewString()
		out := make(chan lobby.Snapshot, outboxSize)
		leave, err := o.Watch(r.Context(), key, clientID, out)
		if err != nil {
			if errors.Is(err, draft.ErrNoSession) {
				http.Error(w, "draft not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer leave()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log = log.With(zap.String("session", key.String()), zap.String("client", clientID))
		log.Debug("websocket client connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		replies := make(chan types.ServerMessage, repliesSize)
		go writeLoop(ctx, cancel, conn, c, out, replies, log)

		for {
			readCtx, readCancel := context.WithTimeout(ctx, idleTimeout)
			_, data, err := conn.Read(readCtx)
			readCancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read ended", zap.Error(err))
				}
				return
			}

			var msg types.ClientMessage
			reply := types.ServerMessage{Type: types.MsgError, Error: "unreadable message"}
			if err := c.unmarshal(data, &msg); err == nil {
				reply = handle(ctx, o, key, actor, name, msg)
			}
			select {
			case replies <- reply:
			default:
				conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
				return
			}
		}
	}
}

func actorFrom(r *http.Request) (engine.UserID, string) {
	q := r.URL.Query()
	raw := q.Get("user")
	if sub, ok := auth.SubjectFrom(r.Context()); ok && sub.UserID != "" {
		raw = sub.UserID
	}
	id, err := draft.ParseUserID(raw)
	if err != nil {
		return 0, ""
	}
	name := q.Get("name")
	if name == "" {
		name = raw
	}
	return id, name
}

func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c codec, out <-chan lobby.Snapshot, replies <-chan types.ServerMessage, log *zap.Logger) {
	defer cancel()
	for {
		var msg types.ServerMessage
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "draft ended")
				return
			}
			msg = snapshotMessage(snap)
		case msg = <-replies:
		}
		payload, err := c.marshal(msg)
		if err != nil {
			log.Error("encoding websocket message", zap.Error(err))
			continue
		}
		if err := write(ctx, conn, c.kind, payload); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, kind websocket.MessageType, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, kind, payload)
}

func snapshotMessage(snap lobby.Snapshot) types.ServerMessage {
	state := snap.Session
	return types.ServerMessage{
		Type:    types.MsgSnapshot,
		Version: snap.Version,
		State:   &state,
		Log:     draft.Announce(snap.Session, snap.Events),
	}
}

func handle(ctx context.Context, o *draft.Orchestrator, key engine.Key, actor engine.UserID, name string, msg types.ClientMessage) types.ServerMessage {
	switch msg.Type {
	case types.MsgPing:
		return types.ServerMessage{Type: types.MsgPong}
	case types.MsgIntent:
	default:
		return types.ServerMessage{Type: types.MsgError, Error: "unknown message type " + strconv.Quote(msg.Type)}
	}
	if actor == 0 {
		return types.ServerMessage{Type: types.MsgError, Error: "this connection has no user"}
	}
	in := draft.Intent{
		SessionKey: key,
		ActorID:    actor,
		ActorName:  name,
		Action:     draft.Action(msg.Action),
		Phase:      msg.Phase,
		Round:      msg.Round,
		Payload:    msg.Payload,
	}
	if in.Payload == "" && in.Action.Valued() {
		return types.ServerMessage{Type: types.MsgError, Error: "payload required for " + msg.Action}
	}
	text, err := o.Dispatch(ctx, in)
	if err != nil {
		return types.ServerMessage{Type: types.MsgError, Error: err.Error(), Message: draft.UserMessage(err)}
	}
	return types.ServerMessage{Type: types.MsgAck, Message: text}
}
