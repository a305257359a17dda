// Package hub is the session store: it owns every live lobby, at most one
// per channel.
package hub

import (
	"context"
	"errors"
	"slices"

	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/lobby"
)

var ErrSessionExists = errors.New("a draft is already running in this channel")
var ErrStopped = errors.New("session store stopped")

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Session *engine.Session
	Config  lobby.Config
	Reply   chan Created
}

type Created struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetLobby struct {
	Key   engine.Key
	Reply chan *lobby.Lobby
}

// RemoveLobby stops the lobby and forgets it. Reply, when set, reports
// whether there was one.
type RemoveLobby struct {
	Key   engine.Key
	Reply chan bool
}

type ListLobbies struct {
	Reply chan []engine.Key
}

type lobbyExited struct {
	Key   engine.Key
	Lobby *lobby.Lobby
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (lobbyExited) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[engine.Key]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[engine.Key]*lobby.Lobby),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				key := msg.Session.Key
				if lb := h.lobbies[key]; lb != nil {
					msg.Reply <- Created{Lobby: lb, Err: ErrSessionExists}
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.Session, msg.Config)
				h.lobbies[key] = lb
				go h.watch(key, lb)
				msg.Reply <- Created{Lobby: lb}

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Key] // May be nil

			case RemoveLobby:
				lb, ok := h.lobbies[msg.Key]
				if ok {
					lb.Close()
					delete(h.lobbies, msg.Key)
				}
				if msg.Reply != nil {
					msg.Reply <- ok
				}

			case ListLobbies:
				keys := make([]engine.Key, 0, len(h.lobbies))
				for k := range h.lobbies {
					keys = append(keys, k)
				}
				slices.SortFunc(keys, func(a, b engine.Key) int {
					switch {
					case a.String() < b.String():
						return -1
					case a.String() > b.String():
						return 1
					}
					return 0
				})
				msg.Reply <- keys

			case lobbyExited:
				if h.lobbies[msg.Key] == msg.Lobby {
					delete(h.lobbies, msg.Key)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// watch forgets a lobby that stopped on its own.
func (h *Hub) watch(key engine.Key, lb *lobby.Lobby) {
	select {
	case <-lb.Done():
	case <-h.ctx.Done():
		return
	}
	select {
	case h.inbox <- lobbyExited{Key: key, Lobby: lb}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Close()
	}
	clear(h.lobbies)
	h.cancel()
}

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) Create(ctx context.Context, s *engine.Session, cfg lobby.Config) (*lobby.Lobby, error) {
	reply := make(chan Created, 1)
	if err := h.post(ctx, CreateLobby{Session: s, Config: cfg, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case c := <-reply:
		return c.Lobby, c.Err
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the lobby for key, or nil.
func (h *Hub) Get(ctx context.Context, key engine.Key) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.post(ctx, GetLobby{Key: key, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Remove(ctx context.Context, key engine.Key) (bool, error) {
	reply := make(chan bool, 1)
	if err := h.post(ctx, RemoveLobby{Key: key, Reply: reply}); err != nil {
		return false, err
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-h.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (h *Hub) Keys(ctx context.Context) ([]engine.Key, error) {
	reply := make(chan []engine.Key, 1)
	if err := h.post(ctx, ListLobbies{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case keys := <-reply:
		return keys, nil
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops every lobby and the hub itself.
func (h *Hub) Shutdown() { h.cancel() }

func (h *Hub) post(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
