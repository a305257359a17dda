// Package lobby runs one draft session on its own goroutine.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/dice"
	"github.com/DoyleJ11/servant-draft/internal/engine"
)

var ErrClosed = errors.New("draft session closed")

type Msg interface{ isLobbyMsg() }

// FromClient applies a command. Reply, when set, gets the outcome; it must
// have room for one value.
type FromClient struct {
	Cmd   engine.Command
	Reply chan Result
}

func (FromClient) isLobbyMsg() {}

type Result struct {
	Events []engine.Event
	Err    error
	View   engine.View
}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// Query runs Fn against the live session on the lobby goroutine. Fn must not
// keep the pointer.
type Query struct {
	Fn   func(s *engine.Session)
	Done chan struct{}
}

func (Query) isLobbyMsg() {}

type timerFired struct {
	phase engine.Phase
	round int
	gen   int
}

func (timerFired) isLobbyMsg() {}

type Snapshot struct {
	Version int
	Session engine.View
	Events  []engine.Event
}

type View struct {
	Version    int
	NumClients int
	Session    engine.View
}

// Config wires a lobby to its surroundings.
type Config struct {
	Env engine.Env
	Log *zap.Logger
	// OnEvents sees every accepted command's events, in order, on a
	// goroutine of its own. It may send further commands to the lobby.
	OnEvents func(ctx context.Context, snap Snapshot)
}

type Lobby struct {
	inbox    chan Msg
	session  *engine.Session
	env      engine.Env
	log      *zap.Logger
	version  int
	clients  map[string]chan Snapshot
	timerGen int
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	notes    *queue
	onEvents func(context.Context, Snapshot)
}

func NewLobby(parent context.Context, session *engine.Session, cfg Config) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Env.Clock == nil {
		cfg.Env.Clock = dice.SystemClock
	}
	if cfg.Env.Dice == nil {
		cfg.Env.Dice = dice.NewRoller(dice.NewSeed())
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	l := &Lobby{
		inbox:    make(chan Msg, 64),
		session:  session,
		env:      cfg.Env,
		log:      cfg.Log.With(zap.String("session", session.Key.String()), zap.String("draft", session.ID)),
		clients:  make(map[string]chan Snapshot),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		notes:    newQueue(),
		onEvents: cfg.OnEvents,
	}

	go l.loop()
	if l.onEvents != nil {
		go l.notifier()
	}
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- Snapshot{Version: l.version, Session: l.session.View()}

			case Leave:
				delete(l.clients, msg.ClientID)

			case FromClient:
				events, err := l.apply(msg.Cmd)
				if msg.Reply != nil {
					msg.Reply <- Result{Events: events, Err: err, View: l.session.View()}
				}

			case timerFired:
				if msg.gen != l.timerGen || msg.phase != l.session.Phase {
					l.log.Debug("dropping stale timer", zap.String("phase", string(msg.phase)), zap.Int("round", msg.round))
					break
				}
				if _, err := l.apply(engine.Command{Type: engine.CmdTimeoutAdvance, Phase: msg.phase, Round: msg.round}); err != nil {
					l.log.Debug("timeout rejected", zap.Error(err))
				}

			case GetState:
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					Session:    l.session.View(),
				}

			case Query:
				l.query(msg)

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// apply runs one command. Panics inside the engine become ErrInternal so one
// bad command cannot take the process down.
func (l *Lobby) apply(cmd engine.Command) (events []engine.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("draft command panicked", zap.String("command", string(cmd.Type)), zap.Any("panic", r))
			events, err = nil, fmt.Errorf("%w: %v", engine.ErrInternal, r)
		}
	}()

	events, err = engine.Apply(l.session, cmd, l.env)
	if err != nil {
		return nil, err
	}

	l.version++
	l.armTimers(events)
	for _, ev := range events {
		if ev.Type == engine.EvtLivenessGuard {
			l.log.Warn("liveness guard tripped",
				zap.String("phase", string(ev.Phase)),
				zap.Int("round", ev.Round),
				zap.String("detail", ev.Detail))
		}
	}

	snap := Snapshot{Version: l.version, Session: l.session.View(), Events: events}
	l.broadcast(snap)
	if l.onEvents != nil {
		l.notes.push(snap)
	}
	return events, nil
}

func (l *Lobby) query(msg Query) {
	defer close(msg.Done)
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("draft query panicked", zap.Any("panic", r))
		}
	}()
	msg.Fn(l.session)
}

// armTimers starts the phase timer announced in events. Any earlier timer
// becomes stale through the generation counter.
func (l *Lobby) armTimers(events []engine.Event) {
	if !l.session.Phase.Timed() {
		l.timerGen++
		return
	}
	ev, ok := engine.FindEvent(events, engine.EvtTimerStarted)
	if !ok || ev.Phase != l.session.Phase {
		return
	}
	l.timerGen++
	fire := timerFired{phase: l.session.Phase, round: l.session.ReselectionRound, gen: l.timerGen}
	l.startTimer(ev.Duration, fire)
}

func (l *Lobby) startTimer(d time.Duration, fire timerFired) {
	wait := l.env.Clock.After(d)
	go func() {
		select {
		case <-l.ctx.Done():
			return
		case <-wait:
		}
		select {
		case l.inbox <- fire:
		case <-l.ctx.Done():
		}
	}()
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(l.clients, id)
		}
	}
}

func (l *Lobby) notifier() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.notes.signal:
		}
		for _, snap := range l.notes.drain() {
			if l.ctx.Err() != nil {
				return
			}
			l.notify(snap)
		}
	}
}

func (l *Lobby) notify(snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("event handler panicked", zap.Int("version", snap.Version), zap.Any("panic", r))
		}
	}()
	l.onEvents(l.ctx, snap)
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Close stops the lobby and cancels every timer it armed.
func (l *Lobby) Close() { l.cancel() }

// Send applies cmd and waits for the outcome.
func (l *Lobby) Send(ctx context.Context, cmd engine.Command) (Result, error) {
	reply := make(chan Result, 1)
	select {
	case l.inbox <- FromClient{Cmd: cmd, Reply: reply}:
	case <-l.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r, nil
	case <-l.done:
		select {
		case r := <-reply:
			return r, nil
		default:
			return Result{}, ErrClosed
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Read runs fn against the session on the lobby goroutine.
func (l *Lobby) Read(ctx context.Context, fn func(s *engine.Session)) error {
	done := make(chan struct{})
	select {
	case l.inbox <- Query{Fn: fn, Done: done}:
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case l.inbox <- GetState{Reply: reply}:
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// queue is an unbounded FIFO between the lobby loop and the notifier, so a
// slow handler never blocks commands.
type queue struct {
	mu     sync.Mutex
	items  []Snapshot
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(s Snapshot) {
	q.mu.Lock()
	q.items = append(q.items, s)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) drain() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
