// Package draft drives sessions from user intents and platform callbacks.
// It owns everything around the state machine: the draft message, private
// choosers, the automatic team split, simulated players and match records.
package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/catalog"
	"github.com/DoyleJ11/servant-draft/internal/dice"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/hub"
	"github.com/DoyleJ11/servant-draft/internal/lobby"
	"github.com/DoyleJ11/servant-draft/internal/platform"
	"github.com/DoyleJ11/servant-draft/internal/recorder"
	"github.com/DoyleJ11/servant-draft/internal/roster"
)

// SettingsStore keeps per-guild balancer settings.
type SettingsStore interface {
	Settings(ctx context.Context, guildID string) (roster.GuildSettings, bool, error)
	SaveSettings(ctx context.Context, s roster.GuildSettings) error
}

// Deps are the orchestrator's collaborators. Roster, Settings and Recorder
// may be nil; the features that need them are then unavailable.
type Deps struct {
	Store     *hub.Hub
	Platform  platform.Adapter
	Catalog   *catalog.Catalog
	Balancer  *balance.Balancer
	Roster    roster.Store
	Settings  SettingsStore
	Recorder  recorder.Recorder
	Limits    engine.Limits
	TeamSize  int
	Algorithm balance.Algorithm
	BotDelay  time.Duration
	Clock     dice.Clock
	NewDice   func() dice.Roller
	Log       *zap.Logger
}

type Orchestrator struct {
	store     *hub.Hub
	platform  platform.Adapter
	catalog   *catalog.Catalog
	balancer  *balance.Balancer
	roster    roster.Store
	settings  SettingsStore
	recorder  recorder.Recorder
	limits    engine.Limits
	teamSize  int
	algorithm balance.Algorithm
	botDelay  time.Duration
	clock     dice.Clock
	newDice   func() dice.Roller
	log       *zap.Logger

	mu     deadlock.Mutex
	boards map[engine.Key]*board
}

// board is where a session is shown.
type board struct {
	message platform.MessageHandle
	thread  platform.ThreadHandle
	matchID string
	rng     dice.Roller
}

func (b *board) logChannel() string {
	if b.thread.ThreadID != "" {
		return b.thread.ThreadID
	}
	return b.message.ChannelID
}

func New(d Deps) (*Orchestrator, error) {
	if d.Store == nil || d.Platform == nil || d.Catalog == nil || d.Balancer == nil {
		return nil, errors.New("draft: store, platform, catalog and balancer are required")
	}
	if d.Limits == (engine.Limits{}) {
		d.Limits = engine.DefaultLimits()
	}
	if d.TeamSize == 0 {
		d.TeamSize = 5
	}
	if d.Algorithm == "" {
		d.Algorithm = balance.AlgorithmGenetic
	}
	if d.Clock == nil {
		d.Clock = dice.SystemClock
	}
	if d.NewDice == nil {
		d.NewDice = func() dice.Roller { return dice.NewRoller(dice.NewSeed()) }
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	o := &Orchestrator{
		store:     d.Store,
		platform:  d.Platform,
		catalog:   d.Catalog,
		balancer:  d.Balancer,
		roster:    d.Roster,
		settings:  d.Settings,
		recorder:  d.Recorder,
		limits:    d.Limits,
		teamSize:  d.TeamSize,
		algorithm: d.Algorithm,
		botDelay:  d.BotDelay,
		clock:     d.Clock,
		newDice:   d.NewDice,
		log:       d.Log,
		boards:    map[engine.Key]*board{},
	}
	o.platform.RegisterButton(buttonPrefix, o.HandleClick)
	return o, nil
}

// Participant is a player added when a draft starts.
type Participant struct {
	ID   engine.UserID
	Name string
}

type StartRequest struct {
	// TeamSize falls back to the configured size when zero.
	TeamSize int
	Mode     engine.TeamMode
	// Players join immediately, in order. Remaining seats are filled by
	// join clicks.
	Players []Participant
	// Spectate keeps the starter out of a simulation, so bots play every
	// seat.
	Spectate bool
}

// StartDraft opens a session in the context's channel.
func (o *Orchestrator) StartDraft(ctx context.Context, cc CommandContext, req StartRequest) (view engine.View, err error) {
	defer o.recoverPanic("start", &err)
	starter, err := Actor(cc)
	if err != nil {
		return engine.View{}, err
	}
	return o.start(ctx, Key(cc), starter, req, false, req.Players)
}

// StartSimulation opens a session whose empty seats are taken by bots that
// play on their own. The starter plays too unless req.Spectate is set.
func (o *Orchestrator) StartSimulation(ctx context.Context, cc CommandContext, req StartRequest) (view engine.View, err error) {
	defer o.recoverPanic("simulate", &err)
	starter, err := Actor(cc)
	if err != nil {
		return engine.View{}, err
	}
	size := o.sizeOf(req)
	var players []Participant
	if !req.Spectate {
		me := Participant{ID: starter}
		if len(req.Players) > 0 {
			me.Name = req.Players[0].Name
		}
		players = append(players, me)
	}
	bots, err := o.bots(ctx, cc.GuildID(), size*2-len(players), starter)
	if err != nil {
		return engine.View{}, err
	}
	return o.start(ctx, Key(cc), starter, req, true, append(players, bots...))
}

func (o *Orchestrator) sizeOf(req StartRequest) int {
	if req.TeamSize == 0 {
		return o.teamSize
	}
	return req.TeamSize
}

func (o *Orchestrator) start(ctx context.Context, key engine.Key, starter engine.UserID, req StartRequest, simulation bool, players []Participant) (engine.View, error) {
	size := o.sizeOf(req)
	if len(players) > size*2 {
		return engine.View{}, fmt.Errorf("%w: %d players for %d seats", engine.ErrDraftFull, len(players), size*2)
	}
	now := o.clock.Now()
	s, err := engine.NewSession(engine.Options{
		Key:        key,
		TeamSize:   size,
		Catalog:    o.catalog,
		Limits:     o.limits,
		Mode:       req.Mode,
		Simulation: simulation,
		StartedBy:  starter,
	}, now)
	if err != nil {
		return engine.View{}, err
	}

	lb, err := o.store.Create(ctx, s, lobby.Config{
		Env:      engine.Env{Dice: o.newDice(), Clock: o.clock},
		Log:      o.log,
		OnEvents: o.onEvents(key),
	})
	if err != nil {
		return engine.View{}, err
	}
	log := o.log.With(zap.String("session", key.String()), zap.String("draft", s.ID))

	view := s.View()
	b := &board{matchID: view.MatchID, rng: o.newDice()}
	bctx := platform.WithBucket(ctx, bucket(key, view.Phase, "board"))
	b.message, err = o.platform.SendMessage(bctx, key.ChannelID, Board(view))
	if err != nil {
		o.store.Remove(context.WithoutCancel(ctx), key)
		return engine.View{}, fmt.Errorf("post draft message: %w", err)
	}
	b.thread, err = o.platform.CreateThread(bctx, key.ChannelID, "draft "+view.ID[:8])
	if err != nil {
		log.Warn("draft thread not created, logging to the channel", zap.Error(err))
	}
	o.mu.Lock()
	o.boards[key] = b
	o.mu.Unlock()

	log.Info("draft started",
		zap.Int("team_size", size),
		zap.String("mode", string(req.Mode)),
		zap.Bool("simulation", simulation),
		zap.Int64("started_by", int64(starter)))

	for _, p := range players {
		res, err := lb.Send(ctx, engine.Command{
			Type:   engine.CmdJoin,
			Phase:  engine.PhaseWaiting,
			Actor:  p.ID,
			Name:   p.Name,
			Bot:    simulation && p.ID != starter,
		})
		if err == nil {
			err = res.Err
		}
		if err != nil {
			o.teardown(context.WithoutCancel(ctx), key, "Draft could not start.")
			return engine.View{}, fmt.Errorf("add player %d: %w", p.ID, err)
		}
		view = res.View
	}
	return view, nil
}

// bots seats n simulated players, taken from the guild roster first.
func (o *Orchestrator) bots(ctx context.Context, guildID string, n int, skip engine.UserID) ([]Participant, error) {
	var out []Participant
	used := map[engine.UserID]bool{skip: true}
	if o.roster != nil && n > 0 {
		players, err := o.roster.LoadRoster(ctx, guildID)
		if err != nil {
			o.log.Warn("roster unavailable, generating bots", zap.String("guild", guildID), zap.Error(err))
		}
		for _, p := range players {
			if len(out) == n {
				break
			}
			id := engine.UserID(p.UserID)
			if used[id] {
				continue
			}
			used[id] = true
			out = append(out, Participant{ID: id, Name: p.Name})
		}
	}
	for i := engine.UserID(1); len(out) < n; i++ {
		if used[i] {
			continue
		}
		used[i] = true
		out = append(out, Participant{ID: i, Name: fmt.Sprintf("Bot %d", i)})
	}
	return out, nil
}

func (o *Orchestrator) lobby(ctx context.Context, key engine.Key) (*lobby.Lobby, error) {
	lb, err := o.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, ErrNoSession
	}
	return lb, nil
}

func (o *Orchestrator) board(key engine.Key) *board {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.boards[key]
}

// Status is the session's published state.
func (o *Orchestrator) Status(ctx context.Context, key engine.Key) (lobby.View, error) {
	lb, err := o.lobby(ctx, key)
	if err != nil {
		return lobby.View{}, err
	}
	return lb.State(ctx)
}

// Watch subscribes out to the session's snapshots. The lobby sends the
// current state at once and closes out when the session ends or the client
// falls behind. The returned func unsubscribes.
func (o *Orchestrator) Watch(ctx context.Context, key engine.Key, clientID string, out chan lobby.Snapshot) (func(), error) {
	lb, err := o.lobby(ctx, key)
	if err != nil {
		return nil, err
	}
	select {
	case lb.Inbox() <- lobby.Join{ClientID: clientID, Outbox: out}:
	case <-lb.Done():
		return nil, ErrNoSession
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() {
		select {
		case lb.Inbox() <- lobby.Leave{ClientID: clientID}:
		case <-lb.Done():
		}
	}, nil
}

// Sessions lists the keys of every running draft.
func (o *Orchestrator) Sessions(ctx context.Context) ([]engine.Key, error) {
	return o.store.Keys(ctx)
}

// Cancel stops the draft in the context's channel. Only the starter or a
// captain may cancel.
func (o *Orchestrator) Cancel(ctx context.Context, cc CommandContext) (err error) {
	defer o.recoverPanic("cancel", &err)
	actor, err := Actor(cc)
	if err != nil {
		return err
	}
	key := Key(cc)
	lb, err := o.lobby(ctx, key)
	if err != nil {
		return err
	}
	allowed := false
	if err := lb.Read(ctx, func(s *engine.Session) {
		allowed = actor == s.StartedBy || s.IsCaptain(actor)
	}); err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: only the starter or a captain can cancel", engine.ErrPermission)
	}
	return o.teardown(ctx, key, "Draft cancelled.")
}

// ForceCleanup removes whatever is left of a session without asking the
// session first. It is the operator's way out of a stuck draft.
func (o *Orchestrator) ForceCleanup(ctx context.Context, key engine.Key) (err error) {
	defer o.recoverPanic("cleanup", &err)
	return o.teardown(ctx, key, "Draft cleaned up by an operator.")
}

func (o *Orchestrator) teardown(ctx context.Context, key engine.Key, reason string) error {
	removed, err := o.store.Remove(ctx, key)
	if err != nil {
		return err
	}
	o.mu.Lock()
	b := o.boards[key]
	delete(o.boards, key)
	o.mu.Unlock()
	if !removed && b == nil {
		return ErrNoSession
	}

	o.log.Info("draft torn down", zap.String("session", key.String()), zap.String("reason", reason))
	if b == nil {
		o.forget(key, nil)
		return nil
	}
	ctx = platform.WithBucket(ctx, bucket(key, engine.PhaseCompleted, "board"))
	if err := o.platform.EditMessage(ctx, b.message, platform.Content{Text: reason}); err != nil {
		o.log.Warn("could not close draft message", zap.String("session", key.String()), zap.Error(err))
	}
	o.forget(key, b)
	return nil
}

// forget releases what the platform keeps per session. b may be nil.
func (o *Orchestrator) forget(key engine.Key, b *board) {
	if f, ok := o.platform.(interface{ Forget(platform.MessageHandle) }); ok && b != nil {
		f.Forget(b.message)
	}
	if f, ok := o.platform.(interface{ ForgetBuckets(prefix string) }); ok {
		f.ForgetBuckets(bucketPrefix(key))
	}
}

// RecordOutcome stores who won a completed draft's match.
func (o *Orchestrator) RecordOutcome(ctx context.Context, cc CommandContext, matchID string, winner int, score string) (err error) {
	defer o.recoverPanic("outcome", &err)
	if o.recorder == nil {
		return fmt.Errorf("%w: match recording", ErrNotConfigured)
	}
	actor, err := Actor(cc)
	if err != nil {
		return err
	}
	err = o.recorder.WriteOutcome(ctx, recorder.MatchOutcome{
		MatchID:    matchID,
		Winner:     winner,
		Score:      score,
		RecordedBy: int64(actor),
	})
	if err != nil {
		return err
	}
	o.log.Info("match outcome recorded", zap.String("match", matchID), zap.Int("winner", winner))
	return nil
}

// TuneBalancer changes a guild's balancer algorithm, weights or both. Zero
// values keep what is stored.
func (o *Orchestrator) TuneBalancer(ctx context.Context, guildID, algorithm string, weights *balance.Weights) (settings roster.GuildSettings, err error) {
	defer o.recoverPanic("tune", &err)
	if o.settings == nil {
		return roster.GuildSettings{}, fmt.Errorf("%w: balancer settings", ErrNotConfigured)
	}
	settings, _, err = o.settings.Settings(ctx, guildID)
	if err != nil {
		return roster.GuildSettings{}, err
	}
	settings.GuildID = guildID
	if algorithm != "" {
		alg, err := balance.ParseAlgorithm(algorithm)
		if err != nil {
			return roster.GuildSettings{}, err
		}
		settings.Algorithm = alg
	}
	if weights != nil {
		if err := weights.Validate(); err != nil {
			return roster.GuildSettings{}, err
		}
		settings.Weights = weights
	}
	if err := o.settings.SaveSettings(ctx, settings); err != nil {
		return roster.GuildSettings{}, err
	}
	return settings, nil
}

// balanceSettings is what the balancer runs with for guildID.
func (o *Orchestrator) balanceSettings(ctx context.Context, guildID string) (balance.Algorithm, *balance.Weights) {
	if o.settings == nil {
		return o.algorithm, nil
	}
	s, ok, err := o.settings.Settings(ctx, guildID)
	if err != nil {
		o.log.Warn("balancer settings unavailable, using defaults", zap.String("guild", guildID), zap.Error(err))
		return o.algorithm, nil
	}
	if !ok {
		return o.algorithm, nil
	}
	alg := o.algorithm
	if parsed, err := balance.ParseAlgorithm(string(s.Algorithm)); err == nil {
		alg = parsed
	}
	return alg, s.Weights
}

func (o *Orchestrator) recoverPanic(op string, err *error) {
	if r := recover(); r != nil {
		o.log.Error("draft operation panicked", zap.String("op", op), zap.Any("panic", r), zap.Stack("stack"))
		*err = fmt.Errorf("%w: %v", engine.ErrInternal, r)
	}
}

// bucket names the rate-limit bucket for one concern of one session.
func bucket(key engine.Key, phase engine.Phase, concern string) string {
	return bucketPrefix(key) + string(phase) + "|" + concern
}

func bucketPrefix(key engine.Key) string { return key.String() + "|" }
