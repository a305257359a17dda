package draft

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/catalog"
	"github.com/DoyleJ11/servant-draft/internal/dice"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/hub"
	"github.com/DoyleJ11/servant-draft/internal/platform"
	"github.com/DoyleJ11/servant-draft/internal/recorder"
	"github.com/DoyleJ11/servant-draft/internal/roster"
)

type commandContext struct {
	guild, channel, user string
}

func (c commandContext) GuildID() string   { return c.guild }
func (c commandContext) ChannelID() string { return c.channel }
func (c commandContext) UserID() string    { return c.user }
func (c commandContext) Respond(context.Context, string) error {
	return nil
}

type memRecorder struct {
	mu       sync.Mutex
	prematch []recorder.MatchRecord
	outcomes []recorder.MatchOutcome
}

func (r *memRecorder) WritePrematch(_ context.Context, rec recorder.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prematch = append(r.prematch, rec)
	return nil
}

func (r *memRecorder) WriteOutcome(_ context.Context, out recorder.MatchOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.prematch {
		if rec.MatchID == out.MatchID {
			r.outcomes = append(r.outcomes, out)
			return nil
		}
	}
	return recorder.ErrUnknownMatch
}

func (r *memRecorder) records() []recorder.MatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorder.MatchRecord(nil), r.prematch...)
}

type memSettings struct {
	byGuild map[string]roster.GuildSettings
}

func (m *memSettings) Settings(_ context.Context, guildID string) (roster.GuildSettings, bool, error) {
	s, ok := m.byGuild[guildID]
	return s, ok, nil
}

func (m *memSettings) SaveSettings(_ context.Context, s roster.GuildSettings) error {
	m.byGuild[s.GuildID] = s
	return nil
}

type fixture struct {
	o   *Orchestrator
	hub *hub.Hub
	mem *platform.Memory
	rec *memRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	bal, err := balance.New(balance.DefaultSettings(), nil, zap.NewNop())
	require.NoError(t, err)

	h := hub.NewHub(context.Background())
	t.Cleanup(h.Shutdown)
	mem := platform.NewMemory()
	rec := &memRecorder{}

	var seedMu sync.Mutex
	seed := int64(0)
	o, err := New(Deps{
		Store:    h,
		Platform: mem,
		Catalog:  cat,
		Balancer: bal,
		Recorder: rec,
		TeamSize: 2,
		Clock:    dice.NewManualClock(time.Unix(1_700_000_000, 0)),
		NewDice: func() dice.Roller {
			seedMu.Lock()
			defer seedMu.Unlock()
			seed++
			return dice.NewRoller(seed)
		},
		Log: zap.NewNop(),
	})
	require.NoError(t, err)
	return fixture{o: o, hub: h, mem: mem, rec: rec}
}

var owner = commandContext{guild: "g1", channel: "c1", user: "42"}

func fourPlayers() []Participant {
	return []Participant{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}, {ID: 4, Name: "d"}}
}

func TestSimulationRunsToCompletion(t *testing.T) {
	tests := []struct {
		name string
		mode engine.TeamMode
	}{
		{"captains pick", engine.ModeManual},
		{"auto balance", engine.ModeAuto},
		{"bots choose the mode", engine.ModeUnset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			view, err := f.o.StartSimulation(ctx, owner, StartRequest{Mode: tt.mode, Spectate: true})
			require.NoError(t, err)
			assert.True(t, view.Simulation)

			require.Eventually(t, func() bool { return len(f.rec.records()) == 1 }, 5*time.Second, 10*time.Millisecond)
			require.Eventually(t, func() bool {
				keys, err := f.o.Sessions(ctx)
				return err == nil && len(keys) == 0
			}, 5*time.Second, 10*time.Millisecond)

			got := f.rec.records()[0]
			assert.Equal(t, view.MatchID, got.MatchID)
			assert.Len(t, got.Team1, 2)
			assert.Len(t, got.Team2, 2)
			assert.Len(t, got.Captains, 2)
			if tt.mode == engine.ModeAuto {
				assert.Equal(t, string(balance.AlgorithmGenetic), got.Algorithm)
				require.NotNil(t, got.PredictedScore)
			}
			seen := map[string]bool{}
			for _, p := range append(got.Team1, got.Team2...) {
				assert.True(t, p.Bot)
				assert.False(t, seen[p.Character], "character %s confirmed twice", p.Character)
				seen[p.Character] = true
			}

			_, err = f.o.Status(ctx, Key(owner))
			assert.ErrorIs(t, err, ErrNoSession)
			assert.NotEmpty(t, f.mem.Threads())
		})
	}
}

func TestStartDraftWithPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.o.StartDraft(ctx, owner, StartRequest{Players: fourPlayers()})
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseCaptainVoting, view.Phase)
	assert.Len(t, view.Players, 4)

	_, err = f.o.StartDraft(ctx, owner, StartRequest{})
	assert.ErrorIs(t, err, ErrSessionExists)

	other := commandContext{guild: "g1", channel: "c2", user: "42"}
	_, err = f.o.StartDraft(ctx, other, StartRequest{TeamSize: 4})
	assert.ErrorIs(t, err, engine.ErrInvalidTeamSize)
	_, err = f.o.StartDraft(ctx, other, StartRequest{Players: append(fourPlayers(), Participant{ID: 5})})
	assert.ErrorIs(t, err, engine.ErrDraftFull)
}

func TestDispatchVotesAndPrivateBan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.Answer = func(_ string, p platform.Prompt) platform.Selection {
		return platform.Selection{Values: []string{p.Options[0].Value}}
	}
	_, err := f.o.StartDraft(ctx, owner, StartRequest{Players: fourPlayers()})
	require.NoError(t, err)
	key := Key(owner)

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 9, Action: ActionVote, Payload: "1"})
	assert.ErrorIs(t, err, engine.ErrUnknownPlayer)

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 1, Action: ActionBan})
	assert.ErrorIs(t, err, engine.ErrStalePhase)

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 1, Action: "dance"})
	assert.ErrorIs(t, err, ErrUnknownAction)

	for voter := engine.UserID(1); voter <= 4; voter++ {
		for _, target := range []string{"1", "2"} {
			text, err := f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: voter, Action: ActionVote, Phase: engine.PhaseCaptainVoting, Payload: target})
			require.NoError(t, err)
			assert.Equal(t, "Vote updated.", text)
		}
	}

	status, err := f.o.Status(ctx, key)
	require.NoError(t, err)
	require.Equal(t, engine.PhaseServantBan, status.Session.Phase)
	assert.ElementsMatch(t, []engine.UserID{1, 2}, status.Session.Captains)
	first := status.Session.CurrentBanner

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 3, Action: ActionBan, Phase: engine.PhaseServantBan})
	assert.ErrorIs(t, err, engine.ErrPermission)

	text, err := f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: first, Action: ActionBan, Phase: engine.PhaseServantBan})
	require.NoError(t, err)
	assert.Contains(t, text, "You banned")

	prompts := f.mem.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, strconv.FormatInt(int64(first), 10), prompts[0].UserID)
	assert.Equal(t, "Ban one character", prompts[0].Prompt.Title)

	status, err = f.o.Status(ctx, key)
	require.NoError(t, err)
	assert.NotEqual(t, first, status.Session.CurrentBanner)

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: first, Action: ActionBan})
	assert.ErrorIs(t, err, engine.ErrQuotaViolation)

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: status.Session.CurrentBanner, Action: ActionBan, Phase: engine.PhaseCaptainVoting})
	assert.ErrorIs(t, err, engine.ErrStalePhase)
}

func TestCancelledPromptChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.o.StartDraft(ctx, owner, StartRequest{Players: fourPlayers()})
	require.NoError(t, err)
	key := Key(owner)
	for voter := engine.UserID(1); voter <= 4; voter++ {
		for _, target := range []string{"1", "2"} {
			_, err := f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: voter, Action: ActionVote, Payload: target})
			require.NoError(t, err)
		}
	}
	status, err := f.o.Status(ctx, key)
	require.NoError(t, err)

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: status.Session.CurrentBanner, Action: ActionBan})
	assert.ErrorIs(t, err, platform.ErrPromptCancelled)

	after, err := f.o.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, status.Version, after.Version)
}

func TestButtonClicks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.o.StartDraft(ctx, owner, StartRequest{})
	require.NoError(t, err)

	var replies []string
	click := platform.Click{
		ButtonID:  ButtonID(Intent{Action: ActionJoin, Phase: engine.PhaseWaiting}),
		UserID:    "7",
		UserName:  "neo",
		GuildID:   "g1",
		ChannelID: "c1",
		Reply: func(_ context.Context, text string) error {
			replies = append(replies, text)
			return nil
		},
	}
	require.True(t, f.mem.Click(ctx, click))
	require.True(t, f.mem.Click(ctx, click))
	require.Len(t, replies, 2)
	assert.Equal(t, "You joined the draft.", replies[0])
	assert.Equal(t, UserMessage(engine.ErrQuotaViolation), replies[1])

	require.Eventually(t, func() bool {
		msgs := f.mem.Messages("c1")
		return len(msgs) > 0 && len(msgs[0].Buttons) == 2 && strings.Contains(msgs[0].Text, "neo")
	}, 2*time.Second, 10*time.Millisecond)

	click.ButtonID = "draft|join|x|0|"
	require.True(t, f.mem.Click(ctx, click))
	require.Len(t, replies, 3)
	assert.Equal(t, "Something went wrong. Try again.", replies[2])
}

func TestCancelAndCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.o.StartDraft(ctx, owner, StartRequest{})
	require.NoError(t, err)

	stranger := commandContext{guild: "g1", channel: "c1", user: "43"}
	assert.ErrorIs(t, f.o.Cancel(ctx, stranger), engine.ErrPermission)
	require.NoError(t, f.o.Cancel(ctx, owner))

	msgs := f.mem.Messages("c1")
	require.NotEmpty(t, msgs)
	assert.Equal(t, "Draft cancelled.", msgs[0].Text)
	assert.Empty(t, msgs[0].Buttons)

	_, err = f.o.Status(ctx, Key(owner))
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, f.o.ForceCleanup(ctx, Key(owner)), ErrNoSession)

	_, err = f.o.StartDraft(ctx, owner, StartRequest{})
	require.NoError(t, err)
	require.NoError(t, f.o.ForceCleanup(ctx, Key(owner)))
}

type bucketSpy struct {
	*platform.Memory
	mu        sync.Mutex
	forgotten []string
}

func (b *bucketSpy) ForgetBuckets(prefix string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forgotten = append(b.forgotten, prefix)
}

func TestTeardownReleasesRateBuckets(t *testing.T) {
	f := newFixture(t)
	spy := &bucketSpy{Memory: f.mem}
	o, err := New(Deps{Store: f.hub, Platform: spy, Catalog: f.o.catalog, Balancer: f.o.balancer, TeamSize: 2, Log: zap.NewNop()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = o.StartDraft(ctx, commandContext{guild: "g1", channel: "c9", user: "42"}, StartRequest{})
	require.NoError(t, err)
	require.NoError(t, o.ForceCleanup(ctx, engine.Key{GuildID: "g1", ChannelID: "c9"}))
	assert.Equal(t, []string{"g1:c9|"}, spy.forgotten)
	assert.True(t, strings.HasPrefix(bucket(engine.Key{GuildID: "g1", ChannelID: "c9"}, engine.PhaseWaiting, "board"), spy.forgotten[0]))
}

func TestStartFailsWhenBoardCannotBePosted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.FailNext(&platform.HTTPError{Status: 403})

	_, err := f.o.StartDraft(ctx, owner, StartRequest{})
	require.Error(t, err)

	keys, err := f.o.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRecordOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.rec.WritePrematch(ctx, recorder.MatchRecord{MatchID: "m1"}))

	require.NoError(t, f.o.RecordOutcome(ctx, owner, "m1", 2, "3-1"))
	assert.ErrorIs(t, f.o.RecordOutcome(ctx, owner, "nope", 1, ""), recorder.ErrUnknownMatch)
	require.Len(t, f.rec.outcomes, 1)
	assert.Equal(t, int64(42), f.rec.outcomes[0].RecordedBy)

	f.o.recorder = nil
	assert.ErrorIs(t, f.o.RecordOutcome(ctx, owner, "m1", 1, ""), ErrNotConfigured)
}

func TestTuneBalancer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.o.TuneBalancer(ctx, "g1", "simple", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	store := &memSettings{byGuild: map[string]roster.GuildSettings{}}
	f.o.settings = store

	_, err = f.o.TuneBalancer(ctx, "g1", "annealing", nil)
	assert.ErrorIs(t, err, balance.ErrUnknownAlgorithm)
	bad := balance.Weights{Skill: 1, Synergy: 1}
	_, err = f.o.TuneBalancer(ctx, "g1", "", &bad)
	assert.ErrorIs(t, err, balance.ErrInvalidWeights)

	_, err = f.o.TuneBalancer(ctx, "g1", "monte_carlo", nil)
	require.NoError(t, err)
	w := balance.DefaultWeights()
	got, err := f.o.TuneBalancer(ctx, "g1", "", &w)
	require.NoError(t, err)
	assert.Equal(t, balance.AlgorithmMonteCarlo, got.Algorithm)

	alg, weights := f.o.balanceSettings(ctx, "g1")
	assert.Equal(t, balance.AlgorithmMonteCarlo, alg)
	assert.Equal(t, &w, weights)

	alg, weights = f.o.balanceSettings(ctx, "other")
	assert.Equal(t, balance.AlgorithmGenetic, alg)
	assert.Nil(t, weights)
}

func TestBotMovesDuringVote(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	s, err := engine.NewSession(engine.Options{TeamSize: 2, Catalog: cat}, time.Now())
	require.NoError(t, err)
	env := engine.Env{Dice: dice.NewRoller(1), Clock: dice.NewManualClock(time.Now())}
	for id := engine.UserID(1); id <= 4; id++ {
		_, err := engine.Apply(s, engine.Command{Type: engine.CmdJoin, Actor: id, Bot: id != 1}, env)
		require.NoError(t, err)
	}
	require.Equal(t, engine.PhaseCaptainVoting, s.Phase)

	moves := BotMoves(s, dice.NewRoller(2))
	require.Len(t, moves, 6)
	perBot := map[engine.UserID]int{}
	for _, m := range moves {
		assert.Equal(t, engine.CmdVoteCaptain, m.Type)
		assert.NotEqual(t, m.Actor, m.Target)
		assert.NotEqual(t, engine.UserID(1), m.Actor)
		perBot[m.Actor]++
	}
	assert.Equal(t, map[engine.UserID]int{2: 2, 3: 2, 4: 2}, perBot)
}

func TestRandomCharacter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.Answer = func(_ string, p platform.Prompt) platform.Selection {
		return platform.Selection{Values: []string{p.Options[0].Value}}
	}
	_, err := f.o.StartDraft(ctx, owner, StartRequest{Players: fourPlayers()})
	require.NoError(t, err)
	key := Key(owner)

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 3, Action: ActionRandom})
	assert.ErrorIs(t, err, engine.ErrStalePhase)

	for voter := engine.UserID(1); voter <= 4; voter++ {
		for _, target := range []string{"1", "2"} {
			_, err := f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: voter, Action: ActionVote, Payload: target})
			require.NoError(t, err)
		}
	}
	for range 2 {
		status, err := f.o.Status(ctx, key)
		require.NoError(t, err)
		_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: status.Session.CurrentBanner, Action: ActionBan})
		require.NoError(t, err)
	}
	status, err := f.o.Status(ctx, key)
	require.NoError(t, err)
	require.Equal(t, engine.PhaseServantSelection, status.Session.Phase)

	text, err := f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 3, Action: ActionRandom, Phase: engine.PhaseServantSelection})
	require.NoError(t, err)
	assert.Contains(t, text, "staged at random")

	lb, err := f.hub.Get(ctx, key)
	require.NoError(t, err)
	var staged string
	var banned bool
	require.NoError(t, lb.Read(ctx, func(s *engine.Session) {
		staged = s.Selections[3]
		banned = s.Banned[staged]
	}))
	assert.NotEmpty(t, staged)
	assert.False(t, banned)
	assert.Contains(t, text, staged)
	assert.Len(t, f.mem.Prompts(), 2, "only the two ban choosers were opened")

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 9, Action: ActionRandom})
	assert.ErrorIs(t, err, engine.ErrUnknownPlayer)
	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 4, Action: ActionRandom, Phase: engine.PhaseServantBan})
	assert.ErrorIs(t, err, engine.ErrStalePhase)

	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 3, Action: ActionConfirm})
	require.NoError(t, err)
	_, err = f.o.Dispatch(ctx, Intent{SessionKey: key, ActorID: 3, Action: ActionRandom})
	assert.ErrorIs(t, err, engine.ErrQuotaViolation)
}
