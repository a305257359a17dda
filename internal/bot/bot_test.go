package bot

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/draft"
	"github.com/DoyleJ11/servant-draft/internal/draft/drafttest"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/roster"
)

type memStore struct {
	mu       sync.Mutex
	players  []roster.Player
	settings map[string]roster.GuildSettings
}

func (m *memStore) LoadRoster(context.Context, string) ([]roster.Player, error) { return nil, nil }

func (m *memStore) Upsert(_ context.Context, p roster.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players = append(m.players, p)
	return nil
}

func (m *memStore) Settings(_ context.Context, guildID string) (roster.GuildSettings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[guildID]
	return s, ok, nil
}

func (m *memStore) SaveSettings(_ context.Context, s roster.GuildSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.GuildID] = s
	return nil
}

func newBot(t *testing.T) (*Bot, *memStore) {
	t.Helper()
	store := &memStore{settings: map[string]roster.GuildSettings{}}
	env := drafttest.New(t, func(d *draft.Deps) { d.Settings = store })
	return &Bot{orch: env.Orchestrator, roster: store, weights: balance.DefaultWeights(), log: zap.NewNop()}, store
}

func opt(name string, typ discordgo.ApplicationCommandOptionType, v any) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: typ, Value: v}
}

func req(name string, admin bool, opts ...*discordgo.ApplicationCommandInteractionDataOption) request {
	return request{name: name, opts: optionsOf(opts), admin: admin}
}

func TestDraftCommands(t *testing.T) {
	b, _ := newBot(t)
	ctx := context.Background()
	starter := &drafttest.Context{Guild: "g1", Channel: "c1", User: "10"}
	stranger := &drafttest.Context{Guild: "g1", Channel: "c1", User: "11"}

	assert.Equal(t, "There is no draft running in this channel. Start one and try again.",
		b.run(ctx, starter, req("status", false)))

	reply := b.run(ctx, starter, req("start", false,
		opt("team_size", discordgo.ApplicationCommandOptionInteger, float64(3)),
		opt("mode", discordgo.ApplicationCommandOptionString, "manual")))
	assert.Equal(t, "Draft started for 3v3. Players join with the button on the draft message.", reply)

	assert.Equal(t, "Waiting for players, 0/6 players (update 0, 0 watching)", b.run(ctx, starter, req("status", false)))

	reply = b.run(ctx, starter, req("start", false))
	assert.Contains(t, reply, "already running")

	_, err := b.exec(ctx, stranger, req("cancel", false))
	assert.ErrorIs(t, err, engine.ErrPermission)

	_, err = b.exec(ctx, stranger, req("cleanup", false))
	assert.ErrorIs(t, err, engine.ErrPermission)

	assert.Equal(t, "Draft cancelled.", b.run(ctx, starter, req("cancel", false)))
	_, err = b.exec(ctx, starter, req("cleanup", true))
	assert.ErrorIs(t, err, draft.ErrNoSession)
}

func TestSimulateCommand(t *testing.T) {
	b, _ := newBot(t)
	cc := &drafttest.Context{Guild: "g1", Channel: "c2", User: "10"}
	reply := b.run(context.Background(), cc, req("simulate", false,
		opt("spectate", discordgo.ApplicationCommandOptionBoolean, true)))
	assert.Equal(t, "Simulation started with 4 bots.", reply)
}

func TestAdminCommands(t *testing.T) {
	b, store := newBot(t)
	ctx := context.Background()
	cc := &drafttest.Context{Guild: "g1", Channel: "c1", User: "10"}

	_, err := b.exec(ctx, cc, req("tune", false, opt("algorithm", discordgo.ApplicationCommandOptionString, "simple")))
	assert.ErrorIs(t, err, engine.ErrPermission)

	reply, err := b.exec(ctx, cc, req("tune", true, opt("algorithm", discordgo.ApplicationCommandOptionString, "simple")))
	require.NoError(t, err)
	assert.Equal(t, "Balancing now uses simple.", reply)
	assert.Equal(t, balance.AlgorithmSimple, store.settings["g1"].Algorithm)

	// One weight on its own unbalances the defaults.
	_, err = b.exec(ctx, cc, req("tune", true, opt("skill", discordgo.ApplicationCommandOptionNumber, 0.9)))
	assert.ErrorIs(t, err, balance.ErrInvalidWeights)

	reply, err = b.exec(ctx, cc, req("tune", true,
		opt("skill", discordgo.ApplicationCommandOptionNumber, 0.4),
		opt("synergy", discordgo.ApplicationCommandOptionNumber, 0.15)))
	require.NoError(t, err)
	assert.Contains(t, reply, "skill 0.40, synergy 0.15")

	r := req("rating", true,
		opt("player", discordgo.ApplicationCommandOptionUser, "77"),
		opt("rating", discordgo.ApplicationCommandOptionNumber, 1250.0))
	r.users = &discordgo.ApplicationCommandInteractionDataResolved{Users: map[string]*discordgo.User{"77": {ID: "77", Username: "rin"}}}
	reply, err = b.exec(ctx, cc, r)
	require.NoError(t, err)
	assert.Equal(t, "rin is now rated 1250.", reply)
	require.Len(t, store.players, 1)
	assert.Equal(t, int64(77), store.players[0].UserID)
	assert.Equal(t, 1250.0, *store.players[0].Rating)

	_, err = b.exec(ctx, cc, req("outcome", false,
		opt("match_id", discordgo.ApplicationCommandOptionString, "m1"),
		opt("winner", discordgo.ApplicationCommandOptionInteger, float64(1))))
	assert.ErrorIs(t, err, draft.ErrNotConfigured)

	_, err = b.exec(ctx, cc, req("dance", true))
	assert.ErrorIs(t, err, draft.ErrUnknownAction)
}

func TestCommandDefinitions(t *testing.T) {
	defs := commandDefinitions()
	require.Len(t, defs, 1)
	var names []string
	for _, o := range defs[0].Options {
		names = append(names, o.Name)
		assert.LessOrEqual(t, len(o.Options), 25)
	}
	assert.Equal(t, []string{"start", "simulate", "status", "cancel", "cleanup", "outcome", "tune", "rating"}, names)

	var sizes []any
	for _, c := range teamSizeChoices() {
		sizes = append(sizes, c.Value)
	}
	assert.Equal(t, []any{2, 3, 5, 6}, sizes)
}
