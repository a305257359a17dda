package bot

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/draft"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/roster"
)

const commandName = "draft"

var weightOptions = []struct {
	name, description string
	set               func(w *balance.Weights, v float64)
}{
	{"skill", "Weight of rating balance", func(w *balance.Weights, v float64) { w.Skill = v }},
	{"synergy", "Weight of character synergy", func(w *balance.Weights, v float64) { w.Synergy = v }},
	{"role", "Weight of role coverage", func(w *balance.Weights, v float64) { w.Role = v }},
	{"tier", "Weight of character tier balance", func(w *balance.Weights, v float64) { w.Tier = v }},
	{"comfort", "Weight of character proficiency", func(w *balance.Weights, v float64) { w.Comfort = v }},
	{"meta", "Weight of meta strength", func(w *balance.Weights, v float64) { w.Meta = v }},
}

func teamSizeChoices() []*discordgo.ApplicationCommandOptionChoice {
	var sizes []int
	for size := range engine.PickOrder {
		sizes = append(sizes, size)
	}
	slices.Sort(sizes)
	out := make([]*discordgo.ApplicationCommandOptionChoice, len(sizes))
	for i, size := range sizes {
		out[i] = &discordgo.ApplicationCommandOptionChoice{Name: fmt.Sprintf("%dv%d", size, size), Value: size}
	}
	return out
}

func modeChoices() []*discordgo.ApplicationCommandOptionChoice {
	return []*discordgo.ApplicationCommandOptionChoice{
		{Name: "Captains pick", Value: string(engine.ModeManual)},
		{Name: "Auto balance", Value: string(engine.ModeAuto)},
	}
}

func algorithmChoices() []*discordgo.ApplicationCommandOptionChoice {
	return []*discordgo.ApplicationCommandOptionChoice{
		{Name: "Simple", Value: string(balance.AlgorithmSimple)},
		{Name: "Monte Carlo", Value: string(balance.AlgorithmMonteCarlo)},
		{Name: "Genetic", Value: string(balance.AlgorithmGenetic)},
	}
}

// Slash command definitions
func commandDefinitions() []*discordgo.ApplicationCommand {
	teamSize := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "team_size",
		Description: "Players per team",
		Choices:     teamSizeChoices(),
	}
	mode := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "mode",
		Description: "How teams are formed; captains decide when left out",
		Choices:     modeChoices(),
	}

	tune := []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "algorithm",
		Description: "Balancing algorithm",
		Choices:     algorithmChoices(),
	}}
	zero := 0.0
	for _, w := range weightOptions {
		tune = append(tune, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionNumber,
			Name:        w.name,
			Description: w.description,
			MinValue:    &zero,
			MaxValue:    1,
		})
	}

	return []*discordgo.ApplicationCommand{{
		Name:        commandName,
		Description: "Run a servant draft in this channel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Open a draft; players join with the button",
				Options:     []*discordgo.ApplicationCommandOption{teamSize, mode},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "simulate",
				Description: "Open a draft where bots fill every empty seat",
				Options: []*discordgo.ApplicationCommandOption{teamSize, mode, {
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "spectate",
					Description: "Watch instead of playing",
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show the draft running in this channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "cancel",
				Description: "Cancel the draft (starter or captains)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "cleanup",
				Description: "Clear stuck draft state in this channel (admins)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "outcome",
				Description: "Record who won a drafted match",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "match_id",
						Description: "Match id from the finished draft",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "winner",
						Description: "Winning team",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "Team 1", Value: 1},
							{Name: "Team 2", Value: 2},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "score",
						Description: "Final score, e.g. 3-1",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "tune",
				Description: "Change how this server's teams are balanced (admins)",
				Options:     tune,
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "rating",
				Description: "Set a player's rating for balancing (admins)",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "player",
						Description: "Who to rate",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionNumber,
						Name:        "rating",
						Description: "Rating, 1000 is average",
						Required:    true,
						MinValue:    &zero,
					},
				},
			},
		},
	}}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands(ctx context.Context) error {
	defs := commandDefinitions()
	registered := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, cmd := range defs {
		c, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.guildID, cmd, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registered = append(registered, c)
	}
	b.commands = registered
	b.log.Info("slash commands registered", zap.Int("count", len(registered)), zap.String("guild", b.guildID))
	return nil
}

func (b *Bot) removeCommands() {
	if b.session.State == nil || b.session.State.User == nil {
		return
	}
	for _, cmd := range b.commands {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.guildID, cmd.ID); err != nil {
			b.log.Warn("failed to remove command", zap.String("name", cmd.Name), zap.Error(err))
		}
	}
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	out := options{}
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

func (o options) text(name string) string {
	if opt, ok := o[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (o options) integer(name string) int {
	if opt, ok := o[name]; ok {
		return int(opt.IntValue())
	}
	return 0
}

func (o options) number(name string) (float64, bool) {
	if opt, ok := o[name]; ok {
		return opt.FloatValue(), true
	}
	return 0, false
}

func (o options) flag(name string) bool {
	if opt, ok := o[name]; ok {
		return opt.BoolValue()
	}
	return false
}

// request is one /draft subcommand, detached from the gateway event.
type request struct {
	name  string
	opts  options
	admin bool
	users *discordgo.ApplicationCommandInteractionDataResolved
}

var errAdminOnly = fmt.Errorf("%w: needs the Manage Server permission", engine.ErrPermission)

// run executes a subcommand and returns the reply for the invoking user.
func (b *Bot) run(ctx context.Context, cc draft.CommandContext, req request) string {
	text, err := b.exec(ctx, cc, req)
	if err != nil {
		b.log.Debug("command failed", zap.String("command", req.name), zap.Error(err))
		return draft.UserMessage(err)
	}
	return text
}

func (b *Bot) exec(ctx context.Context, cc draft.CommandContext, req request) (string, error) {
	switch req.name {
	case "start":
		start := draft.StartRequest{TeamSize: req.opts.integer("team_size"), Mode: engine.TeamMode(req.opts.text("mode"))}
		v, err := b.orch.StartDraft(ctx, cc, start)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Draft started for %dv%d. Players join with the button on the draft message.", v.TeamSize, v.TeamSize), nil

	case "simulate":
		start := draft.StartRequest{
			TeamSize: req.opts.integer("team_size"),
			Mode:     engine.TeamMode(req.opts.text("mode")),
			Spectate: req.opts.flag("spectate"),
		}
		v, err := b.orch.StartSimulation(ctx, cc, start)
		if err != nil {
			return "", err
		}
		bots := 0
		for _, p := range v.Players {
			if p.Bot {
				bots++
			}
		}
		return fmt.Sprintf("Simulation started with %d bots.", bots), nil

	case "status":
		st, err := b.orch.Status(ctx, draft.Key(cc))
		if err != nil {
			return "", err
		}
		return statusText(st.Session, st.Version, st.NumClients), nil

	case "cancel":
		if err := b.orch.Cancel(ctx, cc); err != nil {
			return "", err
		}
		return "Draft cancelled.", nil

	case "cleanup":
		if !req.admin {
			return "", errAdminOnly
		}
		if err := b.orch.ForceCleanup(ctx, draft.Key(cc)); err != nil {
			return "", err
		}
		return "Draft state cleared for this channel.", nil

	case "outcome":
		matchID := strings.TrimSpace(req.opts.text("match_id"))
		if err := b.orch.RecordOutcome(ctx, cc, matchID, req.opts.integer("winner"), req.opts.text("score")); err != nil {
			return "", err
		}
		return fmt.Sprintf("Recorded a Team %d win for match `%s`.", req.opts.integer("winner"), matchID), nil

	case "tune":
		if !req.admin {
			return "", errAdminOnly
		}
		return b.tune(ctx, cc, req.opts)

	case "rating":
		if !req.admin {
			return "", errAdminOnly
		}
		return b.rate(ctx, cc, req)
	}
	return "", fmt.Errorf("%w: %q", draft.ErrUnknownAction, req.name)
}

func (b *Bot) tune(ctx context.Context, cc draft.CommandContext, opts options) (string, error) {
	var weights *balance.Weights
	for _, w := range weightOptions {
		v, ok := opts.number(w.name)
		if !ok {
			continue
		}
		if weights == nil {
			base := b.weights
			weights = &base
		}
		w.set(weights, v)
	}
	settings, err := b.orch.TuneBalancer(ctx, cc.GuildID(), opts.text("algorithm"), weights)
	if err != nil {
		return "", err
	}
	alg := string(settings.Algorithm)
	if alg == "" {
		alg = "the default algorithm"
	}
	text := "Balancing now uses " + alg
	if settings.Weights != nil {
		w := settings.Weights
		text += fmt.Sprintf(" with weights skill %.2f, synergy %.2f, role %.2f, tier %.2f, comfort %.2f, meta %.2f",
			w.Skill, w.Synergy, w.Role, w.Tier, w.Comfort, w.Meta)
	}
	return text + ".", nil
}

func (b *Bot) rate(ctx context.Context, cc draft.CommandContext, req request) (string, error) {
	if b.roster == nil {
		return "", fmt.Errorf("%w: roster", draft.ErrNotConfigured)
	}
	opt, ok := req.opts["player"]
	if !ok {
		return "", fmt.Errorf("%w: no player given", engine.ErrUnknownPlayer)
	}
	userID, _ := opt.Value.(string)
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", engine.ErrUnknownPlayer, userID)
	}
	name := userID
	if req.users != nil {
		if u, ok := req.users.Users[userID]; ok {
			name = u.Username
		}
	}
	rating, _ := req.opts.number("rating")
	if err := b.roster.Upsert(ctx, roster.Player{GuildID: cc.GuildID(), UserID: id, Name: name, Rating: &rating}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s is now rated %.0f.", name, rating), nil
}

func statusText(v engine.View, version, watchers int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %d/%d players", v.Phase.Label(), len(v.Players), v.TeamSize*2)
	if v.Simulation {
		b.WriteString(", simulation")
	}
	if len(v.Captains) > 0 {
		names := make([]string, 0, len(v.Captains))
		for _, id := range v.Captains {
			for _, p := range v.Players {
				if p.ID == id {
					names = append(names, p.Name)
				}
			}
		}
		fmt.Fprintf(&b, ", captains %s", strings.Join(names, " and "))
	}
	fmt.Fprintf(&b, " (update %d, %d watching)", version, watchers)
	return b.String()
}
