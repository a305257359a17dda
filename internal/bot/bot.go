// Package bot exposes drafts as Discord slash commands. Draft buttons and
// private choosers are handled by the platform adapter on the same session.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/draft"
	"github.com/DoyleJ11/servant-draft/internal/roster"
)

const commandTimeout = 30 * time.Second

type Bot struct {
	session  *discordgo.Session
	orch     *draft.Orchestrator
	roster   roster.Store
	weights  balance.Weights
	guildID  string
	log      *zap.Logger
	commands []*discordgo.ApplicationCommand
}

type Config struct {
	// GuildID scopes slash commands to one guild. Empty registers them
	// globally, which Discord takes up to an hour to roll out.
	GuildID string
	// Roster is optional; /draft rating needs it.
	Roster roster.Store
	// Weights fill in the weights a /draft tune leaves out.
	Weights balance.Weights
	Log     *zap.Logger
}

func New(s *discordgo.Session, o *draft.Orchestrator, cfg Config) *Bot {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	b := &Bot{
		session: s,
		orch:    o,
		roster:  cfg.Roster,
		weights: cfg.Weights,
		guildID: cfg.GuildID,
		log:     cfg.Log,
	}
	b.registerHandlers()
	return b
}

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	b.log.Info("connected to Discord", zap.String("user", b.session.State.User.Username))
	if err := b.registerCommands(ctx); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	return nil
}

// Stop removes the slash commands and closes the connection.
func (b *Bot) Stop() error {
	b.removeCommands()
	return b.session.Close()
}

func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.log.Info("bot is ready", zap.Int("guilds", len(r.Guilds)))
	})
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != commandName || len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	log := b.log.With(zap.String("command", sub.Name), zap.String("guild", i.GuildID), zap.String("channel", i.ChannelID))
	log.Debug("received command")

	// Respond immediately to avoid the three second interaction timeout.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		log.Warn("failed to acknowledge command", zap.Error(err))
		return
	}

	cc := newInteractionContext(s, i)
	req := request{
		name:  sub.Name,
		opts:  optionsOf(sub.Options),
		admin: isAdmin(i),
		users: data.Resolved,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := cc.Respond(ctx, b.run(ctx, cc, req)); err != nil {
			log.Warn("failed to edit command response", zap.Error(err))
		}
	}()
}

func isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&(discordgo.PermissionManageServer|discordgo.PermissionAdministrator) != 0
}

// interactionContext answers by editing the deferred response.
type interactionContext struct {
	s    *discordgo.Session
	i    *discordgo.Interaction
	user string
}

func newInteractionContext(s *discordgo.Session, i *discordgo.InteractionCreate) *interactionContext {
	cc := &interactionContext{s: s, i: i.Interaction}
	switch {
	case i.Member != nil && i.Member.User != nil:
		cc.user = i.Member.User.ID
	case i.User != nil:
		cc.user = i.User.ID
	}
	return cc
}

func (c *interactionContext) GuildID() string   { return c.i.GuildID }
func (c *interactionContext) ChannelID() string { return c.i.ChannelID }
func (c *interactionContext) UserID() string    { return c.user }

func (c *interactionContext) Respond(ctx context.Context, text string) error {
	_, err := c.s.InteractionResponseEdit(c.i, &discordgo.WebhookEdit{Content: &text}, discordgo.WithContext(ctx))
	return err
}
