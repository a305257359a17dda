// Package discord renders drafts on Discord through discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/platform"
)

const (
	promptPrefix   = "pi|"
	buttonsPerRow  = 5
	optionsPerMenu = 25
	menusPerPrompt = 4 // the fifth row holds the cancel button
)

// Adapter implements platform.Adapter on a discordgo session.
type Adapter struct {
	s   *discordgo.Session
	log *zap.Logger

	mu      deadlock.Mutex
	buttons map[string]platform.ButtonHandler
	prompts map[string]chan platform.Selection
}

var _ platform.Adapter = (*Adapter)(nil)

func New(s *discordgo.Session, log *zap.Logger) *Adapter {
	a := &Adapter{
		s:       s,
		log:     log,
		buttons: map[string]platform.ButtonHandler{},
		prompts: map[string]chan platform.Selection{},
	}
	s.AddHandler(a.onInteraction)
	return a
}

func (a *Adapter) SendMessage(ctx context.Context, channelID string, content platform.Content) (platform.MessageHandle, error) {
	m, err := a.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    content.Text,
		Components: buttonRows(content.Buttons),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return platform.MessageHandle{}, classify(err)
	}
	return platform.MessageHandle{ChannelID: m.ChannelID, MessageID: m.ID}, nil
}

func (a *Adapter) EditMessage(ctx context.Context, h platform.MessageHandle, content platform.Content) error {
	edit := discordgo.NewMessageEdit(h.ChannelID, h.MessageID).SetContent(content.Text)
	rows := buttonRows(content.Buttons)
	edit.Components = &rows
	_, err := a.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return classify(err)
}

func (a *Adapter) FetchMessage(ctx context.Context, h platform.MessageHandle) (platform.Content, error) {
	m, err := a.s.ChannelMessage(h.ChannelID, h.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Content{}, classify(err)
	}
	out := platform.Content{Text: m.Content}
	for _, c := range m.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if b, ok := inner.(*discordgo.Button); ok {
				out.Buttons = append(out.Buttons, platform.Button{
					ID:       b.CustomID,
					Label:    b.Label,
					Style:    fromButtonStyle(b.Style),
					Disabled: b.Disabled,
				})
			}
		}
	}
	return out, nil
}

// OpenPrivateInterface sends the prompt as a direct message and blocks until
// the user answers, cancels, or ctx ends.
func (a *Adapter) OpenPrivateInterface(ctx context.Context, userID string, prompt platform.Prompt) (platform.Selection, error) {
	dm, err := a.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Selection{}, classify(err)
	}

	nonce := uuid.NewString()
	answer := make(chan platform.Selection, 1)
	a.mu.Lock()
	a.prompts[nonce] = answer
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.prompts, nonce)
		a.mu.Unlock()
	}()

	msg, err := a.s.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
		Content:    prompt.Title,
		Components: promptRows(nonce, prompt),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Selection{}, classify(err)
	}

	select {
	case sel := <-answer:
		return sel, nil
	case <-ctx.Done():
		// The prompt is stale now; strip its controls.
		edit := discordgo.NewMessageEdit(dm.ID, msg.ID).SetContent(prompt.Title + " (expired)")
		edit.Components = &[]discordgo.MessageComponent{}
		if _, err := a.s.ChannelMessageEditComplex(edit); err != nil {
			a.log.Debug("could not expire prompt", zap.Error(err))
		}
		return platform.Selection{}, ctx.Err()
	}
}

func (a *Adapter) RegisterButton(prefix string, fn platform.ButtonHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buttons[prefix] = fn
}

func (a *Adapter) CreateThread(ctx context.Context, channelID, name string) (platform.ThreadHandle, error) {
	ch, err := a.s.ThreadStart(channelID, name, discordgo.ChannelTypeGuildPublicThread, 60, discordgo.WithContext(ctx))
	if err != nil {
		return platform.ThreadHandle{}, classify(err)
	}
	return platform.ThreadHandle{ParentID: channelID, ThreadID: ch.ID}, nil
}

func (a *Adapter) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	data := i.MessageComponentData()

	if strings.HasPrefix(data.CustomID, promptPrefix) {
		a.answerPrompt(s, i, data)
		return
	}

	handler := a.buttonFor(data.CustomID)
	if handler == nil {
		return
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		a.log.Warn("failed to acknowledge button", zap.String("button", data.CustomID), zap.Error(err))
	}

	user := interactionUser(i)
	click := platform.Click{
		ButtonID:  data.CustomID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Reply: func(ctx context.Context, text string) error {
			_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
				Content: text,
				Flags:   discordgo.MessageFlagsEphemeral,
			}, discordgo.WithContext(ctx))
			return classify(err)
		},
	}
	if user != nil {
		click.UserID = user.ID
		click.UserName = user.Username
		if i.Member != nil && i.Member.Nick != "" {
			click.UserName = i.Member.Nick
		}
	}
	// Handlers may block on private prompts; the gateway loop must not.
	go handler(context.Background(), click)
}

func (a *Adapter) answerPrompt(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.MessageComponentInteractionData) {
	parts := strings.Split(data.CustomID, "|")
	if len(parts) != 3 {
		return
	}
	sel := platform.Selection{Values: data.Values}
	if parts[2] == "cancel" {
		sel = platform.Selection{Cancelled: true}
	}

	a.mu.Lock()
	answer, ok := a.prompts[parts[1]]
	a.mu.Unlock()

	text := "Got it."
	switch {
	case !ok:
		text = "This prompt has expired."
	case sel.Cancelled:
		text = "Cancelled."
	}
	if ok {
		select {
		case answer <- sel:
		default:
		}
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{Content: text, Components: []discordgo.MessageComponent{}},
	})
	if err != nil {
		a.log.Warn("failed to close prompt", zap.Error(err))
	}
}

func (a *Adapter) buttonFor(id string) platform.ButtonHandler {
	a.mu.Lock()
	defer a.mu.Unlock()
	var fn platform.ButtonHandler
	best := -1
	for prefix, h := range a.buttons {
		if strings.HasPrefix(id, prefix) && len(prefix) > best {
			fn, best = h, len(prefix)
		}
	}
	return fn
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func buttonRows(buttons []platform.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += buttonsPerRow {
		var row discordgo.ActionsRow
		for _, b := range buttons[start:min(start+buttonsPerRow, len(buttons))] {
			row.Components = append(row.Components, discordgo.Button{
				CustomID: b.ID,
				Label:    b.Label,
				Style:    toButtonStyle(b.Style),
				Disabled: b.Disabled,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

// promptRows splits long option lists over several select menus.
func promptRows(nonce string, p platform.Prompt) []discordgo.MessageComponent {
	maxValues := max(1, p.Max)
	var rows []discordgo.MessageComponent
	for start, menu := 0, 0; start < len(p.Options) && menu < menusPerPrompt; start, menu = start+optionsPerMenu, menu+1 {
		chunk := p.Options[start:min(start+optionsPerMenu, len(p.Options))]
		opts := make([]discordgo.SelectMenuOption, len(chunk))
		for i, o := range chunk {
			opts[i] = discordgo.SelectMenuOption{Label: o.Label, Value: o.Value, Description: o.Description}
		}
		minValues := 1
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    fmt.Sprintf("%s%s|%d", promptPrefix, nonce, menu),
				Placeholder: fmt.Sprintf("%s (%d-%d)", p.Title, start+1, start+len(chunk)),
				MinValues:   &minValues,
				MaxValues:   min(maxValues, len(chunk)),
				Options:     opts,
			},
		}})
	}
	rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{CustomID: promptPrefix + nonce + "|cancel", Label: "Cancel", Style: discordgo.SecondaryButton},
	}})
	return rows
}

func toButtonStyle(s platform.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case platform.StyleSecondary:
		return discordgo.SecondaryButton
	case platform.StyleSuccess:
		return discordgo.SuccessButton
	case platform.StyleDanger:
		return discordgo.DangerButton
	}
	return discordgo.PrimaryButton
}

func fromButtonStyle(s discordgo.ButtonStyle) platform.ButtonStyle {
	switch s {
	case discordgo.SecondaryButton:
		return platform.StyleSecondary
	case discordgo.SuccessButton:
		return platform.StyleSuccess
	case discordgo.DangerButton:
		return platform.StyleDanger
	}
	return platform.StylePrimary
}

// classify turns discordgo failures into platform.HTTPError so the resilient
// wrapper can tell transient ones apart.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		he := &platform.HTTPError{Status: rest.Response.StatusCode, Err: err}
		if v := rest.Response.Header.Get("Retry-After"); v != "" {
			if secs, perr := strconv.ParseFloat(v, 64); perr == nil {
				he.RetryAfter = time.Duration(secs * float64(time.Second))
			}
		}
		return he
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &platform.HTTPError{Status: http.StatusBadGateway, Err: err}
	}
	return err
}
