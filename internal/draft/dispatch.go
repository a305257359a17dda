package draft

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/dice"
	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/lobby"
	"github.com/DoyleJ11/servant-draft/internal/platform"
)

// promptTimeout bounds a private chooser in phases without a deadline.
const promptTimeout = 5 * time.Minute

// HandleClick turns a draft button press into an intent and answers the
// clicking user privately.
func (o *Orchestrator) HandleClick(ctx context.Context, click platform.Click) {
	reply := func(text string) {
		if click.Reply == nil || text == "" {
			return
		}
		if err := click.Reply(ctx, text); err != nil {
			o.log.Debug("click reply failed", zap.String("user", click.UserID), zap.Error(err))
		}
	}

	in, err := ParseButtonID(click.ButtonID)
	if err != nil {
		o.log.Warn("unreadable draft button", zap.String("button", click.ButtonID), zap.Error(err))
		reply(UserMessage(err))
		return
	}
	in.SessionKey = engine.Key{GuildID: click.GuildID, ChannelID: click.ChannelID}
	in.ActorName = click.UserName
	if in.ActorID, err = ParseUserID(click.UserID); err != nil {
		reply(UserMessage(err))
		return
	}

	text, err := o.Dispatch(ctx, in)
	if err != nil {
		reply(UserMessage(err))
		return
	}
	reply(text)
}

// Dispatch applies one intent. The returned text confirms what happened to
// the acting user.
func (o *Orchestrator) Dispatch(ctx context.Context, in Intent) (text string, err error) {
	defer o.recoverPanic("dispatch", &err)
	lb, err := o.lobby(ctx, in.SessionKey)
	if err != nil {
		return "", err
	}
	log := o.log.With(
		zap.String("session", in.SessionKey.String()),
		zap.Int64("user", int64(in.ActorID)),
		zap.String("action", string(in.Action)))

	cmd := engine.Command{Phase: in.Phase, Round: in.Round, Actor: in.ActorID}
	switch in.Action {
	case ActionJoin:
		cmd.Type, cmd.Name = engine.CmdJoin, in.ActorName
		text = "You joined the draft."
	case ActionLeave:
		cmd.Type = engine.CmdLeave
		text = "You left the draft."
	case ActionVote:
		cmd.Type = engine.CmdVoteCaptain
		if cmd.Target, err = ParseUserID(in.Payload); err != nil {
			return "", err
		}
		text = "Vote updated."
	case ActionBan:
		if in.Payload == "" {
			return o.chooseBan(ctx, lb, in, log)
		}
		cmd.Type, cmd.Character = engine.CmdBanCharacter, in.Payload
		text = "Ban locked in."
	case ActionSelect:
		if in.Payload == "" {
			return o.chooseCharacter(ctx, lb, in, log)
		}
		cmd.Type, cmd.Character = engine.CmdSelectCharacter, in.Payload
		text = "Character staged. Press Confirm to lock it in."
	case ActionRandom:
		return o.randomCharacter(ctx, lb, in, log)
	case ActionConfirm:
		cmd.Type = engine.CmdConfirmSelection
		text = "Character locked in."
	case ActionMode:
		cmd.Type, cmd.Mode = engine.CmdChooseTeamMode, engine.TeamMode(in.Payload)
		text = "Team mode set."
	case ActionPick:
		if in.Payload == "" {
			return o.choosePicks(ctx, lb, in, log)
		}
		cmd.Type = engine.CmdStagePick
		if cmd.Target, err = ParseUserID(in.Payload); err != nil {
			return "", err
		}
		text = "Pick updated. Press Confirm picks when you are done."
	case ActionConfirmPicks:
		cmd.Type = engine.CmdConfirmPicks
		text = "Picks confirmed."
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, in.Action)
	}

	if _, err := o.apply(ctx, lb, cmd, log); err != nil {
		return "", err
	}
	return text, nil
}

func (o *Orchestrator) apply(ctx context.Context, lb *lobby.Lobby, cmd engine.Command, log *zap.Logger) (lobby.Result, error) {
	res, err := lb.Send(ctx, cmd)
	if err == nil {
		err = res.Err
	}
	if err != nil {
		log.Debug("command rejected", zap.String("command", string(cmd.Type)), zap.Error(err))
		return res, err
	}
	return res, nil
}

// prompt opens a private chooser that closes when the phase would.
func (o *Orchestrator) prompt(ctx context.Context, in Intent, deadline time.Time, p platform.Prompt) (platform.Selection, error) {
	until := o.clock.Now().Add(promptTimeout)
	if !deadline.IsZero() && deadline.Before(until) {
		until = deadline
	}
	ctx, cancel := context.WithTimeout(ctx, until.Sub(o.clock.Now()))
	defer cancel()
	ctx = platform.WithBucket(ctx, bucket(in.SessionKey, in.Phase, "prompt"))
	sel, err := o.platform.OpenPrivateInterface(ctx, strconv.FormatInt(int64(in.ActorID), 10), p)
	if err != nil {
		return platform.Selection{}, err
	}
	if sel.Cancelled || len(sel.Values) == 0 {
		return platform.Selection{}, platform.ErrPromptCancelled
	}
	return sel, nil
}

// pinned rejects a chooser opened from a message rendered for an earlier
// phase or round.
func pinned(in Intent, phase engine.Phase, round int) error {
	if (in.Phase != "" && in.Phase != phase) || (in.Round != 0 && in.Round != round) {
		return fmt.Errorf("%w: that menu was for %s", engine.ErrStalePhase, in.Phase.Label())
	}
	return nil
}

func characterOptions(names []string) []platform.Option {
	out := make([]platform.Option, len(names))
	for i, c := range names {
		out[i] = platform.Option{Value: c, Label: c}
	}
	return out
}

func (o *Orchestrator) chooseBan(ctx context.Context, lb *lobby.Lobby, in Intent, log *zap.Logger) (string, error) {
	var options []string
	var phase engine.Phase
	var round int
	var optErr error
	if err := lb.Read(ctx, func(s *engine.Session) {
		phase, round = s.Phase, s.ReselectionRound
		options, optErr = s.BanOptions(in.ActorID)
	}); err != nil {
		return "", err
	}
	if optErr != nil {
		return "", optErr
	}
	if err := pinned(in, phase, round); err != nil {
		return "", err
	}
	in.Phase = phase
	sel, err := o.prompt(ctx, in, time.Time{}, platform.Prompt{Title: "Ban one character", Options: characterOptions(options)})
	if err != nil {
		return "", err
	}
	cmd := engine.Command{Type: engine.CmdBanCharacter, Phase: phase, Actor: in.ActorID, Character: sel.Values[0]}
	if _, err := o.apply(ctx, lb, cmd, log); err != nil {
		return "", err
	}
	return fmt.Sprintf("You banned %s.", sel.Values[0]), nil
}

func (o *Orchestrator) chooseCharacter(ctx context.Context, lb *lobby.Lobby, in Intent, log *zap.Logger) (string, error) {
	var options []string
	var phase engine.Phase
	var round int
	var deadline time.Time
	var optErr error
	if err := lb.Read(ctx, func(s *engine.Session) {
		phase, round, deadline = s.Phase, s.ReselectionRound, s.Deadline()
		options, optErr = s.SelectionOptions(in.ActorID)
	}); err != nil {
		return "", err
	}
	if optErr != nil {
		return "", optErr
	}
	if err := pinned(in, phase, round); err != nil {
		return "", err
	}
	in.Phase = phase
	sel, err := o.prompt(ctx, in, deadline, platform.Prompt{Title: "Choose your character", Options: characterOptions(options)})
	if err != nil {
		return "", err
	}
	cmd := engine.Command{Type: engine.CmdSelectCharacter, Phase: phase, Round: round, Actor: in.ActorID, Character: sel.Values[0]}
	if _, err := o.apply(ctx, lb, cmd, log); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s staged. Press Confirm to lock it in.", sel.Values[0]), nil
}

// randomCharacter stages a uniformly random character from the actor's pool.
func (o *Orchestrator) randomCharacter(ctx context.Context, lb *lobby.Lobby, in Intent, log *zap.Logger) (string, error) {
	var options []string
	var phase engine.Phase
	var round int
	var optErr error
	if err := lb.Read(ctx, func(s *engine.Session) {
		phase, round = s.Phase, s.ReselectionRound
		options, optErr = s.SelectionOptions(in.ActorID)
	}); err != nil {
		return "", err
	}
	if optErr != nil {
		return "", optErr
	}
	if err := pinned(in, phase, round); err != nil {
		return "", err
	}
	rng := o.newDice()
	if b := o.board(in.SessionKey); b != nil {
		rng = b.rng
	}
	c, ok := dice.Choice(rng, options)
	if !ok {
		return "", fmt.Errorf("%w: no character left to draw", engine.ErrUnavailable)
	}
	cmd := engine.Command{Type: engine.CmdSelectCharacter, Phase: phase, Round: round, Actor: in.ActorID, Character: c}
	if _, err := o.apply(ctx, lb, cmd, log); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s staged at random. Press Confirm to lock it in.", c), nil
}

func (o *Orchestrator) choosePicks(ctx context.Context, lb *lobby.Lobby, in Intent, log *zap.Logger) (string, error) {
	var options []platform.Option
	var phase engine.Phase
	var room, round int
	var optErr error
	if err := lb.Read(ctx, func(s *engine.Session) {
		phase, round = s.Phase, s.ReselectionRound
		var ids []engine.UserID
		if ids, optErr = s.PickOptions(in.ActorID); optErr != nil {
			return
		}
		room = s.Owes(in.ActorID) - len(s.Pending[in.ActorID])
		for _, id := range ids {
			if slices.Contains(s.Pending[in.ActorID], id) {
				continue
			}
			p := s.Players[id]
			options = append(options, platform.Option{
				Value:       strconv.FormatInt(int64(id), 10),
				Label:       p.Name,
				Description: p.Character,
			})
		}
	}); err != nil {
		return "", err
	}
	if optErr != nil {
		return "", optErr
	}
	if room <= 0 {
		return "", fmt.Errorf("%w: every pick this round is staged, confirm or unstage one", engine.ErrQuotaViolation)
	}
	if err := pinned(in, phase, round); err != nil {
		return "", err
	}
	in.Phase = phase
	sel, err := o.prompt(ctx, in, time.Time{}, platform.Prompt{Title: fmt.Sprintf("Pick up to %d players", room), Options: options, Max: room})
	if err != nil {
		return "", err
	}
	for _, v := range sel.Values {
		target, err := ParseUserID(v)
		if err != nil {
			return "", err
		}
		cmd := engine.Command{Type: engine.CmdStagePick, Phase: phase, Actor: in.ActorID, Target: target}
		if _, err := o.apply(ctx, lb, cmd, log); err != nil {
			return "", err
		}
	}
	return "Picks staged. Press Confirm picks when you are done.", nil
}
