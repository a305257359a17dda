package draft

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/dice"
	"github.com/DoyleJ11/servant-draft/internal/engine"
)

// autopilot plays every bot move the live session is waiting for. Moves are
// decided from the session itself, not the snapshot, so a backlog of
// snapshots never plays a move twice.
func (o *Orchestrator) autopilot(ctx context.Context, key engine.Key, b *board, log *zap.Logger) {
	lb, err := o.lobby(ctx, key)
	if err != nil {
		return
	}
	var moves []engine.Command
	if err := lb.Read(ctx, func(s *engine.Session) { moves = BotMoves(s, b.rng) }); err != nil {
		return
	}
	for _, cmd := range moves {
		if o.botDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-o.clock.After(o.botDelay):
			}
		}
		res, err := lb.Send(ctx, cmd)
		if err != nil {
			return
		}
		if res.Err != nil {
			log.Debug("bot move rejected", zap.String("command", string(cmd.Type)), zap.Int64("bot", int64(cmd.Actor)), zap.Error(res.Err))
		}
	}
}

// BotMoves lists what the session's bots would do next. Every move is a
// random legal choice.
func BotMoves(s *engine.Session, rng dice.Roller) []engine.Command {
	bot := func(id engine.UserID) bool {
		p, ok := s.Players[id]
		return ok && p.Bot
	}
	var out []engine.Command
	switch s.Phase {
	case engine.PhaseCaptainVoting:
		for _, id := range s.PlayerIDs() {
			if !bot(id) {
				continue
			}
			ballot := s.Votes[id]
			candidates := slices.DeleteFunc(s.PlayerIDs(), func(c engine.UserID) bool { return c == id || ballot[c] })
			for _, target := range dice.Sample(rng, candidates, engine.VotesPerMember-len(ballot)) {
				out = append(out, engine.Command{Type: engine.CmdVoteCaptain, Phase: s.Phase, Actor: id, Target: target})
			}
		}

	case engine.PhaseServantBan:
		banner := s.CurrentBanner()
		if !bot(banner) {
			break
		}
		options, err := s.BanOptions(banner)
		if err != nil {
			break
		}
		if c, ok := dice.Choice(rng, options); ok {
			out = append(out, engine.Command{Type: engine.CmdBanCharacter, Phase: s.Phase, Actor: banner, Character: c})
		}

	case engine.PhaseServantSelection, engine.PhaseServantReselection:
		for _, id := range s.Selectors() {
			if !bot(id) || s.SelectionDone[id] {
				continue
			}
			options, err := s.SelectionOptions(id)
			if err != nil {
				continue
			}
			c, ok := dice.Choice(rng, options)
			if !ok {
				continue
			}
			out = append(out,
				engine.Command{Type: engine.CmdSelectCharacter, Phase: s.Phase, Round: s.ReselectionRound, Actor: id, Character: c},
				engine.Command{Type: engine.CmdConfirmSelection, Phase: s.Phase, Round: s.ReselectionRound, Actor: id})
		}

	case engine.PhaseTeamSelection:
		if s.Mode == engine.ModeUnset {
			if len(s.Captains) > 0 && !slices.ContainsFunc(s.Captains, func(id engine.UserID) bool { return !bot(id) }) {
				out = append(out, engine.Command{Type: engine.CmdChooseTeamMode, Phase: s.Phase, Actor: s.Captains[0], Mode: engine.ModeManual})
			}
			break
		}
		picker := s.CurrentPicker
		if s.Mode != engine.ModeManual || !bot(picker) {
			break
		}
		options, err := s.PickOptions(picker)
		if err != nil {
			break
		}
		staged := s.Pending[picker]
		options = slices.DeleteFunc(options, func(id engine.UserID) bool { return slices.Contains(staged, id) })
		for _, target := range dice.Sample(rng, options, s.Owes(picker)-len(staged)) {
			out = append(out, engine.Command{Type: engine.CmdStagePick, Phase: s.Phase, Actor: picker, Target: target})
		}
		out = append(out, engine.Command{Type: engine.CmdConfirmPicks, Phase: s.Phase, Actor: picker})
	}
	return out
}
