package engine

import (
	"fmt"
	"slices"

	"github.com/DoyleJ11/servant-draft/internal/dice"
)

func (s *Session) startTeamSelection(env Env) []Event {
	events := []Event{s.transition(PhaseTeamSelection)}
	switch s.Mode {
	case ModeManual:
		return append(events, s.startManualPicks(env)...)
	case ModeAuto:
		return append(events, Event{Type: EvtTeamModeChosen, Phase: s.Phase, Mode: ModeAuto})
	default:
		return append(events, Event{Type: EvtAwaitingTeamMode, Phase: s.Phase, Users: slices.Clone(s.Captains)})
	}
}

func (s *Session) chooseTeamMode(cmd Command, env Env) ([]Event, error) {
	if s.Mode != ModeUnset {
		return nil, fmt.Errorf("%w: team mode already chosen", ErrQuotaViolation)
	}
	if !s.IsCaptain(cmd.Actor) && cmd.Actor != s.StartedBy {
		return nil, fmt.Errorf("%w: only captains choose how teams are formed", ErrPermission)
	}
	if cmd.Mode != ModeManual && cmd.Mode != ModeAuto {
		return nil, fmt.Errorf("%w: team mode %q", ErrUnsupportedCommand, cmd.Mode)
	}

	s.Mode = cmd.Mode
	events := []Event{{Type: EvtTeamModeChosen, Phase: s.Phase, Actor: cmd.Actor, Mode: cmd.Mode}}
	if cmd.Mode == ModeManual {
		events = append(events, s.startManualPicks(env)...)
	}
	return events, nil
}

func (s *Session) startManualPicks(env Env) []Event {
	order, rolls := dice.Order(env.Dice, s.Captains, s.Limits.RerollAttempts)
	s.FirstPick = order[0]
	s.FirstPickRolls = rolls
	s.Round = 1
	s.PicksThisRound = map[UserID]int{}
	s.Pending = map[UserID][]UserID{}
	s.RoundDone = map[UserID]map[int]bool{}
	s.CurrentPicker = s.nextPicker()

	return []Event{
		{Type: EvtFirstPickRolled, Phase: s.Phase, Actor: s.FirstPick, Rolls: rolls},
		{Type: EvtTurnAdvanced, Phase: s.Phase, Actor: s.CurrentPicker, Round: s.Round},
	}
}

// nextPicker prefers the first-pick captain and otherwise whoever still owes
// picks this round.
func (s *Session) nextPicker() UserID {
	if s.Owes(s.FirstPick) > 0 {
		return s.FirstPick
	}
	if other := s.otherCaptain(s.FirstPick); s.Owes(other) > 0 {
		return other
	}
	return 0
}

func (s *Session) checkPicker(actor UserID) error {
	if s.Mode != ModeManual {
		return fmt.Errorf("%w: teams are not being picked by captains", ErrStalePhase)
	}
	if err := s.requireCaptain(actor); err != nil {
		return err
	}
	if s.CurrentPicker != actor {
		return fmt.Errorf("%w: not your turn to pick", ErrPermission)
	}
	return nil
}

// PickOptions lists the players actor may stage right now.
func (s *Session) PickOptions(actor UserID) ([]UserID, error) {
	if s.Phase != PhaseTeamSelection {
		return nil, fmt.Errorf("%w: team selection is closed", ErrStalePhase)
	}
	if err := s.checkPicker(actor); err != nil {
		return nil, err
	}
	var out []UserID
	for _, id := range s.PlayerIDs() {
		if s.Players[id].Team == TeamNone && !s.stagedByOther(actor, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Session) stagedByOther(actor, target UserID) bool {
	for captain, staged := range s.Pending {
		if captain != actor && slices.Contains(staged, target) {
			return true
		}
	}
	return false
}

// stagePick toggles target in actor's pending picks.
func (s *Session) stagePick(cmd Command) ([]Event, error) {
	if err := s.checkPicker(cmd.Actor); err != nil {
		return nil, err
	}
	target, ok := s.Players[cmd.Target]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, cmd.Target)
	}

	staged := s.Pending[cmd.Actor]
	if i := slices.Index(staged, cmd.Target); i >= 0 {
		s.Pending[cmd.Actor] = slices.Delete(staged, i, i+1)
		return []Event{{Type: EvtPickUnstaged, Phase: s.Phase, Actor: cmd.Actor, Target: cmd.Target, Round: s.Round}}, nil
	}
	if target.Team != TeamNone || s.stagedByOther(cmd.Actor, cmd.Target) {
		return nil, fmt.Errorf("%w: %s is already taken", ErrQuotaViolation, target.Name)
	}
	if owes := s.Owes(cmd.Actor); len(staged) >= owes {
		return nil, fmt.Errorf("%w: you can pick %d this round", ErrQuotaViolation, owes)
	}
	s.Pending[cmd.Actor] = append(staged, cmd.Target)
	return []Event{{Type: EvtPickStaged, Phase: s.Phase, Actor: cmd.Actor, Target: cmd.Target, Round: s.Round}}, nil
}

// confirmPicks commits the staged batch, which must fill the round's quota.
func (s *Session) confirmPicks(cmd Command, env Env) ([]Event, error) {
	if err := s.checkPicker(cmd.Actor); err != nil {
		return nil, err
	}
	staged := s.Pending[cmd.Actor]
	if owes := s.Owes(cmd.Actor); len(staged) != owes {
		return nil, fmt.Errorf("%w: staged %d of %d picks", ErrQuotaViolation, len(staged), owes)
	}

	team := s.TeamOf(cmd.Actor)
	var events []Event
	for _, id := range staged {
		s.Players[id].Team = team
		events = append(events, Event{Type: EvtPlayerPicked, Phase: s.Phase, Actor: cmd.Actor, Target: id, Team: team, Round: s.Round})
	}
	s.PicksThisRound[cmd.Actor] += len(staged)
	if s.RoundDone[cmd.Actor] == nil {
		s.RoundDone[cmd.Actor] = map[int]bool{}
	}
	s.RoundDone[cmd.Actor][s.Round] = true
	delete(s.Pending, cmd.Actor)

	if s.AssignedCount() == s.RosterSize() {
		s.CurrentPicker = 0
		return append(events, s.complete(env)...), nil
	}

	next := s.nextPicker()
	for next == 0 && s.Round < len(PickOrder[s.TeamSize]) {
		s.Round++
		s.PicksThisRound = map[UserID]int{}
		next = s.nextPicker()
	}
	if next == 0 {
		// Pattern exhausted with players left over. Cannot happen with the
		// built-in tables; place leftovers on the smaller team.
		for _, id := range s.PlayerIDs() {
			if p := s.Players[id]; p.Team == TeamNone {
				p.Team = s.smallerTeam()
				events = append(events, Event{Type: EvtPlayerPicked, Phase: s.Phase, Target: id, Team: p.Team, Round: s.Round})
			}
		}
		s.CurrentPicker = 0
		return append(events, s.complete(env)...), nil
	}
	s.CurrentPicker = next
	return append(events, Event{Type: EvtTurnAdvanced, Phase: s.Phase, Actor: next, Round: s.Round}), nil
}

func (s *Session) smallerTeam() Team {
	if len(s.TeamMembers(Team2)) < len(s.TeamMembers(Team1)) {
		return Team2
	}
	return Team1
}

// applySplit takes a finished automatic split. Every roster member must be
// placed exactly once and no team may exceed the team size.
func (s *Session) applySplit(cmd Command, env Env) ([]Event, error) {
	if s.Mode != ModeAuto {
		return nil, fmt.Errorf("%w: teams are picked by captains", ErrStalePhase)
	}
	if len(cmd.Team1) > s.TeamSize || len(cmd.Team2) > s.TeamSize {
		return nil, fmt.Errorf("%w: team larger than %d", ErrQuotaViolation, s.TeamSize)
	}
	placed := map[UserID]Team{}
	for team, ids := range map[Team][]UserID{Team1: cmd.Team1, Team2: cmd.Team2} {
		for _, id := range ids {
			if _, ok := s.Players[id]; !ok {
				return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
			}
			if _, dup := placed[id]; dup {
				return nil, fmt.Errorf("%w: %d placed twice", ErrQuotaViolation, id)
			}
			placed[id] = team
		}
	}
	if len(placed) != len(s.Players) {
		return nil, fmt.Errorf("%w: split places %d of %d players", ErrQuotaViolation, len(placed), len(s.Players))
	}

	events := []Event{}
	for _, id := range s.PlayerIDs() {
		s.Players[id].Team = placed[id]
		events = append(events, Event{Type: EvtPlayerPicked, Phase: s.Phase, Target: id, Team: placed[id]})
	}
	s.Balance = cmd.Balance
	return append(events, s.complete(env)...), nil
}
