package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/DoyleJ11/servant-draft/internal/dice"
)

func (s *Session) startSelection(env Env) []Event {
	ev := s.transition(PhaseServantSelection)
	s.Selections = map[UserID]string{}
	s.SelectionDone = map[UserID]bool{}
	s.SelectionStartedAt = env.now()
	return []Event{ev, {Type: EvtTimerStarted, Phase: s.Phase, Duration: s.Limits.Selection}}
}

// SelectionOptions is the list a selector's private interface shows.
func (s *Session) SelectionOptions(actor UserID) ([]string, error) {
	if !s.Phase.Selecting() {
		return nil, fmt.Errorf("%w: selection is closed", ErrStalePhase)
	}
	if err := s.checkSelector(actor); err != nil {
		return nil, err
	}
	return s.AvailableCharacters(), nil
}

func (s *Session) checkSelector(actor UserID) error {
	if _, err := s.requireMember(actor); err != nil {
		return err
	}
	if _, ok := s.Confirmed[actor]; ok {
		return fmt.Errorf("%w: your character is already locked in", ErrPermission)
	}
	if s.SelectionDone[actor] {
		return fmt.Errorf("%w: selection already confirmed", ErrQuotaViolation)
	}
	return nil
}

func (s *Session) stageSelection(cmd Command) ([]Event, error) {
	if err := s.checkRound(cmd); err != nil {
		return nil, err
	}
	if err := s.checkSelector(cmd.Actor); err != nil {
		return nil, err
	}
	c, ok := s.Catalog.Lookup(cmd.Character)
	if !ok || !s.selectable(c) {
		return nil, fmt.Errorf("%w: %q", ErrUnavailable, cmd.Character)
	}
	s.Selections[cmd.Actor] = c
	return []Event{{Type: EvtSelectionStaged, Phase: s.Phase, Actor: cmd.Actor, Character: c, Round: s.ReselectionRound}}, nil
}

// confirmSelection latches actor's staged choice. Confirming twice is a no-op.
func (s *Session) confirmSelection(cmd Command, env Env) ([]Event, error) {
	if err := s.checkRound(cmd); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(cmd.Actor); err != nil {
		return nil, err
	}
	if _, ok := s.Confirmed[cmd.Actor]; ok {
		return nil, fmt.Errorf("%w: your character is already locked in", ErrPermission)
	}
	if s.SelectionDone[cmd.Actor] {
		return nil, nil
	}
	if s.Selections[cmd.Actor] == "" {
		return nil, fmt.Errorf("%w: choose a character first", ErrQuotaViolation)
	}

	s.SelectionDone[cmd.Actor] = true
	events := []Event{{Type: EvtSelectionConfirmed, Phase: s.Phase, Actor: cmd.Actor, Round: s.ReselectionRound}}

	for _, id := range s.Selectors() {
		if !s.SelectionDone[id] {
			return events, nil
		}
	}
	return append(events, s.resolveSelections(env)...), nil
}

func (s *Session) checkRound(cmd Command) error {
	if cmd.Round != 0 && cmd.Round != s.ReselectionRound {
		return fmt.Errorf("%w: reselection round %d is over", ErrStalePhase, cmd.Round)
	}
	return nil
}

// selectionTimeout gives every unconfirmed selector a random remaining
// character, avoiding ones already claimed this round, then resolves.
func (s *Session) selectionTimeout(env Env) []Event {
	claimed := map[string]bool{}
	for id, done := range s.SelectionDone {
		if done {
			claimed[s.Selections[id]] = true
		}
	}

	var events []Event
	for _, id := range s.Selectors() {
		if s.SelectionDone[id] {
			continue
		}
		available := s.AvailableCharacters()
		pool := slices.DeleteFunc(slices.Clone(available), func(c string) bool { return claimed[c] })
		c, ok := dice.Choice(env.Dice, pool)
		if !ok {
			c, _ = dice.Choice(env.Dice, available)
		}
		claimed[c] = true
		s.Selections[id] = c
		s.SelectionDone[id] = true
		events = append(events, Event{Type: EvtAutoAssigned, Phase: s.Phase, Actor: id, Character: c, Round: s.ReselectionRound})
	}
	return append(events, s.resolveSelections(env)...)
}

// resolveSelections reveals the round. Uncontested picks are confirmed,
// contested ones go to a dice-off whose losers reselect.
func (s *Session) resolveSelections(env Env) []Event {
	selectors := s.Selectors()
	byCharacter := map[string][]UserID{}
	revealed := map[UserID]string{}
	for _, id := range selectors {
		c := s.Selections[id]
		revealed[id] = c
		byCharacter[c] = append(byCharacter[c], id)
	}

	events := []Event{{Type: EvtSelectionsRevealed, Phase: s.Phase, Picks: revealed, Round: s.ReselectionRound}}
	s.Conflicts = map[string][]UserID{}

	var losers []UserID
	for _, c := range slices.Sorted(maps.Keys(byCharacter)) {
		ids := byCharacter[c]
		if len(ids) == 1 {
			s.confirm(ids[0], c)
			continue
		}
		res := dice.RollOff(env.Dice, ids, s.Limits.RerollAttempts)
		s.confirm(res.Winner, c)
		lost := res.Losers()
		s.Conflicts[c] = lost
		losers = append(losers, lost...)
		events = append(events, Event{
			Type:      EvtConflictResolved,
			Phase:     s.Phase,
			Character: c,
			Target:    res.Winner,
			Users:     slices.Clone(ids),
			Rolls:     res.Rolls,
			Round:     s.ReselectionRound,
		})
		if res.Fallback {
			events = append(events, Event{
				Type:      EvtLivenessGuard,
				Phase:     s.Phase,
				Character: c,
				Target:    res.Winner,
				Users:     slices.Clone(ids),
				Detail:    fmt.Sprintf("dice tied %d times, lowest user id wins", res.Attempts),
			})
		}
	}
	for _, id := range losers {
		delete(s.Selections, id)
		delete(s.SelectionDone, id)
	}

	if len(losers) == 0 {
		return append(events, s.startTeamSelection(env)...)
	}
	slices.Sort(losers)

	if s.ReselectionRound >= s.Limits.ReselectionCap {
		events = append(events, Event{
			Type:   EvtLivenessGuard,
			Phase:  s.Phase,
			Users:  slices.Clone(losers),
			Round:  s.ReselectionRound,
			Detail: fmt.Sprintf("reselection cap %d reached, assigning remaining characters", s.Limits.ReselectionCap),
		})
		for _, id := range losers {
			c, ok := dice.Choice(env.Dice, s.AvailableCharacters())
			if !ok {
				continue
			}
			s.confirm(id, c)
			events = append(events, Event{Type: EvtAutoAssigned, Phase: s.Phase, Actor: id, Character: c, Round: s.ReselectionRound})
		}
		s.Conflicts = map[string][]UserID{}
		return append(events, s.startTeamSelection(env)...)
	}

	return append(events, s.startReselection(env, losers)...)
}

func (s *Session) confirm(id UserID, c string) {
	s.Confirmed[id] = c
	s.Players[id].Character = c
	delete(s.Selections, id)
}

func (s *Session) startReselection(env Env, losers []UserID) []Event {
	var events []Event
	if s.Phase == PhaseServantSelection {
		events = append(events, s.transition(PhaseServantReselection))
	}
	s.ReselectionRound++
	s.SelectionStartedAt = env.now()

	if !s.hasConfirmedDetection() {
		var withdrawn []string
		for _, c := range s.Catalog.Cloaking() {
			if s.selectable(c) {
				s.Banned[c] = true
				withdrawn = append(withdrawn, c)
			}
		}
		if len(withdrawn) > 0 {
			s.Withdrawn = append(s.Withdrawn, withdrawn...)
			events = append(events, Event{Type: EvtCloakingWithdrawn, Phase: s.Phase, Characters: withdrawn, Round: s.ReselectionRound})
		}
	}

	return append(events,
		Event{Type: EvtReselectionStarted, Phase: s.Phase, Users: losers, Round: s.ReselectionRound},
		Event{Type: EvtTimerStarted, Phase: s.Phase, Duration: s.Limits.Reselection, Round: s.ReselectionRound},
	)
}
