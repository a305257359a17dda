package engine

import (
	"fmt"
	"slices"

	"github.com/DoyleJ11/servant-draft/internal/catalog"
	"github.com/DoyleJ11/servant-draft/internal/dice"
)

func (s *Session) startBanPhase(env Env) []Event {
	events := []Event{s.transition(PhaseServantBan)}

	// One system ban per tier. A character listed in several tiers can only
	// be drawn once since the banned set is consulted every time.
	s.SystemBans = nil
	for _, tier := range catalog.BanTiers {
		var pool []string
		for _, c := range s.Catalog.Tier(tier) {
			if !s.Banned[c] {
				pool = append(pool, c)
			}
		}
		if c, ok := dice.Choice(env.Dice, pool); ok {
			s.Banned[c] = true
			s.SystemBans = append(s.SystemBans, c)
		}
	}
	events = append(events, Event{Type: EvtSystemBans, Phase: s.Phase, Characters: slices.Clone(s.SystemBans)})

	order, rolls := dice.Order(env.Dice, s.Captains, s.Limits.RerollAttempts)
	s.BanOrder = order
	s.BanRolls = rolls
	s.BanTurn = 0
	events = append(events,
		Event{Type: EvtBanOrderRolled, Phase: s.Phase, Users: slices.Clone(order), Rolls: rolls},
		Event{Type: EvtTurnAdvanced, Phase: s.Phase, Actor: s.CurrentBanner()},
	)
	return events
}

// BanOptions is what actor may ban right now. Only the captain whose turn it
// is can (re)open the ban interface.
func (s *Session) BanOptions(actor UserID) ([]string, error) {
	if s.Phase != PhaseServantBan {
		return nil, fmt.Errorf("%w: bans are closed", ErrStalePhase)
	}
	if err := s.requireCaptain(actor); err != nil {
		return nil, err
	}
	if _, done := s.CaptainBans[actor]; done {
		return nil, fmt.Errorf("%w: ban already confirmed", ErrQuotaViolation)
	}
	if s.CurrentBanner() != actor {
		return nil, fmt.Errorf("%w: not your turn to ban", ErrPermission)
	}
	return s.AvailableCharacters(), nil
}

func (s *Session) ban(cmd Command, env Env) ([]Event, error) {
	if _, err := s.BanOptions(cmd.Actor); err != nil {
		return nil, err
	}
	c, ok := s.Catalog.Lookup(cmd.Character)
	if !ok || s.Banned[c] {
		return nil, fmt.Errorf("%w: %q", ErrUnavailable, cmd.Character)
	}

	s.Banned[c] = true
	s.CaptainBans[cmd.Actor] = c
	s.BanTurn++

	events := []Event{{Type: EvtCharacterBanned, Phase: s.Phase, Actor: cmd.Actor, Character: c}}
	if s.BanTurn < len(s.BanOrder) {
		return append(events, Event{Type: EvtTurnAdvanced, Phase: s.Phase, Actor: s.CurrentBanner()}), nil
	}

	revealed := slices.Clone(s.SystemBans)
	for _, id := range s.BanOrder {
		revealed = append(revealed, s.CaptainBans[id])
	}
	events = append(events, Event{Type: EvtBansRevealed, Phase: s.Phase, Characters: revealed})
	return append(events, s.startSelection(env)...), nil
}
