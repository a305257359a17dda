package engine

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/DoyleJ11/servant-draft/internal/dice"
)

const VotesPerMember = 2

func (s *Session) startCaptainVote(env Env) []Event {
	ev := s.transition(PhaseCaptainVoting)
	s.Votes = map[UserID]map[UserID]bool{}
	s.VoteStartedAt = env.now()
	return []Event{ev, {Type: EvtTimerStarted, Phase: PhaseCaptainVoting, Duration: s.Limits.CaptainVote}}
}

// vote toggles actor's vote for target.
func (s *Session) vote(cmd Command, env Env) ([]Event, error) {
	if _, err := s.requireMember(cmd.Actor); err != nil {
		return nil, err
	}
	if _, ok := s.Players[cmd.Target]; !ok {
		return nil, fmt.Errorf("%w: candidate %d", ErrUnknownPlayer, cmd.Target)
	}

	ballot := s.Votes[cmd.Actor]
	if ballot[cmd.Target] {
		delete(ballot, cmd.Target)
		return []Event{{Type: EvtVoteRemoved, Phase: s.Phase, Actor: cmd.Actor, Target: cmd.Target}}, nil
	}
	if len(ballot) >= VotesPerMember {
		return nil, fmt.Errorf("%w: at most %d votes", ErrQuotaViolation, VotesPerMember)
	}
	if ballot == nil {
		ballot = map[UserID]bool{}
		s.Votes[cmd.Actor] = ballot
	}
	ballot[cmd.Target] = true

	events := []Event{{Type: EvtVoteCast, Phase: s.Phase, Actor: cmd.Actor, Target: cmd.Target}}
	if s.everyoneVoted() {
		events = append(events, s.electCaptains(env, "votes")...)
	}
	return events, nil
}

func (s *Session) everyoneVoted() bool {
	for id := range s.Players {
		if len(s.Votes[id]) != VotesPerMember {
			return false
		}
	}
	return true
}

// Tally counts votes per candidate.
func (s *Session) Tally() map[UserID]int {
	tally := map[UserID]int{}
	for _, ballot := range s.Votes {
		for id := range ballot {
			tally[id]++
		}
	}
	return tally
}

// electCaptains takes the two highest vote totals. A tier of equal totals
// that does not fit is sampled uniformly; empty slots are filled from the
// rest of the roster.
func (s *Session) electCaptains(env Env, reason string) []Event {
	tally := s.Tally()
	ranked := make([]UserID, 0, len(tally))
	for id, n := range tally {
		if n > 0 {
			ranked = append(ranked, id)
		}
	}
	slices.SortFunc(ranked, func(a, b UserID) int {
		if tally[a] != tally[b] {
			return tally[b] - tally[a]
		}
		return cmp.Compare(a, b)
	})

	var captains []UserID
	for i := 0; i < len(ranked) && len(captains) < 2; {
		j := i
		for j < len(ranked) && tally[ranked[j]] == tally[ranked[i]] {
			j++
		}
		tier := ranked[i:j]
		need := 2 - len(captains)
		if len(tier) <= need {
			captains = append(captains, tier...)
		} else {
			captains = append(captains, dice.Sample(env.Dice, tier, need)...)
		}
		i = j
	}
	if len(captains) < 2 {
		rest := slices.DeleteFunc(s.PlayerIDs(), func(id UserID) bool { return slices.Contains(captains, id) })
		captains = append(captains, dice.Sample(env.Dice, rest, 2-len(captains))...)
	}

	s.Captains = captains
	for i, id := range captains {
		p := s.Players[id]
		p.Captain = true
		p.Team = Team(i + 1)
	}

	rolls := make(map[UserID]int, len(tally))
	for id, n := range tally {
		rolls[id] = n
	}
	events := []Event{{
		Type:   EvtCaptainsElected,
		Phase:  s.Phase,
		Users:  slices.Clone(captains),
		Rolls:  rolls,
		Detail: reason,
	}}
	return append(events, s.startBanPhase(env)...)
}
