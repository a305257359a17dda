package engine

import (
	"maps"
	"slices"
	"time"
)

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// FindEvent returns the last event of the given type.
func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			return events[i], true
		}
	}
	return Event{}, false
}

type PlayerView struct {
	ID        UserID `json:"id,string"`
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
	Team      Team   `json:"team"`
	Captain   bool   `json:"captain"`
	Bot       bool   `json:"bot,omitempty"`
	Votes     int    `json:"votes"`
	Ready     bool   `json:"ready"`
}

// View is a detached, publishable copy of a session. Staged but unrevealed
// selections are left out.
type View struct {
	ID               string              `json:"id"`
	MatchID          string              `json:"match_id"`
	Key              string              `json:"key"`
	TeamSize         int                 `json:"team_size"`
	Phase            Phase               `json:"phase"`
	Mode             TeamMode            `json:"mode,omitempty"`
	Simulation       bool                `json:"simulation"`
	Players          []PlayerView        `json:"players"`
	Captains         []UserID            `json:"captains,omitempty"`
	SystemBans       []string            `json:"system_bans,omitempty"`
	CaptainBans      map[UserID]string   `json:"captain_bans,omitempty"`
	Banned           []string            `json:"banned,omitempty"`
	BanOrder         []UserID            `json:"ban_order,omitempty"`
	CurrentBanner    UserID              `json:"current_banner,omitempty"`
	ReselectionRound int                 `json:"reselection_round"`
	Conflicts        map[string][]UserID `json:"conflicts,omitempty"`
	Withdrawn        []string            `json:"withdrawn,omitempty"`
	FirstPick        UserID              `json:"first_pick,omitempty"`
	Round            int                 `json:"round,omitempty"`
	CurrentPicker    UserID              `json:"current_picker,omitempty"`
	Pending          map[UserID][]UserID `json:"pending,omitempty"`
	Deadline         time.Time           `json:"deadline,omitzero"`
	Balance          *BalanceSummary     `json:"balance,omitempty"`
}

func (s *Session) View() View {
	tally := s.Tally()
	v := View{
		ID:               s.ID,
		MatchID:          s.MatchID,
		Key:              s.Key.String(),
		TeamSize:         s.TeamSize,
		Phase:            s.Phase,
		Mode:             s.Mode,
		Simulation:       s.Simulation,
		Captains:         slices.Clone(s.Captains),
		SystemBans:       slices.Clone(s.SystemBans),
		BanOrder:         slices.Clone(s.BanOrder),
		CurrentBanner:    s.CurrentBanner(),
		ReselectionRound: s.ReselectionRound,
		Withdrawn:        slices.Clone(s.Withdrawn),
		FirstPick:        s.FirstPick,
		Round:            s.Round,
		CurrentPicker:    s.CurrentPicker,
		Deadline:         s.Deadline(),
	}

	// Captain bans stay hidden until every captain has banned.
	if s.Phase != PhaseServantBan {
		v.CaptainBans = maps.Clone(s.CaptainBans)
		v.Banned = slices.Sorted(maps.Keys(s.Banned))
	} else {
		v.Banned = slices.Clone(s.SystemBans)
	}

	if len(s.Conflicts) > 0 {
		v.Conflicts = make(map[string][]UserID, len(s.Conflicts))
		for c, ids := range s.Conflicts {
			v.Conflicts[c] = slices.Clone(ids)
		}
	}
	if len(s.Pending) > 0 {
		v.Pending = make(map[UserID][]UserID, len(s.Pending))
		for c, ids := range s.Pending {
			v.Pending[c] = slices.Clone(ids)
		}
	}
	if s.Balance != nil {
		b := *s.Balance
		v.Balance = &b
	}

	order := s.JoinOrder()
	for _, id := range order {
		p := s.Players[id]
		v.Players = append(v.Players, PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Character: p.Character,
			Team:      p.Team,
			Captain:   p.Captain,
			Bot:       p.Bot,
			Votes:     tally[id],
			Ready:     s.ready(id),
		})
	}
	return v
}

// ready reports whether id has nothing left to do in the current phase.
func (s *Session) ready(id UserID) bool {
	switch s.Phase {
	case PhaseCaptainVoting:
		return len(s.Votes[id]) == VotesPerMember
	case PhaseServantSelection, PhaseServantReselection:
		_, locked := s.Confirmed[id]
		return locked || s.SelectionDone[id]
	case PhaseServantBan:
		if !s.IsCaptain(id) {
			return true
		}
		_, done := s.CaptainBans[id]
		return done
	}
	return true
}
