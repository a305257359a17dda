package engine

import "slices"

type Phase string

const (
	PhaseWaiting            Phase = "waiting"
	PhaseCaptainVoting      Phase = "captain_voting"
	PhaseServantBan         Phase = "servant_ban"
	PhaseServantSelection   Phase = "servant_selection"
	PhaseServantReselection Phase = "servant_reselection"
	PhaseTeamSelection      Phase = "team_selection"
	PhaseCompleted          Phase = "completed"
)

var transitions = map[Phase][]Phase{
	PhaseWaiting:            {PhaseCaptainVoting},
	PhaseCaptainVoting:      {PhaseServantBan},
	PhaseServantBan:         {PhaseServantSelection},
	PhaseServantSelection:   {PhaseServantReselection, PhaseTeamSelection},
	PhaseServantReselection: {PhaseTeamSelection},
	PhaseTeamSelection:      {PhaseCompleted},
}

// CanTransitionTo reports whether the phase graph has an edge p -> next.
// Additional reselection rounds stay inside PhaseServantReselection.
func (p Phase) CanTransitionTo(next Phase) bool {
	return slices.Contains(transitions[p], next)
}

// Selecting reports whether characters are being picked in p.
func (p Phase) Selecting() bool {
	return p == PhaseServantSelection || p == PhaseServantReselection
}

// Timed reports whether p runs against a deadline.
func (p Phase) Timed() bool {
	return p == PhaseCaptainVoting || p.Selecting()
}

func (p Phase) Label() string {
	switch p {
	case PhaseWaiting:
		return "Waiting for players"
	case PhaseCaptainVoting:
		return "Captain vote"
	case PhaseServantBan:
		return "Character bans"
	case PhaseServantSelection:
		return "Character selection"
	case PhaseServantReselection:
		return "Character reselection"
	case PhaseTeamSelection:
		return "Team selection"
	case PhaseCompleted:
		return "Completed"
	}
	return string(p)
}
