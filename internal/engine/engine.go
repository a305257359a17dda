package engine

import (
	"fmt"
	"slices"
	"time"
)

type CommandType string

const (
	CmdJoin             CommandType = "Join"
	CmdLeave            CommandType = "Leave"
	CmdVoteCaptain      CommandType = "VoteCaptain"
	CmdBanCharacter     CommandType = "BanCharacter"
	CmdSelectCharacter  CommandType = "SelectCharacter"
	CmdConfirmSelection CommandType = "ConfirmSelection"
	CmdChooseTeamMode   CommandType = "ChooseTeamMode"
	CmdStagePick        CommandType = "StagePick"
	CmdConfirmPicks     CommandType = "ConfirmPicks"
	CmdApplySplit       CommandType = "ApplySplit"
	CmdTimeoutAdvance   CommandType = "TimeoutAdvance"
)

/*
	CmdJoin             -> EvtPlayerJoined (-> EvtPhaseChanged -> EvtTimerStarted once full)
	CmdVoteCaptain      -> EvtVoteCast | EvtVoteRemoved (-> EvtCaptainsElected -> ban phase setup)
	CmdBanCharacter     -> EvtCharacterBanned -> EvtTurnAdvanced | EvtBansRevealed -> selection setup
	CmdSelectCharacter  -> EvtSelectionStaged
	CmdConfirmSelection -> EvtSelectionConfirmed (-> EvtSelectionsRevealed -> conflicts -> reselection or team selection)
	CmdStagePick        -> EvtPickStaged | EvtPickUnstaged
	CmdConfirmPicks     -> EvtPlayerPicked... -> EvtTurnAdvanced | EvtDraftCompleted
	CmdTimeoutAdvance   -> whatever the phase's timeout resolves to
*/

// commandPhases lists where each command is accepted. Anything else is a
// stale interface.
var commandPhases = map[CommandType][]Phase{
	CmdJoin:             {PhaseWaiting},
	CmdLeave:            {PhaseWaiting},
	CmdVoteCaptain:      {PhaseCaptainVoting},
	CmdBanCharacter:     {PhaseServantBan},
	CmdSelectCharacter:  {PhaseServantSelection, PhaseServantReselection},
	CmdConfirmSelection: {PhaseServantSelection, PhaseServantReselection},
	CmdChooseTeamMode:   {PhaseTeamSelection},
	CmdStagePick:        {PhaseTeamSelection},
	CmdConfirmPicks:     {PhaseTeamSelection},
	CmdApplySplit:       {PhaseTeamSelection},
	CmdTimeoutAdvance:   {PhaseCaptainVoting, PhaseServantSelection, PhaseServantReselection},
}

type Command struct {
	Type CommandType
	// Phase is the phase the originating interface was rendered for. When
	// set it must match the session's phase.
	Phase Phase
	// Round pins timeouts and reselection interfaces to one reselection round.
	Round     int
	Actor     UserID
	Target    UserID
	Name      string
	Bot       bool
	Character string
	Mode      TeamMode
	Team1     []UserID
	Team2     []UserID
	Balance   *BalanceSummary
}

type EventType string

const (
	EvtPlayerJoined       EventType = "PlayerJoined"
	EvtPlayerLeft         EventType = "PlayerLeft"
	EvtPhaseChanged       EventType = "PhaseChanged"
	EvtTimerStarted       EventType = "TimerStarted"
	EvtTimerExpired       EventType = "TimerExpired"
	EvtVoteCast           EventType = "VoteCast"
	EvtVoteRemoved        EventType = "VoteRemoved"
	EvtCaptainsElected    EventType = "CaptainsElected"
	EvtSystemBans         EventType = "SystemBans"
	EvtBanOrderRolled     EventType = "BanOrderRolled"
	EvtCharacterBanned    EventType = "CharacterBanned"
	EvtBansRevealed       EventType = "BansRevealed"
	EvtSelectionStaged    EventType = "SelectionStaged"
	EvtSelectionConfirmed EventType = "SelectionConfirmed"
	EvtAutoAssigned       EventType = "AutoAssigned"
	EvtSelectionsRevealed EventType = "SelectionsRevealed"
	EvtConflictResolved   EventType = "ConflictResolved"
	EvtCloakingWithdrawn  EventType = "CloakingWithdrawn"
	EvtReselectionStarted EventType = "ReselectionStarted"
	EvtLivenessGuard      EventType = "LivenessGuardTripped"
	EvtAwaitingTeamMode   EventType = "AwaitingTeamMode"
	EvtTeamModeChosen     EventType = "TeamModeChosen"
	EvtFirstPickRolled    EventType = "FirstPickRolled"
	EvtPickStaged         EventType = "PickStaged"
	EvtPickUnstaged       EventType = "PickUnstaged"
	EvtPlayerPicked       EventType = "PlayerPicked"
	EvtTurnAdvanced       EventType = "TurnAdvanced"
	EvtDraftCompleted     EventType = "DraftCompleted"
)

type Event struct {
	Type       EventType
	Phase      Phase
	Actor      UserID
	Target     UserID
	Users      []UserID
	Character  string
	Characters []string
	Picks      map[UserID]string
	Rolls      map[UserID]int
	Round      int
	Team       Team
	Mode       TeamMode
	Duration   time.Duration
	Detail     string
}

// Apply validates cmd against the session and, when legal, mutates s and
// returns what happened. A rejected command leaves s untouched.
func Apply(s *Session, cmd Command, env Env) ([]Event, error) {
	allowed, ok := commandPhases[cmd.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Type)
	}
	if !slices.Contains(allowed, s.Phase) || (cmd.Phase != "" && cmd.Phase != s.Phase) {
		return nil, fmt.Errorf("%w: %s is not valid during %s", ErrStalePhase, cmd.Type, s.Phase)
	}

	switch cmd.Type {
	case CmdJoin:
		return s.join(cmd, env)
	case CmdLeave:
		return s.leave(cmd)
	case CmdVoteCaptain:
		return s.vote(cmd, env)
	case CmdBanCharacter:
		return s.ban(cmd, env)
	case CmdSelectCharacter:
		return s.stageSelection(cmd)
	case CmdConfirmSelection:
		return s.confirmSelection(cmd, env)
	case CmdChooseTeamMode:
		return s.chooseTeamMode(cmd, env)
	case CmdStagePick:
		return s.stagePick(cmd)
	case CmdConfirmPicks:
		return s.confirmPicks(cmd, env)
	case CmdApplySplit:
		return s.applySplit(cmd, env)
	case CmdTimeoutAdvance:
		return s.timeout(cmd, env)
	default:
		return nil, ErrUnsupportedCommand
	}
}

func (s *Session) join(cmd Command, env Env) ([]Event, error) {
	if _, ok := s.Players[cmd.Actor]; ok {
		return nil, fmt.Errorf("%w: already joined", ErrQuotaViolation)
	}
	if len(s.Players) >= s.RosterSize() {
		return nil, ErrDraftFull
	}
	name := cmd.Name
	if name == "" {
		name = fmt.Sprintf("player-%d", cmd.Actor)
	}
	s.Players[cmd.Actor] = &Player{ID: cmd.Actor, Name: name, Bot: cmd.Bot}
	s.joined = append(s.joined, cmd.Actor)

	events := []Event{{Type: EvtPlayerJoined, Phase: s.Phase, Actor: cmd.Actor, Detail: name}}
	if len(s.Players) == s.RosterSize() {
		events = append(events, s.startCaptainVote(env)...)
	}
	return events, nil
}

func (s *Session) leave(cmd Command) ([]Event, error) {
	if _, ok := s.Players[cmd.Actor]; !ok {
		return nil, ErrUnknownPlayer
	}
	delete(s.Players, cmd.Actor)
	s.joined = slices.DeleteFunc(s.joined, func(id UserID) bool { return id == cmd.Actor })
	return []Event{{Type: EvtPlayerLeft, Phase: s.Phase, Actor: cmd.Actor}}, nil
}

func (s *Session) timeout(cmd Command, env Env) ([]Event, error) {
	if s.Phase == PhaseServantReselection && cmd.Round != 0 && cmd.Round != s.ReselectionRound {
		return nil, fmt.Errorf("%w: round %d already resolved", ErrStalePhase, cmd.Round)
	}
	events := []Event{{Type: EvtTimerExpired, Phase: s.Phase, Round: s.ReselectionRound}}
	switch s.Phase {
	case PhaseCaptainVoting:
		return append(events, s.electCaptains(env, "timeout")...), nil
	default:
		return append(events, s.selectionTimeout(env)...), nil
	}
}

func (s *Session) complete(env Env) []Event {
	ev := s.transition(PhaseCompleted)
	s.CompletedAt = env.now()
	return []Event{ev, {
		Type:  EvtDraftCompleted,
		Phase: PhaseCompleted,
		Users: s.TeamMembers(Team1),
		Mode:  s.Mode,
	}}
}

func (s *Session) requireMember(id UserID) (*Player, error) {
	p, ok := s.Players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrPermission, ErrUnknownPlayer)
	}
	return p, nil
}

func (s *Session) requireCaptain(id UserID) error {
	p, err := s.requireMember(id)
	if err != nil {
		return err
	}
	if !p.Captain {
		return fmt.Errorf("%w: only captains can do that", ErrPermission)
	}
	return nil
}
