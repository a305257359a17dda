package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/servant-draft/internal/catalog"
	"github.com/DoyleJ11/servant-draft/internal/dice"
)

type UserID int64

type Team int

const (
	TeamNone Team = 0
	Team1    Team = 1
	Team2    Team = 2
)

type TeamMode string

const (
	ModeUnset  TeamMode = ""
	ModeManual TeamMode = "manual"
	ModeAuto   TeamMode = "auto"
)

// Key identifies the channel a session lives in. At most one session exists
// per key.
type Key struct {
	GuildID   string
	ChannelID string
}

func (k Key) String() string { return k.GuildID + ":" + k.ChannelID }

func ParseKey(s string) (Key, error) {
	guild, channel, ok := strings.Cut(s, ":")
	if !ok || guild == "" || channel == "" {
		return Key{}, fmt.Errorf("malformed session key %q", s)
	}
	return Key{GuildID: guild, ChannelID: channel}, nil
}

type Player struct {
	ID        UserID
	Name      string
	Character string
	Team      Team
	Captain   bool
	Bot       bool
}

// Limits are the per-session timer lengths and liveness caps.
type Limits struct {
	CaptainVote    time.Duration
	Selection      time.Duration
	Reselection    time.Duration
	ReselectionCap int
	RerollAttempts int
}

func DefaultLimits() Limits {
	return Limits{
		CaptainVote:    120 * time.Second,
		Selection:      90 * time.Second,
		Reselection:    90 * time.Second,
		ReselectionCap: 5,
		RerollAttempts: 5,
	}
}

// BalanceSummary records where an automatic split came from.
type BalanceSummary struct {
	Algorithm  string
	Score      float64
	Confidence float64
}

// Env carries the randomness and time every transition draws on.
type Env struct {
	Dice  dice.Roller
	Clock dice.Clock
}

func (e Env) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock.Now()
}

type Options struct {
	Key        Key
	TeamSize   int
	Catalog    *catalog.Catalog
	Limits     Limits
	Mode       TeamMode
	Simulation bool
	StartedBy  UserID
}

// Session is the full mutable state of one draft. It is owned by exactly one
// lobby goroutine; nothing here is safe for concurrent use.
type Session struct {
	ID         string
	MatchID    string
	Key        Key
	TeamSize   int
	Phase      Phase
	Mode       TeamMode
	Simulation bool
	StartedBy  UserID
	CreatedAt  time.Time
	Limits     Limits
	Catalog    *catalog.Catalog

	Players map[UserID]*Player
	joined  []UserID

	Votes         map[UserID]map[UserID]bool
	Captains      []UserID
	VoteStartedAt time.Time

	Banned      map[string]bool
	SystemBans  []string
	CaptainBans map[UserID]string
	BanOrder    []UserID
	BanTurn     int
	BanRolls    map[UserID]int

	Selections         map[UserID]string
	SelectionDone      map[UserID]bool
	Conflicts          map[string][]UserID
	Confirmed          map[UserID]string
	ReselectionRound   int
	Withdrawn          []string
	SelectionStartedAt time.Time

	FirstPick      UserID
	FirstPickRolls map[UserID]int
	Round          int
	CurrentPicker  UserID
	PicksThisRound map[UserID]int
	Pending        map[UserID][]UserID
	RoundDone      map[UserID]map[int]bool

	Balance     *BalanceSummary
	CompletedAt time.Time
}

func NewSession(opts Options, now time.Time) (*Session, error) {
	if _, ok := PickOrder[opts.TeamSize]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTeamSize, opts.TeamSize)
	}
	if opts.Catalog == nil {
		return nil, errors.New("session needs a catalog")
	}
	// Roster, system bans, captain bans and withdrawn cloaking characters
	// must all fit without exhausting the pool.
	need := opts.TeamSize*2 + len(catalog.BanTiers) + 2 + len(opts.Catalog.Cloaking())
	if have := len(opts.Catalog.All()); have < need {
		return nil, fmt.Errorf("%w: need %d characters, have %d", ErrCatalogTooSmall, need, have)
	}
	limits := opts.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}

	return &Session{
		ID:             uuid.NewString(),
		MatchID:        uuid.NewString(),
		Key:            opts.Key,
		TeamSize:       opts.TeamSize,
		Phase:          PhaseWaiting,
		Mode:           opts.Mode,
		Simulation:     opts.Simulation,
		StartedBy:      opts.StartedBy,
		CreatedAt:      now,
		Limits:         limits,
		Catalog:        opts.Catalog,
		Players:        map[UserID]*Player{},
		Votes:          map[UserID]map[UserID]bool{},
		Banned:         map[string]bool{},
		CaptainBans:    map[UserID]string{},
		BanRolls:       map[UserID]int{},
		Selections:     map[UserID]string{},
		SelectionDone:  map[UserID]bool{},
		Conflicts:      map[string][]UserID{},
		Confirmed:      map[UserID]string{},
		PicksThisRound: map[UserID]int{},
		Pending:        map[UserID][]UserID{},
		RoundDone:      map[UserID]map[int]bool{},
	}, nil
}

// RosterSize is the number of players a full draft holds.
func (s *Session) RosterSize() int { return s.TeamSize * 2 }

// PlayerIDs returns roster ids in ascending order.
func (s *Session) PlayerIDs() []UserID {
	ids := make([]UserID, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// JoinOrder returns roster ids in the order players joined.
func (s *Session) JoinOrder() []UserID { return slices.Clone(s.joined) }

func (s *Session) IsCaptain(id UserID) bool {
	p, ok := s.Players[id]
	return ok && p.Captain
}

func (s *Session) TeamOf(captain UserID) Team {
	if p, ok := s.Players[captain]; ok {
		return p.Team
	}
	return TeamNone
}

func (s *Session) otherCaptain(id UserID) UserID {
	for _, c := range s.Captains {
		if c != id {
			return c
		}
	}
	return 0
}

// CurrentBanner is the captain whose ban is due, or 0 outside the ban phase.
func (s *Session) CurrentBanner() UserID {
	if s.Phase != PhaseServantBan || s.BanTurn >= len(s.BanOrder) {
		return 0
	}
	return s.BanOrder[s.BanTurn]
}

// AvailableCharacters lists what can still be chosen: not banned, not
// withdrawn and not confirmed by anyone. Catalog order.
func (s *Session) AvailableCharacters() []string {
	taken := make(map[string]bool, len(s.Confirmed))
	for _, c := range s.Confirmed {
		taken[c] = true
	}
	var out []string
	for _, c := range s.Catalog.All() {
		if !s.Banned[c] && !taken[c] {
			out = append(out, c)
		}
	}
	return out
}

func (s *Session) selectable(c string) bool {
	if !s.Catalog.Has(c) || s.Banned[c] {
		return false
	}
	for _, got := range s.Confirmed {
		if got == c {
			return false
		}
	}
	return true
}

// Selectors are the players still choosing a character.
func (s *Session) Selectors() []UserID {
	var out []UserID
	for _, id := range s.PlayerIDs() {
		if _, ok := s.Confirmed[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *Session) hasConfirmedDetection() bool {
	for _, c := range s.Confirmed {
		if s.Catalog.IsDetection(c) {
			return true
		}
	}
	return false
}

// Quota is how many picks captain owes in round r.
func (s *Session) Quota(captain UserID, r int) int {
	steps := PickOrder[s.TeamSize]
	if r < 1 || r > len(steps) || !s.IsCaptain(captain) {
		return 0
	}
	if captain == s.FirstPick {
		return steps[r-1].First
	}
	return steps[r-1].Second
}

// Owes is the number of picks captain still has to make this round.
func (s *Session) Owes(captain UserID) int {
	return s.Quota(captain, s.Round) - s.PicksThisRound[captain]
}

func (s *Session) AssignedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Team != TeamNone {
			n++
		}
	}
	return n
}

func (s *Session) TeamMembers(t Team) []UserID {
	var out []UserID
	for _, id := range s.PlayerIDs() {
		if s.Players[id].Team == t {
			out = append(out, id)
		}
	}
	return out
}

// Deadline is when the running phase timer expires. Zero when no timer runs.
func (s *Session) Deadline() time.Time {
	switch s.Phase {
	case PhaseCaptainVoting:
		return s.VoteStartedAt.Add(s.Limits.CaptainVote)
	case PhaseServantSelection:
		return s.SelectionStartedAt.Add(s.Limits.Selection)
	case PhaseServantReselection:
		return s.SelectionStartedAt.Add(s.Limits.Reselection)
	}
	return time.Time{}
}

func (s *Session) transition(to Phase) Event {
	if !s.Phase.CanTransitionTo(to) {
		panic(fmt.Sprintf("illegal phase transition %s -> %s", s.Phase, to))
	}
	from := s.Phase
	s.Phase = to
	return Event{Type: EvtPhaseChanged, Phase: to, Detail: string(from)}
}

// Validate checks the structural invariants of the session and reports
// every violation.
func (s *Session) Validate() error {
	var errs error

	seen := map[string]UserID{}
	for id, c := range s.Confirmed {
		if other, dup := seen[c]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s confirmed by both %d and %d", c, other, id))
		}
		seen[c] = id
		if s.Banned[c] {
			errs = multierr.Append(errs, fmt.Errorf("%s is confirmed and banned", c))
		}
	}

	for _, c := range s.Captains {
		if n := len(s.Pending[c]); n > s.Owes(c) {
			errs = multierr.Append(errs, fmt.Errorf("captain %d staged %d picks, owes %d", c, n, s.Owes(c)))
		}
	}

	for _, t := range []Team{Team1, Team2} {
		if n := len(s.TeamMembers(t)); n > s.TeamSize {
			errs = multierr.Append(errs, fmt.Errorf("team %d has %d players", t, n))
		}
	}

	if s.Phase == PhaseCompleted && s.AssignedCount() != s.RosterSize() {
		errs = multierr.Append(errs, fmt.Errorf("completed with %d of %d players assigned", s.AssignedCount(), s.RosterSize()))
	}

	if s.ReselectionRound > s.Limits.ReselectionCap {
		errs = multierr.Append(errs, fmt.Errorf("reselection round %d exceeds cap %d", s.ReselectionRound, s.Limits.ReselectionCap))
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInternal, errs)
	}
	return nil
}
