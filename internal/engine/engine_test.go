package engine

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/servant-draft/internal/catalog"
	"github.com/DoyleJ11/servant-draft/internal/dice"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Characters outside every tier and the cloaking set, so system bans and
// withdrawals never touch them.
var safe = []string{"모드레드", "무사시", "지크", "쿠훌린", "아엑", "메두사", "라엑", "톨포", "메데이아", "질드레", "타마", "셰익", "시키", "여포", "프랑", "어벤저", "흑화 세이버"}

func testEnv(rolls ...int) Env {
	return Env{Dice: dice.NewScripted(7, rolls...), Clock: dice.NewManualClock(start)}
}

func newSession(t *testing.T, teamSize int, mode TeamMode) *Session {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	s, err := NewSession(Options{
		Key:       Key{GuildID: "g1", ChannelID: "c1"},
		TeamSize:  teamSize,
		Catalog:   cat,
		Mode:      mode,
		StartedBy: 1,
	}, start)
	require.NoError(t, err)
	return s
}

func apply(t *testing.T, s *Session, env Env, cmd Command) []Event {
	t.Helper()
	events, err := Apply(s, cmd, env)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	return events
}

func fill(t *testing.T, s *Session, env Env) {
	t.Helper()
	for i := 1; i <= s.RosterSize(); i++ {
		apply(t, s, env, Command{Type: CmdJoin, Actor: UserID(i), Name: fmt.Sprintf("p%d", i)})
	}
}

// electFirstTwo makes every member vote for players 1 and 2.
func electFirstTwo(t *testing.T, s *Session, env Env) []Event {
	t.Helper()
	var last []Event
	for _, id := range s.PlayerIDs() {
		apply(t, s, env, Command{Type: CmdVoteCaptain, Actor: id, Target: 1})
		last = apply(t, s, env, Command{Type: CmdVoteCaptain, Actor: id, Target: 2})
	}
	return last
}

func banBoth(t *testing.T, s *Session, env Env) {
	t.Helper()
	for _, c := range []string{"멜트", "암굴"} {
		apply(t, s, env, Command{Type: CmdBanCharacter, Actor: s.CurrentBanner(), Character: c})
	}
}

func toSelection(t *testing.T, teamSize int, mode TeamMode) (*Session, Env) {
	t.Helper()
	s := newSession(t, teamSize, mode)
	env := testEnv()
	fill(t, s, env)
	electFirstTwo(t, s, env)
	banBoth(t, s, env)
	require.Equal(t, PhaseServantSelection, s.Phase)
	return s, env
}

func choose(t *testing.T, s *Session, env Env, id UserID, c string) []Event {
	t.Helper()
	apply(t, s, env, Command{Type: CmdSelectCharacter, Actor: id, Character: c})
	return apply(t, s, env, Command{Type: CmdConfirmSelection, Actor: id})
}

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		ok       bool
	}{
		{PhaseWaiting, PhaseCaptainVoting, true},
		{PhaseCaptainVoting, PhaseServantBan, true},
		{PhaseServantBan, PhaseServantSelection, true},
		{PhaseServantSelection, PhaseServantReselection, true},
		{PhaseServantSelection, PhaseTeamSelection, true},
		{PhaseServantReselection, PhaseTeamSelection, true},
		{PhaseTeamSelection, PhaseCompleted, true},
		{PhaseServantReselection, PhaseServantSelection, false},
		{PhaseServantBan, PhaseCaptainVoting, false},
		{PhaseCompleted, PhaseWaiting, false},
		{PhaseWaiting, PhaseTeamSelection, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestNewSessionRejectsUnknownTeamSize(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	for _, size := range []int{0, 1, 4, 7} {
		_, err := NewSession(Options{TeamSize: size, Catalog: cat}, start)
		require.ErrorIs(t, err, ErrInvalidTeamSize)
	}
}

func TestJoinCollectionStartsVoteWhenFull(t *testing.T) {
	s := newSession(t, 2, ModeManual)
	env := testEnv()

	for i := 1; i <= 3; i++ {
		apply(t, s, env, Command{Type: CmdJoin, Actor: UserID(i)})
	}
	_, err := Apply(s, Command{Type: CmdJoin, Actor: 2}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)
	require.Equal(t, PhaseWaiting, s.Phase)

	apply(t, s, env, Command{Type: CmdLeave, Actor: 3})
	apply(t, s, env, Command{Type: CmdJoin, Actor: 3})
	events := apply(t, s, env, Command{Type: CmdJoin, Actor: 4})

	assert.Equal(t, PhaseCaptainVoting, s.Phase)
	timer, ok := FindEvent(events, EvtTimerStarted)
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, timer.Duration)
	assert.Equal(t, start.Add(120*time.Second), s.Deadline())
	assert.Equal(t, []UserID{1, 2, 3, 4}, s.JoinOrder())

	_, err = Apply(s, Command{Type: CmdJoin, Actor: 5}, env)
	require.ErrorIs(t, err, ErrStalePhase)
}

func TestStaleInterfaceIsRejectedWithoutMutation(t *testing.T) {
	s := newSession(t, 2, ModeManual)
	env := testEnv()
	fill(t, s, env)

	_, err := Apply(s, Command{Type: CmdBanCharacter, Actor: 1, Character: "멜트"}, env)
	require.ErrorIs(t, err, ErrStalePhase)
	assert.Empty(t, s.Banned)

	_, err = Apply(s, Command{Type: CmdVoteCaptain, Phase: PhaseServantBan, Actor: 1, Target: 2}, env)
	require.ErrorIs(t, err, ErrStalePhase)
	assert.Empty(t, s.Votes)

	_, err = Apply(s, Command{Type: "Bogus"}, env)
	require.ErrorIs(t, err, ErrUnsupportedCommand)
}

func TestCaptainVoteToggleAndQuota(t *testing.T) {
	s := newSession(t, 2, ModeManual)
	env := testEnv()
	fill(t, s, env)

	apply(t, s, env, Command{Type: CmdVoteCaptain, Actor: 1, Target: 2})
	apply(t, s, env, Command{Type: CmdVoteCaptain, Actor: 1, Target: 3})

	_, err := Apply(s, Command{Type: CmdVoteCaptain, Actor: 1, Target: 4}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)

	events := apply(t, s, env, Command{Type: CmdVoteCaptain, Actor: 1, Target: 2})
	require.True(t, ContainsEvent(events, EvtVoteRemoved))
	apply(t, s, env, Command{Type: CmdVoteCaptain, Actor: 1, Target: 4})
	assert.Equal(t, map[UserID]bool{3: true, 4: true}, s.Votes[1])

	_, err = Apply(s, Command{Type: CmdVoteCaptain, Actor: 99, Target: 1}, env)
	require.ErrorIs(t, err, ErrPermission)
	_, err = Apply(s, Command{Type: CmdVoteCaptain, Actor: 2, Target: 99}, env)
	require.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestCaptainElection(t *testing.T) {
	tests := []struct {
		name     string
		ballots  map[UserID][]UserID
		first    UserID
		secondIn []UserID
	}{
		{
			name:     "top two by count",
			ballots:  map[UserID][]UserID{1: {3, 4}, 2: {3, 4}, 3: {3, 1}, 4: {3, 2}},
			first:    3,
			secondIn: []UserID{4},
		},
		{
			name:     "tie for second is drawn among the tied",
			ballots:  map[UserID][]UserID{1: {3, 1}, 2: {3, 2}, 3: {1, 2}, 4: {3, 4}},
			first:    3,
			secondIn: []UserID{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, 2, ModeManual)
			env := testEnv()
			fill(t, s, env)

			var events []Event
			for _, voter := range s.PlayerIDs() {
				for _, target := range tt.ballots[voter] {
					events = apply(t, s, env, Command{Type: CmdVoteCaptain, Actor: voter, Target: target})
				}
			}

			require.True(t, ContainsEvent(events, EvtCaptainsElected))
			require.Equal(t, PhaseServantBan, s.Phase)
			require.Len(t, s.Captains, 2)
			assert.Equal(t, tt.first, s.Captains[0])
			assert.Contains(t, tt.secondIn, s.Captains[1])
			assert.Equal(t, Team1, s.Players[s.Captains[0]].Team)
			assert.Equal(t, Team2, s.Players[s.Captains[1]].Team)
		})
	}
}

func TestCaptainTimeoutFillsFromRoster(t *testing.T) {
	s := newSession(t, 3, ModeManual)
	env := testEnv()
	fill(t, s, env)
	apply(t, s, env, Command{Type: CmdVoteCaptain, Actor: 1, Target: 5})

	events := apply(t, s, env, Command{Type: CmdTimeoutAdvance, Phase: PhaseCaptainVoting})
	require.True(t, ContainsEvent(events, EvtTimerExpired))

	require.Len(t, s.Captains, 2)
	assert.Equal(t, UserID(5), s.Captains[0])
	assert.NotEqual(t, s.Captains[0], s.Captains[1])
	assert.True(t, s.IsCaptain(s.Captains[1]))

	// A late timer for the vote is now stale.
	_, err := Apply(s, Command{Type: CmdTimeoutAdvance, Phase: PhaseCaptainVoting}, env)
	require.ErrorIs(t, err, ErrStalePhase)
}

func TestSystemBansOnePerTier(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		s := newSession(t, 2, ModeManual)
		env := Env{Dice: dice.NewRoller(seed), Clock: dice.NewManualClock(start)}
		fill(t, s, env)
		electFirstTwo(t, s, env)

		require.Len(t, s.SystemBans, 3)
		for i, tier := range catalog.BanTiers {
			assert.Contains(t, s.Catalog.Tier(tier), s.SystemBans[i])
			assert.True(t, s.Banned[s.SystemBans[i]])
		}
		assert.ElementsMatch(t, []UserID{1, 2}, s.BanOrder)
	}
}

func TestBanOrderFollowsRolls(t *testing.T) {
	s := newSession(t, 2, ModeManual)
	fill(t, s, testEnv())

	env := testEnv(4, 18)
	events := electFirstTwo(t, s, env)

	rolled, ok := FindEvent(events, EvtBanOrderRolled)
	require.True(t, ok)
	assert.Equal(t, []UserID{2, 1}, rolled.Users)
	assert.Equal(t, map[UserID]int{1: 4, 2: 18}, s.BanRolls)
	assert.Equal(t, UserID(2), s.CurrentBanner())
}

func TestBanTurnsAndPermissions(t *testing.T) {
	s := newSession(t, 2, ModeManual)
	env := testEnv(4, 18)
	fill(t, s, env)
	electFirstTwo(t, s, env)
	first, second := s.BanOrder[0], s.BanOrder[1]

	_, err := Apply(s, Command{Type: CmdBanCharacter, Actor: 3, Character: "멜트"}, env)
	require.ErrorIs(t, err, ErrPermission)
	_, err = s.BanOptions(second)
	require.ErrorIs(t, err, ErrPermission)
	_, err = Apply(s, Command{Type: CmdBanCharacter, Actor: second, Character: "멜트"}, env)
	require.ErrorIs(t, err, ErrPermission)
	_, err = Apply(s, Command{Type: CmdBanCharacter, Actor: first, Character: "없는캐릭터"}, env)
	require.ErrorIs(t, err, ErrUnavailable)

	apply(t, s, env, Command{Type: CmdBanCharacter, Actor: first, Character: "멜트"})

	// The shared banned set is updated before the next captain looks.
	assert.NotContains(t, s.AvailableCharacters(), "멜트")
	options, err := s.BanOptions(second)
	require.NoError(t, err)
	assert.NotContains(t, options, "멜트")

	_, err = Apply(s, Command{Type: CmdBanCharacter, Actor: first, Character: "암굴"}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)
	_, err = Apply(s, Command{Type: CmdBanCharacter, Actor: second, Character: "멜트"}, env)
	require.ErrorIs(t, err, ErrUnavailable)

	events := apply(t, s, env, Command{Type: CmdBanCharacter, Actor: second, Character: "암굴"})
	revealed, ok := FindEvent(events, EvtBansRevealed)
	require.True(t, ok)
	assert.Equal(t, append(slices.Clone(s.SystemBans), "멜트", "암굴"), revealed.Characters)
	assert.Equal(t, PhaseServantSelection, s.Phase)
	timer, ok := FindEvent(events, EvtTimerStarted)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, timer.Duration)
}

func TestSelectionConflictGoesToDice(t *testing.T) {
	s, _ := toSelection(t, 2, ModeManual)
	env := testEnv(14, 9, 10, 5)

	choose(t, s, env, 1, "모드레드")
	choose(t, s, env, 2, "모드레드")
	choose(t, s, env, 3, "무사시")
	events := choose(t, s, env, 4, "아처")

	resolved, ok := FindEvent(events, EvtConflictResolved)
	require.True(t, ok)
	assert.Equal(t, UserID(1), resolved.Target)
	assert.Equal(t, map[UserID]int{1: 14, 2: 9}, resolved.Rolls)

	assert.Equal(t, PhaseServantReselection, s.Phase)
	assert.Equal(t, 1, s.ReselectionRound)
	assert.Equal(t, map[UserID]string{1: "모드레드", 3: "무사시", 4: "아처"}, s.Confirmed)
	assert.Equal(t, map[string][]UserID{"모드레드": {2}}, s.Conflicts)
	assert.Equal(t, []UserID{2}, s.Selectors())
	assert.Empty(t, s.Withdrawn, "a detection character is confirmed")

	_, err := Apply(s, Command{Type: CmdSelectCharacter, Actor: 3, Character: "지크"}, env)
	require.ErrorIs(t, err, ErrPermission)
	_, err = Apply(s, Command{Type: CmdSelectCharacter, Actor: 2, Character: "모드레드"}, env)
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = Apply(s, Command{Type: CmdSelectCharacter, Phase: PhaseServantSelection, Actor: 2, Character: "지크"}, env)
	require.ErrorIs(t, err, ErrStalePhase)

	events = choose(t, s, env, 2, "지크")
	require.True(t, ContainsEvent(events, EvtFirstPickRolled))
	assert.Equal(t, PhaseTeamSelection, s.Phase)
	assert.Empty(t, s.Conflicts)
	assert.Equal(t, UserID(1), s.FirstPick)
}

func TestCloakingWithdrawnWithoutDetection(t *testing.T) {
	s, _ := toSelection(t, 2, ModeManual)
	env := testEnv(14, 9)

	choose(t, s, env, 1, "모드레드")
	choose(t, s, env, 2, "모드레드")
	choose(t, s, env, 3, "무사시")
	events := choose(t, s, env, 4, "지크")

	require.Equal(t, PhaseServantReselection, s.Phase)
	withdrawn, ok := FindEvent(events, EvtCloakingWithdrawn)
	require.True(t, ok)
	assert.Equal(t, withdrawn.Characters, s.Withdrawn)
	for _, c := range s.Catalog.Cloaking() {
		assert.True(t, s.Banned[c], c)
		assert.NotContains(t, s.AvailableCharacters(), c)
	}

	_, err := Apply(s, Command{Type: CmdSelectCharacter, Actor: 2, Character: "징어"}, env)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestConfirmIsOneWayLatch(t *testing.T) {
	s, env := toSelection(t, 2, ModeManual)

	_, err := Apply(s, Command{Type: CmdConfirmSelection, Actor: 1}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)

	choose(t, s, env, 1, "모드레드")
	events, err := Apply(s, Command{Type: CmdConfirmSelection, Actor: 1}, env)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = Apply(s, Command{Type: CmdSelectCharacter, Actor: 1, Character: "지크"}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)
	assert.Equal(t, "모드레드", s.Selections[1])
}

func TestSelectionTimeoutAutoAssigns(t *testing.T) {
	s, env := toSelection(t, 2, ModeManual)

	choose(t, s, env, 1, "모드레드")
	apply(t, s, env, Command{Type: CmdSelectCharacter, Actor: 2, Character: "모드레드"})

	events := apply(t, s, env, Command{Type: CmdTimeoutAdvance, Phase: PhaseServantSelection})

	auto := 0
	for _, ev := range events {
		if ev.Type == EvtAutoAssigned {
			auto++
			assert.NotEqual(t, "모드레드", ev.Character)
		}
	}
	assert.Equal(t, 3, auto)
	assert.Equal(t, "모드레드", s.Confirmed[1])
	assert.Len(t, s.Confirmed, 4)
	assert.Equal(t, PhaseTeamSelection, s.Phase)

	_, err := Apply(s, Command{Type: CmdTimeoutAdvance, Phase: PhaseServantSelection}, env)
	require.ErrorIs(t, err, ErrStalePhase)
}

func TestReselectionTerminatesUnderForcedTies(t *testing.T) {
	s := newSession(t, 6, ModeManual)
	env := testEnv(7) // every die shows 7
	fill(t, s, env)
	electFirstTwo(t, s, env)
	banBoth(t, s, env)

	var guard bool
	for round := 0; s.Phase.Selecting(); round++ {
		require.LessOrEqual(t, round, s.Limits.ReselectionCap)
		for _, id := range s.Selectors() {
			events := choose(t, s, env, id, safe[round])
			guard = guard || ContainsEvent(events, EvtLivenessGuard)
		}
		if s.Phase.Selecting() {
			// The lowest id among the tied always takes the character.
			assert.Equal(t, safe[round], s.Confirmed[UserID(round+1)])
		}
	}

	assert.True(t, guard)
	assert.Equal(t, PhaseTeamSelection, s.Phase)
	assert.Equal(t, 5, s.ReselectionRound)
	assert.Len(t, s.Confirmed, 12)
	require.NoError(t, s.Validate())
}

func TestTeamSelectionQuotas(t *testing.T) {
	s, env := toSelection(t, 3, ModeManual)
	for i, id := range s.PlayerIDs()[:5] {
		choose(t, s, env, id, safe[i])
	}
	// Captain 1 rolls 3, captain 2 rolls 15.
	choose(t, s, testEnv(3, 15), 6, safe[5])

	require.Equal(t, PhaseTeamSelection, s.Phase)
	require.Equal(t, UserID(2), s.FirstPick)
	require.Equal(t, UserID(2), s.CurrentPicker)
	assert.Equal(t, 1, s.Owes(2))

	_, err := Apply(s, Command{Type: CmdStagePick, Actor: 1, Target: 3}, env)
	require.ErrorIs(t, err, ErrPermission)
	_, err = Apply(s, Command{Type: CmdStagePick, Actor: 3, Target: 4}, env)
	require.ErrorIs(t, err, ErrPermission)

	apply(t, s, env, Command{Type: CmdStagePick, Actor: 2, Target: 3})
	_, err = Apply(s, Command{Type: CmdStagePick, Actor: 2, Target: 4}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)
	apply(t, s, env, Command{Type: CmdConfirmPicks, Actor: 2})
	assert.Equal(t, Team2, s.Players[3].Team)

	require.Equal(t, UserID(1), s.CurrentPicker)
	assert.Equal(t, 2, s.Owes(1))
	_, err = Apply(s, Command{Type: CmdStagePick, Actor: 1, Target: 3}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)
	apply(t, s, env, Command{Type: CmdStagePick, Actor: 1, Target: 4})
	_, err = Apply(s, Command{Type: CmdConfirmPicks, Actor: 1}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)
	assert.Equal(t, TeamNone, s.Players[4].Team)

	apply(t, s, env, Command{Type: CmdStagePick, Actor: 1, Target: 5})
	apply(t, s, env, Command{Type: CmdConfirmPicks, Actor: 1})

	assert.Equal(t, 2, s.Round)
	require.Equal(t, UserID(2), s.CurrentPicker)
	apply(t, s, env, Command{Type: CmdStagePick, Actor: 2, Target: 6})
	events := apply(t, s, env, Command{Type: CmdConfirmPicks, Actor: 2})

	require.True(t, ContainsEvent(events, EvtDraftCompleted))
	assert.Equal(t, PhaseCompleted, s.Phase)
	assert.Equal(t, []UserID{1, 4, 5}, s.TeamMembers(Team1))
	assert.Equal(t, []UserID{2, 3, 6}, s.TeamMembers(Team2))
}

func TestPickOrderAssignsWholeRoster(t *testing.T) {
	for size, steps := range PickOrder {
		total := 0
		for _, step := range steps {
			total += step.First + step.Second
		}
		assert.Equal(t, 2*(size-1), total, "team size %d", size)
	}
}

func TestFullDraftEveryTeamSize(t *testing.T) {
	for _, size := range []int{2, 3, 5, 6} {
		t.Run(fmt.Sprintf("%dv%d", size, size), func(t *testing.T) {
			s, env := toSelection(t, size, ModeManual)
			for i, id := range s.PlayerIDs() {
				choose(t, s, env, id, safe[i])
			}
			require.Equal(t, PhaseTeamSelection, s.Phase)

			for s.Phase == PhaseTeamSelection {
				picker := s.CurrentPicker
				options, err := s.PickOptions(picker)
				require.NoError(t, err)
				for _, target := range options[:s.Owes(picker)] {
					apply(t, s, env, Command{Type: CmdStagePick, Actor: picker, Target: target})
				}
				apply(t, s, env, Command{Type: CmdConfirmPicks, Actor: picker})
			}

			assert.Equal(t, PhaseCompleted, s.Phase)
			assert.Len(t, s.TeamMembers(Team1), size)
			assert.Len(t, s.TeamMembers(Team2), size)
			assert.Equal(t, s.RosterSize(), s.AssignedCount())
		})
	}
}

func TestChooseTeamMode(t *testing.T) {
	s, env := toSelection(t, 2, ModeUnset)
	var events []Event
	for i, id := range s.PlayerIDs() {
		events = choose(t, s, env, id, safe[i])
	}
	require.True(t, ContainsEvent(events, EvtAwaitingTeamMode))

	_, err := Apply(s, Command{Type: CmdStagePick, Actor: 1, Target: 3}, env)
	require.ErrorIs(t, err, ErrStalePhase)
	_, err = Apply(s, Command{Type: CmdChooseTeamMode, Actor: 3, Mode: ModeManual}, env)
	require.ErrorIs(t, err, ErrPermission)

	events = apply(t, s, env, Command{Type: CmdChooseTeamMode, Actor: 2, Mode: ModeManual})
	require.True(t, ContainsEvent(events, EvtFirstPickRolled))
	assert.NotZero(t, s.CurrentPicker)

	_, err = Apply(s, Command{Type: CmdChooseTeamMode, Actor: 2, Mode: ModeAuto}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)
}

func TestApplySplit(t *testing.T) {
	s, env := toSelection(t, 2, ModeAuto)
	var events []Event
	for i, id := range s.PlayerIDs() {
		events = choose(t, s, env, id, safe[i])
	}
	chosen, ok := FindEvent(events, EvtTeamModeChosen)
	require.True(t, ok)
	assert.Equal(t, ModeAuto, chosen.Mode)

	_, err := Apply(s, Command{Type: CmdStagePick, Actor: 1, Target: 3}, env)
	require.ErrorIs(t, err, ErrStalePhase)
	_, err = Apply(s, Command{Type: CmdApplySplit, Team1: []UserID{1, 2, 3}, Team2: []UserID{4}}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)
	_, err = Apply(s, Command{Type: CmdApplySplit, Team1: []UserID{1, 3}, Team2: []UserID{3, 4}}, env)
	require.ErrorIs(t, err, ErrQuotaViolation)

	summary := &BalanceSummary{Algorithm: "genetic", Score: 0.91, Confidence: 0.9}
	events = apply(t, s, env, Command{Type: CmdApplySplit, Team1: []UserID{1, 4}, Team2: []UserID{2, 3}, Balance: summary})

	require.True(t, ContainsEvent(events, EvtDraftCompleted))
	assert.Equal(t, PhaseCompleted, s.Phase)
	assert.Equal(t, []UserID{1, 4}, s.TeamMembers(Team1))
	assert.Equal(t, summary, s.Balance)
}

func TestViewHidesCaptainBansUntilRevealed(t *testing.T) {
	s := newSession(t, 2, ModeManual)
	env := testEnv()
	fill(t, s, env)
	electFirstTwo(t, s, env)
	apply(t, s, env, Command{Type: CmdBanCharacter, Actor: s.CurrentBanner(), Character: "멜트"})

	v := s.View()
	assert.Nil(t, v.CaptainBans)
	assert.NotContains(t, v.Banned, "멜트")
	assert.Equal(t, "g1:c1", v.Key)
	require.Len(t, v.Players, 4)
	assert.Equal(t, 4, v.Players[0].Votes)

	apply(t, s, env, Command{Type: CmdBanCharacter, Actor: s.CurrentBanner(), Character: "암굴"})
	v = s.View()
	assert.Len(t, v.CaptainBans, 2)
	assert.Contains(t, v.Banned, "멜트")
}
