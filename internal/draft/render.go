package draft

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/DoyleJ11/servant-draft/internal/engine"
	"github.com/DoyleJ11/servant-draft/internal/platform"
)

// maxButtons is what one message can hold.
const maxButtons = 25

type names map[engine.UserID]string

func namesOf(v engine.View) names {
	out := make(names, len(v.Players))
	for _, p := range v.Players {
		out[p.ID] = p.Name
	}
	return out
}

func (n names) of(id engine.UserID) string {
	if name, ok := n[id]; ok {
		return name
	}
	return "#" + strconv.FormatInt(int64(id), 10)
}

func (n names) list(ids []engine.UserID) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = n.of(id)
	}
	return strings.Join(out, ", ")
}

func button(v engine.View, action Action, payload, label string, style platform.ButtonStyle) platform.Button {
	return platform.Button{
		ID:    ButtonID(Intent{Action: action, Phase: v.Phase, Round: v.ReselectionRound, Payload: payload}),
		Label: label,
		Style: style,
	}
}

// Board renders the draft's main message for v.
func Board(v engine.View) platform.Content {
	n := namesOf(v)
	var b strings.Builder
	fmt.Fprintf(&b, "**Servant draft %dv%d** | %s", v.TeamSize, v.TeamSize, v.Phase.Label())
	if v.Simulation {
		b.WriteString(" (simulation)")
	}
	b.WriteString("\n")
	if !v.Deadline.IsZero() {
		fmt.Fprintf(&b, "Closes <t:%d:R>\n", v.Deadline.Unix())
	}

	var buttons []platform.Button
	switch v.Phase {
	case engine.PhaseWaiting:
		fmt.Fprintf(&b, "Players %d/%d: %s\n", len(v.Players), v.TeamSize*2, playerList(v.Players, false))
		buttons = append(buttons,
			button(v, ActionJoin, "", "Join", platform.StyleSuccess),
			button(v, ActionLeave, "", "Leave", platform.StyleSecondary))

	case engine.PhaseCaptainVoting:
		fmt.Fprintf(&b, "Vote for up to %d captains. Click again to take a vote back.\n", engine.VotesPerMember)
		fmt.Fprintf(&b, "Voted: %s\n", readyCount(v.Players))
		for _, p := range v.Players {
			buttons = append(buttons, button(v, ActionVote, strconv.FormatInt(int64(p.ID), 10),
				fmt.Sprintf("%s (%d)", p.Name, p.Votes), platform.StylePrimary))
		}

	case engine.PhaseServantBan:
		fmt.Fprintf(&b, "Captains: %s\n", n.list(v.Captains))
		fmt.Fprintf(&b, "System bans: %s\n", strings.Join(v.SystemBans, ", "))
		fmt.Fprintf(&b, "Ban order: %s\n", n.list(v.BanOrder))
		if v.CurrentBanner != 0 {
			fmt.Fprintf(&b, "Now banning: %s\n", n.of(v.CurrentBanner))
		}
		buttons = append(buttons, button(v, ActionBan, "", "Ban a character", platform.StyleDanger))

	case engine.PhaseServantSelection, engine.PhaseServantReselection:
		fmt.Fprintf(&b, "Banned: %s\n", strings.Join(v.Banned, ", "))
		if len(v.Withdrawn) > 0 {
			fmt.Fprintf(&b, "Withdrawn: %s\n", strings.Join(v.Withdrawn, ", "))
		}
		if v.Phase == engine.PhaseServantReselection {
			fmt.Fprintf(&b, "Reselection round %d\n", v.ReselectionRound)
			for _, c := range slices.Sorted(maps.Keys(v.Conflicts)) {
				fmt.Fprintf(&b, "Lost %s: %s\n", c, n.list(v.Conflicts[c]))
			}
		}
		fmt.Fprintf(&b, "Locked in: %s\n", readyCount(v.Players))
		buttons = append(buttons,
			button(v, ActionSelect, "", "Choose character", platform.StylePrimary),
			button(v, ActionRandom, "", "Random", platform.StyleSecondary),
			button(v, ActionConfirm, "", "Confirm", platform.StyleSuccess))

	case engine.PhaseTeamSelection:
		b.WriteString(playerList(v.Players, true) + "\n")
		buttons = teamButtons(v, n, &b)

	case engine.PhaseCompleted:
		for _, team := range []engine.Team{engine.Team1, engine.Team2} {
			fmt.Fprintf(&b, "Team %d: %s\n", team, teamList(v.Players, team))
		}
		if v.Balance != nil {
			fmt.Fprintf(&b, "Balanced by %s, score %.2f, confidence %.0f%%\n", v.Balance.Algorithm, v.Balance.Score, v.Balance.Confidence*100)
		}
		fmt.Fprintf(&b, "Match id `%s`\n", v.MatchID)
	}

	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	return platform.Content{Text: strings.TrimRight(b.String(), "\n"), Buttons: buttons}
}

func teamButtons(v engine.View, n names, b *strings.Builder) []platform.Button {
	if v.Mode == engine.ModeUnset {
		fmt.Fprintf(b, "Captains %s: how should teams be formed?\n", n.list(v.Captains))
		return []platform.Button{
			button(v, ActionMode, string(engine.ModeManual), "Captains pick", platform.StylePrimary),
			button(v, ActionMode, string(engine.ModeAuto), "Auto balance", platform.StyleSecondary),
		}
	}
	if v.Mode == engine.ModeAuto {
		b.WriteString("Balancing teams...\n")
		return nil
	}

	for _, team := range []engine.Team{engine.Team1, engine.Team2} {
		fmt.Fprintf(b, "Team %d: %s\n", team, teamList(v.Players, team))
	}
	fmt.Fprintf(b, "Round %d, %s picks", v.Round, n.of(v.CurrentPicker))
	if staged := v.Pending[v.CurrentPicker]; len(staged) > 0 {
		fmt.Fprintf(b, " (staged: %s)", n.list(staged))
	}
	b.WriteString("\n")

	staged := map[engine.UserID]bool{}
	for _, ids := range v.Pending {
		for _, id := range ids {
			staged[id] = true
		}
	}
	var out []platform.Button
	for _, p := range v.Players {
		if p.Team != engine.TeamNone {
			continue
		}
		style := platform.StyleSecondary
		if staged[p.ID] {
			style = platform.StylePrimary
		}
		out = append(out, button(v, ActionPick, strconv.FormatInt(int64(p.ID), 10), p.Name, style))
	}
	// Keep the confirm button when the roster fills every slot.
	if len(out) >= maxButtons {
		out = out[:maxButtons-1]
	}
	return append(out, button(v, ActionConfirmPicks, "", "Confirm picks", platform.StyleSuccess))
}

func playerList(players []engine.PlayerView, characters bool) string {
	if len(players) == 0 {
		return "-"
	}
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = label(p, characters)
	}
	return strings.Join(out, ", ")
}

func teamList(players []engine.PlayerView, team engine.Team) string {
	var out []string
	for _, p := range players {
		if p.Team == team {
			out = append(out, label(p, true))
		}
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ", ")
}

func label(p engine.PlayerView, character bool) string {
	s := p.Name
	if p.Captain {
		s += " (C)"
	}
	if p.Bot {
		s += " [bot]"
	}
	if character && p.Character != "" {
		s += " - " + p.Character
	}
	return s
}

func readyCount(players []engine.PlayerView) string {
	ready := 0
	for _, p := range players {
		if p.Ready {
			ready++
		}
	}
	return fmt.Sprintf("%d/%d", ready, len(players))
}

// Announce turns the events worth telling the channel about into lines.
func Announce(v engine.View, events []engine.Event) []string {
	n := namesOf(v)
	var lines []string
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtCaptainsElected:
			line := "Captains: " + n.list(ev.Users)
			if ev.Detail == "timeout" {
				line += " (vote timed out)"
			}
			lines = append(lines, line)
		case engine.EvtSystemBans:
			lines = append(lines, "System bans: "+strings.Join(ev.Characters, ", "))
		case engine.EvtBanOrderRolled:
			lines = append(lines, "Ban order "+n.list(ev.Users)+" "+rolls(n, ev.Rolls))
		case engine.EvtBansRevealed:
			lines = append(lines, "All bans: "+strings.Join(ev.Characters, ", "))
		case engine.EvtTimerExpired:
			lines = append(lines, "Time is up.")
		case engine.EvtAutoAssigned:
			lines = append(lines, fmt.Sprintf("%s was given %s.", n.of(ev.Actor), ev.Character))
		case engine.EvtSelectionsRevealed:
			var picks []string
			for _, id := range slices.Sorted(maps.Keys(ev.Picks)) {
				picks = append(picks, n.of(id)+": "+ev.Picks[id])
			}
			lines = append(lines, "Picks: "+strings.Join(picks, ", "))
		case engine.EvtConflictResolved:
			lines = append(lines, fmt.Sprintf("%s was contested, %s wins %s", ev.Character, n.of(ev.Target), rolls(n, ev.Rolls)))
		case engine.EvtCloakingWithdrawn:
			lines = append(lines, "No detection pick, withdrawn: "+strings.Join(ev.Characters, ", "))
		case engine.EvtReselectionStarted:
			lines = append(lines, fmt.Sprintf("Reselection round %d for %s.", ev.Round, n.list(ev.Users)))
		case engine.EvtLivenessGuard:
			lines = append(lines, "Draft moved on: "+ev.Detail)
		case engine.EvtTeamModeChosen:
			lines = append(lines, fmt.Sprintf("Teams will be formed: %s.", ev.Mode))
		case engine.EvtFirstPickRolled:
			lines = append(lines, fmt.Sprintf("%s picks first %s", n.of(ev.Actor), rolls(n, ev.Rolls)))
		case engine.EvtDraftCompleted:
			lines = append(lines, "Draft complete.")
		}
	}
	return lines
}

func rolls(n names, r map[engine.UserID]int) string {
	if len(r) == 0 {
		return ""
	}
	var out []string
	for _, id := range slices.Sorted(maps.Keys(r)) {
		out = append(out, fmt.Sprintf("%s %d", n.of(id), r[id]))
	}
	return "(" + strings.Join(out, ", ") + ")"
}
