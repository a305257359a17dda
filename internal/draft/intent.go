package draft

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/DoyleJ11/servant-draft/internal/engine"
)

// CommandContext is where an operator command came from and how to answer.
type CommandContext interface {
	GuildID() string
	ChannelID() string
	UserID() string
	Respond(ctx context.Context, text string) error
}

// Key is the session a command context addresses.
func Key(cc CommandContext) engine.Key {
	return engine.Key{GuildID: cc.GuildID(), ChannelID: cc.ChannelID()}
}

// Actor parses the context's user id. Platform user ids are numeric.
func Actor(cc CommandContext) (engine.UserID, error) {
	return ParseUserID(cc.UserID())
}

func ParseUserID(s string) (engine.UserID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: user id %q", engine.ErrUnknownPlayer, s)
	}
	return engine.UserID(id), nil
}

type Action string

const (
	ActionJoin         Action = "join"
	ActionLeave        Action = "leave"
	ActionVote         Action = "vote"
	ActionBan          Action = "ban"
	ActionSelect       Action = "select"
	ActionRandom       Action = "random"
	ActionConfirm      Action = "confirm"
	ActionMode         Action = "mode"
	ActionPick         Action = "pick"
	ActionConfirmPicks Action = "picks"
)

// Valued reports whether a carries a value. Surfaces without private
// choosers must send one.
func (a Action) Valued() bool {
	switch a {
	case ActionVote, ActionBan, ActionSelect, ActionMode, ActionPick:
		return true
	}
	return false
}

// Intent is one user interaction, already tied to a session. Phase and Round
// pin it to the interface it came from; zero values match anything.
//
// An empty Payload on ban, select and pick opens the user's private chooser
// instead of acting directly.
type Intent struct {
	SessionKey engine.Key
	ActorID    engine.UserID
	ActorName  string
	Action     Action
	Phase      engine.Phase
	Round      int
	Payload    string
}

const buttonPrefix = "draft|"

var phaseCodes = map[engine.Phase]string{
	engine.PhaseWaiting:            "w",
	engine.PhaseCaptainVoting:      "v",
	engine.PhaseServantBan:         "b",
	engine.PhaseServantSelection:   "s",
	engine.PhaseServantReselection: "r",
	engine.PhaseTeamSelection:      "t",
	engine.PhaseCompleted:          "c",
}

// ButtonID encodes the parts of in a button can carry. The session comes
// from the channel the button sits in and the actor from whoever clicks.
// Platform ids are short, so phases are single letters.
func ButtonID(in Intent) string {
	return buttonPrefix + strings.Join([]string{
		string(in.Action),
		phaseCodes[in.Phase],
		strconv.Itoa(in.Round),
		in.Payload,
	}, "|")
}

func ParseButtonID(id string) (Intent, error) {
	rest, ok := strings.CutPrefix(id, buttonPrefix)
	if !ok {
		return Intent{}, fmt.Errorf("not a draft button: %q", id)
	}
	parts := strings.SplitN(rest, "|", 4)
	if len(parts) != 4 {
		return Intent{}, fmt.Errorf("malformed draft button: %q", id)
	}
	in := Intent{Action: Action(parts[0]), Payload: parts[3]}
	if parts[1] != "" {
		for phase, code := range phaseCodes {
			if code == parts[1] {
				in.Phase = phase
			}
		}
		if in.Phase == "" {
			return Intent{}, fmt.Errorf("malformed draft button phase: %q", id)
		}
	}
	round, err := strconv.Atoi(parts[2])
	if err != nil {
		return Intent{}, fmt.Errorf("malformed draft button round: %q", id)
	}
	in.Round = round
	return in, nil
}
