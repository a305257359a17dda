// Command draftctl drives a servant-draft server over its HTTP API.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/servant-draft/internal/auth"
	"github.com/DoyleJ11/servant-draft/pkg/types"
)

var CLI struct {
	Server string `help:"Server base URL." default:"http://localhost:8080" env:"DRAFT_SERVER"`
	Token  string `help:"Bearer token for the API." env:"DRAFT_TOKEN"`

	Mint struct {
		Secret   string        `help:"Signing secret, the server's OPERATOR_JWT_SECRET." env:"OPERATOR_JWT_SECRET" required:""`
		User     string        `arg:"" help:"Discord user id the token speaks for."`
		Operator bool          `help:"Grant operator rights."`
		TTL      time.Duration `help:"Token lifetime." default:"24h"`
	} `cmd:"" name:"token" help:"Sign an API token locally."`

	Sessions struct{} `cmd:"" help:"List running drafts."`

	Status struct {
		Key string `arg:"" help:"Session key, guild:channel."`
	} `cmd:"" help:"Show one draft."`

	Start startCmd `cmd:"" help:"Start a draft."`

	Simulate startCmd `cmd:"" help:"Start a draft filled with simulated players."`

	Cancel struct {
		Key  string `arg:""`
		User string `help:"Cancel as this user (operator tokens only)."`
	} `cmd:"" help:"Cancel a draft as its starter or a captain."`

	Cleanup struct {
		Key string `arg:""`
	} `cmd:"" help:"Force-remove a draft (operator)."`

	Intent struct {
		Key     string `arg:""`
		Action  string `arg:"" help:"join, leave, vote, ban, select, random, confirm, mode, pick, picks."`
		Payload string `arg:"" optional:"" help:"Candidate, character, mode or player id."`
		User    string `help:"Act as this user (operator tokens only)."`
		Name    string `help:"Display name used when joining."`
		Phase   string `help:"Reject the intent if the draft has moved past this phase."`
		Round   int    `help:"Reject the intent if the draft has moved past this round."`
	} `cmd:"" help:"Send a player intent to a draft."`

	Outcome struct {
		Match  string `arg:"" help:"Match id from the draft log."`
		Winner int    `arg:"" help:"Winning team, 1 or 2."`
		Score  string `help:"Free-form score."`
	} `cmd:"" help:"Record who won a match."`

	Matches struct {
		Guild string `arg:""`
		Limit int    `default:"20"`
	} `cmd:"" help:"List a guild's recent matches."`

	Tune struct {
		Guild     string `arg:""`
		Algorithm string `help:"simple, monte_carlo or genetic."`
		Weights   string `help:"YAML file with the six balance weights." type:"existingfile"`
	} `cmd:"" help:"Change a guild's balancer (operator)."`

	Roster struct {
		Guild string `arg:""`
	} `cmd:"" help:"List a guild's rated players."`

	Rate struct {
		Guild  string  `arg:""`
		User   string  `arg:""`
		Rating float64 `arg:""`
		Name   string  `required:"" help:"Display name."`
	} `cmd:"" help:"Set a player's rating (operator)."`

	Balance struct {
		File string `arg:"" help:"YAML file describing the players." type:"existingfile"`
	} `cmd:"" help:"Preview a team split without running a draft."`
}

type startCmd struct {
	Guild    string   `required:"" help:"Guild id."`
	Channel  string   `required:"" help:"Channel id."`
	User     string   `help:"Start as this user (operator tokens only)."`
	Size     int      `help:"Players per team."`
	Mode     string   `help:"manual or auto."`
	Players  []string `help:"Participants as id=name."`
	Spectate bool     `help:"Watch a simulation instead of playing in it."`
}

func (s startCmd) request(simulation bool) (types.StartSessionRequest, error) {
	req := types.StartSessionRequest{
		GuildID:    s.Guild,
		ChannelID:  s.Channel,
		UserID:     s.User,
		TeamSize:   s.Size,
		Mode:       s.Mode,
		Simulation: simulation,
		Spectate:   s.Spectate,
	}
	for _, p := range s.Players {
		part, err := parseParticipant(p)
		if err != nil {
			return req, err
		}
		req.Players = append(req.Players, part)
	}
	return req, nil
}

func parseParticipant(s string) (types.Participant, error) {
	id, name, ok := strings.Cut(s, "=")
	if !ok || id == "" {
		return types.Participant{}, fmt.Errorf("player %q: want id=name", s)
	}
	return types.Participant{ID: id, Name: name}, nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("draftctl"),
		kong.Description("control a servant-draft server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if err := run(context.Background(), ctx.Command(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, out io.Writer) error {
	c := newClient(CLI.Server, CLI.Token, out)

	switch command {
	case "token <user>":
		token, err := auth.Issue(CLI.Mint.Secret, CLI.Mint.User, CLI.Mint.Operator, CLI.Mint.TTL, time.Now())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, token)
		return err
	case "sessions":
		return c.do(ctx, http.MethodGet, "/sessions", nil)
	case "status <key>":
		return c.do(ctx, http.MethodGet, sessionPath(CLI.Status.Key), nil)
	case "start":
		req, err := CLI.Start.request(false)
		if err != nil {
			return err
		}
		return c.do(ctx, http.MethodPost, "/sessions", req)
	case "simulate":
		req, err := CLI.Simulate.request(true)
		if err != nil {
			return err
		}
		return c.do(ctx, http.MethodPost, "/sessions", req)
	case "cancel <key>":
		return c.do(ctx, http.MethodDelete, sessionPath(CLI.Cancel.Key), types.CancelRequest{UserID: CLI.Cancel.User})
	case "cleanup <key>":
		return c.do(ctx, http.MethodPost, sessionPath(CLI.Cleanup.Key, "/cleanup"), nil)
	case "intent <key> <action>", "intent <key> <action> <payload>":
		return c.do(ctx, http.MethodPost, sessionPath(CLI.Intent.Key, "/intents"), types.IntentRequest{
			UserID:   CLI.Intent.User,
			UserName: CLI.Intent.Name,
			Action:   CLI.Intent.Action,
			Phase:    CLI.Intent.Phase,
			Round:    CLI.Intent.Round,
			Payload:  CLI.Intent.Payload,
		})
	case "outcome <match> <winner>":
		return c.do(ctx, http.MethodPost, "/matches/"+url.PathEscape(CLI.Outcome.Match)+"/outcome", types.OutcomeRequest{
			Winner: CLI.Outcome.Winner,
			Score:  CLI.Outcome.Score,
		})
	case "matches <guild>":
		return c.do(ctx, http.MethodGet, "/guilds/"+url.PathEscape(CLI.Matches.Guild)+"/matches?limit="+strconv.Itoa(CLI.Matches.Limit), nil)
	case "tune <guild>":
		req := types.TuneRequest{Algorithm: CLI.Tune.Algorithm}
		if CLI.Tune.Weights != "" {
			var w types.Weights
			if err := readYAML(CLI.Tune.Weights, &w); err != nil {
				return err
			}
			req.Weights = &w
		}
		return c.do(ctx, http.MethodPut, "/guilds/"+url.PathEscape(CLI.Tune.Guild)+"/balancer", req)
	case "roster <guild>":
		return c.do(ctx, http.MethodGet, "/guilds/"+url.PathEscape(CLI.Roster.Guild)+"/roster", nil)
	case "rate <guild> <user> <rating>":
		rating := CLI.Rate.Rating
		return c.do(ctx, http.MethodPut,
			"/guilds/"+url.PathEscape(CLI.Rate.Guild)+"/roster/"+url.PathEscape(CLI.Rate.User),
			types.RosterPlayer{UserID: CLI.Rate.User, Name: CLI.Rate.Name, Rating: &rating})
	case "balance <file>":
		var req types.BalanceRequest
		if err := readYAML(CLI.Balance.File, &req); err != nil {
			return err
		}
		return c.do(ctx, http.MethodPost, "/balance", req)
	}
	return fmt.Errorf("unknown command %q", command)
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
