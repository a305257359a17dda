// Package types holds the HTTP API payloads shared by the server and
// draftctl. User ids travel as strings; Discord snowflakes overflow
// JavaScript numbers.
package types

import "encoding/json"

type Participant struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type StartSessionRequest struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	// UserID starts the draft. It defaults to the token's subject.
	UserID     string        `json:"user_id,omitempty"`
	TeamSize   int           `json:"team_size,omitempty"`
	Mode       string        `json:"mode,omitempty"`
	Players    []Participant `json:"players,omitempty"`
	Simulation bool          `json:"simulation,omitempty"`
	Spectate   bool          `json:"spectate,omitempty"`
}

type SessionStatus struct {
	Key     string          `json:"key"`
	Version int             `json:"version"`
	Clients int             `json:"clients"`
	Session json.RawMessage `json:"session"`
}

type SessionList struct {
	Sessions []string `json:"sessions"`
}

// IntentRequest acts on a session as UserID, or as the token's subject when
// UserID is empty. Only operator tokens may act for someone else.
type IntentRequest struct {
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Action   string `json:"action"`
	Phase    string `json:"phase,omitempty"`
	Round    int    `json:"round,omitempty"`
	Payload  string `json:"payload,omitempty"`
}

type IntentResponse struct {
	Message string `json:"message"`
}

type CancelRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type OutcomeRequest struct {
	Winner int    `json:"winner"`
	Score  string `json:"score,omitempty"`
}

type Weights struct {
	Skill   float64 `json:"skill_balance" yaml:"skill_balance"`
	Synergy float64 `json:"synergy_balance" yaml:"synergy_balance"`
	Role    float64 `json:"role_balance" yaml:"role_balance"`
	Tier    float64 `json:"tier_balance" yaml:"tier_balance"`
	Comfort float64 `json:"comfort_balance" yaml:"comfort_balance"`
	Meta    float64 `json:"meta_balance" yaml:"meta_balance"`
}

type TuneRequest struct {
	Algorithm string   `json:"algorithm,omitempty"`
	Weights   *Weights `json:"weights,omitempty"`
}

type TuneResponse struct {
	GuildID   string   `json:"guild_id"`
	Algorithm string   `json:"algorithm,omitempty"`
	Weights   *Weights `json:"weights,omitempty"`
}

type RosterPlayer struct {
	UserID           string             `json:"user_id" yaml:"user_id"`
	Name             string             `json:"name" yaml:"name"`
	Rating           *float64           `json:"rating,omitempty" yaml:"rating,omitempty"`
	CharacterRatings map[string]float64 `json:"character_ratings,omitempty" yaml:"character_ratings,omitempty"`
	Preferred        []string           `json:"preferred,omitempty" yaml:"preferred,omitempty"`
}

type BalancePlayer struct {
	UserID      string   `json:"user_id" yaml:"user_id"`
	Name        string   `json:"name" yaml:"name"`
	Character   string   `json:"character" yaml:"character"`
	Rating      *float64 `json:"rating,omitempty" yaml:"rating,omitempty"`
	Proficiency *float64 `json:"proficiency,omitempty" yaml:"proficiency,omitempty"`
}

// BalanceRequest previews a split without running a draft.
type BalanceRequest struct {
	TeamSize  int             `json:"team_size" yaml:"team_size"`
	Algorithm string          `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Weights   *Weights        `json:"weights,omitempty" yaml:"weights,omitempty"`
	Players   []BalancePlayer `json:"players" yaml:"players"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// Message is the same failure phrased for a player.
	Message string `json:"message,omitempty"`
}
