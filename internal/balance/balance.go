// Package balance splits a roster with confirmed characters into two teams.
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/servant-draft/internal/dice"
)

type Algorithm string

const (
	AlgorithmSimple     Algorithm = "simple"
	AlgorithmMonteCarlo Algorithm = "monte_carlo"
	AlgorithmGenetic    Algorithm = "genetic"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case AlgorithmSimple, AlgorithmMonteCarlo, AlgorithmGenetic:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

var ErrUnknownAlgorithm = errors.New("unknown balance algorithm")
var ErrEmptyRoster = errors.New("no players to balance")

type Player struct {
	UserID      int64    `json:"user_id,string"`
	Name        string   `json:"name"`
	Character   string   `json:"character"`
	Rating      *float64 `json:"rating,omitempty"`
	Proficiency *float64 `json:"proficiency,omitempty"`
}

func (p Player) EffectiveRating() float64 {
	if p.Rating == nil {
		return NeutralRating
	}
	return *p.Rating
}

type Request struct {
	Players   []Player
	TeamSize  int
	Algorithm Algorithm
	// Weights overrides the balancer's default weights when set.
	Weights *Weights
}

type Split struct {
	Team1 []Player `json:"team1"`
	Team2 []Player `json:"team2"`
	Score float64  `json:"score"`
}

type Result struct {
	Team1        []Player      `json:"team1"`
	Team2        []Player      `json:"team2"`
	Extras       []Player      `json:"extras,omitempty"`
	Score        float64       `json:"score"`
	Confidence   float64       `json:"confidence"`
	Analysis     Analysis      `json:"analysis"`
	Alternatives []Split       `json:"alternatives,omitempty"`
	Algorithm    Algorithm     `json:"algorithm"`
	Elapsed      time.Duration `json:"elapsed"`
}

type Settings struct {
	MonteCarloIterations int
	Population           int
	Generations          int
	MutationRate         float64
	Alternatives         int
}

func DefaultSettings() Settings {
	return Settings{
		MonteCarloIterations: 400,
		Population:           30,
		Generations:          50,
		MutationRate:         0.1,
		Alternatives:         3,
	}
}

type Balancer struct {
	settings Settings
	weights  Weights
	synergy  Synergy
	roller   func() dice.Roller
	log      *zap.Logger
}

type Option func(*Balancer)

// WithRoller replaces the per-call random source, mostly for tests.
func WithRoller(fn func() dice.Roller) Option {
	return func(b *Balancer) { b.roller = fn }
}

func WithWeights(w Weights) Option {
	return func(b *Balancer) { b.weights = w }
}

func New(settings Settings, syn Synergy, log *zap.Logger, opts ...Option) (*Balancer, error) {
	b := &Balancer{
		settings: settings,
		weights:  DefaultWeights(),
		synergy:  syn,
		roller:   func() dice.Roller { return dice.NewRoller(dice.NewSeed()) },
		log:      log,
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.weights.Validate(); err != nil {
		return nil, err
	}
	if b.synergy == nil {
		b.synergy = Synergy{}
	}
	return b, nil
}

func (b *Balancer) DefaultWeights() Weights { return b.weights }

// Balance runs the requested algorithm. Each call draws from its own random
// source, so concurrent calls do not share state.
func (b *Balancer) Balance(ctx context.Context, req Request) (*Result, error) {
	if len(req.Players) == 0 {
		return nil, ErrEmptyRoster
	}
	if req.TeamSize < 1 {
		return nil, fmt.Errorf("team size %d", req.TeamSize)
	}
	weights := b.weights
	if req.Weights != nil {
		weights = *req.Weights
	}
	scorer, err := NewScorer(weights, b.synergy)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	run := runner{scorer: scorer, rng: b.roller(), settings: b.settings, teamSize: req.TeamSize, players: req.Players}

	var res *Result
	switch req.Algorithm {
	case AlgorithmSimple:
		res = run.simple()
	case AlgorithmMonteCarlo:
		res, err = run.monteCarlo(ctx)
	case AlgorithmGenetic, "":
		req.Algorithm = AlgorithmGenetic
		res, err = run.genetic(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, req.Algorithm)
	}
	if err != nil {
		return nil, err
	}

	res.Algorithm = req.Algorithm
	res.Confidence = Confidence(res.Score)
	res.Elapsed = time.Since(began)
	res.Analysis.ProcessingTime = res.Elapsed.Seconds()

	if b.log != nil {
		b.log.Debug("teams balanced",
			zap.String("algorithm", string(res.Algorithm)),
			zap.Int("players", len(req.Players)),
			zap.Float64("score", res.Score),
			zap.Duration("elapsed", res.Elapsed))
	}
	return res, nil
}

type runner struct {
	scorer   *Scorer
	rng      dice.Roller
	settings Settings
	teamSize int
	players  []Player
}

func (r runner) result(team1, team2, extras []Player) *Result {
	score, analysis := r.scorer.Evaluate(team1, team2)
	return &Result{Team1: team1, Team2: team2, Extras: extras, Score: score, Analysis: analysis}
}

func (r runner) pick(idx []int) []Player {
	out := make([]Player, len(idx))
	for i, j := range idx {
		out[i] = r.players[j]
	}
	return out
}
