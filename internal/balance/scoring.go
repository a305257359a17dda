package balance

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// NeutralRating stands in for players without a rating.
const NeutralRating = 1000.0

// skillSpread is the average-rating gap at which skill balance reaches zero.
const skillSpread = 500.0

// Placeholder sub-scores for dimensions that have no model yet.
const neutralBalance = 0.5

const weightTolerance = 0.02

var ErrInvalidWeights = errors.New("invalid balance weights")

type Weights struct {
	Skill   float64 `json:"skill_balance" yaml:"skill_balance"`
	Synergy float64 `json:"synergy_balance" yaml:"synergy_balance"`
	Role    float64 `json:"role_balance" yaml:"role_balance"`
	Tier    float64 `json:"tier_balance" yaml:"tier_balance"`
	Comfort float64 `json:"comfort_balance" yaml:"comfort_balance"`
	Meta    float64 `json:"meta_balance" yaml:"meta_balance"`
}

func DefaultWeights() Weights {
	return Weights{Skill: 0.30, Synergy: 0.25, Role: 0.20, Tier: 0.10, Comfort: 0.10, Meta: 0.05}
}

func (w Weights) Sum() float64 {
	return w.Skill + w.Synergy + w.Role + w.Tier + w.Comfort + w.Meta
}

// Validate rejects weight sets outside [0,1] per weight or whose sum is not
// 1.0 within tolerance. Every violation is reported.
func (w Weights) Validate() error {
	var errs error
	for name, v := range map[string]float64{
		"skill_balance":   w.Skill,
		"synergy_balance": w.Synergy,
		"role_balance":    w.Role,
		"tier_balance":    w.Tier,
		"comfort_balance": w.Comfort,
		"meta_balance":    w.Meta,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			errs = multierr.Append(errs, fmt.Errorf("%s must be between 0 and 1, got %g", name, v))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		errs = multierr.Append(errs, fmt.Errorf("weights must sum to 1.0, got %.3f", sum))
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWeights, errs)
	}
	return nil
}

type Analysis struct {
	Team1AvgSkill  float64 `json:"t1_avg_skill"`
	Team2AvgSkill  float64 `json:"t2_avg_skill"`
	SkillDiff      float64 `json:"skill_diff"`
	Team1Synergy   float64 `json:"synergy_team1"`
	Team2Synergy   float64 `json:"synergy_team2"`
	SkillBalance   float64 `json:"skill_balance"`
	SynergyBalance float64 `json:"synergy_balance"`
	RoleBalance    float64 `json:"role_balance"`
	TierBalance    float64 `json:"tier_balance"`
	ComfortBalance float64 `json:"comfort_balance"`
	MetaBalance    float64 `json:"meta_balance"`
	ProcessingTime float64 `json:"processing_time"`
}

// Scorer evaluates a split with a fixed weight set.
type Scorer struct {
	weights Weights
	synergy Synergy
}

func NewScorer(w Weights, syn Synergy) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w, synergy: syn}, nil
}

func (s *Scorer) Weights() Weights { return s.weights }

// Evaluate scores a split in [0,1]. The weighted sum is divided by the weight
// total so sets that are valid but not exactly 1.0 stay in range.
func (s *Scorer) Evaluate(team1, team2 []Player) (float64, Analysis) {
	a := Analysis{
		Team1AvgSkill:  averageRating(team1),
		Team2AvgSkill:  averageRating(team2),
		Team1Synergy:   s.synergy.Team(characters(team1)),
		Team2Synergy:   s.synergy.Team(characters(team2)),
		RoleBalance:    neutralBalance,
		TierBalance:    neutralBalance,
		ComfortBalance: neutralBalance,
		MetaBalance:    neutralBalance,
	}
	a.SkillDiff = math.Abs(a.Team1AvgSkill - a.Team2AvgSkill)
	a.SkillBalance = math.Max(0, 1-a.SkillDiff/skillSpread)
	a.SynergyBalance = math.Max(0, 1-math.Abs(a.Team1Synergy-a.Team2Synergy))

	w := s.weights
	score := a.SkillBalance*w.Skill +
		a.SynergyBalance*w.Synergy +
		a.RoleBalance*w.Role +
		a.TierBalance*w.Tier +
		a.ComfortBalance*w.Comfort +
		a.MetaBalance*w.Meta
	if sum := w.Sum(); sum > 0 {
		score /= sum
	}
	return math.Min(1, math.Max(0, score)), a
}

// Confidence buckets a score.
func Confidence(score float64) float64 {
	switch {
	case score >= 0.9:
		return 0.9
	case score >= 0.8:
		return 0.8
	case score >= 0.7:
		return 0.7
	default:
		return 0.6
	}
}

func averageRating(team []Player) float64 {
	if len(team) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range team {
		total += p.EffectiveRating()
	}
	return total / float64(len(team))
}

func characters(team []Player) []string {
	out := make([]string, len(team))
	for i, p := range team {
		out[i] = p.Character
	}
	return out
}
