package balance

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
)

// simple sorts by rating, highest first, and deals players alternately.
// A full target team overflows into the other one; once both are full the
// rest are extras.
func (r runner) simple() *Result {
	players := slices.Clone(r.players)
	slices.SortStableFunc(players, func(a, b Player) int {
		return cmp.Compare(b.EffectiveRating(), a.EffectiveRating())
	})

	var team1, team2, extras []Player
	for i, p := range players {
		switch {
		case len(team1) >= r.teamSize && len(team2) >= r.teamSize:
			extras = append(extras, p)
		case i%2 == 0 && len(team1) < r.teamSize, i%2 == 1 && len(team2) >= r.teamSize:
			team1 = append(team1, p)
		default:
			team2 = append(team2, p)
		}
	}
	return r.result(team1, team2, extras)
}

type candidate struct {
	score float64
	idx   []int
}

func (r runner) split(idx []int) ([]Player, []Player, []Player) {
	n := len(idx)
	a := min(r.teamSize, n)
	b := min(2*r.teamSize, n)
	return r.pick(idx[:a]), r.pick(idx[a:b]), r.pick(idx[b:])
}

// monteCarlo scores random shuffles and keeps the best; the next-best
// distinct shuffles become alternatives.
func (r runner) monteCarlo(ctx context.Context) (*Result, error) {
	iterations := max(1, r.settings.MonteCarloIterations)
	base := make([]int, len(r.players))
	for i := range base {
		base[i] = i
	}

	candidates := make([]candidate, 0, iterations)
	for i := 0; i < iterations; i++ {
		if i%50 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		idx := slices.Clone(base)
		r.rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		t1, t2, _ := r.split(idx)
		score, _ := r.scorer.Evaluate(t1, t2)
		candidates = append(candidates, candidate{score: score, idx: idx})
	}
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })

	best := candidates[0]
	res := r.result(r.split(best.idx))

	seen := map[string]bool{r.splitKey(best.idx): true}
	for _, c := range candidates[1:] {
		if len(res.Alternatives) >= r.settings.Alternatives {
			break
		}
		key := r.splitKey(c.idx)
		if seen[key] {
			continue
		}
		seen[key] = true
		t1, t2, _ := r.split(c.idx)
		res.Alternatives = append(res.Alternatives, Split{Team1: t1, Team2: t2, Score: c.score})
	}
	return res, nil
}

// splitKey identifies a split regardless of member order or team labels.
func (r runner) splitKey(idx []int) string {
	a := min(r.teamSize, len(idx))
	b := min(2*r.teamSize, len(idx))
	t1 := slices.Sorted(slices.Values(idx[:a]))
	t2 := slices.Sorted(slices.Values(idx[a:b]))
	if slices.Compare(t1, t2) > 0 {
		t1, t2 = t2, t1
	}
	return fmt.Sprint(t1, "|", t2)
}
