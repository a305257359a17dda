package balance

import (
	"context"
	"slices"
	"sort"
)

// individual is a split expressed as player indices. Member lists are kept
// sorted ascending.
type individual struct {
	t1, t2, ex []int
}

func (in individual) clone() individual {
	return individual{t1: slices.Clone(in.t1), t2: slices.Clone(in.t2), ex: slices.Clone(in.ex)}
}

func (r runner) randomIndividual() individual {
	idx := make([]int, len(r.players))
	for i := range idx {
		idx[i] = i
	}
	r.rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
	a := min(r.teamSize, len(idx))
	b := min(2*r.teamSize, len(idx))
	return individual{
		t1: slices.Sorted(slices.Values(idx[:a])),
		t2: slices.Sorted(slices.Values(idx[a:b])),
		ex: slices.Sorted(slices.Values(idx[b:])),
	}
}

// build completes a child from its first team: team 2 and extras come from
// the remaining indices in order. Union-based crossover can produce a short
// first team; it is topped up at random from the remainder.
func (r runner) build(first []int) individual {
	in := map[int]bool{}
	var t1 []int
	for _, i := range first {
		if !in[i] {
			in[i] = true
			t1 = append(t1, i)
		}
	}
	var rest []int
	for i := range r.players {
		if !in[i] {
			rest = append(rest, i)
		}
	}
	want := min(r.teamSize, len(r.players))
	if len(t1) < want {
		r.rng.Shuffle(len(rest), func(a, b int) { rest[a], rest[b] = rest[b], rest[a] })
		need := want - len(t1)
		t1 = append(t1, rest[:need]...)
		rest = slices.Sorted(slices.Values(rest[need:]))
	}
	slices.Sort(t1)
	cut := min(r.teamSize, len(rest))
	return individual{t1: t1, t2: slices.Clone(rest[:cut]), ex: slices.Clone(rest[cut:])}
}

func (r runner) crossover(a, b individual) (individual, individual) {
	cut := r.rng.Intn(min(len(a.t1), len(b.t1)) + 1)
	first1 := append(slices.Clone(a.t1[:cut]), b.t1[cut:]...)
	first2 := append(slices.Clone(b.t1[:cut]), a.t1[cut:]...)
	return r.build(first1), r.build(first2)
}

func (r runner) mutate(in individual) individual {
	if r.rng.Float64() >= r.settings.MutationRate || len(in.t1) == 0 || len(in.t2) == 0 {
		return in
	}
	r.swapOne(&in)
	return in
}

func (r runner) swapOne(in *individual) {
	i := r.rng.Intn(len(in.t1))
	j := r.rng.Intn(len(in.t2))
	in.t1[i], in.t2[j] = in.t2[j], in.t1[i]
	slices.Sort(in.t1)
	slices.Sort(in.t2)
}

func (r runner) score(in individual) float64 {
	s, _ := r.scorer.Evaluate(r.pick(in.t1), r.pick(in.t2))
	return s
}

type scored struct {
	score float64
	in    individual
}

// genetic evolves a population of splits with elitism, top-half parent
// selection, one-point crossover on team 1 and swap mutation. The best split
// seen in any generation wins.
func (r runner) genetic(ctx context.Context) (*Result, error) {
	popSize := max(2, r.settings.Population)
	elites := max(2, popSize/5)
	parentPool := max(2, popSize/2)

	population := make([]individual, popSize)
	for i := range population {
		population[i] = r.randomIndividual()
	}

	best := scored{score: -1}
	for g := 0; g < max(1, r.settings.Generations); g++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ranked := make([]scored, len(population))
		for i, in := range population {
			ranked[i] = scored{score: r.score(in), in: in}
			if ranked[i].score > best.score {
				best = scored{score: ranked[i].score, in: in.clone()}
			}
		}
		sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

		next := make([]individual, 0, popSize)
		for _, s := range ranked[:min(elites, len(ranked))] {
			next = append(next, s.in.clone())
		}
		pool := ranked[:min(parentPool, len(ranked))]
		for len(next) < popSize {
			i := r.rng.Intn(len(pool))
			j := r.rng.Intn(len(pool) - 1)
			if j >= i {
				j++
			}
			c1, c2 := r.crossover(pool[i].in, pool[j].in)
			next = append(next, r.mutate(c1))
			if len(next) < popSize {
				next = append(next, r.mutate(c2))
			}
		}
		population = next
	}

	res := r.result(r.pick(best.in.t1), r.pick(best.in.t2), r.pick(best.in.ex))
	if len(best.in.t1) > 0 && len(best.in.t2) > 0 {
		for k := 0; k < r.settings.Alternatives; k++ {
			alt := best.in.clone()
			r.swapOne(&alt)
			t1, t2 := r.pick(alt.t1), r.pick(alt.t2)
			score, _ := r.scorer.Evaluate(t1, t2)
			res.Alternatives = append(res.Alternatives, Split{Team1: t1, Team2: t2, Score: score})
		}
	}
	return res, nil
}
