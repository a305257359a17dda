package dice

import (
	"cmp"
	"slices"
)

// RollOffResult describes a d20 dice-off between contenders.
type RollOffResult[T cmp.Ordered] struct {
	Winner   T
	Rolls    map[T]int // last roll per contender
	Attempts int
	// Fallback is set when every attempt tied and the lowest id won.
	Fallback bool
}

// Losers returns every contender except the winner, ascending.
func (r RollOffResult[T]) Losers() []T {
	out := make([]T, 0, len(r.Rolls))
	for id := range r.Rolls {
		if id != r.Winner {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// RollOff rolls a d20 for every contender. Only the subset tied for the
// highest roll re-rolls. After maxAttempts rounds that still tie, the lowest
// id among the remaining contenders wins.
func RollOff[T cmp.Ordered](r Roller, contenders []T, maxAttempts int) RollOffResult[T] {
	res := RollOffResult[T]{Rolls: make(map[T]int, len(contenders))}
	if len(contenders) == 0 {
		return res
	}
	current := slices.Clone(contenders)
	slices.Sort(current)
	if len(current) == 1 {
		res.Winner = current[0]
		return res
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for res.Attempts < maxAttempts {
		res.Attempts++
		best := 0
		for _, id := range current {
			roll := r.RollDie(D20)
			res.Rolls[id] = roll
			best = max(best, roll)
		}
		var top []T
		for _, id := range current {
			if res.Rolls[id] == best {
				top = append(top, id)
			}
		}
		if len(top) == 1 {
			res.Winner = top[0]
			return res
		}
		current = top
	}

	res.Winner = current[0]
	res.Fallback = true
	return res
}

// Order ranks two or more contenders by repeated roll-offs: the winner goes
// first, the rest are ranked among themselves the same way.
func Order[T cmp.Ordered](r Roller, contenders []T, maxAttempts int) ([]T, map[T]int) {
	rolls := make(map[T]int, len(contenders))
	remaining := slices.Clone(contenders)
	var order []T
	for len(remaining) > 0 {
		res := RollOff(r, remaining, maxAttempts)
		for id, v := range res.Rolls {
			if _, seen := rolls[id]; !seen {
				rolls[id] = v
			}
		}
		order = append(order, res.Winner)
		remaining = slices.DeleteFunc(remaining, func(id T) bool { return id == res.Winner })
	}
	return order, rolls
}
