package engine

// PickStep is one round of captain picks: how many players the first-pick
// captain takes, then how many the other captain takes.
type PickStep struct {
	First  int
	Second int
}

// PickOrder is keyed by team size. Captains already sit on their teams, so
// each pattern assigns exactly 2*(size-1) players.
var PickOrder = map[int][]PickStep{
	2: {
		{First: 1, Second: 1},
	},
	3: {
		{First: 1, Second: 2},
		{First: 1, Second: 0},
	},
	5: {
		{First: 1, Second: 2},
		{First: 2, Second: 2},
		{First: 1, Second: 0},
	},
	6: {
		{First: 1, Second: 2},
		{First: 2, Second: 2},
		{First: 2, Second: 1},
	},
}
