package mcts

import "github.com/sente-engine/sente/board"

// selfAtariProber is the optional capability seki detection needs from
// a board: whether a color playing a point would leave itself with
// exactly one liberty.
type selfAtariProber interface {
	board.State
	IsSelfAtari(c board.Color, point int) bool
	GroupPoints(point int) []int
	GroupLiberties(point int) []int
}

// sekiMaxStringSize bounds the strings considered: larger groups have
// enough eye potential that the shared-liberty shape is rarely a true
// seki.
const sekiMaxStringSize = 6

// CheckSeki marks the points of best-effort seki shapes on state: a
// point both colors would be putting themselves in atari by playing is
// a seki candidate, and a small two-liberty string whose liberties are
// both candidates is living in seki along with those liberties.
// Playouts leave marked points alone so a settled seki is not destroyed
// by random sampling. Boards without the self-atari capability get an
// all-false result.
func CheckSeki(state board.State) []bool {
	size := state.Size()
	seki := make([]bool, size*size)
	sp, ok := state.(selfAtariProber)
	if !ok {
		return seki
	}

	candidate := make([]bool, size*size)
	for p := range candidate {
		if sp.IsSelfAtari(board.Black, p) && sp.IsSelfAtari(board.White, p) {
			candidate[p] = true
		}
	}

	visited := make([]bool, size*size)
	for p := range visited {
		if visited[p] {
			continue
		}
		group := sp.GroupPoints(p)
		if len(group) == 0 {
			continue
		}
		for _, g := range group {
			visited[g] = true
		}
		if len(group) >= sekiMaxStringSize {
			continue
		}
		libs := sp.GroupLiberties(p)
		if len(libs) != 2 {
			continue
		}
		if candidate[libs[0]] && candidate[libs[1]] {
			seki[libs[0]] = true
			seki[libs[1]] = true
			for _, g := range group {
				seki[g] = true
			}
		}
	}
	return seki
}
