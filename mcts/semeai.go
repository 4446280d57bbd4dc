package mcts

import "github.com/sente-engine/sente/board"

// LibertyState classifies what playing a point does to a group's
// liberty count during a capturing race.
type LibertyState int

const (
	LibertyDecrease LibertyState = iota
	LibertyEven
	LibertyIncrease
)

// CheckLibertyState reports how color playing at point would change
// the liberty count of the resulting group relative to the largest
// friendly neighbor group it connects to. Boards without the group
// capability report LibertyEven.
func CheckLibertyState(state board.State, c board.Color, point int) LibertyState {
	sp, ok := state.(selfAtariProber)
	if !ok {
		return LibertyEven
	}
	size := state.Size()
	if point < 0 || point >= size*size {
		return LibertyEven
	}

	before := 0
	for _, n := range neighborsOf(point, size) {
		if colorAt(sp, n) != c {
			continue
		}
		if libs := len(sp.GroupLiberties(n)); libs > before {
			before = libs
		}
	}
	if before == 0 {
		return LibertyEven // no friendly neighbor: nothing to race with
	}

	// The probe plays via Apply, so the mover must actually be c; a
	// mismatched turn would ask about the opponent's continuation,
	// which the race logic treats as even.
	if state.Turn() != c || !sp.Legal(board.Move(point+1)) {
		return LibertyEven
	}
	played := sp.Clone().Apply(board.Move(point + 1))
	pp, ok := played.(selfAtariProber)
	if !ok {
		return LibertyEven
	}
	after := len(pp.GroupLiberties(point))
	switch {
	case after < before:
		return LibertyDecrease
	case after > before:
		return LibertyIncrease
	}
	return LibertyEven
}

// IsCapturableAtari reports whether color playing at point puts an
// adjacent opponent group in an atari it cannot escape: the group's
// single remaining liberty is itself a self-atari for the opponent.
// This is the one-move capturing-race win the rollout sampler favors.
func IsCapturableAtari(state board.State, c board.Color, point int) bool {
	sp, ok := state.(selfAtariProber)
	if !ok {
		return false
	}
	size := state.Size()
	if point < 0 || point >= size*size || colorAt(sp, point) != board.Empty {
		return false
	}
	if state.Turn() != c || !sp.Legal(board.Move(point+1)) {
		return false
	}

	played := sp.Clone().Apply(board.Move(point + 1))
	pp, ok := played.(selfAtariProber)
	if !ok {
		return false
	}
	opponent := c.Opponent()
	for _, n := range neighborsOf(point, size) {
		if colorAt(pp, n) != opponent {
			continue
		}
		libs := pp.GroupLiberties(n)
		if len(libs) != 1 {
			continue
		}
		// The group is in atari; the capture is unavoidable when the
		// escape onto its last liberty is outright illegal or leaves
		// the group in atari again.
		escape := board.Move(libs[0] + 1)
		if !pp.Legal(escape) || pp.IsSelfAtari(opponent, libs[0]) {
			return true
		}
	}
	return false
}

// BadSelfAtari reports whether color playing at point throws a
// multi-stone group into self-atari without capturing anything, the
// class of rollout move that only hands the opponent free prisoners.
// Single-stone self-ataris stay allowed: they include legitimate
// nakade and ko-fight sacrifices.
func BadSelfAtari(state board.State, c board.Color, point int) bool {
	sp, ok := state.(selfAtariProber)
	if !ok {
		return false
	}
	size := state.Size()
	if point < 0 || point >= size*size {
		return false
	}
	if !sp.IsSelfAtari(c, point) {
		return false
	}
	connected := 0
	capturing := false
	for _, n := range neighborsOf(point, size) {
		switch colorAt(sp, n) {
		case c:
			connected += len(sp.GroupPoints(n))
		case c.Opponent():
			if len(sp.GroupLiberties(n)) == 1 {
				capturing = true
			}
		}
	}
	return connected >= 1 && !capturing
}

func neighborsOf(point, size int) []int {
	row, col := point/size, point%size
	out := make([]int, 0, 4)
	if row > 0 {
		out = append(out, point-size)
	}
	if row < size-1 {
		out = append(out, point+size)
	}
	if col > 0 {
		out = append(out, point-1)
	}
	if col < size-1 {
		out = append(out, point+1)
	}
	return out
}

func colorAt(state board.State, point int) board.Color {
	if cr, ok := state.(cellReader); ok {
		return cr.CellColor(point)
	}
	return board.Empty
}
