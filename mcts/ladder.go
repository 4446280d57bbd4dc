package mcts

import "github.com/sente-engine/sente/board"

// LadderStatus is the per-point classification the analyzer returns.
type LadderStatus uint8

const (
	LadderNone LadderStatus = iota
	LadderCapture
	LadderEscape
)

// ladderMaxDepth bounds the capture-or-escape simulation.
const ladderMaxDepth = 100

// LadderBoard is the optional capability a board.State implementation
// exposes so the ladder analyzer can read group liberties without
// owning board rules itself.
type LadderBoard interface {
	board.State
	GroupPoints(point int) []int
	GroupLiberties(point int) []int
}

// ClassifyLadders returns a Size()xSize() matrix of best-effort ladder
// status, used by SearchEngine as a prior-suppression signal for newly
// generated children on boards >= 11x11. It is a
// pure function with no shared state. On a board that doesn't
// implement LadderBoard, or a fully empty board, every point is
// LadderNone.
//
// A group already down to a single liberty is simply capturable next
// move and reported CAPTURE without simulation. A group with exactly
// two liberties is the classic ladder starting shape: the analyzer
// plays the attacker reducing it to one liberty, lets the defender
// extend to the liberty that again leaves exactly one (discarding
// branches that immediately escape to three or more), and repeats up
// to ladderMaxDepth plies.
func ClassifyLadders(state board.State) [][]LadderStatus {
	size := state.Size()
	matrix := make([][]LadderStatus, size)
	for i := range matrix {
		matrix[i] = make([]LadderStatus, size)
	}
	lb, ok := state.(LadderBoard)
	if !ok {
		return matrix
	}
	for i := 0; i < size*size; i++ {
		row, col := i/size, i%size
		group := lb.GroupPoints(i)
		if len(group) == 0 {
			continue
		}
		libs := lb.GroupLiberties(i)
		switch len(libs) {
		case 0, 1:
			matrix[row][col] = LadderCapture
		case 2:
			matrix[row][col] = classifyLadderChase(lb, i)
		default:
			matrix[row][col] = LadderNone
		}
	}
	return matrix
}

// classifyLadderChase runs the alternating reduce/extend simulation
// described above, starting from a 2-liberty group at point.
func classifyLadderChase(lb LadderBoard, point int) LadderStatus {
	state := lb.Clone()
	defender := cellColorOf(state, point)
	if defender == board.Empty {
		return LadderNone
	}
	attacker := defender.Opponent()

	for depth := 0; depth < ladderMaxDepth; depth++ {
		cur, ok := state.(LadderBoard)
		if !ok {
			return LadderEscape
		}
		group := cur.GroupPoints(point)
		if len(group) == 0 {
			return LadderCapture
		}
		libs := cur.GroupLiberties(point)
		if len(libs) == 0 {
			return LadderCapture
		}
		if len(libs) >= 3 {
			return LadderEscape
		}

		// Attacker plays one liberty, aiming to leave exactly one.
		attackPoint, ok := pickAttackLiberty(cur, libs, point)
		if !ok || cur.Turn() != attacker {
			return LadderEscape
		}
		state = cur.Apply(board.Move(attackPoint + 1))
		point = representativePoint(state, group, point)
		if point < 0 {
			return LadderCapture
		}

		cur, ok = state.(LadderBoard)
		if !ok {
			return LadderEscape
		}
		group = cur.GroupPoints(point)
		if len(group) == 0 {
			return LadderCapture
		}
		libs = cur.GroupLiberties(point)
		if len(libs) == 0 {
			return LadderCapture
		}
		if len(libs) >= 3 {
			return LadderEscape
		}
		// Defender extends onto its remaining liberty.
		if cur.Turn() != defender || !cur.Legal(board.Move(libs[0]+1)) {
			return LadderEscape
		}
		state = cur.Apply(board.Move(libs[0] + 1))
		point = representativePoint(state, group, point)
		if point < 0 {
			return LadderCapture
		}
	}
	return LadderEscape
}

// pickAttackLiberty chooses, among the group's (at most two)
// liberties, a legal move for the attacker to play. Real ladder
// reading would try both and require both branches to capture; this
// best-effort version tries the first legal candidate.
func pickAttackLiberty(cur LadderBoard, libs []int, groupPoint int) (int, bool) {
	for _, l := range libs {
		m := board.Move(l + 1)
		if cur.Legal(m) {
			return l, true
		}
	}
	return 0, false
}

func cellColorOf(state board.State, point int) board.Color {
	type cellReader interface{ CellColor(int) board.Color }
	if cr, ok := state.(cellReader); ok {
		return cr.CellColor(point)
	}
	return board.Empty
}

// representativePoint finds a surviving stone of the original group
// after a move was applied, so the next iteration can keep tracking
// the same chain.
func representativePoint(state board.State, prevGroup []int, fallback int) int {
	type cellReader interface{ CellColor(int) board.Color }
	cr, ok := state.(cellReader)
	if !ok {
		return fallback
	}
	color := cr.CellColor(fallback)
	if color != board.Empty {
		return fallback
	}
	for _, p := range prevGroup {
		if c := cr.CellColor(p); c != board.Empty {
			return p
		}
	}
	return -1
}
