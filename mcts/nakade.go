package mcts

import "github.com/sente-engine/sente/board"

// Nakade: a surrounded empty region small enough that one well-placed
// stone decides whether the surrounding group can ever make two eyes.
// The production engine drives this from a precomputed shape-hash
// table; this version classifies the handful of decisive shapes
// directly from region geometry and is explicitly best-effort beyond
// them.

// nakadeMaxRegion bounds the region sizes considered. Seven-point and
// larger eye spaces are alive outright.
const nakadeMaxRegion = 6

// NakadePoint returns the vital point of region (a connected set of
// empty points), or -1 when the shape has none: a stone on the vital
// point reduces the region to a dead shape, while anywhere else lets
// the defender partition it into two eyes.
func NakadePoint(region []int, size int) int {
	n := len(region)
	if n < 3 || n > nakadeMaxRegion {
		return -1
	}
	in := make(map[int]bool, n)
	for _, p := range region {
		in[p] = true
	}
	degree := func(p int) int {
		d := 0
		for _, q := range neighborsOf(p, size) {
			if in[q] {
				d++
			}
		}
		return d
	}
	maxDeg, vital := -1, -1
	for _, p := range region {
		if d := degree(p); d > maxDeg {
			maxDeg, vital = d, p
		}
	}

	switch n {
	case 3:
		// Any three-point region is a line or bend; its middle kills.
		if maxDeg == 2 {
			return vital
		}
	case 4:
		// Only the T-shape (pyramid four) has a vital point; squares,
		// lines and bends are settled without one.
		if maxDeg == 3 {
			return vital
		}
	case 5:
		// Cross five (center degree 4) and bulky five (a 2x2 block plus
		// one, center degree 3) are killable at the center.
		if maxDeg == 4 {
			return vital
		}
		if maxDeg == 3 && hasSquareBlock(in, size) {
			return vital
		}
	case 6:
		// Rabbity six: a 2x2 block with two extensions off one corner.
		if maxDeg == 4 && hasSquareBlock(in, size) {
			return vital
		}
	}
	return -1
}

// hasSquareBlock reports whether the region contains a full 2x2 block,
// the distinguishing feature of the bulky five and rabbity six.
func hasSquareBlock(in map[int]bool, size int) bool {
	for p := range in {
		row, col := p/size, p%size
		if row >= size-1 || col >= size-1 {
			continue
		}
		if in[p+1] && in[p+size] && in[p+size+1] {
			return true
		}
	}
	return false
}

// SearchNakade scans state for single-color-bordered empty regions of
// nakade size belonging to color's opponent and returns the vital
// points color should occupy. Boards without the per-point capability
// return nothing.
func SearchNakade(state board.State, color board.Color) []int {
	cr, ok := state.(cellReader)
	if !ok {
		return nil
	}
	size := state.Size()
	n := size * size
	visited := make([]bool, n)
	opponent := color.Opponent()
	var vitals []int

	for start := 0; start < n; start++ {
		if visited[start] || cr.CellColor(start) != board.Empty {
			continue
		}
		region, border := floodEmptyRegion(cr, size, start, visited)
		if border != opponent || len(region) > nakadeMaxRegion {
			continue
		}
		if v := NakadePoint(region, size); v >= 0 {
			vitals = append(vitals, v)
		}
	}
	return vitals
}

// floodEmptyRegion collects the connected empty region containing
// start and the single color bordering it (Empty when mixed).
func floodEmptyRegion(cr cellReader, size, start int, visited []bool) (region []int, border board.Color) {
	stack := []int{start}
	visited[start] = true
	mixed := false
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		region = append(region, p)
		for _, q := range neighborsOf(p, size) {
			switch cr.CellColor(q) {
			case board.Empty:
				if !visited[q] {
					visited[q] = true
					stack = append(stack, q)
				}
			default:
				c := cr.CellColor(q)
				if border == board.Empty {
					border = c
				} else if border != c {
					mixed = true
				}
			}
		}
	}
	if mixed {
		return region, board.Empty
	}
	return region, border
}

// boostNakadePriors raises the prior of children landing on a nakade
// vital point, so the killable eye shape is read before the widening
// schedule would otherwise reach it.
const nakadePriorBoost = 0.1

func boostNakadePriors(state board.State, node *SearchNode) {
	vitals := SearchNakade(state, state.Turn())
	if len(vitals) == 0 {
		return
	}
	vital := make(map[board.Move]bool, len(vitals))
	for _, v := range vitals {
		vital[board.Move(v+1)] = true
	}
	children := node.Children()
	for i := range children {
		if vital[children[i].move] {
			children[i].priorScore += nakadePriorBoost
		}
	}
}
