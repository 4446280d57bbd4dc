package mcts

import (
	"sync/atomic"

	"github.com/chewxy/math32"

	"github.com/sente-engine/sente/board"
)

// Ownership and criticality discretization. Ownership is bucketed into
// ownerMax bins of one tenth each; criticality into criticalityMax
// bins of 1/40 each. Both feed small precomputed bonus tables added to
// a child's prior during widening re-sorts.
const (
	ownerMax       = 11
	criticalityMax = 7

	ownerK          = 0.05
	ownerBias       = 34.0
	criticalityBias = 0.036
)

// ownerBonus[i] peaks at contested points (ownership near 50%) and
// decays toward settled ones; criticalityBonus[i] grows exponentially
// with how often a point's final color coincides with winning.
var (
	ownerBonus       = computeOwnerBonus()
	criticalityBonus = computeCriticalityBonus()
)

func computeOwnerBonus() [ownerMax]float32 {
	var t [ownerMax]float32
	for i := range t {
		d := float32(i - 5)
		t[i] = ownerK * math32.Exp(-(d*d)/ownerBias)
	}
	return t
}

func computeCriticalityBonus() [criticalityMax]float32 {
	var t [criticalityMax]float32
	for i := range t {
		t[i] = math32.Exp(criticalityBias*float32(i)) - 1
	}
	return t
}

// searchStatistics is the root-scope per-point tally refreshed by the
// statistics worker during a wave: raw playout votes plus the derived
// owner/criticality indices the UCB re-sort reads.
type searchStatistics struct {
	size   int
	points int

	// votes[0] counts "final color matched the playout winner";
	// votes[1]/votes[2] count black/white final occupancy. All atomic.
	votes [3][]uint32

	ownerIndex       []int32 // atomic, bucket into ownerBonus
	criticalityIndex []int32 // atomic, bucket into criticalityBonus
	criticality      []uint32 // atomic float32 bits, the raw value
}

func newSearchStatistics(size int) *searchStatistics {
	n := size * size
	return &searchStatistics{
		size:             size,
		points:           n,
		votes:            [3][]uint32{make([]uint32, n), make([]uint32, n), make([]uint32, n)},
		ownerIndex:       make([]int32, n),
		criticalityIndex: make([]int32, n),
		criticality:      make([]uint32, n),
	}
}

func (s *searchStatistics) reset() {
	for c := range s.votes {
		for i := range s.votes[c] {
			atomic.StoreUint32(&s.votes[c][i], 0)
		}
	}
	for i := 0; i < s.points; i++ {
		atomic.StoreInt32(&s.ownerIndex[i], 0)
		atomic.StoreInt32(&s.criticalityIndex[i], 0)
		atomic.StoreUint32(&s.criticality[i], 0)
	}
}

// record tallies one finished playout's final board, voting each
// point's color (or a territory guess for empty points) and marking
// winner coincidence.
func (s *searchStatistics) record(final board.State, winner board.Color) {
	cr, ok := final.(cellReader)
	if !ok {
		return
	}
	for i := 0; i < s.points; i++ {
		c := cr.CellColor(i)
		if c == board.Empty {
			c = territoryGuess(cr, s.size, i)
		}
		if c == board.Empty {
			continue // contested / neutral point, no vote
		}
		atomic.AddUint32(&s.votes[c][i], 1)
		if c == winner {
			atomic.AddUint32(&s.votes[0][i], 1)
		}
	}
}

// cellReader is the optional per-point occupancy capability the
// statistics and ownership paths probe board.State implementations
// for.
type cellReader interface{ CellColor(int) board.Color }

// territoryGuess attributes an empty point to whichever color owns
// every adjacent stone, Empty when the neighborhood is mixed or bare.
// The production engine substitutes a trained 3x3-pattern territory
// table here; neighbor unanimity is the collaborator-free stand-in.
func territoryGuess(cr cellReader, size, point int) board.Color {
	row, col := point/size, point%size
	owner := board.Empty
	check := func(p int) bool {
		c := cr.CellColor(p)
		if c == board.Empty {
			return true
		}
		if owner == board.Empty {
			owner = c
			return true
		}
		return owner == c
	}
	if row > 0 && !check(point-size) {
		return board.Empty
	}
	if row < size-1 && !check(point+size) {
		return board.Empty
	}
	if col > 0 && !check(point-1) {
		return board.Empty
	}
	if col < size-1 && !check(point+1) {
		return board.Empty
	}
	return owner
}

// calculateOwner refreshes the per-point ownership buckets for the
// searching color, given the current global playout count.
func (s *searchStatistics) calculateOwner(color board.Color, count uint32) {
	if count == 0 {
		return
	}
	for i := 0; i < s.points; i++ {
		votes := atomic.LoadUint32(&s.votes[color][i])
		idx := int32(float32(votes)*10/float32(count) + 0.5)
		if idx > ownerMax-1 {
			idx = ownerMax - 1
		}
		if idx < 0 {
			idx = 0
		}
		atomic.StoreInt32(&s.ownerIndex[i], idx)
	}
}

// calculateCriticality refreshes the per-point criticality buckets:
// how much more often a point ends up the winner's color than its raw
// ownership alone predicts.
func (s *searchStatistics) calculateCriticality(color board.Color, count uint32, rootWinrate float32) {
	if count == 0 {
		return
	}
	other := color.Opponent()
	win := rootWinrate
	lose := 1 - win
	n := float32(count)
	for i := 0; i < s.points; i++ {
		coincide := float32(atomic.LoadUint32(&s.votes[0][i])) / n
		own := float32(atomic.LoadUint32(&s.votes[color][i])) / n
		opp := float32(atomic.LoadUint32(&s.votes[other][i])) / n
		crit := coincide - (own*win + opp*lose)
		atomic.StoreUint32(&s.criticality[i], math32.Float32bits(crit))
		if crit < 0 {
			crit = 0
		}
		idx := int32(crit * 40)
		if idx > criticalityMax-1 {
			idx = criticalityMax - 1
		}
		atomic.StoreInt32(&s.criticalityIndex[i], idx)
	}
}

// ownershipAt returns the fraction of recorded playouts in which point
// ended up color's, in [0,1].
func (s *searchStatistics) ownershipAt(color board.Color, point int, count uint32) float32 {
	if count == 0 {
		return 0.5
	}
	return float32(atomic.LoadUint32(&s.votes[color][point])) / float32(count)
}

func (s *searchStatistics) criticalityAt(point int) float32 {
	return math32.Float32frombits(atomic.LoadUint32(&s.criticality[point]))
}

// dynamicBonus is the "dynamic_parameter" added to a child's prior
// during widening re-sorts: the owner bonus plus the criticality bonus
// for the child's destination point. Pass contributes nothing.
func (s *searchStatistics) dynamicBonus(move board.Move) float32 {
	if move == board.PassMove {
		return 0
	}
	point := int(move) - 1
	if point < 0 || point >= s.points {
		return 0
	}
	o := atomic.LoadInt32(&s.ownerIndex[point])
	c := atomic.LoadInt32(&s.criticalityIndex[point])
	return ownerBonus[o] + criticalityBonus[c]
}

// nodeCriticalityAt returns the raw criticality of point from a
// node's own statistic table, the value the heatmap renderer overlays.
func nodeCriticalityAt(node *SearchNode, stats *pointStats, point int) float32 {
	count := node.MoveCount()
	if stats == nil || count == 0 || point < 0 || point >= len(stats.colors[0]) {
		return 0
	}
	n := float32(count)
	win := node.WinRate()
	lose := 1 - win
	color := node.Color()
	other := color.Opponent()
	coincide := float32(atomic.LoadUint32(&stats.colors[0][point])) / n
	own := float32(atomic.LoadUint32(&stats.colors[color][point])) / n
	opp := float32(atomic.LoadUint32(&stats.colors[other][point])) / n
	return coincide - (own*win + opp*lose)
}

// nodeCriticalityBonus computes the same owner+criticality bonus from
// a single node's own statistic table instead of the root-scope one,
// used by the per-node 128-visit re-sort where the node's local playout
// population is what matters.
func nodeCriticalityBonus(node *SearchNode, stats *pointStats, move board.Move, color board.Color) float32 {
	if move == board.PassMove || stats == nil {
		return 0
	}
	point := int(move) - 1
	count := node.MoveCount()
	if count == 0 || point < 0 || point >= len(stats.colors[0]) {
		return 0
	}
	own := float32(atomic.LoadUint32(&stats.colors[color][point])) / float32(count)
	oIdx := int32(own*10 + 0.5)
	if oIdx > ownerMax-1 {
		oIdx = ownerMax - 1
	}
	if oIdx < 0 {
		oIdx = 0
	}
	crit := nodeCriticalityAt(node, stats, point)
	if crit < 0 {
		crit = 0
	}
	cIdx := int32(crit * 40)
	if cIdx > criticalityMax-1 {
		cIdx = criticalityMax - 1
	}
	return ownerBonus[oIdx] + criticalityBonus[cIdx]
}
