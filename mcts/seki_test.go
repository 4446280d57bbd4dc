package mcts

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sente-engine/sente/board"
)

func TestCheckSekiEmptyBoardAllFalse(t *testing.T) {
	seki := CheckSeki(board.NewSimpleBoard(9))
	require.Len(t, seki, 81)
	for _, v := range seki {
		require.False(t, v)
	}
}

func TestCheckSekiGracefulWithoutProber(t *testing.T) {
	seki := CheckSeki(plainState{size: 9})
	require.Len(t, seki, 81)
	for _, v := range seki {
		require.False(t, v)
	}
}

// sekiStub scripts the self-atari/group surface so the marking logic
// can be exercised without hand-building a full seki position.
type sekiStub struct {
	plainState
	selfAtari map[int]bool  // points that are self-atari for BOTH colors
	groups    map[int][]int // representative -> group points
	libs      map[int][]int // representative -> liberties
}

func (s sekiStub) IsSelfAtari(c board.Color, point int) bool { return s.selfAtari[point] }
func (s sekiStub) GroupPoints(point int) []int               { return s.groups[point] }
func (s sekiStub) GroupLiberties(point int) []int            { return s.libs[point] }

func TestCheckSekiMarksTwoLibertyStringWithMutualSelfAtariLiberties(t *testing.T) {
	stub := sekiStub{
		plainState: plainState{size: 9},
		selfAtari:  map[int]bool{2: true, 5: true},
		groups:     map[int][]int{3: {3, 4}, 4: {3, 4}},
		libs:       map[int][]int{3: {2, 5}, 4: {2, 5}},
	}
	seki := CheckSeki(stub)
	require.True(t, seki[2])
	require.True(t, seki[5])
	require.True(t, seki[3])
	require.True(t, seki[4])
	require.False(t, seki[10])
}

func TestCheckSekiIgnoresLargeStrings(t *testing.T) {
	group := []int{3, 4, 12, 13, 21, 22} // sekiMaxStringSize stones
	groups := map[int][]int{}
	libs := map[int][]int{}
	for _, p := range group {
		groups[p] = group
		libs[p] = []int{2, 5}
	}
	stub := sekiStub{
		plainState: plainState{size: 9},
		selfAtari:  map[int]bool{2: true, 5: true},
		groups:     groups,
		libs:       libs,
	}
	seki := CheckSeki(stub)
	for _, v := range seki {
		require.False(t, v)
	}
}

func TestRolloutAvoidsSekiPoints(t *testing.T) {
	sim := NewSimulator(nil)
	state := board.NewSimpleBoard(5)
	seki := make([]bool, 25)
	seki[12] = true // center

	rng := rand.New(rand.NewSource(3))
	sim.Rollout(state.Clone(), seki, rng)
	// The rollout mutated its own clone; replay on a fresh clone and
	// check the sampler itself never hands out the seki point.
	fresh := board.NewSimpleBoard(5)
	for i := 0; i < 200; i++ {
		m := sim.sample(fresh, seki, rng)
		require.NotEqual(t, board.Move(13), m, "sampler must never select a seki point")
	}
}
