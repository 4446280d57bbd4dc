package mcts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sente-engine/sente/board"
)

func TestOwnerBonusPeaksAtContestedPoints(t *testing.T) {
	// Bucket 5 is 50% ownership, the most contested a point can be.
	for i := 0; i < ownerMax; i++ {
		require.LessOrEqual(t, ownerBonus[i], ownerBonus[5])
	}
	require.Greater(t, ownerBonus[5], ownerBonus[0])
	require.Greater(t, ownerBonus[5], ownerBonus[ownerMax-1])
}

func TestCriticalityBonusGrowsMonotonically(t *testing.T) {
	require.Equal(t, float32(0), criticalityBonus[0])
	for i := 1; i < criticalityMax; i++ {
		require.Greater(t, criticalityBonus[i], criticalityBonus[i-1])
	}
}

func TestTerritoryGuessUnanimousNeighbors(t *testing.T) {
	b := board.NewSimpleBoard(9)
	// Surround point 10 ((1,1)) with black stones on all four sides.
	b.Apply(board.Move(1 + 1))
	b.Apply(board.PassMove)
	b.Apply(board.Move(9 + 1))
	b.Apply(board.PassMove)
	b.Apply(board.Move(11 + 1))
	b.Apply(board.PassMove)
	b.Apply(board.Move(19 + 1))

	require.Equal(t, board.Black, territoryGuess(b, 9, 10))
}

func TestTerritoryGuessMixedNeighborsIsEmpty(t *testing.T) {
	b := board.NewSimpleBoard(9)
	b.Apply(board.Move(1 + 1))  // Black above point 10
	b.Apply(board.Move(19 + 1)) // White below point 10
	require.Equal(t, board.Empty, territoryGuess(b, 9, 10))
}

func TestTerritoryGuessBareNeighborhoodIsEmpty(t *testing.T) {
	b := board.NewSimpleBoard(9)
	require.Equal(t, board.Empty, territoryGuess(b, 9, 40))
}

func TestSearchStatisticsRecordAndOwner(t *testing.T) {
	s := newSearchStatistics(9)
	b := board.NewSimpleBoard(9)
	b.Apply(board.Move(40 + 1)) // one black stone at the center

	for i := 0; i < 10; i++ {
		s.record(b, board.Black)
	}
	s.calculateOwner(board.Black, 10)

	// The occupied point is fully black-owned.
	require.Equal(t, float32(1), s.ownershipAt(board.Black, 40, 10))
	require.EqualValues(t, ownerMax-1, s.ownerIndex[40])
	// A far empty point with no unanimous neighborhood got no votes.
	require.Equal(t, float32(0), s.ownershipAt(board.Black, 0, 10))
}

func TestSearchStatisticsCriticalityCoincidence(t *testing.T) {
	s := newSearchStatistics(9)
	b := board.NewSimpleBoard(9)
	b.Apply(board.Move(40 + 1))

	// The stone's color always matches the winner: maximal coincidence
	// against a 50% root winrate.
	for i := 0; i < 8; i++ {
		s.record(b, board.Black)
	}
	s.calculateCriticality(board.Black, 8, 0.5)
	require.Greater(t, s.criticalityAt(40), float32(0))
	require.Greater(t, s.criticalityIndex[40], int32(0))
}

func TestSearchStatisticsResetClearsEverything(t *testing.T) {
	s := newSearchStatistics(9)
	b := board.NewSimpleBoard(9)
	b.Apply(board.Move(40 + 1))
	s.record(b, board.Black)
	s.calculateOwner(board.Black, 1)
	s.reset()
	require.Equal(t, float32(0), s.ownershipAt(board.Black, 40, 1))
	require.EqualValues(t, 0, s.ownerIndex[40])
}

func TestDynamicBonusZeroForPassAndOutOfRange(t *testing.T) {
	s := newSearchStatistics(9)
	require.Equal(t, float32(0), s.dynamicBonus(board.PassMove))
	require.Equal(t, float32(0), s.dynamicBonus(board.Move(1000)))
}

func TestScoreWinnerTieBreaksTowardSearcher(t *testing.T) {
	require.Equal(t, board.Black, scoreWinner(1, board.Black))
	require.Equal(t, board.Black, scoreWinner(0, board.Black))
	require.Equal(t, board.White, scoreWinner(-1, board.Black))
	require.Equal(t, board.White, scoreWinner(0, board.White))
	require.Equal(t, board.Black, scoreWinner(0.5, board.White))
}
