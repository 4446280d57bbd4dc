package board

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSimpleBoardStartsEmptyBlackToMove(t *testing.T) {
	b := NewSimpleBoard(9)
	require.Equal(t, Black, b.Turn())
	require.Equal(t, 0, b.MoveNumber())
	require.Equal(t, 82, b.ActionSpace())
	for i := 0; i < 81; i++ {
		require.Equal(t, Empty, b.CellColor(i))
	}
}

// TestApplyCapturesSurroundedStone surrounds a lone White stone at
// point 10 ((1,1) on a 9x9 board) with Black stones on all four
// orthogonal neighbors, verifying it is removed the instant its last
// liberty disappears.
func TestApplyCapturesSurroundedStone(t *testing.T) {
	b := NewSimpleBoard(9)
	b.Apply(Move(1 + 1))  // Black (0,1), point 10's up neighbor
	b.Apply(Move(10 + 1)) // White plays point 10, the stone to be captured
	b.Apply(Move(9 + 1))  // Black (1,0), point 10's left neighbor
	b.Apply(Move(2 + 1))  // White elsewhere
	b.Apply(Move(11 + 1)) // Black (1,2), point 10's right neighbor
	b.Apply(Move(3 + 1))  // White elsewhere
	require.Equal(t, White, b.CellColor(10))
	b.Apply(Move(19 + 1)) // Black (2,1), point 10's down neighbor: completes the capture
	require.Equal(t, Empty, b.CellColor(10))
}

func TestLegalRejectsOccupiedPoint(t *testing.T) {
	b := NewSimpleBoard(9)
	b.Apply(Move(10 + 1)) // Black plays point 10
	require.False(t, b.Legal(Move(10+1)), "an occupied point must never be legal")
}

func TestPassMoveAlwaysLegalAndAlternatesTurn(t *testing.T) {
	b := NewSimpleBoard(9)
	require.True(t, b.Legal(PassMove))
	b.Apply(PassMove)
	require.Equal(t, White, b.Turn())
	require.Equal(t, 1, b.MoveNumber())
}

func TestEndedAfterTwoConsecutivePasses(t *testing.T) {
	b := NewSimpleBoard(9)
	ended, _ := b.Ended()
	require.False(t, ended)
	b.Apply(PassMove)
	ended, _ = b.Ended()
	require.False(t, ended)
	b.Apply(PassMove)
	ended, winner := b.Ended()
	require.True(t, ended)
	require.Equal(t, Empty, winner) // no territory on an empty board: tie
}

func TestScoreCountsWholeBoardAsTerritoryWhenEmpty(t *testing.T) {
	b := NewSimpleBoard(9)
	require.Equal(t, float32(81), b.Score(Black, 0))
	require.Equal(t, float32(0), b.Score(White, 0))
	require.Equal(t, float32(7.5), b.Score(White, 7.5))
}

func TestGroupPointsAndLibertiesForSingleStone(t *testing.T) {
	b := NewSimpleBoard(9)
	b.Apply(Move(10 + 1)) // Black at point 10, i.e. (1,1)
	pts := b.GroupPoints(10)
	require.ElementsMatch(t, []int{10}, pts)
	libs := b.GroupLiberties(10)
	require.Len(t, libs, 4) // interior point: up/down/left/right all empty
}

func TestGroupPointsEmptyAtUnoccupiedPoint(t *testing.T) {
	b := NewSimpleBoard(9)
	require.Nil(t, b.GroupPoints(5))
	require.Nil(t, b.GroupLiberties(5))
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	b := NewSimpleBoard(9)
	b.Apply(Move(10 + 1))
	clone := b.Clone().(*SimpleBoard)
	clone.Apply(Move(20 + 1))
	require.Equal(t, Black, clone.CellColor(10)) // shared history up to clone point
	require.Equal(t, Empty, b.CellColor(20), "mutating the clone must not affect the original")
}

func TestEqComparesHashTurnAndMoveNumber(t *testing.T) {
	a := NewSimpleBoard(9)
	b := NewSimpleBoard(9)
	require.True(t, a.Eq(b))
	b.Apply(PassMove)
	require.False(t, a.Eq(b))
}

func TestHashChangesAfterAMove(t *testing.T) {
	b := NewSimpleBoard(9)
	before := b.Hash()
	b.Apply(Move(10 + 1))
	require.NotEqual(t, before, b.Hash())
}

func TestHashIsDeterministicAcrossBoards(t *testing.T) {
	a := NewSimpleBoard(9)
	b := NewSimpleBoard(9)
	a.Apply(Move(10 + 1))
	b.Apply(Move(10 + 1))
	require.Equal(t, a.Hash(), b.Hash())
}

func TestRecordedMoveWalksHistoryBackward(t *testing.T) {
	b := NewSimpleBoard(9)
	b.Apply(Move(10 + 1))
	b.Apply(PassMove)
	b.Apply(Move(20 + 1))

	require.Equal(t, Move(20+1), b.RecordedMove(1))
	require.Equal(t, PassMove, b.RecordedMove(2))
	require.Equal(t, Move(10+1), b.RecordedMove(3))
	require.Equal(t, PassMove, b.RecordedMove(4), "out-of-range lookups default to pass")
	require.Equal(t, PassMove, b.RecordedMove(0))
}

func TestRecordedMoveSurvivesClone(t *testing.T) {
	b := NewSimpleBoard(9)
	b.Apply(PassMove)
	clone := b.Clone().(*SimpleBoard)
	clone.Apply(Move(10 + 1))
	require.Equal(t, PassMove, b.RecordedMove(1))
	require.Equal(t, Move(10+1), clone.RecordedMove(1))
}

func TestIsSelfAtariDetectsSingleLibertyPlacement(t *testing.T) {
	b := NewSimpleBoard(9)
	b.Apply(Move(9 + 1)) // Black at (1,0); corner point 0 keeps one liberty
	require.True(t, b.IsSelfAtari(White, 0))
	require.False(t, b.IsSelfAtari(White, 40), "a center stone keeps four liberties")
	require.False(t, b.IsSelfAtari(White, 9), "occupied points are not playable")
}

func TestIsSelfAtariLeavesBoardUntouched(t *testing.T) {
	b := NewSimpleBoard(9)
	b.Apply(Move(9 + 1))
	before := b.Hash()
	b.IsSelfAtari(White, 0)
	require.Equal(t, before, b.Hash())
	require.Equal(t, Empty, b.CellColor(0))
	require.Equal(t, Black, b.CellColor(9))
}
