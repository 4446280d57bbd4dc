package mcts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sente-engine/sente/board"
)

func TestClassifyLaddersCaptureOnAtariGroup(t *testing.T) {
	var s board.State = board.NewSimpleBoard(9)
	// Black surrounds a lone white stone at (4,4) down to one liberty.
	s = s.Apply(board.Move(31 + 1)) // Black (3,4)
	s = s.Apply(board.Move(40 + 1)) // White (4,4) -- the target stone
	s = s.Apply(board.Move(49 + 1)) // Black (5,4)
	s = s.Apply(board.Move(0 + 1))  // White elsewhere
	s = s.Apply(board.Move(39 + 1)) // Black (4,3)

	matrix := ClassifyLadders(s)
	require.Equal(t, LadderCapture, matrix[4][4])
}

func TestClassifyLaddersNoneOnOpenStone(t *testing.T) {
	var s board.State = board.NewSimpleBoard(9)
	s = s.Apply(board.Move(40 + 1)) // Black, four open liberties

	matrix := ClassifyLadders(s)
	require.Equal(t, LadderNone, matrix[4][4])
}

func TestClassifyLaddersEmptyBoardAllNone(t *testing.T) {
	s := board.NewSimpleBoard(13)
	matrix := ClassifyLadders(s)
	for _, row := range matrix {
		for _, v := range row {
			require.Equal(t, LadderNone, v)
		}
	}
}

func TestClassifyLaddersGracefulOnNonLadderBoard(t *testing.T) {
	matrix := ClassifyLadders(plainState{size: 9})
	require.Len(t, matrix, 9)
	require.Equal(t, LadderNone, matrix[0][0])
}

// plainState is a minimal board.State that does not implement
// LadderBoard, exercising ClassifyLadders' graceful fallback.
type plainState struct{ size int }

func (p plainState) Size() int                      { return p.size }
func (p plainState) ActionSpace() int                { return p.size*p.size + 1 }
func (p plainState) Hash() board.Hash                { return 0 }
func (p plainState) Turn() board.Color              { return board.Black }
func (p plainState) MoveNumber() int                 { return 0 }
func (p plainState) LastMove() board.Move            { return board.PassMove }
func (p plainState) Legal(m board.Move) bool         { return true }
func (p plainState) LegalMoves() []board.Move        { return []board.Move{board.PassMove} }
func (p plainState) Apply(m board.Move) board.State  { return p }
func (p plainState) Ended() (bool, board.Color)      { return false, board.Empty }
func (p plainState) Score(c board.Color, k float32) float32 { return 0 }
func (p plainState) Clone() board.State              { return p }
func (p plainState) Eq(other board.State) bool       { return true }
