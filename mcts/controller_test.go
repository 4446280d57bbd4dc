package mcts

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sente-engine/sente/board"
	"github.com/sente-engine/sente/eval"
	"github.com/sente-engine/sente/ratings"
)

// peakedEvaluator concentrates 90% of the policy mass on one point,
// the way a trained network does on a clear best move, so fixed-budget
// searches focus their visits predictably.
func peakedEvaluator(actionSpace, peak int) eval.Evaluator {
	return eval.Func(func(state board.State) ([]float32, float32, error) {
		policy := make([]float32, actionSpace)
		rest := float32(0.1) / float32(actionSpace-1)
		for i := range policy {
			policy[i] = rest
		}
		policy[peak] = 0.9
		return policy, 0, nil
	})
}

func newTestController(t *testing.T, threads int) *SearchController {
	t.Helper()
	engineCfg := DefaultEngineConfig()
	engineCfg.MaxNodes = 1 << 14
	engineCfg.HashSize = 1 << 15
	engineCfg.DirichletEpsilon = 0 // deterministic priors for assertions
	engine := NewSearchEngine(
		peakedEvaluator(82, 40),
		NewSimulator(ratings.PassAverse{Inner: ratings.Uniform{}}),
		NewDynamicKomi(KomiOff, 0, 0, 7.5),
		engineCfg,
	)
	return NewSearchController(engine, threads)
}

// TestGenerateMoveSingleThreadFixedPlayouts: a single-thread,
// 100-playout fixed-playout search on an empty 9x9 board returns a
// non-pass move whose visit count lands in [90, 100]. The
// interruption check is off so the full budget runs.
func TestGenerateMoveSingleThreadFixedPlayouts(t *testing.T) {
	c := newTestController(t, 1)
	c.SetPlayouts(100)
	c.InterruptionCheck = false
	// A modest first-play urgency keeps the tiny budget from being
	// scattered over widening admissions, matching the scenario's
	// concentration bound.
	c.Engine.cfg.UCB.FPU = 0.5

	state := board.NewSimpleBoard(9)
	res, err := c.GenerateMove(context.Background(), state)
	require.NoError(t, err)
	require.NotEqual(t, board.PassMove, res.Move)

	root, err := c.Engine.ExpandRoot(state)
	require.NoError(t, err)
	node := c.Engine.pool.Node(root)
	var top uint32
	for i := range node.Children() {
		if mc := node.Child(i).MoveCount(); mc > top {
			top = mc
		}
	}
	require.GreaterOrEqual(t, top, uint32(90))
	require.LessOrEqual(t, top, uint32(100))
}

// TestRunWaveInterruptionHaltsSettledDecision: with the interruption
// check enabled and the leading root child's margin already past
// everything the remaining budget could hand out, the wave halts at
// detection instead of running to the playout target.
func TestRunWaveInterruptionHaltsSettledDecision(t *testing.T) {
	c := newTestController(t, 2)

	state := board.NewSimpleBoard(9)
	c.Engine.PrepareSearch(state)
	root, err := c.Engine.ExpandRoot(state)
	require.NoError(t, err)
	node := c.Engine.pool.Node(root)
	require.Greater(t, node.NumChildren(), 2)

	// Seed the state scenario 2 describes at playout 6000: a visit
	// margin larger than the 4000-playout remaining budget.
	atomic.StoreUint32(&node.moveCount, 6000)
	atomic.StoreUint32(&node.Child(1).moveCount, 5000)
	atomic.StoreUint32(&node.Child(2).moveCount, 500)

	require.NoError(t, c.runWave(context.Background(), state, root, 0, 10000))
	total := node.MoveCount()
	require.GreaterOrEqual(t, total, uint32(6000))
	require.Less(t, total, uint32(6500))
}

// TestGenerateMoveNoLegalMovesReturnsPass: a board with no legal
// children but pass yields pass.
func TestGenerateMoveNoLegalMovesReturnsPass(t *testing.T) {
	c := newTestController(t, 1)
	c.SetPlayouts(10)
	state := noLegalMovesBoard{board.NewSimpleBoard(9)}
	res, err := c.GenerateMove(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, board.PassMove, res.Move)
}

// TestGenerateMoveAtMaxMovesReturnsPass: one move short of the game
// cap, the controller passes without searching.
func TestGenerateMoveAtMaxMovesReturnsPass(t *testing.T) {
	c := newTestController(t, 1)
	c.SetPlayouts(10)
	state := atMoveNumberBoard{board.NewSimpleBoard(9), simulatorMaxMoves - 1}
	res, err := c.GenerateMove(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, board.PassMove, res.Move)
}

// TestGenerateMoveAfterTwoPassHistoryPasses: when the opponent's last
// two moves were both passes, the search answers pass and lets the
// game end.
func TestGenerateMoveAfterTwoPassHistoryPasses(t *testing.T) {
	c := newTestController(t, 1)
	c.SetPlayouts(50)

	var s board.State = board.NewSimpleBoard(9)
	s = s.Apply(board.Move(40 + 1)) // B
	s = s.Apply(board.Move(50 + 1)) // W
	s = s.Apply(board.PassMove)     // B pass: record(3) at decision time
	s = s.Apply(board.Move(51 + 1)) // W
	s = s.Apply(board.PassMove)     // B pass: record(1); White decides now

	res, err := c.GenerateMove(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, board.PassMove, res.Move)
}

// TestGenerateMoveResignsWhenHopeless: a best winrate at or below the
// resignation floor resigns.
func TestGenerateMoveResignsWhenHopeless(t *testing.T) {
	c := newTestController(t, 1)
	c.SetPlayouts(30)
	// Rollouts where White floods the board while Black only passes
	// leave every Black root child hopeless.
	c.Engine.Sim = NewSimulator(whiteFloodTable{})

	state := board.NewSimpleBoard(9) // Black to move
	res, err := c.GenerateMove(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, board.ResignMove, res.Move)
	require.LessOrEqual(t, res.Winrate, float32(resignThreshold))
}

// TestSubtreeReuseKeepsChildVisitCount: playing a root move and
// re-expanding with the resulting state must reuse that child's
// accumulated visits.
func TestSubtreeReuseKeepsChildVisitCount(t *testing.T) {
	c := newTestController(t, 1)
	c.SetPlayouts(200)

	state := board.NewSimpleBoard(9)
	res, err := c.GenerateMove(context.Background(), state)
	require.NoError(t, err)
	require.NotEqual(t, board.PassMove, res.Move)

	root, err := c.Engine.ExpandRoot(state)
	require.NoError(t, err)
	rootNode := c.Engine.pool.Node(root)
	var prevCount uint32
	for i := range rootNode.Children() {
		if rootNode.Child(i).move == res.Move {
			prevCount = rootNode.Child(i).MoveCount()
		}
	}

	next := state.Clone().Apply(res.Move)
	newRoot, err := c.Engine.ExpandRoot(next)
	require.NoError(t, err)
	newNode := c.Engine.pool.Node(newRoot)
	require.Equal(t, prevCount, newNode.MoveCount())
}

// TestGenerateMoveStopsPondering: GenerateMove always stops pondering
// before searching.
func TestGenerateMoveStopsPondering(t *testing.T) {
	c := newTestController(t, 2)
	c.SetPlayouts(50)

	state := board.NewSimpleBoard(9)
	require.NoError(t, c.StartPondering(state))

	res, err := c.GenerateMove(context.Background(), state)
	require.NoError(t, err)
	require.NotEqual(t, board.ResignMove, res.Move)
	require.EqualValues(t, 0, atomic.LoadInt32(&c.pondering))
}

func TestAnalyzeOwnershipReturnsPerPointEstimates(t *testing.T) {
	c := newTestController(t, 1)
	state := board.NewSimpleBoard(9)
	ownership, err := c.AnalyzeOwnership(context.Background(), state, 100)
	require.NoError(t, err)
	require.Len(t, ownership, 81)
	for _, o := range ownership {
		require.GreaterOrEqual(t, o, float32(0))
		require.LessOrEqual(t, o, float32(1))
	}
}

// whiteFloodTable plays the first open point for White and passes for
// Black, driving every rollout to a one-sided White win.
type whiteFloodTable struct{}

func (whiteFloodTable) Sample(state board.State, rng *rand.Rand) board.Move {
	if state.Turn() == board.Black {
		return board.PassMove
	}
	for _, m := range state.LegalMoves() {
		if m != board.PassMove {
			return m
		}
	}
	return board.PassMove
}

type noLegalMovesBoard struct{ *board.SimpleBoard }

func (n noLegalMovesBoard) LegalMoves() []board.Move { return []board.Move{board.PassMove} }
func (n noLegalMovesBoard) Clone() board.State {
	return noLegalMovesBoard{n.SimpleBoard.Clone().(*board.SimpleBoard)}
}

type atMoveNumberBoard struct {
	*board.SimpleBoard
	moveNumber int
}

func (a atMoveNumberBoard) MoveNumber() int { return a.moveNumber }
func (a atMoveNumberBoard) Clone() board.State {
	return atMoveNumberBoard{a.SimpleBoard.Clone().(*board.SimpleBoard), a.moveNumber}
}
