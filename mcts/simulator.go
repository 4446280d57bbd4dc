package mcts

import (
	"math/rand"

	"github.com/sente-engine/sente/board"
	"github.com/sente-engine/sente/ratings"
)

// simulatorMaxMoves bounds a rollout independent of board size.
const simulatorMaxMoves = 720

// Simulator drives random-rollout playouts using an external rating
// table to bias move sampling. It is invoked from
// SearchEngine.Descend when a child's visit count is still below the
// local-branch expansion threshold.
type Simulator struct {
	Ratings ratings.Table
}

// NewSimulator wires a rating table collaborator; Uniform if nil.
func NewSimulator(table ratings.Table) *Simulator {
	if table == nil {
		table = ratings.Uniform{}
	}
	return &Simulator{Ratings: table}
}

// Rollout plays random legal moves sampled from the rating
// distribution until two consecutive passes or simulatorMaxMoves,
// mutating state in place, then returns the final area score as black
// minus white. Komi is NOT applied here: SearchEngine subtracts the
// dynamic komi when converting the differential into a winner. seki
// marks points the sampler must leave alone; nil means none.
func (s *Simulator) Rollout(state board.State, seki []bool, rng *rand.Rand) (blackMinusWhite float32) {
	consecutivePasses := 0
	if state.LastMove() == board.PassMove && state.MoveNumber() > 0 {
		consecutivePasses = 1
	}
	for move := 0; move < simulatorMaxMoves; move++ {
		if ended, _ := state.Ended(); ended {
			break
		}
		m := s.sample(state, seki, rng)
		if m == board.PassMove {
			consecutivePasses++
		} else {
			consecutivePasses = 0
		}
		state.Apply(m)
		if consecutivePasses >= 2 {
			break
		}
	}
	return state.Score(board.Black, 0) - state.Score(board.White, 0)
}

// sample draws one move, resampling a bounded number of times when the
// draw lands on a seki point or a pointless multi-stone self-atari.
func (s *Simulator) sample(state board.State, seki []bool, rng *rand.Rand) board.Move {
	for attempt := 0; attempt < 8; attempt++ {
		m := s.Ratings.Sample(state, rng)
		if m == board.PassMove {
			return m
		}
		p := int(m) - 1
		if seki != nil && p >= 0 && p < len(seki) && seki[p] {
			continue
		}
		if BadSelfAtari(state, state.Turn(), p) {
			continue
		}
		return m
	}
	return board.PassMove
}
