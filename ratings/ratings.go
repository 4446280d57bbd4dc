// Package ratings is the external pattern-feature/rating-table
// collaborator consumed by mcts.Simulator. The only contract the core needs is "given a position,
// sample a move" — everything about how the rating is computed lives
// outside this package's minimal stand-in.
package ratings

import (
	"math/rand"

	"github.com/sente-engine/sente/board"
)

// Table samples a move for a random rollout, weighted by whatever
// rating scheme the implementation encodes.
type Table interface {
	// Sample picks one legal move from state, using rng for any
	// randomness so rollouts stay reproducible under a fixed seed.
	Sample(state board.State, rng *rand.Rand) board.Move
}

// Uniform samples uniformly among legal moves. It is the stand-in used
// in tests in place of a real trained pattern-rating table.
type Uniform struct{}

func (Uniform) Sample(state board.State, rng *rand.Rand) board.Move {
	moves := state.LegalMoves()
	if len(moves) == 0 {
		return board.PassMove
	}
	return moves[rng.Intn(len(moves))]
}

// PassAverse wraps another table and rejects pass while non-pass moves
// remain, resampling up to a small bound. This mirrors the common
// pattern of down-weighting pass during rollouts so playouts don't end
// prematurely on early, nearly-empty boards.
type PassAverse struct {
	Inner Table
}

func (p PassAverse) Sample(state board.State, rng *rand.Rand) board.Move {
	moves := state.LegalMoves()
	if len(moves) <= 1 {
		return board.PassMove
	}
	for attempt := 0; attempt < 4; attempt++ {
		m := p.Inner.Sample(state, rng)
		if m != board.PassMove {
			return m
		}
	}
	return moves[rng.Intn(len(moves))]
}
