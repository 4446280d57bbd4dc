package mcts

import (
	"context"

	"github.com/sente-engine/sente/board"
)

// AnalyzeOwnership runs a statistics-only search over state: the
// normal worker fan-out, but the product is the per-point ownership
// estimate rather than a move. Useful for scoring assistance after a
// two-pass ending, where what matters is which stones the search
// considers dead.
func (c *SearchController) AnalyzeOwnership(ctx context.Context, state board.State, playouts int) ([]float32, error) {
	c.StopPondering()
	c.Engine.PrepareSearch(state)
	root, err := c.Engine.ExpandRoot(state)
	if err != nil {
		return nil, err
	}
	if playouts < 1 {
		playouts = c.Playouts
	}
	if err := c.runWave(ctx, state, root, 0, uint32(playouts)); err != nil {
		return nil, err
	}
	c.Engine.RefreshStatistics(root)
	return c.Engine.Ownership(state.Turn()), nil
}

// DeadStones interprets an ownership analysis: stones of either color
// whose points the searching side owns with at least the given
// confidence are reported as dead. ownership must come from
// AnalyzeOwnership on the same state.
func DeadStones(state board.State, ownership []float32, confidence float32) []board.Move {
	cr, ok := state.(cellReader)
	if !ok || ownership == nil {
		return nil
	}
	searching := state.Turn()
	var dead []board.Move
	for p, own := range ownership {
		c := cr.CellColor(p)
		if c == board.Empty {
			continue
		}
		// A point the searcher owns confidently while the opponent's
		// stone sits on it means that stone dies; symmetrically for the
		// searcher's own stones on points it is confident of losing.
		if (c != searching && own >= confidence) || (c == searching && own <= 1-confidence) {
			dead = append(dead, board.Move(p+1))
		}
	}
	return dead
}
