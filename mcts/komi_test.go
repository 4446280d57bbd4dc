package mcts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sente-engine/sente/board"
)

func TestDynamicKomiOffIgnoresMoveNumber(t *testing.T) {
	d := NewDynamicKomi(KomiOff, 4, 100, 6.5)
	d.UpdateForMove(50)
	require.Equal(t, float32(6.5), d.Komi())
}

func TestDynamicKomiLinearRampDecays(t *testing.T) {
	d := NewDynamicKomi(KomiLinear, 4, 100, 6.5)
	d.UpdateForMove(0)
	atStart := d.Komi()
	d.UpdateForMove(50)
	atMid := d.Komi()
	require.Greater(t, atStart, atMid)
}

func TestDynamicKomiLinearFlattensNearThreshold(t *testing.T) {
	d := NewDynamicKomi(KomiLinear, 4, 100, 6.5)
	d.UpdateForMove(90)
	require.Equal(t, float32(4.5), d.Komi())
}

func TestDynamicKomiValueSituationalShiftsOnBands(t *testing.T) {
	d := NewDynamicKomi(KomiValueSituational, 2, 0, 6.5)
	start := d.Komi()
	d.UpdateForWinrate(0.2, board.Black)
	require.Equal(t, start-1, d.Komi())
	d.UpdateForWinrate(0.9, board.Black)
	require.Equal(t, start, d.Komi())
	d.UpdateForWinrate(0.5, board.Black)
	require.Equal(t, start, d.Komi())
}

func TestDynamicKomiValueSituationalWhitePerspectiveInverts(t *testing.T) {
	d := NewDynamicKomi(KomiValueSituational, 2, 0, 6.5)
	start := d.Komi()
	// A white searcher losing badly raises komi back toward even.
	d.UpdateForWinrate(0.2, board.White)
	require.Equal(t, start+1, d.Komi())
	d.UpdateForWinrate(0.9, board.White)
	require.Equal(t, start, d.Komi())
}

func TestDynamicKomiValueSituationalNoOpWithoutHandicap(t *testing.T) {
	d := NewDynamicKomi(KomiValueSituational, 0, 0, 6.5)
	d.UpdateForWinrate(0.2, board.Black)
	require.Equal(t, float32(6.5), d.Komi())
}

func TestDynamicKomiPerColorOffsets(t *testing.T) {
	d := NewDynamicKomi(KomiLinear, 4, 100, 6.5)
	d.UpdateForMove(0)
	shared := d.Komi()
	require.Equal(t, shared+1, d.KomiFor(board.Black))
	require.Equal(t, shared-1, d.KomiFor(board.White))

	off := NewDynamicKomi(KomiOff, 0, 0, 6.5)
	require.Equal(t, float32(6.5), off.KomiFor(board.Black))
	require.Equal(t, float32(6.5), off.KomiFor(board.White))
}
