package mcts

import "github.com/sente-engine/sente/board"

// KomiMode selects a DynamicKomi strategy.
type KomiMode int

const (
	KomiOff KomiMode = iota
	KomiLinear
	KomiValueSituational
)

// HandicapWeight scales the linear handicap-komi ramp.
const HandicapWeight = 8

// winrate bands for the value_situational mode.
const (
	redBand   = 0.35
	greenBand = 0.75
)

// linearThresholdDefault is the move number the linear ramp winds down
// over when the caller doesn't set one.
const linearThresholdDefault = 200

// DynamicKomi adjusts the komi the playout scorer uses, independent of
// the scoring komi, to stabilize search on handicapped games. It is read during score-to-winner conversion in
// SearchEngine playouts. The black and white searching perspectives
// read the shared komi shifted one point pessimistic for themselves,
// so a handicap game does not collapse into overconfidence.
type DynamicKomi struct {
	Mode      KomiMode
	Handicap  int     // H
	Threshold int     // move-number threshold the linear ramp winds down over
	ScoreKomi float32 // the underlying scoring komi, used as the base

	current float32
}

// NewDynamicKomi constructs a DynamicKomi starting at the scoring
// komi. A zero threshold picks the default ramp length.
func NewDynamicKomi(mode KomiMode, handicap, threshold int, scoreKomi float32) *DynamicKomi {
	if threshold <= 0 {
		threshold = linearThresholdDefault
	}
	return &DynamicKomi{Mode: mode, Handicap: handicap, Threshold: threshold, ScoreKomi: scoreKomi, current: scoreKomi}
}

// Komi returns the shared komi value in effect right now.
func (d *DynamicKomi) Komi() float32 { return d.current }

// KomiFor returns the komi as seen from color's searching perspective:
// one point higher than the shared value for black and one point lower
// for white, so each side sees a komi one point against itself,
// whenever an adjustment mode is active with a handicap.
func (d *DynamicKomi) KomiFor(color board.Color) float32 {
	if d.Mode == KomiOff || d.Handicap == 0 {
		return d.current
	}
	switch color {
	case board.Black:
		return d.current + 1
	case board.White:
		return d.current - 1
	}
	return d.current
}

// UpdateForMove recomputes komi for KomiLinear given the current move
// number:
//
//	while moves < threshold - 15: komi = HANDICAP_WEIGHT * H * (1 - moves/threshold)
//	else: komi = H + 0.5
func (d *DynamicKomi) UpdateForMove(moveNumber int) {
	if d.Mode != KomiLinear || d.Handicap == 0 {
		return
	}
	if moveNumber >= d.Threshold-15 {
		d.current = float32(d.Handicap) + 0.5
	} else {
		frac := 1 - float32(moveNumber)/float32(d.Threshold)
		d.current = HandicapWeight * float32(d.Handicap) * frac
	}
}

// UpdateForWinrate applies the value_situational rule:
// after each controller wave, compare the root winrate of the
// searching color to the red/green bands and shift komi by one point
// in the direction that moves the evaluation back toward even. A black
// searcher losing badly (below red) lowers komi; a white searcher
// losing badly raises it.
func (d *DynamicKomi) UpdateForWinrate(rootWinrate float32, color board.Color) {
	if d.Mode != KomiValueSituational || d.Handicap == 0 {
		return
	}
	switch color {
	case board.Black:
		if rootWinrate < redBand {
			d.current--
		} else if rootWinrate > greenBand {
			d.current++
		}
	case board.White:
		if rootWinrate < redBand {
			d.current++
		} else if rootWinrate > greenBand {
			d.current--
		}
	}
}
