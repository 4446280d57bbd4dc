package mcts

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sente-engine/sente/board"
)

// Mode selects how SearchController paces a single move decision.
type Mode int

const (
	ModeFixedPlayouts Mode = iota
	ModeFixedTime
	ModeTournament
	ModeTournamentByoyomi
)

// TimeSettings mirrors a Japanese byoyomi clock. ByoyomiStones is only meaningful for Canadian
// byoyomi; 0 means plain per-period byoyomi.
type TimeSettings struct {
	MainTime      time.Duration
	ByoyomiTime   time.Duration
	ByoyomiStones int
	Increment     time.Duration
}

// Final-move override thresholds: a root pass child
// this confident after an opponent pass answers pass; a best winrate
// this hopeless resigns.
const (
	passThreshold   = 0.90
	resignThreshold = 0.20
)

// Board-size time-allocation coefficients: the fraction of remaining
// main time one move may spend, with the larger boards front-loading
// less as the game shortens.
const (
	timeRate9    = 20
	timeC13      = 30
	timeMaxPly13 = 30
	timeC19      = 60
	timeMaxPly19 = 80
)

// extension: when the top two root visit counts are within a factor
// 1.2 the decision is too close to commit, so the wall clock and halt
// are both stretched 1.5x for one more wave.
const (
	extensionCloseness = 1.2
	extensionFactor    = 1.5
)

// Result carries one move decision: the move itself and the root
// winrate estimate backing it.
type Result struct {
	Move    board.Move
	Winrate float32
}

// moveRecorder is the optional capability the consecutive-pass
// override needs: the move played n moves ago.
type moveRecorder interface {
	RecordedMove(movesAgo int) board.Move
}

// SearchController drives one move decision end to end: spawning
// worker threads against SearchEngine.Descend, applying the pass and
// resign overrides, and managing pondering between moves.
type SearchController struct {
	Engine   *SearchEngine
	Threads  int
	Playouts int
	Mode     Mode
	Time     TimeSettings

	// ExtendWaves enables the too-close-to-call time extension in the
	// tournament modes.
	ExtendWaves bool

	// InterruptionCheck enables the early-halt rule: once the leading
	// root child's margin cannot be overtaken within the remaining
	// playout budget, the wave stops.
	InterruptionCheck bool

	remaining     time.Duration
	byoyomiStones int // stones left in the current Canadian period

	// playoutSpeed is the measured playouts-per-second of the previous
	// wave, used to convert a time budget into a playout halt so the
	// interruption check can engage in the time-governed modes too.
	playoutSpeed float64

	ponderCancel context.CancelFunc
	ponderWG     sync.WaitGroup
	pondering    int32 // atomic bool
}

// NewSearchController wires an engine and worker-thread count.
func NewSearchController(engine *SearchEngine, threads int) *SearchController {
	if threads < 1 {
		threads = 1
	}
	return &SearchController{
		Engine:            engine,
		Threads:           threads,
		Mode:              ModeFixedPlayouts,
		Playouts:          1000,
		ExtendWaves:       true,
		InterruptionCheck: true,
	}
}

func (c *SearchController) SetMode(m Mode)   { c.Mode = m }
func (c *SearchController) SetPlayouts(n int) { c.Playouts = n }
func (c *SearchController) SetTimeSettings(ts TimeSettings) {
	c.Time = ts
	c.remaining = ts.MainTime
	c.byoyomiStones = ts.ByoyomiStones
}

// computeBudget returns how long this move decision may run, derived
// from remaining time with board-size coefficients. A zero budget
// means the playout halt alone governs the wave.
func (c *SearchController) computeBudget(state board.State) time.Duration {
	switch c.Mode {
	case ModeFixedPlayouts:
		return 0
	case ModeFixedTime:
		return c.Time.MainTime
	case ModeTournament, ModeTournamentByoyomi:
		budget := c.splitRemaining(state)
		if c.Mode == ModeTournamentByoyomi && budget < c.Time.ByoyomiTime/2 {
			budget = c.Time.ByoyomiTime / 2
		}
		return budget
	}
	return c.Time.MainTime
}

// splitRemaining divides remaining main time across the moves a game
// of this board size still expects: a flat divisor on small boards, a
// move-number-aware one on 13x13 and up, byoyomi as the floor once
// main time runs dry. In a Canadian period the remaining period time
// is split over the stones still owed.
func (c *SearchController) splitRemaining(state board.State) time.Duration {
	if c.remaining <= 0 {
		if c.Time.ByoyomiStones > 0 && c.byoyomiStones > 0 {
			return c.Time.ByoyomiTime / time.Duration(c.byoyomiStones)
		}
		return c.Time.ByoyomiTime
	}
	size := state.Size()
	moves := state.MoveNumber()
	var divisor int
	switch {
	case size < 11:
		divisor = timeRate9
	case size < 16:
		divisor = timeC13 + maxInt(0, timeMaxPly13-(moves+1))
	default:
		divisor = timeC19 + maxInt(0, timeMaxPly19-(moves+1))
	}
	return c.remaining / time.Duration(divisor)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// GenerateMove runs a full search from state and returns the chosen
// move plus its estimated winrate. Any in-flight pondering is stopped
// first.
func (c *SearchController) GenerateMove(ctx context.Context, state board.State) (Result, error) {
	c.StopPondering()
	started := time.Now()

	if state.MoveNumber() >= simulatorMaxMoves-1 {
		return Result{Move: board.PassMove, Winrate: 0.5}, nil
	}

	if c.Engine.Komi != nil {
		c.Engine.Komi.UpdateForMove(state.MoveNumber())
	}
	c.Engine.PrepareSearch(state)

	root, err := c.Engine.ExpandRoot(state)
	if err == ErrPoolFull {
		return Result{Move: board.PassMove, Winrate: 0.5}, nil // a full pool at the root degrades to pass
	}
	if err != nil {
		return Result{Move: board.ResignMove}, err
	}
	node := c.Engine.pool.Node(root)
	if node.NumChildren() <= 1 {
		return Result{Move: board.PassMove, Winrate: 0.5}, nil
	}

	budget := c.computeBudget(state)
	halt := c.haltTarget(budget)
	if err := c.runWave(ctx, state, root, budget, halt); err != nil {
		return Result{Move: board.ResignMove}, err
	}

	if c.shouldExtend(state, node) {
		// Stretch the halt to 1.5x and spend the extra half of the
		// original wall clock on one more wave.
		extra := time.Duration(float64(budget) * (extensionFactor - 1))
		extendedHalt := halt + halt/2
		if err := c.runWave(ctx, state, root, extra, extendedHalt); err != nil {
			return Result{Move: board.ResignMove}, err
		}
	}

	res := c.selectFinalMove(state, node)

	if c.Engine.Komi != nil {
		c.Engine.Komi.UpdateForWinrate(res.Winrate, state.Turn())
	}
	elapsed := time.Since(started)
	c.recordPlayoutSpeed(c.Engine.PlayoutCount(), elapsed)
	if c.Mode == ModeTournament || c.Mode == ModeTournamentByoyomi {
		c.chargeClock(elapsed)
	}
	return res, nil
}

// chargeClock debits one move's thinking time, rolling main time over
// into byoyomi periods and, in Canadian timing, counting the period's
// stones down and resetting the period when they are paid off.
func (c *SearchController) chargeClock(elapsed time.Duration) {
	c.remaining -= elapsed
	if c.remaining > 0 || c.Time.ByoyomiStones <= 0 {
		return
	}
	c.byoyomiStones--
	if c.byoyomiStones <= 0 {
		c.byoyomiStones = c.Time.ByoyomiStones
	}
}

// haltTarget is the playout count that ends a wave. In the
// time-governed modes it is derived from the previous wave's measured
// playout speed, so the interruption check has a budget to reason
// against; 0 (no measurement yet) leaves the wave purely
// time-governed.
func (c *SearchController) haltTarget(budget time.Duration) uint32 {
	if c.Mode == ModeFixedPlayouts {
		return uint32(c.Playouts)
	}
	if c.playoutSpeed > 0 && budget > 0 {
		return uint32(c.playoutSpeed * budget.Seconds())
	}
	return 0
}

// recordPlayoutSpeed updates the playouts-per-second estimate after a
// completed wave.
func (c *SearchController) recordPlayoutSpeed(playouts uint32, elapsed time.Duration) {
	if elapsed <= 0 || playouts == 0 {
		return
	}
	c.playoutSpeed = float64(playouts) / elapsed.Seconds()
}

// selectFinalMove picks the most-visited root child, then applies the
// override chain: confident pass after an opponent
// pass, the MAX_MOVES ceiling, a completed two-pass sequence, and the
// resignation floor.
func (c *SearchController) selectFinalMove(state board.State, node *SearchNode) Result {
	best, _ := bestTwoChildren(node)
	if best < 0 {
		best = 0
	}
	bestChild := node.Child(best)
	bestWp := childWinrate(bestChild)
	passWp := childWinrate(node.Child(0))

	switch {
	case passWp >= passThreshold && state.LastMove() == board.PassMove && state.MoveNumber() > 0:
		return Result{Move: board.PassMove, Winrate: passWp}
	case state.MoveNumber() >= simulatorMaxMoves:
		return Result{Move: board.PassMove, Winrate: bestWp}
	case c.twoPassHistory(state):
		return Result{Move: board.PassMove, Winrate: passWp}
	case bestWp <= resignThreshold:
		return Result{Move: board.ResignMove, Winrate: bestWp}
	}
	return Result{Move: bestChild.move, Winrate: bestWp}
}

// twoPassHistory reports whether the opponent's last two moves (one
// and three moves back in the record) were both passes.
func (c *SearchController) twoPassHistory(state board.State) bool {
	rec, ok := state.(moveRecorder)
	if !ok || state.MoveNumber() <= 3 {
		return false
	}
	return rec.RecordedMove(1) == board.PassMove && rec.RecordedMove(3) == board.PassMove
}

func childWinrate(c *ChildSlot) float32 {
	count := c.MoveCount()
	if count == 0 {
		return 0
	}
	return float32(c.WinSum()) / (float32(count) * WinScale)
}

// runWave spawns Threads goroutines descending root concurrently until
// the halt target, the time budget, pool exhaustion, or the
// early-interruption rule ends the wave. Worker 0 carries the two
// singleton duties: the interruption check and the
// ownership/criticality refresh every CriticalityInterval playouts.
func (c *SearchController) runWave(parent context.Context, state board.State, root Slot, budget time.Duration, halt uint32) error {
	ctx := parent
	var cancel context.CancelFunc
	if budget > 0 {
		ctx, cancel = context.WithTimeout(parent, budget)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	defer cancel()

	node := c.Engine.pool.Node(root)
	interval := c.Engine.cfg.CriticalityInterval

	g, gctx := errgroup.WithContext(ctx)
	for t := 0; t < c.Threads; t++ {
		worker := t
		seed := int64(t + 1)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			nextRefresh := interval
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				count := c.Engine.CountPlayout()
				if halt > 0 && count > halt {
					return nil
				}
				if _, err := c.Engine.Descend(state, root, rng); err != nil {
					return err
				}
				if c.Engine.pool.Remaining() == 0 {
					return nil // no more tree growth; let the wave drain
				}
				if worker == 0 {
					if c.InterruptionCheck && halt > 0 && decisionSettled(node, halt) {
						cancel()
						return nil
					}
					if count > nextRefresh {
						c.Engine.RefreshStatistics(root)
						nextRefresh += interval
					}
				}
			}
		})
	}
	return g.Wait()
}

// decisionSettled is the interruption rule: once
// the leading child's visit margin over the runner-up exceeds every
// playout the rest of the budget could hand out, the choice cannot
// change and the wave may stop.
func decisionSettled(node *SearchNode, halt uint32) bool {
	best, second := bestTwoChildren(node)
	if best < 0 || second < 0 {
		return false
	}
	bestCount := int64(node.Child(best).MoveCount())
	secondCount := int64(node.Child(second).MoveCount())
	remaining := int64(halt) - int64(node.MoveCount())
	if remaining < 0 {
		remaining = 0
	}
	return bestCount-secondCount > remaining
}

// shouldExtend implements the too-close-to-call rule: in the
// tournament modes, past the opening (move number > 3*size - 17), a
// runner-up within 1.2x of the leader buys one extended wave.
func (c *SearchController) shouldExtend(state board.State, node *SearchNode) bool {
	if !c.ExtendWaves || (c.Mode != ModeTournament && c.Mode != ModeTournamentByoyomi) {
		return false
	}
	if state.MoveNumber() <= state.Size()*3-17 {
		return false
	}
	best, second := bestTwoChildren(node)
	if best < 0 || second < 0 {
		return false
	}
	top1 := float32(node.Child(best).MoveCount())
	top2 := float32(node.Child(second).MoveCount())
	return top1 < top2*extensionCloseness
}

func bestTwoChildren(node *SearchNode) (best, second int) {
	best, second = -1, -1
	var bestCount, secondCount uint32
	children := node.Children()
	for i := range children {
		count := children[i].MoveCount()
		if count > bestCount {
			second, secondCount = best, bestCount
			best, bestCount = i, count
		} else if count > secondCount {
			second, secondCount = i, count
		}
	}
	return best, second
}

// StartPondering keeps searching state in the background between
// moves, until StopPondering is called. Worker 0 keeps the
// ownership/criticality indices fresh while pondering runs.
func (c *SearchController) StartPondering(state board.State) error {
	if !atomic.CompareAndSwapInt32(&c.pondering, 0, 1) {
		return nil // already pondering
	}
	c.Engine.PrepareSearch(state)
	root, err := c.Engine.ExpandRoot(state)
	if err != nil {
		atomic.StoreInt32(&c.pondering, 0)
		return err
	}
	interval := c.Engine.cfg.CriticalityInterval
	ctx, cancel := context.WithCancel(context.Background())
	c.ponderCancel = cancel
	c.ponderWG.Add(c.Threads)
	for t := 0; t < c.Threads; t++ {
		worker := t
		seed := int64(t + 1)
		go func() {
			defer c.ponderWG.Done()
			rng := rand.New(rand.NewSource(seed))
			nextRefresh := interval
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				count := c.Engine.CountPlayout()
				if _, err := c.Engine.Descend(state, root, rng); err != nil {
					return
				}
				if c.Engine.pool.Remaining() == 0 {
					return
				}
				if worker == 0 && count > nextRefresh {
					c.Engine.RefreshStatistics(root)
					nextRefresh += interval
				}
			}
		}()
	}
	return nil
}

// StopPondering cancels and joins the pondering workers.
func (c *SearchController) StopPondering() {
	if !atomic.CompareAndSwapInt32(&c.pondering, 1, 0) {
		return
	}
	if c.ponderCancel != nil {
		c.ponderCancel()
	}
	c.ponderWG.Wait()
}
