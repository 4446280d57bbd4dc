package mcts

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	distrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/pkg/errors"

	"github.com/sente-engine/sente/board"
	"github.com/sente-engine/sente/eval"
)

// ErrPoolFull is returned when the NodePool/TranspositionHash cannot
// accept a new node. At the root the
// controller treats this as "return pass"; deeper in the tree the
// engine degrades to playouts at the frontier and the search keeps
// visiting existing nodes.
var ErrPoolFull = errors.New("mcts: node pool exhausted")

// EngineConfig holds the engine-wide search tunables.
type EngineConfig struct {
	MaxNodes            int
	HashSize            int
	UCB                 UCBConfig
	VirtualLoss         uint32
	CriticalityInterval uint32
	LadderMinSize       int     // board size at/above which ladder suppression runs
	DirichletEpsilon    float32 // root noise mixing weight
	DirichletAlpha      float64
}

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxNodes:            1 << 20,
		HashSize:            1 << 21,
		UCB:                 DefaultUCBConfig(),
		VirtualLoss:         1,
		CriticalityInterval: 100,
		LadderMinSize:       11,
		DirichletEpsilon:    0.25,
		DirichletAlpha:      0.03,
	}
}

// expansionThreshold returns the size-dependent visit count below
// which a child is resolved via Simulator playout rather than expanded
// into its own node.
func expansionThreshold(size int) uint32 {
	switch {
	case size <= 9:
		return 20
	case size <= 13:
		return 25
	default:
		return 40
	}
}

// SearchEngine is the UCT search loop: progressive widening, virtual
// loss, UCB child selection, leaf expansion, playout and
// back-propagation.
type SearchEngine struct {
	pool *NodePool
	Eval eval.Evaluator
	Sim  *Simulator
	Komi *DynamicKomi
	cfg  EngineConfig

	expandMu sync.Mutex // the single global "expand" mutex

	// Per-search state, reset by PrepareSearch: the searching color at
	// the root, the global playout counter, and the root-scope
	// ownership/criticality statistics one worker refreshes.
	rootColor board.Color
	playouts  uint32 // atomic
	stats     atomic.Pointer[searchStatistics]

	dirichletMu  sync.Mutex
	dirichletSrc *distrand.Rand
}

// NewSearchEngine wires a node pool, evaluator, simulator and dynamic
// komi policy together.
func NewSearchEngine(evaluator eval.Evaluator, sim *Simulator, komi *DynamicKomi, cfg EngineConfig) *SearchEngine {
	return &SearchEngine{
		pool:         NewNodePool(cfg.MaxNodes, cfg.HashSize),
		Eval:         evaluator,
		Sim:          sim,
		Komi:         komi,
		cfg:          cfg,
		dirichletSrc: distrand.New(distrand.NewSource(uint64(time.Now().UnixNano()))),
	}
}

// Pool exposes the underlying node arena, mainly for controller-level
// diagnostics (graphviz/heatmap export) and capacity checks.
func (e *SearchEngine) Pool() *NodePool { return e.pool }

// PlayoutCount returns the number of playouts counted since the last
// PrepareSearch.
func (e *SearchEngine) PlayoutCount() uint32 { return atomic.LoadUint32(&e.playouts) }

// CountPlayout increments the global playout counter; each search
// worker calls it once per iteration.
func (e *SearchEngine) CountPlayout() uint32 { return atomic.AddUint32(&e.playouts, 1) }

// PrepareSearch resets the per-search statistics before a new move
// decision.
func (e *SearchEngine) PrepareSearch(state board.State) {
	e.rootColor = state.Turn()
	atomic.StoreUint32(&e.playouts, 0)
	size := state.Size()
	if s := e.stats.Load(); s != nil && s.size == size {
		s.reset()
		return
	}
	e.stats.Store(newSearchStatistics(size))
}

// RefreshStatistics recomputes the root-scope ownership and
// criticality indices from the playouts recorded so far. One worker
// calls this every CriticalityInterval playouts; the
// signal is advisory, so racing past an interval boundary only delays
// a refresh.
func (e *SearchEngine) RefreshStatistics(root Slot) {
	s := e.stats.Load()
	if s == nil || root == NilSlot {
		return
	}
	count := e.PlayoutCount()
	node := e.pool.Node(root)
	s.calculateOwner(e.rootColor, count)
	s.calculateCriticality(e.rootColor, count, node.WinRate())
}

// Ownership returns the root-scope black/white ownership estimate for
// every point, in [0,1] from the searching color's perspective.
func (e *SearchEngine) Ownership(color board.Color) []float32 {
	s := e.stats.Load()
	if s == nil {
		return nil
	}
	count := e.PlayoutCount()
	out := make([]float32, s.points)
	for i := range out {
		out[i] = s.ownershipAt(color, i, count)
	}
	return out
}

// Criticality returns the root-scope raw criticality estimate for
// every point, as of the last RefreshStatistics.
func (e *SearchEngine) Criticality() []float32 {
	s := e.stats.Load()
	if s == nil {
		return nil
	}
	out := make([]float32, s.points)
	for i := range out {
		out[i] = s.criticalityAt(i)
	}
	return out
}

func identity(state board.State) (board.Hash, board.Color, uint16) {
	return state.Hash(), state.Turn(), uint16(state.MoveNumber())
}

// ExpandRoot resolves the node the given state maps to, reusing it
// across moves when the transposition table already holds it
// (sub-tree reuse), or freshly rating it otherwise.
func (e *SearchEngine) ExpandRoot(state board.State) (Slot, error) {
	h, color, ply := identity(state)
	node, slot, hashIdx, found := e.pool.FindOrEmpty(h, color, ply)
	if found {
		reachable := e.pool.MarkReachable(slot)
		e.pool.ClearNotReachable(reachable)
		e.resetSelectionFlags(node)
		if state.Size() >= e.cfg.LadderMinSize {
			e.suppressLadders(state, node, true)
		}
		node.seki = CheckSeki(state)
		atomic.StoreUint32(&node.width, 1)
		rewidenSort(node, e.dynamicParamFn(node))
		return slot, nil
	}
	if hashIdx < 0 {
		return NilSlot, ErrPoolFull
	}

	e.expandMu.Lock()
	defer e.expandMu.Unlock()
	// Re-probe under the lock: another thread may have raced us here.
	_, slot, hashIdx, found = e.pool.FindOrEmpty(h, color, ply)
	if found {
		return slot, nil
	}
	if hashIdx < 0 {
		return NilSlot, ErrPoolFull
	}
	slot = e.pool.AllocateEmpty(hashIdx, h, color, ply)
	if slot == NilSlot {
		return NilSlot, ErrPoolFull
	}
	if err := e.populateChildren(state, slot, true); err != nil {
		return NilSlot, err
	}
	return slot, nil
}

// ExpandLeaf expands a freshly-reached leaf, without sub-tree reuse,
// and marks the highest-rated sibling of the just-played move as
// forced-open. parentSlot/childIdx identify where this
// leaf was reached from.
func (e *SearchEngine) ExpandLeaf(state board.State, parentSlot Slot, childIdx int) (Slot, error) {
	h, color, ply := identity(state)
	_, slot, hashIdx, found := e.pool.FindOrEmpty(h, color, ply)
	if found {
		return slot, nil
	}
	if hashIdx < 0 {
		return NilSlot, ErrPoolFull
	}
	slot = e.pool.AllocateEmpty(hashIdx, h, color, ply)
	if slot == NilSlot {
		return NilSlot, ErrPoolFull
	}
	if err := e.populateChildren(state, slot, false); err != nil {
		return NilSlot, err
	}
	parent := e.pool.Node(parentSlot)
	// The new node takes over the playouts its parent's child slot ran
	// before this expansion (less the caller's own virtual loss), with
	// wins seen from the new node's mover, so the node's visit count
	// matches the slot that leads to it and a reused subtree keeps it.
	child := parent.Child(childIdx)
	if visits := int64(child.MoveCount()) - int64(e.cfg.VirtualLoss); visits > 0 {
		node := e.pool.Node(slot)
		atomic.StoreUint32(&node.moveCount, uint32(visits))
		atomic.StoreUint32(&node.winSum, uint32(visits)*WinScale-child.WinSum())
	}
	// Best-effort: inspect siblings outside the parent's lock, so a
	// concurrent mutation may pick a stale winner.
	markForcedOpenSibling(parent, childIdx)
	return slot, nil
}

func markForcedOpenSibling(parent *SearchNode, justPlayed int) {
	children := parent.Children()
	best := -1
	var bestScore float32 = -1
	for i := range children {
		if i == justPlayed {
			continue
		}
		if children[i].priorScore > bestScore {
			bestScore = children[i].priorScore
			best = i
		}
	}
	if best >= 0 {
		children[best].setForcedOpen(true)
	}
}

func (e *SearchEngine) resetSelectionFlags(node *SearchNode) {
	children := node.Children()
	for i := range children {
		children[i].setForcedOpen(false)
	}
}

func (e *SearchEngine) suppressLadders(state board.State, node *SearchNode, zeroStats bool) {
	matrix := ClassifyLadders(state)
	size := state.Size()
	children := node.Children()
	for i := range children {
		c := &children[i]
		if c.move == board.PassMove {
			c.setLaddered(false)
			continue
		}
		point := int(c.move) - 1
		row, col := point/size, point%size
		if matrix[row][col] == LadderCapture {
			c.setLaddered(true)
			if zeroStats {
				atomic.StoreUint32(&c.moveCount, 0)
				atomic.StoreUint32(&c.winSum, 0)
				c.setInWidening(false)
			}
		} else {
			c.setLaddered(false)
		}
	}
}

// populateChildren allocates the fixed child array for a freshly
// created node: legal moves (pass always at index 0), rated by the
// Evaluator, ladder-suppressed on large boards, with Dirichlet root
// noise mixed in only when addNoise is set (root expansion only).
func (e *SearchEngine) populateChildren(state board.State, slot Slot, addNoise bool) error {
	node := e.pool.Node(slot)
	legal := state.LegalMoves()
	policy, _, err := e.Eval.Forward(state)
	if err != nil {
		return errors.Wrap(err, "mcts: evaluator forward failed")
	}
	actionSpace := state.ActionSpace()
	if len(policy) != actionSpace {
		return errors.Errorf("mcts: evaluator returned %d policy entries, want %d", len(policy), actionSpace)
	}
	if addNoise {
		policy = e.mixDirichletNoise(policy)
	}

	type cand struct {
		move  board.Move
		prior float32
	}
	var stones []cand
	for _, m := range legal {
		if m == board.PassMove {
			continue
		}
		point := int(m) - 1
		stones = append(stones, cand{move: m, prior: policy[point]})
	}
	sort.Slice(stones, func(i, j int) bool { return stones[i].prior > stones[j].prior })

	node.children[0] = ChildSlot{move: board.PassMove, priorScore: policy[actionSpace-1], expanded: int32(NilSlot)}
	node.numChildren = 1
	for _, s := range stones {
		if int(node.numChildren) >= MaxChildSlots {
			break
		}
		node.children[node.numChildren] = ChildSlot{move: s.move, priorScore: s.prior, expanded: int32(NilSlot)}
		node.numChildren++
	}

	if state.Size() >= e.cfg.LadderMinSize {
		e.suppressLadders(state, node, false)
	}
	boostNakadePriors(state, node)
	node.seki = CheckSeki(state)
	atomic.StoreUint32(&node.width, 1)
	rewidenSort(node, e.dynamicParamFn(node))
	return nil
}

// PrincipalVariation walks the most-visited child chain from root
// through expanded nodes, the sequence the search currently expects
// both sides to play.
func (e *SearchEngine) PrincipalVariation(root Slot, maxDepth int) []board.Move {
	var pv []board.Move
	slot := root
	for depth := 0; depth < maxDepth && slot != NilSlot; depth++ {
		node := e.pool.Node(slot)
		best, _ := bestTwoChildren(node)
		if best < 0 || node.Child(best).MoveCount() == 0 {
			break
		}
		pv = append(pv, node.Child(best).move)
		slot = node.Child(best).ExpandedChild()
	}
	return pv
}

func (e *SearchEngine) mixDirichletNoise(policy []float32) []float32 {
	if e.cfg.DirichletEpsilon <= 0 || len(policy) == 0 {
		return policy
	}
	alphaVec := make([]float64, len(policy))
	for i := range alphaVec {
		alphaVec[i] = e.cfg.DirichletAlpha
	}
	e.dirichletMu.Lock()
	dist := distmv.NewDirichlet(alphaVec, e.dirichletSrc)
	noise := dist.Rand(nil)
	e.dirichletMu.Unlock()
	out := make([]float32, len(policy))
	for i, p := range policy {
		out[i] = (1-e.cfg.DirichletEpsilon)*p + e.cfg.DirichletEpsilon*float32(noise[i])
	}
	return out
}

// dynamicParamFn returns the "prior + dynamic_parameter" tiebreaker
// the widening re-sort uses: the node's own playout statistics when it
// has any, the root-scope indices otherwise.
func (e *SearchEngine) dynamicParamFn(node *SearchNode) func(int) float32 {
	nodeStats := node.stats.Load()
	global := e.stats.Load()
	if nodeStats == nil && global == nil {
		return nil
	}
	children := node.Children()
	color := node.Color()
	return func(i int) float32 {
		move := children[i].move
		if nodeStats != nil {
			return nodeCriticalityBonus(node, nodeStats, move, color)
		}
		return global.dynamicBonus(move)
	}
}

// recordStatistics tallies the final board of one completed playout
// into both the root-scope statistics and the node the playout was
// attributed to.
func (e *SearchEngine) recordStatistics(node *SearchNode, final board.State, winner board.Color) {
	if s := e.stats.Load(); s != nil {
		s.record(final, winner)
	}
	cr, ok := final.(cellReader)
	if !ok {
		return
	}
	size := final.Size()
	stats := node.pointStatsFor(size * size)
	for i := 0; i < size*size; i++ {
		c := cr.CellColor(i)
		if c == board.Empty {
			c = territoryGuess(cr, size, i)
		}
		if c == board.Empty {
			continue
		}
		atomic.AddUint32(&stats.colors[c][i], 1)
		if c == winner {
			atomic.AddUint32(&stats.colors[0][i], 1)
		}
	}
}

// addSigned adds a (possibly negative) delta to a uint32 atomically,
// relying on twos-complement wraparound: every virtual-loss add is
// paired 1:1 with a later compensating addSigned of (1-VirtualLoss),
// so the ring arithmetic always nets out correctly even though
// intermediate values can transiently look huge.
func addSigned(addr *uint32, delta int32) {
	atomic.AddUint32(addr, uint32(delta))
}

// scoreWinner converts a komi-adjusted black-minus-white differential
// into the winning color. The searching color's own perspective breaks
// the exact tie: a black searcher counts jigo as a black win, a white
// searcher as a white one, so neither over-values playing for a draw.
func scoreWinner(adjusted float32, searching board.Color) board.Color {
	if searching == board.Black {
		if adjusted >= 0 {
			return board.Black
		}
		return board.White
	}
	if adjusted > 0 {
		return board.Black
	}
	return board.White
}

// Descend runs one playout from slot: select a child under node
// mutex + virtual loss, resolve it via simulation or recursive
// expansion, then back-propagate the real result.
// result is returned from the perspective of the side to move at
// slot's node.
func (e *SearchEngine) Descend(state board.State, slot Slot, rng *rand.Rand) (float32, error) {
	node := e.pool.Node(slot)

	node.mu.Lock()
	childIdx := selectChild(node, e.cfg.UCB)
	if childIdx < 0 {
		node.mu.Unlock()
		atomic.AddUint32(&node.moveCount, 1)
		return 0.5, nil
	}
	child := node.Child(childIdx)
	addSigned(&child.moveCount, int32(e.cfg.VirtualLoss))
	addSigned(&node.moveCount, int32(e.cfg.VirtualLoss))
	node.mu.Unlock()

	move := child.move
	childState := state.Clone().Apply(move)

	var result float32
	var err error
	switch {
	case child.MoveCount() < expansionThreshold(state.Size()):
		result = e.playout(node, childState, rng)
	case child.ExpandedChild() == NilSlot:
		e.expandMu.Lock()
		newSlot, expandErr := e.ExpandLeaf(childState, slot, childIdx)
		e.expandMu.Unlock()
		switch {
		case errors.Is(expandErr, ErrPoolFull):
			// No room to grow the tree: resolve the visit
			// with a playout at the frontier and keep searching.
			result = e.playout(node, childState, rng)
		case expandErr != nil:
			e.undoVirtualLoss(node, child)
			return 0.5, expandErr
		default:
			child.setExpandedChild(newSlot)
			result, err = e.Descend(childState, newSlot, rng)
		}
	default:
		result, err = e.Descend(childState, child.ExpandedChild(), rng)
	}
	if err != nil {
		e.undoVirtualLoss(node, child)
		return 0.5, err
	}

	// result is the win probability for childState's mover; child (and
	// node, whose aggregate mirrors its children) track win rate from
	// node's OWN mover's perspective, i.e. the complement.
	nodeResult := 1 - result

	delta := int32(1) - int32(e.cfg.VirtualLoss)
	winDelta := int32(nodeResult * WinScale)
	addSigned(&child.moveCount, delta)
	addSigned(&child.winSum, winDelta)
	addSigned(&node.moveCount, delta)
	addSigned(&node.winSum, winDelta)

	node.mu.Lock()
	maybeRewiden(node, e.dynamicParamFn(node))
	node.mu.Unlock()

	return nodeResult, nil
}

// playout resolves a visit via random rollout: simulate to the end,
// apply the dynamic komi to the raw area differential, decide the
// winner, record ownership votes, and return the result from the
// perspective of childState's side to move.
func (e *SearchEngine) playout(node *SearchNode, childState board.State, rng *rand.Rand) float32 {
	score := e.Sim.Rollout(childState, node.seki, rng)
	var komi float32
	if e.Komi != nil {
		komi = e.Komi.KomiFor(e.rootColor)
	}
	winner := scoreWinner(score-komi, e.rootColor)
	e.recordStatistics(node, childState, winner)
	if childState.Turn() == winner {
		return 1
	}
	return 0
}

// undoVirtualLoss reverses a virtual-loss add made before a failed
// expansion, so a pool-exhaustion error never leaves stale visit
// counts behind.
func (e *SearchEngine) undoVirtualLoss(node *SearchNode, child *ChildSlot) {
	delta := -int32(e.cfg.VirtualLoss)
	addSigned(&child.moveCount, delta)
	addSigned(&node.moveCount, delta)
}
