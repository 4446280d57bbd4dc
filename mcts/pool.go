// Package mcts implements the parallel UCT search core: the node
// pool/transposition table (this file), progressive widening and UCB
// selection, the search engine's descend/expand/backpropagate loop,
// dynamic komi, the ladder analyzer, the rollout simulator, and the
// search controller that drives a move decision end to end.
//
// The concurrency shape favors a flat node arena addressed by integer
// slot rather than pointer, a free-list for slot reuse, atomics on the
// hot per-node/per-child counters, and a package-level mutex protocol
// for structural changes, keeping the hot descend/expand path
// allocation-free under many concurrent search workers.
package mcts

import (
	"sync"
	"sync/atomic"

	"github.com/sente-engine/sente/board"
)

// WinScale is the fixed-point resolution childSlot.winSum/node.winSum
// accumulate results at, so a uint32 atomic can hold a finely graded
// sum of float32 results in [0,1] instead of only whole wins.
const WinScale = 1 << 16

// Slot addresses a node in the pool's backing array, in place of a
// pointer, so the arena stays contiguous and reusable via a free-list.
type Slot int32

// NilSlot marks an absent child / root.
const NilSlot Slot = -1

// MaxChildSlots bounds the fixed per-node child array. 19x19 + pass is
// the largest board this module targets.
const MaxChildSlots = 19*19 + 1

// ChildSlot is one entry in a node's fixed child array; child[0] is
// always board.PassMove.
type ChildSlot struct {
	move       board.Move
	moveCount  uint32 // atomic
	winSum     uint32 // atomic
	expanded   int32  // atomic Slot, NilSlot if unexpanded
	priorScore float32
	inWidening uint32 // atomic bool (0/1)
	forcedOpen uint32 // atomic bool (0/1)
	laddered   uint32 // atomic bool (0/1)
}

func (c *ChildSlot) MoveCount() uint32     { return atomic.LoadUint32(&c.moveCount) }
func (c *ChildSlot) WinSum() uint32        { return atomic.LoadUint32(&c.winSum) }
func (c *ChildSlot) ExpandedChild() Slot   { return Slot(atomic.LoadInt32(&c.expanded)) }
func (c *ChildSlot) InWideningSet() bool   { return atomic.LoadUint32(&c.inWidening) == 1 }
func (c *ChildSlot) IsForcedOpen() bool    { return atomic.LoadUint32(&c.forcedOpen) == 1 }
func (c *ChildSlot) IsLaddered() bool      { return atomic.LoadUint32(&c.laddered) == 1 }
func (c *ChildSlot) Selectable() bool      { return c.InWideningSet() || c.IsForcedOpen() }
func (c *ChildSlot) setInWidening(v bool)  { atomic.StoreUint32(&c.inWidening, b2u(v)) }
func (c *ChildSlot) setForcedOpen(v bool)  { atomic.StoreUint32(&c.forcedOpen, b2u(v)) }
func (c *ChildSlot) setLaddered(v bool)    { atomic.StoreUint32(&c.laddered, b2u(v)) }
func (c *ChildSlot) setExpandedChild(s Slot) {
	atomic.StoreInt32(&c.expanded, int32(s))
}

func b2u(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// pointStats carries the per-intersection ownership/criticality votes
// for a node. Allocated lazily on first playout so
// expanded-but-unplayed nodes don't pay for it.
type pointStats struct {
	colors [3][]uint32 // [color][point], atomic counters; colors[0] is "matches eventual winner"
}

func newPointStats(n int) *pointStats {
	return &pointStats{
		colors: [3][]uint32{make([]uint32, n), make([]uint32, n), make([]uint32, n)},
	}
}

// SearchNode is the central tree entity.
type SearchNode struct {
	hash  board.Hash
	color board.Color
	ply   uint16

	moveCount uint32 // atomic: sum of children's moveCount + playouts resolved at this node, including those its parent's slot ran before expansion
	winSum    uint32 // atomic

	width uint32 // atomic: progressive-widening frontier, index into the pw schedule

	numChildren int32 // fixed at expansion time
	children    [MaxChildSlots]ChildSlot

	mu sync.Mutex // guards child selection + virtual loss

	stats   atomic.Pointer[pointStats]
	statsMu sync.Mutex // guards lazy stats allocation only

	// seki marks board points playouts descending through this node
	// must leave alone, computed once at expansion.
	seki []bool

	live bool // transposition-table liveness; false means "free"

	prevMove board.Move // previous-move memo; reset with the node, not read by the search
}

func (n *SearchNode) Hash() board.Hash  { return n.hash }
func (n *SearchNode) Color() board.Color { return n.color }
func (n *SearchNode) Ply() uint16       { return n.ply }
func (n *SearchNode) MoveCount() uint32 { return atomic.LoadUint32(&n.moveCount) }
func (n *SearchNode) WinSum() uint32    { return atomic.LoadUint32(&n.winSum) }
func (n *SearchNode) Width() uint32     { return atomic.LoadUint32(&n.width) }
func (n *SearchNode) NumChildren() int  { return int(n.numChildren) }

// Children returns the live child slots, child[0] always PASS.
func (n *SearchNode) Children() []ChildSlot { return n.children[:n.numChildren] }

func (n *SearchNode) Child(i int) *ChildSlot { return &n.children[i] }

// WinRate returns winSum/(moveCount*WinScale), 0.5 on an unvisited node.
func (n *SearchNode) WinRate() float32 {
	mc := n.MoveCount()
	if mc == 0 {
		return 0.5
	}
	return float32(n.WinSum()) / (float32(mc) * WinScale)
}

// pointStatsFor returns the lazily-allocated stats table, allocating
// it under statsMu on first use.
func (n *SearchNode) pointStatsFor(size int) *pointStats {
	if p := n.stats.Load(); p != nil {
		return p
	}
	n.statsMu.Lock()
	defer n.statsMu.Unlock()
	if p := n.stats.Load(); p != nil {
		return p
	}
	p := newPointStats(size)
	n.stats.Store(p)
	return p
}

func (n *SearchNode) reset() {
	n.hash = 0
	n.color = board.Empty
	n.ply = 0
	atomic.StoreUint32(&n.moveCount, 0)
	atomic.StoreUint32(&n.winSum, 0)
	atomic.StoreUint32(&n.width, 1)
	n.numChildren = 0
	n.live = false
	n.prevMove = board.PassMove
	n.seki = nil
	n.stats.Store(nil)
	for i := range n.children {
		n.children[i] = ChildSlot{expanded: int32(NilSlot)}
	}
}

// hashEntry is one slot of the transposition directory: "{hash, color, ply, live}" plus a generation tag recording
// the sweep epoch the slot was claimed in; lookups do not consult it.
type hashEntry struct {
	hash       board.Hash
	color      board.Color
	ply        uint16
	live       bool
	generation uint32
	slot       Slot
}

// TranspositionHash is a hash -> node-slot directory with linear
// probing collision handling. Rehashing is not
// implemented: the table is sized once at construction.
type TranspositionHash struct {
	mu         sync.RWMutex
	entries    []hashEntry
	generation uint32
}

func newTranspositionHash(size int) *TranspositionHash {
	return &TranspositionHash{entries: make([]hashEntry, size)}
}

func (t *TranspositionHash) probe(h board.Hash) int {
	return int(uint64(h) % uint64(len(t.entries)))
}

// findOrEmpty returns the index of a live matching entry, or the index
// of the first free slot probed from hash, and whether it matched an
// existing live entry.
func (t *TranspositionHash) findOrEmpty(h board.Hash, color board.Color, ply uint16) (idx int, found bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.entries)
	start := t.probe(h)
	for i := 0; i < n; i++ {
		idx = (start + i) % n
		e := &t.entries[idx]
		if !e.live {
			return idx, false
		}
		if e.hash == h && e.color == color && e.ply == ply {
			return idx, true
		}
	}
	return -1, false
}

func (t *TranspositionHash) claim(idx int, h board.Hash, color board.Color, ply uint16, slot Slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[idx] = hashEntry{hash: h, color: color, ply: ply, live: true, generation: t.generation, slot: slot}
}

func (t *TranspositionHash) free(idx int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[idx] = hashEntry{}
}

func (t *TranspositionHash) slotFor(h board.Hash, color board.Color, ply uint16) (Slot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.entries)
	start := t.probe(h)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		e := &t.entries[idx]
		if !e.live {
			return NilSlot, false
		}
		if e.hash == h && e.color == color && e.ply == ply {
			return e.slot, true
		}
	}
	return NilSlot, false
}

// NodePool is the fixed-capacity arena of SearchNodes. Slot acquisition probes the TranspositionHash; release only
// happens during ClearNotReachable after a root advance.
type NodePool struct {
	mu       sync.RWMutex // guards nodes/freelist structural changes; per-node stats still use atomics
	nodes    []*SearchNode
	freelist []Slot
	hash     *TranspositionHash
	maxNodes int
}

// NewNodePool allocates a pool sized to hold up to maxNodes concurrent
// tree nodes, backed by a transposition table of hashSize entries.
func NewNodePool(maxNodes, hashSize int) *NodePool {
	return &NodePool{
		hash:     newTranspositionHash(hashSize),
		maxNodes: maxNodes,
	}
}

func (p *NodePool) Node(s Slot) *SearchNode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nodes[int(s)]
}

func (p *NodePool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.nodes) - len(p.freelist)
}

// Remaining reports how many more nodes the arena can still hold, the
// quantity workers poll so a full pool drains the wave instead of
// erroring it.
func (p *NodePool) Remaining() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxNodes - len(p.nodes) + len(p.freelist)
}

// FindOrEmpty looks up hash/color/ply in the transposition table.
// found reports whether an existing live node was returned, in which
// case slot addresses it directly; otherwise hashIdx is the hash-table
// slot the caller must later pass to AllocateEmpty to claim.
func (p *NodePool) FindOrEmpty(h board.Hash, color board.Color, ply uint16) (node *SearchNode, slot Slot, hashIdx int, found bool) {
	idx, ok := p.hash.findOrEmpty(h, color, ply)
	if idx < 0 {
		return nil, NilSlot, -1, false // table probing exhausted: full
	}
	if !ok {
		return nil, NilSlot, idx, false
	}
	e := p.hash.entries[idx]
	return p.Node(e.slot), e.slot, idx, true
}

// AllocateEmpty claims hashIdx (obtained from FindOrEmpty) for a fresh
// node, returning NilSlot only if the node arena itself is full.
func (p *NodePool) AllocateEmpty(hashIdx int, h board.Hash, color board.Color, ply uint16) Slot {
	p.mu.Lock()
	var slot Slot
	if l := len(p.freelist); l > 0 {
		slot = p.freelist[l-1]
		p.freelist = p.freelist[:l-1]
	} else {
		if len(p.nodes) >= p.maxNodes {
			p.mu.Unlock()
			return NilSlot
		}
		p.nodes = append(p.nodes, &SearchNode{})
		slot = Slot(len(p.nodes) - 1)
	}
	node := p.nodes[int(slot)]
	p.mu.Unlock()

	node.reset()
	node.hash = h
	node.color = color
	node.ply = ply
	node.live = true
	atomic.StoreUint32(&node.width, 1)

	p.hash.claim(hashIdx, h, color, ply, slot)
	return slot
}

// MarkReachable walks the tree depth-first from root over
// expandedChildIndex pointers.
func (p *NodePool) MarkReachable(root Slot) map[Slot]bool {
	reachable := make(map[Slot]bool)
	if root == NilSlot {
		return reachable
	}
	stack := []Slot{root}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[s] {
			continue
		}
		reachable[s] = true
		node := p.Node(s)
		for i := range node.Children() {
			if c := node.Child(i).ExpandedChild(); c != NilSlot {
				stack = append(stack, c)
			}
		}
	}
	return reachable
}

// ClearNotReachable frees every live slot not present in reachable,
// invalidating its transposition entry too.
func (p *NodePool) ClearNotReachable(reachable map[Slot]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hash.mu.Lock()
	defer p.hash.mu.Unlock()
	p.hash.generation++
	for i, node := range p.nodes {
		s := Slot(i)
		if !node.live || reachable[s] {
			continue
		}
		for idx := range p.hash.entries {
			if p.hash.entries[idx].live && p.hash.entries[idx].slot == s {
				p.hash.entries[idx] = hashEntry{}
				break
			}
		}
		node.reset()
		p.freelist = append(p.freelist, s)
	}
}
