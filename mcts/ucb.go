package mcts

import (
	"sort"
	"sync/atomic"

	"github.com/chewxy/math32"
)

// UCBConfig holds the tunables for child selection.
type UCBConfig struct {
	// FPU is the score assigned to a never-visited child (first-play
	// urgency).
	FPU float32
	// PriorWeight ("W") scales the prior-probability bonus term.
	PriorWeight float32
	// PriorEquivalence ("B") is the visit-count equivalence the prior
	// bonus decays over.
	PriorEquivalence float32
}

// DefaultUCBConfig matches the engine's tuned defaults: a high
// first-play urgency so fresh widening admissions get probed promptly,
// and a prior bonus that decays over roughly the first thousand
// parent visits.
func DefaultUCBConfig() UCBConfig {
	return UCBConfig{FPU: 5.0, PriorWeight: 0.35, PriorEquivalence: 1000}
}

// selectChild implements the UCB1-tuned + prior-bonus formula of
// restricted to children with Selectable() true (i.e.
// in the widening set or forced open).
func selectChild(node *SearchNode, cfg UCBConfig) int {
	sum := float32(node.MoveCount())
	if sum < 1 {
		sum = 1
	}
	logSum := math32.Log(sum)

	best := -1
	var bestScore float32 = math32.Inf(-1)
	children := node.Children()
	for i := range children {
		c := &children[i]
		if !c.Selectable() {
			continue
		}
		score := ucbScore(c, sum, logSum, cfg)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

func ucbScore(c *ChildSlot, parentSum, logParentSum float32, cfg UCBConfig) float32 {
	n := float32(c.MoveCount())
	if n == 0 {
		return cfg.FPU
	}
	p := float32(c.WinSum()) / (n * WinScale)
	variance := p - p*p + math32.Sqrt(2*logParentSum/n)
	if variance > 0.25 {
		variance = 0.25
	}
	tuned := math32.Sqrt(logParentSum / n * variance)
	priorBonus := cfg.PriorWeight * math32.Sqrt(cfg.PriorEquivalence/(parentSum+cfg.PriorEquivalence)) * c.priorScore
	return p + tuned + priorBonus
}

// maybeRewiden runs the every-128-visits maintenance: recompute
// dynamic ownership/criticality (left to the caller via
// dynamicParameter, since that needs board context the pool doesn't have),
// sort children by prior+dynamicParameter, and admit the top `width`
// into in_widening_set. Progressive widening additionally admits the
// next-best child whenever sum exceeds the schedule threshold for the
// current width.
func maybeRewiden(node *SearchNode, dynamicParameter func(childIdx int) float32) {
	sum := node.MoveCount()
	if sum&0x7f == 0 && sum != 0 {
		rewidenSort(node, dynamicParameter)
	}
	width := node.Width()
	if int32(sum) > pwThreshold(width) {
		admitNext(node, dynamicParameter)
		atomic.AddUint32(&node.width, 1)
	}
}

func rewidenSort(node *SearchNode, dynamicParameter func(childIdx int) float32) {
	children := node.Children()
	idx := make([]int, len(children))
	for i := range idx {
		idx[i] = i
	}
	var dyn []float32
	if dynamicParameter != nil {
		dyn = make([]float32, len(children))
		for i := range children {
			dyn[i] = dynamicParameter(i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		sa := children[idx[a]].priorScore
		sb := children[idx[b]].priorScore
		if dyn != nil {
			sa += dyn[idx[a]]
			sb += dyn[idx[b]]
		}
		return sa > sb
	})
	width := int(node.Width())
	for rank, childIdx := range idx {
		children[childIdx].setInWidening(rank < width)
	}
}

// admitNext finds the highest-scoring child currently outside the
// widening set, counting the same dynamic owner/criticality bonus the
// re-sort uses, and admits it.
func admitNext(node *SearchNode, dynamicParameter func(childIdx int) float32) {
	children := node.Children()
	best := -1
	var bestScore float32 = math32.Inf(-1)
	for i := range children {
		c := &children[i]
		if c.InWideningSet() {
			continue
		}
		score := c.priorScore
		if dynamicParameter != nil {
			score += dynamicParameter(i)
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best >= 0 {
		children[best].setInWidening(true)
	}
}
