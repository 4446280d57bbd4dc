package mcts

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// ExportGraphviz dumps the live subtree reachable from root as a
// graphviz DOT document, labeling each node with its visit count and
// win rate, a debugging aid for watching the widening frontier grow.
func (e *SearchEngine) ExportGraphviz(root Slot, maxDepth int) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("search"); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	visited := make(map[Slot]bool)
	if err := e.writeGraphvizNode(g, root, maxDepth, visited); err != nil {
		return "", err
	}
	return g.String(), nil
}

func (e *SearchEngine) writeGraphvizNode(g *gographviz.Graph, slot Slot, depth int, visited map[Slot]bool) error {
	if slot == NilSlot || visited[slot] {
		return nil
	}
	visited[slot] = true
	node := e.pool.Node(slot)
	name := graphvizNodeName(slot)
	label := fmt.Sprintf("\"n=%d w=%.2f\"", node.MoveCount(), node.WinRate())
	if err := g.AddNode("search", name, map[string]string{"label": label}); err != nil {
		return err
	}
	if depth <= 0 {
		return nil
	}
	for i, c := range node.Children() {
		child := c.ExpandedChild()
		if child == NilSlot {
			continue
		}
		if err := e.writeGraphvizNode(g, child, depth-1, visited); err != nil {
			return err
		}
		edgeLabel := fmt.Sprintf("\"#%d n=%d\"", i, c.MoveCount())
		if err := g.AddEdge(name, graphvizNodeName(child), true, map[string]string{"label": edgeLabel}); err != nil {
			return err
		}
	}
	return nil
}

func graphvizNodeName(s Slot) string { return fmt.Sprintf("n%d", s) }
