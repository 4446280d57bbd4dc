package mcts

import (
	"image/png"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sente-engine/sente/board"
)

func searchedEngine(t *testing.T) (*SearchEngine, Slot) {
	t.Helper()
	e := newTestEngine(9)
	var state board.State = board.NewSimpleBoard(9)
	e.PrepareSearch(state)
	root, err := e.ExpandRoot(state)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(21))
	for i := 0; i < 60; i++ {
		_, err := e.Descend(state, root, rng)
		require.NoError(t, err)
	}
	return e, root
}

func TestExportGraphvizRendersRootAndEdges(t *testing.T) {
	e, root := searchedEngine(t)
	dot, err := e.ExportGraphviz(root, 2)
	require.NoError(t, err)
	require.Contains(t, dot, "digraph")
	require.Contains(t, dot, graphvizNodeName(root))
	require.Contains(t, dot, "n=")
}

func TestExportGraphvizNilRootIsEmptyGraph(t *testing.T) {
	e := newTestEngine(9)
	dot, err := e.ExportGraphviz(NilSlot, 2)
	require.NoError(t, err)
	require.Contains(t, dot, "digraph")
}

func TestRenderOwnershipHeatmapEncodes(t *testing.T) {
	e, root := searchedEngine(t)
	img, err := RenderOwnershipHeatmap(e.Pool().Node(root), 9)
	require.NoError(t, err)
	require.Equal(t, 9*cellPixels, img.Bounds().Dx())
	require.Equal(t, 9*cellPixels, img.Bounds().Dy())
	require.NoError(t, png.Encode(io.Discard, img))
}

func TestRenderOwnershipHeatmapUnvisitedNode(t *testing.T) {
	node := &SearchNode{}
	node.reset()
	img, err := RenderOwnershipHeatmap(node, 9)
	require.NoError(t, err)
	require.NotNil(t, img)
}
