package mcts

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync/atomic"

	"github.com/golang/freetype"
	"golang.org/x/image/font/gofont/goregular"
)

// cellPixels is the square size of one board point in a rendered
// heatmap.
const cellPixels = 32

// RenderOwnershipHeatmap paints a node's ownership/criticality stats
// as a size x size grid: cell shade encodes ownership (black's share
// of the black-vs-white ownership votes), and the criticality value is
// overlaid as text.
func RenderOwnershipHeatmap(node *SearchNode, size int) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, size*cellPixels, size*cellPixels))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	face, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, err
	}
	ctx := freetype.NewContext()
	ctx.SetFont(face)
	ctx.SetFontSize(10)
	ctx.SetDst(img)
	ctx.SetClip(img.Bounds())
	ctx.SetSrc(image.NewUniform(color.Black))

	stats := node.stats.Load()
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			point := row*size + col
			x0, y0 := col*cellPixels, row*cellPixels
			rect := image.Rect(x0, y0, x0+cellPixels, y0+cellPixels)
			shade := ownershipShade(stats, point)
			draw.Draw(img, rect, &image.Uniform{C: shade}, image.Point{}, draw.Src)

			if stats == nil {
				continue
			}
			crit := nodeCriticalityAt(node, stats, point)
			label := fmt.Sprintf("%.2f", crit)
			pt := freetype.Pt(x0+2, y0+cellPixels-4)
			if _, err := ctx.DrawString(label, pt); err != nil {
				return nil, err
			}
		}
	}
	return img, nil
}

// ownershipShade maps a point's black-vs-white vote share onto a gray
// gradient: pure black ownership renders black, pure white ownership
// renders white, contested points render mid-gray.
func ownershipShade(stats *pointStats, point int) color.Color {
	if stats == nil {
		return color.Gray{Y: 200}
	}
	blackVotes := atomic.LoadUint32(&stats.colors[1][point])
	whiteVotes := atomic.LoadUint32(&stats.colors[2][point])
	total := blackVotes + whiteVotes
	if total == 0 {
		return color.Gray{Y: 200}
	}
	blackShare := float64(blackVotes) / float64(total)
	y := uint8(255 - blackShare*255)
	return color.Gray{Y: y}
}
