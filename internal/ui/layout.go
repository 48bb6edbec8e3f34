package ui

import (
	"depth-recorder-go/internal/helpers"

	"fyne.io/fyne/v2"
)

// fillGridLayout sizes every object to an equal cell of a rows x cols grid
// filling the container.
type fillGridLayout struct {
	rows, cols int
}

func newFillGridLayout(n int) *fillGridLayout {
	rows, cols := helpers.GetSmartGrid(n)
	return &fillGridLayout{rows: rows, cols: cols}
}

func (g *fillGridLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	return fyne.NewSize(float32(160*g.cols), float32(120*g.rows))
}

func (g *fillGridLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	cellWidth := size.Width / float32(g.cols)
	cellHeight := size.Height / float32(g.rows)

	for i, obj := range objects {
		row, col := i/g.cols, i%g.cols
		obj.Move(fyne.NewPos(float32(col)*cellWidth, float32(row)*cellHeight))
		obj.Resize(fyne.NewSize(cellWidth, cellHeight))
	}
}
