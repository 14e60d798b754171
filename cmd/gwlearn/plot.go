package main

import (
	"image/color"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/gwlearn/geom"
)

// missingColor marks locations whose probability is missing.
var missingColor = color.Gray{Y: 160}

// plotFocalPNG draws every location coloured by its probability of the
// positive class, blue for 0 through red for 1.
func plotFocalPNG(path string, points []geom.Point, proba mat.Matrix, positive int) error {
	p := plot.New()
	p.Title.Text = "Focal probability"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	xys := make(plotter.XYs, len(points))
	values := make([]float64, len(points))
	for i, pt := range points {
		xys[i].X, xys[i].Y = pt.X, pt.Y
		values[i] = math.NaN()
		if positive >= 0 {
			values[i] = proba.At(i, positive)
		}
	}

	cm := moreland.SmoothBlueRed()
	cm.SetMin(0)
	cm.SetMax(1)

	s, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		style := draw.GlyphStyle{Shape: draw.CircleGlyph{}, Radius: vg.Points(3), Color: missingColor}
		if v := values[i]; !math.IsNaN(v) {
			if c, err := cm.At(v); err == nil {
				style.Color = c
			}
		}
		return style
	}
	p.Add(s, plotter.NewGrid())
	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}
