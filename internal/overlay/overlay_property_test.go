package overlay

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPlacementProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	rect := func(w, h, angle, ox, oy float64) Quad {
		r := RotateAbout(angle, Point{ox, oy})
		return Quad{
			r.Apply(Point{0, h}),
			r.Apply(Point{w, h}),
			r.Apply(Point{w, 0}),
			r.Apply(Point{0, 0}),
		}
	}

	properties.Property("rotated rectangles decompose to their size and angle", prop.ForAll(
		func(w, h, angle, ox, oy float64) bool {
			p, err := Place(rect(w, h, angle, ox, oy), Identity)
			if err != nil {
				return false
			}
			da := math.Remainder(p.Angle-angle, 2*math.Pi)
			return math.Abs(p.Width-w) < 1e-6 &&
				math.Abs(p.Height-h) < 1e-6 &&
				math.Abs(da) < 1e-9 &&
				math.Abs(p.Offset.X-ox) < 1e-6 &&
				math.Abs(p.Offset.Y-oy) < 1e-6
		},
		gen.Float64Range(1, 2000),
		gen.Float64Range(1, 200),
		gen.Float64Range(-math.Pi+0.01, math.Pi-0.01),
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
	))

	properties.Property("fitted text spans the box width", prop.ForAll(
		func(w, h, angle float64, n int) bool {
			fm := fixedMetrics()
			p := Placement{Width: w, Height: h, Angle: angle}
			text := make([]byte, n)
			for i := range text {
				text[i] = 'x'
			}
			fit, err := FitText(p, string(text), fm)
			if err != nil {
				return false
			}
			start := fit.Matrix.Apply(Point{})
			end := fit.Matrix.Apply(Point{fm.Width(string(text)), 0})
			return math.Abs(end.Sub(start).Len()-w) < 1e-6
		},
		gen.Float64Range(1, 2000),
		gen.Float64Range(1, 200),
		gen.Float64Range(-math.Pi, math.Pi),
		gen.IntRange(1, 80),
	))

	properties.TestingRun(t)
}
