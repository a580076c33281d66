// Package overlay places invisible, searchable text over page images.
//
// Coordinates follow PDF conventions: an Affine {A B C D E F} maps
// (x, y) to (A*x + C*y + E, B*x + D*y + F), which is exactly the operand
// order of the "cm" operator.
package overlay

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerate is returned for boxes that cannot carry text, such as
// zero-area quads or non-finite coordinates.
var ErrDegenerate = errors.New("degenerate bounding box")

// minExtent is the smallest width or height, in points, a text box may have.
const minExtent = 1e-9

// Point is a 2D point or vector.
type Point struct {
	X, Y float64
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale returns p*s.
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Len returns the Euclidean length of p.
func (p Point) Len() float64 { return math.Hypot(p.X, p.Y) }

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Affine is a 2D affine transform in PDF matrix order.
type Affine struct {
	A, B, C, D, E, F float64
}

// Identity is the identity transform.
var Identity = Affine{A: 1, D: 1}

// NewAffine maps image pixel space (origin top-left, y down, extent wa x ha)
// onto page space (origin bottom-left, y up, extent wp x hp).
func NewAffine(wa, ha, wp, hp float64) (Affine, error) {
	if wa <= 0 || ha <= 0 || wp <= 0 || hp <= 0 {
		return Affine{}, fmt.Errorf("%w: image %gx%g onto page %gx%g", ErrDegenerate, wa, ha, wp, hp)
	}
	return Affine{A: wp / wa, D: -hp / ha, F: hp}, nil
}

// Translate returns a pure translation.
func Translate(tx, ty float64) Affine { return Affine{A: 1, D: 1, E: tx, F: ty} }

// ScaleBy returns a pure scale.
func ScaleBy(sx, sy float64) Affine { return Affine{A: sx, D: sy} }

// RotateAbout returns a counter-clockwise rotation by angle (radians)
// followed by a translation to origin.
func RotateAbout(angle float64, origin Point) Affine {
	sin, cos := math.Sincos(angle)
	return Affine{A: cos, B: sin, C: -sin, D: cos, E: origin.X, F: origin.Y}
}

// Apply maps p through m.
func (m Affine) Apply(p Point) Point {
	return Point{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

// Then returns the transform that applies n first and m afterwards.
func (m Affine) Then(n Affine) Affine {
	return Affine{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

// Quad is a text line's bounding quadrilateral: top-left, top-right,
// bottom-right, bottom-left.
type Quad [4]Point

// QuadFromBox builds a Quad from eight x,y values.
func QuadFromBox(box []float64) (Quad, error) {
	if len(box) != 8 {
		return Quad{}, fmt.Errorf("%w: bounding box has %d values, want 8", ErrDegenerate, len(box))
	}
	var q Quad
	for i := range q {
		q[i] = Point{X: box[2*i], Y: box[2*i+1]}
	}
	return q, nil
}

// Map transforms every corner of q through m.
func (q Quad) Map(m Affine) Quad {
	var out Quad
	for i, p := range q {
		out[i] = m.Apply(p)
	}
	return out
}

// Placement is a text box decomposed into size, rotation and origin.
type Placement struct {
	Width  float64 // along the text direction
	Height float64 // orthogonal to the text direction
	Angle  float64 // radians, counter-clockwise from the page x axis
	Offset Point   // bottom-left corner in page space
}

// Place maps q through m and decomposes it.
//
// The horizontal axis is the mean of the top and bottom edges, the vertical
// axis the mean of the left and right edges. Height is the part of the
// vertical axis orthogonal to the horizontal one, so slightly skewed quads
// from noisy recognition still produce a rectangle.
func Place(q Quad, m Affine) (Placement, error) {
	t := q.Map(m)
	tl, tr, br, bl := t[0], t[1], t[2], t[3]
	for _, p := range t {
		if !p.finite() {
			return Placement{}, fmt.Errorf("%w: non-finite coordinate", ErrDegenerate)
		}
	}

	vh := tr.Sub(tl).Add(br.Sub(bl)).Scale(0.5)
	vv := tl.Sub(bl).Add(tr.Sub(br)).Scale(0.5)

	width := vh.Len()
	if width <= minExtent {
		return Placement{}, fmt.Errorf("%w: zero width", ErrDegenerate)
	}
	along := vh.Scale(vv.Dot(vh) / vh.Dot(vh))
	height := vv.Sub(along).Len()
	if height <= minExtent {
		return Placement{}, fmt.Errorf("%w: zero height", ErrDegenerate)
	}

	return Placement{
		Width:  width,
		Height: height,
		Angle:  math.Atan2(vh.Y, vh.X),
		Offset: bl,
	}, nil
}
