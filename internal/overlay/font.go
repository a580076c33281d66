package overlay

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Reference font used for the text layer.
const (
	FontFamily = "Helvetica"
	FontSize   = 12.0
)

// Helvetica's font bounding box (-166 -225 1000 931) in glyph units.
const helveticaBBoxHeight = 931 + 225

// FontMetrics describes the reference font at FontSize.
type FontMetrics struct {
	Size       float64                // font size in points
	BBoxHeight float64                // bounding box height in 1/1000 em
	Width      func(s string) float64 // advance width of encoded s in points
}

// NaturalHeight returns the height of the font bounding box in points.
func (fm FontMetrics) NaturalHeight() float64 {
	return fm.BBoxHeight / 1000 * fm.Size
}

// Fit is the transform that stretches a text run onto a Placement.
type Fit struct {
	ScaleX     float64
	ScaleY     float64
	TranslateY float64
	Matrix     Affine
}

// FitText computes the transform drawing text (already encoded for the
// font) so that it fills p.
//
// The run is scaled to the box, moved up so the top of the font box meets
// the top of the text box, then rotated about the box origin.
func FitText(p Placement, text string, fm FontMetrics) (Fit, error) {
	naturalWidth := fm.Width(text)
	naturalHeight := fm.NaturalHeight()
	if naturalWidth <= minExtent || naturalHeight <= minExtent {
		return Fit{}, fmt.Errorf("%w: text has no extent", ErrDegenerate)
	}

	sx := p.Width / naturalWidth
	sy := p.Height / naturalHeight
	ty := -(1 - fm.BBoxHeight/1000) * fm.Size * sy

	m := RotateAbout(p.Angle, p.Offset).Then(Translate(0, ty)).Then(ScaleBy(sx, sy))
	return Fit{ScaleX: sx, ScaleY: sy, TranslateY: ty, Matrix: m}, nil
}

// Encode converts text to WinAnsi (cp1252), the encoding of the PDF core
// fonts. Runes the encoding cannot represent, and control characters, are
// dropped one by one and returned.
func Encode(text string) (string, []rune) {
	out := make([]byte, 0, len(text))
	var dropped []rune
	for i, w := 0, 0; i < len(text); i += w {
		r, size := utf8.DecodeRuneInString(text[i:])
		w = size
		if r == utf8.RuneError && size == 1 {
			dropped = append(dropped, r)
			continue
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok || b < 0x20 || b == 0x7f {
			dropped = append(dropped, r)
			continue
		}
		out = append(out, b)
	}
	return string(out), dropped
}
