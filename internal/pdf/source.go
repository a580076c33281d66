package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrNoImage is returned by an ImageSource when a page has no raster image.
var ErrNoImage = errors.New("page has no image")

// PageImage is the raster content of one page.
type PageImage struct {
	Index  int // zero-based page index
	Image  image.Image
	Width  int
	Height int
}

func newPageImage(index int, img image.Image) *PageImage {
	b := img.Bounds()
	return &PageImage{Index: index, Image: img, Width: b.Dx(), Height: b.Dy()}
}

// ImageSource acquires the image of a page.
type ImageSource interface {
	PageImage(ctx context.Context, doc *Document, index int) (*PageImage, error)
}

// Strategy selects an ImageSource implementation.
type Strategy string

const (
	StrategyExtract Strategy = "extract"
	StrategyRender  Strategy = "render"
)

// ParseStrategy accepts the strategy names and their long aliases.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extract", "extract-largest", "largest":
		return StrategyExtract, nil
	case "render", "render-page":
		return StrategyRender, nil
	default:
		return "", fmt.Errorf("unknown retrieve method %q (must be one of: extract, render)", s)
	}
}

// ColorMode is the color depth of rendered pages.
type ColorMode string

const (
	ColorBinary ColorMode = "binary"
	ColorGray   ColorMode = "gray"
	ColorRGB    ColorMode = "rgb"
)

// ParseColorMode accepts binary, gray (or grayscale) and rgb (or color).
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary", "bw", "mono":
		return ColorBinary, nil
	case "gray", "grey", "grayscale":
		return ColorGray, nil
	case "rgb", "color", "colour":
		return ColorRGB, nil
	default:
		return "", fmt.Errorf("unknown color mode %q (must be one of: binary, gray, rgb)", s)
	}
}
