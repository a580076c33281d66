package pipeline

import (
	"fmt"

	"github.com/MeKo-Tech/aocr/internal/ocrclient"
	"github.com/MeKo-Tech/aocr/internal/overlay"
)

// AssemblyStats summarizes the text layer written by Assemble.
type AssemblyStats struct {
	Stamped    int
	Degenerate int
	Dropped    int
}

// Assemble appends every page of result to w in document order: the page
// image at one point per pixel, then the invisible text layer when the page
// was analyzed. Blank pages keep their source size.
func Assemble(result *Result, w *overlay.Writer) (AssemblyStats, error) {
	var stats AssemblyStats
	for _, page := range result.Pages {
		if page.Blank {
			if err := w.AddBlankPage(page.Size.Width, page.Size.Height); err != nil {
				return stats, fmt.Errorf("page %d: %w", page.Index, err)
			}
			continue
		}

		if err := w.AddImagePage(page.Image.Image); err != nil {
			return stats, fmt.Errorf("page %d: %w", page.Index, err)
		}
		if page.Analysis == nil {
			continue
		}

		for _, rr := range page.Analysis.ReadResults {
			srcW, srcH := sourceExtent(rr, page)
			s, err := w.Stamp(overlayLines(rr.Lines), srcW, srcH)
			if err != nil {
				return stats, fmt.Errorf("page %d: %w", page.Index, err)
			}
			stats.Stamped += s.Stamped
			stats.Degenerate += s.Degenerate
			stats.Dropped += s.Dropped
		}
	}
	return stats, nil
}

// sourceExtent returns the extent the line boxes of rr refer to, falling
// back to the image size when the service reports none.
func sourceExtent(rr ocrclient.ReadResult, page *PageResult) (float64, float64) {
	if rr.Width > 0 && rr.Height > 0 {
		return rr.Width, rr.Height
	}
	return float64(page.Image.Width), float64(page.Image.Height)
}

func overlayLines(lines []ocrclient.Line) []overlay.Line {
	out := make([]overlay.Line, len(lines))
	for i, l := range lines {
		out[i] = overlay.Line{Box: l.BoundingBox, Text: l.Text}
	}
	return out
}
