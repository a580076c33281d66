// Package pipeline turns the pages of a document into annotated output pages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/aocr/internal/metrics"
	"github.com/MeKo-Tech/aocr/internal/ocrclient"
	"github.com/MeKo-Tech/aocr/internal/pdf"
)

// Analyzer recognizes the text of a page image.
// *ocrclient.RetryingClient satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image, page, maxAttempts int) (*ocrclient.AnalyzeResult, error)
}

// NoImagePolicy decides what happens to pages without an embedded image.
type NoImagePolicy string

const (
	// NoImageBlank emits a blank page of the source page's size.
	NoImageBlank NoImagePolicy = "blank"
	// NoImageRender rasterizes the page with the fallback source.
	NoImageRender NoImagePolicy = "render"
)

// ParseNoImagePolicy parses a policy name.
func ParseNoImagePolicy(s string) (NoImagePolicy, error) {
	switch NoImagePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case NoImageBlank:
		return NoImageBlank, nil
	case NoImageRender:
		return NoImageRender, nil
	default:
		return "", fmt.Errorf("unknown no-image policy %q (must be one of: blank, render)", s)
	}
}

// DefaultMaxAttempts is the number of analysis attempts per page.
const DefaultMaxAttempts = 5

// Pipeline processes the pages of a document with a bounded worker pool.
type Pipeline struct {
	Source      pdf.ImageSource
	Fallback    pdf.ImageSource // used by NoImageRender
	OCR         Analyzer
	Workers     int
	MaxAttempts int
	NoImage     NoImagePolicy
	Progress    ProgressCallback
	Log         *slog.Logger
}

// PageResult is the outcome for one page.
type PageResult struct {
	Index    int
	Image    *pdf.PageImage // nil for blank pages
	Size     pdf.PageSize   // source page size, set for blank pages
	Analysis *ocrclient.AnalyzeResult
	Degraded bool
	Blank    bool
	Reason   string
	Duration time.Duration
}

// Outcome names the page's result for logs and metrics.
func (r *PageResult) Outcome() string {
	switch {
	case r.Blank:
		return "blank"
	case r.Degraded:
		return "degraded"
	default:
		return "annotated"
	}
}

// Stats summarizes a run.
type Stats struct {
	Total     int           `json:"total"     yaml:"total"`
	Annotated int           `json:"annotated" yaml:"annotated"`
	Degraded  int           `json:"degraded"  yaml:"degraded"`
	Blank     int           `json:"blank"     yaml:"blank"`
	Lines     int           `json:"lines"     yaml:"lines"`
	Duration  time.Duration `json:"duration"  yaml:"duration"`
}

// Result holds every page in document order.
type Result struct {
	Pages []*PageResult
	Stats Stats
}

// Annotations returns the analysis of every page, nil where there is none.
func (r *Result) Annotations() []*ocrclient.AnalyzeResult {
	out := make([]*ocrclient.AnalyzeResult, len(r.Pages))
	for i, p := range r.Pages {
		out[i] = p.Analysis
	}
	return out
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}

// Process runs every page of doc through image acquisition and analysis.
//
// Analysis failures degrade pages to image only. Image acquisition
// failures, fatal service errors and cancellation abort the run.
func (p *Pipeline) Process(ctx context.Context, doc *pdf.Document) (*Result, error) {
	if p.Source == nil {
		return nil, errors.New("pipeline has no image source")
	}
	if p.OCR == nil {
		return nil, errors.New("pipeline has no analyzer")
	}

	start := time.Now()
	total := doc.PageCount()
	workers := min(max(p.Workers, 1), total)

	var cb ProgressCallback = NoOpProgressCallback{}
	if p.Progress != nil {
		cb = p.Progress
	}
	progress := &syncProgress{cb: cb}
	progress.start(total)

	pages := make([]*PageResult, total)
	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range total {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			for index := range jobs {
				page, err := p.processPage(gctx, doc, index)
				if err != nil {
					return err
				}
				pages[index] = page
				if page.Degraded {
					progress.fail(index, errors.New(page.Reason))
				}
				progress.pageDone(total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	progress.complete()

	result := &Result{Pages: pages, Stats: Stats{Total: total, Duration: time.Since(start)}}
	for _, page := range pages {
		metrics.ObservePage(page.Outcome())
		switch {
		case page.Blank:
			result.Stats.Blank++
		case page.Degraded:
			result.Stats.Degraded++
		default:
			result.Stats.Annotated++
			result.Stats.Lines += page.Analysis.LineCount()
		}
	}
	return result, nil
}

func (p *Pipeline) processPage(ctx context.Context, doc *pdf.Document, index int) (*PageResult, error) {
	start := time.Now()
	log := p.logger().With("page", index)

	img, blank, err := p.acquire(ctx, doc, index)
	if err != nil {
		return nil, err
	}
	if blank != nil {
		blank.Duration = time.Since(start)
		return blank, nil
	}
	log.Debug("page image acquired", "width", img.Width, "height", img.Height)

	page := &PageResult{Index: index, Image: img}
	analysis, err := p.OCR.Analyze(ctx, img.Image, index, p.maxAttempts())
	switch {
	case err == nil:
		page.Analysis = analysis
		log.Info("page annotated", "lines", analysis.LineCount())
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case ocrclient.IsFatal(err):
		return nil, fmt.Errorf("page %d: %w", index, err)
	default:
		page.Degraded = true
		page.Reason = err.Error()
		log.Warn("analysis failed, keeping page without text layer", "error", err)
	}
	page.Duration = time.Since(start)
	return page, nil
}

// acquire returns the page image, or a blank page result under the
// no-image policy.
func (p *Pipeline) acquire(ctx context.Context, doc *pdf.Document, index int) (*pdf.PageImage, *PageResult, error) {
	img, err := p.Source.PageImage(ctx, doc, index)
	if err == nil {
		return img, nil, nil
	}
	if !errors.Is(err, pdf.ErrNoImage) {
		return nil, nil, fmt.Errorf("failed to acquire image of page %d: %w", index, err)
	}

	log := p.logger().With("page", index)
	if p.NoImage == NoImageRender && p.Fallback != nil {
		log.Info("page has no usable image, rendering it instead", "reason", err)
		img, ferr := p.Fallback.PageImage(ctx, doc, index)
		if ferr != nil {
			return nil, nil, fmt.Errorf("failed to render page %d: %w", index, ferr)
		}
		return img, nil, nil
	}

	size, serr := doc.PageSize(index)
	if serr != nil {
		return nil, nil, serr
	}
	log.Warn("page has no usable image, emitting a blank page", "reason", err)
	return nil, &PageResult{Index: index, Size: size, Blank: true, Reason: err.Error()}, nil
}

func (p *Pipeline) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}
