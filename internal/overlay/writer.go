package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"time"

	"codeberg.org/go-pdf/fpdf"
)

// Line is one recognized text line: eight image-space coordinates
// (TL, TR, BR, BL) and its text.
type Line struct {
	Box  []float64
	Text string
}

// StampStats summarizes one Stamp call.
type StampStats struct {
	Stamped    int
	Degenerate int
	Dropped    int // unencodable runes removed from stamped text
}

// Writer assembles the output document page by page.
type Writer struct {
	pdf     *fpdf.Fpdf
	metrics FontMetrics
	log     *slog.Logger
	images  int
	pageW   float64
	pageH   float64
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterLogger sets the logger used for per-line warnings.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) { w.log = l }
}

// WithCreator sets the document's Creator and Producer entries.
func WithCreator(creator string) WriterOption {
	return func(w *Writer) {
		w.pdf.SetCreator(creator, true)
		w.pdf.SetProducer(creator, true)
	}
}

// WithCreationDate pins the creation date, which makes output reproducible.
func WithCreationDate(t time.Time) WriterOption {
	return func(w *Writer) {
		w.pdf.SetCreationDate(t)
		w.pdf.SetModificationDate(t)
	}
}

// WithCompression toggles compression of page content streams.
func WithCompression(on bool) WriterOption {
	return func(w *Writer) { w.pdf.SetCompression(on) }
}

// NewWriter creates an empty document measured in points.
func NewWriter(opts ...WriterOption) *Writer {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont(FontFamily, "", FontSize)

	w := &Writer{pdf: pdf, log: slog.Default()}
	w.metrics = FontMetrics{
		Size:       FontSize,
		BBoxHeight: bboxHeight(pdf.GetFontDesc(FontFamily, "")),
		Width:      pdf.GetStringWidth,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func bboxHeight(desc fpdf.FontDescType) float64 {
	h := float64(desc.FontBBox.Ymax - desc.FontBBox.Ymin)
	if h <= 0 {
		return helveticaBBoxHeight
	}
	return h
}

// Metrics returns the metrics of the text layer font.
func (w *Writer) Metrics() FontMetrics { return w.metrics }

// PageCount returns the number of pages added so far.
func (w *Writer) PageCount() int { return w.pdf.PageCount() }

// AddImagePage appends a page sized to img at one point per pixel and
// draws img over the whole page.
func (w *Writer) AddImagePage(img image.Image) error {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: image %dx%d", ErrDegenerate, b.Dx(), b.Dy())
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode page image: %w", err)
	}

	w.images++
	name := fmt.Sprintf("page-image-%d", w.images)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	w.pdf.RegisterImageOptionsReader(name, opts, &buf)

	width, height := float64(b.Dx()), float64(b.Dy())
	w.addPage(width, height)
	w.pdf.ImageOptions(name, 0, 0, width, height, false, opts, 0, "")
	return w.pdf.Error()
}

// AddBlankPage appends an empty page of the given size in points.
func (w *Writer) AddBlankPage(width, height float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: page %gx%g", ErrDegenerate, width, height)
	}
	w.addPage(width, height)
	return w.pdf.Error()
}

func (w *Writer) addPage(width, height float64) {
	w.pdf.AddPageFormat("P", fpdf.SizeType{Wd: width, Ht: height})
	w.pageW, w.pageH = width, height
}

// Stamp draws lines as invisible text onto the current page. srcW and
// srcH are the extent of the analyzed image the boxes refer to.
//
// Lines whose box cannot carry text are skipped; they never fail the page.
func (w *Writer) Stamp(lines []Line, srcW, srcH float64) (StampStats, error) {
	var stats StampStats
	if w.pdf.PageCount() == 0 {
		return stats, errors.New("stamp: no current page")
	}
	m, err := NewAffine(srcW, srcH, w.pageW, w.pageH)
	if err != nil {
		return stats, err
	}

	w.pdf.SetAlpha(0, "Normal")
	for i, line := range lines {
		text, dropped := Encode(line.Text)
		if len(dropped) > 0 {
			stats.Dropped += len(dropped)
			w.log.Warn("dropping characters the text layer font cannot encode",
				"line", i, "text", line.Text, "dropped", string(dropped))
		}
		if text == "" {
			continue
		}

		q, err := QuadFromBox(line.Box)
		if err != nil {
			stats.Degenerate++
			w.log.Warn("skipping line", "line", i, "error", err)
			continue
		}
		p, err := Place(q, m)
		if err != nil {
			stats.Degenerate++
			w.log.Debug("skipping degenerate line", "line", i, "error", err)
			continue
		}
		fit, err := FitText(p, text, w.metrics)
		if err != nil {
			stats.Degenerate++
			w.log.Debug("skipping unfittable line", "line", i, "error", err)
			continue
		}

		w.pdf.TransformBegin()
		w.pdf.Transform(fpdf.TransformMatrix(fit.Matrix))
		w.pdf.Text(0, w.pageH, text)
		w.pdf.TransformEnd()
		stats.Stamped++
	}
	w.pdf.SetAlpha(1, "Normal")

	return stats, w.pdf.Error()
}

// Output closes the document and writes it to out.
func (w *Writer) Output(out io.Writer) error {
	if w.pdf.PageCount() == 0 {
		return errors.New("document has no pages")
	}
	return w.pdf.Output(out)
}
