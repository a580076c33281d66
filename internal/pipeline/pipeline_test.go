package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/aocr/internal/ocrclient"
	"github.com/MeKo-Tech/aocr/internal/overlay"
	"github.com/MeKo-Tech/aocr/internal/pdf"
	"github.com/MeKo-Tech/aocr/internal/testutil"
)

// indexSource returns an image whose width encodes the page index.
type indexSource struct {
	noImage map[int]bool
	err     error
}

func (s indexSource) PageImage(_ context.Context, _ *pdf.Document, index int) (*pdf.PageImage, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.noImage[index] {
		return nil, pdf.ErrNoImage
	}
	img := testutil.CreateTestImage(100+index, 50, color.White)
	return &pdf.PageImage{Index: index, Image: img, Width: 100 + index, Height: 50}, nil
}

// fakeAnalyzer answers with one line whose text names the image width.
type fakeAnalyzer struct {
	maxDelay time.Duration
	fail     func(page int) error
	calls    atomic.Int32

	mu       sync.Mutex
	inFlight int
	peak     int
	attempts []int
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, img image.Image, page, maxAttempts int) (*ocrclient.AnalyzeResult, error) {
	a.calls.Add(1)
	a.mu.Lock()
	a.inFlight++
	a.peak = max(a.peak, a.inFlight)
	a.attempts = append(a.attempts, maxAttempts)
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	if a.maxDelay > 0 {
		select {
		case <-time.After(time.Duration(rand.Int64N(int64(a.maxDelay)))):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.fail != nil {
		if err := a.fail(page); err != nil {
			return nil, err
		}
	}

	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())
	return &ocrclient.AnalyzeResult{ReadResults: []ocrclient.ReadResult{{
		Page: 1, Width: w, Height: h,
		Lines: []ocrclient.Line{{
			BoundingBox: []float64{0.1 * w, 0.4 * h, 0.9 * w, 0.4 * h, 0.9 * w, 0.6 * h, 0.1 * w, 0.6 * h},
			Text:        "page",
		}},
	}}}, nil
}

// recordingProgress captures callback invocations.
type recordingProgress struct {
	mu        sync.Mutex
	total     int
	updates   []int
	errors    []int
	completed bool
}

func (r *recordingProgress) OnStart(total int) { r.total = total }

func (r *recordingProgress) OnProgress(current, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, current)
}

func (r *recordingProgress) OnComplete() { r.completed = true }

func (r *recordingProgress) OnError(page int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, page)
}

func openScanned(t *testing.T, pages int) *pdf.Document {
	t.Helper()

	images := make([]image.Image, pages)
	for i := range images {
		images[i] = testutil.CreateTestImage(40, 60, color.White)
	}
	doc, err := pdf.Open(testutil.ScannedPDF(t, images...), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })
	return doc
}

func TestProcess_PreservesPageOrder(t *testing.T) {
	const pages = 12
	doc := openScanned(t, pages)
	analyzer := &fakeAnalyzer{maxDelay: 20 * time.Millisecond}

	p := &Pipeline{
		Source:  indexSource{},
		OCR:     analyzer,
		Workers: 4,
		Log:     testutil.DiscardLogger(),
	}
	result, err := p.Process(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, result.Pages, pages)
	for i, page := range result.Pages {
		require.NotNil(t, page)
		assert.Equal(t, i, page.Index)
		assert.Equal(t, 100+i, page.Image.Width, "page %d carries its own image", i)
		assert.Equal(t, "annotated", page.Outcome())
	}
	assert.Equal(t, pages, result.Stats.Total)
	assert.Equal(t, pages, result.Stats.Annotated)
	assert.Equal(t, pages, result.Stats.Lines)
	assert.LessOrEqual(t, analyzer.peak, 4)
	assert.Equal(t, int32(pages), analyzer.calls.Load())
}

func TestProcess_DefaultsMaxAttempts(t *testing.T) {
	doc := openScanned(t, 2)
	analyzer := &fakeAnalyzer{}

	p := &Pipeline{Source: indexSource{}, OCR: analyzer, Log: testutil.DiscardLogger()}
	_, err := p.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []int{DefaultMaxAttempts, DefaultMaxAttempts}, analyzer.attempts)

	analyzer = &fakeAnalyzer{}
	p = &Pipeline{Source: indexSource{}, OCR: analyzer, MaxAttempts: 2, Log: testutil.DiscardLogger()}
	_, err = p.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, analyzer.attempts)
}

func TestProcess_ExhaustedPagesDegrade(t *testing.T) {
	doc := openScanned(t, 4)
	analyzer := &fakeAnalyzer{fail: func(page int) error {
		if page%2 == 1 {
			return &ocrclient.ExhaustedError{Attempts: 5, Last: errors.New("failed")}
		}
		return nil
	}}
	progress := &recordingProgress{}

	p := &Pipeline{
		Source:   indexSource{},
		OCR:      analyzer,
		Workers:  2,
		Progress: progress,
		Log:      testutil.DiscardLogger(),
	}
	result, err := p.Process(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, result.Pages, 4)
	assert.False(t, result.Pages[0].Degraded)
	assert.True(t, result.Pages[1].Degraded)
	assert.Nil(t, result.Pages[1].Analysis)
	assert.NotEmpty(t, result.Pages[1].Reason)
	assert.NotNil(t, result.Pages[1].Image, "degraded pages keep their image")
	assert.Equal(t, 2, result.Stats.Annotated)
	assert.Equal(t, 2, result.Stats.Degraded)

	assert.Equal(t, 4, progress.total)
	assert.Len(t, progress.updates, 4)
	assert.ElementsMatch(t, []int{1, 3}, progress.errors)
	assert.True(t, progress.completed)
}

func TestProcess_FatalErrorAborts(t *testing.T) {
	doc := openScanned(t, 6)
	analyzer := &fakeAnalyzer{fail: func(page int) error {
		if page == 2 {
			return &ocrclient.StatusError{Op: "submit", Code: 401}
		}
		return nil
	}}

	p := &Pipeline{Source: indexSource{}, OCR: analyzer, Workers: 2, Log: testutil.DiscardLogger()}
	result, err := p.Process(context.Background(), doc)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, ocrclient.IsFatal(err))
	assert.Contains(t, err.Error(), "page 2")
}

func TestProcess_ImageSourceErrorAborts(t *testing.T) {
	doc := openScanned(t, 3)
	p := &Pipeline{
		Source: indexSource{err: errors.New("corrupt stream")},
		OCR:    &fakeAnalyzer{},
		Log:    testutil.DiscardLogger(),
	}
	_, err := p.Process(context.Background(), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt stream")
}

func TestProcess_NoImageBlank(t *testing.T) {
	doc := openScanned(t, 3)
	analyzer := &fakeAnalyzer{}

	p := &Pipeline{
		Source:  indexSource{noImage: map[int]bool{1: true}},
		OCR:     analyzer,
		NoImage: NoImageBlank,
		Log:     testutil.DiscardLogger(),
	}
	result, err := p.Process(context.Background(), doc)
	require.NoError(t, err)

	blank := result.Pages[1]
	assert.True(t, blank.Blank)
	assert.Nil(t, blank.Image)
	assert.Equal(t, pdf.PageSize{Width: 40, Height: 60}, blank.Size)
	assert.Equal(t, "blank", blank.Outcome())
	assert.Equal(t, 1, result.Stats.Blank)
	assert.Equal(t, int32(2), analyzer.calls.Load(), "blank pages are not analyzed")
}

func TestProcess_NoImageRender(t *testing.T) {
	doc := openScanned(t, 2)
	fallback := pdf.RenderSource{Renderer: fixedRenderer{w: 30, h: 20}, DPI: 72, Color: pdf.ColorRGB}

	p := &Pipeline{
		Source:   indexSource{noImage: map[int]bool{0: true}},
		Fallback: fallback,
		OCR:      &fakeAnalyzer{},
		NoImage:  NoImageRender,
		Log:      testutil.DiscardLogger(),
	}
	result, err := p.Process(context.Background(), doc)
	require.NoError(t, err)

	rendered := result.Pages[0]
	assert.False(t, rendered.Blank)
	require.NotNil(t, rendered.Image)
	assert.Equal(t, 30, rendered.Image.Width)
	assert.NotNil(t, rendered.Analysis)
}

func TestProcess_Cancelled(t *testing.T) {
	doc := openScanned(t, 8)
	ctx, cancel := context.WithCancel(context.Background())
	analyzer := &fakeAnalyzer{fail: func(page int) error {
		if page == 0 {
			cancel()
			return context.Canceled
		}
		return nil
	}}

	p := &Pipeline{Source: indexSource{}, OCR: analyzer, Workers: 1, Log: testutil.DiscardLogger()}
	_, err := p.Process(ctx, doc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, analyzer.calls.Load(), int32(8))
}

func TestProcess_RequiresCollaborators(t *testing.T) {
	doc := openScanned(t, 1)

	_, err := (&Pipeline{OCR: &fakeAnalyzer{}}).Process(context.Background(), doc)
	assert.Error(t, err)
	_, err = (&Pipeline{Source: indexSource{}}).Process(context.Background(), doc)
	assert.Error(t, err)
}

func TestParseNoImagePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    NoImagePolicy
		wantErr bool
	}{
		{"blank", NoImageBlank, false},
		{" Render ", NoImageRender, false},
		{"skip", "", true},
	}
	for _, tt := range tests {
		got, err := ParseNoImagePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestAssemble(t *testing.T) {
	doc := openScanned(t, 3)
	analyzer := &fakeAnalyzer{fail: func(page int) error {
		if page == 2 {
			return &ocrclient.ExhaustedError{Attempts: 1, Last: errors.New("failed")}
		}
		return nil
	}}
	p := &Pipeline{
		Source:  indexSource{noImage: map[int]bool{1: true}},
		OCR:     analyzer,
		NoImage: NoImageBlank,
		Log:     testutil.DiscardLogger(),
	}
	result, err := p.Process(context.Background(), doc)
	require.NoError(t, err)

	w := overlay.NewWriter(overlay.WithWriterLogger(testutil.DiscardLogger()))
	stats, err := Assemble(result, w)
	require.NoError(t, err)
	assert.Equal(t, AssemblyStats{Stamped: 1}, stats)
	assert.Equal(t, 3, w.PageCount())

	var out bytes.Buffer
	require.NoError(t, w.Output(&out))
	assert.Equal(t, 3, testutil.PageCount(t, out.Bytes()))
	assert.Contains(t, out.String(), "/MediaBox [0 0 40.00 60.00]", "blank page keeps its source size")
}

func TestSourceExtentFallsBackToImage(t *testing.T) {
	page := &PageResult{Image: &pdf.PageImage{Width: 7, Height: 9}}

	w, h := sourceExtent(ocrclient.ReadResult{Width: 70, Height: 90}, page)
	assert.Equal(t, 70.0, w)
	assert.Equal(t, 90.0, h)

	w, h = sourceExtent(ocrclient.ReadResult{}, page)
	assert.Equal(t, 7.0, w)
	assert.Equal(t, 9.0, h)
}

type fixedRenderer struct{ w, h int }

func (r fixedRenderer) Render(context.Context, pdf.RenderRequest) (image.Image, error) {
	return testutil.CreateTestImage(r.w, r.h, color.White), nil
}
