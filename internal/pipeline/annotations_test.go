package pipeline

import (
	"bytes"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/aocr/internal/ocrclient"
	"github.com/MeKo-Tech/aocr/internal/pdf"
)

func sampleResult() *Result {
	analysis := &ocrclient.AnalyzeResult{ReadResults: []ocrclient.ReadResult{{
		Page: 1, Width: 10, Height: 5,
		Lines: []ocrclient.Line{{BoundingBox: []float64{0, 0, 9, 0, 9, 4, 0, 4}, Text: "Hello"}},
	}}}
	return &Result{
		Pages: []*PageResult{
			{Index: 0, Image: &pdf.PageImage{Width: 10, Height: 5}, Analysis: analysis},
			{Index: 1, Image: &pdf.PageImage{Width: 10, Height: 5}, Degraded: true, Reason: "exhausted"},
			{Index: 2, Blank: true, Size: pdf.PageSize{Width: 612, Height: 792}, Reason: "page has no image"},
		},
		Stats: Stats{Total: 3, Annotated: 1, Degraded: 1, Blank: 1, Lines: 1},
	}
}

func TestNewAnnotations(t *testing.T) {
	a := NewAnnotations(sampleResult())

	require.Len(t, a.Pages, 3)
	assert.Equal(t, "annotated", a.Pages[0].Outcome)
	assert.Equal(t, 10, a.Pages[0].Width)
	assert.NotNil(t, a.Pages[0].Analysis)
	assert.Equal(t, "degraded", a.Pages[1].Outcome)
	assert.Equal(t, "exhausted", a.Pages[1].Reason)
	assert.Equal(t, "blank", a.Pages[2].Outcome)
	assert.Zero(t, a.Pages[2].Width)
	assert.Equal(t, 3, a.Stats.Total)
}

func TestEncode_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatJSON, NewAnnotations(sampleResult())))

	var decoded struct {
		Stats Stats `json:"stats"`
		Pages []struct {
			Page     int                      `json:"page"`
			Outcome  string                   `json:"outcome"`
			Analysis *ocrclient.AnalyzeResult `json:"analysis"`
		} `json:"pages"`
	}
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Pages, 3)
	assert.Equal(t, "Hello", decoded.Pages[0].Analysis.ReadResults[0].Lines[0].Text)
	assert.Nil(t, decoded.Pages[1].Analysis)
	assert.Equal(t, 1, decoded.Stats.Blank)
	assert.Contains(t, buf.String(), `"boundingBox"`)
}

func TestEncode_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatYAML, NewAnnotations(sampleResult())))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	pages, ok := decoded["pages"].([]any)
	require.True(t, ok)
	assert.Len(t, pages, 3)
	assert.Contains(t, buf.String(), "bounding_box: [0, 0, 9, 0, 9, 4, 0, 4]")
}

func TestEncode_UnknownFormat(t *testing.T) {
	assert.Error(t, Encode(&bytes.Buffer{}, Format("xml"), struct{}{}))
}

func TestFormatForPath(t *testing.T) {
	for path, want := range map[string]Format{
		"out.yaml":      FormatYAML,
		"OUT.YML":       FormatYAML,
		"out.json":      FormatJSON,
		"annotations":   FormatJSON,
		"dir.yaml/file": FormatJSON,
	} {
		assert.Equal(t, want, FormatForPath(path), path)
	}
}

func TestResultAnnotations(t *testing.T) {
	got := sampleResult().Annotations()
	require.Len(t, got, 3)
	assert.NotNil(t, got[0])
	assert.Nil(t, got[1])
	assert.Nil(t, got[2])
}

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	cb := NewConsoleProgressCallback(&buf, "OCR").WithWidth(10)
	cb.OnStart(2)
	cb.OnProgress(1, 2)
	cb.OnProgress(2, 2)
	cb.OnError(1, assert.AnError)
	cb.OnComplete()

	out := buf.String()
	assert.True(t, strings.Contains(out, "OCR"), out)
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "Page 1")
	assert.Contains(t, out, "1 page(s) without text layer")
}
