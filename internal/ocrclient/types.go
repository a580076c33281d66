package ocrclient

import (
	"strings"
	"time"
)

// Status is the state of a remote analysis operation.
type Status string

// Operation states reported by the service.
const (
	StatusNotStarted Status = "notStarted"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

var statusReplacer = strings.NewReplacer("-", "", "_", "", " ", "")

// Normalize maps spelling variants such as "not-started" or "NotStarted"
// onto the canonical constants. Unknown values are returned unchanged.
func (s Status) Normalize() Status {
	switch strings.ToLower(statusReplacer.Replace(string(s))) {
	case "notstarted":
		return StatusNotStarted
	case "running":
		return StatusRunning
	case "succeeded":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	default:
		return s
	}
}

// Known reports whether s is one of the four operation states.
func (s Status) Known() bool {
	switch s.Normalize() {
	case StatusNotStarted, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether polling stops at this status.
func (s Status) Terminal() bool {
	n := s.Normalize()
	return n == StatusSucceeded || n == StatusFailed
}

// Job identifies one submitted analysis.
type Job struct {
	OperationID string
	SubmittedAt time.Time
}

// ReadOperation is the polling envelope returned by the results endpoint.
type ReadOperation struct {
	Status              Status         `json:"status" yaml:"status"`
	CreatedDateTime     string         `json:"createdDateTime,omitempty" yaml:"created_date_time,omitempty"`
	LastUpdatedDateTime string         `json:"lastUpdatedDateTime,omitempty" yaml:"last_updated_date_time,omitempty"`
	AnalyzeResult       *AnalyzeResult `json:"analyzeResult,omitempty" yaml:"analyze_result,omitempty"`

	// TimedOut is set when the poll budget ran out before a terminal status.
	TimedOut bool `json:"-" yaml:"-"`
}

// Succeeded reports whether the operation finished with a usable result.
func (op *ReadOperation) Succeeded() bool {
	return op != nil && op.Status.Normalize() == StatusSucceeded && op.AnalyzeResult != nil
}

// AnalyzeResult holds the recognized text of one analyzed document or image.
type AnalyzeResult struct {
	Version      string       `json:"version,omitempty" yaml:"version,omitempty"`
	ModelVersion string       `json:"modelVersion,omitempty" yaml:"model_version,omitempty"`
	ReadResults  []ReadResult `json:"readResults" yaml:"read_results"`
}

// LineCount returns the number of recognized lines across all read results.
func (r *AnalyzeResult) LineCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, rr := range r.ReadResults {
		n += len(rr.Lines)
	}
	return n
}

// ReadResult covers one page or image. Width and Height are in Unit,
// which is "pixel" for image input.
type ReadResult struct {
	Page     int     `json:"page" yaml:"page"`
	Angle    float64 `json:"angle" yaml:"angle"`
	Width    float64 `json:"width" yaml:"width"`
	Height   float64 `json:"height" yaml:"height"`
	Unit     string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Language string  `json:"language,omitempty" yaml:"language,omitempty"`
	Lines    []Line  `json:"lines" yaml:"lines"`
}

// Line is one recognized text line. BoundingBox holds four points
// (top-left, top-right, bottom-right, bottom-left) as x,y pairs.
type Line struct {
	BoundingBox []float64 `json:"boundingBox" yaml:"bounding_box,flow"`
	Text        string    `json:"text" yaml:"text"`
	Language    string    `json:"language,omitempty" yaml:"language,omitempty"`
	Words       []Word    `json:"words,omitempty" yaml:"words,omitempty"`
}

// Word is one recognized word inside a line.
type Word struct {
	BoundingBox []float64 `json:"boundingBox" yaml:"bounding_box,flow"`
	Text        string    `json:"text" yaml:"text"`
	Confidence  float64   `json:"confidence" yaml:"confidence"`
}
