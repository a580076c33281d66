package testutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png" // submitted page images
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Paths served by FakeOCR, matching the client defaults.
const (
	FakeAnalyzePath = "/vision/v3.2/read/analyze"
	FakeResultsPath = "/vision/v3.2/read/analyzeResults"
	FakeKeyHeader   = "Ocp-Apim-Subscription-Key"
)

// FakeOCR is an in-process OCR service speaking the Read API protocol.
//
// Every submitted image yields one line spanning the middle of the image
// whose text is produced by Text.
type FakeOCR struct {
	Server *httptest.Server
	Key    string

	// Throttle answers the first Throttle submissions with 429.
	Throttle   int
	RetryAfter int
	// Running is the number of "running" polls before the terminal status.
	Running int
	// Fail reports whether the n-th (1-based) submission fails.
	Fail func(n int) bool
	// Text returns the recognized text for an image of the given size.
	Text func(width, height int) string

	mu          sync.Mutex
	submissions int
	throttled   int
	polls       int
	inFlight    int
	maxInFlight int
	ops         map[string]*fakeOp
}

type fakeOp struct {
	n      int
	polls  int
	width  int
	height int
	pdf    bool
}

// NewFakeOCR starts a fake service accepting key.
func NewFakeOCR(key string) *FakeOCR {
	f := &FakeOCR{Key: key, ops: make(map[string]*fakeOp)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL returns the service endpoint.
func (f *FakeOCR) URL() string { return f.Server.URL }

// Close shuts the server down.
func (f *FakeOCR) Close() { f.Server.Close() }

// Submissions returns the number of accepted submissions.
func (f *FakeOCR) Submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions
}

// Throttled returns the number of 429 responses sent to submissions.
func (f *FakeOCR) Throttled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.throttled
}

// MaxInFlight returns the highest number of concurrent requests seen.
func (f *FakeOCR) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *FakeOCR) enter() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
}

func (f *FakeOCR) leave() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
}

func (f *FakeOCR) handle(w http.ResponseWriter, r *http.Request) {
	f.enter()
	defer f.leave()

	if f.Key != "" && r.Header.Get(FakeKeyHeader) != f.Key {
		http.Error(w, `{"error":{"code":"401","message":"Access denied"}}`, http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == FakeAnalyzePath:
		f.submit(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, FakeResultsPath+"/"):
		f.poll(w, strings.TrimPrefix(r.URL.Path, FakeResultsPath+"/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeOCR) submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	op := &fakeOp{}
	if r.Header.Get("Content-Type") == "application/pdf" {
		op.pdf = true
		op.width, op.height = 8, 11
	} else {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
		if err != nil {
			http.Error(w, `{"error":{"code":"InvalidImageFormat"}}`, http.StatusBadRequest)
			return
		}
		op.width, op.height = cfg.Width, cfg.Height
	}

	f.mu.Lock()
	if f.throttled < f.Throttle {
		f.throttled++
		f.mu.Unlock()
		w.Header().Set("Retry-After", strconv.Itoa(f.RetryAfter))
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	f.submissions++
	op.n = f.submissions
	id := fmt.Sprintf("op-%04d", op.n)
	f.ops[id] = op
	f.mu.Unlock()

	w.Header().Set("Operation-Location", f.Server.URL+FakeResultsPath+"/"+id)
	w.WriteHeader(http.StatusAccepted)
}

func (f *FakeOCR) poll(w http.ResponseWriter, id string) {
	f.mu.Lock()
	op, ok := f.ops[id]
	if ok {
		op.polls++
		f.polls++
	}
	f.mu.Unlock()
	if !ok {
		http.Error(w, "operation not found", http.StatusNotFound)
		return
	}

	status := "succeeded"
	switch {
	case op.polls <= f.Running:
		status = "running"
	case f.Fail != nil && f.Fail(op.n):
		status = "failed"
	}

	resp := map[string]any{
		"status":              status,
		"createdDateTime":     "2024-01-02T03:04:05Z",
		"lastUpdatedDateTime": "2024-01-02T03:04:06Z",
	}
	if status == "succeeded" {
		resp["analyzeResult"] = f.result(op)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *FakeOCR) result(op *fakeOp) map[string]any {
	text := fmt.Sprintf("scan %dx%d", op.width, op.height)
	if f.Text != nil {
		text = f.Text(op.width, op.height)
	}
	w, h := float64(op.width), float64(op.height)
	box := []float64{w * 0.1, h * 0.4, w * 0.9, h * 0.4, w * 0.9, h * 0.6, w * 0.1, h * 0.6}
	unit := "pixel"
	if op.pdf {
		unit = "inch"
	}
	return map[string]any{
		"version":      "3.2.0",
		"modelVersion": "2022-04-30",
		"readResults": []map[string]any{{
			"page":   1,
			"angle":  0,
			"width":  w,
			"height": h,
			"unit":   unit,
			"lines": []map[string]any{{
				"boundingBox": box,
				"text":        text,
				"words": []map[string]any{{
					"boundingBox": box,
					"text":        text,
					"confidence":  0.99,
				}},
			}},
		}},
	}
}
