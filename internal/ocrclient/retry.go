package ocrclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/aocr/internal/metrics"
)

// Trace correlates log lines of one page's analysis attempts.
type Trace struct {
	JobID   uuid.UUID
	Page    int
	Attempt int
}

func (t Trace) String() string {
	return fmt.Sprintf("%s/p%d/a%d", t.JobID, t.Page, t.Attempt)
}

// Attrs returns the trace as slog key/value pairs.
func (t Trace) Attrs() []any {
	return []any{"job", t.JobID.String(), "page", t.Page, "attempt", t.Attempt}
}

// Backend runs one complete submit-and-poll analysis.
type Backend interface {
	AnalyzeBytes(ctx context.Context, data []byte, contentType string) (*ReadOperation, error)
}

// Gate paces attempts. *ratelimit.Throttler satisfies it.
type Gate interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// Cache stores successful results keyed by image content.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// RetryingClient repeats analyses that end in a failed status or time out.
//
// Fatal errors (see IsFatal) and context cancellation are returned at once.
// When every attempt fails, an *ExhaustedError is returned.
type RetryingClient struct {
	Backend  Backend
	Gate     Gate
	Cache    Cache
	JobID    uuid.UUID
	Language string
	Log      *slog.Logger
}

// NewRetryingClient creates a retrying client with a fresh job id.
func NewRetryingClient(backend Backend, gate Gate) *RetryingClient {
	return &RetryingClient{
		Backend: backend,
		Gate:    gate,
		JobID:   uuid.New(),
		Log:     slog.Default(),
	}
}

// Analyze recognizes the text of img, the image of page, making at most
// maxAttempts attempts. Values below one are treated as one.
func (r *RetryingClient) Analyze(ctx context.Context, img image.Image, page, maxAttempts int) (*AnalyzeResult, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return r.AnalyzeData(ctx, data, ContentTypePNG, page, maxAttempts)
}

// AnalyzeData is Analyze for an already encoded document, such as a whole
// PDF sent as ContentTypePDF.
func (r *RetryingClient) AnalyzeData(ctx context.Context, data []byte, contentType string, page, maxAttempts int) (*AnalyzeResult, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := r.Log
	if logger == nil {
		logger = slog.Default()
	}

	key := r.cacheKey(contentType, data)
	if res, ok := r.lookup(key, logger); ok {
		logger.Debug("analysis cache hit", "job", r.JobID.String(), "page", page)
		return res, nil
	}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		trace := Trace{JobID: r.JobID, Page: page, Attempt: attempt}

		if r.Gate != nil {
			waited, err := r.Gate.Wait(ctx)
			if err != nil {
				return nil, err
			}
			metrics.ObserveThrottle(waited)
		}

		start := time.Now()
		op, err := r.Backend.AnalyzeBytes(ctx, data, contentType)
		elapsed := time.Since(start)

		switch {
		case err == nil && op.Succeeded():
			metrics.ObserveAttempt("succeeded", elapsed)
			logger.Debug("analysis succeeded", append(trace.Attrs(), "lines", op.AnalyzeResult.LineCount(), "duration", elapsed)...)
			r.store(key, op.AnalyzeResult, logger)
			return op.AnalyzeResult, nil

		case err == nil:
			last = &errAttemptFailed{status: op.Status, timedOut: op.TimedOut}
			if op.TimedOut {
				metrics.ObserveAttempt("timeout", elapsed)
			} else {
				metrics.ObserveAttempt("failed", elapsed)
			}

		case ctx.Err() != nil:
			return nil, ctx.Err()

		case IsFatal(err):
			metrics.ObserveAttempt("error", elapsed)
			return nil, fmt.Errorf("analysis %s: %w", trace, err)

		default:
			metrics.ObserveAttempt("error", elapsed)
			last = err
		}

		logger.Warn("analysis attempt failed", append(trace.Attrs(), "max_attempts", maxAttempts, "error", last.Error())...)
	}

	return nil, &ExhaustedError{
		Trace:    Trace{JobID: r.JobID, Page: page, Attempt: maxAttempts},
		Attempts: maxAttempts,
		Last:     last,
	}
}

func (r *RetryingClient) cacheKey(contentType string, data []byte) string {
	sum := sha256.Sum256(data)
	return "analyze:" + r.Language + ":" + contentType + ":" + hex.EncodeToString(sum[:])
}

func (r *RetryingClient) lookup(key string, logger *slog.Logger) (*AnalyzeResult, bool) {
	if r.Cache == nil {
		return nil, false
	}
	raw, ok, err := r.Cache.Get(key)
	if err != nil {
		logger.Warn("analysis cache lookup failed", "error", err)
		return nil, false
	}
	metrics.ObserveCache(ok)
	if !ok {
		return nil, false
	}
	var res AnalyzeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warn("discarding undecodable cache entry", "error", err)
		return nil, false
	}
	return &res, true
}

func (r *RetryingClient) store(key string, res *AnalyzeResult, logger *slog.Logger) {
	if r.Cache == nil || res == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err == nil {
		err = r.Cache.Set(key, raw)
	}
	if err != nil {
		logger.Warn("failed to cache analysis result", "error", err)
	}
}

// IsExhausted reports whether err means every attempt for a page failed.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
