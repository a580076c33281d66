// Package ocrclient talks to an asynchronous, rate-limited OCR service.
//
// An analysis is a two phase state machine: the image is submitted to the
// analyze endpoint, which answers 202 with an Operation-Location header, and
// the operation is then polled until it reaches a terminal status. 429
// responses are honored in both phases by sleeping for the server's
// Retry-After delay.
package ocrclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"

	"github.com/MeKo-Tech/aocr/internal/metrics"
	"github.com/MeKo-Tech/aocr/internal/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Default endpoint layout of the Computer Vision Read API.
const (
	DefaultAnalyzePath = "/vision/v3.2/read/analyze"
	DefaultResultsPath = "/vision/v3.2/read/analyzeResults"
	DefaultKeyHeader   = "Ocp-Apim-Subscription-Key"

	// defaultRetryAfter is used when a 429 carries no usable Retry-After header.
	defaultRetryAfter = time.Second
	// maxErrorBody bounds how much of an unexpected response ends up in errors.
	maxErrorBody = 512
)

// Content types accepted by the analyze endpoint.
const (
	ContentTypePNG = "image/png"
	ContentTypePDF = "application/pdf"
)

// Config holds the connection settings of a Client.
type Config struct {
	Endpoint      string
	Key           string
	KeyHeader     string
	AnalyzePath   string
	ResultsPath   string
	Language      string
	SubmitTimeout time.Duration
	PollTimeout   time.Duration
	Backoff       Backoff
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		KeyHeader:     DefaultKeyHeader,
		AnalyzePath:   DefaultAnalyzePath,
		ResultsPath:   DefaultResultsPath,
		SubmitTimeout: 300 * time.Second,
		PollTimeout:   300 * time.Second,
		Backoff:       DefaultBackoff(),
	}
}

// Client submits images for analysis and polls for their results.
//
// All network calls of clients sharing one lock are serialized. The lock is
// held around a single round trip only, never across sleeps, so concurrent
// callers interleave their submits and polls.
type Client struct {
	cfg   Config
	http  *http.Client
	mu    *sync.Mutex
	log   *slog.Logger
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLock makes the client share a lock domain with other clients.
func WithLock(mu *sync.Mutex) Option {
	return func(c *Client) { c.mu = mu }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithClock replaces the wall clock used for timeouts.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSleeper replaces the context-aware sleep.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// New creates a client. Endpoint and Key are required.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("ocr endpoint is required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid ocr endpoint %q: %w", cfg.Endpoint, err)
	}
	if cfg.Key == "" {
		return nil, errors.New("ocr subscription key is required")
	}

	defaults := DefaultConfig()
	if cfg.KeyHeader == "" {
		cfg.KeyHeader = defaults.KeyHeader
	}
	if cfg.AnalyzePath == "" {
		cfg.AnalyzePath = defaults.AnalyzePath
	}
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = defaults.ResultsPath
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaults.SubmitTimeout
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaults.PollTimeout
	}

	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: 2 * time.Minute},
		mu:    &sync.Mutex{},
		log:   slog.Default(),
		now:   time.Now,
		sleep: ratelimit.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// response is a fully read HTTP response.
type response struct {
	code   int
	header http.Header
	body   []byte
}

// roundTrip performs one request while holding the shared lock.
func (c *Client) roundTrip(ctx context.Context, op string, newReq func() (*http.Request, error)) (*response, error) {
	req, err := newReq()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set(c.cfg.KeyHeader, c.cfg.Key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	metrics.ObserveRequest(op, resp.StatusCode)
	return &response{code: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (c *Client) analyzeURL() string {
	u := strings.TrimRight(c.cfg.Endpoint, "/") + c.cfg.AnalyzePath
	if c.cfg.Language != "" {
		u += "?language=" + url.QueryEscape(c.cfg.Language)
	}
	return u
}

func (c *Client) resultURL(operationID string) string {
	return strings.TrimRight(c.cfg.Endpoint, "/") + strings.TrimRight(c.cfg.ResultsPath, "/") + "/" + url.PathEscape(operationID)
}

// Submit posts data for analysis and returns the created job.
//
// A 429 response makes the client sleep for the Retry-After delay and submit
// again, as long as the submission budget allows it. Any status other than
// 202 and 429 is fatal.
func (c *Client) Submit(ctx context.Context, data []byte, contentType string) (*Job, error) {
	deadline := c.now().Add(c.cfg.SubmitTimeout)
	target := c.analyzeURL()

	for {
		resp, err := c.roundTrip(ctx, "submit", func() (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", contentType)
			return req, nil
		})
		if err != nil {
			return nil, err
		}

		switch resp.code {
		case http.StatusAccepted:
			id, err := OperationID(resp.header.Get("Operation-Location"))
			if err != nil {
				return nil, err
			}
			c.log.Debug("analysis submitted", "operation", id, "bytes", len(data))
			return &Job{OperationID: id, SubmittedAt: c.now()}, nil

		case http.StatusTooManyRequests:
			wait := RetryAfter(resp.header)
			if c.now().Add(wait).After(deadline) {
				return nil, fmt.Errorf("%w: %w", ErrSubmitTimeout,
					&ratelimit.RateLimitError{Op: "submit", Limit: c.cfg.SubmitTimeout, RetryAfter: wait})
			}
			c.log.Debug("received http status 429, sleeping as requested", "op", "submit", "retry_after", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			return nil, &StatusError{Op: "submit", Code: resp.code, Body: truncate(resp.body)}
		}
	}
}

// Poll queries the operation until it reaches a terminal status.
//
// When the poll budget runs out first, the last non-terminal operation is
// returned with TimedOut set; this is not an error. 429 responses sleep for
// the server's delay without advancing the backoff.
func (c *Client) Poll(ctx context.Context, job *Job) (*ReadOperation, error) {
	deadline := c.now().Add(c.cfg.PollTimeout)
	target := c.resultURL(job.OperationID)
	delay := c.cfg.Backoff.First()
	last := &ReadOperation{Status: StatusNotStarted}

	for {
		resp, err := c.roundTrip(ctx, "poll", func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		})
		if err != nil {
			return nil, err
		}

		switch resp.code {
		case http.StatusOK:
			var op ReadOperation
			if err := json.Unmarshal(resp.body, &op); err != nil {
				return nil, &DecodeError{Op: "poll", Err: err}
			}
			if !op.Status.Known() {
				return nil, &DecodeError{Op: "poll", Err: fmt.Errorf("unknown status %q", op.Status)}
			}
			op.Status = op.Status.Normalize()
			if op.Status.Terminal() {
				return &op, nil
			}
			last = &op

		case http.StatusTooManyRequests:
			wait := RetryAfter(resp.header)
			if c.now().Add(wait).After(deadline) {
				last.TimedOut = true
				return last, nil
			}
			c.log.Debug("received http status 429, sleeping as requested", "op", "poll", "retry_after", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue

		default:
			return nil, &StatusError{Op: "poll", Code: resp.code, Body: truncate(resp.body)}
		}

		if !c.now().Add(delay).Before(deadline) {
			last.TimedOut = true
			return last, nil
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = c.cfg.Backoff.Next(delay)
	}
}

// AnalyzeBytes submits data and polls the resulting job to completion.
func (c *Client) AnalyzeBytes(ctx context.Context, data []byte, contentType string) (*ReadOperation, error) {
	job, err := c.Submit(ctx, data, contentType)
	if err != nil {
		return nil, err
	}
	return c.Poll(ctx, job)
}

// AnalyzeImage encodes img as PNG and analyzes it.
func (c *Client) AnalyzeImage(ctx context.Context, img image.Image) (*ReadOperation, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return c.AnalyzeBytes(ctx, data, ContentTypePNG)
}

// EncodePNG encodes img as a PNG byte slice.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// OperationID extracts the trailing path segment of an Operation-Location value.
func OperationID(location string) (string, error) {
	if strings.TrimSpace(location) == "" {
		return "", fmt.Errorf("%w: missing Operation-Location header", ErrMalformedLocation)
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrMalformedLocation, location, err)
	}
	p := strings.TrimRight(u.Path, "/")
	id := path.Base(p)
	if p == "" || id == "." || id == "/" {
		return "", fmt.Errorf("%w: %q has no operation id", ErrMalformedLocation, location)
	}
	return id, nil
}

// RetryAfter parses the Retry-After header as whole seconds.
func RetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}
