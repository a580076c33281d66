package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/aocr/internal/cache"
	"github.com/MeKo-Tech/aocr/internal/config"
	"github.com/MeKo-Tech/aocr/internal/metrics"
	"github.com/MeKo-Tech/aocr/internal/ocrclient"
	"github.com/MeKo-Tech/aocr/internal/ratelimit"
)

// services is the OCR stack of one run: a paced, retrying client with an
// optional result cache.
type services struct {
	OCR   *ocrclient.RetryingClient
	cache *cache.Cache
	cfg   *config.Config
	log   *slog.Logger
}

func newServices(cfg *config.Config, log *slog.Logger) (*services, error) {
	client, err := ocrclient.New(cfg.ToClientConfig(), ocrclient.WithLogger(log))
	if err != nil {
		return nil, err
	}
	throttler := ratelimit.New(cfg.Interval())

	rc := ocrclient.NewRetryingClient(client, throttler)
	rc.Language = cfg.OCR.Language
	rc.Log = log

	s := &services{OCR: rc, cfg: cfg, log: log}
	if cfg.Cache.Path != "" {
		c, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL)
		if err != nil {
			return nil, err
		}
		s.cache = c
		rc.Cache = c
	}

	log.Debug("ocr client ready",
		"job", rc.JobID.String(),
		"endpoint", cfg.OCR.Endpoint,
		"interval", throttler.Interval(),
		"cache", cfg.Cache.Path,
	)
	return s, nil
}

// Close releases the cache and writes the metrics file if configured.
func (s *services) Close() error {
	var err error
	if s.cache != nil {
		err = s.cache.Close()
	}
	if path := s.cfg.Output.MetricsFile; path != "" {
		if merr := metrics.WriteTextfile(path); merr != nil && err == nil {
			err = merr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close services: %w", err)
	}
	return nil
}
