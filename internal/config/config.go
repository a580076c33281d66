package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/MeKo-Tech/aocr/internal/cache"
	"github.com/MeKo-Tech/aocr/internal/ocrclient"
	"github.com/MeKo-Tech/aocr/internal/pdf"
	"github.com/MeKo-Tech/aocr/internal/pipeline"
	"github.com/MeKo-Tech/aocr/internal/ratelimit"
)

// Config represents the complete configuration of aocr.
// It is loaded from configuration files, environment variables and
// command-line flags, in increasing order of precedence.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Remote OCR service
	OCR OCRConfig `mapstructure:"ocr" yaml:"ocr" json:"ocr"`

	// Page image acquisition
	PDF PDFConfig `mapstructure:"pdf" yaml:"pdf" json:"pdf"`

	// Worker pool
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Side outputs
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Analysis result cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`
}

// OCRConfig contains the remote service settings.
type OCRConfig struct {
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Key           string        `mapstructure:"key" yaml:"key" json:"key"`
	KeyHeader     string        `mapstructure:"key_header" yaml:"key_header" json:"key_header"`
	AnalyzePath   string        `mapstructure:"analyze_path" yaml:"analyze_path" json:"analyze_path"`
	ResultsPath   string        `mapstructure:"results_path" yaml:"results_path" json:"results_path"`
	Language      string        `mapstructure:"language" yaml:"language" json:"language"`
	Tier          string        `mapstructure:"tier" yaml:"tier" json:"tier"`
	MinInterval   time.Duration `mapstructure:"min_interval" yaml:"min_interval" json:"min_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout" yaml:"submit_timeout" json:"submit_timeout"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout" json:"poll_timeout"`
	PollBackoff   string        `mapstructure:"poll_backoff" yaml:"poll_backoff" json:"poll_backoff"`
	PollDelay     time.Duration `mapstructure:"poll_delay" yaml:"poll_delay" json:"poll_delay"`
	PollMaxDelay  time.Duration `mapstructure:"poll_max_delay" yaml:"poll_max_delay" json:"poll_max_delay"`
}

// PDFConfig contains page image settings.
type PDFConfig struct {
	RetrieveMethod string `mapstructure:"retrieve_method" yaml:"retrieve_method" json:"retrieve_method"`
	RenderDPI      int    `mapstructure:"render_dpi" yaml:"render_dpi" json:"render_dpi"`
	RenderColor    string `mapstructure:"render_color" yaml:"render_color" json:"render_color"`
	Renderer       string `mapstructure:"renderer" yaml:"renderer" json:"renderer"`
	NoImage        string `mapstructure:"no_image" yaml:"no_image" json:"no_image"`
	Password       string `mapstructure:"password" yaml:"password" json:"password"`
	OwnerPassword  string `mapstructure:"owner_password" yaml:"owner_password" json:"owner_password"`
}

// PipelineConfig contains worker pool settings.
type PipelineConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// OutputConfig contains the side outputs of a run.
type OutputConfig struct {
	Annotations string `mapstructure:"annotations" yaml:"annotations" json:"annotations"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
	Progress    bool   `mapstructure:"progress" yaml:"progress" json:"progress"`
}

// CacheConfig contains analysis cache settings. An empty path disables it.
type CacheConfig struct {
	Path string        `mapstructure:"path" yaml:"path" json:"path"`
	TTL  time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

// Poll backoff modes.
const (
	BackoffExponential = "exponential"
	BackoffConstant    = "constant"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	client := ocrclient.DefaultConfig()
	return Config{
		LogLevel: "info",
		OCR: OCRConfig{
			KeyHeader:     client.KeyHeader,
			AnalyzePath:   client.AnalyzePath,
			ResultsPath:   client.ResultsPath,
			Tier:          string(ratelimit.TierFree),
			MaxAttempts:   pipeline.DefaultMaxAttempts,
			SubmitTimeout: client.SubmitTimeout,
			PollTimeout:   client.PollTimeout,
			PollBackoff:   BackoffExponential,
			PollDelay:     client.Backoff.Base,
			PollMaxDelay:  client.Backoff.Max,
		},
		PDF: PDFConfig{
			RetrieveMethod: string(pdf.StrategyExtract),
			RenderDPI:      pdf.DefaultDPI,
			RenderColor:    string(pdf.ColorRGB),
			Renderer:       "pdftoppm",
			NoImage:        string(pipeline.NoImageBlank),
		},
		Pipeline: PipelineConfig{
			Workers: 1,
		},
		Cache: CacheConfig{
			TTL: cache.DefaultTTL,
		},
	}
}

// Validate checks enumerations and ranges. It does not require the service
// endpoint and key; see RequireService.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.OCR.Endpoint != "" {
		u, err := url.Parse(c.OCR.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid ocr endpoint: %q (must be an absolute URL)", c.OCR.Endpoint)
		}
	}
	if c.OCR.Language != "" {
		if _, err := language.Parse(c.OCR.Language); err != nil {
			return fmt.Errorf("invalid ocr language %q: %w", c.OCR.Language, err)
		}
	}
	if _, err := ratelimit.ParseTier(c.OCR.Tier); err != nil {
		return err
	}
	if c.OCR.MinInterval < 0 {
		return fmt.Errorf("invalid ocr.min_interval: %v (must not be negative)", c.OCR.MinInterval)
	}
	if c.OCR.MaxAttempts <= 0 {
		return fmt.Errorf("invalid max attempts: %d (must be positive)", c.OCR.MaxAttempts)
	}
	if err := validatePositive(c.OCR.SubmitTimeout, "ocr.submit_timeout"); err != nil {
		return err
	}
	if err := validatePositive(c.OCR.PollTimeout, "ocr.poll_timeout"); err != nil {
		return err
	}
	if err := validatePositive(c.OCR.PollDelay, "ocr.poll_delay"); err != nil {
		return err
	}
	validBackoffs := []string{BackoffExponential, BackoffConstant}
	if !slices.Contains(validBackoffs, c.OCR.PollBackoff) {
		return fmt.Errorf("invalid poll backoff: %s (must be one of: %s)", c.OCR.PollBackoff, strings.Join(validBackoffs, ", "))
	}
	if c.OCR.PollMaxDelay < 0 {
		return fmt.Errorf("invalid ocr.poll_max_delay: %v (must not be negative)", c.OCR.PollMaxDelay)
	}

	if _, err := pdf.ParseStrategy(c.PDF.RetrieveMethod); err != nil {
		return err
	}
	if _, err := pdf.ParseColorMode(c.PDF.RenderColor); err != nil {
		return err
	}
	if c.PDF.RenderDPI < 36 || c.PDF.RenderDPI > 1200 {
		return fmt.Errorf("invalid render dpi: %d (must be between 36 and 1200)", c.PDF.RenderDPI)
	}
	if strings.TrimSpace(c.PDF.Renderer) == "" {
		return errors.New("invalid renderer: must name a pdftoppm binary")
	}
	if _, err := pipeline.ParseNoImagePolicy(c.PDF.NoImage); err != nil {
		return err
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("invalid workers: %d (must be positive)", c.Pipeline.Workers)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("invalid cache ttl: %v (must not be negative)", c.Cache.TTL)
	}
	return nil
}

// RequireService checks the settings needed to talk to the OCR service.
func (c *Config) RequireService() error {
	var errs []error
	if strings.TrimSpace(c.OCR.Endpoint) == "" {
		errs = append(errs, errors.New("ocr endpoint is required (--endpoint or AOCR_OCR_ENDPOINT)"))
	}
	if c.OCR.Key == "" {
		errs = append(errs, errors.New("ocr key is required (--key or AOCR_OCR_KEY)"))
	}
	return errors.Join(errs...)
}

// ToClientConfig converts the OCR settings to the client configuration.
func (c *Config) ToClientConfig() ocrclient.Config {
	return ocrclient.Config{
		Endpoint:      c.OCR.Endpoint,
		Key:           c.OCR.Key,
		KeyHeader:     c.OCR.KeyHeader,
		AnalyzePath:   c.OCR.AnalyzePath,
		ResultsPath:   c.OCR.ResultsPath,
		Language:      c.OCR.Language,
		SubmitTimeout: c.OCR.SubmitTimeout,
		PollTimeout:   c.OCR.PollTimeout,
		Backoff: ocrclient.Backoff{
			Base:        c.OCR.PollDelay,
			Max:         c.OCR.PollMaxDelay,
			Exponential: c.OCR.PollBackoff != BackoffConstant,
		},
	}
}

// Credentials returns the document passwords, nil when none are set.
func (c *Config) Credentials() *pdf.PasswordCredentials {
	creds := &pdf.PasswordCredentials{UserPassword: c.PDF.Password, OwnerPassword: c.PDF.OwnerPassword}
	if creds.Empty() {
		return nil
	}
	return creds
}

// Interval returns the minimum spacing of submissions: MinInterval when set,
// the tier preset otherwise.
func (c *Config) Interval() time.Duration {
	if c.OCR.MinInterval > 0 {
		return c.OCR.MinInterval
	}
	return c.Tier().Interval()
}

// Tier returns the parsed throttling tier.
func (c *Config) Tier() ratelimit.Tier {
	tier, err := ratelimit.ParseTier(c.OCR.Tier)
	if err != nil {
		return ratelimit.TierFree
	}
	return tier
}

// validatePositive validates that a duration is greater than zero.
func validatePositive(d time.Duration, name string) error {
	if d <= 0 {
		return fmt.Errorf("invalid %s: %v (must be positive)", name, d)
	}
	return nil
}
