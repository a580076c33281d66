package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "aocr"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "AOCR"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, which is where
// the command-line flags are bound.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from the search paths, environment variables and
// defaults, and validates it.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load without the final validation.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to the search paths.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation is LoadWithFile without the final validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file is fine when searching; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps keys like ocr.endpoint to AOCR_OCR_ENDPOINT.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()
}

// setDefaults registers every key, which also makes AutomaticEnv see them
// during Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("ocr.endpoint", d.OCR.Endpoint)
	l.v.SetDefault("ocr.key", d.OCR.Key)
	l.v.SetDefault("ocr.key_header", d.OCR.KeyHeader)
	l.v.SetDefault("ocr.analyze_path", d.OCR.AnalyzePath)
	l.v.SetDefault("ocr.results_path", d.OCR.ResultsPath)
	l.v.SetDefault("ocr.language", d.OCR.Language)
	l.v.SetDefault("ocr.tier", d.OCR.Tier)
	l.v.SetDefault("ocr.min_interval", d.OCR.MinInterval)
	l.v.SetDefault("ocr.max_attempts", d.OCR.MaxAttempts)
	l.v.SetDefault("ocr.submit_timeout", d.OCR.SubmitTimeout)
	l.v.SetDefault("ocr.poll_timeout", d.OCR.PollTimeout)
	l.v.SetDefault("ocr.poll_backoff", d.OCR.PollBackoff)
	l.v.SetDefault("ocr.poll_delay", d.OCR.PollDelay)
	l.v.SetDefault("ocr.poll_max_delay", d.OCR.PollMaxDelay)

	l.v.SetDefault("pdf.retrieve_method", d.PDF.RetrieveMethod)
	l.v.SetDefault("pdf.render_dpi", d.PDF.RenderDPI)
	l.v.SetDefault("pdf.render_color", d.PDF.RenderColor)
	l.v.SetDefault("pdf.renderer", d.PDF.Renderer)
	l.v.SetDefault("pdf.no_image", d.PDF.NoImage)
	l.v.SetDefault("pdf.password", d.PDF.Password)
	l.v.SetDefault("pdf.owner_password", d.PDF.OwnerPassword)

	l.v.SetDefault("pipeline.workers", d.Pipeline.Workers)

	l.v.SetDefault("output.annotations", d.Output.Annotations)
	l.v.SetDefault("output.metrics_file", d.Output.MetricsFile)
	l.v.SetDefault("output.progress", d.Output.Progress)

	l.v.SetDefault("cache.path", d.Cache.Path)
	l.v.SetDefault("cache.ttl", d.Cache.TTL)
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes a configuration file holding the defaults.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, "aocr"))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", "aocr"))
	}

	return append(paths, "/etc/aocr")
}
