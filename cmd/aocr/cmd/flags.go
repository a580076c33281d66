package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/aocr/internal/config"
)

// addServiceFlags registers the flags shared by commands that talk to the
// OCR service.
func addServiceFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()

	cmd.Flags().StringP("endpoint", "e", "", "OCR service endpoint, e.g. https://NAME.cognitiveservices.azure.com")
	cmd.Flags().StringP("key", "k", "", "OCR service subscription key")
	cmd.Flags().StringP("language", "l", "", "BCP-47 language hint (default: auto-detect)")
	cmd.Flags().String("tier", d.OCR.Tier, "service tier preset for request pacing (free, paid)")
	cmd.Flags().Duration("min-interval", 0, "minimum spacing between submissions (0 = tier preset)")
	cmd.Flags().Int("max-attempts", d.OCR.MaxAttempts, "analysis attempts per page")
	cmd.Flags().Duration("submit-timeout", d.OCR.SubmitTimeout, "time budget for a submission, including 429 waits")
	cmd.Flags().Duration("poll-timeout", d.OCR.PollTimeout, "time budget for polling one operation")
	cmd.Flags().String("poll-backoff", d.OCR.PollBackoff, "poll delay growth (exponential, constant)")
	cmd.Flags().Duration("poll-delay", d.OCR.PollDelay, "first delay between polls")
	cmd.Flags().Duration("poll-max-delay", d.OCR.PollMaxDelay, "upper bound of the exponential poll delay")
	cmd.Flags().String("cache", "", "analysis cache file (\":memory:\" for in-memory, empty disables)")
	cmd.Flags().Duration("cache-ttl", d.Cache.TTL, "lifetime of cached analyses")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file when done")
}

// flagSetter copies changed flags over configuration values, leaving the
// configuration untouched where the flag was not given.
type flagSetter struct {
	cmd *cobra.Command
}

func (s flagSetter) string(flagName string, target *string) {
	if s.cmd.Flags().Changed(flagName) {
		*target, _ = s.cmd.Flags().GetString(flagName)
	}
}

func (s flagSetter) int(flagName string, target *int) {
	if s.cmd.Flags().Changed(flagName) {
		*target, _ = s.cmd.Flags().GetInt(flagName)
	}
}

func (s flagSetter) bool(flagName string, target *bool) {
	if s.cmd.Flags().Changed(flagName) {
		*target, _ = s.cmd.Flags().GetBool(flagName)
	}
}

func (s flagSetter) duration(flagName string, target *time.Duration) {
	if s.cmd.Flags().Changed(flagName) {
		*target, _ = s.cmd.Flags().GetDuration(flagName)
	}
}

// applyServiceFlags overlays the flags of addServiceFlags onto cfg.
func applyServiceFlags(cmd *cobra.Command, cfg *config.Config) {
	set := flagSetter{cmd: cmd}

	set.string("endpoint", &cfg.OCR.Endpoint)
	set.string("key", &cfg.OCR.Key)
	set.string("language", &cfg.OCR.Language)
	set.string("tier", &cfg.OCR.Tier)
	set.duration("min-interval", &cfg.OCR.MinInterval)
	set.int("max-attempts", &cfg.OCR.MaxAttempts)
	set.duration("submit-timeout", &cfg.OCR.SubmitTimeout)
	set.duration("poll-timeout", &cfg.OCR.PollTimeout)
	set.string("poll-backoff", &cfg.OCR.PollBackoff)
	set.duration("poll-delay", &cfg.OCR.PollDelay)
	set.duration("poll-max-delay", &cfg.OCR.PollMaxDelay)
	set.string("cache", &cfg.Cache.Path)
	set.duration("cache-ttl", &cfg.Cache.TTL)
	set.string("metrics-file", &cfg.Output.MetricsFile)
}
