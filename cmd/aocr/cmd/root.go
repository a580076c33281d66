// Package cmd implements the aocr command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/aocr/internal/config"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	cfgFile string
	loader  *config.Loader
	config  *config.Config
	log     *slog.Logger
}

// NewRootCommand builds the command tree with its own configuration state.
func NewRootCommand() *cobra.Command {
	a := &app{loader: config.NewLoaderWithViper(viper.New())}

	rootCmd := &cobra.Command{
		Use:   "aocr",
		Short: "Make scanned PDFs searchable with a remote OCR service",
		Long: `aocr sends the page images of a scanned PDF to an asynchronous OCR service
and writes a new PDF in which every page carries an invisible text layer
aligned with the recognized lines.

Pages whose analysis fails are kept as plain images, so the output always
has as many pages as the input.

Examples:
  aocr run -i scan.pdf -o searchable.pdf -e https://myocr.cognitiveservices.azure.com -k KEY
  aocr run -i - -o - --tier paid --workers 4 < scan.pdf > searchable.pdf
  aocr analyze -i scan.pdf -o result.yaml
  aocr text -i searchable.pdf`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/aocr, /etc/aocr)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	v := a.loader.GetViper()
	_ = v.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(
		newRunCommand(a),
		newAnalyzeCommand(a),
		newTextCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, context.Canceled) {
			return 130
		}
		return 1
	}
	return 0
}

// setup loads the configuration and installs the JSON logger on stderr.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var err error
	if a.cfgFile != "" {
		a.config, err = a.loader.LoadWithFile(a.cfgFile)
	} else {
		a.config, err = a.loader.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	a.log = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel(a.config),
	}))
	slog.SetDefault(a.log)
	return nil
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
