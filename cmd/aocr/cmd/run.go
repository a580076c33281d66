package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/aocr/internal/config"
	"github.com/MeKo-Tech/aocr/internal/fileio"
	"github.com/MeKo-Tech/aocr/internal/overlay"
	"github.com/MeKo-Tech/aocr/internal/pdf"
	"github.com/MeKo-Tech/aocr/internal/pipeline"
	"github.com/MeKo-Tech/aocr/internal/version"
)

func newRunCommand(a *app) *cobra.Command {
	d := config.DefaultConfig()

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Convert a scanned PDF into a searchable PDF",
		Long: `Convert a scanned PDF into a searchable PDF.

The image of every page is sent to the OCR service and the recognized lines
are laid over the page as invisible text. Pages whose analysis fails after
all attempts keep their image without a text layer.

Use "-" (or "--") as input or output to read from stdin or write to stdout.

Examples:
  aocr run -i scan.pdf -o searchable.pdf -e https://myocr.cognitiveservices.azure.com -k KEY
  aocr run -i scan.pdf -o out.pdf -r render -d 200 -c gray --no-image render
  aocr run -i scan.pdf -o out.pdf --tier paid -w 4 --annotations out.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd)
		},
	}

	runCmd.Flags().StringP("input", "i", "", "input PDF file (\"-\" for stdin)")
	runCmd.Flags().StringP("output", "o", "", "output PDF file (\"-\" for stdout)")
	_ = runCmd.MarkFlagRequired("input")
	_ = runCmd.MarkFlagRequired("output")

	addServiceFlags(runCmd)

	runCmd.Flags().StringP("retrieve-method", "r", d.PDF.RetrieveMethod,
		"page image source (extract: largest embedded image, render: rasterize the page)")
	runCmd.Flags().IntP("render-dpi", "d", d.PDF.RenderDPI, "resolution used when rendering pages")
	runCmd.Flags().StringP("render-color", "c", d.PDF.RenderColor, "color of rendered pages (binary, gray, rgb)")
	runCmd.Flags().String("renderer", d.PDF.Renderer, "pdftoppm binary used to render pages")
	runCmd.Flags().String("no-image", d.PDF.NoImage,
		"pages without an embedded image (blank: empty page, render: rasterize the page)")
	runCmd.Flags().StringP("password", "p", "", "user password for encrypted PDFs")
	runCmd.Flags().String("owner-password", "", "owner password for encrypted PDFs")
	runCmd.Flags().IntP("workers", "w", d.Pipeline.Workers, "pages processed concurrently")
	runCmd.Flags().String("annotations", "", "write the recognized text to this file (.yaml/.yml for YAML, JSON otherwise)")
	runCmd.Flags().Bool("progress", false, "draw a progress bar on stderr")

	return runCmd
}

// runConfig holds everything a run needs.
type runConfig struct {
	input  string
	output string
	cfg    config.Config
}

// configToRunConfig overlays the command-line flags onto the loaded
// configuration and validates the result.
func configToRunConfig(base *config.Config, cmd *cobra.Command) (*runConfig, error) {
	rc := &runConfig{cfg: *base}
	rc.input, _ = cmd.Flags().GetString("input")
	rc.output, _ = cmd.Flags().GetString("output")

	applyServiceFlags(cmd, &rc.cfg)

	set := flagSetter{cmd: cmd}
	set.string("retrieve-method", &rc.cfg.PDF.RetrieveMethod)
	set.int("render-dpi", &rc.cfg.PDF.RenderDPI)
	set.string("render-color", &rc.cfg.PDF.RenderColor)
	set.string("renderer", &rc.cfg.PDF.Renderer)
	set.string("no-image", &rc.cfg.PDF.NoImage)
	set.string("password", &rc.cfg.PDF.Password)
	set.string("owner-password", &rc.cfg.PDF.OwnerPassword)
	set.int("workers", &rc.cfg.Pipeline.Workers)
	set.string("annotations", &rc.cfg.Output.Annotations)
	set.bool("progress", &rc.cfg.Output.Progress)

	if rc.input == "" || rc.output == "" {
		return nil, errors.New("both --input and --output are required")
	}
	if a := rc.cfg.Output.Annotations; a != "" && fileio.IsStdio(a) && fileio.IsStdio(rc.output) {
		return nil, errors.New("--output and --annotations cannot both write to stdout")
	}
	if err := rc.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := rc.cfg.RequireService(); err != nil {
		return nil, err
	}
	return rc, nil
}

func (a *app) run(cmd *cobra.Command) (err error) {
	rc, err := configToRunConfig(a.config, cmd)
	if err != nil {
		return err
	}
	cfg := &rc.cfg
	ctx := cmd.Context()
	log := a.log.With("input", fileio.DisplayName(rc.input, "stdin"))

	data, err := fileio.ReadInput(rc.input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if !fileio.LooksLikePDF(data) {
		return fmt.Errorf("%s is not a PDF document", fileio.DisplayName(rc.input, "stdin"))
	}

	doc, err := pdf.Open(data, cfg.Credentials())
	if err != nil {
		return err
	}
	defer func() { _ = doc.Close() }()

	if existing, err := pdf.ExtractText(data, cfg.Credentials()); err != nil {
		log.Debug("could not read the existing text layer", "error", err)
	} else if pages := pdf.PagesWithText(existing); len(pages) > 0 {
		log.Warn("input already has text; it is replaced by the recognized text", "pages", pages)
	}

	svc, err := newServices(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	p, err := newPipeline(cfg, svc, cmd.ErrOrStderr(), log)
	if err != nil {
		return err
	}

	log.Info("processing document", "pages", doc.PageCount(), "workers", cfg.Pipeline.Workers, "job", svc.OCR.JobID.String())
	result, err := p.Process(ctx, doc)
	if err != nil {
		return err
	}

	w := overlay.NewWriter(overlay.WithWriterLogger(log), overlay.WithCreator(version.Producer()))
	stamped, err := pipeline.Assemble(result, w)
	if err != nil {
		return fmt.Errorf("failed to assemble output: %w", err)
	}
	if err := fileio.CommitOutput(rc.output, cmd.OutOrStdout(), w.Output); err != nil {
		return err
	}

	if path := cfg.Output.Annotations; path != "" {
		annotations := pipeline.NewAnnotations(result)
		err := fileio.CommitOutput(path, cmd.OutOrStdout(), func(out io.Writer) error {
			return pipeline.Encode(out, pipeline.FormatForPath(path), annotations)
		})
		if err != nil {
			return err
		}
	}

	log.Info("document written",
		"output", fileio.DisplayName(rc.output, "stdout"),
		"pages", result.Stats.Total,
		"annotated", result.Stats.Annotated,
		"degraded", result.Stats.Degraded,
		"blank", result.Stats.Blank,
		"lines", stamped.Stamped,
		"skipped_lines", stamped.Degenerate,
		"duration", result.Stats.Duration,
	)
	return nil
}

// newPipeline builds the page pipeline described by cfg.
func newPipeline(cfg *config.Config, svc *services, stderr io.Writer, log *slog.Logger) (*pipeline.Pipeline, error) {
	strategy, err := pdf.ParseStrategy(cfg.PDF.RetrieveMethod)
	if err != nil {
		return nil, err
	}
	color, err := pdf.ParseColorMode(cfg.PDF.RenderColor)
	if err != nil {
		return nil, err
	}
	noImage, err := pipeline.ParseNoImagePolicy(cfg.PDF.NoImage)
	if err != nil {
		return nil, err
	}

	render := pdf.RenderSource{
		Renderer: pdf.Pdftoppm{Binary: cfg.PDF.Renderer},
		DPI:      cfg.PDF.RenderDPI,
		Color:    color,
	}
	var source pdf.ImageSource = pdf.LargestImageSource{}
	if strategy == pdf.StrategyRender {
		source = render
	}

	var progress pipeline.ProgressCallback = pipeline.NewLogProgressCallback(log, slog.LevelDebug)
	if cfg.Output.Progress {
		progress = pipeline.MultiProgressCallback{
			pipeline.NewConsoleProgressCallback(stderr, ""),
			progress,
		}
	}

	return &pipeline.Pipeline{
		Source:      source,
		Fallback:    render,
		OCR:         svc.OCR,
		Workers:     cfg.Pipeline.Workers,
		MaxAttempts: cfg.OCR.MaxAttempts,
		NoImage:     noImage,
		Progress:    progress,
		Log:         log,
	}, nil
}
