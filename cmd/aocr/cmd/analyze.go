package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/aocr/internal/fileio"
	"github.com/MeKo-Tech/aocr/internal/ocrclient"
	"github.com/MeKo-Tech/aocr/internal/pipeline"
)

func newAnalyzeCommand(a *app) *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Recognize the text of a whole PDF and print the raw result",
		Long: `Send a whole PDF to the OCR service in a single operation and write the
analysis result, one read result per page.

The output is JSON unless the output file ends in .yaml or .yml, or --format
is given.

Examples:
  aocr analyze -i scan.pdf
  aocr analyze -i scan.pdf -o result.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd)
		},
	}

	analyzeCmd.Flags().StringP("input", "i", "", "input PDF file (\"-\" for stdin)")
	analyzeCmd.Flags().StringP("output", "o", "-", "output file (\"-\" for stdout)")
	analyzeCmd.Flags().StringP("format", "f", "", "output format (json, yaml; default: from the output file name)")
	_ = analyzeCmd.MarkFlagRequired("input")

	addServiceFlags(analyzeCmd)
	return analyzeCmd
}

func (a *app) analyze(cmd *cobra.Command) (err error) {
	cfg := *a.config
	applyServiceFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireService(); err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	format, err := analyzeFormat(cmd, output)
	if err != nil {
		return err
	}

	data, err := fileio.ReadInput(input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if !fileio.LooksLikePDF(data) {
		return fmt.Errorf("%s is not a PDF document", fileio.DisplayName(input, "stdin"))
	}

	log := a.log.With("input", fileio.DisplayName(input, "stdin"))
	svc, err := newServices(&cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	result, err := svc.OCR.AnalyzeData(cmd.Context(), data, ocrclient.ContentTypePDF, 0, cfg.OCR.MaxAttempts)
	if err != nil {
		return fmt.Errorf("document analysis failed: %w", err)
	}
	log.Info("document analyzed", "pages", len(result.ReadResults), "lines", result.LineCount())

	return fileio.CommitOutput(output, cmd.OutOrStdout(), func(w io.Writer) error {
		return pipeline.Encode(w, format, result)
	})
}

func analyzeFormat(cmd *cobra.Command, output string) (pipeline.Format, error) {
	if !cmd.Flags().Changed("format") {
		if fileio.IsStdio(output) {
			return pipeline.FormatJSON, nil
		}
		return pipeline.FormatForPath(output), nil
	}
	f, _ := cmd.Flags().GetString("format")
	switch pipeline.Format(f) {
	case pipeline.FormatJSON, pipeline.FormatYAML:
		return pipeline.Format(f), nil
	default:
		return "", fmt.Errorf("invalid format: %s (must be one of: json, yaml)", f)
	}
}

