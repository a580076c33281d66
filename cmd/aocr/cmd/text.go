package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/aocr/internal/fileio"
	"github.com/MeKo-Tech/aocr/internal/pdf"
	"github.com/MeKo-Tech/aocr/internal/pipeline"
)

const formatText = "text"

func newTextCommand(a *app) *cobra.Command {
	textCmd := &cobra.Command{
		Use:   "text",
		Short: "Print the text layer of a PDF",
		Long: `Print the text layer of a PDF, for example to check the output of aocr run.

Plain text output separates pages with a form feed. JSON and YAML output list
the pages with their text and word count.

Examples:
  aocr text -i searchable.pdf
  aocr text -i searchable.pdf -f json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.text(cmd)
		},
	}

	textCmd.Flags().StringP("input", "i", "", "input PDF file (\"-\" for stdin)")
	textCmd.Flags().StringP("output", "o", "-", "output file (\"-\" for stdout)")
	textCmd.Flags().StringP("format", "f", formatText, "output format (text, json, yaml)")
	textCmd.Flags().StringP("password", "p", "", "user password for encrypted PDFs")
	textCmd.Flags().String("owner-password", "", "owner password for encrypted PDFs")
	_ = textCmd.MarkFlagRequired("input")

	return textCmd
}

func (a *app) text(cmd *cobra.Command) error {
	cfg := *a.config
	set := flagSetter{cmd}
	set.string("password", &cfg.PDF.Password)
	set.string("owner-password", &cfg.PDF.OwnerPassword)

	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case formatText, string(pipeline.FormatJSON), string(pipeline.FormatYAML):
	default:
		return fmt.Errorf("invalid format: %s (must be one of: text, json, yaml)", format)
	}

	data, err := fileio.ReadInput(input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if !fileio.LooksLikePDF(data) {
		return fmt.Errorf("%s is not a PDF document", fileio.DisplayName(input, "stdin"))
	}

	pages, err := pdf.ExtractText(data, cfg.Credentials())
	if err != nil {
		return err
	}
	a.log.Debug("text layer read", "pages", len(pages), "with_text", len(pdf.PagesWithText(pages)))

	return fileio.CommitOutput(output, cmd.OutOrStdout(), func(w io.Writer) error {
		if format != formatText {
			return pipeline.Encode(w, pipeline.Format(format), pages)
		}
		for i, p := range pages {
			if i > 0 {
				if _, err := io.WriteString(w, "\f"); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w, p.Text); err != nil {
				return err
			}
		}
		return nil
	})
}
