package pipeline

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/aocr/internal/ocrclient"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PageAnnotation is the sidecar record of one output page.
type PageAnnotation struct {
	Page     int                      `json:"page"               yaml:"page"`
	Outcome  string                   `json:"outcome"            yaml:"outcome"`
	Reason   string                   `json:"reason,omitempty"   yaml:"reason,omitempty"`
	Width    int                      `json:"width,omitempty"    yaml:"width,omitempty"`
	Height   int                      `json:"height,omitempty"   yaml:"height,omitempty"`
	Analysis *ocrclient.AnalyzeResult `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// Annotations is the sidecar document written next to the output PDF.
type Annotations struct {
	Stats Stats            `json:"stats" yaml:"stats"`
	Pages []PageAnnotation `json:"pages" yaml:"pages"`
}

// NewAnnotations collects the sidecar records of result.
func NewAnnotations(result *Result) *Annotations {
	a := &Annotations{Stats: result.Stats, Pages: make([]PageAnnotation, len(result.Pages))}
	for i, p := range result.Pages {
		pa := PageAnnotation{Page: p.Index, Outcome: p.Outcome(), Reason: p.Reason, Analysis: p.Analysis}
		if p.Image != nil {
			pa.Width, pa.Height = p.Image.Width, p.Image.Height
		}
		a.Pages[i] = pa
	}
	return a
}

// Format is a sidecar encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks YAML for .yaml and .yml files and JSON otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode writes v in the given format.
func Encode(w io.Writer, format Format, v any) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
