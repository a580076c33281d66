package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
)

// DefaultDPI is the default rasterization resolution.
const DefaultDPI = 300

// binaryThreshold splits gray levels into black and white.
const binaryThreshold = 128

// RenderRequest describes one page rasterization.
type RenderRequest struct {
	Path        string // PDF file on disk
	Page        int    // 1-based page number
	DPI         int
	Credentials *PasswordCredentials
}

// Renderer rasterizes a PDF page.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (image.Image, error)
}

// Pdftoppm renders pages with poppler's pdftoppm.
type Pdftoppm struct {
	// Binary is the executable name or path; empty means "pdftoppm".
	Binary string
}

func (p Pdftoppm) binary() string {
	if p.Binary == "" {
		return "pdftoppm"
	}
	return p.Binary
}

// Available reports whether the executable can be found.
func (p Pdftoppm) Available() bool {
	_, err := exec.LookPath(p.binary())
	return err == nil
}

// Render implements Renderer.
func (p Pdftoppm) Render(ctx context.Context, req RenderRequest) (image.Image, error) {
	toolPath, err := exec.LookPath(p.binary())
	if err != nil {
		return nil, fmt.Errorf("pdftoppm tool not found: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "aocr-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	page := strconv.Itoa(req.Page)
	outputPrefix := filepath.Join(tempDir, "page")
	args := []string{"-png", "-r", strconv.Itoa(req.DPI), "-f", page, "-l", page, "-singlefile"}
	args = append(args, req.Credentials.rendererArgs()...)
	args = append(args, req.Path, outputPrefix)

	cmd := exec.CommandContext(ctx, toolPath, args...) //nolint:gosec // G204: renderer binary is user configuration
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("pdftoppm failed: %w, command: %s %v, output: %s",
			err, toolPath, redact(args, req.Credentials), string(output))
	}

	img, err := imaging.Open(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("failed to load rendered page: %w", err)
	}
	return img, nil
}

// redact hides passwords in logged command lines.
func redact(args []string, creds *PasswordCredentials) []string {
	if creds.Empty() {
		return args
	}
	out := make([]string, len(args))
	for i, a := range args {
		if i > 0 && (args[i-1] == "-upw" || args[i-1] == "-opw") {
			a = "***"
		}
		out[i] = a
	}
	return out
}

// RenderSource rasterizes whole pages.
type RenderSource struct {
	Renderer Renderer
	DPI      int
	Color    ColorMode
}

// PageImage implements ImageSource.
func (s RenderSource) PageImage(ctx context.Context, doc *Document, index int) (*PageImage, error) {
	if err := doc.checkIndex(index); err != nil {
		return nil, err
	}
	if s.Renderer == nil {
		return nil, errors.New("no renderer configured")
	}
	path, err := doc.Path()
	if err != nil {
		return nil, err
	}

	dpi := s.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	img, err := s.Renderer.Render(ctx, RenderRequest{
		Path:        path,
		Page:        index + 1,
		DPI:         dpi,
		Credentials: doc.Credentials(),
	})
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", index, err)
	}
	return newPageImage(index, ConvertColor(img, s.Color)), nil
}

// ConvertColor reduces img to the given color mode.
func ConvertColor(img image.Image, mode ColorMode) image.Image {
	switch mode {
	case ColorGray:
		return toGray(imaging.Grayscale(img), nil)
	case ColorBinary:
		return toGray(imaging.Grayscale(img), func(y uint8) uint8 {
			if y < binaryThreshold {
				return 0
			}
			return 255
		})
	default:
		return img
	}
}

// toGray copies a grayscale image into an 8-bit gray image, mapping each
// level through level when it is set.
func toGray(img image.Image, level func(uint8) uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
			if level != nil {
				g = level(g)
			}
			out.SetGray(x, y, color.Gray{Y: g})
		}
	}
	return out
}
