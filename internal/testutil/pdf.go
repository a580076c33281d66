package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"testing"

	"codeberg.org/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/require"
)

// PlacedImage is an image drawn at a position on a synthetic page, in points.
type PlacedImage struct {
	Image         image.Image
	X, Y          float64
	Width, Height float64
}

// PDFPage describes one page of a synthetic PDF.
type PDFPage struct {
	Width, Height float64
	Images        []PlacedImage
	Text          string
}

// BuildPDF renders pages into a PDF document.
//
// The writer shares one resource dictionary between all pages, so every
// page lists every image of the document.
func BuildPDF(t *testing.T, pages ...PDFPage) []byte {
	t.Helper()

	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetAutoPageBreak(false, 0)
	doc.SetFont("Helvetica", "", 12)

	imageNr := 0
	for _, page := range pages {
		doc.AddPageFormat("P", fpdf.SizeType{Wd: page.Width, Ht: page.Height})
		for _, placed := range page.Images {
			imageNr++
			var buf bytes.Buffer
			require.NoError(t, png.Encode(&buf, placed.Image))

			name := fmt.Sprintf("img%d", imageNr)
			opts := fpdf.ImageOptions{ImageType: "PNG"}
			doc.RegisterImageOptionsReader(name, opts, &buf)
			doc.ImageOptions(name, placed.X, placed.Y, placed.Width, placed.Height, false, opts, 0, "")
		}
		if page.Text != "" {
			doc.Text(20, 40, page.Text)
		}
	}

	var out bytes.Buffer
	require.NoError(t, doc.Output(&out))
	return out.Bytes()
}

// ScannedPDF builds a PDF whose pages each carry one full-page image at
// one point per pixel.
func ScannedPDF(t *testing.T, images ...image.Image) []byte {
	t.Helper()

	pages := make([]PDFPage, len(images))
	for i, img := range images {
		w, h := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
		pages[i] = PDFPage{
			Width:  w,
			Height: h,
			Images: []PlacedImage{{Image: img, Width: w, Height: h}},
		}
	}
	return BuildPDF(t, pages...)
}

// PageCount parses data and returns its number of pages.
func PageCount(t *testing.T, data []byte) int {
	t.Helper()

	n, err := api.PageCount(bytes.NewReader(data), nil)
	require.NoError(t, err, "Failed to parse PDF")
	return n
}

// RawImage is an uncompressed image XObject written byte for byte.
type RawImage struct {
	Width, Height int
	BPC           int
	ColorSpace    string // e.g. DeviceGray
	Data          []byte
}

// RawImagePDF writes a single page PDF by hand that draws images in order,
// each scaled to the full page. It reaches image encodings fpdf cannot
// produce, such as 16 bit samples.
func RawImagePDF(t *testing.T, pageW, pageH float64, images ...RawImage) []byte {
	t.Helper()

	var resources, content bytes.Buffer
	for i := range images {
		fmt.Fprintf(&resources, "/Im%d %d 0 R ", i+1, i+5)
		fmt.Fprintf(&content, "q %.2f 0 0 %.2f 0 0 cm /Im%d Do Q\n", pageW, pageH, i+1)
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] /Resources << /XObject << %s>> >> /Contents 4 0 R >>",
			pageW, pageH, resources.String()),
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
	}
	for _, img := range images {
		require.Equal(t, (img.Width*img.BPC+7)/8*img.Height, len(img.Data), "raw image data size")
		objects = append(objects, fmt.Sprintf(
			"<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /%s /BitsPerComponent %d /Length %d >>\nstream\n%s\nendstream",
			img.Width, img.Height, img.ColorSpace, img.BPC, len(img.Data), img.Data))
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return out.Bytes()
}
