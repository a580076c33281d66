// Package pdf reads input documents and produces one raster image per page.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrEncrypted is returned when a document cannot be opened with the given
// credentials.
var ErrEncrypted = errors.New("document is encrypted")

// US Letter, used when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// PageSize is a page's MediaBox extent in points.
type PageSize struct {
	Width  float64
	Height float64
}

// Document is a parsed input PDF.
//
// Page indexes are zero-based. A Document is safe for concurrent use.
type Document struct {
	mu    sync.Mutex
	ctx   *model.Context
	data  []byte
	creds *PasswordCredentials

	path     string
	pathErr  error
	pathOnce sync.Once
}

// Open parses data as a PDF, decrypting it with creds when it is encrypted.
func Open(data []byte, creds *PasswordCredentials) (*Document, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), creds.configuration())
	if err != nil {
		if IsPasswordError(err) {
			return nil, fmt.Errorf("%w: %w", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	if ctx.PageCount < 1 {
		return nil, errors.New("document has no pages")
	}
	return &Document{ctx: ctx, data: data, creds: creds}, nil
}

// OpenFile reads and parses the PDF at path.
func OpenFile(path string, creds *PasswordCredentials) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Reading user-provided PDF file path is expected
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Open(data, creds)
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Credentials returns the passwords the document was opened with.
func (d *Document) Credentials() *PasswordCredentials {
	return d.creds
}

func (d *Document) checkIndex(index int) error {
	if index < 0 || index >= d.ctx.PageCount {
		return fmt.Errorf("page index %d out of range [0,%d)", index, d.ctx.PageCount)
	}
	return nil
}

// PageSize returns the MediaBox extent of the page at index.
func (d *Document) PageSize(index int) (PageSize, error) {
	if err := d.checkIndex(index); err != nil {
		return PageSize{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mediaBox(index + 1)
}

// Path returns the path of a temporary copy of the document for external
// tools. The file is created on first use and removed by Close.
func (d *Document) Path() (string, error) {
	d.pathOnce.Do(func() {
		f, err := os.CreateTemp("", "aocr-input-*.pdf")
		if err != nil {
			d.pathErr = fmt.Errorf("failed to create temporary file: %w", err)
			return
		}
		_, err = f.Write(d.data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(f.Name())
			d.pathErr = fmt.Errorf("failed to write temporary file: %w", err)
			return
		}
		d.path = f.Name()
	})
	return d.path, d.pathErr
}

// Close removes the temporary copy, if any.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.path == "" {
		return nil
	}
	err := os.Remove(d.path)
	d.path = ""
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
