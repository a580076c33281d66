package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"
)

// PageText is the text layer of one page.
type PageText struct {
	Page  int    `json:"page"  yaml:"page"`
	Text  string `json:"text"  yaml:"text"`
	Words int    `json:"words" yaml:"words"`
}

// HasText reports whether the page carries any non-blank text.
func (p PageText) HasText() bool {
	return strings.TrimSpace(p.Text) != ""
}

// ExtractText reads the text layer of every page of data. Page indexes are
// zero-based, as everywhere else in this package.
func ExtractText(data []byte, creds *PasswordCredentials) (pages []PageText, err error) {
	// The reader reports malformed objects by panicking.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("failed to read text layer: %v", r)
		}
	}()

	reader, err := newTextReader(data, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to read text layer: %w", err)
	}

	n := reader.NumPage()
	pages = make([]PageText, 0, n)
	for num := 1; num <= n; num++ {
		pt := PageText{Page: num - 1}
		page := reader.Page(num)
		if !page.V.IsNull() {
			text, err := page.GetPlainText(make(map[string]*pdf.Font))
			if err != nil {
				return nil, fmt.Errorf("failed to read text of page %d: %w", num-1, err)
			}
			pt.Text = text
			pt.Words = len(strings.Fields(text))
		}
		pages = append(pages, pt)
	}
	return pages, nil
}

// PagesWithText returns the indexes of the pages that carry text.
func PagesWithText(pages []PageText) []int {
	var indexes []int
	for _, p := range pages {
		if p.HasText() {
			indexes = append(indexes, p.Page)
		}
	}
	return indexes
}

func newTextReader(data []byte, creds *PasswordCredentials) (*pdf.Reader, error) {
	r := bytes.NewReader(data)
	if creds.Empty() {
		return pdf.NewReader(r, int64(len(data)))
	}

	// The password callback is asked again until it returns "".
	candidates := []string{creds.UserPassword, creds.OwnerPassword}
	return pdf.NewReaderEncrypted(r, int64(len(data)), func() string {
		for len(candidates) > 0 {
			pw := candidates[0]
			candidates = candidates[1:]
			if pw != "" {
				return pw
			}
		}
		return ""
	})
}
