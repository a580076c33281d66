package pdf

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // decoders for extracted images
	_ "image/png"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	_ "golang.org/x/image/tiff"
)

type xobjectKind int

const (
	kindImage xobjectKind = iota
	kindForm
)

// xobjectNode is one entry of a page's XObject resource graph.
type xobjectNode struct {
	name     string
	objNr    int
	kind     xobjectKind
	width    int
	height   int
	children []*xobjectNode // form contents, in traversal order
	stream   *types.StreamDict
}

func (n *xobjectNode) area() int { return n.width * n.height }

// selectLargest returns the image with the largest pixel area, walking
// nodes depth-first. The first image wins ties. It returns nil when the
// graph holds no image with a positive area.
func selectLargest(nodes []*xobjectNode) *xobjectNode {
	var best *xobjectNode
	var walk func([]*xobjectNode)
	walk = func(nodes []*xobjectNode) {
		for _, n := range nodes {
			switch n.kind {
			case kindForm:
				walk(n.children)
			case kindImage:
				if n.area() > 0 && (best == nil || n.area() > best.area()) {
					best = n
				}
			}
		}
	}
	walk(nodes)
	return best
}

// LargestImageSource uses the largest embedded image of a page, the way
// scanners store one full-page bitmap per page.
type LargestImageSource struct{}

// PageImage implements ImageSource.
func (LargestImageSource) PageImage(ctx context.Context, doc *Document, index int) (*PageImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := doc.checkIndex(index); err != nil {
		return nil, err
	}

	img, err := doc.largestImage(index + 1)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", index, err)
	}
	return newPageImage(index, img), nil
}

// decodeImage decodes an extracted image stream.
func decodeImage(r io.Reader, fileType string) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode %s image: %w", ErrNoImage, fileType, err)
	}
	return img, nil
}
