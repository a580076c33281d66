package pdf

import (
	"fmt"
	"image"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// mediaBox reads the MediaBox of the 1-based page pageNr. Callers hold d.mu.
func (d *Document) mediaBox(pageNr int) (PageSize, error) {
	_, _, inh, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return PageSize{}, fmt.Errorf("page %d: %w", pageNr, err)
	}
	if inh == nil || inh.MediaBox == nil || inh.MediaBox.Width() <= 0 || inh.MediaBox.Height() <= 0 {
		return PageSize{Width: defaultPageWidth, Height: defaultPageHeight}, nil
	}
	return PageSize{Width: inh.MediaBox.Width(), Height: inh.MediaBox.Height()}, nil
}

// largestImage decodes the largest image of the 1-based page pageNr.
func (d *Document) largestImage(pageNr int) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes, err := d.xobjects(pageNr)
	if err != nil {
		return nil, err
	}
	best := selectLargest(nodes)
	if best == nil {
		return nil, ErrNoImage
	}

	return d.extractImage(best)
}

// extractImage decodes the image XObject of node.
func (d *Document) extractImage(node *xobjectNode) (img image.Image, err error) {
	// pdfcpu panics on some valid images, e.g. 16 bit DeviceGray.
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: image %s (object %d) cannot be extracted: %v", ErrNoImage, node.name, node.objNr, r)
		}
	}()

	if node.stream == nil {
		return nil, fmt.Errorf("%w: image %s has no stream", ErrNoImage, node.name)
	}
	extracted, err := pdfcpu.ExtractImage(d.ctx, node.stream, false, node.name, node.objNr, false)
	if err != nil {
		return nil, fmt.Errorf("failed to extract image %s: %w", node.name, err)
	}
	if extracted == nil {
		return nil, fmt.Errorf("%w: image %s (object %d) is not extractable", ErrNoImage, node.name, node.objNr)
	}
	return decodeImage(extracted, extracted.FileType)
}

// xobjects builds the XObject graph of the 1-based page pageNr.
func (d *Document) xobjects(pageNr int) ([]*xobjectNode, error) {
	pageDict, _, inh, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dictionary: %w", err)
	}

	var res types.Dict
	if o, found := pageDict["Resources"]; found {
		if res, err = d.ctx.DereferenceDict(o); err != nil {
			return nil, fmt.Errorf("failed to read page resources: %w", err)
		}
	}
	if res == nil && inh != nil {
		res = inh.Resources
	}
	return d.resourceXObjects(res, map[int]bool{})
}

func (d *Document) resourceXObjects(res types.Dict, seenForms map[int]bool) ([]*xobjectNode, error) {
	if res == nil {
		return nil, nil
	}
	o, found := res["XObject"]
	if !found {
		return nil, nil
	}
	xobjs, err := d.ctx.DereferenceDict(o)
	if err != nil || xobjs == nil {
		return nil, err
	}

	names := make([]string, 0, len(xobjs))
	for name := range xobjs {
		names = append(names, name)
	}
	sort.Strings(names)

	var nodes []*xobjectNode
	for _, name := range names {
		ref := xobjs[name]
		objNr := 0
		if ir, ok := ref.(types.IndirectRef); ok {
			objNr = int(ir.ObjectNumber)
		}

		sd, _, err := d.ctx.DereferenceStreamDict(ref)
		if err != nil {
			return nil, fmt.Errorf("xobject %s: %w", name, err)
		}
		if sd == nil {
			continue
		}

		switch d.nameEntry(sd.Dict, "Subtype") {
		case "Image":
			nodes = append(nodes, &xobjectNode{
				name:   name,
				objNr:  objNr,
				kind:   kindImage,
				width:  d.intEntry(sd.Dict, "Width"),
				height: d.intEntry(sd.Dict, "Height"),
				stream: sd,
			})
		case "Form":
			if objNr != 0 && seenForms[objNr] {
				continue
			}
			seenForms[objNr] = true

			var formRes types.Dict
			if ro, ok := sd.Dict["Resources"]; ok {
				if formRes, err = d.ctx.DereferenceDict(ro); err != nil {
					return nil, fmt.Errorf("form %s resources: %w", name, err)
				}
			}
			children, err := d.resourceXObjects(formRes, seenForms)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, &xobjectNode{name: name, objNr: objNr, kind: kindForm, children: children})
		}
	}
	return nodes, nil
}

func (d *Document) nameEntry(dict types.Dict, key string) string {
	o, err := d.ctx.Dereference(dict[key])
	if err != nil {
		return ""
	}
	if n, ok := o.(types.Name); ok {
		return string(n)
	}
	return ""
}

func (d *Document) intEntry(dict types.Dict, key string) int {
	o, err := d.ctx.Dereference(dict[key])
	if err != nil {
		return 0
	}
	switch v := o.(type) {
	case types.Integer:
		return int(v)
	case types.Float:
		return int(v)
	}
	return 0
}
