// Package render implements types.Renderer on top of github.com/go-pdf/fpdf.
//
// Pages are buffered as image paths and only turned into PDF objects by
// Render, so RemovePage is a plain slice operation.
package render

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/arloliu/scanrelay/types"
)

// ImageScale is the fraction of the page each image occupies along both axes.
const ImageScale = 0.7

// PDFRenderer produces A4 portrait PDF documents, one image per page.
type PDFRenderer struct {
	// Creator is written into the PDF metadata when non-empty.
	Creator string
}

var _ types.Renderer = (*PDFRenderer)(nil)

// NewPDF creates a PDF renderer.
func NewPDF() *PDFRenderer {
	return &PDFRenderer{Creator: "scanrelay"}
}

// NewDocument returns a document holding a single blank page.
func (r *PDFRenderer) NewDocument() types.Document {
	return &pdfDocument{creator: r.Creator, pages: []string{""}}
}

// pdfDocument keeps one entry per page; an empty entry is a blank page.
type pdfDocument struct {
	creator string
	pages   []string
}

var _ types.Document = (*pdfDocument)(nil)

func (d *pdfDocument) AddPage(imagePath string) error {
	if _, err := imageType(imagePath); err != nil {
		return err
	}

	d.pages[len(d.pages)-1] = imagePath
	d.pages = append(d.pages, "")

	return nil
}

func (d *pdfDocument) PageCount() int {
	return len(d.pages)
}

func (d *pdfDocument) RemovePage(index int) error {
	if index < 0 || index >= len(d.pages) {
		return fmt.Errorf("page index %d out of range [0,%d)", index, len(d.pages))
	}
	d.pages = slices.Delete(d.pages, index, index+1)

	return nil
}

func (d *pdfDocument) Render(w io.Writer) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	if d.creator != "" {
		pdf.SetCreator(d.creator, true)
	}

	pageW, pageH := pdf.GetPageSize()
	left, top, _, _ := pdf.GetMargins()

	for _, img := range d.pages {
		pdf.AddPage()
		if img == "" {
			continue
		}

		kind, err := imageType(img)
		if err != nil {
			return err
		}
		pdf.ImageOptions(img, left, top, pageW*ImageScale, pageH*ImageScale, false,
			fpdf.ImageOptions{ImageType: kind, ReadDpi: true}, 0, "")

		if pdf.Err() {
			break
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrRenderFailed, err)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("%w: %w", types.ErrRenderFailed, err)
	}

	return nil
}

func imageType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "JPG", nil
	case ".png":
		return "PNG", nil
	default:
		return "", fmt.Errorf("%w: unsupported image type %q", types.ErrRenderFailed, path)
	}
}
