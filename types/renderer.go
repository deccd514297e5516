package types

import "io"

// Renderer creates empty multi-page documents.
//
// Implementations must be safe to call from a single goroutine at a time; the
// batch assembler never renders two documents concurrently.
type Renderer interface {
	// NewDocument returns a fresh, empty document handle.
	NewDocument() Document
}

// Document is an in-progress multi-page document.
//
// Every AddPage places the image on the current page and then breaks to a new,
// empty page. A document with n images therefore reports n+1 pages, the last
// one blank. Callers strip that trailing artifact with RemovePage before Render.
type Document interface {
	// AddPage places the image at imagePath on the current page and starts a new page.
	AddPage(imagePath string) error

	// PageCount returns the number of pages, including the trailing blank page.
	PageCount() int

	// RemovePage removes the page at the zero-based index.
	RemovePage(index int) error

	// Render writes the encoded document to w.
	Render(w io.Writer) error
}
