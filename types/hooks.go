package types

import (
	"context"
	"time"
)

// DocumentInfo describes one document moving through the relay.
type DocumentInfo struct {
	// ID is the document identifier carried in the chunk message headers.
	ID string

	// Pages is the number of rendered pages (producer side only).
	Pages int

	// Size is the document length in bytes.
	Size int

	// Chunks is the number of chunks the document was split into.
	Chunks int

	// Digest is the xxh3 digest of the document bytes.
	Digest uint64

	// Path is the output file (consumer side only).
	Path string
}

// Hooks defines callbacks for producer and consumer lifecycle events.
//
// All hooks are optional and called in background goroutines so they never
// block the relay loops. Hook errors are logged and otherwise ignored.
type Hooks struct {
	// OnDocumentSent is called after every chunk of a document was published.
	OnDocumentSent func(ctx context.Context, doc DocumentInfo) error

	// OnDocumentReassembled is called after a document was written to the output directory.
	OnDocumentReassembled func(ctx context.Context, doc DocumentInfo) error

	// OnTimeoutChanged is called when the producer applies a new inactivity timeout.
	OnTimeoutChanged func(ctx context.Context, from, to time.Duration) error
}
