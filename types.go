package scanrelay

import (
	"github.com/arloliu/scanrelay/internal/transport"
	"github.com/arloliu/scanrelay/types"
)

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package, which
// keeps the import graph acyclic while callers still write scanrelay.Chunk,
// scanrelay.Logger and so on.
type (
	Chunk        = types.Chunk
	Snapshot     = types.Snapshot
	Status       = types.Status
	DocumentInfo = types.DocumentInfo
	Queue        = transport.Queue
)

// Re-export interfaces from the types package for convenience.
type (
	Renderer         = types.Renderer
	Document         = types.Document
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export Status constants from the types package.
const (
	StatusWaiting    = types.StatusWaiting
	StatusProcessing = types.StatusProcessing
)
